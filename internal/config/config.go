// Package config loads service configuration from an optional YAML file and the environment.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"gopkg.in/yaml.v3"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Chat     ChatConfig     `yaml:"chat"`
	AI       AIConfig       `yaml:"ai"`
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AuthConfig 描述 JWT 校验配置。
type AuthConfig struct {
	Secret   string `yaml:"secret"`
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

// DatabaseConfig 描述消息存储使用的数据库。
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RedisConfig 描述 token 吊销列表所在的 Redis，Addr 为空时不启用。
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled 表示是否配置了 Redis。
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// ChatConfig 描述聊天消息与历史查询的限制。
type ChatConfig struct {
	MaxContentLength    int `yaml:"max_content_length"`
	HistoryDefaultLimit int `yaml:"history_default_limit"`
	HistoryMaxLimit     int `yaml:"history_max_limit"`
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey           string   `yaml:"api_key"`
	AccessKey        string   `yaml:"access_key"`
	SecretKey        string   `yaml:"secret_key"`
	Model            string   `yaml:"model"`
	BaseURL          string   `yaml:"base_url"`
	Region           string   `yaml:"region"`
	Temperature      *float64 `yaml:"temperature"`
	TopP             *float64 `yaml:"top_p"`
	MaxTokens        *int     `yaml:"max_tokens"`
	MoodLLMEnabled   bool     `yaml:"mood_llm_enabled"`
	MoodHistoryLimit int      `yaml:"mood_history_limit"`
}

// Default 返回未做任何覆盖时的配置。
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "serene.db"},
		Chat: ChatConfig{
			MaxContentLength:    4000,
			HistoryDefaultLimit: 50,
			HistoryMaxLimit:     200,
		},
		AI: AIConfig{
			BaseURL:          "https://ark.cn-beijing.volces.com/api/v3",
			Region:           "cn-beijing",
			MoodHistoryLimit: 6,
		},
	}
}

// Load 先读取 CONFIG_FILE 指定的 YAML（可选），再用环境变量覆盖。
func Load() (*Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		addr, err := parseAddr(port)
		if err != nil {
			return err
		}
		c.Server.Addr = addr
	}
	if origins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}

	c.Auth.Secret = getEnvOrDefault("JWT_SECRET", c.Auth.Secret)
	c.Auth.Issuer = getEnvOrDefault("JWT_ISS", c.Auth.Issuer)
	c.Auth.Audience = getEnvOrDefault("JWT_AUD", c.Auth.Audience)

	c.Database.Driver = getEnvOrDefault("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnvOrDefault("DB_DSN", c.Database.DSN)

	c.Redis.Addr = getEnvOrDefault("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", c.Redis.Password)

	for key, dst := range map[string]*int{
		"REDIS_DB":                &c.Redis.DB,
		"CHAT_MAX_CONTENT_LENGTH": &c.Chat.MaxContentLength,
		"CHAT_HISTORY_LIMIT":      &c.Chat.HistoryDefaultLimit,
		"CHAT_HISTORY_MAX_LIMIT":  &c.Chat.HistoryMaxLimit,
		"AI_MOOD_HISTORY_LIMIT":   &c.AI.MoodHistoryLimit,
	} {
		val, err := parseOptionalIntEnv(key)
		if err != nil {
			return err
		}
		if val != nil {
			*dst = *val
		}
	}

	return c.AI.applyEnv()
}

func (c *AIConfig) applyEnv() error {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return err
	}
	if temperature != nil {
		c.Temperature = temperature
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return err
	}
	if topP != nil {
		c.TopP = topP
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return err
	}
	if maxTokens != nil {
		c.MaxTokens = maxTokens
	}

	moodEnabled, err := parseBoolEnv("AI_MOOD_LLM_ENABLED", c.MoodLLMEnabled)
	if err != nil {
		return err
	}
	c.MoodLLMEnabled = moodEnabled

	c.APIKey = getEnvOrDefault("ARK_API_KEY", c.APIKey)
	c.AccessKey = getEnvOrDefault("ARK_ACCESS_KEY", c.AccessKey)
	c.SecretKey = getEnvOrDefault("ARK_SECRET_KEY", c.SecretKey)
	c.Model = getEnvOrDefault("Model", c.Model)
	c.BaseURL = getEnvOrDefault("ARK_BASE_URL", c.BaseURL)
	c.Region = getEnvOrDefault("ARK_REGION", c.Region)

	if c.MoodHistoryLimit < 1 {
		c.MoodHistoryLimit = 1
	}
	return nil
}

// validate 检查必填项与取值范围。
func (c *Config) validate() error {
	var errs []string
	if c.Auth.Secret == "" {
		errs = append(errs, "JWT_SECRET is required")
	}
	if c.Chat.MaxContentLength <= 0 {
		errs = append(errs, "chat max content length must be positive")
	}
	if c.Chat.HistoryMaxLimit <= 0 {
		errs = append(errs, "chat history max limit must be positive")
	}
	if c.Chat.HistoryDefaultLimit <= 0 || c.Chat.HistoryDefaultLimit > c.Chat.HistoryMaxLimit {
		errs = append(errs, "chat history limit must be between 1 and the max limit")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

// parseAddr 允许 "8080"、":8080" 或 "127.0.0.1:8080"。
func parseAddr(port string) (string, error) {
	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}
	if strings.Contains(port, ":") {
		return port, nil
	}
	return ":" + port, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
