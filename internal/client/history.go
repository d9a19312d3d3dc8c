package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zhouzirui/serene/backend/internal/model/chat"
)

const msgHistoryFailed = "Failed to load chat history"

// HistoryQuery selects a page of history. Zero Limit lets the server pick its default.
type HistoryQuery struct {
	Limit  int
	Before *time.Time
}

// HistoryClient fetches conversation history over the REST endpoint.
type HistoryClient struct {
	endpoint string
	token    string
	http     *http.Client
}

// NewHistoryClient 创建历史记录客户端，endpoint 形如 http://host/api/chat/history
func NewHistoryClient(endpoint, token string, httpClient *http.Client) *HistoryClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HistoryClient{endpoint: endpoint, token: token, http: httpClient}
}

// HistoryError is a non-2xx answer from the history endpoint.
type HistoryError struct {
	StatusCode int
	Message    string
}

func (e *HistoryError) Error() string {
	return fmt.Sprintf("history request failed (%d): %s", e.StatusCode, e.Message)
}

// LoadHistory returns a page of the conversation with receiverID, oldest first. It does not
// retry.
func (c *HistoryClient) LoadHistory(ctx context.Context, receiverID string, q HistoryQuery) ([]chat.Message, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse history endpoint: %w", err)
	}

	params := u.Query()
	params.Set("receiverId", receiverID)
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Before != nil {
		params.Set("before", q.Before.UTC().Format(time.RFC3339Nano))
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build history request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		message := strings.TrimSpace(body.Error)
		if message == "" {
			message = msgHistoryFailed
		}
		return nil, &HistoryError{StatusCode: resp.StatusCode, Message: message}
	}

	var messages []chat.Message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	return messages, nil
}
