package utils

import (
	"encoding/json"
	"log"
	"net/http"
)

// ErrorBody 是所有 REST 错误响应的统一格式
type ErrorBody struct {
	Error string `json:"error"`
}

// RespondJSON 写入状态码并以 JSON 编码 payload，响应不允许缓存
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	header := w.Header()
	header.Set("Content-Type", "application/json; charset=utf-8")
	header.Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[http] encode response (status=%d): %v", status, err)
	}
}

// RespondError 返回 {"error": message}
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorBody{Error: message})
}

// RespondInternalError 记录内部错误，对外只返回通用错误信息
func RespondInternalError(w http.ResponseWriter, tag string, err error) {
	log.Printf("[%s] internal error: %v", tag, err)
	RespondError(w, http.StatusInternalServerError, "Internal server error")
}
