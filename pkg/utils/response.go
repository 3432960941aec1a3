package utils

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"
	"strings"
)

// APIResponse 标准API响应结构（读取视图）
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// APIError 错误信息结构
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Meta 元数据结构（用于分页等）
type Meta struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	Total      int `json:"total,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
}

// ActionError is the body of a failed form action. The originating page renders
// Error inline.
type ActionError struct {
	Error string `json:"error"`
}

// ActionSuccess is the body of a successful form action when the client asked for JSON.
type ActionSuccess struct {
	Success  bool        `json:"success"`
	Redirect string      `json:"redirect,omitempty"`
	Message  string      `json:"message,omitempty"`
	Data     interface{} `json:"data,omitempty"`
}

// WriteJSON 写入原始JSON响应
func WriteJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		// 如果编码失败，写入简单的错误响应
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// WriteJSONResponse 写入JSON响应
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	WriteJSON(w, statusCode, APIResponse{
		Success: statusCode >= 200 && statusCode < 300,
		Data:    data,
	})
}

// WriteSuccessResponse 写入成功响应
func WriteSuccessResponse(w http.ResponseWriter, data interface{}) {
	WriteJSONResponse(w, http.StatusOK, data)
}

// WriteErrorResponseWithCode 写入带错误代码的错误响应
func WriteErrorResponseWithCode(w http.ResponseWriter, statusCode int, code, message, details string) {
	WriteJSON(w, statusCode, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// WriteUnauthorizedResponse 写入401错误响应
func WriteUnauthorizedResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusUnauthorized, "UNAUTHORIZED", message, "")
}

// WriteForbiddenResponse 写入403错误响应
func WriteForbiddenResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusForbidden, "FORBIDDEN", message, "")
}

// WriteNotFoundResponse 写入404错误响应
func WriteNotFoundResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusNotFound, "NOT_FOUND", message, "")
}

// WriteServiceUnavailableResponse 写入503错误响应
func WriteServiceUnavailableResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message, "")
}

// WriteInternalServerErrorResponse 写入500错误响应
func WriteInternalServerErrorResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", message, "")
}

// WriteValidationErrorResponse 写入验证错误响应
func WriteValidationErrorResponse(w http.ResponseWriter, message string, details string) {
	WriteErrorResponseWithCode(w, http.StatusBadRequest, "VALIDATION_ERROR", message, details)
}

// WritePaginatedResponse 写入分页响应
func WritePaginatedResponse(w http.ResponseWriter, data interface{}, page, perPage, total int) {
	WriteJSON(w, http.StatusOK, PaginatedResponse(data, page, perPage, total))
}

// PaginatedResponse builds the envelope written by WritePaginatedResponse.
func PaginatedResponse(data interface{}, page, perPage, total int) APIResponse {
	totalPages := 0
	if perPage > 0 {
		totalPages = (total + perPage - 1) / perPage // 向上取整
	}
	return APIResponse{
		Success: true,
		Data:    data,
		Meta: &Meta{
			Page:       page,
			PerPage:    perPage,
			Total:      total,
			TotalPages: totalPages,
		},
	}
}

// WriteActionError 写入表单操作错误 {"error": "..."}
func WriteActionError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ActionError{Error: message})
}

// WantsJSON reports whether the client prefers a JSON body over a redirect.
func WantsJSON(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mediaType == "application/json" {
			return true
		}
	}
	return false
}

// GetQueryParam 获取查询参数，如果不存在则返回默认值
func GetQueryParam(r *http.Request, key, defaultValue string) string {
	if value := r.URL.Query().Get(key); value != "" {
		return value
	}
	return defaultValue
}

// GetIntQueryParam 获取整数查询参数，无效时返回默认值
func GetIntQueryParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
