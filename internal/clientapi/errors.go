package clientapi

import "net/http"

// ChatCompletionError is the OpenAI error detail.
type ChatCompletionError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

// ChatCompletionErrorResponse is the OpenAI error envelope: {"error": {...}}.
type ChatCompletionErrorResponse struct {
	Err ChatCompletionError `json:"error"`
}

func (e *ChatCompletionErrorResponse) Error() string {
	return e.Err.Message
}

// NewOpenAIError builds the OpenAI envelope for a response status.
func NewOpenAIError(status int, message string) *ChatCompletionErrorResponse {
	return &ChatCompletionErrorResponse{Err: ChatCompletionError{Message: message, Type: openAIErrorType(status)}}
}

func openAIErrorType(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusRequestEntityTooLarge:
		return "invalid_request_error"
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusForbidden:
		return "permission_denied"
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	default:
		return "api_error"
	}
}

// MessagesErrorDetail is the Anthropic error detail.
type MessagesErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// MessagesErrorResponse is the Anthropic error envelope:
// {"type": "error", "error": {...}}.
type MessagesErrorResponse struct {
	Type string              `json:"type"`
	Err  MessagesErrorDetail `json:"error"`
}

func (e *MessagesErrorResponse) Error() string {
	return e.Err.Message
}

// NewAnthropicError builds the Anthropic envelope for a response status.
func NewAnthropicError(status int, message string) *MessagesErrorResponse {
	return &MessagesErrorResponse{
		Type: "error",
		Err:  MessagesErrorDetail{Type: anthropicErrorType(status), Message: message},
	}
}

func anthropicErrorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request_error"
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusForbidden:
		return "permission_error"
	case http.StatusNotFound:
		return "not_found_error"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	case http.StatusServiceUnavailable:
		return "overloaded_error"
	default:
		return "api_error"
	}
}
