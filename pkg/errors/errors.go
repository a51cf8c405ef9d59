package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code string, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    "BAD_REQUEST",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func Unauthorized(message string, err error) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func Forbidden(message string, err error) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     err,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     nil,
	}
}

func TooManyRequests(message string, waitTime interface{}) *AppError {
	return &AppError{
		Code:    "TOO_MANY_REQUESTS",
		Message: message,
		Status:  http.StatusTooManyRequests,
		Err:     nil,
	}
}

// Network wraps a failed remote fetch/write. Recoverable; retry is the
// caller's decision.
func Network(message string, err error) *AppError {
	return &AppError{
		Code:    "NETWORK_ERROR",
		Message: message,
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

func ConversationNotFound(id string) *AppError {
	return &AppError{
		Code:    "CONVERSATION_NOT_FOUND",
		Message: fmt.Sprintf("conversation %s not found", id),
		Status:  http.StatusNotFound,
		Err:     nil,
	}
}

func UserNotFound(id string, err error) *AppError {
	return &AppError{
		Code:    "USER_NOT_FOUND",
		Message: fmt.Sprintf("user %s not found", id),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func MessageSendFailed(err error) *AppError {
	return &AppError{
		Code:    "MESSAGE_SEND_FAILED",
		Message: "failed to send message",
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

// ConversationCreateFailed marks a failed two-step create. The caller must be
// able to keep its pending state and retry.
func ConversationCreateFailed(err error) *AppError {
	return &AppError{
		Code:    "CONVERSATION_CREATE_FAILED",
		Message: "failed to create conversation",
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

func SubscriptionDisconnected(channel string, err error) *AppError {
	return &AppError{
		Code:    "SUBSCRIPTION_DISCONNECTED",
		Message: fmt.Sprintf("%s channel disconnected", channel),
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}
