package backend

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingURL   = errors.New("backend: SERVICE_URL is required")
	ErrMissingKey   = errors.New("backend: SERVICE_ANON_KEY is required")
	ErrInvalidURL   = errors.New("backend: invalid service url")
	ErrUnauthorized = errors.New("backend: unauthorized")
	ErrNotFound     = errors.New("backend: not found")
	ErrConflict     = errors.New("backend: conflict")
)

// APIError is a non-2xx response from the service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend: %d: %s", e.Status, e.Message)
}

// Is maps status codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden ||
			e.Code == "invalid_grant" || e.Code == "invalid_credentials"
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrConflict:
		return e.Status == http.StatusConflict || e.Code == "user_already_exists"
	}
	return false
}

// errorBody covers both the REST and the auth error shapes.
type errorBody struct {
	Code             string `json:"code"`
	Message          string `json:"message"`
	Msg              string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
}

func (b errorBody) apiError(status int) *APIError {
	e := &APIError{Status: status, Code: b.Code}
	if e.Code == "" {
		e.Code = b.ErrorCode
	}
	if e.Code == "" {
		e.Code = b.Error
	}
	for _, m := range []string{b.Message, b.Msg, b.ErrorDescription} {
		if m != "" {
			e.Message = m
			break
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
