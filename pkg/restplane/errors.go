package restplane

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrorType categorizes service errors.
type ErrorType int8

const (
	// ErrorTypeThrottling represents 429 and throttling exception codes.
	ErrorTypeThrottling ErrorType = iota
	// ErrorTypeAuth represents 401/403 and access-denied codes.
	ErrorTypeAuth
	// ErrorTypeValidation represents malformed requests (400, ValidationException).
	ErrorTypeValidation
	// ErrorTypeNotFound represents a missing resource (404, ResourceNotFoundException).
	ErrorTypeNotFound
	// ErrorTypeConflict represents a conflicting resource state (409).
	ErrorTypeConflict
	// ErrorTypeTransient represents 5xx responses.
	ErrorTypeTransient
	// ErrorTypeUnknown represents default for unclassified errors.
	ErrorTypeUnknown
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeThrottling:
		return "throttling"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeValidation:
		return "validation"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeConflict:
		return "conflict"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// ServiceError is a non-2xx response from a service plane.
type ServiceError struct {
	Operation  string
	Service    string
	Code       string // e.g. "ResourceNotFoundException"
	Message    string
	RequestID  string
	StatusCode int
	Type       ErrorType
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	code := e.Code
	if code == "" {
		code = http.StatusText(e.StatusCode)
	}
	msg := fmt.Sprintf("%s %s failed (%s, status %d)", e.Service, e.Operation, code, e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.RequestID != "" {
		msg += " [request " + e.RequestID + "]"
	}
	return msg
}

// newServiceError builds a ServiceError from an error response body. Codes are read from
// "__type", "code" or the x-amzn-ErrorType header; messages from "message" or "Message".
func newServiceError(service, operation string, resp *http.Response, body []byte, requestID string) *ServiceError {
	code := resp.Header.Get("X-Amzn-Errortype")
	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		if v := parsed.Get("__type"); v.Exists() {
			code = v.String()
		} else if v := parsed.Get("code"); v.Exists() {
			code = v.String()
		}
	}
	// "com.amazonaws.service#ValidationException:extra" => "ValidationException"
	if i := strings.LastIndex(code, "#"); i >= 0 {
		code = code[i+1:]
	}
	if i := strings.Index(code, ":"); i >= 0 {
		code = code[:i]
	}

	message := ""
	if gjson.ValidBytes(body) {
		message = gjson.GetBytes(body, "message").String()
		if message == "" {
			message = gjson.GetBytes(body, "Message").String()
		}
	} else {
		message = strings.TrimSpace(string(body))
	}

	if rid := resp.Header.Get("X-Amzn-Requestid"); rid != "" {
		requestID = rid
	}

	return &ServiceError{
		Operation:  operation,
		Service:    service,
		Code:       code,
		Message:    message,
		RequestID:  requestID,
		StatusCode: resp.StatusCode,
		Type:       classify(resp.StatusCode, code),
	}
}

func classify(status int, code string) ErrorType {
	switch {
	case status == http.StatusTooManyRequests || strings.Contains(code, "Throttl"):
		return ErrorTypeThrottling
	case status == http.StatusUnauthorized || status == http.StatusForbidden || strings.Contains(code, "AccessDenied") || strings.Contains(code, "Unauthorized"):
		return ErrorTypeAuth
	case status == http.StatusNotFound || strings.Contains(code, "NotFound"):
		return ErrorTypeNotFound
	case status == http.StatusConflict || strings.Contains(code, "Conflict"):
		return ErrorTypeConflict
	case status == http.StatusBadRequest || strings.Contains(code, "Validation"):
		return ErrorTypeValidation
	case status >= 500:
		return ErrorTypeTransient
	default:
		return ErrorTypeUnknown
	}
}

// Is checks if an error is a ServiceError of a specific type.
func Is(err error, errorType ErrorType) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Type == errorType
	}
	return false
}

// TypeOf returns the error type of an error, or ErrorTypeUnknown if it is not a ServiceError.
func TypeOf(err error) ErrorType {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Type
	}
	return ErrorTypeUnknown
}
