package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed API call.
type Kind int

const (
	KindUnknown Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindServerError
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindServerError:
		return "server_error"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Messages shown to the user for failures that carry no usable server message.
const (
	MessageBadRequest   = "invalid request"
	MessageUnauthorized = "unauthorized access, please sign in."
	MessageForbidden    = "you do not have permission for this action."
	MessageNotFound     = "the requested resource was not found."
	MessageServerError  = "server error, please try again later."
	MessageBadFormat    = "unexpected response format"
)

// APIError is the error returned by every failed API call.
//
// For KindNetwork no response was received and Err holds the transport error,
// which stays reachable through errors.Is and errors.As.
type APIError struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Kind == KindNetwork && e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or KindUnknown when err is not an APIError.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is an APIError of the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// Classify turns a non-2xx response into an APIError.
//
// 401, 403, 404 and 500 always use fixed messages. 400 and any other status
// prefer the server's message or error field.
func Classify(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	switch status {
	case http.StatusBadRequest:
		apiErr.Kind = KindBadRequest
		apiErr.Message = serverMessage(body, MessageBadRequest)
	case http.StatusUnauthorized:
		apiErr.Kind = KindUnauthorized
		apiErr.Message = MessageUnauthorized
	case http.StatusForbidden:
		apiErr.Kind = KindForbidden
		apiErr.Message = MessageForbidden
	case http.StatusNotFound:
		apiErr.Kind = KindNotFound
		apiErr.Message = MessageNotFound
	case http.StatusInternalServerError:
		apiErr.Kind = KindServerError
		apiErr.Message = MessageServerError
	default:
		apiErr.Kind = KindUnknown
		apiErr.Message = serverMessage(body, fmt.Sprintf("HTTP %d error", status))
	}

	return apiErr
}

func serverMessage(body []byte, fallback string) string {
	var fields struct {
		Message any `json:"message"`
		Error   any `json:"error"`
	}
	if err := json.Unmarshal(body, &fields); err != nil {
		return fallback
	}

	if msg, ok := fields.Message.(string); ok && msg != "" {
		return msg
	}
	if msg, ok := fields.Error.(string); ok && msg != "" {
		return msg
	}
	return fallback
}
