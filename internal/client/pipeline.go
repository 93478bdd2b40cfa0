package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/wolfeidau/internportal/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	HeaderRequestID = "X-Request-ID"

	contentTypeJSON = "application/json"

	// maxErrorBody caps how much of a failed response is read for its message.
	maxErrorBody = 64 << 10
)

// BeforeSend prepares an outgoing request.
//
// It fills in the default headers the caller did not set, propagates the
// trace context and, when sess is present, sets the bearer credential.
// A nil sess sends the request unauthenticated.
func BeforeSend(req *http.Request, sess *models.Session) *http.Request {
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", contentTypeJSON)
	}
	if req.Header.Get(HeaderRequestID) == "" {
		if id, err := uuid.NewV7(); err == nil {
			req.Header.Set(HeaderRequestID, id.String())
		}
	}

	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))

	if sess != nil && sess.AccessToken != "" {
		sess.Token().SetAuthHeader(req)
	}

	return req
}

// OnResponse reads resp and returns the unwrapped payload, or the classified
// error for a non-2xx status. The body is always closed.
func OnResponse(resp *http.Response) (json.RawMessage, error) {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, Classify(resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{
			Kind:   KindNetwork,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("read response body: %w", err),
		}
	}

	return Unwrap(body), nil
}

// Unwrap extracts the payload of a response envelope.
//
// A JSON object with a result key yields the value of result. Anything else is
// the payload itself. An empty body yields nil.
func Unwrap(body []byte) json.RawMessage {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}
	if body[0] != '{' {
		return body
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return body
	}
	if result, ok := envelope["result"]; ok {
		return result
	}
	return body
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, &APIError{Kind: KindUnknown, Message: MessageBadFormat, Err: err}
	}
	return v, nil
}
