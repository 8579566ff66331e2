// Package apierror turns Member API failures into a single error type
// carrying a message that can be shown to the member as is.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

const (
	GenericMessage     = "Something went wrong. Please try again."
	UnavailableMessage = "The membership service is unavailable. Please try again later."

	maxPlainTextMessage = 300
)

// Error is an upstream failure. StatusCode is 0 when no response was received.
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("member api returned %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Upstream reports whether the failure lies with the Member API or the
// network rather than the request.
func (e *Error) Upstream() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// SessionExpired reports whether the Member API refused the member's token.
func (e *Error) SessionExpired() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// FromResponse builds an Error from a non-success response.
func FromResponse(status int, body []byte) *Error {
	return &Error{StatusCode: status, Message: Message(body)}
}

// FromTransport wraps a failure that produced no response.
func FromTransport(err error) *Error {
	return &Error{Message: UnavailableMessage, Err: err}
}

// As unwraps err into an *Error when possible.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// Message extracts the display message from a response body. Priority:
// "message", then every value under "errors" joined with ", ", then "title",
// then a short plain-text body, then GenericMessage.
func Message(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return GenericMessage
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		var plain string
		if json.Unmarshal([]byte(trimmed), &plain) == nil {
			trimmed = strings.TrimSpace(plain)
		}
		if trimmed != "" && !strings.HasPrefix(trimmed, "<") && len(trimmed) <= maxPlainTextMessage {
			return trimmed
		}
		return GenericMessage
	}

	if msg := stringField(fields, "message"); msg != "" {
		return msg
	}
	if raw, ok := field(fields, "errors"); ok {
		if joined := strings.Join(Flatten(raw), ", "); joined != "" {
			return joined
		}
	}
	if title := stringField(fields, "title"); title != "" {
		return title
	}
	return GenericMessage
}

// Flatten collects every scalar value of an errors payload, which may be a
// string, an array or an object of field errors. Object keys are visited in
// sorted order.
func Flatten(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	var out []string
	collect(v, &out)
	return out
}

func collect(v interface{}, out *[]string) {
	switch val := v.(type) {
	case nil:
	case string:
		if s := strings.TrimSpace(val); s != "" {
			*out = append(*out, s)
		}
	case []interface{}:
		for _, item := range val {
			collect(item, out)
		}
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collect(val[k], out)
		}
	default:
		*out = append(*out, fmt.Sprint(val))
	}
}

func field(fields map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	if raw, ok := fields[name]; ok {
		return raw, true
	}
	for k, raw := range fields {
		if strings.EqualFold(k, name) {
			return raw, true
		}
	}
	return nil, false
}

func stringField(fields map[string]json.RawMessage, name string) string {
	raw, ok := field(fields, name)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
