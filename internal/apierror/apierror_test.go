package apierror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage_Priority(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"message wins over errors", `{"message":"Discount code expired","errors":["ignored"]}`, "Discount code expired"},
		{"errors array joined", `{"errors":["Tier not found","Processor unavailable"]}`, "Tier not found, Processor unavailable"},
		{"errors object flattened in key order", `{"errors":{"processorId":["Invalid processor"],"credits":["Must be positive","Too many"]}}`, "Must be positive, Too many, Invalid processor"},
		{"empty message falls through", `{"message":"  ","errors":["Only this"]}`, "Only this"},
		{"title after errors", `{"title":"One or more validation errors occurred.","errors":{}}`, "One or more validation errors occurred."},
		{"capitalised key", `{"Message":"Already a member"}`, "Already a member"},
		{"plain text body", `Order not found`, "Order not found"},
		{"json string body", `"Token already used"`, "Token already used"},
		{"html body", `<html><body>Bad gateway</body></html>`, GenericMessage},
		{"empty body", ``, GenericMessage},
		{"no known fields", `{"status":500}`, GenericMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Message([]byte(tt.body)))
		})
	}
}

func TestFlatten_NestedValues(t *testing.T) {
	got := Flatten([]byte(`{"b":{"inner":["x",1]},"a":"y","c":[true,null]}`))
	assert.Equal(t, []string{"y", "x", "1", "true"}, got)
}

func TestError_Classification(t *testing.T) {
	transport := FromTransport(errors.New("dial tcp: connection refused"))
	assert.True(t, transport.Upstream())
	assert.Equal(t, UnavailableMessage, transport.Error())

	badRequest := FromResponse(400, []byte(`{"message":"Invalid tier"}`))
	assert.False(t, badRequest.Upstream())
	assert.Equal(t, "member api returned 400: Invalid tier", badRequest.Error())

	wrapped := fmt.Errorf("place order: %w", badRequest)
	got, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "Invalid tier", got.Message)

	assert.True(t, FromResponse(401, nil).SessionExpired())
	assert.False(t, badRequest.SessionExpired())
	assert.False(t, transport.SessionExpired())
}
