package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", Transient(errors.New("x"), 503), true},
		{"wrapped explicit", eris.Wrap(Transient(errors.New("x"), 429), "trigger: webhook"), true},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"canceled", context.Canceled, false},
		{"reset text", errors.New("read tcp: connection reset by peer"), true},
		{"breaker open", eris.Wrap(ErrBreakerOpen, "webhook"), false},
		{"http 400", HTTPError(400, "bad"), false},
		{"http 503", HTTPError(503, "down"), true},
		{"plain", errors.New("invalid workflow"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}

func TestStatusError_TruncatesBody(t *testing.T) {
	err := &StatusError{StatusCode: 500, Body: strings.Repeat("x", 300)}
	assert.Len(t, err.Error(), len("http status 500: ")+203)
	assert.Equal(t, "http status 404", (&StatusError{StatusCode: 404}).Error())
}
