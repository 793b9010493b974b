package resilience

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
		{name: "transient wrapper", err: NewTransientError(errors.New("throttled"), 429), want: true},
		{
			name: "wrapped transient",
			err:  fmt.Errorf("fetch listing: %w", NewTransientError(errors.New("bad gateway"), 502)),
			want: true,
		},
		{name: "conn reset", err: syscall.ECONNRESET, want: true},
		{name: "conn refused", err: syscall.ECONNREFUSED, want: true},
		{name: "message fragment", err: errors.New("read tcp 10.0.0.1:443: i/o timeout"), want: true},
		{name: "dns fragment", err: errors.New("dial tcp: lookup maps.example: no such host"), want: true},
		{name: "invalid input", err: ErrInvalidInput, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestTransientErrorUnwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("upstream down")
	te := NewTransientError(inner, 503)
	assert.Equal(t, "upstream down", te.Error())
	assert.ErrorIs(t, te, inner)
}

func TestIsTransientHTTPStatus(t *testing.T) {
	t.Parallel()

	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "code %d", code)
	}
	for _, code := range []int{200, 301, 400, 403, 404, 418} {
		assert.False(t, IsTransientHTTPStatus(code), "code %d", code)
	}
}
