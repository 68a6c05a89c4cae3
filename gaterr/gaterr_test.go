package gaterr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", E(DuplicateEmail, "session.SignUp", errors.New("taken")))

	assert.True(t, errors.Is(err, ErrDuplicateEmail))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, DuplicateEmail, KindOf(err))
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
}

func TestInvalidFirstField(t *testing.T) {
	err := Invalid("session.SignUp", map[string][]string{
		"password": {"Password is too short (minimum is 6 characters)"},
		"email":    {"Email is not a valid email"},
	})

	field, msg := err.FirstField()
	assert.Equal(t, "email", field)
	assert.Equal(t, "Email is not a valid email", msg)
	assert.Contains(t, err.Error(), "Email is not a valid email")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "grpc not found", err: status.Error(codes.NotFound, "missing"), want: NotFound},
		{name: "grpc permission", err: status.Error(codes.PermissionDenied, "nope"), want: PermissionDenied},
		{name: "grpc unavailable", err: status.Error(codes.Unavailable, "down"), want: BackendUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: BackendUnavailable},
		{name: "googleapi forbidden", err: &googleapi.Error{Code: http.StatusForbidden}, want: PermissionDenied},
		{name: "googleapi 503", err: &googleapi.Error{Code: http.StatusServiceUnavailable}, want: BackendUnavailable},
		{name: "plain", err: errors.New("boom"), want: Unknown},
		{name: "already typed", err: E(Consistency, "x", nil), want: Consistency},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(Classify("op", tc.err)))
		})
	}
	assert.NoError(t, Classify("op", nil))
}
