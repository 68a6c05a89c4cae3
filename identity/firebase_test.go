package identity

import (
	"errors"
	"net/http"
	"testing"

	"igstore/gaterr"

	"google.golang.org/api/googleapi"
)

func TestToolkitError(t *testing.T) {
	tests := []struct {
		op   string
		err  error
		want gaterr.Kind
	}{
		{"identity.CreateAccount", &googleapi.Error{Code: http.StatusBadRequest, Message: "EMAIL_EXISTS"}, gaterr.DuplicateIdentity},
		{"identity.CreateAccount", &googleapi.Error{Code: http.StatusBadRequest, Message: "WEAK_PASSWORD : Password should be at least 6 characters"}, gaterr.WeakCredential},
		{"identity.Authenticate", &googleapi.Error{Code: http.StatusBadRequest, Message: "INVALID_PASSWORD"}, gaterr.InvalidCredential},
		{"identity.Authenticate", &googleapi.Error{Code: http.StatusBadRequest, Message: "EMAIL_NOT_FOUND"}, gaterr.InvalidCredential},
		{"identity.SendReset", &googleapi.Error{Code: http.StatusBadRequest, Message: "EMAIL_NOT_FOUND"}, gaterr.NotFound},
		{"identity.SendReset", &googleapi.Error{Code: http.StatusBadRequest, Message: "RESET_PASSWORD_EXCEED_LIMIT"}, gaterr.BackendUnavailable},
		{"identity.Authenticate", &googleapi.Error{Code: http.StatusServiceUnavailable, Message: "backend error"}, gaterr.BackendUnavailable},
		{"identity.Authenticate", errors.New("dial tcp: connection refused"), gaterr.Unknown},
	}
	for _, tt := range tests {
		got := gaterr.KindOf(toolkitError(tt.op, tt.err))
		if got != tt.want {
			t.Errorf("toolkitError(%q, %v) kind = %v, want %v", tt.op, tt.err, got, tt.want)
		}
	}
}
