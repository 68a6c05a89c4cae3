// Package apicodes lists the status strings the HTTP API and the event stream return.
package apicodes

import (
	"net/http"

	"igstore/gaterr"
)

const (
	// StatusOK is given when the operation succeeded.
	StatusOK = "OK"

	// StatusValidationFailed is given when a form fails validation; no backend was called.
	StatusValidationFailed = "VALIDATION_FAILED"

	// StatusDuplicateEmail is given when the e-mail belongs to another account.
	StatusDuplicateEmail = "DUPLICATE_EMAIL"

	// StatusWeakPassword is given when the identity backend rejects the password.
	StatusWeakPassword = "WEAK_PASSWORD"

	// StatusInvalidCredential is given when the e-mail and password do not match an account.
	StatusInvalidCredential = "INVALID_CREDENTIAL"

	// StatusNotAuthenticated is given when the operation needs a signed in user.
	StatusNotAuthenticated = "NOT_AUTHENTICATED"

	// StatusInconsistentAccount is given when an identity has no profile document.
	StatusInconsistentAccount = "INCONSISTENT_ACCOUNT"

	// StatusNotFound is given when the requested document does not exist.
	StatusNotFound = "NOT_FOUND"

	// StatusEndpointUnauthorized is given when the user is not authorized to perform an action.
	StatusEndpointUnauthorized = "ENDPOINT_UNAUTHORIZED"

	// StatusUploadFailed is given when a blob upload did not complete.
	StatusUploadFailed = "UPLOAD_FAILED"

	// StatusBackendUnavailable is given when a backend timed out or could not be reached.
	StatusBackendUnavailable = "BACKEND_UNAVAILABLE"

	// StatusEndpointNotValid is given when the request uses an unsupported endpoint.
	StatusEndpointNotValid = "ENDPOINT_NOT_VALID"

	// StatusInternal is given for every other failure.
	StatusInternal = "INTERNAL_ERROR"
)

var kindStatus = map[gaterr.Kind]struct {
	code string
	http int
}{
	gaterr.Validation:         {StatusValidationFailed, http.StatusBadRequest},
	gaterr.DuplicateEmail:     {StatusDuplicateEmail, http.StatusConflict},
	gaterr.DuplicateIdentity:  {StatusDuplicateEmail, http.StatusConflict},
	gaterr.WeakCredential:     {StatusWeakPassword, http.StatusBadRequest},
	gaterr.InvalidCredential:  {StatusInvalidCredential, http.StatusUnauthorized},
	gaterr.NotAuthenticated:   {StatusNotAuthenticated, http.StatusUnauthorized},
	gaterr.Consistency:        {StatusInconsistentAccount, http.StatusConflict},
	gaterr.NotFound:           {StatusNotFound, http.StatusNotFound},
	gaterr.PermissionDenied:   {StatusEndpointUnauthorized, http.StatusForbidden},
	gaterr.Upload:             {StatusUploadFailed, http.StatusBadGateway},
	gaterr.BackendUnavailable: {StatusBackendUnavailable, http.StatusServiceUnavailable},
}

// ForError gives the status string and HTTP status code for err.
func ForError(err error) (string, int) {
	if s, ok := kindStatus[gaterr.KindOf(err)]; ok {
		return s.code, s.http
	}
	return StatusInternal, http.StatusInternalServerError
}
