// Package gaterr defines the error type returned by every gateway component. An Error carries
// a Kind that callers switch on instead of inspecting backend specific errors.
package gaterr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies a gateway failure.
type Kind uint8

const (
	Unknown Kind = iota
	Validation
	DuplicateEmail
	DuplicateIdentity
	WeakCredential
	InvalidCredential
	NotAuthenticated
	Consistency
	NotFound
	PermissionDenied
	Upload
	BackendUnavailable
)

var kindNames = map[Kind]string{
	Unknown:            "unknown",
	Validation:         "validation",
	DuplicateEmail:     "duplicate email",
	DuplicateIdentity:  "duplicate identity",
	WeakCredential:     "weak credential",
	InvalidCredential:  "invalid credential",
	NotAuthenticated:   "not authenticated",
	Consistency:        "consistency",
	NotFound:           "not found",
	PermissionDenied:   "permission denied",
	Upload:             "upload",
	BackendUnavailable: "backend unavailable",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrValidation         = &Error{Kind: Validation}
	ErrDuplicateEmail     = &Error{Kind: DuplicateEmail}
	ErrDuplicateIdentity  = &Error{Kind: DuplicateIdentity}
	ErrWeakCredential     = &Error{Kind: WeakCredential}
	ErrInvalidCredential  = &Error{Kind: InvalidCredential}
	ErrNotAuthenticated   = &Error{Kind: NotAuthenticated}
	ErrConsistency        = &Error{Kind: Consistency}
	ErrNotFound           = &Error{Kind: NotFound}
	ErrPermissionDenied   = &Error{Kind: PermissionDenied}
	ErrUpload             = &Error{Kind: Upload}
	ErrBackendUnavailable = &Error{Kind: BackendUnavailable}
)

// Error is the tagged failure result of a gateway operation.
type Error struct {
	Kind Kind
	// Op names the failing operation, e.g. "profile.Edit".
	Op string
	// Fields holds per field messages for Validation errors.
	Fields map[string][]string
	Err    error
}

// E builds an *Error.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Invalid builds a Validation error from field messages.
func Invalid(op string, fields map[string][]string) *Error {
	return &Error{Kind: Validation, Op: op, Fields: fields}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if field, msg := e.FirstField(); field != "" {
		fmt.Fprintf(&b, ": %s", msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a bare sentinel of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Fields == nil && t.Kind == e.Kind
}

// FirstField gives the alphabetically first invalid field and its first message, which is what
// the sign-in and sign-up forms surface to the user.
func (e *Error) FirstField() (string, string) {
	if len(e.Fields) == 0 {
		return "", ""
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if msgs := e.Fields[name]; len(msgs) > 0 {
			return name, msgs[0]
		}
	}
	return "", ""
}

// KindOf returns the Kind of the first *Error in err's chain, Unknown otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Classify converts a backend error into an *Error. Errors that already are *Error keep their
// kind; grpc statuses, googleapi errors and context errors are mapped; everything else is Unknown.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return err
	}
	return E(classify(err), op, err)
}

func classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return BackendUnavailable
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusNotFound:
			return NotFound
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return PermissionDenied
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
			return BackendUnavailable
		}
		return Unknown
	}
	switch status.Code(err) {
	case codes.NotFound:
		return NotFound
	case codes.PermissionDenied, codes.Unauthenticated:
		return PermissionDenied
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return BackendUnavailable
	}
	return Unknown
}
