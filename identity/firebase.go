package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "igstore/cloudlog"
	"igstore/collections"
	"igstore/gaterr"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/auth"
	"google.golang.org/api/googleapi"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

const passwordResetRequest = "PASSWORD_RESET"

// Firebase is the identity Backend on Firebase Authentication. Password flows go through the
// Identity Toolkit REST API with the project's web API key; account administration goes through
// the admin SDK.
type Firebase struct {
	admin   *auth.Client
	toolkit *identitytoolkit.Service
}

// NewFirebase connects both halves of the backend. apiKey is the project's web API key.
func NewFirebase(ctx context.Context, app *firebase.App, apiKey string) (*Firebase, error) {
	admin, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initiate Firebase Auth failed: %w", err)
	}
	toolkit, err := identitytoolkit.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("initiate Identity Toolkit failed: %w", err)
	}
	return &Firebase{admin: admin, toolkit: toolkit}, nil
}

func (f *Firebase) CreateAccount(ctx context.Context, email, password string) (*collections.UserIdentity, error) {
	resp, err := f.toolkit.Relyingparty.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:    email,
		Password: password,
	}).Context(ctx).Do()
	if err != nil {
		return nil, toolkitError("identity.CreateAccount", err)
	}
	id, err := f.lookup(ctx, resp.LocalId)
	if err != nil {
		return nil, err
	}
	id.IDToken = resp.IdToken
	return id, nil
}

func (f *Firebase) Authenticate(ctx context.Context, email, password string) (*collections.UserIdentity, error) {
	resp, err := f.toolkit.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, toolkitError("identity.Authenticate", err)
	}
	token, err := f.admin.VerifyIDToken(ctx, resp.IdToken)
	if err != nil {
		log.Printf("rejecting ID token for %s: %v", email, err)
		return nil, gaterr.E(gaterr.InvalidCredential, "identity.Authenticate", err)
	}
	id, err := f.lookup(ctx, token.UID)
	if err != nil {
		return nil, err
	}
	id.IDToken = resp.IdToken
	return id, nil
}

func (f *Firebase) DeleteAccount(ctx context.Context, id *collections.UserIdentity) error {
	err := f.admin.DeleteUser(ctx, id.ID)
	if auth.IsUserNotFound(err) {
		return gaterr.E(gaterr.NotFound, "identity.DeleteAccount", err)
	}
	return err
}

func (f *Firebase) SendReset(ctx context.Context, email string) error {
	_, err := f.toolkit.Relyingparty.GetOobConfirmationCode(&identitytoolkit.Relyingparty{
		RequestType: passwordResetRequest,
		Email:       email,
	}).Context(ctx).Do()
	if err != nil {
		return toolkitError("identity.SendReset", err)
	}
	return nil
}

func (f *Firebase) UpdateProfileFields(ctx context.Context, id *collections.UserIdentity, fields ProfileFields) (*collections.UserIdentity, error) {
	update := &auth.UserToUpdate{}
	if fields.DisplayName != nil {
		update = update.DisplayName(*fields.DisplayName)
	}
	if fields.PhotoURL != nil {
		update = update.PhotoURL(*fields.PhotoURL)
	}
	if fields.Email != nil {
		update = update.Email(*fields.Email)
	}
	record, err := f.admin.UpdateUser(ctx, id.ID, update)
	switch {
	case auth.IsEmailAlreadyExists(err):
		return nil, gaterr.E(gaterr.DuplicateEmail, "identity.UpdateProfileFields", err)
	case auth.IsUserNotFound(err):
		return nil, gaterr.E(gaterr.NotFound, "identity.UpdateProfileFields", err)
	case err != nil:
		return nil, err
	}
	return fromRecord(record), nil
}

// Close is a no-op; the Firebase App owns the admin client and the toolkit service holds no
// connection.
func (f *Firebase) Close() error {
	return nil
}

func (f *Firebase) lookup(ctx context.Context, uid string) (*collections.UserIdentity, error) {
	record, err := f.admin.GetUser(ctx, uid)
	if err != nil {
		log.Printf("GetUser %s failed: %v", uid, err)
		if auth.IsUserNotFound(err) {
			return nil, gaterr.E(gaterr.NotFound, "identity.lookup", err)
		}
		return nil, err
	}
	return fromRecord(record), nil
}

func fromRecord(record *auth.UserRecord) *collections.UserIdentity {
	if record == nil || record.UserInfo == nil {
		return &collections.UserIdentity{}
	}
	return &collections.UserIdentity{
		ID:          record.UID,
		Email:       record.Email,
		DisplayName: record.DisplayName,
		PhotoURL:    record.PhotoURL,
		PhoneNumber: record.PhoneNumber,
	}
}

// toolkitError maps Identity Toolkit error messages, e.g. "WEAK_PASSWORD : Password should be at
// least 6 characters", to gateway kinds.
func toolkitError(op string, err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return gaterr.Classify(op, err)
	}
	reason := apiErr.Message
	if i := strings.IndexAny(reason, " :"); i > 0 {
		reason = reason[:i]
	}
	switch reason {
	case "EMAIL_EXISTS":
		return gaterr.E(gaterr.DuplicateIdentity, op, err)
	case "WEAK_PASSWORD":
		return gaterr.E(gaterr.WeakCredential, op, err)
	case "INVALID_PASSWORD", "EMAIL_NOT_FOUND", "USER_DISABLED", "INVALID_EMAIL", "INVALID_LOGIN_CREDENTIALS":
		if op == "identity.SendReset" && reason == "EMAIL_NOT_FOUND" {
			return gaterr.E(gaterr.NotFound, op, err)
		}
		return gaterr.E(gaterr.InvalidCredential, op, err)
	case "TOO_MANY_ATTEMPTS_TRY_LATER", "RESET_PASSWORD_EXCEED_LIMIT":
		return gaterr.E(gaterr.BackendUnavailable, op, err)
	}
	return gaterr.Classify(op, err)
}
