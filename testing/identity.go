package testing

import (
	"context"
	"sync"

	"igstore/collections"
	"igstore/gaterr"
	"igstore/identity"

	"github.com/google/uuid"
)

// MinPasswordLength mirrors the identity backend's password policy.
const MinPasswordLength = 6

type account struct {
	password string
	identity collections.UserIdentity
}

// FakeIdentity is an identity.Backend holding accounts in memory.
type FakeIdentity struct {
	mu       sync.Mutex
	accounts map[string]*account // keyed by email
	errs     map[string]error
	resets   []string
	closed   bool
}

// NewFakeIdentity returns a backend with no accounts.
func NewFakeIdentity() *FakeIdentity {
	return &FakeIdentity{
		accounts: map[string]*account{},
		errs:     map[string]error{},
	}
}

// SetError makes every subsequent call of op ("CreateAccount", "Authenticate", "DeleteAccount",
// "SendReset", "UpdateProfileFields") fail with err. A nil err clears the failure.
func (f *FakeIdentity) SetError(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

// Lookup gives the account registered under email.
func (f *FakeIdentity) Lookup(email string) (*collections.UserIdentity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[email]
	if !ok {
		return nil, false
	}
	id := a.identity
	return &id, true
}

// Count gives the number of registered accounts.
func (f *FakeIdentity) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accounts)
}

// Resets lists the addresses password resets were sent to.
func (f *FakeIdentity) Resets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.resets...)
}

func (f *FakeIdentity) CreateAccount(ctx context.Context, email, password string) (*collections.UserIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(ctx, "CreateAccount"); err != nil {
		return nil, err
	}
	if _, ok := f.accounts[email]; ok {
		return nil, gaterr.E(gaterr.DuplicateIdentity, "fake.CreateAccount", nil)
	}
	if len(password) < MinPasswordLength {
		return nil, gaterr.E(gaterr.WeakCredential, "fake.CreateAccount", nil)
	}
	a := &account{
		password: password,
		identity: collections.UserIdentity{ID: uuid.New().String(), Email: email},
	}
	f.accounts[email] = a
	return f.issue(a), nil
}

func (f *FakeIdentity) Authenticate(ctx context.Context, email, password string) (*collections.UserIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(ctx, "Authenticate"); err != nil {
		return nil, err
	}
	a, ok := f.accounts[email]
	if !ok || a.password != password {
		return nil, gaterr.E(gaterr.InvalidCredential, "fake.Authenticate", nil)
	}
	return f.issue(a), nil
}

func (f *FakeIdentity) DeleteAccount(ctx context.Context, id *collections.UserIdentity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(ctx, "DeleteAccount"); err != nil {
		return err
	}
	for email, a := range f.accounts {
		if a.identity.ID == id.ID {
			delete(f.accounts, email)
			return nil
		}
	}
	return gaterr.E(gaterr.NotFound, "fake.DeleteAccount", nil)
}

func (f *FakeIdentity) SendReset(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(ctx, "SendReset"); err != nil {
		return err
	}
	if _, ok := f.accounts[email]; !ok {
		return gaterr.E(gaterr.NotFound, "fake.SendReset", nil)
	}
	f.resets = append(f.resets, email)
	return nil
}

func (f *FakeIdentity) UpdateProfileFields(ctx context.Context, id *collections.UserIdentity, fields identity.ProfileFields) (*collections.UserIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(ctx, "UpdateProfileFields"); err != nil {
		return nil, err
	}
	var (
		email string
		a     *account
	)
	for e, candidate := range f.accounts {
		if candidate.identity.ID == id.ID {
			email, a = e, candidate
			break
		}
	}
	if a == nil {
		return nil, gaterr.E(gaterr.NotFound, "fake.UpdateProfileFields", nil)
	}
	if fields.Email != nil && *fields.Email != email {
		if _, taken := f.accounts[*fields.Email]; taken {
			return nil, gaterr.E(gaterr.DuplicateEmail, "fake.UpdateProfileFields", nil)
		}
		delete(f.accounts, email)
		a.identity.Email = *fields.Email
		f.accounts[*fields.Email] = a
	}
	if fields.DisplayName != nil {
		a.identity.DisplayName = *fields.DisplayName
	}
	if fields.PhotoURL != nil {
		a.identity.PhotoURL = *fields.PhotoURL
	}
	updated := a.identity
	return &updated, nil
}

func (f *FakeIdentity) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FakeIdentity) issue(a *account) *collections.UserIdentity {
	id := a.identity
	id.IDToken = "token-" + uuid.New().String()
	return &id
}

func (f *FakeIdentity) fail(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.errs[op]
}
