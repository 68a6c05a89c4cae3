// Package session is the Session Orchestrator. It composes the identity client and the profile
// store so that every authenticated identity has a profile document with the same id.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "igstore/cloudlog"
	"igstore/collections"
	"igstore/fieldkeys"
	"igstore/gaterr"
	"igstore/identity"
	"igstore/profile"
	"igstore/remotejob"
	"igstore/validation"
)

// State is the session phase.
type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
	Inconsistent
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Inconsistent:
		return "inconsistent"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for candidate := Anonymous; candidate <= Inconsistent; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// Status is a snapshot of the session.
type Status struct {
	State    State                     `json:"state"`
	Identity *collections.UserIdentity `json:"identity,omitempty"`
}

// SignUpForm is the sign-up page form.
type SignUpForm struct {
	Username        string `json:"username" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"eqfield=Password"`
	Amount          string `json:"amount" validate:"omitempty,numeric"`
}

// SignInForm is the sign-in page form.
type SignInForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type resetForm struct {
	Email string `json:"email" validate:"required,email"`
}

// Publisher receives domain events.
type Publisher interface {
	Publish(ctx context.Context, e remotejob.Event)
}

// Orchestrator is constructed once per process. Operations are serialized.
type Orchestrator struct {
	ident    *identity.Client
	profiles *profile.Store
	events   Publisher
	now      func() time.Time

	ops sync.Mutex

	mu          sync.Mutex
	state       State
	listeners   []func(Status)
	unsubscribe func()
}

// New wires an Orchestrator. events may be nil.
func New(ident *identity.Client, profiles *profile.Store, events Publisher) *Orchestrator {
	return &Orchestrator{
		ident:    ident,
		profiles: profiles,
		events:   events,
		now:      time.Now,
	}
}

// Start takes the orchestrator's single identity subscription. Any identity that appears
// without a profile document is signed out. Calling Start twice has no effect.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.unsubscribe != nil {
		return
	}
	o.unsubscribe = o.ident.Subscribe(o.onIdentity)
}

// Shutdown cancels the subscription.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	unsubscribe := o.unsubscribe
	o.unsubscribe = nil
	o.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// OnChange registers fn for every state change.
func (o *Orchestrator) OnChange(fn func(Status)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, fn)
}

// State gives the current phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Identity gives the authenticated identity, nil when anonymous.
func (o *Orchestrator) Identity() *collections.UserIdentity {
	return o.ident.Current()
}

// Status gives the state together with the identity.
func (o *Orchestrator) Status() Status {
	return Status{State: o.State(), Identity: o.ident.Current()}
}

// SignUp validates form, creates the identity and then its profile document. If the profile
// cannot be written the new identity is deleted again.
func (o *Orchestrator) SignUp(ctx context.Context, form SignUpForm) (*collections.UserProfile, error) {
	const op = "session.SignUp"
	if errs := validation.Validate(form); errs != nil {
		return nil, gaterr.Invalid(op, errs)
	}
	o.ops.Lock()
	defer o.ops.Unlock()
	prev := o.State()
	o.setState(Authenticating)

	taken, err := o.profiles.EmailExists(ctx, form.Email)
	if err != nil {
		o.setState(prev)
		return nil, err
	}
	if taken {
		o.setState(prev)
		return nil, profile.DuplicateEmail(op)
	}

	id, err := o.ident.Create(ctx, form.Email, form.Password)
	if err != nil {
		o.setState(prev)
		if errors.Is(err, gaterr.ErrDuplicateIdentity) {
			return nil, profile.DuplicateEmail(op)
		}
		return nil, err
	}

	now := o.now()
	p := &collections.UserProfile{
		ID:           id.ID,
		Name:         form.Username,
		Email:        form.Email,
		PhoneNumber:  id.PhoneNumber,
		PhotoURL:     id.PhotoURL,
		SignUpMethod: fieldkeys.SignUpEmailAndPassword,
		Deleted:      false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := o.profiles.Create(ctx, p); err != nil {
		log.Printf("%s: profile for %s not created, removing identity: %v", op, id.ID, err)
		// ctx may be the reason Create failed; the identity client bounds this call itself.
		if derr := o.ident.Delete(context.Background()); derr != nil {
			log.Printf("%s: orphaned identity %s could not be removed: %v", op, id.ID, derr)
			o.ident.SignOut()
		}
		o.setState(Anonymous)
		return nil, err
	}
	o.setState(Authenticated)
	return p, nil
}

// SignIn authenticates and then requires the identity's profile document. An identity without
// one is signed out again and a Consistency error returned.
func (o *Orchestrator) SignIn(ctx context.Context, form SignInForm) (*collections.UserProfile, error) {
	const op = "session.SignIn"
	if errs := validation.Validate(form); errs != nil {
		return nil, gaterr.Invalid(op, errs)
	}
	o.ops.Lock()
	defer o.ops.Unlock()
	prev := o.State()
	o.setState(Authenticating)

	id, err := o.ident.Authenticate(ctx, form.Email, form.Password)
	if err != nil {
		if o.ident.Current() == nil {
			prev = Anonymous
		}
		o.setState(prev)
		return nil, err
	}

	p, err := o.profiles.GetByID(ctx, id.ID)
	if err != nil {
		if errors.Is(err, gaterr.ErrNotFound) {
			log.Printf("%s: identity %s has no profile, signing out", op, id.ID)
			o.setState(Inconsistent)
			err = gaterr.E(gaterr.Consistency, op, err)
		}
		o.ident.SignOut()
		o.setState(Anonymous)
		return nil, err
	}
	o.setState(Authenticated)
	return p, nil
}

// SignOut ends the session. It always succeeds.
func (o *Orchestrator) SignOut() {
	o.ops.Lock()
	defer o.ops.Unlock()
	o.ident.SignOut()
	o.setState(Anonymous)
}

// DeleteAccount removes the profile document and then the identity of the current session.
func (o *Orchestrator) DeleteAccount(ctx context.Context) error {
	const op = "session.DeleteAccount"
	o.ops.Lock()
	defer o.ops.Unlock()
	id := o.ident.Current()
	if id == nil {
		return gaterr.E(gaterr.NotAuthenticated, op, nil)
	}
	if err := o.profiles.Delete(ctx, id.ID); err != nil {
		return err
	}
	if err := o.ident.Delete(ctx); err != nil {
		log.Printf("%s: profile of %s removed but identity remains: %v", op, id.ID, err)
		o.setState(Inconsistent)
		o.ident.SignOut()
		o.setState(Anonymous)
		return err
	}
	o.setState(Anonymous)
	if o.events != nil {
		o.events.Publish(ctx, remotejob.Event{Type: remotejob.AccountDeleted, UserID: id.ID, At: o.now()})
	}
	return nil
}

// ResetPassword sends a reset e-mail to email, or to the current identity's address when email
// is empty.
func (o *Orchestrator) ResetPassword(ctx context.Context, email string) error {
	const op = "session.ResetPassword"
	if email == "" {
		if id := o.ident.Current(); id != nil {
			email = id.Email
		}
	}
	if errs := validation.Validate(resetForm{Email: email}); errs != nil {
		return gaterr.Invalid(op, errs)
	}
	return o.ident.SendPasswordReset(ctx, email)
}

// onIdentity enforces the profile invariant for transitions the orchestrator did not
// initiate itself.
func (o *Orchestrator) onIdentity(id *collections.UserIdentity) {
	o.ops.Lock()
	defer o.ops.Unlock()
	current := o.ident.Current()
	if current == nil {
		o.setState(Anonymous)
		return
	}
	if id == nil || id.ID != current.ID || o.State() == Authenticated {
		return
	}

	ctx := context.Background()
	_, err := o.profiles.GetByID(ctx, current.ID)
	switch {
	case err == nil:
		o.setState(Authenticated)
	case errors.Is(err, gaterr.ErrNotFound):
		log.Printf("identity %s has no profile, signing out", current.ID)
		o.setState(Inconsistent)
		o.ident.SignOut()
		o.setState(Anonymous)
	default:
		log.Printf("profile check for %s failed: %v", current.ID, err)
	}
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	if o.state == s {
		o.mu.Unlock()
		return
	}
	o.state = s
	listeners := append([]func(Status){}, o.listeners...)
	o.mu.Unlock()

	status := Status{State: s, Identity: o.ident.Current()}
	for _, fn := range listeners {
		fn(status)
	}
}
