// Package identity is the Identity Service client. It wraps an identity Backend and owns the
// process wide session handle: the currently authenticated identity and the stream of its
// transitions.
package identity

import (
	"context"
	"sync"
	"time"

	log "igstore/cloudlog"
	"igstore/collections"
	"igstore/gaterr"
)

// ProfileFields are the identity attributes a caller may change. Nil fields are left untouched.
type ProfileFields struct {
	DisplayName *string
	PhotoURL    *string
	Email       *string
}

// Backend is the remote identity service contract.
type Backend interface {
	// CreateAccount fails with DuplicateIdentity or WeakCredential.
	CreateAccount(ctx context.Context, email, password string) (*collections.UserIdentity, error)
	// Authenticate fails with InvalidCredential.
	Authenticate(ctx context.Context, email, password string) (*collections.UserIdentity, error)
	DeleteAccount(ctx context.Context, id *collections.UserIdentity) error
	SendReset(ctx context.Context, email string) error
	UpdateProfileFields(ctx context.Context, id *collections.UserIdentity, fields ProfileFields) (*collections.UserIdentity, error)
	Close() error
}

// Client is constructed once per process and shared by every component.
type Client struct {
	backend Backend
	timeout time.Duration

	mu      sync.RWMutex
	current *collections.UserIdentity
	subs    map[uint64]*subscription
	nextSub uint64
	closed  bool
}

// NewClient returns a client with no authenticated identity. Every backend call is bounded
// by timeout.
func NewClient(backend Backend, timeout time.Duration) *Client {
	return &Client{
		backend: backend,
		timeout: timeout,
		subs:    map[uint64]*subscription{},
	}
}

// Current gives a copy of the authenticated identity, nil when signed out.
func (c *Client) Current() *collections.UserIdentity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyIdentity(c.current)
}

// Create registers a new account and makes it the current identity.
func (c *Client) Create(ctx context.Context, email, password string) (*collections.UserIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	id, err := c.backend.CreateAccount(ctx, email, password)
	if err != nil {
		log.Printf("identity.Create %s: %v", email, err)
		return nil, gaterr.Classify("identity.Create", err)
	}
	c.setCurrent(id)
	return copyIdentity(id), nil
}

// Authenticate signs in with email and password and makes the identity current.
func (c *Client) Authenticate(ctx context.Context, email, password string) (*collections.UserIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	id, err := c.backend.Authenticate(ctx, email, password)
	if err != nil {
		log.Printf("identity.Authenticate %s: %v", email, err)
		return nil, gaterr.Classify("identity.Authenticate", err)
	}
	c.setCurrent(id)
	return copyIdentity(id), nil
}

// SignOut clears the session. It always succeeds.
func (c *Client) SignOut() {
	c.setCurrent(nil)
}

// Delete removes the current identity from the backend and signs out.
func (c *Client) Delete(ctx context.Context) error {
	id := c.Current()
	if id == nil {
		return gaterr.E(gaterr.NotAuthenticated, "identity.Delete", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.backend.DeleteAccount(ctx, id); err != nil {
		log.Printf("identity.Delete %s: %v", id.ID, err)
		return gaterr.Classify("identity.Delete", err)
	}
	c.setCurrent(nil)
	return nil
}

// SendPasswordReset asks the backend to e-mail a reset link. Unknown addresses and rate limits
// come back as typed errors.
func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.backend.SendReset(ctx, email); err != nil {
		log.Printf("identity.SendPasswordReset %s: %v", email, err)
		return gaterr.Classify("identity.SendPasswordReset", err)
	}
	return nil
}

// UpdateProfileFields changes display name, photo or e-mail of the current identity. The
// session handle is refreshed but no transition is published since the identity is unchanged.
func (c *Client) UpdateProfileFields(ctx context.Context, fields ProfileFields) (*collections.UserIdentity, error) {
	id := c.Current()
	if id == nil {
		return nil, gaterr.E(gaterr.NotAuthenticated, "identity.UpdateProfileFields", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	updated, err := c.backend.UpdateProfileFields(ctx, id, fields)
	if err != nil {
		log.Printf("identity.UpdateProfileFields %s: %v", id.ID, err)
		return nil, gaterr.Classify("identity.UpdateProfileFields", err)
	}
	if updated.IDToken == "" {
		updated.IDToken = id.IDToken
	}

	c.mu.Lock()
	if c.current != nil && c.current.ID == updated.ID {
		c.current = copyIdentity(updated)
	}
	c.mu.Unlock()
	return copyIdentity(updated), nil
}

// Subscribe registers fn for every transition of the authenticated identity, including the
// transition to nil on sign-out. Calls to fn are sequential and in transition order. The
// returned function cancels the subscription.
func (c *Client) Subscribe(fn func(*collections.UserIdentity)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := newSubscription(fn)
	if c.closed {
		s.stop()
		return func() {}
	}
	c.nextSub++
	key := c.nextSub
	c.subs[key] = s
	go s.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, key)
			c.mu.Unlock()
			s.stop()
		})
	}
}

// Close cancels every subscription and releases the backend.
func (c *Client) Close() error {
	c.mu.Lock()
	subs := c.subs
	c.subs = map[uint64]*subscription{}
	c.closed = true
	c.mu.Unlock()
	for _, s := range subs {
		s.stop()
	}
	return c.backend.Close()
}

// setCurrent swaps the session handle and publishes the transition when the identity changed.
func (c *Client) setCurrent(id *collections.UserIdentity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.current
	c.current = copyIdentity(id)
	if sameIdentity(prev, id) {
		return
	}
	for _, s := range c.subs {
		s.push(copyIdentity(id))
	}
}

func sameIdentity(a, b *collections.UserIdentity) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID
}

func copyIdentity(id *collections.UserIdentity) *collections.UserIdentity {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}

// subscription delivers queued transitions to fn from its own goroutine so that publishing
// never blocks on a slow subscriber.
type subscription struct {
	fn      func(*collections.UserIdentity)
	mu      sync.Mutex
	pending []*collections.UserIdentity
	wake    chan struct{}
	done    chan struct{}
	stopped sync.Once
}

func newSubscription(fn func(*collections.UserIdentity)) *subscription {
	return &subscription{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (s *subscription) push(id *collections.UserIdentity) {
	s.mu.Lock()
	s.pending = append(s.pending, id)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) stop() {
	s.stopped.Do(func() { close(s.done) })
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if len(s.pending) == 0 {
				s.mu.Unlock()
				break
			}
			next := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			s.fn(next)
		}
	}
}
