// Package session is the client side of identity: it restores a stored
// session at startup, keeps the current user, persists tokens through a
// platform store and tells the route guard where to send the user.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/propshield/internal/auth"
	"github.com/dharsanguruparan/propshield/internal/model"
)

// ErrNotAuthenticated is returned when an operation needs a signed-in user.
var ErrNotAuthenticated = errors.New("not signed in")

const (
	sessionKey  = "session"
	verifierKey = "pkce:"
)

// State is the identity state machine.
type State int

const (
	StateInitializing State = iota
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Identity is the remote identity service.
type Identity interface {
	SignUp(ctx context.Context, email, password, fullName, phone string) (*auth.Session, error)
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	SignOut(ctx context.Context, userID uuid.UUID)
	Verify(ctx context.Context, token string) (*model.Profile, error)
	AuthorizeURL(provider, redirectURL string) (*auth.Authorization, error)
	ProviderFromState(state string) (string, error)
	ExchangeProvider(ctx context.Context, provider, code, state, verifier, redirectURL string) (*auth.Session, error)
}

// Observer is called after every state change.
type Observer func(state State, user *model.Profile)

// Provider holds the current session.
type Provider struct {
	identity    Identity
	store       Store
	redirectURL string
	log         *zap.Logger
	now         func() time.Time

	mu        sync.Mutex
	state     State
	session   *auth.Session
	observers map[int]Observer
	nextObs   int
	restore   sync.Once
}

// NewProvider starts in StateInitializing. redirectURL is the OAuth
// callback handed to providers.
func NewProvider(identity Identity, store Store, redirectURL string, log *zap.Logger) *Provider {
	return &Provider{
		identity:    identity,
		store:       store,
		redirectURL: redirectURL,
		log:         log,
		now:         time.Now,
		observers:   make(map[int]Observer),
	}
}

// Restore reads the stored session and leaves StateInitializing. Only the
// first call does anything.
func (p *Provider) Restore(ctx context.Context) {
	p.restore.Do(func() {
		sess := p.readStored(ctx)
		if sess == nil {
			p.transition(StateAnonymous, nil)
			return
		}
		user, err := p.identity.Verify(ctx, sess.AccessToken)
		switch {
		case err == nil:
			sess.User = *user
			p.transition(StateAuthenticated, sess)
		case errors.Is(err, auth.ErrSessionExpired), errors.Is(err, auth.ErrInvalidToken):
			p.forget(ctx)
			p.transition(StateAnonymous, nil)
		default:
			p.log.Warn("could not verify stored session", zap.Error(err))
			p.transition(StateAnonymous, nil)
		}
	})
}

func (p *Provider) readStored(ctx context.Context) *auth.Session {
	raw, err := p.store.Get(ctx, sessionKey)
	if err != nil {
		p.log.Warn("read stored session failed", zap.Error(err))
		return nil
	}
	if raw == "" {
		return nil
	}
	var sess auth.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil || sess.AccessToken == "" {
		p.log.Warn("discarding unreadable stored session", zap.Error(err))
		p.forget(ctx)
		return nil
	}
	return &sess
}

// State returns the current state.
func (p *Provider) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Loading is true until Restore has run.
func (p *Provider) Loading() bool {
	return p.State() == StateInitializing
}

// User returns the signed-in profile or nil.
func (p *Provider) User() *model.Profile {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil
	}
	u := p.session.User
	return &u
}

// Current returns the signed-in user, signing out locally when the token
// has expired.
func (p *Provider) Current(ctx context.Context) (*model.Profile, *auth.Session, error) {
	p.mu.Lock()
	sess := p.session
	p.mu.Unlock()
	if sess == nil {
		return nil, nil, ErrNotAuthenticated
	}
	if !p.now().Before(sess.ExpiresAt) {
		p.forget(ctx)
		p.transition(StateAnonymous, nil)
		return nil, nil, auth.ErrSessionExpired
	}
	u := sess.User
	cp := *sess
	return &u, &cp, nil
}

// SignIn signs in with a password.
func (p *Provider) SignIn(ctx context.Context, email, password string) error {
	sess, err := p.identity.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	return p.establish(ctx, sess)
}

// SignUp creates an account and signs it in.
func (p *Provider) SignUp(ctx context.Context, email, password, fullName, phone string) error {
	sess, err := p.identity.SignUp(ctx, email, password, fullName, phone)
	if err != nil {
		return err
	}
	return p.establish(ctx, sess)
}

// SignInWithProvider returns the URL the user must open. The PKCE verifier
// is kept in the store until CompleteProviderSignIn.
func (p *Provider) SignInWithProvider(ctx context.Context, provider string) (string, error) {
	authz, err := p.identity.AuthorizeURL(provider, p.redirectURL)
	if err != nil {
		return "", err
	}
	if err := p.store.Set(ctx, verifierKey+authz.State, authz.Verifier); err != nil {
		return "", err
	}
	return authz.URL, nil
}

// CompleteProviderSignIn redeems the code the provider redirected back with.
func (p *Provider) CompleteProviderSignIn(ctx context.Context, code, state string) error {
	provider, err := p.identity.ProviderFromState(state)
	if err != nil {
		return err
	}
	verifier, err := p.store.Get(ctx, verifierKey+state)
	if err != nil {
		return err
	}
	sess, err := p.identity.ExchangeProvider(ctx, provider, code, state, verifier, p.redirectURL)
	if err != nil {
		return err
	}
	if err := p.store.Remove(ctx, verifierKey+state); err != nil {
		p.log.Warn("remove pkce verifier failed", zap.Error(err))
	}
	return p.establish(ctx, sess)
}

// SignOut clears the session locally and remotely.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	sess := p.session
	p.mu.Unlock()
	if sess != nil {
		p.identity.SignOut(ctx, sess.User.ID)
	}
	err := p.store.Remove(ctx, sessionKey)
	p.transition(StateAnonymous, nil)
	return err
}

// Subscribe registers fn for state changes and returns a function that
// removes it.
func (p *Provider) Subscribe(fn Observer) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextObs
	p.nextObs++
	p.observers[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.observers, id)
	}
}

func (p *Provider) establish(ctx context.Context, sess *auth.Session) error {
	p.transition(StateAuthenticated, sess)
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := p.store.Set(ctx, sessionKey, string(raw)); err != nil {
		p.log.Warn("persist session failed", zap.Error(err))
	}
	return nil
}

func (p *Provider) forget(ctx context.Context) {
	if err := p.store.Remove(ctx, sessionKey); err != nil {
		p.log.Warn("remove stored session failed", zap.Error(err))
	}
}

func (p *Provider) transition(state State, sess *auth.Session) {
	p.mu.Lock()
	p.state = state
	p.session = sess
	observers := make([]Observer, 0, len(p.observers))
	for _, fn := range p.observers {
		observers = append(observers, fn)
	}
	p.mu.Unlock()

	var user *model.Profile
	if sess != nil {
		u := sess.User
		user = &u
	}
	for _, fn := range observers {
		fn(state, user)
	}
}
