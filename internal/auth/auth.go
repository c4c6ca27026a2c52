// Package auth is the backend identity service: password accounts hashed
// with bcrypt, HS256 access tokens and provider sign-in over OAuth2 with
// PKCE.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dharsanguruparan/propshield/internal/model"
	"github.com/dharsanguruparan/propshield/internal/repository"
	"github.com/dharsanguruparan/propshield/internal/signing"
)

var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid access token")
	ErrSessionExpired     = errors.New("session expired")
	ErrUnknownProvider    = errors.New("unknown sign-in provider")
	ErrInvalidState       = errors.New("invalid or expired sign-in state")
)

const (
	minPasswordLength = 8
	stateTTL          = 10 * time.Minute
	defaultSessionTTL = 24 * time.Hour
)

// Session is returned by every successful sign-in.
type Session struct {
	AccessToken string        `json:"accessToken"`
	ExpiresAt   time.Time     `json:"expiresAt"`
	User        model.Profile `json:"user"`
}

// Options configures a Service.
type Options struct {
	JWTSecret   []byte
	StateSecret []byte
	SessionTTL  time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	Providers  []Provider
	HTTPClient *http.Client
}

// Service implements sign-up, sign-in and token verification.
type Service struct {
	profiles   repository.Profiles
	activity   repository.Activity
	secret     []byte
	ttl        time.Duration
	cost       int
	state      *signing.Signer
	providers  map[string]Provider
	httpClient *http.Client
	log        *zap.Logger
	now        func() time.Time
}

// New builds a Service. activity may be nil.
func New(profiles repository.Profiles, activity repository.Activity, opts Options, log *zap.Logger) *Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	if opts.BcryptCost <= 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	providers := make(map[string]Provider, len(opts.Providers))
	for _, p := range opts.Providers {
		providers[strings.ToLower(p.Name)] = p
	}
	return &Service{
		profiles:   profiles,
		activity:   activity,
		secret:     opts.JWTSecret,
		ttl:        opts.SessionTTL,
		cost:       opts.BcryptCost,
		state:      signing.NewSigner(opts.StateSecret),
		providers:  providers,
		httpClient: opts.HTTPClient,
		log:        log,
		now:        time.Now,
	}
}

// SignUp creates a password account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password, fullName, phone string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	profile := &model.Profile{
		ID:           uuid.New(),
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		Phone:        strings.TrimSpace(phone),
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.profiles.CreateProfile(ctx, profile); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		s.log.Error("create profile failed", zap.String("email", email), zap.Error(err))
		return nil, err
	}
	s.record(ctx, profile.ID, model.ActionSignUp)
	return s.issue(profile)
}

// SignIn checks a password. Unknown emails and wrong passwords both
// return ErrInvalidCredentials.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	profile, err := s.profiles.GetProfileByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		s.log.Error("load profile failed", zap.Error(err))
		return nil, err
	}
	if profile.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	s.record(ctx, profile.ID, model.ActionSignIn)
	return s.issue(profile)
}

// SignOut records the sign-out. Tokens are stateless and simply expire.
func (s *Service) SignOut(ctx context.Context, userID uuid.UUID) {
	s.record(ctx, userID, model.ActionSignOut)
}

// Verify resolves an access token to its profile.
func (s *Service) Verify(ctx context.Context, token string) (*model.Profile, error) {
	userID, err := s.parseToken(token)
	if err != nil {
		return nil, err
	}
	profile, err := s.profiles.GetProfile(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *Service) record(ctx context.Context, userID uuid.UUID, action string) {
	if s.activity == nil {
		return
	}
	entry := &model.ActivityLog{
		ID:        uuid.New(),
		UserID:    userID,
		Action:    action,
		Details:   json.RawMessage(`{}`),
		CreatedAt: s.now().UTC(),
	}
	if err := s.activity.AppendActivity(ctx, entry); err != nil {
		s.log.Warn("append activity failed", zap.String("action", action), zap.Error(err))
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}
