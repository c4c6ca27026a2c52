package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/dharsanguruparan/propshield/internal/model"
)

// Provider is an OAuth2 identity provider.
type Provider struct {
	Name        string
	Config      oauth2.Config
	UserInfoURL string
	// EmailsURL is queried when the user info carries no email.
	EmailsURL string
}

// GitHubProvider returns the GitHub provider.
func GitHubProvider(clientID, clientSecret string) Provider {
	return Provider{
		Name: "github",
		Config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     github.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		UserInfoURL: "https://api.github.com/user",
		EmailsURL:   "https://api.github.com/user/emails",
	}
}

// Authorization is the first leg of a provider sign-in. The caller keeps
// Verifier until the provider redirects back with State.
type Authorization struct {
	URL      string `json:"url"`
	State    string `json:"state"`
	Verifier string `json:"-"`
}

// Providers lists the configured provider names in order.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AuthorizeURL starts a provider sign-in.
func (s *Service) AuthorizeURL(provider, redirectURL string) (*Authorization, error) {
	p, ok := s.providers[strings.ToLower(provider)]
	if !ok {
		return nil, ErrUnknownProvider
	}
	conf := p.Config
	conf.RedirectURL = redirectURL
	state := s.state.Issue(p.Name, stateTTL)
	verifier := oauth2.GenerateVerifier()
	return &Authorization{
		URL:      conf.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)),
		State:    state,
		Verifier: verifier,
	}, nil
}

// ProviderFromState returns the provider a state was issued for.
func (s *Service) ProviderFromState(state string) (string, error) {
	name, err := s.state.Open(state)
	if err != nil {
		return "", ErrInvalidState
	}
	return name, nil
}

type providerUser struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
	Picture   string `json:"picture"`
}

type providerEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// ExchangeProvider finishes a provider sign-in: it checks state, redeems
// code with the PKCE verifier and links the provider identity to a
// profile by email.
func (s *Service) ExchangeProvider(ctx context.Context, provider, code, state, verifier, redirectURL string) (*Session, error) {
	p, ok := s.providers[strings.ToLower(provider)]
	if !ok {
		return nil, ErrUnknownProvider
	}
	name, err := s.state.Open(state)
	if err != nil || name != p.Name {
		return nil, ErrInvalidState
	}

	conf := p.Config
	conf.RedirectURL = redirectURL
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	tok, err := conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		s.log.Error("provider exchange failed", zap.String("provider", p.Name), zap.Error(err))
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	client := conf.Client(ctx, tok)

	var info providerUser
	if err := getJSON(ctx, client, p.UserInfoURL, &info); err != nil {
		return nil, fmt.Errorf("fetch user info: %w", err)
	}
	if info.Email == "" && p.EmailsURL != "" {
		var emails []providerEmail
		if err := getJSON(ctx, client, p.EmailsURL, &emails); err != nil {
			return nil, fmt.Errorf("fetch user emails: %w", err)
		}
		info.Email = primaryEmail(emails)
	}
	email, err := normalizeEmail(info.Email)
	if err != nil {
		return nil, fmt.Errorf("provider %s returned no usable email: %w", p.Name, err)
	}

	fullName := info.Name
	if fullName == "" {
		fullName = info.Login
	}
	avatar := info.AvatarURL
	if avatar == "" {
		avatar = info.Picture
	}
	profile, err := s.profiles.UpsertProviderProfile(ctx, &model.Profile{
		ID:        uuid.New(),
		Email:     email,
		FullName:  fullName,
		AvatarURL: avatar,
		Provider:  p.Name,
	})
	if err != nil {
		s.log.Error("upsert provider profile failed", zap.String("provider", p.Name), zap.Error(err))
		return nil, err
	}
	s.record(ctx, profile.ID, model.ActionSignIn)
	return s.issue(profile)
}

func primaryEmail(emails []providerEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email
		}
	}
	return ""
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
