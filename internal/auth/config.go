package auth

import "github.com/dharsanguruparan/propshield/internal/config"

// OptionsFromConfig maps cfg onto Options. GitHub sign-in is enabled when a
// client id is configured.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		JWTSecret:   cfg.JWTSecret,
		StateSecret: cfg.StateSecret,
		SessionTTL:  cfg.SessionTTL,
	}
	if cfg.GitHubClientID != "" {
		opts.Providers = append(opts.Providers, GitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret))
	}
	return opts
}
