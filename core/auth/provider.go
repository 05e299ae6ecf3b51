package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Provider is a discovered OIDC identity provider the storefront can sign in
// through. The authorization code flow runs here; the resulting ID token is
// handed to the backend with SignInWithIDToken.
type Provider struct {
	Name     string
	config   oauth2.Config
	verifier *oidc.IDTokenVerifier
}

type ProviderConfig struct {
	Name        string
	Client      string
	Secret      string
	URL         string
	RedirectURL string
}

// MakeProviders runs OIDC discovery for every configured provider. The
// caller bounds discovery with ctx; a provider that fails discovery fails
// the whole set rather than leaving a half-configured sign-in menu.
func MakeProviders(ctx context.Context, cfgs []ProviderConfig) (map[string]Provider, error) {
	provs := make(map[string]Provider, len(cfgs))
	for _, cfg := range cfgs {
		p, err := oidc.NewProvider(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("discovering provider %s: %w", cfg.Name, err)
		}

		provs[cfg.Name] = Provider{
			Name: cfg.Name,
			config: oauth2.Config{
				ClientID:     cfg.Client,
				ClientSecret: cfg.Secret,
				Endpoint:     p.Endpoint(),
				RedirectURL:  cfg.RedirectURL,
				Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
			},
			verifier: p.Verifier(&oidc.Config{ClientID: cfg.Client}),
		}
	}
	return provs, nil
}

// AuthCodeURL is where the buyer's browser goes to approve the sign-in.
func (p Provider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange trades the authorization code for a verified raw ID token.
func (p Provider) Exchange(ctx context.Context, code string) (string, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchanging code with %s: %w", p.Name, err)
	}

	raw, ok := tok.Extra("id_token").(string)
	if !ok {
		return "", errors.New("token response carries no id_token")
	}

	if _, err := p.verifier.Verify(ctx, raw); err != nil {
		return "", fmt.Errorf("verifying id token from %s: %w", p.Name, err)
	}
	return raw, nil
}
