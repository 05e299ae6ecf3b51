package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/sandeepmhskr/tiffinbox/client"
	"github.com/sandeepmhskr/tiffinbox/core/session"
	"github.com/sandeepmhskr/tiffinbox/validate"
)

type SignInParams struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int    `json:"expiresIn"`
}

// SignIn exchanges credentials for a bearer token. The backend also sets the
// refresh cookie on this response; the client's cookie jar keeps it and the
// pipeline presents it on /auth/refresh without any help from this package.
func SignIn(ctx context.Context, c *client.Client, store session.Store, email, password string) error {
	p := SignInParams{Email: email, Password: password}
	if err := validate.Check(p); err != nil {
		return err
	}

	var tok tokenResponse
	if err := c.Post(ctx, "/auth/login", p, &tok); err != nil {
		return fmt.Errorf("signing in: %w", err)
	}

	return saveToken(store, tok)
}

// SignInWithIDToken posts an OIDC ID token obtained through a Provider flow.
func SignInWithIDToken(ctx context.Context, c *client.Client, store session.Store, provider, rawIDToken string) error {
	body := struct {
		Provider string `json:"provider"`
		IDToken  string `json:"idToken"`
	}{Provider: provider, IDToken: rawIDToken}

	var tok tokenResponse
	if err := c.Post(ctx, "/auth/oauth", body, &tok); err != nil {
		return fmt.Errorf("signing in with %s: %w", provider, err)
	}

	return saveToken(store, tok)
}

// SignOut revokes the session server-side and drops the local cache either
// way: a failed revoke must not leave the UI looking signed in.
func SignOut(ctx context.Context, c *client.Client, store session.Store) error {
	err := c.Post(ctx, "/auth/logout", nil, nil)
	if cerr := store.Clear(); cerr != nil {
		return fmt.Errorf("clearing local session: %w", cerr)
	}
	if err != nil {
		return fmt.Errorf("signing out: %w", err)
	}
	return nil
}

func saveToken(store session.Store, tok tokenResponse) error {
	creds := session.Credentials{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresAt:   time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}
	if err := store.Save(creds); err != nil {
		return fmt.Errorf("storing credentials: %w", err)
	}
	return nil
}
