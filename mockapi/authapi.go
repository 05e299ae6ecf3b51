package mockapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sandeepmhskr/tiffinbox/mockapi/web"
	"github.com/sandeepmhskr/tiffinbox/mockapi/weberr"
	"github.com/sandeepmhskr/tiffinbox/random"
	"github.com/sandeepmhskr/tiffinbox/validate"
)

const sessionUserKey = "userID"

type tokenBody struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int    `json:"expiresIn"`
}

func (s *Server) mintToken(userID string) (tokenBody, error) {
	tok, err := random.StringSecure(32)
	if err != nil {
		return tokenBody{}, fmt.Errorf("minting access token: %w", err)
	}

	s.state.issueToken(tok, userID, time.Now().UTC().Add(s.tokenTTL))
	return tokenBody{
		AccessToken: tok,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokenTTL / time.Second),
	}, nil
}

func (s *Server) handleLogin() web.Handler {
	type loginNew struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var body loginNew
		if err := web.Decode(w, r, &body); err != nil {
			return err
		}
		if err := validate.Check(body); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		if !s.limiter.Check(body.Email) {
			err := errors.New("too many attempts, slow down")
			return weberr.NewError(err, err.Error(), http.StatusTooManyRequests)
		}

		usr, err := s.state.login(body.Email, body.Password)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		return s.openSession(ctx, w, usr.ID)
	}
}

// handleOauthLogin accepts an OIDC ID token. The emulator cannot reach a
// real identity provider, so in dev mode the token's value is taken as the
// verified email. Good enough to exercise the client's social flow.
func (s *Server) handleOauthLogin() web.Handler {
	type oauthNew struct {
		Provider string `json:"provider" validate:"required"`
		IDToken  string `json:"idToken" validate:"required"`
	}

	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var body oauthNew
		if err := web.Decode(w, r, &body); err != nil {
			return err
		}
		if err := validate.Check(body); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		if !strings.Contains(body.IDToken, "@") {
			return weberr.NotAuthorized(errors.New("id token rejected"))
		}

		usr := s.state.loginOauth(body.IDToken)
		return s.openSession(ctx, w, usr.ID)
	}
}

func (s *Server) openSession(ctx context.Context, w http.ResponseWriter, userID string) error {
	// Rotating the session id on every sign-in keeps the refresh
	// credential from being fixed across authentication boundaries.
	if err := s.session.RenewToken(ctx); err != nil {
		return fmt.Errorf("renewing session token: %w", err)
	}
	s.session.Put(ctx, sessionUserKey, userID)

	tok, err := s.mintToken(userID)
	if err != nil {
		return err
	}
	return web.Respond(ctx, w, tok, http.StatusOK)
}

// handleRefresh trades the cookie-held session for a fresh access token.
// No valid session cookie means 401, which the client treats as terminal.
func (s *Server) handleRefresh() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		userID := s.session.GetString(ctx, sessionUserKey)
		if userID == "" {
			return weberr.NotAuthorized(errors.New("no refresh session"))
		}

		if err := s.session.RenewToken(ctx); err != nil {
			return fmt.Errorf("renewing session token: %w", err)
		}

		tok, err := s.mintToken(userID)
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, tok, http.StatusOK)
	}
}

func (s *Server) handleLogout() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if userID := s.session.GetString(ctx, sessionUserKey); userID != "" {
			s.state.revokeUserTokens(userID)
		}
		if err := s.session.Destroy(ctx); err != nil {
			return fmt.Errorf("destroying session: %w", err)
		}
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
