package client

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sandeepmhskr/tiffinbox/core/session"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const refreshPath = "/auth/refresh"

type Config struct {
	BaseURL string
	Store   session.Store
	Log     logrus.FieldLogger

	// HTTP is optional; when nil a client with a fresh cookie jar is built.
	// The jar matters: the refresh credential is a cookie set by the backend
	// on sign-in and sent back automatically with /auth/refresh.
	HTTP *http.Client

	// RPS caps outgoing request rate when > 0.
	RPS   float64
	Burst int
}

// Client issues storefront API requests with the bearer credential attached
// and transparently performs a single silent refresh when the backend
// answers 401. Requests that hit a 401 while a refresh is already in flight
// are queued and replayed in arrival order once the refresh settles.
type Client struct {
	base    *url.URL
	http    *http.Client
	store   session.Store
	log     logrus.FieldLogger
	limiter *rate.Limiter

	mu         sync.Mutex
	refreshing bool
	queue      []*queued
}

type call struct {
	ctx     context.Context
	method  string
	path    string
	body    []byte
	retried bool
}

type replay struct {
	resp *http.Response
	err  error
}

type queued struct {
	call *call
	res  chan replay
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("a session store is required")
	}

	hc := cfg.HTTP
	if hc == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("building cookie jar: %w", err)
		}
		hc = &http.Client{Jar: jar, Timeout: 30 * time.Second}
	}

	log := cfg.Log
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}

	c := &Client{
		base:  base,
		http:  hc,
		store: cfg.Store,
		log:   log,
	}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return c, nil
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

// Do issues one API call. A nil body sends no payload; a non-nil out decodes
// a 2xx JSON response into it. Transport errors and non-401 API errors come
// back untouched; 401 handling follows the refresh-once policy.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var raw []byte
	if body != nil {
		var err error
		if raw, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	}

	cl := &call{ctx: ctx, method: method, path: path, body: raw}
	resp, err := c.send(cl)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		if resp, err = c.recover(cl); err != nil {
			return err
		}
	}

	return decode(resp, out)
}

func (c *Client) send(cl *call) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(cl.ctx); err != nil {
			return nil, fmt.Errorf("outbound rate limit: %w", err)
		}
	}

	var rd *bytes.Reader
	if cl.body != nil {
		rd = bytes.NewReader(cl.body)
	}

	u := c.base.JoinPath(cl.path)
	var req *http.Request
	var err error
	if rd != nil {
		req, err = http.NewRequestWithContext(cl.ctx, cl.method, u.String(), rd)
	} else {
		req, err = http.NewRequestWithContext(cl.ctx, cl.method, u.String(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-Id", nextRequestID())

	if creds, err := c.store.Load(); err == nil && !creds.Empty() {
		req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", cl.method, cl.path, err)
	}
	return resp, nil
}

// recover runs the refresh-once policy for a call that just got a 401.
// Exactly one refresh is in flight at any time: the first failed call starts
// it, later ones queue and wait for the outcome.
func (c *Client) recover(cl *call) (*http.Response, error) {
	if cl.retried {
		return nil, &reauthError{err: fmt.Errorf("%s %s rejected after refresh", cl.method, cl.path)}
	}
	cl.retried = true

	c.mu.Lock()
	if c.refreshing {
		q := &queued{call: cl, res: make(chan replay, 1)}
		c.queue = append(c.queue, q)
		c.mu.Unlock()

		select {
		case r := <-q.res:
			return r.resp, r.err
		case <-cl.ctx.Done():
			return nil, cl.ctx.Err()
		}
	}
	c.refreshing = true
	c.mu.Unlock()

	refreshErr := c.refresh(cl.ctx)

	c.mu.Lock()
	pending := c.queue
	c.queue = nil
	c.refreshing = false
	c.mu.Unlock()

	if refreshErr != nil {
		c.log.WithField("queued", len(pending)).Warn("token refresh failed")
		if err := c.store.Clear(); err != nil {
			c.log.WithField("error", err).Warn("clearing stored credentials")
		}
		for _, q := range pending {
			q.res <- replay{err: &reauthError{err: refreshErr}}
		}
		return nil, &reauthError{err: refreshErr}
	}

	// The starter replays first, then the queue in arrival order. A replay
	// that gets another 401 fails terminally for that caller only. Callers
	// that gave up while waiting are skipped, and a response that loses the
	// race with cancellation is closed here since nobody will drain it.
	resp, err := c.resend(cl)
	for _, q := range pending {
		if cerr := q.call.ctx.Err(); cerr != nil {
			q.res <- replay{err: cerr}
			continue
		}
		r, rerr := c.resend(q.call)
		if r != nil && q.call.ctx.Err() != nil {
			r.Body.Close()
			q.res <- replay{err: q.call.ctx.Err()}
			continue
		}
		q.res <- replay{resp: r, err: rerr}
	}
	return resp, err
}

func (c *Client) resend(cl *call) (*http.Response, error) {
	resp, err := c.send(cl)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, &reauthError{err: fmt.Errorf("%s %s rejected after refresh", cl.method, cl.path)}
	}
	return resp, nil
}

// refresh exchanges the cookie-held refresh credential for new bearer
// credentials. A 401 here is terminal: the refresh endpoint never goes
// through the recovery path itself.
func (c *Client) refresh(ctx context.Context) error {
	u := c.base.JoinPath(refreshPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return fmt.Errorf("building refresh request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("refresh call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errorFromResponse(resp)
	}

	var body struct {
		AccessToken string `json:"accessToken"`
		TokenType   string `json:"tokenType"`
		ExpiresIn   int    `json:"expiresIn"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding refresh response: %w", err)
	}

	creds := session.Credentials{
		AccessToken: body.AccessToken,
		TokenType:   body.TokenType,
		ExpiresAt:   time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}
	if err := c.store.Save(creds); err != nil {
		return fmt.Errorf("storing refreshed credentials: %w", err)
	}

	c.log.Debug("token refreshed")
	return nil
}

func decode(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

var reqID int64

var reqPrefix string

func init() {
	var buf [12]byte
	var b64 string
	for len(b64) < 10 {
		_, _ = rand.Read(buf[:])
		b64 = base64.StdEncoding.EncodeToString(buf[:])
		b64 = strings.NewReplacer("+", "", "/", "").Replace(b64)
	}
	reqPrefix = b64[0:10]
}

func nextRequestID() string {
	return fmt.Sprintf("%s-%d", reqPrefix, atomic.AddInt64(&reqID, 1))
}
