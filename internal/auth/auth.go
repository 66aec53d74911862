package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTokenTTL is used when the authentication endpoint does not say
// how long a token lives.
const DefaultTokenTTL = time.Hour

// Credentials identify the application against the authentication endpoint.
type Credentials struct {
	AppID     string
	AppSecret string
}

// ExchangeError is returned when the credentials could not be exchanged
// for a bearer token.
type ExchangeError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token exchange failed: %v", e.Err)
	}
	return fmt.Sprintf("token exchange failed: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

type tokenRequest struct {
	AppID     string `json:"app_id"`
	AppSecret string `json:"app_secret"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
}

// exchangeTokenSource posts the application credentials to the
// authentication endpoint on every call, bound to ctx.
type exchangeTokenSource struct {
	ctx    context.Context
	client *http.Client
	url    string
	creds  Credentials
	ttl    time.Duration
	now    func() time.Time
}

// Token implements oauth2.TokenSource.
func (s *exchangeTokenSource) Token() (*oauth2.Token, error) {
	body, err := json.Marshal(tokenRequest{AppID: s.creds.AppID, AppSecret: s.creds.AppSecret})
	if err != nil {
		return nil, &ExchangeError{Err: fmt.Errorf("failed to marshal credentials: %w", err)}
	}

	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, &ExchangeError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &ExchangeError{Err: fmt.Errorf("failed to reach authentication endpoint: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &ExchangeError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, &ExchangeError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode token response: %w", err)}
	}
	if tr.AccessToken == "" {
		return nil, &ExchangeError{StatusCode: resp.StatusCode, Err: fmt.Errorf("no access_token in response")}
	}

	ttl := s.ttl
	if tr.ExpiresIn > 0 {
		ttl = time.Duration(tr.ExpiresIn) * time.Second
	}

	return &oauth2.Token{
		AccessToken: tr.AccessToken,
		TokenType:   "Bearer",
		Expiry:      s.now().Add(ttl),
	}, nil
}

// CachingTokenSource reuses a token until it expires and logs whenever a
// new one is obtained. Reset forces the next call to re-authenticate.
type CachingTokenSource struct {
	mu       sync.Mutex
	exchange exchangeTokenSource
	token    *oauth2.Token
	store    TokenStore
	logger   *log.Logger
}

// Token implements oauth2.TokenSource, exchanging under the context
// given to NewTokenSource.
func (c *CachingTokenSource) Token() (*oauth2.Token, error) {
	return c.TokenContext(c.exchange.ctx)
}

// TokenContext returns the cached token, or exchanges the credentials
// for a new one with ctx bounding the request.
func (c *CachingTokenSource) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	exchange := c.exchange
	exchange.ctx = ctx
	token, err := oauth2.ReuseTokenSource(c.token, &exchange).Token()
	if err != nil {
		return nil, err
	}

	if token != c.token {
		c.logger.Printf("Obtained new bearer token (expires %s)", token.Expiry.Format(time.RFC3339))
		c.token = token
		c.save(token)
	}

	return token, nil
}

func (c *CachingTokenSource) save(token *oauth2.Token) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveToken(token); err != nil {
		c.logger.Printf("Warning: failed to save bearer token: %v", err)
	}
}

// Reset drops the cached token.
func (c *CachingTokenSource) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = nil
}

// Options configure NewTokenSource.
type Options struct {
	HTTPClient *http.Client
	TTL        time.Duration
	Logger     *log.Logger
	Now        func() time.Time

	// Store, when set, seeds the cache with a previously saved token and
	// receives every newly obtained one.
	Store TokenStore
}

// NewTokenSource returns a token source that exchanges creds at authURL
// for bearer tokens and caches them until expiry.
func NewTokenSource(ctx context.Context, authURL string, creds Credentials, opts Options) *CachingTokenSource {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTokenTTL
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &CachingTokenSource{
		exchange: exchangeTokenSource{
			ctx:    ctx,
			client: opts.HTTPClient,
			url:    authURL,
			creds:  creds,
			ttl:    opts.TTL,
			now:    opts.Now,
		},
		store:  opts.Store,
		logger: opts.Logger,
	}

	if opts.Store != nil {
		token, err := opts.Store.LoadToken()
		if err != nil {
			opts.Logger.Printf("Warning: ignoring saved bearer token: %v", err)
		} else if token.Valid() {
			c.token = token
			opts.Logger.Printf("Using saved bearer token (expires %s)", token.Expiry.Format(time.RFC3339))
		}
	}

	return c
}
