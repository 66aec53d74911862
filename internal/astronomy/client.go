package astronomy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/beekhof/astrocal/internal/auth"
	"github.com/beekhof/astrocal/internal/calendar"
)

const (
	DefaultBaseURL = "https://api.astronomyapi.com"
	eventsPath     = "/v2/astronomy/events"
	authPath       = "/v2/authenticate"
)

// AuthMode selects how requests are authenticated.
type AuthMode string

const (
	AuthNone   AuthMode = "none"
	AuthAPIKey AuthMode = "apikey"
	AuthToken  AuthMode = "token"
)

// Config configures a Client.
type Config struct {
	BaseURL   string
	Mode      AuthMode
	APIKey    string
	AppID     string
	AppSecret string
	TokenTTL  time.Duration
	Timeout   time.Duration

	// TokenCache is a file keeping the bearer token across runs (token mode only).
	TokenCache string

	// HTTPClient is the transport used for both the events and the
	// authentication calls. Defaults to a client with Timeout.
	HTTPClient *http.Client
	Logger     *log.Logger
	Verbose    bool
}

// Client fetches astronomical events for a month.
type Client struct {
	baseURL string
	mode    AuthMode
	apiKey  string
	client  *http.Client
	tokens  *auth.CachingTokenSource
	logger  *log.Logger
	verbose bool
}

// NewClient creates a Client. In token mode the application credentials
// are exchanged for a bearer token on first use and whenever it expires.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		mode:    cfg.Mode,
		client:  cfg.HTTPClient,
		logger:  cfg.Logger,
		verbose: cfg.Verbose,
	}

	switch cfg.Mode {
	case AuthNone, "":
		c.mode = AuthNone
	case AuthAPIKey:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("api key is required for auth mode %q", cfg.Mode)
		}
		c.apiKey = cfg.APIKey
	case AuthToken:
		if cfg.AppID == "" || cfg.AppSecret == "" {
			return nil, fmt.Errorf("app id and app secret are required for auth mode %q", cfg.Mode)
		}
		opts := auth.Options{HTTPClient: cfg.HTTPClient, TTL: cfg.TokenTTL, Logger: cfg.Logger}
		if cfg.TokenCache != "" {
			opts.Store = auth.NewFileTokenStore(cfg.TokenCache)
		}
		c.tokens = auth.NewTokenSource(ctx, c.baseURL+authPath,
			auth.Credentials{AppID: cfg.AppID, AppSecret: cfg.AppSecret}, opts)
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}

	return c, nil
}

// Mode returns the authentication mode in use.
func (c *Client) Mode() AuthMode {
	return c.mode
}

type eventsResponse struct {
	Data struct {
		Events []apiEvent `json:"events"`
	} `json:"data"`
}

type apiEvent struct {
	Date string `json:"date"`
	Name string `json:"name"`
}

// Fetch implements events.Source. Failures are logged here and returned
// as *RequestError (classify with ErrNetwork and ErrAuth).
func (c *Client) Fetch(ctx context.Context, period calendar.Period) (map[calendar.DateKey]string, error) {
	found, err := c.fetch(ctx, period)
	if err != nil {
		c.logger.Printf("Warning: failed to fetch events for %s: %v", period, err)
		return nil, err
	}
	return found, nil
}

func (c *Client) fetch(ctx context.Context, period calendar.Period) (map[calendar.DateKey]string, error) {
	query := url.Values{}
	query.Set("date", period.QueryDate())
	if c.mode == AuthAPIKey {
		query.Set("apiKey", c.apiKey)
	}
	reqURL := c.baseURL + eventsPath + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &RequestError{Kind: ErrNetwork, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	if c.verbose {
		c.logger.Printf("DEBUG: GET %s%s?date=%s (auth: %s)", c.baseURL, eventsPath, period.QueryDate(), c.mode)
	}

	if c.tokens != nil {
		// The exchange runs under ctx so cancelled or timed-out fetches
		// stop waiting for the authentication endpoint too.
		token, err := c.tokens.TokenContext(ctx)
		if err != nil {
			var exErr *auth.ExchangeError
			if errors.As(err, &exErr) && exErr.StatusCode != 0 {
				return nil, &RequestError{Kind: ErrAuth, StatusCode: exErr.StatusCode, Err: exErr}
			}
			return nil, &RequestError{Kind: ErrNetwork, Err: err}
		}
		token.SetAuthHeader(req)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &RequestError{Kind: ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		kind := ErrNetwork
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			kind = ErrAuth
			if c.tokens != nil {
				c.tokens.Reset()
			}
		}
		return nil, &RequestError{Kind: kind, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var decoded eventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &RequestError{Kind: ErrNetwork, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	found := make(map[calendar.DateKey]string, len(decoded.Data.Events))
	for _, ev := range decoded.Data.Events {
		key, err := calendar.ParseISODate(ev.Date)
		if err != nil {
			c.logger.Printf("Warning: skipping event %q: %v", ev.Name, err)
			continue
		}
		found[key] = ev.Name
	}

	if c.verbose {
		c.logger.Printf("DEBUG: fetched %d events for %s", len(found), period)
	}

	return found, nil
}
