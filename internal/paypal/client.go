package paypal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/paypal-pipeline/internal/retry"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	tokenPath = "/v1/oauth2/token"
	userAgent = "PayPal-Pipeline/1.0"
	tokenKey  = "access_token"

	// AuthTimeout bounds the credential exchange.
	AuthTimeout = 30 * time.Second
	// DataTimeout bounds every data call.
	DataTimeout = 120 * time.Second
	// TokenSafetyMargin treats a credential that expires this soon as expired.
	TokenSafetyMargin = 60 * time.Second
	// DefaultTokenLifetime applies when the token response has no expires_in.
	DefaultTokenLifetime = 3600 * time.Second
)

// Token is a bearer credential.
type Token struct {
	AccessToken string
	Expiry      time.Time
}

// Response is a completed 2xx call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ClientConfig identifies the upstream account.
type ClientConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClients replaces the auth and data HTTP clients.
func WithHTTPClients(auth, data *http.Client) ClientOption {
	return func(c *Client) {
		c.authHTTP = auth
		c.dataHTTP = data
	}
}

// WithRetryPolicy replaces the credential exchange retry policy.
func WithRetryPolicy(p retry.Policy) ClientOption {
	return func(c *Client) {
		c.retry = p
	}
}

// WithLogger sets the client logger.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// Client is the authenticated HTTP client for the reporting API. It caches
// one bearer credential and is safe for concurrent use.
type Client struct {
	baseURL  string
	creds    clientcredentials.Config
	authHTTP *http.Client
	dataHTTP *http.Client
	retry    retry.Policy
	tokens   *cache.Cache
	log      zerolog.Logger

	mu sync.Mutex
}

// NewClient creates a Client. It does not contact the API.
func NewClient(cfg ClientConfig, opts ...ClientOption) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		baseURL: base,
		creds: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     base + tokenPath,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		authHTTP: &http.Client{Timeout: AuthTimeout},
		dataHTTP: &http.Client{Timeout: DataTimeout},
		retry:    retry.Default(),
		tokens:   cache.New(cache.NoExpiration, 10*time.Minute),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the cached credential, exchanging client credentials for a
// new one when none is cached or the cached one is within the safety margin
// of expiry.
func (c *Client) Token(ctx context.Context) (Token, error) {
	if tok, ok := c.cachedToken(); ok {
		return tok, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if tok, ok := c.cachedToken(); ok {
		return tok, nil
	}
	if c.creds.ClientID == "" || c.creds.ClientSecret == "" {
		return Token{}, ErrNoCredentials
	}

	var tok Token
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		tok, err = c.exchange(ctx)
		if err != nil {
			c.log.Warn().Err(err).Msg("Token exchange attempt failed")
		}
		return err
	})
	if err != nil {
		return Token{}, err
	}

	if ttl := time.Until(tok.Expiry) - TokenSafetyMargin; ttl > 0 {
		c.tokens.Set(tokenKey, tok, ttl)
	}
	c.log.Debug().Time("expiry", tok.Expiry).Msg("Obtained access token")
	return tok, nil
}

// Invalidate drops the cached credential.
func (c *Client) Invalidate() {
	c.tokens.Delete(tokenKey)
}

// Probe checks that credentials can be exchanged.
func (c *Client) Probe(ctx context.Context) error {
	if _, err := c.Token(ctx); err != nil {
		return fmt.Errorf("Probe: %w", err)
	}
	return nil
}

// Do issues one call carrying the current token. Non-2xx responses are
// returned as *StatusError; 401 and 403 also invalidate the cached token so
// the caller may retry with a fresh one.
func (c *Client) Do(ctx context.Context, method, path string, params url.Values) (*Response, error) {
	tok, err := c.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("Do: token: %w", err)
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("Do: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.dataHTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Do: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("Do: read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		if errors.Is(serr, ErrUnauthorized) {
			c.Invalidate()
		}
		return nil, serr
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (c *Client) cachedToken() (Token, bool) {
	v, ok := c.tokens.Get(tokenKey)
	if !ok {
		return Token{}, false
	}
	tok, ok := v.(Token)
	return tok, ok
}

func (c *Client) exchange(ctx context.Context) (Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.authHTTP)
	t, err := c.creds.Token(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return Token{}, &StatusError{StatusCode: re.Response.StatusCode, Body: string(re.Body)}
		}
		return Token{}, err
	}

	expiry := t.Expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(DefaultTokenLifetime)
	}
	return Token{AccessToken: t.AccessToken, Expiry: expiry}, nil
}
