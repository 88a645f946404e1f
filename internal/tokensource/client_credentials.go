package tokensource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// ExchangeError reports a token endpoint that refused the exchange.
type ExchangeError struct {
	Status int
	Body   string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed with status %d", e.Status)
}

// ClientCredentials exchanges a client id and secret for an access token and
// caches it. It is safe for concurrent use.
type ClientCredentials struct {
	client   *http.Client
	tokenURL string
	id       string
	secret   string

	mu    sync.Mutex
	token *oauth2.Token
}

// NewClientCredentials creates a token source for the given endpoint.
func NewClientCredentials(client *http.Client, tokenURL, clientID, clientSecret string) *ClientCredentials {
	return &ClientCredentials{
		client:   client,
		tokenURL: tokenURL,
		id:       clientID,
		secret:   clientSecret,
	}
}

// Token returns the cached token while it is valid, exchanging for a new one otherwise.
// Concurrent callers share a single exchange.
func (c *ClientCredentials) Token(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Valid() {
		return c.token, nil
	}

	token, err := c.exchange(ctx)
	if err != nil {
		return nil, err
	}
	c.token = token
	return token, nil
}

// Invalidate forgets the cached token so the next Token call exchanges again.
func (c *ClientCredentials) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = nil
}

// exchangeResponse is the token endpoint reply. Failures come back as
// error/error_description, sometimes with status 200.
type exchangeResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (c *ClientCredentials) exchange(ctx context.Context) (*oauth2.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.id == "" || c.secret == "" {
		return nil, errors.New("client id and secret are required")
	}

	query := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.id},
		"client_secret": {c.secret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	now := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		// url.Error would echo the secret-bearing URL
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("exchange request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading exchange response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ExchangeError{Status: resp.StatusCode, Body: string(body)}
	}

	var parsed exchangeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding exchange response: %w", err)
	}
	if parsed.Error != "" || parsed.AccessToken == "" {
		return nil, &ExchangeError{Status: http.StatusUnauthorized, Body: string(body)}
	}

	token := &oauth2.Token{
		AccessToken: parsed.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   parsed.ExpiresIn,
	}
	// Convert ExpiresIn to Expiry (see oauth2.Token.ExpiresIn field documentation)
	if parsed.ExpiresIn > 0 {
		token.Expiry = now.Add(time.Duration(parsed.ExpiresIn) * time.Second)
	}

	return token, nil
}
