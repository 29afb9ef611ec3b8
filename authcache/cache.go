// Package authcache acquires and memoizes bearer tokens for the
// client-credentials grant. Entries are keyed by token endpoint URL and
// shared across pipeline runs for the life of the process.
package authcache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultCapacity bounds the number of cached tokens; the least
	// recently used entry is evicted beyond it.
	DefaultCapacity = 100

	// DefaultTTL is how long an acquired token stays usable in the cache.
	DefaultTTL = time.Hour
)

// Credentials for a client-credentials token request.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Audience     string
}

// AcquisitionError surfaces a failed token acquisition: unreachable token
// endpoint, non-2xx response, or a malformed token payload.
type AcquisitionError struct {
	TokenURL   string
	StatusCode int
	Err        error
}

func (e *AcquisitionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token endpoint %s returned status %d", e.TokenURL, e.StatusCode)
	}
	return fmt.Sprintf("token acquisition from %s failed: %v", e.TokenURL, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

type tokenRequest struct {
	Audience     string `json:"audience"`
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Cache memoizes bearer tokens per endpoint URL. Concurrent lookups for the
// same key during a miss coalesce into a single acquisition call.
type Cache struct {
	entries *expirable.LRU[string, string]
	group   singleflight.Group
	client  *http.Client
}

func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries: expirable.NewLRU[string, string](capacity, nil, ttl),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Token returns the cached token for tokenURL, acquiring a fresh one on a
// miss. A failed acquisition is returned to every coalesced caller and is
// not cached.
func (c *Cache) Token(ctx context.Context, tokenURL string, creds Credentials) (string, error) {
	if tok, ok := c.entries.Get(tokenURL); ok {
		return tok, nil
	}

	v, err, _ := c.group.Do(tokenURL, func() (interface{}, error) {
		// A coalesced caller may arrive after the winner populated the
		// entry; recheck before hitting the endpoint again.
		if tok, ok := c.entries.Get(tokenURL); ok {
			return tok, nil
		}
		// The acquisition is shared by every coalesced caller; detach it
		// from the winner's context so one caller cancelling cannot fail
		// the rest. The HTTP client's timeout still bounds the call.
		tok, err := c.acquire(context.WithoutCancel(ctx), tokenURL, creds)
		if err != nil {
			return "", err
		}
		c.entries.Add(tokenURL, tok)
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Len reports the number of live cache entries.
func (c *Cache) Len() int { return c.entries.Len() }

func (c *Cache) acquire(ctx context.Context, tokenURL string, creds Credentials) (string, error) {
	body, err := json.Marshal(tokenRequest{
		Audience:     creds.Audience,
		GrantType:    "client_credentials",
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
	})
	if err != nil {
		return "", &AcquisitionError{TokenURL: tokenURL, Err: errors.Wrap(err, "failed to marshal token request")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, bytes.NewBuffer(body))
	if err != nil {
		return "", &AcquisitionError{TokenURL: tokenURL, Err: errors.Wrap(err, "failed to create token request")}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &AcquisitionError{TokenURL: tokenURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", &AcquisitionError{TokenURL: tokenURL, StatusCode: resp.StatusCode}
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", &AcquisitionError{TokenURL: tokenURL, Err: errors.Wrap(err, "failed to decode token response")}
	}
	if tok.AccessToken == "" {
		return "", &AcquisitionError{TokenURL: tokenURL, Err: errors.New("token response missing access_token")}
	}

	log.Printf("Acquired token from %s (expires_in=%d)", tokenURL, tok.ExpiresIn)
	return tok.AccessToken, nil
}
