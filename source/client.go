package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/loghook/loghook/processor"
)

// MaxPageSize is the hard ceiling the management API enforces on a single
// logs request; configured batch sizes above it are clamped.
const MaxPageSize = 100

// Config for the log source client. BaseURL defaults to https://{Domain}
// when empty.
type Config struct {
	Domain  string
	BaseURL string
}

// FetchError surfaces a failed page fetch: transport failure or a non-2xx
// response from the logs endpoint.
type FetchError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("log source returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("log source request failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// TokenFunc resolves the bearer token used against the logs endpoint.
type TokenFunc func(ctx context.Context) (string, error)

// Client fetches pages of audit-log records from the management API,
// sorted ascending by date and starting strictly after the given cursor.
type Client struct {
	baseURL string
	token   TokenFunc
	client  *http.Client
}

func NewClient(config Config, token TokenFunc) (*Client, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		if config.Domain == "" {
			return nil, errors.New("source domain must be specified")
		}
		baseURL = "https://" + config.Domain
	}
	if token == nil {
		return nil, errors.New("token func must be specified")
	}

	return &Client{
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// FetchPage returns one page of records starting strictly after cursor.
// An empty cursor means the beginning of retained history. The returned
// slice may be empty when the source is exhausted.
func (c *Client) FetchPage(ctx context.Context, cursor string, take int) ([]processor.LogRecord, error) {
	if take <= 0 || take > MaxPageSize {
		take = MaxPageSize
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve source token")
	}

	query := url.Values{}
	query.Set("take", strconv.Itoa(take))
	query.Set("per_page", strconv.Itoa(take))
	query.Set("sort", "date:1")
	if cursor != "" {
		query.Set("from", cursor)
	}

	endpoint := c.baseURL + "/api/v2/logs?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create logs request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var records []processor.LogRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, &FetchError{Err: errors.Wrap(err, "failed to decode logs response")}
	}

	log.Printf("Fetched %d log records (cursor=%q take=%d)", len(records), cursor, take)
	return records, nil
}
