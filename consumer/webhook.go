package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/loghook/loghook/processor"
)

// DefaultConcurrency is the delivery pool width when none is configured.
const DefaultConcurrency = 5

// DeliveryError surfaces the first failed webhook POST of a batch.
type DeliveryError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("webhook %s returned status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("webhook delivery to %s failed: %v", e.URL, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// WebhookDispatcher POSTs delivery payloads to a webhook with a bounded
// number of requests in flight. It performs no retries; retry policy is a
// run-level property enforced by re-running from the rolled-back checkpoint.
type WebhookDispatcher struct {
	url         string
	concurrency int
	client      *http.Client
}

func NewWebhookDispatcher(config map[string]interface{}) (*WebhookDispatcher, error) {
	webhookURL, ok := config["url"].(string)
	if !ok || webhookURL == "" {
		return nil, errors.New("webhook url must be specified")
	}

	concurrency := DefaultConcurrency
	if n, ok := config["concurrency"].(int); ok && n > 0 {
		concurrency = n
	}

	return &WebhookDispatcher{
		url:         webhookURL,
		concurrency: concurrency,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Deliver POSTs every payload, at most `concurrency` at a time. On the first
// failure no further requests are admitted (in-flight requests may still
// complete) and the failure is returned. Delivery completion order across
// the pool is not guaranteed.
func (d *WebhookDispatcher) Deliver(ctx context.Context, payloads []processor.DeliveryPayload, authHeader string) error {
	if len(payloads) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for _, payload := range payloads {
		if ctx.Err() != nil {
			break
		}
		payload := payload
		g.Go(func() error {
			return d.post(ctx, payload, authHeader)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	log.Printf("Delivered %d payloads to %s", len(payloads), d.url)
	return nil
}

func (d *WebhookDispatcher) post(ctx context.Context, payload processor.DeliveryPayload, authHeader string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &DeliveryError{URL: d.url, Err: errors.Wrap(err, "failed to marshal payload")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewBuffer(body))
	if err != nil {
		return &DeliveryError{URL: d.url, Err: errors.Wrap(err, "failed to create request")}
	}
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return &DeliveryError{URL: d.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return &DeliveryError{URL: d.url, StatusCode: resp.StatusCode}
	}
	return nil
}
