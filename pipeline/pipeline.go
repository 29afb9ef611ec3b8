// Package pipeline sequences one checkpointed extract-filter-deliver run:
// load checkpoint, paginate the log source until exhausted, filter, resolve
// the webhook token, deliver, then commit the new cursor or roll back to the
// pre-run cursor.
package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/pkg/errors"

	"github.com/loghook/loghook/authcache"
	"github.com/loghook/loghook/checkpoint"
	"github.com/loghook/loghook/consumer"
	"github.com/loghook/loghook/internal/config"
	"github.com/loghook/loghook/internal/metrics"
	"github.com/loghook/loghook/processor"
	"github.com/loghook/loghook/source"
)

// RunResult summarizes a successful run.
type RunResult struct {
	EventsFetched   int    `json:"events_fetched"`
	EventsDelivered int    `json:"events_delivered"`
	Cursor          string `json:"cursor"`
}

// Pipeline owns the checkpoint and drives the per-run state machine. No two
// stages of one run execute concurrently; only delivery parallelizes
// internally.
type Pipeline struct {
	settings *config.Settings
	source   *source.Client
	filter   *processor.FilterLogs
	webhook  *consumer.WebhookDispatcher
	store    checkpoint.Store
	tokens   *authcache.Cache
}

// New wires the pipeline from validated settings. The token cache is shared
// across runs and injected rather than created here.
func New(settings *config.Settings, store checkpoint.Store, tokens *authcache.Cache) (*Pipeline, error) {
	srcCreds := authcache.Credentials{
		ClientID:     settings.ClientID,
		ClientSecret: settings.ClientSecret,
		Audience:     settings.SourceAudience(),
	}
	srcTokenURL := settings.SourceTokenURL()

	src, err := source.NewClient(source.Config{
		Domain:  settings.Domain,
		BaseURL: settings.BaseURL,
	}, func(ctx context.Context) (string, error) {
		return tokens.Token(ctx, srcTokenURL, srcCreds)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create log source client")
	}

	filter, err := processor.NewFilterLogs(map[string]interface{}{
		"endpoints": settings.Endpoints,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create filter")
	}

	webhook, err := consumer.NewWebhookDispatcher(map[string]interface{}{
		"url":         settings.Webhook.URL,
		"concurrency": settings.Webhook.Concurrency,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create webhook dispatcher")
	}

	return &Pipeline{
		settings: settings,
		source:   src,
		filter:   filter,
		webhook:  webhook,
		store:    store,
		tokens:   tokens,
	}, nil
}

// Run executes one run. On any stage failure the pre-run cursor is written
// back so the next invocation retries the same window; the stage error is
// returned either way. A checkpoint write failure is returned as a
// *checkpoint.StoreError.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	started := time.Now()

	cp, err := p.store.Load(ctx)
	if err != nil && !errors.Is(err, checkpoint.ErrNotFound) {
		metrics.RunsTotal.WithLabelValues("store_error").Inc()
		return nil, err
	}
	preRun := checkpoint.Checkpoint{}
	if cp != nil {
		preRun = *cp
	}
	log.Printf("Starting run from cursor %q", preRun.Cursor)

	records, cursor, err := p.fetchAll(ctx, preRun.Cursor)
	if err != nil {
		return nil, p.rollback(ctx, preRun, err)
	}

	payloads := p.filter.Apply(records)
	log.Printf("Filtered %d of %d fetched records", len(payloads), len(records))

	var authHeader string
	if p.settings.Webhook.Auth.Enabled() {
		token, err := p.tokens.Token(ctx, p.settings.WebhookTokenURL(), authcache.Credentials{
			ClientID:     p.settings.Webhook.Auth.ClientID,
			ClientSecret: p.settings.Webhook.Auth.ClientSecret,
			Audience:     p.settings.Webhook.Auth.Audience,
		})
		if err != nil {
			return nil, p.rollback(ctx, preRun, err)
		}
		authHeader = "Bearer " + token
	}

	if len(payloads) > 0 {
		if err := p.webhook.Deliver(ctx, payloads, authHeader); err != nil {
			return nil, p.rollback(ctx, preRun, err)
		}
		metrics.EventsDelivered.Add(float64(len(payloads)))
	}

	if err := p.store.Save(ctx, &checkpoint.Checkpoint{
		Cursor:            cursor,
		LastRunEventCount: len(payloads),
	}); err != nil {
		metrics.RunsTotal.WithLabelValues("store_error").Inc()
		return nil, err
	}

	metrics.RunsTotal.WithLabelValues("success").Inc()
	metrics.RunDuration.Observe(time.Since(started).Seconds())
	log.Printf("Run committed: %d events delivered, cursor advanced to %q", len(payloads), cursor)

	return &RunResult{
		EventsFetched:   len(records),
		EventsDelivered: len(payloads),
		Cursor:          cursor,
	}, nil
}

// fetchAll paginates until the source returns an empty page. The cursor
// advances to the id of the last record of each non-empty page; a fetch
// error discards everything accumulated this run.
func (p *Pipeline) fetchAll(ctx context.Context, cursor string) ([]processor.LogRecord, string, error) {
	var records []processor.LogRecord
	for {
		page, err := p.source.FetchPage(ctx, cursor, p.settings.BatchSize)
		if err != nil {
			return nil, "", err
		}
		if len(page) == 0 {
			return records, cursor, nil
		}
		metrics.PagesFetched.Inc()
		records = append(records, page...)
		cursor = page[len(page)-1].ID
	}
}

// rollback writes the pre-run checkpoint back so the next run repeats the
// same window, then reports the stage failure. A failed rollback write is
// the graver error and takes precedence.
func (p *Pipeline) rollback(ctx context.Context, preRun checkpoint.Checkpoint, cause error) error {
	if err := p.store.Save(ctx, &checkpoint.Checkpoint{
		Cursor:            preRun.Cursor,
		LastRunEventCount: preRun.LastRunEventCount,
	}); err != nil {
		metrics.RunsTotal.WithLabelValues("store_error").Inc()
		return errors.Wrapf(err, "rollback after run failure (%v)", cause)
	}
	metrics.RunsTotal.WithLabelValues("failure").Inc()
	log.Printf("Run failed, checkpoint rolled back to %q: %v", preRun.Cursor, cause)
	return cause
}
