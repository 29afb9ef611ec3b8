// Package checkpoint persists the single cursor record that makes pipeline
// runs resumable. Last-writer-wins; concurrent runs against one checkpoint
// are not supported.
package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Load when no checkpoint has been written yet
// (the state before the first successful run).
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint is the last successfully processed position in the log source
// plus summary stats from the run that wrote it.
type Checkpoint struct {
	Cursor            string    `json:"cursor"`
	LastRunEventCount int       `json:"last_run_event_count"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Store reads and writes the checkpoint record. A run loads it once at the
// start and writes it once at the end, on success and on rollback alike.
type Store interface {
	Load(ctx context.Context) (*Checkpoint, error)
	Save(ctx context.Context, cp *Checkpoint) error
}

// StoreError marks persistence-layer failures. It is surfaced distinctly
// from pipeline-stage errors because run outcome and persisted state may
// disagree once a checkpoint write has failed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("checkpoint store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
