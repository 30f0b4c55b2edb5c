// Package snapshot coordinates hazard snapshot requests so that each hazard
// channel has at most one request in flight and only the latest request's
// result is ever applied.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hazard-map-sync/internal/domain"
	"github.com/couchcryptid/hazard-map-sync/internal/observability"
)

// ErrCanceled is returned for operations that were superseded by a newer
// request on the same channel or cancelled explicitly. It is not a failure.
var ErrCanceled = errors.New("snapshot request canceled")

// Fetcher retrieves a grid snapshot from the hazard backend.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, req domain.SnapshotRequest) (domain.GridSnapshot, error)
}

type channel struct {
	mu      sync.Mutex // held while issuing requests and applying results
	gen     uint64
	current *Operation
}

// Orchestrator issues snapshot requests per hazard channel.
type Orchestrator struct {
	fetcher Fetcher
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	channels map[domain.HazardType]*channel
}

// New creates an Orchestrator backed by fetcher.
func New(fetcher Fetcher, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Orchestrator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		fetcher:  fetcher,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
		channels: make(map[domain.HazardType]*channel),
	}
}

// Load starts fetching req and cancels any uncompleted request on the same
// channel. The returned operation completes on its own; callers use Wait or
// Commit to consume it.
func (o *Orchestrator) Load(ctx context.Context, req domain.SnapshotRequest) *Operation {
	ch := o.channel(req.Hazard)

	ch.mu.Lock()
	if prev := ch.current; prev != nil {
		prev.abort()
	}
	ch.gen++
	opCtx, cancel := context.WithCancel(ctx)
	op := &Operation{
		req:     req,
		gen:     ch.gen,
		ch:      ch,
		ctx:     opCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
		started: o.clock.Now(),
	}
	ch.current = op
	ch.mu.Unlock()

	go o.run(op)
	return op
}

// Cancel aborts the in-flight request of a channel, if any, so that its
// result is discarded.
func (o *Orchestrator) Cancel(h domain.HazardType) {
	ch := o.channel(h)
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.current != nil {
		ch.current.abort()
		ch.current = nil
	}
	ch.gen++
}

// InFlight reports whether the channel has an uncompleted request.
func (o *Orchestrator) InFlight(h domain.HazardType) bool {
	ch := o.channel(h)
	ch.mu.Lock()
	op := ch.current
	ch.mu.Unlock()
	if op == nil {
		return false
	}
	select {
	case <-op.done:
		return false
	default:
		return true
	}
}

func (o *Orchestrator) channel(h domain.HazardType) *channel {
	o.mu.Lock()
	defer o.mu.Unlock()
	ch, ok := o.channels[h]
	if !ok {
		ch = &channel{}
		o.channels[h] = ch
	}
	return ch
}

func (o *Orchestrator) run(op *Operation) {
	defer close(op.done)
	defer op.cancel()

	hazard := string(op.req.Hazard)
	snap, err := o.fetcher.FetchSnapshot(op.ctx, op.req)
	elapsed := o.clock.Since(op.started)
	if o.metrics != nil {
		o.metrics.SnapshotFetchDuration.WithLabelValues(hazard).Observe(elapsed.Seconds())
	}

	switch {
	case op.canceled.Load() || errors.Is(err, context.Canceled):
		op.err = ErrCanceled
		o.observe(hazard, "canceled")
		o.logger.Debug("snapshot request superseded", "hazard", hazard, "time", op.req.Time)
		return
	case err != nil:
		op.err = fmt.Errorf("failed to load %s data at %s: %w", hazard, op.req.Time.UTC().Format(time.RFC3339), err)
		o.observe(hazard, "error")
		o.logger.Warn("snapshot request failed", "hazard", hazard, "time", op.req.Time, "error", err)
		return
	}

	if err := snap.Validate(); err != nil {
		op.err = fmt.Errorf("invalid %s snapshot: %w", hazard, err)
		o.observe(hazard, "error")
		o.logger.Warn("snapshot rejected", "hazard", hazard, "error", err)
		return
	}
	if snap.Hazard == "" {
		snap.Hazard = op.req.Hazard
	}
	op.snap = snap
	o.observe(hazard, "success")
	o.logger.Debug("snapshot fetched", "hazard", hazard, "rows", snap.Rows(), "cols", snap.Cols(), "duration", elapsed)
}

func (o *Orchestrator) observe(hazard, outcome string) {
	if o.metrics != nil {
		o.metrics.SnapshotRequests.WithLabelValues(hazard, outcome).Inc()
	}
}

// Operation is a single snapshot request.
type Operation struct {
	req     domain.SnapshotRequest
	gen     uint64
	ch      *channel
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time

	canceled atomic.Bool

	snap domain.GridSnapshot
	err  error
}

// Request returns what the operation asked for.
func (op *Operation) Request() domain.SnapshotRequest { return op.req }

// Done is closed once the fetch has finished.
func (op *Operation) Done() <-chan struct{} { return op.done }

// Cancel aborts the operation. A cancelled operation never applies its
// result, even if the fetch already completed.
func (op *Operation) Cancel() { op.abort() }

func (op *Operation) abort() {
	op.canceled.Store(true)
	op.cancel()
}

// Wait blocks until the fetch finishes or ctx is done. A cancelled operation
// reports ErrCanceled.
func (op *Operation) Wait(ctx context.Context) (domain.GridSnapshot, error) {
	select {
	case <-op.done:
		if op.canceled.Load() {
			return domain.GridSnapshot{}, ErrCanceled
		}
		return op.snap, op.err
	case <-ctx.Done():
		return domain.GridSnapshot{}, ctx.Err()
	}
}

// Commit waits for the fetch and, if the operation is still the latest on its
// channel and was not cancelled, runs apply with the snapshot while holding
// the channel lock. A superseded operation returns ErrCanceled without
// calling apply, even when its fetch failed. Cancelling ctx also yields
// ErrCanceled; an expired deadline is reported as an error.
func (op *Operation) Commit(ctx context.Context, apply func(domain.GridSnapshot) error) error {
	snap, err := op.Wait(ctx)
	if errors.Is(ctx.Err(), context.Canceled) {
		return ErrCanceled
	}
	if errors.Is(err, ErrCanceled) || (err != nil && ctx.Err() != nil) {
		return err
	}

	op.ch.mu.Lock()
	defer op.ch.mu.Unlock()

	if op.ch.gen != op.gen || op.canceled.Load() {
		return ErrCanceled
	}
	if err != nil {
		return err
	}
	return apply(snap)
}

// IfLatest runs fn under the channel lock if no newer request has been
// issued on the operation's channel since it started. It reports whether fn
// ran.
func (op *Operation) IfLatest(fn func()) bool {
	op.ch.mu.Lock()
	defer op.ch.mu.Unlock()
	if op.ch.gen != op.gen {
		return false
	}
	fn()
	return true
}
