package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/crosspost/app/content"
	"github.com/lysyi3m/crosspost/app/metrics"
)

const (
	DefaultInterval   = 5 * time.Second
	DefaultWorkers    = 5
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 2 * time.Second
	DefaultMaxDelay   = 5 * time.Minute
)

// Outcome is what a processor reports for one job. A nil Err means
// published.
type Outcome struct {
	ExternalID string
	URL        string
	Err        error
}

type Processor interface {
	Process(ctx context.Context, item *Item) Outcome
}

type ProcessorFunc func(ctx context.Context, item *Item) Outcome

func (f ProcessorFunc) Process(ctx context.Context, item *Item) Outcome {
	return f(ctx, item)
}

type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Delay is the wait before retry number retry (1-based): base*2^(retry-1),
// capped at MaxDelay.
func (p RetryPolicy) Delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	d := p.BaseDelay
	for i := 1; i < retry; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

type Options struct {
	Interval  time.Duration
	Workers   int
	BatchSize int
	Retry     RetryPolicy
	// Timeout returns the per-job timeout of a platform.
	Timeout func(platform string) time.Duration
	Now     func() time.Time
	// OnComplete observes every job that left processing.
	OnComplete func(item *Item)
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.BatchSize <= 0 {
		o.BatchSize = o.Workers * 4
	}
	if o.Retry.BaseDelay <= 0 {
		o.Retry.BaseDelay = DefaultBaseDelay
	}
	if o.Retry.MaxDelay <= 0 {
		o.Retry.MaxDelay = DefaultMaxDelay
	}
	if o.Retry.MaxRetries < 0 {
		o.Retry.MaxRetries = 0
	}
	if o.Timeout == nil {
		o.Timeout = func(string) time.Duration { return DefaultTimeout }
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type Request struct {
	ContentRef   string
	Platform     string
	Priority     Priority
	ScheduledFor *time.Time
}

// Summary is the queue status exposed to callers.
type Summary struct {
	Total      int            `json:"total"`
	Pending    int            `json:"pending"`
	Processing int            `json:"processing"`
	Completed  int            `json:"completed"`
	Failed     int            `json:"failed"`
	Cancelled  int            `json:"cancelled"`
	ByStatus   map[Status]int `json:"by_status"`
}

// Queue schedules publish jobs. A ticker loop claims due items and a fixed
// worker pool runs them through the processor.
type Queue struct {
	store     Store
	processor Processor
	opts      Options

	jobs     chan *Item
	mu       sync.Mutex
	inflight map[string]struct{}
	stats    *statsRecorder

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(store Store, processor Processor, opts Options) *Queue {
	opts.defaults()
	return &Queue{
		store:     store,
		processor: processor,
		opts:      opts,
		inflight:  make(map[string]struct{}),
		stats:     newStats(opts.Workers),
	}
}

// SetProcessor replaces the processor. It must be called before Start.
func (q *Queue) SetProcessor(p Processor) {
	q.processor = p
}

// SetObserver replaces Options.OnComplete. Call it before Start.
func (q *Queue) SetObserver(fn func(item *Item)) {
	q.opts.OnComplete = fn
}

func (q *Queue) Policy() RetryPolicy {
	return q.opts.Retry
}

// Enqueue stores a job for later processing. A pair that is processing is
// rejected with ErrDuplicateInFlight; a pair already waiting returns the
// waiting item with ErrAlreadyQueued.
func (q *Queue) Enqueue(ctx context.Context, req Request) (*Item, error) {
	now := q.opts.Now().UTC()
	item, err := q.newItem(req, now)
	if err != nil {
		return nil, err
	}

	item.Status = StatusQueued
	if req.ScheduledFor != nil && req.ScheduledFor.After(now) {
		at := req.ScheduledFor.UTC()
		item.ScheduledFor = &at
		item.Status = StatusScheduled
	}

	stored, err := q.insert(ctx, item)
	if err != nil {
		return stored, err
	}

	slog.Info("Job enqueued", "item_id", stored.ID, "content_ref", stored.ContentRef, "platform", stored.Platform,
		"status", stored.Status, "priority", stored.Priority)
	return stored, nil
}

// Begin records a job that the caller runs right away. The returned item is
// processing and must be finished with Complete.
func (q *Queue) Begin(ctx context.Context, req Request) (*Item, error) {
	item, err := q.newItem(req, q.opts.Now().UTC())
	if err != nil {
		return nil, err
	}
	item.Status = StatusProcessing

	stored, err := q.insert(ctx, item)
	if err != nil {
		return stored, err
	}

	q.mu.Lock()
	q.inflight[stored.pairKey()] = struct{}{}
	q.mu.Unlock()
	return stored, nil
}

func (q *Queue) newItem(req Request, now time.Time) (*Item, error) {
	if req.ContentRef == "" || req.Platform == "" {
		return nil, fmt.Errorf("content_ref and platform are required")
	}
	if req.Priority == "" {
		req.Priority = PriorityMedium
	}
	return &Item{
		ID:         uuid.NewString(),
		ContentRef: req.ContentRef,
		Platform:   req.Platform,
		Priority:   req.Priority,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (q *Queue) insert(ctx context.Context, item *Item) (*Item, error) {
	stored, inserted, err := q.store.InsertIfAbsent(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", content.ErrStoreUnavailable, err)
	}
	if inserted {
		return stored, nil
	}
	if stored.Status == StatusProcessing {
		return stored, content.ErrDuplicateInFlight
	}
	return stored, content.ErrAlreadyQueued
}

// Complete applies the outcome of a processing item: published, retried
// with backoff when recoverable, or failed.
func (q *Queue) Complete(ctx context.Context, item *Item, out Outcome) (*Item, error) {
	now := q.opts.Now().UTC()
	policy := q.opts.Retry

	next, err := q.store.Transition(ctx, item.ID, StatusProcessing, func(it *Item) {
		if out.Err == nil {
			it.Status = StatusPublished
			it.ExternalID = out.ExternalID
			it.URL = out.URL
			it.LastError = nil
			return
		}

		it.LastError = toItemError(out.Err)
		if it.LastError.Recoverable && it.RetryCount < policy.MaxRetries {
			it.RetryCount++
			at := now.Add(policy.Delay(it.RetryCount))
			it.ScheduledFor = &at
			it.Status = StatusScheduledRetry
			return
		}
		it.Status = StatusFailed
	})

	q.mu.Lock()
	delete(q.inflight, item.pairKey())
	q.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("failed to complete item %s: %w", item.ID, err)
	}

	switch next.Status {
	case StatusPublished:
		slog.Info("Job published", "item_id", next.ID, "platform", next.Platform, "external_id", next.ExternalID)
	case StatusScheduledRetry:
		metrics.RecordRetry(next.Platform)
		slog.Warn("Job retry scheduled", "item_id", next.ID, "platform", next.Platform, "retry_count", next.RetryCount,
			"max_retries", policy.MaxRetries, "scheduled_for", next.ScheduledFor, "error", next.LastError.Message)
	case StatusFailed:
		slog.Error("Job failed", "item_id", next.ID, "platform", next.Platform, "retry_count", next.RetryCount,
			"code", next.LastError.Code, "error", next.LastError.Message)
	}

	if q.opts.OnComplete != nil {
		q.opts.OnComplete(next)
	}
	return next, nil
}

// Cancel cancels a waiting item. Processing and terminal items return
// ErrNotCancellable.
func (q *Queue) Cancel(ctx context.Context, id string) (bool, error) {
	for attempt := 0; attempt < 3; attempt++ {
		item, err := q.store.Get(ctx, id)
		if err != nil {
			return false, err
		}
		if !item.Status.Cancellable() {
			return false, fmt.Errorf("item %s is %s: %w", id, item.Status, content.ErrNotCancellable)
		}

		_, err = q.store.Transition(ctx, id, item.Status, func(it *Item) {
			it.Status = StatusCancelled
		})
		if errors.Is(err, ErrStatusConflict) {
			continue
		}
		if err != nil {
			return false, err
		}

		slog.Info("Job cancelled", "item_id", id, "platform", item.Platform)
		return true, nil
	}
	return false, fmt.Errorf("item %s kept changing status: %w", id, content.ErrNotCancellable)
}

func (q *Queue) Get(ctx context.Context, id string) (*Item, error) {
	return q.store.Get(ctx, id)
}

func (q *Queue) List(ctx context.Context, f ListFilter) ([]*Item, error) {
	return q.store.List(ctx, f)
}

func (q *Queue) Status(ctx context.Context) (Summary, error) {
	counts, err := q.store.Counts(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %w", content.ErrStoreUnavailable, err)
	}

	s := Summary{ByStatus: counts}
	for status, n := range counts {
		s.Total += n
		switch {
		case status.Waiting():
			s.Pending += n
		case status == StatusProcessing:
			s.Processing += n
		case status == StatusPublished:
			s.Completed += n
		case status == StatusFailed:
			s.Failed += n
		case status == StatusCancelled:
			s.Cancelled += n
		}
	}
	return s, nil
}

func (q *Queue) Start() {
	q.ctx, q.cancel = context.WithCancel(context.Background())
	q.jobs = make(chan *Item, q.opts.Workers)

	if n, err := q.RecoverStale(q.ctx, q.opts.Now()); err != nil {
		slog.Warn("Failed to recover stale items", "error", err)
	} else if n > 0 {
		slog.Info("Stale items recovered", "count", n)
	}

	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()

		ticker := time.NewTicker(q.opts.Interval)
		defer ticker.Stop()

		q.dispatch()

		for {
			select {
			case <-q.ctx.Done():
				return
			case <-ticker.C:
				q.dispatch()
			}
		}
	}()

	slog.Info("Queue started", "workers", q.opts.Workers, "interval", q.opts.Interval.String())
}

// Stop cancels the loop and waits for the workers. Calling it again, or
// before Start, does nothing.
func (q *Queue) Stop() {
	if q.cancel == nil {
		return
	}
	q.cancel()
	q.cancel = nil
	q.wg.Wait()
	close(q.jobs)
	slog.Info("Queue stopped")
}

// dispatch claims due items until the worker pool is saturated. Only the
// loop goroutine sends on jobs, so a send never blocks once capacity was
// checked.
func (q *Queue) dispatch() {
	free := cap(q.jobs) - len(q.jobs)
	if free <= 0 {
		return
	}

	claimed, err := q.claimDue(q.ctx, min(free, q.opts.BatchSize))
	if err != nil {
		slog.Error("Failed to scan due items", "error", err)
		return
	}
	for _, item := range claimed {
		q.jobs <- item
	}

	if counts, err := q.store.Counts(q.ctx); err == nil {
		depth := make(map[string]int, len(counts))
		for s, n := range counts {
			depth[string(s)] = n
		}
		metrics.SetQueueDepth(depth)
	}
}

// claimDue moves up to limit due items to processing.
func (q *Queue) claimDue(ctx context.Context, limit int) ([]*Item, error) {
	due, err := q.store.Due(ctx, q.opts.Now(), q.opts.BatchSize)
	if err != nil {
		return nil, err
	}

	var claimed []*Item
	for _, item := range due {
		if len(claimed) >= limit {
			break
		}

		q.mu.Lock()
		_, busy := q.inflight[item.pairKey()]
		if !busy {
			q.inflight[item.pairKey()] = struct{}{}
		}
		q.mu.Unlock()
		if busy {
			continue
		}

		next, err := q.store.Transition(ctx, item.ID, item.Status, func(it *Item) {
			it.Status = StatusProcessing
		})
		if err != nil {
			q.mu.Lock()
			delete(q.inflight, item.pairKey())
			q.mu.Unlock()
			if !errors.Is(err, ErrStatusConflict) {
				slog.Warn("Failed to claim item", "item_id", item.ID, "error", err)
			}
			continue
		}
		claimed = append(claimed, next)
	}
	return claimed, nil
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()

	for {
		select {
		case item, ok := <-q.jobs:
			if !ok {
				return
			}
			q.run(q.ctx, id, item)
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *Queue) run(ctx context.Context, workerID int, item *Item) {
	start := time.Now()

	jobCtx, cancel := context.WithTimeout(ctx, q.opts.Timeout(item.Platform))
	out := q.processor.Process(jobCtx, item)
	if out.Err != nil && errors.Is(jobCtx.Err(), context.DeadlineExceeded) && !isClassified(out.Err) {
		out.Err = content.Recoverable(item.Platform, "timeout", out.Err)
	}
	cancel()

	// Completion must land even when the queue is stopping.
	next, err := q.Complete(context.WithoutCancel(ctx), item, out)
	q.stats.record(time.Since(start), out.Err != nil)

	if err != nil {
		slog.Error("Worker failed to record outcome", "worker_id", workerID, "item_id", item.ID, "error", err)
		return
	}
	slog.Debug("Task completed", "worker_id", workerID, "item_id", item.ID, "status", next.Status,
		"duration", time.Since(start).String())
}

// RecoverStale returns items left processing by a previous run, last
// touched before cutoff, to the retry path.
func (q *Queue) RecoverStale(ctx context.Context, cutoff time.Time) (int, error) {
	items, err := q.store.List(ctx, ListFilter{Status: StatusProcessing})
	if err != nil {
		return 0, err
	}

	n := 0
	for _, item := range items {
		q.mu.Lock()
		_, busy := q.inflight[item.pairKey()]
		q.mu.Unlock()
		if busy || !item.UpdatedAt.Before(cutoff) {
			continue
		}

		stale := content.Recoverable(item.Platform, "interrupted", errors.New("processing interrupted by restart"))
		if _, err := q.Complete(ctx, item, Outcome{Err: stale}); err != nil {
			slog.Warn("Failed to recover item", "item_id", item.ID, "error", err)
			continue
		}
		n++
	}
	return n, nil
}

func (q *Queue) Stats() Stats {
	s := q.stats.snapshot()
	if q.jobs != nil {
		s.QueueSize = len(q.jobs)
	}
	return s
}

func (q *Queue) Health() map[string]any {
	return q.Stats().Health()
}

func isClassified(err error) bool {
	var ce *content.Error
	return errors.As(err, &ce)
}

func toItemError(err error) *ItemError {
	pe := content.ToPublishError(err)
	return &ItemError{Code: pe.Code, Message: pe.Message, Recoverable: pe.Recoverable}
}
