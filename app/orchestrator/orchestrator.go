package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/lysyi3m/crosspost/app/content"
	"github.com/lysyi3m/crosspost/app/metrics"
	"github.com/lysyi3m/crosspost/app/platform"
	"github.com/lysyi3m/crosspost/app/queue"
	"github.com/lysyi3m/crosspost/app/validator"
)

const DefaultConcurrency = 5

type Options struct {
	// Concurrency caps outbound publish calls across immediate submissions
	// and queue workers.
	Concurrency int
	Settings    *platform.SettingsCache
	Credentials platform.CredentialProvider
	Project     platform.ProjectContext
	InsertLinks bool
	Now         func() time.Time
}

// Orchestrator validates, adapts and publishes content across platforms,
// either right away or through the queue.
type Orchestrator struct {
	registry  *platform.Registry
	validator *validator.Validator
	queue     *queue.Queue
	source    ContentSource
	recorder  Recorder
	opts      Options
	sem       *semaphore.Weighted

	// queue item id -> compatibility score, until the item is terminal
	scores sync.Map
}

// New builds the orchestrator and installs it as the processor and observer
// of q.
func New(registry *platform.Registry, q *queue.Queue, source ContentSource, recorder Recorder, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Credentials == nil {
		opts.Credentials = platform.EnvCredentials{Settings: opts.Settings}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	o := &Orchestrator{
		registry:  registry,
		validator: validator.New(registry),
		queue:     q,
		source:    source,
		recorder:  recorder,
		opts:      opts,
		sem:       semaphore.NewWeighted(int64(opts.Concurrency)),
	}
	q.SetProcessor(o)
	q.SetObserver(o.observe)
	return o
}

type job struct {
	index int
	item  *queue.Item
}

// Submit runs one submission. Platform failures are reported per platform;
// only an unresolvable content reference or an unavailable queue store fail
// the whole call.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (Response, error) {
	if req.ContentRef == "" {
		return Response{}, fmt.Errorf("content_ref is required")
	}
	names := normalizeNames(req.Platforms)
	if len(names) == 0 {
		return Response{}, fmt.Errorf("at least one platform is required")
	}

	c, err := o.source.Get(ctx, req.ContentRef)
	if err != nil {
		return Response{}, fmt.Errorf("failed to resolve content %s: %w", req.ContentRef, err)
	}

	now := o.opts.Now().UTC()
	scheduled := req.ScheduledFor != nil && req.ScheduledFor.After(now)

	results := make([]PlatformResult, len(names))
	var known []string
	for i, name := range names {
		results[i] = PlatformResult{Platform: name}
		if _, err := o.registry.Get(name); err != nil {
			results[i].fail(content.ToPublishError(content.Fatal(name, "unknown_platform", err)))
			continue
		}
		known = append(known, name)
	}

	verdicts := map[string]validator.Result{}
	if !req.SkipValidation && len(known) > 0 {
		opts := o.transformOptions(now)
		opts.ScheduledFor = req.ScheduledFor
		verdicts, err = o.validator.TestAll(ctx, &c, known, opts)
		if err != nil {
			return Response{}, fmt.Errorf("failed to validate content: %w", err)
		}
	}

	var jobs []job
	for i := range results {
		r := &results[i]
		if r.Status == ResultFailed {
			o.record(ctx, req.ContentRef, r)
			continue
		}

		r.Compatible = true
		if v, ok := verdicts[r.Platform]; ok {
			r.applyVerdict(v)
			metrics.RecordValidation(r.Platform, v.Score)
			if !v.IsCompatible {
				slog.Info("Platform skipped as incompatible", "content_ref", req.ContentRef, "platform", r.Platform,
					"score", v.Score)
				o.record(ctx, req.ContentRef, r)
				continue
			}
		}

		qreq := queue.Request{ContentRef: req.ContentRef, Platform: r.Platform, Priority: req.Priority}

		if scheduled || !req.Immediate {
			qreq.ScheduledFor = req.ScheduledFor
			item, err := o.queue.Enqueue(ctx, qreq)
			if err != nil {
				if errors.Is(err, content.ErrStoreUnavailable) {
					o.abort(jobs, err)
					return Response{}, err
				}
				r.rejected(item, err)
				o.record(ctx, req.ContentRef, r)
				continue
			}

			r.QueueItemID = item.ID
			r.ScheduledFor = item.ScheduledFor
			r.Status = ResultQueued
			if item.Status == queue.StatusScheduled {
				r.Status = ResultScheduled
				r.Warnings = withScheduleLimitation(o.capabilities(r.Platform), r.Warnings)
			}
			o.scores.Store(item.ID, r.Score)
			continue
		}

		item, err := o.queue.Begin(ctx, qreq)
		if err != nil {
			if errors.Is(err, content.ErrStoreUnavailable) {
				o.abort(jobs, err)
				return Response{}, err
			}
			r.rejected(item, err)
			o.record(ctx, req.ContentRef, r)
			continue
		}
		r.QueueItemID = item.ID
		o.scores.Store(item.ID, r.Score)
		jobs = append(jobs, job{index: i, item: item})
	}

	var g errgroup.Group
	for _, j := range jobs {
		g.Go(func() error {
			o.runImmediate(ctx, &c, j.item, &results[j.index])
			return nil
		})
	}
	_ = g.Wait()

	resp := summarize(results)
	slog.Info("Submission processed", "content_ref", req.ContentRef, "platforms", len(names),
		"published", resp.Summary.Published, "scheduled", resp.Summary.Scheduled,
		"retrying", resp.Summary.Retrying, "failed", resp.Summary.Failed)
	return resp, nil
}

func (o *Orchestrator) runImmediate(ctx context.Context, c *content.Universal, item *queue.Item, r *PlatformResult) {
	res, warnings := o.publish(ctx, item, c)
	if len(r.Warnings) == 0 {
		r.Warnings = warnings
	}
	md := res.Metadata
	r.Metadata = &md
	r.ExternalID = res.ExternalID
	r.URL = res.URL
	r.Errors = res.Errors

	// The outcome must be stored even if the caller went away.
	next, err := o.queue.Complete(context.WithoutCancel(ctx), item, outcomeOf(item.Platform, res))
	if err != nil {
		slog.Error("Failed to record publish outcome", "item_id", item.ID, "platform", item.Platform, "error", err)
		r.Status = ResultFailed
		if res.Success {
			r.Status = ResultPublished
		}
		return
	}

	switch next.Status {
	case queue.StatusPublished:
		r.Status = ResultPublished
	case queue.StatusScheduledRetry:
		r.Status = ResultScheduledRetry
		r.ScheduledFor = next.ScheduledFor
		r.RetryCount = next.RetryCount
	default:
		r.Status = ResultFailed
	}
}

// abort releases jobs begun before the batch failed. Whatever cannot be
// stored now is picked up by stale recovery.
func (o *Orchestrator) abort(jobs []job, cause error) {
	for _, j := range jobs {
		out := queue.Outcome{Err: content.Recoverable(j.item.Platform, "batch_aborted", cause)}
		if _, err := o.queue.Complete(context.Background(), j.item, out); err != nil {
			slog.Warn("Failed to release aborted job", "item_id", j.item.ID, "error", err)
		}
	}
}

// Process runs one due queue item. Content is resolved again so the job
// publishes the latest snapshot.
func (o *Orchestrator) Process(ctx context.Context, item *queue.Item) queue.Outcome {
	c, err := o.source.Get(ctx, item.ContentRef)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			return queue.Outcome{Err: content.Fatal(item.Platform, "content_not_found", err)}
		}
		return queue.Outcome{Err: content.Recoverable(item.Platform, "store_unavailable", err)}
	}

	res, _ := o.publish(ctx, item, &c)
	return outcomeOf(item.Platform, res)
}

// publish transforms c for the item's platform and calls the adapter inside
// the global concurrency cap and the platform timeout.
func (o *Orchestrator) publish(ctx context.Context, item *queue.Item, c *content.Universal) (content.Result, []platform.Issue) {
	started := time.Now()
	name := item.Platform

	adapter, err := o.registry.Get(name)
	if err != nil {
		return content.Failure(content.Fatal(name, "unknown_platform", err)), nil
	}

	settings := o.settings(name)
	creds, err := o.opts.Credentials.Credentials(ctx, name)
	if err != nil {
		return content.Failure(content.Fatal(name, "missing_credentials", err,
			"configure credentials for "+name)), nil
	}
	cfg := settings.Config(creds)
	cfg.IdempotencyKey = item.ID

	tr := adapter.Transform(c, o.transformOptions(o.opts.Now()))
	if !tr.Success || tr.Content == nil {
		return content.Failure(transformError(name, tr)), tr.Warnings
	}

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return content.Failure(content.Recoverable(name, "cancelled", err)), tr.Warnings
	}
	defer o.sem.Release(1)

	timeout := settings.TimeoutDuration()
	if timeout <= 0 {
		timeout = platform.DefaultTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := adapter.Publish(pctx, tr.Content, cfg)
	if !res.Success && errors.Is(pctx.Err(), context.DeadlineExceeded) && !res.Recoverable() {
		res.Errors = []content.PublishError{content.ToPublishError(content.Recoverable(name, "timeout", pctx.Err()))}
	}

	status := "success"
	switch {
	case res.Success:
	case res.Recoverable():
		status = "recoverable"
	default:
		status = "failed"
	}
	metrics.RecordPublish(name, status, time.Since(started).Seconds())

	if pe := res.FirstError(); !res.Success && pe != nil {
		slog.Warn("Publish failed", "item_id", item.ID, "platform", name, "code", pe.Code,
			"recoverable", res.Recoverable(), "error", pe.Message)
	}
	return res, tr.Warnings
}

// observe records every queue item leaving processing.
func (o *Orchestrator) observe(item *queue.Item) {
	score := 0
	if v, ok := o.scores.Load(item.ID); ok {
		score = v.(int)
	}
	if item.Status.Terminal() {
		o.scores.Delete(item.ID)
	}

	if o.recorder == nil {
		return
	}

	p := content.Publication{
		ItemID:     item.ID,
		ContentRef: item.ContentRef,
		Platform:   item.Platform,
		Status:     string(item.Status),
		ExternalID: item.ExternalID,
		URL:        item.URL,
		Score:      score,
		RecordedAt: item.UpdatedAt,
	}
	if item.LastError != nil {
		p.Error = &content.PublishError{
			Code:        item.LastError.Code,
			Message:     item.LastError.Message,
			Recoverable: item.LastError.Recoverable,
		}
	}
	if err := o.recorder.Record(context.Background(), p); err != nil {
		slog.Error("Failed to record publication", "item_id", item.ID, "error", err)
	}
}

// record stores an outcome that never reached the queue.
func (o *Orchestrator) record(ctx context.Context, ref string, r *PlatformResult) {
	if o.recorder == nil {
		return
	}

	p := content.Publication{
		ContentRef: ref,
		Platform:   r.Platform,
		Status:     string(r.Status),
		Score:      r.Score,
		RecordedAt: o.opts.Now().UTC(),
	}
	if len(r.Errors) > 0 {
		e := r.Errors[0]
		p.Error = &e
	}
	if err := o.recorder.Record(context.WithoutCancel(ctx), p); err != nil {
		slog.Error("Failed to record publication", "platform", r.Platform, "error", err)
	}
}

func (o *Orchestrator) QueueStatus(ctx context.Context) (queue.Summary, error) {
	return o.queue.Status(ctx)
}

func (o *Orchestrator) Cancel(ctx context.Context, id string) (bool, error) {
	return o.queue.Cancel(ctx, id)
}

func (o *Orchestrator) Item(ctx context.Context, id string) (*queue.Item, error) {
	return o.queue.Get(ctx, id)
}

func (o *Orchestrator) Items(ctx context.Context, f queue.ListFilter) ([]*queue.Item, error) {
	return o.queue.List(ctx, f)
}

// TestCompatibility scores ref against one platform without publishing.
func (o *Orchestrator) TestCompatibility(ctx context.Context, ref, name string) (validator.Result, error) {
	c, err := o.source.Get(ctx, ref)
	if err != nil {
		return validator.Result{}, fmt.Errorf("failed to resolve content %s: %w", ref, err)
	}

	res, err := o.validator.TestForPlatform(&c, name, o.transformOptions(o.opts.Now()))
	if err != nil {
		return validator.Result{}, err
	}
	metrics.RecordValidation(res.Platform, res.Score)
	return res, nil
}

// transformOptions are shared by the compatibility dry run and the real
// transform so both see the same warnings.
func (o *Orchestrator) transformOptions(now time.Time) platform.TransformOptions {
	return platform.TransformOptions{
		Now:         now,
		InsertLinks: o.opts.InsertLinks,
		Project:     o.opts.Project,
	}
}

func (o *Orchestrator) settings(name string) *platform.Settings {
	if o.opts.Settings == nil {
		return platform.DefaultSettings(name)
	}
	return o.opts.Settings.Get(name)
}

func (o *Orchestrator) capabilities(name string) platform.Capabilities {
	adapter, err := o.registry.Get(name)
	if err != nil {
		return platform.Capabilities{Name: name}
	}
	return adapter.Capabilities()
}

func normalizeNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
