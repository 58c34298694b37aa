package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/crosspost/app/content"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestQueue(c *clock) *Queue {
	return New(NewMemoryStore(), nil, Options{
		Workers: 2,
		Retry:   RetryPolicy{MaxRetries: 3, BaseDelay: 2 * time.Second, MaxDelay: 300 * time.Second},
		Now:     c.Now,
	})
}

var (
	recoverable = content.Recoverable("devto", "rate_limited", errors.New("429"))
	fatal       = content.Fatal("devto", "invalid_credentials", errors.New("401"))
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]Status{
		{StatusQueued, StatusProcessing},
		{StatusScheduled, StatusProcessing},
		{StatusScheduledRetry, StatusProcessing},
		{StatusQueued, StatusCancelled},
		{StatusScheduledRetry, StatusCancelled},
		{StatusProcessing, StatusPublished},
		{StatusProcessing, StatusFailed},
		{StatusProcessing, StatusScheduledRetry},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	denied := [][2]Status{
		{StatusProcessing, StatusCancelled},
		{StatusPublished, StatusQueued},
		{StatusFailed, StatusProcessing},
		{StatusCancelled, StatusQueued},
		{StatusQueued, StatusPublished},
	}
	for _, tr := range denied {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{BaseDelay: 2 * time.Second, MaxDelay: 300 * time.Second}

	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 8*time.Second, p.Delay(3))
	assert.Equal(t, 300*time.Second, p.Delay(20))
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, PriorityMedium, p)

	p, err = ParsePriority("HIGH")
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, p)

	_, err = ParsePriority("urgent")
	assert.Error(t, err)
}

func TestEnqueueInitialStatus(t *testing.T) {
	c := newClock()
	q := newTestQueue(c)
	ctx := context.Background()

	item, err := q.Enqueue(ctx, Request{ContentRef: "a", Platform: "devto"})
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, item.Status)
	assert.Equal(t, PriorityMedium, item.Priority)
	assert.NotEmpty(t, item.ID)

	future := c.Now().Add(time.Hour)
	item, err = q.Enqueue(ctx, Request{ContentRef: "b", Platform: "devto", ScheduledFor: &future})
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, item.Status)

	past := c.Now().Add(-time.Hour)
	item, err = q.Enqueue(ctx, Request{ContentRef: "c", Platform: "devto", ScheduledFor: &past})
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, item.Status)

	_, err = q.Enqueue(ctx, Request{Platform: "devto"})
	assert.Error(t, err)
}

func TestEnqueueDuplicates(t *testing.T) {
	q := newTestQueue(newClock())
	ctx := context.Background()

	first, err := q.Enqueue(ctx, Request{ContentRef: "a", Platform: "devto"})
	require.NoError(t, err)

	again, err := q.Enqueue(ctx, Request{ContentRef: "a", Platform: "devto"})
	assert.ErrorIs(t, err, content.ErrAlreadyQueued)
	assert.Equal(t, first.ID, again.ID)

	// Another platform is a different pair.
	_, err = q.Enqueue(ctx, Request{ContentRef: "a", Platform: "medium"})
	require.NoError(t, err)

	running, err := q.Begin(ctx, Request{ContentRef: "b", Platform: "devto"})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, running.Status)

	_, err = q.Begin(ctx, Request{ContentRef: "b", Platform: "devto"})
	assert.ErrorIs(t, err, content.ErrDuplicateInFlight)
	_, err = q.Enqueue(ctx, Request{ContentRef: "b", Platform: "devto"})
	assert.ErrorIs(t, err, content.ErrDuplicateInFlight)

	_, err = q.Complete(ctx, running, Outcome{ExternalID: "1"})
	require.NoError(t, err)

	// Terminal items free the pair.
	_, err = q.Enqueue(ctx, Request{ContentRef: "b", Platform: "devto"})
	assert.NoError(t, err)
}

func TestClaimDueOrdering(t *testing.T) {
	c := newClock()
	q := newTestQueue(c)
	ctx := context.Background()

	low, _ := q.Enqueue(ctx, Request{ContentRef: "low", Platform: "devto", Priority: PriorityLow})
	c.Advance(time.Second)
	medium, _ := q.Enqueue(ctx, Request{ContentRef: "medium", Platform: "devto", Priority: PriorityMedium})
	c.Advance(time.Second)
	high, _ := q.Enqueue(ctx, Request{ContentRef: "high", Platform: "devto", Priority: PriorityHigh})
	c.Advance(time.Second)
	high2, _ := q.Enqueue(ctx, Request{ContentRef: "high2", Platform: "devto", Priority: PriorityHigh})

	claimed, err := q.claimDue(ctx, 10)
	require.NoError(t, err)

	var ids []string
	for _, it := range claimed {
		ids = append(ids, it.ID)
		assert.Equal(t, StatusProcessing, it.Status)
	}
	assert.Equal(t, []string{high.ID, high2.ID, medium.ID, low.ID}, ids)

	// Nothing left to claim.
	claimed, err = q.claimDue(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestScheduledItemNeverClaimedEarly(t *testing.T) {
	c := newClock()
	q := newTestQueue(c)
	ctx := context.Background()

	at := c.Now().Add(10 * time.Minute)
	item, err := q.Enqueue(ctx, Request{ContentRef: "a", Platform: "medium", ScheduledFor: &at})
	require.NoError(t, err)

	for i := 0; i < 9; i++ {
		c.Advance(time.Minute)
		claimed, err := q.claimDue(ctx, 10)
		require.NoError(t, err)
		require.Empty(t, claimed, "claimed at %s", c.Now())
	}

	c.Advance(time.Minute)
	claimed, err := q.claimDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, item.ID, claimed[0].ID)
}

func TestClaimDueRespectsLimit(t *testing.T) {
	q := newTestQueue(newClock())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := q.Enqueue(ctx, Request{ContentRef: fmt.Sprint(i), Platform: "devto"})
		require.NoError(t, err)
	}

	claimed, err := q.claimDue(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)
}

func TestCompleteRetriesUpToCap(t *testing.T) {
	c := newClock()
	q := newTestQueue(c)
	ctx := context.Background()

	item, err := q.Begin(ctx, Request{ContentRef: "a", Platform: "devto"})
	require.NoError(t, err)

	delays := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, d := range delays {
		next, err := q.Complete(ctx, item, Outcome{Err: recoverable})
		require.NoError(t, err)
		require.Equal(t, StatusScheduledRetry, next.Status)
		assert.Equal(t, i+1, next.RetryCount)
		assert.Equal(t, c.Now().Add(d), *next.ScheduledFor)
		require.NotNil(t, next.LastError)
		assert.Equal(t, "rate_limited", next.LastError.Code)
		assert.True(t, next.LastError.Recoverable)

		// Not due before the backoff elapsed.
		claimed, err := q.claimDue(ctx, 10)
		require.NoError(t, err)
		require.Empty(t, claimed)

		c.Advance(d)
		claimed, err = q.claimDue(ctx, 10)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		item = claimed[0]
	}

	final, err := q.Complete(ctx, item, Outcome{Err: recoverable})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Equal(t, 3, final.RetryCount)
}

func TestCompleteFatalFailsImmediately(t *testing.T) {
	q := newTestQueue(newClock())
	ctx := context.Background()

	item, err := q.Begin(ctx, Request{ContentRef: "a", Platform: "devto"})
	require.NoError(t, err)

	next, err := q.Complete(ctx, item, Outcome{Err: fatal})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, next.Status)
	assert.Equal(t, 0, next.RetryCount)
	assert.False(t, next.LastError.Recoverable)

	// A second completion finds the item no longer processing.
	_, err = q.Complete(ctx, item, Outcome{})
	assert.ErrorIs(t, err, ErrStatusConflict)
}

func TestCompletePublished(t *testing.T) {
	var seen []*Item
	q := New(NewMemoryStore(), nil, Options{OnComplete: func(it *Item) { seen = append(seen, it) }})
	ctx := context.Background()

	item, err := q.Begin(ctx, Request{ContentRef: "a", Platform: "devto"})
	require.NoError(t, err)

	next, err := q.Complete(ctx, item, Outcome{ExternalID: "42", URL: "https://dev.to/a"})
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, next.Status)
	assert.Equal(t, "42", next.ExternalID)
	require.Len(t, seen, 1)
	assert.Equal(t, "https://dev.to/a", seen[0].URL)
}

func TestCancel(t *testing.T) {
	q := newTestQueue(newClock())
	ctx := context.Background()

	item, err := q.Enqueue(ctx, Request{ContentRef: "a", Platform: "devto"})
	require.NoError(t, err)

	ok, err := q.Cancel(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := q.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	ok, err = q.Cancel(ctx, item.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, err, content.ErrNotCancellable)

	running, err := q.Begin(ctx, Request{ContentRef: "b", Platform: "devto"})
	require.NoError(t, err)
	ok, err = q.Cancel(ctx, running.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, err, content.ErrNotCancellable)

	_, err = q.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, content.ErrNotFound)
}

func TestStatusSummary(t *testing.T) {
	q := newTestQueue(newClock())
	ctx := context.Background()

	_, _ = q.Enqueue(ctx, Request{ContentRef: "a", Platform: "devto"})
	cancelled, _ := q.Enqueue(ctx, Request{ContentRef: "b", Platform: "devto"})
	_, _ = q.Cancel(ctx, cancelled.ID)
	running, _ := q.Begin(ctx, Request{ContentRef: "c", Platform: "devto"})
	done, _ := q.Begin(ctx, Request{ContentRef: "d", Platform: "devto"})
	_, _ = q.Complete(ctx, done, Outcome{ExternalID: "1"})
	failed, _ := q.Begin(ctx, Request{ContentRef: "e", Platform: "devto"})
	_, _ = q.Complete(ctx, failed, Outcome{Err: fatal})
	require.NotNil(t, running)

	s, err := q.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{
		Total:      5,
		Pending:    1,
		Processing: 1,
		Completed:  1,
		Failed:     1,
		Cancelled:  1,
		ByStatus: map[Status]int{
			StatusQueued:     1,
			StatusCancelled:  1,
			StatusProcessing: 1,
			StatusPublished:  1,
			StatusFailed:     1,
		},
	}, s)
}

func TestRunTimeoutIsRecoverable(t *testing.T) {
	q := New(NewMemoryStore(), ProcessorFunc(func(ctx context.Context, _ *Item) Outcome {
		<-ctx.Done()
		return Outcome{Err: ctx.Err()}
	}), Options{
		Retry:   RetryPolicy{MaxRetries: 3, BaseDelay: time.Second},
		Timeout: func(string) time.Duration { return 10 * time.Millisecond },
	})
	ctx := context.Background()

	item, err := q.Begin(ctx, Request{ContentRef: "a", Platform: "webflow"})
	require.NoError(t, err)

	q.run(ctx, 0, item)

	got, err := q.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduledRetry, got.Status)
	assert.Equal(t, "timeout", got.LastError.Code)
	assert.Equal(t, int64(1), q.Stats().TotalErrors)
}

func TestRecoverStale(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	stale := &Item{ID: "stale", ContentRef: "a", Platform: "devto", Priority: PriorityMedium, Status: StatusProcessing,
		CreatedAt: time.Now().Add(-time.Hour), UpdatedAt: time.Now().Add(-time.Hour)}
	_, _, err := store.InsertIfAbsent(ctx, stale)
	require.NoError(t, err)

	q := New(store, nil, Options{Retry: RetryPolicy{MaxRetries: 3}})
	n, err := q.RecoverStale(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Get(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, StatusScheduledRetry, got.Status)
	assert.Equal(t, "interrupted", got.LastError.Code)
}

func TestQueueProcessesConcurrentlyWithoutDoubleDispatch(t *testing.T) {
	var (
		mu       sync.Mutex
		running  = map[string]bool{}
		calls    = map[string]int{}
		inFlight atomic.Int32
		peak     atomic.Int32
	)

	processor := ProcessorFunc(func(ctx context.Context, item *Item) Outcome {
		key := item.ContentRef + "/" + item.Platform
		mu.Lock()
		if running[key] {
			mu.Unlock()
			t.Errorf("pair %s dispatched twice", key)
			return Outcome{Err: fatal}
		}
		running[key] = true
		calls[item.ID]++
		mu.Unlock()

		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)

		mu.Lock()
		running[key] = false
		mu.Unlock()
		return Outcome{ExternalID: item.ID}
	})

	q := New(NewMemoryStore(), processor, Options{Interval: 5 * time.Millisecond, Workers: 3})
	ctx := context.Background()

	platforms := []string{"webflow", "wordpress", "medium", "devto"}
	for i := 0; i < 10; i++ {
		for _, p := range platforms {
			_, err := q.Enqueue(ctx, Request{ContentRef: fmt.Sprintf("post-%d", i), Platform: p})
			require.NoError(t, err)
		}
	}

	q.Start()
	defer q.Stop()

	require.Eventually(t, func() bool {
		s, err := q.Status(ctx)
		return err == nil && s.Completed == 40 && q.Stats().TotalProcessed == 40
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for id, n := range calls {
		assert.Equal(t, 1, n, id)
	}
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, "healthy", q.Health()["status"])
}

func TestStopIsIdempotent(t *testing.T) {
	q := New(NewMemoryStore(), ProcessorFunc(func(context.Context, *Item) Outcome { return Outcome{} }),
		Options{Interval: 5 * time.Millisecond})

	q.Stop()
	q.Start()
	q.Stop()
	assert.NotPanics(t, q.Stop)
}

func TestHousekeeperPurge(t *testing.T) {
	store := NewMemoryStore()
	q := New(store, nil, Options{})
	ctx := context.Background()

	done, err := q.Begin(ctx, Request{ContentRef: "a", Platform: "devto"})
	require.NoError(t, err)
	_, err = q.Complete(ctx, done, Outcome{ExternalID: "1"})
	require.NoError(t, err)
	waiting, err := q.Enqueue(ctx, Request{ContentRef: "b", Platform: "devto"})
	require.NoError(t, err)

	h, err := NewHousekeeper(store, time.Hour, "")
	require.NoError(t, err)

	n, err := h.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	h.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err = h.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.Get(ctx, waiting.ID)
	assert.NoError(t, err)
	_, err = store.Get(ctx, done.ID)
	assert.ErrorIs(t, err, content.ErrNotFound)
}

func TestHousekeeperRejectsBadSchedule(t *testing.T) {
	_, err := NewHousekeeper(NewMemoryStore(), time.Hour, "every tuesday")
	assert.Error(t, err)
}
