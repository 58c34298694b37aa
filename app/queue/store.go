package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lysyi3m/crosspost/app/content"
)

// ErrStatusConflict means the item left the expected status before the
// transition could be applied.
var ErrStatusConflict = errors.New("queue item status changed")

type ListFilter struct {
	Status     Status
	Platform   string
	ContentRef string
	Limit      int
}

// Store persists queue items. Every status change goes through Transition,
// which is a compare-and-swap on the status.
type Store interface {
	// InsertIfAbsent stores item unless the pair already has an active
	// item, which is returned with false.
	InsertIfAbsent(ctx context.Context, item *Item) (*Item, bool, error)
	Get(ctx context.Context, id string) (*Item, error)
	// Transition applies mutate when the item is still in status from.
	Transition(ctx context.Context, id string, from Status, mutate func(*Item)) (*Item, error)
	// Due returns waiting items whose time has come, in processing order.
	Due(ctx context.Context, now time.Time, limit int) ([]*Item, error)
	// FindActive returns the active item of the pair, or nil.
	FindActive(ctx context.Context, ref, platform string) (*Item, error)
	Counts(ctx context.Context) (map[Status]int, error)
	List(ctx context.Context, f ListFilter) ([]*Item, error)
	// PurgeTerminal deletes terminal items last updated before the cutoff.
	PurgeTerminal(ctx context.Context, before time.Time) (int, error)
}

// ApplyTransition runs mutate on a copy of cur and checks the result against
// the state machine. Stores call it inside their atomic section.
func ApplyTransition(cur *Item, from Status, mutate func(*Item), now time.Time) (*Item, error) {
	if cur.Status != from {
		return nil, fmt.Errorf("%w: item %s is %s, expected %s", ErrStatusConflict, cur.ID, cur.Status, from)
	}

	next := cur.Clone()
	mutate(next)
	next.ID = cur.ID
	next.UpdatedAt = now

	if !CanTransition(from, next.Status) {
		return nil, fmt.Errorf("invalid transition %s -> %s for item %s", from, next.Status, cur.ID)
	}
	return next, nil
}

// MemoryStore keeps items in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]*Item
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Item), now: time.Now}
}

func (s *MemoryStore) InsertIfAbsent(_ context.Context, item *Item) (*Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range s.items {
		if it.Status.Active() && it.pairKey() == item.pairKey() {
			return it.Clone(), false, nil
		}
	}
	s.items[item.ID] = item.Clone()
	return item.Clone(), true, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("queue item %s: %w", id, content.ErrNotFound)
	}
	return it.Clone(), nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, from Status, mutate func(*Item)) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("queue item %s: %w", id, content.ErrNotFound)
	}

	next, err := ApplyTransition(cur, from, mutate, s.now())
	if err != nil {
		return nil, err
	}
	s.items[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) Due(_ context.Context, now time.Time, limit int) ([]*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Item
	for _, it := range s.items {
		if it.IsDue(now) {
			due = append(due, it.Clone())
		}
	}
	sort.Slice(due, func(i, j int) bool { return Less(due[i], due[j]) })

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemoryStore) FindActive(_ context.Context, ref, platform string) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range s.items {
		if it.Status.Active() && it.ContentRef == ref && it.Platform == platform {
			return it.Clone(), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) Counts(_ context.Context) (map[Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[Status]int)
	for _, it := range s.items {
		counts[it.Status]++
	}
	return counts, nil
}

func (s *MemoryStore) List(_ context.Context, f ListFilter) ([]*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Item
	for _, it := range s.items {
		if f.Status != "" && it.Status != f.Status {
			continue
		}
		if f.Platform != "" && it.Platform != f.Platform {
			continue
		}
		if f.ContentRef != "" && it.ContentRef != f.ContentRef {
			continue
		}
		out = append(out, it.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) PurgeTerminal(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, it := range s.items {
		if it.Status.Terminal() && it.UpdatedAt.Before(before) {
			delete(s.items, id)
			n++
		}
	}
	return n, nil
}
