package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/lysyi3m/crosspost/app/content"
)

// ContentSource resolves a content reference to its canonical record.
type ContentSource interface {
	Get(ctx context.Context, ref string) (content.Universal, error)
}

// Recorder receives every publish outcome.
type Recorder interface {
	Record(ctx context.Context, p content.Publication) error
}

// MemorySource is a ContentSource backed by a map.
type MemorySource struct {
	mu    sync.RWMutex
	items map[string]content.Universal
}

func NewMemorySource() *MemorySource {
	return &MemorySource{items: make(map[string]content.Universal)}
}

func (s *MemorySource) Put(_ context.Context, ref string, c content.Universal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[ref] = c
	return nil
}

func (s *MemorySource) Get(_ context.Context, ref string) (content.Universal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.items[ref]
	if !ok {
		return content.Universal{}, fmt.Errorf("content %s: %w", ref, content.ErrNotFound)
	}
	return c, nil
}

// MemoryRecorder keeps publications in memory.
type MemoryRecorder struct {
	mu   sync.Mutex
	pubs []content.Publication
}

func (r *MemoryRecorder) Record(_ context.Context, p content.Publication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pubs = append(r.pubs, p)
	return nil
}

// Publications returns a copy of everything recorded so far.
func (r *MemoryRecorder) Publications() []content.Publication {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]content.Publication(nil), r.pubs...)
}
