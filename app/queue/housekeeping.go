package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const DefaultPurgeSchedule = "@hourly"

// Housekeeper purges terminal items older than the retention on a cron
// schedule.
type Housekeeper struct {
	store     Store
	retention time.Duration
	now       func() time.Time
	cron      *cron.Cron
}

func NewHousekeeper(store Store, retention time.Duration, schedule string) (*Housekeeper, error) {
	if schedule == "" {
		schedule = DefaultPurgeSchedule
	}

	h := &Housekeeper{
		store:     store,
		retention: retention,
		now:       time.Now,
		cron:      cron.New(),
	}
	if _, err := h.cron.AddFunc(schedule, h.run); err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", schedule, err)
	}
	return h, nil
}

func (h *Housekeeper) Start() {
	h.cron.Start()
	slog.Info("Housekeeping started", "retention", h.retention.String())
}

func (h *Housekeeper) Stop() {
	<-h.cron.Stop().Done()
}

// Purge deletes terminal items last updated before now minus the retention.
func (h *Housekeeper) Purge(ctx context.Context) (int, error) {
	if h.retention <= 0 {
		return 0, nil
	}
	return h.store.PurgeTerminal(ctx, h.now().Add(-h.retention))
}

func (h *Housekeeper) run() {
	n, err := h.Purge(context.Background())
	if err != nil {
		slog.Error("Failed to purge queue items", "error", err)
		return
	}
	if n > 0 {
		slog.Info("Queue items purged", "count", n)
	}
}
