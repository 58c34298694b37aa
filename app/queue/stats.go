package queue

import (
	"sync"
	"time"
)

const keptProcessTimes = 100

type Stats struct {
	TotalProcessed     int64
	TotalErrors        int64
	CurrentWorkers     int
	QueueSize          int
	LastProcessedAt    *time.Time
	AverageProcessTime time.Duration
}

type statsRecorder struct {
	mu           sync.RWMutex
	stats        Stats
	processTimes []time.Duration
}

func newStats(workers int) *statsRecorder {
	return &statsRecorder{
		stats:        Stats{CurrentWorkers: workers},
		processTimes: make([]time.Duration, 0, keptProcessTimes),
	}
}

func (r *statsRecorder) record(d time.Duration, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.TotalProcessed++
	if failed {
		r.stats.TotalErrors++
	}
	now := time.Now()
	r.stats.LastProcessedAt = &now

	r.processTimes = append(r.processTimes, d)
	if len(r.processTimes) > keptProcessTimes {
		r.processTimes = r.processTimes[1:]
	}

	var total time.Duration
	for _, t := range r.processTimes {
		total += t
	}
	r.stats.AverageProcessTime = total / time.Duration(len(r.processTimes))
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// Health reports the queue status from its error rate: above 50% is
// unhealthy, above 10% degraded.
func (s Stats) Health() map[string]any {
	health := map[string]any{
		"status":               "healthy",
		"workers":              s.CurrentWorkers,
		"queue_size":           s.QueueSize,
		"total_processed":      s.TotalProcessed,
		"total_errors":         s.TotalErrors,
		"average_process_time": s.AverageProcessTime.String(),
	}

	if s.LastProcessedAt != nil {
		health["last_processed_at"] = s.LastProcessedAt.Format(time.RFC3339)
		health["last_processed_ago"] = time.Since(*s.LastProcessedAt).String()
	}

	if s.TotalProcessed > 0 {
		errorRate := float64(s.TotalErrors) / float64(s.TotalProcessed)
		if errorRate > 0.5 {
			health["status"] = "unhealthy"
		} else if errorRate > 0.1 {
			health["status"] = "degraded"
		}
		health["error_rate"] = errorRate
	}

	return health
}
