package orchestrator

import (
	"time"

	"github.com/lysyi3m/crosspost/app/content"
	"github.com/lysyi3m/crosspost/app/platform"
	"github.com/lysyi3m/crosspost/app/queue"
)

type Request struct {
	ContentRef string
	Platforms  []string
	// ScheduledFor in the future hands every platform to the queue.
	ScheduledFor *time.Time
	Priority     queue.Priority
	// SkipValidation publishes without the compatibility gate.
	SkipValidation bool
	// Immediate publishes right away. Without it, and without a schedule,
	// the jobs are queued for the next scheduler tick.
	Immediate bool
}

type ResultStatus string

const (
	ResultPublished      ResultStatus = "published"
	ResultQueued         ResultStatus = "queued"
	ResultScheduled      ResultStatus = "scheduled"
	ResultScheduledRetry ResultStatus = "scheduled-retry"
	ResultFailed         ResultStatus = "failed"
)

// PlatformResult is the outcome of one platform of a submission.
type PlatformResult struct {
	Platform     string                  `json:"platform"`
	Status       ResultStatus            `json:"status"`
	Compatible   bool                    `json:"compatible"`
	Score        int                     `json:"score"`
	QueueItemID  string                  `json:"queue_item_id,omitempty"`
	ExternalID   string                  `json:"external_id,omitempty"`
	URL          string                  `json:"url,omitempty"`
	ScheduledFor *time.Time              `json:"scheduled_for,omitempty"`
	RetryCount   int                     `json:"retry_count,omitempty"`
	Errors       []content.PublishError  `json:"errors,omitempty"`
	Warnings     []platform.Issue        `json:"warnings,omitempty"`
	Issues       []string                `json:"issues,omitempty"`
	Suggestions  []string                `json:"suggestions,omitempty"`
	Metadata     *content.ResultMetadata `json:"metadata,omitempty"`
}

type Summary struct {
	Published int `json:"published"`
	Scheduled int `json:"scheduled"`
	Retrying  int `json:"retrying"`
	Failed    int `json:"failed"`
}

// Response aggregates a submission. Success means at least one platform was
// published or accepted by the queue.
type Response struct {
	Success bool             `json:"success"`
	Results []PlatformResult `json:"results"`
	Summary Summary          `json:"summary"`
}

func summarize(results []PlatformResult) Response {
	resp := Response{Results: results}
	for _, r := range results {
		switch r.Status {
		case ResultPublished:
			resp.Summary.Published++
		case ResultQueued, ResultScheduled:
			resp.Summary.Scheduled++
		case ResultScheduledRetry:
			resp.Summary.Retrying++
		case ResultFailed:
			resp.Summary.Failed++
		}
	}
	resp.Success = resp.Summary.Published > 0 || resp.Summary.Scheduled > 0
	return resp
}
