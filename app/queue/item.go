package queue

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusQueued         Status = "queued"
	StatusScheduled      Status = "scheduled"
	StatusProcessing     Status = "processing"
	StatusPublished      Status = "published"
	StatusFailed         Status = "failed"
	StatusScheduledRetry Status = "scheduled-retry"
	StatusCancelled      Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusQueued:         {StatusProcessing, StatusCancelled},
	StatusScheduled:      {StatusProcessing, StatusCancelled},
	StatusScheduledRetry: {StatusProcessing, StatusCancelled},
	StatusProcessing:     {StatusPublished, StatusFailed, StatusScheduledRetry},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Waiting reports whether the item waits for the scheduler.
func (s Status) Waiting() bool {
	return s == StatusQueued || s == StatusScheduled || s == StatusScheduledRetry
}

// Active reports whether the item still occupies its content/platform pair.
func (s Status) Active() bool {
	return s.Waiting() || s == StatusProcessing
}

func (s Status) Terminal() bool {
	return s == StatusPublished || s == StatusFailed || s == StatusCancelled
}

func (s Status) Cancellable() bool {
	return s.Waiting()
}

// ActiveStatuses are the statuses covered by the one-item-per-pair rule.
var ActiveStatuses = []Status{StatusQueued, StatusScheduled, StatusScheduledRetry, StatusProcessing}

// TerminalStatuses are never left once entered.
var TerminalStatuses = []Status{StatusPublished, StatusFailed, StatusCancelled}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank orders priorities, higher first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// ParsePriority accepts low, medium and high; empty means medium.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	default:
		return "", fmt.Errorf("unknown priority %q", s)
	}
}

type ItemError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// Item is one publish job. Only the queue mutates it.
type Item struct {
	ID           string     `json:"id"`
	ContentRef   string     `json:"content_ref"`
	Platform     string     `json:"platform"`
	Priority     Priority   `json:"priority"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	Status       Status     `json:"status"`
	RetryCount   int        `json:"retry_count"`
	LastError    *ItemError `json:"last_error,omitempty"`
	ExternalID   string     `json:"external_id,omitempty"`
	URL          string     `json:"url,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// DueAt is the earliest time the item may run.
func (i *Item) DueAt() time.Time {
	if i.ScheduledFor != nil {
		return *i.ScheduledFor
	}
	return i.CreatedAt
}

// IsDue reports whether a waiting item may run at now.
func (i *Item) IsDue(now time.Time) bool {
	if !i.Status.Waiting() {
		return false
	}
	return i.ScheduledFor == nil || !i.ScheduledFor.After(now)
}

// Less orders due items: priority, then due time, then creation.
func Less(a, b *Item) bool {
	if a.Priority.Rank() != b.Priority.Rank() {
		return a.Priority.Rank() > b.Priority.Rank()
	}
	if !a.DueAt().Equal(b.DueAt()) {
		return a.DueAt().Before(b.DueAt())
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (i *Item) pairKey() string {
	return i.ContentRef + "\x00" + i.Platform
}

// Clone returns a deep copy.
func (i *Item) Clone() *Item {
	c := *i
	if i.ScheduledFor != nil {
		t := *i.ScheduledFor
		c.ScheduledFor = &t
	}
	if i.LastError != nil {
		e := *i.LastError
		c.LastError = &e
	}
	return &c
}
