package platform

import (
	"context"
	"time"

	"github.com/lysyi3m/crosspost/app/content"
)

// Adapter translates canonical content into one platform's representation
// and talks to that platform's API.
type Adapter interface {
	Name() string
	Capabilities() Capabilities

	// Transform never fails for limits it can enforce by truncating or
	// dropping; those become warnings. Only missing required data is an
	// error.
	Transform(c *content.Universal, opts TransformOptions) TransformResult
	// Reverse is best effort. Platform-only fields are lost.
	Reverse(p *content.Platform) *content.Universal
	GenerateBacklinks(c *content.Universal, project ProjectContext) content.LinkStrategy

	Publish(ctx context.Context, p *content.Platform, cfg Config) content.Result
	Update(ctx context.Context, id string, p *content.Platform, cfg Config) content.Result
	Delete(ctx context.Context, id string, cfg Config) (bool, error)
	Status(ctx context.Context, id string, cfg Config) (PublishStatus, error)
}

type TransformOptions struct {
	// DryRun transforms without side effects. Transforms never have side
	// effects today; the flag reaches adapters for logging.
	DryRun bool
	// Now anchors scheduling decisions. Zero means time.Now().
	Now time.Time
	// ScheduledFor overrides Universal.PublishAt.
	ScheduledFor *time.Time
	// InsertLinks splices the planned link strategy into the body.
	InsertLinks bool
	Project     ProjectContext
}

func (o TransformOptions) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

type Severity string

const (
	SeverityHard  Severity = "hard"
	SeverityMinor Severity = "minor"
)

// Issue is a transform error or warning. Errors carry a Severity; warnings
// may be flagged as SEO related.
type Issue struct {
	Field      string            `json:"field,omitempty"`
	Message    string            `json:"message"`
	Kind       content.ErrorKind `json:"kind"`
	Severity   Severity          `json:"severity,omitempty"`
	SEO        bool              `json:"seo,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
}

type TransformResult struct {
	Success  bool              `json:"success"`
	Content  *content.Platform `json:"content,omitempty"`
	Warnings []Issue           `json:"warnings,omitempty"`
	Errors   []Issue           `json:"errors,omitempty"`
}

func (r *TransformResult) warn(i Issue) {
	if i.Kind == "" {
		i.Kind = content.KindValidationWarning
	}
	r.Warnings = append(r.Warnings, i)
}

func (r *TransformResult) fail(i Issue) {
	if i.Kind == "" {
		i.Kind = content.KindValidation
	}
	if i.Severity == "" {
		i.Severity = SeverityHard
	}
	r.Errors = append(r.Errors, i)
}

// HardErrors counts errors that make the content unpublishable.
func (r TransformResult) HardErrors() int {
	n := 0
	for _, e := range r.Errors {
		if e.Severity == SeverityHard {
			n++
		}
	}
	return n
}

// Config is the per-call platform configuration. Credentials is an opaque
// blob only the owning adapter parses.
type Config struct {
	Credentials    string            `json:"-"`
	BaseURL        string            `json:"base_url,omitempty"`
	Timeout        time.Duration     `json:"timeout,omitempty"`
	Options        map[string]string `json:"options,omitempty"`
	IdempotencyKey string            `json:"-"`
}

// WithTimeout bounds ctx by the platform timeout, when one is set.
func (c Config) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.Timeout)
}

func (c Config) Option(key string) string {
	if c.Options == nil {
		return ""
	}
	return c.Options[key]
}

// ProjectContext describes the site the backlinks point to.
type ProjectContext struct {
	SiteURL          string   `json:"site_url,omitempty"`
	ForbiddenDomains []string `json:"forbidden_domains,omitempty"`
}

type RemoteState string

const (
	RemoteDraft     RemoteState = "draft"
	RemotePublished RemoteState = "published"
	RemoteScheduled RemoteState = "scheduled"
	RemoteDeleted   RemoteState = "deleted"
	RemoteUnknown   RemoteState = "unknown"
)

// PublishStatus is the platform-side state of a published item.
type PublishStatus struct {
	ExternalID string      `json:"external_id"`
	State      RemoteState `json:"state"`
	URL        string      `json:"url,omitempty"`
	UpdatedAt  *time.Time  `json:"updated_at,omitempty"`
}
