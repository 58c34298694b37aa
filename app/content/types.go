package content

import (
	"time"
)

type BodyFormat string

const (
	FormatMarkdown BodyFormat = "markdown"
	FormatHTML     BodyFormat = "html"
)

type TrustLevel string

const (
	TrustHigh   TrustLevel = "high"
	TrustMedium TrustLevel = "medium"
	TrustLow    TrustLevel = "low"
)

// Image is a body image of the canonical content. Position is the index of
// the paragraph the image follows.
type Image struct {
	URL      string `json:"url"`
	Alt      string `json:"alt,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Position int    `json:"position"`
}

type LinkOpportunity struct {
	AnchorText string  `json:"anchor_text"`
	Target     string  `json:"target"`
	Relevance  float64 `json:"relevance,omitempty"`
}

type ExternalLink struct {
	URL        string     `json:"url"`
	AnchorText string     `json:"anchor_text"`
	Trust      TrustLevel `json:"trust,omitempty"`
	Category   string     `json:"category,omitempty"`
	NoFollow   bool       `json:"nofollow,omitempty"`
	Sponsored  bool       `json:"sponsored,omitempty"`
}

// Universal is the canonical, platform-agnostic content record. Adapters
// only read it.
type Universal struct {
	Title           string            `json:"title"`
	Body            string            `json:"body"`
	BodyFormat      BodyFormat        `json:"body_format"`
	Excerpt         string            `json:"excerpt,omitempty"`
	MetaDescription string            `json:"meta_description,omitempty"`
	Keywords        []string          `json:"keywords,omitempty"`
	Tags            []string          `json:"tags,omitempty"`
	Categories      []string          `json:"categories,omitempty"`
	Slug            string            `json:"slug,omitempty"`
	FeaturedImage   *Image            `json:"featured_image,omitempty"`
	Images          []Image           `json:"images,omitempty"`
	InternalLinks   []LinkOpportunity `json:"internal_links,omitempty"`
	ExternalLinks   []ExternalLink    `json:"external_links,omitempty"`
	Author          string            `json:"author,omitempty"`
	PublishAt       *time.Time        `json:"publish_at,omitempty"`
	Language        string            `json:"language,omitempty"`
	ReadingTime     int               `json:"reading_time,omitempty"` // minutes
}

// Format returns the body format, defaulting to markdown.
func (u *Universal) Format() BodyFormat {
	if u.BodyFormat == "" {
		return FormatMarkdown
	}
	return u.BodyFormat
}

type ImageRole string

const (
	RoleFeatured ImageRole = "featured"
	RoleInline   ImageRole = "inline"
)

type PlatformImage struct {
	URL      string    `json:"url"`
	Alt      string    `json:"alt,omitempty"`
	Caption  string    `json:"caption,omitempty"`
	Role     ImageRole `json:"role"`
	Position int       `json:"position"`
}

type LinkKind string

const (
	LinkInternal LinkKind = "internal"
	LinkExternal LinkKind = "external"
)

type PlatformLink struct {
	URL        string   `json:"url"`
	AnchorText string   `json:"anchor_text"`
	Kind       LinkKind `json:"kind"`
	Rel        []string `json:"rel,omitempty"`
}

// Publishing states understood by every adapter. Adapters map them onto the
// platform vocabulary.
const (
	StateDraft     = "draft"
	StatePublished = "published"
	StateScheduled = "scheduled"
)

const (
	VisibilityPublic   = "public"
	VisibilityUnlisted = "unlisted"
	VisibilityPrivate  = "private"
)

type Settings struct {
	Status      string     `json:"status"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	Author      string     `json:"author,omitempty"`
	Visibility  string     `json:"visibility,omitempty"`
}

// Platform is the output of an adapter transform. Fields carries the
// adapter-specific side channel; each adapter documents its keys.
type Platform struct {
	Title    string          `json:"title"`
	Body     string          `json:"body"`
	Format   BodyFormat      `json:"format"`
	Excerpt  string          `json:"excerpt,omitempty"`
	Tags     []string        `json:"tags,omitempty"`
	Images   []PlatformImage `json:"images,omitempty"`
	Links    []PlatformLink  `json:"links,omitempty"`
	Fields   map[string]any  `json:"fields,omitempty"`
	Settings Settings        `json:"settings"`
}

// FieldString returns Fields[key] as a string, or "" when absent.
func (p *Platform) FieldString(key string) string {
	if p.Fields == nil {
		return ""
	}
	if s, ok := p.Fields[key].(string); ok {
		return s
	}
	return ""
}

// FeaturedImage returns the image tagged as featured, if any.
func (p *Platform) FeaturedImage() *PlatformImage {
	for i := range p.Images {
		if p.Images[i].Role == RoleFeatured {
			return &p.Images[i]
		}
	}
	return nil
}

type RestrictedLink struct {
	AnchorText   string   `json:"anchor_text"`
	Target       string   `json:"target"`
	Kind         LinkKind `json:"kind"`
	Reason       string   `json:"reason"`
	Alternatives []string `json:"alternatives"`
}

type LinkRules struct {
	MaxInternal       int      `json:"max_internal"`
	MaxExternal       int      `json:"max_external"`
	ForbiddenDomains  []string `json:"forbidden_domains,omitempty"`
	MinAnchorLength   int      `json:"min_anchor_length"`
	MaxAnchorLength   int      `json:"max_anchor_length"`
	MaxKeywordDensity float64  `json:"max_keyword_density"`
}

type LinkStrategy struct {
	Internal   []PlatformLink   `json:"internal"`
	External   []PlatformLink   `json:"external"`
	Restricted []RestrictedLink `json:"restricted"`
	Rules      LinkRules        `json:"rules"`
}

type PublishError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Recoverable bool     `json:"recoverable"`
	Suggestions []string `json:"suggestions,omitempty"`
}

type ResultMetadata struct {
	WordCount      int           `json:"word_count"`
	ImageCount     int           `json:"image_count"`
	LinkCount      int           `json:"link_count"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// Result is the outcome of one adapter invocation.
type Result struct {
	Success    bool           `json:"success"`
	ExternalID string         `json:"external_id,omitempty"`
	URL        string         `json:"url,omitempty"`
	Errors     []PublishError `json:"errors,omitempty"`
	Metadata   ResultMetadata `json:"metadata"`
}

// Recoverable reports whether a failed result is worth retrying: it failed
// and every error it carries is recoverable.
func (r Result) Recoverable() bool {
	if r.Success || len(r.Errors) == 0 {
		return false
	}
	for _, e := range r.Errors {
		if !e.Recoverable {
			return false
		}
	}
	return true
}

// FirstError returns the first error of the result, or nil.
func (r Result) FirstError() *PublishError {
	if len(r.Errors) == 0 {
		return nil
	}
	return &r.Errors[0]
}

// Failure builds a failed result from err. Errors of type *Error keep their
// code, recoverability and suggestions.
func Failure(err error) Result {
	return Result{Errors: []PublishError{ToPublishError(err)}}
}

// Publication is one recorded publish outcome.
type Publication struct {
	ItemID     string        `json:"item_id,omitempty"`
	ContentRef string        `json:"content_ref"`
	Platform   string        `json:"platform"`
	Status     string        `json:"status"`
	ExternalID string        `json:"external_id,omitempty"`
	URL        string        `json:"url,omitempty"`
	Score      int           `json:"score"`
	Error      *PublishError `json:"error,omitempty"`
	RecordedAt time.Time     `json:"recorded_at"`
}
