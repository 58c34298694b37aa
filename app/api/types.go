package api

import (
	"context"
	"time"

	"github.com/lysyi3m/crosspost/app/adapters"
	"github.com/lysyi3m/crosspost/app/content"
	"github.com/lysyi3m/crosspost/app/database"
	"github.com/lysyi3m/crosspost/app/orchestrator"
	"github.com/lysyi3m/crosspost/app/platform"
)

type ContentStore interface {
	Put(ctx context.Context, ref string, c content.Universal) error
	Get(ctx context.Context, ref string) (content.Universal, error)
}

type PublicationLister interface {
	List(ctx context.Context, ref string) ([]content.Publication, error)
}

type ImporterInterface interface {
	Import(ctx context.Context, rawURL, platformName string) (*content.Universal, error)
}

type HealthReporter interface {
	Health() map[string]any
}

var (
	_ ContentStore      = (*database.ContentRepository)(nil)
	_ ContentStore      = (*orchestrator.MemorySource)(nil)
	_ PublicationLister = (*database.PublicationRepository)(nil)
	_ ImporterInterface = (*adapters.Importer)(nil)
)

type Handler struct {
	orch         *orchestrator.Orchestrator
	registry     *platform.Registry
	settings     *platform.SettingsCache
	contents     ContentStore
	publications PublicationLister
	importer     ImporterInterface
	health       HealthReporter
}

type publishRequest struct {
	ContentRef        string     `json:"content_ref" binding:"required"`
	Platforms         []string   `json:"platforms" binding:"required,min=1"`
	ScheduledFor      *time.Time `json:"scheduled_for"`
	Priority          string     `json:"priority"`
	TestBeforePublish *bool      `json:"test_before_publish"`
	Immediate         bool       `json:"immediate"`
}

type compatibilityRequest struct {
	ContentRef string `json:"content_ref" binding:"required"`
	Platform   string `json:"platform" binding:"required"`
}

type backlinksRequest struct {
	ContentRef string                  `json:"content_ref" binding:"required"`
	Project    platform.ProjectContext `json:"project"`
}

type importRequest struct {
	URL      string `json:"url" binding:"required"`
	Platform string `json:"platform"`
	// Ref stores the imported record under this reference when set.
	Ref string `json:"ref"`
}

type platformInfo struct {
	Name         string                `json:"name"`
	Enabled      bool                  `json:"enabled"`
	Timeout      string                `json:"timeout"`
	RateLimit    int                   `json:"rate_limit"`
	Capabilities platform.Capabilities `json:"capabilities"`
}
