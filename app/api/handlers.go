package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/crosspost/app/content"
	"github.com/lysyi3m/crosspost/app/orchestrator"
	"github.com/lysyi3m/crosspost/app/platform"
	"github.com/lysyi3m/crosspost/app/queue"
)

func NewHandler(orch *orchestrator.Orchestrator, registry *platform.Registry, settings *platform.SettingsCache,
	contents ContentStore, publications PublicationLister, importer ImporterInterface, health HealthReporter) *Handler {
	return &Handler{
		orch:         orch,
		registry:     registry,
		settings:     settings,
		contents:     contents,
		publications: publications,
		importer:     importer,
		health:       health,
	}
}

// respondError maps domain errors onto HTTP statuses.
func respondError(c *gin.Context, operation string, err error) {
	var unknown *platform.UnknownPlatformError
	switch {
	case errors.As(err, &unknown):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "available": unknown.Available})
	case errors.Is(err, content.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, content.ErrNotCancellable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, content.ErrStoreUnavailable):
		slog.Error("Store unavailable", "operation", operation, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Store unavailable"})
	default:
		slog.Error("Request failed", "operation", operation, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]any{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"platforms": len(h.registry.Names()),
	}
	if h.health != nil {
		health["queue"] = h.health.Health()
	}
	if summary, err := h.orch.QueueStatus(c.Request.Context()); err == nil {
		health["items"] = summary
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) PutContent(c *gin.Context) {
	ref := c.Param("ref")

	var body content.Universal
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid content", "details": err.Error()})
		return
	}
	if body.Title == "" && body.Body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Content needs a title or a body"})
		return
	}
	body = content.WithReadingTime(body)

	if err := h.contents.Put(c.Request.Context(), ref, body); err != nil {
		respondError(c, "put_content", err)
		return
	}

	slog.Info("Content stored", "content_ref", ref, "title", body.Title)
	c.JSON(http.StatusOK, gin.H{"ref": ref, "content": body})
}

func (h *Handler) GetContent(c *gin.Context) {
	ref := c.Param("ref")

	body, err := h.contents.Get(c.Request.Context(), ref)
	if err != nil {
		respondError(c, "get_content", err)
		return
	}

	resp := gin.H{"ref": ref, "content": body}
	if h.publications != nil {
		pubs, err := h.publications.List(c.Request.Context(), ref)
		if err != nil {
			respondError(c, "list_publications", err)
			return
		}
		resp["publications"] = pubs
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Submit(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid publish request", "details": err.Error()})
		return
	}

	priority, err := queue.ParsePriority(req.Priority)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.orch.Submit(c.Request.Context(), orchestrator.Request{
		ContentRef:     req.ContentRef,
		Platforms:      req.Platforms,
		ScheduledFor:   req.ScheduledFor,
		Priority:       priority,
		SkipValidation: req.TestBeforePublish != nil && !*req.TestBeforePublish,
		Immediate:      req.Immediate,
	})
	if err != nil {
		respondError(c, "submit", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) TestCompatibility(c *gin.Context) {
	var req compatibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid compatibility request", "details": err.Error()})
		return
	}

	res, err := h.orch.TestCompatibility(c.Request.Context(), req.ContentRef, req.Platform)
	if err != nil {
		respondError(c, "test_compatibility", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Import(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid import request", "details": err.Error()})
		return
	}

	imported, err := h.importer.Import(c.Request.Context(), req.URL, req.Platform)
	if err != nil {
		var unknown *platform.UnknownPlatformError
		if errors.As(err, &unknown) {
			respondError(c, "import", err)
			return
		}
		slog.Warn("Import failed", "url", req.URL, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to import article", "details": err.Error()})
		return
	}

	if req.Ref != "" {
		if err := h.contents.Put(c.Request.Context(), req.Ref, *imported); err != nil {
			respondError(c, "import", err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"ref": req.Ref, "content": imported})
}

func (h *Handler) QueueStatus(c *gin.Context) {
	summary, err := h.orch.QueueStatus(c.Request.Context())
	if err != nil {
		respondError(c, "queue_status", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) ListItems(c *gin.Context) {
	filter := queue.ListFilter{
		Status:     queue.Status(c.Query("status")),
		Platform:   c.Query("platform"),
		ContentRef: c.Query("content_ref"),
		Limit:      100,
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		filter.Limit = limit
	}

	items, err := h.orch.Items(c.Request.Context(), filter)
	if err != nil {
		respondError(c, "list_items", err)
		return
	}
	if items == nil {
		items = []*queue.Item{}
	}

	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

func (h *Handler) GetItem(c *gin.Context) {
	item, err := h.orch.Item(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "get_item", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) CancelItem(c *gin.Context) {
	id := c.Param("id")

	cancelled, err := h.orch.Cancel(c.Request.Context(), id)
	if err != nil {
		respondError(c, "cancel_item", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "cancelled": cancelled})
}

func (h *Handler) ListPlatforms(c *gin.Context) {
	names := h.registry.Names()
	platforms := make([]platformInfo, 0, len(names))

	for _, name := range names {
		adapter, err := h.registry.Get(name)
		if err != nil {
			continue
		}

		settings := platform.DefaultSettings(name)
		if h.settings != nil {
			settings = h.settings.Get(name)
		}

		platforms = append(platforms, platformInfo{
			Name:         name,
			Enabled:      settings.Enabled,
			Timeout:      settings.TimeoutDuration().String(),
			RateLimit:    settings.RateLimit,
			Capabilities: adapter.Capabilities(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"platforms": platforms, "total": len(platforms)})
}

func (h *Handler) Recommend(c *gin.Context) {
	var req platform.Requirements
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid requirements", "details": err.Error()})
		return
	}

	recs := h.registry.Recommend(req)
	if recs == nil {
		recs = []platform.Recommendation{}
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": recs})
}

func (h *Handler) CompatibilityMatrix(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.CompatibilityMatrix())
}

func (h *Handler) AdaptationComplexity(c *gin.Context) {
	from, to := c.Query("from"), c.Query("to")
	if from == "" || to == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Both from and to parameters are required"})
		return
	}

	score, err := h.registry.AdaptationComplexity(from, to)
	if err != nil {
		respondError(c, "adaptation_complexity", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"from": from, "to": to, "complexity": score})
}

func (h *Handler) Backlinks(c *gin.Context) {
	name := c.Param("name")

	var req backlinksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid backlinks request", "details": err.Error()})
		return
	}

	adapter, err := h.registry.Get(name)
	if err != nil {
		respondError(c, "backlinks", err)
		return
	}

	body, err := h.contents.Get(c.Request.Context(), req.ContentRef)
	if err != nil {
		respondError(c, "backlinks", err)
		return
	}

	c.JSON(http.StatusOK, adapter.GenerateBacklinks(&body, req.Project))
}
