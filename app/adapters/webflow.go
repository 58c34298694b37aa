package adapters

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lysyi3m/crosspost/app/content"
	"github.com/lysyi3m/crosspost/app/platform"
)

const (
	WebflowName       = "webflow"
	webflowBaseURL    = "https://api.webflow.com/v2"
	webflowSEOTitle   = 60
	webflowCollection = "blog"
)

var webflowCapabilities = platform.Capabilities{
	Name:                    WebflowName,
	SupportsInternalLinks:   true,
	SupportsCustomSlugs:     true,
	SupportsScheduling:      false,
	SupportsMetaDescription: true,
	SupportsTags:            true,
	SupportsCategories:      false,
	SupportsFeaturedImage:   true,
	SupportsImageGalleries:  true,
	SupportsMarkdown:        false,
	SupportsHTML:            true,
	SupportsCanonicalURL:    false,
	SupportsDrafts:          true,
	SupportsDeletion:        true,
	SupportsUpdates:         true,
	MaxTitleLength:          256,
	MaxExcerptLength:        500,
	MaxTagsCount:            20,
	MaxImagesCount:          50,
	MaxContentLength:        platform.Unbounded,
}

// Webflow publishes CMS collection items through the Data API v2.
//
// Fields:
//   - slug: item slug
//   - seo_title: title for search results, at most 60 characters
//   - meta_description: search result description
//   - featured_image_alt: alt text of the main image
//
// Options: collection_id (required), site_url and collection_path to build
// the public URL.
type Webflow struct {
	platform.Base
	client *platform.Client
}

func NewWebflow(client *platform.Client) *Webflow {
	return &Webflow{
		Base: platform.Base{
			Caps: webflowCapabilities,
			Rules: content.LinkRules{
				MaxInternal:       10,
				MaxExternal:       10,
				MinAnchorLength:   2,
				MaxAnchorLength:   100,
				MaxKeywordDensity: 0.5,
			},
		},
		client: client,
	}
}

func (w *Webflow) Transform(c *content.Universal, opts platform.TransformOptions) platform.TransformResult {
	p, res := w.Adapt(c, opts)
	if p == nil {
		return res
	}

	seoTitle, truncated := content.TruncateWords(p.Title, webflowSEOTitle)
	if truncated {
		res.Warnings = append(res.Warnings, platform.Issue{
			Field:   "seo_title",
			Kind:    content.KindValidationWarning,
			Message: fmt.Sprintf("seo_title exceeds %d characters, truncated", webflowSEOTitle),
			SEO:     true,
		})
	}
	p.Fields["seo_title"] = seoTitle

	if img := p.FeaturedImage(); img != nil {
		p.Fields["featured_image_alt"] = img.Alt
	}

	res.Content = p
	return res
}

func (w *Webflow) Reverse(p *content.Platform) *content.Universal {
	return w.ReverseCommon(p)
}

func (w *Webflow) GenerateBacklinks(c *content.Universal, project platform.ProjectContext) content.LinkStrategy {
	return w.PlanLinks(c, project)
}

type webflowImage struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

type webflowItem struct {
	ID            string         `json:"id,omitempty"`
	IsArchived    bool           `json:"isArchived"`
	IsDraft       bool           `json:"isDraft"`
	LastPublished *time.Time     `json:"lastPublished,omitempty"`
	LastUpdated   *time.Time     `json:"lastUpdated,omitempty"`
	FieldData     map[string]any `json:"fieldData"`
}

func (w *Webflow) Publish(ctx context.Context, p *content.Platform, cfg platform.Config) content.Result {
	ctx, cancel := cfg.WithTimeout(ctx)
	defer cancel()

	started := time.Now()

	collection, err := w.collection(cfg)
	if err != nil {
		return platform.Failed(err, p, started)
	}

	// Drafts are created as staged items, everything else goes live at once.
	endpoint := fmt.Sprintf("%s/collections/%s/items", w.baseURL(cfg), collection)
	if p.Settings.Status != content.StateDraft {
		endpoint += "/live"
	}

	var out webflowItem
	err = w.client.Do(ctx, platform.Request{
		Method:         http.MethodPost,
		URL:            endpoint,
		Header:         bearer(cfg),
		Body:           w.item(p),
		IdempotencyKey: cfg.IdempotencyKey,
	}, &out)
	if err != nil {
		return platform.Failed(err, p, started)
	}

	return platform.Published(out.ID, w.publicURL(cfg, out), p, started)
}

func (w *Webflow) Update(ctx context.Context, id string, p *content.Platform, cfg platform.Config) content.Result {
	ctx, cancel := cfg.WithTimeout(ctx)
	defer cancel()

	started := time.Now()

	collection, err := w.collection(cfg)
	if err != nil {
		return platform.Failed(err, p, started)
	}

	var out webflowItem
	err = w.client.Do(ctx, platform.Request{
		Method: http.MethodPatch,
		URL:    fmt.Sprintf("%s/collections/%s/items/%s/live", w.baseURL(cfg), collection, id),
		Header: bearer(cfg),
		Body:   w.item(p),
	}, &out)
	if err != nil {
		return platform.Failed(err, p, started)
	}
	if out.ID == "" {
		out.ID = id
	}

	return platform.Published(out.ID, w.publicURL(cfg, out), p, started)
}

// Delete unpublishes the live item and then removes it from the collection.
func (w *Webflow) Delete(ctx context.Context, id string, cfg platform.Config) (bool, error) {
	ctx, cancel := cfg.WithTimeout(ctx)
	defer cancel()

	collection, err := w.collection(cfg)
	if err != nil {
		return false, err
	}

	base := fmt.Sprintf("%s/collections/%s/items/%s", w.baseURL(cfg), collection, id)
	err = w.client.Do(ctx, platform.Request{Method: http.MethodDelete, URL: base + "/live", Header: bearer(cfg)}, nil)
	if err != nil && !isNotFound(err) {
		return false, err
	}

	if err := w.client.Do(ctx, platform.Request{Method: http.MethodDelete, URL: base, Header: bearer(cfg)}, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (w *Webflow) Status(ctx context.Context, id string, cfg platform.Config) (platform.PublishStatus, error) {
	ctx, cancel := cfg.WithTimeout(ctx)
	defer cancel()

	collection, err := w.collection(cfg)
	if err != nil {
		return platform.PublishStatus{}, err
	}

	var out webflowItem
	err = w.client.Do(ctx, platform.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/collections/%s/items/%s", w.baseURL(cfg), collection, id),
		Header: bearer(cfg),
	}, &out)
	if err != nil {
		if isNotFound(err) {
			return platform.PublishStatus{ExternalID: id, State: platform.RemoteDeleted}, nil
		}
		return platform.PublishStatus{}, err
	}

	status := platform.PublishStatus{ExternalID: id, URL: w.publicURL(cfg, out), UpdatedAt: out.LastUpdated}
	switch {
	case out.IsArchived:
		status.State = platform.RemoteDeleted
	case out.IsDraft || out.LastPublished == nil:
		status.State = platform.RemoteDraft
	default:
		status.State = platform.RemotePublished
	}
	return status, nil
}

func (w *Webflow) item(p *content.Platform) webflowItem {
	fields := map[string]any{
		"name":         p.Title,
		"slug":         p.FieldString("slug"),
		"post-body":    p.Body,
		"post-summary": p.Excerpt,
	}
	if seo := p.FieldString("seo_title"); seo != "" {
		fields["seo-title"] = seo
	}
	if meta := p.FieldString("meta_description"); meta != "" {
		fields["meta-description"] = meta
	}
	if len(p.Tags) > 0 {
		fields["tags"] = strings.Join(p.Tags, ", ")
	}

	var gallery []webflowImage
	for _, img := range p.Images {
		if img.Role == content.RoleFeatured {
			fields["main-image"] = webflowImage{URL: img.URL, Alt: img.Alt}
			continue
		}
		gallery = append(gallery, webflowImage{URL: img.URL, Alt: img.Alt})
	}
	if len(gallery) > 0 {
		fields["gallery"] = gallery
	}

	return webflowItem{IsDraft: p.Settings.Status == content.StateDraft, FieldData: fields}
}

func (w *Webflow) collection(cfg platform.Config) (string, error) {
	id := cfg.Option("collection_id")
	if id == "" {
		return "", content.Fatal(WebflowName, "missing_collection", fmt.Errorf("collection_id option is required"),
			"set options.collection_id in the webflow platform settings")
	}
	return id, nil
}

func (w *Webflow) baseURL(cfg platform.Config) string {
	if cfg.BaseURL != "" {
		return strings.TrimRight(cfg.BaseURL, "/")
	}
	return webflowBaseURL
}

func (w *Webflow) publicURL(cfg platform.Config, item webflowItem) string {
	site := strings.TrimRight(cfg.Option("site_url"), "/")
	slug, _ := item.FieldData["slug"].(string)
	if site == "" || slug == "" {
		return ""
	}

	path := cfg.Option("collection_path")
	if path == "" {
		path = webflowCollection
	}
	return fmt.Sprintf("%s/%s/%s", site, strings.Trim(path, "/"), slug)
}
