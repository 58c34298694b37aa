package adapters

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/lysyi3m/crosspost/app/content"
	"github.com/lysyi3m/crosspost/app/platform"
)

const (
	DevToName    = "devto"
	devToBaseURL = "https://dev.to/api"
)

var devToCapabilities = platform.Capabilities{
	Name:                    DevToName,
	SupportsInternalLinks:   true,
	SupportsCustomSlugs:     false,
	SupportsScheduling:      false,
	SupportsMetaDescription: true,
	SupportsTags:            true,
	SupportsCategories:      false,
	SupportsFeaturedImage:   true,
	SupportsImageGalleries:  false,
	SupportsMarkdown:        true,
	SupportsHTML:            false,
	SupportsCanonicalURL:    true,
	SupportsDrafts:          true,
	SupportsDeletion:        false,
	SupportsUpdates:         true,
	MaxTitleLength:          128,
	MaxExcerptLength:        150,
	MaxTagsCount:            4,
	MaxImagesCount:          20,
	MaxContentLength:        100000,
}

// DevTo publishes to DEV (Forem). Bodies are markdown.
//
// Fields:
//   - canonical_url: original location of the article
//   - series: series name, taken from the first category
//   - main_image: cover image URL
//   - description: social/meta description
//
// DEV has no delete API. Delete unpublishes the article instead.
type DevTo struct {
	platform.Base
	client *platform.Client
}

func NewDevTo(client *platform.Client) *DevTo {
	return &DevTo{
		Base: platform.Base{
			Caps: devToCapabilities,
			Rules: content.LinkRules{
				MaxInternal:       5,
				MaxExternal:       5,
				MinAnchorLength:   2,
				MaxAnchorLength:   80,
				MaxKeywordDensity: 0.5,
			},
		},
		client: client,
	}
}

func (d *DevTo) Transform(c *content.Universal, opts platform.TransformOptions) platform.TransformResult {
	p, res := d.Adapt(c, opts)
	if p == nil {
		return res
	}

	tags, changed := devToTags(p.Tags)
	p.Tags = tags
	if changed {
		res.Warnings = append(res.Warnings, platform.Issue{
			Field:   "tags",
			Kind:    content.KindPlatformLimitation,
			Message: "DEV tags must be lowercase alphanumeric, tags were normalized",
		})
	}

	if meta := p.FieldString("meta_description"); meta != "" {
		p.Fields["description"] = meta
	} else {
		p.Fields["description"] = p.Excerpt
	}
	delete(p.Fields, "meta_description")

	if img := p.FeaturedImage(); img != nil {
		p.Fields["main_image"] = img.URL
	}
	if len(c.Categories) > 0 {
		p.Fields["series"] = c.Categories[0]
	}
	if canonical := canonicalURL(c, opts.Project); canonical != "" {
		p.Fields["canonical_url"] = canonical
	}

	res.Content = p
	return res
}

func (d *DevTo) Reverse(p *content.Platform) *content.Universal {
	u := d.ReverseCommon(p)
	if u == nil {
		return nil
	}
	u.MetaDescription = p.FieldString("description")
	if series := p.FieldString("series"); series != "" {
		u.Categories = []string{series}
	}
	return u
}

func (d *DevTo) GenerateBacklinks(c *content.Universal, project platform.ProjectContext) content.LinkStrategy {
	return d.PlanLinks(c, project)
}

type devToArticle struct {
	Title        string   `json:"title,omitempty"`
	BodyMarkdown string   `json:"body_markdown,omitempty"`
	Published    *bool    `json:"published,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Series       string   `json:"series,omitempty"`
	CanonicalURL string   `json:"canonical_url,omitempty"`
	Description  string   `json:"description,omitempty"`
	MainImage    string   `json:"main_image,omitempty"`
}

type devToResponse struct {
	ID          int        `json:"id"`
	URL         string     `json:"url"`
	Published   bool       `json:"published"`
	PublishedAt *time.Time `json:"published_at"`
	EditedAt    *time.Time `json:"edited_at"`
}

func (d *DevTo) Publish(ctx context.Context, p *content.Platform, cfg platform.Config) content.Result {
	ctx, cancel := cfg.WithTimeout(ctx)
	defer cancel()

	started := time.Now()

	var out devToResponse
	err := d.client.Do(ctx, platform.Request{
		Method: http.MethodPost,
		URL:    d.baseURL(cfg) + "/articles",
		Header: d.header(cfg),
		Body:   map[string]devToArticle{"article": d.article(p)},
	}, &out)
	if err != nil {
		return platform.Failed(err, p, started)
	}

	return platform.Published(strconv.Itoa(out.ID), out.URL, p, started)
}

func (d *DevTo) Update(ctx context.Context, id string, p *content.Platform, cfg platform.Config) content.Result {
	ctx, cancel := cfg.WithTimeout(ctx)
	defer cancel()

	started := time.Now()

	var out devToResponse
	err := d.client.Do(ctx, platform.Request{
		Method: http.MethodPut,
		URL:    d.baseURL(cfg) + "/articles/" + id,
		Header: d.header(cfg),
		Body:   map[string]devToArticle{"article": d.article(p)},
	}, &out)
	if err != nil {
		return platform.Failed(err, p, started)
	}

	return platform.Published(strconv.Itoa(out.ID), out.URL, p, started)
}

// Delete unpublishes the article. The article stays in the author's
// dashboard as a draft.
func (d *DevTo) Delete(ctx context.Context, id string, cfg platform.Config) (bool, error) {
	ctx, cancel := cfg.WithTimeout(ctx)
	defer cancel()

	unpublished := false
	err := d.client.Do(ctx, platform.Request{
		Method: http.MethodPut,
		URL:    d.baseURL(cfg) + "/articles/" + id,
		Header: d.header(cfg),
		Body:   map[string]devToArticle{"article": {Published: &unpublished}},
	}, nil)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *DevTo) Status(ctx context.Context, id string, cfg platform.Config) (platform.PublishStatus, error) {
	ctx, cancel := cfg.WithTimeout(ctx)
	defer cancel()

	var out devToResponse
	err := d.client.Do(ctx, platform.Request{
		Method: http.MethodGet,
		URL:    d.baseURL(cfg) + "/articles/" + id,
		Header: d.header(cfg),
	}, &out)
	if err != nil {
		// Unpublished articles are not visible on the public endpoint.
		if isNotFound(err) {
			return platform.PublishStatus{ExternalID: id, State: platform.RemoteDraft}, nil
		}
		return platform.PublishStatus{}, err
	}

	status := platform.PublishStatus{ExternalID: id, URL: out.URL, State: platform.RemoteDraft, UpdatedAt: out.EditedAt}
	if out.PublishedAt != nil {
		status.State = platform.RemotePublished
		if status.UpdatedAt == nil {
			status.UpdatedAt = out.PublishedAt
		}
	}
	return status, nil
}

func (d *DevTo) article(p *content.Platform) devToArticle {
	published := p.Settings.Status != content.StateDraft
	return devToArticle{
		Title:        p.Title,
		BodyMarkdown: p.Body,
		Published:    &published,
		Tags:         p.Tags,
		Series:       p.FieldString("series"),
		CanonicalURL: p.FieldString("canonical_url"),
		Description:  p.FieldString("description"),
		MainImage:    p.FieldString("main_image"),
	}
}

func (d *DevTo) baseURL(cfg platform.Config) string {
	if cfg.BaseURL != "" {
		return strings.TrimRight(cfg.BaseURL, "/")
	}
	return devToBaseURL
}

func (d *DevTo) header(cfg platform.Config) http.Header {
	return http.Header{
		"Api-Key": {cfg.Credentials},
		"Accept":  {"application/vnd.forem.api-v1+json"},
	}
}

// devToTags keeps only lowercase letters and digits, as DEV requires.
func devToTags(tags []string) ([]string, bool) {
	changed := false
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))

	for _, t := range tags {
		var b strings.Builder
		for _, r := range strings.ToLower(t) {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(r)
			}
		}
		norm := b.String()
		if norm != t {
			changed = true
		}
		if norm == "" {
			continue
		}
		if _, dup := seen[norm]; dup {
			changed = true
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out, changed
}

func canonicalURL(c *content.Universal, project platform.ProjectContext) string {
	if project.SiteURL == "" || c.Slug == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s", strings.TrimRight(project.SiteURL, "/"), strings.TrimLeft(c.Slug, "/"))
}
