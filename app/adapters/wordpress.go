package adapters

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lysyi3m/crosspost/app/content"
	"github.com/lysyi3m/crosspost/app/platform"
)

const (
	WordPressName = "wordpress"
	wpDateLayout  = "2006-01-02T15:04:05"
)

var wordPressCapabilities = platform.Capabilities{
	Name:                    WordPressName,
	SupportsInternalLinks:   true,
	SupportsCustomSlugs:     true,
	SupportsScheduling:      true,
	SupportsMetaDescription: true,
	SupportsTags:            true,
	SupportsCategories:      true,
	SupportsFeaturedImage:   true,
	SupportsImageGalleries:  true,
	SupportsMarkdown:        false,
	SupportsHTML:            true,
	SupportsCanonicalURL:    false,
	SupportsDrafts:          true,
	SupportsDeletion:        true,
	SupportsUpdates:         true,
	MaxTitleLength:          platform.Unbounded,
	MaxExcerptLength:        platform.Unbounded,
	MaxTagsCount:            platform.Unbounded,
	MaxImagesCount:          platform.Unbounded,
	MaxContentLength:        platform.Unbounded,
}

// WordPress publishes posts through the wp/v2 REST API. Credentials are
// "username:application-password"; BaseURL is the site's wp-json/wp/v2 root.
//
// Fields:
//   - slug: post slug
//   - categories: category names, resolved to ids at publish time
//   - meta_description: stored as the post excerpt when no excerpt is set
//   - format: WordPress post format, "standard" by default
//
// Delete moves the post to the trash; it can be restored from wp-admin.
type WordPress struct {
	platform.Base
	client *platform.Client
}

func NewWordPress(client *platform.Client) *WordPress {
	return &WordPress{
		Base: platform.Base{
			Caps: wordPressCapabilities,
			Rules: content.LinkRules{
				MaxInternal:       15,
				MaxExternal:       15,
				MinAnchorLength:   2,
				MaxAnchorLength:   120,
				MaxKeywordDensity: 0.5,
			},
		},
		client: client,
	}
}

func (w *WordPress) Transform(c *content.Universal, opts platform.TransformOptions) platform.TransformResult {
	p, res := w.Adapt(c, opts)
	if p == nil {
		return res
	}

	p.Fields["categories"] = platform.DedupeTags(c.Categories)
	p.Fields["format"] = "standard"

	// Featured media needs an uploaded attachment id; without one the image
	// leads the post body.
	if img := p.FeaturedImage(); img != nil {
		figure := fmt.Sprintf(`<figure><img src="%s" alt="%s"></figure>`, img.URL, htmlAttr(img.Alt))
		p.Body = figure + "\n" + p.Body
	}

	res.Content = p
	return res
}

func (w *WordPress) Reverse(p *content.Platform) *content.Universal {
	if p == nil {
		return nil
	}

	// Drop the leading featured figure added by Transform.
	q := *p
	if p.FeaturedImage() != nil {
		if i := strings.Index(q.Body, "</figure>\n"); i >= 0 && strings.HasPrefix(q.Body, "<figure>") {
			q.Body = q.Body[i+len("</figure>\n"):]
		}
	}

	u := w.ReverseCommon(&q)
	if cats, ok := p.Fields["categories"].([]string); ok {
		u.Categories = append([]string(nil), cats...)
	}
	return u
}

func (w *WordPress) GenerateBacklinks(c *content.Universal, project platform.ProjectContext) content.LinkStrategy {
	return w.PlanLinks(c, project)
}

type wpPost struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	Excerpt    string `json:"excerpt,omitempty"`
	Status     string `json:"status"`
	Slug       string `json:"slug,omitempty"`
	DateGMT    string `json:"date_gmt,omitempty"`
	Format     string `json:"format,omitempty"`
	Tags       []int  `json:"tags,omitempty"`
	Categories []int  `json:"categories,omitempty"`
}

type wpRendered struct {
	Rendered string `json:"rendered"`
}

type wpPostResponse struct {
	ID          int        `json:"id"`
	Link        string     `json:"link"`
	Status      string     `json:"status"`
	ModifiedGMT string     `json:"modified_gmt"`
	Title       wpRendered `json:"title"`
}

type wpTerm struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func (w *WordPress) Publish(ctx context.Context, p *content.Platform, cfg platform.Config) content.Result {
	ctx, cancel := cfg.WithTimeout(ctx)
	defer cancel()

	started := time.Now()

	base, err := w.baseURL(cfg)
	if err != nil {
		return platform.Failed(err, p, started)
	}
	post, err := w.post(ctx, base, p, cfg)
	if err != nil {
		return platform.Failed(err, p, started)
	}

	var out wpPostResponse
	err = w.client.Do(ctx, platform.Request{
		Method: http.MethodPost,
		URL:    base + "/posts",
		Header: w.header(cfg),
		Body:   post,
	}, &out)
	if err != nil {
		return platform.Failed(err, p, started)
	}

	return platform.Published(strconv.Itoa(out.ID), out.Link, p, started)
}

func (w *WordPress) Update(ctx context.Context, id string, p *content.Platform, cfg platform.Config) content.Result {
	ctx, cancel := cfg.WithTimeout(ctx)
	defer cancel()

	started := time.Now()

	base, err := w.baseURL(cfg)
	if err != nil {
		return platform.Failed(err, p, started)
	}
	post, err := w.post(ctx, base, p, cfg)
	if err != nil {
		return platform.Failed(err, p, started)
	}

	var out wpPostResponse
	err = w.client.Do(ctx, platform.Request{
		Method: http.MethodPost,
		URL:    base + "/posts/" + id,
		Header: w.header(cfg),
		Body:   post,
	}, &out)
	if err != nil {
		return platform.Failed(err, p, started)
	}

	return platform.Published(strconv.Itoa(out.ID), out.Link, p, started)
}

// Delete moves the post to the trash.
func (w *WordPress) Delete(ctx context.Context, id string, cfg platform.Config) (bool, error) {
	ctx, cancel := cfg.WithTimeout(ctx)
	defer cancel()

	base, err := w.baseURL(cfg)
	if err != nil {
		return false, err
	}

	err = w.client.Do(ctx, platform.Request{
		Method: http.MethodDelete,
		URL:    base + "/posts/" + id,
		Header: w.header(cfg),
	}, nil)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (w *WordPress) Status(ctx context.Context, id string, cfg platform.Config) (platform.PublishStatus, error) {
	ctx, cancel := cfg.WithTimeout(ctx)
	defer cancel()

	base, err := w.baseURL(cfg)
	if err != nil {
		return platform.PublishStatus{}, err
	}

	var out wpPostResponse
	err = w.client.Do(ctx, platform.Request{
		Method: http.MethodGet,
		URL:    base + "/posts/" + id + "?context=edit",
		Header: w.header(cfg),
	}, &out)
	if err != nil {
		if isNotFound(err) {
			return platform.PublishStatus{ExternalID: id, State: platform.RemoteDeleted}, nil
		}
		return platform.PublishStatus{}, err
	}

	status := platform.PublishStatus{ExternalID: id, URL: out.Link}
	switch out.Status {
	case "publish":
		status.State = platform.RemotePublished
	case "future":
		status.State = platform.RemoteScheduled
	case "draft", "pending", "private":
		status.State = platform.RemoteDraft
	case "trash":
		status.State = platform.RemoteDeleted
	default:
		status.State = platform.RemoteUnknown
	}
	if t, err := time.Parse(wpDateLayout, out.ModifiedGMT); err == nil {
		status.UpdatedAt = &t
	}
	return status, nil
}

func (w *WordPress) post(ctx context.Context, base string, p *content.Platform, cfg platform.Config) (wpPost, error) {
	post := wpPost{
		Title:   p.Title,
		Content: p.Body,
		Excerpt: p.Excerpt,
		Slug:    p.FieldString("slug"),
		Format:  p.FieldString("format"),
		Status:  "publish",
	}
	if post.Excerpt == "" {
		post.Excerpt = p.FieldString("meta_description")
	}

	switch p.Settings.Status {
	case content.StateDraft:
		post.Status = "draft"
	case content.StateScheduled:
		if p.Settings.ScheduledAt != nil {
			post.Status = "future"
			post.DateGMT = p.Settings.ScheduledAt.UTC().Format(wpDateLayout)
		}
	}
	if p.Settings.Visibility == content.VisibilityPrivate {
		post.Status = "private"
	}

	tags, err := w.resolveTerms(ctx, base, cfg, "tags", p.Tags)
	if err != nil {
		return post, err
	}
	post.Tags = tags

	cats, _ := p.Fields["categories"].([]string)
	categories, err := w.resolveTerms(ctx, base, cfg, "categories", cats)
	if err != nil {
		return post, err
	}
	post.Categories = categories

	return post, nil
}

// resolveTerms maps term names to ids, creating the missing ones.
func (w *WordPress) resolveTerms(ctx context.Context, base string, cfg platform.Config, taxonomy string, names []string) ([]int, error) {
	ids := make([]int, 0, len(names))
	for _, name := range names {
		var found []wpTerm
		err := w.client.Do(ctx, platform.Request{
			Method: http.MethodGet,
			URL:    fmt.Sprintf("%s/%s?search=%s", base, taxonomy, url.QueryEscape(name)),
			Header: w.header(cfg),
		}, &found)
		if err != nil {
			return nil, err
		}

		id := 0
		for _, t := range found {
			if strings.EqualFold(t.Name, name) {
				id = t.ID
				break
			}
		}

		if id == 0 {
			var created wpTerm
			err := w.client.Do(ctx, platform.Request{
				Method: http.MethodPost,
				URL:    base + "/" + taxonomy,
				Header: w.header(cfg),
				Body:   map[string]string{"name": name},
			}, &created)
			if err != nil {
				return nil, err
			}
			id = created.ID
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (w *WordPress) baseURL(cfg platform.Config) (string, error) {
	if cfg.BaseURL == "" {
		return "", content.Fatal(WordPressName, "missing_base_url", fmt.Errorf("base_url is required"),
			"set base_url to the site's wp-json/wp/v2 endpoint in the wordpress platform settings")
	}
	return strings.TrimRight(cfg.BaseURL, "/"), nil
}

func (w *WordPress) header(cfg platform.Config) http.Header {
	return http.Header{
		"Authorization": {"Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.Credentials))},
	}
}

func htmlAttr(s string) string {
	return strings.NewReplacer(`"`, "&#34;", "<", "&lt;", ">", "&gt;", "&", "&amp;").Replace(s)
}
