package adapters

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"

	"github.com/lysyi3m/crosspost/app/content"
	"github.com/lysyi3m/crosspost/app/platform"
)

const (
	MediumName       = "medium"
	mediumBaseURL    = "https://api.medium.com/v1"
	mediumFeedURL    = "https://medium.com/feed"
	mediumMaxTagLen  = 25
	mediumLicense    = "all-rights-reserved"
	mediumFeedFormat = "%s/@%s"
)

var mediumCapabilities = platform.Capabilities{
	Name:                    MediumName,
	SupportsInternalLinks:   false,
	SupportsCustomSlugs:     false,
	SupportsScheduling:      false,
	SupportsMetaDescription: false,
	SupportsTags:            true,
	SupportsCategories:      false,
	SupportsFeaturedImage:   false,
	SupportsImageGalleries:  false,
	SupportsMarkdown:        true,
	SupportsHTML:            true,
	SupportsCanonicalURL:    true,
	SupportsDrafts:          true,
	SupportsDeletion:        false,
	SupportsUpdates:         false,
	MaxTitleLength:          100,
	MaxExcerptLength:        140,
	MaxTagsCount:            5,
	MaxImagesCount:          50,
	MaxContentLength:        100000,
}

// Medium publishes stories through the v1 API with an integration token.
//
// Fields:
//   - content_format: "markdown" or "html", follows the body
//   - canonical_url: original location of the story
//   - license: Medium license identifier
//   - notify_followers: whether followers are notified
//
// The API cannot update or delete stories, and has no status endpoint;
// Status reads the author's public RSS feed instead.
type Medium struct {
	platform.Base
	client *platform.Client
	feeds  *gofeed.Parser
}

func NewMedium(client *platform.Client) *Medium {
	feeds := gofeed.NewParser()
	feeds.Client = client.HTTPClient()
	feeds.UserAgent = client.UserAgent()

	return &Medium{
		Base: platform.Base{
			Caps: mediumCapabilities,
			Rules: content.LinkRules{
				MaxInternal:       platform.Unbounded,
				MaxExternal:       10,
				MinAnchorLength:   2,
				MaxAnchorLength:   100,
				MaxKeywordDensity: 0.5,
			},
		},
		client: client,
		feeds:  feeds,
	}
}

func (m *Medium) Transform(c *content.Universal, opts platform.TransformOptions) platform.TransformResult {
	p, res := m.Adapt(c, opts)
	if p == nil {
		return res
	}

	tags := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		if utf8.RuneCountInString(t) > mediumMaxTagLen {
			res.Warnings = append(res.Warnings, platform.Issue{
				Field:   "tags",
				Kind:    content.KindPlatformLimitation,
				Message: fmt.Sprintf("tag %q exceeds %d characters, dropped", t, mediumMaxTagLen),
			})
			continue
		}
		tags = append(tags, t)
	}
	p.Tags = tags

	p.Fields["content_format"] = string(p.Format)
	p.Fields["license"] = mediumLicense
	p.Fields["notify_followers"] = false
	if canonical := canonicalURL(c, opts.Project); canonical != "" {
		p.Fields["canonical_url"] = canonical
	}

	res.Content = p
	return res
}

func (m *Medium) Reverse(p *content.Platform) *content.Universal {
	return m.ReverseCommon(p)
}

func (m *Medium) GenerateBacklinks(c *content.Universal, project platform.ProjectContext) content.LinkStrategy {
	return m.PlanLinks(c, project)
}

type mediumUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type mediumPost struct {
	Title           string   `json:"title"`
	ContentFormat   string   `json:"contentFormat"`
	Content         string   `json:"content"`
	Tags            []string `json:"tags,omitempty"`
	CanonicalURL    string   `json:"canonicalUrl,omitempty"`
	PublishStatus   string   `json:"publishStatus"`
	License         string   `json:"license,omitempty"`
	NotifyFollowers bool     `json:"notifyFollowers"`
}

type mediumPostResponse struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PublishStatus string `json:"publishStatus"`
}

func (m *Medium) Publish(ctx context.Context, p *content.Platform, cfg platform.Config) content.Result {
	ctx, cancel := cfg.WithTimeout(ctx)
	defer cancel()

	started := time.Now()

	user, err := m.me(ctx, cfg)
	if err != nil {
		return platform.Failed(err, p, started)
	}

	status := "public"
	switch {
	case p.Settings.Status == content.StateDraft:
		status = "draft"
	case p.Settings.Visibility == content.VisibilityUnlisted, p.Settings.Visibility == content.VisibilityPrivate:
		status = "unlisted"
	}

	notify, _ := p.Fields["notify_followers"].(bool)
	post := mediumPost{
		Title:           p.Title,
		ContentFormat:   string(p.Format),
		Content:         p.Body,
		Tags:            p.Tags,
		CanonicalURL:    p.FieldString("canonical_url"),
		PublishStatus:   status,
		License:         p.FieldString("license"),
		NotifyFollowers: notify,
	}

	var out struct {
		Data mediumPostResponse `json:"data"`
	}
	err = m.client.Do(ctx, platform.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/users/%s/posts", m.baseURL(cfg), user.ID),
		Header: bearer(cfg),
		Body:   post,
	}, &out)
	if err != nil {
		return platform.Failed(err, p, started)
	}

	return platform.Published(out.Data.ID, out.Data.URL, p, started)
}

// Update is not available on Medium.
func (m *Medium) Update(_ context.Context, _ string, p *content.Platform, _ platform.Config) content.Result {
	err := content.Fatal(MediumName, "unsupported_operation",
		fmt.Errorf("medium does not allow editing stories through the API: %w", content.ErrUnsupported),
		"edit the story on medium.com",
		"publish a new story and unlist the old one")
	return platform.Failed(err, p, time.Now())
}

// Delete is not available on Medium; stories must be removed on medium.com.
func (m *Medium) Delete(context.Context, string, platform.Config) (bool, error) {
	return false, content.Fatal(MediumName, "unsupported_operation",
		fmt.Errorf("medium does not allow deleting stories through the API: %w", content.ErrUnsupported),
		"delete or unlist the story on medium.com")
}

// Status looks the story up in the author's public feed. Drafts, unlisted
// stories and stories not yet indexed report RemoteUnknown.
func (m *Medium) Status(ctx context.Context, id string, cfg platform.Config) (platform.PublishStatus, error) {
	ctx, cancel := cfg.WithTimeout(ctx)
	defer cancel()

	username := strings.TrimPrefix(cfg.Option("username"), "@")
	if username == "" {
		user, err := m.me(ctx, cfg)
		if err != nil {
			return platform.PublishStatus{}, err
		}
		username = user.Username
	}

	feedURL := cfg.Option("feed_url")
	if feedURL == "" {
		feedURL = mediumFeedURL
	}

	feed, err := m.feeds.ParseURLWithContext(fmt.Sprintf(mediumFeedFormat, strings.TrimRight(feedURL, "/"), username), ctx)
	if err != nil {
		return platform.PublishStatus{}, content.Recoverable(MediumName, "feed_unavailable", fmt.Errorf("failed to read feed: %w", err))
	}

	for _, item := range feed.Items {
		if !strings.HasSuffix(item.GUID, "/"+id) && !strings.Contains(item.Link, id) {
			continue
		}
		status := platform.PublishStatus{ExternalID: id, State: platform.RemotePublished, URL: item.Link}
		if item.UpdatedParsed != nil {
			status.UpdatedAt = item.UpdatedParsed
		} else {
			status.UpdatedAt = item.PublishedParsed
		}
		return status, nil
	}

	return platform.PublishStatus{ExternalID: id, State: platform.RemoteUnknown}, nil
}

func (m *Medium) me(ctx context.Context, cfg platform.Config) (mediumUser, error) {
	var out struct {
		Data mediumUser `json:"data"`
	}
	err := m.client.Do(ctx, platform.Request{
		Method: http.MethodGet,
		URL:    m.baseURL(cfg) + "/me",
		Header: bearer(cfg),
	}, &out)
	return out.Data, err
}

func (m *Medium) baseURL(cfg platform.Config) string {
	if cfg.BaseURL != "" {
		return strings.TrimRight(cfg.BaseURL, "/")
	}
	return mediumBaseURL
}
