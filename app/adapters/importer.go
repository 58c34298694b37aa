package adapters

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"codeberg.org/readeck/go-readability"
	"github.com/PuerkitoBio/goquery"

	"github.com/lysyi3m/crosspost/app/content"
	"github.com/lysyi3m/crosspost/app/platform"
)

const maxImportSize = 10 << 20

// Importer recovers canonical content from an article already published on
// one of the platforms. Readability extracts the article body; the owning
// adapter's Reverse maps it back.
type Importer struct {
	registry  *platform.Registry
	client    *http.Client
	userAgent string
}

func NewImporter(registry *platform.Registry, client *http.Client, userAgent string) *Importer {
	if client == nil {
		client = &http.Client{Timeout: platform.DefaultTimeout}
	}
	if userAgent == "" {
		userAgent = platform.DefaultUserAgent
	}
	return &Importer{registry: registry, client: client, userAgent: userAgent}
}

// Import fetches rawURL and rebuilds its content. An empty platformName is
// guessed from the host.
func (im *Importer) Import(ctx context.Context, rawURL, platformName string) (*content.Universal, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid article URL %q", rawURL)
	}

	if platformName == "" {
		platformName = guessPlatform(u.Host)
	}
	adapter, err := im.registry.Get(platformName)
	if err != nil {
		return nil, err
	}

	data, err := im.fetch(ctx, u)
	if err != nil {
		return nil, err
	}

	p, err := parseArticle(data, u)
	if err != nil {
		return nil, err
	}

	if !adapter.Capabilities().SupportsHTML {
		p.Body = content.HTMLToMarkdown(p.Body)
		p.Format = content.FormatMarkdown
	}

	slog.Info("Article imported", "url", rawURL, "platform", platformName, "title", p.Title)
	return adapter.Reverse(p), nil
}

func (im *Importer) fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", im.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := im.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch article: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch article: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImportSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read article: %w", err)
	}
	return data, nil
}

func parseArticle(data []byte, u *url.URL) (*content.Platform, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse article: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(data), u)
	if err != nil {
		return nil, fmt.Errorf("failed to extract article: %w", err)
	}

	if article.Content == "" {
		return nil, fmt.Errorf("no content extracted from article")
	}

	html := content.Sanitize(strings.TrimSpace(article.Content))
	description := firstNonEmpty(
		metaContent(doc, `meta[name="description"]`),
		metaContent(doc, `meta[property="og:description"]`),
	)

	p := &content.Platform{
		Title: firstNonEmpty(
			metaContent(doc, `meta[property="og:title"]`),
			strings.TrimSpace(doc.Find("title").First().Text()),
			strings.TrimSpace(doc.Find("h1").First().Text()),
		),
		Body:    html,
		Format:  content.FormatHTML,
		Excerpt: description,
		Images:  content.ExtractImages(html),
		Links:   content.ExtractLinks(html, u.Hostname()),
		Fields:  map[string]any{},
		Settings: content.Settings{
			Status: content.StatePublished,
			Author: metaContent(doc, `meta[name="author"]`),
		},
	}
	if description != "" {
		p.Fields["meta_description"] = description
	}
	if canonical, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
		p.Fields["canonical_url"] = canonical
	}

	doc.Find(`meta[property="article:tag"]`).Each(func(_ int, s *goquery.Selection) {
		if tag, ok := s.Attr("content"); ok && tag != "" {
			p.Tags = append(p.Tags, tag)
		}
	})
	if len(p.Tags) == 0 {
		for _, k := range strings.Split(metaContent(doc, `meta[name="keywords"]`), ",") {
			if k = strings.TrimSpace(k); k != "" {
				p.Tags = append(p.Tags, k)
			}
		}
	}

	if img := metaContent(doc, `meta[property="og:image"]`); img != "" {
		p.Images = append([]content.PlatformImage{{URL: img, Role: content.RoleFeatured}}, p.Images...)
	}

	return p, nil
}

func metaContent(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func guessPlatform(host string) string {
	host = strings.ToLower(host)
	switch {
	case host == "medium.com" || strings.HasSuffix(host, ".medium.com"):
		return MediumName
	case host == "dev.to":
		return DevToName
	case strings.HasSuffix(host, ".webflow.io"):
		return WebflowName
	default:
		return WordPressName
	}
}
