package platform

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lysyi3m/crosspost/app/content"
)

const (
	defaultExcerptLength = 160
	maxMetaDescription   = 160
	maxSlugLength        = 200
)

// LocalScheduleAlternative is offered whenever a platform cannot schedule
// natively and the queue holds the job instead.
const LocalScheduleAlternative = "queued locally and published at the scheduled time"

// Base carries the behaviour shared by every adapter. Concrete adapters embed
// it, supply the capability table and link rules, and add their quirks on
// top of Adapt.
type Base struct {
	Caps  Capabilities
	Rules content.LinkRules
}

func (b *Base) Name() string {
	return b.Caps.Name
}

func (b *Base) Capabilities() Capabilities {
	return b.Caps
}

// Adapt applies the capability table to c. The returned platform content
// respects every limit of the table; whatever had to be cut is reported in
// the warnings. A nil content is returned together with hard errors.
func (b *Base) Adapt(c *content.Universal, opts TransformOptions) (*content.Platform, TransformResult) {
	var res TransformResult

	if c == nil {
		res.fail(Issue{Field: "content", Message: "content is required"})
		return nil, res
	}
	if strings.TrimSpace(c.Title) == "" {
		res.fail(Issue{Field: "title", Message: "title is required", Suggestion: "add a title"})
	}
	if strings.TrimSpace(c.Body) == "" {
		res.fail(Issue{Field: "body", Message: "body is required", Suggestion: "add body content"})
	}
	if len(res.Errors) > 0 {
		return nil, res
	}

	p := &content.Platform{Fields: make(map[string]any)}

	b.adaptTitle(c, p, &res)
	b.adaptBody(c, p, opts, &res)
	b.adaptExcerpt(c, p, &res)
	b.adaptTags(c, p, &res)
	b.adaptImages(c, p, &res)
	b.adaptSEO(c, p, &res)
	b.adaptSettings(c, p, opts, &res)

	res.Success = res.HardErrors() == 0
	res.Content = p
	return p, res
}

func (b *Base) adaptTitle(c *content.Universal, p *content.Platform, res *TransformResult) {
	title := content.NormalizeWhitespace(c.Title)
	if cut, truncated := content.TruncateWords(title, b.Caps.MaxTitleLength); truncated {
		res.warn(limitWarning("title", b.Caps.MaxTitleLength, "characters", true))
		title = cut
	}
	p.Title = title
}

func (b *Base) adaptBody(c *content.Universal, p *content.Platform, opts TransformOptions, res *TransformResult) {
	body := c.Body
	format := c.Format()

	if !b.Caps.Accepts(format) {
		target := b.Caps.PreferredFormat()
		body = convert(body, format, target)
		res.warn(Issue{
			Field:   "body",
			Kind:    content.KindTransformation,
			Message: fmt.Sprintf("body converted from %s to %s", format, target),
		})
		format = target
	}
	if format == content.FormatHTML {
		body = content.Sanitize(body)
	}

	if opts.InsertLinks {
		strategy := b.PlanLinks(c, opts.Project)
		body = insertLinks(body, format, strategy)
		for _, r := range strategy.Restricted {
			res.warn(Issue{
				Field:      "links",
				Kind:       content.KindPlatformLimitation,
				Message:    fmt.Sprintf("link %q restricted: %s", r.AnchorText, r.Reason),
				Suggestion: firstOr(r.Alternatives, ""),
				SEO:        true,
			})
		}
	}

	if limited, truncated := LimitBody(body, format, b.Caps.MaxContentLength); truncated {
		res.fail(Issue{
			Field:    "body",
			Kind:     content.KindTransformation,
			Severity: SeverityMinor,
			Message:  fmt.Sprintf("body exceeds %d characters, truncated", b.Caps.MaxContentLength),
		})
		body = limited
	}

	p.Body = body
	p.Format = format
	p.Links = extractLinks(body, format, opts.Project.SiteURL)

	if format == content.FormatMarkdown {
		for _, l := range p.Links {
			if len(l.Rel) > 0 {
				res.warn(Issue{
					Field:   "links",
					Kind:    content.KindPlatformLimitation,
					Message: "rel attributes cannot be expressed in markdown bodies",
					SEO:     true,
				})
				break
			}
		}
	}
}

func (b *Base) adaptExcerpt(c *content.Universal, p *content.Platform, res *TransformResult) {
	excerpt := content.NormalizeWhitespace(c.Excerpt)
	explicit := excerpt != ""
	if !explicit {
		excerpt = content.NormalizeWhitespace(c.MetaDescription)
	}
	if excerpt == "" {
		plain := p.Body
		if p.Format == content.FormatHTML {
			plain = content.PlainText(plain)
		} else {
			plain = content.PlainText(content.MarkdownToHTML(plain))
		}
		excerpt, _ = content.TruncateWords(plain, defaultExcerptLength)
	}

	if cut, truncated := content.TruncateWords(excerpt, b.Caps.MaxExcerptLength); truncated {
		if explicit {
			res.warn(limitWarning("excerpt", b.Caps.MaxExcerptLength, "characters", false))
		}
		excerpt = cut
	}
	p.Excerpt = excerpt
}

func (b *Base) adaptTags(c *content.Universal, p *content.Platform, res *TransformResult) {
	if len(c.Categories) > 0 && !b.Caps.SupportsCategories {
		res.warn(unsupportedWarning("categories", b.Caps.Name))
	}

	tags := DedupeTags(c.Tags)
	if !b.Caps.SupportsTags {
		if len(tags) > 0 {
			res.warn(unsupportedWarning("tags", b.Caps.Name))
		}
		return
	}
	if exceeds(len(tags), b.Caps.MaxTagsCount) {
		res.warn(Issue{
			Field:   "tags",
			Message: fmt.Sprintf("tags exceed the limit of %d, dropped %d", b.Caps.MaxTagsCount, len(tags)-b.Caps.MaxTagsCount),
		})
		tags = tags[:b.Caps.MaxTagsCount]
	}
	p.Tags = tags
}

func (b *Base) adaptImages(c *content.Universal, p *content.Platform, res *TransformResult) {
	var images []content.PlatformImage

	if c.FeaturedImage != nil && c.FeaturedImage.URL != "" {
		role := content.RoleFeatured
		if !b.Caps.SupportsFeaturedImage {
			res.warn(Issue{
				Field:   "featured_image",
				Kind:    content.KindPlatformLimitation,
				Message: fmt.Sprintf("%s does not support featured images, kept as the first inline image", b.Caps.Name),
			})
			role = content.RoleInline
		}
		images = append(images, content.PlatformImage{
			URL:     c.FeaturedImage.URL,
			Alt:     c.FeaturedImage.Alt,
			Caption: c.FeaturedImage.Caption,
			Role:    role,
		})
	}
	for _, img := range c.Images {
		if img.URL == "" {
			continue
		}
		images = append(images, content.PlatformImage{
			URL:      img.URL,
			Alt:      img.Alt,
			Caption:  img.Caption,
			Role:     content.RoleInline,
			Position: img.Position,
		})
	}

	if exceeds(len(images), b.Caps.MaxImagesCount) {
		res.warn(Issue{
			Field:   "images",
			Message: fmt.Sprintf("images exceed the limit of %d, dropped %d", b.Caps.MaxImagesCount, len(images)-b.Caps.MaxImagesCount),
		})
		images = images[:b.Caps.MaxImagesCount]
	}

	for i, img := range images {
		if strings.TrimSpace(img.Alt) == "" {
			res.warn(Issue{
				Field:      fmt.Sprintf("images[%d].alt", i),
				Message:    "image has no alt text",
				SEO:        true,
				Suggestion: "describe the image in its alt text",
			})
		}
	}

	p.Images = images
}

func (b *Base) adaptSEO(c *content.Universal, p *content.Platform, res *TransformResult) {
	meta := content.NormalizeWhitespace(c.MetaDescription)
	switch {
	case b.Caps.SupportsMetaDescription && meta == "":
		res.warn(Issue{
			Field:      "meta_description",
			Message:    "meta description is missing",
			SEO:        true,
			Suggestion: "add a meta description of up to 160 characters",
		})
	case b.Caps.SupportsMetaDescription:
		if cut, truncated := content.TruncateWords(meta, maxMetaDescription); truncated {
			res.warn(limitWarning("meta_description", maxMetaDescription, "characters", true))
			meta = cut
		}
		p.Fields["meta_description"] = meta
	case meta != "":
		res.warn(Issue{
			Field:   "meta_description",
			Kind:    content.KindPlatformLimitation,
			Message: fmt.Sprintf("%s does not support meta descriptions, dropped", b.Caps.Name),
			SEO:     true,
		})
	}

	switch {
	case b.Caps.SupportsCustomSlugs:
		slug := content.Slugify(c.Slug)
		if slug == "" {
			slug = content.Slugify(p.Title)
		}
		p.Fields["slug"] = content.SlugifyLimit(slug, maxSlugLength)
	case c.Slug != "":
		res.warn(Issue{
			Field:   "slug",
			Kind:    content.KindPlatformLimitation,
			Message: fmt.Sprintf("%s generates its own slugs, custom slug dropped", b.Caps.Name),
			SEO:     true,
		})
	}
}

func (b *Base) adaptSettings(c *content.Universal, p *content.Platform, opts TransformOptions, res *TransformResult) {
	p.Settings = content.Settings{
		Status:     content.StatePublished,
		Author:     c.Author,
		Visibility: content.VisibilityPublic,
	}

	at := opts.ScheduledFor
	if at == nil {
		at = c.PublishAt
	}
	if at == nil || !at.After(opts.now()) {
		return
	}

	when := at.UTC()
	p.Settings.ScheduledAt = &when
	if b.Caps.SupportsScheduling {
		p.Settings.Status = content.StateScheduled
		return
	}

	res.warn(Issue{
		Field:      "publish_at",
		Kind:       content.KindPlatformLimitation,
		Message:    fmt.Sprintf("%s does not support scheduled publishing", b.Caps.Name),
		Suggestion: LocalScheduleAlternative,
	})
}

// PlanLinks selects which link opportunities of c are placed on the platform.
// Nothing outside c.InternalLinks and c.ExternalLinks is ever proposed.
func (b *Base) PlanLinks(c *content.Universal, project ProjectContext) content.LinkStrategy {
	rules := b.Rules
	rules.ForbiddenDomains = append(append([]string{}, b.Rules.ForbiddenDomains...), project.ForbiddenDomains...)

	s := content.LinkStrategy{
		Internal:   []content.PlatformLink{},
		External:   []content.PlatformLink{},
		Restricted: []content.RestrictedLink{},
		Rules:      rules,
	}
	if c == nil {
		return s
	}

	internal := append([]content.LinkOpportunity{}, c.InternalLinks...)
	sort.SliceStable(internal, func(i, j int) bool {
		return internal[i].Relevance > internal[j].Relevance
	})

	for _, o := range internal {
		target := resolveTarget(o.Target, project.SiteURL)
		restrict := func(reason string, alternatives ...string) {
			s.Restricted = append(s.Restricted, content.RestrictedLink{
				AnchorText:   o.AnchorText,
				Target:       target,
				Kind:         content.LinkInternal,
				Reason:       reason,
				Alternatives: alternatives,
			})
		}

		if !b.Caps.SupportsInternalLinks {
			restrict(fmt.Sprintf("%s does not support internal links", b.Caps.Name),
				"mention the original article in the author bio",
				"add an \"originally published at\" note with the canonical URL")
			continue
		}
		if reason, alt, ok := checkLink(o.AnchorText, target, c.Keywords, rules); !ok {
			restrict(reason, alt)
			continue
		}
		if rules.MaxInternal != Unbounded && len(s.Internal) >= rules.MaxInternal {
			restrict(fmt.Sprintf("internal link limit of %d reached", rules.MaxInternal),
				"move the link to a related reading section")
			continue
		}
		s.Internal = append(s.Internal, content.PlatformLink{URL: target, AnchorText: o.AnchorText, Kind: content.LinkInternal})
	}

	for _, e := range c.ExternalLinks {
		restrict := func(reason string, alternatives ...string) {
			s.Restricted = append(s.Restricted, content.RestrictedLink{
				AnchorText:   e.AnchorText,
				Target:       e.URL,
				Kind:         content.LinkExternal,
				Reason:       reason,
				Alternatives: alternatives,
			})
		}

		if reason, alt, ok := checkLink(e.AnchorText, e.URL, c.Keywords, rules); !ok {
			restrict(reason, alt)
			continue
		}
		if rules.MaxExternal != Unbounded && len(s.External) >= rules.MaxExternal {
			restrict(fmt.Sprintf("external link limit of %d reached", rules.MaxExternal),
				"cite the source in plain text")
			continue
		}
		s.External = append(s.External, content.PlatformLink{
			URL:        e.URL,
			AnchorText: e.AnchorText,
			Kind:       content.LinkExternal,
			Rel:        externalRel(e),
		})
	}

	return s
}

func checkLink(anchor, target string, keywords []string, rules content.LinkRules) (string, string, bool) {
	n := utf8.RuneCountInString(strings.TrimSpace(anchor))
	if n == 0 || (rules.MinAnchorLength > 0 && n < rules.MinAnchorLength) {
		return fmt.Sprintf("anchor text shorter than %d characters", rules.MinAnchorLength),
			"use a more descriptive anchor text", false
	}
	if rules.MaxAnchorLength > 0 && n > rules.MaxAnchorLength {
		return fmt.Sprintf("anchor text longer than %d characters", rules.MaxAnchorLength),
			"shorten the anchor text", false
	}
	if host := hostOf(target); host != "" {
		for _, d := range rules.ForbiddenDomains {
			d = strings.ToLower(strings.TrimPrefix(d, "www."))
			if host == d || strings.HasSuffix(host, "."+d) {
				return fmt.Sprintf("domain %s is not allowed", d), "link to an allowed source instead", false
			}
		}
	}
	if rules.MaxKeywordDensity > 0 && content.KeywordDensity(anchor, keywords) > rules.MaxKeywordDensity {
		return "anchor text is over-optimised for keywords", "use a natural phrase as anchor text", false
	}
	return "", "", true
}

func externalRel(e content.ExternalLink) []string {
	switch {
	case e.Sponsored:
		return []string{"sponsored", "nofollow"}
	case e.NoFollow || e.Trust == content.TrustLow:
		return []string{"nofollow"}
	}
	return nil
}

func hostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
}

func resolveTarget(target, siteURL string) string {
	if siteURL == "" {
		return target
	}
	base, err := url.Parse(siteURL)
	if err != nil {
		return target
	}
	ref, err := url.Parse(target)
	if err != nil || ref.IsAbs() {
		return target
	}
	return base.ResolveReference(ref).String()
}

func insertLinks(body string, format content.BodyFormat, s content.LinkStrategy) string {
	links := append(append([]content.PlatformLink{}, s.Internal...), s.External...)
	for _, l := range links {
		if format == content.FormatHTML {
			body, _ = content.LinkifyHTML(body, l.AnchorText, l.URL, l.Rel)
		} else {
			body, _ = content.LinkifyMarkdown(body, l.AnchorText, l.URL)
		}
	}
	return body
}

func extractLinks(body string, format content.BodyFormat, siteURL string) []content.PlatformLink {
	if format == content.FormatMarkdown {
		body = content.MarkdownToHTML(body)
	}
	return content.ExtractLinks(body, hostOf(siteURL))
}

func convert(body string, from, to content.BodyFormat) string {
	switch {
	case from == to:
		return body
	case to == content.FormatHTML:
		return content.MarkdownToHTML(body)
	default:
		return content.HTMLToMarkdown(body)
	}
}

// LimitBody cuts body to at most limit characters, dropping whole blocks
// from the end and word-truncating the last block only when the first block
// alone is too long.
func LimitBody(body string, format content.BodyFormat, limit int) (string, bool) {
	if !exceeds(utf8.RuneCountInString(body), limit) {
		return body, false
	}

	sep := "\n\n"
	if format == content.FormatHTML {
		sep = "\n"
	}

	var kept []string
	size := 0
	for _, block := range strings.Split(body, sep) {
		n := utf8.RuneCountInString(block)
		if len(kept) > 0 {
			n += len(sep)
		}
		if size+n > limit {
			break
		}
		kept = append(kept, block)
		size += n
	}

	if len(kept) == 0 {
		if format == content.FormatHTML {
			cut, _ := content.TruncateWords(content.PlainText(body), limit-len("<p></p>"))
			return "<p>" + cut + "</p>", true
		}
		cut, _ := content.TruncateWords(body, limit)
		return cut, true
	}
	return strings.Join(kept, sep), true
}

// DedupeTags trims tags and drops empty and case-insensitive duplicates,
// keeping the first spelling.
func DedupeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = content.NormalizeWhitespace(t)
		key := strings.ToLower(t)
		if t == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ReverseCommon rebuilds the shared part of a canonical record from platform
// content.
func (b *Base) ReverseCommon(p *content.Platform) *content.Universal {
	if p == nil {
		return nil
	}

	u := &content.Universal{
		Title:      p.Title,
		Body:       p.Body,
		BodyFormat: p.Format,
		Excerpt:    p.Excerpt,
		Tags:       append([]string(nil), p.Tags...),
		Author:     p.Settings.Author,
		Slug:       p.FieldString("slug"),
	}
	u.MetaDescription = p.FieldString("meta_description")

	if p.Settings.ScheduledAt != nil {
		at := *p.Settings.ScheduledAt
		u.PublishAt = &at
	}

	for _, img := range p.Images {
		if img.Role == content.RoleFeatured && u.FeaturedImage == nil {
			u.FeaturedImage = &content.Image{URL: img.URL, Alt: img.Alt, Caption: img.Caption}
			continue
		}
		u.Images = append(u.Images, content.Image{URL: img.URL, Alt: img.Alt, Caption: img.Caption, Position: img.Position})
	}

	for _, l := range p.Links {
		if l.Kind == content.LinkInternal {
			u.InternalLinks = append(u.InternalLinks, content.LinkOpportunity{AnchorText: l.AnchorText, Target: l.URL})
			continue
		}
		ext := content.ExternalLink{URL: l.URL, AnchorText: l.AnchorText}
		for _, r := range l.Rel {
			switch r {
			case "nofollow":
				ext.NoFollow = true
			case "sponsored":
				ext.Sponsored = true
			}
		}
		u.ExternalLinks = append(u.ExternalLinks, ext)
	}

	u.ReadingTime = content.ComputeReadingTime(content.WordCount(u.Body, u.Format()))
	return u
}

// Metadata describes what was sent to the platform.
func Metadata(p *content.Platform, started time.Time) content.ResultMetadata {
	md := content.ResultMetadata{ProcessingTime: time.Since(started)}
	if p != nil {
		md.WordCount = content.WordCount(p.Body, p.Format)
		md.ImageCount = len(p.Images)
		md.LinkCount = len(p.Links)
	}
	return md
}

// Published builds a successful result.
func Published(id, link string, p *content.Platform, started time.Time) content.Result {
	return content.Result{
		Success:    true,
		ExternalID: id,
		URL:        link,
		Metadata:   Metadata(p, started),
	}
}

// Failed builds a failed result from err.
func Failed(err error, p *content.Platform, started time.Time) content.Result {
	res := content.Failure(err)
	res.Metadata = Metadata(p, started)
	return res
}

func limitWarning(field string, limit int, unit string, seo bool) Issue {
	return Issue{
		Field:   field,
		Message: fmt.Sprintf("%s exceeds %d %s, truncated", field, limit, unit),
		SEO:     seo,
	}
}

func unsupportedWarning(field, platform string) Issue {
	return Issue{
		Field:   field,
		Kind:    content.KindPlatformLimitation,
		Message: fmt.Sprintf("%s does not support %s, dropped", platform, field),
	}
}

func firstOr(s []string, def string) string {
	if len(s) == 0 {
		return def
	}
	return s[0]
}
