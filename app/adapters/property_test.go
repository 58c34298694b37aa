package adapters

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/crosspost/app/content"
	"github.com/lysyi3m/crosspost/app/platform"
)

var sampleWords = []string{"go", "service", "channel", "queue", "webflow", "deploy", "handler", "über", "писать", "latency"}

func randomText(r *rand.Rand, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = sampleWords[r.IntN(len(sampleWords))]
	}
	return strings.Join(parts, " ")
}

func randomContent(r *rand.Rand) *content.Universal {
	c := &content.Universal{
		Title:      randomText(r, 1+r.IntN(60)),
		Excerpt:    randomText(r, r.IntN(80)),
		BodyFormat: content.FormatMarkdown,
	}

	var blocks []string
	for i := 0; i < 1+r.IntN(400); i++ {
		blocks = append(blocks, randomText(r, 5+r.IntN(60)))
	}
	c.Body = strings.Join(blocks, "\n\n")
	if r.IntN(2) == 0 {
		c.Body = content.MarkdownToHTML(c.Body)
		c.BodyFormat = content.FormatHTML
	}

	for i := 0; i < r.IntN(30); i++ {
		c.Tags = append(c.Tags, randomText(r, 1+r.IntN(5)))
	}
	if r.IntN(2) == 0 {
		c.FeaturedImage = &content.Image{URL: "https://img.example.com/cover.png", Alt: "cover"}
	}
	for i := 0; i < r.IntN(80); i++ {
		c.Images = append(c.Images, content.Image{URL: fmt.Sprintf("https://img.example.com/%d.png", i), Position: i})
	}
	for i := 0; i < r.IntN(5); i++ {
		c.InternalLinks = append(c.InternalLinks, content.LinkOpportunity{
			AnchorText: randomText(r, 2),
			Target:     fmt.Sprintf("/posts/%d", i),
			Relevance:  r.Float64(),
		})
	}
	return c
}

func allAdapters() []platform.Adapter {
	return []platform.Adapter{
		NewWebflow(testClient(WebflowName)),
		NewWordPress(testClient(WordPressName)),
		NewMedium(testClient(MediumName)),
		NewDevTo(testClient(DevToName)),
	}
}

func within(n, limit int) bool {
	return limit == platform.Unbounded || n <= limit
}

func TestTransformRespectsCapabilities(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 42))

	for i := 0; i < 200; i++ {
		c := randomContent(r)

		for _, a := range allAdapters() {
			caps := a.Capabilities()
			res := a.Transform(c, platform.TransformOptions{InsertLinks: true})
			require.True(t, res.Success, "%s: %+v", a.Name(), res.Errors)

			p := res.Content
			assert.True(t, within(utf8.RuneCountInString(p.Title), caps.MaxTitleLength), "%s title", a.Name())
			assert.True(t, within(utf8.RuneCountInString(p.Excerpt), caps.MaxExcerptLength), "%s excerpt", a.Name())
			assert.True(t, within(len(p.Tags), caps.MaxTagsCount), "%s tags", a.Name())
			assert.True(t, within(len(p.Images), caps.MaxImagesCount), "%s images", a.Name())
			assert.True(t, within(utf8.RuneCountInString(p.Body), caps.MaxContentLength), "%s body", a.Name())
			assert.True(t, caps.Accepts(p.Format), "%s format %s", a.Name(), p.Format)

			if !caps.SupportsTags {
				assert.Empty(t, p.Tags)
			}
			if !caps.SupportsFeaturedImage {
				assert.Nil(t, p.FeaturedImage(), a.Name())
			}
			if a.Name() == MediumName {
				for _, tag := range p.Tags {
					assert.LessOrEqual(t, utf8.RuneCountInString(tag), mediumMaxTagLen)
				}
			}
		}
	}
}

func TestBacklinksNeverInventTargets(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 9))
	project := platform.ProjectContext{SiteURL: "https://blog.example.com"}

	for i := 0; i < 50; i++ {
		c := randomContent(r)
		known := map[string]bool{}
		for _, o := range c.InternalLinks {
			known["https://blog.example.com"+o.Target] = true
		}

		for _, a := range allAdapters() {
			s := a.GenerateBacklinks(c, project)
			assert.Equal(t, len(c.InternalLinks), len(s.Internal)+len(s.Restricted), a.Name())

			for _, l := range s.Internal {
				assert.True(t, known[l.URL], "%s proposed %s", a.Name(), l.URL)
			}
			if !a.Capabilities().SupportsInternalLinks {
				assert.Empty(t, s.Internal, a.Name())
				for _, rl := range s.Restricted {
					assert.NotEmpty(t, rl.Reason)
				}
			}
		}
	}
}
