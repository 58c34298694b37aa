package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/crosspost/app/content"
	"github.com/lysyi3m/crosspost/app/platform"
)

const articlePage = `<!DOCTYPE html>
<html>
<head>
  <title>Building services in Go | Sam's blog</title>
  <meta property="og:title" content="Building services in Go">
  <meta name="description" content="How to build services in Go">
  <meta name="author" content="sam">
  <meta property="og:image" content="https://img.example.com/cover.png">
  <meta property="article:tag" content="go">
  <meta property="article:tag" content="backend">
  <link rel="canonical" href="https://blog.example.com/building-services-in-go">
</head>
<body>
  <nav><a href="/">Home</a> <a href="/about">About</a></nav>
  <article>
    <h1>Building services in Go</h1>
    <p>Go makes concurrency simple. Goroutines are cheap to start and the runtime
    multiplexes them onto a small number of operating system threads, so a service
    can afford one goroutine per request without thinking twice about it.</p>
    <p>Channels connect those goroutines. A buffered channel turns into a work queue,
    and a fixed pool of workers reading from it bounds the concurrency of the whole
    service while keeping the code that submits work trivially simple.</p>
    <p>Contexts carry deadlines and cancellation across API boundaries. Every blocking
    call in a well behaved service accepts a context, which lets a graceful shutdown
    drain in-flight work instead of dropping it on the floor.</p>
    <p>Read more about <a href="https://go.dev/doc/effective_go">effective Go</a> to
    learn the idioms that make these pieces fit together in production code.</p>
  </article>
  <footer>Copyright Sam</footer>
</body>
</html>`

func TestImportArticle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "crosspost-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	reg := platform.NewRegistry()
	Register(reg, Options{})

	im := NewImporter(reg, srv.Client(), "crosspost-test")
	u, err := im.Import(context.Background(), srv.URL+"/building-services-in-go", WordPressName)
	require.NoError(t, err)

	assert.Equal(t, "Building services in Go", u.Title)
	assert.Equal(t, content.FormatHTML, u.BodyFormat)
	assert.Contains(t, u.Body, "Channels connect those goroutines")
	assert.Equal(t, []string{"go", "backend"}, u.Tags)
	assert.Equal(t, "How to build services in Go", u.MetaDescription)
	require.NotNil(t, u.FeaturedImage)
	assert.Equal(t, "https://img.example.com/cover.png", u.FeaturedImage.URL)
}

func TestImportConvertsToMarkdownForMarkdownPlatforms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	reg := platform.NewRegistry()
	Register(reg, Options{})

	u, err := NewImporter(reg, srv.Client(), "").Import(context.Background(), srv.URL, DevToName)
	require.NoError(t, err)

	assert.Equal(t, content.FormatMarkdown, u.BodyFormat)
	assert.Contains(t, u.Body, "[effective Go](https://go.dev/doc/effective_go)")
	assert.False(t, strings.Contains(u.Body, "<p>"))
}

func TestImportRejectsBadInput(t *testing.T) {
	reg := platform.NewRegistry()
	Register(reg, Options{})
	im := NewImporter(reg, nil, "")

	_, err := im.Import(context.Background(), "not a url", "")
	assert.Error(t, err)

	_, err = im.Import(context.Background(), "https://example.com/post", "myspace")
	var unknown *platform.UnknownPlatformError
	assert.ErrorAs(t, err, &unknown)
}

func TestGuessPlatform(t *testing.T) {
	cases := map[string]string{
		"medium.com":         MediumName,
		"sam.medium.com":     MediumName,
		"dev.to":             DevToName,
		"my-site.webflow.io": WebflowName,
		"blog.example.com":   WordPressName,
	}
	for host, want := range cases {
		assert.Equal(t, want, guessPlatform(host), host)
	}
}
