package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/crosspost/app/content"
	"github.com/lysyi3m/crosspost/app/platform"
)

func TestWebflowTransform(t *testing.T) {
	w := NewWebflow(testClient(WebflowName))
	c := sampleContent()
	c.Title = "A title that is long enough to overflow the sixty character search title limit"

	res := w.Transform(c, platform.TransformOptions{})
	require.True(t, res.Success)

	p := res.Content
	assert.Equal(t, content.FormatHTML, p.Format)
	assert.True(t, strings.HasPrefix(p.Body, "<h1>Intro</h1>"))
	assert.LessOrEqual(t, len(p.FieldString("seo_title")), 60)
	assert.Equal(t, "building-services-in-go", p.FieldString("slug"))
	assert.Equal(t, "cover", p.FieldString("featured_image_alt"))
	assert.Equal(t, "How to build services in Go", p.FieldString("meta_description"))

	found := false
	for _, warn := range res.Warnings {
		if warn.Field == "seo_title" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestWebflowPublishLive(t *testing.T) {
	var got webflowItem
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/col1/items/live", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "job-1", r.Header.Get("Idempotency-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		rw.Write([]byte(`{"id": "item-7", "isDraft": false, "fieldData": {"slug": "building-services-in-go"}}`))
	}))
	defer srv.Close()

	w := NewWebflow(testClient(WebflowName))
	res := w.Transform(sampleContent(), platform.TransformOptions{})
	require.True(t, res.Success)

	cfg := platform.Config{
		Credentials:    "tok",
		BaseURL:        srv.URL,
		IdempotencyKey: "job-1",
		Options:        map[string]string{"collection_id": "col1", "site_url": "https://blog.example.com"},
	}
	out := w.Publish(context.Background(), res.Content, cfg)
	require.True(t, out.Success, "%+v", out.Errors)
	assert.Equal(t, "item-7", out.ExternalID)
	assert.Equal(t, "https://blog.example.com/blog/building-services-in-go", out.URL)

	assert.False(t, got.IsDraft)
	assert.Equal(t, "Building services in Go", got.FieldData["name"])
	assert.Contains(t, got.FieldData, "main-image")
}

func TestWebflowPublishWithoutCollectionIsFatal(t *testing.T) {
	w := NewWebflow(testClient(WebflowName))
	res := w.Transform(sampleContent(), platform.TransformOptions{})

	out := w.Publish(context.Background(), res.Content, platform.Config{})
	assert.False(t, out.Success)
	assert.False(t, out.Recoverable())
	assert.Equal(t, "missing_collection", out.FirstError().Code)
}

func TestWebflowDeleteUnpublishesThenRemoves(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()
		rw.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ok, err := NewWebflow(testClient(WebflowName)).Delete(context.Background(), "item-7",
		platform.Config{BaseURL: srv.URL, Options: map[string]string{"collection_id": "col1"}})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{
		"DELETE /collections/col1/items/item-7/live",
		"DELETE /collections/col1/items/item-7",
	}, calls)
}

func TestWebflowStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections/col1/items/live-item":
			rw.Write([]byte(`{"id": "live-item", "isDraft": false, "lastPublished": "2026-01-01T00:00:00Z", "fieldData": {}}`))
		case "/collections/col1/items/draft-item":
			rw.Write([]byte(`{"id": "draft-item", "isDraft": true, "fieldData": {}}`))
		default:
			rw.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	w := NewWebflow(testClient(WebflowName))
	cfg := platform.Config{BaseURL: srv.URL, Options: map[string]string{"collection_id": "col1"}}

	cases := map[string]platform.RemoteState{
		"live-item":  platform.RemotePublished,
		"draft-item": platform.RemoteDraft,
		"gone":       platform.RemoteDeleted,
	}
	for id, want := range cases {
		s, err := w.Status(context.Background(), id, cfg)
		require.NoError(t, err)
		assert.Equal(t, want, s.State, id)
	}
}

func TestWebflowUnauthorizedIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	w := NewWebflow(testClient(WebflowName))
	res := w.Transform(sampleContent(), platform.TransformOptions{})
	_, err := w.Status(context.Background(), "x", platform.Config{BaseURL: srv.URL, Options: map[string]string{"collection_id": "c"}})

	var ce *content.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "invalid_credentials", ce.Code)

	out := w.Publish(context.Background(), res.Content, platform.Config{BaseURL: srv.URL, Options: map[string]string{"collection_id": "c"}})
	assert.False(t, out.Recoverable())
}
