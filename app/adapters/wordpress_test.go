package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/crosspost/app/content"
	"github.com/lysyi3m/crosspost/app/platform"
)

type fakeWordPress struct {
	mu      sync.Mutex
	terms   map[string][]wpTerm
	nextID  int
	posts   []wpPost
	deleted []string
}

func newFakeWordPress() *fakeWordPress {
	return &fakeWordPress{
		terms:  map[string][]wpTerm{"tags": {{ID: 5, Name: "Go"}}, "categories": {}},
		nextID: 100,
	}
}

func (f *fakeWordPress) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Authorization") != "Basic dXNlcjpwYXNz" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/wp-json/wp/v2/")
	switch {
	case (path == "tags" || path == "categories") && r.Method == http.MethodGet:
		search := strings.ToLower(r.URL.Query().Get("search"))
		var found []wpTerm
		for _, t := range f.terms[path] {
			if strings.Contains(strings.ToLower(t.Name), search) {
				found = append(found, t)
			}
		}
		json.NewEncoder(w).Encode(found)
	case (path == "tags" || path == "categories") && r.Method == http.MethodPost:
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		f.nextID++
		term := wpTerm{ID: f.nextID, Name: body["name"]}
		f.terms[path] = append(f.terms[path], term)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(term)
	case path == "posts" && r.Method == http.MethodPost:
		var post wpPost
		json.NewDecoder(r.Body).Decode(&post)
		f.posts = append(f.posts, post)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(wpPostResponse{ID: 42, Link: "https://blog.example.com/?p=42", Status: post.Status})
	case strings.HasPrefix(path, "posts/") && r.Method == http.MethodDelete:
		f.deleted = append(f.deleted, strings.TrimPrefix(path, "posts/"))
		json.NewEncoder(w).Encode(map[string]string{"status": "trash"})
	case path == "posts/42" && r.Method == http.MethodGet:
		json.NewEncoder(w).Encode(wpPostResponse{ID: 42, Link: "https://blog.example.com/?p=42", Status: "future", ModifiedGMT: "2026-01-01T10:00:00"})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestWordPressPublishResolvesTerms(t *testing.T) {
	fake := newFakeWordPress()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	wp := NewWordPress(testClient(WordPressName))
	c := sampleContent()
	c.Tags = []string{"go", "backend"}
	c.Categories = []string{"Engineering"}

	res := wp.Transform(c, platform.TransformOptions{})
	require.True(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Content.Body, `<figure><img src="https://img.example.com/cover.png"`))

	cfg := platform.Config{Credentials: "user:pass", BaseURL: srv.URL + "/wp-json/wp/v2"}
	out := wp.Publish(context.Background(), res.Content, cfg)
	require.True(t, out.Success, "%+v", out.Errors)
	assert.Equal(t, "42", out.ExternalID)
	assert.Equal(t, "https://blog.example.com/?p=42", out.URL)

	require.Len(t, fake.posts, 1)
	post := fake.posts[0]
	assert.Equal(t, "publish", post.Status)
	assert.Equal(t, "building-services-in-go", post.Slug)
	assert.Equal(t, []int{5, 101}, post.Tags)
	assert.Equal(t, []int{102}, post.Categories)
}

func TestWordPressSchedulesNatively(t *testing.T) {
	fake := newFakeWordPress()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	at := now.Add(48 * time.Hour)

	wp := NewWordPress(testClient(WordPressName))
	c := sampleContent()
	c.Tags = nil
	res := wp.Transform(c, platform.TransformOptions{Now: now, ScheduledFor: &at})
	require.True(t, res.Success)
	assert.Equal(t, content.StateScheduled, res.Content.Settings.Status)

	out := wp.Publish(context.Background(), res.Content, platform.Config{Credentials: "user:pass", BaseURL: srv.URL + "/wp-json/wp/v2"})
	require.True(t, out.Success, "%+v", out.Errors)

	require.Len(t, fake.posts, 1)
	assert.Equal(t, "future", fake.posts[0].Status)
	assert.Equal(t, "2026-03-03T09:00:00", fake.posts[0].DateGMT)
}

func TestWordPressDeleteAndStatus(t *testing.T) {
	fake := newFakeWordPress()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	wp := NewWordPress(testClient(WordPressName))
	cfg := platform.Config{Credentials: "user:pass", BaseURL: srv.URL + "/wp-json/wp/v2"}

	ok, err := wp.Delete(context.Background(), "42", cfg)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"42"}, fake.deleted)

	s, err := wp.Status(context.Background(), "42", cfg)
	require.NoError(t, err)
	assert.Equal(t, platform.RemoteScheduled, s.State)
	require.NotNil(t, s.UpdatedAt)

	s, err = wp.Status(context.Background(), "7", cfg)
	require.NoError(t, err)
	assert.Equal(t, platform.RemoteDeleted, s.State)
}

func TestWordPressMissingBaseURL(t *testing.T) {
	wp := NewWordPress(testClient(WordPressName))
	res := wp.Transform(sampleContent(), platform.TransformOptions{})

	out := wp.Publish(context.Background(), res.Content, platform.Config{})
	assert.False(t, out.Success)
	assert.Equal(t, "missing_base_url", out.FirstError().Code)
}

func TestWordPressReverseDropsFeaturedFigure(t *testing.T) {
	wp := NewWordPress(testClient(WordPressName))
	c := sampleContent()
	c.Categories = []string{"Engineering"}

	res := wp.Transform(c, platform.TransformOptions{})
	back := wp.Reverse(res.Content)

	assert.False(t, strings.HasPrefix(back.Body, "<figure>"))
	assert.Equal(t, []string{"Engineering"}, back.Categories)
	require.NotNil(t, back.FeaturedImage)
	assert.Equal(t, "https://img.example.com/cover.png", back.FeaturedImage.URL)
}
