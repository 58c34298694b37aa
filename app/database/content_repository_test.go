package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/crosspost/app/content"
)

func TestContentRepositoryPutGet(t *testing.T) {
	ctx := context.Background()
	repo := NewContentRepository(openTestDB(t))

	c := content.Universal{
		Title:      "Building services in Go",
		Body:       "# Intro\n\nHello.",
		BodyFormat: content.FormatMarkdown,
		Tags:       []string{"go", "backend"},
		FeaturedImage: &content.Image{
			URL: "https://cdn.example.com/cover.png",
			Alt: "cover",
		},
	}
	require.NoError(t, repo.Put(ctx, "post-1", c))

	got, err := repo.Get(ctx, "post-1")
	require.NoError(t, err)
	assert.Equal(t, c, got)

	c.Title = "Updated"
	require.NoError(t, repo.Put(ctx, "post-1", c))
	got, err = repo.Get(ctx, "post-1")
	require.NoError(t, err)
	assert.Equal(t, "Updated", got.Title)

	_, err = repo.Get(ctx, "missing")
	assert.True(t, errors.Is(err, content.ErrNotFound))
}

func TestPublicationRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPublicationRepository(openTestDB(t))

	require.NoError(t, repo.Record(ctx, content.Publication{
		ItemID:     "a",
		ContentRef: "post-1",
		Platform:   "devto",
		Status:     "published",
		ExternalID: "42",
		URL:        "https://dev.to/sam/post-1",
		Score:      100,
		RecordedAt: baseTime,
	}))
	require.NoError(t, repo.Record(ctx, content.Publication{
		ContentRef: "post-1",
		Platform:   "medium",
		Status:     "failed",
		Error:      &content.PublishError{Code: "validation_failed", Message: "too many tags"},
		RecordedAt: baseTime.Add(time.Second),
	}))
	require.NoError(t, repo.Record(ctx, content.Publication{
		ContentRef: "post-2",
		Platform:   "devto",
		Status:     "published",
		RecordedAt: baseTime,
	}))

	pubs, err := repo.List(ctx, "post-1")
	require.NoError(t, err)
	require.Len(t, pubs, 2)

	assert.Equal(t, "devto", pubs[0].Platform)
	assert.Equal(t, "42", pubs[0].ExternalID)
	assert.Nil(t, pubs[0].Error)
	assert.True(t, pubs[0].RecordedAt.Equal(baseTime))

	assert.Equal(t, "medium", pubs[1].Platform)
	require.NotNil(t, pubs[1].Error)
	assert.Equal(t, "validation_failed", pubs[1].Error.Code)
}
