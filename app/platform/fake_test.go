package platform

import (
	"context"

	"github.com/lysyi3m/crosspost/app/content"
)

type fakeAdapter struct {
	Base
}

func newFake(caps Capabilities) *fakeAdapter {
	return &fakeAdapter{Base: Base{Caps: caps, Rules: content.LinkRules{MaxInternal: 2, MaxExternal: 2}}}
}

func (f *fakeAdapter) Transform(c *content.Universal, opts TransformOptions) TransformResult {
	_, res := f.Adapt(c, opts)
	return res
}

func (f *fakeAdapter) Reverse(p *content.Platform) *content.Universal {
	return f.ReverseCommon(p)
}

func (f *fakeAdapter) GenerateBacklinks(c *content.Universal, project ProjectContext) content.LinkStrategy {
	return f.PlanLinks(c, project)
}

func (f *fakeAdapter) Publish(context.Context, *content.Platform, Config) content.Result {
	return content.Result{Success: true}
}

func (f *fakeAdapter) Update(context.Context, string, *content.Platform, Config) content.Result {
	return content.Result{Success: true}
}

func (f *fakeAdapter) Delete(context.Context, string, Config) (bool, error) {
	return true, nil
}

func (f *fakeAdapter) Status(_ context.Context, id string, _ Config) (PublishStatus, error) {
	return PublishStatus{ExternalID: id, State: RemotePublished}, nil
}

var (
	richCaps = Capabilities{
		Name:                    "rich",
		SupportsInternalLinks:   true,
		SupportsCustomSlugs:     true,
		SupportsScheduling:      true,
		SupportsMetaDescription: true,
		SupportsTags:            true,
		SupportsCategories:      true,
		SupportsFeaturedImage:   true,
		SupportsImageGalleries:  true,
		SupportsHTML:            true,
		SupportsDrafts:          true,
		SupportsDeletion:        true,
		SupportsUpdates:         true,
		MaxTitleLength:          20,
		MaxExcerptLength:        30,
		MaxTagsCount:            2,
		MaxImagesCount:          2,
		MaxContentLength:        Unbounded,
	}
	plainCaps = Capabilities{
		Name:             "plain",
		SupportsMarkdown: true,
		SupportsTags:     true,
		MaxTitleLength:   100,
		MaxTagsCount:     3,
		MaxContentLength: 60,
	}
)
