package platform

import (
	"github.com/lysyi3m/crosspost/app/content"
)

// Unbounded marks a limit the platform does not enforce.
const Unbounded = 0

type Feature string

const (
	FeatureInternalLinks   Feature = "internal_links"
	FeatureCustomSlugs     Feature = "custom_slugs"
	FeatureScheduling      Feature = "scheduling"
	FeatureMetaDescription Feature = "meta_description"
	FeatureTags            Feature = "tags"
	FeatureCategories      Feature = "categories"
	FeatureFeaturedImage   Feature = "featured_image"
	FeatureImageGalleries  Feature = "image_galleries"
	FeatureMarkdown        Feature = "markdown"
	FeatureHTML            Feature = "html"
	FeatureCanonicalURL    Feature = "canonical_url"
	FeatureDrafts          Feature = "drafts"
	FeatureDeletion        Feature = "deletion"
	FeatureUpdates         Feature = "updates"
)

// Features lists every boolean capability in a stable order.
var Features = []Feature{
	FeatureInternalLinks,
	FeatureCustomSlugs,
	FeatureScheduling,
	FeatureMetaDescription,
	FeatureTags,
	FeatureCategories,
	FeatureFeaturedImage,
	FeatureImageGalleries,
	FeatureMarkdown,
	FeatureHTML,
	FeatureCanonicalURL,
	FeatureDrafts,
	FeatureDeletion,
	FeatureUpdates,
}

// Capabilities is the static feature and limit table of a platform.
// Limits equal to Unbounded are not enforced.
type Capabilities struct {
	Name string `json:"name"`

	SupportsInternalLinks   bool `json:"supports_internal_links"`
	SupportsCustomSlugs     bool `json:"supports_custom_slugs"`
	SupportsScheduling      bool `json:"supports_scheduling"`
	SupportsMetaDescription bool `json:"supports_meta_description"`
	SupportsTags            bool `json:"supports_tags"`
	SupportsCategories      bool `json:"supports_categories"`
	SupportsFeaturedImage   bool `json:"supports_featured_image"`
	SupportsImageGalleries  bool `json:"supports_image_galleries"`
	SupportsMarkdown        bool `json:"supports_markdown"`
	SupportsHTML            bool `json:"supports_html"`
	SupportsCanonicalURL    bool `json:"supports_canonical_url"`
	SupportsDrafts          bool `json:"supports_drafts"`
	SupportsDeletion        bool `json:"supports_deletion"`
	SupportsUpdates         bool `json:"supports_updates"`

	MaxTitleLength   int `json:"max_title_length"`
	MaxExcerptLength int `json:"max_excerpt_length"`
	MaxTagsCount     int `json:"max_tags_count"`
	MaxImagesCount   int `json:"max_images_count"`
	MaxContentLength int `json:"max_content_length"`
}

// Has reports whether the platform supports f.
func (c Capabilities) Has(f Feature) bool {
	switch f {
	case FeatureInternalLinks:
		return c.SupportsInternalLinks
	case FeatureCustomSlugs:
		return c.SupportsCustomSlugs
	case FeatureScheduling:
		return c.SupportsScheduling
	case FeatureMetaDescription:
		return c.SupportsMetaDescription
	case FeatureTags:
		return c.SupportsTags
	case FeatureCategories:
		return c.SupportsCategories
	case FeatureFeaturedImage:
		return c.SupportsFeaturedImage
	case FeatureImageGalleries:
		return c.SupportsImageGalleries
	case FeatureMarkdown:
		return c.SupportsMarkdown
	case FeatureHTML:
		return c.SupportsHTML
	case FeatureCanonicalURL:
		return c.SupportsCanonicalURL
	case FeatureDrafts:
		return c.SupportsDrafts
	case FeatureDeletion:
		return c.SupportsDeletion
	case FeatureUpdates:
		return c.SupportsUpdates
	}
	return false
}

// Flags returns the boolean capabilities in the order of Features.
func (c Capabilities) Flags() []bool {
	flags := make([]bool, len(Features))
	for i, f := range Features {
		flags[i] = c.Has(f)
	}
	return flags
}

func (c Capabilities) SupportedFeatureCount() int {
	n := 0
	for _, f := range Features {
		if c.Has(f) {
			n++
		}
	}
	return n
}

// PreferredFormat is the body format the adapter emits. HTML wins when both
// are accepted.
func (c Capabilities) PreferredFormat() content.BodyFormat {
	if c.SupportsHTML {
		return content.FormatHTML
	}
	return content.FormatMarkdown
}

// Accepts reports whether the platform takes bodies in format f natively.
func (c Capabilities) Accepts(f content.BodyFormat) bool {
	switch f {
	case content.FormatHTML:
		return c.SupportsHTML
	case content.FormatMarkdown:
		return c.SupportsMarkdown
	}
	return false
}

func exceeds(n, limit int) bool {
	return limit != Unbounded && n > limit
}
