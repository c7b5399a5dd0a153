package pipeline

import (
	"slices"
	"strings"
)

// PlatformSpec describes the listing constraints of one marketplace.
// A zero TitleLimit means the platform has no separate title; the whole
// post is the body.
type PlatformSpec struct {
	ID               string
	TitleLimit       int
	DescriptionLimit int
	Style            string
	Focus            []string
	// EmphasizedFields are item detail fields the content should mention.
	EmphasizedFields []string
	Hashtags         bool
	CallToAction     bool
}

var platformSpecs = map[string]PlatformSpec{
	"ebay": {
		ID:               "ebay",
		TitleLimit:       80,
		DescriptionLimit: 500000,
		Style:            "factual and detailed",
		Focus:            []string{"brand", "model", "condition", "specifications"},
		EmphasizedFields: []string{"brand", "model", "condition"},
	},
	"poshmark": {
		ID:               "poshmark",
		TitleLimit:       50,
		DescriptionLimit: 8000,
		Style:            "casual and personal",
		Focus:            []string{"brand", "style", "story", "hashtags"},
		EmphasizedFields: []string{"brand", "size", "condition"},
		Hashtags:         true,
	},
	"instagram": {
		ID:               "instagram",
		DescriptionLimit: 2200,
		Style:            "engaging and visual",
		Focus:            []string{"lifestyle", "aesthetics", "hashtags", "call-to-action"},
		EmphasizedFields: []string{"brand", "color"},
		Hashtags:         true,
		CallToAction:     true,
	},
	"etsy": {
		ID:               "etsy",
		TitleLimit:       140,
		DescriptionLimit: 13000,
		Style:            "artisanal and story-driven",
		Focus:            []string{"craftsmanship", "vintage", "unique features"},
		EmphasizedFields: []string{"material", "color"},
	},
	"facebook": {
		ID:               "facebook",
		TitleLimit:       100,
		DescriptionLimit: 9000,
		Style:            "community-friendly",
		Focus:            []string{"local appeal", "value proposition", "condition"},
		EmphasizedFields: []string{"condition"},
	},
}

// DefaultPlatforms is the platform set used when a request names none.
var DefaultPlatforms = []string{"ebay", "etsy", "poshmark", "instagram", "facebook"}

// LookupPlatform returns the spec for a platform id.
func LookupPlatform(id string) (PlatformSpec, bool) {
	spec, ok := platformSpecs[strings.ToLower(strings.TrimSpace(id))]
	return spec, ok
}

// KnownPlatforms returns all supported platform ids in sorted order.
func KnownPlatforms() []string {
	ids := make([]string, 0, len(platformSpecs))
	for id := range platformSpecs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// NormalizePlatforms lowercases, trims and deduplicates platform ids,
// keeping their order. Unknown ids are kept so they can be reported.
func NormalizePlatforms(ids []string) []string {
	var out []string
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
