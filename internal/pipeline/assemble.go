package pipeline

import (
	"strings"
	"time"

	"github.com/raine/video-lister/internal/listing"
	"github.com/rs/zerolog/log"
)

const (
	fallbackTitle     = "Untitled Item"
	fallbackCategory  = "other"
	fallbackCondition = "good"
)

// AssembleListing maps a combined analysis and its generated content to a
// listing ready for insertion. Every default applied is logged and recorded
// in Metadata.Fallbacks.
func AssembleListing(ownerID string, analysis *listing.CombinedAnalysis, content map[string]*listing.PlatformContent, failures map[string]*StageError, now time.Time) *listing.Listing {
	item := analysis.ItemDetails
	l := &listing.Listing{
		OwnerID:        ownerID,
		Title:          item.Title,
		Description:    item.Description,
		Category:       item.Category,
		Condition:      item.Condition,
		Brand:          item.Brand,
		Size:           item.Size,
		SuggestedPrice: analysis.PricingSignals.SuggestedPrice,
		Confidence:     analysis.Confidence,
		Status:         listing.StatusCompleted,
		CreatedAt:      now,
		Metadata: listing.Metadata{
			Analysis:        analysis,
			PlatformContent: content,
		},
	}

	fallback := func(field string, value any) {
		log.Warn().Str("owner", ownerID).Str("field", field).Interface("default", value).Msg("listing field missing, using default")
		l.Metadata.Fallbacks = append(l.Metadata.Fallbacks, field)
	}
	if isPlaceholder(l.Title) {
		l.Title = fallbackTitle
		fallback("title", fallbackTitle)
	}
	if isPlaceholder(l.Category) {
		l.Category = fallbackCategory
		fallback("category", fallbackCategory)
	}
	if isPlaceholder(l.Condition) {
		l.Condition = fallbackCondition
		fallback("condition", fallbackCondition)
	}
	if analysis.PricingSignals.SuggestedPrice != nil {
		l.Price = *analysis.PricingSignals.SuggestedPrice
	} else {
		fallback("price", 0)
	}

	if len(failures) > 0 {
		l.Metadata.PlatformFailures = make(map[string]string, len(failures))
		for platform, err := range failures {
			l.Metadata.PlatformFailures[platform] = err.Error()
		}
	}
	return l
}

// isPlaceholder reports empty values and model placeholders like "unknown".
func isPlaceholder(v string) bool {
	return ignoredValues[strings.ToLower(strings.TrimSpace(v))]
}
