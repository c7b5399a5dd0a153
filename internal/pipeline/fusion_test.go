package pipeline

import (
	"strings"
	"testing"

	"github.com/raine/video-lister/internal/listing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFusionResponse(t *testing.T) {
	analysis, err := ParseFusionResponse("```json\n" + fusionJSON + "\n```")
	require.NoError(t, err)

	assert.Equal(t, "Levi's Trucker Denim Jacket", analysis.ItemDetails.Title)
	assert.Equal(t, []string{"metal buttons", "two chest pockets"}, analysis.ItemDetails.KeyFeatures)
	assert.Equal(t, "doesn't fit anymore", analysis.EmotionalContext.ReasonForSelling)
	assert.Equal(t, []string{"iconic style", "barely worn"}, analysis.SellingPoints)
	require.NotNil(t, analysis.PricingSignals.SuggestedPrice)
	assert.Equal(t, 45.0, *analysis.PricingSignals.SuggestedPrice)
	require.NotNil(t, analysis.PricingSignals.OriginalPrice)
	assert.Equal(t, 98.0, *analysis.PricingSignals.OriginalPrice)
	assert.Equal(t, []string{"poshmark", "ebay"}, analysis.Recommendations.BestPlatforms)
}

func TestParseFusionResponse_MissingKeys(t *testing.T) {
	for _, key := range RequiredFusionKeys {
		t.Run(key, func(t *testing.T) {
			body := map[string]string{
				"itemDetails":                 `{"title": "x"}`,
				"emotionalContext":            `{}`,
				"sellingPoints":               `[]`,
				"pricingSignals":              `{}`,
				"optimizationRecommendations": `{}`,
			}
			delete(body, key)

			var parts []string
			for k, v := range body {
				parts = append(parts, `"`+k+`": `+v)
			}
			analysis, err := ParseFusionResponse("{" + strings.Join(parts, ",") + "}")
			assert.Nil(t, analysis)
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestParseFusionResponse_NullSection(t *testing.T) {
	_, err := ParseFusionResponse(`{"itemDetails": null, "emotionalContext": {}, "sellingPoints": [], "pricingSignals": {}, "optimizationRecommendations": {}}`)
	assert.ErrorContains(t, err, "itemDetails")
}

func TestParseFusionResponse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"not json", "I think it's a jacket"},
		{"broken json", `{"itemDetails": {`},
		{"negative price", `{"itemDetails": {}, "emotionalContext": {}, "sellingPoints": [], "pricingSignals": {"suggestedPrice": -5}, "optimizationRecommendations": {}}`},
		{"wrong section type", `{"itemDetails": "jacket", "emotionalContext": {}, "sellingPoints": [], "pricingSignals": {}, "optimizationRecommendations": {}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis, err := ParseFusionResponse(tt.text)
			assert.Error(t, err)
			assert.Nil(t, analysis)
		})
	}
}

func TestParseFusionResponse_LenientValues(t *testing.T) {
	analysis, err := ParseFusionResponse(`{
		"itemDetails": {"title": "Lamp", "keyFeatures": "brass base", "size": 30},
		"emotionalContext": {"attachmentLevel": "low"},
		"sellingPoints": "works great",
		"pricingSignals": {"suggestedPrice": "€1,200.50", "originalPrice": "unknown"},
		"optimizationRecommendations": {"bestPlatforms": "Etsy"}
	}`)
	require.NoError(t, err)

	assert.Equal(t, []string{"brass base"}, analysis.ItemDetails.KeyFeatures)
	assert.Equal(t, "30", analysis.ItemDetails.Size)
	assert.Equal(t, []string{"works great"}, analysis.SellingPoints)
	require.NotNil(t, analysis.PricingSignals.SuggestedPrice)
	assert.Equal(t, 1200.50, *analysis.PricingSignals.SuggestedPrice)
	assert.Nil(t, analysis.PricingSignals.OriginalPrice)
	assert.Equal(t, []string{"etsy"}, analysis.Recommendations.BestPlatforms)
}

func TestCombinedConfidence(t *testing.T) {
	tests := []struct {
		name       string
		transcript float64
		frames     []float64
	}{
		{"scenario A", 0.9, []float64{0.85, 0.85, 0.85, 0.85, 0.85}},
		{"mixed frames", 0.8, []float64{0.2, 1.0}},
		{"all zero", 0, []float64{0}},
		{"all one", 1, []float64{1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			visual := &listing.VisualAnalysis{}
			var sum float64
			for i, c := range tt.frames {
				visual.Frames = append(visual.Frames, listing.FrameAnalysis{FrameIndex: i, Confidence: c})
				sum += c
			}
			got := CombinedConfidence(&listing.Transcript{Confidence: tt.transcript}, visual)

			want := (tt.transcript + sum/float64(len(tt.frames)) + FusionModelConfidence) / 3
			assert.InDelta(t, want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestBuildFusionPrompt(t *testing.T) {
	visual := &listing.VisualAnalysis{Frames: []listing.FrameAnalysis{
		{Description: "frame one"},
		{Description: "frame two"},
	}}
	prompt := BuildFusionPrompt(&listing.Transcript{Text: "hello buyers"}, visual)

	assert.Contains(t, prompt, "frame one\nframe two")
	assert.Contains(t, prompt, `"hello buyers"`)
	for _, key := range RequiredFusionKeys {
		assert.Contains(t, prompt, key)
	}
}
