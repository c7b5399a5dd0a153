package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lithammer/dedent"
	"github.com/raine/video-lister/internal/listing"
	"github.com/raine/video-lister/internal/llm"
)

// FusionModelConfidence is the fixed trust placed in the fusion model output.
const FusionModelConfidence = 0.9

const fusionTemperature float32 = 0.3

// RequiredFusionKeys are the top-level keys a fusion response must contain.
var RequiredFusionKeys = []string{
	"itemDetails",
	"emotionalContext",
	"sellingPoints",
	"pricingSignals",
	"optimizationRecommendations",
}

var fusionPrompt = strings.TrimSpace(dedent.Dedent(`
	You are an expert at analyzing items for sale. Combine the visual and audio
	information to create a comprehensive item analysis.

	VISUAL ANALYSIS:
	%s

	VOICE TRANSCRIPT:
	"%s"

	Return a JSON object with exactly these top-level keys:
	{
	  "itemDetails": {"title": string, "description": string, "brand": string, "model": string, "category": string, "condition": "new" | "like-new" | "good" | "fair" | "poor", "size": string, "color": string, "material": string, "keyFeatures": [string]},
	  "emotionalContext": {"attachmentLevel": "high" | "medium" | "low", "reasonForSelling": string, "sentiment": string},
	  "sellingPoints": [string],
	  "pricingSignals": {"suggestedPrice": number or null, "originalPrice": number or null, "rarity": string, "urgency": string},
	  "optimizationRecommendations": {"bestPlatforms": [string], "strategy": string, "keySellingPoints": [string], "buyerPersonas": [string]}
	}

	Use empty strings or empty lists for details you cannot determine. Prices are
	plain numbers in the seller's currency. Respond ONLY with the JSON object.
`))

var validate = validator.New()

// fuse asks the text model to merge transcript and visual analysis.
func (p *Pipeline) fuse(ctx context.Context, transcript *listing.Transcript, visual *listing.VisualAnalysis, rl *RunLog) (*listing.CombinedAnalysis, error) {
	prompt := BuildFusionPrompt(transcript, visual)
	req := llm.GenerateRequest{Prompt: prompt, JSON: true, Temperature: ptr(fusionTemperature)}

	gen, err := callWithRetry(ctx, p.opts, "fusion", func(ctx context.Context) (*llm.Generation, error) {
		return p.text.Generate(ctx, req)
	})
	if err != nil {
		rl.Error("fusion call failed: %v", err)
		return nil, newStageError(StageFusion, ErrFusionParse, err)
	}
	rl.LLM("fusion response: %s", gen.Text)

	analysis, err := ParseFusionResponse(gen.Text)
	if err != nil {
		rl.Error("fusion parse failed: %v", err)
		return nil, newStageError(StageFusion, ErrFusionParse, err)
	}

	analysis.Confidence = CombinedConfidence(transcript, visual)
	analysis.ProcessingTimestamp = p.now()
	analysis.Transcript = transcript
	analysis.Visual = visual
	rl.Stage("fused analysis %q, confidence %.2f", analysis.ItemDetails.Title, analysis.Confidence)
	return analysis, nil
}

// BuildFusionPrompt embeds the frame descriptions and transcript text.
func BuildFusionPrompt(transcript *listing.Transcript, visual *listing.VisualAnalysis) string {
	return fmt.Sprintf(fusionPrompt, strings.Join(visual.Descriptions(), "\n"), transcript.Text)
}

// CombinedConfidence is the mean of transcript confidence, mean frame
// confidence and FusionModelConfidence.
func CombinedConfidence(transcript *listing.Transcript, visual *listing.VisualAnalysis) float64 {
	return clamp01((transcript.Confidence + visual.MeanConfidence() + FusionModelConfidence) / 3)
}

// ParseFusionResponse parses and validates the fusion model JSON. Either
// every required section is present and valid or an error is returned.
func ParseFusionResponse(text string) (*listing.CombinedAnalysis, error) {
	jsonStr, err := llm.ExtractJSONObject(text)
	if err != nil {
		return nil, err
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(jsonStr), &top); err != nil {
		return nil, fmt.Errorf("invalid fusion JSON: %w", err)
	}
	var missing []string
	for _, key := range RequiredFusionKeys {
		raw, ok := top[key]
		if !ok || strings.TrimSpace(string(raw)) == "null" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required keys: %s", strings.Join(missing, ", "))
	}

	var resp fusionResponse
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return nil, fmt.Errorf("invalid fusion JSON: %w", err)
	}

	schema := resp.schema()
	if err := validate.Struct(schema); err != nil {
		return nil, fmt.Errorf("fusion response failed validation: %w", err)
	}

	return &listing.CombinedAnalysis{
		ItemDetails:      *schema.ItemDetails,
		EmotionalContext: *schema.EmotionalContext,
		SellingPoints:    schema.SellingPoints,
		PricingSignals: listing.PricingSignals{
			SuggestedPrice: schema.PricingSignals.SuggestedPrice,
			OriginalPrice:  schema.PricingSignals.OriginalPrice,
			Rarity:         schema.PricingSignals.Rarity,
			Urgency:        schema.PricingSignals.Urgency,
		},
		Recommendations: *schema.Recommendations,
	}, nil
}

// fusionSchema is the validated shape of a fusion response.
type fusionSchema struct {
	ItemDetails      *listing.ItemDetails      `validate:"required"`
	EmotionalContext *listing.EmotionalContext `validate:"required"`
	SellingPoints    []string                  `validate:"required"`
	PricingSignals   *fusionPricing            `validate:"required"`
	Recommendations  *listing.Recommendations  `validate:"required"`
}

type fusionPricing struct {
	SuggestedPrice *float64 `validate:"omitempty,gte=0"`
	OriginalPrice  *float64 `validate:"omitempty,gte=0"`
	Rarity         string
	Urgency        string
}

// fusionResponse is the lenient wire shape. Models are inconsistent about
// scalar versus list values, so fields accept either.
type fusionResponse struct {
	ItemDetails *struct {
		Title       flexString  `json:"title"`
		Description flexString  `json:"description"`
		Brand       flexString  `json:"brand"`
		Model       flexString  `json:"model"`
		Category    flexString  `json:"category"`
		Condition   flexString  `json:"condition"`
		Size        flexString  `json:"size"`
		Color       flexString  `json:"color"`
		Material    flexString  `json:"material"`
		KeyFeatures flexStrings `json:"keyFeatures"`
	} `json:"itemDetails"`
	EmotionalContext *struct {
		AttachmentLevel  flexString `json:"attachmentLevel"`
		ReasonForSelling flexString `json:"reasonForSelling"`
		Sentiment        flexString `json:"sentiment"`
	} `json:"emotionalContext"`
	SellingPoints  flexStrings `json:"sellingPoints"`
	PricingSignals *struct {
		SuggestedPrice flexPrice  `json:"suggestedPrice"`
		OriginalPrice  flexPrice  `json:"originalPrice"`
		Rarity         flexString `json:"rarity"`
		Urgency        flexString `json:"urgency"`
	} `json:"pricingSignals"`
	Recommendations *struct {
		BestPlatforms    flexStrings `json:"bestPlatforms"`
		Strategy         flexString  `json:"strategy"`
		KeySellingPoints flexStrings `json:"keySellingPoints"`
		BuyerPersonas    flexStrings `json:"buyerPersonas"`
	} `json:"optimizationRecommendations"`
}

func (r *fusionResponse) schema() fusionSchema {
	var s fusionSchema
	if d := r.ItemDetails; d != nil {
		s.ItemDetails = &listing.ItemDetails{
			Title:       string(d.Title),
			Description: string(d.Description),
			Brand:       string(d.Brand),
			Model:       string(d.Model),
			Category:    string(d.Category),
			Condition:   strings.ToLower(string(d.Condition)),
			Size:        string(d.Size),
			Color:       string(d.Color),
			Material:    string(d.Material),
			KeyFeatures: d.KeyFeatures,
		}
	}
	if e := r.EmotionalContext; e != nil {
		s.EmotionalContext = &listing.EmotionalContext{
			AttachmentLevel:  string(e.AttachmentLevel),
			ReasonForSelling: string(e.ReasonForSelling),
			Sentiment:        string(e.Sentiment),
		}
	}
	if r.SellingPoints != nil {
		s.SellingPoints = append([]string{}, r.SellingPoints...)
	}
	if ps := r.PricingSignals; ps != nil {
		s.PricingSignals = &fusionPricing{
			SuggestedPrice: ps.SuggestedPrice.Value,
			OriginalPrice:  ps.OriginalPrice.Value,
			Rarity:         string(ps.Rarity),
			Urgency:        string(ps.Urgency),
		}
	}
	if rec := r.Recommendations; rec != nil {
		platforms := make([]string, 0, len(rec.BestPlatforms))
		for _, p := range rec.BestPlatforms {
			platforms = append(platforms, strings.ToLower(p))
		}
		s.Recommendations = &listing.Recommendations{
			BestPlatforms:    platforms,
			Strategy:         string(rec.Strategy),
			KeySellingPoints: rec.KeySellingPoints,
			BuyerPersonas:    rec.BuyerPersonas,
		}
	}
	return s
}

// flexString decodes strings, numbers, booleans and lists into text.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexString(strings.TrimSpace(stringify(v)))
	return nil
}

// flexStrings decodes a list or a single scalar into a list of strings.
// Empty entries are dropped.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	out := flexStrings{}
	add := func(x any) {
		if s := strings.TrimSpace(stringify(x)); s != "" {
			out = append(out, s)
		}
	}
	switch t := v.(type) {
	case nil:
		*f = nil
		return nil
	case []any:
		for _, x := range t {
			add(x)
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			add(t[k])
		}
	default:
		add(t)
	}
	*f = out
	return nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, x := range t {
			if s := stringify(x); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

var priceNumber = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?`)

// flexPrice accepts a number or a string such as "$1,200.50". Strings
// without a number decode to no price.
type flexPrice struct {
	Value *float64
}

func (f *flexPrice) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case float64:
		f.Value = &t
	case string:
		m := priceNumber.FindString(t)
		if m == "" {
			return nil
		}
		n, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
		if err != nil {
			return fmt.Errorf("invalid price %q: %w", t, err)
		}
		f.Value = &n
	}
	return nil
}

func ptr[T any](v T) *T { return &v }

// nowFunc is the default clock.
func nowFunc() time.Time { return time.Now().UTC() }
