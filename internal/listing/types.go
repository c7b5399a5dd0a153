package listing

import "time"

// Segment is one time-aligned piece of a transcript.
type Segment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Transcript is the normalized speech-to-text output for one video.
type Transcript struct {
	Text       string    `json:"text"`
	Segments   []Segment `json:"segments"`
	Language   string    `json:"language"`
	Duration   float64   `json:"duration"`
	Confidence float64   `json:"confidence"`
}

// FrameAnalysis is the vision model's reading of a single frame.
type FrameAnalysis struct {
	FrameIndex  int      `json:"frameIndex"`
	Timestamp   float64  `json:"timestamp"`
	Description string   `json:"description"`
	Mentions    []string `json:"mentions"`
	Confidence  float64  `json:"confidence"`
}

// SceneContext is a coarse classification of where the video was shot.
type SceneContext struct {
	Setting    string `json:"setting"`
	Lighting   string `json:"lighting"`
	Background string `json:"background"`
}

// VisualAnalysis aggregates all successful frame analyses of a run.
type VisualAnalysis struct {
	Frames         []FrameAnalysis `json:"frames"`
	ObjectCounts   map[string]int  `json:"detectedObjects"`
	DominantColors []string        `json:"dominantColors"`
	Scene          SceneContext    `json:"sceneContext"`
	FailedFrames   []int           `json:"failedFrames,omitempty"`
}

// MeanConfidence returns the average confidence of the analyzed frames.
func (v *VisualAnalysis) MeanConfidence() float64 {
	if v == nil || len(v.Frames) == 0 {
		return 0
	}
	var total float64
	for _, f := range v.Frames {
		total += f.Confidence
	}
	return total / float64(len(v.Frames))
}

// Descriptions returns the frame descriptions in frame order.
func (v *VisualAnalysis) Descriptions() []string {
	out := make([]string, 0, len(v.Frames))
	for _, f := range v.Frames {
		out = append(out, f.Description)
	}
	return out
}

// ItemDetails describes the physical item being sold.
type ItemDetails struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Brand       string   `json:"brand,omitempty"`
	Model       string   `json:"model,omitempty"`
	Category    string   `json:"category,omitempty"`
	Condition   string   `json:"condition,omitempty"`
	Size        string   `json:"size,omitempty"`
	Color       string   `json:"color,omitempty"`
	Material    string   `json:"material,omitempty"`
	KeyFeatures []string `json:"keyFeatures,omitempty"`
}

// EmotionalContext captures how the seller talks about the item.
type EmotionalContext struct {
	AttachmentLevel  string `json:"attachmentLevel,omitempty"`
	ReasonForSelling string `json:"reasonForSelling,omitempty"`
	Sentiment        string `json:"sentiment,omitempty"`
}

// PricingSignals holds price hints extracted from the video.
type PricingSignals struct {
	SuggestedPrice *float64 `json:"suggestedPrice,omitempty"`
	OriginalPrice  *float64 `json:"originalPrice,omitempty"`
	Rarity         string   `json:"rarity,omitempty"`
	Urgency        string   `json:"urgency,omitempty"`
}

// Recommendations suggests where and how to list the item.
type Recommendations struct {
	BestPlatforms    []string `json:"bestPlatforms,omitempty"`
	Strategy         string   `json:"strategy,omitempty"`
	KeySellingPoints []string `json:"keySellingPoints,omitempty"`
	BuyerPersonas    []string `json:"buyerPersonas,omitempty"`
}

// CombinedAnalysis is the fused output of transcript and visual analysis.
// It is the only input to content generation and persistence.
type CombinedAnalysis struct {
	ItemDetails         ItemDetails      `json:"itemDetails"`
	EmotionalContext    EmotionalContext `json:"emotionalContext"`
	SellingPoints       []string         `json:"sellingPoints"`
	PricingSignals      PricingSignals   `json:"pricingSignals"`
	Recommendations     Recommendations  `json:"optimizationRecommendations"`
	Confidence          float64          `json:"confidence"`
	ProcessingTimestamp time.Time        `json:"processingTimestamp"`

	Transcript *Transcript     `json:"transcript,omitempty"`
	Visual     *VisualAnalysis `json:"visualData,omitempty"`
}

// PlatformContent is generated listing text for one marketplace.
type PlatformContent struct {
	Platform          string    `json:"platform"`
	Title             string    `json:"title"`
	Body              string    `json:"body"`
	Hashtags          []string  `json:"hashtags,omitempty"`
	Raw               string    `json:"raw"`
	OptimizationScore float64   `json:"optimizationScore"`
	GeneratedAt       time.Time `json:"generatedAt"`
}

// Status is the processing state of a stored listing.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Metadata is the opaque AI snapshot stored alongside a listing.
type Metadata struct {
	Analysis         *CombinedAnalysis           `json:"analysis"`
	PlatformContent  map[string]*PlatformContent `json:"platformContent"`
	PlatformFailures map[string]string           `json:"platformFailures,omitempty"`
	Fallbacks        []string                    `json:"fallbacks,omitempty"`
}

// Listing is the persisted record for one processed video.
type Listing struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"ownerId"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Price          float64   `json:"price"`
	Category       string    `json:"category"`
	Condition      string    `json:"condition"`
	Brand          string    `json:"brand,omitempty"`
	Size           string    `json:"size,omitempty"`
	SuggestedPrice *float64  `json:"suggestedPrice,omitempty"`
	Confidence     float64   `json:"confidence"`
	Status         Status    `json:"status"`
	Metadata       Metadata  `json:"aiMetadata"`
	CreatedAt      time.Time `json:"createdAt"`
}
