package bot

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/raine/video-lister/internal/listing"
	"github.com/raine/video-lister/internal/pipeline"
)

// maxMessageRunes keeps generated content under Telegram's 4096 character
// message limit, leaving room for the header and hashtags.
const maxMessageRunes = 3500

var platformNames = map[string]string{
	"ebay":      "eBay",
	"poshmark":  "Poshmark",
	"instagram": "Instagram",
	"etsy":      "Etsy",
	"facebook":  "Facebook Marketplace",
}

func platformName(id string) string {
	if name, ok := platformNames[id]; ok {
		return name
	}
	return id
}

var stageNames = map[pipeline.Stage]string{
	pipeline.StageSampling:      "reading the video",
	pipeline.StageTranscription: "transcribing speech",
	pipeline.StageFrameAnalysis: "analyzing frames",
	pipeline.StageFusion:        "identifying the item",
	pipeline.StageContent:       "writing listings",
	pipeline.StagePersistence:   "saving the listing",
}

// formatProcessingError explains a failed run to the user.
func formatProcessingError(err error) string {
	stage := "processing"
	hint := escapeMarkdown(err.Error())

	var se *pipeline.StageError
	if errors.As(err, &se) {
		if name, ok := stageNames[se.Stage]; ok {
			stage = name
		}
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			hint = "It took too long. Please try again."
		case errors.Is(err, context.Canceled):
			hint = "Processing was cancelled."
		case errors.Is(err, pipeline.ErrMediaExtraction):
			hint = "Make sure the file is a playable video with sound."
		case errors.Is(err, pipeline.ErrTranscription):
			hint = "The speech in the video couldn't be transcribed. Please try again in a moment."
		case errors.Is(err, pipeline.ErrFrameAnalysisThreshold):
			hint = "Too few frames could be analyzed. Try a steadier, well lit video."
		case errors.Is(err, pipeline.ErrFusionParse):
			hint = "The item couldn't be identified. Please try again."
		case errors.Is(err, pipeline.ErrPersistence):
			hint = "The listing couldn't be saved. Please try again."
		}
	}
	return formatReplyText(MsgProcessingFailed, stage, hint)
}

// formatResult renders a successful run as a summary message followed by
// one message per generated platform listing.
func formatResult(res *pipeline.Result) []string {
	messages := []string{formatSummary(res)}
	for _, id := range slices.Sorted(maps.Keys(res.PlatformContent)) {
		messages = append(messages, formatPlatformContent(res.PlatformContent[id]))
	}
	return messages
}

func formatSummary(res *pipeline.Result) string {
	l := res.Listing
	if l == nil {
		l = &listing.Listing{}
	}

	var b strings.Builder
	b.WriteString(formatReplyText(MsgListingCreated,
		escapeMarkdown(l.Title),
		formatPrice(l.Price),
		escapeMarkdown(l.Category),
		escapeMarkdown(l.Condition),
		res.Confidence*100,
		res.ListingID,
	))

	if len(res.PlatformFailures) > 0 {
		names := make([]string, 0, len(res.PlatformFailures))
		for _, id := range slices.Sorted(maps.Keys(res.PlatformFailures)) {
			names = append(names, platformName(id))
		}
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf(MsgPlatformFailures, escapeMarkdown(strings.Join(names, ", "))))
	}
	if n := len(res.FrameFailures); n > 0 {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf(MsgFrameFailures, pluralize("frame", "frames", n)))
	}
	return b.String()
}

func formatPlatformContent(c *listing.PlatformContent) string {
	var b strings.Builder
	fmt.Fprintf(&b, MsgPlatformContentHeader, platformName(c.Platform))
	b.WriteString("\n\n")
	if c.Title != "" {
		b.WriteString(escapeMarkdown(c.Title))
		b.WriteString("\n\n")
	}
	b.WriteString(escapeMarkdown(truncateRunes(c.Body, maxMessageRunes)))
	if len(c.Hashtags) > 0 && !strings.Contains(c.Body, c.Hashtags[0]) {
		b.WriteString("\n\n")
		b.WriteString(escapeMarkdown(strings.Join(c.Hashtags, " ")))
	}
	return b.String()
}

func formatListings(listings []listing.Listing) string {
	var b strings.Builder
	b.WriteString(MsgListingsHeader)
	for _, l := range listings {
		fmt.Fprintf(&b, MsgListingsItem,
			escapeMarkdown(l.Title),
			formatPrice(l.Price),
			l.CreatedAt.Format("2006-01-02"))
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
