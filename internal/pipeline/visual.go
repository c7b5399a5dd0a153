package pipeline

import (
	"slices"
	"strconv"
	"strings"

	"github.com/raine/video-lister/internal/listing"
)

const (
	// DefaultFrameConfidence is used when the vision model gives no score.
	DefaultFrameConfidence = 0.85
	dominantColorCount     = 3
	unknownScene           = "unknown"
)

var ignoredValues = map[string]bool{
	"":            true,
	"unknown":     true,
	"n/a":         true,
	"na":          true,
	"none":        true,
	"not visible": true,
	"unclear":     true,
	"-":           true,
}

var colorWords = []string{
	"black", "white", "gray", "grey", "silver", "gold", "red", "blue", "navy",
	"green", "olive", "yellow", "orange", "pink", "purple", "brown", "tan",
	"beige", "cream", "ivory", "khaki", "burgundy", "teal", "turquoise",
}

type sceneRule struct {
	value    string
	keywords []string
}

var (
	settingRules = []sceneRule{
		{"indoor", []string{"indoor", "inside", "room", "kitchen", "bedroom", "closet", "studio", "table", "desk", "shelf", "floor"}},
		{"outdoor", []string{"outdoor", "outside", "garden", "street", "park", "yard", "patio", "driveway", "grass"}},
	}
	lightingRules = []sceneRule{
		{"natural", []string{"natural light", "daylight", "sunlight", "window light", "sunny"}},
		{"artificial", []string{"artificial", "lamp", "fluorescent", "led light", "overhead light", "flash"}},
		{"dim", []string{"dim", "dark", "low light", "shadow"}},
		{"bright", []string{"bright", "well-lit", "well lit"}},
	}
	backgroundRules = []sceneRule{
		{"plain", []string{"plain", "white background", "solid background", "neutral background", "clean background", "blank wall"}},
		{"cluttered", []string{"cluttered", "busy", "messy", "crowded"}},
		{"textured", []string{"wood", "carpet", "rug", "fabric", "tile", "brick"}},
	}
)

// frameLabels parses "Label: value" lines into a lowercase-keyed map.
// Markdown bullets and bold markers are ignored.
func frameLabels(text string) map[string]string {
	labels := map[string]string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• ")
		line = strings.ReplaceAll(line, "**", "")
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" || strings.Contains(key, " ") && len(key) > 20 {
			continue
		}
		if _, exists := labels[key]; !exists {
			labels[key] = strings.TrimSpace(value)
		}
	}
	return labels
}

// splitList splits a comma/semicolon separated value into normalized
// lowercase entries, dropping placeholders and duplicates.
func splitList(value string) []string {
	var out []string
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ';' || r == '/'
	})
	for _, f := range fields {
		f = strings.ToLower(strings.Trim(strings.TrimSpace(f), ".\"'"))
		f = strings.TrimPrefix(f, "and ")
		if ignoredValues[f] || slices.Contains(out, f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// parseMentions returns the item mentions of one frame description: the
// "Items:" line, or brand and model when no items line exists.
func parseMentions(labels map[string]string) []string {
	if items, ok := labels["items"]; ok {
		if mentions := splitList(items); len(mentions) > 0 {
			return mentions
		}
	}
	brand := strings.ToLower(strings.TrimSpace(labels["brand"]))
	model := strings.ToLower(strings.TrimSpace(labels["model"]))
	if ignoredValues[brand] {
		brand = ""
	}
	if ignoredValues[model] {
		model = ""
	}
	if name := strings.TrimSpace(brand + " " + model); name != "" {
		return []string{name}
	}
	return nil
}

// parseConfidence reads an explicit "Confidence:" score. Values with a %
// suffix or of 10 and above are percentages; anything else above 1 is on an
// unknown scale and is rejected. The result is clamped to [0,1].
func parseConfidence(labels map[string]string) (float64, bool) {
	raw, ok := labels["confidence"]
	if !ok {
		return 0, false
	}
	raw = strings.TrimSpace(raw)
	percent := strings.HasSuffix(raw, "%")
	raw = strings.TrimSuffix(raw, "%")
	if fields := strings.Fields(raw); len(fields) > 0 {
		raw = fields[0]
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	switch {
	case percent || v >= 10:
		v /= 100
	case v > 1:
		return 0, false
	}
	return clamp01(v), true
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

// NewFrameAnalysis turns one vision model answer into a FrameAnalysis.
func NewFrameAnalysis(index int, timestamp float64, description string) listing.FrameAnalysis {
	labels := frameLabels(description)
	confidence, ok := parseConfidence(labels)
	if !ok {
		confidence = DefaultFrameConfidence
	}
	return listing.FrameAnalysis{
		FrameIndex:  index,
		Timestamp:   timestamp,
		Description: strings.TrimSpace(description),
		Mentions:    parseMentions(labels),
		Confidence:  confidence,
	}
}

// BuildVisualAnalysis aggregates successful frame analyses. frames must be
// in frame index order.
func BuildVisualAnalysis(frames []listing.FrameAnalysis, failed []int) *listing.VisualAnalysis {
	va := &listing.VisualAnalysis{
		Frames:       frames,
		ObjectCounts: map[string]int{},
		FailedFrames: failed,
	}
	for _, f := range frames {
		for _, m := range f.Mentions {
			va.ObjectCounts[m]++
		}
	}
	va.DominantColors = dominantColors(frames)
	va.Scene = classifyScene(frames)
	return va
}

func dominantColors(frames []listing.FrameAnalysis) []string {
	counts := map[string]int{}
	var order []string
	add := func(c string) {
		if counts[c] == 0 {
			order = append(order, c)
		}
		counts[c]++
	}

	for _, f := range frames {
		labels := frameLabels(f.Description)
		var found []string
		if value, ok := labels["color"]; ok {
			found = splitList(value)
		} else if value, ok := labels["colors"]; ok {
			found = splitList(value)
		}
		if len(found) == 0 {
			lower := strings.ToLower(f.Description)
			for _, w := range colorWords {
				if containsWord(lower, w) {
					found = append(found, w)
				}
			}
		}
		for _, c := range found {
			add(c)
		}
	}

	// Stable sort keeps first-seen order for equal tallies
	slices.SortStableFunc(order, func(a, b string) int {
		return counts[b] - counts[a]
	})
	if len(order) > dominantColorCount {
		order = order[:dominantColorCount]
	}
	return order
}

func classifyScene(frames []listing.FrameAnalysis) listing.SceneContext {
	var texts []string
	for _, f := range frames {
		texts = append(texts, strings.ToLower(f.Description))
	}
	return listing.SceneContext{
		Setting:    vote(texts, settingRules),
		Lighting:   vote(texts, lightingRules),
		Background: vote(texts, backgroundRules),
	}
}

// vote returns the rule value with the most keyword hits across texts.
// Ties go to the earlier rule; no hits yields "unknown".
func vote(texts []string, rules []sceneRule) string {
	best, bestHits := unknownScene, 0
	for _, rule := range rules {
		hits := 0
		for _, text := range texts {
			for _, kw := range rule.keywords {
				if containsWord(text, kw) {
					hits++
				}
			}
		}
		if hits > bestHits {
			best, bestHits = rule.value, hits
		}
	}
	return best
}

// containsWord reports whether word occurs in text on word boundaries.
func containsWord(text, word string) bool {
	for i := 0; ; {
		j := strings.Index(text[i:], word)
		if j == -1 {
			return false
		}
		start := i + j
		end := start + len(word)
		if (start == 0 || !isLetter(text[start-1])) && (end == len(text) || !isLetter(text[end])) {
			return true
		}
		i = start + 1
	}
}

func isLetter(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
