package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/lithammer/dedent"
	"github.com/raine/video-lister/internal/listing"
	"github.com/raine/video-lister/internal/llm"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const contentTemperature float32 = 0.7

var contentPrompt = strings.TrimSpace(dedent.Dedent(`
	Create an optimized listing for %s based on this item analysis:

	%s

	Selling points: %s
	Seller's reason for selling: %s

	Platform requirements:
	%s

	Make it authentic and true to the seller's voice.

	Answer in exactly this format:
	%s
`))

var (
	hashtagPattern = regexp.MustCompile(`#[\p{L}\p{N}_]+`)
	labelPattern   = regexp.MustCompile(`(?i)^\s*(?:\d+[.)]\s*)?[*_]*\s*(title|description|caption|hashtags|tags)\s*[*_]*\s*:\s*[*_]*`)
)

var callToActionPhrases = []string{
	"shop now", "buy now", "dm", "message me", "send me", "link in bio",
	"comment", "tap", "grab it", "don't miss", "dont miss", "get yours",
	"contact me", "act fast",
}

// generateContent produces content for every requested platform. Each
// platform ends up in exactly one of the two returned maps.
func (p *Pipeline) generateContent(ctx context.Context, analysis *listing.CombinedAnalysis, platforms []string, rl *RunLog) (map[string]*listing.PlatformContent, map[string]*StageError) {
	contents := make([]*listing.PlatformContent, len(platforms))
	failures := make([]*StageError, len(platforms))

	var g errgroup.Group
	g.SetLimit(p.opts.PlatformConcurrency)

	for i, platform := range platforms {
		spec, ok := LookupPlatform(platform)
		if !ok {
			failures[i] = &StageError{
				Stage:      StageContent,
				Kind:       ErrContentGeneration,
				FrameIndex: -1,
				Platform:   platform,
				Err:        fmt.Errorf("unknown platform %q", platform),
			}
			continue
		}

		g.Go(func() error {
			pc, err := p.generateForPlatform(ctx, analysis, spec)
			if err != nil {
				failures[i] = &StageError{
					Stage:      StageContent,
					Kind:       ErrContentGeneration,
					FrameIndex: -1,
					Platform:   platform,
					Err:        err,
				}
				log.Warn().Err(err).Str("platform", platform).Msg("content generation failed")
				rl.Error("%s content failed: %v", platform, err)
				return nil
			}
			contents[i] = pc
			rl.Stage("%s content generated, score %.2f", platform, pc.OptimizationScore)
			return nil
		})
	}
	g.Wait()

	okMap := map[string]*listing.PlatformContent{}
	failMap := map[string]*StageError{}
	for i, platform := range platforms {
		switch {
		case contents[i] != nil:
			okMap[platform] = contents[i]
		case failures[i] != nil:
			failMap[platform] = failures[i]
		}
	}
	return okMap, failMap
}

func (p *Pipeline) generateForPlatform(ctx context.Context, analysis *listing.CombinedAnalysis, spec PlatformSpec) (*listing.PlatformContent, error) {
	req := llm.GenerateRequest{
		Prompt:      BuildContentPrompt(analysis, spec),
		Temperature: ptr(contentTemperature),
	}
	gen, err := callOnce(ctx, p.opts.CallTimeout, func(ctx context.Context) (*llm.Generation, error) {
		return p.text.Generate(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(gen.Text) == "" {
		return nil, fmt.Errorf("%w: empty content", llm.ErrMalformedResponse)
	}

	pc := ParsePlatformContent(spec, gen.Text)
	pc.OptimizationScore = ScoreContent(spec, pc, &analysis.ItemDetails)
	pc.GeneratedAt = p.now()
	return pc, nil
}

// BuildContentPrompt embeds the item details and the platform constraints.
func BuildContentPrompt(analysis *listing.CombinedAnalysis, spec PlatformSpec) string {
	details, _ := json.MarshalIndent(analysis.ItemDetails, "", "  ")

	var reqs []string
	if spec.TitleLimit > 0 {
		reqs = append(reqs, fmt.Sprintf("- Title limit: %d characters", spec.TitleLimit))
		reqs = append(reqs, fmt.Sprintf("- Description limit: %d characters", spec.DescriptionLimit))
	} else {
		reqs = append(reqs, fmt.Sprintf("- Caption limit: %d characters", spec.DescriptionLimit))
	}
	reqs = append(reqs, "- Style: "+spec.Style)
	reqs = append(reqs, "- Focus on: "+strings.Join(spec.Focus, ", "))
	if spec.Hashtags {
		reqs = append(reqs, "- Include relevant hashtags.")
	}
	if spec.CallToAction {
		reqs = append(reqs, "- Include a call-to-action and engagement hooks.")
	}

	var format string
	if spec.TitleLimit > 0 {
		format = "Title: <title>\nDescription:\n<description>"
	} else {
		format = "Caption:\n<caption>"
	}
	if spec.Hashtags {
		format += "\nHashtags: #tag1 #tag2"
	}

	reason := analysis.EmotionalContext.ReasonForSelling
	if reason == "" {
		reason = "not mentioned"
	}
	return fmt.Sprintf(contentPrompt,
		strings.ToUpper(spec.ID),
		details,
		strings.Join(analysis.SellingPoints, "; "),
		reason,
		strings.Join(reqs, "\n"),
		format,
	)
}

// ParsePlatformContent extracts title, body and hashtags from a free-text
// answer and truncates them to the platform limits.
func ParsePlatformContent(spec PlatformSpec, raw string) *listing.PlatformContent {
	text := llm.StripCodeFence(raw)
	lines := strings.Split(text, "\n")

	var title string
	var body []string
	section := ""
	sawBodyLabel := false
	titleLine := -1

	for i, line := range lines {
		m := labelPattern.FindStringSubmatchIndex(line)
		if m != nil {
			label := strings.ToLower(line[m[2]:m[3]])
			rest := strings.TrimSpace(strings.Trim(line[m[1]:], "*_"))
			switch label {
			case "title":
				if title == "" {
					title = rest
					titleLine = i
				}
				section = "title"
			case "description", "caption":
				section = "body"
				sawBodyLabel = true
				if rest != "" {
					body = append(body, rest)
				}
			case "hashtags", "tags":
				section = "hashtags"
			}
			continue
		}
		if section == "body" {
			body = append(body, line)
		}
	}

	if !sawBodyLabel {
		body = body[:0]
		for i, line := range lines {
			if i == titleLine || labelPattern.MatchString(line) {
				continue
			}
			body = append(body, line)
		}
	}
	if title == "" && spec.TitleLimit > 0 {
		// Fall back to the first non-empty line
		for i, line := range body {
			if s := strings.TrimSpace(line); s != "" {
				title = strings.Trim(s, "*#_ ")
				if !sawBodyLabel {
					body = body[i+1:]
				}
				break
			}
		}
	}

	pc := &listing.PlatformContent{
		Platform: spec.ID,
		Title:    truncateRunes(strings.TrimSpace(title), spec.TitleLimit),
		Body:     truncateRunes(strings.TrimSpace(strings.Join(body, "\n")), spec.DescriptionLimit),
		Hashtags: extractHashtags(text),
		Raw:      raw,
	}
	if spec.TitleLimit == 0 {
		pc.Title = ""
	}
	return pc
}

func extractHashtags(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, tag := range hashtagPattern.FindAllString(text, -1) {
		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
	}
	return out
}

// truncateRunes cuts s to at most limit characters. A limit of zero or
// less leaves s unchanged.
func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}

// ScoreContent rates generated content in [0.7, 1.0] as 0.7 plus 0.3 times
// the mean of the applicable checks.
func ScoreContent(spec PlatformSpec, pc *listing.PlatformContent, item *listing.ItemDetails) float64 {
	var checks []float64
	pass := func(ok bool) {
		if ok {
			checks = append(checks, 1)
		} else {
			checks = append(checks, 0)
		}
	}

	if spec.TitleLimit > 0 {
		pass(pc.Title != "" && utf8.RuneCountInString(pc.Title) <= spec.TitleLimit)
	}
	pass(pc.Body != "" && utf8.RuneCountInString(pc.Body) <= spec.DescriptionLimit)

	text := strings.ToLower(pc.Title + "\n" + pc.Body)
	checkable, present := 0, 0
	for _, field := range spec.EmphasizedFields {
		value := strings.ToLower(strings.TrimSpace(itemField(item, field)))
		if value == "" || ignoredValues[value] {
			continue
		}
		checkable++
		if strings.Contains(text, value) {
			present++
		}
	}
	if checkable > 0 {
		checks = append(checks, float64(present)/float64(checkable))
	}

	if spec.Hashtags {
		pass(len(pc.Hashtags) > 0)
	}
	if spec.CallToAction {
		found := false
		for _, phrase := range callToActionPhrases {
			if containsWord(text, phrase) {
				found = true
				break
			}
		}
		pass(found)
	}

	var sum float64
	for _, c := range checks {
		sum += c
	}
	return 0.7 + 0.3*sum/float64(len(checks))
}

func itemField(item *listing.ItemDetails, field string) string {
	switch field {
	case "brand":
		return item.Brand
	case "model":
		return item.Model
	case "condition":
		return item.Condition
	case "size":
		return item.Size
	case "color":
		return item.Color
	case "material":
		return item.Material
	case "category":
		return item.Category
	}
	return ""
}
