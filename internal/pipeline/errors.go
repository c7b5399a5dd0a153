package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every StageError wraps exactly one of these.
var (
	ErrMediaExtraction        = errors.New("media extraction failed")
	ErrTranscription          = errors.New("transcription failed")
	ErrVisionAnalysis         = errors.New("vision analysis failed")
	ErrFrameAnalysisThreshold = errors.New("too few frames analyzed")
	ErrFusionParse            = errors.New("fusion output invalid")
	ErrContentGeneration      = errors.New("content generation failed")
	ErrPersistence            = errors.New("persistence failed")
)

// Stage names a pipeline step.
type Stage string

const (
	StageSampling      Stage = "sampling"
	StageTranscription Stage = "transcription"
	StageFrameAnalysis Stage = "frame_analysis"
	StageFusion        Stage = "fusion"
	StageContent       Stage = "content_generation"
	StagePersistence   Stage = "persistence"
)

// StageError carries the stage, error kind and the frame or platform that
// failed. FrameIndex is -1 when not frame specific.
type StageError struct {
	Stage      Stage
	Kind       error
	FrameIndex int
	Platform   string
	Err        error
}

func newStageError(stage Stage, kind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, FrameIndex: -1, Err: err}
}

func (e *StageError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Stage))
	if e.FrameIndex >= 0 {
		fmt.Fprintf(&b, " (frame %d)", e.FrameIndex)
	}
	if e.Platform != "" {
		fmt.Fprintf(&b, " (platform %s)", e.Platform)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// MarshalJSON renders the error for run reports.
func (e *StageError) MarshalJSON() ([]byte, error) {
	out := struct {
		Stage      Stage  `json:"stage"`
		Kind       string `json:"kind"`
		FrameIndex *int   `json:"frameIndex,omitempty"`
		Platform   string `json:"platform,omitempty"`
		Error      string `json:"error"`
	}{
		Stage:    e.Stage,
		Kind:     e.Kind.Error(),
		Platform: e.Platform,
		Error:    e.Error(),
	}
	if e.FrameIndex >= 0 {
		out.FrameIndex = &e.FrameIndex
	}
	return json.Marshal(out)
}
