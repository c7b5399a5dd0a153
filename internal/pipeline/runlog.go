package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RunLog is a human-readable trace of one pipeline run, written to
// run_<id>.log in the configured directory. A nil RunLog discards entries.
type RunLog struct {
	path string
	mu   sync.Mutex
}

// StartRunLog creates a fresh log file for a run. It returns nil when dir
// is empty or the file cannot be created.
func StartRunLog(dir, runID, ownerID, videoPath string) *RunLog {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("failed to create run log dir")
		return nil
	}
	path := filepath.Join(dir, fmt.Sprintf("run_%s.log", runID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		log.Error().Err(err).Str("runId", runID).Msg("failed to start run log")
		return nil
	}
	defer f.Close()

	header := fmt.Sprintf("=== Run Log ===\nRun: %s\nOwner: %s\nVideo: %s\nStarted: %s\n\n",
		runID, ownerID, videoPath, time.Now().Format("2006-01-02 15:04:05"))
	f.WriteString(header)
	return &RunLog{path: path}
}

// Path returns the log file location.
func (r *RunLog) Path() string {
	if r == nil {
		return ""
	}
	return r.path
}

func (r *RunLog) append(prefix, msg string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Error().Err(err).Str("path", r.path).Msg("failed to write run log")
		return
	}
	defer f.Close()

	timestamp := time.Now().Format("15:04:05")
	f.WriteString(fmt.Sprintf("[%s] %s %s\n", timestamp, prefix, msg))
}

// Stage logs stage progress.
func (r *RunLog) Stage(format string, args ...any) {
	r.append("STAGE", fmt.Sprintf(format, args...))
}

// LLM logs model interactions.
func (r *RunLog) LLM(format string, args ...any) {
	r.append("LLM  ", fmt.Sprintf(format, args...))
}

// Error logs failures.
func (r *RunLog) Error(format string, args ...any) {
	r.append("ERROR", fmt.Sprintf(format, args...))
}
