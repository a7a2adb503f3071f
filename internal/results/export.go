// internal/results/export.go
package results

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/pentest-crew/api/schemas"
	"github.com/xkilldash9x/pentest-crew/internal/conversation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RunRecord is everything kept about one finished phase run: how it ended and
// the full transcript.
type RunRecord struct {
	RunID      uuid.UUID              `json:"run_id"`
	Phase      schemas.PhaseName      `json:"phase"`
	Reason     string                 `json:"reason"`
	Stage      string                 `json:"stage"`
	Rounds     int                    `json:"rounds"`
	Target     string                 `json:"target,omitempty"`
	ReportPath string                 `json:"report_path,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	Duration   time.Duration          `json:"duration"`
	Error      string                 `json:"error,omitempty"`
	Summary    map[string]int         `json:"summary"`
	Messages   []conversation.Message `json:"messages"`
}

// Summarize counts messages per intent. The "total" key holds the message count.
func Summarize(msgs []conversation.Message) map[string]int {
	summary := map[string]int{"total": len(msgs)}
	for _, m := range msgs {
		summary[string(m.Intent)]++
	}
	return summary
}

// TranscriptFile is the export path for a run, <phase>-<run id>.json.
func (l Layout) TranscriptFile(phase schemas.PhaseName, runID uuid.UUID) string {
	return filepath.Join(l.Transcripts(), fmt.Sprintf("%s-%s.json", phase, runID))
}

// ExportTranscript writes rec as indented JSON and returns the file path.
func (l Layout) ExportTranscript(rec RunRecord) (string, error) {
	if rec.Summary == nil {
		rec.Summary = Summarize(rec.Messages)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode transcript: %w", err)
	}
	if err := os.MkdirAll(l.Transcripts(), 0o755); err != nil {
		return "", fmt.Errorf("failed to create transcripts directory: %w", err)
	}
	path := l.TranscriptFile(rec.Phase, rec.RunID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}
	return path, nil
}

// LoadTranscript reads an exported run back.
func LoadTranscript(path string) (RunRecord, error) {
	var rec RunRecord
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, fmt.Errorf("failed to read transcript: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("failed to decode transcript %s: %w", path, err)
	}
	return rec, nil
}
