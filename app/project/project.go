// Package project defines the locally tracked project record mirroring a backend generation job,
// plus read helpers used to render its progress steps and agent scorecard.
package project

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Mode is the generation quality mode
type Mode string

// supported modes
const (
	ModeFast Mode = "fast"
	ModeHigh Mode = "high"
)

// Aspect is the output video aspect ratio
type Aspect string

// supported aspect ratios
const (
	Aspect16x9 Aspect = "16:9"
	Aspect9x16 Aspect = "9:16"
	Aspect1x1  Aspect = "1:1"
)

// Status is the backend job status. Values other than the constants below are kept as is.
type Status string

// known statuses
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// InitialProgress is set on a freshly created project, meaning "accepted but not measured yet"
const InitialProgress = 0.02

// ParseMode validates mode string
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeFast, ModeHigh:
		return m, nil
	}
	return "", fmt.Errorf("invalid mode %q, use %q or %q", s, ModeFast, ModeHigh)
}

// ParseAspect validates aspect ratio string
func ParseAspect(s string) (Aspect, error) {
	switch a := Aspect(strings.TrimSpace(s)); a {
	case Aspect16x9, Aspect9x16, Aspect1x1:
		return a, nil
	}
	return "", fmt.Errorf("invalid aspect ratio %q, use %q, %q or %q", s, Aspect16x9, Aspect9x16, Aspect1x1)
}

// IsTerminal reports whether no further state change is expected from the backend
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Project is the client-local record of a backend job plus user-entered creation parameters.
// Only Status, Progress, Message, Plan, Report and DownloadURL change after creation.
type Project struct {
	ID             string  `json:"id"`
	CreatedAt      int64   `json:"createdAt"` // unix milliseconds
	Title          string  `json:"title"`
	Prompt         string  `json:"prompt"`
	Lyrics         string  `json:"lyrics"`
	Mode           Mode    `json:"mode" jsonschema:"enum=fast,enum=high"`
	Aspect         Aspect  `json:"aspect" jsonschema:"enum=16:9,enum=9:16,enum=1:1"`
	AutoTranscribe bool    `json:"autoTranscribe"`
	UserEmail      string  `json:"userEmail"`
	Status         Status  `json:"status"`
	Progress       float64 `json:"progress"`
	Message        string  `json:"message"`
	Plan           string  `json:"plan"`
	Report         Report  `json:"report,omitempty"`
	DownloadURL    *string `json:"downloadUrl,omitempty"`
}

// Created returns creation time
func (p Project) Created() time.Time {
	return time.UnixMilli(p.CreatedAt)
}

// Download returns download url or empty string if not available yet
func (p Project) Download() string {
	if p.DownloadURL == nil {
		return ""
	}
	return *p.DownloadURL
}

// Scorecard returns agent iterations and the issues of the latest one
func (p Project) Scorecard() Scorecard {
	iterations := p.Report.Iterations()
	res := Scorecard{Iterations: iterations, Issues: []Issue{}}
	if len(iterations) > 0 && iterations[len(iterations)-1].Issues != nil {
		res.Issues = iterations[len(iterations)-1].Issues
	}
	return res
}

// Report is the backend-produced report, opaque except for "iterations".
// It is always replaced as a whole, never patched.
type Report map[string]any

// Iterations decodes report.iterations, oldest first. Missing or malformed data gives an empty list.
func (r Report) Iterations() []AgentIteration {
	raw, ok := r["iterations"]
	if !ok || raw == nil {
		return []AgentIteration{}
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return []AgentIteration{}
	}
	var res []AgentIteration
	if err := json.Unmarshal(data, &res); err != nil {
		return []AgentIteration{}
	}
	return res
}

// AgentIteration is one scoring pass of the backend self-editing agent
type AgentIteration struct {
	Total      float64 `json:"total"`
	Relevance  float64 `json:"relevance"`
	Continuity float64 `json:"continuity"`
	Variety    float64 `json:"variety"`
	Pacing     float64 `json:"pacing"`
	Technical  float64 `json:"technical"`
	Issues     []Issue `json:"issues,omitempty"`
}

// Issue is a problem found by the agent in a segment of the iteration it belongs to
type Issue struct {
	SegmentIndex int    `json:"segment_index"`
	Reason       string `json:"reason"`
	Severity     string `json:"severity"`
}

// Scorecard is the renderable agent summary
type Scorecard struct {
	Iterations []AgentIteration `json:"iterations"`
	Issues     []Issue          `json:"issues"`
}

// Steps are pipeline stages shown for a project
var Steps = []string{"Analyze", "Generate", "Assemble", "Self-edit", "Export"}

// ProgressToStep maps progress in [0,1] to index in Steps
func ProgressToStep(progress float64) int {
	switch {
	case progress < 0.2:
		return 0
	case progress < 0.45:
		return 1
	case progress < 0.65:
		return 2
	case progress < 0.85:
		return 3
	default:
		return 4
	}
}

// StepFor maps status and progress to index in Steps.
// Failed and unknown statuses fall back to the progress mapping.
func StepFor(status Status, progress float64) int {
	switch status {
	case StatusQueued:
		return 0
	case StatusCompleted:
		return len(Steps) - 1
	default:
		return ProgressToStep(progress)
	}
}

// Percent returns progress as rounded percentage clamped to [0,100]
func Percent(progress float64) int {
	if math.IsNaN(progress) {
		return 0
	}
	return int(math.Max(0, math.Min(100, math.Round(progress*100))))
}

// PrettyStatus makes status human-readable, "self_editing" -> "self editing"
func PrettyStatus(s Status) string {
	return strings.ReplaceAll(string(s), "_", " ")
}
