package project

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"fast", ModeFast, false},
		{"high", ModeHigh, false},
		{" HIGH ", ModeHigh, false},
		{"", "", true},
		{"ultra", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m)
		})
	}
}

func TestParseAspect(t *testing.T) {
	for _, s := range []string{"16:9", "9:16", "1:1"} {
		a, err := ParseAspect(s)
		require.NoError(t, err)
		assert.Equal(t, Aspect(s), a)
	}
	_, err := ParseAspect("4:3")
	assert.EqualError(t, err, `invalid aspect ratio "4:3", use "16:9", "9:16" or "1:1"`)
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusQueued.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
	assert.False(t, Status("self_editing").IsTerminal())
}

func TestProgressToStep(t *testing.T) {
	tests := []struct {
		progress float64
		step     int
	}{
		{0, 0}, {0.02, 0}, {0.19, 0}, {0.2, 1}, {0.44, 1}, {0.45, 2},
		{0.64, 2}, {0.65, 3}, {0.84, 3}, {0.85, 4}, {1, 4}, {1.5, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.step, ProgressToStep(tt.progress), "progress %v", tt.progress)
	}
}

func TestStepFor(t *testing.T) {
	assert.Equal(t, 0, StepFor(StatusQueued, 0.5))
	assert.Equal(t, 4, StepFor(StatusCompleted, 0.1))
	assert.Equal(t, 2, StepFor(StatusProcessing, 0.5))
	assert.Equal(t, 3, StepFor(StatusFailed, 0.7))
	assert.Equal(t, 1, StepFor(Status("rendering_segments"), 0.3), "unknown status uses progress")
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, Percent(-0.5))
	assert.Equal(t, 2, Percent(0.02))
	assert.Equal(t, 40, Percent(0.4))
	assert.Equal(t, 100, Percent(1.2))
}

func TestPrettyStatus(t *testing.T) {
	assert.Equal(t, "self editing", PrettyStatus("self_editing"))
	assert.Equal(t, "queued", PrettyStatus(StatusQueued))
}

func TestProject_Scorecard(t *testing.T) {
	data := `{"id":"j1","status":"processing","report":{"iterations":[
		{"total":61,"relevance":7,"continuity":6,"variety":5,"pacing":6,"technical":8,
			"issues":[{"segment_index":2,"reason":"jump cut","severity":"high"}]},
		{"total":74,"relevance":8,"continuity":7,"variety":7,"pacing":7,"technical":8,
			"issues":[{"segment_index":5,"reason":"repeated shot","severity":"low"}]}
	],"final_score":74}}`

	var p Project
	require.NoError(t, json.Unmarshal([]byte(data), &p))

	sc := p.Scorecard()
	require.Len(t, sc.Iterations, 2)
	assert.Equal(t, 61.0, sc.Iterations[0].Total)
	assert.Equal(t, 74.0, sc.Iterations[1].Total)
	assert.Equal(t, []Issue{{SegmentIndex: 5, Reason: "repeated shot", Severity: "low"}}, sc.Issues)
}

func TestProject_ScorecardEmpty(t *testing.T) {
	tests := []struct {
		name   string
		report Report
	}{
		{"nil report", nil},
		{"no iterations", Report{"something": 1}},
		{"empty iterations", Report{"iterations": []any{}}},
		{"malformed iterations", Report{"iterations": "bad"}},
		{"iteration without issues", Report{"iterations": []any{map[string]any{"total": 50}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := Project{Report: tt.report}.Scorecard()
			assert.NotNil(t, sc.Issues)
			assert.Empty(t, sc.Issues)
		})
	}
}

func TestProject_JSON(t *testing.T) {
	url := "https://api.example.com/files/x.mp4"
	p := Project{ID: "j1", CreatedAt: 1700000000000, Title: "song.mp3", Mode: ModeFast, Aspect: Aspect16x9,
		Status: StatusCompleted, Progress: 1, DownloadURL: &url}
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"downloadUrl":"https://api.example.com/files/x.mp4"`)
	assert.Contains(t, string(data), `"createdAt":1700000000000`)
	assert.NotContains(t, string(data), `"report"`)
	assert.Equal(t, url, p.Download())
	assert.Equal(t, int64(1700000000000), p.Created().UnixMilli())

	p.DownloadURL = nil
	assert.Equal(t, "", p.Download())
}
