package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunivo/jobsync/app/notify/mocks"
	"github.com/tunivo/jobsync/app/project"
)

func TestNewWebhook_NoURLs(t *testing.T) {
	assert.Nil(t, NewWebhook(Params{OnCompletion: true}))
}

func TestMakeText(t *testing.T) {
	dl := "https://api.example.com/files/j1.mp4"
	tests := []struct {
		name string
		prj  project.Project
		want string
	}{
		{"completed with download", project.Project{Title: "Night Drive", Status: project.StatusCompleted,
			Message: "Done", DownloadURL: &dl}, `"Night Drive" completed: Done https://api.example.com/files/j1.mp4`},
		{"failed", project.Project{Title: "song.mp3", Status: project.StatusFailed, Message: "render error"},
			`"song.mp3" failed: render error`},
		{"custom status", project.Project{Title: "x", Status: "self_editing", Message: "scoring"},
			`"x" self editing: scoring`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MakeText(tt.prj))
		})
	}
}

func TestWebhook_Send(t *testing.T) {
	tests := []struct {
		name         string
		status       project.Status
		onCompletion bool
		onError      bool
		sent         bool
	}{
		{"completed enabled", project.StatusCompleted, true, false, true},
		{"completed disabled", project.StatusCompleted, false, true, false},
		{"failed enabled", project.StatusFailed, false, true, true},
		{"failed disabled", project.StatusFailed, true, false, false},
		{"not terminal", project.StatusProcessing, true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &mocks.SenderMock{SendFunc: func(context.Context, string, string) error { return nil }}
			wh := Webhook{Params: Params{URLs: []string{"https://hooks.example.com/a", "https://hooks.example.com/b"},
				OnCompletion: tt.onCompletion, OnError: tt.onError}, sender: sender}

			err := wh.Send(context.Background(), project.Project{ID: "j1", Title: "t", Status: tt.status, Message: "m"})
			require.NoError(t, err)
			if !tt.sent {
				assert.Empty(t, sender.SendCalls())
				return
			}
			require.Len(t, sender.SendCalls(), 2)
			assert.Equal(t, "https://hooks.example.com/a", sender.SendCalls()[0].Destination)
			assert.Equal(t, "https://hooks.example.com/b", sender.SendCalls()[1].Destination)
			assert.Equal(t, `"t" `+string(tt.status)+`: m`, sender.SendCalls()[0].Text)
		})
	}
}

func TestWebhook_SendErrors(t *testing.T) {
	sender := &mocks.SenderMock{SendFunc: func(_ context.Context, dest, _ string) error {
		if dest == "https://hooks.example.com/bad" {
			return errors.New("connection refused")
		}
		return nil
	}}
	wh := Webhook{Params: Params{URLs: []string{"https://hooks.example.com/bad", "https://hooks.example.com/good"},
		OnCompletion: true}, sender: sender}

	err := wh.Send(context.Background(), project.Project{Title: "t", Status: project.StatusCompleted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook https://hooks.example.com/bad: connection refused")
	assert.Len(t, sender.SendCalls(), 2, "all urls tried")
}

func TestWebhook_SendHTTP(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	var header string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		header = r.Header.Get("X-Source")
		mu.Unlock()
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	wh := NewWebhook(Params{URLs: []string{ts.URL + "/hook"}, Timeout: time.Second, Headers: []string{"X-Source:jobsync"},
		OnCompletion: true, OnError: true})
	require.NotNil(t, wh)

	dl := "https://api.example.com/files/j1.mp4"
	err := wh.Send(context.Background(), project.Project{Title: "Night Drive", Status: project.StatusCompleted,
		Message: "Done", DownloadURL: &dl})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{`"Night Drive" completed: Done https://api.example.com/files/j1.mp4`}, bodies)
	assert.Equal(t, "jobsync", header)
}

func TestWebhook_SendHTTPFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	wh := NewWebhook(Params{URLs: []string{ts.URL}, OnError: true})
	require.NotNil(t, wh)
	err := wh.Send(context.Background(), project.Project{Title: "t", Status: project.StatusFailed})
	assert.Error(t, err)
}
