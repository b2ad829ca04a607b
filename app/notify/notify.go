// Package notify posts terminal project status to webhooks
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/notify"

	"github.com/tunivo/jobsync/app/project"
)

//go:generate moq -out mocks/sender.go -pkg mocks -skip-ensure -fmt goimports . Sender

// Sender delivers text to destination, implemented by notify.Webhook
type Sender interface {
	Send(ctx context.Context, destination, text string) error
}

// Params for NewWebhook
type Params struct {
	URLs         []string
	Timeout      time.Duration
	Headers      []string // "Name:Value" pairs
	OnCompletion bool
	OnError      bool
}

// Webhook sends a text line about completed or failed project to every configured url
type Webhook struct {
	Params
	sender Sender
}

// NewWebhook makes Webhook, returns nil if no urls set
func NewWebhook(p Params) *Webhook {
	if len(p.URLs) == 0 {
		return nil
	}
	if p.Timeout <= 0 {
		p.Timeout = 10 * time.Second
	}
	log.Printf("[INFO] webhook notifications enabled for %d url(s), completion: %v, error: %v",
		len(p.URLs), p.OnCompletion, p.OnError)
	return &Webhook{Params: p, sender: notify.NewWebhook(notify.WebhookParams{Timeout: p.Timeout, Headers: p.Headers})}
}

// Send posts project status to all urls. Errors of separate urls are joined.
func (w *Webhook) Send(ctx context.Context, p project.Project) error {
	if !w.enabled(p.Status) {
		return nil
	}
	text := MakeText(p)
	var errs []error
	for _, u := range w.URLs {
		log.Printf("[DEBUG] send %q to %s", text, u)
		if err := w.sender.Send(ctx, u, text); err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", u, err))
		}
	}
	return errors.Join(errs...)
}

func (w *Webhook) enabled(status project.Status) bool {
	switch status {
	case project.StatusCompleted:
		return w.OnCompletion
	case project.StatusFailed:
		return w.OnError
	}
	return false
}

// MakeText renders notification line, i.e. `"Night Drive" completed: Done https://host/files/j1.mp4`
func MakeText(p project.Project) string {
	res := fmt.Sprintf("%q %s: %s", p.Title, project.PrettyStatus(p.Status), p.Message)
	if dl := p.Download(); dl != "" {
		res += " " + dl
	}
	return res
}
