// Package backend implements client of the Tunivo job API: login, job submission and job status.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"

	"github.com/tunivo/jobsync/app/project"
)

// DefaultOrigin is the hosted production API
const DefaultOrigin = "https://tuniv-backend-production.up.railway.app"

// UserHeader identifies the submitter for job endpoints
const UserHeader = "X-User-Email"

const maxResponseSize = 1024 * 1024

// Repeater repeats failed function
type Repeater interface {
	Do(ctx context.Context, fun func() error, errors ...error) (err error)
}

// Client talks to the job API
type Client struct {
	origin     string
	httpClient *http.Client
	repeater   Repeater
}

// Params for New
type Params struct {
	Origin     string        // api origin, e.g. https://api.example.com
	Timeout    time.Duration // per-request timeout, 30s if not set
	Repeater   Repeater      // retries network failures of status fetches, single attempt if nil
	HTTPClient *http.Client  // optional, overrides Timeout
}

// Identity is a logged in user
type Identity struct {
	Email string `json:"email"`
	Plan  string `json:"plan"`
}

// Job is the backend view of a generation job
type Job struct {
	ID          string         `json:"id"`
	Status      project.Status `json:"status"`
	Progress    float64        `json:"progress"`
	Message     string         `json:"message"`
	Report      project.Report `json:"report"`
	Plan        string         `json:"plan"`
	DownloadURL *string        `json:"download_url,omitempty"`
}

// CreateJobRequest is a new job submission
type CreateJobRequest struct {
	Audio          io.Reader
	AudioName      string
	Prompt         string
	Lyrics         string
	Mode           project.Mode
	Aspect         project.Aspect
	AutoTranscribe bool
	UserEmail      string
}

// ErrNoAudio returned when submission has no audio payload
var ErrNoAudio = errors.New("audio is required")

// errNoRetry stops repeater on errors which won't be fixed by retry
var errNoRetry = errors.New("no retry")

// New makes Client
func New(p Params) *Client {
	res := &Client{origin: strings.TrimRight(p.Origin, "/"), httpClient: p.HTTPClient, repeater: p.Repeater}
	if res.origin == "" {
		res.origin = DefaultOrigin
	}
	if res.httpClient == nil {
		timeout := p.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		res.httpClient = &http.Client{Timeout: timeout}
	}
	if res.repeater == nil {
		res.repeater = repeater.New(&strategy.Once{})
	}
	return res
}

// URL resolves path against api origin. Absolute http(s) urls returned as is.
func (c *Client) URL(path string) string {
	if path == "" {
		return c.origin
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.origin + path
}

// Login sends email to the backend and returns canonical identity. Any non-2xx is AuthError.
func (c *Client) Login(ctx context.Context, email string) (Identity, error) {
	body, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return Identity{}, fmt.Errorf("can't marshal login request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL("/api/auth/login"), bytes.NewReader(body))
	if err != nil {
		return Identity{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("login request failed: %w", err)
	}
	defer closeBody(resp)

	if !isSuccess(resp.StatusCode) {
		return Identity{}, &AuthError{Status: resp.StatusCode}
	}
	var res Identity
	if err := decode(resp, &res); err != nil {
		return Identity{}, fmt.Errorf("can't decode login response: %w", err)
	}
	log.Printf("[INFO] logged in as %s, plan %s", res.Email, res.Plan)
	return res, nil
}

// CreateJob submits audio with generation parameters and returns job id
func (c *Client) CreateJob(ctx context.Context, r CreateJobRequest) (string, error) {
	if r.Audio == nil {
		return "", ErrNoAudio
	}
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	fw, err := mw.CreateFormFile("audio", r.AudioName)
	if err != nil {
		return "", fmt.Errorf("can't create audio part: %w", err)
	}
	n, err := io.Copy(fw, r.Audio)
	if err != nil {
		return "", fmt.Errorf("can't read audio: %w", err)
	}
	if n == 0 {
		return "", ErrNoAudio
	}
	fields := []struct{ name, value string }{
		{"prompt", r.Prompt},
		{"lyrics", r.Lyrics},
		{"mode", string(r.Mode)},
		{"aspect_ratio", string(r.Aspect)},
		{"auto_transcribe", strconv.FormatBool(r.AutoTranscribe)},
	}
	for _, f := range fields {
		if err = mw.WriteField(f.name, f.value); err != nil {
			return "", fmt.Errorf("can't write field %s: %w", f.name, err)
		}
	}
	if err = mw.Close(); err != nil {
		return "", fmt.Errorf("can't close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL("/api/jobs"), buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(UserHeader, r.UserEmail)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("job submission failed: %w", err)
	}
	defer closeBody(resp)

	if !isSuccess(resp.StatusCode) {
		var payload struct {
			Detail string `json:"detail"`
		}
		if e := decode(resp, &payload); e != nil {
			log.Printf("[DEBUG] no detail in job creation error response, %v", e)
		}
		return "", &JobCreationError{Status: resp.StatusCode, Detail: payload.Detail}
	}

	var res struct {
		ID string `json:"id"`
	}
	if err := decode(resp, &res); err != nil {
		return "", fmt.Errorf("can't decode job creation response: %w", err)
	}
	if res.ID == "" {
		return "", &JobCreationError{Status: resp.StatusCode, Detail: "no job id in response"}
	}
	log.Printf("[INFO] job %s created for %s", res.ID, r.UserEmail)
	return res.ID, nil
}

// GetJob fetches current job status on behalf of email.
// Network failures are TransientFetchError, non-2xx responses are StatusError.
func (c *Client) GetJob(ctx context.Context, id, email string) (Job, error) {
	var res Job
	var finalErr error
	err := c.repeater.Do(ctx, func() error {
		job, e := c.getJob(ctx, id, email)
		if e == nil {
			res = job
			return nil
		}
		finalErr = e
		var terr *TransientFetchError
		if errors.As(e, &terr) && ctx.Err() == nil {
			return e
		}
		return errNoRetry
	}, errNoRetry)

	if err != nil {
		if finalErr != nil {
			return Job{}, finalErr
		}
		return Job{}, &TransientFetchError{Err: err}
	}
	return res, nil
}

func (c *Client) getJob(ctx context.Context, id, email string) (Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL("/api/jobs/"+url.PathEscape(id)), http.NoBody)
	if err != nil {
		return Job{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(UserHeader, email)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Job{}, &TransientFetchError{Err: err}
	}
	defer closeBody(resp)

	if !isSuccess(resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Job{}, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var res Job
	if err := decode(resp, &res); err != nil {
		// truncated or garbled body is a transport problem, try next time
		return Job{}, &TransientFetchError{Err: fmt.Errorf("can't decode job %s: %w", id, err)}
	}
	return res, nil
}

func (c *Client) String() string {
	return c.origin
}

func decode(resp *http.Response, v any) error {
	return json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(v)
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		log.Printf("[WARN] failed to close response body: %v", err)
	}
}
