// Package tracker synchronizes locally tracked projects with backend jobs. It submits new jobs,
// polls job status with a fixed delay until the job is completed or failed (or the consumer
// detaches) and merges every fetched status into the local record.
//
// Each fetch gets a per-project sequence number; a result is merged only if no later-dispatched
// fetch has been merged already, so a slow stale response never overwrites a newer one.
// Results arriving after Unsubscribe or Delete are discarded.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/syncs"

	"github.com/tunivo/jobsync/app/backend"
	"github.com/tunivo/jobsync/app/project"
	"github.com/tunivo/jobsync/app/store"
)

//go:generate moq -out mocks/backend.go -pkg mocks -skip-ensure -fmt goimports . Backend
//go:generate moq -out mocks/notifier.go -pkg mocks -skip-ensure -fmt goimports . Notifier

// DefaultPollInterval is the delay between a settled fetch and the next one
const DefaultPollInterval = 1500 * time.Millisecond

// ErrNotFound returned for ids absent from the local collection
var ErrNotFound = store.ErrNotFound

// ErrNoAudio returned by Create without audio payload
var ErrNoAudio = backend.ErrNoAudio

// Backend is the job API used by tracker
type Backend interface {
	CreateJob(ctx context.Context, r backend.CreateJobRequest) (string, error)
	GetJob(ctx context.Context, id, email string) (backend.Job, error)
	URL(path string) string
}

// Identity provides current user email and plan
type Identity interface {
	Email() string
	Plan() string
}

// Store is the local project collection
type Store interface {
	Load() []project.Project
	Get(id string) (project.Project, error)
	Upsert(p project.Project) error
	Remove(id string) error
}

// Notifier is called once when a tracked project reaches completed or failed status
type Notifier interface {
	Send(ctx context.Context, p project.Project) error
}

// Params for New
type Params struct {
	Backend              Backend
	Identity             Identity
	Store                Store
	Notifier             Notifier      // optional
	PollInterval         time.Duration // DefaultPollInterval if not set
	MaxConcurrentFetches int           // across all projects, 8 if not set
	NotifyTimeout        time.Duration // 10s if not set
}

// Tracker is the job synchronization module
type Tracker struct {
	backend       Backend
	identity      Identity
	store         Store
	notifier      Notifier
	pollInterval  time.Duration
	notifyTimeout time.Duration
	fetchSem      sync.Locker
	now           func() time.Time

	mu         sync.Mutex
	subs       map[string]*subscription
	nextSeq    map[string]uint64 // last dispatched fetch per id
	appliedSeq map[string]uint64 // last merged fetch per id
	inFlight   map[string]int
	notified   map[string]bool
	wg         sync.WaitGroup
}

// View is the read model of a tracked project
type View struct {
	Project project.Project
	Loading bool  // a fetch for the project is in flight
	Err     error // last persistence error, polling failures are never reported here
}

// CreateRequest is a new generation job
type CreateRequest struct {
	Audio          io.Reader
	AudioName      string
	Title          string // AudioName if empty
	Prompt         string
	Lyrics         string
	Mode           project.Mode
	Aspect         project.Aspect
	AutoTranscribe bool
}

type subscription struct {
	id     string
	ch     chan View
	cancel context.CancelFunc
}

// New makes Tracker
func New(p Params) *Tracker {
	res := &Tracker{
		backend:       p.Backend,
		identity:      p.Identity,
		store:         p.Store,
		notifier:      p.Notifier,
		pollInterval:  p.PollInterval,
		notifyTimeout: p.NotifyTimeout,
		now:           time.Now,
		subs:          map[string]*subscription{},
		nextSeq:       map[string]uint64{},
		appliedSeq:    map[string]uint64{},
		inFlight:      map[string]int{},
		notified:      map[string]bool{},
	}
	if res.pollInterval <= 0 {
		res.pollInterval = DefaultPollInterval
	}
	if res.notifyTimeout <= 0 {
		res.notifyTimeout = 10 * time.Second
	}
	maxFetches := p.MaxConcurrentFetches
	if maxFetches <= 0 {
		maxFetches = 8
	}
	res.fetchSem = syncs.NewSemaphore(maxFetches)
	return res
}

// Create submits a new job and stores its initial local record.
// Nothing is stored if the backend rejects the job.
func (t *Tracker) Create(ctx context.Context, r CreateRequest) (project.Project, error) {
	if r.Audio == nil || r.AudioName == "" {
		return project.Project{}, ErrNoAudio
	}
	mode, err := project.ParseMode(string(r.Mode))
	if err != nil {
		return project.Project{}, err
	}
	aspect, err := project.ParseAspect(string(r.Aspect))
	if err != nil {
		return project.Project{}, err
	}

	email := t.identity.Email()
	id, err := t.backend.CreateJob(ctx, backend.CreateJobRequest{
		Audio:          r.Audio,
		AudioName:      r.AudioName,
		Prompt:         r.Prompt,
		Lyrics:         r.Lyrics,
		Mode:           mode,
		Aspect:         aspect,
		AutoTranscribe: r.AutoTranscribe,
		UserEmail:      email,
	})
	if err != nil {
		return project.Project{}, err
	}

	title := strings.TrimSpace(r.Title)
	if title == "" {
		title = r.AudioName
	}
	res := project.Project{
		ID:             id,
		CreatedAt:      t.now().UnixMilli(),
		Title:          title,
		Prompt:         r.Prompt,
		Lyrics:         r.Lyrics,
		Mode:           mode,
		Aspect:         aspect,
		AutoTranscribe: r.AutoTranscribe,
		UserEmail:      email,
		Status:         project.StatusQueued,
		Progress:       project.InitialProgress,
		Message:        "Queued",
		Plan:           t.identity.Plan(),
	}
	if err := t.store.Upsert(res); err != nil {
		return project.Project{}, fmt.Errorf("job %s created, but can't be saved locally: %w", id, err)
	}
	log.Printf("[INFO] project %s (%q) created, mode %s, aspect %s", id, title, mode, aspect)
	return res, nil
}

// List returns all local projects, newest first
func (t *Tracker) List() []project.Project {
	res := t.store.Load()
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt > res[j].CreatedAt })
	return res
}

// Get returns local project record
func (t *Tracker) Get(id string) (project.Project, error) {
	return t.store.Get(id)
}

// View returns read model of the project
func (t *Tracker) View(id string) (View, error) {
	p, err := t.store.Get(id)
	if err != nil {
		return View{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return View{Project: p, Loading: t.inFlight[id] > 0}, nil
}

// Delete stops tracking the project locally. The backend job is not affected.
func (t *Tracker) Delete(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.detachLocked(id)
	delete(t.appliedSeq, id)
	delete(t.notified, id)
	if err := t.store.Remove(id); err != nil {
		return fmt.Errorf("can't delete project %s: %w", id, err)
	}
	log.Printf("[INFO] project %s deleted", id)
	return nil
}

// Subscribe starts polling of the project and returns channel of its views.
// The channel keeps only the latest view and is closed when the job reaches terminal status,
// on Unsubscribe, Delete, Close or ctx cancellation. Subscribing twice returns the same channel.
func (t *Tracker) Subscribe(ctx context.Context, id string) (<-chan View, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if sub, ok := t.subs[id]; ok {
		return sub.ch, nil
	}
	if _, err := t.store.Get(id); err != nil {
		return nil, err
	}

	pollCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{id: id, ch: make(chan View, 1), cancel: cancel}
	t.subs[id] = sub
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.poll(pollCtx, sub)
	}()
	log.Printf("[DEBUG] subscribed to %s", id)
	return sub.ch, nil
}

// Resume subscribes to every cached project not completed or failed yet, returns the subscribed ids
func (t *Tracker) Resume(ctx context.Context) []string {
	var res []string
	for _, p := range t.List() {
		if p.Status.IsTerminal() {
			continue
		}
		if _, err := t.Subscribe(ctx, p.ID); err != nil {
			log.Printf("[WARN] can't resume polling of %s, %v", p.ID, err)
			continue
		}
		res = append(res, p.ID)
	}
	if len(res) > 0 {
		log.Printf("[INFO] resumed polling of %d project(s)", len(res))
	}
	return res
}

// Unsubscribe stops polling of the project. No fetch result is merged after it returns.
func (t *Tracker) Unsubscribe(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.detachLocked(id)
}

// Subscribed reports whether the project is polled now
func (t *Tracker) Subscribed(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.subs[id]
	return ok
}

// Close detaches all subscriptions and waits for polling goroutines to finish
func (t *Tracker) Close() {
	t.mu.Lock()
	for id := range t.subs {
		t.detachLocked(id)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

// Fetch does a single status fetch and merge, the same way polling does.
// Returns the resulting local record and the fetch error, if any. On fetch error the record is unchanged.
func (t *Tracker) Fetch(ctx context.Context, id string) (project.Project, error) {
	return t.refresh(ctx, id)
}

func (t *Tracker) poll(ctx context.Context, sub *subscription) {
	defer t.finish(sub)

	cached, err := t.store.Get(sub.id)
	if err != nil {
		return
	}
	if cached.Status.IsTerminal() {
		sub.emit(View{Project: cached})
		return
	}
	sub.emit(View{Project: cached, Loading: true})

	for {
		prj, err := t.refresh(ctx, sub.id)
		if ctx.Err() != nil {
			return // detached, result discarded
		}
		if errors.Is(err, ErrNotFound) {
			return
		}
		v := View{Project: prj}
		var perr *persistError
		if errors.As(err, &perr) {
			v.Err = perr
		}
		sub.emit(v)

		if prj.Status.IsTerminal() {
			log.Printf("[INFO] project %s %s, polling stopped", sub.id, prj.Status)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(t.pollInterval):
		}
	}
}

// refresh fetches job status and merges it into the local record
func (t *Tracker) refresh(ctx context.Context, id string) (project.Project, error) {
	existing, err := t.store.Get(id)
	if err != nil {
		return project.Project{}, err
	}
	email := existing.UserEmail
	if email == "" {
		email = t.identity.Email()
	}

	t.mu.Lock()
	t.nextSeq[id]++
	seq := t.nextSeq[id]
	t.inFlight[id]++
	t.mu.Unlock()

	t.fetchSem.Lock()
	job, fetchErr := t.backend.GetJob(ctx, id, email)
	t.fetchSem.Unlock()

	t.mu.Lock()
	t.inFlight[id]--
	if t.inFlight[id] <= 0 {
		delete(t.inFlight, id)
	}

	if ctx.Err() != nil {
		t.mu.Unlock()
		return existing, ctx.Err()
	}

	current, err := t.store.Get(id)
	if err != nil {
		t.mu.Unlock()
		return project.Project{}, err // deleted while fetching, never recreated from remote data
	}

	if fetchErr != nil {
		t.mu.Unlock()
		var serr *backend.StatusError
		if errors.As(fetchErr, &serr) {
			log.Printf("[DEBUG] stale status for %s, %v", id, fetchErr)
		} else {
			log.Printf("[DEBUG] fetch %s failed, retry next tick, %v", id, fetchErr)
		}
		return current, fetchErr
	}

	if applied := t.appliedSeq[id]; seq <= applied {
		t.mu.Unlock()
		log.Printf("[DEBUG] discard stale response #%d for %s, #%d already applied", seq, id, applied)
		return current, nil
	}

	merged := Merge(current, job, t.backend.URL)
	if merged.Progress < current.Progress && !current.Status.IsTerminal() {
		log.Printf("[DEBUG] progress of %s went back %.2f -> %.2f", id, current.Progress, merged.Progress)
	}
	if err := t.store.Upsert(merged); err != nil {
		t.mu.Unlock()
		log.Printf("[WARN] can't save project %s, %v", id, err)
		return merged, &persistError{id: id, err: err}
	}
	t.appliedSeq[id] = seq

	shouldNotify := merged.Status.IsTerminal() && !t.notified[id] && t.notifier != nil
	if shouldNotify {
		t.notified[id] = true
	}
	t.mu.Unlock()

	if shouldNotify {
		t.notify(merged)
	}
	return merged, nil
}

func (t *Tracker) notify(p project.Project) {
	ctx, cancel := context.WithTimeout(context.Background(), t.notifyTimeout)
	defer cancel()
	if err := t.notifier.Send(ctx, p); err != nil {
		log.Printf("[WARN] failed to notify about %s, %v", p.ID, err)
	}
}

// detachLocked cancels subscription, t.mu must be held
func (t *Tracker) detachLocked(id string) {
	sub, ok := t.subs[id]
	if !ok {
		return
	}
	sub.cancel()
	delete(t.subs, id)
	log.Printf("[DEBUG] unsubscribed from %s", id)
}

// finish removes subscription after polling loop exit and closes its channel
func (t *Tracker) finish(sub *subscription) {
	t.mu.Lock()
	if t.subs[sub.id] == sub {
		delete(t.subs, sub.id)
	}
	t.mu.Unlock()
	sub.cancel()
	close(sub.ch)
}

// emit replaces unread view with the new one, never blocks
func (s *subscription) emit(v View) {
	for {
		select {
		case s.ch <- v:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

type persistError struct {
	id  string
	err error
}

func (e *persistError) Error() string {
	return fmt.Sprintf("can't save project %s: %v", e.id, e.err)
}

func (e *persistError) Unwrap() error { return e.err }
