package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	log "github.com/go-pkgz/lgr"

	"github.com/tunivo/jobsync/app/project"
)

// ErrNotFound returned when project id is not in the local collection
var ErrNotFound = errors.New("project not found")

// MalformedStorageError describes unreadable slot content. Projects never returns it to callers,
// the collection is treated as empty instead.
type MalformedStorageError struct {
	Key string
	Err error
}

func (e *MalformedStorageError) Error() string {
	return fmt.Sprintf("malformed storage slot %s: %v", e.Key, e.Err)
}

func (e *MalformedStorageError) Unwrap() error { return e.Err }

// Projects is the persistence adapter for the project collection, stored most-recently-upserted first
// as a single JSON array in ProjectsKey slot.
type Projects struct {
	kv KV
	mu sync.Mutex // serializes read-modify-write of the collection
}

// NewProjects makes Projects on top of KV
func NewProjects(kv KV) *Projects {
	return &Projects{kv: kv}
}

// Load returns all stored projects. Missing or broken storage gives an empty list.
func (p *Projects) Load() []project.Project {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load()
}

// Get returns project by id or ErrNotFound
func (p *Projects) Get(id string) (project.Project, error) {
	for _, prj := range p.Load() {
		if prj.ID == id {
			return prj, nil
		}
	}
	return project.Project{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Upsert stores project, replacing the record with the same id and moving it to the front
func (p *Projects) Upsert(prj project.Project) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.load()
	next := make([]project.Project, 0, len(current)+1)
	next = append(next, prj)
	for _, c := range current {
		if c.ID != prj.ID {
			next = append(next, c)
		}
	}
	return p.save(next)
}

// Remove deletes project by id, no-op if absent
func (p *Projects) Remove(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.load()
	next := make([]project.Project, 0, len(current))
	for _, c := range current {
		if c.ID != id {
			next = append(next, c)
		}
	}
	if len(next) == len(current) {
		return nil
	}
	return p.save(next)
}

func (p *Projects) load() []project.Project {
	raw, ok, err := p.kv.Get(ProjectsKey)
	if err != nil {
		log.Printf("[WARN] can't read projects, %v", err)
		return []project.Project{}
	}
	if !ok {
		return []project.Project{}
	}
	res, err := decodeProjects(raw)
	if err != nil {
		log.Printf("[WARN] %v, treated as empty", err)
		return []project.Project{}
	}
	return res
}

func (p *Projects) save(projects []project.Project) error {
	data, err := json.Marshal(projects)
	if err != nil {
		return fmt.Errorf("can't marshal projects: %w", err)
	}
	if err := p.kv.Set(ProjectsKey, string(data)); err != nil {
		return fmt.Errorf("can't save projects: %w", err)
	}
	return nil
}

func decodeProjects(raw string) ([]project.Project, error) {
	if raw == "" {
		return []project.Project{}, nil
	}
	var res []project.Project
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, &MalformedStorageError{Key: ProjectsKey, Err: err}
	}
	if res == nil { // "null"
		return []project.Project{}, nil
	}
	return res, nil
}
