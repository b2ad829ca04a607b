// Package store provides the local persistent store of the client. It mimics browser local storage:
// a few string-keyed slots surviving restarts, with file, sqlite and in-memory backends.
// Projects adapter keeps the whole project collection serialized in a single slot.
package store

import (
	"fmt"
	"regexp"
	"sync"
)

// slot keys, compatible with the web client local storage layout
const (
	ProjectsKey = "tunivo_client_projects_v1"
	EmailKey    = "tunivo_client_email_v1"
	PlanKey     = "tunivo_client_plan_v1"
)

// KV is a string-keyed slot storage. Set must be atomic, readers never see partially written value.
type KV interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}

var keyRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

func checkKey(key string) error {
	if !keyRe.MatchString(key) {
		return fmt.Errorf("invalid slot key %q", key)
	}
	return nil
}

// MemoryKV is a KV kept in memory, lost on restart
type MemoryKV struct {
	mu    sync.RWMutex
	slots map[string]string
}

// NewMemoryKV makes empty in-memory KV
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{slots: map[string]string{}}
}

// Get returns value for the key, ok is false if key not set
func (m *MemoryKV) Get(key string) (value string, ok bool, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok = m.slots[key]
	return value, ok, nil
}

// Set stores value for the key
func (m *MemoryKV) Set(key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[key] = value
	return nil
}

// Delete removes the key, no-op if not set
func (m *MemoryKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, key)
	return nil
}

func (m *MemoryKV) String() string {
	return "memory"
}
