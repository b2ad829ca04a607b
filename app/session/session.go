// Package session keeps identity of the current user (email and plan) across restarts
package session

import (
	"context"
	"fmt"

	log "github.com/go-pkgz/lgr"

	"github.com/tunivo/jobsync/app/backend"
	"github.com/tunivo/jobsync/app/store"
)

// identity used before the first login
const (
	DefaultEmail = "demo@tunivo.local"
	DefaultPlan  = "free"
)

// Authenticator checks email with the backend
type Authenticator interface {
	Login(ctx context.Context, email string) (backend.Identity, error)
}

// Session is the current identity persisted in email and plan slots
type Session struct {
	kv   store.KV
	auth Authenticator
}

// New makes Session on top of kv slots
func New(kv store.KV, auth Authenticator) *Session {
	return &Session{kv: kv, auth: auth}
}

// Login authenticates email and persists returned canonical email and plan.
// On failure the previously stored identity stays unchanged.
func (s *Session) Login(ctx context.Context, email string) (backend.Identity, error) {
	id, err := s.auth.Login(ctx, email)
	if err != nil {
		return backend.Identity{}, err
	}
	if err := s.kv.Set(store.EmailKey, id.Email); err != nil {
		return backend.Identity{}, fmt.Errorf("can't save email: %w", err)
	}
	if err := s.kv.Set(store.PlanKey, id.Plan); err != nil {
		return backend.Identity{}, fmt.Errorf("can't save plan: %w", err)
	}
	return id, nil
}

// Logout forgets stored identity, defaults are used afterwards
func (s *Session) Logout() error {
	if err := s.kv.Delete(store.EmailKey); err != nil {
		return fmt.Errorf("can't delete email: %w", err)
	}
	if err := s.kv.Delete(store.PlanKey); err != nil {
		return fmt.Errorf("can't delete plan: %w", err)
	}
	return nil
}

// Email returns current email or DefaultEmail
func (s *Session) Email() string {
	return s.get(store.EmailKey, DefaultEmail)
}

// Plan returns current plan or DefaultPlan
func (s *Session) Plan() string {
	return s.get(store.PlanKey, DefaultPlan)
}

// Current returns both email and plan
func (s *Session) Current() backend.Identity {
	return backend.Identity{Email: s.Email(), Plan: s.Plan()}
}

func (s *Session) get(key, def string) string {
	v, ok, err := s.kv.Get(key)
	if err != nil {
		log.Printf("[WARN] can't read %s, %v", key, err)
		return def
	}
	if !ok || v == "" {
		return def
	}
	return v
}
