// Package server implements local JSON read-model API over tracked projects
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/didip/tollbooth/v8"
	"github.com/didip/tollbooth/v8/limiter"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/tunivo/jobsync/app/project"
	"github.com/tunivo/jobsync/app/tracker"
)

// Tracker is the subset of tracker.Tracker used by the server
type Tracker interface {
	List() []project.Project
	View(id string) (tracker.View, error)
	Delete(id string) error
	Subscribe(ctx context.Context, id string) (<-chan tracker.View, error)
	Unsubscribe(id string)
	Subscribed(id string) bool
}

// Identity provides current session
type Identity interface {
	Email() string
	Plan() string
}

// Config holds server configuration
type Config struct {
	Tracker     Tracker
	Identity    Identity
	Version     string
	MutateLimit float64 // max mutating requests per second per client, 10 if not set
}

// Server is the read-model http server
type Server struct {
	tracker     Tracker
	identity    Identity
	version     string
	mutateLimit float64

	ctxMu   sync.Mutex
	baseCtx context.Context // parent of watch subscriptions, set by Run
}

// New makes Server
func New(cfg Config) (*Server, error) {
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("server initialization failed: tracker is required")
	}
	if cfg.Identity == nil {
		return nil, fmt.Errorf("server initialization failed: identity is required")
	}
	res := &Server{tracker: cfg.Tracker, identity: cfg.Identity, version: cfg.Version,
		mutateLimit: cfg.MutateLimit, baseCtx: context.Background()}
	if res.mutateLimit <= 0 {
		res.mutateLimit = 10
	}
	return res, nil
}

// Run starts http server and blocks until ctx is done. Watches started through the api stop with ctx.
func (s *Server) Run(ctx context.Context, address string) error {
	s.ctxMu.Lock()
	s.baseCtx = ctx
	s.ctxMu.Unlock()

	server := &http.Server{
		Addr:              address,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown server: %v", err)
		}
	}()

	log.Printf("[INFO] starting server on %s", address)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) routes() http.Handler {
	router := routegroup.New(http.NewServeMux())

	router.Use(
		rest.RealIP,
		rest.Recoverer(log.Default()),
		rest.AppInfo("jobsync", "tunivo", s.version),
		rest.Ping,
		rest.SizeLimit(16*1024),
		logger.New(logger.Log(log.Default()), logger.Prefix("[DEBUG]")).Handler,
	)

	lmt := tollbooth.NewLimiter(s.mutateLimit, nil)
	lmt.SetIPLookup(limiter.IPLookup{Name: "RemoteAddr"})
	limited := tollbooth.HTTPMiddleware(lmt)

	router.Mount("/api/v1").Route(func(api *routegroup.Bundle) {
		api.Use(rest.NoCache)
		api.HandleFunc("GET /projects", s.handleListProjects)
		api.HandleFunc("GET /projects/{id}", s.handleGetProject)
		api.HandleFunc("GET /session", s.handleSession)
		api.With(limited).HandleFunc("DELETE /projects/{id}", s.handleDeleteProject)
		api.With(limited).HandleFunc("POST /projects/{id}/watch", s.handleWatch)
		api.With(limited).HandleFunc("DELETE /projects/{id}/watch", s.handleUnwatch)
	})
	return router
}

func (s *Server) subscriptionCtx() context.Context {
	s.ctxMu.Lock()
	defer s.ctxMu.Unlock()
	return s.baseCtx
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[WARN] failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes a JSON error response
func (s *Server) writeJSONError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
