package server

import (
	"errors"
	"net/http"

	log "github.com/go-pkgz/lgr"

	"github.com/tunivo/jobsync/app/project"
	"github.com/tunivo/jobsync/app/tracker"
)

// APIProject is a project with derived progress fields
type APIProject struct {
	project.Project
	Step         int    `json:"step"`
	StepName     string `json:"stepName"`
	Percent      int    `json:"percent"`
	PrettyStatus string `json:"prettyStatus"`
	Watched      bool   `json:"watched"`
}

// APIProjectDetails is the detail view with agent scorecard
type APIProjectDetails struct {
	APIProject
	Loading   bool              `json:"loading"`
	Scorecard project.Scorecard `json:"scorecard"`
}

// APIProjectsResponse is the JSON response for GET /api/v1/projects
type APIProjectsResponse struct {
	Projects []APIProject `json:"projects"`
}

// APISessionResponse is the JSON response for GET /api/v1/session
type APISessionResponse struct {
	Email string `json:"email"`
	Plan  string `json:"plan"`
}

func (s *Server) toAPIProject(p project.Project) APIProject {
	step := project.StepFor(p.Status, p.Progress)
	return APIProject{
		Project:      p,
		Step:         step,
		StepName:     project.Steps[step],
		Percent:      project.Percent(p.Progress),
		PrettyStatus: project.PrettyStatus(p.Status),
		Watched:      s.tracker.Subscribed(p.ID),
	}
}

func (s *Server) handleListProjects(w http.ResponseWriter, _ *http.Request) {
	projects := s.tracker.List()
	resp := APIProjectsResponse{Projects: make([]APIProject, 0, len(projects))}
	for _, p := range projects {
		resp.Projects = append(resp.Projects, s.toAPIProject(p))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	v, err := s.tracker.View(r.PathValue("id"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, APIProjectDetails{
		APIProject: s.toAPIProject(v.Project),
		Loading:    v.Loading,
		Scorecard:  v.Project.Scorecard(),
	})
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.tracker.Delete(id); err != nil {
		log.Printf("[ERROR] failed to delete project %s: %v", id, err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to delete project")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.tracker.Subscribe(s.subscriptionCtx(), id); err != nil {
		s.writeLookupError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleUnwatch(w http.ResponseWriter, r *http.Request) {
	s.tracker.Unsubscribe(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, APISessionResponse{Email: s.identity.Email(), Plan: s.identity.Plan()})
}

func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, tracker.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "project not found")
		return
	}
	log.Printf("[ERROR] project lookup failed: %v", err)
	s.writeJSONError(w, http.StatusInternalServerError, "failed to load project")
}
