package web

import (
	"net/http"

	"github.com/JonMunkholm/completions/internal/core"
	"github.com/go-chi/chi/v5"
)

func idParam(r *http.Request) string {
	return chi.URLParam(r, "id")
}

// respond writes v as JSON, or the error if err is set.
func respond(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, status, v)
}

// respondDeleted answers a successful delete with 204.
func respondDeleted(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Projects

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.service.ListProjects(r.Context(), session(r))
	respond(w, r, http.StatusOK, projects, err)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.service.GetProject(r.Context(), session(r), idParam(r))
	respond(w, r, http.StatusOK, p, err)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var in core.ProjectInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	p, err := s.service.CreateProject(r.Context(), session(r), in)
	respond(w, r, http.StatusCreated, p, err)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var in core.ProjectInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	p, err := s.service.UpdateProject(r.Context(), session(r), idParam(r), in)
	respond(w, r, http.StatusOK, p, err)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	respondDeleted(w, r, s.service.DeleteProject(r.Context(), session(r), idParam(r)))
}

// Systems

func (s *Server) handleListSystems(w http.ResponseWriter, r *http.Request) {
	systems, err := s.service.ListSystems(r.Context(), session(r), idParam(r))
	respond(w, r, http.StatusOK, systems, err)
}

func (s *Server) handleCreateSystem(w http.ResponseWriter, r *http.Request) {
	var in core.SystemInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	sys, err := s.service.CreateSystem(r.Context(), session(r), in)
	respond(w, r, http.StatusCreated, sys, err)
}

func (s *Server) handleUpdateSystem(w http.ResponseWriter, r *http.Request) {
	var in core.SystemInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	sys, err := s.service.UpdateSystem(r.Context(), session(r), idParam(r), in)
	respond(w, r, http.StatusOK, sys, err)
}

func (s *Server) handleDeleteSystem(w http.ResponseWriter, r *http.Request) {
	respondDeleted(w, r, s.service.DeleteSystem(r.Context(), session(r), idParam(r)))
}

// Subsystems

func (s *Server) handleListSubsystems(w http.ResponseWriter, r *http.Request) {
	subs, err := s.service.ListSubsystems(r.Context(), session(r), idParam(r))
	respond(w, r, http.StatusOK, subs, err)
}

func (s *Server) handleCreateSubsystem(w http.ResponseWriter, r *http.Request) {
	var in core.SubsystemInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	sub, err := s.service.CreateSubsystem(r.Context(), session(r), in)
	respond(w, r, http.StatusCreated, sub, err)
}

func (s *Server) handleUpdateSubsystem(w http.ResponseWriter, r *http.Request) {
	var in core.SubsystemInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	sub, err := s.service.UpdateSubsystem(r.Context(), session(r), idParam(r), in)
	respond(w, r, http.StatusOK, sub, err)
}

func (s *Server) handleDeleteSubsystem(w http.ResponseWriter, r *http.Request) {
	respondDeleted(w, r, s.service.DeleteSubsystem(r.Context(), session(r), idParam(r)))
}

// ITRs

func (s *Server) handleListITRs(w http.ResponseWriter, r *http.Request) {
	itrs, err := s.service.ListITRs(r.Context(), session(r), idParam(r))
	respond(w, r, http.StatusOK, itrs, err)
}

func (s *Server) handleCreateITR(w http.ResponseWriter, r *http.Request) {
	var in core.ITRInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	itr, err := s.service.CreateITR(r.Context(), session(r), in)
	respond(w, r, http.StatusCreated, itr, err)
}

func (s *Server) handleUpdateITR(w http.ResponseWriter, r *http.Request) {
	var in core.ITRInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	itr, err := s.service.UpdateITR(r.Context(), session(r), idParam(r), in)
	respond(w, r, http.StatusOK, itr, err)
}

func (s *Server) handleDeleteITR(w http.ResponseWriter, r *http.Request) {
	respondDeleted(w, r, s.service.DeleteITR(r.Context(), session(r), idParam(r)))
}
