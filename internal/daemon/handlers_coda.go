package daemon

import (
	"net/http"

	"github.com/felixgeelhaar/coda/internal/coda"
)

func (s *Server) handleCreateCoda(w http.ResponseWriter, r *http.Request) {
	var req coda.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, "invalid request", err)
		return
	}

	st, err := s.codas.Create(r.Context(), req)
	if err != nil {
		s.writeError(w, "failed to create coda", err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, st)
}

func (s *Server) handleListCodas(w http.ResponseWriter, r *http.Request) {
	ids, err := s.codas.List(r.Context())
	if err != nil {
		s.writeError(w, "failed to list codas", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"codas": ids})
}

func (s *Server) handleGetCoda(w http.ResponseWriter, r *http.Request) {
	st, err := s.codas.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, "failed to load coda", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, st)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.codas.StartSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, "failed to start session", err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.codas.GetSession(r.Context(), r.PathValue("id"), r.PathValue("sid"))
	if err != nil {
		s.writeError(w, "failed to load session", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, sess)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.codas.EndSession(r.Context(), r.PathValue("id"), r.PathValue("sid"))
	if err != nil {
		s.writeError(w, "failed to end session", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, sess)
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	var in coda.Interaction
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, "invalid request", err)
		return
	}

	res, err := s.codas.RecordInteraction(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, "failed to record interaction", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}
