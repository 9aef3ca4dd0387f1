package daemon

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/coda/internal/domain"
	"github.com/felixgeelhaar/coda/internal/engine"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":  "running",
		"version": s.version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"types":   s.engine.SupportedTypes(),
		"storage": s.cfg.Storage.Backend,
		"redis":   s.cfg.Storage.RedisAddr != "",
		"queue":   s.consumer != nil,
		"watcher": s.watcher != nil,
	})
}

func (s *Server) handleTypes(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"types": s.engine.SupportedTypes(),
	})
}

// Exercise handlers

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var p engine.Params
	if err := decodeJSON(w, r, &p); err != nil {
		s.writeError(w, "invalid request", err)
		return
	}
	s.applyScoringDefaults(&p)

	ex, err := s.engine.GenerateExercise(r.Context(), p)
	if err != nil {
		s.writeError(w, "failed to generate exercise", err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, ex)
}

// applyScoringDefaults fills request options left unset from configuration
func (s *Server) applyScoringDefaults(p *engine.Params) {
	if p.Options.OptionCount == 0 && p.Type == domain.TypeMultipleChoice {
		p.Options.OptionCount = s.cfg.Scoring.OptionCount
	}
	if p.Options.Threshold == 0 && p.Type == domain.TypeTextEntry {
		p.Options.Threshold = s.cfg.Scoring.TextThreshold
	}
}

func (s *Server) handleGetExercise(w http.ResponseWriter, r *http.Request) {
	ex, err := s.engine.GetExerciseByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, "failed to load exercise", err)
		return
	}
	if ex == nil {
		s.jsonError(w, http.StatusNotFound, "exercise not found", nil)
		return
	}
	s.jsonResponse(w, http.StatusOK, ex)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var resp domain.Response
	if err := decodeJSON(w, r, &resp); err != nil {
		s.writeError(w, "invalid request", err)
		return
	}

	_, res, err := s.engine.EvaluateByID(r.Context(), r.PathValue("id"), resp)
	if err != nil {
		s.writeError(w, "failed to evaluate response", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

// Concept handlers

func (s *Server) handleGetConcept(w http.ResponseWriter, r *http.Request) {
	details, err := s.provider.GetDetails(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, "failed to load concept", err)
		return
	}
	if details == nil {
		s.jsonError(w, http.StatusNotFound, "concept not found", nil)
		return
	}
	s.jsonResponse(w, http.StatusOK, details)
}

func (s *Server) handleSearchConcepts(w http.ResponseWriter, r *http.Request) {
	criteria, err := parseCriteria(r)
	if err != nil {
		s.writeError(w, "invalid query", err)
		return
	}

	concepts, err := s.provider.Search(r.Context(), criteria)
	if err != nil {
		s.writeError(w, "failed to search concepts", err)
		return
	}
	if concepts == nil {
		concepts = []domain.Concept{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"concepts": concepts,
		"count":    len(concepts),
	})
}

// parseCriteria reads level, category (repeatable or comma separated), q,
// limit, min_difficulty, max_difficulty, exclude, media and sort=frequency
func parseCriteria(r *http.Request) (domain.SearchCriteria, error) {
	q := r.URL.Query()
	c := domain.SearchCriteria{
		Level:           domain.CECRLLevel(q.Get("level")),
		SearchText:      q.Get("q"),
		Categories:      splitValues(q["category"]),
		ExcludeIDs:      splitValues(q["exclude"]),
		SortByFrequency: q.Get("sort") == "frequency",
	}
	if c.Level != "" && !c.Level.IsValid() {
		return c, domain.NewValidationError("level", "unknown level %q", c.Level)
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c, domain.NewValidationError("limit", "must be a non-negative integer")
		}
		c.Limit = n
	}
	for name, dst := range map[string]**float64{
		"min_difficulty": &c.MinDifficulty,
		"max_difficulty": &c.MaxDifficulty,
	} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return c, domain.NewValidationError(name, "must be a number in [0,1]")
		}
		*dst = &f
	}
	if v := q.Get("media"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c, domain.NewValidationError("media", "must be a boolean")
		}
		c.RequireMedia = b
	}
	return c, nil
}

func splitValues(vals []string) []string {
	var out []string
	for _, v := range vals {
		for part := range strings.SplitSeq(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Stats handlers

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.engine.CacheStats())
}

func (s *Server) handleFactoryStats(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.engine.FactoryStats())
}

func (s *Server) handleEvaluationSummary(w http.ResponseWriter, r *http.Request) {
	if s.evaluations == nil {
		s.jsonError(w, http.StatusNotFound, "evaluation history requires the sqlite backend", nil)
		return
	}

	window := 7 * 24 * time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			s.writeError(w, "invalid query", domain.NewValidationError("window", "must be a positive duration"))
			return
		}
		window = d
	}

	summary, err := s.evaluations.Summary(r.Context(), time.Now().Add(-window))
	if err != nil {
		s.writeError(w, "failed to summarise evaluations", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"window": window.String(),
		"types":  summary,
	})
}
