package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/coda/internal/coda"
	"github.com/felixgeelhaar/coda/internal/config"
	"github.com/felixgeelhaar/coda/internal/domain"
	"github.com/felixgeelhaar/coda/internal/storage/sqlite"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
)

// newTestServer builds a daemon over the embedded catalog and a local
// store in a temp dir. mutate may adjust the config before wiring.
func newTestServer(t *testing.T, mutate func(*config.LocalConfig)) *Server {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultLocalConfig()
	cfg.Storage.Backend = config.BackendLocal
	cfg.Storage.LocalDir = dir
	cfg.Storage.SQLitePath = filepath.Join(dir, "coda.db")
	cfg.Cache.CleanupInterval = 0
	cfg.Scoring.Seed = 42
	cfg.Daemon.Metrics = true
	if mutate != nil {
		mutate(cfg)
	}

	s, err := NewServer(context.Background(), ServerConfig{
		Config:   cfg,
		Version:  "test",
		Registry: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	t.Cleanup(func() {
		if err := s.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	})
	return s
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, want, rec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/v1/health", nil)
	expectStatus(t, rec, http.StatusOK)

	body := decode[map[string]any](t, rec)
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
	if rec.Header().Get(CorrelationIDHeader) == "" {
		t.Error("missing correlation id header")
	}
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/v1/status", nil)
	expectStatus(t, rec, http.StatusOK)

	body := decode[map[string]any](t, rec)
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
	if body["storage"] != config.BackendLocal {
		t.Errorf("storage = %v, want %s", body["storage"], config.BackendLocal)
	}
	if body["queue"] != false {
		t.Errorf("queue = %v, want false", body["queue"])
	}
}

func TestTypesEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/v1/types", nil)
	expectStatus(t, rec, http.StatusOK)

	body := decode[struct {
		Types []domain.ExerciseType `json:"types"`
	}](t, rec)
	if len(body.Types) != len(domain.AllExerciseTypes()) {
		t.Errorf("types = %v, want %d entries", body.Types, len(domain.AllExerciseTypes()))
	}
}

func TestGenerateEvaluateFlow(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/v1/exercises", map[string]any{
		"type":       domain.TypeMultipleChoice,
		"level":      "A1",
		"difficulty": 0.2,
	})
	expectStatus(t, rec, http.StatusCreated)
	ex := decode[domain.Exercise](t, rec)

	if ex.ID == "" {
		t.Fatal("generated exercise has no id")
	}
	if ex.Content.MultipleChoice == nil {
		t.Fatal("missing multiple choice content")
	}
	if got := len(ex.Content.MultipleChoice.Options); got != s.cfg.Scoring.OptionCount {
		t.Errorf("options = %d, want configured %d", got, s.cfg.Scoring.OptionCount)
	}

	rec = do(t, s, http.MethodGet, "/v1/exercises/"+ex.ID, nil)
	expectStatus(t, rec, http.StatusOK)
	fetched := decode[domain.Exercise](t, rec)
	if diff := cmp.Diff(ex.Answer, fetched.Answer); diff != "" {
		t.Errorf("fetched answer mismatch (-generated +fetched):\n%s", diff)
	}

	tests := []struct {
		name     string
		optionID string
		correct  bool
	}{
		{"correct option", ex.Answer.OptionID, true},
		{"wrong option", "no-such-option", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/v1/exercises/"+ex.ID+"/evaluate", domain.Response{OptionID: tt.optionID})
			expectStatus(t, rec, http.StatusOK)

			res := decode[domain.EvaluationResult](t, rec)
			if res.Correct != tt.correct {
				t.Errorf("correct = %v, want %v", res.Correct, tt.correct)
			}
			if res.ExerciseID != ex.ID {
				t.Errorf("exercise_id = %q, want %q", res.ExerciseID, ex.ID)
			}
		})
	}
}

func TestGenerate_TextEntryUsesConfiguredThreshold(t *testing.T) {
	s := newTestServer(t, func(c *config.LocalConfig) { c.Scoring.TextThreshold = 0.55 })

	rec := do(t, s, http.MethodPost, "/v1/exercises", map[string]any{
		"type":       domain.TypeTextEntry,
		"level":      "A1",
		"difficulty": 0.3,
	})
	expectStatus(t, rec, http.StatusCreated)

	ex := decode[domain.Exercise](t, rec)
	if ex.Answer.Threshold != 0.55 {
		t.Errorf("threshold = %v, want 0.55", ex.Answer.Threshold)
	}
}

func TestGenerate_BadRequests(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name string
		body any
	}{
		{"unknown type", map[string]any{"type": "Crossword", "difficulty": 0.5}},
		{"difficulty out of range", map[string]any{"type": domain.TypeFillBlank, "difficulty": 1.5}},
		{"unknown level", map[string]any{"type": domain.TypeFillBlank, "level": "D1"}},
		{"unknown strategy", map[string]any{"type": domain.TypeFillBlank, "strategy": "coin-flip"}},
		{"unknown field", map[string]any{"type": domain.TypeFillBlank, "colour": "blue"}},
		{"malformed json", `{"type":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/v1/exercises", tt.body)
			expectStatus(t, rec, http.StatusBadRequest)
		})
	}
}

func TestExercise_NotFound(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/v1/exercises/missing", nil)
	expectStatus(t, rec, http.StatusNotFound)

	rec = do(t, s, http.MethodPost, "/v1/exercises/missing/evaluate", domain.Response{OptionID: "x"})
	expectStatus(t, rec, http.StatusNotFound)
}

func TestConceptEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("search by level", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/v1/concepts?level=A1&limit=3", nil)
		expectStatus(t, rec, http.StatusOK)

		body := decode[struct {
			Concepts []domain.Concept `json:"concepts"`
			Count    int              `json:"count"`
		}](t, rec)
		if body.Count == 0 || body.Count > 3 {
			t.Fatalf("count = %d, want 1..3", body.Count)
		}
		for _, c := range body.Concepts {
			if c.Level != domain.LevelA1 {
				t.Errorf("concept %s level = %s, want A1", c.ID, c.Level)
			}
		}
	})

	t.Run("bad query", func(t *testing.T) {
		for _, q := range []string{"limit=abc", "min_difficulty=2", "level=Z9", "media=maybe"} {
			rec := do(t, s, http.MethodGet, "/v1/concepts?"+q, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("%s: status = %d, want 400", q, rec.Code)
			}
		}
	})

	t.Run("details", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/v1/concepts/bonjour", nil)
		expectStatus(t, rec, http.StatusOK)

		d := decode[domain.ConceptDetails](t, rec)
		if d.Concept.ID != "bonjour" {
			t.Errorf("id = %q, want bonjour", d.Concept.ID)
		}
		if d.Explanation == "" {
			t.Error("details missing explanation")
		}
	})

	t.Run("unknown concept", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/v1/concepts/zzz", nil)
		expectStatus(t, rec, http.StatusNotFound)
	})
}

func TestStatsEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	for range 2 {
		rec := do(t, s, http.MethodPost, "/v1/exercises", map[string]any{
			"type": domain.TypeFillBlank, "level": "A1", "difficulty": 0.4,
		})
		expectStatus(t, rec, http.StatusCreated)
	}

	rec := do(t, s, http.MethodGet, "/v1/cache/stats", nil)
	expectStatus(t, rec, http.StatusOK)
	stats := decode[map[string]any](t, rec)
	if len(stats) == 0 {
		t.Error("empty cache stats")
	}

	rec = do(t, s, http.MethodGet, "/v1/factory/stats", nil)
	expectStatus(t, rec, http.StatusOK)
}

func TestEvaluationSummary(t *testing.T) {
	t.Run("local backend has no history", func(t *testing.T) {
		s := newTestServer(t, nil)
		rec := do(t, s, http.MethodGet, "/v1/evaluations/summary", nil)
		expectStatus(t, rec, http.StatusNotFound)
	})

	t.Run("sqlite backend", func(t *testing.T) {
		s := newTestServer(t, func(c *config.LocalConfig) { c.Storage.Backend = config.BackendSQLite })

		rec := do(t, s, http.MethodPost, "/v1/exercises", map[string]any{
			"type": domain.TypeMultipleChoice, "level": "A1", "difficulty": 0.2,
		})
		expectStatus(t, rec, http.StatusCreated)
		ex := decode[domain.Exercise](t, rec)

		rec = do(t, s, http.MethodPost, "/v1/exercises/"+ex.ID+"/evaluate", domain.Response{OptionID: ex.Answer.OptionID})
		expectStatus(t, rec, http.StatusOK)

		rec = do(t, s, http.MethodGet, "/v1/evaluations/summary?window=1h", nil)
		expectStatus(t, rec, http.StatusOK)
		body := decode[struct {
			Types []sqlite.TypeSummary `json:"types"`
		}](t, rec)
		if len(body.Types) != 1 {
			t.Fatalf("types = %+v, want one entry", body.Types)
		}
		if got := body.Types[0]; got.Type != domain.TypeMultipleChoice || got.Count != 1 || got.Correct != 1 {
			t.Errorf("summary = %+v", got)
		}

		rec = do(t, s, http.MethodGet, "/v1/evaluations/summary?window=-1h", nil)
		expectStatus(t, rec, http.StatusBadRequest)
	})
}

func TestCodaLifecycle(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/v1/coda", coda.CreateRequest{Name: "Léa"})
	expectStatus(t, rec, http.StatusCreated)
	st := decode[coda.State](t, rec)
	if st.Level != domain.LevelA1 {
		t.Errorf("level = %s, want A1", st.Level)
	}
	base := "/v1/coda/" + st.ID

	rec = do(t, s, http.MethodGet, "/v1/coda", nil)
	expectStatus(t, rec, http.StatusOK)
	list := decode[struct {
		Codas []string `json:"codas"`
	}](t, rec)
	if diff := cmp.Diff([]string{st.ID}, list.Codas); diff != "" {
		t.Errorf("codas mismatch (-want +got):\n%s", diff)
	}

	interaction := coda.Interaction{
		ConceptID:  "bonjour",
		Categories: []string{"salutations"},
		Method:     domain.TypeSigningPractice,
		Score:      0.9,
	}

	rec = do(t, s, http.MethodPost, base+"/interactions", interaction)
	expectStatus(t, rec, http.StatusConflict)

	rec = do(t, s, http.MethodPost, base+"/sessions", nil)
	expectStatus(t, rec, http.StatusCreated)
	sess := decode[coda.Session](t, rec)

	rec = do(t, s, http.MethodPost, base+"/sessions", nil)
	expectStatus(t, rec, http.StatusConflict)

	rec = do(t, s, http.MethodPost, base+"/interactions", interaction)
	expectStatus(t, rec, http.StatusOK)
	res := decode[coda.InteractionResult](t, rec)
	if res.State == nil || len(res.State.Experiences) != 1 {
		t.Fatalf("state after interaction = %+v", res.State)
	}

	rec = do(t, s, http.MethodGet, fmt.Sprintf("%s/sessions/%s", base, sess.ID), nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[coda.Session](t, rec); got.Interactions != 1 {
		t.Errorf("session interactions = %d, want 1", got.Interactions)
	}

	rec = do(t, s, http.MethodPost, fmt.Sprintf("%s/sessions/%s/end", base, sess.ID), nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[coda.Session](t, rec); got.EndedAt == nil {
		t.Error("ended session has no end time")
	}

	rec = do(t, s, http.MethodGet, base, nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[coda.State](t, rec); got.SessionsCompleted != 1 || got.ActiveSessionID != "" {
		t.Errorf("state after session = completed %d active %q", got.SessionsCompleted, got.ActiveSessionID)
	}
}

func TestCoda_Errors(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"create without name", http.MethodPost, "/v1/coda", coda.CreateRequest{}, http.StatusBadRequest},
		{"unknown coda", http.MethodGet, "/v1/coda/ghost", nil, http.StatusNotFound},
		{"session for unknown coda", http.MethodPost, "/v1/coda/ghost/sessions", nil, http.StatusNotFound},
		{"unknown session", http.MethodGet, "/v1/coda/ghost/sessions/nope", nil, http.StatusNotFound},
		{"invalid interaction", http.MethodPost, "/v1/coda/ghost/interactions", coda.Interaction{Method: "Bogus"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body)
			expectStatus(t, rec, tt.want)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	expectStatus(t, do(t, s, http.MethodGet, "/v1/health", nil), http.StatusOK)
	expectStatus(t, do(t, s, http.MethodPost, "/v1/exercises", map[string]any{
		"type": domain.TypeFillBlank, "level": "A1", "difficulty": 0.3,
	}), http.StatusCreated)

	rec := do(t, s, http.MethodGet, "/metrics", nil)
	expectStatus(t, rec, http.StatusOK)

	body := rec.Body.String()
	for _, want := range []string{
		`coda_http_requests_total{method="GET",route="GET /v1/health",status="200"} 1`,
		`coda_exercises_generated_total{level="A1",type="FillBlank"} 1`,
		`coda_cache_capacity`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMetricsDisabled(t *testing.T) {
	s := newTestServer(t, func(c *config.LocalConfig) { c.Daemon.Metrics = false })

	rec := do(t, s, http.MethodGet, "/metrics", nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestNewServer_UnknownBackend(t *testing.T) {
	cfg := config.DefaultLocalConfig()
	cfg.Storage.Backend = "tape"

	_, err := NewServer(context.Background(), ServerConfig{Config: cfg, Registry: prometheus.NewRegistry()})
	if err == nil {
		t.Fatal("NewServer() with unknown backend succeeded")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", domain.NewValidationError("x", "bad"), http.StatusBadRequest},
		{"unsupported type", domain.ErrUnsupportedType, http.StatusBadRequest},
		{"exercise not found", fmt.Errorf("wrap: %w", domain.ErrExerciseNotFound), http.StatusNotFound},
		{"coda not found", domain.ErrCodaNotFound, http.StatusNotFound},
		{"session not found", domain.ErrSessionNotFound, http.StatusNotFound},
		{"session active", domain.ErrSessionActive, http.StatusConflict},
		{"no active session", domain.ErrNoActiveSession, http.StatusConflict},
		{"provider", &domain.ProviderError{Op: "search", Err: errors.New("down")}, http.StatusServiceUnavailable},
		{"generation over provider", &domain.GenerationError{Type: domain.TypeFillBlank, Err: &domain.ProviderError{Op: "search", Err: errors.New("down")}}, http.StatusServiceUnavailable},
		{"generation", &domain.GenerationError{Type: domain.TypeFillBlank, Reason: "no concepts"}, http.StatusUnprocessableEntity},
		{"generation over missing concept", &domain.GenerationError{Type: domain.TypeFillBlank, Err: domain.ErrConceptNotFound}, http.StatusUnprocessableEntity},
		{"no generator", &domain.FactoryError{Code: domain.CodeNoGenerator}, http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
