package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/coda/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// fakeDaemon answers health checks and routes the rest to mux
func fakeDaemon(t *testing.T, mux *http.ServeMux) *httptest.Server {
	t.Helper()
	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"healthy"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{0, "[░░░░]"},
		{0.5, "[██░░]"},
		{1, "[████]"},
		{1.7, "[████]"},
		{-1, "[░░░░]"},
	}
	for _, tt := range tests {
		if got := renderProgressBar(tt.value, 4); got != tt.want {
			t.Errorf("renderProgressBar(%v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestParseScores(t *testing.T) {
	got, err := parseScores("metric", map[string]string{"handshape": "0.8", "movement": "1"})
	if err != nil {
		t.Fatalf("parseScores() error = %v", err)
	}
	if diff := cmp.Diff(map[string]float64{"handshape": 0.8, "movement": 1}, got); diff != "" {
		t.Errorf("scores mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"high", "1.5", "-0.1"} {
		if _, err := parseScores("metric", map[string]string{"x": bad}); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("parseScores(%q) error = %v, want ErrInvalidInput", bad, err)
		}
	}

	if got, err := parseScores("metric", nil); got != nil || err != nil {
		t.Errorf("parseScores(nil) = %v, %v", got, err)
	}
}

func TestParamsFromFlags(t *testing.T) {
	cmd := &cobra.Command{}
	f := cmd.Flags()
	f.String("level", "", "")
	f.Float64("difficulty", 0.5, "")
	f.StringSlice("focus", nil, "")
	f.StringSlice("concept", nil, "")
	f.Float64("skill", -1, "")
	f.Int("options", 0, "")
	f.Int("pairs", 0, "")
	f.Int("blanks", 0, "")
	f.Float64("threshold", 0, "")
	f.String("strategy", "", "")
	f.Bool("fresh", false, "")

	if err := f.Parse([]string{"--level", "b1", "--difficulty", "0.6", "--focus", "famille,couleurs", "--skill", "0.3", "--options", "5"}); err != nil {
		t.Fatal(err)
	}
	p, err := paramsFromFlags(cmd, "MultipleChoice")
	if err != nil {
		t.Fatalf("paramsFromFlags() error = %v", err)
	}
	if p.Level != domain.LevelB1 || p.Difficulty != 0.6 || p.Options.OptionCount != 5 {
		t.Errorf("params = %+v", p)
	}
	if diff := cmp.Diff([]string{"famille", "couleurs"}, p.FocusAreas); diff != "" {
		t.Errorf("focus mismatch (-want +got):\n%s", diff)
	}
	if p.SkillEstimate == nil || *p.SkillEstimate != 0.3 {
		t.Errorf("skill = %v, want 0.3", p.SkillEstimate)
	}

	if _, err := paramsFromFlags(cmd, "Crossword"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("unknown type error = %v, want ErrInvalidInput", err)
	}
}

func TestCatalogValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := `version: 1
concepts:
  - id: merci
    text: merci
    level: A1
    difficulty: 0.1
    frequency: 90
  - id: travailler
    text: travailler
    level: B1
    difficulty: 0.5
    frequency: 40
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "catalog", "validate", path)
	if err != nil {
		t.Fatalf("catalog validate error = %v", err)
	}
	for _, want := range []string{"2 concepts", "A1    1", "B1    1", "C2    0"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, "catalog", "validate", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("validating a missing file succeeded")
	}
}

func TestTypesCommand(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/types", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"types": []string{"MultipleChoice", "FillBlank"}})
	})
	srv := fakeDaemon(t, mux)

	out, err := run(t, "types", "--addr", srv.URL)
	if err != nil {
		t.Fatalf("types error = %v", err)
	}
	if out != "MultipleChoice\nFillBlank\n" {
		t.Errorf("output = %q", out)
	}
}

func TestClient_DecodesAPIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/exercises/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"error": "exercise not found", "status": 404})
	})
	srv := fakeDaemon(t, mux)

	err := newClient(srv.URL).get("/v1/exercises/nope", &domain.Exercise{})
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *apiError", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Message != "exercise not found" {
		t.Errorf("apiError = %+v", apiErr)
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	if newClient(addr).healthy() {
		t.Error("closed server reported healthy")
	}
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, &domain.EvaluationResult{
		Correct:     true,
		Score:       1,
		Explanation: "Bien joué",
		Feedback:    &domain.Feedback{Strengths: []string{"configuration"}},
	})

	out := buf.String()
	for _, want := range []string{"✓ correct", "100%", "Bien joué", "Strengths:", "configuration"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
