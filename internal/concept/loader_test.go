package concept

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/coda/internal/domain"
)

func TestDefaultCatalog(t *testing.T) {
	cat, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog() error = %v", err)
	}

	if cat.Len() < 30 {
		t.Errorf("DefaultCatalog() has %d concepts; want at least 30", cat.Len())
	}

	perLevel := map[domain.CECRLLevel]int{}
	for _, c := range cat.Concepts {
		perLevel[c.Level]++
		if _, ok := cat.Details[c.ID]; !ok {
			t.Errorf("concept %s has no details", c.ID)
		}
	}
	for _, l := range domain.AllLevels() {
		if perLevel[l] < 4 {
			t.Errorf("level %s has %d concepts; want at least 4", l, perLevel[l])
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			name:    "missing text",
			yaml:    "concepts:\n  - id: a\n    level: A1\n",
			wantMsg: "a.text",
		},
		{
			name:    "bad level",
			yaml:    "concepts:\n  - id: a\n    text: a\n    level: D4\n",
			wantMsg: "unknown level",
		},
		{
			name:    "duplicate",
			yaml:    "concepts:\n  - id: a\n    text: a\n    level: A1\n  - id: a\n    text: b\n    level: A1\n",
			wantMsg: "duplicate id",
		},
		{
			name:    "dangling related",
			yaml:    "concepts:\n  - id: a\n    text: a\n    level: A1\n    related: [zzz]\n",
			wantMsg: "unknown concept",
		},
		{
			name:    "difficulty out of range",
			yaml:    "concepts:\n  - id: a\n    text: a\n    level: A1\n    difficulty: 1.5\n",
			wantMsg: "outside [0,1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() should fail")
			}
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("Parse() error should wrap ErrInvalidInput, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Parse() error = %q; want it to mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	data := `version: 1
concepts:
  - id: merci
    text: merci
    level: A1
    categories: [politesse]
    difficulty: 0.04
    examples: ["Merci beaucoup."]
    synonyms: [remerciement]
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cat, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cat.Len() != 1 {
		t.Fatalf("LoadFile() concepts = %d; want 1", cat.Len())
	}
	if got := cat.Details["merci"].Synonyms; len(got) != 1 || got[0] != "remerciement" {
		t.Errorf("synonyms = %v", got)
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadFile() on missing file should fail")
	}
}
