package concept

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/felixgeelhaar/coda/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSchema creates the tables PostgresProvider reads from
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS concepts (
	id          TEXT PRIMARY KEY,
	text        TEXT NOT NULL,
	video_url   TEXT NOT NULL DEFAULT '',
	image_url   TEXT NOT NULL DEFAULT '',
	level       TEXT NOT NULL,
	categories  TEXT[] NOT NULL DEFAULT '{}',
	related_ids TEXT[] NOT NULL DEFAULT '{}',
	difficulty  DOUBLE PRECISION NOT NULL DEFAULT 0,
	frequency   INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS concept_details (
	concept_id    TEXT PRIMARY KEY REFERENCES concepts(id) ON DELETE CASCADE,
	explanation   TEXT NOT NULL DEFAULT '',
	examples      TEXT[] NOT NULL DEFAULT '{}',
	synonyms      TEXT[] NOT NULL DEFAULT '{}',
	contexts      TEXT[] NOT NULL DEFAULT '{}',
	grammar_notes TEXT[] NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_concepts_level ON concepts(level);
`

const conceptColumns = `id, text, video_url, image_url, level, categories, related_ids, difficulty, frequency, created_at, updated_at`

// PostgresProvider reads concepts from PostgreSQL
type PostgresProvider struct {
	pool *pgxpool.Pool
}

// NewPostgresProvider connects to databaseURL
func NewPostgresProvider(ctx context.Context, databaseURL string) (*PostgresProvider, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect concept database: %w", err)
	}
	return &PostgresProvider{pool: pool}, nil
}

// Close releases the pool
func (p *PostgresProvider) Close() {
	p.pool.Close()
}

// Ping checks the database is reachable
func (p *PostgresProvider) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return providerErr("ping", err)
	}
	return nil
}

// Migrate creates the concept tables
func (p *PostgresProvider) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("create concept schema: %w", err)
	}
	return nil
}

// Import upserts a catalog
func (p *PostgresProvider) Import(ctx context.Context, cat *Catalog) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return providerErr("import", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range cat.Concepts {
		_, err := tx.Exec(ctx, `
			INSERT INTO concepts (`+conceptColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				text = EXCLUDED.text,
				video_url = EXCLUDED.video_url,
				image_url = EXCLUDED.image_url,
				level = EXCLUDED.level,
				categories = EXCLUDED.categories,
				related_ids = EXCLUDED.related_ids,
				difficulty = EXCLUDED.difficulty,
				frequency = EXCLUDED.frequency,
				updated_at = EXCLUDED.updated_at
		`, c.ID, c.Text, c.VideoURL, c.ImageURL, string(c.Level), nonNil(c.Categories), nonNil(c.RelatedIDs),
			c.Difficulty, c.Frequency, c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert concept %s: %w", c.ID, err)
		}

		d := cat.Details[c.ID]
		_, err = tx.Exec(ctx, `
			INSERT INTO concept_details (concept_id, explanation, examples, synonyms, contexts, grammar_notes)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (concept_id) DO UPDATE SET
				explanation = EXCLUDED.explanation,
				examples = EXCLUDED.examples,
				synonyms = EXCLUDED.synonyms,
				contexts = EXCLUDED.contexts,
				grammar_notes = EXCLUDED.grammar_notes
		`, c.ID, d.Explanation, nonNil(d.Examples), nonNil(d.Synonyms), nonNil(d.Contexts), nonNil(d.GrammarNotes))
		if err != nil {
			return fmt.Errorf("upsert details %s: %w", c.ID, err)
		}
	}

	return tx.Commit(ctx)
}

// GetByID returns the concept or nil when unknown
func (p *PostgresProvider) GetByID(ctx context.Context, id string) (*domain.Concept, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+conceptColumns+` FROM concepts WHERE id = $1`, id)
	c, err := scanConcept(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, providerErr("get", err)
	}
	return c, nil
}

// GetByIDs returns known concepts in request order, dropping misses
func (p *PostgresProvider) GetByIDs(ctx context.Context, ids []string) ([]domain.Concept, error) {
	if len(ids) == 0 {
		return []domain.Concept{}, nil
	}
	rows, err := p.pool.Query(ctx, `SELECT `+conceptColumns+` FROM concepts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, providerErr("get many", err)
	}
	found, err := collectConcepts(rows)
	if err != nil {
		return nil, providerErr("get many", err)
	}

	byID := make(map[string]domain.Concept, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}
	out := make([]domain.Concept, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// Search pushes the criteria into SQL
func (p *PostgresProvider) Search(ctx context.Context, criteria domain.SearchCriteria) ([]domain.Concept, error) {
	query, args := buildSearchQuery(criteria)
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, providerErr("search", err)
	}
	out, err := collectConcepts(rows)
	if err != nil {
		return nil, providerErr("search", err)
	}
	return out, nil
}

// GetRandomExample picks one example sentence of the concept
func (p *PostgresProvider) GetRandomExample(ctx context.Context, id string) (string, error) {
	var examples []string
	err := p.pool.QueryRow(ctx, `SELECT examples FROM concept_details WHERE concept_id = $1`, id).Scan(&examples)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", providerErr("random example", err)
	}
	if len(examples) == 0 {
		return "", nil
	}
	return examples[rand.IntN(len(examples))], nil
}

// GetDetails returns the concept with its teaching material, or nil
func (p *PostgresProvider) GetDetails(ctx context.Context, id string) (*domain.ConceptDetails, error) {
	c, err := p.GetByID(ctx, id)
	if err != nil || c == nil {
		return nil, err
	}

	d := &domain.ConceptDetails{Concept: *c}
	err = p.pool.QueryRow(ctx, `
		SELECT explanation, examples, synonyms, contexts, grammar_notes
		FROM concept_details WHERE concept_id = $1
	`, id).Scan(&d.Explanation, &d.Examples, &d.Synonyms, &d.Contexts, &d.GrammarNotes)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, providerErr("details", err)
	}
	return d, nil
}

// buildSearchQuery renders criteria as SQL, keeping the filter order of Filter
func buildSearchQuery(c domain.SearchCriteria) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if c.Level != "" {
		where = append(where, "level = "+arg(string(c.Level)))
	}
	if len(c.Categories) > 0 {
		where = append(where, "categories && "+arg(c.Categories))
	}
	if c.MinDifficulty != nil {
		where = append(where, "difficulty >= "+arg(*c.MinDifficulty))
	}
	if c.MaxDifficulty != nil {
		where = append(where, "difficulty <= "+arg(*c.MaxDifficulty))
	}
	if len(c.ExcludeIDs) > 0 {
		where = append(where, "NOT (id = ANY("+arg(c.ExcludeIDs)+"))")
	}
	if text := strings.TrimSpace(c.SearchText); text != "" {
		p := arg("%" + strings.ToLower(text) + "%")
		where = append(where, "(lower(text) LIKE "+p+" OR EXISTS (SELECT 1 FROM unnest(categories) cat WHERE lower(cat) LIKE "+p+"))")
	}
	if c.RequireMedia {
		where = append(where, "(video_url <> '' OR image_url <> '')")
	}

	var b strings.Builder
	b.WriteString("SELECT " + conceptColumns + " FROM concepts")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if c.SortByFrequency {
		b.WriteString(" ORDER BY frequency DESC, id")
	} else {
		b.WriteString(" ORDER BY id")
	}
	if c.Limit > 0 {
		b.WriteString(" LIMIT " + arg(c.Limit))
	}
	return b.String(), args
}

func scanConcept(row pgx.Row) (*domain.Concept, error) {
	var (
		c     domain.Concept
		level string
	)
	err := row.Scan(&c.ID, &c.Text, &c.VideoURL, &c.ImageURL, &level, &c.Categories, &c.RelatedIDs,
		&c.Difficulty, &c.Frequency, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Level = domain.CECRLLevel(level)
	return &c, nil
}

func collectConcepts(rows pgx.Rows) ([]domain.Concept, error) {
	defer rows.Close()
	out := []domain.Concept{}
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func providerErr(op string, err error) error {
	return &domain.ProviderError{Op: op, Err: fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
