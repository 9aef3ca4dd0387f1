package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/coda/internal/coda"
	"github.com/felixgeelhaar/coda/internal/domain"
)

// CodaStore persists virtual learners and their teaching sessions
type CodaStore struct {
	db *DB
}

// NewCodaStore creates a SQLite-backed learner store
func NewCodaStore(db *DB) *CodaStore {
	return &CodaStore{db: db}
}

// Save persists a learner (insert or update)
func (s *CodaStore) Save(st *coda.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal coda: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO coda_states (id, name, level, active_session_id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, level=excluded.level,
			active_session_id=excluded.active_session_id,
			data=excluded.data, updated_at=excluded.updated_at`,
		st.ID, st.Name, string(st.Level), nullString(st.ActiveSessionID), string(data),
		st.CreatedAt.UTC(), st.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert coda: %w", err)
	}
	return nil
}

// Get retrieves a learner by ID
func (s *CodaStore) Get(id string) (*coda.State, error) {
	var data string
	if err := s.db.QueryRow("SELECT data FROM coda_states WHERE id = ?", id).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCodaNotFound
		}
		return nil, fmt.Errorf("get coda: %w", err)
	}
	var st coda.State
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("unmarshal coda: %w", err)
	}
	return &st, nil
}

// List returns all learner IDs, oldest first
func (s *CodaStore) List() ([]string, error) {
	rows, err := s.db.Query("SELECT id FROM coda_states ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("list codas: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan coda id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveSession persists a teaching session. Its learner must exist.
func (s *CodaStore) SaveSession(sess *coda.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	var ended sql.NullTime
	if sess.EndedAt != nil {
		ended = sql.NullTime{Time: sess.EndedAt.UTC(), Valid: true}
	}
	_, err = s.db.Exec(`
		INSERT INTO coda_sessions (id, coda_id, started_at, ended_at, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ended_at=excluded.ended_at, data=excluded.data`,
		sess.ID, sess.CodaID, sess.StartedAt.UTC(), ended, string(data),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session of a learner
func (s *CodaStore) GetSession(codaID, sessionID string) (*coda.Session, error) {
	var data string
	err := s.db.QueryRow("SELECT data FROM coda_sessions WHERE id = ? AND coda_id = ?", sessionID, codaID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	var sess coda.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

// ListSessions returns a learner's session IDs, oldest first
func (s *CodaStore) ListSessions(codaID string) ([]string, error) {
	rows, err := s.db.Query("SELECT id FROM coda_sessions WHERE coda_id = ? ORDER BY started_at", codaID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
