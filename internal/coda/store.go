package coda

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/coda/internal/domain"
	"github.com/felixgeelhaar/coda/internal/storage/local"
)

const (
	collectionCodas = "codas"
	subdirSessions  = "sessions"
)

// FileStore keeps learners as JSON files, with each learner's sessions in
// a directory beside it
type FileStore struct {
	store *local.Store
	codas *local.Collection[State]
}

// NewFileStore creates a file store rooted at basePath
func NewFileStore(basePath string) (*FileStore, error) {
	store, err := local.NewStore(basePath)
	if err != nil {
		return nil, fmt.Errorf("create local store: %w", err)
	}
	return &FileStore{
		store: store,
		codas: local.NewCollection[State](store, collectionCodas),
	}, nil
}

// Save persists a learner
func (s *FileStore) Save(state *State) error {
	return s.codas.Put(state.ID, state)
}

// Get retrieves a learner by ID
func (s *FileStore) Get(id string) (*State, error) {
	st, err := s.codas.Get(id)
	if err != nil {
		if errors.Is(err, local.ErrNotFound) || errors.Is(err, local.ErrInvalidKey) {
			return nil, domain.ErrCodaNotFound
		}
		return nil, err
	}
	return st, nil
}

// List returns all learner IDs
func (s *FileStore) List() ([]string, error) {
	return s.codas.IDs()
}

// SaveSession persists a session under its learner
func (s *FileStore) SaveSession(session *Session) error {
	return s.store.Save(session, collectionCodas, session.CodaID, subdirSessions, session.ID)
}

// GetSession retrieves a session by ID
func (s *FileStore) GetSession(codaID, sessionID string) (*Session, error) {
	var session Session
	if err := s.store.Load(&session, collectionCodas, codaID, subdirSessions, sessionID); err != nil {
		if errors.Is(err, local.ErrNotFound) || errors.Is(err, local.ErrInvalidKey) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

// ListSessions returns all session IDs for a learner
func (s *FileStore) ListSessions(codaID string) ([]string, error) {
	return s.store.List(collectionCodas, codaID, subdirSessions)
}

var _ Store = (*FileStore)(nil)
