package coda

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/coda/internal/domain"
	"github.com/felixgeelhaar/coda/internal/evolution"
	"github.com/google/uuid"
)

// Store persists learners and their sessions. Get and GetSession return
// domain.ErrCodaNotFound and domain.ErrSessionNotFound on a miss.
type Store interface {
	Save(state *State) error
	Get(id string) (*State, error)
	List() ([]string, error)
	SaveSession(session *Session) error
	GetSession(codaID, sessionID string) (*Session, error)
}

// Notification is published after an interaction changed the learner
type Notification struct {
	CodaID    string            `json:"coda_id"`
	SessionID string            `json:"session_id"`
	Level     domain.CECRLLevel `json:"level"`
	LevelUp   bool              `json:"level_up"`
	Mood      Mood              `json:"mood"`
	Metrics   evolution.Metrics `json:"metrics"`
	Events    []evolution.Event `json:"events"`
}

// Publisher delivers notifications to other services
type Publisher interface {
	PublishEvolution(ctx context.Context, n Notification) error
}

// Publishers fans a notification out to every publisher and joins their
// errors
type Publishers []Publisher

func (ps Publishers) PublishEvolution(ctx context.Context, n Notification) error {
	var errs []error
	for _, p := range ps {
		if err := p.PublishEvolution(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Service manages virtual CODA learners
type Service struct {
	store     Store
	engine    *evolution.Engine
	publisher Publisher // Optional
	now       func() time.Time

	// mu serialises read-modify-write cycles on learner state
	mu sync.Mutex
}

// NewService creates a service over store, using the default detector
// table when engine is nil
func NewService(store Store, engine *evolution.Engine) *Service {
	if engine == nil {
		engine = evolution.NewEngine()
	}
	return &Service{store: store, engine: engine, now: time.Now}
}

// SetPublisher sets where evolution notifications are sent
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// CreateRequest describes a new learner
type CreateRequest struct {
	Name     string            `json:"name"`
	MentorID string            `json:"mentor_id,omitempty"`
	Level    domain.CECRLLevel `json:"level,omitempty"`
}

// Create registers a new learner starting at req.Level, A1 by default
func (s *Service) Create(_ context.Context, req CreateRequest) (*State, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.NewValidationError("name", "is required")
	}
	level := req.Level
	if level == "" {
		level = domain.LevelA1
	}
	if !level.IsValid() {
		return nil, domain.NewValidationError("level", "unknown level %q", level)
	}

	now := s.now()
	st := &State{
		ID:        uuid.NewString(),
		Name:      name,
		MentorID:  req.MentorID,
		Level:     level,
		Mood:      MoodCurious,
		Valence:   InitialValence,
		Metrics:   evolution.NewMetrics(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Save(st); err != nil {
		return nil, fmt.Errorf("save coda: %w", err)
	}

	slog.Info("coda created", "coda_id", st.ID, "name", st.Name, "level", st.Level)
	return st, nil
}

// Get returns the learner or an error wrapping domain.ErrCodaNotFound
func (s *Service) Get(_ context.Context, id string) (*State, error) {
	st, err := s.store.Get(id)
	if err != nil {
		return nil, fmt.Errorf("get coda %s: %w", id, err)
	}
	return st, nil
}

// List returns every learner id
func (s *Service) List(_ context.Context) ([]string, error) {
	return s.store.List()
}

// StartSession opens a teaching session. A learner has at most one.
func (s *Service) StartSession(_ context.Context, codaID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.store.Get(codaID)
	if err != nil {
		return nil, fmt.Errorf("get coda %s: %w", codaID, err)
	}
	if st.ActiveSessionID != "" {
		return nil, fmt.Errorf("coda %s session %s: %w", codaID, st.ActiveSessionID, domain.ErrSessionActive)
	}

	now := s.now()
	sess := &Session{
		ID:             uuid.NewString(),
		CodaID:         codaID,
		StartedAt:      now,
		MetricsAtStart: st.Metrics.Clone(),
		LevelAtStart:   st.Level,
	}
	if err := s.store.SaveSession(sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	st.ActiveSessionID = sess.ID
	st.UpdatedAt = now
	if err := s.store.Save(st); err != nil {
		return nil, fmt.Errorf("save coda: %w", err)
	}

	slog.Info("teaching session started", "coda_id", codaID, "session_id", sess.ID)
	return sess, nil
}

// GetSession returns one of the learner's sessions
func (s *Service) GetSession(_ context.Context, codaID, sessionID string) (*Session, error) {
	sess, err := s.store.GetSession(codaID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	return sess, nil
}

// EndSession closes the active session and records metric growth
func (s *Service) EndSession(_ context.Context, codaID, sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.store.Get(codaID)
	if err != nil {
		return nil, fmt.Errorf("get coda %s: %w", codaID, err)
	}
	if st.ActiveSessionID != sessionID {
		return nil, fmt.Errorf("coda %s session %s: %w", codaID, sessionID, domain.ErrNoActiveSession)
	}
	sess, err := s.store.GetSession(codaID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}

	now := s.now()
	sess.EndedAt = &now
	sess.LevelAtEnd = st.Level
	sess.Growth = make(map[evolution.Metric]float64)
	for _, m := range evolution.AllMetrics() {
		if d := st.Metrics[m] - sess.MetricsAtStart[m]; d > 0 {
			sess.Growth[m] = d
		}
	}
	if err := s.store.SaveSession(sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	st.ActiveSessionID = ""
	st.SessionsCompleted++
	st.UpdatedAt = now
	if err := s.store.Save(st); err != nil {
		return nil, fmt.Errorf("save coda: %w", err)
	}

	slog.Info("teaching session ended",
		"coda_id", codaID,
		"session_id", sessionID,
		"interactions", sess.Interactions,
		"mean_score", sess.MeanScore(),
	)
	return sess, nil
}

// RecordInteraction folds one teaching step into the learner: experience
// history, mood, evolution metrics and level. It needs an active session.
func (s *Service) RecordInteraction(ctx context.Context, codaID string, in Interaction) (*InteractionResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	st, sess, err := s.activeSession(codaID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	now := s.now()
	level := in.Level
	if level == "" {
		level = st.Level
	}
	exp := Experience{
		ConceptID:  in.ConceptID,
		Categories: in.Categories,
		Method:     in.Method,
		Level:      level,
		Score:      domain.Clamp01(in.Score),
		Challenges: in.Challenges,
		At:         now,
	}

	mood, valence := nextMood(st.Valence, exp.Score)
	f := factors(st.Experiences, exp, st.ExploredCategories, valence-st.Valence)
	metrics, events := s.engine.Apply(st.Metrics, f)

	if mood != st.Mood {
		st.EmotionalHistory = tail(append(st.EmotionalHistory, EmotionalSnapshot{
			Mood:    mood,
			Valence: valence,
			Trigger: fmt.Sprintf("%s on %s scored %.2f", in.Method, in.ConceptID, exp.Score),
			At:      now,
		}), MaxEmotionalHistory)
	}
	st.Mood, st.Valence = mood, valence
	st.Metrics = metrics
	st.Experiences = tail(append(st.Experiences, exp), MaxExperiences)
	for _, c := range in.Categories {
		if !slices.Contains(st.ExploredCategories, c) {
			st.ExploredCategories = append(st.ExploredCategories, c)
		}
	}

	leveledUp := false
	if level == st.Level && levelUp(st.Experiences, st.Level) {
		st.Level = st.Level.Next()
		leveledUp = true
	}
	st.UpdatedAt = now

	sess.Interactions++
	sess.TotalScore += exp.Score
	sess.Events = append(sess.Events, events...)

	if err := s.store.SaveSession(sess); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("save session: %w", err)
	}
	if err := s.store.Save(st); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("save coda: %w", err)
	}
	result := &InteractionResult{State: st.Clone(), Events: events, LevelUp: leveledUp}
	s.mu.Unlock()

	for _, ev := range events {
		slog.Debug("evolution event",
			"coda_id", codaID,
			"type", ev.Type,
			"metric", ev.Metric,
			"previous", ev.Previous,
			"value", ev.Value,
		)
	}
	if leveledUp {
		slog.Info("coda leveled up", "coda_id", codaID, "level", st.Level)
	}

	if s.publisher != nil && (len(events) > 0 || leveledUp) {
		n := Notification{
			CodaID:    codaID,
			SessionID: sess.ID,
			Level:     result.State.Level,
			LevelUp:   leveledUp,
			Mood:      result.State.Mood,
			Metrics:   result.State.Metrics,
			Events:    events,
		}
		if err := s.publisher.PublishEvolution(ctx, n); err != nil {
			slog.Warn("publish evolution", "coda_id", codaID, "error", err)
		}
	}
	return result, nil
}

// activeSession loads the learner and its open session. Callers hold s.mu.
func (s *Service) activeSession(codaID string) (*State, *Session, error) {
	st, err := s.store.Get(codaID)
	if err != nil {
		return nil, nil, fmt.Errorf("get coda %s: %w", codaID, err)
	}
	if st.ActiveSessionID == "" {
		return nil, nil, fmt.Errorf("coda %s: %w", codaID, domain.ErrNoActiveSession)
	}
	sess, err := s.store.GetSession(codaID, st.ActiveSessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, nil, fmt.Errorf("coda %s: %w", codaID, domain.ErrNoActiveSession)
		}
		return nil, nil, fmt.Errorf("get session: %w", err)
	}
	return st, sess, nil
}
