package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/coda/internal/coda"
	"github.com/felixgeelhaar/coda/internal/domain"
	"github.com/felixgeelhaar/coda/internal/engine"
	"github.com/felixgeelhaar/coda/internal/factory"
	"github.com/felixgeelhaar/coda/internal/strategy"
	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"
)

// Exercises generates, stores and grades exercises
type Exercises interface {
	GenerateExercise(ctx context.Context, p engine.Params) (*domain.Exercise, error)
	GetExerciseByID(ctx context.Context, id string) (*domain.Exercise, error)
	EvaluateByID(ctx context.Context, id string, resp domain.Response) (*domain.Exercise, *domain.EvaluationResult, error)
	SupportedTypes() []domain.ExerciseType
}

// Concepts looks up catalog entries
type Concepts interface {
	Search(ctx context.Context, criteria domain.SearchCriteria) ([]domain.Concept, error)
	GetDetails(ctx context.Context, id string) (*domain.ConceptDetails, error)
}

// Learners records practice against virtual learners
type Learners interface {
	RecordInteraction(ctx context.Context, codaID string, in coda.Interaction) (*coda.InteractionResult, error)
}

// Server wraps the MCP server with exercise and learner tools
type Server struct {
	mcpServer *server.Server
	exercises Exercises
	concepts  Concepts
	learners  Learners
}

// Config contains configuration for the MCP server
type Config struct {
	Exercises Exercises
	Concepts  Concepts
	Learners  Learners
	Version   string
}

// NewServer creates a new MCP server
func NewServer(cfg Config) *Server {
	s := &Server{
		exercises: cfg.Exercises,
		concepts:  cfg.Concepts,
		learners:  cfg.Learners,
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s.mcpServer = server.New(server.Info{
		Name:    "coda",
		Version: version,
	}, server.WithInstructions(`
Coda generates French Sign Language (LSF) exercises adapted to a learner's
level and grades their answers.

Available tools:
- coda_types: List the exercise types that can be generated
- coda_generate: Generate an exercise for a type, CECRL level and difficulty
- coda_get_exercise: Fetch a previously generated exercise
- coda_evaluate: Grade a learner's response to an exercise
- coda_concept: Explain a concept with examples and synonyms
- coda_search_concepts: Find concepts by level, category or text
- coda_interaction: Record a practice result against a virtual learner

Levels follow the CECRL scale A1 to C2. Difficulty is a number in [0,1].
`))

	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("coda_types").
		Description("List the exercise types that can be generated.").
		Handler(s.handleTypes)

	s.mcpServer.Tool("coda_generate").
		Description("Generate an exercise adapted to a level and difficulty.").
		Handler(s.handleGenerate)

	s.mcpServer.Tool("coda_get_exercise").
		Description("Fetch a previously generated exercise by ID.").
		Handler(s.handleGetExercise)

	s.mcpServer.Tool("coda_evaluate").
		Description("Grade a response to an exercise and get feedback.").
		Handler(s.handleEvaluate)

	s.mcpServer.Tool("coda_concept").
		Description("Explain a concept with examples, synonyms and contexts.").
		Handler(s.handleConcept)

	s.mcpServer.Tool("coda_search_concepts").
		Description("Search the concept catalog.").
		Handler(s.handleSearch)

	s.mcpServer.Tool("coda_interaction").
		Description("Record a practice result against a virtual learner's active session.").
		Handler(s.handleInteraction)
}

// Input/Output types for tools

type TypesInput struct{}

type TypesOutput struct {
	Types []domain.ExerciseType `json:"types"`
}

type GenerateInput struct {
	Type          string   `json:"type" jsonschema:"description=Exercise type,enum=MultipleChoice,enum=DragDrop,enum=FillBlank,enum=TextEntry,enum=VideoResponse,enum=SigningPractice"`
	Level         string   `json:"level,omitempty" jsonschema:"description=CECRL level A1 to C2"`
	Difficulty    float64  `json:"difficulty,omitempty" jsonschema:"description=Difficulty in [0,1]"`
	FocusAreas    []string `json:"focus_areas,omitempty" jsonschema:"description=Concept categories to favour"`
	ConceptIDs    []string `json:"concept_ids,omitempty" jsonschema:"description=Concepts to build the exercise from"`
	SkillEstimate *float64 `json:"skill_estimate,omitempty" jsonschema:"description=Measured learner skill in [0,1]"`
	OptionCount   int      `json:"option_count,omitempty" jsonschema:"description=Choices for multiple choice"`
	Strategy      string   `json:"strategy,omitempty" jsonschema:"description=Generator selection strategy"`
}

type ExerciseOutput struct {
	Exercise *domain.Exercise `json:"exercise"`
}

type GetExerciseInput struct {
	ExerciseID string `json:"exercise_id" jsonschema:"description=Exercise ID from coda_generate"`
}

type EvaluateInput struct {
	ExerciseID  string             `json:"exercise_id" jsonschema:"description=Exercise ID from coda_generate"`
	OptionID    string             `json:"option_id,omitempty" jsonschema:"description=Chosen option for multiple choice"`
	OptionIndex *int               `json:"option_index,omitempty" jsonschema:"description=Chosen option position for multiple choice"`
	Pairs       map[string]string  `json:"pairs,omitempty" jsonschema:"description=Item ID to target ID for drag and drop"`
	Blanks      []string           `json:"blanks,omitempty" jsonschema:"description=Answers per blank in order"`
	Text        string             `json:"text,omitempty" jsonschema:"description=Typed answer"`
	Criteria    map[string]float64 `json:"criteria,omitempty" jsonschema:"description=Rubric scores for video responses"`
	Metrics     map[string]float64 `json:"metrics,omitempty" jsonschema:"description=Performance scores for signing practice"`
}

type EvaluateOutput struct {
	Correct     bool             `json:"correct"`
	Score       float64          `json:"score"`
	Explanation string           `json:"explanation,omitempty"`
	Feedback    *domain.Feedback `json:"feedback,omitempty"`
	NeedsHelp   bool             `json:"needs_help,omitempty"`
	Suggestions []string         `json:"suggestions,omitempty"`
}

type ConceptInput struct {
	ConceptID string `json:"concept_id" jsonschema:"description=Concept ID"`
}

type ConceptOutput struct {
	Details *domain.ConceptDetails `json:"details"`
}

type SearchInput struct {
	Level      string   `json:"level,omitempty" jsonschema:"description=CECRL level A1 to C2"`
	Categories []string `json:"categories,omitempty" jsonschema:"description=Categories to match"`
	Query      string   `json:"query,omitempty" jsonschema:"description=Text to look for"`
	Limit      int      `json:"limit,omitempty" jsonschema:"description=Maximum results"`
}

type SearchOutput struct {
	Concepts []domain.Concept `json:"concepts"`
}

type InteractionInput struct {
	CodaID     string   `json:"coda_id" jsonschema:"description=Virtual learner ID"`
	ConceptID  string   `json:"concept_id" jsonschema:"description=Concept practised"`
	Method     string   `json:"method" jsonschema:"description=Exercise type used"`
	Score      float64  `json:"score" jsonschema:"description=Result in [0,1]"`
	Categories []string `json:"categories,omitempty" jsonschema:"description=Categories of the concept"`
	Challenges []string `json:"challenges,omitempty" jsonschema:"description=Difficulties observed"`
}

type InteractionOutput struct {
	Level   domain.CECRLLevel `json:"level"`
	Mood    coda.Mood         `json:"mood"`
	LevelUp bool              `json:"level_up"`
	Events  []string          `json:"events,omitempty"`
}

var errNotConfigured = errors.New("not configured")

func (s *Server) handleTypes(_ context.Context, _ TypesInput) (TypesOutput, error) {
	if s.exercises == nil {
		return TypesOutput{}, fmt.Errorf("exercises: %w", errNotConfigured)
	}
	return TypesOutput{Types: s.exercises.SupportedTypes()}, nil
}

func (s *Server) handleGenerate(ctx context.Context, input GenerateInput) (ExerciseOutput, error) {
	if s.exercises == nil {
		return ExerciseOutput{}, fmt.Errorf("exercises: %w", errNotConfigured)
	}

	ex, err := s.exercises.GenerateExercise(ctx, engine.Params{
		Type:          domain.ExerciseType(input.Type),
		Level:         domain.CECRLLevel(input.Level),
		Difficulty:    input.Difficulty,
		FocusAreas:    input.FocusAreas,
		ConceptIDs:    input.ConceptIDs,
		SkillEstimate: input.SkillEstimate,
		Options:       strategy.Options{OptionCount: input.OptionCount},
		Strategy:      factory.Strategy(input.Strategy),
	})
	if err != nil {
		return ExerciseOutput{}, fmt.Errorf("generate exercise: %w", err)
	}
	return ExerciseOutput{Exercise: ex}, nil
}

func (s *Server) handleGetExercise(ctx context.Context, input GetExerciseInput) (ExerciseOutput, error) {
	if s.exercises == nil {
		return ExerciseOutput{}, fmt.Errorf("exercises: %w", errNotConfigured)
	}

	ex, err := s.exercises.GetExerciseByID(ctx, input.ExerciseID)
	if err != nil {
		return ExerciseOutput{}, fmt.Errorf("get exercise: %w", err)
	}
	if ex == nil {
		return ExerciseOutput{}, fmt.Errorf("exercise %s: %w", input.ExerciseID, domain.ErrExerciseNotFound)
	}
	return ExerciseOutput{Exercise: ex}, nil
}

func (s *Server) handleEvaluate(ctx context.Context, input EvaluateInput) (EvaluateOutput, error) {
	if s.exercises == nil {
		return EvaluateOutput{}, fmt.Errorf("exercises: %w", errNotConfigured)
	}

	_, res, err := s.exercises.EvaluateByID(ctx, input.ExerciseID, domain.Response{
		OptionID:    input.OptionID,
		OptionIndex: input.OptionIndex,
		Pairs:       input.Pairs,
		Blanks:      input.Blanks,
		Text:        input.Text,
		Criteria:    input.Criteria,
		Metrics:     input.Metrics,
	})
	if err != nil {
		return EvaluateOutput{}, fmt.Errorf("evaluate: %w", err)
	}
	return EvaluateOutput{
		Correct:     res.Correct,
		Score:       res.Score,
		Explanation: res.Explanation,
		Feedback:    res.Feedback,
		NeedsHelp:   res.NeedsHelp,
		Suggestions: res.Suggestions,
	}, nil
}

func (s *Server) handleConcept(ctx context.Context, input ConceptInput) (ConceptOutput, error) {
	if s.concepts == nil {
		return ConceptOutput{}, fmt.Errorf("concepts: %w", errNotConfigured)
	}

	d, err := s.concepts.GetDetails(ctx, input.ConceptID)
	if err != nil {
		return ConceptOutput{}, fmt.Errorf("get concept: %w", err)
	}
	if d == nil {
		return ConceptOutput{}, fmt.Errorf("concept %s: %w", input.ConceptID, domain.ErrConceptNotFound)
	}
	return ConceptOutput{Details: d}, nil
}

func (s *Server) handleSearch(ctx context.Context, input SearchInput) (SearchOutput, error) {
	if s.concepts == nil {
		return SearchOutput{}, fmt.Errorf("concepts: %w", errNotConfigured)
	}

	concepts, err := s.concepts.Search(ctx, domain.SearchCriteria{
		Level:      domain.CECRLLevel(input.Level),
		Categories: input.Categories,
		SearchText: input.Query,
		Limit:      input.Limit,
	})
	if err != nil {
		return SearchOutput{}, fmt.Errorf("search concepts: %w", err)
	}
	if concepts == nil {
		concepts = []domain.Concept{}
	}
	return SearchOutput{Concepts: concepts}, nil
}

func (s *Server) handleInteraction(ctx context.Context, input InteractionInput) (InteractionOutput, error) {
	if s.learners == nil {
		return InteractionOutput{}, fmt.Errorf("learners: %w", errNotConfigured)
	}

	res, err := s.learners.RecordInteraction(ctx, input.CodaID, coda.Interaction{
		ConceptID:  input.ConceptID,
		Categories: input.Categories,
		Method:     domain.ExerciseType(input.Method),
		Score:      input.Score,
		Challenges: input.Challenges,
	})
	if err != nil {
		return InteractionOutput{}, fmt.Errorf("record interaction: %w", err)
	}

	out := InteractionOutput{
		Level:   res.State.Level,
		Mood:    res.State.Mood,
		LevelUp: res.LevelUp,
	}
	for _, ev := range res.Events {
		out.Events = append(out.Events, fmt.Sprintf("%s %s %.2f -> %.2f", ev.Type, ev.Metric, ev.Previous, ev.Value))
	}
	return out, nil
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
