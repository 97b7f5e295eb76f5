package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"procurement-assistant/config"
	"procurement-assistant/logger"
	"procurement-assistant/models"

	"github.com/google/uuid"
)

// Stage is a state of one question-answer cycle
type Stage string

const (
	StageReceived       Stage = "RECEIVED"
	StageRetrieving     Stage = "RETRIEVING"
	StageNoContextFound Stage = "NO_CONTEXT_FOUND"
	StageContextReady   Stage = "CONTEXT_READY"
	StageGenerating     Stage = "GENERATING"
	StageScoring        Stage = "SCORING"
	StageRejected       Stage = "REJECTED"
	StageAccepted       Stage = "ACCEPTED"
)

var (
	ErrEmptyQuestion     = errors.New("question is empty")
	ErrSearcherNotSet    = errors.New("chunk searcher not set")
	ErrCompleterNotSet   = errors.New("completer not set")
	ErrGenerationFailed  = errors.New("failed to generate answer")
	ErrRetrievalCanceled = errors.New("retrieval canceled")
)

// AnswerSink receives telemetry for every finished cycle. It is write-only.
type AnswerSink interface {
	RecordAnswer(ctx context.Context, entry *models.AnswerLog) error
}

// AnswerService runs the answer-reliability pipeline
type AnswerService struct {
	tables          *config.Tables
	chunks          ChunkSearcher
	fetcher         ChunkFetcher
	overrides       OverrideSearcher
	completer       Completer
	sink            AnswerSink
	systemPrompt    string
	maxHistoryPairs int
	log             *logger.Logger

	detector      *CategoryDetector
	dispatcher    *Dispatcher
	conflicts     *ConflictDetector
	builder       *ContextBuilder
	hallucination *HallucinationDetector
	gate          *RejectionGate
}

// AnswerServiceOption is a functional option for AnswerService
type AnswerServiceOption func(*AnswerService)

// AnswerWithTables sets the rule tables (embedded defaults otherwise)
func AnswerWithTables(tables *config.Tables) AnswerServiceOption {
	return func(s *AnswerService) {
		s.tables = tables
	}
}

// AnswerWithChunkSearcher sets the chunk search backend
func AnswerWithChunkSearcher(searcher ChunkSearcher) AnswerServiceOption {
	return func(s *AnswerService) {
		s.chunks = searcher
	}
}

// AnswerWithChunkFetcher sets the by-ID chunk loader used for conflict evidence
func AnswerWithChunkFetcher(fetcher ChunkFetcher) AnswerServiceOption {
	return func(s *AnswerService) {
		s.fetcher = fetcher
	}
}

// AnswerWithOverrideSearcher sets the override-list search backend
func AnswerWithOverrideSearcher(searcher OverrideSearcher) AnswerServiceOption {
	return func(s *AnswerService) {
		s.overrides = searcher
	}
}

// AnswerWithCompleter sets the language-model backend
func AnswerWithCompleter(completer Completer) AnswerServiceOption {
	return func(s *AnswerService) {
		s.completer = completer
	}
}

// AnswerWithSink sets the telemetry sink
func AnswerWithSink(sink AnswerSink) AnswerServiceOption {
	return func(s *AnswerService) {
		s.sink = sink
	}
}

// AnswerWithSystemPrompt sets the persona preamble
func AnswerWithSystemPrompt(prompt string) AnswerServiceOption {
	return func(s *AnswerService) {
		s.systemPrompt = prompt
	}
}

// AnswerWithMaxHistoryPairs caps the history passed to the model
func AnswerWithMaxHistoryPairs(pairs int) AnswerServiceOption {
	return func(s *AnswerService) {
		s.maxHistoryPairs = pairs
	}
}

// AnswerWithLogger sets the logger
func AnswerWithLogger(log *logger.Logger) AnswerServiceOption {
	return func(s *AnswerService) {
		s.log = log
	}
}

// NewAnswerService creates the pipeline and its components
func NewAnswerService(opts ...AnswerServiceOption) (*AnswerService, error) {
	s := &AnswerService{maxHistoryPairs: 10}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.tables == nil {
		tables, err := config.DefaultTables()
		if err != nil {
			return nil, err
		}
		s.tables = tables
	}
	if s.systemPrompt == "" {
		prompt, err := config.LoadSystemPrompt("")
		if err != nil {
			return nil, err
		}
		s.systemPrompt = prompt
	}

	gate, err := NewRejectionGate(s.tables.Gate, s.tables.Messages)
	if err != nil {
		return nil, err
	}
	normalizer := NewNormalizer(s.tables.Normalizer)
	s.gate = gate
	s.detector = NewCategoryDetector(s.tables, normalizer, s.overrides, s.log)
	s.dispatcher = NewDispatcher(s.tables, normalizer, s.chunks, s.overrides, s.log)
	s.conflicts = NewConflictDetector(s.tables.Conflicts, s.fetcher, s.log)
	s.builder = NewContextBuilder(s.tables)
	s.hallucination = NewHallucinationDetector(s.tables.Hallucination)
	return s, nil
}

// AnswerRequest is one question from the transport layer
type AnswerRequest struct {
	UserID   string
	Question string
	History  []models.Turn
}

// AnswerResult is the outcome of one cycle. A rejected answer is a successful
// run with Accepted=false.
type AnswerResult struct {
	Answer          string                        `json:"answer"`
	Accepted        bool                          `json:"accepted"`
	Stage           Stage                         `json:"stage"`
	ChunksUsed      int                           `json:"chunks_used"`
	OverrideListHit bool                          `json:"override_list_hit"`
	Platform        models.Category               `json:"platform,omitempty"`
	Conflicts       []string                      `json:"conflicts,omitempty"`
	Assessment      *models.ReliabilityAssessment `json:"assessment,omitempty"`
	Verdict         *models.RejectionVerdict      `json:"verdict,omitempty"`
}

// Answer runs RECEIVED → RETRIEVING → (NO_CONTEXT_FOUND | CONTEXT_READY →
// GENERATING → SCORING → REJECTED | ACCEPTED). Only technical failures are errors.
func (s *AnswerService) Answer(ctx context.Context, req AnswerRequest) (*AnswerResult, error) {
	if s.chunks == nil {
		return nil, ErrSearcherNotSet
	}
	if s.completer == nil {
		return nil, ErrCompleterNotSet
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	log := s.log.With("user_id", req.UserID)
	log.Debug("Pipeline stage", "stage", StageReceived)

	log.Debug("Pipeline stage", "stage", StageRetrieving)
	flags := s.detector.Detect(ctx, question)
	retrieval, err := s.dispatcher.Retrieve(ctx, question, flags)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrievalCanceled, err)
	}
	conflicts := s.conflicts.Resolve(ctx, question, retrieval.Chunks())
	for _, c := range conflicts {
		conflictsTotal.WithLabelValues(c.Definition.Type).Inc()
	}

	result := &AnswerResult{
		ChunksUsed:      retrieval.ChunkCount(),
		OverrideListHit: len(retrieval.Overrides) > 0,
		Platform:        flags.Platform,
		Conflicts:       ConflictTypes(conflicts),
	}
	chunksRetrieved.Observe(float64(result.ChunksUsed))

	if retrieval.Empty() {
		result.Stage = StageNoContextFound
		result.Answer = s.tables.Messages.NothingFound
		log.Info("No relevant material found", "keywords", retrieval.Query.Keywords)
		s.finish(ctx, req, result)
		return result, nil
	}

	log.Debug("Pipeline stage", "stage", StageContextReady, "chunks", result.ChunksUsed, "overrides", len(retrieval.Overrides))
	system := s.systemPrompt + "\n\nКОНТЕКСТ:\n\n" + s.builder.Build(retrieval, conflicts)

	log.Debug("Pipeline stage", "stage", StageGenerating)
	draft, err := s.completer.Complete(ctx, CompletionRequest{
		System:   system,
		History:  CapHistory(req.History, s.maxHistoryPairs),
		Question: question,
	})
	if err != nil {
		log.Error("Answer generation failed", "error", err)
		answersTotal.WithLabelValues("FAILED").Inc()
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	log.Debug("Pipeline stage", "stage", StageScoring)
	assessment := s.hallucination.Assess(draft, groundingChunks(retrieval, conflicts))
	gated := s.gate.Apply(draft, assessment)
	answerConfidence.Observe(assessment.Confidence)

	result.Assessment = &assessment
	result.Verdict = &gated.Verdict
	result.Answer = gated.Text
	if gated.Verdict.Rejected {
		result.Stage = StageRejected
		rejectionsTotal.WithLabelValues(string(gated.Verdict.Reason.Code)).Inc()
		log.Info("Answer rejected",
			"code", gated.Verdict.Reason.Code,
			"confidence", assessment.Confidence,
			"coverage", assessment.SourceCoverage,
			"risk", assessment.Level.String(),
			"issues", len(assessment.Issues),
		)
	} else {
		result.Stage = StageAccepted
		result.Accepted = true
		log.Info("Answer accepted",
			"confidence", assessment.Confidence,
			"coverage", assessment.SourceCoverage,
			"risk", assessment.Level.String(),
		)
	}

	s.finish(ctx, req, result)
	return result, nil
}

// finish records metrics and telemetry; sink failures never fail the cycle
func (s *AnswerService) finish(ctx context.Context, req AnswerRequest, result *AnswerResult) {
	answersTotal.WithLabelValues(string(result.Stage)).Inc()
	if s.sink == nil {
		return
	}

	entry := &models.AnswerLog{
		ID:              uuid.New(),
		UserID:          req.UserID,
		Question:        req.Question,
		Answer:          result.Answer,
		Stage:           string(result.Stage),
		Accepted:        result.Accepted,
		ChunksUsed:      result.ChunksUsed,
		OverrideListHit: result.OverrideListHit,
		Conflicts:       result.Conflicts,
		CreatedAt:       time.Now().UTC(),
	}
	if a := result.Assessment; a != nil {
		entry.RiskLevel = a.Level.String()
		entry.Confidence = a.Confidence
		entry.SourceCoverage = a.SourceCoverage
	}
	if v := result.Verdict; v != nil && v.Reason != nil {
		entry.RejectionCode = string(v.Reason.Code)
	}

	if err := s.sink.RecordAnswer(ctx, entry); err != nil {
		s.log.Warn("Failed to record answer log", "user_id", req.UserID, "error", err)
	}
}

// CapHistory keeps the last pairs user/assistant pairs. The result never
// starts with an assistant turn.
func CapHistory(history []models.Turn, pairs int) []models.Turn {
	if pairs <= 0 {
		return nil
	}
	if limit := pairs * 2; len(history) > limit {
		history = history[len(history)-limit:]
	}
	for len(history) > 0 && history[0].Role == models.RoleAssistant {
		history = history[1:]
	}
	return history
}

// groundingChunks is everything the answer may legitimately draw on: retrieved
// chunks, conflict evidence, and override entries rendered as pseudo-chunks
func groundingChunks(r *Retrieval, conflicts []ConflictMatch) []models.Chunk {
	seen := make(map[string]bool)
	var out []models.Chunk
	add := func(c models.Chunk) {
		if seen[c.ID] {
			return
		}
		seen[c.ID] = true
		out = append(out, c)
	}

	for _, c := range r.Chunks() {
		add(c)
	}
	for _, m := range conflicts {
		for _, c := range m.Evidence {
			add(c)
		}
	}
	for _, e := range r.Overrides {
		add(models.Chunk{
			ID:       "override_" + string(e.ListType) + "_" + strconv.Itoa(e.Num),
			Category: models.CategorySpecialLists,
			Text:     strings.Join([]string{e.Name, e.Method, e.Basis, e.Subsection}, "\n"),
		})
	}
	return out
}
