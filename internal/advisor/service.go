// Package advisor runs one chat turn: it loads what is known about the user,
// asks the model and keeps the transcript.
package advisor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/resumax/internal/ai"
	"github.com/spigell/resumax/internal/chat"
	"github.com/spigell/resumax/internal/logger"
	"github.com/spigell/resumax/internal/profile"
	"github.com/spigell/resumax/internal/prompt"
	"github.com/spigell/resumax/internal/store"
)

// Request is a single inbound chat turn. Profile, Recommendations and
// PreviousChats are optional overrides sent by the client.
type Request struct {
	UserID          string
	Message         string
	RequestID       string
	Profile         map[string]any
	Recommendations map[string]any
	PreviousChats   []chat.Turn
}

// Reply is the result of a completed turn.
type Reply struct {
	Text      string
	Kind      ai.Kind
	History   []chat.Turn
	Timestamp time.Time
	// Persisted is false when the transcript could not be saved.
	Persisted bool
}

type Service struct {
	repo      *store.Repository
	generator ai.Generator
	assembler *prompt.Assembler
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

type Option func(*Service)

// WithClock replaces the clock used for turn timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDs replaces the turn id generator.
func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func New(repo *store.Repository, generator ai.Generator, assembler *prompt.Assembler, log *zap.Logger, opts ...Option) *Service {
	if assembler == nil {
		assembler = prompt.NewAssembler(0, 0, 0)
	}

	s := &Service{
		repo:      repo,
		generator: generator,
		assembler: assembler,
		logger:    logger.WithFields(log),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reply validates req, generates the model answer and stores the updated
// transcript. Storage failures are logged and never fail the turn.
func (s *Service) Reply(ctx context.Context, req Request) (*Reply, error) {
	userID := strings.TrimSpace(req.UserID)
	message := strings.TrimSpace(req.Message)

	if userID == "" {
		return nil, invalid("userId is required")
	}
	if message == "" {
		return nil, invalid("message is required")
	}

	log := logger.WithRequest(s.logger, userID, req.RequestID)

	uc := s.userContext(ctx, log, userID, req)
	transcript, loaded := s.transcript(ctx, log, userID, req.PreviousChats)

	instruction := s.assembler.Assemble(uc, transcript)

	outcome, err := s.generator.Generate(ctx, ai.Request{
		Message:           message,
		History:           transcript,
		SystemInstruction: instruction,
	})
	if err != nil {
		return nil, &GenerationError{Model: s.generator.Model(), Err: err}
	}

	userTurn := chat.Turn{ID: s.newID(), Role: chat.RoleUser, Content: message, Timestamp: s.now()}
	modelTurn := chat.Turn{ID: s.newID(), Role: chat.RoleModel, Content: outcome.Reply(), Timestamp: s.now()}
	history := chat.Merge(transcript, s.repo.Retention(), userTurn, modelTurn)

	// A stored transcript that could not be read is never overwritten.
	persisted := false
	if !loaded {
		log.Warn("skipping chat history save, stored history could not be read")
	} else if err := s.repo.SaveTranscript(ctx, userID, history); err != nil {
		log.Warn("failed to save chat history, continuing without persistence", zap.Error(err))
	} else {
		persisted = true
	}

	log.Info("chat turn completed",
		zap.Stringer("outcome", outcome.Kind),
		zap.Int("history_turns", len(history)),
		zap.Bool("persisted", persisted),
	)

	return &Reply{
		Text:      outcome.Reply(),
		Kind:      outcome.Kind,
		History:   history,
		Timestamp: modelTurn.Timestamp,
		Persisted: persisted,
	}, nil
}

// userContext never fails; whatever cannot be loaded or decoded is left empty.
func (s *Service) userContext(ctx context.Context, log *zap.Logger, userID string, req Request) profile.UserContext {
	var uc profile.UserContext

	userData, err := s.repo.UserData(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Warn("failed to load user data", zap.Error(err))
	}
	resume, err := s.repo.Resume(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Warn("failed to load resume", zap.Error(err))
	}

	formData := req.Profile
	if len(formData) == 0 && userData != nil {
		formData = userData.FormData
	}
	if p, err := profile.DecodeProfile(formData); err != nil {
		log.Warn("ignoring undecodable profile", zap.Error(err))
	} else {
		uc.Profile = p
	}

	var sources []map[string]any
	sources = append(sources, req.Recommendations)
	if resume != nil {
		sources = append(sources, resume.Recommendations)
		uc.ResumeText = resume.ResumeText
	}
	if userData != nil {
		sources = append(sources, userData.Recommendations)
	}
	for _, raw := range sources {
		if len(raw) == 0 {
			continue
		}
		r, err := profile.DecodeRecommendations(raw)
		if err != nil {
			log.Warn("ignoring undecodable recommendations", zap.Error(err))
			continue
		}
		uc.Recommendations = r
		break
	}

	return uc
}

// transcript returns the history to answer with. loaded is false when the
// stored transcript exists but could not be read.
func (s *Service) transcript(ctx context.Context, log *zap.Logger, userID string, previous []chat.Turn) (turns []chat.Turn, loaded bool) {
	turns, err := s.repo.Transcript(ctx, userID)
	loaded = err == nil
	if err != nil {
		log.Warn("failed to load chat history, answering without it", zap.Error(err))
		turns = nil
	}

	if len(turns) == 0 && len(previous) > 0 {
		return chat.Tail(previous, s.repo.Retention()), loaded
	}
	return turns, loaded
}
