package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/resumax/internal/ai"
	"github.com/spigell/resumax/internal/chat"
	"github.com/spigell/resumax/internal/logger"
	"github.com/spigell/resumax/internal/retry"
	"github.com/spigell/resumax/internal/utils"
)

const (
	Provider = "gemini"

	defaultModel           = "gemini-2.5-flash"
	defaultMaxAttempts     = 3
	defaultInitialDelay    = time.Second
	defaultTemperature     = 0.7
	defaultTopK            = 40
	defaultTopP            = 0.95
	defaultMaxOutputTokens = 2048
	defaultMaxLogLength    = 200

	// PromptBlockedReply replaces the answer when the prompt itself was blocked.
	PromptBlockedReply = "I'm sorry, I cannot process that request due to safety policies."
	// CandidateBlockedReply replaces the answer when the reply was cut by safety filters.
	CandidateBlockedReply = "The response was blocked by safety filters."
)

type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type chatCreator interface {
	Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)
}

type genaiChats struct {
	chats *genai.Chats
}

func (c genaiChats) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	session, err := c.chats.Create(ctx, model, config, history)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Config holds the knobs of the Gemini generator. Zero values fall back to defaults.
type Config struct {
	APIKey string
	// BaseURL overrides the Gemini endpoint, mostly for local stubs.
	BaseURL      string
	Model        string
	MaxRetries   int
	InitialDelay time.Duration
	// Temperature uses the default when nil. Zero is a valid setting.
	Temperature     *float32
	TopK            float32
	TopP            float32
	MaxOutputTokens int32
	MaxLogLength    int
}

func (c Config) withDefaults() Config {
	if c.Model = strings.TrimSpace(c.Model); c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = defaultInitialDelay
	}
	if c.Temperature == nil || *c.Temperature < 0 {
		c.Temperature = genai.Ptr[float32](defaultTemperature)
	}
	if c.TopK <= 0 {
		c.TopK = defaultTopK
	}
	if c.TopP <= 0 {
		c.TopP = defaultTopP
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = defaultMaxOutputTokens
	}
	if c.MaxLogLength <= 0 {
		c.MaxLogLength = defaultMaxLogLength
	}
	return c
}

// Generator sends chat turns to Gemini, retrying transport failures and
// malformed responses. It keeps no per-call state and may be shared.
type Generator struct {
	chats     chatCreator
	model     string
	genConfig Config
	retrier   *retry.Retrier
	logger    *zap.Logger
	maxLogLen int
}

// NewGenerator creates a Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, cfg Config, log *zap.Logger) (*Generator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenerator(genaiChats{chats: client.Chats}, cfg, log), nil
}

func newGenerator(chats chatCreator, cfg Config, log *zap.Logger) *Generator {
	cfg = cfg.withDefaults()
	log = logger.WithProvider(log, Provider, cfg.Model)

	r := retry.New(retry.Policy{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.InitialDelay,
		Factor:       2,
	})
	r.OnRetry = func(attempt int, delay time.Duration, err error) {
		log.Warn("gemini attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	return &Generator{
		chats:     chats,
		model:     cfg.Model,
		genConfig: cfg,
		retrier:   r,
		logger:    log,
		maxLogLen: cfg.MaxLogLength,
	}
}

// Generate returns a final outcome (text or safety block) or an error carrying
// the last failure once every attempt was used.
func (g *Generator) Generate(ctx context.Context, req ai.Request) (ai.Outcome, error) {
	if g == nil || g.chats == nil {
		return ai.Outcome{}, errors.New("gemini generator is not initialized")
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return ai.Outcome{}, errors.New("message must not be empty")
	}

	config := g.contentConfig(req.SystemInstruction)
	history := buildHistory(req.History)

	g.logger.Debug("gemini generate content request",
		zap.Int("history_turns", len(history)),
		zap.Int("instruction_length", utf8.RuneCountInString(req.SystemInstruction)),
		zap.String("message_preview", utils.Truncate(message, g.maxLogLen)),
	)

	outcome, stats, err := retry.Do(ctx, g.retrier, func(ctx context.Context) (ai.Outcome, error) {
		o := g.attempt(ctx, config, history, message)
		if err := ctx.Err(); err != nil {
			return o, err
		}
		return o, o.Err()
	}, classify)
	if err != nil {
		g.logger.Error("gemini generation failed", zap.Int("attempts", stats.Attempts), zap.Error(err))
		return ai.Outcome{}, fmt.Errorf("generate content: %w", err)
	}

	g.logger.Debug("gemini generate content response",
		zap.Stringer("outcome", outcome.Kind),
		zap.Int("attempts", stats.Attempts),
		zap.Int("response_length", utf8.RuneCountInString(outcome.Text)),
		zap.String("response_preview", utils.Truncate(outcome.Text, g.maxLogLen)),
	)

	if outcome.Kind == ai.KindSafetyBlocked {
		g.logger.Info("gemini blocked the turn", zap.String("reason", outcome.Reason))
	}

	return outcome, nil
}

func classify(o ai.Outcome, err error) retry.Decision {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Stop
	}
	if o.Final() {
		return retry.Done
	}
	return retry.Retry
}

func (g *Generator) attempt(ctx context.Context, config *genai.GenerateContentConfig, history []*genai.Content, message string) ai.Outcome {
	session, err := g.chats.Create(ctx, g.model, config, history)
	if err != nil {
		return transportOutcome(err)
	}

	resp, err := session.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		return transportOutcome(err)
	}

	return g.classifyResponse(resp)
}

func (g *Generator) contentConfig(systemInstruction string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(*g.genConfig.Temperature),
		TopK:            genai.Ptr(g.genConfig.TopK),
		TopP:            genai.Ptr(g.genConfig.TopP),
		MaxOutputTokens: g.genConfig.MaxOutputTokens,
	}

	if instruction := strings.TrimSpace(systemInstruction); instruction != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: instruction}}}
	}

	return cfg
}

// buildHistory maps transcript roles onto the Gemini role vocabulary. Empty
// turns are skipped because the API rejects empty parts.
func buildHistory(turns []chat.Turn) []*genai.Content {
	history := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		role := string(genai.RoleModel)
		if turn.Role == chat.RoleUser {
			role = string(genai.RoleUser)
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: turn.Content}},
		})
	}
	return history
}

func transportOutcome(err error) ai.Outcome {
	var (
		apiErr    genai.APIError
		apiErrPtr *genai.APIError
	)
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		apiErr = *apiErrPtr
	default:
		return ai.Outcome{Kind: ai.KindTransportError, Body: err.Error()}
	}

	body := strings.TrimSpace(apiErr.Message)
	if body == "" {
		body = apiErr.Status
	}
	return ai.Outcome{Kind: ai.KindTransportError, Status: apiErr.Code, Body: body}
}

func (g *Generator) classifyResponse(resp *genai.GenerateContentResponse) ai.Outcome {
	if resp == nil {
		return ai.Outcome{Kind: ai.KindMalformed, Raw: "empty response"}
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		return ai.Outcome{Kind: ai.KindSafetyBlocked, Text: PromptBlockedReply, Reason: string(fb.BlockReason)}
	}

	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		candidate := resp.Candidates[0]
		if candidate.FinishReason == genai.FinishReasonSafety {
			return ai.Outcome{Kind: ai.KindSafetyBlocked, Text: CandidateBlockedReply, Reason: string(candidate.FinishReason)}
		}

		if candidate.Content != nil {
			texts := make([]string, 0, len(candidate.Content.Parts))
			for _, part := range candidate.Content.Parts {
				if part == nil || part.Thought || part.Text == "" {
					continue
				}
				texts = append(texts, part.Text)
			}
			if len(texts) > 0 {
				return ai.Outcome{Kind: ai.KindText, Text: strings.Join(texts, " ")}
			}
		}
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		raw = []byte(fmt.Sprintf("%+v", resp))
	}
	return ai.Outcome{Kind: ai.KindMalformed, Raw: utils.Truncate(string(raw), g.maxLogLen)}
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}
