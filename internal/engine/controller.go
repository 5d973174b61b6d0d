// Package engine orchestrates conversation turns end to end: retrieve,
// assemble, generate, validate, commit.
package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/castmark/persona-engine/internal/generation"
	"github.com/castmark/persona-engine/internal/model"
	"github.com/castmark/persona-engine/internal/prompt"
	"github.com/castmark/persona-engine/internal/retrieve"
	"github.com/castmark/persona-engine/internal/session"
	"github.com/castmark/persona-engine/internal/store"
)

// TurnState tracks a turn through the controller.
type TurnState string

const (
	StateReceived   TurnState = "received"
	StateRetrieving TurnState = "retrieving"
	StateAssembling TurnState = "assembling"
	StateGenerating TurnState = "generating"
	StateValidating TurnState = "validating"
	StateCommitted  TurnState = "committed"
	StateRejected   TurnState = "rejected"
)

// Config bounds the controller's work per turn.
type Config struct {
	RetrieveK      int           // chunks per retrieval
	PromptBudget   int           // token budget for the assembled request
	WindowBudget   int           // token budget for the history window
	SummaryBudget  int           // max tokens for a summarize call
	MaxRegens      int           // regeneration attempts after a consistency violation
	MaxGenAttempts int           // attempts per generation call for transient failures
	BaseBackoff    time.Duration // first retry delay, doubled per attempt
}

// DefaultConfig returns the default turn bounds.
func DefaultConfig() Config {
	return Config{
		RetrieveK:      5,
		PromptBudget:   2048,
		WindowBudget:   768,
		SummaryBudget:  256,
		MaxRegens:      2,
		MaxGenAttempts: 3,
		BaseBackoff:    500 * time.Millisecond,
	}
}

// DefaultFallback is the reply when a persona defines none and all
// attempts are exhausted.
const DefaultFallback = "Hmm, my thoughts are elsewhere right now. Ask me again in a moment?"

// Controller drives one conversation turn at a time.
type Controller struct {
	sessions  *session.Manager
	retriever *retrieve.Retriever
	generator generation.Generator
	store     store.Store
	logger    *zap.Logger
	cfg       Config
}

// New creates a controller. Zero config fields take their defaults;
// set fields are kept.
func New(sessions *session.Manager, retriever *retrieve.Retriever, gen generation.Generator, st store.Store, cfg Config, logger *zap.Logger) *Controller {
	def := DefaultConfig()
	if cfg.RetrieveK <= 0 {
		cfg.RetrieveK = def.RetrieveK
	}
	if cfg.PromptBudget <= 0 {
		cfg.PromptBudget = def.PromptBudget
	}
	if cfg.WindowBudget <= 0 {
		cfg.WindowBudget = def.WindowBudget
	}
	if cfg.SummaryBudget <= 0 {
		cfg.SummaryBudget = def.SummaryBudget
	}
	if cfg.MaxRegens <= 0 {
		cfg.MaxRegens = def.MaxRegens
	}
	if cfg.MaxGenAttempts <= 0 {
		cfg.MaxGenAttempts = def.MaxGenAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		sessions:  sessions,
		retriever: retriever,
		generator: gen,
		store:     st,
		logger:    logger,
		cfg:       cfg,
	}
}

// Result is the outcome of one handled message.
type Result struct {
	SessionID string    `json:"session_id"`
	Response  string    `json:"response"`
	State     TurnState `json:"state"`
	TurnIndex int       `json:"turn_index"`
	FellBack  bool      `json:"fell_back,omitempty"`
}

// HandleMessage processes one user message. An empty sessionID starts a
// new session for characterID. The session stays locked for the whole
// turn, so concurrent submissions for one session serialize.
func (c *Controller) HandleMessage(ctx context.Context, sessionID, characterID, userMessage string) (*Result, error) {
	if sessionID == "" {
		p, err := c.store.GetPersona(ctx, characterID)
		if err != nil {
			return nil, err
		}
		sessionID, err = c.sessions.CreateSession(ctx, *p)
		if err != nil {
			return nil, err
		}
	}

	h, err := c.sessions.Begin(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer h.End()

	persona := h.Persona()
	state := StateReceived

	// Retrieving
	state = StateRetrieving
	retrieved, err := c.retriever.Retrieve(ctx, model.RetrievalQuery{
		Text:        userMessage,
		CharacterID: persona.CharacterID,
		K:           c.cfg.RetrieveK,
	})
	if err != nil {
		return nil, err
	}

	// Compact history first if the window overflowed.
	window, needSummary := h.ContextWindow(c.cfg.WindowBudget)
	if needSummary {
		if err := c.summarize(ctx, h, persona); err != nil {
			// Degrade: the assembler drops oldest turns anyway.
			c.logger.Warn("summarization failed, proceeding uncompacted",
				zap.String("session_id", sessionID), zap.Error(err))
		}
		window, _ = h.ContextWindow(c.cfg.WindowBudget)
	}

	// Assembling
	state = StateAssembling
	req, err := prompt.Assemble(persona, retrieved, window, userMessage, c.cfg.PromptBudget)
	if err != nil {
		return nil, err // BudgetExceededError: configuration, not retried
	}

	// Generating + Validating, with bounded regeneration.
	reply := ""
	fellBack := false
	for attempt := 0; ; attempt++ {
		state = StateGenerating
		text, err := c.generate(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return &Result{SessionID: sessionID, State: StateRejected}, err
			}
			c.logger.Warn("generation exhausted, falling back",
				zap.String("session_id", sessionID), zap.Error(err))
			reply = c.fallback(persona)
			fellBack = true
			break
		}

		state = StateValidating
		if verr := Validate(persona, text); verr != nil {
			c.logger.Info("reply failed validation",
				zap.String("session_id", sessionID),
				zap.Int("attempt", attempt),
				zap.Error(verr))
			if attempt < c.cfg.MaxRegens {
				req, err = prompt.AssembleStrict(persona, retrieved, window, userMessage, c.cfg.PromptBudget)
				if err != nil {
					return nil, err
				}
				continue
			}
			reply = c.fallback(persona)
			fellBack = true
			break
		}

		reply = text
		break
	}

	// Committed: user and character turns land together or not at all.
	turnIndex, err := h.CommitExchange(ctx, userMessage, reply, retrieved)
	if err != nil {
		return &Result{SessionID: sessionID, State: StateRejected}, err
	}
	state = StateCommitted

	return &Result{
		SessionID: sessionID,
		Response:  reply,
		State:     state,
		TurnIndex: turnIndex,
		FellBack:  fellBack,
	}, nil
}

// generate calls the backend with bounded retries and exponential
// backoff for transient failures.
func (c *Controller) generate(ctx context.Context, req *model.GenerationRequest) (string, error) {
	var lastErr error
	delay := c.cfg.BaseBackoff
	for attempt := 0; attempt < c.cfg.MaxGenAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		text, err := c.generator.Generate(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err

		var genErr *model.GenerationError
		if errors.As(err, &genErr) && !genErr.Transient {
			return "", err
		}
		if ctx.Err() != nil {
			return "", err
		}
	}
	return "", lastErr
}

// summarize collapses the overflowed turns into an updated rolling
// summary through the generation backend.
func (c *Controller) summarize(ctx context.Context, h *session.Handle, persona model.Persona) error {
	from, to := h.SummaryBounds(c.cfg.WindowBudget)
	if from == to {
		return nil
	}
	turns := h.TurnRange(from, to)

	req := prompt.SummarizeRequest(persona, h.RollingSummary(), turns, c.cfg.SummaryBudget)
	summary, err := c.generate(ctx, req)
	if err != nil {
		return err
	}
	if err := h.ApplySummary(ctx, to, summary); err != nil {
		return err
	}
	c.logger.Info("history compacted",
		zap.Int("summarized_through", to),
		zap.Int("turns_collapsed", to-from))
	return nil
}

func (c *Controller) fallback(p model.Persona) string {
	if p.Fallback != "" {
		return p.Fallback
	}
	return DefaultFallback
}
