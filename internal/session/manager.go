// Package session manages per-conversation state: turn history, the
// rolling summary, and the retrieval cache.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/castmark/persona-engine/internal/model"
	"github.com/castmark/persona-engine/internal/store"
)

// DefaultIdleTimeout expires sessions after this much inactivity.
const DefaultIdleTimeout = 30 * time.Minute

// Manager owns all live conversation state. Each session has its own
// lock; turns within a session are strictly serialized while separate
// sessions proceed in parallel.
type Manager struct {
	store       store.Store
	logger      *zap.Logger
	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	mu      sync.Mutex
	state   *model.ConversationState
	evicted bool // set under mu by ExpireIdle; the object left the map
}

// NewManager creates a session manager. store may be nil to run
// memory-only (no recovery across restarts).
func NewManager(st store.Store, idleTimeout time.Duration, logger *zap.Logger) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:       st,
		logger:      logger,
		idleTimeout: idleTimeout,
		sessions:    map[string]*session{},
	}
}

// CreateSession starts a conversation for a persona and returns its ID.
func (m *Manager) CreateSession(ctx context.Context, p model.Persona) (string, error) {
	id := uuid.NewString()
	st := &model.ConversationState{
		SessionID:      id,
		Persona:        p,
		RetrievedCache: map[int][]model.KnowledgeChunk{},
		LastActiveAt:   time.Now().UTC(),
	}

	m.mu.Lock()
	m.sessions[id] = &session{state: st}
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SaveSession(ctx, st); err != nil {
			return "", fmt.Errorf("persist session: %w", err)
		}
	}
	return id, nil
}

// lookup finds a live session, restoring it from the store if needed.
func (m *Manager) lookup(ctx context.Context, sessionID string) (*session, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if ok {
		return s, nil
	}

	if m.store == nil {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	st, err := m.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if st.RetrievedCache == nil {
		st.RetrievedCache = map[int][]model.KnowledgeChunk{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[sessionID]; ok {
		return existing, nil // lost the restore race
	}
	s = &session{state: st}
	m.sessions[sessionID] = s
	return s, nil
}

// Handle is an exclusive lease on one session. Holding a handle
// serializes the whole turn, external calls included, so the ordering
// invariant survives concurrent submissions.
type Handle struct {
	m *Manager
	s *session
}

// Begin locks the session for one turn. Callers must End the handle.
// A session evicted between lookup and lock is re-resolved, so a handle
// never wraps an object the sweeper already removed: two handles for
// one sessionId can otherwise commit the same turn index twice.
func (m *Manager) Begin(ctx context.Context, sessionID string) (*Handle, error) {
	for {
		s, err := m.lookup(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if s.evicted {
			s.mu.Unlock()
			continue
		}
		return &Handle{m: m, s: s}, nil
	}
}

// End releases the session.
func (h *Handle) End() {
	h.s.mu.Unlock()
}

// Persona returns the session's persona.
func (h *Handle) Persona() model.Persona {
	return h.s.state.Persona
}

// Turns returns a copy of the full turn history.
func (h *Handle) Turns() []model.Turn {
	out := make([]model.Turn, len(h.s.state.Turns))
	copy(out, h.s.state.Turns)
	return out
}

// NextIndex is the index the next appended turn must carry.
func (h *Handle) NextIndex() int {
	return len(h.s.state.Turns)
}

// AppendTurn appends one turn, enforcing the strictly-increasing,
// gap-free index invariant.
func (h *Handle) AppendTurn(ctx context.Context, t model.Turn) error {
	st := h.s.state
	want := len(st.Turns)
	if t.Index != want {
		return &model.InvalidTurnError{SessionID: st.SessionID, Got: t.Index, Want: want}
	}
	if t.Role != model.RoleUser && t.Role != model.RoleCharacter {
		return fmt.Errorf("session %s: unknown role %q", st.SessionID, t.Role)
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	st.Turns = append(st.Turns, t)
	st.LastActiveAt = time.Now().UTC()
	return h.persist(ctx)
}

// CommitExchange appends the user and character turns of one completed
// exchange and caches what was retrieved for it. One persist, so the
// commit is all-or-nothing.
func (h *Handle) CommitExchange(ctx context.Context, userText, replyText string, retrieved []model.KnowledgeChunk) (int, error) {
	st := h.s.state
	base := len(st.Turns)
	now := time.Now().UTC()

	st.Turns = append(st.Turns,
		model.Turn{Index: base, Role: model.RoleUser, Text: userText, Timestamp: now},
		model.Turn{Index: base + 1, Role: model.RoleCharacter, Text: replyText, Timestamp: now},
	)
	if len(retrieved) > 0 {
		st.RetrievedCache[base] = retrieved
	}
	st.LastActiveAt = now

	if err := h.persist(ctx); err != nil {
		// Roll back the in-memory append so state matches the store.
		st.Turns = st.Turns[:base]
		delete(st.RetrievedCache, base)
		return 0, err
	}
	return base, nil
}

// Window is the bounded context view handed to the prompt assembler.
type Window struct {
	Summary string
	Turns   []model.Turn
}

// ContextWindow returns the rolling summary plus the most recent whole
// turns that fit the token budget. needSummary reports that unsummarized
// history overflowed the budget and a summarize pass is due.
func (h *Handle) ContextWindow(budget int) (Window, bool) {
	st := h.s.state
	w := Window{Summary: st.RollingSummary}

	remaining := budget - model.EstimateTokens(st.RollingSummary)
	unsummarized := st.Turns[min(st.SummarizedUpTo, len(st.Turns)):]

	// Walk backwards, newest first, taking whole turns only.
	cut := len(unsummarized)
	for i := len(unsummarized) - 1; i >= 0; i-- {
		cost := model.EstimateTokens(unsummarized[i].Text)
		if cost > remaining {
			break
		}
		remaining -= cost
		cut = i
	}

	w.Turns = unsummarized[cut:]
	needSummary := cut > 0
	return w, needSummary
}

// SummaryBounds returns the turn range [from, to) a summarize pass
// should collapse: everything unsummarized except the tail that fits.
func (h *Handle) SummaryBounds(budget int) (int, int) {
	st := h.s.state
	w, need := h.ContextWindow(budget)
	if !need {
		return st.SummarizedUpTo, st.SummarizedUpTo
	}
	return st.SummarizedUpTo, len(st.Turns) - len(w.Turns)
}

// TurnRange returns turns [from, to) for summarization input.
func (h *Handle) TurnRange(from, to int) []model.Turn {
	st := h.s.state
	if from < 0 || to > len(st.Turns) || from > to {
		return nil
	}
	out := make([]model.Turn, to-from)
	copy(out, st.Turns[from:to])
	return out
}

// RollingSummary returns the current summary text.
func (h *Handle) RollingSummary() string {
	return h.s.state.RollingSummary
}

// ApplySummary records a new rolling summary covering turns up to
// (excluding) upTo. Raw turns stay in history for audit; only the
// context window view is compacted.
func (h *Handle) ApplySummary(ctx context.Context, upTo int, summary string) error {
	st := h.s.state
	if upTo < st.SummarizedUpTo || upTo > len(st.Turns) {
		return fmt.Errorf("session %s: summary bound %d out of range", st.SessionID, upTo)
	}
	st.RollingSummary = summary
	st.SummarizedUpTo = upTo
	return h.persist(ctx)
}

// Retrieved returns the cached retrieval for a turn index, if any.
func (h *Handle) Retrieved(turnIndex int) []model.KnowledgeChunk {
	return h.s.state.RetrievedCache[turnIndex]
}

func (h *Handle) persist(ctx context.Context) error {
	if h.m.store == nil {
		return nil
	}
	return h.m.store.SaveSession(ctx, h.s.state)
}

// AppendTurn appends a turn to a session in one step.
func (m *Manager) AppendTurn(ctx context.Context, sessionID string, t model.Turn) error {
	h, err := m.Begin(ctx, sessionID)
	if err != nil {
		return err
	}
	defer h.End()
	return h.AppendTurn(ctx, t)
}

// ExpireIdle evicts sessions idle longer than the timeout. Returns the
// number evicted. Persisted state remains for recovery until deleted
// explicitly.
func (m *Manager) ExpireIdle(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, s := range m.sessions {
		if !s.mu.TryLock() {
			continue // turn in flight, not idle
		}
		// Mark while still holding the session lock, so a Begin that
		// already looked this object up detects the eviction.
		idle := now.Sub(s.state.LastActiveAt)
		if idle > m.idleTimeout {
			s.evicted = true
			delete(m.sessions, id)
			evicted++
			m.logger.Info("session expired", zap.String("session_id", id), zap.Duration("idle", idle))
		}
		s.mu.Unlock()
	}
	return evicted
}

// StartSweeper runs ExpireIdle periodically until ctx is cancelled.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.ExpireIdle(now)
			}
		}
	}()
}
