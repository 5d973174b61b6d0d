package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/castmark/persona-engine/internal/model"
)

// SaveSession persists full conversation state. Turns are append-only,
// so existing rows are left untouched and new ones inserted.
func (s *SQLiteStore) SaveSession(ctx context.Context, st *model.ConversationState) error {
	if st.SessionID == "" {
		return fmt.Errorf("session id is required")
	}

	var cacheJSON *string
	if len(st.RetrievedCache) > 0 {
		b, _ := json.Marshal(st.RetrievedCache)
		j := string(b)
		cacheJSON = &j
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, character_id, rolling_summary, summarized_up_to, retrieved_cache, last_active_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   rolling_summary = excluded.rolling_summary,
		   summarized_up_to = excluded.summarized_up_to,
		   retrieved_cache = excluded.retrieved_cache,
		   last_active_at = excluded.last_active_at`,
		st.SessionID, st.Persona.CharacterID, st.RollingSummary, st.SummarizedUpTo,
		cacheJSON, st.LastActiveAt.UTC().Format(time.RFC3339), now)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	for _, t := range st.Turns {
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO turns (session_id, idx, role, text, ts) VALUES (?, ?, ?, ?, ?)`,
			st.SessionID, t.Index, t.Role, t.Text, t.Timestamp.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("save turn %d: %w", t.Index, err)
		}
	}

	return tx.Commit()
}

// LoadSession restores conversation state by session ID. The persona is
// re-read from the personas table.
func (s *SQLiteStore) LoadSession(ctx context.Context, sessionID string) (*model.ConversationState, error) {
	st := &model.ConversationState{SessionID: sessionID}
	var characterID string
	var summary, cacheJSON sql.NullString
	var lastActive string

	err := s.db.QueryRowContext(ctx,
		`SELECT character_id, rolling_summary, summarized_up_to, retrieved_cache, last_active_at
		 FROM sessions WHERE id = ?`, sessionID).
		Scan(&characterID, &summary, &st.SummarizedUpTo, &cacheJSON, &lastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	if err != nil {
		return nil, err
	}

	st.RollingSummary = summary.String
	st.LastActiveAt, _ = time.Parse(time.RFC3339, lastActive)
	if cacheJSON.Valid {
		json.Unmarshal([]byte(cacheJSON.String), &st.RetrievedCache)
	}

	persona, err := s.GetPersona(ctx, characterID)
	if err != nil {
		return nil, err
	}
	st.Persona = *persona

	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, role, text, ts FROM turns WHERE session_id = ? ORDER BY idx`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var t model.Turn
		var ts string
		if err := rows.Scan(&t.Index, &t.Role, &t.Text, &ts); err != nil {
			return nil, err
		}
		t.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		st.Turns = append(st.Turns, t)
	}
	return st, rows.Err()
}

// ListSessions returns session IDs with their character and last
// activity, most recent first.
type SessionInfo struct {
	SessionID    string    `json:"session_id"`
	CharacterID  string    `json:"character_id"`
	Turns        int       `json:"turns"`
	LastActiveAt time.Time `json:"last_active_at"`
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.character_id, s.last_active_at, COUNT(t.idx)
		 FROM sessions s LEFT JOIN turns t ON t.session_id = s.id
		 GROUP BY s.id ORDER BY s.last_active_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var lastActive string
		if err := rows.Scan(&info.SessionID, &info.CharacterID, &lastActive, &info.Turns); err != nil {
			return nil, err
		}
		info.LastActiveAt, _ = time.Parse(time.RFC3339, lastActive)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// DeleteSession removes a session and its turns.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return err
	}
	return tx.Commit()
}
