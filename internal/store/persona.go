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

// SavePersona upserts a persona profile.
func (s *SQLiteStore) SavePersona(ctx context.Context, p model.Persona) error {
	if p.CharacterID == "" || p.Name == "" {
		return fmt.Errorf("persona requires character_id and name")
	}

	traits, _ := json.Marshal(p.VoiceTraits)
	constraints, _ := json.Marshal(p.HardConstraints)
	forbidden, _ := json.Marshal(p.ForbiddenTopics)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO personas (character_id, name, voice_traits, hard_constraints, forbidden_topics, greeting, fallback, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(character_id) DO UPDATE SET
		   name = excluded.name,
		   voice_traits = excluded.voice_traits,
		   hard_constraints = excluded.hard_constraints,
		   forbidden_topics = excluded.forbidden_topics,
		   greeting = excluded.greeting,
		   fallback = excluded.fallback`,
		p.CharacterID, p.Name, string(traits), string(constraints), string(forbidden),
		p.Greeting, p.Fallback, time.Now().UTC().Format(time.RFC3339))
	return err
}

// GetPersona loads a persona by character ID.
func (s *SQLiteStore) GetPersona(ctx context.Context, characterID string) (*model.Persona, error) {
	var p model.Persona
	var traits, constraints, forbidden, greeting, fallback sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT character_id, name, voice_traits, hard_constraints, forbidden_topics, greeting, fallback
		 FROM personas WHERE character_id = ?`, characterID).
		Scan(&p.CharacterID, &p.Name, &traits, &constraints, &forbidden, &greeting, &fallback)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("persona not found: %s", characterID)
	}
	if err != nil {
		return nil, err
	}

	if traits.Valid {
		json.Unmarshal([]byte(traits.String), &p.VoiceTraits)
	}
	if constraints.Valid {
		json.Unmarshal([]byte(constraints.String), &p.HardConstraints)
	}
	if forbidden.Valid {
		json.Unmarshal([]byte(forbidden.String), &p.ForbiddenTopics)
	}
	p.Greeting = greeting.String
	p.Fallback = fallback.String

	return &p, nil
}

// ListPersonas returns all stored personas.
func (s *SQLiteStore) ListPersonas(ctx context.Context) ([]model.Persona, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT character_id FROM personas ORDER BY character_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var personas []model.Persona
	for _, id := range ids {
		p, err := s.GetPersona(ctx, id)
		if err != nil {
			return nil, err
		}
		personas = append(personas, *p)
	}
	return personas, nil
}
