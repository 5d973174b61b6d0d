package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath         string           `json:"db_path"`
	DBSizeBytes    int64            `json:"db_size_bytes"`
	Personas       int              `json:"personas"`
	TotalChunks    int              `json:"total_chunks"`
	EmbeddedChunks int              `json:"embedded_chunks"`
	Sessions       int              `json:"sessions"`
	Characters     []CharacterStats `json:"characters"`
}

// CharacterStats holds per-character corpus counts.
type CharacterStats struct {
	CharacterID string `json:"character_id"`
	Chunks      int    `json:"chunks"`
	Embedded    int    `json:"embedded"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM personas`).Scan(&st.Personas)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&st.TotalChunks)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE embedding IS NOT NULL`).Scan(&st.EmbeddedChunks)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&st.Sessions)

	rows, err := s.db.QueryContext(ctx, `
		SELECT character_id, COUNT(*), SUM(CASE WHEN embedding IS NOT NULL THEN 1 ELSE 0 END)
		FROM chunks GROUP BY character_id ORDER BY character_id`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var cs CharacterStats
		rows.Scan(&cs.CharacterID, &cs.Chunks, &cs.Embedded)
		st.Characters = append(st.Characters, cs)
	}

	return st, nil
}
