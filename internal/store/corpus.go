package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/castmark/persona-engine/internal/model"
)

// PutChunk stores one corpus chunk, pre-embedding.
func (s *SQLiteStore) PutChunk(ctx context.Context, p PutChunkParams) (*model.KnowledgeChunk, error) {
	if strings.TrimSpace(p.Text) == "" {
		return nil, &model.CorpusError{SourceRef: p.SourceRef, Reason: "empty chunk text"}
	}
	if p.CharacterID == "" {
		return nil, &model.CorpusError{SourceRef: p.SourceRef, Reason: "missing character id"}
	}
	kind := p.SourceKind
	if kind == "" {
		kind = "novel"
	}
	if !model.ValidSourceKinds[kind] {
		return nil, &model.CorpusError{SourceRef: p.SourceRef, Reason: fmt.Sprintf("unknown source kind %q", kind)}
	}

	var tagsJSON *string
	if len(p.Tags) > 0 {
		b, _ := json.Marshal(p.Tags)
		j := string(b)
		tagsJSON = &j
	}

	now := time.Now().UTC()
	id := s.newID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chunks (id, character_id, text, source_ref, source_kind, tags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, p.CharacterID, p.Text, p.SourceRef, kind, tagsJSON, now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert chunk: %w", err)
	}

	return &model.KnowledgeChunk{
		ID:          id,
		CharacterID: p.CharacterID,
		Text:        p.Text,
		SourceRef:   p.SourceRef,
		SourceKind:  kind,
		Tags:        p.Tags,
		CreatedAt:   now,
	}, nil
}

// GetAllChunks returns every chunk for a character, ordered by ID.
// ULID ordering doubles as insertion order.
func (s *SQLiteStore) GetAllChunks(ctx context.Context, characterID string) ([]model.KnowledgeChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, character_id, text, source_ref, source_kind, tags, embedding, created_at
		 FROM chunks WHERE character_id = ? ORDER BY id`, characterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []model.KnowledgeChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// SetEmbedding attaches an embedding vector to a stored chunk.
func (s *SQLiteStore) SetEmbedding(ctx context.Context, chunkID string, vec []float32) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chunks SET embedding = ? WHERE id = ?`, encodeVector(vec), chunkID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("chunk not found: %s", chunkID)
	}
	return nil
}

// SearchLexical finds chunks matching the query via the FTS index,
// scoped to one character.
func (s *SQLiteStore) SearchLexical(ctx context.Context, p SearchParams) ([]model.KnowledgeChunk, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	match := ftsQuery(p.Query)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.character_id, c.text, c.source_ref, c.source_kind, c.tags, c.embedding, c.created_at
		 FROM chunks_fts f
		 JOIN chunks c ON c.rowid = f.rowid
		 WHERE chunks_fts MATCH ? AND c.character_id = ?
		 ORDER BY bm25(chunks_fts), c.id
		 LIMIT ?`, match, p.CharacterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []model.KnowledgeChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ExportChunks returns all chunks, optionally scoped to a character.
func (s *SQLiteStore) ExportChunks(ctx context.Context, characterID string) ([]model.KnowledgeChunk, error) {
	query := `SELECT id, character_id, text, source_ref, source_kind, tags, embedding, created_at
	          FROM chunks`
	var args []interface{}
	if characterID != "" {
		query += ` WHERE character_id = ?`
		args = append(args, characterID)
	}
	query += ` ORDER BY character_id, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []model.KnowledgeChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ImportChunks stores exported chunks, embeddings included. Returns the
// number imported.
func (s *SQLiteStore) ImportChunks(ctx context.Context, chunks []model.KnowledgeChunk) (int, error) {
	imported := 0
	for _, c := range chunks {
		put, err := s.PutChunk(ctx, PutChunkParams{
			CharacterID: c.CharacterID,
			Text:        c.Text,
			SourceRef:   c.SourceRef,
			SourceKind:  c.SourceKind,
			Tags:        c.Tags,
		})
		if err != nil {
			return imported, err
		}
		if len(c.Embedding) > 0 {
			if err := s.SetEmbedding(ctx, put.ID, c.Embedding); err != nil {
				return imported, err
			}
		}
		imported++
	}
	return imported, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanChunk(row scanner) (model.KnowledgeChunk, error) {
	var c model.KnowledgeChunk
	var tagsJSON sql.NullString
	var embedding []byte
	var createdAt string

	err := row.Scan(&c.ID, &c.CharacterID, &c.Text, &c.SourceRef, &c.SourceKind,
		&tagsJSON, &embedding, &createdAt)
	if err != nil {
		return c, err
	}

	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if tagsJSON.Valid {
		json.Unmarshal([]byte(tagsJSON.String), &c.Tags)
	}
	c.Embedding = decodeVector(embedding)

	return c, nil
}

// ftsQuery turns free text into a disjunction of quoted FTS5 terms so
// user punctuation cannot break the MATCH syntax and any matching term
// counts; bm25 ranks stronger matches higher.
func ftsQuery(q string) string {
	fields := strings.Fields(q)
	if len(fields) == 0 {
		return ""
	}
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f != "" {
			terms = append(terms, `"`+f+`"`)
		}
	}
	return strings.Join(terms, " OR ")
}
