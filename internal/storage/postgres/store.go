// Package postgres provides the Postgres-backed frontier, index and ranking store.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/realtime-search-crawler/internal/search"
)

//go:embed schema.sql
var schema string

// ErrOriginNotFound is returned when an update targets a missing origin row.
var ErrOriginNotFound = errors.New("origin not found")

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool the store relies on.
type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Ping(context.Context) error
	Close()
}

// Store implements the search storage interfaces over a pgx pool.
type Store struct {
	pool pool
}

// New connects a pool using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Migrate creates the tables and indexes when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const selectFirstPass = `
SELECT id::text, url, rank, scraped, attempt_count, next_attempt, last_error
FROM origins
WHERE scraped = FALSE
  AND (next_attempt IS NULL OR next_attempt <= $1)
ORDER BY rank ASC, attempt_count ASC, next_attempt ASC NULLS LAST
LIMIT $2`

const selectBacklog = `
SELECT id::text, url, rank, scraped, attempt_count, next_attempt, last_error
FROM origins
WHERE scraped = FALSE
  AND attempt_count > 0
  AND next_attempt <= $1
ORDER BY rank ASC, attempt_count ASC, next_attempt ASC NULLS LAST
LIMIT $2`

// SelectOrigins returns the next frontier batch for the selection mode.
func (s *Store) SelectOrigins(ctx context.Context, sel search.Selection) ([]search.Origin, error) {
	query := selectFirstPass
	if sel.Mode == search.ModeBacklog {
		query = selectBacklog
	}
	rows, err := s.pool.Query(ctx, query, sel.Now, sel.Limit)
	if err != nil {
		return nil, fmt.Errorf("select origins: %w", err)
	}
	defer rows.Close()

	var origins []search.Origin
	for rows.Next() {
		var o search.Origin
		if err := rows.Scan(&o.ID, &o.URL, &o.Rank, &o.Scraped, &o.AttemptCount, &o.NextAttempt, &o.LastError); err != nil {
			return nil, fmt.Errorf("scan origin: %w", err)
		}
		origins = append(origins, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate origins: %w", err)
	}
	return origins, nil
}

// UpdateOrigin writes back the outcome of one crawl attempt.
func (s *Store) UpdateOrigin(ctx context.Context, update search.OriginUpdate) error {
	const query = `
UPDATE origins
SET scraped = $2, attempt_count = $3, next_attempt = $4, last_error = $5
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, update.ID, update.Scraped, update.AttemptCount, update.NextAttempt, update.LastError)
	if err != nil {
		return fmt.Errorf("update origin %s: %w", update.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update origin %s: %w", update.ID, ErrOriginNotFound)
	}
	return nil
}

// CountOrigins returns the number of frontier rows.
func (s *Store) CountOrigins(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM origins`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count origins: %w", err)
	}
	return n, nil
}

// InsertOrigins bulk-inserts origins, skipping URLs that already exist.
func (s *Store) InsertOrigins(ctx context.Context, origins []search.Origin) (int64, error) {
	if len(origins) == 0 {
		return 0, nil
	}
	urls := make([]string, len(origins))
	ranks := make([]int32, len(origins))
	for i, o := range origins {
		urls[i] = o.URL
		ranks[i] = int32(o.Rank) //nolint:gosec // ranks are line numbers of the seed file
	}
	const query = `
INSERT INTO origins (url, rank)
SELECT url, rank FROM unnest($1::text[], $2::int[]) AS t(url, rank)
ON CONFLICT (url) DO NOTHING`
	tag, err := s.pool.Exec(ctx, query, urls, ranks)
	if err != nil {
		return 0, fmt.Errorf("insert origins: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SaveDocument stores a document, its terms and its postings in one transaction.
func (s *Store) SaveDocument(ctx context.Context, doc search.IndexedDocument) (err error) {
	docID, err := uuid.Parse(doc.Document.ID)
	if err != nil {
		return fmt.Errorf("parse document id: %w", err)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	d := doc.Document
	const insertDocument = `
INSERT INTO documents (id, url, title, description, word_count, rank)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err = tx.Exec(ctx, insertDocument, d.ID, d.URL, d.Title, d.Description, d.WordCount, d.Rank); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	termIDs, err := upsertTerms(ctx, tx, doc.Terms)
	if err != nil {
		return err
	}

	rows := make([][]any, 0, len(doc.Terms))
	for _, t := range doc.Terms {
		termID, ok := termIDs[t.Word]
		if !ok {
			err = fmt.Errorf("term %q missing after upsert", t.Word)
			return err
		}
		rows = append(rows, []any{docID, termID, int32(t.Occurrences), int32(t.Position)}) //nolint:gosec // bounded by document length
	}
	if len(rows) > 0 {
		columns := []string{"document_id", "term_id", "occurrences", "position"}
		if _, err = tx.CopyFrom(ctx, pgx.Identifier{"document_terms"}, columns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("copy document terms: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit document: %w", err)
	}
	return nil
}

func upsertTerms(ctx context.Context, tx pgx.Tx, terms []search.TermStat) (map[string]uuid.UUID, error) {
	ids := make(map[string]uuid.UUID, len(terms))
	if len(terms) == 0 {
		return ids, nil
	}
	words := make([]string, len(terms))
	for i, t := range terms {
		words[i] = t.Word
	}
	const query = `
INSERT INTO terms (word, documents_containing_word)
SELECT w, 1 FROM unnest($1::text[]) AS w
ON CONFLICT (word) DO UPDATE
SET documents_containing_word = terms.documents_containing_word + 1
RETURNING id::text, word`
	rows, err := tx.Query(ctx, query, words)
	if err != nil {
		return nil, fmt.Errorf("upsert terms: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rawID, word string
		if err := rows.Scan(&rawID, &word); err != nil {
			return nil, fmt.Errorf("scan term: %w", err)
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("parse term id: %w", err)
		}
		ids[word] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate terms: %w", err)
	}
	return ids, nil
}

// Candidates returns every posting matching one of the words, ordered by position.
func (s *Store) Candidates(ctx context.Context, words []string) ([]search.Candidate, error) {
	if len(words) == 0 {
		return nil, nil
	}
	const query = `
SELECT d.id::text, d.url, d.title, d.description, d.word_count, d.rank,
       t.word, dt.occurrences, dt.position, t.documents_containing_word
FROM document_terms dt
JOIN terms t ON t.id = dt.term_id
JOIN documents d ON d.id = dt.document_id
WHERE t.word = ANY($1)
ORDER BY dt.position ASC`
	rows, err := s.pool.Query(ctx, query, words)
	if err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}
	defer rows.Close()

	var out []search.Candidate
	for rows.Next() {
		var c search.Candidate
		d := &c.Document
		if err := rows.Scan(&d.ID, &d.URL, &d.Title, &d.Description, &d.WordCount, &d.Rank,
			&c.Word, &c.Occurrences, &c.Position, &c.DocumentsContaining); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return out, nil
}

// DocumentCount returns the number of indexed documents.
func (s *Store) DocumentCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}
