// Package pgvector serves similarity search from a PostgreSQL table with a
// pgvector column.
package pgvector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"

	"marketrag/internal/domain"
	"marketrag/internal/vectorstore"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Storage implements vectorstore.Storage over a single table.
type Storage struct {
	db        *sql.DB
	table     string
	dimension int
}

// Open connects to dsn. The table is created by Init.
func Open(dsn, table string) (*Storage, error) {
	if table == "" {
		table = "rag_chunks"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Storage{db: db, table: table}, nil
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			source TEXT NOT NULL,
			text TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, s.table, dimension),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_build (
			singleton BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
			build TEXT NOT NULL
		)`, s.table),
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}
	return nil
}

// Upsert writes all rows in one transaction.
func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, seq, source, text, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			seq = EXCLUDED.seq,
			source = EXCLUDED.source,
			text = EXCLUDED.text,
			embedding = EXCLUDED.embedding`, s.table))
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()
	for i, ch := range chunks {
		if len(vectors[i]) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
		if _, err := stmt.ExecContext(ctx, ch.ID, ch.Seq, ch.Source, ch.Text, pgvector.NewVector(vectors[i])); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", ch.ID, err)
		}
	}
	return tx.Commit()
}

// Search orders by cosine distance; score is 1 - distance.
func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return []domain.SearchResult{}, nil
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, seq, source, text, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1, seq
		LIMIT $2`, s.table), pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	results := []domain.SearchResult{}
	for rows.Next() {
		var r domain.SearchResult
		if err := rows.Scan(&r.Chunk.ID, &r.Chunk.Seq, &r.Chunk.Source, &r.Chunk.Text, &r.Score); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vectorstore.SortResults(results, topK), nil
}

// Clear drops the tables so a rebuild may change the dimension.
func (s *Storage) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s, %s_build`, s.table, s.table)); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

func (s *Storage) SetBuild(ctx context.Context, build string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s_build (singleton, build) VALUES (TRUE, $1)
		ON CONFLICT (singleton) DO UPDATE SET build = EXCLUDED.build`, s.table), build)
	if err != nil {
		return fmt.Errorf("set build: %w", err)
	}
	return nil
}

// Build returns "" when Init has not run or no build was recorded.
func (s *Storage) Build(ctx context.Context) (string, error) {
	var present bool
	if err := s.db.QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL`, s.table+"_build").Scan(&present); err != nil {
		return "", fmt.Errorf("find build table: %w", err)
	}
	if !present {
		return "", nil
	}
	var build string
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT build FROM %s_build`, s.table)).Scan(&build)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read build: %w", err)
	}
	return build, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}
