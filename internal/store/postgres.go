package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Catalog receives the merged state of an author after every publish.
type Catalog interface {
	ReplaceAuthor(ctx context.Context, author string, state State) error
}

// PostgresCatalog mirrors published eggs into a PostgreSQL table.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

// NewPostgresCatalog creates a catalog connected to the given database URL.
func NewPostgresCatalog(ctx context.Context, url string) (*PostgresCatalog, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &PostgresCatalog{pool: p}, nil
}

func (c *PostgresCatalog) Close() { c.pool.Close() }

// Migrate creates the eggs table.
func (c *PostgresCatalog) Migrate(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS eggs (
  author       TEXT NOT NULL,
  repository   TEXT NOT NULL,
  name         TEXT NOT NULL,
  description  TEXT,
  language     TEXT,
  type         TEXT,
  size         TEXT,
  egg_author   TEXT NOT NULL,
  link         TEXT NOT NULL,
  exported_at  TEXT,
  updated_at   TIMESTAMP WITH TIME ZONE DEFAULT now(),
  PRIMARY KEY (author, repository, link)
);

CREATE INDEX IF NOT EXISTS eggs_author_idx
  ON eggs (author);

CREATE INDEX IF NOT EXISTS eggs_language_idx
  ON eggs (language);
`
	_, err := c.pool.Exec(ctx, q)
	return err
}

// ReplaceAuthor swaps every row of author for the eggs in state in one
// transaction.
func (c *PostgresCatalog) ReplaceAuthor(ctx context.Context, author string, state State) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM eggs WHERE author = $1`, author); err != nil {
		return fmt.Errorf("delete %s: %w", author, err)
	}

	const q = `
		INSERT INTO eggs (
			author, repository, name, description, language, type, size,
			egg_author, link, exported_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
		ON CONFLICT (author, repository, link) DO UPDATE SET
			name        = EXCLUDED.name,
			description = EXCLUDED.description,
			language    = EXCLUDED.language,
			type        = EXCLUDED.type,
			size        = EXCLUDED.size,
			egg_author  = EXCLUDED.egg_author,
			exported_at = EXCLUDED.exported_at,
			updated_at  = now();`

	batch := &pgx.Batch{}
	for _, repo := range state.Repositories() {
		for _, e := range state[repo] {
			batch.Queue(q, author, repo, e.Name, e.Description, e.Language, e.Type, e.Size, e.Author, e.Link, e.ExportedAt)
		}
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert %s: %w", author, err)
		}
	}
	return tx.Commit(ctx)
}

// Ping checks the database connectivity.
func (c *PostgresCatalog) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return c.pool.Ping(ctx)
}
