package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"
)

//go:embed scripts/initdb.sql
var bootstrapFS embed.FS

// EnsureBootstrapped creates the schema on first run and, on every start,
// verifies that the embedding column's dimension matches embedDim so a
// misconfigured EMBED_DIM fails at startup instead of at the first insert.
func EnsureBootstrapped(ctx context.Context, db *sql.DB, embedDim int) error {

	ctxBoot, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	var exists bool
	err := db.QueryRowContext(ctxBoot, `
		SELECT EXISTS (
		  SELECT 1 FROM information_schema.tables
		  WHERE table_name = 'bzr_meta'
		)`).
		Scan(&exists)
	if err != nil {
		return fmt.Errorf("meta table check failed: %w", err)
	}

	if !exists {
		return runBootstrap(ctxBoot, db, embedDim)
	}

	var hasVersion bool
	if err := db.QueryRowContext(ctxBoot, `SELECT EXISTS (SELECT 1 FROM bzr_meta WHERE version = 1)`).Scan(&hasVersion); err != nil {
		return fmt.Errorf("meta version check failed: %w", err)
	}
	if !hasVersion {
		return runBootstrap(ctxBoot, db, embedDim)
	}

	return checkEmbeddingDim(ctxBoot, db, embedDim)
}

// bootstrapSQL renders the schema script for the configured embedding
// dimension. The embedded script carries the default 1536.
func bootstrapSQL(embedDim int) (string, error) {
	raw, err := bootstrapFS.ReadFile("scripts/initdb.sql")
	if err != nil {
		return "", fmt.Errorf("read initdb.sql: %w", err)
	}
	return strings.ReplaceAll(string(raw), "vector(1536)", fmt.Sprintf("vector(%d)", embedDim)), nil
}

func runBootstrap(ctx context.Context, db *sql.DB, embedDim int) error {
	script, err := bootstrapSQL(embedDim)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, script); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec bootstrap: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	return nil
}

// checkEmbeddingDim compares EMBED_DIM with the dimension the existing
// schema was created with. For pgvector the column's atttypmod is the
// dimension itself.
func checkEmbeddingDim(ctx context.Context, db *sql.DB, embedDim int) error {
	var dim int
	err := db.QueryRowContext(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = 'vector_records'::regclass AND attname = 'embedding'`).
		Scan(&dim)
	if err != nil {
		return fmt.Errorf("embedding dimension check failed: %w", err)
	}
	if dim != embedDim {
		return fmt.Errorf("vector_records.embedding is vector(%d) but EMBED_DIM is %d", dim, embedDim)
	}
	return nil
}
