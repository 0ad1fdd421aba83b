package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/bzrportal/knowledge/internal/config"
	"github.com/bzrportal/knowledge/internal/core"
	"github.com/bzrportal/knowledge/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, cfg.EmbedDim); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

const recordColumns = `id, content, embedding, file_name, file_type, extraction_date,
	file_size_bytes, bucket, file_path, added_at, owner_user_id, is_public,
	category, folder, array_to_string(tags, ','), embedding_source`

func (c *DatabaseClient) InsertVectorRecord(ctx context.Context, rec *models.VectorRecord) error {
	if rec == nil {
		return errors.New("nil record")
	}
	const q = `
		INSERT INTO vector_records
			(id, content, embedding, file_name, file_type, extraction_date,
			 file_size_bytes, bucket, file_path, added_at, owner_user_id,
			 is_public, category, folder, tags, embedding_source)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, now()), $11,
			 $12, $13, $14, COALESCE(string_to_array(NULLIF($15, ''), ','), '{}'), $16)
	`
	m := &rec.Metadata
	_, err := c.db.ExecContext(ctx, q,
		rec.ID, rec.Content, pgvector.NewVector(rec.Embedding),
		m.Filename, m.FileType, m.ExtractionDate, m.FileSizeBytes,
		m.Bucket, m.FilePath, m.AddedAt, m.OwnerUserID, m.IsPublic,
		m.Category, m.Folder, strings.Join(m.Tags, ","), m.EmbeddingSource,
	)
	if err != nil {
		return fmt.Errorf("%w: insert record: %v", core.ErrIndexUnavailable, err)
	}
	return nil
}

func (c *DatabaseClient) GetVectorRecordByID(ctx context.Context, id string) (*models.VectorRecord, error) {
	q := `SELECT ` + recordColumns + ` FROM vector_records WHERE id = $1`
	rec, err := scanRecord(c.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", core.ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get record: %v", core.ErrIndexUnavailable, err)
	}
	return rec, nil
}

func (c *DatabaseClient) UpdateVectorRecord(ctx context.Context, rec *models.VectorRecord) error {
	if rec == nil {
		return errors.New("nil record")
	}
	const q = `
		UPDATE vector_records SET
			content = $2, embedding = $3, file_name = $4, file_type = $5,
			extraction_date = $6, file_size_bytes = $7, bucket = $8,
			file_path = $9, owner_user_id = $10, is_public = $11,
			category = $12, folder = $13,
			tags = COALESCE(string_to_array(NULLIF($14, ''), ','), '{}'), embedding_source = $15
		WHERE id = $1
	`
	m := &rec.Metadata
	res, err := c.db.ExecContext(ctx, q,
		rec.ID, rec.Content, pgvector.NewVector(rec.Embedding),
		m.Filename, m.FileType, m.ExtractionDate, m.FileSizeBytes,
		m.Bucket, m.FilePath, m.OwnerUserID, m.IsPublic,
		m.Category, m.Folder, strings.Join(m.Tags, ","), m.EmbeddingSource,
	)
	if err != nil {
		return fmt.Errorf("%w: update record: %v", core.ErrIndexUnavailable, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrRecordNotFound, rec.ID)
	}
	return nil
}

func (c *DatabaseClient) DeleteVectorRecord(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM vector_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: delete record: %v", core.ErrIndexUnavailable, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrRecordNotFound, id)
	}
	return nil
}

// DeleteVectorRecordsByPath removes every record ingested from one storage
// object. Used by upsert-by-path mode.
func (c *DatabaseClient) DeleteVectorRecordsByPath(ctx context.Context, bucket, filePath string) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM vector_records WHERE bucket = $1 AND file_path = $2`, bucket, filePath)
	if err != nil {
		return 0, fmt.Errorf("%w: delete by path: %v", core.ErrIndexUnavailable, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (c *DatabaseClient) ListVectorRecordsByOwner(ctx context.Context, ownerUserID string) ([]models.VectorRecord, error) {
	q := `SELECT ` + recordColumns + `
		FROM vector_records WHERE owner_user_id = $1 ORDER BY added_at DESC`
	rows, err := c.db.QueryContext(ctx, q, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("%w: list records: %v", core.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	var out []models.VectorRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan record: %v", core.ErrIndexUnavailable, err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// SearchVectorRecords runs the cosine similarity query. Results come back
// ordered by similarity descending; no tie-break beyond that.
func (c *DatabaseClient) SearchVectorRecords(ctx context.Context, queryVec []float32, threshold float64, limit int) ([]models.VectorRecord, error) {
	q := `SELECT ` + recordColumns + `, 1 - (embedding <=> $1) AS similarity
		FROM vector_records
		WHERE 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1
		LIMIT $3`

	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, vec, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: similarity search: %v", core.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	var out []models.VectorRecord
	for rows.Next() {
		var (
			rec  models.VectorRecord
			emb  pgvector.Vector
			tags string
		)
		m := &rec.Metadata
		if err := rows.Scan(
			&rec.ID, &rec.Content, &emb, &m.Filename, &m.FileType,
			&m.ExtractionDate, &m.FileSizeBytes, &m.Bucket, &m.FilePath,
			&m.AddedAt, &m.OwnerUserID, &m.IsPublic, &m.Category, &m.Folder,
			&tags, &m.EmbeddingSource, &rec.Similarity,
		); err != nil {
			return nil, fmt.Errorf("%w: scan result: %v", core.ErrIndexUnavailable, err)
		}
		rec.Embedding = emb.Slice()
		m.Tags = splitTags(tags)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) CreateBlogPost(ctx context.Context, post *models.BlogPost) error {
	if post == nil {
		return errors.New("nil blog post")
	}
	const q = `
		INSERT INTO blog_posts
			(id, title, content, status, source_question, author_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()), COALESCE($8, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		post.ID, post.Title, post.Content, post.Status,
		post.SourceQuestion, post.AuthorUserID, post.CreatedAt, post.UpdatedAt)
	return err
}

func (c *DatabaseClient) ListBlogPostsByStatus(ctx context.Context, status string) ([]models.BlogPost, error) {
	const q = `
		SELECT id, title, content, status, source_question, author_user_id, created_at, updated_at
		FROM blog_posts WHERE status = $1 ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.BlogPost
	for rows.Next() {
		var p models.BlogPost
		if err := rows.Scan(&p.ID, &p.Title, &p.Content, &p.Status,
			&p.SourceQuestion, &p.AuthorUserID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) ListActiveKnowledgeReferences(ctx context.Context) ([]models.KnowledgeReference, error) {
	const q = `
		SELECT id, title, url, category, is_active, document_id, created_at
		FROM knowledge_references WHERE is_active ORDER BY created_at
	`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.KnowledgeReference
	for rows.Next() {
		var r models.KnowledgeReference
		if err := rows.Scan(&r.ID, &r.Title, &r.URL, &r.Category,
			&r.IsActive, &r.DocumentID, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) SetKnowledgeReferenceDocument(ctx context.Context, refID, documentID string) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE knowledge_references SET document_id = $2 WHERE id = $1`, refID, documentID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("knowledge reference not found: %s", refID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.VectorRecord, error) {
	var (
		rec  models.VectorRecord
		emb  pgvector.Vector
		tags string
	)
	m := &rec.Metadata
	if err := row.Scan(
		&rec.ID, &rec.Content, &emb, &m.Filename, &m.FileType,
		&m.ExtractionDate, &m.FileSizeBytes, &m.Bucket, &m.FilePath,
		&m.AddedAt, &m.OwnerUserID, &m.IsPublic, &m.Category, &m.Folder,
		&tags, &m.EmbeddingSource,
	); err != nil {
		return nil, err
	}
	rec.Embedding = emb.Slice()
	m.Tags = splitTags(tags)
	return &rec, nil
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
