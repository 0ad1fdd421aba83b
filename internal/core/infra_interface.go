package core

import (
	"context"

	"github.com/bzrportal/knowledge/internal/models"
)

// DbClient defines all persistence operations higher layers need.
// It abstracts Postgres/pgvector so services never depend on a specific DB.
type DbClient interface {
	InsertVectorRecord(ctx context.Context, rec *models.VectorRecord) error
	GetVectorRecordByID(ctx context.Context, id string) (*models.VectorRecord, error)
	UpdateVectorRecord(ctx context.Context, rec *models.VectorRecord) error
	DeleteVectorRecord(ctx context.Context, id string) error
	DeleteVectorRecordsByPath(ctx context.Context, bucket, filePath string) (int64, error)
	ListVectorRecordsByOwner(ctx context.Context, ownerUserID string) ([]models.VectorRecord, error)

	// SearchVectorRecords returns at most limit records whose cosine
	// similarity to queryVec is at least threshold, ordered by similarity
	// descending.
	SearchVectorRecords(ctx context.Context, queryVec []float32, threshold float64, limit int) ([]models.VectorRecord, error)

	CreateBlogPost(ctx context.Context, post *models.BlogPost) error
	ListBlogPostsByStatus(ctx context.Context, status string) ([]models.BlogPost, error)

	ListActiveKnowledgeReferences(ctx context.Context) ([]models.KnowledgeReference, error)
	SetKnowledgeReferenceDocument(ctx context.Context, refID, documentID string) error

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// It’s abstract so you can replace AWS with MinIO, GCP, etc. easily.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error

	// GetFile returns the object bytes and the content type recorded at
	// upload time (empty when the store has none).
	GetFile(ctx context.Context, bucket, key string) ([]byte, string, error)

	ListFiles(ctx context.Context, bucket, prefix string) ([]string, error)
}

// DocumentExtractor converts a raw file into plain text plus metadata.
type DocumentExtractor interface {
	Extract(data []byte, contentType, filename string) (*models.DocumentContent, error)
}
