package ingestion_engine

import (
	"context"

	"github.com/bzrportal/knowledge/internal/models"
)

// IngestMetadata is the caller-supplied part of a record's metadata;
// extraction fills in the rest.
type IngestMetadata struct {
	OwnerUserID string   `json:"owner_user_id,omitempty"`
	IsPublic    bool     `json:"is_public"`
	Category    string   `json:"category,omitempty"`
	Folder      string   `json:"folder,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// BatchDocument identifies one storage object in a batch ingest.
type BatchDocument struct {
	Bucket   string         `json:"bucket"`
	Key      string         `json:"key"`
	Metadata IngestMetadata `json:"metadata"`
}

// BatchError records why one batch item failed, keyed by its object key.
type BatchError struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// BatchResult summarizes a batch ingest. The batch itself always completes;
// per-item failures land in Errors.
type BatchResult struct {
	Total      int          `json:"total"`
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
	Errors     []BatchError `json:"errors,omitempty"`
}

type Ingestor interface {
	IngestOne(ctx context.Context, bucket, key string, meta IngestMetadata) (string, error)
	IngestBatch(ctx context.Context, docs []BatchDocument) *BatchResult
	IngestBytes(ctx context.Context, bucket, key string, data []byte, contentType string, meta IngestMetadata) (*models.VectorRecord, error)
}
