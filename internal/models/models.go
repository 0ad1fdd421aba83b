package models

import (
	"time"
)

// ContentMetadata describes the file a piece of text was extracted from.
type ContentMetadata struct {
	Filename       string    `json:"filename"`
	FileType       string    `json:"file_type"` // MIME type
	ExtractionDate time.Time `json:"extraction_date"`
	FileSizeBytes  int64     `json:"file_size_bytes,omitempty"`
}

// DocumentContent is the result of extracting text from a raw file.
// It is produced once per file and never persisted on its own.
type DocumentContent struct {
	Text     string          `json:"text"`
	Metadata ContentMetadata `json:"metadata"`
}

// RecordMetadata is everything stored alongside a vector record's content.
type RecordMetadata struct {
	Filename       string    `db:"file_name" json:"filename"`
	FileType       string    `db:"file_type" json:"file_type"`
	ExtractionDate time.Time `db:"extraction_date" json:"extraction_date"`
	FileSizeBytes  int64     `db:"file_size_bytes" json:"file_size_bytes,omitempty"`

	Bucket   string    `db:"bucket" json:"bucket"`
	FilePath string    `db:"file_path" json:"file_path"`
	AddedAt  time.Time `db:"added_at" json:"added_at"`

	OwnerUserID string   `db:"owner_user_id" json:"owner_user_id,omitempty"`
	IsPublic    bool     `db:"is_public" json:"is_public"`
	Category    string   `db:"category" json:"category,omitempty"`
	Folder      string   `db:"folder" json:"folder,omitempty"`
	Tags        []string `db:"tags" json:"tags,omitempty"`

	// EmbeddingSource is the provider that produced the vector, or
	// "fallback" for deterministic placeholder vectors.
	EmbeddingSource string `db:"embedding_source" json:"embedding_source"`
}

// VectorRecord is the persisted unit of the vector index.
// Invariant: len(Embedding) equals the index dimensionality for every
// record, regardless of which provider produced the vector.
type VectorRecord struct {
	ID        string         `db:"id" json:"id"`
	Content   string         `db:"content" json:"content"`
	Embedding []float32      `db:"embedding" json:"-"`
	Metadata  RecordMetadata `json:"metadata"`

	// Similarity is populated on search results only (cosine, 0..1).
	Similarity float64 `db:"-" json:"similarity,omitempty"`
}

// Upload job lifecycle. Transitions are strictly forward
// (queued -> processing -> completed|failed) and terminal states are final.
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// UploadJob tracks one queued document-processing job.
type UploadJob struct {
	ID               string `json:"id"`
	FilePath         string `json:"file_path"`
	MimeType         string `json:"mime_type"`
	OriginalFilename string `json:"original_filename"`
	OwnerUserID      string `json:"owner_user_id"`
	Progress         int    `json:"progress"` // 0..100
	Status           string `json:"status"`
	Error            string `json:"error,omitempty"`
}

// KnowledgeReference points at an externally-hosted regulatory document that
// has not been ingested yet. DocumentID is filled in after migration.
type KnowledgeReference struct {
	ID         string    `db:"id" json:"id"`
	Title      string    `db:"title" json:"title"`
	URL        string    `db:"url" json:"url"`
	Category   string    `db:"category" json:"category"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	DocumentID string    `db:"document_id" json:"document_id,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Blog post moderation states. Auto-drafted posts always start as
// pending_approval and are never published without review.
const (
	BlogStatusPendingApproval = "pending_approval"
	BlogStatusApproved        = "approved"
	BlogStatusRejected        = "rejected"
)

// BlogPost is a moderated article, optionally auto-drafted from an
// assistant answer.
type BlogPost struct {
	ID             string    `db:"id" json:"id"`
	Title          string    `db:"title" json:"title"`
	Content        string    `db:"content" json:"content"`
	Status         string    `db:"status" json:"status"`
	SourceQuestion string    `db:"source_question" json:"source_question,omitempty"`
	AuthorUserID   string    `db:"author_user_id" json:"author_user_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
