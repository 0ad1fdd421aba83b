package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/bzrportal/knowledge/internal/core"
	"github.com/bzrportal/knowledge/internal/core/ingestion_engine"
)

// maxReferenceSize caps a downloaded regulatory document at 50 MB.
const maxReferenceSize = 50 << 20

// MigrationError records one reference that could not be migrated.
type MigrationError struct {
	ReferenceID string `json:"reference_id"`
	URL         string `json:"url"`
	Message     string `json:"message"`
}

// MigrationResult summarizes a knowledge-reference migration run.
type MigrationResult struct {
	Total    int              `json:"total"`
	Migrated int              `json:"migrated"`
	Skipped  int              `json:"skipped"`
	Failed   int              `json:"failed"`
	Errors   []MigrationError `json:"errors,omitempty"`
}

// MigrationService downloads externally-hosted regulatory documents listed
// as knowledge references, stores them, and feeds them through the
// ingestion pipeline. References already linked to a record are skipped.
type MigrationService struct {
	db       core.DbClient
	obj      core.ObjectClient
	ingestor ingestion_engine.Ingestor
	bucket   string
	client   *http.Client
}

func NewMigrationService(db core.DbClient, obj core.ObjectClient, ing ingestion_engine.Ingestor, bucket string) *MigrationService {
	return &MigrationService{
		db:       db,
		obj:      obj,
		ingestor: ing,
		bucket:   bucket,
		client:   &http.Client{Timeout: 2 * time.Minute},
	}
}

// MigrateAll processes every active reference independently; one failure is
// recorded and never aborts the run.
func (s *MigrationService) MigrateAll(ctx context.Context) (*MigrationResult, error) {
	refs, err := s.db.ListActiveKnowledgeReferences(ctx)
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}

	result := &MigrationResult{Total: len(refs)}
	for _, ref := range refs {
		if ref.DocumentID != "" {
			result.Skipped++
			continue
		}
		if err := s.migrateOne(ctx, ref.ID, ref.URL, ref.Category); err != nil {
			log.Printf("migration: reference %s (%s) failed: %v", ref.ID, ref.URL, err)
			result.Failed++
			result.Errors = append(result.Errors, MigrationError{
				ReferenceID: ref.ID, URL: ref.URL, Message: err.Error(),
			})
			continue
		}
		result.Migrated++
	}
	return result, nil
}

func (s *MigrationService) migrateOne(ctx context.Context, refID, docURL, category string) error {
	data, contentType, err := s.download(ctx, docURL)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}

	filename := filenameFromURL(docURL)
	key := path.Join("knowledge", refID, filename)

	if _, err := s.obj.UploadFile(ctx, s.bucket, key, data, contentType); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	rec, err := s.ingestor.IngestBytes(ctx, s.bucket, key, data, contentType, ingestion_engine.IngestMetadata{
		IsPublic: true,
		Category: category,
		Tags:     []string{"propis"},
	})
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	return s.db.SetKnowledgeReferenceDocument(ctx, refID, rec.ID)
}

func (s *MigrationService) download(ctx context.Context, docURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReferenceSize))
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func filenameFromURL(docURL string) string {
	u, err := url.Parse(docURL)
	if err != nil || path.Base(u.Path) == "/" || path.Base(u.Path) == "." {
		return "document"
	}
	return path.Base(u.Path)
}
