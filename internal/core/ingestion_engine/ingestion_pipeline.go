package ingestion_engine

import (
	"context"
	"fmt"
	"log"
	"path"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bzrportal/knowledge/internal/core"
	"github.com/bzrportal/knowledge/internal/core/embedding"
	"github.com/bzrportal/knowledge/internal/core/vectorindex"
	"github.com/bzrportal/knowledge/internal/models"
)

// DocumentIngestor drives the pipeline for one document:
// storage get -> extract -> embed -> index add. Each stage is sequential
// and fail-fast; only batch ingestion isolates failures per item.
type DocumentIngestor struct {
	obj       core.ObjectClient
	extractor core.DocumentExtractor
	embedder  *embedding.Generator
	index     *vectorindex.Index
	workers   int
}

var _ Ingestor = (*DocumentIngestor)(nil)

// NewDocumentIngestor constructs the ingestor. workers bounds batch
// parallelism; values below 1 are clamped to sequential processing.
func NewDocumentIngestor(obj core.ObjectClient, ext core.DocumentExtractor, emb *embedding.Generator, index *vectorindex.Index, workers int) *DocumentIngestor {
	if workers < 1 {
		workers = 1
	}
	return &DocumentIngestor{obj: obj, extractor: ext, embedder: emb, index: index, workers: workers}
}

// IngestOne pulls one object from storage and indexes it, returning the new
// record id. The source object is left in place; re-ingesting the same key
// creates a new record unless the index runs in upsert-by-path mode.
func (i *DocumentIngestor) IngestOne(ctx context.Context, bucket, key string, meta IngestMetadata) (string, error) {
	data, contentType, err := i.obj.GetFile(ctx, bucket, key)
	if err != nil {
		return "", fmt.Errorf("fetch %s/%s: %w", bucket, key, err)
	}

	rec, err := i.buildRecord(ctx, bucket, key, data, contentType, meta)
	if err != nil {
		return "", err
	}

	id, err := i.index.Add(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("index %s/%s: %w", bucket, key, err)
	}
	return id, nil
}

// IngestBytes indexes content the caller already holds (upload path and
// knowledge migration), skipping the storage fetch.
func (i *DocumentIngestor) IngestBytes(ctx context.Context, bucket, key string, data []byte, contentType string, meta IngestMetadata) (*models.VectorRecord, error) {
	rec, err := i.buildRecord(ctx, bucket, key, data, contentType, meta)
	if err != nil {
		return nil, err
	}
	if _, err := i.index.Add(ctx, rec); err != nil {
		return nil, fmt.Errorf("index %s/%s: %w", bucket, key, err)
	}
	return rec, nil
}

func (i *DocumentIngestor) buildRecord(ctx context.Context, bucket, key string, data []byte, contentType string, meta IngestMetadata) (*models.VectorRecord, error) {
	content, err := i.extractor.Extract(data, contentType, path.Base(key))
	if err != nil {
		return nil, fmt.Errorf("extract %s/%s: %w", bucket, key, err)
	}

	res, err := i.embedder.Embed(ctx, content.Text)
	if err != nil {
		return nil, fmt.Errorf("embed %s/%s: %w", bucket, key, err)
	}

	return &models.VectorRecord{
		Content:   content.Text,
		Embedding: res.Vector,
		Metadata: models.RecordMetadata{
			Filename:        content.Metadata.Filename,
			FileType:        content.Metadata.FileType,
			ExtractionDate:  content.Metadata.ExtractionDate,
			FileSizeBytes:   content.Metadata.FileSizeBytes,
			Bucket:          bucket,
			FilePath:        key,
			OwnerUserID:     meta.OwnerUserID,
			IsPublic:        meta.IsPublic,
			Category:        meta.Category,
			Folder:          meta.Folder,
			Tags:            meta.Tags,
			EmbeddingSource: res.Source,
		},
	}, nil
}

// IngestBatch processes every document independently: one item's failure is
// recorded against its key and never aborts the rest. Items run on a small
// bounded worker pool; isolation semantics are unchanged.
func (i *DocumentIngestor) IngestBatch(ctx context.Context, docs []BatchDocument) *BatchResult {
	result := &BatchResult{Total: len(docs)}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.workers)

	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			id, err := i.IngestOne(gctx, doc.Bucket, doc.Key, doc.Metadata)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("ingest: batch item %s/%s failed: %v", doc.Bucket, doc.Key, err)
				result.Failed++
				result.Errors = append(result.Errors, BatchError{Key: doc.Key, Message: err.Error()})
				return nil
			}
			log.Printf("ingest: batch item %s/%s -> record %s", doc.Bucket, doc.Key, id)
			result.Successful++
			return nil
		})
	}

	// Workers only ever return nil; failures are collected per item.
	_ = g.Wait()
	return result
}
