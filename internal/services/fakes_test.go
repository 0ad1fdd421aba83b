package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/bzrportal/knowledge/internal/core"
	"github.com/bzrportal/knowledge/internal/core/ingestion_engine"
	"github.com/bzrportal/knowledge/internal/core/vectorindex"
	"github.com/bzrportal/knowledge/internal/models"
)

// fakeSearcher answers vector searches from canned per-category results.
type fakeSearcher struct {
	byCategory map[string][]models.VectorRecord
	err        error
	calls      []vectorindex.SearchFilters
}

var _ Searcher = (*fakeSearcher)(nil)

func (f *fakeSearcher) Search(_ context.Context, _ string, filters vectorindex.SearchFilters, limit int, _ float64) ([]models.VectorRecord, error) {
	f.calls = append(f.calls, filters)
	if f.err != nil {
		return nil, f.err
	}
	records := f.byCategory[filters.Category]
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

type fakeLLM struct {
	reply string
	err   error
	calls int
}

var _ core.LLMProvider = (*fakeLLM)(nil)

func (f *fakeLLM) Generate(_ context.Context, _, _ string) (string, error) {
	f.calls++
	return f.reply, f.err
}

// fakeDB implements the slices of core.DbClient the services exercise.
type fakeDB struct {
	mu      sync.Mutex
	posts   []models.BlogPost
	refs    []models.KnowledgeReference
	linked  map[string]string // reference id -> record id
	postErr error
}

var _ core.DbClient = (*fakeDB)(nil)

func newFakeDB() *fakeDB {
	return &fakeDB{linked: make(map[string]string)}
}

func (f *fakeDB) CreateBlogPost(_ context.Context, post *models.BlogPost) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return f.postErr
	}
	f.posts = append(f.posts, *post)
	return nil
}

func (f *fakeDB) ListBlogPostsByStatus(_ context.Context, status string) ([]models.BlogPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.BlogPost
	for _, p := range f.posts {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeDB) ListActiveKnowledgeReferences(_ context.Context) ([]models.KnowledgeReference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.KnowledgeReference
	for _, r := range f.refs {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeDB) SetKnowledgeReferenceDocument(_ context.Context, refID, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linked[refID] = documentID
	return nil
}

func (f *fakeDB) InsertVectorRecord(_ context.Context, _ *models.VectorRecord) error { return nil }

func (f *fakeDB) GetVectorRecordByID(_ context.Context, _ string) (*models.VectorRecord, error) {
	return nil, core.ErrRecordNotFound
}

func (f *fakeDB) UpdateVectorRecord(_ context.Context, _ *models.VectorRecord) error { return nil }

func (f *fakeDB) DeleteVectorRecord(_ context.Context, _ string) error { return nil }

func (f *fakeDB) DeleteVectorRecordsByPath(_ context.Context, _, _ string) (int64, error) {
	return 0, nil
}

func (f *fakeDB) ListVectorRecordsByOwner(_ context.Context, _ string) ([]models.VectorRecord, error) {
	return nil, nil
}

func (f *fakeDB) SearchVectorRecords(_ context.Context, _ []float32, _ float64, _ int) ([]models.VectorRecord, error) {
	return nil, nil
}

func (f *fakeDB) Close() error { return nil }

// fakeObjects records uploads in memory.
type fakeObjects struct {
	mu      sync.Mutex
	uploads map[string][]byte
}

var _ core.ObjectClient = (*fakeObjects)(nil)

func newFakeObjects() *fakeObjects {
	return &fakeObjects{uploads: make(map[string][]byte)}
}

func (f *fakeObjects) UploadFile(_ context.Context, bucket, key string, data []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[bucket+"/"+key] = data
	return "s3://" + bucket + "/" + key, nil
}

func (f *fakeObjects) DeleteFile(_ context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.uploads, bucket+"/"+key)
	return nil
}

func (f *fakeObjects) GetFile(_ context.Context, bucket, key string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.uploads[bucket+"/"+key]
	if !ok {
		return nil, "", core.ErrObjectNotFound
	}
	return data, "", nil
}

func (f *fakeObjects) ListFiles(_ context.Context, _, _ string) ([]string, error) { return nil, nil }

// fakeIngestor records IngestBytes calls and hands back synthetic records.
type fakeIngestor struct {
	mu    sync.Mutex
	calls []string // keys
	err   error
}

var _ ingestion_engine.Ingestor = (*fakeIngestor)(nil)

func (f *fakeIngestor) IngestBytes(_ context.Context, bucket, key string, _ []byte, _ string, meta ingestion_engine.IngestMetadata) (*models.VectorRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, key)
	return &models.VectorRecord{
		ID: fmt.Sprintf("rec-%d", len(f.calls)),
		Metadata: models.RecordMetadata{
			Bucket: bucket, FilePath: key,
			IsPublic: meta.IsPublic, Category: meta.Category, Tags: meta.Tags,
		},
	}, nil
}

func (f *fakeIngestor) IngestOne(_ context.Context, _, _ string, _ ingestion_engine.IngestMetadata) (string, error) {
	return "", fmt.Errorf("not used")
}

func (f *fakeIngestor) IngestBatch(_ context.Context, docs []ingestion_engine.BatchDocument) *ingestion_engine.BatchResult {
	return &ingestion_engine.BatchResult{Total: len(docs)}
}
