package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/bzrportal/knowledge/internal/core"
	"github.com/bzrportal/knowledge/internal/models"
)

// fakeStore is an in-memory stand-in for the pgvector backing store.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]models.VectorRecord
	posts   []models.BlogPost
	refs    []models.KnowledgeReference
}

var _ core.DbClient = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]models.VectorRecord)}
}

func (f *fakeStore) InsertVectorRecord(_ context.Context, rec *models.VectorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.ID] = *rec
	return nil
}

func (f *fakeStore) GetVectorRecordByID(_ context.Context, id string) (*models.VectorRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrRecordNotFound, id)
	}
	return &rec, nil
}

func (f *fakeStore) UpdateVectorRecord(_ context.Context, rec *models.VectorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[rec.ID]; !ok {
		return fmt.Errorf("%w: %s", core.ErrRecordNotFound, rec.ID)
	}
	f.records[rec.ID] = *rec
	return nil
}

func (f *fakeStore) DeleteVectorRecord(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return fmt.Errorf("%w: %s", core.ErrRecordNotFound, id)
	}
	delete(f.records, id)
	return nil
}

func (f *fakeStore) DeleteVectorRecordsByPath(_ context.Context, bucket, filePath string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, rec := range f.records {
		if rec.Metadata.Bucket == bucket && rec.Metadata.FilePath == filePath {
			delete(f.records, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListVectorRecordsByOwner(_ context.Context, ownerUserID string) ([]models.VectorRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.VectorRecord
	for _, rec := range f.records {
		if rec.Metadata.OwnerUserID == ownerUserID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) SearchVectorRecords(_ context.Context, queryVec []float32, threshold float64, limit int) ([]models.VectorRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.VectorRecord
	for _, rec := range f.records {
		sim := cosine(queryVec, rec.Embedding)
		if sim >= threshold {
			rec.Similarity = sim
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) CreateBlogPost(_ context.Context, post *models.BlogPost) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, *post)
	return nil
}

func (f *fakeStore) ListBlogPostsByStatus(_ context.Context, status string) ([]models.BlogPost, error) {
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

func (f *fakeStore) ListActiveKnowledgeReferences(_ context.Context) ([]models.KnowledgeReference, error) {
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

func (f *fakeStore) SetKnowledgeReferenceDocument(_ context.Context, refID, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.refs {
		if f.refs[i].ID == refID {
			f.refs[i].DocumentID = documentID
			return nil
		}
	}
	return fmt.Errorf("knowledge reference not found: %s", refID)
}

func (f *fakeStore) Close() error { return nil }

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
