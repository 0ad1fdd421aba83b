package vectorindex

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bzrportal/knowledge/internal/core"
	"github.com/bzrportal/knowledge/internal/core/embedding"
	"github.com/bzrportal/knowledge/internal/models"
)

// SearchFilters narrow a similarity search. Zero values mean "no
// constraint" for every field except IncludePublic, which widens an
// owner-scoped search to public records.
type SearchFilters struct {
	OwnerUserID   string
	IncludePublic bool
	Category      string
	Folder        string
	FileTypes     []string
	Tags          []string
}

// RecordPatch is a partial update. Nil fields are left untouched.
// Only a changed Content triggers re-embedding.
type RecordPatch struct {
	Content  *string
	Category *string
	Folder   *string
	IsPublic *bool
	Tags     *[]string
}

// Index is the client of the vector backing store. Filters are applied
// client-side after the store's top-K similarity query: when all top-K hits
// are filtered out the caller sees fewer than limit results even though
// better-matching filtered candidates may exist outside the top-K. That is
// an accepted approximation of this design, not a bug.
type Index struct {
	db           core.DbClient
	gen          *embedding.Generator
	upsertByPath bool
}

func New(db core.DbClient, gen *embedding.Generator, upsertByPath bool) *Index {
	return &Index{db: db, gen: gen, upsertByPath: upsertByPath}
}

// Add stores a record and returns its assigned id. When upsert-by-path is
// enabled, prior records from the same (bucket, file_path) are removed
// first; otherwise re-ingesting the same object inserts a new record.
func (x *Index) Add(ctx context.Context, rec *models.VectorRecord) (string, error) {
	if len(rec.Embedding) != x.gen.Dim() {
		return "", fmt.Errorf("embedding dimension %d, index requires %d", len(rec.Embedding), x.gen.Dim())
	}

	if x.upsertByPath && rec.Metadata.FilePath != "" {
		n, err := x.db.DeleteVectorRecordsByPath(ctx, rec.Metadata.Bucket, rec.Metadata.FilePath)
		if err != nil {
			return "", err
		}
		if n > 0 {
			log.Printf("vectorindex: replaced %d record(s) for %s/%s", n, rec.Metadata.Bucket, rec.Metadata.FilePath)
		}
	}

	rec.ID = uuid.NewString()
	rec.Metadata.Tags = normalizeTags(rec.Metadata.Tags)
	if rec.Metadata.AddedAt.IsZero() {
		rec.Metadata.AddedAt = time.Now().UTC()
	}
	if err := x.db.InsertVectorRecord(ctx, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Search embeds queryText, asks the store for the top-limit hits above
// threshold and post-filters them. Ordering follows the store: similarity
// descending, no tie-break.
func (x *Index) Search(ctx context.Context, queryText string, filters SearchFilters, limit int, threshold float64) ([]models.VectorRecord, error) {
	res, err := x.gen.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := x.db.SearchVectorRecords(ctx, res.Vector, threshold, limit)
	if err != nil {
		return nil, err
	}

	out := rows[:0]
	for _, rec := range rows {
		if matchesFilters(&rec, filters) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Update applies a partial patch. Metadata-only patches skip re-embedding;
// a content change re-embeds through the provider chain.
func (x *Index) Update(ctx context.Context, id string, patch RecordPatch) error {
	rec, err := x.db.GetVectorRecordByID(ctx, id)
	if err != nil {
		return err
	}

	if patch.Content != nil && *patch.Content != rec.Content {
		res, err := x.gen.Embed(ctx, *patch.Content)
		if err != nil {
			return fmt.Errorf("re-embed: %w", err)
		}
		rec.Content = *patch.Content
		rec.Embedding = res.Vector
		rec.Metadata.EmbeddingSource = res.Source
	}
	if patch.Category != nil {
		rec.Metadata.Category = *patch.Category
	}
	if patch.Folder != nil {
		rec.Metadata.Folder = *patch.Folder
	}
	if patch.IsPublic != nil {
		rec.Metadata.IsPublic = *patch.IsPublic
	}
	if patch.Tags != nil {
		rec.Metadata.Tags = normalizeTags(*patch.Tags)
	}

	return x.db.UpdateVectorRecord(ctx, rec)
}

func (x *Index) Delete(ctx context.Context, id string) error {
	return x.db.DeleteVectorRecord(ctx, id)
}

func (x *Index) GetByID(ctx context.Context, id string) (*models.VectorRecord, error) {
	return x.db.GetVectorRecordByID(ctx, id)
}

// matchesFilters applies the client-side predicate set: visibility (owner
// match or public flag), category and folder equality, file-type
// membership, tag intersection.
func matchesFilters(rec *models.VectorRecord, f SearchFilters) bool {
	m := &rec.Metadata

	if f.OwnerUserID != "" {
		owned := m.OwnerUserID == f.OwnerUserID
		if !owned && !(f.IncludePublic && m.IsPublic) {
			return false
		}
	}
	if f.Category != "" && m.Category != f.Category {
		return false
	}
	if f.Folder != "" && m.Folder != f.Folder {
		return false
	}
	if len(f.FileTypes) > 0 && !contains(f.FileTypes, m.FileType) {
		return false
	}
	if len(f.Tags) > 0 && !intersects(f.Tags, m.Tags) {
		return false
	}
	return true
}

// normalizeTags splits comma-joined input and trims blanks. The storage
// layer serializes tags with "," so a stored tag must never contain one;
// "a,b" is treated as the two tags it almost certainly was meant to be.
func normalizeTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		for _, part := range strings.Split(t, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, s := range a {
		if contains(b, s) {
			return true
		}
	}
	return false
}
