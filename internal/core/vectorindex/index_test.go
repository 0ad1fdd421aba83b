package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bzrportal/knowledge/internal/core"
	"github.com/bzrportal/knowledge/internal/core/embedding"
	"github.com/bzrportal/knowledge/internal/models"
)

const testDim = 64

// fallbackIndex builds an index running in deterministic fallback-only
// mode, so identical text always maps to an identical vector.
func fallbackIndex(t *testing.T, upsert bool) (*Index, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	gen := embedding.NewGenerator(nil, testDim, true)
	return New(store, gen, upsert), store
}

func addRecord(t *testing.T, x *Index, content string, meta models.RecordMetadata) string {
	t.Helper()
	res, err := x.gen.Embed(context.Background(), content)
	require.NoError(t, err)
	meta.EmbeddingSource = res.Source
	id, err := x.Add(context.Background(), &models.VectorRecord{
		Content: content, Embedding: res.Vector, Metadata: meta,
	})
	require.NoError(t, err)
	return id
}

func TestAdd_RejectsWrongDimension(t *testing.T) {
	x, _ := fallbackIndex(t, false)

	_, err := x.Add(context.Background(), &models.VectorRecord{
		Content: "x", Embedding: make([]float32, testDim-1),
	})
	require.Error(t, err)
}

func TestAdd_SameKeyCreatesTwoRecords(t *testing.T) {
	x, store := fallbackIndex(t, false)
	meta := models.RecordMetadata{Bucket: "docs", FilePath: "pravilnik.txt"}

	id1 := addRecord(t, x, "sadržaj pravilnika", meta)
	id2 := addRecord(t, x, "sadržaj pravilnika", meta)

	assert.NotEqual(t, id1, id2, "re-ingest without upsert mode inserts a new record")
	assert.Len(t, store.records, 2)
}

func TestAdd_UpsertByPathReplaces(t *testing.T) {
	x, store := fallbackIndex(t, true)
	meta := models.RecordMetadata{Bucket: "docs", FilePath: "pravilnik.txt"}

	addRecord(t, x, "stara verzija", meta)
	id2 := addRecord(t, x, "nova verzija", meta)

	require.Len(t, store.records, 1)
	assert.Equal(t, "nova verzija", store.records[id2].Content)
}

func TestSearch_ExactTextRecallUnderFallback(t *testing.T) {
	x, _ := fallbackIndex(t, false)

	content := "U slučaju požara odmah počnite evakuaciju prema planu evakuacije."
	addRecord(t, x, content, models.RecordMetadata{
		Filename: "safety-rules.txt", OwnerUserID: "user-a", IsPublic: false,
	})

	// Identical text always produces an identical fallback vector, so
	// exact-text queries come back with similarity 1.
	hits, err := x.Search(context.Background(), content,
		SearchFilters{OwnerUserID: "user-a"}, 5, 0.7)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)

	// Paraphrased queries are NOT guaranteed to recall under fallback:
	// the pseudo-vectors carry text identity, not meaning.
	hits, err = x.Search(context.Background(), "Šta da radim u slučaju požara?",
		SearchFilters{OwnerUserID: "user-a"}, 5, 0.7)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearch_OwnerFilterNeverLeaks(t *testing.T) {
	x, _ := fallbackIndex(t, false)

	content := "procedura za bezbedan rad na visini"
	addRecord(t, x, content, models.RecordMetadata{OwnerUserID: "user-a"})
	addRecord(t, x, content, models.RecordMetadata{OwnerUserID: "user-b"})

	hits, err := x.Search(context.Background(), content,
		SearchFilters{OwnerUserID: "user-a", IncludePublic: false}, 10, 0.5)
	require.NoError(t, err)

	require.NotEmpty(t, hits)
	for _, h := range hits {
		assert.Equal(t, "user-a", h.Metadata.OwnerUserID)
	}
}

func TestSearch_PublicRecordsVisibleWhenOptedIn(t *testing.T) {
	x, _ := fallbackIndex(t, false)

	content := "spisak obaveznih lekarskih pregleda"
	addRecord(t, x, content, models.RecordMetadata{OwnerUserID: "user-b", IsPublic: true})

	hits, err := x.Search(context.Background(), content,
		SearchFilters{OwnerUserID: "user-a", IncludePublic: true}, 10, 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hits, err = x.Search(context.Background(), content,
		SearchFilters{OwnerUserID: "user-a", IncludePublic: false}, 10, 0.5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestUpdate_MetadataOnlySkipsReembed(t *testing.T) {
	store := newFakeStore()
	counter := &countingProvider{vec: make([]float32, testDim)}
	gen := embedding.NewGenerator([]core.EmbeddingProvider{counter}, testDim, false)
	x := New(store, gen, false)

	id := addRecord(t, x, "tekst dokumenta", models.RecordMetadata{})
	embedsAfterAdd := counter.calls

	category := "obuke"
	require.NoError(t, x.Update(context.Background(), id, RecordPatch{Category: &category}))
	assert.Equal(t, embedsAfterAdd, counter.calls, "metadata patch must not re-embed")

	rec, err := x.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "obuke", rec.Metadata.Category)

	newContent := "izmenjen tekst dokumenta"
	require.NoError(t, x.Update(context.Background(), id, RecordPatch{Content: &newContent}))
	assert.Equal(t, embedsAfterAdd+1, counter.calls, "content change re-embeds exactly once")
}

func TestAdd_NormalizesTags(t *testing.T) {
	x, store := fallbackIndex(t, false)

	id := addRecord(t, x, "tekst", models.RecordMetadata{
		Tags: []string{"požar,evakuacija", " obuka ", ""},
	})

	// Comma is the storage separator; a stored tag never contains one.
	assert.Equal(t, []string{"požar", "evakuacija", "obuka"}, store.records[id].Metadata.Tags)
}

func TestUpdate_NormalizesTags(t *testing.T) {
	x, _ := fallbackIndex(t, false)
	id := addRecord(t, x, "tekst", models.RecordMetadata{})

	tags := []string{"hemikalije, skladište"}
	require.NoError(t, x.Update(context.Background(), id, RecordPatch{Tags: &tags}))

	rec, err := x.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []string{"hemikalije", "skladište"}, rec.Metadata.Tags)
}

func TestDelete(t *testing.T) {
	x, _ := fallbackIndex(t, false)
	id := addRecord(t, x, "tekst", models.RecordMetadata{})

	require.NoError(t, x.Delete(context.Background(), id))
	_, err := x.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, core.ErrRecordNotFound)
}

func TestMatchesFilters(t *testing.T) {
	rec := func(m models.RecordMetadata) *models.VectorRecord {
		return &models.VectorRecord{Metadata: m}
	}

	tests := []struct {
		name    string
		rec     *models.VectorRecord
		filters SearchFilters
		want    bool
	}{
		{"no filters", rec(models.RecordMetadata{}), SearchFilters{}, true},
		{"owner match", rec(models.RecordMetadata{OwnerUserID: "a"}), SearchFilters{OwnerUserID: "a"}, true},
		{"owner mismatch private", rec(models.RecordMetadata{OwnerUserID: "b"}), SearchFilters{OwnerUserID: "a"}, false},
		{"owner mismatch but public", rec(models.RecordMetadata{OwnerUserID: "b", IsPublic: true}), SearchFilters{OwnerUserID: "a", IncludePublic: true}, true},
		{"public not requested", rec(models.RecordMetadata{OwnerUserID: "b", IsPublic: true}), SearchFilters{OwnerUserID: "a"}, false},
		{"category match", rec(models.RecordMetadata{Category: "propisi"}), SearchFilters{Category: "propisi"}, true},
		{"category mismatch", rec(models.RecordMetadata{Category: "obuke"}), SearchFilters{Category: "propisi"}, false},
		{"folder mismatch", rec(models.RecordMetadata{Folder: "2024"}), SearchFilters{Folder: "2025"}, false},
		{"file type member", rec(models.RecordMetadata{FileType: "application/pdf"}), SearchFilters{FileTypes: []string{"text/plain", "application/pdf"}}, true},
		{"file type not member", rec(models.RecordMetadata{FileType: "text/csv"}), SearchFilters{FileTypes: []string{"application/pdf"}}, false},
		{"tag intersection", rec(models.RecordMetadata{Tags: []string{"požar", "evakuacija"}}), SearchFilters{Tags: []string{"evakuacija"}}, true},
		{"no tag intersection", rec(models.RecordMetadata{Tags: []string{"hemikalije"}}), SearchFilters{Tags: []string{"evakuacija"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesFilters(tt.rec, tt.filters))
		})
	}
}

type countingProvider struct {
	vec   []float32
	calls int
}

func (c *countingProvider) Name() string { return "counting" }

func (c *countingProvider) EmbedText(context.Context, string) ([]float32, error) {
	c.calls++
	return c.vec, nil
}
