package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bzrportal/knowledge/internal/config"
	"github.com/bzrportal/knowledge/internal/core"
	"github.com/bzrportal/knowledge/internal/core/vectorindex"
)

type DocumentHandler struct {
	dbclient       core.DbClient
	index          *vectorindex.Index
	objectclient   core.ObjectClient
	bucket         string
	searchLimit    int
	scoreThreshold float64
}

func NewDocumentHandler(db core.DbClient, index *vectorindex.Index, obj core.ObjectClient, cfg *config.Config) *DocumentHandler {
	return &DocumentHandler{
		dbclient:       db,
		index:          index,
		objectclient:   obj,
		bucket:         cfg.BucketName,
		searchLimit:    cfg.ChatSearchLimit,
		scoreThreshold: cfg.ChatScoreThreshold,
	}
}

// List handles GET /api/documents: the caller's indexed records.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	records, err := h.dbclient.ListVectorRecordsByOwner(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

// Search handles GET /api/search?q=...&category=...&folder=...&tags=a,b&limit=N.
func (h *DocumentHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	}

	limit := h.searchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}

	filters := vectorindex.SearchFilters{
		OwnerUserID:   userID,
		IncludePublic: r.URL.Query().Get("include_public") != "false",
		Category:      r.URL.Query().Get("category"),
		Folder:        r.URL.Query().Get("folder"),
	}
	if tags := r.URL.Query().Get("tags"); tags != "" {
		filters.Tags = strings.Split(tags, ",")
	}

	records, err := h.index.Search(r.Context(), query, filters, limit, h.scoreThreshold)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

type recordPatchRequest struct {
	Content  *string   `json:"content,omitempty"`
	Category *string   `json:"category,omitempty"`
	Folder   *string   `json:"folder,omitempty"`
	IsPublic *bool     `json:"is_public,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
}

// Update handles PATCH /api/documents/{id}. Only a content change triggers
// re-embedding.
func (h *DocumentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req recordPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	err := h.index.Update(r.Context(), id, vectorindex.RecordPatch{
		Content:  req.Content,
		Category: req.Category,
		Folder:   req.Folder,
		IsPublic: req.IsPublic,
		Tags:     req.Tags,
	})
	if err != nil {
		if errors.Is(err, core.ErrRecordNotFound) {
			http.Error(w, "record not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/documents/{id}. The record's backing object
// is removed from storage as well, best-effort: a storage failure is
// logged, not surfaced, since the record itself is already gone.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.index.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, core.ErrRecordNotFound) {
			http.Error(w, "record not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := h.index.Delete(r.Context(), id); err != nil {
		if errors.Is(err, core.ErrRecordNotFound) {
			http.Error(w, "record not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if rec.Metadata.Bucket != "" && rec.Metadata.FilePath != "" {
		if err := h.objectclient.DeleteFile(r.Context(), rec.Metadata.Bucket, rec.Metadata.FilePath); err != nil {
			log.Printf("documents: delete object %s/%s: %v", rec.Metadata.Bucket, rec.Metadata.FilePath, err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Files handles GET /api/documents/files: the caller's raw uploaded
// objects, indexed or not. Upload keys are prefixed with the owner's id.
func (h *DocumentHandler) Files(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	keys, err := h.objectclient.ListFiles(r.Context(), h.bucket, userID+"/")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if keys == nil {
		keys = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]string{"files": keys})
}
