package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bzrportal/knowledge/internal/core"
	"github.com/bzrportal/knowledge/internal/core/ingestion_engine"
	"github.com/bzrportal/knowledge/internal/services"
)

type IngestHandler struct {
	ingestor  ingestion_engine.Ingestor
	migration *services.MigrationService
}

func NewIngestHandler(ing ingestion_engine.Ingestor, migration *services.MigrationService) *IngestHandler {
	return &IngestHandler{ingestor: ing, migration: migration}
}

type ingestRequest struct {
	Bucket   string                          `json:"bucket"`
	Key      string                          `json:"key"`
	Metadata ingestion_engine.IngestMetadata `json:"metadata"`
}

// IngestOne handles POST /api/ingest.
func (h *IngestHandler) IngestOne(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.Bucket == "" || req.Key == "" {
		http.Error(w, "bucket and key are required", http.StatusBadRequest)
		return
	}

	if userID, ok := r.Context().Value("user_id").(string); ok && req.Metadata.OwnerUserID == "" {
		req.Metadata.OwnerUserID = userID
	}

	recordID, err := h.ingestor.IngestOne(r.Context(), req.Bucket, req.Key, req.Metadata)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, core.ErrObjectNotFound):
			status = http.StatusNotFound
		case errors.Is(err, core.ErrOCRNotImplemented):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, core.ErrExtractionFailed):
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"record_id": recordID})
}

type ingestBatchRequest struct {
	Documents []ingestion_engine.BatchDocument `json:"documents"`
}

// IngestBatch handles POST /api/ingest/batch. The batch always completes;
// per-item failures are reported in the summary.
func (h *IngestHandler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	var req ingestBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if len(req.Documents) == 0 {
		http.Error(w, "documents are required", http.StatusBadRequest)
		return
	}

	if userID, ok := r.Context().Value("user_id").(string); ok {
		for i := range req.Documents {
			if req.Documents[i].Metadata.OwnerUserID == "" {
				req.Documents[i].Metadata.OwnerUserID = userID
			}
		}
	}

	result := h.ingestor.IngestBatch(r.Context(), req.Documents)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// MigrateKnowledge handles POST /api/knowledge/migrate.
func (h *IngestHandler) MigrateKnowledge(w http.ResponseWriter, r *http.Request) {
	result, err := h.migration.MigrateAll(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
