package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bzrportal/knowledge/internal/config"
	"github.com/bzrportal/knowledge/internal/core"
	"github.com/bzrportal/knowledge/internal/core/uploadqueue"
)

type UploadHandler struct {
	objectclient core.ObjectClient
	queue        *uploadqueue.Queue
	cfg          *config.Config
}

func NewUploadHandler(obj core.ObjectClient, queue *uploadqueue.Queue, cfg *config.Config) *UploadHandler {
	return &UploadHandler{objectclient: obj, queue: queue, cfg: cfg}
}

// Upload handles POST /api/documents/upload: the file lands in object
// storage synchronously, processing happens on the queue worker.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.ParseMultipartForm(52 << 20)

	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read file", http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// Sanitize filename to prevent path traversal or invalid characters
	cleanFilename := filepath.Base(header.Filename)
	key := fmt.Sprintf("%s/%s/%s", userID, uuid.NewString(), cleanFilename)

	uploadCtx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	if _, err := h.objectclient.UploadFile(uploadCtx, h.cfg.BucketName, key, data, contentType); err != nil {
		http.Error(w, fmt.Sprintf("upload failed: %v", err), http.StatusInternalServerError)
		return
	}

	jobID, err := h.queue.Enqueue(key, contentType, cleanFilename, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"job_id": jobID, "file_path": key})
}

// Status handles GET /api/uploads/{jobID}.
func (h *UploadHandler) Status(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, ok := h.queue.Get(jobID)
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

// Events handles GET /api/uploads/{jobID}/events: a text/event-stream of
// job events, one JSON object per event, closed after the terminal event.
// The subscription ends with the response.
func (h *UploadHandler) Events(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if _, ok := h.queue.Get(jobID); !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Subscribe replays the terminal event for jobs that already finished,
	// so the stream below always ends on its own.
	events, cancel := h.queue.Subscribe(jobID)
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			writeEvent(w, ev)
			flusher.Flush()
			if ev.Type == "completed" || ev.Type == "failed" {
				return
			}
		}
	}
}

func writeEvent(w io.Writer, ev uploadqueue.Event) {
	payload, _ := json.Marshal(ev)
	fmt.Fprintf(w, "data: %s\n\n", payload)
}
