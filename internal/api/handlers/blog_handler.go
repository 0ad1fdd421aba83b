package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/bzrportal/knowledge/internal/core"
	"github.com/bzrportal/knowledge/internal/models"
)

type BlogHandler struct {
	dbclient core.DbClient
}

func NewBlogHandler(db core.DbClient) *BlogHandler {
	return &BlogHandler{dbclient: db}
}

// List handles GET /api/blog/posts?status=...: the moderation inbox.
// Without a status filter it returns the drafts awaiting review.
func (h *BlogHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = models.BlogStatusPendingApproval
	}

	posts, err := h.dbclient.ListBlogPostsByStatus(r.Context(), status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if posts == nil {
		posts = []models.BlogPost{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(posts)
}
