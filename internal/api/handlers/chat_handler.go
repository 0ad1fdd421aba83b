package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bzrportal/knowledge/internal/services"
)

type ChatHandler struct {
	answers *services.AnswerService
}

func NewChatHandler(answers *services.AnswerService) *ChatHandler {
	return &ChatHandler{answers: answers}
}

type chatRequest struct {
	Question        string `json:"question"`
	AllowPublicDocs bool   `json:"allow_public_docs"`
	DraftBlogPost   bool   `json:"draft_blog_post"`
}

// Query handles POST /api/chat/query. Identity and tier come from the
// verified token, never from the body.
func (h *ChatHandler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := ctx.Value("user_id").(string)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	tier, _ := ctx.Value("tier").(string)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}

	result, err := h.answers.Answer(ctx, services.AnswerRequest{
		Question:        req.Question,
		UserID:          userID,
		Tier:            tier,
		AllowPublicDocs: req.AllowPublicDocs,
		DraftBlogPost:   req.DraftBlogPost,
	})
	if err != nil {
		if errors.Is(err, services.ErrOffTopic) {
			http.Error(w, "Pitanje nije iz oblasti bezbednosti i zdravlja na radu.", http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
