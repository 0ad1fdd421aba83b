package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bzrportal/knowledge/internal/core"
	"github.com/bzrportal/knowledge/internal/core/vectorindex"
	"github.com/bzrportal/knowledge/internal/models"
)

// ErrOffTopic rejects a question before any retrieval or LLM call.
var ErrOffTopic = errors.New("question outside the workplace safety domain")

// TierFree marks callers subject to the on-topic keyword gate.
const TierFree = "free"

// safetyKeywords is the fixed domain list the free-tier gate matches
// against. Substring match, not a classifier.
var safetyKeywords = []string{
	"bezbednost", "zdravlje na radu", "bzr", "rizik", "zaštita", "zastita",
	"povreda", "evakuacija", "požar", "pozar", "obuka", "osposobljavanje",
	"lična zaštitna", "licna zastitna", "radno mesto", "opasnost", "mera",
	"propis", "zakon", "inspekcija", "akt o proceni", "prva pomoć",
	"prva pomoc", "hitan slučaj", "hitan slucaj", "sigurnost",
	"safety", "hazard", "risk", "workplace", "accident", "training",
}

const answerSystemPrompt = "Ti si stručni asistent za bezbednost i zdravlje na radu u Srbiji. " +
	"Odgovaraj isključivo na osnovu priloženog konteksta iz propisa i dokumenata. " +
	"Ako odgovor nije u kontekstu, reci da ne možeš da ga pronađeš u dostupnim dokumentima."

// genericFailureMessage is the only thing a caller sees when retrieval or
// generation fails entirely; the real error stays in server logs.
const genericFailureMessage = "Nažalost, trenutno ne mogu da generišem odgovor. Pokušajte ponovo kasnije."

// blogCategory tags indexed blog content inside the vector index.
const blogCategory = "blog"

type AnswerRequest struct {
	Question        string `json:"question"`
	UserID          string `json:"user_id"`
	Tier            string `json:"tier"`
	AllowPublicDocs bool   `json:"allow_public_docs"`
	DraftBlogPost   bool   `json:"draft_blog_post"`
}

// SourceRef points at one retrieved record that grounded the answer.
type SourceRef struct {
	RecordID   string  `json:"record_id"`
	Filename   string  `json:"filename"`
	Category   string  `json:"category,omitempty"`
	Similarity float64 `json:"similarity"`
}

type AnswerResult struct {
	Text           string                `json:"text"`
	Sources        []SourceRef           `json:"sources"`
	RelatedContent []models.VectorRecord `json:"relevant_existing_content,omitempty"`
	DraftedPost    *models.BlogPost      `json:"drafted_post,omitempty"`
}

// Searcher is the slice of the vector index the answer service needs.
type Searcher interface {
	Search(ctx context.Context, queryText string, filters vectorindex.SearchFilters, limit int, threshold float64) ([]models.VectorRecord, error)
}

// AnswerService produces retrieval-augmented answers and, on request,
// drafts moderated blog posts from them.
type AnswerService struct {
	db             core.DbClient
	index          Searcher
	llm            core.LLMProvider
	searchLimit    int
	scoreThreshold float64
}

func NewAnswerService(db core.DbClient, index Searcher, llm core.LLMProvider, searchLimit int, scoreThreshold float64) *AnswerService {
	if searchLimit < 1 {
		searchLimit = 5
	}
	return &AnswerService{db: db, index: index, llm: llm, searchLimit: searchLimit, scoreThreshold: scoreThreshold}
}

// Answer runs the full flow: tier gate, retrieval, grounded generation,
// blog coverage check, optional draft. Provider failures never reach the
// caller as raw errors; the result degrades to a generic product message.
func (s *AnswerService) Answer(ctx context.Context, req AnswerRequest) (*AnswerResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, errors.New("empty question")
	}

	if req.Tier == TierFree && !isOnTopic(question) {
		return nil, ErrOffTopic
	}

	filters := vectorindex.SearchFilters{
		OwnerUserID:   req.UserID,
		IncludePublic: req.AllowPublicDocs,
	}
	records, err := s.index.Search(ctx, question, filters, s.searchLimit, s.scoreThreshold)
	if err != nil {
		log.Printf("answer: retrieval failed for user %s: %v", req.UserID, err)
		return &AnswerResult{Text: genericFailureMessage}, nil
	}

	answer, err := s.llm.Generate(ctx, answerSystemPrompt, buildUserPrompt(records, question))
	if err != nil || strings.TrimSpace(answer) == "" {
		log.Printf("answer: generation failed for user %s: %v", req.UserID, err)
		return &AnswerResult{Text: genericFailureMessage}, nil
	}

	result := &AnswerResult{Text: answer, Sources: toSourceRefs(records)}

	related := s.findRelatedBlogContent(ctx, question)
	result.RelatedContent = related

	// Draft only when no indexed blog content already covers the question,
	// and only as pending_approval; publishing stays a human decision.
	if req.DraftBlogPost && len(related) == 0 {
		post, err := s.draftBlogPost(ctx, question, answer, req.UserID)
		if err != nil {
			log.Printf("answer: blog draft failed: %v", err)
		} else {
			result.DraftedPost = post
		}
	}

	return result, nil
}

// findRelatedBlogContent checks whether indexed blog content already covers
// the question: vector similarity plus a crude keyword-overlap check.
func (s *AnswerService) findRelatedBlogContent(ctx context.Context, question string) []models.VectorRecord {
	records, err := s.index.Search(ctx, question,
		vectorindex.SearchFilters{Category: blogCategory}, 3, s.scoreThreshold)
	if err != nil {
		log.Printf("answer: blog coverage search failed: %v", err)
		return nil
	}

	var related []models.VectorRecord
	for _, rec := range records {
		if keywordOverlap(question, rec.Content) {
			related = append(related, rec)
		}
	}
	return related
}

func (s *AnswerService) draftBlogPost(ctx context.Context, question, answer, userID string) (*models.BlogPost, error) {
	now := time.Now().UTC()
	post := &models.BlogPost{
		ID:             uuid.NewString(),
		Title:          draftTitle(question),
		Content:        answer,
		Status:         models.BlogStatusPendingApproval,
		SourceQuestion: question,
		AuthorUserID:   userID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.CreateBlogPost(ctx, post); err != nil {
		return nil, fmt.Errorf("create blog post: %w", err)
	}
	return post, nil
}

func buildUserPrompt(records []models.VectorRecord, question string) string {
	var sb strings.Builder
	for _, rec := range records {
		sb.WriteString(rec.Content)
		sb.WriteString("\n---\n")
	}
	return fmt.Sprintf("Kontekst:\n%s\nPitanje: %s", sb.String(), question)
}

func toSourceRefs(records []models.VectorRecord) []SourceRef {
	refs := make([]SourceRef, 0, len(records))
	for _, rec := range records {
		refs = append(refs, SourceRef{
			RecordID:   rec.ID,
			Filename:   rec.Metadata.Filename,
			Category:   rec.Metadata.Category,
			Similarity: rec.Similarity,
		})
	}
	return refs
}

func isOnTopic(question string) bool {
	q := strings.ToLower(question)
	for _, kw := range safetyKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// keywordOverlap reports whether at least two words of 4+ runes from the
// question appear in the content.
func keywordOverlap(question, content string) bool {
	c := strings.ToLower(content)
	matches := 0
	for _, word := range strings.Fields(strings.ToLower(question)) {
		word = strings.Trim(word, "?!.,:;\"'")
		if len([]rune(word)) < 4 {
			continue
		}
		if strings.Contains(c, word) {
			matches++
			if matches >= 2 {
				return true
			}
		}
	}
	return false
}

func draftTitle(question string) string {
	title := strings.TrimSpace(strings.TrimRight(question, "?!."))
	runes := []rune(title)
	if len(runes) > 80 {
		title = string(runes[:80])
	}
	return title
}
