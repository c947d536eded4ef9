package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobgate/internal/middleware"
	"github.com/hitoshi/jobgate/internal/model"
	"github.com/hitoshi/jobgate/internal/moderation"
)

// PostingServiceInterface は求人ハンドラーが必要とするサービスインターフェース。
// moderation.Serviceが実装する。
type PostingServiceInterface interface {
	Create(ctx context.Context, actor model.Actor, in moderation.PostingInput) (*model.Posting, error)
	Update(ctx context.Context, actor model.Actor, id int64, in moderation.PostingInput) (*model.Posting, error)
	Get(ctx context.Context, actor model.Actor, id int64) (*model.Posting, error)
}

// PostingHandler は求人の作成・編集・取得のHTTPハンドラー。
type PostingHandler struct {
	service PostingServiceInterface
}

// NewPostingHandler はPostingHandlerを生成する。
func NewPostingHandler(service PostingServiceInterface) *PostingHandler {
	return &PostingHandler{service: service}
}

// postingRequest は求人作成・編集リクエストのボディ。
type postingRequest struct {
	CompanyID   int64      `json:"company_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	City        string     `json:"city"`
	SalaryMin   *int       `json:"salary_min"`
	SalaryMax   *int       `json:"salary_max"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

func (req postingRequest) input() moderation.PostingInput {
	return moderation.PostingInput{
		CompanyID:   req.CompanyID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		City:        req.City,
		SalaryMin:   req.SalaryMin,
		SalaryMax:   req.SalaryMax,
		ExpiresAt:   req.ExpiresAt,
	}
}

// postingResponse は求人のAPIレスポンス。
type postingResponse struct {
	ID              int64      `json:"id"`
	CompanyID       int64      `json:"company_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Category        string     `json:"category"`
	City            string     `json:"city"`
	SalaryMin       *int       `json:"salary_min,omitempty"`
	SalaryMax       *int       `json:"salary_max,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	ModerationState string     `json:"moderation_state"`
	FlaggedReason   string     `json:"flagged_reason,omitempty"`
	FlaggedAt       *time.Time `json:"flagged_at,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// CreateJob は求人を投稿する。審査結果に応じて公開または審査待ちになる。
// POST /api/jobs
func (h *PostingHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req postingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}

	p, err := h.service.Create(r.Context(), middleware.ActorFromContext(r.Context()), req.input())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPostingResponse(p))
}

// UpdateJob は求人を編集する。
// PUT /api/jobs/{id}
func (h *PostingHandler) UpdateJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingIDError())
		return
	}

	var req postingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}

	p, err := h.service.Update(r.Context(), middleware.ActorFromContext(r.Context()), id, req.input())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toPostingResponse(p))
}

// GetJob は求人を取得する。
// GET /api/jobs/{id}
func (h *PostingHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewPostingNotFoundError(0))
		return
	}

	p, err := h.service.Get(r.Context(), middleware.ActorFromContext(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toPostingResponse(p))
}

func toPostingResponse(p *model.Posting) postingResponse {
	return postingResponse{
		ID:              p.ID,
		CompanyID:       p.CompanyID,
		Title:           p.Title,
		Description:     p.Description,
		Category:        p.Category,
		City:            p.City,
		SalaryMin:       p.SalaryMin,
		SalaryMax:       p.SalaryMax,
		ExpiresAt:       p.ExpiresAt,
		ModerationState: string(p.Moderation.State),
		FlaggedReason:   string(p.Moderation.FlaggedReason),
		FlaggedAt:       p.Moderation.FlaggedAt,
		ApprovedAt:      p.Moderation.ApprovedAt,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func toPostingResponses(postings []*model.Posting) []postingResponse {
	out := make([]postingResponse, len(postings))
	for i, p := range postings {
		out[i] = toPostingResponse(p)
	}
	return out
}
