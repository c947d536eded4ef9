package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobgate/internal/middleware"
	"github.com/hitoshi/jobgate/internal/model"
)

// ModerationServiceInterface はモデレーションハンドラーが必要とするサービスインターフェース。
type ModerationServiceInterface interface {
	Queue(ctx context.Context, actor model.Actor, limit int) ([]*model.Posting, error)
	Approve(ctx context.Context, actor model.Actor, id int64) (*model.Posting, error)
	Reject(ctx context.Context, actor model.Actor, id int64, reason string) (*model.Posting, error)
}

// ModerationHandler はモデレーター向けのHTTPハンドラー。
type ModerationHandler struct {
	service ModerationServiceInterface
}

// NewModerationHandler はModerationHandlerを生成する。
func NewModerationHandler(service ModerationServiceInterface) *ModerationHandler {
	return &ModerationHandler{service: service}
}

// rejectRequest は却下リクエストのボディ。reasonは省略可。
type rejectRequest struct {
	Reason string `json:"reason"`
}

// queueResponse は審査待ち一覧のレスポンス。
type queueResponse struct {
	Postings []postingResponse `json:"postings"`
}

// Queue は審査待ちの求人を返す。
// GET /api/moderation/queue?limit=N
func (h *ModerationHandler) Queue(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeInvalidRequest(w)
			return
		}
		limit = n
	}

	postings, err := h.service.Queue(r.Context(), middleware.ActorFromContext(r.Context()), limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, queueResponse{Postings: toPostingResponses(postings)})
}

// Approve は求人を承認する。
// POST /api/moderation/jobs/{id}/approve
func (h *ModerationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingIDError())
		return
	}

	p, err := h.service.Approve(r.Context(), middleware.ActorFromContext(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toPostingResponse(p))
}

// Reject は求人を却下する。
// POST /api/moderation/jobs/{id}/reject
func (h *ModerationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingIDError())
		return
	}

	var req rejectRequest
	// 空ボディは理由なしの却下として扱う
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeInvalidRequest(w)
		return
	}

	p, err := h.service.Reject(r.Context(), middleware.ActorFromContext(r.Context()), id, req.Reason)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toPostingResponse(p))
}
