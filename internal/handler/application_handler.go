package handler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobgate/internal/access"
	"github.com/hitoshi/jobgate/internal/appstatus"
	"github.com/hitoshi/jobgate/internal/middleware"
	"github.com/hitoshi/jobgate/internal/model"
)

// ApplicationServiceInterface は応募ハンドラーが必要とするサービスインターフェース。
// appstatus.Serviceが実装する。
type ApplicationServiceInterface interface {
	Submit(ctx context.Context, actor model.Actor, jobID int64, in appstatus.SubmitInput) (*model.Application, error)
	Transition(ctx context.Context, actor model.Actor, applicationID int64, newStatus string) (*appstatus.Result, error)
}

// ApplicationHandler は応募と選考状態変更のHTTPハンドラー。
type ApplicationHandler struct {
	service ApplicationServiceInterface
}

// NewApplicationHandler はApplicationHandlerを生成する。
func NewApplicationHandler(service ApplicationServiceInterface) *ApplicationHandler {
	return &ApplicationHandler{service: service}
}

// 選考状態エンドポイントのエラー識別子。
const (
	statusErrMissingID     = "missing_id"
	statusErrInvalidStatus = "invalid_status"
	statusErrNoCompany     = "no_company"
	statusErrForbidden     = "forbidden"
	statusErrAuthRequired  = "auth_required"
	statusErrNotFound      = "not_found"
	statusErrInternal      = "internal"
)

// applyRequest は応募リクエストのボディ。
type applyRequest struct {
	CoverLetter string `json:"cover_letter"`
	DocumentRef string `json:"document_ref"`
}

// applicationResponse は応募のAPIレスポンス。
type applicationResponse struct {
	ID          int64     `json:"id"`
	JobID       int64     `json:"job_id"`
	Status      string    `json:"status"`
	StatusLabel string    `json:"status_label"`
	CreatedAt   time.Time `json:"created_at"`
}

// statusRequest は選考状態変更リクエストのボディ。
// IDはパスで指定された場合は無視される。
type statusRequest struct {
	ID     flexibleID `json:"id"`
	Status string     `json:"status"`
}

// statusSuccessResponse は選考状態変更の成功レスポンス。
type statusSuccessResponse struct {
	OK          bool   `json:"ok"`
	Status      string `json:"status"`
	StatusLabel string `json:"status_label"`
}

// statusErrorResponse は選考状態変更の失敗レスポンス。
type statusErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// statusOption は状態の選択肢。
type statusOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// flexibleID は数値または数字文字列のIDを受け付ける。
type flexibleID int64

// UnmarshalJSON はjson.Unmarshalerを実装する。解釈できない値は0とする。
func (id *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		*id = 0
		return nil
	}
	*id = flexibleID(n)
	return nil
}

// Apply は求人に応募する。
// POST /api/jobs/{id}/apply
func (h *ApplicationHandler) Apply(w http.ResponseWriter, r *http.Request) {
	jobID, _ := parseID(chi.URLParam(r, "id"))

	var req applyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}

	app, err := h.service.Submit(r.Context(), middleware.ActorFromContext(r.Context()), jobID, appstatus.SubmitInput{
		CoverLetter: req.CoverLetter,
		DocumentRef: req.DocumentRef,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, applicationResponse{
		ID:          app.ID,
		JobID:       app.JobID,
		Status:      string(app.Status),
		StatusLabel: app.Status.Label(),
		CreatedAt:   app.CreatedAt,
	})
}

// UpdateStatus は応募の選考状態を変更する。
// POST /applications/status/{id} （ボディ: {"status": ...}）
// POST /applications/status      （ボディ: {"id": ..., "status": ...}）
// フォーム送信の場合は同名のフィールドを読む。
func (h *ApplicationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	req := readStatusRequest(w, r)

	id := int64(req.ID)
	if raw := chi.URLParam(r, "id"); raw != "" {
		id, _ = parseID(raw)
	}

	res, err := h.service.Transition(r.Context(), middleware.ActorFromContext(r.Context()), id, req.Status)
	if err != nil {
		status, code := statusErrorFor(err)
		if status == http.StatusInternalServerError {
			slog.ErrorContext(r.Context(), "failed to update application status",
				slog.Int64("application_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeJSON(w, status, statusErrorResponse{OK: false, Error: code})
		return
	}

	writeJSON(w, http.StatusOK, statusSuccessResponse{
		OK:          true,
		Status:      string(res.Status),
		StatusLabel: res.Label,
	})
}

// ListStatuses は選考状態の語彙と表示ラベルを表示順に返す。
// GET /api/applications/statuses
func (h *ApplicationHandler) ListStatuses(w http.ResponseWriter, r *http.Request) {
	statuses := model.ApplicationStatuses()
	out := make([]statusOption, len(statuses))
	for i, s := range statuses {
		out[i] = statusOption{Value: string(s), Label: s.Label()}
	}
	writeJSON(w, http.StatusOK, map[string][]statusOption{"statuses": out})
}

// readStatusRequest はJSONまたはフォームのボディを読む。
// 解析できないボディは空の入力として扱い、検証はサービス層に任せる。
func readStatusRequest(w http.ResponseWriter, r *http.Request) statusRequest {
	var req statusRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		req.Status = r.PostFormValue("status")
		if n, err := strconv.ParseInt(r.PostFormValue("id"), 10, 64); err == nil {
			req.ID = flexibleID(n)
		}
		return req
	}
	if err := decodeJSON(w, r, &req); err != nil {
		return statusRequest{}
	}
	return req
}

// statusErrorFor はサービスのエラーを選考状態エンドポイントのステータスと識別子に変換する。
func statusErrorFor(err error) (int, string) {
	var denied *access.DecisionError
	if errors.As(err, &denied) {
		switch denied.Reason {
		case access.ReasonAuthRequired:
			return http.StatusUnauthorized, statusErrAuthRequired
		case access.ReasonNoCompany:
			return http.StatusForbidden, statusErrNoCompany
		default:
			return http.StatusForbidden, statusErrForbidden
		}
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case model.ErrCodeMissingID:
			return http.StatusBadRequest, statusErrMissingID
		case model.ErrCodeInvalidStatus:
			return http.StatusBadRequest, statusErrInvalidStatus
		case model.ErrCodeApplicationNotFound:
			return http.StatusNotFound, statusErrNotFound
		}
	}

	return http.StatusInternalServerError, statusErrInternal
}
