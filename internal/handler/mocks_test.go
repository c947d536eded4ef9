package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobgate/internal/appstatus"
	"github.com/hitoshi/jobgate/internal/middleware"
	"github.com/hitoshi/jobgate/internal/model"
	"github.com/hitoshi/jobgate/internal/moderation"
)

// --- モック定義 ---

// mockPostingService はPostingServiceInterfaceのモック実装。
type mockPostingService struct {
	createFn func(ctx context.Context, actor model.Actor, in moderation.PostingInput) (*model.Posting, error)
	updateFn func(ctx context.Context, actor model.Actor, id int64, in moderation.PostingInput) (*model.Posting, error)
	getFn    func(ctx context.Context, actor model.Actor, id int64) (*model.Posting, error)
}

func (m *mockPostingService) Create(ctx context.Context, actor model.Actor, in moderation.PostingInput) (*model.Posting, error) {
	if m.createFn != nil {
		return m.createFn(ctx, actor, in)
	}
	return &model.Posting{}, nil
}

func (m *mockPostingService) Update(ctx context.Context, actor model.Actor, id int64, in moderation.PostingInput) (*model.Posting, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, actor, id, in)
	}
	return &model.Posting{ID: id}, nil
}

func (m *mockPostingService) Get(ctx context.Context, actor model.Actor, id int64) (*model.Posting, error) {
	if m.getFn != nil {
		return m.getFn(ctx, actor, id)
	}
	return &model.Posting{ID: id}, nil
}

// mockModerationService はModerationServiceInterfaceのモック実装。
type mockModerationService struct {
	queueFn   func(ctx context.Context, actor model.Actor, limit int) ([]*model.Posting, error)
	approveFn func(ctx context.Context, actor model.Actor, id int64) (*model.Posting, error)
	rejectFn  func(ctx context.Context, actor model.Actor, id int64, reason string) (*model.Posting, error)
}

func (m *mockModerationService) Queue(ctx context.Context, actor model.Actor, limit int) ([]*model.Posting, error) {
	if m.queueFn != nil {
		return m.queueFn(ctx, actor, limit)
	}
	return nil, nil
}

func (m *mockModerationService) Approve(ctx context.Context, actor model.Actor, id int64) (*model.Posting, error) {
	if m.approveFn != nil {
		return m.approveFn(ctx, actor, id)
	}
	return &model.Posting{ID: id}, nil
}

func (m *mockModerationService) Reject(ctx context.Context, actor model.Actor, id int64, reason string) (*model.Posting, error) {
	if m.rejectFn != nil {
		return m.rejectFn(ctx, actor, id, reason)
	}
	return &model.Posting{ID: id}, nil
}

// mockApplicationService はApplicationServiceInterfaceのモック実装。
type mockApplicationService struct {
	submitFn     func(ctx context.Context, actor model.Actor, jobID int64, in appstatus.SubmitInput) (*model.Application, error)
	transitionFn func(ctx context.Context, actor model.Actor, applicationID int64, newStatus string) (*appstatus.Result, error)
}

func (m *mockApplicationService) Submit(ctx context.Context, actor model.Actor, jobID int64, in appstatus.SubmitInput) (*model.Application, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, actor, jobID, in)
	}
	return &model.Application{JobID: jobID, Status: model.StatusSubmitted}, nil
}

func (m *mockApplicationService) Transition(ctx context.Context, actor model.Actor, applicationID int64, newStatus string) (*appstatus.Result, error) {
	if m.transitionFn != nil {
		return m.transitionFn(ctx, actor, applicationID, newStatus)
	}
	st := model.ApplicationStatus(newStatus)
	return &appstatus.Result{Status: st, Label: st.Label(), Changed: true}, nil
}

// --- テストヘルパー ---

var (
	employer  = model.Actor{UserID: "emp-1", Role: model.RoleEmployer, CompanyIDs: []int64{10}}
	seeker    = model.Actor{UserID: "seek-1", Role: model.RoleSeeker}
	moderator = model.Actor{UserID: "mod-1", Role: model.RoleModerator}
)

// withActor はテスト用にリクエストコンテキストにActorを注入するヘルパー。
func withActor(r *http.Request, actor model.Actor) *http.Request {
	return r.WithContext(middleware.ContextWithActor(r.Context(), actor))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

func intPtr(v int) *int { return &v }
