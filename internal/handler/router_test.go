package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/jobgate/internal/appstatus"
	"github.com/hitoshi/jobgate/internal/metrics"
	"github.com/hitoshi/jobgate/internal/middleware"
	"github.com/hitoshi/jobgate/internal/model"
	"github.com/hitoshi/jobgate/internal/moderation"
)

// --- ルーター用のモック ---

type stubSessions struct{}

func (stubSessions) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if id == "" {
		return nil, nil
	}
	// セッションIDをそのままユーザーIDとして扱う
	return &model.Session{ID: id, UserID: id, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type stubUsers map[string]model.Role

func (u stubUsers) FindByID(ctx context.Context, id string) (*model.User, error) {
	role, ok := u[id]
	if !ok {
		return nil, nil
	}
	return &model.User{ID: id, Role: role}, nil
}

type stubCompanies map[string][]int64

func (c stubCompanies) ListIDsByOwner(ctx context.Context, ownerID string) ([]int64, error) {
	return c[ownerID], nil
}

type stubHealth struct{ err error }

func (h stubHealth) PingContext(context.Context) error { return h.err }

func newTestRouter(t *testing.T, deps *RouterDeps) http.Handler {
	t.Helper()
	if deps.Sessions == nil {
		deps.Sessions = stubSessions{}
	}
	if deps.Users == nil {
		deps.Users = stubUsers{"emp-1": model.RoleEmployer, "seek-1": model.RoleSeeker, "mod-1": model.RoleModerator}
	}
	if deps.Companies == nil {
		deps.Companies = stubCompanies{"emp-1": {10}}
	}
	if deps.PostingService == nil {
		deps.PostingService = &mockPostingService{}
	}
	if deps.ModerationService == nil {
		deps.ModerationService = &mockModerationService{}
	}
	if deps.ApplicationService == nil {
		deps.ApplicationService = &mockApplicationService{}
	}
	return NewRouter(deps)
}

// withSessionAndCSRF はセッションCookieとCSRFトークンを付与する。
func withSessionAndCSRF(req *http.Request, userID string) *http.Request {
	if userID != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: userID})
	}
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok"})
	req.Header.Set("X-CSRF-Token", "tok")
	return req
}

func TestRouter_Health(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusOK},
		{"db down", errors.New("dial tcp: refused"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, &RouterDeps{HealthChecker: stubHealth{err: tt.err}})

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if w.Header().Get(middleware.RequestIDHeader) == "" {
				t.Error("X-Request-ID should be set on every response")
			}
		})
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	r := newTestRouter(t, &RouterDeps{Metrics: collector, Gatherer: reg})

	// ステータスコードのメトリクスを1件発生させる
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/applications/statuses", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "jobgate_http_status_total") {
		t.Errorf("metrics output missing http counter:\n%s", w.Body.String())
	}
}

func TestRouter_MetricsDisabledWithoutGatherer(t *testing.T) {
	r := newTestRouter(t, &RouterDeps{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRouter_CreateJob_ResolvesActorFromSession(t *testing.T) {
	var got model.Actor
	r := newTestRouter(t, &RouterDeps{
		PostingService: &mockPostingService{
			createFn: func(ctx context.Context, actor model.Actor, in moderation.PostingInput) (*model.Posting, error) {
				got = actor
				return &model.Posting{ID: 1, CompanyID: 10, Moderation: model.Moderation{State: model.ModerationPending}}, nil
			},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewBufferString(`{"title":"x","description":"y"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, withSessionAndCSRF(req, "emp-1"))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got.UserID != "emp-1" || got.Role != model.RoleEmployer || !got.OwnsCompany(10) {
		t.Errorf("actor = %+v", got)
	}
}

func TestRouter_StateChangingRequestsRequireCSRF(t *testing.T) {
	r := newTestRouter(t, &RouterDeps{})

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewBufferString(`{}`))
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "emp-1"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestRouter_StatusRoutes(t *testing.T) {
	var gotIDs []int64
	r := newTestRouter(t, &RouterDeps{
		ApplicationService: &mockApplicationService{
			transitionFn: func(ctx context.Context, actor model.Actor, applicationID int64, newStatus string) (*appstatus.Result, error) {
				gotIDs = append(gotIDs, applicationID)
				st := model.ApplicationStatus(newStatus)
				return &appstatus.Result{Status: st, Label: st.Label(), Changed: true}, nil
			},
		},
	})

	for _, tc := range []struct{ path, body string }{
		{"/applications/status/5", `{"status":"viewed"}`},
		{"/applications/status", `{"id":6,"status":"viewed"}`},
	} {
		req := httptest.NewRequest(http.MethodPost, tc.path, bytes.NewBufferString(tc.body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, withSessionAndCSRF(req, "emp-1"))

		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want %d", tc.path, w.Code, http.StatusOK)
		}
	}

	if len(gotIDs) != 2 || gotIDs[0] != 5 || gotIDs[1] != 6 {
		t.Errorf("ids = %v, want [5 6]", gotIDs)
	}
}

func TestRouter_AnonymousReachesGate(t *testing.T) {
	r := newTestRouter(t, &RouterDeps{
		ApplicationService: &mockApplicationService{
			transitionFn: func(ctx context.Context, actor model.Actor, applicationID int64, newStatus string) (*appstatus.Result, error) {
				if actor.IsAuthenticated() {
					t.Errorf("actor should be anonymous, got %+v", actor)
				}
				return nil, model.NewApplicationNotFoundError(applicationID)
			},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/applications/status/5", bytes.NewBufferString(`{"status":"viewed"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, withSessionAndCSRF(req, ""))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRouter_GeneralRateLimit(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{GeneralRate: 0.01, GeneralBurst: 1, CleanupInterval: time.Minute})
	defer rl.Stop()
	r := newTestRouter(t, &RouterDeps{RateLimiter: rl})

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/applications/statuses", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d, want %d", first.Code, http.StatusOK)
	}

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/applications/statuses", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want %d", second.Code, http.StatusTooManyRequests)
	}

	// /health はレート制限の外
	rHealth := newTestRouter(t, &RouterDeps{RateLimiter: rl, HealthChecker: stubHealth{}})
	w := httptest.NewRecorder()
	rHealth.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_ModerationRoutes(t *testing.T) {
	approved, rejected := false, false
	r := newTestRouter(t, &RouterDeps{
		ModerationService: &mockModerationService{
			approveFn: func(ctx context.Context, actor model.Actor, id int64) (*model.Posting, error) {
				approved = id == 4 && actor.Role == model.RoleModerator
				return &model.Posting{ID: id}, nil
			},
			rejectFn: func(ctx context.Context, actor model.Actor, id int64, reason string) (*model.Posting, error) {
				rejected = id == 4 && reason == "DUPLICATE"
				return &model.Posting{ID: id}, nil
			},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/moderation/jobs/4/approve", nil)
	r.ServeHTTP(httptest.NewRecorder(), withSessionAndCSRF(req, "mod-1"))

	req = httptest.NewRequest(http.MethodPost, "/api/moderation/jobs/4/reject", bytes.NewBufferString(`{"reason":"DUPLICATE"}`))
	r.ServeHTTP(httptest.NewRecorder(), withSessionAndCSRF(req, "mod-1"))

	if !approved || !rejected {
		t.Errorf("approved = %v, rejected = %v, want both true", approved, rejected)
	}
}
