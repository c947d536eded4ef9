// Package appstatus は応募の作成と選考状態の変更を提供する。
package appstatus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/jobgate/internal/abuse"
	"github.com/hitoshi/jobgate/internal/access"
	"github.com/hitoshi/jobgate/internal/metrics"
	"github.com/hitoshi/jobgate/internal/model"
	"github.com/hitoshi/jobgate/internal/notify"
	"github.com/hitoshi/jobgate/internal/ratelimit"
	"github.com/hitoshi/jobgate/internal/repository"
	"github.com/hitoshi/jobgate/internal/security"
)

// ScopeApply は応募のレート制限スコープ。
const ScopeApply = "apply"

// maxCoverLetterLength はカバーレターの最大バイト数。
const maxCoverLetterLength = 10000

// Result は状態変更の結果。
type Result struct {
	Status  model.ApplicationStatus
	Label   string
	Changed bool
}

// SubmitInput は応募の入力。
type SubmitInput struct {
	CoverLetter string
	DocumentRef string
}

// Config はServiceの設定。
type Config struct {
	// ApplyRule は応募のレート制限。ScopeはScopeApplyで上書きされる。
	ApplyRule ratelimit.Rule
}

// Service は応募サービス。
type Service struct {
	applications repository.ApplicationRepository
	postings     repository.PostingRepository
	limiter      *ratelimit.Limiter
	sanitizer    security.TextSanitizer
	notifier     notify.Notifier
	metrics      metrics.MetricsCollector
	rule         ratelimit.Rule
	now          func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	applications repository.ApplicationRepository,
	postings repository.PostingRepository,
	limiter *ratelimit.Limiter,
	sanitizer security.TextSanitizer,
	notifier notify.Notifier,
	m metrics.MetricsCollector,
	cfg Config,
) *Service {
	rule := cfg.ApplyRule
	rule.Scope = ScopeApply
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		applications: applications,
		postings:     postings,
		limiter:      limiter,
		sanitizer:    sanitizer,
		notifier:     notifier,
		metrics:      m,
		rule:         rule,
		now:          time.Now,
	}
}

// Transition は応募の選考状態を変更する。
// 状態間の遷移に制約はない。現在と同じ状態が指定された場合は書き込みを行わず成功を返す。
func (s *Service) Transition(ctx context.Context, actor model.Actor, applicationID int64, newStatus string) (*Result, error) {
	// 企業を持たない雇用者はここでNO_COMPANYになる
	if err := s.authorize(actor, access.ActionViewInbox, access.Resource{}); err != nil {
		return nil, err
	}
	if applicationID <= 0 {
		return nil, model.NewMissingIDError()
	}
	status, ok := model.ParseApplicationStatus(newStatus)
	if !ok {
		return nil, model.NewInvalidStatusError(newStatus)
	}

	app, err := s.applications.FindByIDWithJob(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("応募の取得に失敗しました: %w", err)
	}
	if app == nil {
		return nil, model.NewApplicationNotFoundError(applicationID)
	}
	if err := s.authorize(actor, access.ActionManageApplication, access.CompanyResource(app.CompanyID)); err != nil {
		return nil, err
	}

	result := &Result{Status: status, Label: status.Label()}
	if app.Status == status {
		return result, nil
	}

	now := s.now().UTC()
	if err := s.applications.UpdateStatus(ctx, app.ID, status, now); err != nil {
		return nil, fmt.Errorf("応募状態の更新に失敗しました: %w", err)
	}
	result.Changed = true

	s.metrics.RecordStatusTransition(string(status))
	slog.InfoContext(ctx, "応募状態を変更しました",
		slog.Int64("application_id", app.ID),
		slog.Int64("job_id", app.JobID),
		slog.String("user_id", actor.UserID),
		slog.String("from", string(app.Status)),
		slog.String("to", string(status)),
	)
	s.notifier.Notify(ctx, model.Event{
		Name:   model.EventApplicationStatusChange,
		UserID: actor.UserID,
		Properties: map[string]any{
			"application_id": app.ID,
			"job_id":         app.JobID,
			"company_id":     app.CompanyID,
			"from":           string(app.Status),
			"to":             string(status),
		},
	})

	return result, nil
}

// Submit は承認済みの求人に応募する。
// カバーレターはマークアップのみ除去し、連絡先はそのまま保存する。
func (s *Service) Submit(ctx context.Context, actor model.Actor, jobID int64, in SubmitInput) (*model.Application, error) {
	if err := s.authorize(actor, access.ActionApply, access.Resource{}); err != nil {
		return nil, err
	}
	if jobID <= 0 {
		return nil, model.NewMissingIDError()
	}

	if _, err := s.limiter.Enforce(ctx, s.rule, ratelimit.UserIdentity(actor.UserID)); err != nil {
		s.metrics.RecordRateLimit(s.rule.Scope, false)
		return nil, err
	}
	s.metrics.RecordRateLimit(s.rule.Scope, true)

	job, err := s.postings.FindByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("求人の取得に失敗しました: %w", err)
	}
	// 未承認の求人は存在しないものとして扱う
	if job == nil || !job.IsVisible() {
		return nil, model.NewPostingNotFoundError(jobID)
	}

	now := s.now().UTC()
	app := &model.Application{
		JobID:       job.ID,
		ApplicantID: actor.UserID,
		Status:      model.StatusSubmitted,
		CreatedAt:   now,
	}
	if letter := s.sanitizer.Sanitize(in.CoverLetter); letter != "" {
		if len(letter) > maxCoverLetterLength {
			return nil, model.NewInvalidPostingError("カバーレターが長すぎます（最大10000文字）")
		}
		app.CoverLetter = &letter
	}
	if ref := s.sanitizer.Sanitize(in.DocumentRef); ref != "" {
		app.DocumentRef = &ref
	}

	if err := s.applications.Create(ctx, app); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateApplicationError()
		}
		return nil, fmt.Errorf("応募の保存に失敗しました: %w", err)
	}

	disposable := abuse.IsDisposableEmail(actor.Email)
	slog.InfoContext(ctx, "応募を受け付けました",
		slog.Int64("application_id", app.ID),
		slog.Int64("job_id", app.JobID),
		slog.String("user_id", actor.UserID),
		slog.Bool("disposable_email", disposable),
	)
	s.notifier.Notify(ctx, model.Event{
		Name:   model.EventApplicationSubmitted,
		UserID: actor.UserID,
		Properties: map[string]any{
			"application_id":   app.ID,
			"job_id":           app.JobID,
			"company_id":       job.CompanyID,
			"disposable_email": disposable,
		},
	})

	return app, nil
}

func (s *Service) authorize(actor model.Actor, action access.Action, res access.Resource) error {
	d := access.Authorize(actor, action, res)
	s.metrics.RecordGateDecision(string(action), string(d.Reason))
	if !d.Allow {
		return &access.DecisionError{Action: action, Reason: d.Reason}
	}
	return nil
}
