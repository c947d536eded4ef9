package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/jobgate/internal/abuse"
	"github.com/hitoshi/jobgate/internal/access"
	"github.com/hitoshi/jobgate/internal/metrics"
	"github.com/hitoshi/jobgate/internal/model"
	"github.com/hitoshi/jobgate/internal/notify"
	"github.com/hitoshi/jobgate/internal/ratelimit"
	"github.com/hitoshi/jobgate/internal/repository"
	"github.com/hitoshi/jobgate/internal/security"
)

// ScopeJobCreate は求人作成のレート制限スコープ。
const ScopeJobCreate = "job-create"

// DefaultQueueLimit は審査待ち一覧の既定件数。
const DefaultQueueLimit = 50

// Config はServiceの設定。
type Config struct {
	// TrustThreshold は自動承認に必要な承認済み投稿数。0以下ならDefaultTrustThreshold。
	TrustThreshold int
	// JobCreateRule は求人作成のレート制限。ScopeはScopeJobCreateで上書きされる。
	JobCreateRule ratelimit.Rule
}

// PostingInput は求人の作成・編集の入力。
type PostingInput struct {
	CompanyID   int64
	Title       string
	Description string
	Category    string
	City        string
	SalaryMin   *int
	SalaryMax   *int
	ExpiresAt   *time.Time
}

// Service は求人の審査サービス。
type Service struct {
	postings  repository.PostingRepository
	detector  *abuse.Detector
	limiter   *ratelimit.Limiter
	sanitizer security.TextSanitizer
	notifier  notify.Notifier
	metrics   metrics.MetricsCollector
	threshold int
	rule      ratelimit.Rule
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	postings repository.PostingRepository,
	detector *abuse.Detector,
	limiter *ratelimit.Limiter,
	sanitizer security.TextSanitizer,
	notifier notify.Notifier,
	m metrics.MetricsCollector,
	cfg Config,
) *Service {
	threshold := cfg.TrustThreshold
	if threshold <= 0 {
		threshold = DefaultTrustThreshold
	}
	rule := cfg.JobCreateRule
	rule.Scope = ScopeJobCreate
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		postings:  postings,
		detector:  detector,
		limiter:   limiter,
		sanitizer: sanitizer,
		notifier:  notifier,
		metrics:   m,
		threshold: threshold,
		rule:      rule,
		now:       time.Now,
	}
}

// Create は求人を審査して作成する。
// 認可 → 入力検証 → レート制限 → 不正検出 → 状態決定の順に評価し、決定した審査状態と
// 伏せ字済みの説明文を1回のINSERTで保存する。
func (s *Service) Create(ctx context.Context, actor model.Actor, in PostingInput) (*model.Posting, error) {
	if err := s.authorize(actor, access.ActionCreateJob, access.Resource{}); err != nil {
		return nil, err
	}

	// 企業が1社だけなら省略を許す
	if in.CompanyID == 0 && len(actor.CompanyIDs) == 1 {
		in.CompanyID = actor.CompanyIDs[0]
	}
	if err := s.authorize(actor, access.ActionPostAsCompany, access.CompanyResource(in.CompanyID)); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := &model.Posting{
		CompanyID: in.CompanyID,
		CreatedBy: actor.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.apply(p, in)
	if err := p.Validate(); err != nil {
		return nil, err
	}

	// 作成枠は認可と入力検証を通った投稿だけが消費する
	if err := s.enforceRateLimit(ctx, actor); err != nil {
		return nil, err
	}

	start := time.Now()
	recent, trust, err := s.history(ctx, p.CompanyID, actor.UserID, now)
	if err != nil {
		return nil, err
	}
	findings := s.screen(p, in.Description, recent)
	p.Description = findings.RedactedDescription
	p.Moderation = Decide(findings, trust, s.threshold, now)
	s.metrics.RecordScreeningLatency(time.Since(start))

	if err := s.postings.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("求人の保存に失敗しました: %w", err)
	}

	s.metrics.RecordModerationDecision(string(p.Moderation.State), string(p.Moderation.FlaggedReason))
	slog.InfoContext(ctx, "求人を審査しました",
		slog.Int64("posting_id", p.ID),
		slog.Int64("company_id", p.CompanyID),
		slog.String("user_id", actor.UserID),
		slog.String("state", string(p.Moderation.State)),
		slog.String("flagged_reason", string(p.Moderation.FlaggedReason)),
		slog.Int("trust", trust),
	)
	s.notify(ctx, model.EventJobCreated, actor.UserID, p)

	return p, nil
}

// Update は求人を編集し、内容を再審査する。企業は変更できない。
func (s *Service) Update(ctx context.Context, actor model.Actor, id int64, in PostingInput) (*model.Posting, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, access.ActionEditJob, access.CompanyResource(p.CompanyID)); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	s.apply(p, in)
	p.UpdatedAt = now
	if err := p.Validate(); err != nil {
		return nil, err
	}

	recent, trust, err := s.history(ctx, p.CompanyID, p.CreatedBy, now)
	if err != nil {
		return nil, err
	}
	// 重複判定は編集時点を基準にする
	candidate := *p
	candidate.CreatedAt = now
	findings := s.screen(&candidate, in.Description, recent)
	p.Description = findings.RedactedDescription
	p.Moderation = Rescreen(p.Moderation, findings, trust, s.threshold, now)

	if err := s.postings.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("求人の更新に失敗しました: %w", err)
	}

	s.metrics.RecordModerationDecision(string(p.Moderation.State), string(p.Moderation.FlaggedReason))
	slog.InfoContext(ctx, "求人を再審査しました",
		slog.Int64("posting_id", p.ID),
		slog.String("user_id", actor.UserID),
		slog.String("state", string(p.Moderation.State)),
		slog.String("flagged_reason", string(p.Moderation.FlaggedReason)),
	)
	s.notify(ctx, model.EventJobUpdated, actor.UserID, p)

	return p, nil
}

// Approve は求人を承認する。どの状態からでも呼び出せ、approved_atを更新する。
func (s *Service) Approve(ctx context.Context, actor model.Actor, id int64) (*model.Posting, error) {
	if err := s.authorize(actor, access.ActionModerate, access.Resource{}); err != nil {
		return nil, err
	}
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	m := p.Moderation
	m.State = model.ModerationApproved
	m.ApprovedAt = &now
	m.ModeratedBy = actor.UserID

	if err := s.updateModeration(ctx, p, m); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "求人を承認しました",
		slog.Int64("posting_id", p.ID),
		slog.String("moderator_id", actor.UserID),
	)
	s.notify(ctx, model.EventJobApproved, actor.UserID, p)
	return p, nil
}

// Reject は求人を却下する。どの状態からでも呼び出せ、flagged_atを更新する。
// reasonが空の場合は既存の理由を維持する。
func (s *Service) Reject(ctx context.Context, actor model.Actor, id int64, reason string) (*model.Posting, error) {
	if err := s.authorize(actor, access.ActionModerate, access.Resource{}); err != nil {
		return nil, err
	}
	parsed, ok := model.ParseFlaggedReason(reason)
	if !ok {
		return nil, model.NewInvalidReasonError(reason)
	}
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	m := p.Moderation
	m.State = model.ModerationRejected
	m.FlaggedAt = &now
	m.ApprovedAt = nil
	m.ModeratedBy = actor.UserID
	if parsed != model.FlaggedNone {
		m.FlaggedReason = parsed
	}

	if err := s.updateModeration(ctx, p, m); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "求人を却下しました",
		slog.Int64("posting_id", p.ID),
		slog.String("moderator_id", actor.UserID),
		slog.String("flagged_reason", string(m.FlaggedReason)),
	)
	s.notify(ctx, model.EventJobRejected, actor.UserID, p)
	return p, nil
}

// Queue は審査待ちの求人を古い順に返す。limitが0以下の場合はDefaultQueueLimit件。
func (s *Service) Queue(ctx context.Context, actor model.Actor, limit int) ([]*model.Posting, error) {
	if err := s.authorize(actor, access.ActionModerate, access.Resource{}); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = DefaultQueueLimit
	}
	postings, err := s.postings.ListPending(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("審査待ち一覧の取得に失敗しました: %w", err)
	}
	return postings, nil
}

// Get は求人を取得する。未承認の求人は所有企業のオーナーとモデレーターにのみ見える。
// それ以外には存在しないものとして扱う。
func (s *Service) Get(ctx context.Context, actor model.Actor, id int64) (*model.Posting, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsVisible() || actor.OwnsCompany(p.CompanyID) || actor.Role == model.RoleModerator {
		return p, nil
	}
	return nil, model.NewPostingNotFoundError(id)
}

func (s *Service) apply(p *model.Posting, in PostingInput) {
	p.Title = s.sanitizer.Sanitize(in.Title)
	p.Description = s.sanitizer.Sanitize(in.Description)
	p.Category = s.sanitizer.Sanitize(in.Category)
	p.City = s.sanitizer.Sanitize(in.City)
	p.SalaryMin = in.SalaryMin
	p.SalaryMax = in.SalaryMax
	p.ExpiresAt = in.ExpiresAt
}

// screen はcandidateを検査する。マークアップの属性などに書かれた連絡先は
// 除去後の説明文に残らないため、入力そのままの説明文でも確認する。
func (s *Service) screen(candidate *model.Posting, rawDescription string, recent []*model.Posting) abuse.Findings {
	findings := s.detector.Evaluate(candidate, recent)
	if !findings.ContactLeak && abuse.HasContactInfo(rawDescription) {
		findings.ContactLeak = true
	}
	return findings
}

// history は重複判定用の直近投稿と投稿者の承認済み投稿数を並行に取得する。
func (s *Service) history(ctx context.Context, companyID int64, userID string, now time.Time) ([]*model.Posting, int, error) {
	var (
		recent []*model.Posting
		trust  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		recent, err = s.postings.ListRecentByCompany(gctx, companyID, now.Add(-s.detector.DuplicateWindow()))
		if err != nil {
			return fmt.Errorf("直近の求人の取得に失敗しました: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		trust, err = s.postings.CountApprovedByCreator(gctx, userID)
		if err != nil {
			return fmt.Errorf("承認済み求人数の取得に失敗しました: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return recent, trust, nil
}

func (s *Service) find(ctx context.Context, id int64) (*model.Posting, error) {
	if id <= 0 {
		return nil, model.NewMissingIDError()
	}
	p, err := s.postings.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("求人の取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewPostingNotFoundError(id)
	}
	return p, nil
}

func (s *Service) updateModeration(ctx context.Context, p *model.Posting, m model.Moderation) error {
	found, err := s.postings.UpdateModeration(ctx, p.ID, m)
	if err != nil {
		return fmt.Errorf("審査状態の更新に失敗しました: %w", err)
	}
	if !found {
		return model.NewPostingNotFoundError(p.ID)
	}
	p.Moderation = m
	s.metrics.RecordModerationDecision(string(m.State), string(m.FlaggedReason))
	return nil
}

func (s *Service) authorize(actor model.Actor, action access.Action, res access.Resource) error {
	d := access.Authorize(actor, action, res)
	s.metrics.RecordGateDecision(string(action), string(d.Reason))
	if !d.Allow {
		return &access.DecisionError{Action: action, Reason: d.Reason}
	}
	return nil
}

// enforceRateLimit は求人作成のレート制限を適用する。ストア障害時は拒否する。
func (s *Service) enforceRateLimit(ctx context.Context, actor model.Actor) error {
	_, err := s.limiter.Enforce(ctx, s.rule, ratelimit.UserIdentity(actor.UserID))
	if err == nil {
		s.metrics.RecordRateLimit(s.rule.Scope, true)
		return nil
	}
	s.metrics.RecordRateLimit(s.rule.Scope, false)
	return err
}

func (s *Service) notify(ctx context.Context, name, userID string, p *model.Posting) {
	s.notifier.Notify(ctx, model.Event{
		Name:   name,
		UserID: userID,
		Properties: map[string]any{
			"posting_id":     p.ID,
			"company_id":     p.CompanyID,
			"state":          string(p.Moderation.State),
			"flagged_reason": string(p.Moderation.FlaggedReason),
		},
	})
}
