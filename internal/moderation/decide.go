// Package moderation は求人投稿の審査状態を決定し、モデレーターによる承認・却下を扱う。
package moderation

import (
	"time"

	"github.com/hitoshi/jobgate/internal/abuse"
	"github.com/hitoshi/jobgate/internal/model"
)

// DefaultTrustThreshold は自動承認に必要な承認済み投稿数の既定値。
const DefaultTrustThreshold = 5

// Decide は新規投稿の初期審査状態を決定する。
// 検出結果は重複・不適切語・連絡先漏洩の順に優先し、いずれもなければ
// 投稿者の承認済み投稿数trustがthreshold未満の場合のみ理由なしで保留にする。
func Decide(f abuse.Findings, trust, threshold int, now time.Time) model.Moderation {
	switch {
	case f.Duplicate:
		return flagged(model.FlaggedDuplicate, now)
	case f.Profane:
		return flagged(model.FlaggedProfanity, now)
	case f.ContactLeak:
		return flagged(model.FlaggedContactLeak, now)
	case trust < threshold:
		return model.Moderation{State: model.ModerationPending}
	}
	approvedAt := now
	return model.Moderation{State: model.ModerationApproved, ApprovedAt: &approvedAt}
}

// Rescreen は編集後の投稿の審査状態を決定する。
// 新たな検出があれば保留に戻す。検出がない場合、承認済みと却下済みは状態を維持し、
// 保留中の投稿はDecideで改めて判定する。
func Rescreen(current model.Moderation, f abuse.Findings, trust, threshold int, now time.Time) model.Moderation {
	if f.Flagged() {
		next := Decide(f, trust, threshold, now)
		next.ModeratedBy = current.ModeratedBy
		return next
	}
	switch current.State {
	case model.ModerationApproved, model.ModerationRejected:
		return current
	}
	next := Decide(f, trust, threshold, now)
	next.ModeratedBy = current.ModeratedBy
	return next
}

func flagged(reason model.FlaggedReason, now time.Time) model.Moderation {
	at := now
	return model.Moderation{
		State:         model.ModerationPending,
		FlaggedReason: reason,
		FlaggedAt:     &at,
	}
}
