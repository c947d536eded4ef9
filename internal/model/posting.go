package model

import (
	"strings"
	"time"
)

// ModerationState は求人の審査状態を表す。
type ModerationState string

const (
	// ModerationPending は審査待ち。新規投稿の初期状態。
	ModerationPending ModerationState = "pending"
	// ModerationApproved は承認済み。公開される唯一の状態。
	ModerationApproved ModerationState = "approved"
	// ModerationRejected は却下済み。
	ModerationRejected ModerationState = "rejected"
)

// FlaggedReason は審査待ちになった理由を表す。
// 空文字は「新規投稿者のため審査」を意味する。
type FlaggedReason string

const (
	FlaggedNone        FlaggedReason = ""
	FlaggedDuplicate   FlaggedReason = "DUPLICATE"
	FlaggedProfanity   FlaggedReason = "PROFANITY"
	FlaggedContactLeak FlaggedReason = "CONTACT_LEAK"
)

// ParseFlaggedReason は文字列をFlaggedReasonに変換する。
// 定義外の値の場合はfalseを返す。
func ParseFlaggedReason(s string) (FlaggedReason, bool) {
	switch r := FlaggedReason(strings.ToUpper(strings.TrimSpace(s))); r {
	case FlaggedNone, FlaggedDuplicate, FlaggedProfanity, FlaggedContactLeak:
		return r, true
	}
	return "", false
}

// Moderation は求人に付与される審査情報。
// 求人本体と同一の書き込みで永続化される。
type Moderation struct {
	State         ModerationState
	FlaggedReason FlaggedReason
	FlaggedAt     *time.Time
	ApprovedAt    *time.Time
	ModeratedBy   string
}

// Posting は求人を表す。
type Posting struct {
	ID          int64
	CompanyID   int64
	CreatedBy   string
	Title       string
	Description string
	Category    string
	City        string
	SalaryMin   *int
	SalaryMax   *int
	ExpiresAt   *time.Time
	Moderation  Moderation
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsVisible は求人が外部に公開されているかを返す。
// 承認済みの場合のみ公開される。
func (p *Posting) IsVisible() bool {
	return p.Moderation.State == ModerationApproved
}

// Validate は投稿内容の必須項目と給与範囲を検証する。
func (p *Posting) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return NewInvalidPostingError("タイトルが空です")
	}
	if len(p.Title) > 255 {
		return NewInvalidPostingError("タイトルが長すぎます（最大255文字）")
	}
	if strings.TrimSpace(p.Description) == "" {
		return NewInvalidPostingError("説明が空です")
	}
	if p.CompanyID <= 0 {
		return NewInvalidPostingError("企業が指定されていません")
	}
	if p.SalaryMin != nil && *p.SalaryMin < 0 {
		return NewInvalidPostingError("最低給与が負の値です")
	}
	if p.SalaryMin != nil && p.SalaryMax != nil && *p.SalaryMin > *p.SalaryMax {
		return NewInvalidPostingError("最低給与が最高給与を上回っています")
	}
	return nil
}
