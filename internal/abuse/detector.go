// Package abuse は求人投稿の重複・不適切語・連絡先漏洩を検出し、
// 説明文から連絡先を伏せ字にする。
//
// 検出は決して失敗しない。一致しないことは通常の否定結果として扱う。
package abuse

import (
	"regexp"
	"strings"
	"time"

	"github.com/hitoshi/jobgate/internal/model"
)

// プレースホルダーはメール・電話番号のパターンに一致しない文字列とし、
// 伏せ字処理を冪等にする。
const (
	RedactedEmail = "[redacted-email]"
	RedactedPhone = "[redacted-phone]"
)

// DefaultDuplicateWindow は重複判定の対象とする直近期間の既定値。
const DefaultDuplicateWindow = 7 * 24 * time.Hour

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	// 7桁以上の数字。数字の間の空白・ハイフン・括弧と、先頭の+と括弧（順不同）を許容する。
	phonePattern = regexp.MustCompile(`(?:\+?\(?|\(\+)\d(?:[\s\-()]*\d){6,}`)
)

// DefaultDenylist は既定の不適切語リスト。すべて小文字。
var DefaultDenylist = []string{
	"pizda",
	"căcat",
	"cacat",
	"fuck",
	"shit",
	"bitch",
	"asshole",
}

// Config はDetectorの設定。
type Config struct {
	// Denylist は部分一致で判定する不適切語。空ならDefaultDenylistを使う。
	Denylist []string
	// DuplicateWindow は重複判定の対象期間。0以下ならDefaultDuplicateWindowを使う。
	DuplicateWindow time.Duration
}

// Findings は検出結果。
type Findings struct {
	Duplicate           bool
	Profane             bool
	ContactLeak         bool
	RedactedDescription string
}

// Flagged はいずれかの検出があったかを返す。
func (f Findings) Flagged() bool {
	return f.Duplicate || f.Profane || f.ContactLeak
}

// Detector は求人投稿の不正検出器。
type Detector struct {
	denylist []string
	window   time.Duration
	now      func() time.Time
}

// NewDetector は新しいDetectorを生成する。
func NewDetector(cfg Config) *Detector {
	src := cfg.Denylist
	if len(src) == 0 {
		src = DefaultDenylist
	}
	denylist := make([]string, 0, len(src))
	for _, w := range src {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			denylist = append(denylist, w)
		}
	}

	window := cfg.DuplicateWindow
	if window <= 0 {
		window = DefaultDuplicateWindow
	}

	return &Detector{
		denylist: denylist,
		window:   window,
		now:      time.Now,
	}
}

// DuplicateWindow は重複判定の対象期間を返す。
// 呼び出し側は直近の投稿取得にこの期間を使う。
func (d *Detector) DuplicateWindow() time.Duration {
	return d.window
}

// Evaluate はcandidateを同じ企業の直近投稿recentと比較して検査する。
// recentは呼び出し側の問い合わせで絞り込まれている前提だが、
// 企業と作成日時はここでも確認する。
func (d *Detector) Evaluate(candidate *model.Posting, recent []*model.Posting) Findings {
	if candidate == nil {
		return Findings{}
	}

	return Findings{
		Duplicate:           d.isDuplicate(candidate, recent),
		Profane:             d.isProfane(candidate.Description),
		ContactLeak:         HasContactInfo(candidate.Description),
		RedactedDescription: Redact(candidate.Description),
	}
}

func (d *Detector) isDuplicate(candidate *model.Posting, recent []*model.Posting) bool {
	ref := candidate.CreatedAt
	if ref.IsZero() {
		ref = d.now()
	}
	since := ref.Add(-d.window)

	title := normalize(candidate.Title)
	city := normalize(candidate.City)

	for _, p := range recent {
		if p == nil {
			continue
		}
		// 更新時の再検査では自分自身を除外する
		if candidate.ID != 0 && p.ID == candidate.ID {
			continue
		}
		if p.CompanyID != candidate.CompanyID {
			continue
		}
		if p.CreatedAt.Before(since) {
			continue
		}
		if normalize(p.Title) != title {
			continue
		}
		other := normalize(p.City)
		if city != "" && other != "" && city != other {
			continue
		}
		return true
	}
	return false
}

func (d *Detector) isProfane(description string) bool {
	lower := strings.ToLower(description)
	for _, w := range d.denylist {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// HasContactInfo はテキストにメールアドレスまたは電話番号が含まれるかを返す。
func HasContactInfo(text string) bool {
	return emailPattern.MatchString(text) || phonePattern.MatchString(text)
}

// Redact はメールアドレスをRedactedEmailに、続いて電話番号をRedactedPhoneに置き換える。
// 伏せ字済みのテキストに再適用しても結果は変わらない。
func Redact(text string) string {
	out := emailPattern.ReplaceAllLiteralString(text, RedactedEmail)
	return phonePattern.ReplaceAllLiteralString(out, RedactedPhone)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
