package model

import "time"

// ApplicationStatus は応募の選考状態を表す。
// 状態間の遷移に制約はなく、どの状態からでも任意の状態へ変更できる。
type ApplicationStatus string

const (
	StatusSubmitted ApplicationStatus = "submitted"
	StatusViewed    ApplicationStatus = "viewed"
	StatusInterview ApplicationStatus = "interview"
	StatusOffer     ApplicationStatus = "offer"
	StatusRejected  ApplicationStatus = "rejected"
)

// applicationStatuses は表示順の状態一覧と表示ラベル。
var applicationStatuses = []struct {
	status ApplicationStatus
	label  string
}{
	{StatusSubmitted, "Trimisă"},
	{StatusViewed, "Vizualizată"},
	{StatusInterview, "Interviu"},
	{StatusOffer, "Ofertă"},
	{StatusRejected, "Respinsă"},
}

// ApplicationStatuses は定義済みの全状態を表示順に返す。
func ApplicationStatuses() []ApplicationStatus {
	out := make([]ApplicationStatus, len(applicationStatuses))
	for i, s := range applicationStatuses {
		out[i] = s.status
	}
	return out
}

// ParseApplicationStatus は文字列を応募状態に変換する。
// 定義外の値の場合はfalseを返す。
func ParseApplicationStatus(s string) (ApplicationStatus, bool) {
	for _, st := range applicationStatuses {
		if string(st.status) == s {
			return st.status, true
		}
	}
	return "", false
}

// Label は状態の表示ラベルを返す。未定義の状態は値そのものを返す。
func (s ApplicationStatus) Label() string {
	for _, st := range applicationStatuses {
		if st.status == s {
			return st.label
		}
	}
	return string(s)
}

// Application は求人への応募を表す。
// (JobID, ApplicantID) の組は一意。
type Application struct {
	ID              int64
	JobID           int64
	ApplicantID     string
	CoverLetter     *string
	DocumentRef     *string
	Status          ApplicationStatus
	StatusChangedAt *time.Time
	CreatedAt       time.Time
}
