package model

import "time"

// 定義済みドメインイベント名
const (
	EventJobCreated              = "job.created"
	EventJobUpdated              = "job.updated"
	EventJobApproved             = "job.approved"
	EventJobRejected             = "job.rejected"
	EventApplicationSubmitted    = "application.submitted"
	EventApplicationStatusChange = "application.status_changed"
)

// Event は分析・通知向けのドメインイベント。
// 配信はベストエフォートで、失敗しても元の処理結果には影響しない。
type Event struct {
	ID         string
	Name       string
	UserID     string
	RequestID  string
	Properties map[string]any
	CreatedAt  time.Time
}
