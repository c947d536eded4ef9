// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/jobgate/internal/model"
)

// ErrDuplicate は一意制約違反を表す。
var ErrDuplicate = errors.New("repository: duplicate record")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired はbefore以前に期限切れとなったセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// CompanyRepository は企業データの永続化インターフェース。
type CompanyRepository interface {
	// FindByID は指定IDの企業を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Company, error)
	// ListIDsByOwner は指定ユーザーが所有する企業のID一覧を返す。
	ListIDsByOwner(ctx context.Context, ownerID string) ([]int64, error)
}

// PostingRepository は求人データの永続化インターフェース。
// 審査状態のカラムは本体と同じ文で書き込む。
type PostingRepository interface {
	// FindByID は指定IDの求人を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Posting, error)

	// Create は審査状態を含む求人を1つのINSERTで作成し、ID・作成日時を設定する。
	Create(ctx context.Context, posting *model.Posting) error

	// Update は求人の内容と審査状態を1つのUPDATEで更新する。
	Update(ctx context.Context, posting *model.Posting) error

	// UpdateModeration は審査状態のみを更新する。対象が存在しない場合はfalseを返す。
	UpdateModeration(ctx context.Context, id int64, m model.Moderation) (bool, error)

	// ListRecentByCompany は企業のsince以降に作成された求人を作成日時の降順で返す。
	ListRecentByCompany(ctx context.Context, companyID int64, since time.Time) ([]*model.Posting, error)

	// CountApprovedByCreator は作成者の承認済み求人数を返す。
	CountApprovedByCreator(ctx context.Context, userID string) (int, error)

	// ListPending は審査待ちの求人を古い順にlimit件まで返す。
	ListPending(ctx context.Context, limit int) ([]*model.Posting, error)
}

// ApplicationRepository は応募データの永続化インターフェース。
type ApplicationRepository interface {
	// FindByIDWithJob は応募を求人の企業情報付きで取得する。見つからない場合はnilを返す。
	FindByIDWithJob(ctx context.Context, id int64) (*ApplicationWithJob, error)

	// Create は応募を作成する。同一求人・同一応募者の応募が既にある場合はErrDuplicateを返す。
	Create(ctx context.Context, application *model.Application) error

	// UpdateStatus は応募状態と状態変更日時を1つのUPDATEで更新する。
	UpdateStatus(ctx context.Context, id int64, status model.ApplicationStatus, changedAt time.Time) error
}

// EventRepository はドメインイベントの永続化インターフェース。
type EventRepository interface {
	// Create はイベントを記録する。
	Create(ctx context.Context, event *model.Event) error
	// DeleteOlderThan はbeforeより前のイベントを削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// ApplicationWithJob は応募と、応募先求人の企業・タイトルを結合した構造体。
type ApplicationWithJob struct {
	model.Application
	CompanyID int64
	JobTitle  string
}
