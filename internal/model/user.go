// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの役割を表す。
type Role string

const (
	// RoleSeeker は求職者。
	RoleSeeker Role = "seeker"
	// RoleEmployer は求人を掲載する雇用者。
	RoleEmployer Role = "employer"
	// RoleModerator は求人の審査を行うモデレーター。
	RoleModerator Role = "moderator"
)

// User はサービス利用ユーザーを表す。
type User struct {
	ID        string
	Email     string
	Name      string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Company は求人を掲載する企業を表す。
// 1つの企業は必ず1人のオーナー（雇用者）に属する。
type Company struct {
	ID         int64
	OwnerID    string
	Name       string
	City       string
	IsVerified bool
	CreatedAt  time.Time
}

// Actor はリクエストを実行している主体を表す。
// 未認証の場合はUserIDが空で、RemoteAddrのみが設定される。
type Actor struct {
	UserID     string
	Email      string
	Role       Role
	CompanyIDs []int64
	RemoteAddr string
}

// IsAuthenticated は認証済みの主体かどうかを返す。
func (a Actor) IsAuthenticated() bool {
	return a.UserID != ""
}

// HasCompany は1社以上の企業を所有しているかを返す。
func (a Actor) HasCompany() bool {
	return len(a.CompanyIDs) > 0
}

// OwnsCompany は指定企業のオーナーかどうかを返す。
func (a Actor) OwnsCompany(companyID int64) bool {
	for _, id := range a.CompanyIDs {
		if id == companyID {
			return true
		}
	}
	return false
}
