// Package access はロールと所有関係に基づく操作の認可判定を提供する。
//
// Authorize は副作用を持たない純粋関数で、判定規則は次の順に評価される。
//  1. 未認証 → AUTH_REQUIRED
//  2. 操作に必要なロールを持たない → ROLE_MISMATCH
//  3. 所有が必要な操作で対象の企業を所有していない → NOT_OWNER
//  4. 企業の所有が必要な操作で企業を1つも所有していない → NO_COMPANY
//  5. 許可
package access

import (
	"fmt"

	"github.com/hitoshi/jobgate/internal/model"
)

// Action は認可対象の操作。
type Action string

const (
	ActionCreateJob         Action = "create-job"
	ActionPostAsCompany     Action = "post-as-company"
	ActionEditJob           Action = "edit-job"
	ActionViewInbox         Action = "view-inbox"
	ActionManageApplication Action = "manage-application"
	ActionApply             Action = "apply"
	ActionModerate          Action = "moderate"
)

// Reason は拒否理由。許可時は空文字。
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonAuthRequired Reason = "AUTH_REQUIRED"
	ReasonRoleMismatch Reason = "ROLE_MISMATCH"
	ReasonNotOwner     Reason = "NOT_OWNER"
	ReasonNoCompany    Reason = "NO_COMPANY"
)

// Resource は操作対象。所有判定に使う企業IDのみを持つ。
// 企業に紐づかない操作ではゼロ値を渡す。
type Resource struct {
	CompanyID int64
}

// CompanyResource は企業IDからResourceを生成する。
func CompanyResource(companyID int64) Resource {
	return Resource{CompanyID: companyID}
}

// Decision は認可判定の結果。
type Decision struct {
	Allow  bool
	Reason Reason
}

type policy struct {
	roles          []model.Role
	needsOwnership bool
	needsCompany   bool
}

// policies は操作ごとの要件。
// 求人の新規作成は「企業あり」の判定と「指定企業の所有」の判定を
// create-job と post-as-company の2段階に分けて呼び出す。
// 応募の状態変更も同様に view-inbox, manage-application の順に呼び出す。
var policies = map[Action]policy{
	ActionCreateJob:         {roles: []model.Role{model.RoleEmployer}, needsCompany: true},
	ActionPostAsCompany:     {roles: []model.Role{model.RoleEmployer}, needsOwnership: true},
	ActionEditJob:           {roles: []model.Role{model.RoleEmployer}, needsOwnership: true},
	ActionViewInbox:         {roles: []model.Role{model.RoleEmployer}, needsCompany: true},
	ActionManageApplication: {roles: []model.Role{model.RoleEmployer}, needsOwnership: true, needsCompany: true},
	ActionApply:             {roles: []model.Role{model.RoleSeeker}},
	ActionModerate:          {roles: []model.Role{model.RoleModerator}},
}

// Authorize はactorがresourceに対してactionを実行できるかを判定する。
// 未知の操作はROLE_MISMATCHとして拒否する。
func Authorize(actor model.Actor, action Action, resource Resource) Decision {
	if !actor.IsAuthenticated() {
		return deny(ReasonAuthRequired)
	}

	p, ok := policies[action]
	if !ok || !hasRole(p.roles, actor.Role) {
		return deny(ReasonRoleMismatch)
	}

	if p.needsOwnership {
		if resource.CompanyID <= 0 || !actor.OwnsCompany(resource.CompanyID) {
			return deny(ReasonNotOwner)
		}
	}

	if p.needsCompany && !actor.HasCompany() {
		return deny(ReasonNoCompany)
	}

	return Decision{Allow: true}
}

// Check はAuthorizeを実行し、拒否された場合はDecisionErrorを返す。
func Check(actor model.Actor, action Action, resource Resource) error {
	d := Authorize(actor, action, resource)
	if d.Allow {
		return nil
	}
	return &DecisionError{Action: action, Reason: d.Reason}
}

func deny(r Reason) Decision {
	return Decision{Allow: false, Reason: r}
}

func hasRole(roles []model.Role, role model.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// DecisionError は認可拒否を表すエラー。
type DecisionError struct {
	Action Action
	Reason Reason
}

// Error はerrorインターフェースを実装する。
func (e *DecisionError) Error() string {
	return fmt.Sprintf("access denied for %s: %s", e.Action, e.Reason)
}

// Unauthenticated は認証が必要な拒否かどうかを返す（HTTP 401相当）。
func (e *DecisionError) Unauthenticated() bool {
	return e.Reason == ReasonAuthRequired
}

// APIError は拒否理由に対応するAPIErrorを返す。
func (e *DecisionError) APIError() *model.APIError {
	switch e.Reason {
	case ReasonAuthRequired:
		return model.NewAuthRequiredError()
	case ReasonNotOwner:
		return model.NewNotOwnerError()
	case ReasonNoCompany:
		return model.NewNoCompanyError()
	default:
		return model.NewRoleMismatchError()
	}
}
