package access

import (
	"errors"
	"testing"

	"github.com/hitoshi/jobgate/internal/model"
)

var (
	anonymous   = model.Actor{RemoteAddr: "203.0.113.5"}
	seeker      = model.Actor{UserID: "s1", Role: model.RoleSeeker}
	moderator   = model.Actor{UserID: "m1", Role: model.RoleModerator}
	employer    = model.Actor{UserID: "e1", Role: model.RoleEmployer, CompanyIDs: []int64{10}}
	noCompanyEm = model.Actor{UserID: "e2", Role: model.RoleEmployer}
)

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name     string
		actor    model.Actor
		action   Action
		resource Resource
		want     Decision
	}{
		{"anonymous create-job", anonymous, ActionCreateJob, Resource{}, Decision{Reason: ReasonAuthRequired}},
		{"anonymous apply", anonymous, ActionApply, Resource{}, Decision{Reason: ReasonAuthRequired}},
		{"seeker create-job", seeker, ActionCreateJob, Resource{}, Decision{Reason: ReasonRoleMismatch}},
		{"employer with company create-job", employer, ActionCreateJob, Resource{}, Decision{Allow: true}},
		{"employer without company create-job", noCompanyEm, ActionCreateJob, Resource{}, Decision{Reason: ReasonNoCompany}},
		{"post as own company", employer, ActionPostAsCompany, CompanyResource(10), Decision{Allow: true}},
		{"post as other company", employer, ActionPostAsCompany, CompanyResource(11), Decision{Reason: ReasonNotOwner}},
		{"edit own job", employer, ActionEditJob, CompanyResource(10), Decision{Allow: true}},
		{"edit other job", employer, ActionEditJob, CompanyResource(99), Decision{Reason: ReasonNotOwner}},
		{"edit job without company id", employer, ActionEditJob, Resource{}, Decision{Reason: ReasonNotOwner}},
		{"view inbox", employer, ActionViewInbox, Resource{}, Decision{Allow: true}},
		{"view inbox without company", noCompanyEm, ActionViewInbox, Resource{}, Decision{Reason: ReasonNoCompany}},
		{"manage own application", employer, ActionManageApplication, CompanyResource(10), Decision{Allow: true}},
		{"manage other application", employer, ActionManageApplication, CompanyResource(20), Decision{Reason: ReasonNotOwner}},
		// 所有判定は企業の有無より先に評価される
		{"manage without any company", noCompanyEm, ActionManageApplication, CompanyResource(10), Decision{Reason: ReasonNotOwner}},
		{"seeker manage application", seeker, ActionManageApplication, CompanyResource(10), Decision{Reason: ReasonRoleMismatch}},
		{"seeker apply", seeker, ActionApply, Resource{}, Decision{Allow: true}},
		{"employer apply", employer, ActionApply, Resource{}, Decision{Reason: ReasonRoleMismatch}},
		{"moderator moderate", moderator, ActionModerate, Resource{}, Decision{Allow: true}},
		{"employer moderate", employer, ActionModerate, Resource{}, Decision{Reason: ReasonRoleMismatch}},
		{"unknown action", employer, Action("delete-everything"), Resource{}, Decision{Reason: ReasonRoleMismatch}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Authorize(tt.actor, tt.action, tt.resource)
			if got != tt.want {
				t.Errorf("Authorize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAuthorize_IsPure(t *testing.T) {
	actor := model.Actor{UserID: "e1", Role: model.RoleEmployer, CompanyIDs: []int64{10}}
	for i := 0; i < 3; i++ {
		if d := Authorize(actor, ActionEditJob, CompanyResource(10)); !d.Allow {
			t.Fatalf("call %d: expected allow", i)
		}
	}
	if len(actor.CompanyIDs) != 1 || actor.CompanyIDs[0] != 10 {
		t.Error("Authorize must not modify the actor")
	}
}

func TestCheck_ReturnsDecisionError(t *testing.T) {
	if err := Check(employer, ActionCreateJob, Resource{}); err != nil {
		t.Fatalf("Check() = %v, want nil", err)
	}

	err := Check(noCompanyEm, ActionCreateJob, Resource{})
	var de *DecisionError
	if !errors.As(err, &de) {
		t.Fatalf("Check() = %v, want *DecisionError", err)
	}
	if de.Reason != ReasonNoCompany || de.Action != ActionCreateJob {
		t.Errorf("DecisionError = %+v", de)
	}
	if de.Unauthenticated() {
		t.Error("NO_COMPANY should not be reported as unauthenticated")
	}
}

func TestDecisionError_APIError(t *testing.T) {
	tests := []struct {
		reason Reason
		code   string
	}{
		{ReasonAuthRequired, model.ErrCodeAuthRequired},
		{ReasonRoleMismatch, model.ErrCodeRoleMismatch},
		{ReasonNotOwner, model.ErrCodeNotOwner},
		{ReasonNoCompany, model.ErrCodeNoCompany},
	}
	for _, tt := range tests {
		e := &DecisionError{Reason: tt.reason}
		if got := e.APIError().Code; got != tt.code {
			t.Errorf("APIError().Code for %s = %q, want %q", tt.reason, got, tt.code)
		}
	}
	if !(&DecisionError{Reason: ReasonAuthRequired}).Unauthenticated() {
		t.Error("AUTH_REQUIRED should be unauthenticated")
	}
}
