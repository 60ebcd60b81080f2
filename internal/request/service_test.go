package request

import (
	"context"
	"errors"
	"testing"
	"time"

	"accessdesk.org/internal/auth"
	"accessdesk.org/internal/catalog"
	"accessdesk.org/internal/rbac"
	"accessdesk.org/internal/risk"
)

var (
	employee = auth.Actor{SubjectID: "u-emp", Email: "emp@corp.example", Name: "Emp", Role: rbac.RoleEmployee}
	manager  = auth.Actor{SubjectID: "u-mgr", Email: "mgr@corp.example", Name: "Mgr", Role: rbac.RoleManager}
	itActor  = auth.Actor{SubjectID: "u-it", Email: "it@corp.example", Name: "It", Role: rbac.RoleIT}
	hrActor  = auth.Actor{SubjectID: "u-hr", Email: "hr@corp.example", Name: "Hr", Role: rbac.RoleHR}
	admin    = auth.Actor{SubjectID: "u-adm", Email: "adm@corp.example", Name: "Adm", Role: rbac.RoleAdmin}
)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	return NewService(NewInMemory(), catalog.Default(), opts...)
}

func mustCreate(t *testing.T, svc *Service, app string, actor auth.Actor) AccessRequest {
	t.Helper()
	req, err := svc.Create(context.Background(), CreateInput{
		ApplicationName: app,
		Justification:   "needed for project work",
	}, actor)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestCreateKnownApplication(t *testing.T) {
	svc := newTestService(t)
	req := mustCreate(t, svc, "GitHub", employee)

	if req.Status != StatusPending {
		t.Fatalf("expected PENDING, got %s", req.Status)
	}
	if len(req.RequiredApprovals) != 1 || req.RequiredApprovals[0] != rbac.RoleIT {
		t.Fatalf("expected [IT], got %v", req.RequiredApprovals)
	}
	if len(req.Approvals) != 0 {
		t.Fatalf("expected no approvals, got %v", req.Approvals)
	}
	if req.CreatedBy != employee.SubjectID || req.CreatedByEmail != employee.Email {
		t.Fatalf("audit fields wrong: %+v", req)
	}
	if req.Decision != nil {
		t.Fatal("decision fields must be unset at creation")
	}
	if req.ID == "" {
		t.Fatal("expected assigned id")
	}
}

func TestCreateUnknownApplicationRoutesToAdmin(t *testing.T) {
	svc := newTestService(t)
	req := mustCreate(t, svc, "Foo123", employee)
	if len(req.RequiredApprovals) != 1 || req.RequiredApprovals[0] != rbac.RoleAdmin {
		t.Fatalf("expected [ADMIN], got %v", req.RequiredApprovals)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Create(context.Background(), CreateInput{ApplicationName: " ", Justification: "x"}, employee); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.Create(context.Background(), CreateInput{ApplicationName: "GitHub"}, employee); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSingleApproverFlow(t *testing.T) {
	svc := newTestService(t)
	req := mustCreate(t, svc, "GitHub", employee)

	got, err := svc.Decide(context.Background(), req.ID, DecisionInput{Outcome: OutcomeApprove}, itActor)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusApproved {
		t.Fatalf("expected APPROVED, got %s", got.Status)
	}
	if len(got.Approvals) != 1 || got.Approvals[0].Role != rbac.RoleIT {
		t.Fatalf("expected one IT approval, got %v", got.Approvals)
	}
	if got.Decision == nil || got.Decision.By != itActor.SubjectID || got.Decision.ByEmail != itActor.Email {
		t.Fatalf("decision-of-record wrong: %+v", got.Decision)
	}
	if got.Decision.At.IsZero() {
		t.Fatal("expected decision timestamp")
	}
}

func TestMultiRoleApprovalFlow(t *testing.T) {
	svc := newTestService(t)
	req := mustCreate(t, svc, "Salesforce", employee) // [MANAGER, IT]

	partial, err := svc.Decide(context.Background(), req.ID, DecisionInput{Outcome: OutcomeApprove}, manager)
	if err != nil {
		t.Fatal(err)
	}
	if partial.Status != StatusPartiallyApproved {
		t.Fatalf("expected PARTIALLY_APPROVED, got %s", partial.Status)
	}
	if len(partial.Approvals) != 1 || partial.Approvals[0].Role != rbac.RoleManager {
		t.Fatalf("expected one MANAGER approval, got %v", partial.Approvals)
	}
	if partial.Decision != nil {
		t.Fatal("decision fields must stay unset on partial approval")
	}

	final, err := svc.Decide(context.Background(), req.ID, DecisionInput{Outcome: OutcomeApprove}, itActor)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != StatusApproved {
		t.Fatalf("expected APPROVED, got %s", final.Status)
	}
	if len(final.Approvals) != 2 {
		t.Fatalf("expected two approvals, got %v", final.Approvals)
	}
	if final.Decision == nil || final.Decision.By != itActor.SubjectID {
		t.Fatalf("last approver must be decision-of-record: %+v", final.Decision)
	}
}

func TestApprovalOrderIsIrrelevant(t *testing.T) {
	svc := newTestService(t)
	req := mustCreate(t, svc, "Salesforce", employee)

	if _, err := svc.Decide(context.Background(), req.ID, DecisionInput{Outcome: OutcomeApprove}, itActor); err != nil {
		t.Fatal(err)
	}
	final, err := svc.Decide(context.Background(), req.ID, DecisionInput{Outcome: OutcomeApprove}, manager)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != StatusApproved {
		t.Fatalf("expected APPROVED regardless of order, got %s", final.Status)
	}
}

func TestDuplicateRoleApprovalConflicts(t *testing.T) {
	svc := newTestService(t)
	req := mustCreate(t, svc, "Salesforce", employee)

	if _, err := svc.Decide(context.Background(), req.ID, DecisionInput{Outcome: OutcomeApprove}, manager); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Decide(context.Background(), req.ID, DecisionInput{Outcome: OutcomeApprove}, manager)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, err := svc.GetByID(context.Background(), req.ID, admin)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Approvals) != 1 {
		t.Fatalf("duplicate approval must not be recorded: %v", got.Approvals)
	}
}

func TestAdminOverride(t *testing.T) {
	svc := newTestService(t)
	req := mustCreate(t, svc, "Salesforce", employee)

	got, err := svc.Decide(context.Background(), req.ID, DecisionInput{Outcome: OutcomeApprove, Note: "expedited"}, admin)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusApproved {
		t.Fatalf("expected APPROVED, got %s", got.Status)
	}
	if len(got.Approvals) != 0 {
		t.Fatalf("override must not append approvals: %v", got.Approvals)
	}
	if got.Decision == nil || got.Decision.By != admin.SubjectID || got.Decision.Note != "expedited" {
		t.Fatalf("decision fields wrong: %+v", got.Decision)
	}
}

func TestDenyIsFinalAndUnconditional(t *testing.T) {
	svc := newTestService(t)

	// DENY on PENDING, by a decider outside the required set.
	req := mustCreate(t, svc, "GitHub", employee) // [IT]
	got, err := svc.Decide(context.Background(), req.ID, DecisionInput{Outcome: OutcomeDeny, Note: "no need"}, manager)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusDenied {
		t.Fatalf("expected DENIED, got %s", got.Status)
	}
	if got.Decision == nil || got.Decision.By != manager.SubjectID || got.Decision.Note != "no need" {
		t.Fatalf("decision fields wrong: %+v", got.Decision)
	}

	// DENY on PARTIALLY_APPROVED.
	req2 := mustCreate(t, svc, "Salesforce", employee)
	if _, err := svc.Decide(context.Background(), req2.ID, DecisionInput{Outcome: OutcomeApprove}, manager); err != nil {
		t.Fatal(err)
	}
	got2, err := svc.Decide(context.Background(), req2.ID, DecisionInput{Outcome: OutcomeDeny}, itActor)
	if err != nil {
		t.Fatal(err)
	}
	if got2.Status != StatusDenied {
		t.Fatalf("expected DENIED, got %s", got2.Status)
	}
}

func TestDecideNormalizesOutcomeCase(t *testing.T) {
	svc := newTestService(t)

	denied := mustCreate(t, svc, "GitHub", employee) // [IT]
	got, err := svc.Decide(context.Background(), denied.ID, DecisionInput{Outcome: "deny"}, itActor)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusDenied {
		t.Fatalf("lowercase deny must finalize, got %s", got.Status)
	}
	if got.Decision == nil || got.Decision.By != itActor.SubjectID {
		t.Fatalf("decision fields wrong: %+v", got.Decision)
	}

	approved := mustCreate(t, svc, "GitHub", employee)
	got2, err := svc.Decide(context.Background(), approved.ID, DecisionInput{Outcome: " Approve "}, itActor)
	if err != nil {
		t.Fatal(err)
	}
	if got2.Status != StatusApproved || len(got2.Approvals) != 1 {
		t.Fatalf("mixed-case approve must finalize, got %s with %v", got2.Status, got2.Approvals)
	}
}

func TestTerminalRequestsNeverTransition(t *testing.T) {
	svc := newTestService(t)

	approved := mustCreate(t, svc, "GitHub", employee)
	if _, err := svc.Decide(context.Background(), approved.ID, DecisionInput{Outcome: OutcomeApprove}, itActor); err != nil {
		t.Fatal(err)
	}
	denied := mustCreate(t, svc, "GitHub", employee)
	if _, err := svc.Decide(context.Background(), denied.ID, DecisionInput{Outcome: OutcomeDeny}, itActor); err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{approved.ID, denied.ID} {
		for _, in := range []DecisionInput{{Outcome: OutcomeApprove}, {Outcome: OutcomeDeny}} {
			if _, err := svc.Decide(context.Background(), id, in, admin); !errors.Is(err, ErrConflict) {
				t.Fatalf("expected ErrConflict out of terminal state, got %v", err)
			}
		}
	}
}

func TestDecidePreconditions(t *testing.T) {
	svc := newTestService(t)
	req := mustCreate(t, svc, "GitHub", employee) // [IT]

	// EMPLOYEE lacks the decide permission entirely.
	if _, err := svc.Decide(context.Background(), req.ID, DecisionInput{Outcome: OutcomeApprove}, employee); !errors.Is(err, rbac.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	// HR holds decide but is outside the required set for APPROVE.
	if _, err := svc.Decide(context.Background(), req.ID, DecisionInput{Outcome: OutcomeApprove}, hrActor); !errors.Is(err, rbac.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	// Unknown outcome.
	if _, err := svc.Decide(context.Background(), req.ID, DecisionInput{Outcome: "ESCALATE"}, itActor); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	// Missing request.
	if _, err := svc.Decide(context.Background(), "missing", DecisionInput{Outcome: OutcomeApprove}, itActor); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRequiredApprovalsNeverChange(t *testing.T) {
	svc := newTestService(t)
	req := mustCreate(t, svc, "Salesforce", employee)
	want := []rbac.Role{rbac.RoleManager, rbac.RoleIT}

	if _, err := svc.Decide(context.Background(), req.ID, DecisionInput{Outcome: OutcomeApprove}, manager); err != nil {
		t.Fatal(err)
	}
	got, err := svc.GetByID(context.Background(), req.ID, admin)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.RequiredApprovals) != len(want) {
		t.Fatalf("required approvals changed: %v", got.RequiredApprovals)
	}
	for i, role := range want {
		if got.RequiredApprovals[i] != role {
			t.Fatalf("required approvals changed: %v", got.RequiredApprovals)
		}
	}
}

func TestVisibilityByUser(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "GitHub", employee)
	mustCreate(t, svc, "Jira", manager)

	// Own listing succeeds.
	mine, err := svc.GetByUser(context.Background(), employee.SubjectID, employee)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 {
		t.Fatalf("expected 1 own request, got %d", len(mine))
	}

	// Another user's listing is forbidden without VIEW_ALL.
	if _, err := svc.GetByUser(context.Background(), manager.SubjectID, employee); !errors.Is(err, rbac.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	// ADMIN may query anyone.
	theirs, err := svc.GetByUser(context.Background(), manager.SubjectID, admin)
	if err != nil {
		t.Fatal(err)
	}
	if len(theirs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(theirs))
	}
}

func TestVisibilityByID(t *testing.T) {
	svc := newTestService(t)
	req := mustCreate(t, svc, "GitHub", employee)

	if _, err := svc.GetByID(context.Background(), req.ID, employee); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetByID(context.Background(), req.ID, manager); !errors.Is(err, rbac.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-owner, got %v", err)
	}
	if _, err := svc.GetByID(context.Background(), req.ID, admin); err != nil {
		t.Fatal(err)
	}
}

func TestListByStatusAndAll(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "GitHub", employee)

	if _, err := svc.GetByStatus(context.Background(), StatusPending, employee); !errors.Is(err, rbac.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	pending, err := svc.GetByStatus(context.Background(), StatusPending, itActor)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending, got %d", len(pending))
	}
	if _, err := svc.GetByStatus(context.Background(), "BOGUS", itActor); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	if _, err := svc.GetAll(context.Background(), itActor); !errors.Is(err, rbac.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-admin GetAll, got %v", err)
	}
	all, err := svc.GetAll(context.Background(), admin)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 request, got %d", len(all))
	}
}

func TestAssessRiskPersistsAdvisoryResult(t *testing.T) {
	svc := newTestService(t, WithAssessor(risk.NewHeuristic()))
	req := mustCreate(t, svc, "GitHub", employee)

	a, err := svc.AssessRisk(context.Background(), req.ID, employee)
	if err != nil {
		t.Fatal(err)
	}
	if a.Score < 0 || a.Score > 100 {
		t.Fatalf("score out of range: %d", a.Score)
	}

	got, err := svc.GetByID(context.Background(), req.ID, employee)
	if err != nil {
		t.Fatal(err)
	}
	if got.Assessment == nil || got.Assessment.Score != a.Score {
		t.Fatalf("expected persisted assessment, got %+v", got.Assessment)
	}
	if got.Status != StatusPending || got.Decision != nil || len(got.Approvals) != 0 {
		t.Fatalf("assessment mutated lifecycle state: %+v", got)
	}

	// Lifecycle still proceeds normally afterwards.
	if _, err := svc.Decide(context.Background(), req.ID, DecisionInput{Outcome: OutcomeApprove}, itActor); err != nil {
		t.Fatalf("decision after assessment failed: %v", err)
	}
}

func TestAssessRiskVisibility(t *testing.T) {
	svc := newTestService(t, WithAssessor(risk.NewHeuristic()))
	req := mustCreate(t, svc, "GitHub", employee)

	if _, err := svc.AssessRisk(context.Background(), req.ID, manager); !errors.Is(err, rbac.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAssessRiskWithoutAssessor(t *testing.T) {
	svc := newTestService(t)
	req := mustCreate(t, svc, "GitHub", employee)

	if _, err := svc.AssessRisk(context.Background(), req.ID, employee); !errors.Is(err, risk.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

type failingAssessor struct{}

func (failingAssessor) Assess(ctx context.Context, in risk.Input) (risk.Assessment, error) {
	return risk.Assessment{}, errors.New("model offline")
}

func TestAssessRiskOracleFailureNeverBlocksDecisions(t *testing.T) {
	svc := newTestService(t, WithAssessor(failingAssessor{}))
	req := mustCreate(t, svc, "GitHub", employee)

	if _, err := svc.AssessRisk(context.Background(), req.ID, employee); !errors.Is(err, risk.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := svc.Decide(context.Background(), req.ID, DecisionInput{Outcome: OutcomeApprove}, itActor); err != nil {
		t.Fatalf("decision must succeed despite oracle failure: %v", err)
	}
}

func TestClockInjection(t *testing.T) {
	fixed := time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, WithClock(func() time.Time { return fixed }))
	req := mustCreate(t, svc, "GitHub", employee)
	if !req.CreatedAt.Equal(fixed) {
		t.Fatalf("expected injected clock, got %v", req.CreatedAt)
	}
	got, err := svc.Decide(context.Background(), req.ID, DecisionInput{Outcome: OutcomeApprove}, itActor)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Decision.At.Equal(fixed) || !got.Approvals[0].ApprovedAt.Equal(fixed) {
		t.Fatalf("expected injected clock on decision fields: %+v", got)
	}
}
