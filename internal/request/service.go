package request

import (
	"context"
	"fmt"
	"strings"
	"time"

	"accessdesk.org/internal/auth"
	"accessdesk.org/internal/catalog"
	"accessdesk.org/internal/ids"
	"accessdesk.org/internal/rbac"
	"accessdesk.org/internal/risk"
)

// Service drives the access-request lifecycle. It is the only writer of
// lifecycle state; the transport layer supplies the verified actor and
// translates the typed errors.
type Service struct {
	repo     Repository
	catalog  *catalog.Catalog
	assessor risk.Assessor
	now      func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithAssessor wires the advisory risk oracle.
func WithAssessor(a risk.Assessor) Option {
	return func(s *Service) { s.assessor = a }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the lifecycle service.
func NewService(repo Repository, cat *catalog.Catalog, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		catalog: cat,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput is the requester-supplied payload.
type CreateInput struct {
	ApplicationName string
	Justification   string
}

// Create opens a new request in PENDING. The required approval set is
// resolved from the catalog once, here, and never mutated afterwards.
func (s *Service) Create(ctx context.Context, in CreateInput, actor auth.Actor) (AccessRequest, error) {
	if err := rbac.Check(actor.Role, rbac.PermRequestCreate); err != nil {
		return AccessRequest{}, err
	}
	name := strings.TrimSpace(in.ApplicationName)
	if name == "" {
		return AccessRequest{}, fmt.Errorf("%w: application_name is required", ErrInvalidInput)
	}
	justification := strings.TrimSpace(in.Justification)
	if justification == "" {
		return AccessRequest{}, fmt.Errorf("%w: justification is required", ErrInvalidInput)
	}

	req := AccessRequest{
		ID:                ids.New(),
		ApplicationName:   name,
		Justification:     justification,
		Status:            StatusPending,
		RequiredApprovals: s.catalog.RequiredApprovals(name),
		CreatedBy:         actor.SubjectID,
		CreatedByEmail:    actor.Email,
		CreatedAt:         s.now().UTC(),
	}
	return s.repo.Save(ctx, req)
}

// DecisionInput carries the requested outcome of a decision call.
type DecisionInput struct {
	Outcome Outcome
	Note    string
}

// Decide advances or finalizes the request.
//
// Terminal requests never transition again. DENY finalizes immediately for
// any decider holding the decide permission. ADMIN APPROVE overrides the
// required-approvals coverage check. Any other APPROVE appends the actor
// role's sign-off exactly once and finalizes when every required role is
// covered; the last approver becomes the decision of record.
func (s *Service) Decide(ctx context.Context, id string, in DecisionInput, actor auth.Actor) (AccessRequest, error) {
	if err := rbac.Check(actor.Role, rbac.PermRequestDecide); err != nil {
		return AccessRequest{}, err
	}
	outcome, err := ParseOutcome(string(in.Outcome))
	if err != nil {
		return AccessRequest{}, err
	}
	in.Outcome = outcome

	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return AccessRequest{}, err
	}
	if req.Status.Terminal() {
		return AccessRequest{}, fmt.Errorf("%w: request %s is already %s", ErrConflict, req.ID, req.Status)
	}

	now := s.now().UTC()
	switch in.Outcome {
	case OutcomeDeny:
		// Denial by any authorized decider is final and unconditional.
		req.Status = StatusDenied
		req.Decision = &Decision{By: actor.SubjectID, ByEmail: actor.Email, At: now, Note: in.Note}

	case OutcomeApprove:
		if actor.Role == rbac.RoleAdmin {
			// Override: force-approve without touching the approvals list.
			req.Status = StatusApproved
			req.Decision = &Decision{By: actor.SubjectID, ByEmail: actor.Email, At: now, Note: in.Note}
			break
		}
		if !req.RequiresRole(actor.Role) {
			return AccessRequest{}, fmt.Errorf("%w: role %s is not in the required approval set %v",
				rbac.ErrForbidden, actor.Role, req.RequiredApprovals)
		}
		if req.HasApprovalFrom(actor.Role) {
			return AccessRequest{}, fmt.Errorf("%w: role %s has already approved request %s",
				ErrConflict, actor.Role, req.ID)
		}
		req.Approvals = append(req.Approvals, Approval{
			Role:            actor.Role,
			ApprovedBy:      actor.SubjectID,
			ApprovedByEmail: actor.Email,
			ApprovedAt:      now,
		})
		if req.Covered() {
			req.Status = StatusApproved
			req.Decision = &Decision{By: actor.SubjectID, ByEmail: actor.Email, At: now, Note: in.Note}
		} else {
			req.Status = StatusPartiallyApproved
		}
	}

	return s.repo.Update(ctx, req)
}

// GetByUser lists requests created by userID. VIEW_ALL holders may query
// anyone; everyone else only their own.
func (s *Service) GetByUser(ctx context.Context, userID string, actor auth.Actor) ([]AccessRequest, error) {
	if !rbac.Allowed(actor.Role, rbac.PermRequestViewAll) {
		if err := rbac.Check(actor.Role, rbac.PermRequestViewOwn); err != nil {
			return nil, err
		}
		if userID != actor.SubjectID {
			return nil, fmt.Errorf("%w: role %s may only query its own requests (permission %s)",
				rbac.ErrForbidden, actor.Role, rbac.PermRequestViewAll)
		}
	}
	return s.repo.FindByUser(ctx, userID)
}

// GetByID fetches a single request. VIEW_ALL holders may fetch any;
// everyone else only requests they created.
func (s *Service) GetByID(ctx context.Context, id string, actor auth.Actor) (AccessRequest, error) {
	req, err := s.fetchVisible(ctx, id, actor)
	if err != nil {
		return AccessRequest{}, err
	}
	return req, nil
}

// GetByStatus lists requests in the given state.
func (s *Service) GetByStatus(ctx context.Context, status Status, actor auth.Actor) ([]AccessRequest, error) {
	if err := rbac.Check(actor.Role, rbac.PermRequestViewByStatus); err != nil {
		return nil, err
	}
	parsed, err := ParseStatus(string(status))
	if err != nil {
		return nil, err
	}
	return s.repo.FindByStatus(ctx, parsed)
}

// GetAll lists every request.
func (s *Service) GetAll(ctx context.Context, actor auth.Actor) ([]AccessRequest, error) {
	if err := rbac.Check(actor.Role, rbac.PermRequestViewAll); err != nil {
		return nil, err
	}
	return s.repo.FindAll(ctx)
}

// AssessRisk runs the advisory oracle against the request and persists the
// result best-effort. The assessment never reads or mutates lifecycle
// state, and a persistence failure never surfaces as an operation failure.
func (s *Service) AssessRisk(ctx context.Context, id string, actor auth.Actor) (risk.Assessment, error) {
	req, err := s.fetchVisible(ctx, id, actor)
	if err != nil {
		return risk.Assessment{}, err
	}
	if s.assessor == nil {
		return risk.Assessment{}, risk.ErrUnavailable
	}
	assessment, err := s.assessor.Assess(ctx, risk.Input{
		ApplicationName:   req.ApplicationName,
		Justification:     req.Justification,
		RequiredApprovals: len(req.RequiredApprovals),
		KnownApplication:  s.catalog.Known(req.ApplicationName),
	})
	if err != nil {
		return risk.Assessment{}, fmt.Errorf("%w: %v", risk.ErrUnavailable, err)
	}
	// Best-effort advisory write.
	_ = s.repo.SaveAssessment(ctx, req.ID, assessment)
	return assessment, nil
}

func (s *Service) fetchVisible(ctx context.Context, id string, actor auth.Actor) (AccessRequest, error) {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return AccessRequest{}, err
	}
	if rbac.Allowed(actor.Role, rbac.PermRequestViewAll) {
		return req, nil
	}
	if err := rbac.Check(actor.Role, rbac.PermRequestViewOwn); err != nil {
		return AccessRequest{}, err
	}
	if req.CreatedBy != actor.SubjectID {
		return AccessRequest{}, fmt.Errorf("%w: role %s may only view its own requests (permission %s)",
			rbac.ErrForbidden, actor.Role, rbac.PermRequestViewAll)
	}
	return req, nil
}
