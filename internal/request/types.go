// Package request implements the access-request lifecycle: the entity, the
// repository contract, the approval state machine, and the read-path
// visibility rules.
package request

import (
	"fmt"
	"strings"
	"time"

	"accessdesk.org/internal/rbac"
	"accessdesk.org/internal/risk"
)

// Status is the lifecycle state of an access request.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusPartiallyApproved Status = "PARTIALLY_APPROVED"
	StatusApproved          Status = "APPROVED"
	StatusDenied            Status = "DENIED"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusDenied
}

// ParseStatus normalizes and validates a status name.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case StatusPending, StatusPartiallyApproved, StatusApproved, StatusDenied:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, raw)
}

// Outcome is the requested result of a decision call.
type Outcome string

const (
	OutcomeApprove Outcome = "APPROVE"
	OutcomeDeny    Outcome = "DENY"
)

// ParseOutcome normalizes and validates a decision outcome.
func ParseOutcome(raw string) (Outcome, error) {
	o := Outcome(strings.ToUpper(strings.TrimSpace(raw)))
	switch o {
	case OutcomeApprove, OutcomeDeny:
		return o, nil
	}
	return "", fmt.Errorf("%w: unknown outcome %q", ErrInvalidInput, raw)
}

// Approval records a single role's sign-off. A role approves at most once.
type Approval struct {
	Role            rbac.Role `json:"role"`
	ApprovedBy      string    `json:"approved_by"`
	ApprovedByEmail string    `json:"approved_by_email"`
	ApprovedAt      time.Time `json:"approved_at"`
}

// Decision holds the fields stamped when a request reaches a terminal
// state. It stays nil on PENDING and PARTIALLY_APPROVED requests so
// non-terminal states cannot carry decision data.
type Decision struct {
	By      string    `json:"decision_by"`
	ByEmail string    `json:"decision_by_email"`
	At      time.Time `json:"decision_at"`
	Note    string    `json:"decision_note,omitempty"`
}

// AccessRequest is the central entity. Once Status is terminal the entity is
// immutable except for the advisory Assessment field.
type AccessRequest struct {
	ID                string           `json:"id"`
	ApplicationName   string           `json:"application_name"`
	Justification     string           `json:"justification"`
	Status            Status           `json:"status"`
	RequiredApprovals []rbac.Role      `json:"required_approvals"`
	Approvals         []Approval       `json:"approvals"`
	CreatedBy         string           `json:"created_by"`
	CreatedByEmail    string           `json:"created_by_email"`
	CreatedAt         time.Time        `json:"created_at"`
	Decision          *Decision        `json:"decision,omitempty"`
	Assessment        *risk.Assessment `json:"ai_assessment,omitempty"`

	// Version is the optimistic-concurrency token checked by Update.
	Version int64 `json:"version"`
}

// Clone returns an independent deep copy.
func (r AccessRequest) Clone() AccessRequest {
	out := r
	if r.RequiredApprovals != nil {
		out.RequiredApprovals = make([]rbac.Role, len(r.RequiredApprovals))
		copy(out.RequiredApprovals, r.RequiredApprovals)
	}
	if r.Approvals != nil {
		out.Approvals = make([]Approval, len(r.Approvals))
		copy(out.Approvals, r.Approvals)
	}
	if r.Decision != nil {
		d := *r.Decision
		out.Decision = &d
	}
	if r.Assessment != nil {
		a := *r.Assessment
		if r.Assessment.Metrics != nil {
			a.Metrics = make(map[string]float64, len(r.Assessment.Metrics))
			for k, v := range r.Assessment.Metrics {
				a.Metrics[k] = v
			}
		}
		out.Assessment = &a
	}
	return out
}

// RequiresRole reports whether the role is part of the required approval set.
func (r AccessRequest) RequiresRole(role rbac.Role) bool {
	for _, required := range r.RequiredApprovals {
		if required == role {
			return true
		}
	}
	return false
}

// HasApprovalFrom reports whether the role has already signed off.
func (r AccessRequest) HasApprovalFrom(role rbac.Role) bool {
	for _, a := range r.Approvals {
		if a.Role == role {
			return true
		}
	}
	return false
}

// Covered reports whether every required role has a matching approval.
// Order among required roles is irrelevant; only coverage matters.
func (r AccessRequest) Covered() bool {
	for _, required := range r.RequiredApprovals {
		if !r.HasApprovalFrom(required) {
			return false
		}
	}
	return true
}
