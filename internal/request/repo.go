package request

import (
	"context"

	"accessdesk.org/internal/risk"
)

// Repository is the storage contract the lifecycle depends on. Every
// returned entity must be an independent copy: callers never observe
// mutation-by-reference across calls.
//
// Update must provide read-modify-write atomicity per entity id: it fails
// with ErrNotFound if the entity vanished, and with ErrConflict if the
// caller's Version is stale. Without this, two concurrent decisions could
// clobber each other's approvals.
type Repository interface {
	Save(ctx context.Context, req AccessRequest) (AccessRequest, error)
	FindByID(ctx context.Context, id string) (AccessRequest, error)
	FindByUser(ctx context.Context, userID string) ([]AccessRequest, error)
	FindByStatus(ctx context.Context, status Status) ([]AccessRequest, error)
	FindAll(ctx context.Context) ([]AccessRequest, error)
	Update(ctx context.Context, req AccessRequest) (AccessRequest, error)

	// SaveAssessment persists the advisory risk result for the entity. It
	// never touches status, approvals, or decision fields, and is allowed
	// on terminal requests.
	SaveAssessment(ctx context.Context, id string, a risk.Assessment) error
}
