// Package pg implements the request repository on PostgreSQL via the pgx
// stdlib driver. Approvals, decisions, and assessments are stored as jsonb;
// lifecycle writes are guarded by a version column.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"accessdesk.org/internal/rbac"
	"accessdesk.org/internal/request"
	"accessdesk.org/internal/risk"
)

type Store struct {
	db *sql.DB
}

var _ request.Repository = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle. Used by tests and by callers that
// manage the pool themselves.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const requestColumns = `id, application_name, justification, status, required_approvals, approvals,
	created_by, created_by_email, created_at, decision, assessment, version`

func (s *Store) Save(ctx context.Context, req request.AccessRequest) (request.AccessRequest, error) {
	req = req.Clone()
	req.Version = 1

	required, approvals, decision, assessment, err := marshalFields(req)
	if err != nil {
		return request.AccessRequest{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		insert into access_requests(`+requestColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, req.ID, req.ApplicationName, req.Justification, string(req.Status), required, approvals,
		req.CreatedBy, req.CreatedByEmail, req.CreatedAt, decision, assessment, req.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return request.AccessRequest{}, request.ErrConflict
		}
		return request.AccessRequest{}, err
	}
	return req, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (request.AccessRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+requestColumns+` from access_requests where id=$1
	`, id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return request.AccessRequest{}, request.ErrNotFound
	}
	return req, err
}

func (s *Store) FindByUser(ctx context.Context, userID string) ([]request.AccessRequest, error) {
	return s.query(ctx, `
		select `+requestColumns+` from access_requests
		where created_by=$1 order by created_at asc, id asc
	`, userID)
}

func (s *Store) FindByStatus(ctx context.Context, status request.Status) ([]request.AccessRequest, error) {
	return s.query(ctx, `
		select `+requestColumns+` from access_requests
		where status=$1 order by created_at asc, id asc
	`, string(status))
}

func (s *Store) FindAll(ctx context.Context) ([]request.AccessRequest, error) {
	return s.query(ctx, `
		select ` + requestColumns + ` from access_requests
		order by created_at asc, id asc
	`)
}

// Update replaces the stored entity iff the caller holds the current
// version. A zero-row update distinguishes vanished rows from stale ones.
func (s *Store) Update(ctx context.Context, req request.AccessRequest) (request.AccessRequest, error) {
	req = req.Clone()
	required, approvals, decision, assessment, err := marshalFields(req)
	if err != nil {
		return request.AccessRequest{}, err
	}

	res, err := s.db.ExecContext(ctx, `
		update access_requests
		set status=$3, required_approvals=$4, approvals=$5, decision=$6,
		    assessment=coalesce($7, assessment), version=version+1
		where id=$1 and version=$2
	`, req.ID, req.Version, string(req.Status), required, approvals, decision, assessment)
	if err != nil {
		return request.AccessRequest{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return request.AccessRequest{}, err
	}
	if n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`select exists(select 1 from access_requests where id=$1)`, req.ID).Scan(&exists); err != nil {
			return request.AccessRequest{}, err
		}
		if !exists {
			return request.AccessRequest{}, request.ErrNotFound
		}
		return request.AccessRequest{}, request.ErrConflict
	}
	req.Version++
	return req, nil
}

// SaveAssessment writes the advisory result without touching lifecycle
// columns or consuming the version token.
func (s *Store) SaveAssessment(ctx context.Context, id string, a risk.Assessment) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		update access_requests set assessment=$2 where id=$1
	`, id, payload)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return request.ErrNotFound
	}
	return nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]request.AccessRequest, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []request.AccessRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, req)
	}
	return res, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRequest(row scannable) (request.AccessRequest, error) {
	var (
		req        request.AccessRequest
		status     string
		required   []byte
		approvals  []byte
		decision   []byte
		assessment []byte
	)
	err := row.Scan(&req.ID, &req.ApplicationName, &req.Justification, &status, &required, &approvals,
		&req.CreatedBy, &req.CreatedByEmail, &req.CreatedAt, &decision, &assessment, &req.Version)
	if err != nil {
		return request.AccessRequest{}, err
	}
	req.Status = request.Status(status)
	if len(required) > 0 {
		if err := json.Unmarshal(required, &req.RequiredApprovals); err != nil {
			return request.AccessRequest{}, fmt.Errorf("decode required_approvals for %s: %w", req.ID, err)
		}
	}
	if len(approvals) > 0 {
		if err := json.Unmarshal(approvals, &req.Approvals); err != nil {
			return request.AccessRequest{}, fmt.Errorf("decode approvals for %s: %w", req.ID, err)
		}
	}
	if len(decision) > 0 {
		var d request.Decision
		if err := json.Unmarshal(decision, &d); err != nil {
			return request.AccessRequest{}, fmt.Errorf("decode decision for %s: %w", req.ID, err)
		}
		req.Decision = &d
	}
	if len(assessment) > 0 {
		var a risk.Assessment
		if err := json.Unmarshal(assessment, &a); err != nil {
			return request.AccessRequest{}, fmt.Errorf("decode assessment for %s: %w", req.ID, err)
		}
		req.Assessment = &a
	}
	return req, nil
}

func marshalFields(req request.AccessRequest) (required, approvals, decision, assessment []byte, err error) {
	reqRoles := req.RequiredApprovals
	if reqRoles == nil {
		reqRoles = []rbac.Role{}
	}
	if required, err = json.Marshal(reqRoles); err != nil {
		return nil, nil, nil, nil, err
	}
	appr := req.Approvals
	if appr == nil {
		appr = []request.Approval{}
	}
	if approvals, err = json.Marshal(appr); err != nil {
		return nil, nil, nil, nil, err
	}
	if req.Decision != nil {
		if decision, err = json.Marshal(req.Decision); err != nil {
			return nil, nil, nil, nil, err
		}
	}
	if req.Assessment != nil {
		if assessment, err = json.Marshal(req.Assessment); err != nil {
			return nil, nil, nil, nil, err
		}
	}
	return required, approvals, decision, assessment, nil
}

// isUniqueViolation matches the Postgres unique_violation SQLSTATE without
// depending on driver-specific error types.
func isUniqueViolation(err error) bool {
	type sqlState interface {
		SQLState() string
	}
	var st sqlState
	if errors.As(err, &st) {
		return st.SQLState() == "23505"
	}
	return false
}
