package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/learngate/apiserver/types"
)

// ApprovalRepository handles persistence for approval requests.
type ApprovalRepository struct {
	db *sql.DB
}

func NewApprovalRepository(db *sql.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// ApprovalFilter narrows List results. Zero values mean "no filter".
type ApprovalFilter struct {
	ApprovalType string
	Status       string
	UserID       int
	Offset       int
	Limit        int
}

// RoleChange carries the user-record mutation applied atomically with an
// approving decision.
type RoleChange struct {
	UserID             int
	Role               string
	AdminType          string
	IsSuperAdmin       bool
	IsVerified         bool
	VerificationStatus string
}

const approvalColumns = `a.id, a.user_id, u.username, a.approval_type, a.current_role,
		a.requested_role, a.requested_admin_type, a.institution, a.reason,
		a.additional_info, a.status, a.priority, a.notes, a.reviewed_by,
		a.created_at, a.reviewed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApproval(row rowScanner) (types.ApprovalRequest, error) {
	var req types.ApprovalRequest
	var reviewedBy sql.NullInt64
	var reviewedAt sql.NullTime
	err := row.Scan(
		&req.ID,
		&req.UserID,
		&req.Username,
		&req.ApprovalType,
		&req.CurrentRole,
		&req.RequestedRole,
		&req.RequestedAdminType,
		&req.Institution,
		&req.Reason,
		&req.AdditionalInfo,
		&req.Status,
		&req.Priority,
		&req.Notes,
		&reviewedBy,
		&req.CreatedAt,
		&reviewedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ApprovalRequest{}, ErrNotFound
		}
		return types.ApprovalRequest{}, err
	}
	if reviewedBy.Valid {
		req.ReviewedBy = int(reviewedBy.Int64)
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		req.ReviewedAt = &t
	}
	return req, nil
}

func (r *ApprovalRepository) Create(ctx context.Context, req types.ApprovalRequest) (types.ApprovalRequest, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.CreatedAt = time.Now()

	const query = `
		INSERT INTO approval_requests (id, user_id, approval_type, current_role,
			requested_role, requested_admin_type, institution, reason,
			additional_info, status, priority, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		req.ID,
		req.UserID,
		req.ApprovalType,
		req.CurrentRole,
		req.RequestedRole,
		req.RequestedAdminType,
		req.Institution,
		req.Reason,
		req.AdditionalInfo,
		req.Status,
		req.Priority,
		req.Notes,
		req.CreatedAt,
	)
	if err != nil {
		return types.ApprovalRequest{}, err
	}
	return req, nil
}

func (r *ApprovalRepository) Get(ctx context.Context, id string) (types.ApprovalRequest, error) {
	const query = `
		SELECT ` + approvalColumns + `
		FROM approval_requests a
		JOIN users u ON u.id = a.user_id
		WHERE a.id = $1`
	return scanApproval(r.db.QueryRowContext(ctx, query, id))
}

func (r *ApprovalRepository) List(ctx context.Context, filter ApprovalFilter) ([]types.ApprovalRequest, int, error) {
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}

	where := " WHERE 1=1"
	args := []any{}
	if filter.ApprovalType != "" {
		args = append(args, filter.ApprovalType)
		where += " AND a.approval_type = $" + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += " AND a.status = $" + strconv.Itoa(len(args))
	}
	if filter.UserID != 0 {
		args = append(args, filter.UserID)
		where += " AND a.user_id = $" + strconv.Itoa(len(args))
	}

	countQuery := `SELECT COUNT(1) FROM approval_requests a` + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Offset)
	offsetArg := strconv.Itoa(len(args))
	args = append(args, filter.Limit)
	limitArg := strconv.Itoa(len(args))

	listQuery := `
		SELECT ` + approvalColumns + `
		FROM approval_requests a
		JOIN users u ON u.id = a.user_id` + where + `
		ORDER BY a.created_at DESC
		OFFSET $` + offsetArg + ` LIMIT $` + limitArg
	rows, err := r.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	requests := make([]types.ApprovalRequest, 0, filter.Limit)
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, 0, err
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

// Decide moves a pending request to a terminal status and, when change is
// non-nil, applies the role mutation to the target user in the same
// transaction. The UPDATE carries a status = 'pending' precondition so a
// second decision on the same request loses deterministically with
// ErrNotPending.
func (r *ApprovalRepository) Decide(ctx context.Context, id, status, notes string, reviewedBy int, change *RoleChange) (types.ApprovalRequest, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.ApprovalRequest{}, err
	}
	defer tx.Rollback()

	reviewedAt := time.Now()
	const update = `
		UPDATE approval_requests
		SET status = $2, notes = $3, reviewed_by = $4, reviewed_at = $5
		WHERE id = $1 AND status = 'pending'`
	result, err := tx.ExecContext(ctx, update, id, status, notes, reviewedBy, reviewedAt)
	if err != nil {
		return types.ApprovalRequest{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.ApprovalRequest{}, err
	}
	if affected == 0 {
		return types.ApprovalRequest{}, r.classifyMiss(ctx, id)
	}

	if change != nil {
		const userUpdate = `
			UPDATE users
			SET role = $2,
				admin_type = $3,
				is_super_admin = $4,
				is_verified = $5,
				verification_status = $6,
				updated_at = $7
			WHERE id = $1`
		if _, err := tx.ExecContext(ctx, userUpdate,
			change.UserID,
			change.Role,
			change.AdminType,
			change.IsSuperAdmin,
			change.IsVerified,
			change.VerificationStatus,
			reviewedAt,
		); err != nil {
			return types.ApprovalRequest{}, err
		}
	}

	const fetch = `
		SELECT ` + approvalColumns + `
		FROM approval_requests a
		JOIN users u ON u.id = a.user_id
		WHERE a.id = $1`
	req, err := scanApproval(tx.QueryRowContext(ctx, fetch, id))
	if err != nil {
		return types.ApprovalRequest{}, err
	}

	if err := tx.Commit(); err != nil {
		return types.ApprovalRequest{}, err
	}
	return req, nil
}

// Cancel moves a pending request to cancelled, with the same status
// precondition as Decide. Ownership is checked by the caller.
func (r *ApprovalRepository) Cancel(ctx context.Context, id string) (types.ApprovalRequest, error) {
	const update = `
		UPDATE approval_requests
		SET status = 'cancelled', reviewed_at = $2
		WHERE id = $1 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, update, id, time.Now())
	if err != nil {
		return types.ApprovalRequest{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.ApprovalRequest{}, err
	}
	if affected == 0 {
		return types.ApprovalRequest{}, r.classifyMiss(ctx, id)
	}
	return r.Get(ctx, id)
}

// classifyMiss distinguishes a missing request from one that already
// reached a terminal status.
func (r *ApprovalRepository) classifyMiss(ctx context.Context, id string) error {
	const query = `SELECT status FROM approval_requests WHERE id = $1`
	var status string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrNotPending
}
