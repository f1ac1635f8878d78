package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/learngate/apiserver/internal/apperr"
	"github.com/learngate/apiserver/internal/events"
	"github.com/learngate/apiserver/internal/store"
	"github.com/learngate/apiserver/types"
)

// ApprovalRepository defines persistence operations for approval requests.
type ApprovalRepository interface {
	Create(ctx context.Context, req types.ApprovalRequest) (types.ApprovalRequest, error)
	Get(ctx context.Context, id string) (types.ApprovalRequest, error)
	List(ctx context.Context, filter store.ApprovalFilter) ([]types.ApprovalRequest, int, error)
	Decide(ctx context.Context, id, status, notes string, reviewedBy int, change *store.RoleChange) (types.ApprovalRequest, error)
	Cancel(ctx context.Context, id string) (types.ApprovalRequest, error)
}

// ApprovalService is the approval workflow engine: it owns request
// lifecycle, decision authorization, and the user-record side effects of
// an approval. Authorization is re-checked here on every call; the HTTP
// guard is UX, never the security boundary.
type ApprovalService struct {
	approvals ApprovalRepository
	publisher *events.Publisher
}

func NewApprovalService(approvals ApprovalRepository, publisher *events.Publisher) *ApprovalService {
	return &ApprovalService{approvals: approvals, publisher: publisher}
}

// SubmitInput carries a new elevation request.
type SubmitInput struct {
	ApprovalType       string
	RequestedRole      string
	RequestedAdminType string
	Institution        string
	Reason             string
	AdditionalInfo     string
	Priority           string
}

// Pagination is the list-response metadata.
type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalCount  int  `json:"totalCount"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

// ListInput filters and paginates a listing.
type ListInput struct {
	ApprovalType string
	Status       string
	Page         int
	PageSize     int
}

// Submit creates a request in pending status on behalf of the requester.
func (s *ApprovalService) Submit(ctx context.Context, requester types.User, input SubmitInput) (types.ApprovalRequest, error) {
	if !types.ValidApprovalType(input.ApprovalType) {
		return types.ApprovalRequest{}, apperr.Validation("unknown approval type %q", input.ApprovalType)
	}
	if strings.TrimSpace(input.Reason) == "" {
		return types.ApprovalRequest{}, apperr.Validation("reason is required")
	}
	if strings.TrimSpace(input.RequestedRole) == "" {
		return types.ApprovalRequest{}, apperr.Validation("requested role is required")
	}
	if input.ApprovalType == types.ApprovalAdminVerification {
		if input.RequestedAdminType == "" {
			return types.ApprovalRequest{}, apperr.Validation("admin verification requires an admin type")
		}
		if !validAdminType(input.RequestedAdminType) {
			return types.ApprovalRequest{}, apperr.Validation("unknown admin type %q", input.RequestedAdminType)
		}
	}

	priority := input.Priority
	if priority == "" {
		priority = types.PriorityNormal
	}
	switch priority {
	case types.PriorityLow, types.PriorityNormal, types.PriorityHigh, types.PriorityUrgent:
	default:
		return types.ApprovalRequest{}, apperr.Validation("unknown priority %q", priority)
	}

	req := types.ApprovalRequest{
		UserID:             requester.ID,
		Username:           requester.Username,
		ApprovalType:       input.ApprovalType,
		CurrentRole:        requester.Role,
		RequestedRole:      input.RequestedRole,
		RequestedAdminType: input.RequestedAdminType,
		Institution:        input.Institution,
		Reason:             strings.TrimSpace(input.Reason),
		AdditionalInfo:     input.AdditionalInfo,
		Status:             types.StatusPending,
		Priority:           priority,
	}

	created, err := s.approvals.Create(ctx, req)
	if err != nil {
		return types.ApprovalRequest{}, err
	}

	if err := s.publisher.ApprovalSubmitted(ctx, created); err != nil {
		log.Printf("approvals: publish submitted event: %v", err)
	}
	return created, nil
}

// List returns a page of requests. Actors without deciding authority only
// ever see their own requests, whatever filter they ask for.
func (s *ApprovalService) List(ctx context.Context, actor types.User, input ListInput) ([]types.ApprovalRequest, Pagination, error) {
	if input.ApprovalType != "" && !types.ValidApprovalType(input.ApprovalType) {
		return nil, Pagination{}, apperr.Validation("unknown approval type %q", input.ApprovalType)
	}
	if input.Status != "" && !types.ValidStatus(input.Status) {
		return nil, Pagination{}, apperr.Validation("unknown status %q", input.Status)
	}

	page := input.Page
	if page < 1 {
		page = 1
	}
	pageSize := input.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	filter := store.ApprovalFilter{
		ApprovalType: input.ApprovalType,
		Status:       input.Status,
		Offset:       (page - 1) * pageSize,
		Limit:        pageSize,
	}
	if !isDecidingAuthority(actor) {
		filter.UserID = actor.ID
	}

	items, total, err := s.approvals.List(ctx, filter)
	if err != nil {
		return nil, Pagination{}, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := Pagination{
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalCount:  total,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1 && total > 0,
	}
	return items, pagination, nil
}

// Get returns one request; non-privileged actors may only read their own.
func (s *ApprovalService) Get(ctx context.Context, actor types.User, id string) (types.ApprovalRequest, error) {
	req, err := s.approvals.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.ApprovalRequest{}, apperr.NotFound("approval request %s", id)
		}
		return types.ApprovalRequest{}, err
	}
	if req.UserID != actor.ID && !isDecidingAuthority(actor) {
		return types.ApprovalRequest{}, apperr.Forbidden("not your request")
	}
	return req, nil
}

// Decide approves or rejects a pending request. Approval mutates the
// target user's role atomically with the status change.
func (s *ApprovalService) Decide(ctx context.Context, actor types.User, id, action, notes, adminType string) (types.ApprovalRequest, error) {
	req, err := s.approvals.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.ApprovalRequest{}, apperr.NotFound("approval request %s", id)
		}
		return types.ApprovalRequest{}, err
	}

	if !actor.HasPermission(requiredPermission(req)) {
		return types.ApprovalRequest{}, apperr.Forbidden("deciding this request requires the %s capability", requiredPermission(req))
	}
	if req.UserID == actor.ID {
		return types.ApprovalRequest{}, apperr.Forbidden("deciding your own request is not allowed")
	}
	if req.Terminal() {
		return types.ApprovalRequest{}, apperr.Conflict("request is already %s", req.Status)
	}

	var decided types.ApprovalRequest
	switch action {
	case "approve":
		change, err := roleChangeForApproval(req, adminType)
		if err != nil {
			return types.ApprovalRequest{}, err
		}
		decided, err = s.approvals.Decide(ctx, id, types.StatusApproved, notes, actor.ID, change)
		if err != nil {
			return types.ApprovalRequest{}, mapDecideErr(err, id)
		}
	case "reject":
		if strings.TrimSpace(notes) == "" {
			return types.ApprovalRequest{}, apperr.Validation("rejection requires a stated reason")
		}
		decided, err = s.approvals.Decide(ctx, id, types.StatusRejected, notes, actor.ID, nil)
		if err != nil {
			return types.ApprovalRequest{}, mapDecideErr(err, id)
		}
	default:
		return types.ApprovalRequest{}, apperr.Validation("action must be approve or reject")
	}

	if err := s.publisher.ApprovalDecided(ctx, decided, actor.ID); err != nil {
		log.Printf("approvals: publish decided event: %v", err)
	}
	return decided, nil
}

// Cancel withdraws a pending request. Only the original requester may
// cancel, and only while the request is pending.
func (s *ApprovalService) Cancel(ctx context.Context, actor types.User, id string) (types.ApprovalRequest, error) {
	req, err := s.approvals.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.ApprovalRequest{}, apperr.NotFound("approval request %s", id)
		}
		return types.ApprovalRequest{}, err
	}
	if req.UserID != actor.ID {
		return types.ApprovalRequest{}, apperr.Forbidden("only the requester may cancel")
	}
	if req.Terminal() {
		return types.ApprovalRequest{}, apperr.Conflict("request is already %s", req.Status)
	}

	cancelled, err := s.approvals.Cancel(ctx, id)
	if err != nil {
		return types.ApprovalRequest{}, mapDecideErr(err, id)
	}

	if err := s.publisher.ApprovalDecided(ctx, cancelled, actor.ID); err != nil {
		log.Printf("approvals: publish cancelled event: %v", err)
	}
	return cancelled, nil
}

// requiredPermission maps a request to the capability its decision needs.
func requiredPermission(req types.ApprovalRequest) string {
	switch req.ApprovalType {
	case types.ApprovalAdminVerification:
		return types.PermApproveAdmins
	case types.ApprovalRoleUpgrade:
		switch req.RequestedRole {
		case types.RoleAdmin, types.RoleSuperAdmin:
			return types.PermApproveAdmins
		}
		return types.PermApproveModerators
	default:
		return types.PermApproveModerators
	}
}

// roleChangeForApproval builds the user mutation applied on approve.
func roleChangeForApproval(req types.ApprovalRequest, adminType string) (*store.RoleChange, error) {
	change := &store.RoleChange{
		UserID:             req.UserID,
		Role:               req.RequestedRole,
		IsVerified:         true,
		VerificationStatus: types.VerificationVerified,
	}

	if req.ApprovalType == types.ApprovalAdminVerification {
		if adminType == "" {
			adminType = req.RequestedAdminType
		}
		if adminType == "" {
			adminType = types.AdminTypePrimary
		}
		if !validAdminType(adminType) {
			return nil, apperr.Validation("unknown admin type %q", adminType)
		}
		change.AdminType = adminType
	}

	if req.RequestedRole == types.RoleSuperAdmin || req.RequestedRole == types.RoleSuperModerator {
		change.IsSuperAdmin = true
		change.VerificationStatus = types.VerificationNotRequired
	}
	return change, nil
}

func mapDecideErr(err error, id string) error {
	if errors.Is(err, store.ErrNotPending) {
		return apperr.Conflict("request %s is no longer pending", id)
	}
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("approval request %s", id)
	}
	return err
}

func validAdminType(t string) bool {
	return t == types.AdminTypePrimary || t == types.AdminTypeSecondary
}

func isDecidingAuthority(actor types.User) bool {
	return actor.HasPermission(types.PermApproveAdmins) ||
		actor.HasPermission(types.PermApproveModerators)
}
