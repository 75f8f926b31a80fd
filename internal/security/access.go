package security

import (
	"context"
	"fmt"

	"greeks-dashboard/internal/errors"
	"greeks-dashboard/internal/models"
)

// OperationType represents the type of operation.
type OperationType string

const (
	// Viewer operations
	OpViewSeries OperationType = "VIEW_SERIES"
	OpExport     OperationType = "EXPORT"

	// Admin console operations
	OpListUsers     OperationType = "LIST_USERS"
	OpToggleUser    OperationType = "TOGGLE_USER"
	OpRefreshCache  OperationType = "REFRESH_CACHE"
	OpGenerateToken OperationType = "GENERATE_TOKEN"
)

// AccessError is returned when the session's role does not allow an operation.
type AccessError struct {
	Operation OperationType
	Role      models.Role
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("operation %s not allowed for role %q", e.Operation, e.Role)
}

func (e *AccessError) Unwrap() error {
	return errors.ErrForbidden
}

// AccessController checks operations against the logged-in user's role.
// The backend remains the authority; this only avoids pointless calls.
type AccessController struct {
	audit *AuditLogger
}

// NewAccessController creates a new access controller. audit may be nil.
func NewAccessController(audit *AuditLogger) *AccessController {
	return &AccessController{audit: audit}
}

// CheckPermission checks whether session may perform op.
func (ac *AccessController) CheckPermission(ctx context.Context, session *models.Session, op OperationType) error {
	if session == nil || session.Token == "" {
		return errors.ErrNotAuthenticated
	}
	if !isAdminOperation(op) {
		return nil
	}
	if session.User.IsAdmin() {
		return nil
	}

	_ = ac.audit.LogAccessDenied(ctx, string(op))
	return &AccessError{Operation: op, Role: session.User.Role}
}

func isAdminOperation(op OperationType) bool {
	switch op {
	case OpListUsers, OpToggleUser, OpRefreshCache, OpGenerateToken:
		return true
	default:
		return false
	}
}
