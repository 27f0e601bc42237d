package domain

import (
	"context"

	"github.com/smallbiznis/orgaccess/internal/datastore"
)

// Service administers memberships. Mutations are authorized by the data
// store procedures, not here.
type Service interface {
	List(ctx context.Context, store datastore.Store, orgID string) ([]MemberView, error)
	UpdateRole(ctx context.Context, store datastore.Store, req UpdateRoleRequest) error
	Delete(ctx context.Context, store datastore.Store, req DeleteRequest) error
	ListMine(ctx context.Context, store datastore.Store) ([]OrganizationView, error)
	HasPermission(ctx context.Context, store datastore.Store, permission, orgID string) (bool, error)
}

type MemberView struct {
	OrgID  string `json:"org_id"`
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Email  string `json:"email"`
}

type OrganizationView struct {
	OrgID string `json:"org_id"`
	Role  string `json:"role"`
}

type UpdateRoleRequest struct {
	OrgID    string
	TargetID string
	Role     string
}

type DeleteRequest struct {
	OrgID    string
	TargetID string
}
