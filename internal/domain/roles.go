package domain

import "context"

// RoleGuard authorizes engine operations against workspace membership roles.
// It sits behind the bearer-token middleware: the token proves identity, the
// guard proves workspace standing.
type RoleGuard struct {
	memberships MembershipRepository
}

// NewRoleGuard constructs a RoleGuard.
func NewRoleGuard(memberships MembershipRepository) *RoleGuard {
	return &RoleGuard{memberships: memberships}
}

// RequireMember returns the caller's membership, or Forbidden when the caller
// does not belong to the workspace.
func (g *RoleGuard) RequireMember(ctx context.Context, workspaceID, userID string) (*Membership, error) {
	membership, err := g.memberships.GetMembership(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		return nil, Errorf(KindForbidden, "user %s is not a member of workspace %s", userID, workspaceID)
	}
	return membership, nil
}

// RequireAdmin enforces an owner or admin role.
func (g *RoleGuard) RequireAdmin(ctx context.Context, workspaceID, userID string) (*Membership, error) {
	membership, err := g.RequireMember(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	switch membership.Role {
	case RoleOwner, RoleAdmin:
		return membership, nil
	case RoleMember:
		return nil, Errorf(KindForbidden, "user %s requires an admin role in workspace %s", userID, workspaceID)
	}
	return nil, Errorf(KindForbidden, "user %s has unrecognized role %q", userID, membership.Role)
}

// RequireOwner enforces the owner role.
func (g *RoleGuard) RequireOwner(ctx context.Context, workspaceID, userID string) (*Membership, error) {
	membership, err := g.RequireMember(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	if membership.Role != RoleOwner {
		return nil, Errorf(KindForbidden, "user %s is not the owner of workspace %s", userID, workspaceID)
	}
	return membership, nil
}

// UpdateMembershipRole changes another member's role. Only the workspace owner
// may call it, only between admin and member: the owner row itself is
// immutable, and the owner role can never be granted through this path.
func (g *RoleGuard) UpdateMembershipRole(ctx context.Context, workspaceID, actorUserID, targetUserID string, role Role) (*Membership, error) {
	if _, err := g.RequireOwner(ctx, workspaceID, actorUserID); err != nil {
		return nil, err
	}
	switch role {
	case RoleAdmin, RoleMember:
	case RoleOwner:
		return nil, Errorf(KindInvalidRoleChange, "the owner role cannot be assigned")
	default:
		return nil, Errorf(KindInvalidInput, "unknown role %q", role)
	}

	target, err := g.memberships.GetMembership(ctx, workspaceID, targetUserID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, Errorf(KindNotFound, "user %s is not a member of workspace %s", targetUserID, workspaceID)
	}
	if target.Role == RoleOwner {
		return nil, Errorf(KindInvalidRoleChange, "the workspace owner's role is immutable")
	}

	if target.Role != role {
		if err := g.memberships.UpdateRole(ctx, workspaceID, targetUserID, role); err != nil {
			return nil, err
		}
		target.Role = role
	}
	return target, nil
}

// ListMemberships returns the workspace roster.
func (g *RoleGuard) ListMemberships(ctx context.Context, workspaceID string) ([]Membership, error) {
	return g.memberships.ListMemberships(ctx, workspaceID)
}
