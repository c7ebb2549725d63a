package domain_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oh-my-collab/performance-service/internal/domain"
	"github.com/oh-my-collab/performance-service/internal/persistence/memory"
)

func newRoleFixture() (*domain.RoleGuard, *memory.Store) {
	store := memory.NewStore()
	seedMembership(store, "owner-1", domain.RoleOwner)
	seedMembership(store, "admin-1", domain.RoleAdmin)
	seedMembership(store, "member-1", domain.RoleMember)
	return domain.NewRoleGuard(store), store
}

func TestRequireMember(t *testing.T) {
	guard, _ := newRoleFixture()
	ctx := context.Background()

	membership, err := guard.RequireMember(ctx, workspaceID, "member-1")
	require.NoError(t, err)
	require.Equal(t, domain.RoleMember, membership.Role)

	_, err = guard.RequireMember(ctx, workspaceID, "outsider")
	require.True(t, domain.IsKind(err, domain.KindForbidden))
}

func TestRequireAdmin(t *testing.T) {
	guard, _ := newRoleFixture()
	ctx := context.Background()

	for _, userID := range []string{"owner-1", "admin-1"} {
		_, err := guard.RequireAdmin(ctx, workspaceID, userID)
		require.NoError(t, err, userID)
	}

	_, err := guard.RequireAdmin(ctx, workspaceID, "member-1")
	require.True(t, domain.IsKind(err, domain.KindForbidden))

	_, err = guard.RequireAdmin(ctx, workspaceID, "outsider")
	require.True(t, domain.IsKind(err, domain.KindForbidden))
}

func TestRequireOwner(t *testing.T) {
	guard, _ := newRoleFixture()
	ctx := context.Background()

	_, err := guard.RequireOwner(ctx, workspaceID, "owner-1")
	require.NoError(t, err)

	_, err = guard.RequireOwner(ctx, workspaceID, "admin-1")
	require.True(t, domain.IsKind(err, domain.KindForbidden))
}

func TestUpdateMembershipRole(t *testing.T) {
	guard, store := newRoleFixture()
	ctx := context.Background()

	// Owner promotes a member to admin.
	updated, err := guard.UpdateMembershipRole(ctx, workspaceID, "owner-1", "member-1", domain.RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, updated.Role)

	stored, err := store.GetMembership(ctx, workspaceID, "member-1")
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, stored.Role)

	// And demotes an admin back to member.
	updated, err = guard.UpdateMembershipRole(ctx, workspaceID, "owner-1", "admin-1", domain.RoleMember)
	require.NoError(t, err)
	require.Equal(t, domain.RoleMember, updated.Role)
}

func TestUpdateMembershipRoleIsOwnerOnly(t *testing.T) {
	guard, _ := newRoleFixture()
	ctx := context.Background()

	_, err := guard.UpdateMembershipRole(ctx, workspaceID, "admin-1", "member-1", domain.RoleAdmin)
	require.True(t, domain.IsKind(err, domain.KindForbidden))

	_, err = guard.UpdateMembershipRole(ctx, workspaceID, "member-1", "admin-1", domain.RoleMember)
	require.True(t, domain.IsKind(err, domain.KindForbidden))
}

func TestUpdateMembershipRoleGuardsOwnerRow(t *testing.T) {
	guard, _ := newRoleFixture()
	ctx := context.Background()

	// The owner role can never be granted.
	_, err := guard.UpdateMembershipRole(ctx, workspaceID, "owner-1", "member-1", domain.RoleOwner)
	require.True(t, domain.IsKind(err, domain.KindInvalidRoleChange))

	// The owner's own row is immutable.
	_, err = guard.UpdateMembershipRole(ctx, workspaceID, "owner-1", "owner-1", domain.RoleMember)
	require.True(t, domain.IsKind(err, domain.KindInvalidRoleChange))

	_, err = guard.UpdateMembershipRole(ctx, workspaceID, "owner-1", "member-1", domain.Role("guest"))
	require.True(t, domain.IsKind(err, domain.KindInvalidInput))

	_, err = guard.UpdateMembershipRole(ctx, workspaceID, "owner-1", "ghost", domain.RoleAdmin)
	require.True(t, domain.IsKind(err, domain.KindNotFound))
}
