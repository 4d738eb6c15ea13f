package sites

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitekit/sitekit/pkg/repo"
)

func TestGetContainerCreatesLazily(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreateSite(t, svc, "alice", "ws", VisibilityPublic)

	exists, err := svc.HasContainer(as("alice"), "ws", "documentLibrary")
	require.NoError(t, err)
	assert.False(t, exists, "sites start without containers")

	first, err := svc.GetContainer(as("alice"), "ws", "documentLibrary")
	require.NoError(t, err)
	assert.Equal(t, "documentLibrary", first.ComponentID)

	exists, err = svc.HasContainer(as("alice"), "ws", "documentLibrary")
	require.NoError(t, err)
	assert.True(t, exists)

	second, err := svc.GetContainer(as("alice"), "ws", "documentLibrary")
	require.NoError(t, err)
	assert.Equal(t, first.NodeRef, second.NodeRef, "repeat access resolves the same node")
}

func TestGetContainerValidation(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreateSite(t, svc, "alice", "vault", VisibilityPrivate)

	t.Run("empty component id is invalid", func(t *testing.T) {
		_, err := svc.GetContainer(as("alice"), "vault", "")
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("non-members cannot reach containers of private sites", func(t *testing.T) {
		_, err := svc.GetContainer(as("carol"), "vault", "documentLibrary")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestContainerPermissionLayout(t *testing.T) {
	svc, backend := newTestService(t)
	ctx := repo.AsSystem(context.Background())
	mustCreateSite(t, svc, "alice", "openhouse", VisibilityPublic)
	mustCreateSite(t, svc, "alice", "bunker", VisibilityPrivate)

	t.Run("public site containers inherit from the root", func(t *testing.T) {
		c, err := svc.GetContainer(as("alice"), "openhouse", "wiki")
		require.NoError(t, err)

		inherits, err := backend.InheritsParent(ctx, c.NodeRef)
		require.NoError(t, err)
		assert.True(t, inherits)

		entries, err := backend.Entries(ctx, c.NodeRef)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("private site containers get explicit role grants", func(t *testing.T) {
		c, err := svc.GetContainer(as("alice"), "bunker", "wiki")
		require.NoError(t, err)

		inherits, err := backend.InheritsParent(ctx, c.NodeRef)
		require.NoError(t, err)
		assert.False(t, inherits)

		entries, err := backend.Entries(ctx, c.NodeRef)
		require.NoError(t, err)
		require.Len(t, entries, len(DefaultRoleSet()))
		for _, role := range DefaultRoleSet() {
			assert.Contains(t, entries, repo.AccessEntry{
				Authority:  RoleGroupAuthority("bunker", role),
				Permission: string(role),
			})
		}
	})
}

func TestListContainers(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreateSite(t, svc, "alice", "parts", VisibilityPrivate)
	for _, id := range []string{"wiki", "discussions"} {
		_, err := svc.GetContainer(as("alice"), "parts", id)
		require.NoError(t, err)
	}

	containers, err := svc.ListContainers(as("alice"), "parts")
	require.NoError(t, err)
	assert.Len(t, containers, 2)

	_, err = svc.ListContainers(as("carol"), "parts")
	assert.ErrorIs(t, err, ErrNotFound)
}
