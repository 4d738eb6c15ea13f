package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryNodeTree(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	root, err := s.Root(ctx)
	require.NoError(t, err)

	folder, err := s.CreateNode(ctx, root, "docs", "st:folder", map[string]string{"st:title": "Docs"})
	require.NoError(t, err)

	t.Run("duplicate names under one parent are rejected", func(t *testing.T) {
		_, err := s.CreateNode(ctx, root, "docs", "st:folder", nil)
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("children resolve by name", func(t *testing.T) {
		ref, err := s.ChildByName(ctx, root, "docs")
		require.NoError(t, err)
		assert.Equal(t, folder, ref)

		_, err = s.ChildByName(ctx, root, "missing")
		assert.ErrorIs(t, err, ErrNodeNotFound)
	})

	t.Run("properties round-trip", func(t *testing.T) {
		v, ok, err := s.Property(ctx, folder, "st:title")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "Docs", v)

		require.NoError(t, s.SetProperty(ctx, folder, "st:title", "Documents"))
		props, err := s.Properties(ctx, folder)
		require.NoError(t, err)
		assert.Equal(t, "Documents", props["st:title"])
	})

	t.Run("aspects toggle", func(t *testing.T) {
		require.NoError(t, s.AddAspect(ctx, folder, "st:tagScope"))
		ok, err := s.HasAspect(ctx, folder, "st:tagScope")
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, s.RemoveAspect(ctx, folder, "st:tagScope"))
		ok, err = s.HasAspect(ctx, folder, "st:tagScope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("root has no parent", func(t *testing.T) {
		_, err := s.Parent(ctx, root)
		assert.ErrorIs(t, err, ErrNodeNotFound)
	})
}

func TestMemoryTrash(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	root, _ := s.Root(ctx)

	folder, err := s.CreateNode(ctx, root, "attic", "st:folder", nil)
	require.NoError(t, err)
	child, err := s.CreateNode(ctx, folder, "box", "st:folder", nil)
	require.NoError(t, err)

	require.NoError(t, s.DeleteNode(ctx, folder))

	t.Run("deletion trashes the whole subtree", func(t *testing.T) {
		for _, ref := range []NodeRef{folder, child} {
			live, err := s.NodeExists(ctx, ref)
			require.NoError(t, err)
			assert.False(t, live)
		}
	})

	t.Run("only the deletion root lands in the trash listing", func(t *testing.T) {
		entries, err := s.ListTrash(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, folder, entries[0].Ref)
		assert.Equal(t, "attic", entries[0].Name)
		assert.False(t, entries[0].DeletedAt.IsZero())
	})

	t.Run("trashed names are free for reuse", func(t *testing.T) {
		_, err := s.CreateNode(ctx, root, "attic", "st:folder", nil)
		assert.NoError(t, err)
	})

	t.Run("purging a live node fails", func(t *testing.T) {
		live, err := s.CreateNode(ctx, root, "cellar", "st:folder", nil)
		require.NoError(t, err)
		assert.Error(t, s.PurgeNode(ctx, live))
	})

	t.Run("purge removes nodes and trash entry", func(t *testing.T) {
		require.NoError(t, s.PurgeNode(ctx, folder))
		entries, err := s.ListTrash(ctx)
		require.NoError(t, err)
		assert.Empty(t, entries)

		_, err = s.NodeType(ctx, child)
		assert.ErrorIs(t, err, ErrNodeNotFound)
	})
}

func TestMemoryMoveNode(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	root, _ := s.Root(ctx)

	a, err := s.CreateNode(ctx, root, "a", "st:folder", nil)
	require.NoError(t, err)
	b, err := s.CreateNode(ctx, root, "b", "st:folder", nil)
	require.NoError(t, err)
	doc, err := s.CreateNode(ctx, a, "doc", "st:content", nil)
	require.NoError(t, err)

	require.NoError(t, s.MoveNode(ctx, doc, b))

	parent, err := s.Parent(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, b, parent)

	_, err = s.ChildByName(ctx, a, "doc")
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestMemoryGroups(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.CreateGroup(ctx, "GROUP_outer", "Outer"))
	require.NoError(t, s.CreateGroup(ctx, "GROUP_inner", "Inner"))
	require.NoError(t, s.AddMember(ctx, "GROUP_outer", "GROUP_inner"))
	require.NoError(t, s.AddMember(ctx, "GROUP_inner", "alice"))
	require.NoError(t, s.AddMember(ctx, "GROUP_outer", "bob"))

	t.Run("group names must carry the prefix", func(t *testing.T) {
		assert.Error(t, s.CreateGroup(ctx, "plain", "Plain"))
	})

	t.Run("duplicate groups are rejected", func(t *testing.T) {
		err := s.CreateGroup(ctx, "GROUP_outer", "Outer")
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("immediate members", func(t *testing.T) {
		members, err := s.Members(ctx, "GROUP_outer", true)
		require.NoError(t, err)
		assert.Equal(t, []string{"GROUP_inner", "bob"}, members)
	})

	t.Run("transitive members", func(t *testing.T) {
		members, err := s.Members(ctx, "GROUP_outer", false)
		require.NoError(t, err)
		assert.Equal(t, []string{"GROUP_inner", "alice", "bob"}, members)
	})

	t.Run("transitive containing groups", func(t *testing.T) {
		groups, err := s.Groups(ctx, "alice", false)
		require.NoError(t, err)
		assert.Equal(t, []string{"GROUP_inner", "GROUP_outer"}, groups)

		immediate, err := s.Groups(ctx, "alice", true)
		require.NoError(t, err)
		assert.Equal(t, []string{"GROUP_inner"}, immediate)
	})

	t.Run("removing an absent member errors", func(t *testing.T) {
		err := s.RemoveMember(ctx, "GROUP_outer", "carol")
		assert.ErrorIs(t, err, ErrAuthorityNotFound)
	})

	t.Run("deleting a group drops its edges", func(t *testing.T) {
		require.NoError(t, s.DeleteGroup(ctx, "GROUP_inner"))
		members, err := s.Members(ctx, "GROUP_outer", true)
		require.NoError(t, err)
		assert.Equal(t, []string{"bob"}, members)

		_, err = s.Members(ctx, "GROUP_inner", true)
		assert.ErrorIs(t, err, ErrAuthorityNotFound)
	})
}

func TestMemoryIdentities(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	s.AddPerson(Person{UserName: "alice", FirstName: "Alice", LastName: "Nguyen"})
	require.NoError(t, s.CreateGroup(ctx, "GROUP_devs", "Developers"))

	t.Run("person lookup", func(t *testing.T) {
		p, err := s.Person(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "Nguyen", p.LastName)

		_, err = s.Person(ctx, "ghost")
		assert.ErrorIs(t, err, ErrPersonNotFound)
	})

	t.Run("exists dispatches on the authority kind", func(t *testing.T) {
		for name, want := range map[string]bool{
			"alice":       true,
			"ghost":       false,
			"GROUP_devs":  true,
			"GROUP_ghost": false,
		} {
			ok, err := s.Exists(ctx, name)
			require.NoError(t, err)
			assert.Equal(t, want, ok, name)
		}
	})

	t.Run("display names", func(t *testing.T) {
		name, err := s.DisplayName(ctx, "GROUP_devs")
		require.NoError(t, err)
		assert.Equal(t, "Developers", name)

		name, err = s.DisplayName(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "Alice Nguyen", name)
	})
}

func TestMemoryPermissions(t *testing.T) {
	s := NewStore()
	s.RegisterImplication("Editor", PermissionRead, PermissionReadProperties)
	ctx := WithCaller(context.Background(), "alice")
	sysCtx := AsSystem(context.Background())

	root, _ := s.Root(sysCtx)
	folder, err := s.CreateNode(sysCtx, root, "shared", "st:folder", nil)
	require.NoError(t, err)
	doc, err := s.CreateNode(sysCtx, folder, "doc", "st:content", nil)
	require.NoError(t, err)

	require.NoError(t, s.CreateGroup(sysCtx, "GROUP_editors", "Editors"))
	require.NoError(t, s.AddMember(sysCtx, "GROUP_editors", "alice"))
	require.NoError(t, s.Set(sysCtx, folder, "GROUP_editors", "Editor"))

	t.Run("access flows through groups and implications", func(t *testing.T) {
		ok, err := s.HasAccess(ctx, folder, PermissionRead)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("access inherits down the tree", func(t *testing.T) {
		ok, err := s.HasAccess(ctx, doc, PermissionRead)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("cutting inheritance blocks the walk", func(t *testing.T) {
		require.NoError(t, s.SetInheritParent(sysCtx, doc, false))
		ok, err := s.HasAccess(ctx, doc, PermissionRead)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.SetInheritParent(sysCtx, doc, true))
	})

	t.Run("ungranted permissions stay denied", func(t *testing.T) {
		ok, err := s.HasAccess(ctx, folder, PermissionChangePermissions)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("anonymous callers are denied", func(t *testing.T) {
		ok, err := s.HasAccess(context.Background(), folder, PermissionRead)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("system bypasses evaluation", func(t *testing.T) {
		ok, err := s.HasAccess(sysCtx, folder, PermissionChangePermissions)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("administrators bypass evaluation", func(t *testing.T) {
		require.NoError(t, s.CreateGroup(sysCtx, AdministratorsGroup, "Admins"))
		require.NoError(t, s.AddMember(sysCtx, AdministratorsGroup, "root-user"))
		ok, err := s.HasAccess(WithCaller(context.Background(), "root-user"), folder, PermissionChangePermissions)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("full control implies everything", func(t *testing.T) {
		require.NoError(t, s.Set(sysCtx, folder, "carol", PermissionFullControl))
		ok, err := s.HasAccess(WithCaller(context.Background(), "carol"), folder, PermissionChangePermissions)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("defining acls are tracked", func(t *testing.T) {
		defined, err := s.HasDefiningACL(sysCtx, folder)
		require.NoError(t, err)
		assert.True(t, defined)

		untouched, err := s.CreateNode(sysCtx, folder, "plain", "st:content", nil)
		require.NoError(t, err)
		defined, err = s.HasDefiningACL(sysCtx, untouched)
		require.NoError(t, err)
		assert.False(t, defined)
	})

	t.Run("deleting grants is idempotent", func(t *testing.T) {
		require.NoError(t, s.Delete(sysCtx, folder, "carol", PermissionFullControl))
		require.NoError(t, s.Delete(sysCtx, folder, "carol", PermissionFullControl))
	})
}

func TestMemoryInTransactionRunsInline(t *testing.T) {
	s := NewStore()
	ran := false
	err := s.InTransaction(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}
