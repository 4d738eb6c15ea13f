package sqldb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitekit/sitekit/pkg/repo"
)

func TestRootIsStable(t *testing.T) {
	store := NewTestStore(t)
	ctx := context.Background()

	first, err := store.Root(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := store.Root(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNodeLifecycle(t *testing.T) {
	store := NewTestStore(t)
	ctx := context.Background()

	root, err := store.Root(ctx)
	require.NoError(t, err)

	ref, err := store.CreateNode(ctx, root, "engineering", "st:site", map[string]string{
		"st:title": "Engineering",
	})
	require.NoError(t, err)

	t.Run("resolves by name", func(t *testing.T) {
		got, err := store.ChildByName(ctx, root, "engineering")
		require.NoError(t, err)
		assert.Equal(t, ref, got)
	})

	t.Run("rejects duplicate name", func(t *testing.T) {
		_, err := store.CreateNode(ctx, root, "engineering", "st:site", nil)
		assert.ErrorIs(t, err, repo.ErrAlreadyExists)
	})

	t.Run("properties round-trip", func(t *testing.T) {
		value, ok, err := store.Property(ctx, ref, "st:title")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Engineering", value)

		require.NoError(t, store.SetProperty(ctx, ref, "st:title", "Engineering Team"))
		value, ok, err = store.Property(ctx, ref, "st:title")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Engineering Team", value)

		_, ok, err = store.Property(ctx, ref, "st:missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("aspects", func(t *testing.T) {
		require.NoError(t, store.AddAspect(ctx, ref, "st:tagScope"))
		has, err := store.HasAspect(ctx, ref, "st:tagScope")
		require.NoError(t, err)
		assert.True(t, has)

		require.NoError(t, store.RemoveAspect(ctx, ref, "st:tagScope"))
		has, err = store.HasAspect(ctx, ref, "st:tagScope")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("parent and children", func(t *testing.T) {
		child, err := store.CreateNode(ctx, ref, "documentLibrary", "st:container", nil)
		require.NoError(t, err)

		parent, err := store.Parent(ctx, child)
		require.NoError(t, err)
		assert.Equal(t, ref, parent)

		children, err := store.Children(ctx, ref)
		require.NoError(t, err)
		require.Len(t, children, 1)
		assert.Equal(t, "documentLibrary", children[0].Name)
		assert.True(t, children[0].Primary)
	})

	t.Run("root has no parent", func(t *testing.T) {
		_, err := store.Parent(ctx, root)
		assert.ErrorIs(t, err, repo.ErrNodeNotFound)
	})
}

func TestSoftDeleteAndPurge(t *testing.T) {
	store := NewTestStore(t)
	ctx := context.Background()

	root, err := store.Root(ctx)
	require.NoError(t, err)

	site, err := store.CreateNode(ctx, root, "doomed", "st:site", nil)
	require.NoError(t, err)
	child, err := store.CreateNode(ctx, site, "documentLibrary", "st:container", nil)
	require.NoError(t, err)

	t.Run("purging a live node fails", func(t *testing.T) {
		err := store.PurgeNode(ctx, site)
		require.Error(t, err)
	})

	require.NoError(t, store.DeleteNode(ctx, site))

	t.Run("deleted subtree is not live", func(t *testing.T) {
		live, err := store.NodeExists(ctx, site)
		require.NoError(t, err)
		assert.False(t, live)

		live, err = store.NodeExists(ctx, child)
		require.NoError(t, err)
		assert.False(t, live)
	})

	t.Run("deleted node no longer resolves by name", func(t *testing.T) {
		_, err := store.ChildByName(ctx, root, "doomed")
		assert.ErrorIs(t, err, repo.ErrNodeNotFound)
	})

	t.Run("trash lists the deletion root only", func(t *testing.T) {
		trash, err := store.ListTrash(ctx)
		require.NoError(t, err)
		require.Len(t, trash, 1)
		assert.Equal(t, site, trash[0].Ref)
		assert.Equal(t, "doomed", trash[0].Name)
		assert.Equal(t, "st:site", trash[0].NodeType)
		assert.False(t, trash[0].DeletedAt.IsZero())
	})

	t.Run("name is reusable after deletion at the node layer", func(t *testing.T) {
		ref, err := store.CreateNode(ctx, root, "doomed", "st:site", nil)
		require.NoError(t, err)
		require.NoError(t, store.DeleteNode(ctx, ref))
		require.NoError(t, store.PurgeNode(ctx, ref))
	})

	t.Run("purge removes everything", func(t *testing.T) {
		require.NoError(t, store.PurgeNode(ctx, site))

		trash, err := store.ListTrash(ctx)
		require.NoError(t, err)
		assert.Empty(t, trash)

		_, err = store.NodeType(ctx, site)
		assert.ErrorIs(t, err, repo.ErrNodeNotFound)
		_, err = store.NodeType(ctx, child)
		assert.ErrorIs(t, err, repo.ErrNodeNotFound)
	})
}

func TestGroupContainment(t *testing.T) {
	store := NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateGroup(ctx, "GROUP_site_eng", "Engineering"))
	require.NoError(t, store.CreateGroup(ctx, "GROUP_site_eng_SiteManager", "SiteManager"))
	require.NoError(t, store.CreateGroup(ctx, "GROUP_devs", "Developers"))

	require.NoError(t, store.AddMember(ctx, "GROUP_site_eng", "GROUP_site_eng_SiteManager"))
	require.NoError(t, store.AddMember(ctx, "GROUP_site_eng_SiteManager", "GROUP_devs"))
	require.NoError(t, store.AddMember(ctx, "GROUP_devs", "bob"))

	t.Run("duplicate group is rejected", func(t *testing.T) {
		err := store.CreateGroup(ctx, "GROUP_devs", "Developers")
		assert.ErrorIs(t, err, repo.ErrAlreadyExists)
	})

	t.Run("immediate members", func(t *testing.T) {
		members, err := store.Members(ctx, "GROUP_site_eng_SiteManager", true)
		require.NoError(t, err)
		assert.Equal(t, []string{"GROUP_devs"}, members)
	})

	t.Run("transitive members", func(t *testing.T) {
		members, err := store.Members(ctx, "GROUP_site_eng", false)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"GROUP_site_eng_SiteManager", "GROUP_devs", "bob"}, members)
	})

	t.Run("transitive containing groups", func(t *testing.T) {
		groups, err := store.Groups(ctx, "bob", false)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"GROUP_devs", "GROUP_site_eng_SiteManager", "GROUP_site_eng"}, groups)
	})

	t.Run("immediate containing groups", func(t *testing.T) {
		groups, err := store.Groups(ctx, "bob", true)
		require.NoError(t, err)
		assert.Equal(t, []string{"GROUP_devs"}, groups)
	})

	t.Run("missing group errors", func(t *testing.T) {
		_, err := store.Members(ctx, "GROUP_absent", true)
		assert.ErrorIs(t, err, repo.ErrAuthorityNotFound)
	})

	t.Run("remove member", func(t *testing.T) {
		require.NoError(t, store.RemoveMember(ctx, "GROUP_devs", "bob"))
		groups, err := store.Groups(ctx, "bob", false)
		require.NoError(t, err)
		assert.Empty(t, groups)
	})

	t.Run("delete group drops its edges", func(t *testing.T) {
		require.NoError(t, store.DeleteGroup(ctx, "GROUP_devs"))

		exists, err := store.Exists(ctx, "GROUP_devs")
		require.NoError(t, err)
		assert.False(t, exists)

		members, err := store.Members(ctx, "GROUP_site_eng_SiteManager", true)
		require.NoError(t, err)
		assert.Empty(t, members)

		err = store.DeleteGroup(ctx, "GROUP_devs")
		assert.ErrorIs(t, err, repo.ErrAuthorityNotFound)
	})
}

func TestPersons(t *testing.T) {
	store := NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddPerson(ctx, repo.Person{UserName: "bob", FirstName: "Bob", LastName: "Jones"}))

	person, err := store.Person(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", person.FirstName)
	assert.Equal(t, "Jones", person.LastName)

	exists, err := store.Exists(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = store.Person(ctx, "carol")
	assert.ErrorIs(t, err, repo.ErrPersonNotFound)
}

func TestPermissionEvaluation(t *testing.T) {
	store := NewTestStore(t)
	ctx := context.Background()

	store.RegisterImplication("SiteConsumer", repo.PermissionRead, repo.PermissionReadProperties)

	root, err := store.Root(ctx)
	require.NoError(t, err)
	site, err := store.CreateNode(ctx, root, "eng", "st:site", nil)
	require.NoError(t, err)
	container, err := store.CreateNode(ctx, site, "documentLibrary", "st:container", nil)
	require.NoError(t, err)

	require.NoError(t, store.CreateGroup(ctx, "GROUP_site_eng_SiteConsumer", "SiteConsumer"))
	require.NoError(t, store.AddMember(ctx, "GROUP_site_eng_SiteConsumer", "bob"))
	require.NoError(t, store.Set(ctx, site, "GROUP_site_eng_SiteConsumer", "SiteConsumer"))

	bob := repo.WithCaller(context.Background(), "bob")
	carol := repo.WithCaller(context.Background(), "carol")

	t.Run("direct grant via group", func(t *testing.T) {
		ok, err := store.HasAccess(bob, site, "SiteConsumer")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("implied permission", func(t *testing.T) {
		ok, err := store.HasAccess(bob, site, repo.PermissionRead)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("non-member denied", func(t *testing.T) {
		ok, err := store.HasAccess(carol, site, repo.PermissionRead)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("inherited through container", func(t *testing.T) {
		ok, err := store.HasAccess(bob, container, repo.PermissionRead)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("inheritance cut-off", func(t *testing.T) {
		require.NoError(t, store.SetInheritParent(ctx, container, false))
		ok, err := store.HasAccess(bob, container, repo.PermissionRead)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, store.SetInheritParent(ctx, container, true))
		ok, err = store.HasAccess(bob, container, repo.PermissionRead)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("system always allowed", func(t *testing.T) {
		system := repo.WithCaller(context.Background(), repo.SystemCaller)
		ok, err := store.HasAccess(system, site, "anything")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("administrators always allowed", func(t *testing.T) {
		require.NoError(t, store.CreateGroup(ctx, repo.AdministratorsGroup, "Site Administrators"))
		require.NoError(t, store.AddMember(ctx, repo.AdministratorsGroup, "carol"))
		ok, err := store.HasAccess(carol, site, "SiteManager")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("anonymous denied", func(t *testing.T) {
		ok, err := store.HasAccess(context.Background(), site, repo.PermissionRead)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("entries and defining acl", func(t *testing.T) {
		entries, err := store.Entries(ctx, site)
		require.NoError(t, err)
		assert.Equal(t, []repo.AccessEntry{{Authority: "GROUP_site_eng_SiteConsumer", Permission: "SiteConsumer"}}, entries)

		defined, err := store.HasDefiningACL(ctx, site)
		require.NoError(t, err)
		assert.True(t, defined)

		defined, err = store.HasDefiningACL(ctx, root)
		require.NoError(t, err)
		assert.False(t, defined)
	})

	t.Run("delete grant", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, site, "GROUP_site_eng_SiteConsumer", "SiteConsumer"))
		entries, err := store.Entries(ctx, site)
		require.NoError(t, err)
		assert.Empty(t, entries)

		// Deleting again is a no-op.
		require.NoError(t, store.Delete(ctx, site, "GROUP_site_eng_SiteConsumer", "SiteConsumer"))
	})
}

func TestSettablePermissions(t *testing.T) {
	store := NewTestStore(t)
	ctx := context.Background()

	store.RegisterSettablePermissions("st:site", []string{"SiteManager", "SiteConsumer"})

	perms, err := store.SettablePermissions(ctx, "st:site")
	require.NoError(t, err)
	assert.Equal(t, []string{"SiteManager", "SiteConsumer"}, perms)

	perms, err = store.SettablePermissions(ctx, "st:unknown")
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestInTransactionRollsBackOnError(t *testing.T) {
	store := NewTestStore(t)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := store.InTransaction(ctx, func(ctx context.Context) error {
		if err := store.CreateGroup(ctx, "GROUP_rollback", ""); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	exists, err := store.Exists(ctx, "GROUP_rollback")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInTransactionCommits(t *testing.T) {
	store := NewTestStore(t)
	ctx := context.Background()

	err := store.InTransaction(ctx, func(ctx context.Context) error {
		return store.CreateGroup(ctx, "GROUP_committed", "")
	})
	require.NoError(t, err)

	exists, err := store.Exists(ctx, "GROUP_committed")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestNestedTransactionJoins(t *testing.T) {
	store := NewTestStore(t)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := store.InTransaction(ctx, func(ctx context.Context) error {
		if err := store.CreateGroup(ctx, "GROUP_outer", ""); err != nil {
			return err
		}
		return store.InTransaction(ctx, func(ctx context.Context) error {
			if err := store.CreateGroup(ctx, "GROUP_inner", ""); err != nil {
				return err
			}
			return sentinel
		})
	})
	require.ErrorIs(t, err, sentinel)

	for _, name := range []string{"GROUP_outer", "GROUP_inner"} {
		exists, err := store.Exists(ctx, name)
		require.NoError(t, err)
		assert.False(t, exists, name)
	}
}
