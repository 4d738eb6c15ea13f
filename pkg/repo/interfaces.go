package repo

import (
	"context"
	"errors"
	"strings"
	"time"
)

// NodeRef is an opaque handle to a node in the backing repository.
type NodeRef string

// ChildAssoc describes one parent->child association.
type ChildAssoc struct {
	Ref     NodeRef
	Name    string
	Primary bool
}

// TrashEntry describes a soft-deleted node awaiting purge or restore.
type TrashEntry struct {
	Ref       NodeRef
	Name      string
	NodeType  string
	DeletedAt time.Time
}

// AccessEntry is one permission grant set directly on a node.
type AccessEntry struct {
	Authority  string
	Permission string
}

// Person holds the display attributes of an individual.
type Person struct {
	UserName  string
	FirstName string
	LastName  string
}

// Errors returned by repository implementations. Callers match with errors.Is.
var (
	ErrNodeNotFound      = errors.New("node not found")
	ErrAuthorityNotFound = errors.New("authority not found")
	ErrPersonNotFound    = errors.New("person not found")
	ErrAlreadyExists     = errors.New("already exists")
)

// Repository is the tree-structured content store. Implementations supply
// transactional commit-on-success, rollback-on-error semantics through
// InTransaction; no operation in sitekit manages transactions itself.
type Repository interface {
	// CreateNode creates a child node under parent with the given name,
	// type and initial properties.
	CreateNode(ctx context.Context, parent NodeRef, name, nodeType string, props map[string]string) (NodeRef, error)

	// DeleteNode soft-deletes a node and its subtree into the trash.
	DeleteNode(ctx context.Context, ref NodeRef) error

	// PurgeNode permanently removes a trashed node. Purging a live node is
	// an error.
	PurgeNode(ctx context.Context, ref NodeRef) error

	// ListTrash returns all trashed top-level entries.
	ListTrash(ctx context.Context) ([]TrashEntry, error)

	// MoveNode reparents a node.
	MoveNode(ctx context.Context, ref, newParent NodeRef) error

	// NodeExists reports whether the node is live (not trashed, not purged).
	NodeExists(ctx context.Context, ref NodeRef) (bool, error)

	// Parent returns the primary parent. The root node returns
	// ErrNodeNotFound.
	Parent(ctx context.Context, ref NodeRef) (NodeRef, error)

	// Children returns all child associations of a node.
	Children(ctx context.Context, ref NodeRef) ([]ChildAssoc, error)

	// ChildByName resolves a child by association name, or ErrNodeNotFound.
	ChildByName(ctx context.Context, parent NodeRef, name string) (NodeRef, error)

	// Root returns the repository root node.
	Root(ctx context.Context) (NodeRef, error)

	// NodeType returns the type a node was created with.
	NodeType(ctx context.Context, ref NodeRef) (string, error)

	Property(ctx context.Context, ref NodeRef, key string) (string, bool, error)
	SetProperty(ctx context.Context, ref NodeRef, key, value string) error
	Properties(ctx context.Context, ref NodeRef) (map[string]string, error)

	AddAspect(ctx context.Context, ref NodeRef, aspect string) error
	RemoveAspect(ctx context.Context, ref NodeRef, aspect string) error
	HasAspect(ctx context.Context, ref NodeRef, aspect string) (bool, error)

	// RunAsSystem executes fn with the system identity as the caller.
	RunAsSystem(ctx context.Context, fn func(ctx context.Context) error) error

	// InTransaction executes fn inside one transactional unit of work.
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// AuthorityStore manages group authorities and their containment edges.
// All group names are full authority names including the GROUP_ prefix.
type AuthorityStore interface {
	CreateGroup(ctx context.Context, name, displayName string) error
	DeleteGroup(ctx context.Context, name string) error

	// AddMember adds a containment edge parent->child. The child may be an
	// individual or another group.
	AddMember(ctx context.Context, parent, child string) error
	RemoveMember(ctx context.Context, parent, child string) error

	// Members returns the authorities contained in group. With immediate
	// set, only direct members; otherwise the full transitive closure.
	Members(ctx context.Context, group string, immediate bool) ([]string, error)

	// Groups returns the groups containing authority, direct or transitive.
	Groups(ctx context.Context, authority string, immediate bool) ([]string, error)

	Exists(ctx context.Context, name string) (bool, error)
	DisplayName(ctx context.Context, name string) (string, error)
}

// PermissionStore manages permission grants on nodes.
type PermissionStore interface {
	Set(ctx context.Context, node NodeRef, authority, permission string) error
	Delete(ctx context.Context, node NodeRef, authority, permission string) error

	// Entries returns the permissions set directly on the node (its
	// defining ACL), excluding anything inherited.
	Entries(ctx context.Context, node NodeRef) ([]AccessEntry, error)

	// HasDefiningACL reports whether the node carries its own ACL rather
	// than only an inherited one.
	HasDefiningACL(ctx context.Context, node NodeRef) (bool, error)

	SetInheritParent(ctx context.Context, node NodeRef, inherit bool) error
	InheritsParent(ctx context.Context, node NodeRef) (bool, error)

	// SettablePermissions returns the permission names assignable on nodes
	// of the given type.
	SettablePermissions(ctx context.Context, nodeType string) ([]string, error)

	// HasAccess reports whether the current caller (repo.Caller) holds the
	// permission on the node, directly or via group or inheritance.
	HasAccess(ctx context.Context, node NodeRef, permission string) (bool, error)
}

// IdentityDirectory resolves individuals.
type IdentityDirectory interface {
	Person(ctx context.Context, userName string) (*Person, error)
	Exists(ctx context.Context, userName string) (bool, error)
}

// Backend aggregates the four collaborator contracts. Storage adapters
// implement all of them on one handle.
type Backend interface {
	Repository
	AuthorityStore
	PermissionStore
	IdentityDirectory
}

// Well-known authorities and permissions.
const (
	// GroupPrefix marks group-style authority names.
	GroupPrefix = "GROUP_"

	// EveryoneAuthority is the universal "all authorities" marker.
	EveryoneAuthority = "GROUP_EVERYONE"

	// AdministratorsGroup members may administer any site.
	AdministratorsGroup = "GROUP_SITE_ADMINISTRATORS"

	// PermissionRead allows reading node content and properties.
	PermissionRead = "Read"

	// PermissionReadProperties allows reading node properties.
	PermissionReadProperties = "ReadProperties"

	// PermissionChangePermissions allows mutating a node's ACL.
	PermissionChangePermissions = "ChangePermissions"

	// PermissionFullControl implies every other permission.
	PermissionFullControl = "FullControl"
)

// IsGroup reports whether an authority name denotes a group.
func IsGroup(authority string) bool {
	return strings.HasPrefix(authority, GroupPrefix)
}

// GroupAuthority converts a group short name to its full authority name.
func GroupAuthority(shortName string) string {
	if strings.HasPrefix(shortName, GroupPrefix) {
		return shortName
	}
	return GroupPrefix + shortName
}

// GroupShortName strips the group prefix from a full authority name.
func GroupShortName(authority string) string {
	return strings.TrimPrefix(authority, GroupPrefix)
}
