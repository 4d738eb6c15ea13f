package sites

import (
	"time"

	"github.com/sitekit/sitekit/pkg/repo"
)

// Visibility controls default access for non-members of a site.
type Visibility string

const (
	VisibilityPublic    Visibility = "PUBLIC"
	VisibilityModerated Visibility = "MODERATED"
	VisibilityPrivate   Visibility = "PRIVATE"
)

// Valid reports whether v is one of the three visibility modes.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityModerated, VisibilityPrivate:
		return true
	}
	return false
}

// Role is a site role. Role names double as the permission names granted to
// the matching role group on the site root.
type Role string

const (
	RoleManager      Role = "SiteManager"
	RoleCollaborator Role = "SiteCollaborator"
	RoleContributor  Role = "SiteContributor"
	RoleConsumer     Role = "SiteConsumer"
)

// RoleSet is the ordered list of settable roles for a site type, highest
// precedence first.
type RoleSet []Role

// DefaultRoleSet returns the standard site role set.
func DefaultRoleSet() RoleSet {
	return RoleSet{RoleManager, RoleCollaborator, RoleContributor, RoleConsumer}
}

// Rank returns the precedence rank of a role: higher means more privileged.
// Roles not in the set rank lowest (zero).
func (rs RoleSet) Rank(r Role) int {
	for i, role := range rs {
		if role == r {
			return len(rs) - i
		}
	}
	return 0
}

// Contains reports whether r is a settable role.
func (rs RoleSet) Contains(r Role) bool {
	return rs.Rank(r) > 0
}

// Site is a named collaboration space.
type Site struct {
	// ShortName is globally unique and immutable after creation.
	ShortName   string
	Preset      string
	Title       string
	Description string
	Visibility  Visibility

	// CustomProperties holds caller-defined key/value properties.
	CustomProperties map[string]string

	CreatedAt  time.Time
	ModifiedAt time.Time

	// NodeRef is the opaque handle of the backing node.
	NodeRef repo.NodeRef
}

// Member is one entry of a site member listing.
type Member struct {
	Authority   string
	Role        Role
	IsGroup     bool
	FirstName   string
	LastName    string
	DisplayName string
}

// Node types, aspects and property keys used on site nodes.
const (
	NodeTypeSite      = "st:site"
	NodeTypeContainer = "st:container"

	AspectTagScope    = "st:tagScope"
	AspectUndeletable = "sys:undeletable"
	AspectAuditable   = "sys:auditable"

	PropPreset      = "st:preset"
	PropTitle       = "st:title"
	PropDescription = "st:description"
	PropVisibility  = "st:visibility"
	PropCreator     = "st:creator"
	PropCreated     = "st:created"
	PropModified    = "st:modified"

	// customPropPrefix namespaces caller-defined properties on the node.
	customPropPrefix = "stc:"
)

// SitesRootName is the association name of the well-known node holding all
// sites under the repository root.
const SitesRootName = "st:sites"

// maxAuthorityNameLength is the backing store's authority name budget.
const maxAuthorityNameLength = 100

// PermissionModelRegistrar is implemented by backends that are told the
// deployed permission model at wiring time (the in-memory and SQL reference
// backends). Production repositories already know their model and ignore
// this.
type PermissionModelRegistrar interface {
	RegisterSettablePermissions(nodeType string, permissions []string)
	RegisterImplication(granted string, implied ...string)
}

// RegisterPermissionModel teaches a reference backend the site permission
// model: which permissions are settable on site nodes and what each role
// permission implies.
func RegisterPermissionModel(r PermissionModelRegistrar) {
	roles := DefaultRoleSet()
	perms := make([]string, len(roles))
	for i, role := range roles {
		perms[i] = string(role)
	}
	r.RegisterSettablePermissions(NodeTypeSite, perms)
	r.RegisterSettablePermissions(NodeTypeContainer, perms)

	r.RegisterImplication(string(RoleManager),
		repo.PermissionRead, repo.PermissionReadProperties, repo.PermissionChangePermissions)
	r.RegisterImplication(string(RoleCollaborator),
		repo.PermissionRead, repo.PermissionReadProperties)
	r.RegisterImplication(string(RoleContributor),
		repo.PermissionRead, repo.PermissionReadProperties)
	r.RegisterImplication(string(RoleConsumer),
		repo.PermissionRead, repo.PermissionReadProperties)
}
