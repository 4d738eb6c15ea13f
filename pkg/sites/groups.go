package sites

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sitekit/sitekit/pkg/observability"
	"github.com/sitekit/sitekit/pkg/repo"
)

// Group naming is purely deterministic: any component can recompute group
// names from (site short name, role) without a lookup.

// MasterGroupName returns the short name of a site's master group.
func MasterGroupName(shortName string) string {
	return "site_" + shortName
}

// MasterGroupAuthority returns the full authority name of the master group.
func MasterGroupAuthority(shortName string) string {
	return repo.GroupAuthority(MasterGroupName(shortName))
}

// RoleGroupName returns the short name of a site's group for one role.
func RoleGroupName(shortName string, role Role) string {
	return "site_" + shortName + "_" + string(role)
}

// RoleGroupAuthority returns the full authority name of a role group.
func RoleGroupAuthority(shortName string, role Role) string {
	return repo.GroupAuthority(RoleGroupName(shortName, role))
}

// GroupNamespace returns the authority-name prefix shared by all of a
// site's role groups.
func GroupNamespace(shortName string) string {
	return repo.GroupPrefix + "site_" + shortName + "_"
}

// InGroupNamespace reports whether authority belongs to the site's group
// namespace (master group included).
func InGroupNamespace(shortName, authority string) bool {
	return authority == MasterGroupAuthority(shortName) ||
		strings.HasPrefix(authority, GroupNamespace(shortName))
}

// GroupManager provisions and tears down the authority group hierarchy of a
// site: one master group plus one group per settable role, each role group
// granted the matching permission on the site root.
type GroupManager struct {
	repository  repo.Repository
	authorities repo.AuthorityStore
	permissions repo.PermissionStore
	log         *observability.Logger
}

// NewGroupManager creates a GroupManager.
func NewGroupManager(r repo.Repository, auth repo.AuthorityStore, perms repo.PermissionStore, log *observability.Logger) *GroupManager {
	return &GroupManager{repository: r, authorities: auth, permissions: perms, log: log}
}

// Provision creates the master group and one group per role, nests the role
// groups under the master, and grants each role group its permission on the
// site root. Runs with elevated privilege: the invoking user has no rights
// yet on the not-yet-permissioned node.
//
// There is no partial rollback: a failure part-way leaves the groups created
// so far in place, and the enclosing transaction is expected to discard the
// node. The orphaned groups are reclaimed by the next provision attempt for
// the same short name failing the duplicate check.
func (gm *GroupManager) Provision(ctx context.Context, site *Site, roles RoleSet) error {
	return gm.repository.RunAsSystem(ctx, func(ctx context.Context) error {
		master := MasterGroupAuthority(site.ShortName)
		if err := gm.authorities.CreateGroup(ctx, master, site.Title); err != nil {
			return fmt.Errorf("provision site %q: create master group: %w", site.ShortName, err)
		}

		for _, role := range roles {
			group := RoleGroupAuthority(site.ShortName, role)
			if err := gm.authorities.CreateGroup(ctx, group, string(role)); err != nil {
				return fmt.Errorf("provision site %q: create group for role %s: %w", site.ShortName, role, err)
			}
			if err := gm.authorities.AddMember(ctx, master, group); err != nil {
				return fmt.Errorf("provision site %q: nest group for role %s: %w", site.ShortName, role, err)
			}
			if err := gm.permissions.Set(ctx, site.NodeRef, group, string(role)); err != nil {
				return fmt.Errorf("provision site %q: grant %s: %w", site.ShortName, role, err)
			}
		}

		gm.log.WithField("site", site.ShortName).Debug("provisioned site role groups")
		return nil
	})
}

// Deprovision deletes the role groups and then the master group. Invoked
// only from the post-purge hook, never on ordinary deletion, so ACL history
// stays recoverable while the site sits in the trash.
func (gm *GroupManager) Deprovision(ctx context.Context, shortName string, roles RoleSet) error {
	return gm.repository.RunAsSystem(ctx, func(ctx context.Context) error {
		for _, role := range roles {
			group := RoleGroupAuthority(shortName, role)
			if err := gm.authorities.DeleteGroup(ctx, group); err != nil {
				if errorsIsAuthorityMissing(err) {
					gm.log.WithField("group", group).Warn("role group already absent during deprovision")
					continue
				}
				return fmt.Errorf("deprovision site %q: delete group for role %s: %w", shortName, role, err)
			}
		}

		master := MasterGroupAuthority(shortName)
		if err := gm.authorities.DeleteGroup(ctx, master); err != nil {
			if errorsIsAuthorityMissing(err) {
				gm.log.WithField("group", master).Warn("master group already absent during deprovision")
				return nil
			}
			return fmt.Errorf("deprovision site %q: delete master group: %w", shortName, err)
		}

		gm.log.WithField("site", shortName).Debug("deprovisioned site role groups")
		return nil
	})
}

func errorsIsAuthorityMissing(err error) bool {
	return errors.Is(err, repo.ErrAuthorityNotFound)
}
