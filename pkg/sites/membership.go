package sites

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sitekit/sitekit/pkg/observability"
	"github.com/sitekit/sitekit/pkg/repo"
)

// MembershipService resolves and mutates site memberships. Membership facts
// are not stored as first-class records: they are derived on demand from the
// containment facts of the site's role groups.
type MembershipService struct {
	repository  repo.Repository
	authorities repo.AuthorityStore
	permissions repo.PermissionStore
	directory   repo.IdentityDirectory
	roles       RoleSet
	log         *observability.Logger
}

// NewMembershipService creates a MembershipService over the given role set.
func NewMembershipService(r repo.Repository, auth repo.AuthorityStore, perms repo.PermissionStore, dir repo.IdentityDirectory, roles RoleSet, log *observability.Logger) *MembershipService {
	return &MembershipService{
		repository:  r,
		authorities: auth,
		permissions: perms,
		directory:   dir,
		roles:       roles,
		log:         log,
	}
}

// ResolveRole returns the effective role of an authority on a site, walking
// direct membership first and group containment second. ErrNotFound when the
// authority holds no role at all.
func (ms *MembershipService) ResolveRole(ctx context.Context, site *Site, authority string) (Role, error) {
	role, _, err := ms.resolve(ctx, site, authority)
	return role, err
}

// ResolveDisplayRole returns the effective role plus whether it was derived
// through group containment rather than a direct assignment.
func (ms *MembershipService) ResolveDisplayRole(ctx context.Context, site *Site, authority string) (Role, bool, error) {
	return ms.resolve(ctx, site, authority)
}

// resolve implements the role resolution order:
//
//  1. A direct role-group membership wins outright; at most one exists.
//  2. Otherwise collect roles reachable through transitive group
//     containment. Zero or one candidate needs no further work.
//  3. With several inherited candidates the highest-precedence role wins.
func (ms *MembershipService) resolve(ctx context.Context, site *Site, authority string) (Role, bool, error) {
	for _, role := range ms.roles {
		group := RoleGroupAuthority(site.ShortName, role)
		direct, err := ms.authorities.Members(ctx, group, true)
		if err != nil && !errors.Is(err, repo.ErrAuthorityNotFound) {
			return "", false, fmt.Errorf("resolve role of %q on site %q: %w", authority, site.ShortName, err)
		}
		if containsString(direct, authority) {
			return role, false, nil
		}
	}

	containing, err := ms.authorities.Groups(ctx, authority, false)
	if err != nil {
		return "", false, fmt.Errorf("resolve role of %q on site %q: %w", authority, site.ShortName, err)
	}

	var candidates []Role
	for _, role := range ms.roles {
		if containsString(containing, RoleGroupAuthority(site.ShortName, role)) {
			candidates = append(candidates, role)
		}
	}

	switch len(candidates) {
	case 0:
		return "", false, notFoundf("authority %q has no role on site %q", authority, site.ShortName)
	case 1:
		return candidates[0], true, nil
	}

	best := candidates[0]
	for _, role := range candidates[1:] {
		if ms.roles.Rank(role) > ms.roles.Rank(best) {
			best = role
		}
	}
	return best, true, nil
}

// ListMembers enumerates site members role group by role group.
//
// Individuals are matched against a case-insensitive, token-wise name filter
// over username, first and last name. Groups match on their own name or
// display name unless collapseGroups is set, in which case they expand to
// their contained individuals, each still subject to the filter. maxCount
// caps the result; zero or negative means unbounded.
//
// Expansion may surface the same individual more than once when reachable
// through two groups; callers deduplicate if needed.
func (ms *MembershipService) ListMembers(ctx context.Context, site *Site, nameFilter string, roleFilter Role, collapseGroups bool, maxCount int) ([]Member, error) {
	if roleFilter != "" && !ms.roles.Contains(roleFilter) {
		return nil, invalidf("list members of site %q: unknown role %q", site.ShortName, roleFilter)
	}

	var out []Member
	full := func() bool { return maxCount > 0 && len(out) >= maxCount }

	for _, role := range ms.roles {
		if roleFilter != "" && role != roleFilter {
			continue
		}
		group := RoleGroupAuthority(site.ShortName, role)
		members, err := ms.authorities.Members(ctx, group, true)
		if err != nil {
			if errors.Is(err, repo.ErrAuthorityNotFound) {
				continue
			}
			return nil, fmt.Errorf("list members of site %q: %w", site.ShortName, err)
		}

		for _, authority := range members {
			if full() {
				return out, nil
			}
			if !repo.IsGroup(authority) {
				member, ok, err := ms.matchPerson(ctx, authority, role, nameFilter)
				if err != nil {
					return nil, err
				}
				if ok {
					out = append(out, member)
				}
				continue
			}

			if collapseGroups {
				expanded, err := ms.authorities.Members(ctx, authority, false)
				if err != nil {
					return nil, fmt.Errorf("list members of site %q: expand %q: %w", site.ShortName, authority, err)
				}
				for _, user := range expanded {
					if full() {
						return out, nil
					}
					if repo.IsGroup(user) {
						continue
					}
					member, ok, err := ms.matchPerson(ctx, user, role, nameFilter)
					if err != nil {
						return nil, err
					}
					if ok {
						out = append(out, member)
					}
				}
				continue
			}

			member, ok, err := ms.matchGroup(ctx, authority, role, nameFilter)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, member)
			}
		}
	}
	return out, nil
}

// SetMembership assigns a role, replacing any previous direct role. A no-op
// when the authority's current resolved role already equals the target.
//
// The caller must hold change-permission rights on the site, be a site
// administrator, or be anonymously joining a PUBLIC site as Consumer with no
// prior membership. Downgrading the last manager is rejected.
func (ms *MembershipService) SetMembership(ctx context.Context, site *Site, authority string, role Role) error {
	if !ms.roles.Contains(role) {
		return invalidf("set membership on site %q: unknown role %q", site.ShortName, role)
	}
	if err := ms.checkAuthorityExists(ctx, authority); err != nil {
		return err
	}

	current, _, err := ms.resolve(ctx, site, authority)
	if err != nil && !IsNotFound(err) {
		return err
	}
	if current == role {
		return nil
	}

	if !ms.callerMayChange(ctx, site) {
		caller := repo.Caller(ctx)
		selfJoin := caller != "" && caller == authority &&
			site.Visibility == VisibilityPublic &&
			role == RoleConsumer && current == ""
		if !selfJoin {
			return deniedf("set membership of %q on site %q", authority, site.ShortName)
		}
	}

	if current == RoleManager && role != RoleManager {
		if err := ms.checkNotLastManager(ctx, site); err != nil {
			return err
		}
	}

	return ms.repository.RunAsSystem(ctx, func(ctx context.Context) error {
		if current != "" {
			if err := ms.authorities.RemoveMember(ctx, RoleGroupAuthority(site.ShortName, current), authority); err != nil &&
				!errors.Is(err, repo.ErrAuthorityNotFound) {
				return fmt.Errorf("set membership on site %q: leave %s: %w", site.ShortName, current, err)
			}
		}
		if err := ms.authorities.AddMember(ctx, RoleGroupAuthority(site.ShortName, role), authority); err != nil {
			return fmt.Errorf("set membership on site %q: join %s: %w", site.ShortName, role, err)
		}
		ms.log.WithFields(map[string]interface{}{
			"site":      site.ShortName,
			"authority": authority,
			"role":      string(role),
		}).Info("site membership set")
		return nil
	})
}

// RemoveMembership removes an authority's direct role. Self-removal is
// always allowed; otherwise the SetMembership authorization rule applies.
// Fails with ErrNotFound when the authority holds no direct role, and with
// ErrInvariantViolation when it is the last manager.
func (ms *MembershipService) RemoveMembership(ctx context.Context, site *Site, authority string) error {
	current, inherited, err := ms.resolve(ctx, site, authority)
	if err != nil {
		return err
	}
	if inherited {
		return notFoundf("authority %q has no direct role on site %q", authority, site.ShortName)
	}

	caller := repo.Caller(ctx)
	if caller != authority && !ms.callerMayChange(ctx, site) {
		return deniedf("remove membership of %q on site %q", authority, site.ShortName)
	}

	if current == RoleManager {
		if err := ms.checkNotLastManager(ctx, site); err != nil {
			return err
		}
	}

	return ms.repository.RunAsSystem(ctx, func(ctx context.Context) error {
		if err := ms.authorities.RemoveMember(ctx, RoleGroupAuthority(site.ShortName, current), authority); err != nil {
			return fmt.Errorf("remove membership of %q on site %q: %w", authority, site.ShortName, err)
		}
		ms.log.WithFields(map[string]interface{}{
			"site":      site.ShortName,
			"authority": authority,
			"role":      string(current),
		}).Info("site membership removed")
		return nil
	})
}

// CountRoleMembers counts the authorities holding the role directly
// (individuals and groups, not expanded).
func (ms *MembershipService) CountRoleMembers(ctx context.Context, site *Site, role Role) (int, error) {
	members, err := ms.authorities.Members(ctx, RoleGroupAuthority(site.ShortName, role), true)
	if err != nil {
		if errors.Is(err, repo.ErrAuthorityNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("count %s members of site %q: %w", role, site.ShortName, err)
	}
	return len(members), nil
}

// checkNotLastManager rejects the mutation when at most one authority holds
// Manager directly. The count is over direct members, not fully expanded
// membership: a group containing the last individual manager can itself be
// removed as long as another authority holds Manager directly. The check is
// advisory against concurrent removals; no lock is taken.
func (ms *MembershipService) checkNotLastManager(ctx context.Context, site *Site) error {
	count, err := ms.CountRoleMembers(ctx, site, RoleManager)
	if err != nil {
		return err
	}
	if count <= 1 {
		return fmt.Errorf("site %q must keep at least one manager: %w", site.ShortName, ErrInvariantViolation)
	}
	return nil
}

// callerMayChange reports whether the current caller may mutate memberships:
// system, site administrator, or holder of change-permission rights on the
// site root. The decision always runs as the original caller.
func (ms *MembershipService) callerMayChange(ctx context.Context, site *Site) bool {
	caller := repo.Caller(ctx)
	if caller == "" {
		return false
	}
	if caller == repo.SystemCaller {
		return true
	}
	if ms.isSiteAdmin(ctx, caller) {
		return true
	}
	ok, err := ms.permissions.HasAccess(ctx, site.NodeRef, repo.PermissionChangePermissions)
	if err != nil {
		ms.log.WithError(err).WithField("site", site.ShortName).Warn("membership access check failed")
		return false
	}
	return ok
}

func (ms *MembershipService) isSiteAdmin(ctx context.Context, authority string) bool {
	groups, err := ms.authorities.Groups(ctx, authority, false)
	if err != nil {
		return false
	}
	return containsString(groups, repo.AdministratorsGroup)
}

func (ms *MembershipService) checkAuthorityExists(ctx context.Context, authority string) error {
	ok, err := ms.authorities.Exists(ctx, authority)
	if err != nil {
		return fmt.Errorf("check authority %q: %w", authority, err)
	}
	if !ok {
		return notFoundf("authority %q", authority)
	}
	return nil
}

// matchPerson resolves a user's display attributes and applies the name
// filter. Users missing from the directory still list under their bare
// username.
func (ms *MembershipService) matchPerson(ctx context.Context, userName string, role Role, filter string) (Member, bool, error) {
	member := Member{Authority: userName, Role: role, DisplayName: userName}
	person, err := ms.directory.Person(ctx, userName)
	if err != nil {
		if !errors.Is(err, repo.ErrPersonNotFound) {
			return Member{}, false, fmt.Errorf("resolve person %q: %w", userName, err)
		}
	} else {
		member.FirstName = person.FirstName
		member.LastName = person.LastName
		if name := strings.TrimSpace(person.FirstName + " " + person.LastName); name != "" {
			member.DisplayName = name
		}
	}
	if !matchesNameFilter(filter, userName, member.FirstName, member.LastName) {
		return Member{}, false, nil
	}
	return member, true, nil
}

func (ms *MembershipService) matchGroup(ctx context.Context, authority string, role Role, filter string) (Member, bool, error) {
	display, err := ms.authorities.DisplayName(ctx, authority)
	if err != nil && !errors.Is(err, repo.ErrAuthorityNotFound) {
		return Member{}, false, fmt.Errorf("resolve group %q: %w", authority, err)
	}
	if !matchesNameFilter(filter, repo.GroupShortName(authority), display) {
		return Member{}, false, nil
	}
	return Member{Authority: authority, Role: role, IsGroup: true, DisplayName: display}, true, nil
}

// matchesNameFilter applies a case-insensitive, token-wise prefix match:
// every filter token must prefix at least one of the candidate values.
func matchesNameFilter(filter string, values ...string) bool {
	tokens := strings.Fields(strings.ToLower(filter))
	if len(tokens) == 0 {
		return true
	}
	for _, token := range tokens {
		matched := false
		for _, v := range values {
			if v != "" && strings.HasPrefix(strings.ToLower(v), token) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
