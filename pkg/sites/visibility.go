package sites

import (
	"context"
	"fmt"

	"github.com/sitekit/sitekit/pkg/observability"
	"github.com/sitekit/sitekit/pkg/repo"
)

// VisibilityController computes and applies the permission set implied by a
// site's visibility mode.
//
// PUBLIC grants the public authority Consumer on the site root; containers
// inherit. MODERATED keeps the same public grant on the root but gives every
// child container an explicit, non-inherited copy of the role-group grants,
// so unmoderated containers stay restricted while the root remains
// discoverable. PRIVATE has no public grant; containers created under it get
// the same explicit grants as MODERATED.
type VisibilityController struct {
	repository  repo.Repository
	authorities repo.AuthorityStore
	permissions repo.PermissionStore
	log         *observability.Logger

	// publicAuthority receives the Consumer grant on PUBLIC and MODERATED
	// sites. Defaults to repo.EveryoneAuthority.
	publicAuthority string
}

// NewVisibilityController creates a VisibilityController granting public
// access to publicAuthority.
func NewVisibilityController(r repo.Repository, auth repo.AuthorityStore, perms repo.PermissionStore, publicAuthority string, log *observability.Logger) *VisibilityController {
	if publicAuthority == "" {
		publicAuthority = repo.EveryoneAuthority
	}
	return &VisibilityController{
		repository:      r,
		authorities:     auth,
		permissions:     perms,
		publicAuthority: publicAuthority,
		log:             log,
	}
}

// PublicAuthority returns the configured public authority.
func (vc *VisibilityController) PublicAuthority() string {
	return vc.publicAuthority
}

// Apply sets up the grants for a site's current visibility. Used at site
// creation; Transition handles later mode changes.
func (vc *VisibilityController) Apply(ctx context.Context, site *Site, roles RoleSet) error {
	if err := vc.checkPublicAuthority(ctx); err != nil {
		return err
	}
	return vc.repository.RunAsSystem(ctx, func(ctx context.Context) error {
		return vc.applyGrants(ctx, site, site.Visibility, roles)
	})
}

// Transition switches a site from one visibility mode to another. If the
// modes are equal this is a no-op: no permission is touched. The configured
// public authority must exist before any mutation happens.
func (vc *VisibilityController) Transition(ctx context.Context, site *Site, oldV, newV Visibility, roles RoleSet) error {
	if oldV == newV {
		return nil
	}
	if !newV.Valid() {
		return invalidf("transition site %q: unknown visibility %q", site.ShortName, newV)
	}
	if err := vc.checkPublicAuthority(ctx); err != nil {
		return err
	}

	return vc.repository.RunAsSystem(ctx, func(ctx context.Context) error {
		// Remove the public grant of the old mode. Try both the configured
		// authority and the literal everyone marker: the configuration may
		// have changed since the grant was made.
		if err := vc.permissions.Delete(ctx, site.NodeRef, vc.publicAuthority, string(RoleConsumer)); err != nil {
			return fmt.Errorf("transition site %q: drop public grant: %w", site.ShortName, err)
		}
		if vc.publicAuthority != repo.EveryoneAuthority {
			if err := vc.permissions.Delete(ctx, site.NodeRef, repo.EveryoneAuthority, string(RoleConsumer)); err != nil {
				return fmt.Errorf("transition site %q: drop everyone grant: %w", site.ShortName, err)
			}
		}

		if oldV == VisibilityModerated {
			if err := vc.restoreContainerInheritance(ctx, site, roles); err != nil {
				return err
			}
		}

		if err := vc.applyGrants(ctx, site, newV, roles); err != nil {
			return err
		}

		if err := vc.repository.SetProperty(ctx, site.NodeRef, PropVisibility, string(newV)); err != nil {
			return fmt.Errorf("transition site %q: persist visibility: %w", site.ShortName, err)
		}

		vc.log.WithFields(map[string]interface{}{
			"site": site.ShortName,
			"from": string(oldV),
			"to":   string(newV),
		}).Info("site visibility changed")
		return nil
	})
}

// DeriveVisibility infers the visibility of a legacy site that carries no
// explicit visibility property, by scanning the set permissions for a
// Consumer grant to the public authority. Backward compatibility only.
func (vc *VisibilityController) DeriveVisibility(ctx context.Context, node repo.NodeRef) (Visibility, error) {
	entries, err := vc.permissions.Entries(ctx, node)
	if err != nil {
		return "", fmt.Errorf("derive visibility: %w", err)
	}
	for _, e := range entries {
		if e.Permission != string(RoleConsumer) {
			continue
		}
		if e.Authority == vc.publicAuthority || e.Authority == repo.EveryoneAuthority {
			return VisibilityPublic, nil
		}
	}
	return VisibilityPrivate, nil
}

func (vc *VisibilityController) checkPublicAuthority(ctx context.Context) error {
	ok, err := vc.authorities.Exists(ctx, vc.publicAuthority)
	if err != nil {
		return fmt.Errorf("check public authority: %w", err)
	}
	if !ok {
		return fmt.Errorf("public authority %q does not exist: %w", vc.publicAuthority, ErrConfiguration)
	}
	return nil
}

func (vc *VisibilityController) applyGrants(ctx context.Context, site *Site, v Visibility, roles RoleSet) error {
	switch v {
	case VisibilityPublic, VisibilityModerated:
		if err := vc.permissions.Set(ctx, site.NodeRef, vc.publicAuthority, string(RoleConsumer)); err != nil {
			return fmt.Errorf("apply %s to site %q: public grant: %w", v, site.ShortName, err)
		}
	case VisibilityPrivate:
		// No public grant.
	default:
		return invalidf("apply visibility to site %q: unknown visibility %q", site.ShortName, v)
	}

	if v == VisibilityModerated {
		return vc.moderateContainers(ctx, site, roles)
	}
	return nil
}

// moderateContainers gives every existing child container an explicit,
// non-inherited copy of the site's role-group grants.
func (vc *VisibilityController) moderateContainers(ctx context.Context, site *Site, roles RoleSet) error {
	containers, err := vc.siteContainers(ctx, site)
	if err != nil {
		return err
	}
	for _, container := range containers {
		if err := vc.permissions.SetInheritParent(ctx, container, false); err != nil {
			return fmt.Errorf("moderate container of site %q: %w", site.ShortName, err)
		}
		for _, role := range roles {
			group := RoleGroupAuthority(site.ShortName, role)
			if err := vc.permissions.Set(ctx, container, group, string(role)); err != nil {
				return fmt.Errorf("moderate container of site %q: grant %s: %w", site.ShortName, role, err)
			}
		}
	}
	return nil
}

// restoreContainerInheritance undoes moderateContainers: drops the explicit
// role-group grants and turns parent inheritance back on.
func (vc *VisibilityController) restoreContainerInheritance(ctx context.Context, site *Site, roles RoleSet) error {
	containers, err := vc.siteContainers(ctx, site)
	if err != nil {
		return err
	}
	for _, container := range containers {
		for _, role := range roles {
			group := RoleGroupAuthority(site.ShortName, role)
			if err := vc.permissions.Delete(ctx, container, group, string(role)); err != nil {
				return fmt.Errorf("restore container of site %q: drop %s: %w", site.ShortName, role, err)
			}
		}
		if err := vc.permissions.SetInheritParent(ctx, container, true); err != nil {
			return fmt.Errorf("restore container of site %q: %w", site.ShortName, err)
		}
	}
	return nil
}

func (vc *VisibilityController) siteContainers(ctx context.Context, site *Site) ([]repo.NodeRef, error) {
	children, err := vc.repository.Children(ctx, site.NodeRef)
	if err != nil {
		return nil, fmt.Errorf("list containers of site %q: %w", site.ShortName, err)
	}
	var containers []repo.NodeRef
	for _, child := range children {
		if !child.Primary {
			continue
		}
		nodeType, err := vc.repository.NodeType(ctx, child.Ref)
		if err != nil {
			return nil, fmt.Errorf("list containers of site %q: %w", site.ShortName, err)
		}
		if nodeType == NodeTypeContainer {
			containers = append(containers, child.Ref)
		}
	}
	return containers, nil
}
