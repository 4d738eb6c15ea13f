package sites

import (
	"context"
	"errors"
	"fmt"

	"github.com/sitekit/sitekit/pkg/repo"
)

// Container is one component folder of a site, addressed by component id
// ("documentLibrary", "wiki", "discussions").
type Container struct {
	ComponentID string
	NodeRef     repo.NodeRef
}

// GetContainer resolves a site's container by component id, creating it on
// first access. Containers are created lazily: a site starts empty and grows
// a container the first time a component touches it.
//
// On non-PUBLIC sites the new container gets explicit role-group grants with
// parent inheritance off, matching what a visibility transition into
// MODERATED would have applied.
func (s *Service) GetContainer(ctx context.Context, shortName, componentID string) (*Container, error) {
	if componentID == "" {
		return nil, invalidf("get container of site %q: empty component id", shortName)
	}

	site, err := s.getSiteAny(ctx, shortName)
	if err != nil {
		return nil, err
	}
	if !s.canRead(ctx, site) {
		return nil, notFoundf("site %q", shortName)
	}

	var ref repo.NodeRef
	err = s.repository.RunAsSystem(ctx, func(ctx context.Context) error {
		var err error
		ref, err = s.repository.ChildByName(ctx, site.NodeRef, componentID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repo.ErrNodeNotFound) {
			return fmt.Errorf("get container %q of site %q: %w", componentID, shortName, err)
		}
		ref, err = s.createContainer(ctx, site, componentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Container{ComponentID: componentID, NodeRef: ref}, nil
}

// HasContainer reports whether the container already exists, without
// creating it.
func (s *Service) HasContainer(ctx context.Context, shortName, componentID string) (bool, error) {
	site, err := s.getSiteAny(ctx, shortName)
	if err != nil {
		return false, err
	}

	exists := false
	err = s.repository.RunAsSystem(ctx, func(ctx context.Context) error {
		_, err := s.repository.ChildByName(ctx, site.NodeRef, componentID)
		if err == nil {
			exists = true
			return nil
		}
		if errors.Is(err, repo.ErrNodeNotFound) {
			return nil
		}
		return fmt.Errorf("check container %q of site %q: %w", componentID, shortName, err)
	})
	return exists, err
}

// ListContainers returns a site's existing containers in association name
// order as the repository reports them.
func (s *Service) ListContainers(ctx context.Context, shortName string) ([]Container, error) {
	site, err := s.getSiteAny(ctx, shortName)
	if err != nil {
		return nil, err
	}
	if !s.canRead(ctx, site) {
		return nil, notFoundf("site %q", shortName)
	}

	var out []Container
	err = s.repository.RunAsSystem(ctx, func(ctx context.Context) error {
		children, err := s.repository.Children(ctx, site.NodeRef)
		if err != nil {
			return fmt.Errorf("list containers of site %q: %w", shortName, err)
		}
		for _, child := range children {
			if !child.Primary {
				continue
			}
			nodeType, err := s.repository.NodeType(ctx, child.Ref)
			if err != nil {
				return fmt.Errorf("list containers of site %q: %w", shortName, err)
			}
			if nodeType != NodeTypeContainer {
				continue
			}
			out = append(out, Container{ComponentID: child.Name, NodeRef: child.Ref})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// createContainer creates the container node and applies the permission
// layout the site's visibility demands. Caller runs as system.
func (s *Service) createContainer(ctx context.Context, site *Site, componentID string) (repo.NodeRef, error) {
	ref, err := s.repository.CreateNode(ctx, site.NodeRef, componentID, NodeTypeContainer, nil)
	if err != nil {
		return "", fmt.Errorf("create container %q of site %q: %w", componentID, site.ShortName, err)
	}
	if err := s.repository.AddAspect(ctx, ref, AspectTagScope); err != nil {
		return "", fmt.Errorf("create container %q of site %q: %w", componentID, site.ShortName, err)
	}

	if site.Visibility != VisibilityPublic {
		if err := s.permissions.SetInheritParent(ctx, ref, false); err != nil {
			return "", fmt.Errorf("create container %q of site %q: %w", componentID, site.ShortName, err)
		}
		for _, role := range s.roles {
			group := RoleGroupAuthority(site.ShortName, role)
			if err := s.permissions.Set(ctx, ref, group, string(role)); err != nil {
				return "", fmt.Errorf("create container %q of site %q: grant %s: %w", componentID, site.ShortName, role, err)
			}
		}
	}

	s.log.WithFields(map[string]interface{}{
		"site":      site.ShortName,
		"container": componentID,
	}).Debug("site container created")
	return ref, nil
}
