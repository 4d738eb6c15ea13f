package sites

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sitekit/sitekit/pkg/observability"
	"github.com/sitekit/sitekit/pkg/repo"
)

// Cleaner removes stale site-group permission grants from nodes that were
// copied or moved out of the site whose groups the grants name. Without it a
// node dragged from site A into site B keeps A's role groups on its ACL, and
// A's members silently retain access inside B.
type Cleaner struct {
	repository  repo.Repository
	permissions repo.PermissionStore
	log         *observability.Logger
	metrics     *observability.Metrics
}

// NewCleaner creates a Cleaner.
func NewCleaner(r repo.Repository, perms repo.PermissionStore, log *observability.Logger, metrics *observability.Metrics) *Cleaner {
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &Cleaner{repository: r, permissions: perms, log: log, metrics: metrics}
}

// Clean walks the subtree under node and strips permission entries naming
// role groups of foreign sites. knownSite, when non-empty, names the site the
// node now lives in and skips the ancestry walk; otherwise the containing
// site is resolved by walking up the primary parent chain. A node outside any
// site is left untouched.
//
// Nodes without a defining ACL only carry inherited permissions and are
// skipped, but their children are still visited. When stripping empties a
// node's own grants down to nothing site-specific, parent inheritance is
// turned back on so the node follows its new home.
func (c *Cleaner) Clean(ctx context.Context, node repo.NodeRef, knownSite string) error {
	return c.repository.RunAsSystem(ctx, func(ctx context.Context) error {
		shortName := knownSite
		if shortName == "" {
			var err error
			shortName, err = c.containingSite(ctx, node)
			if err != nil {
				return err
			}
			if shortName == "" {
				return nil
			}
		}

		// Explicit worklist: relocated subtrees can be deep and recursion
		// depth should not depend on repository content.
		stack := []repo.NodeRef{node}
		for len(stack) > 0 {
			current := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if err := c.cleanNode(ctx, current, shortName); err != nil {
				return err
			}

			children, err := c.repository.Children(ctx, current)
			if err != nil {
				if errors.Is(err, repo.ErrNodeNotFound) {
					continue
				}
				return fmt.Errorf("clean permissions: %w", err)
			}
			for _, child := range children {
				if child.Primary {
					stack = append(stack, child.Ref)
				}
			}
		}
		return nil
	})
}

// cleanNode strips foreign site-group entries from one node's defining ACL.
func (c *Cleaner) cleanNode(ctx context.Context, node repo.NodeRef, shortName string) error {
	c.metrics.CleanerNodesVisitedTotal.Inc()

	defined, err := c.permissions.HasDefiningACL(ctx, node)
	if err != nil {
		return fmt.Errorf("clean permissions: %w", err)
	}
	if !defined {
		return nil
	}

	entries, err := c.permissions.Entries(ctx, node)
	if err != nil {
		return fmt.Errorf("clean permissions: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if !isForeignSiteGroup(entry.Authority, shortName) {
			continue
		}
		if err := c.permissions.Delete(ctx, node, entry.Authority, entry.Permission); err != nil {
			return fmt.Errorf("clean permissions: drop %s for %s: %w", entry.Permission, entry.Authority, err)
		}
		removed++
	}
	if removed == 0 {
		return nil
	}
	c.metrics.CleanerEntriesRemovedTotal.Add(float64(removed))

	inherits, err := c.permissions.InheritsParent(ctx, node)
	if err != nil {
		return fmt.Errorf("clean permissions: %w", err)
	}
	if !inherits {
		if err := c.permissions.SetInheritParent(ctx, node, true); err != nil {
			return fmt.Errorf("clean permissions: restore inheritance: %w", err)
		}
	}

	c.log.WithFields(map[string]interface{}{
		"node":    string(node),
		"site":    shortName,
		"removed": removed,
	}).Debug("stripped foreign site grants")
	return nil
}

// containingSite walks up the primary parent chain to the enclosing site
// node and returns its short name, or empty when the node lives outside any
// site.
func (c *Cleaner) containingSite(ctx context.Context, node repo.NodeRef) (string, error) {
	current := node
	for {
		nodeType, err := c.repository.NodeType(ctx, current)
		if err != nil {
			if errors.Is(err, repo.ErrNodeNotFound) {
				return "", nil
			}
			return "", fmt.Errorf("resolve containing site: %w", err)
		}
		if nodeType == NodeTypeSite {
			parent, err := c.repository.Parent(ctx, current)
			if err != nil {
				return "", fmt.Errorf("resolve containing site: %w", err)
			}
			name, err := c.childName(ctx, parent, current)
			if err != nil {
				return "", err
			}
			return name, nil
		}

		parent, err := c.repository.Parent(ctx, current)
		if err != nil {
			if errors.Is(err, repo.ErrNodeNotFound) {
				return "", nil
			}
			return "", fmt.Errorf("resolve containing site: %w", err)
		}
		current = parent
	}
}

func (c *Cleaner) childName(ctx context.Context, parent, child repo.NodeRef) (string, error) {
	children, err := c.repository.Children(ctx, parent)
	if err != nil {
		return "", fmt.Errorf("resolve containing site: %w", err)
	}
	for _, assoc := range children {
		if assoc.Ref == child {
			return assoc.Name, nil
		}
	}
	return "", fmt.Errorf("resolve containing site: node detached from parent: %w", repo.ErrNodeNotFound)
}

// isForeignSiteGroup reports whether authority is a role or master group of
// some site other than shortName. The everyone marker and non-site groups
// are never foreign.
func isForeignSiteGroup(authority, shortName string) bool {
	if authority == repo.EveryoneAuthority {
		return false
	}
	if !repo.IsGroup(authority) {
		return false
	}
	if !strings.HasPrefix(authority, repo.GroupPrefix+"site_") {
		return false
	}
	return !InGroupNamespace(shortName, authority)
}
