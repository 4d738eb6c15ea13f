package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sitekit/sitekit/pkg/repo"
)

// RegisterSettablePermissions declares the permissions assignable on nodes
// of the given type.
func (s *Store) RegisterSettablePermissions(nodeType string, permissions []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settable[nodeType] = append([]string(nil), permissions...)
}

// RegisterImplication declares that holding granted implies the listed
// permissions.
func (s *Store) RegisterImplication(granted string, implied ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.implications[granted]
	if set == nil {
		set = make(map[string]bool)
		s.implications[granted] = set
	}
	for _, p := range implied {
		set[p] = true
	}
}

// Set grants a permission to an authority on a node.
func (s *Store) Set(ctx context.Context, node repo.NodeRef, authority, permission string) error {
	if err := s.requireNode(ctx, node); err != nil {
		return err
	}
	if err := s.ensureACL(ctx, node, true); err != nil {
		return err
	}
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO acl_entries (node_id, authority, permission) VALUES ($1, $2, $3)
		ON CONFLICT (node_id, authority, permission) DO NOTHING`,
		string(node), authority, permission)
	if err != nil {
		return fmt.Errorf("set permission: %w", err)
	}
	return nil
}

// Delete removes a grant. Removing an absent grant is a no-op.
func (s *Store) Delete(ctx context.Context, node repo.NodeRef, authority, permission string) error {
	if err := s.requireNode(ctx, node); err != nil {
		return err
	}
	_, err := s.q(ctx).ExecContext(ctx,
		`DELETE FROM acl_entries WHERE node_id = $1 AND authority = $2 AND permission = $3`,
		string(node), authority, permission)
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	return nil
}

// Entries returns the grants set directly on the node.
func (s *Store) Entries(ctx context.Context, node repo.NodeRef) ([]repo.AccessEntry, error) {
	if err := s.requireNode(ctx, node); err != nil {
		return nil, err
	}
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT authority, permission FROM acl_entries WHERE node_id = $1 ORDER BY authority, permission`,
		string(node))
	if err != nil {
		return nil, fmt.Errorf("permission entries: %w", err)
	}
	defer rows.Close()

	var out []repo.AccessEntry
	for rows.Next() {
		var entry repo.AccessEntry
		if err := rows.Scan(&entry.Authority, &entry.Permission); err != nil {
			return nil, fmt.Errorf("permission entries: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// HasDefiningACL reports whether the node carries its own ACL.
func (s *Store) HasDefiningACL(ctx context.Context, node repo.NodeRef) (bool, error) {
	if err := s.requireNode(ctx, node); err != nil {
		return false, err
	}
	var defined bool
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT defined FROM acls WHERE node_id = $1`, string(node)).Scan(&defined)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("defining acl: %w", err)
	}
	return defined, nil
}

// SetInheritParent toggles parent ACL inheritance for a node.
func (s *Store) SetInheritParent(ctx context.Context, node repo.NodeRef, inherit bool) error {
	if err := s.requireNode(ctx, node); err != nil {
		return err
	}
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO acls (node_id, inherits, defined) VALUES ($1, $2, FALSE)
		ON CONFLICT (node_id) DO UPDATE SET inherits = EXCLUDED.inherits`,
		string(node), inherit)
	if err != nil {
		return fmt.Errorf("set inherit parent: %w", err)
	}
	return nil
}

// InheritsParent reports whether the node inherits its parent's ACL. Nodes
// with no ACL row inherit by default.
func (s *Store) InheritsParent(ctx context.Context, node repo.NodeRef) (bool, error) {
	if err := s.requireNode(ctx, node); err != nil {
		return false, err
	}
	var inherits bool
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT inherits FROM acls WHERE node_id = $1`, string(node)).Scan(&inherits)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("inherits parent: %w", err)
	}
	return inherits, nil
}

// SettablePermissions returns the permission names assignable on nodes of
// the given type.
func (s *Store) SettablePermissions(ctx context.Context, nodeType string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.settable[nodeType]...), nil
}

// HasAccess reports whether the current caller holds the permission on the
// node, directly, through group containment, or through ACL inheritance.
func (s *Store) HasAccess(ctx context.Context, node repo.NodeRef, permission string) (bool, error) {
	caller := repo.Caller(ctx)
	if caller == repo.SystemCaller {
		return true, nil
	}
	if caller == "" {
		return false, nil
	}
	if err := s.requireNode(ctx, node); err != nil {
		return false, err
	}

	groups, err := s.Groups(ctx, caller, false)
	if err != nil {
		return false, err
	}
	holders := map[string]bool{caller: true, repo.EveryoneAuthority: true}
	for _, g := range groups {
		if g == repo.AdministratorsGroup {
			return true, nil
		}
		holders[g] = true
	}

	current := node
	for {
		entries, err := s.Entries(ctx, current)
		if err != nil {
			return false, err
		}
		for _, entry := range entries {
			if holders[entry.Authority] && s.permissionImplies(entry.Permission, permission) {
				return true, nil
			}
		}

		inherits, err := s.InheritsParent(ctx, current)
		if err != nil {
			return false, err
		}
		if !inherits {
			return false, nil
		}
		parent, err := s.Parent(ctx, current)
		if err != nil {
			if errors.Is(err, repo.ErrNodeNotFound) {
				return false, nil
			}
			return false, err
		}
		current = parent
	}
}

// permissionImplies reports whether holding granted satisfies needed.
func (s *Store) permissionImplies(granted, needed string) bool {
	if granted == needed || granted == repo.PermissionFullControl {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.implications[granted][needed]
}

// ensureACL upserts the node's ACL row, optionally marking it defining.
func (s *Store) ensureACL(ctx context.Context, node repo.NodeRef, defined bool) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO acls (node_id, inherits, defined) VALUES ($1, TRUE, $2)
		ON CONFLICT (node_id) DO UPDATE SET defined = acls.defined OR EXCLUDED.defined`,
		string(node), defined)
	if err != nil {
		return fmt.Errorf("ensure acl: %w", err)
	}
	return nil
}
