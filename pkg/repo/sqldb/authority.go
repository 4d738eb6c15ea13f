package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sitekit/sitekit/pkg/repo"
)

// CreateGroup creates a group authority.
func (s *Store) CreateGroup(ctx context.Context, name, displayName string) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO auth_groups (name, display_name) VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING`, name, displayName)
	if err != nil {
		return fmt.Errorf("create group %q: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create group %q: %w", name, err)
	}
	if affected == 0 {
		return fmt.Errorf("group %q: %w", name, repo.ErrAlreadyExists)
	}
	return nil
}

// DeleteGroup deletes a group and every containment edge touching it.
func (s *Store) DeleteGroup(ctx context.Context, name string) error {
	if _, err := s.q(ctx).ExecContext(ctx,
		`DELETE FROM group_members WHERE child_name = $1`, name); err != nil {
		return fmt.Errorf("delete group %q: %w", name, err)
	}
	res, err := s.q(ctx).ExecContext(ctx, `DELETE FROM auth_groups WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete group %q: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete group %q: %w", name, err)
	}
	if affected == 0 {
		return fmt.Errorf("group %q: %w", name, repo.ErrAuthorityNotFound)
	}
	return nil
}

// AddMember adds a containment edge parent->child.
func (s *Store) AddMember(ctx context.Context, parent, child string) error {
	if err := s.requireGroup(ctx, parent); err != nil {
		return err
	}
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO group_members (parent_name, child_name) VALUES ($1, $2)
		ON CONFLICT (parent_name, child_name) DO NOTHING`, parent, child)
	if err != nil {
		return fmt.Errorf("add member %q to %q: %w", child, parent, err)
	}
	return nil
}

// RemoveMember removes a containment edge.
func (s *Store) RemoveMember(ctx context.Context, parent, child string) error {
	if err := s.requireGroup(ctx, parent); err != nil {
		return err
	}
	_, err := s.q(ctx).ExecContext(ctx,
		`DELETE FROM group_members WHERE parent_name = $1 AND child_name = $2`, parent, child)
	if err != nil {
		return fmt.Errorf("remove member %q from %q: %w", child, parent, err)
	}
	return nil
}

// Members returns the authorities contained in group, direct only or the
// full transitive closure.
func (s *Store) Members(ctx context.Context, group string, immediate bool) ([]string, error) {
	if err := s.requireGroup(ctx, group); err != nil {
		return nil, err
	}

	var rows *sql.Rows
	var err error
	if immediate {
		rows, err = s.q(ctx).QueryContext(ctx,
			`SELECT child_name FROM group_members WHERE parent_name = $1 ORDER BY child_name`, group)
	} else {
		rows, err = s.q(ctx).QueryContext(ctx, `
			WITH RECURSIVE closure(name) AS (
				SELECT child_name FROM group_members WHERE parent_name = $1
				UNION
				SELECT gm.child_name FROM group_members gm JOIN closure c ON gm.parent_name = c.name
			)
			SELECT name FROM closure ORDER BY name`, group)
	}
	if err != nil {
		return nil, fmt.Errorf("members of %q: %w", group, err)
	}
	members, err := scanStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("members of %q: %w", group, err)
	}
	return members, nil
}

// Groups returns the groups containing authority, direct only or the full
// transitive closure.
func (s *Store) Groups(ctx context.Context, authority string, immediate bool) ([]string, error) {
	var rows *sql.Rows
	var err error
	if immediate {
		rows, err = s.q(ctx).QueryContext(ctx,
			`SELECT parent_name FROM group_members WHERE child_name = $1 ORDER BY parent_name`, authority)
	} else {
		rows, err = s.q(ctx).QueryContext(ctx, `
			WITH RECURSIVE closure(name) AS (
				SELECT parent_name FROM group_members WHERE child_name = $1
				UNION
				SELECT gm.parent_name FROM group_members gm JOIN closure c ON gm.child_name = c.name
			)
			SELECT name FROM closure ORDER BY name`, authority)
	}
	if err != nil {
		return nil, fmt.Errorf("groups of %q: %w", authority, err)
	}
	groups, err := scanStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("groups of %q: %w", authority, err)
	}
	return groups, nil
}

// Exists reports whether an authority is known: a group row for group-style
// names, a person row otherwise.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	var query string
	if repo.IsGroup(name) {
		query = `SELECT 1 FROM auth_groups WHERE name = $1`
	} else {
		query = `SELECT 1 FROM persons WHERE user_name = $1`
	}
	var one int
	err := s.q(ctx).QueryRowContext(ctx, query, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("authority exists: %w", err)
	}
	return true, nil
}

// DisplayName returns a group's display name.
func (s *Store) DisplayName(ctx context.Context, name string) (string, error) {
	var display string
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT display_name FROM auth_groups WHERE name = $1`, name).Scan(&display)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("group %q: %w", name, repo.ErrAuthorityNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("group display name: %w", err)
	}
	return display, nil
}

// Person returns an individual's directory record.
func (s *Store) Person(ctx context.Context, userName string) (*repo.Person, error) {
	person := &repo.Person{UserName: userName}
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT first_name, last_name FROM persons WHERE user_name = $1`,
		userName).Scan(&person.FirstName, &person.LastName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("person %q: %w", userName, repo.ErrPersonNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("person %q: %w", userName, err)
	}
	return person, nil
}

// AddPerson records an individual in the directory. Upserts on user name.
func (s *Store) AddPerson(ctx context.Context, person repo.Person) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO persons (user_name, first_name, last_name) VALUES ($1, $2, $3)
		ON CONFLICT (user_name) DO UPDATE SET first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name`,
		person.UserName, person.FirstName, person.LastName)
	if err != nil {
		return fmt.Errorf("add person %q: %w", person.UserName, err)
	}
	return nil
}

func (s *Store) requireGroup(ctx context.Context, name string) error {
	var one int
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT 1 FROM auth_groups WHERE name = $1`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("group %q: %w", name, repo.ErrAuthorityNotFound)
	}
	if err != nil {
		return fmt.Errorf("check group: %w", err)
	}
	return nil
}
