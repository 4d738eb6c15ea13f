package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sitekit/sitekit/pkg/observability"
	"github.com/sitekit/sitekit/pkg/repo"
)

// Store implements repo.Backend on a SQL database.
type Store struct {
	db      *sql.DB
	dialect Dialect
	log     *observability.Logger

	mu           sync.RWMutex
	settable     map[string][]string
	implications map[string]map[string]bool

	rootOnce sync.Once
	rootID   repo.NodeRef
	rootErr  error
}

var _ repo.Backend = (*Store)(nil)

// New creates a Store over an open database handle. Migrate must have run
// against the same database.
func New(db *sql.DB, dialect Dialect, log *observability.Logger) (*Store, error) {
	if !dialect.Valid() {
		return nil, fmt.Errorf("unknown dialect %q", dialect)
	}
	if log == nil {
		log = observability.NewNopLogger()
	}
	return &Store{
		db:           db,
		dialect:      dialect,
		log:          log,
		settable:     make(map[string][]string),
		implications: make(map[string]map[string]bool),
	}, nil
}

// querier is the subset of sql.DB and sql.Tx the store uses.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type txKey struct{}

// q returns the transaction bound to ctx, or the bare handle.
func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// InTransaction runs fn inside a transaction carried on the context. Nested
// calls join the enclosing transaction.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RunAsSystem executes fn with the system identity as the caller.
func (s *Store) RunAsSystem(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(repo.AsSystem(ctx))
}

// Root returns the repository root node, creating it on first access.
func (s *Store) Root(ctx context.Context) (repo.NodeRef, error) {
	s.rootOnce.Do(func() {
		var id string
		err := s.q(ctx).QueryRowContext(ctx,
			`SELECT id FROM nodes WHERE parent_id IS NULL LIMIT 1`).Scan(&id)
		if err == nil {
			s.rootID = repo.NodeRef(id)
			return
		}
		if !errors.Is(err, sql.ErrNoRows) {
			s.rootErr = fmt.Errorf("resolve root: %w", err)
			return
		}

		id = uuid.NewString()
		_, err = s.q(ctx).ExecContext(ctx,
			`INSERT INTO nodes (id, parent_id, name, node_type) VALUES ($1, NULL, 'root', 'sys:root')`, id)
		if err != nil {
			s.rootErr = fmt.Errorf("create root: %w", err)
			return
		}
		s.rootID = repo.NodeRef(id)
	})
	return s.rootID, s.rootErr
}

// CreateNode creates a child node under parent.
func (s *Store) CreateNode(ctx context.Context, parent repo.NodeRef, name, nodeType string, props map[string]string) (repo.NodeRef, error) {
	if err := s.requireLiveNode(ctx, parent); err != nil {
		return "", err
	}

	var existing string
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT id FROM nodes WHERE parent_id = $1 AND name = $2 AND NOT trashed`,
		string(parent), name).Scan(&existing)
	if err == nil {
		return "", fmt.Errorf("node %q under %s: %w", name, parent, repo.ErrAlreadyExists)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("create node: %w", err)
	}

	id := uuid.NewString()
	_, err = s.q(ctx).ExecContext(ctx,
		`INSERT INTO nodes (id, parent_id, name, node_type) VALUES ($1, $2, $3, $4)`,
		id, string(parent), name, nodeType)
	if err != nil {
		return "", fmt.Errorf("create node: %w", err)
	}
	for key, value := range props {
		if _, err := s.q(ctx).ExecContext(ctx,
			`INSERT INTO node_props (node_id, prop_key, prop_value) VALUES ($1, $2, $3)`,
			id, key, value); err != nil {
			return "", fmt.Errorf("create node: property %q: %w", key, err)
		}
	}
	return repo.NodeRef(id), nil
}

// DeleteNode soft-deletes a node and its subtree into the trash.
func (s *Store) DeleteNode(ctx context.Context, ref repo.NodeRef) error {
	if err := s.requireLiveNode(ctx, ref); err != nil {
		return err
	}

	_, err := s.q(ctx).ExecContext(ctx, `
		UPDATE nodes SET trashed = TRUE WHERE id IN (
			WITH RECURSIVE subtree(id) AS (
				SELECT id FROM nodes WHERE id = $1
				UNION
				SELECT n.id FROM nodes n JOIN subtree st ON n.parent_id = st.id
			)
			SELECT id FROM subtree
		)`, string(ref))
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	_, err = s.q(ctx).ExecContext(ctx,
		`UPDATE nodes SET trash_root = TRUE, deleted_at = $1 WHERE id = $2`,
		time.Now().UTC(), string(ref))
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	return nil
}

// PurgeNode permanently removes a trashed node and its subtree.
func (s *Store) PurgeNode(ctx context.Context, ref repo.NodeRef) error {
	var trashed bool
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT trashed FROM nodes WHERE id = $1`, string(ref)).Scan(&trashed)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("node %s: %w", ref, repo.ErrNodeNotFound)
	}
	if err != nil {
		return fmt.Errorf("purge node: %w", err)
	}
	if !trashed {
		return fmt.Errorf("purge node %s: node is live", ref)
	}

	// Children before parents: the parent_id foreign key forbids deleting a
	// node that still has rows pointing at it.
	rows, err := s.q(ctx).QueryContext(ctx, `
		WITH RECURSIVE subtree(id, depth) AS (
			SELECT id, 0 FROM nodes WHERE id = $1
			UNION
			SELECT n.id, st.depth + 1 FROM nodes n JOIN subtree st ON n.parent_id = st.id
		)
		SELECT id FROM subtree ORDER BY depth DESC`, string(ref))
	if err != nil {
		return fmt.Errorf("purge node: %w", err)
	}
	ids, err := scanStrings(rows)
	if err != nil {
		return fmt.Errorf("purge node: %w", err)
	}
	for _, id := range ids {
		if _, err := s.q(ctx).ExecContext(ctx, `DELETE FROM node_props WHERE node_id = $1`, id); err != nil {
			return fmt.Errorf("purge node: %w", err)
		}
		if _, err := s.q(ctx).ExecContext(ctx, `DELETE FROM node_aspects WHERE node_id = $1`, id); err != nil {
			return fmt.Errorf("purge node: %w", err)
		}
		if _, err := s.q(ctx).ExecContext(ctx, `DELETE FROM acl_entries WHERE node_id = $1`, id); err != nil {
			return fmt.Errorf("purge node: %w", err)
		}
		if _, err := s.q(ctx).ExecContext(ctx, `DELETE FROM acls WHERE node_id = $1`, id); err != nil {
			return fmt.Errorf("purge node: %w", err)
		}
		if _, err := s.q(ctx).ExecContext(ctx, `DELETE FROM nodes WHERE id = $1`, id); err != nil {
			return fmt.Errorf("purge node: %w", err)
		}
	}
	return nil
}

// ListTrash returns all trashed top-level entries.
func (s *Store) ListTrash(ctx context.Context) ([]repo.TrashEntry, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT id, name, node_type, deleted_at FROM nodes WHERE trash_root ORDER BY deleted_at`)
	if err != nil {
		return nil, fmt.Errorf("list trash: %w", err)
	}
	defer rows.Close()

	var out []repo.TrashEntry
	for rows.Next() {
		var entry repo.TrashEntry
		var id string
		var deletedAt sql.NullTime
		if err := rows.Scan(&id, &entry.Name, &entry.NodeType, &deletedAt); err != nil {
			return nil, fmt.Errorf("list trash: %w", err)
		}
		entry.Ref = repo.NodeRef(id)
		if deletedAt.Valid {
			entry.DeletedAt = deletedAt.Time
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// MoveNode reparents a node.
func (s *Store) MoveNode(ctx context.Context, ref, newParent repo.NodeRef) error {
	if err := s.requireLiveNode(ctx, ref); err != nil {
		return err
	}
	if err := s.requireLiveNode(ctx, newParent); err != nil {
		return err
	}
	_, err := s.q(ctx).ExecContext(ctx,
		`UPDATE nodes SET parent_id = $1 WHERE id = $2`, string(newParent), string(ref))
	if err != nil {
		return fmt.Errorf("move node: %w", err)
	}
	return nil
}

// NodeExists reports whether the node is live.
func (s *Store) NodeExists(ctx context.Context, ref repo.NodeRef) (bool, error) {
	var trashed bool
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT trashed FROM nodes WHERE id = $1`, string(ref)).Scan(&trashed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("node exists: %w", err)
	}
	return !trashed, nil
}

// Parent returns the primary parent of a node.
func (s *Store) Parent(ctx context.Context, ref repo.NodeRef) (repo.NodeRef, error) {
	var parent sql.NullString
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT parent_id FROM nodes WHERE id = $1`, string(ref)).Scan(&parent)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("node %s: %w", ref, repo.ErrNodeNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("node parent: %w", err)
	}
	if !parent.Valid {
		return "", fmt.Errorf("node %s has no parent: %w", ref, repo.ErrNodeNotFound)
	}
	return repo.NodeRef(parent.String), nil
}

// Children returns the live child associations of a node.
func (s *Store) Children(ctx context.Context, ref repo.NodeRef) ([]repo.ChildAssoc, error) {
	if err := s.requireNode(ctx, ref); err != nil {
		return nil, err
	}
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT id, name FROM nodes WHERE parent_id = $1 AND NOT trashed ORDER BY name`, string(ref))
	if err != nil {
		return nil, fmt.Errorf("node children: %w", err)
	}
	defer rows.Close()

	var out []repo.ChildAssoc
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("node children: %w", err)
		}
		out = append(out, repo.ChildAssoc{Ref: repo.NodeRef(id), Name: name, Primary: true})
	}
	return out, rows.Err()
}

// ChildByName resolves a live child by association name.
func (s *Store) ChildByName(ctx context.Context, parent repo.NodeRef, name string) (repo.NodeRef, error) {
	var id string
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT id FROM nodes WHERE parent_id = $1 AND name = $2 AND NOT trashed`,
		string(parent), name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("child %q of %s: %w", name, parent, repo.ErrNodeNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("child by name: %w", err)
	}
	return repo.NodeRef(id), nil
}

// NodeType returns the type a node was created with.
func (s *Store) NodeType(ctx context.Context, ref repo.NodeRef) (string, error) {
	var nodeType string
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT node_type FROM nodes WHERE id = $1`, string(ref)).Scan(&nodeType)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("node %s: %w", ref, repo.ErrNodeNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("node type: %w", err)
	}
	return nodeType, nil
}

// Property returns one property value and whether it is set.
func (s *Store) Property(ctx context.Context, ref repo.NodeRef, key string) (string, bool, error) {
	if err := s.requireNode(ctx, ref); err != nil {
		return "", false, err
	}
	var value string
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT prop_value FROM node_props WHERE node_id = $1 AND prop_key = $2`,
		string(ref), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("node property: %w", err)
	}
	return value, true, nil
}

// SetProperty sets one property value.
func (s *Store) SetProperty(ctx context.Context, ref repo.NodeRef, key, value string) error {
	if err := s.requireNode(ctx, ref); err != nil {
		return err
	}
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO node_props (node_id, prop_key, prop_value) VALUES ($1, $2, $3)
		ON CONFLICT (node_id, prop_key) DO UPDATE SET prop_value = EXCLUDED.prop_value`,
		string(ref), key, value)
	if err != nil {
		return fmt.Errorf("set node property: %w", err)
	}
	return nil
}

// Properties returns all properties of a node.
func (s *Store) Properties(ctx context.Context, ref repo.NodeRef) (map[string]string, error) {
	if err := s.requireNode(ctx, ref); err != nil {
		return nil, err
	}
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT prop_key, prop_value FROM node_props WHERE node_id = $1`, string(ref))
	if err != nil {
		return nil, fmt.Errorf("node properties: %w", err)
	}
	defer rows.Close()

	props := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("node properties: %w", err)
		}
		props[key] = value
	}
	return props, rows.Err()
}

// AddAspect marks a node with an aspect.
func (s *Store) AddAspect(ctx context.Context, ref repo.NodeRef, aspect string) error {
	if err := s.requireNode(ctx, ref); err != nil {
		return err
	}
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO node_aspects (node_id, aspect) VALUES ($1, $2)
		ON CONFLICT (node_id, aspect) DO NOTHING`, string(ref), aspect)
	if err != nil {
		return fmt.Errorf("add aspect: %w", err)
	}
	return nil
}

// RemoveAspect removes an aspect marker.
func (s *Store) RemoveAspect(ctx context.Context, ref repo.NodeRef, aspect string) error {
	if err := s.requireNode(ctx, ref); err != nil {
		return err
	}
	_, err := s.q(ctx).ExecContext(ctx,
		`DELETE FROM node_aspects WHERE node_id = $1 AND aspect = $2`, string(ref), aspect)
	if err != nil {
		return fmt.Errorf("remove aspect: %w", err)
	}
	return nil
}

// HasAspect reports whether a node carries an aspect.
func (s *Store) HasAspect(ctx context.Context, ref repo.NodeRef, aspect string) (bool, error) {
	if err := s.requireNode(ctx, ref); err != nil {
		return false, err
	}
	var one int
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT 1 FROM node_aspects WHERE node_id = $1 AND aspect = $2`,
		string(ref), aspect).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has aspect: %w", err)
	}
	return true, nil
}

// requireNode fails with repo.ErrNodeNotFound when the node row is absent,
// trashed or not.
func (s *Store) requireNode(ctx context.Context, ref repo.NodeRef) error {
	var one int
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT 1 FROM nodes WHERE id = $1`, string(ref)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("node %s: %w", ref, repo.ErrNodeNotFound)
	}
	if err != nil {
		return fmt.Errorf("check node: %w", err)
	}
	return nil
}

// requireLiveNode fails when the node is absent or trashed.
func (s *Store) requireLiveNode(ctx context.Context, ref repo.NodeRef) error {
	live, err := s.NodeExists(ctx, ref)
	if err != nil {
		return err
	}
	if !live {
		return fmt.Errorf("node %s: %w", ref, repo.ErrNodeNotFound)
	}
	return nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
