package repo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is an in-memory implementation of Backend. It is safe for
// concurrent use. InTransaction runs the callback directly without rollback;
// the store is intended for tests and embedded single-process use where the
// enclosing caller owns atomicity.
type Store struct {
	mu sync.RWMutex

	root    NodeRef
	nodes   map[NodeRef]*memNode
	groups  map[string]*memGroup
	persons map[string]Person
	acls    map[NodeRef]*memACL
	trash   []TrashEntry

	// settable maps node type to the permissions assignable on it.
	settable map[string][]string

	// implies maps a granted permission to the permissions it implies.
	implies map[string][]string
}

var _ Backend = (*Store)(nil)

type memNode struct {
	name     string
	nodeType string
	parent   NodeRef
	children []NodeRef
	props    map[string]string
	aspects  map[string]bool
	trashed  bool
}

type memGroup struct {
	displayName string
	members     map[string]bool
}

type memACL struct {
	entries []AccessEntry
	inherit bool
	defined bool
}

// NewStore creates an empty in-memory backend with a root node.
func NewStore() *Store {
	s := &Store{
		nodes:    make(map[NodeRef]*memNode),
		groups:   make(map[string]*memGroup),
		persons:  make(map[string]Person),
		acls:     make(map[NodeRef]*memACL),
		settable: make(map[string][]string),
		implies:  make(map[string][]string),
	}
	s.root = NodeRef(uuid.NewString())
	s.nodes[s.root] = &memNode{
		name:     "",
		nodeType: "sys:root",
		props:    make(map[string]string),
		aspects:  make(map[string]bool),
	}
	return s
}

// RegisterSettablePermissions declares the assignable permissions for a node
// type. Backends learn these from the deployed permission model; the memory
// store is told explicitly.
func (s *Store) RegisterSettablePermissions(nodeType string, permissions []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settable[nodeType] = append([]string(nil), permissions...)
}

// RegisterImplication declares that holding granted also confers each of
// implied. FullControl implies everything without registration.
func (s *Store) RegisterImplication(granted string, implied ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.implies[granted] = append(s.implies[granted], implied...)
}

// AddPerson registers an individual in the identity directory.
func (s *Store) AddPerson(p Person) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persons[p.UserName] = p
}

// Repository

func (s *Store) CreateNode(ctx context.Context, parent NodeRef, name, nodeType string, props map[string]string) (NodeRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.nodes[parent]
	if !ok || p.trashed {
		return "", fmt.Errorf("create node %q: parent: %w", name, ErrNodeNotFound)
	}
	for _, child := range p.children {
		if c := s.nodes[child]; c != nil && !c.trashed && c.name == name {
			return "", fmt.Errorf("create node %q: %w", name, ErrAlreadyExists)
		}
	}

	ref := NodeRef(uuid.NewString())
	node := &memNode{
		name:     name,
		nodeType: nodeType,
		parent:   parent,
		props:    make(map[string]string),
		aspects:  make(map[string]bool),
	}
	for k, v := range props {
		node.props[k] = v
	}
	s.nodes[ref] = node
	p.children = append(p.children, ref)
	return ref, nil
}

func (s *Store) DeleteNode(ctx context.Context, ref NodeRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[ref]
	if !ok || node.trashed {
		return fmt.Errorf("delete node: %w", ErrNodeNotFound)
	}
	s.markTrashed(ref)
	s.trash = append(s.trash, TrashEntry{
		Ref:       ref,
		Name:      node.name,
		NodeType:  node.nodeType,
		DeletedAt: time.Now(),
	})
	return nil
}

func (s *Store) markTrashed(ref NodeRef) {
	node := s.nodes[ref]
	node.trashed = true
	for _, child := range node.children {
		s.markTrashed(child)
	}
}

func (s *Store) PurgeNode(ctx context.Context, ref NodeRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[ref]
	if !ok {
		return fmt.Errorf("purge node: %w", ErrNodeNotFound)
	}
	if !node.trashed {
		return fmt.Errorf("purge node: node %s is not trashed", ref)
	}
	s.removeSubtree(ref)
	if parent, ok := s.nodes[node.parent]; ok {
		parent.children = removeRef(parent.children, ref)
	}
	for i, entry := range s.trash {
		if entry.Ref == ref {
			s.trash = append(s.trash[:i], s.trash[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) removeSubtree(ref NodeRef) {
	node := s.nodes[ref]
	if node == nil {
		return
	}
	for _, child := range node.children {
		s.removeSubtree(child)
	}
	delete(s.acls, ref)
	delete(s.nodes, ref)
}

func removeRef(refs []NodeRef, ref NodeRef) []NodeRef {
	out := refs[:0]
	for _, r := range refs {
		if r != ref {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) ListTrash(ctx context.Context) ([]TrashEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]TrashEntry(nil), s.trash...), nil
}

func (s *Store) MoveNode(ctx context.Context, ref, newParent NodeRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[ref]
	if !ok || node.trashed {
		return fmt.Errorf("move node: %w", ErrNodeNotFound)
	}
	target, ok := s.nodes[newParent]
	if !ok || target.trashed {
		return fmt.Errorf("move node: target parent: %w", ErrNodeNotFound)
	}
	if old, ok := s.nodes[node.parent]; ok {
		old.children = removeRef(old.children, ref)
	}
	node.parent = newParent
	target.children = append(target.children, ref)
	return nil
}

func (s *Store) NodeExists(ctx context.Context, ref NodeRef) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[ref]
	return ok && !node.trashed, nil
}

func (s *Store) Parent(ctx context.Context, ref NodeRef) (NodeRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[ref]
	if !ok || node.trashed {
		return "", fmt.Errorf("parent: %w", ErrNodeNotFound)
	}
	if node.parent == "" {
		return "", fmt.Errorf("parent of root: %w", ErrNodeNotFound)
	}
	return node.parent, nil
}

func (s *Store) Children(ctx context.Context, ref NodeRef) ([]ChildAssoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[ref]
	if !ok || node.trashed {
		return nil, fmt.Errorf("children: %w", ErrNodeNotFound)
	}
	var assocs []ChildAssoc
	for _, child := range node.children {
		c := s.nodes[child]
		if c == nil || c.trashed {
			continue
		}
		assocs = append(assocs, ChildAssoc{Ref: child, Name: c.name, Primary: true})
	}
	return assocs, nil
}

func (s *Store) ChildByName(ctx context.Context, parent NodeRef, name string) (NodeRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[parent]
	if !ok || node.trashed {
		return "", fmt.Errorf("child %q: parent: %w", name, ErrNodeNotFound)
	}
	for _, child := range node.children {
		if c := s.nodes[child]; c != nil && !c.trashed && c.name == name {
			return child, nil
		}
	}
	return "", fmt.Errorf("child %q: %w", name, ErrNodeNotFound)
}

func (s *Store) Root(ctx context.Context) (NodeRef, error) {
	return s.root, nil
}

func (s *Store) NodeType(ctx context.Context, ref NodeRef) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[ref]
	if !ok || node.trashed {
		return "", fmt.Errorf("node type: %w", ErrNodeNotFound)
	}
	return node.nodeType, nil
}

func (s *Store) Property(ctx context.Context, ref NodeRef, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[ref]
	if !ok || node.trashed {
		return "", false, fmt.Errorf("property %q: %w", key, ErrNodeNotFound)
	}
	v, present := node.props[key]
	return v, present, nil
}

func (s *Store) SetProperty(ctx context.Context, ref NodeRef, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[ref]
	if !ok || node.trashed {
		return fmt.Errorf("set property %q: %w", key, ErrNodeNotFound)
	}
	node.props[key] = value
	return nil
}

func (s *Store) Properties(ctx context.Context, ref NodeRef) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[ref]
	if !ok || node.trashed {
		return nil, fmt.Errorf("properties: %w", ErrNodeNotFound)
	}
	props := make(map[string]string, len(node.props))
	for k, v := range node.props {
		props[k] = v
	}
	return props, nil
}

func (s *Store) AddAspect(ctx context.Context, ref NodeRef, aspect string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[ref]
	if !ok || node.trashed {
		return fmt.Errorf("add aspect %q: %w", aspect, ErrNodeNotFound)
	}
	node.aspects[aspect] = true
	return nil
}

func (s *Store) RemoveAspect(ctx context.Context, ref NodeRef, aspect string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[ref]
	if !ok || node.trashed {
		return fmt.Errorf("remove aspect %q: %w", aspect, ErrNodeNotFound)
	}
	delete(node.aspects, aspect)
	return nil
}

func (s *Store) HasAspect(ctx context.Context, ref NodeRef, aspect string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[ref]
	if !ok || node.trashed {
		return false, fmt.Errorf("has aspect %q: %w", aspect, ErrNodeNotFound)
	}
	return node.aspects[aspect], nil
}

func (s *Store) RunAsSystem(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(AsSystem(ctx))
}

func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// AuthorityStore

func (s *Store) CreateGroup(ctx context.Context, name, displayName string) error {
	if !IsGroup(name) {
		return fmt.Errorf("create group %q: not a group authority name", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[name]; ok {
		return fmt.Errorf("create group %q: %w", name, ErrAlreadyExists)
	}
	s.groups[name] = &memGroup{displayName: displayName, members: make(map[string]bool)}
	return nil
}

func (s *Store) DeleteGroup(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[name]; !ok {
		return fmt.Errorf("delete group %q: %w", name, ErrAuthorityNotFound)
	}
	delete(s.groups, name)
	for _, g := range s.groups {
		delete(g.members, name)
	}
	return nil
}

func (s *Store) AddMember(ctx context.Context, parent, child string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[parent]
	if !ok {
		return fmt.Errorf("add member to %q: %w", parent, ErrAuthorityNotFound)
	}
	g.members[child] = true
	return nil
}

func (s *Store) RemoveMember(ctx context.Context, parent, child string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[parent]
	if !ok {
		return fmt.Errorf("remove member from %q: %w", parent, ErrAuthorityNotFound)
	}
	if !g.members[child] {
		return fmt.Errorf("remove member %q from %q: %w", child, parent, ErrAuthorityNotFound)
	}
	delete(g.members, child)
	return nil
}

func (s *Store) Members(ctx context.Context, group string, immediate bool) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[group]
	if !ok {
		return nil, fmt.Errorf("members of %q: %w", group, ErrAuthorityNotFound)
	}
	if immediate {
		return sortedKeys(g.members), nil
	}
	seen := make(map[string]bool)
	var walk func(name string)
	walk = func(name string) {
		g, ok := s.groups[name]
		if !ok {
			return
		}
		for member := range g.members {
			if seen[member] {
				continue
			}
			seen[member] = true
			if IsGroup(member) {
				walk(member)
			}
		}
	}
	walk(group)
	return sortedKeys(seen), nil
}

func (s *Store) Groups(ctx context.Context, authority string, immediate bool) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groupsLocked(authority, immediate), nil
}

func (s *Store) groupsLocked(authority string, immediate bool) []string {
	direct := make(map[string]bool)
	for name, g := range s.groups {
		if g.members[authority] {
			direct[name] = true
		}
	}
	if immediate {
		return sortedKeys(direct)
	}
	seen := make(map[string]bool)
	queue := sortedKeys(direct)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen[name] {
			continue
		}
		seen[name] = true
		for parent, g := range s.groups {
			if g.members[name] && !seen[parent] {
				queue = append(queue, parent)
			}
		}
	}
	return sortedKeys(seen)
}

func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if IsGroup(name) {
		_, ok := s.groups[name]
		return ok, nil
	}
	_, ok := s.persons[name]
	return ok, nil
}

func (s *Store) DisplayName(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if IsGroup(name) {
		g, ok := s.groups[name]
		if !ok {
			return "", fmt.Errorf("display name of %q: %w", name, ErrAuthorityNotFound)
		}
		if g.displayName != "" {
			return g.displayName, nil
		}
		return GroupShortName(name), nil
	}
	if p, ok := s.persons[name]; ok {
		return strings.TrimSpace(p.FirstName + " " + p.LastName), nil
	}
	return name, nil
}

// PermissionStore

func (s *Store) acl(ref NodeRef) *memACL {
	acl, ok := s.acls[ref]
	if !ok {
		acl = &memACL{inherit: true}
		s.acls[ref] = acl
	}
	return acl
}

func (s *Store) Set(ctx context.Context, node NodeRef, authority, permission string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.nodes[node]; !ok || n.trashed {
		return fmt.Errorf("set permission: %w", ErrNodeNotFound)
	}
	acl := s.acl(node)
	acl.defined = true
	for _, e := range acl.entries {
		if e.Authority == authority && e.Permission == permission {
			return nil
		}
	}
	acl.entries = append(acl.entries, AccessEntry{Authority: authority, Permission: permission})
	return nil
}

func (s *Store) Delete(ctx context.Context, node NodeRef, authority, permission string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acl, ok := s.acls[node]
	if !ok {
		return nil
	}
	out := acl.entries[:0]
	for _, e := range acl.entries {
		if e.Authority == authority && e.Permission == permission {
			continue
		}
		out = append(out, e)
	}
	acl.entries = out
	return nil
}

func (s *Store) Entries(ctx context.Context, node NodeRef) ([]AccessEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acl, ok := s.acls[node]
	if !ok {
		return nil, nil
	}
	return append([]AccessEntry(nil), acl.entries...), nil
}

func (s *Store) HasDefiningACL(ctx context.Context, node NodeRef) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acl, ok := s.acls[node]
	return ok && acl.defined, nil
}

func (s *Store) SetInheritParent(ctx context.Context, node NodeRef, inherit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.nodes[node]; !ok || n.trashed {
		return fmt.Errorf("set inherit: %w", ErrNodeNotFound)
	}
	acl := s.acl(node)
	acl.inherit = inherit
	acl.defined = true
	return nil
}

func (s *Store) InheritsParent(ctx context.Context, node NodeRef) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acl, ok := s.acls[node]
	if !ok {
		return true, nil
	}
	return acl.inherit, nil
}

func (s *Store) SettablePermissions(ctx context.Context, nodeType string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if perms, ok := s.settable[nodeType]; ok {
		return append([]string(nil), perms...), nil
	}
	return []string{PermissionRead, PermissionReadProperties, PermissionChangePermissions, PermissionFullControl}, nil
}

func (s *Store) HasAccess(ctx context.Context, node NodeRef, permission string) (bool, error) {
	caller := Caller(ctx)
	if caller == SystemCaller {
		return true, nil
	}
	if caller == "" {
		return false, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	holders := make(map[string]bool)
	holders[caller] = true
	holders[EveryoneAuthority] = true
	for _, g := range s.groupsLocked(caller, false) {
		holders[g] = true
	}
	if holders[AdministratorsGroup] {
		return true, nil
	}

	ref := node
	for ref != "" {
		n, ok := s.nodes[ref]
		if !ok || n.trashed {
			return false, nil
		}
		acl := s.acls[ref]
		if acl != nil {
			for _, e := range acl.entries {
				if holders[e.Authority] && s.permissionImplies(e.Permission, permission) {
					return true, nil
				}
			}
			if !acl.inherit {
				return false, nil
			}
		}
		ref = n.parent
	}
	return false, nil
}

func (s *Store) permissionImplies(granted, required string) bool {
	if granted == required || granted == PermissionFullControl {
		return true
	}
	for _, p := range s.implies[granted] {
		if p == required {
			return true
		}
	}
	return false
}

// IdentityDirectory

func (s *Store) Person(ctx context.Context, userName string) (*Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.persons[userName]
	if !ok {
		return nil, fmt.Errorf("person %q: %w", userName, ErrPersonNotFound)
	}
	out := p
	return &out, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
