// Package repo defines the collaborator contracts that sitekit consumes:
// a tree-structured node repository, an authority (user/group) store, a
// node permission store, and an identity directory.
//
// # Overview
//
// sitekit does not own content storage. Every component in pkg/sites talks
// to the backing system through the four narrow interfaces in this package:
//
//   - Repository: node lifecycle (create/move/soft-delete/purge), properties,
//     aspects, parent/child navigation, elevated execution, transactions
//   - AuthorityStore: group authorities and containment edges, with direct
//     and transitive queries in both directions
//   - PermissionStore: permission grants on nodes, inheritance toggling,
//     settable permission sets, access checks for the current caller
//   - IdentityDirectory: given/family name resolution for individuals
//
// The package also ships a complete in-memory implementation (Store) of all
// four contracts. It is the reference backend for tests and is usable as an
// embedded backend in its own right. The SQL-backed implementation covering
// SQLite and PostgreSQL lives in pkg/repo/sqldb.
//
// # Caller identity
//
// The acting authority travels on the context. Authorization checks always
// evaluate the original caller; elevated execution swaps the caller for the
// system identity only for the duration of the callback:
//
//	ctx = repo.WithCaller(ctx, "bob")
//	err := repository.RunAsSystem(ctx, func(ctx context.Context) error {
//		// repo.Caller(ctx) == repo.SystemCaller here
//		return permissions.Set(ctx, node, group, perm)
//	})
//
// # Authority naming
//
// Group authority names carry the "GROUP_" prefix; anything else is an
// individual. The universal authority granting access to everyone is
// repo.EveryoneAuthority.
package repo
