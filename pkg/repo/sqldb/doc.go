// Package sqldb implements the repo.Backend contracts on a SQL database.
//
// One Store serves two dialects: SQLite for embedded and single-process use,
// PostgreSQL for shared deployments. Statements are written once with $N
// placeholders, which both engines bind positionally, and never reach for
// dialect-specific SQL. Group closure queries (transitive members,
// containing groups) run as recursive CTEs, supported by both engines.
//
// The schema is managed by versioned migrations (Migrate). Transactions
// travel on the context: InTransaction opens one and every operation inside
// the callback joins it.
//
// The permission model (settable permissions per node type, permission
// implications) is registered in-process at wiring time, not persisted. Use
// sites.RegisterPermissionModel on a new Store.
package sqldb
