// Package sites implements the site registry: named collaboration spaces
// with role-based membership, visibility modes and lifecycle management on
// top of a tree-structured content repository.
//
// # Model
//
// A site is a node under the well-known sites root, addressed by a globally
// unique, immutable short name. Each site owns a deterministic hierarchy of
// authority groups: one master group (GROUP_site_<name>) containing one
// group per settable role (GROUP_site_<name>_<Role>). Membership is not
// stored as first-class records; an authority's role is derived from which
// role group contains it, directly or transitively. Each role group holds
// the permission of the same name on the site root, so authorization falls
// out of ordinary permission evaluation.
//
// Visibility shapes default access for non-members. PUBLIC sites grant the
// public authority Consumer on the root; MODERATED keeps the root
// discoverable the same way but detaches each container with explicit
// role-group grants; PRIVATE has no public grant at all.
//
// # Usage
//
//	backend := repo.NewStore()
//	sites.RegisterPermissionModel(backend)
//	svc := sites.NewFromBackend(backend, sites.Options{})
//
//	ctx := repo.WithCaller(context.Background(), "alice")
//	site, err := svc.CreateSite(ctx, sites.CreateSiteRequest{
//		ShortName:  "engineering",
//		Title:      "Engineering",
//		Visibility: sites.VisibilityPublic,
//	})
//
// The caller identity travels on the context (repo.WithCaller). Operations
// that must touch nodes the caller cannot yet see run elevated internally;
// authorization decisions always evaluate against the original caller.
//
// Deleting a site is a soft delete into the trash: groups and memberships
// survive until the site is purged, either explicitly or by the scheduled
// TrashPurger once the retention window lapses.
package sites
