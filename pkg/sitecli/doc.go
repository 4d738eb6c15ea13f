// Package sitecli implements the sitectl command line tool: thin commands
// over the sites service for creating sites, managing memberships and
// running trash maintenance against any configured backend.
//
// Configuration comes from the same SITEKIT_* environment variables the
// library uses; see the config package.
package sitecli
