package sites

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/sitekit/sitekit/pkg/cache"
	"github.com/sitekit/sitekit/pkg/observability"
	"github.com/sitekit/sitekit/pkg/repo"
)

// Options configures a Service. The zero value is usable: every field has a
// working default.
type Options struct {
	// PublicAuthority receives the public Consumer grant on PUBLIC and
	// MODERATED sites. Defaults to repo.EveryoneAuthority.
	PublicAuthority string

	// Roles overrides the settable role set, highest precedence first.
	// Defaults to DefaultRoleSet.
	Roles RoleSet

	// Cache is the site name lookup cache. Defaults to an in-process LRU.
	Cache cache.SiteCache

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// CreateSiteRequest carries the inputs of Service.CreateSite.
type CreateSiteRequest struct {
	ShortName        string
	Preset           string
	Title            string
	Description      string
	Visibility       Visibility
	CustomProperties map[string]string
}

// Service is the site registry: the entry point for site lifecycle,
// membership and visibility operations. All collaborator access goes through
// the four repo contracts, so the same Service runs against the in-memory
// backend, the SQL backends, or a production repository.
type Service struct {
	repository  repo.Repository
	authorities repo.AuthorityStore
	permissions repo.PermissionStore
	directory   repo.IdentityDirectory

	roles      RoleSet
	groups     *GroupManager
	visibility *VisibilityController
	membership *MembershipService
	cleaner    *Cleaner
	events     *EventRegistry

	cache   cache.SiteCache
	log     *observability.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer

	lookups singleflight.Group

	rootMu  sync.Mutex
	rootRef repo.NodeRef
}

// New wires a Service over the four collaborator contracts.
func New(r repo.Repository, auth repo.AuthorityStore, perms repo.PermissionStore, dir repo.IdentityDirectory, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = observability.NewNopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewNopMetrics()
	}
	if opts.Roles == nil {
		opts.Roles = DefaultRoleSet()
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewLRU(cache.DefaultSize)
	}

	s := &Service{
		repository:  r,
		authorities: auth,
		permissions: perms,
		directory:   dir,
		roles:       opts.Roles,
		cache:       opts.Cache,
		log:         opts.Logger,
		metrics:     opts.Metrics,
		tracer:      otel.Tracer("github.com/sitekit/sitekit/pkg/sites"),
		events:      NewEventRegistry(),
	}
	s.groups = NewGroupManager(r, auth, perms, opts.Logger)
	s.visibility = NewVisibilityController(r, auth, perms, opts.PublicAuthority, opts.Logger)
	s.membership = NewMembershipService(r, auth, perms, dir, opts.Roles, opts.Logger)
	s.cleaner = NewCleaner(r, perms, opts.Logger, opts.Metrics)

	// Group teardown happens on purge, not deletion, so a trashed site can
	// be restored with its memberships intact.
	s.events.Register(EventSitePurged, ListenerFunc(func(ctx context.Context, ev Event) error {
		return s.groups.Deprovision(ctx, ev.ShortName, s.roles)
	}))
	s.events.Register(EventNodeRelocated, ListenerFunc(func(ctx context.Context, ev Event) error {
		return s.cleaner.Clean(ctx, ev.Node, "")
	}))

	return s
}

// NewFromBackend wires a Service over an aggregate Backend.
func NewFromBackend(b repo.Backend, opts Options) *Service {
	return New(b, b, b, b, opts)
}

// Events exposes the lifecycle event registry for additional listeners.
func (s *Service) Events() *EventRegistry { return s.events }

// Cleaner exposes the shared permission cleaner.
func (s *Service) Cleaner() *Cleaner { return s.cleaner }

// CreateSite provisions a new site: the backing node under the sites root,
// the role group hierarchy, the visibility grants and the creator's Manager
// membership, all in one transactional unit.
//
// The short name is stripped of all whitespace before use. Uniqueness covers
// trashed sites too: a deleted site blocks its name until purged.
func (s *Service) CreateSite(ctx context.Context, req CreateSiteRequest) (site *Site, err error) {
	ctx, span := s.tracer.Start(ctx, "sites.CreateSite")
	defer span.End()
	defer s.observe("create", time.Now(), &err)

	creator := repo.Caller(ctx)
	if creator == "" {
		return nil, deniedf("create site: no authenticated caller")
	}

	shortName := stripWhitespace(req.ShortName)
	if shortName == "" {
		return nil, invalidf("create site: empty short name")
	}
	span.SetAttributes(attribute.String("site.short_name", shortName))

	visibility := req.Visibility
	if visibility == "" {
		visibility = VisibilityPrivate
	}
	if !visibility.Valid() {
		return nil, invalidf("create site %q: unknown visibility %q", shortName, visibility)
	}
	if err := s.checkNameBudget(shortName); err != nil {
		return nil, err
	}
	if err := s.checkUnique(ctx, shortName); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	site = &Site{
		ShortName:        shortName,
		Preset:           req.Preset,
		Title:            req.Title,
		Description:      req.Description,
		Visibility:       visibility,
		CustomProperties: req.CustomProperties,
		CreatedAt:        now,
		ModifiedAt:       now,
	}

	err = s.repository.InTransaction(ctx, func(ctx context.Context) error {
		root, err := s.sitesRoot(ctx)
		if err != nil {
			return err
		}

		if err := s.repository.RunAsSystem(ctx, func(ctx context.Context) error {
			props := siteProperties(site, creator)
			ref, err := s.repository.CreateNode(ctx, root, shortName, NodeTypeSite, props)
			if err != nil {
				if errors.Is(err, repo.ErrAlreadyExists) {
					return fmt.Errorf("create site %q: %w", shortName, ErrAlreadyExists)
				}
				return fmt.Errorf("create site %q: %w", shortName, err)
			}
			site.NodeRef = ref

			if err := s.repository.AddAspect(ctx, ref, AspectTagScope); err != nil {
				return fmt.Errorf("create site %q: tag scope: %w", shortName, err)
			}
			if err := s.repository.AddAspect(ctx, ref, AspectUndeletable); err != nil {
				return fmt.Errorf("create site %q: undeletable aspect: %w", shortName, err)
			}
			// Site roots never inherit from the sites root: access is
			// governed solely by the grants set here.
			if err := s.permissions.SetInheritParent(ctx, ref, false); err != nil {
				return fmt.Errorf("create site %q: detach inheritance: %w", shortName, err)
			}
			return nil
		}); err != nil {
			return err
		}

		if err := s.groups.Provision(ctx, site, s.roles); err != nil {
			return err
		}
		if err := s.visibility.Apply(ctx, site, s.roles); err != nil {
			return err
		}

		return s.repository.RunAsSystem(ctx, func(ctx context.Context) error {
			group := RoleGroupAuthority(shortName, RoleManager)
			if err := s.authorities.AddMember(ctx, group, creator); err != nil {
				return fmt.Errorf("create site %q: enroll creator: %w", shortName, err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.cache.Put(ctx, shortName, site.NodeRef)
	s.log.WithFields(map[string]interface{}{
		"site":       shortName,
		"visibility": string(visibility),
		"creator":    creator,
	}).Info("site created")

	if dispatchErr := s.events.Dispatch(ctx, Event{Type: EventSiteCreated, ShortName: shortName, Node: site.NodeRef}); dispatchErr != nil {
		s.log.WithError(dispatchErr).WithField("site", shortName).Warn("site created listener failed")
	}
	return site, nil
}

// GetSite returns a site by short name. Callers without read access on the
// site get ErrNotFound rather than a permission failure, so the registry does
// not leak which names exist.
func (s *Service) GetSite(ctx context.Context, shortName string) (site *Site, err error) {
	ctx, span := s.tracer.Start(ctx, "sites.GetSite",
		trace.WithAttributes(attribute.String("site.short_name", shortName)))
	defer span.End()
	defer s.observe("get", time.Now(), &err)

	site, err = s.getSiteAny(ctx, shortName)
	if err != nil {
		return nil, err
	}
	if !s.canRead(ctx, site) {
		return nil, notFoundf("site %q", shortName)
	}
	return site, nil
}

// getSiteAny loads a site without the caller read check. Internal callers
// that enforce their own authorization use this.
func (s *Service) getSiteAny(ctx context.Context, shortName string) (*Site, error) {
	ref, err := s.lookupNode(ctx, shortName)
	if err != nil {
		return nil, err
	}
	return s.loadSite(ctx, shortName, ref)
}

// UpdateSite applies changed title, description, custom properties and
// visibility. Short name and preset are immutable: a differing preset is
// rejected, the short name is the lookup key.
func (s *Service) UpdateSite(ctx context.Context, shortName string, update CreateSiteRequest) (site *Site, err error) {
	ctx, span := s.tracer.Start(ctx, "sites.UpdateSite",
		trace.WithAttributes(attribute.String("site.short_name", shortName)))
	defer span.End()
	defer s.observe("update", time.Now(), &err)

	site, err = s.getSiteAny(ctx, shortName)
	if err != nil {
		return nil, err
	}
	if !s.canManage(ctx, site) {
		return nil, deniedf("update site %q", shortName)
	}
	if update.ShortName != "" && stripWhitespace(update.ShortName) != shortName {
		return nil, invalidf("update site %q: short name is immutable", shortName)
	}
	if update.Preset != "" && update.Preset != site.Preset {
		return nil, invalidf("update site %q: preset is immutable", shortName)
	}

	newVisibility := update.Visibility
	if newVisibility == "" {
		newVisibility = site.Visibility
	}
	if !newVisibility.Valid() {
		return nil, invalidf("update site %q: unknown visibility %q", shortName, newVisibility)
	}

	err = s.repository.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.visibility.Transition(ctx, site, site.Visibility, newVisibility, s.roles); err != nil {
			return err
		}

		return s.repository.RunAsSystem(ctx, func(ctx context.Context) error {
			if err := s.repository.SetProperty(ctx, site.NodeRef, PropTitle, update.Title); err != nil {
				return fmt.Errorf("update site %q: %w", shortName, err)
			}
			if err := s.repository.SetProperty(ctx, site.NodeRef, PropDescription, update.Description); err != nil {
				return fmt.Errorf("update site %q: %w", shortName, err)
			}
			for key, value := range update.CustomProperties {
				if err := s.repository.SetProperty(ctx, site.NodeRef, customPropPrefix+key, value); err != nil {
					return fmt.Errorf("update site %q: custom property %q: %w", shortName, key, err)
				}
			}
			now := time.Now().UTC()
			if err := s.repository.SetProperty(ctx, site.NodeRef, PropModified, now.Format(time.RFC3339Nano)); err != nil {
				return fmt.Errorf("update site %q: %w", shortName, err)
			}

			site.Title = update.Title
			site.Description = update.Description
			site.Visibility = newVisibility
			site.ModifiedAt = now
			for key, value := range update.CustomProperties {
				if site.CustomProperties == nil {
					site.CustomProperties = make(map[string]string)
				}
				site.CustomProperties[key] = value
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return site, nil
}

// DeleteSite soft-deletes a site into the trash. The role groups and their
// memberships survive until the site is purged, so a restore from the trash
// brings the site back whole.
func (s *Service) DeleteSite(ctx context.Context, shortName string) (err error) {
	ctx, span := s.tracer.Start(ctx, "sites.DeleteSite",
		trace.WithAttributes(attribute.String("site.short_name", shortName)))
	defer span.End()
	defer s.observe("delete", time.Now(), &err)

	site, err := s.getSiteAny(ctx, shortName)
	if err != nil {
		return err
	}
	if !s.canManage(ctx, site) {
		return deniedf("delete site %q", shortName)
	}

	err = s.repository.InTransaction(ctx, func(ctx context.Context) error {
		return s.repository.RunAsSystem(ctx, func(ctx context.Context) error {
			// The undeletable marker guards against stray deletion from
			// generic node tooling; lifted only for this one deliberate path.
			if err := s.repository.RemoveAspect(ctx, site.NodeRef, AspectUndeletable); err != nil {
				return fmt.Errorf("delete site %q: %w", shortName, err)
			}
			if err := s.repository.DeleteNode(ctx, site.NodeRef); err != nil {
				return fmt.Errorf("delete site %q: %w", shortName, err)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(ctx, shortName)
	s.log.WithField("site", shortName).Info("site deleted")

	if dispatchErr := s.events.Dispatch(ctx, Event{Type: EventSiteDeleted, ShortName: shortName, Node: site.NodeRef}); dispatchErr != nil {
		s.log.WithError(dispatchErr).WithField("site", shortName).Warn("site deleted listener failed")
	}
	return nil
}

// PurgeSite permanently removes a trashed site and tears down its role
// groups. Only site administrators and the system may purge.
func (s *Service) PurgeSite(ctx context.Context, shortName string) (err error) {
	ctx, span := s.tracer.Start(ctx, "sites.PurgeSite",
		trace.WithAttributes(attribute.String("site.short_name", shortName)))
	defer span.End()
	defer s.observe("purge", time.Now(), &err)

	if !s.isAdminCaller(ctx) {
		return deniedf("purge site %q", shortName)
	}

	entry, err := s.trashedSite(ctx, shortName)
	if err != nil {
		return err
	}
	return s.purgeEntry(ctx, entry)
}

// PurgeExpired purges every trashed site deleted more than retention ago.
// Returns the number of sites purged. Invoked by the trash purger schedule.
func (s *Service) PurgeExpired(ctx context.Context, retention time.Duration) (int, error) {
	entries, err := s.repository.ListTrash(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge expired sites: %w", err)
	}

	cutoff := time.Now().Add(-retention)
	purged := 0
	for _, entry := range entries {
		if entry.NodeType != NodeTypeSite || entry.DeletedAt.After(cutoff) {
			continue
		}
		if err := s.purgeEntry(ctx, entry); err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}

// trashedSite finds the trash entry for a deleted site by short name.
func (s *Service) trashedSite(ctx context.Context, shortName string) (repo.TrashEntry, error) {
	entries, err := s.repository.ListTrash(ctx)
	if err != nil {
		return repo.TrashEntry{}, fmt.Errorf("list trash: %w", err)
	}
	for _, entry := range entries {
		if entry.NodeType == NodeTypeSite && entry.Name == shortName {
			return entry, nil
		}
	}
	return repo.TrashEntry{}, notFoundf("site %q in trash", shortName)
}

func (s *Service) purgeEntry(ctx context.Context, entry repo.TrashEntry) error {
	err := s.repository.InTransaction(ctx, func(ctx context.Context) error {
		return s.repository.RunAsSystem(ctx, func(ctx context.Context) error {
			if err := s.repository.PurgeNode(ctx, entry.Ref); err != nil {
				return fmt.Errorf("purge site %q: %w", entry.Name, err)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(ctx, entry.Name)
	s.log.WithField("site", entry.Name).Info("site purged")
	return s.events.Dispatch(ctx, Event{Type: EventSitePurged, ShortName: entry.Name, Node: entry.Ref})
}

// NotifyNodeRelocated reports a node copied or moved across a site boundary,
// triggering the permission cleaner on its subtree.
func (s *Service) NotifyNodeRelocated(ctx context.Context, node repo.NodeRef) error {
	return s.events.Dispatch(ctx, Event{Type: EventNodeRelocated, Node: node})
}

// ResolveRole returns the effective role of an authority on a site.
func (s *Service) ResolveRole(ctx context.Context, shortName, authority string) (role Role, err error) {
	defer func(start time.Time) {
		s.metrics.RoleResolutionsTotal.Inc()
		s.metrics.RoleResolutionDuration.Observe(time.Since(start).Seconds())
	}(time.Now())

	site, err := s.getSiteAny(ctx, shortName)
	if err != nil {
		return "", err
	}
	return s.membership.ResolveRole(ctx, site, authority)
}

// ResolveDisplayRole returns the effective role plus whether it is inherited
// through group containment rather than held directly.
func (s *Service) ResolveDisplayRole(ctx context.Context, shortName, authority string) (Role, bool, error) {
	site, err := s.getSiteAny(ctx, shortName)
	if err != nil {
		return "", false, err
	}
	return s.membership.ResolveDisplayRole(ctx, site, authority)
}

// ListMembers enumerates a site's members. See MembershipService.ListMembers
// for filter semantics.
func (s *Service) ListMembers(ctx context.Context, shortName, nameFilter string, roleFilter Role, collapseGroups bool, maxCount int) ([]Member, error) {
	site, err := s.getSiteAny(ctx, shortName)
	if err != nil {
		return nil, err
	}
	return s.membership.ListMembers(ctx, site, nameFilter, roleFilter, collapseGroups, maxCount)
}

// SetMembership assigns an authority's role on a site, replacing any
// previous direct role.
func (s *Service) SetMembership(ctx context.Context, shortName, authority string, role Role) (err error) {
	defer s.observeMembership("set", &err)
	site, err := s.getSiteAny(ctx, shortName)
	if err != nil {
		return err
	}
	return s.membership.SetMembership(ctx, site, authority, role)
}

// RemoveMembership removes an authority's direct role on a site.
func (s *Service) RemoveMembership(ctx context.Context, shortName, authority string) (err error) {
	defer s.observeMembership("remove", &err)
	site, err := s.getSiteAny(ctx, shortName)
	if err != nil {
		return err
	}
	return s.membership.RemoveMembership(ctx, site, authority)
}

// CountRoleMembers counts the direct holders of a role on a site.
func (s *Service) CountRoleMembers(ctx context.Context, shortName string, role Role) (int, error) {
	site, err := s.getSiteAny(ctx, shortName)
	if err != nil {
		return 0, err
	}
	return s.membership.CountRoleMembers(ctx, site, role)
}

// lookupNode resolves a short name to its backing node: cache first, with a
// revalidating existence check, then a singleflight-collapsed repository
// lookup on miss.
func (s *Service) lookupNode(ctx context.Context, shortName string) (repo.NodeRef, error) {
	if ref, ok := s.cache.Get(ctx, shortName); ok {
		live := false
		err := s.repository.RunAsSystem(ctx, func(ctx context.Context) error {
			var err error
			live, err = s.repository.NodeExists(ctx, ref)
			return err
		})
		if err == nil && live {
			s.metrics.CacheHitsTotal.Inc()
			return ref, nil
		}
		s.cache.Invalidate(ctx, shortName)
	}
	s.metrics.CacheMissesTotal.Inc()

	v, err, _ := s.lookups.Do(shortName, func() (interface{}, error) {
		var ref repo.NodeRef
		err := s.repository.RunAsSystem(ctx, func(ctx context.Context) error {
			root, err := s.sitesRoot(ctx)
			if err != nil {
				return err
			}
			ref, err = s.repository.ChildByName(ctx, root, shortName)
			if errors.Is(err, repo.ErrNodeNotFound) {
				return notFoundf("site %q", shortName)
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		s.cache.Put(ctx, shortName, ref)
		return ref, nil
	})
	if err != nil {
		return "", err
	}
	return v.(repo.NodeRef), nil
}

// loadSite materializes a Site from its node properties. A missing
// visibility property, possible on sites imported from older deployments,
// falls back to deriving the mode from the set permissions.
func (s *Service) loadSite(ctx context.Context, shortName string, ref repo.NodeRef) (*Site, error) {
	site := &Site{ShortName: shortName, NodeRef: ref}

	err := s.repository.RunAsSystem(ctx, func(ctx context.Context) error {
		props, err := s.repository.Properties(ctx, ref)
		if err != nil {
			return fmt.Errorf("load site %q: %w", shortName, err)
		}

		site.Preset = props[PropPreset]
		site.Title = props[PropTitle]
		site.Description = props[PropDescription]
		site.Visibility = Visibility(props[PropVisibility])

		if raw := props[PropCreated]; raw != "" {
			if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				site.CreatedAt = t
			}
		}
		if raw := props[PropModified]; raw != "" {
			if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				site.ModifiedAt = t
			}
		}
		for key, value := range props {
			if strings.HasPrefix(key, customPropPrefix) {
				if site.CustomProperties == nil {
					site.CustomProperties = make(map[string]string)
				}
				site.CustomProperties[strings.TrimPrefix(key, customPropPrefix)] = value
			}
		}

		if !site.Visibility.Valid() {
			derived, err := s.visibility.DeriveVisibility(ctx, ref)
			if err != nil {
				return fmt.Errorf("load site %q: %w", shortName, err)
			}
			site.Visibility = derived
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return site, nil
}

// sitesRoot resolves the well-known node that holds all sites, creating it
// on first use.
func (s *Service) sitesRoot(ctx context.Context) (repo.NodeRef, error) {
	s.rootMu.Lock()
	defer s.rootMu.Unlock()
	if s.rootRef != "" {
		return s.rootRef, nil
	}

	err := s.repository.RunAsSystem(ctx, func(ctx context.Context) error {
		root, err := s.repository.Root(ctx)
		if err != nil {
			return fmt.Errorf("resolve sites root: %w", err)
		}
		ref, err := s.repository.ChildByName(ctx, root, SitesRootName)
		if errors.Is(err, repo.ErrNodeNotFound) {
			ref, err = s.repository.CreateNode(ctx, root, SitesRootName, "st:folder", nil)
		}
		if err != nil {
			return fmt.Errorf("resolve sites root: %w", err)
		}
		s.rootRef = ref
		return nil
	})
	if err != nil {
		return "", err
	}
	return s.rootRef, nil
}

// checkUnique rejects a short name already claimed by a live site, a trashed
// site, or an orphaned group hierarchy. The master group exists for the whole
// lifetime of a site, trash window included, so one group existence check
// covers all three.
func (s *Service) checkUnique(ctx context.Context, shortName string) error {
	taken, err := s.authorities.Exists(ctx, MasterGroupAuthority(shortName))
	if err != nil {
		return fmt.Errorf("create site %q: uniqueness check: %w", shortName, err)
	}
	if taken {
		return fmt.Errorf("create site %q: short name in use: %w", shortName, ErrAlreadyExists)
	}

	return s.repository.RunAsSystem(ctx, func(ctx context.Context) error {
		root, err := s.sitesRoot(ctx)
		if err != nil {
			return err
		}
		_, err = s.repository.ChildByName(ctx, root, shortName)
		if err == nil {
			return fmt.Errorf("create site %q: short name in use: %w", shortName, ErrAlreadyExists)
		}
		if errors.Is(err, repo.ErrNodeNotFound) {
			return nil
		}
		return fmt.Errorf("create site %q: uniqueness check: %w", shortName, err)
	})
}

// checkNameBudget rejects short names whose role group authority names would
// exceed the backing store's name length limit.
func (s *Service) checkNameBudget(shortName string) error {
	longest := ""
	for _, role := range s.roles {
		if len(string(role)) > len(longest) {
			longest = string(role)
		}
	}
	if len(RoleGroupAuthority(shortName, Role(longest))) > maxAuthorityNameLength {
		return invalidf("create site %q: short name too long", shortName)
	}
	return nil
}

// canRead reports whether the caller may see the site at all.
func (s *Service) canRead(ctx context.Context, site *Site) bool {
	caller := repo.Caller(ctx)
	if caller == repo.SystemCaller {
		return true
	}
	if caller == "" {
		return false
	}
	if s.isAdminCaller(ctx) {
		return true
	}
	ok, err := s.permissions.HasAccess(ctx, site.NodeRef, repo.PermissionReadProperties)
	if err != nil {
		s.log.WithError(err).WithField("site", site.ShortName).Warn("site read check failed")
		return false
	}
	return ok
}

// canManage reports whether the caller may administer the site: system, site
// administrator, or holder of change-permission rights (which SiteManager
// implies).
func (s *Service) canManage(ctx context.Context, site *Site) bool {
	return s.membership.callerMayChange(ctx, site)
}

func (s *Service) isAdminCaller(ctx context.Context) bool {
	caller := repo.Caller(ctx)
	if caller == repo.SystemCaller {
		return true
	}
	if caller == "" {
		return false
	}
	groups, err := s.authorities.Groups(ctx, caller, false)
	if err != nil {
		return false
	}
	return containsString(groups, repo.AdministratorsGroup)
}

func (s *Service) observe(operation string, start time.Time, err *error) {
	status := "ok"
	if *err != nil {
		status = "error"
	}
	s.metrics.SiteOperationsTotal.WithLabelValues(operation, status).Inc()
	s.metrics.SiteOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (s *Service) observeMembership(operation string, err *error) {
	status := "ok"
	if *err != nil {
		status = "error"
		if IsInvariantViolation(*err) {
			s.metrics.LastManagerRejectionsTotal.Inc()
		}
	}
	s.metrics.MembershipChangesTotal.WithLabelValues(operation, status).Inc()
}

// siteProperties builds the initial property map of a site node.
func siteProperties(site *Site, creator string) map[string]string {
	props := map[string]string{
		PropPreset:      site.Preset,
		PropTitle:       site.Title,
		PropDescription: site.Description,
		PropVisibility:  string(site.Visibility),
		PropCreator:     creator,
		PropCreated:     site.CreatedAt.Format(time.RFC3339Nano),
		PropModified:    site.ModifiedAt.Format(time.RFC3339Nano),
	}
	for key, value := range site.CustomProperties {
		props[customPropPrefix+key] = value
	}
	return props
}

// stripWhitespace removes every whitespace rune from s.
func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
