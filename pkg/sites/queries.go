package sites

import (
	"context"
	"fmt"
	"strings"

	"github.com/sitekit/sitekit/pkg/query"
	"github.com/sitekit/sitekit/pkg/repo"
)

// SiteFilter narrows a site listing. Name, title and description match
// case-insensitively on prefix; preset matches exactly. Empty fields match
// everything.
type SiteFilter struct {
	NamePrefix string
	Preset     string
}

// Matches reports whether a site passes the filter.
func (f SiteFilter) Matches(site *Site) bool {
	if f.Preset != "" && site.Preset != f.Preset {
		return false
	}
	if f.NamePrefix == "" {
		return true
	}
	prefix := strings.ToLower(f.NamePrefix)
	for _, v := range []string{site.ShortName, site.Title, site.Description} {
		if strings.HasPrefix(strings.ToLower(v), prefix) {
			return true
		}
	}
	return false
}

// ListSites enumerates the sites visible to the caller, filtered and sorted
// by short name. A site whose node fails to load is logged and skipped
// rather than failing the whole listing: one corrupt site must not take the
// directory down.
func (s *Service) ListSites(ctx context.Context, filter SiteFilter, paging query.PagingRequest) (query.Page[*Site], error) {
	var assocs []repo.ChildAssoc
	err := s.repository.RunAsSystem(ctx, func(ctx context.Context) error {
		root, err := s.sitesRoot(ctx)
		if err != nil {
			return err
		}
		assocs, err = s.repository.Children(ctx, root)
		if err != nil {
			return fmt.Errorf("list sites: %w", err)
		}
		return nil
	})
	if err != nil {
		return query.Page[*Site]{}, err
	}

	var sites []*Site
	for _, assoc := range assocs {
		if !assoc.Primary {
			continue
		}
		site, err := s.loadSite(ctx, assoc.Name, assoc.Ref)
		if err != nil {
			s.log.WithError(err).WithField("site", assoc.Name).Warn("skipping unloadable site in listing")
			continue
		}
		if !filter.Matches(site) || !s.canRead(ctx, site) {
			continue
		}
		sites = append(sites, site)
	}

	query.Sort(sites, func(a, b *Site) int {
		return query.CompareStrings(a.ShortName, b.ShortName)
	})
	return query.Paginate(sites, paging), nil
}

// ListUserSites returns the sites where the authority holds a role,
// directly or through group containment, sorted by short name.
func (s *Service) ListUserSites(ctx context.Context, authority string, paging query.PagingRequest) (query.Page[*Site], error) {
	all, err := s.ListSites(ctx, SiteFilter{}, query.PagingRequest{})
	if err != nil {
		return query.Page[*Site]{}, err
	}

	var mine []*Site
	for _, site := range all.Items {
		if _, err := s.membership.ResolveRole(ctx, site, authority); err != nil {
			if IsNotFound(err) {
				continue
			}
			return query.Page[*Site]{}, err
		}
		mine = append(mine, site)
	}
	return query.Paginate(mine, paging), nil
}

// SiteMembership is one row of a paged membership query: an authority's role
// on one site, with display attributes for sorting.
type SiteMembership struct {
	SiteShortName string
	SiteTitle     string
	Authority     string
	FirstName     string
	LastName      string
	Role          Role
	IsGroup       bool
}

// Membership sort field names accepted by ListMembershipsPaged.
const (
	SortByFirstName     = "firstName"
	SortByLastName      = "lastName"
	SortByRole          = "role"
	SortByAuthority     = "authority"
	SortBySiteShortName = "siteShortName"
	SortBySiteTitle     = "siteTitle"
)

// ListMembershipsPaged returns one page of a site's memberships ordered by
// the given sort fields. Unknown fields are rejected. Regardless of the
// requested fields, role, site name and authority always participate as
// trailing tie-breakers so the ordering is total and pages are stable.
func (s *Service) ListMembershipsPaged(ctx context.Context, shortName string, sortFields []query.SortField, paging query.PagingRequest) (query.Page[SiteMembership], error) {
	site, err := s.getSiteAny(ctx, shortName)
	if err != nil {
		return query.Page[SiteMembership]{}, err
	}

	cmp, err := s.membershipComparator(sortFields)
	if err != nil {
		return query.Page[SiteMembership]{}, err
	}

	members, err := s.membership.ListMembers(ctx, site, "", "", false, 0)
	if err != nil {
		return query.Page[SiteMembership]{}, err
	}

	set := query.NewSortedSet(cmp)
	for _, m := range members {
		set.Add(SiteMembership{
			SiteShortName: site.ShortName,
			SiteTitle:     site.Title,
			Authority:     m.Authority,
			FirstName:     m.FirstName,
			LastName:      m.LastName,
			Role:          m.Role,
			IsGroup:       m.IsGroup,
		})
	}
	return query.Paginate(set.Items(), paging), nil
}

// ListContainersPaged returns one page of a site's containers ordered by
// component id.
func (s *Service) ListContainersPaged(ctx context.Context, shortName string, ascending bool, paging query.PagingRequest) (query.Page[Container], error) {
	containers, err := s.ListContainers(ctx, shortName)
	if err != nil {
		return query.Page[Container]{}, err
	}

	cmp := func(a, b Container) int {
		return query.CompareStrings(a.ComponentID, b.ComponentID)
	}
	if !ascending {
		cmp = query.Reverse(cmp)
	}
	query.Sort(containers, cmp)
	return query.Paginate(containers, paging), nil
}

// membershipComparator builds the composite comparator for the requested
// sort fields plus the fixed identity tie-breakers.
func (s *Service) membershipComparator(fields []query.SortField) (query.Comparator[SiteMembership], error) {
	var cmps []query.Comparator[SiteMembership]
	for _, field := range fields {
		cmp, err := s.membershipFieldComparator(field.Field)
		if err != nil {
			return nil, err
		}
		if !field.Ascending {
			cmp = query.Reverse(cmp)
		}
		cmps = append(cmps, cmp)
	}

	// Identity tie-breakers keep the ordering total; two rows compare equal
	// only when they are the same membership fact.
	cmps = append(cmps,
		func(a, b SiteMembership) int { return query.CompareInts(s.roles.Rank(b.Role), s.roles.Rank(a.Role)) },
		func(a, b SiteMembership) int { return query.CompareStrings(a.SiteShortName, b.SiteShortName) },
		func(a, b SiteMembership) int { return query.CompareStrings(a.Authority, b.Authority) },
	)
	return query.Comparators(cmps...), nil
}

func (s *Service) membershipFieldComparator(field string) (query.Comparator[SiteMembership], error) {
	switch field {
	case SortByFirstName:
		return func(a, b SiteMembership) int { return query.CompareStrings(a.FirstName, b.FirstName) }, nil
	case SortByLastName:
		return func(a, b SiteMembership) int { return query.CompareStrings(a.LastName, b.LastName) }, nil
	case SortByRole:
		// Precedence order, most privileged first.
		return func(a, b SiteMembership) int {
			return query.CompareInts(s.roles.Rank(b.Role), s.roles.Rank(a.Role))
		}, nil
	case SortByAuthority:
		return func(a, b SiteMembership) int { return query.CompareStrings(a.Authority, b.Authority) }, nil
	case SortBySiteShortName:
		return func(a, b SiteMembership) int { return query.CompareStrings(a.SiteShortName, b.SiteShortName) }, nil
	case SortBySiteTitle:
		return func(a, b SiteMembership) int { return query.CompareStrings(a.SiteTitle, b.SiteTitle) }, nil
	}
	return nil, invalidf("unknown membership sort field %q", field)
}
