// Package query implements the canned-query plumbing shared by sitekit's
// listing operations: stable pagination, multi-key sort specifications,
// null-safe comparator composition and opaque continuation tokens.
//
// A canned query produces its full candidate set, sorts it with a comparator
// built from the requested (field, direction) pairs, and slices one page:
//
//	cmp := query.Comparators(byLastName, byFirstName)
//	sort.SliceStable(items, func(i, j int) bool { return cmp(items[i], items[j]) < 0 })
//	page := query.Paginate(items, query.PagingRequest{SkipCount: 20, MaxItems: 10})
//
// Result sets that must behave like sorted sets (equal entries collapse)
// accumulate through SortedSet instead.
package query
