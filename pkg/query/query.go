package query

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// PagingRequest selects one page of a canned query's results.
type PagingRequest struct {
	// SkipCount is the number of leading results to skip.
	SkipCount int

	// MaxItems caps the page size; zero or negative means everything.
	MaxItems int

	// RequestTotal asks for the total result count to be computed.
	RequestTotal bool
}

// Page is one page of results plus paging metadata.
type Page[T any] struct {
	Items   []T
	HasMore bool

	// Total is set only when the request asked for it.
	Total *int

	// Token continues the same logical query at the next page.
	Token string
}

// SortField is one (field, direction) pair of a sort specification. The
// first pair is the primary key.
type SortField struct {
	Field     string
	Ascending bool
}

// Comparator orders two values: negative when a sorts before b.
type Comparator[T any] func(a, b T) int

// Comparators composes comparators into one: earlier comparators are more
// significant, later ones break ties.
func Comparators[T any](cmps ...Comparator[T]) Comparator[T] {
	return func(a, b T) int {
		for _, cmp := range cmps {
			if c := cmp(a, b); c != 0 {
				return c
			}
		}
		return 0
	}
}

// Reverse inverts a comparator's direction.
func Reverse[T any](cmp Comparator[T]) Comparator[T] {
	return func(a, b T) int {
		return -cmp(a, b)
	}
}

// CompareStrings orders two strings case-insensitively with empty values
// (nulls) sorting first.
func CompareStrings(a, b string) int {
	if a == "" || b == "" {
		switch {
		case a == b:
			return 0
		case a == "":
			return -1
		default:
			return 1
		}
	}
	la, lb := strings.ToLower(a), strings.ToLower(b)
	switch {
	case la < lb:
		return -1
	case la > lb:
		return 1
	}
	return 0
}

// CompareInts orders two ints ascending.
func CompareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Sort stably sorts items in place with the comparator.
func Sort[T any](items []T, cmp Comparator[T]) {
	sort.SliceStable(items, func(i, j int) bool {
		return cmp(items[i], items[j]) < 0
	})
}

// Paginate slices one page out of the full, already sorted result set.
func Paginate[T any](items []T, req PagingRequest) Page[T] {
	var page Page[T]
	if req.RequestTotal {
		total := len(items)
		page.Total = &total
	}

	skip := req.SkipCount
	if skip < 0 {
		skip = 0
	}
	if skip >= len(items) {
		if req.MaxItems > 0 {
			page.Token = EncodeToken(skip)
		}
		return page
	}

	rest := items[skip:]
	if req.MaxItems > 0 && len(rest) > req.MaxItems {
		page.Items = append([]T(nil), rest[:req.MaxItems]...)
		page.HasMore = true
		page.Token = EncodeToken(skip + req.MaxItems)
		return page
	}
	page.Items = append([]T(nil), rest...)
	return page
}

// continuation is the decoded form of a paging token.
type continuation struct {
	Skip int `json:"skip"`
}

// EncodeToken builds an opaque continuation token for the given offset.
func EncodeToken(skip int) string {
	raw, _ := json.Marshal(continuation{Skip: skip})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeToken recovers the offset from a continuation token.
func DecodeToken(token string) (int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("malformed paging token: %w", err)
	}
	var c continuation
	if err := json.Unmarshal(raw, &c); err != nil {
		return 0, fmt.Errorf("malformed paging token: %w", err)
	}
	if c.Skip < 0 {
		return 0, fmt.Errorf("malformed paging token: negative offset")
	}
	return c.Skip, nil
}

// SortedSet accumulates values in comparator order, collapsing entries the
// comparator considers equal. Backing stores that cannot sort natively feed
// their results through one of these.
type SortedSet[T any] struct {
	cmp   Comparator[T]
	items []T
}

// NewSortedSet creates a SortedSet ordered by cmp.
func NewSortedSet[T any](cmp Comparator[T]) *SortedSet[T] {
	return &SortedSet[T]{cmp: cmp}
}

// Add inserts v in order. Returns false when an equal entry already exists.
func (s *SortedSet[T]) Add(v T) bool {
	i := sort.Search(len(s.items), func(i int) bool {
		return s.cmp(s.items[i], v) >= 0
	})
	if i < len(s.items) && s.cmp(s.items[i], v) == 0 {
		return false
	}
	s.items = append(s.items, v)
	copy(s.items[i+1:], s.items[i:])
	s.items[i] = v
	return true
}

// Len returns the number of entries.
func (s *SortedSet[T]) Len() int {
	return len(s.items)
}

// Items returns the entries in order. The slice is owned by the set.
func (s *SortedSet[T]) Items() []T {
	return s.items
}
