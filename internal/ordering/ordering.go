// Package ordering sorts records by an ordered list of (field, direction)
// pairs.
package ordering

import (
	"fmt"
	"slices"
	"strings"
)

// Ordering is one sort key.
type Ordering struct {
	Field     string
	Ascending bool
}

func (o Ordering) String() string {
	direction := "DESC"
	if o.Ascending {
		direction = "ASC"
	}
	return o.Field + " " + direction
}

// Asc and Desc build orderings.
func Asc(field string) Ordering  { return Ordering{Field: field, Ascending: true} }
func Desc(field string) Ordering { return Ordering{Field: field} }

// Parse reads "field" or "field asc|desc" terms separated by commas.
func Parse(s string) ([]Ordering, error) {
	var out []Ordering
	for _, term := range strings.Split(s, ",") {
		parts := strings.Fields(term)
		switch len(parts) {
		case 0:
			continue
		case 1:
			out = append(out, Asc(parts[0]))
		case 2:
			switch strings.ToLower(parts[1]) {
			case "asc":
				out = append(out, Asc(parts[0]))
			case "desc":
				out = append(out, Desc(parts[0]))
			default:
				return nil, fmt.Errorf("invalid direction %q for %s", parts[1], parts[0])
			}
		default:
			return nil, fmt.Errorf("invalid ordering term %q", term)
		}
	}
	return out, nil
}

// Fields maps field names to three-way comparators.
type Fields[T any] map[string]func(a, b T) int

// Comparator builds a single comparator applying order left to right.
func (f Fields[T]) Comparator(order []Ordering) (func(a, b T) int, error) {
	cmps := make([]func(a, b T) int, 0, len(order))
	for _, o := range order {
		c, ok := f[o.Field]
		if !ok {
			return nil, fmt.Errorf("unknown sort field %q", o.Field)
		}
		if !o.Ascending {
			asc := c
			c = func(a, b T) int { return -asc(a, b) }
		}
		cmps = append(cmps, c)
	}
	return func(a, b T) int {
		for _, c := range cmps {
			if r := c(a, b); r != 0 {
				return r
			}
		}
		return 0
	}, nil
}

// MustComparator is like Comparator but panics on an unknown field. It is
// meant for orderings fixed at compile time.
func (f Fields[T]) MustComparator(order []Ordering) func(a, b T) int {
	c, err := f.Comparator(order)
	if err != nil {
		panic(err)
	}
	return c
}

// Sort stably sorts items in place.
func (f Fields[T]) Sort(items []T, order []Ordering) error {
	cmp, err := f.Comparator(order)
	if err != nil {
		return err
	}
	slices.SortStableFunc(items, cmp)
	return nil
}
