// Package names provides the string set used for function symbol names.
package names

import "sort"

// Set is a set of function names. Identity is textual equality.
type Set map[string]struct{}

// Of returns a set holding the given names.
func Of(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Add inserts name into the set.
func (s Set) Add(name string) { s[name] = struct{}{} }

// Has reports whether name is in the set.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Len returns the number of names.
func (s Set) Len() int { return len(s) }

// Merge adds every name of o to s.
func (s Set) Merge(o Set) {
	for n := range o {
		s[n] = struct{}{}
	}
}

// Minus returns the names of s that are not in o.
func (s Set) Minus(o Set) Set {
	out := make(Set)
	for n := range s {
		if !o.Has(n) {
			out[n] = struct{}{}
		}
	}
	return out
}

// Sorted returns the names in lexicographic order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
