// Package callgraph builds the source-level call map: for each function
// defined in a unit's main file, the functions its call expressions name.
package callgraph

import (
	"sort"

	"github.com/zboralski/lattice"

	"deadfuncs/internal/names"
	"deadfuncs/internal/source"
)

const (
	kindFunctionDefinition = "function_definition"
	kindCallExpression     = "call_expression"
)

// FuncInfo holds the calls made by one function definition.
type FuncInfo struct {
	Name  string   `json:"name"`
	File  string   `json:"file"`
	Line  int      `json:"line"`
	Calls []string `json:"calls,omitempty"` // first-call order, no duplicates
}

// Collect returns the function definitions located in u's main file, in
// source order. Definitions pulled in from headers are skipped, as are
// calls through expressions that do not spell a name.
func Collect(u *source.TranslationUnit) []FuncInfo {
	main := u.MainFile()

	var funcs []FuncInfo
	var cur source.Node
	var seen map[string]bool
	in := false
	for i, n := range u.Nodes {
		if i == 0 {
			continue
		}
		file, line := u.Position(n.Line)
		if file != main {
			continue
		}
		switch n.Kind {
		case kindFunctionDefinition:
			if n.Name == "" {
				continue
			}
			funcs = append(funcs, FuncInfo{Name: n.Name, File: file, Line: line})
			cur, seen, in = n, make(map[string]bool), true
		case kindCallExpression:
			if !in || n.Name == "" || !source.Contains(cur, n) || seen[n.Name] {
				continue
			}
			seen[n.Name] = true
			f := &funcs[len(funcs)-1]
			f.Calls = append(f.Calls, n.Name)
		}
	}
	return funcs
}

// Defined returns the names of the given definitions.
func Defined(funcs []FuncInfo) names.Set {
	s := make(names.Set, len(funcs))
	for _, f := range funcs {
		s.Add(f.Name)
	}
	return s
}

// CallMap maps each defined function to the functions it calls. A name
// defined in several units (static functions, inline headers) gets the
// union of their calls.
type CallMap map[string][]string

// BuildCallMap merges per-unit definitions into one call map with sorted
// callee lists.
func BuildCallMap(funcs []FuncInfo) CallMap {
	sets := make(map[string]names.Set, len(funcs))
	for _, f := range funcs {
		s, ok := sets[f.Name]
		if !ok {
			s = make(names.Set)
			sets[f.Name] = s
		}
		for _, c := range f.Calls {
			s.Add(c)
		}
	}
	m := make(CallMap, len(sets))
	for name, s := range sets {
		m[name] = s.Sorted()
	}
	return m
}

// Callers inverts m: for each callee, the sorted list of its callers.
func (m CallMap) Callers() map[string][]string {
	inv := make(map[string][]string)
	for caller, callees := range m {
		for _, c := range callees {
			inv[c] = append(inv[c], caller)
		}
	}
	for c := range inv {
		sort.Strings(inv[c])
	}
	return inv
}

// BuildCallGraph constructs a lattice.Graph from function definitions.
// Each definition becomes a node. Each named call becomes an edge.
func BuildCallGraph(funcs []FuncInfo) *lattice.Graph {
	g := &lattice.Graph{}
	for _, f := range funcs {
		g.Nodes = append(g.Nodes, f.Name)
		for _, callee := range f.Calls {
			g.Edges = append(g.Edges, lattice.Edge{
				Caller: f.Name,
				Callee: callee,
			})
		}
	}
	g.Dedup()
	return g
}
