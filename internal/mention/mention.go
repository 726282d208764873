// Package mention finds lexical mentions of binary function names in
// parsed translation units.
//
// A name counts as mentioned when any token of any syntax node spells it
// and the node itself does not. The node check keeps a definition header
// from counting as a use of the function it defines. Comments, string
// contents and unrelated identifiers that happen to spell a function name
// are counted too, so the result errs towards "used".
package mention

import (
	"deadfuncs/internal/names"
	"deadfuncs/internal/source"
)

// Site locates the first recorded mention of a name.
type Site struct {
	Unit string // preprocessed file
	File string // original file from line markers
	Line int    // line in File
	In   string // spelling of the enclosing node, "" when anonymous
}

func (s Site) less(o Site) bool {
	if s.File != o.File {
		return s.File < o.File
	}
	if s.Line != o.Line {
		return s.Line < o.Line
	}
	if s.Unit != o.Unit {
		return s.Unit < o.Unit
	}
	return s.In < o.In
}

// Result maps each mentioned name to where it was mentioned.
type Result map[string]Site

// Names returns the mentioned names as a set.
func (r Result) Names() names.Set {
	s := make(names.Set, len(r))
	for n := range r {
		s.Add(n)
	}
	return s
}

// Merge folds o into r, keeping the smallest site per name so that the
// outcome does not depend on merge order.
func (r Result) Merge(o Result) {
	for name, site := range o {
		if cur, ok := r[name]; !ok || site.less(cur) {
			r[name] = site
		}
	}
}

// Collect walks every node of u in pre-order, skipping the root, and
// records each token that spells a member of funcs while differing from
// the spelling of the node being visited.
func Collect(u *source.TranslationUnit, funcs names.Set) Result {
	res := make(Result)
	for i, n := range u.Nodes {
		if i == 0 || n.Kind == source.KindTranslationUnit {
			continue
		}
		visit(u, n, funcs, res)
	}
	return res
}

func visit(u *source.TranslationUnit, n source.Node, funcs names.Set, res Result) {
	for _, tok := range u.NodeTokens(n) {
		if tok.Text == n.Name || !funcs.Has(tok.Text) {
			continue
		}
		if _, seen := res[tok.Text]; seen {
			continue
		}
		file, line := u.Position(tok.Line)
		res[tok.Text] = Site{Unit: u.Path, File: file, Line: line, In: n.Name}
	}
}
