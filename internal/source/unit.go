// Package source turns preprocessed C files into immutable syntax trees
// and keeps an on-disk cache of them between runs.
package source

// KindTranslationUnit is the kind of every unit's root node.
const KindTranslationUnit = "translation_unit"

// Token is one lexical token: a leaf of the syntax tree.
type Token struct {
	Text string
	Line int // 1-based physical line in the preprocessed file
	Col  int // 1-based byte column
}

// Node is a named syntax node. Its tokens are Tokens[First:Last] of the
// owning unit.
type Node struct {
	Kind  string
	Name  string // spelling: the identifier the node declares or refers to
	Line  int
	Col   int
	First int
	Last  int
}

// TranslationUnit is the flattened syntax tree of one preprocessed file.
// Nodes are stored in pre-order; Nodes[0] is the root. A unit is never
// modified after parsing and is safe to share between goroutines.
type TranslationUnit struct {
	Path   string
	Nodes  []Node
	Tokens []Token
	Lines  LineMap
}

// NodeTokens returns the tokens covered by n.
func (u *TranslationUnit) NodeTokens(n Node) []Token {
	return u.Tokens[n.First:n.Last]
}

// Position maps a physical line of the preprocessed file back to the
// original file and line named by its line markers.
func (u *TranslationUnit) Position(line int) (file string, origLine int) {
	return u.Lines.Resolve(u.Path, line)
}

// MainFile returns the file the unit was preprocessed from: the first
// line marker naming a real file, or the unit's own path.
func (u *TranslationUnit) MainFile() string {
	return u.Lines.MainFile(u.Path)
}

// Contains reports whether inner lies within outer's token range.
func Contains(outer, inner Node) bool {
	return inner.First >= outer.First && inner.Last <= outer.Last
}
