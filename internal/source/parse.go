package source

import (
	"context"
	"fmt"
	"os"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

// ParseFile reads and parses one preprocessed C file.
func ParseFile(ctx context.Context, path string) (*TranslationUnit, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("source: read %s: %w", path, err)
	}
	return Parse(ctx, path, src)
}

// Parse builds the translation unit of src. Syntax errors do not fail the
// parse: the tree keeps ERROR nodes and every token is still recorded.
func Parse(ctx context.Context, path string, src []byte) (*TranslationUnit, error) {
	// A parser per call: tree-sitter parsers are not safe for concurrent use.
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(c.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("source: parse %s: %w", path, err)
	}
	defer tree.Close()

	u := &TranslationUnit{Path: path, Lines: ScanLineMap(src)}
	b := builder{unit: u, src: src}
	b.walk(tree.RootNode())
	return u, nil
}

type builder struct {
	unit *TranslationUnit
	src  []byte
}

// walk appends n (if named) in pre-order and every leaf below it as a token.
func (b *builder) walk(n *sitter.Node) {
	if n == nil {
		return
	}

	first := len(b.unit.Tokens)
	count := int(n.ChildCount())
	if count == 0 && n.EndByte() > n.StartByte() {
		p := n.StartPoint()
		b.unit.Tokens = append(b.unit.Tokens, Token{
			Text: n.Content(b.src),
			Line: int(p.Row) + 1,
			Col:  int(p.Column) + 1,
		})
	}

	idx := -1
	if n.IsNamed() {
		p := n.StartPoint()
		idx = len(b.unit.Nodes)
		b.unit.Nodes = append(b.unit.Nodes, Node{
			Kind:  n.Type(),
			Name:  spelling(n, b.src),
			Line:  int(p.Row) + 1,
			Col:   int(p.Column) + 1,
			First: first,
		})
	}

	for i := 0; i < count; i++ {
		b.walk(n.Child(i))
	}

	if idx >= 0 {
		b.unit.Nodes[idx].Last = len(b.unit.Tokens)
	}
}

// spelling returns the identifier a node declares or refers to:
// identifiers spell themselves, declarations and declarators spell the
// declared name, calls spell the callee, tags spell the tag name.
// Everything else spells "".
func spelling(n *sitter.Node, src []byte) string {
	switch n.Type() {
	case "identifier", "field_identifier", "type_identifier", "statement_identifier":
		return n.Content(src)
	case "function_definition", "declaration", "field_declaration",
		"parameter_declaration", "type_definition":
		return declaratorName(n.ChildByFieldName("declarator"), src)
	case "function_declarator", "pointer_declarator", "array_declarator",
		"parenthesized_declarator", "init_declarator", "attributed_declarator",
		"abstract_function_declarator":
		return declaratorName(n, src)
	case "call_expression":
		if fn := n.ChildByFieldName("function"); fn != nil {
			return spelling(fn, src)
		}
	case "struct_specifier", "union_specifier", "enum_specifier",
		"enumerator", "preproc_def", "preproc_function_def":
		if name := n.ChildByFieldName("name"); name != nil {
			return name.Content(src)
		}
	case "labeled_statement", "goto_statement":
		if label := n.ChildByFieldName("label"); label != nil {
			return label.Content(src)
		}
	}
	return ""
}

// declaratorName follows nested declarators down to the declared identifier.
func declaratorName(d *sitter.Node, src []byte) string {
	for d != nil {
		switch d.Type() {
		case "identifier", "field_identifier", "type_identifier":
			return d.Content(src)
		case "parenthesized_declarator":
			d = d.NamedChild(0)
		default:
			d = d.ChildByFieldName("declarator")
		}
	}
	return ""
}
