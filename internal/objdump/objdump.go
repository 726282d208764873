// Package objdump parses the two textual dump grammars produced by a GNU
// objdump-compatible toolchain: the flat symbol table (objdump -t) and the
// disassembly listing (objdump -d -S).
//
// Symbol table lines are whitespace separated and end in a flag column,
// a section column, a size and the symbol name:
//
//	40001234 g     F .text	00000024 ep_FOO
//
// Disassembly listings announce the start of a function body with
//
//	40001234 <ep_FOO>:
//
// and annotate branch and call targets with an angle-bracketed name
// anywhere else on an instruction line:
//
//	40001240:	40 00 00 10 	call  40001280 <ep_BAR>
package objdump

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"deadfuncs/internal/names"
)

var (
	// functionInText matches the flag and section columns of a defined
	// function that lives in a code section (.text, .text.foo, ...).
	functionInText = regexp.MustCompile(`F +\.text`)

	// functionLabel matches the line opening a function body.
	functionLabel = regexp.MustCompile(`^(\S+) <([A-Za-z0-9_]+)>:`)

	// mention matches a plain symbol reference; offsets such as
	// <foo+0x10> are not references to the start of foo.
	mention = regexp.MustCompile(`<([A-Za-z0-9_]+)>`)
)

const maxLine = 16 << 20

// SymbolTable returns the names of all symbols flagged as functions in a
// code section.
func SymbolTable(dump []byte) (names.Set, error) {
	set := make(names.Set)
	err := eachLine(dump, func(line string) {
		if !functionInText.MatchString(line) {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			return
		}
		set.Add(fields[len(fields)-1])
	})
	if err != nil {
		return nil, fmt.Errorf("objdump: symbol table: %w", err)
	}
	return set, nil
}

// FunctionLabels returns the names that open a disassembled body and are
// also members of symtab. The result is the set of functions that truly
// exist as code in the binary.
func FunctionLabels(dump []byte, symtab names.Set) (names.Set, error) {
	set := make(names.Set)
	err := eachLine(dump, func(line string) {
		if name, ok := Label(line); ok && symtab.Has(name) {
			set.Add(name)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("objdump: function labels: %w", err)
	}
	return set, nil
}

// Mentions returns every angle-bracketed name referenced from a line that
// is not a function label. No membership check is made: names outside the
// binary's function set simply never take part in the final subtraction.
func Mentions(dump []byte) (names.Set, error) {
	set := make(names.Set)
	err := eachLine(dump, func(line string) {
		if _, ok := Label(line); ok {
			return
		}
		for _, m := range mention.FindAllStringSubmatch(line, -1) {
			set.Add(m[1])
		}
	})
	if err != nil {
		return nil, fmt.Errorf("objdump: mentions: %w", err)
	}
	return set, nil
}

// Label reports whether line opens a function body and returns its name.
func Label(line string) (string, bool) {
	m := functionLabel.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", false
	}
	return m[2], true
}

func eachLine(dump []byte, fn func(line string)) error {
	sc := bufio.NewScanner(bytes.NewReader(dump))
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	for sc.Scan() {
		fn(sc.Text())
	}
	return sc.Err()
}
