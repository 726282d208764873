package toolchain

import (
	"bytes"
	"context"
	"debug/elf"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"deadfuncs/internal/disasm"
	"deadfuncs/internal/elfx"
)

// Native renders both dumps in process from the ELF file itself. It
// supports the machines package disasm can decode.
type Native struct {
	logger zerolog.Logger
}

// NewNative returns an in-process dumper.
func NewNative(logger zerolog.Logger) *Native {
	return &Native{logger: logger}
}

// SymbolTable renders every named symbol as an objdump -t line.
func (n *Native) SymbolTable(ctx context.Context, binary string) ([]byte, error) {
	ef, err := elfx.Open(binary)
	if err != nil {
		return nil, err
	}
	defer ef.Close()

	syms, err := ef.Symbols()
	if err != nil {
		return nil, err
	}

	w := addrWidth(ef)
	var b bytes.Buffer
	fmt.Fprintf(&b, "\n%s:     file format %s\n\nSYMBOL TABLE:\n", filepath.Base(binary), formatName(ef))
	for _, s := range syms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fmt.Fprintf(&b, "%0*x %s %s\t%0*x %s\n", w, s.Value, symbolFlags(s), s.Section, w, s.Size, s.Name)
	}

	n.logger.Debug().Int("symbols", len(syms)).Str("binary", binary).Msg("Rendered symbol table")
	return b.Bytes(), nil
}

// Disassembly renders every function symbol's body as an objdump -d
// listing. Direct branch and call targets that land on a function start
// are annotated with the function's name.
func (n *Native) Disassembly(ctx context.Context, binary string) ([]byte, error) {
	ef, err := elfx.Open(binary)
	if err != nil {
		return nil, err
	}
	defer ef.Close()

	arch, err := disasm.ArchFor(ef.Machine())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDumpFailed, err)
	}
	funcs, err := ef.Functions()
	if err != nil {
		return nil, err
	}
	sections, err := ef.CodeSections()
	if err != nil {
		return nil, err
	}

	starts := make(map[uint64]string, len(funcs))
	for _, f := range funcs {
		if _, dup := starts[f.Value]; !dup || f.Bind == elf.STB_GLOBAL {
			starts[f.Value] = f.Name
		}
	}
	lookup := disasm.PlaceholderLookup(starts)

	w := addrWidth(ef)
	var b bytes.Buffer
	fmt.Fprintf(&b, "\n%s:     file format %s\n", filepath.Base(binary), formatName(ef))
	for _, sec := range sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fmt.Fprintf(&b, "\n\nDisassembly of section %s:\n", sec.Name)

		bodies := sectionBodies(sec, funcs, starts)
		for _, body := range bodies {
			code := sec.Data[body.start-sec.Addr : body.end-sec.Addr]
			insts := disasm.Disassemble(arch, code, disasm.Options{BaseAddr: body.start})
			fmt.Fprintf(&b, "\n%0*x <%s>:\n", w, body.start, body.name)
			b.WriteString(disasm.Format(insts, lookup))
		}
		n.logger.Debug().
			Str("section", sec.Name).
			Int("functions", len(bodies)).
			Msg("Disassembled section")
	}
	return b.Bytes(), nil
}

type body struct {
	name       string
	start, end uint64
}

// sectionBodies returns one body per distinct function start inside sec.
// A body ends at start+size, or at the next start when the size is unknown,
// and never past the end of the section.
func sectionBodies(sec elfx.CodeSection, funcs []elfx.Symbol, starts map[uint64]string) []body {
	secEnd := sec.Addr + uint64(len(sec.Data))

	var bodies []body
	for i, f := range funcs {
		if f.Value < sec.Addr || f.Value >= secEnd || f.Section != sec.Name {
			continue
		}
		if starts[f.Value] != f.Name {
			continue // alias; the preferred name labels this address
		}
		end := f.Value + f.Size
		if f.Size == 0 {
			end = secEnd
			for _, next := range funcs[i+1:] {
				if next.Value > f.Value {
					end = next.Value
					break
				}
			}
		}
		if end > secEnd {
			end = secEnd
		}
		bodies = append(bodies, body{name: f.Name, start: f.Value, end: end})
	}
	return bodies
}

// symbolFlags renders the seven objdump flag characters.
func symbolFlags(s elfx.Symbol) string {
	flags := []byte("       ")
	switch s.Bind {
	case elf.STB_LOCAL:
		flags[0] = 'l'
	case elf.STB_GLOBAL:
		flags[0] = 'g'
	case elf.STB_WEAK:
		flags[1] = 'w'
	}
	switch s.Type {
	case elf.STT_FUNC:
		flags[6] = 'F'
	case elf.STT_OBJECT:
		flags[6] = 'O'
	case elf.STT_FILE:
		flags[5] = 'd'
		flags[6] = 'f'
	case elf.STT_SECTION:
		flags[5] = 'd'
	}
	return string(flags)
}

func addrWidth(ef *elfx.File) int {
	if ef.ELF.Class == elf.ELFCLASS32 {
		return 8
	}
	return 16
}

func formatName(ef *elfx.File) string {
	bits := "64"
	if ef.ELF.Class == elf.ELFCLASS32 {
		bits = "32"
	}
	switch ef.Machine() {
	case elf.EM_X86_64:
		return "elf64-x86-64"
	case elf.EM_386:
		return "elf32-i386"
	case elf.EM_AARCH64:
		return "elf64-littleaarch64"
	case elf.EM_SPARC:
		return "elf32-sparc"
	}
	return "elf" + bits + "-" + ef.Machine().String()
}
