// Package disasm decodes machine code for the in-process dump backend and
// renders it in the objdump listing layout.
package disasm

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

// ErrUnsupportedMachine is returned for ELF machines without a decoder.
var ErrUnsupportedMachine = errors.New("disasm: unsupported machine")

// Arch selects the instruction decoder.
type Arch int

const (
	ArchAMD64 Arch = iota + 1
	Arch386
	ArchARM64
)

func (a Arch) String() string {
	switch a {
	case ArchAMD64:
		return "amd64"
	case Arch386:
		return "386"
	case ArchARM64:
		return "arm64"
	}
	return fmt.Sprintf("Arch(%d)", int(a))
}

// ArchFor maps an ELF machine to a decoder.
func ArchFor(m elf.Machine) (Arch, error) {
	switch m {
	case elf.EM_X86_64:
		return ArchAMD64, nil
	case elf.EM_386:
		return Arch386, nil
	case elf.EM_AARCH64:
		return ArchARM64, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrUnsupportedMachine, m)
}

// Inst is a decoded instruction with address and raw bytes.
type Inst struct {
	Addr      uint64
	Bytes     []byte
	Text      string // full disassembly text, GNU syntax
	Target    uint64 // absolute branch or call target
	HasTarget bool
}

// Len returns the encoded length of the instruction.
func (i Inst) Len() int { return len(i.Bytes) }

// SymbolLookup resolves an address to a symbolic name. Returns ("", false) if unknown.
type SymbolLookup func(addr uint64) (name string, ok bool)

// Options controls disassembly behavior.
type Options struct {
	BaseAddr uint64 // VA of the first byte in Data
	MaxSteps int    // maximum instructions to decode; 0 = 10M
}

const defaultMaxSteps = 10_000_000

func (o Options) effectiveMax() int {
	if o.MaxSteps > 0 {
		return o.MaxSteps
	}
	return defaultMaxSteps
}

// Disassemble decodes instructions from a byte region.
// Returns decoded instructions up to MaxSteps or end of data.
func Disassemble(arch Arch, data []byte, opts Options) []Inst {
	maxSteps := opts.effectiveMax()

	var result []Inst
	for off := 0; off < len(data) && len(result) < maxSteps; {
		inst, ok := Decode(arch, data[off:], opts.BaseAddr+uint64(off))
		if !ok {
			break
		}
		result = append(result, inst)
		off += inst.Len()
	}
	return result
}

// Decode decodes the instruction at the start of code. Undecodable bytes
// become a .byte (x86) or .word (arm64) pseudo instruction so the stream
// keeps moving. ok is false only when code is too short to hold anything.
func Decode(arch Arch, code []byte, pc uint64) (Inst, bool) {
	switch arch {
	case ArchAMD64:
		return decodeX86(code, pc, 64)
	case Arch386:
		return decodeX86(code, pc, 32)
	case ArchARM64:
		return decodeARM64(code, pc)
	}
	return Inst{}, false
}

func decodeX86(code []byte, pc uint64, mode int) (Inst, bool) {
	if len(code) == 0 {
		return Inst{}, false
	}
	inst, err := x86asm.Decode(code, mode)
	if err != nil || inst.Len == 0 {
		return Inst{
			Addr:  pc,
			Bytes: code[:1],
			Text:  fmt.Sprintf(".byte 0x%02x", code[0]),
		}, true
	}

	out := Inst{
		Addr:  pc,
		Bytes: code[:inst.Len],
		Text:  x86asm.GNUSyntax(inst, pc, noSymbols),
	}
	for _, a := range inst.Args {
		if a == nil {
			break
		}
		if rel, ok := a.(x86asm.Rel); ok {
			out.Target = pc + uint64(inst.Len) + uint64(int64(rel))
			out.HasTarget = true
		}
	}
	return out, true
}

func noSymbols(uint64) (string, uint64) { return "", 0 }

func decodeARM64(code []byte, pc uint64) (Inst, bool) {
	if len(code) < 4 {
		return Inst{}, false
	}
	raw := binary.LittleEndian.Uint32(code[:4])
	out := Inst{Addr: pc, Bytes: code[:4]}

	inst, err := arm64asm.Decode(code[:4])
	if err != nil {
		out.Text = fmt.Sprintf(".word 0x%08x", raw)
	} else {
		out.Text = arm64asm.GNUSyntax(inst)
	}

	if target, ok := isBL(raw, pc); ok {
		out.Target, out.HasTarget = target, true
	} else if br := DecodeBranch(raw, pc); br != nil && !br.IsRet {
		out.Target, out.HasTarget = br.Target, true
	}
	return out, true
}

// Format renders a slice of instructions in the objdump listing layout.
// Each line: <addr>:\t<hex bytes> \t<disasm>[ <target>]
// A target is annotated only when lookup resolves it.
func Format(insts []Inst, lookup SymbolLookup) string {
	var b strings.Builder
	for _, inst := range insts {
		fmt.Fprintf(&b, "%8x:\t", inst.Addr)
		for i, c := range inst.Bytes {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%02x", c)
		}
		b.WriteString(" \t")
		b.WriteString(inst.Text)
		if inst.HasTarget && lookup != nil {
			if name, ok := lookup(inst.Target); ok {
				fmt.Fprintf(&b, " <%s>", name)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// PlaceholderLookup returns a SymbolLookup over a fixed address map.
func PlaceholderLookup(entryPoints map[uint64]string) SymbolLookup {
	return func(addr uint64) (string, bool) {
		if name, ok := entryPoints[addr]; ok {
			return name, true
		}
		return "", false
	}
}
