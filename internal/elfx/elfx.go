// Package elfx provides ELF loading helpers for the in-process dump backend.
package elfx

import (
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"sort"
)

var (
	ErrNotELF     = errors.New("elfx: not an ELF file")
	ErrNoSymbols  = errors.New("elfx: no symbol table")
	ErrNoSection  = errors.New("elfx: section not found")
	ErrNoCodeData = errors.New("elfx: code section has no file data")
)

// Section names used for symbols that are not defined in a real section.
const (
	SectionUndefined = "*UND*"
	SectionAbsolute  = "*ABS*"
	SectionCommon    = "*COM*"
)

// File wraps a debug/elf.File with the lookups needed to render symbol
// tables and disassembly listings.
type File struct {
	ELF  *elf.File
	size int64
}

// Symbol is one symbol table entry with its section resolved to a name.
type Symbol struct {
	Name    string
	Value   uint64
	Size    uint64
	Type    elf.SymType
	Bind    elf.SymBind
	Section string
}

// IsFunc reports whether the symbol is a function defined in a section.
func (s Symbol) IsFunc() bool {
	return s.Type == elf.STT_FUNC && s.Section != SectionUndefined
}

// CodeSection is an executable PROGBITS section with its contents.
type CodeSection struct {
	Name string
	Addr uint64
	Data []byte
}

// Open opens an ELF file of any class or machine.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("elfx: open: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("elfx: stat: %w", err)
	}

	ef, err := elf.NewFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotELF, err)
	}

	return &File{ELF: ef, size: info.Size()}, nil
}

// Close releases resources.
func (f *File) Close() error {
	return f.ELF.Close()
}

// FileSize returns the size of the underlying file.
func (f *File) FileSize() int64 { return f.size }

// Machine returns the ELF machine type.
func (f *File) Machine() elf.Machine { return f.ELF.Machine }

// Symbols returns the static symbol table, falling back to the dynamic
// one for stripped shared objects. Entries are ordered by address, then
// name.
func (f *File) Symbols() ([]Symbol, error) {
	raw, err := f.ELF.Symbols()
	if errors.Is(err, elf.ErrNoSymbols) {
		raw, err = f.ELF.DynamicSymbols()
	}
	if errors.Is(err, elf.ErrNoSymbols) {
		return nil, ErrNoSymbols
	}
	if err != nil {
		return nil, fmt.Errorf("elfx: symbols: %w", err)
	}

	syms := make([]Symbol, 0, len(raw))
	for _, s := range raw {
		if s.Name == "" {
			continue
		}
		syms = append(syms, Symbol{
			Name:    s.Name,
			Value:   s.Value,
			Size:    s.Size,
			Type:    elf.ST_TYPE(s.Info),
			Bind:    elf.ST_BIND(s.Info),
			Section: f.sectionName(s.Section),
		})
	}
	sort.SliceStable(syms, func(i, j int) bool {
		if syms[i].Value != syms[j].Value {
			return syms[i].Value < syms[j].Value
		}
		return syms[i].Name < syms[j].Name
	})
	return syms, nil
}

// Functions returns the defined function symbols, ordered by address.
func (f *File) Functions() ([]Symbol, error) {
	syms, err := f.Symbols()
	if err != nil {
		return nil, err
	}
	var funcs []Symbol
	for _, s := range syms {
		if s.IsFunc() {
			funcs = append(funcs, s)
		}
	}
	return funcs, nil
}

// CodeSections returns every allocated, executable section that carries
// file data, ordered by address.
func (f *File) CodeSections() ([]CodeSection, error) {
	var out []CodeSection
	for _, s := range f.ELF.Sections {
		if s.Type != elf.SHT_PROGBITS {
			continue
		}
		if s.Flags&elf.SHF_ALLOC == 0 || s.Flags&elf.SHF_EXECINSTR == 0 {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNoCodeData, s.Name, err)
		}
		out = append(out, CodeSection{Name: s.Name, Addr: s.Addr, Data: data})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out, nil
}

// Section returns the named section header.
func (f *File) Section(name string) (*elf.Section, error) {
	s := f.ELF.Section(name)
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSection, name)
	}
	return s, nil
}

func (f *File) sectionName(idx elf.SectionIndex) string {
	switch idx {
	case elf.SHN_UNDEF:
		return SectionUndefined
	case elf.SHN_ABS:
		return SectionAbsolute
	case elf.SHN_COMMON:
		return SectionCommon
	}
	if int(idx) < len(f.ELF.Sections) {
		return f.ELF.Sections[idx].Name
	}
	return SectionAbsolute
}
