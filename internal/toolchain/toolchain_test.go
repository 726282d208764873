package toolchain

import (
	"context"
	"debug/elf"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deadfuncs/internal/elfx"
	"deadfuncs/internal/objdump"
)

func TestNewSelectsBackend(t *testing.T) {
	d, err := New(Options{Prefix: "sparc-rtems-"})
	require.NoError(t, err)
	assert.IsType(t, &Objdump{}, d)

	d, err = New(Options{Backend: BackendNative})
	require.NoError(t, err)
	assert.IsType(t, &Native{}, d)

	_, err = New(Options{Backend: "radare"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestObjdumpToolNotFound(t *testing.T) {
	o := NewObjdump("no-such-target-", zerolog.Nop())
	_, err := o.SymbolTable(context.Background(), "app.elf")
	assert.ErrorIs(t, err, ErrToolNotFound)
}

// fakeObjdump writes a shell script standing in for objdump.
func fakeObjdump(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "fake-objdump")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestObjdumpPassesArguments(t *testing.T) {
	o := &Objdump{Path: fakeObjdump(t, `echo "$@"`), logger: zerolog.Nop()}

	out, err := o.SymbolTable(context.Background(), "app.elf")
	require.NoError(t, err)
	assert.Equal(t, "-t app.elf\n", string(out))

	out, err = o.Disassembly(context.Background(), "app.elf")
	require.NoError(t, err)
	assert.Equal(t, "-d -S app.elf\n", string(out))
}

func TestObjdumpNonZeroExit(t *testing.T) {
	o := &Objdump{Path: fakeObjdump(t, "echo 'app.elf: file format not recognized' >&2\nexit 1\n"), logger: zerolog.Nop()}

	_, err := o.Disassembly(context.Background(), "app.elf")
	require.ErrorIs(t, err, ErrDumpFailed)
	assert.Contains(t, err.Error(), "file format not recognized")
}

func TestSymbolFlags(t *testing.T) {
	tests := []struct {
		sym  elfx.Symbol
		want string
	}{
		{elfx.Symbol{Bind: elf.STB_GLOBAL, Type: elf.STT_FUNC}, "g     F"},
		{elfx.Symbol{Bind: elf.STB_LOCAL, Type: elf.STT_FUNC}, "l     F"},
		{elfx.Symbol{Bind: elf.STB_WEAK, Type: elf.STT_FUNC}, " w    F"},
		{elfx.Symbol{Bind: elf.STB_GLOBAL, Type: elf.STT_OBJECT}, "g     O"},
		{elfx.Symbol{Bind: elf.STB_LOCAL, Type: elf.STT_FILE}, "l    df"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, symbolFlags(tt.sym))
	}
}

func TestSectionBodies(t *testing.T) {
	sec := elfx.CodeSection{Name: ".text", Addr: 0x1000, Data: make([]byte, 0x100)}
	funcs := []elfx.Symbol{
		{Name: "a", Value: 0x1000, Size: 0x10, Section: ".text"},
		{Name: "a_alias", Value: 0x1000, Size: 0x10, Section: ".text"},
		{Name: "b", Value: 0x1020, Section: ".text"},
		{Name: "c", Value: 0x1080, Size: 0x200, Section: ".text"},
		{Name: "elsewhere", Value: 0x9000, Size: 4, Section: ".init"},
	}
	starts := map[uint64]string{0x1000: "a", 0x1020: "b", 0x1080: "c", 0x9000: "elsewhere"}

	got := sectionBodies(sec, funcs, starts)
	assert.Equal(t, []body{
		{name: "a", start: 0x1000, end: 0x1010},
		{name: "b", start: 0x1020, end: 0x1080},
		{name: "c", start: 0x1080, end: 0x1100},
	}, got)
}

func TestNativeSymbolTableParses(t *testing.T) {
	exe := selfELF(t)

	dump, err := NewNative(zerolog.Nop()).SymbolTable(context.Background(), exe)
	require.NoError(t, err)

	set, err := objdump.SymbolTable(dump)
	require.NoError(t, err)
	assert.True(t, set.Has(entrySymbol()), "entry symbol missing from %d functions", set.Len())
}

func TestNativeDisassemblyLabelsEntry(t *testing.T) {
	if testing.Short() {
		t.Skip("disassembles the whole test binary")
	}
	exe := selfELF(t)
	n := NewNative(zerolog.Nop())

	symtab, err := n.SymbolTable(context.Background(), exe)
	require.NoError(t, err)
	listing, err := n.Disassembly(context.Background(), exe)
	require.NoError(t, err)

	set, err := objdump.SymbolTable(symtab)
	require.NoError(t, err)
	all, err := objdump.FunctionLabels(listing, set)
	require.NoError(t, err)
	assert.True(t, all.Has(entrySymbol()))
	assert.True(t, strings.Contains(string(listing), "Disassembly of section .text:"))
}

// selfELF returns the test binary when it can be dumped natively.
func selfELF(t *testing.T) string {
	t.Helper()
	switch runtime.GOARCH {
	case "amd64", "arm64", "386":
	default:
		t.Skipf("no decoder for %s", runtime.GOARCH)
	}
	exe, err := os.Executable()
	if err != nil {
		t.Skipf("no executable path: %v", err)
	}
	ef, err := elfx.Open(exe)
	if err != nil {
		t.Skipf("test binary is not ELF: %v", err)
	}
	ef.Close()
	return exe
}

// entrySymbol is the assembly entry point every Go ELF binary carries.
func entrySymbol() string {
	return "_rt0_" + runtime.GOARCH + "_" + runtime.GOOS
}
