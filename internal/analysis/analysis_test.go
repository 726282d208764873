package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deadfuncs/internal/names"
	"deadfuncs/internal/source"
	"deadfuncs/internal/toolchain"
)

const symtab = `
app.elf:     file format elf32-sparc

SYMBOL TABLE:
40000000 l    d  .text	00000000 .text
40000100 g     F .text	00000024 f
40000140 g     F .text	00000010 g
40000180 g     F .text	00000010 h
400001c0 g     F .text	00000008 ghost
400001e0 g     F .text	00000008 ep_BAR
40000200 g     F .text	00000008 ep_main
40010010 g     O .data	00000004 counter
`

const disassembly = `
app.elf:     file format elf32-sparc

Disassembly of section .text:

40000100 <f>:
int f(void) { return g(); }
40000100:	40 00 00 10 	call  40000140 <g>
40000104:	01 00 00 00 	nop 

40000140 <g>:
40000140:	81 c3 e0 08 	retl 

40000180 <h>:
40000180:	40 00 00 00 	call  40000140 <g>
40000184:	81 c3 e0 08 	retl 

400001e0 <ep_BAR>:
400001e0:	81 c3 e0 08 	retl 

40000200 <ep_main>:
40000200:	40 00 00 00 	call  400001e0 <ep_BAR>
40000204:	10 80 00 00 	b  40000180 <h+0x4>
`

var sources = map[string]string{
	"fg.i": `# 1 "fg.c"
int g(void) { return 0; }
int f(void) { return g(); }
`,
	"hook.i": `# 1 "hook.c"
extern int f(void);
int (*hook)(void) = f;
int ep_main(void);
int (*entry)(void) = ep_main;
`,
}

type fakeDumper struct {
	symtab, disasm string
	err            error
}

func (d *fakeDumper) SymbolTable(context.Context, string) ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	return []byte(d.symtab), nil
}

func (d *fakeDumper) Disassembly(context.Context, string) ([]byte, error) {
	return []byte(d.disasm), nil
}

type fixture struct {
	dir     string
	sources []string
	cache   *source.Cache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{dir: t.TempDir()}
	for _, name := range []string{"fg.i", "hook.i"} {
		p := filepath.Join(f.dir, name)
		require.NoError(t, os.WriteFile(p, []byte(sources[name]), 0o644))
		f.sources = append(f.sources, p)
	}
	f.cache = source.NewCache(filepath.Join(f.dir, ".cache"))
	return f
}

func (f *fixture) options() Options {
	return Options{
		Binary:  "app.elf",
		Sources: f.sources,
		Dumper:  &fakeDumper{symtab: symtab, disasm: disassembly},
		Cache:   f.cache,
		Jobs:    2,
		Output:  filepath.Join(f.dir, "deadFunctions"),
		Report:  filepath.Join(f.dir, "report.json"),
		Logger:  zerolog.Nop(),
	}
}

func TestExtract(t *testing.T) {
	bin, err := Extract(context.Background(), &fakeDumper{symtab: symtab, disasm: disassembly}, "app.elf")
	require.NoError(t, err)

	assert.Equal(t, []string{"ep_BAR", "ep_main", "f", "g", "ghost", "h"}, bin.SymbolTable.Sorted())
	// ghost has no body in the disassembly.
	assert.Equal(t, []string{"ep_BAR", "ep_main", "f", "g", "h"}, bin.Functions.Sorted())
	for n := range bin.Functions {
		assert.True(t, bin.SymbolTable.Has(n))
	}
}

func TestExtractToolchainError(t *testing.T) {
	_, err := Extract(context.Background(), &fakeDumper{err: toolchain.ErrToolNotFound}, "app.elf")
	assert.ErrorIs(t, err, toolchain.ErrToolNotFound)
}

func TestReconcile(t *testing.T) {
	all := names.Of("a", "b", "c", "d")
	used := names.Of("b", "d", "x")

	assert.Equal(t, []string{"a", "c"}, Reconcile(all, used))
	assert.Empty(t, Reconcile(all, all))
	assert.Equal(t, []string{"a", "b", "c", "d"}, Reconcile(all, names.Of()))
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	opts := f.options()

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)

	// g is called from f, f and ep_main are referenced by pointers and
	// ep_BAR is called only from code without source. The branch into
	// h+0x4 is not a reference to h.
	assert.Equal(t, []string{"h"}, res.Dead)
	assert.Contains(t, res.Sources, "g")
	assert.Contains(t, res.Sources, "f")
	assert.NotContains(t, res.Sources, "ep_BAR")
	assert.True(t, res.Disassembly.Has("ep_BAR"))
	assert.Equal(t, source.LoadStats{Parsed: 2}, res.Stats)

	got, err := os.ReadFile(opts.Output)
	require.NoError(t, err)
	assert.Equal(t, "h\n", string(got))

	site := res.Sources["g"]
	assert.Equal(t, "fg.c", site.File)
	assert.Equal(t, 2, site.Line)
	assert.Equal(t, "f", site.In)
}

func TestRunPartitionsFunctions(t *testing.T) {
	f := newFixture(t)
	res, err := Run(context.Background(), f.options())
	require.NoError(t, err)

	dead := names.Of(res.Dead...)
	for n := range dead {
		assert.False(t, res.Used.Has(n), "%s is both dead and used", n)
	}
	union := names.Of(res.Dead...)
	for n := range res.Used {
		if res.Binary.Functions.Has(n) {
			union.Add(n)
		}
	}
	assert.Equal(t, res.Binary.Functions, union)
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	opts := f.options()

	_, err := Run(context.Background(), opts)
	require.NoError(t, err)
	cold, err := os.ReadFile(opts.Output)
	require.NoError(t, err)

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, source.LoadStats{Cached: 2}, res.Stats)
	warm, err := os.ReadFile(opts.Output)
	require.NoError(t, err)
	assert.Equal(t, cold, warm)

	opts.Cache = nil
	_, err = Run(context.Background(), opts)
	require.NoError(t, err)
	uncached, err := os.ReadFile(opts.Output)
	require.NoError(t, err)
	assert.Equal(t, cold, uncached)
}

func TestRunRecoversFromCorruptCache(t *testing.T) {
	f := newFixture(t)
	opts := f.options()

	_, err := Run(context.Background(), opts)
	require.NoError(t, err)
	cold, err := os.ReadFile(opts.Output)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(f.cache.EntryPath(f.sources[0]), []byte("DFTU garbage"), 0o644))

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, source.LoadStats{Parsed: 1, Cached: 1}, res.Stats)
	again, err := os.ReadFile(opts.Output)
	require.NoError(t, err)
	assert.Equal(t, cold, again)
}

func TestRunSelfDefinitionIsNotUse(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "solo.i")
	require.NoError(t, os.WriteFile(p, []byte("int g(void) { return 0; }\n"), 0o644))

	opts := Options{
		Binary:  "app.elf",
		Sources: []string{p},
		Dumper: &fakeDumper{
			symtab: "40000140 g     F .text\t00000010 g\n",
			disasm: "40000140 <g>:\n40000140:\t81 c3 e0 08 \tretl \n",
		},
		Logger: zerolog.Nop(),
	}
	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"g"}, res.Dead)

	require.NoError(t, os.WriteFile(p, []byte("int g(void) { return 0; }\nint k(void) { return g(); }\n"), 0o644))
	res, err = Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Empty(t, res.Dead)
}

func TestRunToolchainFailureLeavesNoOutput(t *testing.T) {
	f := newFixture(t)
	opts := f.options()
	require.NoError(t, os.WriteFile(opts.Output, []byte("stale\n"), 0o644))
	require.NoError(t, os.WriteFile(opts.Report, []byte("{}\n"), 0o644))

	opts.Dumper = &fakeDumper{err: toolchain.ErrDumpFailed}
	_, err := Run(context.Background(), opts)
	assert.True(t, errors.Is(err, toolchain.ErrDumpFailed))

	_, err = os.Stat(opts.Output)
	assert.True(t, os.IsNotExist(err), "stale output must be removed")
	_, err = os.Stat(opts.Report)
	assert.True(t, os.IsNotExist(err), "stale report must be removed")
}

func TestRunMissingSourceLeavesNoOutput(t *testing.T) {
	f := newFixture(t)
	opts := f.options()
	opts.Sources = append(opts.Sources, filepath.Join(f.dir, "missing.i"))

	_, err := Run(context.Background(), opts)
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(opts.Output)
	assert.True(t, os.IsNotExist(err))
}

func TestReport(t *testing.T) {
	f := newFixture(t)
	opts := f.options()
	res, err := Run(context.Background(), opts)
	require.NoError(t, err)

	rep := res.Report("app.elf")
	assert.Equal(t, "app.elf", rep.Binary)
	assert.Equal(t, []string{"ep_BAR", "ep_main", "f", "g", "h"}, rep.Functions)
	assert.Equal(t, []string{"h"}, rep.Dead)

	assert.Equal(t, PassSource, rep.Used["g"].Pass)
	assert.Equal(t, "fg.c", rep.Used["g"].File)
	assert.Equal(t, PassSource, rep.Used["f"].Pass)
	assert.Equal(t, "hook.c", rep.Used["f"].File)
	assert.Equal(t, PassDisassembly, rep.Used["ep_BAR"].Pass)
	assert.NotContains(t, rep.Used, "h")
	assert.Len(t, rep.Used, 4)

	_, err = os.Stat(opts.Report)
	assert.NoError(t, err)
}
