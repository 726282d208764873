// Package analysis reconciles the symbol table, the disassembly and the
// source syntax trees of a program into the list of its dead functions.
package analysis

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"deadfuncs/internal/mention"
	"deadfuncs/internal/names"
	"deadfuncs/internal/objdump"
	"deadfuncs/internal/output"
	"deadfuncs/internal/source"
	"deadfuncs/internal/toolchain"
)

// Mention passes recorded in reports.
const (
	PassSource      = "source"
	PassDisassembly = "disassembly"
)

// Binary holds what is extracted from the binary image. It is not modified
// after Extract returns.
type Binary struct {
	// SymbolTable holds every function the symbol table places in a code
	// section.
	SymbolTable names.Set
	// Functions is the subset of SymbolTable that also opens a function
	// body in the disassembly.
	Functions names.Set
	// Disassembly is the raw listing, kept for the mention scan.
	Disassembly []byte
}

// Extract dumps the binary and builds its function set. Any toolchain
// failure is returned unchanged.
func Extract(ctx context.Context, d toolchain.Dumper, binary string) (*Binary, error) {
	symDump, err := d.SymbolTable(ctx, binary)
	if err != nil {
		return nil, err
	}
	symtab, err := objdump.SymbolTable(symDump)
	if err != nil {
		return nil, fmt.Errorf("analysis: symbol table: %w", err)
	}

	dis, err := d.Disassembly(ctx, binary)
	if err != nil {
		return nil, err
	}
	funcs, err := objdump.FunctionLabels(dis, symtab)
	if err != nil {
		return nil, fmt.Errorf("analysis: disassembly: %w", err)
	}

	return &Binary{SymbolTable: symtab, Functions: funcs, Disassembly: dis}, nil
}

// Reconcile returns the members of all that are not in used, sorted.
func Reconcile(all, used names.Set) []string {
	return all.Minus(used).Sorted()
}

// Options configures Run.
type Options struct {
	Binary  string
	Sources []string
	Dumper  toolchain.Dumper
	// Cache stores parsed units between runs; nil parses every file.
	Cache *source.Cache
	Jobs  int
	// Output receives the dead-function list. Empty skips writing.
	Output string
	// Report receives the JSON report. Empty skips it.
	Report string
	Logger zerolog.Logger
}

// Result is the outcome of one run.
type Result struct {
	Binary *Binary
	// Sources maps names mentioned in the syntax trees to their first site.
	Sources mention.Result
	// Disassembly holds every name referenced inside a function body.
	Disassembly names.Set
	// Used is the union of both passes.
	Used  names.Set
	Dead  []string
	Stats source.LoadStats
}

// Run executes the whole pipeline. Stale outputs are removed first and
// only written back once every stage has succeeded, so their presence
// signals a complete run.
func Run(ctx context.Context, opts Options) (*Result, error) {
	log := opts.Logger
	for _, p := range []string{opts.Output, opts.Report} {
		if p == "" {
			continue
		}
		if err := output.Remove(p); err != nil {
			return nil, err
		}
	}

	bin, err := Extract(ctx, opts.Dumper, opts.Binary)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int("symbols", bin.SymbolTable.Len()).
		Int("functions", bin.Functions.Len()).
		Msg("Extracted binary functions")

	res := &Result{Binary: bin}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		loader := source.NewLoader(opts.Cache, log)
		units, stats, err := loader.Load(gctx, opts.Sources)
		if err != nil {
			return err
		}
		res.Stats = stats
		res.Sources, err = mention.CollectAll(gctx, units, bin.Functions, mention.Options{
			Jobs:   opts.Jobs,
			Logger: log,
		})
		return err
	})
	g.Go(func() error {
		var err error
		res.Disassembly, err = objdump.Mentions(bin.Disassembly)
		if err != nil {
			return fmt.Errorf("analysis: disassembly mentions: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.Used = res.Sources.Names()
	res.Used.Merge(res.Disassembly)
	res.Dead = Reconcile(bin.Functions, res.Used)
	log.Info().
		Int("used", bin.Functions.Len()-len(res.Dead)).
		Int("dead", len(res.Dead)).
		Msg("Reconciled")

	if opts.Report != "" {
		if err := output.WriteReport(opts.Report, res.Report(opts.Binary)); err != nil {
			return nil, err
		}
	}
	if opts.Output != "" {
		if err := output.WriteDeadFunctions(opts.Output, res.Dead); err != nil {
			return nil, err
		}
		log.Info().Str("path", opts.Output).Msg("Wrote dead functions")
	}
	return res, nil
}

// Report summarises r. Only binary functions are listed as used; a name
// seen by both passes reports its source site.
func (r *Result) Report(binary string) *output.Report {
	rep := &output.Report{
		Binary:    binary,
		Functions: r.Binary.Functions.Sorted(),
		Used:      make(map[string]output.Site),
		Dead:      r.Dead,
	}
	for name := range r.Binary.Functions {
		if site, ok := r.Sources[name]; ok {
			rep.Used[name] = output.Site{
				Pass: PassSource,
				Unit: site.Unit,
				File: site.File,
				Line: site.Line,
				In:   site.In,
			}
		} else if r.Disassembly.Has(name) {
			rep.Used[name] = output.Site{Pass: PassDisassembly}
		}
	}
	return rep
}
