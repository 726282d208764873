package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/zboralski/lattice"
	"github.com/zboralski/lattice/render"

	"deadfuncs/internal/callgraph"
	"deadfuncs/internal/output"
	"deadfuncs/internal/source"
)

func newCallgraphCmd(o *options) *cobra.Command {
	var (
		outDir string
		cfg    bool
		title  string
	)
	cmd := &cobra.Command{
		Use:   "callgraph [flags] SOURCE...",
		Short: "Write the source-level call graph of preprocessed C files",
		Long: `Collect, for every function defined in the main file of each SOURCE,
the functions named by its call expressions. Writes into --out:

  callgraph.dot   Graphviz call graph
  callmap.json    caller -> sorted callees
  functions.json  every definition with its location and calls
  cfg/<fn>.dot    per-function call summaries (with --cfg)`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := o.logger
			loader := source.NewLoader(source.NewCache(o.cfg.CacheDir), log)
			units, _, err := loader.Load(cmd.Context(), args)
			if err != nil {
				return err
			}

			var funcs []callgraph.FuncInfo
			for _, u := range units {
				funcs = append(funcs, callgraph.Collect(u)...)
			}

			g := callgraph.BuildCallGraph(funcs)
			dotPath, err := output.WriteDOT(outDir, "callgraph", render.DOT(g, title))
			if err != nil {
				return err
			}
			if err := output.WriteJSON(filepath.Join(outDir, "callmap.json"), callgraph.BuildCallMap(funcs)); err != nil {
				return err
			}
			if err := output.WriteJSON(filepath.Join(outDir, "functions.json"), funcs); err != nil {
				return err
			}
			log.Info().
				Str("path", dotPath).
				Int("nodes", len(g.Nodes)).
				Int("edges", len(g.Edges)).
				Int("defined", callgraph.Defined(funcs).Len()).
				Msg("Wrote call graph")

			if !cfg {
				return nil
			}
			n := 0
			for _, f := range callgraph.BuildCFG(funcs).Funcs {
				dot := render.DOTCFG(&lattice.CFGGraph{Funcs: []*lattice.FuncCFG{f}}, f.Name)
				if _, err := output.WriteDOT(outDir, filepath.Join("cfg", f.Name), dot); err != nil {
					return fmt.Errorf("write cfg %s: %w", f.Name, err)
				}
				n++
			}
			log.Info().Int("count", n).Str("dir", filepath.Join(outDir, "cfg")).Msg("Wrote per-function graphs")
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "callgraph", "output directory")
	cmd.Flags().BoolVar(&cfg, "cfg", false, "also write per-function call summaries")
	cmd.Flags().StringVar(&title, "title", "callgraph", "graph title")
	return cmd
}
