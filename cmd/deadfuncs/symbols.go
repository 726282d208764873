package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"deadfuncs/internal/analysis"
)

func newSymbolsCmd(o *options) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "symbols [flags] ELF",
		Short: "Print the functions present as code in a binary",
		Long: `Print, one per line, the functions the symbol table places in a code
section that also open a function body in the disassembly. With --symtab
the symbol table functions are printed without the disassembly check.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := o.dumper()
			if err != nil {
				return err
			}
			bin, err := analysis.Extract(cmd.Context(), d, args[0])
			if err != nil {
				return err
			}

			set := bin.Functions
			if raw {
				set = bin.SymbolTable
			}
			w := cmd.OutOrStdout()
			for _, name := range set.Sorted() {
				fmt.Fprintln(w, name)
			}
			o.logger.Info().
				Int("symbols", bin.SymbolTable.Len()).
				Int("functions", bin.Functions.Len()).
				Msg("Extracted binary functions")
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "symtab", false, "print symbol table functions only")
	return cmd
}
