package callgraph

import (
	"github.com/zboralski/lattice"
)

// BuildCFG constructs a lattice.CFGGraph with one summary function per
// definition. Definitions that call nothing are omitted.
func BuildCFG(funcs []FuncInfo) *lattice.CFGGraph {
	cg := &lattice.CFGGraph{}
	for _, f := range funcs {
		if lcfg := BuildFuncCFG(f); len(lcfg.Blocks) > 0 {
			cg.Funcs = append(cg.Funcs, lcfg)
		}
	}
	return cg
}

// BuildFuncCFG builds a single-block lattice.FuncCFG listing the calls of
// f in source order. Syntax trees carry no control flow, so the block
// stands for the whole body.
func BuildFuncCFG(f FuncInfo) *lattice.FuncCFG {
	lcfg := &lattice.FuncCFG{Name: f.Name}
	if len(f.Calls) == 0 {
		return lcfg
	}

	calls := make([]lattice.CallSite, 0, len(f.Calls))
	for i, callee := range f.Calls {
		calls = append(calls, lattice.CallSite{Offset: i, Callee: callee})
	}
	lcfg.Blocks = append(lcfg.Blocks, &lattice.BasicBlock{
		ID:    0,
		Start: 0,
		End:   1,
		Term:  true,
		Calls: calls,
	})
	return lcfg
}
