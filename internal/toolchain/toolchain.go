// Package toolchain produces the two textual binary dumps the analysis
// consumes: a flat symbol table and a disassembly listing, both in the
// GNU objdump grammar parsed by package objdump.
package toolchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

var (
	ErrToolNotFound   = errors.New("toolchain: tool not found")
	ErrDumpFailed     = errors.New("toolchain: dump failed")
	ErrUnknownBackend = errors.New("toolchain: unknown backend")
)

// Backend names accepted by New.
const (
	BackendObjdump = "objdump"
	BackendNative  = "native"
)

// Dumper renders textual dumps of a binary image. Calls are synchronous
// and are not retried.
type Dumper interface {
	// SymbolTable returns the objdump -t listing.
	SymbolTable(ctx context.Context, binary string) ([]byte, error)
	// Disassembly returns the objdump -d -S listing.
	Disassembly(ctx context.Context, binary string) ([]byte, error)
}

// Options selects and configures a Dumper.
type Options struct {
	Backend string // BackendObjdump (default) or BackendNative
	Prefix  string // target prefix, e.g. "sparc-rtems-"
	Objdump string // explicit objdump path; overrides Prefix
	Logger  zerolog.Logger
}

// New returns the Dumper for opts.Backend.
func New(opts Options) (Dumper, error) {
	switch opts.Backend {
	case "", BackendObjdump:
		return &Objdump{Prefix: opts.Prefix, Path: opts.Objdump, logger: opts.Logger}, nil
	case BackendNative:
		return &Native{logger: opts.Logger}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
}
