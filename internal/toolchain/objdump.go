package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Objdump shells out to a cross objdump.
type Objdump struct {
	Prefix string
	Path   string

	logger zerolog.Logger
}

// NewObjdump returns an Objdump runner for the given target prefix.
func NewObjdump(prefix string, logger zerolog.Logger) *Objdump {
	return &Objdump{Prefix: prefix, logger: logger}
}

// SymbolTable runs `objdump -t`.
func (o *Objdump) SymbolTable(ctx context.Context, binary string) ([]byte, error) {
	return o.run(ctx, "-t", binary)
}

// Disassembly runs `objdump -d -S`.
func (o *Objdump) Disassembly(ctx context.Context, binary string) ([]byte, error) {
	return o.run(ctx, "-d", "-S", binary)
}

// Executable resolves the objdump binary. An explicit Path wins over the
// prefixed name; there is no fallback to the host objdump.
func (o *Objdump) Executable() (string, error) {
	name := o.Path
	if name == "" {
		name = o.Prefix + "objdump"
	}
	fname, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrToolNotFound, name, err)
	}
	if abs, err := filepath.Abs(fname); err == nil {
		fname = abs
	}
	return fname, nil
}

func (o *Objdump) run(ctx context.Context, args ...string) ([]byte, error) {
	exe, err := o.Executable()
	if err != nil {
		return nil, err
	}

	o.logger.Debug().
		Str("tool", exe).
		Strs("args", args).
		Msg("Running toolchain dump")

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v: %s",
			ErrDumpFailed, filepath.Base(exe), strings.Join(args, " "), err,
			strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
