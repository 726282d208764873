package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"deadfuncs/internal/analysis"
	"deadfuncs/internal/config"
	"deadfuncs/internal/logging"
	"deadfuncs/internal/output"
	"deadfuncs/internal/source"
	"deadfuncs/internal/toolchain"
)

// options collects the persistent flags shared by every command.
type options struct {
	configPath string
	prefix     string
	objdump    string
	backend    string
	cacheDir   string
	output     string
	report     string
	logLevel   string
	jobs       int
	pretty     bool

	cfg    *config.Config
	logger zerolog.Logger
}

func (o *options) register(fs *pflag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "config file (default ./"+config.DefaultFile+" when present)")
	fs.StringVar(&o.prefix, "prefix", config.DefaultPrefix, "cross toolchain prefix used to find objdump")
	fs.StringVar(&o.objdump, "objdump", "", "objdump executable, overrides --prefix")
	fs.StringVar(&o.backend, "backend", toolchain.BackendObjdump, "dump backend: objdump or native")
	fs.StringVar(&o.cacheDir, "cache-dir", source.DefaultCacheDir, "directory for cached syntax trees")
	fs.StringVar(&o.output, "output", output.DefaultDeadFunctions, "dead function list")
	fs.StringVar(&o.report, "report", "", "also write a JSON report to this path")
	fs.IntVar(&o.jobs, "jobs", 0, "units processed in parallel (default GOMAXPROCS)")
	fs.StringVar(&o.logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	fs.BoolVar(&o.pretty, "pretty", true, "human-readable logs")
}

// load layers the explicitly set flags over the file and environment
// configuration, then builds the logger.
func (o *options) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}

	fs := cmd.Flags()
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("prefix", func() { cfg.Toolchain.Prefix = o.prefix })
	set("objdump", func() { cfg.Toolchain.Objdump = o.objdump })
	set("backend", func() { cfg.Toolchain.Backend = o.backend })
	set("cache-dir", func() { cfg.CacheDir = o.cacheDir })
	set("output", func() { cfg.Output = o.output })
	set("report", func() { cfg.Report = o.report })
	set("jobs", func() { cfg.Jobs = o.jobs })
	set("log-level", func() { cfg.Log.Level = o.logLevel })
	set("pretty", func() { cfg.Log.Pretty = o.pretty })

	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg
	o.logger = logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		Output: cmd.ErrOrStderr(),
	})
	return nil
}

func (o *options) dumper() (toolchain.Dumper, error) {
	return toolchain.New(toolchain.Options{
		Backend: o.cfg.Toolchain.Backend,
		Prefix:  o.cfg.Toolchain.Prefix,
		Objdump: o.cfg.Toolchain.Objdump,
		Logger:  o.logger.With().Str("component", "toolchain").Logger(),
	})
}

func newRootCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "deadfuncs [flags] ELF SOURCE...",
		Short: "Report the functions of a binary that nothing mentions",
		Long: `deadfuncs lists the functions compiled into ELF that are never mentioned.

A function is mentioned when its name appears as a token of the
preprocessed SOURCE files (other than in its own definition) or as a
symbol reference inside the disassembly. The remaining functions are
written, sorted, one per line, to the output file. The output file only
exists after a successful run.

SOURCE files must be standalone preprocessed C (cc -E).`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, o, args[0], args[1:])
		},
	}
	o.register(cmd.PersistentFlags())

	cmd.AddCommand(newSymbolsCmd(o))
	cmd.AddCommand(newCallgraphCmd(o))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func runAnalyze(cmd *cobra.Command, o *options, binary string, sources []string) error {
	d, err := o.dumper()
	if err != nil {
		return err
	}
	_, err = analysis.Run(cmd.Context(), analysis.Options{
		Binary:  binary,
		Sources: sources,
		Dumper:  d,
		Cache:   source.NewCache(o.cfg.CacheDir),
		Jobs:    o.cfg.Jobs,
		Output:  o.cfg.Output,
		Report:  o.cfg.Report,
		Logger:  o.logger,
	})
	return err
}
