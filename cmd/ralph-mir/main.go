// ralph-mir legalizes generic machine IR against a target rule table.
// It follows the GlobalISel design the way ralph-cc follows CompCert:
// a CLI optimized for exercising and inspecting the pass rather than
// for practical use.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/raymyers/ralph-mir/pkg/legalize"
	"github.com/raymyers/ralph-mir/pkg/mir"
	"github.com/raymyers/ralph-mir/pkg/target"
	"github.com/raymyers/ralph-mir/pkg/timing"
)

var version = "0.1.0"

var (
	rulesPath   string
	dMirBefore  bool
	timingsPath string
	verbose     bool
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ralph-mir: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ralph-mir [file]",
		Short: "ralph-mir legalizes generic machine IR for a target",
		Long: `ralph-mir parses a textual machine IR file, legalizes every
function against a target legality rule table, and prints the
resulting IR. Without --rules a built-in 32/64-bit target is used.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			return compile(args[0], out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().StringVar(&rulesPath, "rules", "", "Legality rule file (YAML)")
	rootCmd.Flags().BoolVar(&dMirBefore, "dmir-before", false, "Dump MIR before legalization")
	rootCmd.Flags().StringVar(&timingsPath, "timings", "", "Write a Chrome trace of pass timings to this file")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Trace the engine's worklist activity")

	return rootCmd
}

func compile(filename string, out, errOut io.Writer) error {
	log := newLogger(errOut, verbose)
	defer log.Sync()

	var prof *timing.Profiler
	if timingsPath != "" {
		prof = timing.New()
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	prof.Begin("parse", filename)
	prog, err := mir.Parse(string(data))
	prof.End()
	if err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}

	rules := target.Default()
	if rulesPath != "" {
		rules, err = target.Load(rulesPath, target.NewRegistry())
		if err != nil {
			return err
		}
	}

	if dMirBefore {
		mir.NewPrinter(out).PrintProgram(prog)
		fmt.Fprintln(out)
	}

	leg := legalize.New(rules)
	leg.SetLogger(log)
	leg.SetProfiler(prof)
	for _, fn := range prog.Functions {
		if _, err := leg.Run(fn); err != nil {
			return err
		}
	}

	mir.NewPrinter(out).PrintProgram(prog)

	if timingsPath != "" {
		f, err := os.Create(timingsPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := prof.Write(f); err != nil {
			return err
		}
	}
	return nil
}

// newLogger builds a console logger on errOut; verbose enables the
// engine's debug tracing
func newLogger(errOut io.Writer, verbose bool) *zap.Logger {
	level := zapcore.ErrorLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(errOut),
		level,
	)
	return zap.New(core)
}
