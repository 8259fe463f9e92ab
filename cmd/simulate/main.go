// Command simulate is the kernel's CLI driver (§6): it loads a config
// file, builds a workgroup.Manager, drives it tick by tick until
// totalTicks elapses (or an interactive stop request lands), and exits
// with a status code reflecting how the run ended.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/simmobility/kernel/config"
	"github.com/simmobility/kernel/console"
	"github.com/simmobility/kernel/output"
	"github.com/simmobility/kernel/workgroup"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

type runFlags struct {
	singleThreaded bool
	strict         bool
	profile        bool
}

func newRootCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "simulate <config-path>",
		Short: "Run the SimMobility kernel against a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], flags)
		},
	}
	cmd.Flags().BoolVar(&flags.singleThreaded, "single-threaded", false, "run the deterministic single-threaded debug scheduler instead of goroutine workers")
	cmd.Flags().BoolVar(&flags.strict, "strict", false, "treat every entity frameTick panic as fatal instead of retiring the offending entity")
	cmd.Flags().BoolVar(&flags.profile, "profile", false, "record per-entity frameTick duration into the output store")
	return cmd
}

// initError marks initialization failures, so callers can tell them
// apart from simulation errors with errors.As. exitCodeFor maps every
// non-nil error, of either kind, to exit code 1.
type initError struct{ err error }

func (e *initError) Error() string { return e.err.Error() }
func (e *initError) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

func run(ctx context.Context, configPath string, flags *runFlags) error {
	log := slog.Default()

	rawCfg, err := config.Load(configPath)
	if err != nil {
		return &initError{fmt.Errorf("loading config: %w", err)}
	}
	cfg, err := config.Resolve(rawCfg)
	if err != nil {
		return &initError{fmt.Errorf("resolving config: %w", err)}
	}
	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	sink, err := output.Open(cfg.OutputPath)
	if err != nil {
		return &initError{fmt.Errorf("opening output sink: %w", err)}
	}
	defer sink.Close()

	mgr := workgroup.New(workgroup.Config{
		Log:                     log,
		SingleThreaded:          flags.singleThreaded,
		Strict:                  flags.strict || cfg.StrictAgentErrors,
		TotalTicks:              cfg.TotalTicks,
		Granularity:             cfg.Granularity,
		AuraKind:                cfg.AuraKind,
		AutoIDStart:             cfg.AutoIDStart,
		DynamicDispatchDisabled: cfg.DynamicDispatchDisabled,
		WarmupTicks:             cfg.WarmupTicks,
		Output:                  sink,
		Profile:                 flags.profile,
	})

	for _, g := range cfg.Groups {
		if _, err := mgr.CreateWorkGroup(workgroup.GroupSpec{
			Name:       g.Name,
			NumWorkers: g.NumWorkers,
			TickStep:   g.TickStep,
			Strict:     flags.strict || cfg.StrictAgentErrors,
		}); err != nil {
			return &initError{fmt.Errorf("creating work group %q: %w", g.Name, err)}
		}
	}
	if err := mgr.InitAllGroups(); err != nil {
		return &initError{fmt.Errorf("initializing work groups: %w", err)}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !flags.singleThreaded {
		if err := mgr.StartAllGroups(runCtx); err != nil {
			return &initError{fmt.Errorf("starting work groups: %w", err)}
		}
	}

	if cfg.InteractiveMode {
		go console.New(mgr, log).Run(runCtx)
	}

	for mgr.Tick() < cfg.TotalTicks && !mgr.IsStopped() {
		for mgr.IsPaused() {
			select {
			case <-runCtx.Done():
				return drain(mgr, runCtx.Err())
			case <-time.After(50 * time.Millisecond):
			}
		}
		if err := mgr.WaitAllGroups(); err != nil {
			return drain(mgr, fmt.Errorf("tick %d: %w", mgr.Tick(), err))
		}
	}

	log.Info("run complete", "ticks", mgr.Tick())
	return drain(mgr, nil)
}

func drain(mgr *workgroup.Manager, runErr error) error {
	if err := mgr.WaitShutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
