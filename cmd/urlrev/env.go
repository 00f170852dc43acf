package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"urlrev/config"
	"urlrev/misc"
	"urlrev/state"
)

// set when command error reached the log
var errLogged bool

// initializeAppContext runs after command line was parsed and before any
// command action: configuration, debug report and logs.
func initializeAppContext(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.NArg() == 0 {
		// help only
		return ctx, nil
	}
	env := state.EnvFromContext(ctx)

	configFile := config.LocateConfiguration(cmd.String("config"))
	cfg, err := config.LoadConfiguration(configFile)
	if err != nil {
		return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
	}
	env.Cfg = cfg

	if cmd.Bool("debug") {
		if err := startReport(env, configFile); err != nil {
			return ctx, err
		}
	}

	log, err := env.Cfg.Logging.Prepare(env.Rpt)
	if err != nil {
		return ctx, fmt.Errorf("unable to prepare logs: %w", err)
	}
	env.Log = log.With(zap.Stringer("run", env.RunID))
	env.RedirectStdLog()

	env.Log.Debug("Program started",
		zap.Strings("args", os.Args),
		zap.String("ver", misc.GetVersion()),
		zap.String("runtime", runtime.Version()),
		zap.String("hash", misc.GetGitHash()))

	if env.Rpt != nil {
		env.Log.Info("Creating debug report", zap.String("location", env.Rpt.Name()))
	}
	if len(configFile) == 0 {
		env.Log.Info("Using defaults (no configuration file)")
	} else {
		env.Log.Debug("Using configuration", zap.String("file", configFile))
	}
	return ctx, nil
}

// startReport opens debug report and puts effective configuration into it,
// secrets are masked by the dump.
func startReport(env *state.LocalEnv, configFile string) (err error) {
	if env.Rpt, err = env.Cfg.Reporting.Prepare(); err != nil {
		return fmt.Errorf("unable to prepare debug reporter: %w", err)
	}
	name := "config/defaults.yaml"
	if len(configFile) > 0 {
		name = "config/" + filepath.Base(configFile)
	}
	if data, err := config.Dump(env.Cfg); err == nil {
		env.Rpt.StoreData(name, data)
	}
	return nil
}

func destroyAppContext(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)

	if env.Log != nil {
		env.Log.Debug("Program ended", zap.Duration("elapsed", env.Uptime()), zap.Strings("parsed args", cmd.Args().Slice()))
	}
	// logs are synced after this and could go into report, from now on
	// errors are only returned
	env.RestoreStdLog()

	var err error
	if er := env.Rpt.Close(); er != nil {
		err = multierr.Append(err, fmt.Errorf("unable to close debug report: %w", er))
	}
	return multierr.Append(err, removeEmptyPanicLog(env.Cfg))
}

// removeEmptyPanicLog stops crash output capture and removes its file when
// nothing was written there.
func removeEmptyPanicLog(cfg *config.Config) error {
	if cfg == nil || len(cfg.Logging.FileLogger.Destination) == 0 {
		return nil
	}
	debug.SetCrashOutput(nil, debug.CrashOptions{})

	fname := filepath.Join(filepath.Dir(cfg.Logging.FileLogger.Destination), misc.GetAppName()+"-panic.log")
	fi, err := os.Stat(fname)
	if err != nil || fi.Size() > 0 {
		return nil
	}
	if err := os.Remove(fname); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("unable to remove empty panic log file '%s': %w", fname, err)
	}
	return nil
}

// exitErrHandler is called before After, so the log is still available.
func exitErrHandler(ctx context.Context, _ *cli.Command, err error) {
	if log := state.EnvFromContext(ctx).Log; log != nil {
		log.Error("Program ended with error", zap.Error(err))
		errLogged = true
	}
}

func usageErrorHandler(_ context.Context, _ *cli.Command, err error, _ bool) error {
	// reported by exitErrHandler or by main
	return err
}

func subcommandNotFoundHandler(ctx context.Context, _ *cli.Command, name string) {
	if log := state.EnvFromContext(ctx).Log; log != nil {
		log.Warn("Unknown command, nothing to do", zap.String("command", name))
	}
}
