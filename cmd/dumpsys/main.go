package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/CZERTAINLY/dumpsys/internal/dump"
	"github.com/CZERTAINLY/dumpsys/internal/dumpsys"
	"github.com/CZERTAINLY/dumpsys/internal/log"
	"github.com/CZERTAINLY/dumpsys/internal/metrics"
	"github.com/CZERTAINLY/dumpsys/internal/model"
	"github.com/CZERTAINLY/dumpsys/internal/registry"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	userConfigPath string // /default/config/path/dumpsys on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
	flagPrintConfig    bool
	cliFlags           flags
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		// no $HOME, only --config or the working directory are used
		d = ""
	}
	if d != "" {
		userConfigPath = filepath.Join(d, "dumpsys")
	}
}

func main() {
	// interrupted dumps are reported as failed, the rest is not started
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("dumpsys failed", "err", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "dumpsys [flags] [service [args...]]",
		Short:        "Dumps diagnostic state of registered services",
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		RunE:         doDumpsys,
	}

	rootCmd.Flags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is dumpsys.yaml in current directory or in "+userConfigPath)
	rootCmd.Flags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")
	rootCmd.Flags().BoolVar(&flagPrintConfig, "print-config", false, "print the effective configuration and exit")
	rootCmd.Flags().BoolVarP(&cliFlags.list, "list", "l", false, "only list services, do not dump them")
	rootCmd.Flags().BoolVar(&cliFlags.hardware, "hw", false, "list hardware services")
	rootCmd.Flags().IntVarP(&cliFlags.timeout, "timeout", "t", 0, "timeout in seconds for every service dump (default from config, 10)")
	rootCmd.Flags().StringArrayVar(&cliFlags.skip, "skip", nil, "dump all services but the ones listed; all remaining arguments are skipped too")
	rootCmd.Flags().StringVar(&cliFlags.metrics, "metrics", "", "write prometheus metrics of the run into the given textfile")
	// arguments after the service name belong to the service
	rootCmd.Flags().SetInterspersed(false)

	// never print messages
	rootCmd.SilenceErrors = true

	// parse config, setup logging
	rootCmd.PersistentPreRunE = initDumpsys
	rootCmd.Version = version()
	return rootCmd
}

func doDumpsys(cmd *cobra.Command, args []string) error {
	cliFlags.timeoutSet = cmd.Flags().Changed("timeout")
	cliFlags.skipSet = cmd.Flags().Changed("skip")

	if flagPrintConfig {
		return config.Encode(cmd.OutOrStdout())
	}

	opts, err := buildOptions(cliFlags, config, args)
	if err != nil {
		return err
	}

	ctx := log.ContextAttrs(cmd.Context(), slog.Group("dumpsys",
		slog.String("run_id", uuid.NewString()),
		slog.Int("pid", os.Getpid()),
	))

	recorder := metrics.NewRecorder()
	d := dumpsys.New(
		registry.NewDir(config.Registry.Services),
		registry.NewDir(config.Registry.Hardware),
		dump.NewInvoker(),
	).WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()).WithObserver(recorder)

	slog.DebugContext(ctx, "dumpsys run", "mode", opts.Mode, "target", opts.Target, "timeout", opts.Timeout, "skip", opts.Skip)
	runErr := d.Run(ctx, opts)

	if path := metricsPath(cliFlags, config); path != "" {
		if err := recorder.WriteTextfile(path); err != nil {
			slog.ErrorContext(ctx, "writing metrics failed", "path", path, "error", err)
		}
	}
	return runErr
}

func initDumpsys(_ *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("DUMPSYSCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			if d == "" {
				continue
			}
			path := filepath.Join(d, "dumpsys.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	if configPath == "" {
		config = model.DefaultConfig()
	} else {
		f, err := os.Open(configPath)
		if err != nil {
			return fmt.Errorf("opening config file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		config, err = model.LoadConfig(f)
		if err != nil {
			for _, d := range model.CueErrDetails(err) {
				slog.Error("invalid configuration", d.Attr("detail"))
			}
			return fmt.Errorf("parsing config %s: %w", configPath, err)
		}
	}

	// --verbose has a precedence over config file
	if flagVerbose {
		config.Verbose = true
	}

	slog.SetDefault(log.New(os.Stderr, config.Verbose))

	slog.Debug("dumpsys init", "configPath", configPath)
	slog.Debug("dumpsys init", "config", config)
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("can't stat config file", "path", path, "error", err)
		}
		return false
	}
	return info.Mode().IsRegular()
}

func version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	ver := info.Main.Version
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			ver += " (" + s.Value + ")"
		}
	}
	return ver + " " + info.GoVersion
}
