// Command safe-delete deletes files and directory trees on isolated workers
// and reports every failure as a classified outcome.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"safe-delete/internal/config"
	"safe-delete/internal/database"
	"safe-delete/internal/deletion"
	"safe-delete/internal/exitcodes"
	"safe-delete/internal/safety"
)

const defaultConfigPath = "/etc/safe-delete/config.yaml"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
	}
	return exitcodes.Code(err)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "safe-delete",
		Short:         "Delete files and directory trees with classified failures",
		Long:          `safe-delete removes a file or a whole directory tree on an isolated worker. Every failure is reported as not found, permission denied, type mismatch, refused or execution fault; the caller never crashes because of a deletion.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", defaultConfigPath, "Path to configuration file")

	root.AddCommand(
		newServeCmd(),
		newRmCmd(),
		newHistoryCmd(),
		newTokenCmd(),
	)
	return root
}

// loadConfig reads the config named by --config. A missing file at the
// default location yields the defaults; an explicitly named file must exist.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
			cfg = config.Default()
		} else {
			return nil, exitcodes.Wrap(exitcodes.InvalidConfig, fmt.Errorf("load config: %w", err))
		}
	}
	if err := cfg.ResolveJWTSecret(); err != nil {
		return nil, exitcodes.Wrap(exitcodes.InvalidConfig, err)
	}
	return cfg, nil
}

// newService builds the deletion service described by cfg.
func newService(cfg *config.Config, logger *slog.Logger) *deletion.Service {
	svc := deletion.NewService(logger)
	svc.SetConcurrency(cfg.WorkerPool.Concurrency)
	if cfg.Safety.Enabled {
		svc.SetValidator(safety.NewValidator(cfg.Safety.AllowedRoots, cfg.Safety.ProtectedPaths))
		logger.Info("root confinement enabled", "allowed_roots", cfg.Safety.AllowedRoots)
	}
	return svc
}

// openHistory opens the history database, or returns nil when history is
// disabled in cfg.
func openHistory(cfg *config.Config, logger *slog.Logger) (*database.DeletionDB, error) {
	if !cfg.HistoryEnabled() {
		return nil, nil
	}
	logger.Debug("opening deletion database", "path", cfg.DatabasePath)
	db, err := database.NewDeletionDB(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	return db, nil
}
