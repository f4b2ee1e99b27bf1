package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"safe-delete/internal/deletion"
	"safe-delete/internal/exitcodes"
	"safe-delete/internal/logging"
)

type rmResult struct {
	Path        string `json:"path"`
	IsDirectory bool   `json:"is_directory"`
	Status      string `json:"status"`
	RequestID   string `json:"request_id"`
	Kind        string `json:"kind"`
	Message     string `json:"message,omitempty"`
}

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm PATH",
		Short: "Delete a single file, or a directory tree with --dir",
		Long: `Deletes PATH once and reports the outcome. Without --dir PATH must not be a
directory; with --dir PATH must be a directory and is removed with its whole
contents. The exit code is 0 on success, 3 when the safety policy refused the
target and 5 for any other deletion failure.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			isDir, _ := cmd.Flags().GetBool("dir")
			asJSON, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, closer := logging.NewWithConfig(cfg, cmd.ErrOrStderr())
			defer closer.Close()

			svc := newService(cfg, logger)
			db, err := openHistory(cfg, logger)
			if err != nil {
				// history is best effort for one-shot deletes
				logger.Warn("deletion history unavailable", "path", cfg.DatabasePath, "error", err)
			} else if db != nil {
				defer db.Close()
				svc.AddObserver(db)
			}

			path := args[0]
			out := svc.Delete(path, isDir)

			res := rmResult{
				Path:        path,
				IsDirectory: isDir,
				Status:      "success",
				RequestID:   out.RequestID,
				Kind:        out.Kind.String(),
			}
			if !out.OK() {
				res.Status = "failure"
				res.Message = out.Message
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else if out.OK() {
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s %s\n", (deletion.Request{Path: path, IsDirectory: isDir}).ObjectType(), path)
			}

			if code := exitcodes.ForOutcome(out); code != exitcodes.Success {
				return exitcodes.Wrap(code, out.Err())
			}
			return nil
		},
	}
	cmd.Flags().BoolP("dir", "d", false, "Treat PATH as a directory and remove it recursively")
	cmd.Flags().Bool("json", false, "Print the outcome as JSON")
	return cmd
}
