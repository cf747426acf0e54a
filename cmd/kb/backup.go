package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/kodblock/internal/config"
	kbsync "github.com/alfredjeanlab/kodblock/internal/sync"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Export all drafts as JSONL",
	Long: `Export every draft and its event history as JSONL.

With --out the export is written to a file ("-" for stdout). Otherwise it is
pushed once to the sync destinations configured for the server
(KODBLOCK_SYNC_S3_BUCKET, KODBLOCK_SYNC_GIT_REPO).`,
	GroupID:           "system",
	Args:              cobra.NoArgs,
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")

		var dests []kbsync.Destination
		if out == "" {
			dests = syncDestinations(cmd.Context(), cfg, logger)
			if len(dests) == 0 {
				return fmt.Errorf("no backup destination: set KODBLOCK_SYNC_S3_BUCKET or KODBLOCK_SYNC_GIT_REPO, or pass --out")
			}
		}

		st, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		if out != "" {
			return exportTo(cmd, out, func(w io.Writer) error {
				return kbsync.ExportJSONL(cmd.Context(), st, w)
			})
		}

		if err := kbsync.NewScheduler(st, dests, 0, logger).SyncNow(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Backed up to %d destination(s)\n", len(dests))
		return nil
	},
}

// exportTo runs write against path, or stdout for "-".
func exportTo(cmd *cobra.Command, path string, write func(io.Writer) error) error {
	if path == "-" {
		return write(cmd.OutOrStdout())
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func init() {
	backupCmd.Flags().StringP("out", "o", "", `write the export to a file ("-" for stdout)`)
}
