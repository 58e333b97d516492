package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/openmined/photosync/internal/client/journal"
	"github.com/openmined/photosync/internal/client/syncstate"
	"github.com/openmined/photosync/internal/client/workspace"
	"github.com/openmined/photosync/internal/utils"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the sync cursor, settings and download folder summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			out := cmd.OutOrStdout()

			row := func(k, v string) {
				fmt.Fprintf(out, "%s %s\n", gray.Render(fmt.Sprintf("%-14s", k)), v)
			}

			row("config", valueOr(cfg.Path, "(defaults)"))
			row("server", cfg.ServerURL)
			row("secret", utils.MaskSecret(cfg.Secret))
			row("download dir", cfg.DownloadDir)
			row("state file", cfg.StateFile)
			row("poll interval", cfg.PollInterval.String())

			if cursor, ok := syncstate.NewStore(cfg.StateFile).Load(); ok {
				t := cursor.Time()
				row("last sync", fmt.Sprintf("%s (%s, cursor %s)", t.Local().Format(time.RFC3339), humanize.Time(t), formatCursor(cursor)))
			} else {
				row("last sync", lightGray.Render("never"))
			}

			ws, err := workspace.NewWorkspace(cfg.DownloadDir)
			if err != nil {
				return err
			}
			stats, err := ws.Scan()
			if err != nil {
				return err
			}
			row("files", fmt.Sprintf("%d (%s)", stats.FileCount, humanize.Bytes(uint64(stats.TotalBytes))))
			if usage, err := ws.DiskUsage(); err == nil {
				row("disk free", fmt.Sprintf("%s of %s", humanize.Bytes(usage.Free), humanize.Bytes(usage.Total)))
			}

			if cfg.JournalPath != "" && utils.FileExists(cfg.JournalPath) {
				j := journal.New(cfg.JournalPath)
				if err := j.Open(); err != nil {
					return err
				}
				defer j.Close()
				n, err := j.Count()
				if err != nil {
					return err
				}
				row("journal", fmt.Sprintf("%d downloads recorded", n))
			}
			return nil
		},
	}
}

func formatCursor(c syncstate.Cursor) string {
	return humanize.FtoaWithDigits(c.Float(), 6)
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
