package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func addJourneys(topLevel *cobra.Command, opts *rootOptions) {
	cmd := &cobra.Command{
		Use:     "journeys",
		Aliases: []string{"journey", "j"},
		Short:   "Manage the journals in the data directory.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List journals; the active one is starred.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				entries, err := a.service.ListJourneys(ctx)
				if err != nil {
					return err
				}
				tbl := newTable("", "FILE", "TITLE", "EVENTS", "SIZE", "MODIFIED")
				for _, e := range entries {
					marker, size, modified := "", "-", "-"
					if e.Active {
						marker = color.New(color.FgGreen, color.Bold).Sprint("*")
					}
					if fi, err := os.Stat(filepath.Join(a.cfg.DataDir, e.Filename)); err == nil {
						size = humanize.Bytes(uint64(fi.Size()))
						modified = humanize.Time(fi.ModTime())
					}
					title := e.Title
					if e.Corrupt {
						title = color.New(color.FgRed).Sprint(title + " (unreadable)")
					}
					tbl.AddRow(marker, e.Filename, title, e.EventCount, size, modified)
				}
				printTable(cmd.OutOrStdout(), tbl)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create an empty journal and make it active.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				filename, err := a.service.CreateJourney(ctx, args[0])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", filename)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "switch <file>",
		Short: "Make another journal active.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if err := a.service.SwitchJourney(ctx, args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "switched to %s\n", args[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <file> <new name>",
		Short: "Copy a journal under a new name; the original file is kept.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				filename, err := a.service.RenameJourney(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %s\n", args[0], filename)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <file>",
		Short: "Delete an inactive journal and the media only it references.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if err := a.service.DeleteJourney(ctx, args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	})

	topLevel.AddCommand(cmd)
}
