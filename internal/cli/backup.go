package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vbonduro/lifemap/internal/journal"
)

func addBackup(topLevel *cobra.Command, opts *rootOptions) {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export or restore the active journal.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "export [file]",
		Short: "Write the active journal byte for byte; \"-\" writes to stdout.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				data, name, err := a.service.Backup(ctx)
				if err != nil {
					return err
				}
				if len(args) == 1 {
					name = args[0]
				}
				if name == "-" {
					_, err := cmd.OutOrStdout().Write(data)
					return err
				}
				if err := journal.WriteFileAtomic(name, data); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", name, humanize.Bytes(uint64(len(data))))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "restore <file>",
		Short: "Replace the active journal with a validated backup.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read backup: %w", err)
			}
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if err := a.service.Restore(ctx, data); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "restored %s (%s)\n", args[0], humanize.Bytes(uint64(len(data))))
				return nil
			})
		},
	})

	topLevel.AddCommand(cmd)
}
