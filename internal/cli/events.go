package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func addEvents(topLevel *cobra.Command, opts *rootOptions) {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the events of the active journal.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List events in chronological order.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				j, err := a.service.Journal(ctx)
				if err != nil {
					return err
				}
				timeline, err := a.service.Timeline(ctx)
				if err != nil {
					return err
				}
				locations := make(map[int]string, len(j.Events))
				media := make(map[int]int, len(j.Events))
				for _, e := range j.Events {
					locations[e.ID] = e.Location.Name
					media[e.ID] = len(e.Media.Paths())
				}

				tbl := newTable("#", "DATE", "TITLE", "LOCATION", "MEDIA", "ID")
				tbl.MaxColWidth = 40
				for _, t := range timeline {
					tbl.AddRow(t.Seq, yearColor(t.Color).Sprint(t.Date.String()), t.Title, locations[t.EventID], media[t.EventID], t.EventID)
				}
				printTable(cmd.OutOrStdout(), tbl)
				return nil
			})
		},
	})

	topLevel.AddCommand(cmd)
}
