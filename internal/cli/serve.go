package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vbonduro/lifemap/internal/web"
	"github.com/vbonduro/lifemap/internal/web/templates"
)

func addServe(topLevel *cobra.Command, opts *rootOptions) {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the map UI and JSON API.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return opts.withApp(ctx, func(ctx context.Context, a *app) error {
				if addr == "" {
					addr = a.cfg.ListenAddr
				}
				go func() {
					if err := a.service.Watch(ctx); err != nil {
						a.logger.Error("journal watcher stopped", "error", err)
					}
				}()

				server := web.NewServer(a.service, templates.FS, a.media, a.logger)
				if err := server.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides LISTEN_ADDR)")
	topLevel.AddCommand(cmd)
}
