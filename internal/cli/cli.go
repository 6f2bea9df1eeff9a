// Package cli defines the lifemap command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/vbonduro/lifemap/internal/config"
)

// rootOptions are flags shared by every subcommand. Empty values keep what
// config.Load resolved.
type rootOptions struct {
	DataDir  string
	LogLevel string
}

func New() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "lifemap",
		Short:         "Record dated, geolocated memories on a world map.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "directory holding journals and uploads (overrides DATA_DIR)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")

	addServe(cmd, opts)
	addJourneys(cmd, opts)
	addEvents(cmd, opts)
	addBackup(cmd, opts)
	return cmd
}

func (o *rootOptions) config() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if o.DataDir != "" {
		// A database derived from the old data directory follows the override.
		if cfg.DBPath == filepath.Join(cfg.DataDir, config.DefaultDBName) {
			cfg.DBPath = filepath.Join(o.DataDir, config.DefaultDBName)
		}
		cfg.DataDir = o.DataDir
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	return cfg, nil
}

// withApp wires the application for one command and tears it down afterwards.
func (o *rootOptions) withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	cfg, err := o.config()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newTable(headers ...any) *uitable.Table {
	bold := color.New(color.Bold)
	tbl := uitable.New()
	tbl.Separator = "  "
	row := make([]any, len(headers))
	for i, h := range headers {
		row[i] = bold.Sprint(h)
	}
	tbl.AddRow(row...)
	return tbl
}

func printTable(w io.Writer, tbl *uitable.Table) {
	_, _ = fmt.Fprintln(w, tbl)
}

// yearColor maps the map marker palette onto terminal colors.
func yearColor(name string) *color.Color {
	switch name {
	case "purple":
		return color.New(color.FgMagenta)
	case "blue":
		return color.New(color.FgBlue)
	case "green":
		return color.New(color.FgGreen)
	case "orange":
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}
