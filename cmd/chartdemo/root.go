package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/gogpu/chart"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	logLevel   string
	configPath string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "chartdemo",
		Short: "Render GPU scatter and line charts to image files",
		Long: `chartdemo drives the chart rendering core without a window: it selects a
GPU backend, uploads the data, renders one frame offscreen, and writes it out.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			l, err := newLogger(cmd.ErrOrStderr(), g.logLevel)
			if err != nil {
				return err
			}
			chart.SetLogger(l)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "TOML chart configuration")

	root.AddCommand(newRenderCmd(g), newWatchCmd(g), newProbeCmd(g))
	return root
}

// newLogger returns a slog logger backed by a charmbracelet handler.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	h := log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Prefix:          "chartdemo",
	})
	return slog.New(h), nil
}

// loadConfig reads the configuration file, or returns the zero Config when
// none was given.
func (g *globalFlags) loadConfig() (chart.Config, error) {
	if g.configPath == "" {
		return chart.Config{}, nil
	}
	return chart.LoadConfig(g.configPath)
}
