package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/gogpu/chart"
)

func newWatchCmd(g *globalFlags) *cobra.Command {
	f := &renderFlags{}
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-render whenever the config or data file changes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var files []string
			for _, p := range []string{g.configPath, f.data} {
				if p != "" {
					files = append(files, p)
				}
			}
			if len(files) == 0 {
				return errors.New("watch needs --config or --data")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return watch(ctx, files, debounce, func() {
				res, err := renderOnce(g, f)
				if err != nil {
					chart.Logger().Error("render failed", "error", err)
					return
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d points in %v\n",
					f.out, res.points, res.elapsed.Round(time.Millisecond))
			})
		},
	}
	f.register(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", 150*time.Millisecond, "Quiet period before re-rendering")
	return cmd
}

// watch calls fn once, then again after every burst of changes to files
// until ctx is done. Parent directories are watched so that editors which
// replace files on save are seen.
func watch(ctx context.Context, files []string, debounce time.Duration, fn func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	targets := make(map[string]bool, len(files))
	dirs := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		targets[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}

	fn()

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	log := chart.Logger()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name, err := filepath.Abs(ev.Name)
			if err != nil || !targets[name] {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				log.Debug("change", "file", name, "op", ev.Op.String())
				timer.Reset(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", "error", err)
		case <-timer.C:
			fn()
		}
	}
}
