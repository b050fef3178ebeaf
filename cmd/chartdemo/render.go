package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gogpu/chart"
	"github.com/gogpu/chart/geometry"
)

type renderFlags struct {
	data    string
	sheet   string
	kind    string
	points  int
	seed    uint64
	out     string
	width   uint32
	height  uint32
	backend string
}

func (f *renderFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.data, "data", "", "CSV or XLSX file with an x column and one or more y columns (default: synthetic data)")
	fl.StringVar(&f.sheet, "sheet", "", "XLSX sheet name (default: first sheet)")
	fl.StringVar(&f.kind, "kind", "points", "Series kind: points or line")
	fl.IntVar(&f.points, "points", 10000, "Number of synthetic points")
	fl.Uint64Var(&f.seed, "seed", 1, "Synthetic data seed")
	fl.StringVarP(&f.out, "out", "o", "chart.png", "Output image (.png, .bmp, .tif, .tiff)")
	fl.Uint32Var(&f.width, "width", 0, "Image width, overrides the config")
	fl.Uint32Var(&f.height, "height", 0, "Image height, overrides the config")
	fl.StringVar(&f.backend, "backend", "", "Backend tier: auto, webgpu or webgl; overrides the config")
}

func newRenderCmd(g *globalFlags) *cobra.Command {
	f := &renderFlags{}
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one chart to an image file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := renderOnce(g, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d points, %dx%d, %s backend, %v\n",
				f.out, res.points, res.width, res.height, res.backend, res.elapsed.Round(time.Millisecond))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

type renderResult struct {
	points        int
	width, height uint32
	backend       string
	elapsed       time.Duration
}

// chartOptions merges the config file with the command line flags.
func (f *renderFlags) chartOptions(cfg chart.Config) ([]chart.Option, error) {
	if f.width > 0 {
		cfg.Width = f.width
	}
	if f.height > 0 {
		cfg.Height = f.height
	}
	if cfg.Width > 0 && cfg.Height == 0 {
		cfg.Height = chart.DefaultHeight
	}
	if cfg.Height > 0 && cfg.Width == 0 {
		cfg.Width = chart.DefaultWidth
	}
	if f.backend != "" {
		cfg.Backend = f.backend
	}
	return cfg.Options()
}

func (f *renderFlags) series() ([]geometry.Input, error) {
	kind, err := parseKind(f.kind)
	if err != nil {
		return nil, err
	}
	if f.data == "" {
		return []geometry.Input{synthetic(f.points, kind, f.seed)}, nil
	}
	return loadSeries(f.data, f.sheet, kind)
}

// renderOnce loads configuration and data, renders one frame, and writes
// the image.
func renderOnce(g *globalFlags, f *renderFlags) (renderResult, error) {
	start := time.Now()
	cfg, err := g.loadConfig()
	if err != nil {
		return renderResult{}, err
	}
	opts, err := f.chartOptions(cfg)
	if err != nil {
		return renderResult{}, err
	}
	series, err := f.series()
	if err != nil {
		return renderResult{}, err
	}

	c, err := chart.New(series, opts...)
	if err != nil {
		return renderResult{}, err
	}
	defer c.Destroy()

	if err := c.Render(); err != nil {
		return renderResult{}, err
	}
	img, err := c.Snapshot()
	if err != nil {
		return renderResult{}, err
	}
	if err := writeImage(f.out, img); err != nil {
		return renderResult{}, err
	}

	res := renderResult{backend: c.Backend().String(), elapsed: time.Since(start)}
	res.width, res.height = c.Size()
	for _, s := range series {
		res.points += s.Len()
	}
	chart.Logger().Info("rendered", "out", f.out, "points", res.points,
		"memory", c.MemoryStats().String(), "frame", c.Stats().String())
	return res, nil
}
