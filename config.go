package chart

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/chart/backend"
	"github.com/gogpu/chart/device"
	"github.com/gogpu/chart/geometry"
)

// ErrInvalidConfig is returned for configuration values that cannot be
// turned into options.
var ErrInvalidConfig = errors.New("chart: invalid config")

// Config is the file form of the chart options.
//
//	width = 1024
//	height = 768
//	background = "#101820"
//	x_range = [0.0, 100.0]
//	y_output = [1.0, -1.0]
//	point_size = 3.0
//	color = "#ff8800"
//	backend = "auto"
//
// Zero fields keep the defaults.
type Config struct {
	Width      uint32    `toml:"width,omitempty"`
	Height     uint32    `toml:"height,omitempty"`
	Background string    `toml:"background,omitempty"`
	XRange     []float64 `toml:"x_range,omitempty"`
	YRange     []float64 `toml:"y_range,omitempty"`
	XOutput    []float64 `toml:"x_output,omitempty"`
	YOutput    []float64 `toml:"y_output,omitempty"`
	PointSize  float32   `toml:"point_size,omitempty"`
	LineWidth  float32   `toml:"line_width,omitempty"`
	Color      string    `toml:"color,omitempty"`
	Bound      float64   `toml:"bound,omitempty"`

	// Backend is "auto", "webgpu" or "webgl".
	Backend string `toml:"backend,omitempty"`

	// BudgetMB caps GPU memory for buffers and textures.
	BudgetMB uint64 `toml:"budget_mb,omitempty"`
}

// ParseConfig decodes TOML. Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	var c Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return Config{}, fmt.Errorf("%w: line %d column %d: %w", ErrInvalidConfig, row, col, err)
		}
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return c, nil
}

// LoadConfig reads and decodes a TOML file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	c, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Marshal encodes c as TOML.
func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

// Options converts c to chart options, validating every field.
func (c Config) Options() ([]Option, error) {
	var opts []Option

	if c.Width != 0 || c.Height != 0 {
		if c.Width == 0 || c.Height == 0 {
			return nil, fmt.Errorf("%w: size %dx%d", ErrInvalidConfig, c.Width, c.Height)
		}
		opts = append(opts, WithSize(c.Width, c.Height))
	}

	for _, col := range []struct {
		name, value string
		apply       func(geometry.Color) Option
	}{
		{"background", c.Background, WithBackground},
		{"color", c.Color, WithColor},
	} {
		if col.value == "" {
			continue
		}
		hc := geometry.Hex(col.value)
		if _, err := hc.Resolve(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, col.name, err)
		}
		opts = append(opts, col.apply(hc))
	}

	for _, r := range []struct {
		name  string
		value []float64
		apply func(lo, hi float64) Option
	}{
		{"x_range", c.XRange, WithXRange},
		{"y_range", c.YRange, WithYRange},
		{"x_output", c.XOutput, WithOutputX},
		{"y_output", c.YOutput, WithOutputY},
	} {
		if r.value == nil {
			continue
		}
		if len(r.value) != 2 {
			return nil, fmt.Errorf("%w: %s needs 2 values, got %d", ErrInvalidConfig, r.name, len(r.value))
		}
		opts = append(opts, r.apply(r.value[0], r.value[1]))
	}

	if c.PointSize < 0 || c.LineWidth < 0 || c.Bound < 0 {
		return nil, fmt.Errorf("%w: negative size or bound", ErrInvalidConfig)
	}
	if c.PointSize > 0 {
		opts = append(opts, WithPointSize(c.PointSize))
	}
	if c.LineWidth > 0 {
		opts = append(opts, WithLineWidth(c.LineWidth))
	}
	if c.Bound > 0 {
		opts = append(opts, WithBound(c.Bound))
	}

	kind, err := backend.ParseKind(c.Backend)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if kind != backend.KindNone {
		opts = append(opts, WithBackend(kind))
	}

	if c.BudgetMB > 0 {
		opts = append(opts, WithDeviceOptions(device.WithBudget(c.BudgetMB<<20)))
	}
	return opts, nil
}

// WithConfig applies a Config. Conversion errors are reported by New.
func WithConfig(c Config) Option {
	return func(o *options) {
		opts, err := c.Options()
		if err != nil {
			if o.err == nil {
				o.err = err
			}
			return
		}
		for _, opt := range opts {
			opt(o)
		}
	}
}
