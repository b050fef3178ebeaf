package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/gogpu/chart/geometry"
)

var errNoData = errors.New("no numeric rows")

func parseKind(s string) (geometry.Kind, error) {
	switch strings.ToLower(s) {
	case "points", "point", "scatter":
		return geometry.KindPoints, nil
	case "line", "lines":
		return geometry.KindLine, nil
	default:
		return 0, fmt.Errorf("unknown series kind %q", s)
	}
}

// loadSeries reads a CSV or XLSX file chosen by extension.
func loadSeries(path, sheet string, kind geometry.Kind) ([]geometry.Input, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(path, sheet)
	default:
		rows, err = readCSV(path)
	}
	if err != nil {
		return nil, err
	}
	series, err := columns(rows, kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return series, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseCSV(f)
}

func parseCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	return cr.ReadAll()
}

func readXLSX(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%s: workbook has no sheets", path)
		}
		sheet = sheets[0]
	}
	return f.GetRows(sheet)
}

// columns turns rows of "x, y1, y2, ..." into one series per y column.
// A first row that does not parse is taken as the header and names the
// series.
func columns(rows [][]string, kind geometry.Kind) ([]geometry.Input, error) {
	var labels []string
	if len(rows) > 0 && !numericRow(rows[0]) {
		labels, rows = rows[0], rows[1:]
	}
	if len(rows) == 0 {
		return nil, errNoData
	}

	width := len(rows[0])
	if width < 2 {
		return nil, fmt.Errorf("need an x and at least one y column, got %d columns", width)
	}
	xs := make([]float64, 0, len(rows))
	ys := make([][]float64, width-1)
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i+1, len(row), width)
		}
		vals, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		xs = append(xs, vals[0])
		for j := range ys {
			ys[j] = append(ys[j], vals[j+1])
		}
	}

	series := make([]geometry.Input, len(ys))
	for j, y := range ys {
		in := geometry.Scatter(xs, y)
		if kind == geometry.KindLine {
			in = geometry.Line(xs, y)
		}
		if j+1 < len(labels) {
			in = in.WithLabel(labels[j+1])
		}
		series[j] = in.WithColors(palette[j%len(palette)])
	}
	return series, nil
}

func numericRow(row []string) bool {
	_, err := parseRow(row)
	return err == nil
}

func parseRow(row []string) ([]float64, error) {
	vals := make([]float64, len(row))
	for i, cell := range row {
		v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

var palette = []geometry.Color{
	geometry.Hex("#1f77b4"),
	geometry.Hex("#ff7f0e"),
	geometry.Hex("#2ca02c"),
	geometry.Hex("#d62728"),
	geometry.Hex("#9467bd"),
}

// synthetic returns n noisy samples of a damped sine wave.
func synthetic(n int, kind geometry.Kind, seed uint64) geometry.Input {
	n = max(n, 1)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	xs := make([]float32, n)
	ys := make([]float32, n)
	for i := range xs {
		x := 10 * float64(i) / float64(n)
		xs[i] = float32(x)
		ys[i] = float32(math.Exp(-x/5)*math.Sin(2*x) + rng.NormFloat64()*0.05)
	}
	if kind == geometry.KindLine {
		return geometry.Line(xs, ys).WithLabel("synthetic")
	}
	return geometry.Scatter(xs, ys).WithLabel("synthetic")
}
