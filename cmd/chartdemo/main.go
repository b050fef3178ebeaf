// Command chartdemo renders scatter and line charts offscreen to image files.
//
// Usage:
//
//	chartdemo render --data points.csv --out chart.png
//	chartdemo render --points 1000000 --kind line --out wave.tiff
//	chartdemo watch --config chart.toml --data sheet.xlsx --out live.png
//	chartdemo probe
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
