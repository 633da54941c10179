package logger

import (
	"fmt"
	"path"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// MakeTrainPlots saves one <key>.png per logged key in dir. The x axis is
// the row index times xScale; values are multiplied by yScale.
func MakeTrainPlots(log *DataLog, keys []string, xScale, yScale float64, dir string) error {
	for i, key := range keys {
		series := log.Series(key)
		if len(series) == 0 {
			continue
		}
		p := plot.New()
		p.Title.Text = key
		p.X.Label.Text = "Iteration"
		p.Y.Label.Text = key

		points := make(plotter.XYs, len(series))
		for j, v := range series {
			points[j] = plotter.XY{
				X: float64(j) * xScale,
				Y: v * yScale,
			}
		}
		line, err := plotter.NewLine(points)
		if err != nil {
			// NaN or Inf values
			continue
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		if err := p.Save(8*vg.Inch, 8*vg.Inch, path.Join(dir, key+".png")); err != nil {
			return fmt.Errorf("save plot %s: %w", key, err)
		}
	}
	return nil
}
