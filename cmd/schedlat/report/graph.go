package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/wcharczuk/go-chart/v2"
)

// RenderGraph draws latencies (µs) against cycle index as a PNG.
func RenderGraph(w io.Writer, title string, latencies []int64) error {
	if len(latencies) == 0 {
		return errors.New("no samples to graph")
	}

	xs := make([]float64, len(latencies))
	ys := make([]float64, len(latencies))
	for i, l := range latencies {
		xs[i] = float64(i)
		ys[i] = float64(l)
	}

	// go-chart refuses zero-width ranges, so pad flat data.
	lo, hi := float64(slices.Min(latencies)), float64(slices.Max(latencies))
	if lo == hi {
		lo, hi = lo-1, hi+1
	}

	graph := chart.Chart{
		Title: title,
		XAxis: chart.XAxis{
			Name:  "Cycle",
			Range: &chart.ContinuousRange{Min: 0, Max: float64(max(len(latencies)-1, 1))},
		},
		YAxis: chart.YAxis{
			Name:  "Latency (µs)",
			Range: &chart.ContinuousRange{Min: lo, Max: hi},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "latency",
				XValues: xs,
				YValues: ys,
			},
		},
	}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render graph: %w", err)
	}
	return nil
}

// SaveGraph renders the graph into a newly created file at path. The file
// is removed again if rendering or closing it fails.
func SaveGraph(path, title string, latencies []int64) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create graph file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close graph file: %w", cerr)
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	return RenderGraph(f, title, latencies)
}
