package report

import (
	"fmt"
	"io"
	"runtime/debug"
)

// WriteGCStats prints the garbage collector activity of this process. With
// verbose set every recorded pause is listed as well.
func WriteGCStats(w io.Writer, verbose bool) error {
	var stats debug.GCStats
	debug.ReadGCStats(&stats)

	_, err := fmt.Fprintf(w, "\nGC Stats:\n\tNumber of GC runs %d\n\tTotal GC pause time %v\n",
		stats.NumGC, stats.PauseTotal)
	if err != nil {
		return err
	}

	if verbose {
		_, err = fmt.Fprintf(w, "\tGC pauses: %v\n", stats.Pause)
	}
	return err
}
