// Package storage persists the per-cycle latency samples of a run.
package storage

import (
	"fmt"
	"strings"
)

const (
	FormatText  = "text"
	FormatJSONL = "jsonl"
)

// Sample is one per-cycle latency measurement.
type Sample struct {
	RunID     string `json:"run_id"`
	Cycle     int    `json:"cycle"`
	LatencyUs int64  `json:"latency_us"`
}

// SampleWriter writes samples in cycle order.
type SampleWriter interface {
	WriteSamples(latencies []int64) error
	Close() error
}

// Create opens path for writing, truncating any existing file, and returns a
// writer for the requested format.
func Create(path, format, runID string) (SampleWriter, error) {
	switch strings.ToLower(format) {
	case "", FormatText, "txt":
		s, err := NewTextStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case FormatJSONL, "json":
		s, err := NewJSONLStore(path, runID)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown format: %s (supported: text, jsonl)", format)
	}
}

// ValidFormat reports whether Create understands format.
func ValidFormat(format string) bool {
	switch strings.ToLower(format) {
	case "", FormatText, "txt", FormatJSONL, "json":
		return true
	}
	return false
}

// Save writes all latencies to path in one go.
func Save(path, format, runID string, latencies []int64) (err error) {
	w, err := Create(path, format, runID)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	return w.WriteSamples(latencies)
}
