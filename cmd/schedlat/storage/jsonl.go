package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// JSONLStore writes one Sample object per line.
type JSONLStore struct {
	file   *os.File
	writer *bufio.Writer
	runID  string
	next   int
}

// NewJSONLStore creates or truncates the file at path. Every record is
// tagged with runID.
func NewJSONLStore(path, runID string) (*JSONLStore, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create jsonl file: %w", err)
	}

	return &JSONLStore{
		file:   file,
		writer: bufio.NewWriter(file),
		runID:  runID,
	}, nil
}

// WriteSamples appends latencies, numbering cycles from where the previous
// call left off.
func (s *JSONLStore) WriteSamples(latencies []int64) error {
	for _, l := range latencies {
		data, err := json.Marshal(&Sample{
			RunID:     s.runID,
			Cycle:     s.next,
			LatencyUs: l,
		})
		if err != nil {
			return fmt.Errorf("marshal sample: %w", err)
		}

		if _, err := s.writer.Write(data); err != nil {
			return fmt.Errorf("write sample: %w", err)
		}

		if err := s.writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}

		s.next++
	}

	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("flush writer: %w", err)
	}

	return nil
}

// Close flushes buffered records and closes the file.
func (s *JSONLStore) Close() error {
	if err := s.writer.Flush(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// ReadJSONL parses a file written by JSONLStore.
func ReadJSONL(path string) ([]Sample, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open jsonl file: %w", err)
	}
	defer file.Close()

	var samples []Sample
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var sample Sample
		if err := json.Unmarshal(scanner.Bytes(), &sample); err != nil {
			return nil, fmt.Errorf("unmarshal sample: %w", err)
		}
		samples = append(samples, sample)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return samples, nil
}
