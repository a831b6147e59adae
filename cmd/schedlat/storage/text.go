package storage

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// TextStore writes one signed decimal latency per line, no header.
type TextStore struct {
	file   *os.File
	writer *bufio.Writer
}

// NewTextStore creates or truncates the file at path.
func NewTextStore(path string) (*TextStore, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create text file: %w", err)
	}

	return &TextStore{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// WriteSamples appends latencies in order and flushes them to the file.
func (s *TextStore) WriteSamples(latencies []int64) error {
	var line []byte
	for _, l := range latencies {
		line = strconv.AppendInt(line[:0], l, 10)
		line = append(line, '\n')
		if _, err := s.writer.Write(line); err != nil {
			return fmt.Errorf("write sample: %w", err)
		}
	}

	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("flush writer: %w", err)
	}
	return nil
}

// Close flushes buffered samples and closes the file.
func (s *TextStore) Close() error {
	if err := s.writer.Flush(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// ReadText parses a file written by TextStore. Blank lines are skipped.
func ReadText(path string) ([]int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open text file: %w", err)
	}
	defer file.Close()

	var latencies []int64
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		l, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		latencies = append(latencies, l)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return latencies, nil
}
