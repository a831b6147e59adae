package sampler

// Stats accumulates latency samples in microseconds.
//
// Min and Max take the first sample as their initial value, so a run where
// every sample is negative still reports the largest sample it observed.
type Stats struct {
	Count int   `json:"count"`
	Sum   int64 `json:"sum"`
	Min   int64 `json:"min"`
	Max   int64 `json:"max"`
}

// Add records one sample.
func (s *Stats) Add(v int64) {
	if s.Count == 0 {
		s.Min, s.Max = v, v
	} else {
		s.Min = min(s.Min, v)
		s.Max = max(s.Max, v)
	}
	s.Sum += v
	s.Count++
}

// Average returns Sum/Count with truncating division, or 0 when empty.
func (s *Stats) Average() int64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / int64(s.Count)
}
