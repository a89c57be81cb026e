package llm

import (
	"context"
	"iter"
	"sort"
	"sync"
	"time"
)

type sample struct {
	timestamp  time.Time
	durationMs int64
}

// WindowSnapshot is a point-in-time aggregate of latency samples.
type WindowSnapshot struct {
	Count int     `json:"count"`
	MinMs int64   `json:"min_ms"`
	MaxMs int64   `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// Window tracks recent latencies within a rolling time window.
type Window struct {
	mu      sync.Mutex
	samples []sample
	maxAge  time.Duration
}

func NewWindow(maxAge time.Duration) *Window {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Window{
		samples: make([]sample, 0, 256),
		maxAge:  maxAge,
	}
}

func (w *Window) Record(durationMs int64) {
	if durationMs < 0 {
		durationMs = 0
	}
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	w.samples = append(w.samples, sample{
		timestamp:  now,
		durationMs: durationMs,
	})
}

func (w *Window) Snapshot() WindowSnapshot {
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	if len(w.samples) == 0 {
		return WindowSnapshot{}
	}

	values := make([]int64, 0, len(w.samples))
	var sum int64
	for _, sm := range w.samples {
		values = append(values, sm.durationMs)
		sum += sm.durationMs
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	return WindowSnapshot{
		Count: len(values),
		MinMs: values[0],
		MaxMs: values[len(values)-1],
		AvgMs: float64(sum) / float64(len(values)),
		P50Ms: percentile(values, 50),
		P95Ms: percentile(values, 95),
		P99Ms: percentile(values, 99),
	}
}

func (w *Window) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.maxAge)
	writeIdx := 0
	for _, sm := range w.samples {
		if !sm.timestamp.Before(cutoff) {
			w.samples[writeIdx] = sm
			writeIdx++
		}
	}
	w.samples = w.samples[:writeIdx]
}

func percentile(sortedValues []int64, pct float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sortedValues[0])
	}
	if pct >= 100 {
		return float64(sortedValues[len(sortedValues)-1])
	}

	index := (float64(len(sortedValues)-1) * pct) / 100.0
	lower := int(index)
	upper := lower + 1
	if upper >= len(sortedValues) {
		return float64(sortedValues[lower])
	}
	weight := index - float64(lower)
	lo := float64(sortedValues[lower])
	hi := float64(sortedValues[upper])
	return lo + ((hi - lo) * weight)
}

// StreamStats tracks time to first chunk and total stream duration.
type StreamStats struct {
	FirstChunk *Window
	Total      *Window

	mu     sync.Mutex
	errors int
}

// StreamStatsSnapshot is the JSON view of StreamStats.
type StreamStatsSnapshot struct {
	FirstChunk WindowSnapshot `json:"first_chunk"`
	Total      WindowSnapshot `json:"total"`
	Errors     int            `json:"errors"`
}

func NewStreamStats(maxAge time.Duration) *StreamStats {
	return &StreamStats{
		FirstChunk: NewWindow(maxAge),
		Total:      NewWindow(maxAge),
	}
}

func (s *StreamStats) recordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors++
}

func (s *StreamStats) Snapshot() StreamStatsSnapshot {
	s.mu.Lock()
	errs := s.errors
	s.mu.Unlock()
	return StreamStatsSnapshot{
		FirstChunk: s.FirstChunk.Snapshot(),
		Total:      s.Total.Snapshot(),
		Errors:     errs,
	}
}

type instrumented struct {
	Streamer
	stats *StreamStats
}

// Instrument wraps a Streamer so every stream records into stats.
func Instrument(s Streamer, stats *StreamStats) Streamer {
	if stats == nil {
		return s
	}
	return &instrumented{Streamer: s, stats: stats}
}

func (i *instrumented) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		start := time.Now()
		first := true
		failed := false
		defer func() {
			if !failed {
				i.stats.Total.Record(time.Since(start).Milliseconds())
			}
		}()
		for chunk, err := range i.Streamer.Stream(ctx, req) {
			if err != nil {
				failed = true
				i.stats.recordError()
				yield("", err)
				return
			}
			if first {
				first = false
				i.stats.FirstChunk.Record(time.Since(start).Milliseconds())
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}
