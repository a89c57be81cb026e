package llm

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"
)

func TestWindowSnapshotPercentiles(t *testing.T) {
	w := NewWindow(time.Hour)
	for _, ms := range []int64{100, 200, 300, 400, 500} {
		w.Record(ms)
	}

	snap := w.Snapshot()
	if snap.Count != 5 {
		t.Fatalf("expected count=5, got %d", snap.Count)
	}
	if snap.MinMs != 100 || snap.MaxMs != 500 {
		t.Fatalf("expected min=100 max=500, got %d %d", snap.MinMs, snap.MaxMs)
	}
	if snap.AvgMs != 300 {
		t.Fatalf("expected avg=300, got %f", snap.AvgMs)
	}
	if snap.P50Ms != 300 {
		t.Fatalf("expected p50=300, got %f", snap.P50Ms)
	}
	if snap.P95Ms != 480 {
		t.Fatalf("expected p95=480, got %f", snap.P95Ms)
	}
	if snap.P99Ms != 496 {
		t.Fatalf("expected p99=496, got %f", snap.P99Ms)
	}
}

func TestWindowPrunesExpiredSamples(t *testing.T) {
	w := NewWindow(10 * time.Millisecond)
	w.Record(100)
	time.Sleep(25 * time.Millisecond)

	if snap := w.Snapshot(); snap.Count != 0 {
		t.Fatalf("expected count=0 after prune, got %d", snap.Count)
	}

	w.Record(200)
	snap := w.Snapshot()
	if snap.Count != 1 || snap.MinMs != 200 || snap.MaxMs != 200 {
		t.Fatalf("expected one fresh sample of 200, got %+v", snap)
	}
}

func TestWindowRecordClampsNegativeDuration(t *testing.T) {
	w := NewWindow(time.Hour)
	w.Record(-10)
	snap := w.Snapshot()
	if snap.Count != 1 || snap.MinMs != 0 {
		t.Fatalf("expected clamped duration=0, got %+v", snap)
	}
}

type scriptedStreamer struct {
	chunks []string
	err    error
}

func (s *scriptedStreamer) Model() string { return "scripted" }

func (s *scriptedStreamer) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, c := range s.chunks {
			if !yield(c, nil) {
				return
			}
		}
		if s.err != nil {
			yield("", s.err)
		}
	}
}

func TestInstrument_RecordsLatencies(t *testing.T) {
	stats := NewStreamStats(time.Hour)
	s := Instrument(&scriptedStreamer{chunks: []string{"a", "b"}}, stats)
	if s.Model() != "scripted" {
		t.Errorf("expected wrapped model name, got %q", s.Model())
	}
	out, err := Collect(s.Stream(context.Background(), Request{}))
	if err != nil || out != "ab" {
		t.Fatalf("expected ab, got %q %v", out, err)
	}
	snap := stats.Snapshot()
	if snap.FirstChunk.Count != 1 || snap.Total.Count != 1 || snap.Errors != 0 {
		t.Errorf("unexpected stats %+v", snap)
	}
}

func TestInstrument_CountsErrors(t *testing.T) {
	stats := NewStreamStats(time.Hour)
	boom := errors.New("boom")
	s := Instrument(&scriptedStreamer{chunks: []string{"a"}, err: boom}, stats)
	out, err := Collect(s.Stream(context.Background(), Request{}))
	if !errors.Is(err, boom) || out != "a" {
		t.Fatalf("expected partial output and error, got %q %v", out, err)
	}
	snap := stats.Snapshot()
	if snap.Errors != 1 || snap.Total.Count != 0 {
		t.Errorf("unexpected stats %+v", snap)
	}
}
