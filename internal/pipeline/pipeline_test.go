package pipeline

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/deckgen/internal/config"
	"github.com/dgallion1/deckgen/internal/deck"
	"github.com/dgallion1/deckgen/internal/llm"
	"github.com/dgallion1/deckgen/internal/store"
	"github.com/dgallion1/deckgen/internal/stream"
)

const deckMarkup = `<PRESENTATION><SECTION layout="left"><H1>Intro</H1><IMG query="mountain lake" /><BULLETS><DIV><H3>One</H3><P>First point</P></DIV></BULLETS></SECTION><SECTION layout="right"><H1>Next</H1><IMG query="city skyline" /><BULLETS><DIV><P>Second point</P></DIV></BULLETS></SECTION></PRESENTATION>`

type step struct {
	chunk string
	err   error
}

// scriptedModel replays one script per attempt.
type scriptedModel struct {
	mu       sync.Mutex
	attempts int
	script   func(attempt int) []step
}

func (m *scriptedModel) Stream(ctx context.Context, _ llm.Request) iter.Seq2[string, error] {
	m.mu.Lock()
	attempt := m.attempts
	m.attempts++
	m.mu.Unlock()
	steps := m.script(attempt)
	return func(yield func(string, error) bool) {
		for _, s := range steps {
			if ctx.Err() != nil {
				yield("", ctx.Err())
				return
			}
			if !yield(s.chunk, s.err) || s.err != nil {
				return
			}
		}
	}
}

func (m *scriptedModel) Model() string { return "scripted" }

func (m *scriptedModel) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

func chunksOf(text string, size int) []step {
	var steps []step
	for _, c := range stream.Split(text, size) {
		steps = append(steps, step{chunk: c})
	}
	return steps
}

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, query string) (string, error) {
	return "https://img.example/" + strings.ReplaceAll(query, " ", "-"), nil
}

func quietLog() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), store.DriverSQLite, filepath.Join(t.TempDir(), "deckgen.db"), quietLog())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestWorker(model llm.Streamer, images stream.Resolver, st *store.Store) *Worker {
	w := NewWorker(model, images, st, quietLog(), 2, time.Second)
	w.backoff = func(int) time.Duration { return 0 }
	return w
}

func TestWorker_EndToEnd(t *testing.T) {
	st := openStore(t)
	model := &scriptedModel{script: func(int) []step { return chunksOf(deckMarkup, 17) }}
	w := newTestWorker(model, fakeResolver{}, st)

	s := NewSession("Travel", []string{"Intro", "Next"}, "English", "", "")
	events, stop := s.Subscribe()
	defer stop()

	w.Process(context.Background(), s)

	snap := s.Snapshot()
	if snap.Status != StatusDone {
		t.Fatalf("expected done, got %q (%s)", snap.Status, snap.Error)
	}
	if snap.Count != 2 {
		t.Fatalf("expected 2 slides, got %d", snap.Count)
	}
	for _, sl := range snap.Slides {
		if sl.RootImage == nil || sl.RootImage.URL == "" {
			t.Errorf("slide %s: expected resolved image, got %+v", sl.ID, sl.RootImage)
		}
	}

	p, err := st.Get(context.Background(), s.PresentationID)
	if err != nil {
		t.Fatalf("get saved presentation: %v", err)
	}
	if p.Title != "Travel" || len(p.Slides) != 2 {
		t.Fatalf("unexpected saved presentation: %q with %d slides", p.Title, len(p.Slides))
	}
	want := map[string]string{
		"slide-1": "https://img.example/mountain-lake",
		"slide-2": "https://img.example/city-skyline",
	}
	for _, sl := range p.Slides {
		if sl.RootImage == nil || sl.RootImage.URL != want[sl.ID] {
			t.Errorf("stored slide %s: expected url %q, got %+v", sl.ID, want[sl.ID], sl.RootImage)
		}
	}

	// The channel is closed after the session finishes.
	var updates, images int
	var last stream.State
	for ev := range events {
		switch ev.Type {
		case EventUpdate:
			updates++
			last = ev.Update.State
		case EventImage:
			images++
		}
	}
	if updates == 0 || last != stream.StateDone {
		t.Errorf("expected updates ending in done, got %d ending in %q", updates, last)
	}
	if images != 2 {
		t.Errorf("expected 2 image events, got %d", images)
	}
}

func TestWorker_RetriesBeforeFirstChunk(t *testing.T) {
	model := &scriptedModel{script: func(attempt int) []step {
		if attempt == 0 {
			return []step{{err: &llm.RetryableError{StatusCode: 529, Message: "overloaded"}}}
		}
		return chunksOf(deckMarkup, 40)
	}}
	w := newTestWorker(model, nil, nil)
	s := NewSession("Travel", []string{"Intro", "Next"}, "", "", "")
	w.Process(context.Background(), s)

	if got := s.Snapshot().Status; got != StatusDone {
		t.Fatalf("expected done after retry, got %q", got)
	}
	if model.Attempts() != 2 {
		t.Errorf("expected 2 attempts, got %d", model.Attempts())
	}
}

func TestWorker_NoRetryAfterFirstChunk(t *testing.T) {
	model := &scriptedModel{script: func(int) []step {
		return []step{
			{chunk: `<SECTION><H1>A</H1>`},
			{err: &llm.RetryableError{StatusCode: 500, Message: "boom"}},
		}
	}}
	w := newTestWorker(model, nil, nil)
	s := NewSession("T", []string{"A"}, "", "", "")
	w.Process(context.Background(), s)

	snap := s.Snapshot()
	if snap.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", snap.Status)
	}
	if !strings.Contains(snap.Error, "boom") {
		t.Errorf("expected upstream error message, got %q", snap.Error)
	}
	if model.Attempts() != 1 {
		t.Errorf("expected a single attempt, got %d", model.Attempts())
	}
}

func TestWorker_NonRetryableFailsImmediately(t *testing.T) {
	model := &scriptedModel{script: func(int) []step {
		return []step{{err: errors.New("bad request")}}
	}}
	w := newTestWorker(model, nil, nil)
	s := NewSession("T", []string{"A"}, "", "", "")
	w.Process(context.Background(), s)

	if got := s.Snapshot().Status; got != StatusFailed {
		t.Fatalf("expected failed, got %q", got)
	}
	if model.Attempts() != 1 {
		t.Errorf("expected 1 attempt, got %d", model.Attempts())
	}
}

func TestWorker_RetriesExhausted(t *testing.T) {
	model := &scriptedModel{script: func(int) []step {
		return []step{{err: &llm.RetryableError{StatusCode: 429, Message: "slow down"}}}
	}}
	w := newTestWorker(model, nil, nil)
	s := NewSession("T", []string{"A"}, "", "", "")
	w.Process(context.Background(), s)

	if got := s.Snapshot().Status; got != StatusFailed {
		t.Fatalf("expected failed, got %q", got)
	}
	if model.Attempts() != MaxRetries {
		t.Errorf("expected %d attempts, got %d", MaxRetries, model.Attempts())
	}
}

// blockingModel yields one chunk and then waits for cancellation.
type blockingModel struct {
	started chan struct{}
}

func (m *blockingModel) Stream(ctx context.Context, _ llm.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if !yield(`<SECTION><H1>Kept</H1><P>done</P></SECTION><SECTION><H1>Partial`, nil) {
			return
		}
		close(m.started)
		<-ctx.Done()
		yield("", ctx.Err())
	}
}

func (m *blockingModel) Model() string { return "blocking" }

func TestWorker_CancelKeepsEmittedSlides(t *testing.T) {
	st := openStore(t)
	model := &blockingModel{started: make(chan struct{})}
	w := newTestWorker(model, nil, st)
	s := NewSession("T", []string{"Kept", "Partial"}, "", "", "")

	done := make(chan struct{})
	go func() {
		w.Process(context.Background(), s)
		close(done)
	}()

	<-model.started
	if !s.Cancel() {
		t.Fatal("expected cancel of a running session to succeed")
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}

	snap := s.Snapshot()
	if snap.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %q", snap.Status)
	}
	if snap.Count != 2 || snap.Slides[0].Blocks[0].Text != "Kept" {
		t.Errorf("expected emitted slides to be kept, got %+v", snap.Slides)
	}
	if _, err := st.Get(context.Background(), s.PresentationID); err != nil {
		t.Errorf("expected partial presentation to be saved: %v", err)
	}
	if s.Cancel() {
		t.Error("cancel after finish should report false")
	}
}

func TestWorker_CancelledWhileQueued(t *testing.T) {
	model := &scriptedModel{script: func(int) []step { return chunksOf(deckMarkup, 10) }}
	w := newTestWorker(model, nil, nil)
	s := NewSession("T", nil, "", "", "")
	if !s.Cancel() {
		t.Fatal("expected cancel of a queued session to succeed")
	}
	w.Process(context.Background(), s)

	if got := s.Snapshot().Status; got != StatusCancelled {
		t.Fatalf("expected cancelled, got %q", got)
	}
	if model.Attempts() != 0 {
		t.Errorf("model should not be called, got %d attempts", model.Attempts())
	}
}

func TestSession_ApplyImageDropsStale(t *testing.T) {
	s := NewSession("T", nil, "", "", "")
	slides := []deck.Slide{
		{ID: "slide-1", RootImage: &deck.RootImage{Query: "lake"}},
		{ID: "slide-2"},
	}
	s.applyUpdate(stream.Update{Seq: 1, State: stream.StateStreaming, Changed: deck.Clone(slides), Slides: deck.Clone(slides)})

	tests := []struct {
		name    string
		slideID string
		query   string
		want    bool
	}{
		{"unknown slide", "slide-9", "lake", false},
		{"query changed", "slide-1", "river", false},
		{"no root image", "slide-2", "lake", false},
		{"match", "slide-1", "lake", true},
	}
	for _, tt := range tests {
		if got := s.ApplyImage(tt.slideID, tt.query, "https://x/"+tt.query); got != tt.want {
			t.Errorf("%s: ApplyImage = %v, want %v", tt.name, got, tt.want)
		}
	}

	// A later update re-emits the slide without the URL; the resolved one survives.
	s.applyUpdate(stream.Update{Seq: 2, State: stream.StateStreaming, Slides: deck.Clone(slides)})
	if got := s.Slides()[0].RootImage.URL; got != "https://x/lake" {
		t.Errorf("expected resolved url to survive re-emission, got %q", got)
	}
}

func TestSession_SubscribeAfterFinish(t *testing.T) {
	s := NewSession("T", nil, "", "", "")
	s.finish()
	ch, stop := s.Subscribe()
	defer stop()
	if _, ok := <-ch; ok {
		t.Error("expected closed channel after finish")
	}
}

func TestSession_UnsubscribeStopsDelivery(t *testing.T) {
	s := NewSession("T", nil, "", "", "")
	ch, stop := s.Subscribe()
	stop()
	stop() // second call is a no-op
	s.applyUpdate(stream.Update{Seq: 1, State: stream.StateStreaming})
	if _, ok := <-ch; ok {
		t.Error("expected no events after unsubscribe")
	}
}

func TestSessionStore_Cleanup(t *testing.T) {
	reg := NewSessionStore(time.Minute)

	old := NewSession("old", nil, "", "", "")
	old.SetStatus(StatusDone, "")
	old.UpdatedAt = time.Now().Add(-time.Hour)

	running := NewSession("running", nil, "", "", "")
	running.SetStatus(StatusStreaming, "")
	running.UpdatedAt = time.Now().Add(-time.Hour)

	fresh := NewSession("fresh", nil, "", "", "")
	fresh.SetStatus(StatusFailed, "x")

	for _, s := range []*Session{old, running, fresh} {
		reg.Put(s)
	}
	reg.Cleanup()

	if reg.Get(old.ID) != nil {
		t.Error("expected expired finished session to be removed")
	}
	if reg.Get(running.ID) == nil {
		t.Error("running session must not be evicted")
	}
	if reg.Get(fresh.ID) == nil {
		t.Error("recent session must not be evicted")
	}
	if reg.Len() != 2 {
		t.Errorf("expected 2 sessions left, got %d", reg.Len())
	}
}

func TestOrchestrator_QueueFull(t *testing.T) {
	cfg := config.Defaults()
	cfg.MaxQueueSize = 1
	model := &scriptedModel{script: func(int) []step { return nil }}
	o := NewOrchestrator(cfg, model, nil, nil, quietLog())

	first := NewSession("a", nil, "", "", "")
	if err := o.Submit(first); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second := NewSession("b", nil, "", "", "")
	if err := o.Submit(second); err == nil {
		t.Fatal("expected queue full error")
	}
	snap := second.Snapshot()
	if snap.Status != StatusFailed || snap.Error != "queue full" {
		t.Errorf("expected failed/queue full, got %q/%q", snap.Status, snap.Error)
	}
	if o.GetSession(second.ID) == nil {
		t.Error("rejected session should still be retrievable")
	}
	if o.QueueDepth() != 1 {
		t.Errorf("expected queue depth 1, got %d", o.QueueDepth())
	}
	if _, err := o.Cancel("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestOrchestrator_RunsSessions(t *testing.T) {
	cfg := config.Defaults()
	cfg.WorkerCount = 2
	model := &scriptedModel{script: func(int) []step { return chunksOf(deckMarkup, 25) }}
	o := NewOrchestrator(cfg, model, nil, openStore(t), quietLog())
	o.Start(context.Background())
	defer o.Stop()

	s := NewSession("Travel", []string{"Intro", "Next"}, "", "", "")
	events, stop := s.Subscribe()
	defer stop()
	if err := o.Submit(s); err != nil {
		t.Fatalf("submit: %v", err)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				if got := s.Snapshot().Status; got != StatusDone {
					t.Fatalf("expected done, got %q", got)
				}
				return
			}
		case <-timeout:
			t.Fatal("session did not finish")
		}
	}
}

func TestGenerateULID(t *testing.T) {
	seen := make(map[string]bool)
	prev := ""
	for i := 0; i < 1000; i++ {
		id := generateULID()
		if len(id) != 26 {
			t.Fatalf("expected 26 chars, got %d (%q)", len(id), id)
		}
		if strings.Trim(id, crockford) != "" {
			t.Fatalf("unexpected characters in %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
		if id <= prev {
			t.Fatalf("ids not increasing: %q after %q", id, prev)
		}
		prev = id
	}
}

func TestEncodeBase32(t *testing.T) {
	var zero [16]byte
	if got := encodeBase32(zero); got != strings.Repeat("0", 26) {
		t.Errorf("zero: got %q", got)
	}
	var full [16]byte
	for i := range full {
		full[i] = 0xff
	}
	if got := encodeBase32(full); got != "7"+strings.Repeat("Z", 25) {
		t.Errorf("max: got %q", got)
	}
}

func TestBackoff(t *testing.T) {
	for attempt := 0; attempt < 8; attempt++ {
		d := Backoff(attempt)
		base := time.Duration(1<<uint(attempt)) * time.Second
		if base > 30*time.Second {
			base = 30 * time.Second
		}
		if d < base || d >= base+base/2 {
			t.Errorf("Backoff(%d) = %v, want in [%v, %v)", attempt, d, base, base+base/2)
		}
	}
}
