// Package stream drives the markup pipeline over a live model response. Each
// chunk triggers a full re-parse of the accumulated text; the driver diffs the
// result against what it already emitted and reports only the changes.
package stream

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"github.com/dgallion1/deckgen/internal/deck"
	"github.com/dgallion1/deckgen/internal/layout"
)

// State is the lifecycle state of one generation stream.
type State string

const (
	StateIdle       State = "idle"
	StateStreaming  State = "streaming"
	StateFinalizing State = "finalizing"
	StateDone       State = "done"
	StateCancelled  State = "cancelled"
	StateFailed     State = "failed"
)

// Terminal reports whether no further updates follow this state.
func (s State) Terminal() bool {
	return s == StateDone || s == StateCancelled || s == StateFailed
}

// Update is one emission to the consumer.
type Update struct {
	Seq     int          `json:"seq"`
	State   State        `json:"state"`
	Changed []deck.Slide `json:"changed"`
	Removed []string     `json:"removed,omitempty"`
	Count   int          `json:"count"`
	Error   string       `json:"error,omitempty"`

	// Slides is the full current list, for consumers that keep a snapshot.
	Slides []deck.Slide `json:"-"`
}

// ImageRequest asks for a root image to be resolved for a finalized slide.
type ImageRequest struct {
	SlideID string
	Query   string
}

// Scheduler accepts image requests. Implementations must not block.
type Scheduler interface {
	Schedule(ImageRequest)
}

// Options configures a Driver.
type Options struct {
	OnUpdate func(Update)
	Images   Scheduler
	Logger   *slog.Logger
}

// Result summarizes a finished run.
type Result struct {
	State  State
	Slides []deck.Slide
	// Text is the accumulated response. It is empty after cancellation.
	Text   string
	Chunks int
	Err    error
}

// Driver owns the emitted slide list of one stream. It is single use.
type Driver struct {
	opts Options
	log  *slog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc

	// Only touched from the Run goroutine.
	emitted   []deck.Slide
	hashes    map[string]string
	frozen    int
	scheduled map[string]bool
	seq       int
}

func New(opts Options) *Driver {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Driver{
		opts:      opts,
		log:       log,
		state:     StateIdle,
		hashes:    make(map[string]string),
		scheduled: make(map[string]bool),
	}
}

// State returns the current state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	from := d.state
	d.state = s
	d.mu.Unlock()
	d.log.Debug("state changed", "from", from, "to", s)
}

// Cancel stops a running stream. Slides already emitted stay as they are.
func (d *Driver) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
}

// Run consumes src until it ends, fails or ctx is cancelled. Cancellation
// takes effect immediately, even while src is blocked waiting on upstream.
func (d *Driver) Run(ctx context.Context, src iter.Seq2[string, error]) Result {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	items := pump(src, stop)

	var buf strings.Builder
	chunks := 0
	started := false
loop:
	for ctx.Err() == nil {
		var it item
		var ok bool
		select {
		case <-ctx.Done():
			break loop
		case it, ok = <-items:
		}
		if !ok {
			break
		}
		// Any response from upstream, even an error, starts the stream.
		if !started {
			started = true
			d.setState(StateStreaming)
			d.log.Debug("stream started")
		}
		if it.err != nil {
			if ctx.Err() != nil {
				break
			}
			return d.fail(it.err, buf.String(), chunks)
		}
		chunks++
		if it.chunk == "" {
			continue
		}
		buf.WriteString(it.chunk)
		d.apply(layout.Run(buf.String(), false), false, StateStreaming)
	}

	if ctx.Err() != nil {
		d.setState(StateCancelled)
		d.emit(nil, nil, StateCancelled, "")
		d.log.Info("stream cancelled", "chunks", chunks, "slides", len(d.emitted))
		return Result{State: StateCancelled, Slides: deck.Clone(d.emitted), Chunks: chunks}
	}

	d.setState(StateFinalizing)
	pass := layout.Run(buf.String(), true)
	for id, vs := range pass.Violations {
		d.log.Debug("markup violations", "slide_id", id, "count", len(vs), "first", vs[0].String())
	}
	d.apply(pass, true, StateFinalizing)
	d.setState(StateDone)
	d.emit(nil, nil, StateDone, "")
	d.log.Info("stream done", "chunks", chunks, "slides", len(d.emitted), "clean", pass.Clean)
	return Result{State: StateDone, Slides: deck.Clone(d.emitted), Text: buf.String(), Chunks: chunks}
}

func (d *Driver) fail(err error, text string, chunks int) Result {
	if errors.Is(err, context.Canceled) {
		d.setState(StateCancelled)
		d.emit(nil, nil, StateCancelled, "")
		return Result{State: StateCancelled, Slides: deck.Clone(d.emitted), Chunks: chunks}
	}
	d.setState(StateFailed)
	d.emit(nil, nil, StateFailed, err.Error())
	d.log.Error("stream failed", "chunks", chunks, "slides", len(d.emitted), "error", err)
	return Result{State: StateFailed, Slides: deck.Clone(d.emitted), Text: text, Chunks: chunks, Err: err}
}

// apply merges a pass into the emitted list. Slides before the frozen mark
// are never replaced; the mark advances as new slides appear behind them.
func (d *Driver) apply(p layout.Pass, final bool, state State) {
	next := p.Slides
	copy(next, d.emitted[:min(d.frozen, len(next))])
	if len(next) < d.frozen {
		next = append(next, d.emitted[len(next):d.frozen]...)
	}

	frozen := len(next) - 1
	if final {
		frozen = len(next)
	}
	frozen = max(frozen, d.frozen)

	hashes := make(map[string]string, len(next))
	var changed []deck.Slide
	for _, s := range next {
		h := deck.Hash(s)
		hashes[s.ID] = h
		if d.hashes[s.ID] != h {
			changed = append(changed, s)
		}
	}
	var removed []string
	for _, s := range d.emitted {
		if _, ok := hashes[s.ID]; !ok {
			removed = append(removed, s.ID)
		}
	}

	newlyFrozen := next[d.frozen:frozen]
	d.emitted, d.hashes, d.frozen = next, hashes, frozen

	if len(changed) > 0 || len(removed) > 0 {
		d.emit(changed, removed, state, "")
	}
	// Consumers see a slide before any image result for it can arrive.
	for _, s := range newlyFrozen {
		d.scheduleImage(s)
	}
}

func (d *Driver) scheduleImage(s deck.Slide) {
	if d.opts.Images == nil || s.RootImage == nil || s.RootImage.Query == "" {
		return
	}
	key := s.ID + "\x00" + s.RootImage.Query
	if d.scheduled[key] {
		return
	}
	d.scheduled[key] = true
	d.opts.Images.Schedule(ImageRequest{SlideID: s.ID, Query: s.RootImage.Query})
}

func (d *Driver) emit(changed []deck.Slide, removed []string, state State, errMsg string) {
	d.seq++
	if d.opts.OnUpdate == nil {
		return
	}
	if changed == nil {
		changed = []deck.Slide{}
	}
	d.opts.OnUpdate(Update{
		Seq:     d.seq,
		State:   state,
		Changed: deck.Clone(changed),
		Removed: removed,
		Count:   len(d.emitted),
		Error:   errMsg,
		Slides:  deck.Clone(d.emitted),
	})
}
