package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/deckgen/internal/config"
	"github.com/dgallion1/deckgen/internal/llm"
	"github.com/dgallion1/deckgen/internal/store"
	"github.com/dgallion1/deckgen/internal/stream"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("session not found")

// Orchestrator manages the generation worker pool.
type Orchestrator struct {
	sessions *SessionStore
	queue    chan *Session
	model    llm.Streamer
	images   stream.Resolver
	store    *store.Store
	log      *slog.Logger
	cfg      config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. images may be nil.
func NewOrchestrator(cfg config.Config, model llm.Streamer, images stream.Resolver, st *store.Store, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		sessions: NewSessionStore(cfg.SessionTTL),
		queue:    make(chan *Session, cfg.MaxQueueSize),
		model:    model,
		images:   images,
		store:    st,
		log:      log,
		cfg:      cfg,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.model, o.images, o.store, o.log, o.cfg.MaxConcurrentImages, o.cfg.ImageTimeout)
			for {
				select {
				case <-workerCtx.Done():
					return
				case s, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, s)
				}
			}
		}()
	}

	// Start session store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.sessions.Cleanup()
			}
		}
	}()
}

// Stop cancels running sessions and waits for the workers to exit.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a session for generation.
func (o *Orchestrator) Submit(s *Session) error {
	o.sessions.Put(s)
	select {
	case o.queue <- s:
		o.log.Info("session queued", "session_id", s.ID, "slides", len(s.Outline), "queue_depth", len(o.queue))
		return nil
	default:
		s.SetStatus(StatusFailed, "queue full")
		s.finish()
		return fmt.Errorf("session queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetSession returns a session by ID.
func (o *Orchestrator) GetSession(id string) *Session {
	return o.sessions.Get(id)
}

// Cancel stops a queued or running session.
func (o *Orchestrator) Cancel(id string) (bool, error) {
	s := o.sessions.Get(id)
	if s == nil {
		return false, ErrSessionNotFound
	}
	return s.Cancel(), nil
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
