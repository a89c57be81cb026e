package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/deckgen/internal/llm"
	"github.com/dgallion1/deckgen/internal/store"
	"github.com/dgallion1/deckgen/internal/stream"
)

const persistTimeout = 10 * time.Second

// Worker runs generation sessions one at a time.
type Worker struct {
	model  llm.Streamer
	images stream.Resolver
	store  *store.Store
	log    *slog.Logger

	maxConcurrentImages int
	imageTimeout        time.Duration
	backoff             func(attempt int) time.Duration
}

// NewWorker creates a worker. images and st may be nil, in which case root
// images stay unresolved and results are not persisted.
func NewWorker(model llm.Streamer, images stream.Resolver, st *store.Store, log *slog.Logger, maxImages int, imageTimeout time.Duration) *Worker {
	return &Worker{
		model:               model,
		images:              images,
		store:               st,
		log:                 log,
		maxConcurrentImages: maxImages,
		imageTimeout:        imageTimeout,
		backoff:             Backoff,
	}
}

// Process streams the slide markup for a session, persists the finalized
// slides and waits for outstanding image lookups.
func (w *Worker) Process(ctx context.Context, s *Session) {
	log := w.log.With("session_id", s.ID, "presentation_id", s.PresentationID)
	defer s.finish()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !s.start(cancel) {
		log.Info("session cancelled while queued")
		s.SetStatus(StatusCancelled, "")
		return
	}

	var sched stream.Scheduler
	var disp *stream.ImageDispatcher
	if w.images != nil {
		disp = stream.NewImageDispatcher(ctx, w.images, w.maxConcurrentImages, w.imageTimeout,
			func(r stream.ImageResult) { w.deliverImage(s, r, log) }, log)
		sched = disp
	}

	d := stream.New(stream.Options{OnUpdate: s.applyUpdate, Images: sched, Logger: log})
	req := llm.SlidesPrompt(llm.SlidesRequest{
		Title:    s.Title,
		Outline:  s.Outline,
		Language: s.Language,
		Tone:     s.Tone,
	})
	start := time.Now()
	res := d.Run(runCtx, retryStream(runCtx, w.model, req, w.backoff, log))
	log.Info("generation finished", "state", res.State, "slides", len(res.Slides),
		"chunks", res.Chunks, "duration_ms", time.Since(start).Milliseconds())

	status, errMsg := SessionStatus(res.State), ""
	if res.Err != nil {
		errMsg = res.Err.Error()
	}
	// Cancelled sessions keep the slides that were already emitted.
	if res.State == stream.StateDone || (res.State == stream.StateCancelled && len(res.Slides) > 0) {
		if err := w.persist(ctx, s); err != nil {
			log.Error("save presentation failed", "error", err)
			status, errMsg = StatusFailed, fmt.Sprintf("save: %s", err)
		}
	}
	s.SetStatus(status, errMsg)

	if disp != nil {
		disp.Wait()
	}
}

func (w *Worker) persist(ctx context.Context, s *Session) error {
	if w.store == nil {
		return nil
	}
	s.persist.Lock()
	defer s.persist.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	p := s.presentation()
	if err := w.store.Save(ctx, p); err != nil {
		return err
	}
	s.saved = true
	w.log.Info("presentation saved", "presentation_id", p.ID, "slides", len(p.Slides))
	return nil
}

// deliverImage applies a resolved image to the live session and, once the
// presentation has been saved, to the stored copy.
func (w *Worker) deliverImage(s *Session, r stream.ImageResult, log *slog.Logger) {
	if r.Err != nil || r.URL == "" {
		return
	}
	s.persist.Lock()
	defer s.persist.Unlock()

	if !s.ApplyImage(r.SlideID, r.Query, r.URL) {
		log.Debug("stale image result dropped", "slide_id", r.SlideID, "query", r.Query)
		return
	}
	if !s.saved || w.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	ok, err := w.store.UpdateImage(ctx, s.PresentationID, r.SlideID, r.Query, r.URL)
	if err != nil {
		log.Error("store image failed", "slide_id", r.SlideID, "error", err)
		return
	}
	if !ok {
		log.Debug("stored slide no longer matches image", "slide_id", r.SlideID)
	}
}
