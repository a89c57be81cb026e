package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Resolver turns an image query into a URL.
type Resolver interface {
	Resolve(ctx context.Context, query string) (string, error)
}

// ImageResult is delivered once per scheduled request. Receivers must drop
// results whose slide no longer exists or whose query has since changed.
type ImageResult struct {
	SlideID string
	Query   string
	URL     string
	Err     error
}

// ImageDispatcher resolves images concurrently in the background. Requests run
// on a context detached from the caller's cancellation, so stopping a stream
// does not abort lookups already issued for finalized slides.
type ImageDispatcher struct {
	resolver Resolver
	deliver  func(ImageResult)
	log      *slog.Logger
	timeout  time.Duration

	ctx context.Context
	sem chan struct{}
	wg  sync.WaitGroup
}

func NewImageDispatcher(ctx context.Context, r Resolver, maxConcurrent int, timeout time.Duration, deliver func(ImageResult), log *slog.Logger) *ImageDispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &ImageDispatcher{
		resolver: r,
		deliver:  deliver,
		log:      log,
		timeout:  timeout,
		ctx:      context.WithoutCancel(ctx),
		sem:      make(chan struct{}, maxConcurrent),
	}
}

// Schedule starts resolving req and returns immediately.
func (d *ImageDispatcher) Schedule(req ImageRequest) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.sem <- struct{}{}
		defer func() { <-d.sem }()

		ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
		defer cancel()
		start := time.Now()
		url, err := d.resolver.Resolve(ctx, req.Query)
		if err != nil {
			d.log.Warn("image resolve failed", "slide_id", req.SlideID, "query", req.Query, "error", err)
		} else {
			d.log.Debug("image resolved", "slide_id", req.SlideID, "query", req.Query, "duration_ms", time.Since(start).Milliseconds())
		}
		if d.deliver != nil {
			d.deliver(ImageResult{SlideID: req.SlideID, Query: req.Query, URL: url, Err: err})
		}
	}()
}

// Wait blocks until every scheduled request has been delivered.
func (d *ImageDispatcher) Wait() {
	d.wg.Wait()
}
