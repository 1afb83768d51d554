package audio

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"babil/internal/metrics"
	"babil/internal/models"
)

// ErrClosed is returned by Enqueue once the dispatcher is shutting down.
var ErrClosed = errors.New("audio dispatcher closed")

// ErrQueueFull is reported when Schedule finds no room in the queue.
var ErrQueueFull = errors.New("audio queue full")

var errStale = errors.New("newer render queued")

type job struct {
	pageName string
	text     string
	gen      uint64
}

// Dispatcher renders audio on a fixed pool of background workers. Jobs for
// the same page are latest-wins: a job superseded by a newer enqueue is
// skipped, and never overwrites the newer artifact.
type Dispatcher struct {
	renderer *Renderer
	logger   *slog.Logger
	jobs     chan job
	group    errgroup.Group

	// closeMu guards sends on jobs against close(jobs).
	closeMu sync.RWMutex
	closed  bool

	mu   sync.Mutex
	gens map[string]uint64
	// dropped marks pages whose newest title never reached the queue.
	dropped map[string]bool
}

// NewDispatcher starts workers goroutines reading from a queue of the given size.
func NewDispatcher(renderer *Renderer, workers, queue int, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	d := &Dispatcher{
		renderer: renderer,
		logger:   logger,
		jobs:     make(chan job, queue),
		gens:     make(map[string]uint64),
		dropped:  make(map[string]bool),
	}
	for i := 0; i < workers; i++ {
		d.group.Go(d.work)
	}
	return d
}

// Schedule implements Scheduler. It never waits for queue space: when the
// queue is full the render is dropped and counted.
func (d *Dispatcher) Schedule(ctx context.Context, pageName, text string) {
	if err := d.enqueue(ctx, pageName, text, false); err != nil {
		metrics.AudioRenders.WithLabelValues("dropped").Inc()
		d.logger.Warn("audio render not queued", "page", pageName, "error", err)
	}
}

// Enqueue queues a render of text for pageName. It blocks while the queue is
// full.
func (d *Dispatcher) Enqueue(ctx context.Context, pageName, text string) error {
	return d.enqueue(ctx, pageName, text, true)
}

func (d *Dispatcher) enqueue(ctx context.Context, pageName, text string, wait bool) error {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	d.mu.Lock()
	d.gens[pageName]++
	gen := d.gens[pageName]
	delete(d.dropped, pageName)
	d.mu.Unlock()

	j := job{pageName: pageName, text: text, gen: gen}
	var err error
	if wait {
		select {
		case d.jobs <- j:
		case <-ctx.Done():
			err = ctx.Err()
		}
	} else {
		select {
		case d.jobs <- j:
		default:
			err = ErrQueueFull
		}
	}
	if err != nil {
		// Give the turn back so an already queued render still publishes.
		d.mu.Lock()
		if d.gens[pageName] == gen {
			d.gens[pageName]--
			d.dropped[pageName] = true
		}
		d.mu.Unlock()
		return err
	}
	metrics.AudioQueueDepth.Inc()
	return nil
}

// Close stops accepting jobs and waits for queued ones to finish or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeMu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.closeMu.Unlock()

	done := make(chan error, 1)
	go func() { done <- d.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() error {
	for j := range d.jobs {
		metrics.AudioQueueDepth.Dec()
		d.run(j)
	}
	return nil
}

func (d *Dispatcher) current(j job) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gens[j.pageName] == j.gen
}

func (d *Dispatcher) run(j job) {
	if !d.current(j) {
		metrics.AudioRenders.WithLabelValues("skipped").Inc()
		return
	}

	var outdated bool
	publish := func(tmp, pageName string) (models.Artifact, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.gens[pageName] != j.gen {
			os.Remove(tmp)
			return models.Artifact{}, errStale
		}
		art, err := d.renderer.sink.Publish(tmp, pageName)
		if err == nil && d.dropped[pageName] {
			delete(d.dropped, pageName)
			outdated = true
		}
		return art, err
	}

	_, err := d.renderer.render(context.Background(), j.text, j.pageName, publish)
	switch {
	case err == nil:
		metrics.AudioRenders.WithLabelValues("ok").Inc()
		if outdated {
			d.logger.Info("published audio predates the current title, run page render-audio to refresh it",
				"page", j.pageName, "title", j.text)
		}
	case errors.Is(err, errStale):
		metrics.AudioRenders.WithLabelValues("skipped").Inc()
	default:
		metrics.AudioRenders.WithLabelValues("failed").Inc()
		d.logger.Warn("audio render failed", "page", j.pageName, "error", err)
	}
}
