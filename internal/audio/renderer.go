// Package audio renders page titles into speech artifacts.
package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"babil/internal/metrics"
	"babil/internal/models"
)

// ErrRendering wraps every synthesis or publication failure.
var ErrRendering = errors.New("audio rendering failed")

// Renderer synthesizes text into a sink.
type Renderer struct {
	synth   Synthesizer
	sink    *FileSink
	timeout time.Duration
}

// NewRenderer returns a renderer. A zero timeout means no deadline beyond the
// caller's context.
func NewRenderer(synth Synthesizer, sink *FileSink, timeout time.Duration) *Renderer {
	return &Renderer{synth: synth, sink: sink, timeout: timeout}
}

// Sink returns the sink artifacts are written to.
func (r *Renderer) Sink() *FileSink {
	return r.sink
}

// Render synthesizes text and replaces the artifact stored for pageName.
func (r *Renderer) Render(ctx context.Context, text, pageName string) (models.Artifact, error) {
	return r.render(ctx, text, pageName, r.sink.Publish)
}

type publishFunc func(tmp, pageName string) (models.Artifact, error)

func (r *Renderer) render(ctx context.Context, text, pageName string, publish publishFunc) (models.Artifact, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() { metrics.AudioDuration.Observe(time.Since(start).Seconds()) }()

	tmp, err := r.sink.TempPath(pageName)
	if err != nil {
		return models.Artifact{}, fmt.Errorf("%w: %v", ErrRendering, err)
	}
	if err := r.synth.Synthesize(ctx, text, tmp); err != nil {
		os.Remove(tmp)
		return models.Artifact{}, fmt.Errorf("%w: %v", ErrRendering, err)
	}
	art, err := publish(tmp, pageName)
	if err != nil {
		if errors.Is(err, errStale) {
			return models.Artifact{}, err
		}
		return models.Artifact{}, fmt.Errorf("%w: %v", ErrRendering, err)
	}
	return art, nil
}

// Scheduler arranges for a page title to be rendered. Implementations never
// report failures to the caller.
type Scheduler interface {
	Schedule(ctx context.Context, pageName, text string)
}

// Inline renders on the calling goroutine and logs failures.
type Inline struct {
	Renderer *Renderer
	Logger   *slog.Logger
}

func (i Inline) Schedule(ctx context.Context, pageName, text string) {
	if _, err := i.Renderer.Render(ctx, text, pageName); err != nil {
		metrics.AudioRenders.WithLabelValues("failed").Inc()
		if i.Logger != nil {
			i.Logger.Warn("audio render failed", "page", pageName, "error", err)
		}
		return
	}
	metrics.AudioRenders.WithLabelValues("ok").Inc()
}
