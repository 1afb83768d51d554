package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// textSynth writes the text itself, which makes artifacts easy to inspect.
type textSynth struct {
	mu    sync.Mutex
	calls int
}

func (s *textSynth) Synthesize(ctx context.Context, text, dst string) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return os.WriteFile(dst, []byte(text), 0o644)
}

type failingSynth struct{}

func (failingSynth) Synthesize(ctx context.Context, text, dst string) error {
	return errors.New("speaker on fire")
}

// gatedSynth holds every render until release is closed.
type gatedSynth struct {
	started chan struct{}
	release chan struct{}
}

func (s *gatedSynth) Synthesize(ctx context.Context, text, dst string) error {
	select {
	case s.started <- struct{}{}:
	default:
	}
	<-s.release
	return os.WriteFile(dst, []byte(text), 0o644)
}

func readArtifact(t *testing.T, sink *FileSink, name string) string {
	t.Helper()
	rc, _, err := sink.Open(name)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestToneProducesValidWav(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "chat.wav")
	require.NoError(t, Tone{SampleRate: 8000}.Synthesize(context.Background(), "Le Chat", dst))

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	assert.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, 8000, buf.Format.SampleRate)
	assert.NotEmpty(t, buf.Data)
}

func TestToneSamplesLength(t *testing.T) {
	rate := 1000
	letter := int(float64(rate) * toneLetterSecs)
	pause := int(float64(rate) * tonePauseSecs)

	assert.Len(t, toneSamples("ab c", rate), 3*letter+pause)
	assert.Len(t, toneSamples("", rate), pause)
}

func TestRendererWritesArtifact(t *testing.T) {
	sink := NewFileSink(filepath.Join(t.TempDir(), "nested", "audio"))
	r := NewRenderer(&textSynth{}, sink, time.Second)

	art, err := r.Render(context.Background(), "Le Chat", "chat")
	require.NoError(t, err)
	assert.Equal(t, "chat", art.PageName)
	assert.Equal(t, sink.Path("chat"), art.Path)
	assert.Equal(t, "Le Chat", readArtifact(t, sink, "chat"))

	_, err = r.Render(context.Background(), "Le Chien", "chat")
	require.NoError(t, err)
	assert.Equal(t, "Le Chien", readArtifact(t, sink, "chat"))

	entries, err := os.ReadDir(sink.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not linger")
}

func TestRendererFailureIsWrapped(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	r := NewRenderer(failingSynth{}, sink, 0)

	_, err := r.Render(context.Background(), "x", "chat")
	assert.ErrorIs(t, err, ErrRendering)

	_, _, err = sink.Open("chat")
	assert.ErrorIs(t, err, ErrNoArtifact)
	entries, err := os.ReadDir(sink.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSinkMissingArtifact(t *testing.T) {
	sink := NewFileSink(filepath.Join(t.TempDir(), "never-created"))
	_, _, err := sink.Open("chat")
	assert.ErrorIs(t, err, ErrNoArtifact)
	_, err = sink.Stat("chat")
	assert.ErrorIs(t, err, ErrNoArtifact)
}

func TestSinkConcurrentDirectoryCreation(t *testing.T) {
	sink := NewFileSink(filepath.Join(t.TempDir(), "a", "b"))
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- sink.ensureDir()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestDispatcherLatestWins(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	synth := &textSynth{}
	d := NewDispatcher(NewRenderer(synth, sink, 0), 2, 8, nil)

	ctx := context.Background()
	for _, title := range []string{"un", "deux", "trois"} {
		require.NoError(t, d.Enqueue(ctx, "chat", title))
	}
	require.NoError(t, d.Enqueue(ctx, "chien", "Le Chien"))
	require.NoError(t, d.Close(ctx))

	assert.Equal(t, "trois", readArtifact(t, sink, "chat"))
	assert.Equal(t, "Le Chien", readArtifact(t, sink, "chien"))

	assert.ErrorIs(t, d.Enqueue(ctx, "chat", "quatre"), ErrClosed)
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	d := NewDispatcher(NewRenderer(failingSynth{}, sink, 0), 1, 1, nil)

	d.Schedule(context.Background(), "chat", "Le Chat")
	require.NoError(t, d.Close(context.Background()))

	_, err := sink.Stat("chat")
	assert.ErrorIs(t, err, ErrNoArtifact)
}

func TestDispatcherScheduleDropsWhenFull(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	synth := &gatedSynth{started: make(chan struct{}, 1), release: make(chan struct{})}
	var logs bytes.Buffer
	d := NewDispatcher(NewRenderer(synth, sink, 0), 1, 1, slog.New(slog.NewTextHandler(&logs, nil)))

	ctx := context.Background()
	require.NoError(t, d.Enqueue(ctx, "chat", "un"))
	<-synth.started
	require.NoError(t, d.Enqueue(ctx, "chat", "deux"))

	done := make(chan struct{})
	go func() {
		d.Schedule(ctx, "chat", "trois")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Schedule blocked on a full queue")
	}

	close(synth.release)
	require.NoError(t, d.Close(ctx))

	assert.Equal(t, "deux", readArtifact(t, sink, "chat"))
	assert.Contains(t, logs.String(), "audio render not queued")
	assert.Contains(t, logs.String(), "predates the current title")
}

func TestInlineSwallowsFailures(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	Inline{Renderer: NewRenderer(failingSynth{}, sink, 0)}.Schedule(context.Background(), "chat", "Le Chat")

	_, err := sink.Stat("chat")
	assert.ErrorIs(t, err, ErrNoArtifact)
}
