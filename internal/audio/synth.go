package audio

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strings"
	"unicode"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Synthesizer writes a WAV rendering of text to the file at dst.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, dst string) error
}

// Espeak drives an external espeak compatible speech binary.
type Espeak struct {
	Binary string
	Voice  string
}

func (e Espeak) Synthesize(ctx context.Context, text, dst string) error {
	binary := e.Binary
	if binary == "" {
		binary = "espeak"
	}
	args := []string{"-w", dst}
	if e.Voice != "" {
		args = append(args, "-v", e.Voice)
	}
	// Text goes through stdin so a title starting with '-' is never a flag.
	args = append(args, "--stdin")

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", binary, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Tone is a self-contained synthesizer: every letter becomes a short sine
// tone whose pitch depends on the letter, every other rune a short pause.
type Tone struct {
	SampleRate int
}

const (
	toneBitDepth   = 16
	toneAmplitude  = 0.4 * math.MaxInt16
	toneLetterSecs = 0.09
	tonePauseSecs  = 0.05
)

func (t Tone) Synthesize(ctx context.Context, text, dst string) error {
	rate := t.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	samples := toneSamples(text, rate)
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(f, rate, toneBitDepth, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: toneBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finish wav: %w", err)
	}
	return f.Close()
}

func toneSamples(text string, rate int) []int {
	letter := int(float64(rate) * toneLetterSecs)
	pause := int(float64(rate) * tonePauseSecs)

	var samples []int
	for _, r := range strings.ToLower(text) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			samples = append(samples, make([]int, pause)...)
			continue
		}
		freq := 220 + float64(r%32)*22
		for i := 0; i < letter; i++ {
			// Linear fade in and out to avoid clicks between letters.
			env := math.Min(1, math.Min(float64(i), float64(letter-i))/float64(letter/8+1))
			v := toneAmplitude * env * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
			samples = append(samples, int(v))
		}
	}
	if len(samples) == 0 {
		samples = make([]int, pause)
	}
	return samples
}
