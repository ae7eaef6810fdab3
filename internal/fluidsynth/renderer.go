package fluidsynth

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/cbegin/trackwave-go/internal/score"
)

const DefaultBinary = "fluidsynth"

var ErrSubprocess = errors.New("fluidsynth failed")

// Renderer renders tracks out of process: the score is written as a
// Standard MIDI File, the fluidsynth command line renders it to a WAV file,
// and the WAV is read back in chunks.
type Renderer struct {
	Binary     string
	SoundFont  string
	SampleRate int
	Program    score.Program
	Logger     *slog.Logger
}

func (r *Renderer) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// Render runs the external synthesizer to completion and returns a reader
// over its output. Closing the reader removes the intermediate files.
func (r *Renderer) Render(ctx context.Context, tracks []score.Track, chunkSeconds float64) (*Reader, error) {
	if r.SoundFont == "" {
		return nil, errors.Wrap(ErrSubprocess, "no soundfont given")
	}
	if r.SampleRate <= 0 {
		return nil, errors.Errorf("sample rate %d", r.SampleRate)
	}
	chunkFrames := int(chunkSeconds * float64(r.SampleRate))
	if chunkFrames <= 0 {
		return nil, errors.Errorf("chunk of %.3fs", chunkSeconds)
	}
	bin := r.Binary
	if bin == "" {
		bin = DefaultBinary
	}

	dir, err := os.MkdirTemp("", "trackwave-*")
	if err != nil {
		return nil, errors.Wrap(err, "create work dir")
	}
	cleanup := func() error { return os.RemoveAll(dir) }
	midPath := filepath.Join(dir, "score.mid")
	wavPath := filepath.Join(dir, "score.wav")
	if err := score.WriteSMFFile(midPath, tracks, r.Program); err != nil {
		cleanup()
		return nil, err
	}

	args := []string{"-ni", "-F", wavPath, "-r", strconv.Itoa(r.SampleRate), "-O", "s16", r.SoundFont, midPath}
	r.logger().Debug("running fluidsynth", "binary", bin, "args", args)
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		cleanup()
		return nil, errors.Wrapf(ErrSubprocess, "%v: %s", err, strings.TrimSpace(stderr.String()))
	}

	rd, err := OpenWAV(wavPath, chunkFrames)
	if err != nil {
		cleanup()
		return nil, errors.Wrap(ErrSubprocess, err.Error())
	}
	if rd.SampleRate() != r.SampleRate {
		r.logger().Warn("fluidsynth output rate differs", "want", r.SampleRate, "got", rd.SampleRate())
	}
	rd.closers = append([]func() error{cleanup}, rd.closers...)
	return rd, nil
}
