package trackwave

import (
	"context"
	"io"
	"iter"

	"github.com/pkg/errors"

	intfx "github.com/cbegin/trackwave-go/internal/effects"
	intfluid "github.com/cbegin/trackwave-go/internal/fluidsynth"
	intrender "github.com/cbegin/trackwave-go/internal/render"
	intscore "github.com/cbegin/trackwave-go/internal/score"
	intsynth "github.com/cbegin/trackwave-go/internal/synth"
)

// Render plays tracks through engine and returns the whole mono waveform,
// including the half-second tail. The engine must not be shared with another
// render while this runs.
func Render(tracks []Track, engine Engine, opts ...Option) ([]float32, error) {
	cfg, chain, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	out, err := intrender.Render(tracks, engine, cfg.render)
	if err != nil {
		return nil, err
	}
	chain.ProcessBuffer(out)
	return out, nil
}

// Stream is the incremental form of Render. Chunks are at most the configured
// chunk length; concatenated they equal what Render returns.
type Stream struct {
	inner   *intrender.Stream
	chain   *intfx.Chain
	release func() error
	closed  bool
}

func NewStream(tracks []Track, engine Engine, opts ...Option) (*Stream, error) {
	cfg, chain, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	return &Stream{
		inner: intrender.NewStream(tracks, engine, cfg.render),
		chain: chain,
	}, nil
}

// Next returns the next chunk, or io.EOF after the tail chunk.
func (s *Stream) Next() ([]float32, error) {
	if s.closed {
		return nil, io.EOF
	}
	buf, err := s.inner.Next()
	if err != nil {
		return nil, err
	}
	s.chain.ProcessBuffer(buf)
	return buf, nil
}

// All ranges over the remaining chunks, stopping after the first error.
func (s *Stream) All() iter.Seq2[[]float32, error] {
	return func(yield func([]float32, error) bool) {
		for {
			buf, err := s.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(buf, err) || err != nil {
				return
			}
		}
	}
}

// Close silences the engine and, for streams that opened their own engine,
// releases it. Safe to call more than once.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.inner.Close()
	if s.release != nil {
		if rerr := s.release(); err == nil {
			err = rerr
		}
	}
	return err
}

func (s *Stream) Stats() Stats { return s.inner.Stats() }

// RenderSoundFont loads the SoundFont at path, renders tracks with it and
// releases it again.
func RenderSoundFont(tracks []Track, path string, opts ...Option) ([]float32, error) {
	cfg, _, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	sf, err := intsynth.OpenSoundFont(path, cfg.render.SampleRate)
	if err != nil {
		return nil, err
	}
	defer sf.Close()
	return Render(tracks, sf, opts...)
}

// StreamSoundFont is the streaming form of RenderSoundFont. The SoundFont is
// released when the stream is closed.
func StreamSoundFont(tracks []Track, path string, opts ...Option) (*Stream, error) {
	cfg, _, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	sf, err := intsynth.OpenSoundFont(path, cfg.render.SampleRate)
	if err != nil {
		return nil, err
	}
	s, err := NewStream(tracks, sf, opts...)
	if err != nil {
		sf.Close()
		return nil, err
	}
	s.release = sf.Close
	return s, nil
}

// NewFM returns the built-in two-operator FM engine, which needs no
// SoundFont.
func NewFM(sampleRate int) Engine {
	return intsynth.NewFM(sampleRate, intsynth.DefaultFMParams())
}

// StreamFluidSynth renders tracks with an external fluidsynth binary (bin, or
// "fluidsynth" from PATH when empty) and streams its output. The program and
// effects apply as for NewStream.
func StreamFluidSynth(ctx context.Context, bin string, tracks []Track, path string, opts ...Option) (ChunkSource, error) {
	cfg, chain, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	prog := intscore.Program{
		Channel: uint8(cfg.render.Channel),
		Bank:    cfg.render.Bank,
		Preset:  cfg.render.Preset,
	}
	r := &intfluid.Renderer{
		Binary:     bin,
		SoundFont:  path,
		SampleRate: cfg.render.SampleRate,
		Program:    prog,
		Logger:     cfg.render.Logger,
	}
	rd, err := r.Render(ctx, tracks, cfg.chunkSeconds)
	if err != nil {
		return nil, err
	}
	return &filtered{src: rd, chain: chain}, nil
}

type filtered struct {
	src   ChunkSource
	chain *intfx.Chain
}

func (f *filtered) Next() ([]float32, error) {
	buf, err := f.src.Next()
	if err != nil {
		return nil, err
	}
	f.chain.ProcessBuffer(buf)
	return buf, nil
}

func (f *filtered) Close() error { return f.src.Close() }
