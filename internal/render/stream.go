package render

import (
	"io"
	"iter"

	"github.com/pkg/errors"

	"github.com/cbegin/trackwave-go/internal/score"
)

// Render drives the whole score and returns one contiguous waveform. Each gap
// is requested from the engine in a single call. On error no partial
// waveform is returned.
func Render(tracks []score.Track, engine Engine, cfg Config) ([]float32, error) {
	d := NewDriver(tracks, engine, cfg)
	var out []float32
	for {
		buf, err := d.next(0)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, buf...)
	}
}

// Stream yields the waveform lazily. It has a single cursor and cannot be
// restarted; every chunk returned by Next belongs to the caller.
type Stream struct {
	d     *Driver
	limit int64
}

func NewStream(tracks []score.Track, engine Engine, cfg Config) *Stream {
	return &Stream{
		d:     NewDriver(tracks, engine, cfg),
		limit: int64(cfg.ChunkFrames),
	}
}

// Next returns the next chunk, or io.EOF after the tail chunk.
func (s *Stream) Next() ([]float32, error) {
	return s.d.next(s.limit)
}

// All adapts the stream to a range-over-func sequence. Iteration stops after
// the first error, which is yielded with a nil chunk.
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

// Close abandons the render. Sounding voices are cut so the engine can be
// discarded or reused; the engine itself is left to its owner.
func (s *Stream) Close() error {
	s.d.stop()
	return nil
}

func (s *Stream) Stats() Stats { return s.d.Stats() }

func (s *Stream) Clock() int64 { return s.d.Clock() }
