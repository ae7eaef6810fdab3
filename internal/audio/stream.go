package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/pkg/errors"
)

// ChunkSource yields mono audio until it returns io.EOF.
type ChunkSource interface {
	Next() ([]float32, error)
}

// StreamReader adapts a ChunkSource to the interleaved stereo float32
// little-endian byte stream ebiten expects. Mono samples go to both channels.
type StreamReader struct {
	mu         sync.Mutex
	source     ChunkSource
	pending    []float32
	err        error
	onFinished func(error)
}

// NewStreamReader wraps source. onFinished, if set, runs once on the audio
// goroutine when the source ends; it gets nil for a clean io.EOF.
func NewStreamReader(source ChunkSource, onFinished func(error)) *StreamReader {
	return &StreamReader{source: source, onFinished: onFinished}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	n := 0
	for n < frames {
		if len(r.pending) == 0 {
			if r.err != nil {
				break
			}
			chunk, err := r.source.Next()
			if err != nil {
				r.finish(err)
				break
			}
			r.pending = chunk
			continue
		}
		take := min(frames-n, len(r.pending))
		for i, s := range r.pending[:take] {
			u := math.Float32bits(s)
			off := (n + i) * 8
			binary.LittleEndian.PutUint32(p[off:], u)
			binary.LittleEndian.PutUint32(p[off+4:], u)
		}
		r.pending = r.pending[take:]
		n += take
	}
	if r.err != nil && len(r.pending) == 0 {
		if errors.Is(r.err, io.EOF) {
			return n * 8, io.EOF
		}
		return n * 8, r.err
	}
	return n * 8, nil
}

func (r *StreamReader) finish(err error) {
	r.err = err
	if r.onFinished == nil {
		return
	}
	if errors.Is(err, io.EOF) {
		err = nil
	}
	r.onFinished(err)
}

// Close ends the stream and closes the source if it is an io.Closer.
// onFinished is not called for a stream closed early.
func (r *StreamReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = io.EOF
	}
	r.pending = nil
	if c, ok := r.source.(io.Closer); ok {
		r.source = nil
		return c.Close()
	}
	return nil
}

type Player struct {
	player *ebitaudio.Player
	reader io.ReadCloser
}

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, errors.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

func NewPlayer(sampleRate int, source ChunkSource, onFinished func(error)) (*Player, error) {
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source, onFinished)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, errors.Wrap(err, "create audio player")
	}
	return &Player{
		player: pl,
		reader: reader,
	}, nil
}

func (p *Player) Play()  { p.player.Play() }
func (p *Player) Pause() { p.player.Pause() }

// SetVolume sets the output volume, 1 being unity.
func (p *Player) SetVolume(v float64) { p.player.SetVolume(v) }

// Position returns the current playback position (what the listener actually hears).
func (p *Player) Position() time.Duration {
	return p.player.Position()
}

func (p *Player) Stop() error {
	p.player.Pause()
	p.player.Close()
	return p.reader.Close()
}
