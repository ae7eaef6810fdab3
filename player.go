package trackwave

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	intaudio "github.com/cbegin/trackwave-go/internal/audio"
)

// PlaybackEvent carries progress reported by Watch().
type PlaybackEvent struct {
	Kind   int   // EventChunkPlayed or EventPlaybackEnded
	Frames int64 // frames pulled from the source so far
	Err    error // set on EventPlaybackEnded when the source failed
}

const (
	EventChunkPlayed int = iota
	EventPlaybackEnded
)

type PlayerOption func(*playerConfig)

type playerConfig struct {
	sampleTap func([]float32)
}

// WithSampleTap installs a callback invoked with each mono chunk before it is
// played. The callback runs on the audio thread; keep work brief and
// non-blocking.
func WithSampleTap(tap func([]float32)) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.sampleTap = tap
	}
}

// Player plays chunk sources through the shared ebiten audio context. Only one
// source plays at a time; Play replaces the current one.
type Player struct {
	mu         sync.Mutex
	sampleRate int
	audio      *intaudio.Player
	volume     float64
	sampleTap  func([]float32)
	done       chan struct{}
	err        error
	eventCh    chan PlaybackEvent
	eventChMu  sync.Mutex
}

// tapSource forwards chunks to the audio backend and reports progress.
type tapSource struct {
	src       ChunkSource
	frames    atomic.Int64
	sampleTap func([]float32)
	onChunk   func(int64)
}

func (w *tapSource) Next() ([]float32, error) {
	buf, err := w.src.Next()
	if err != nil {
		return nil, err
	}
	if w.sampleTap != nil {
		w.sampleTap(buf)
	}
	n := w.frames.Add(int64(len(buf)))
	if w.onChunk != nil {
		w.onChunk(n)
	}
	return buf, nil
}

func (w *tapSource) Close() error { return w.src.Close() }

func NewPlayer(sampleRate int, opts ...PlayerOption) (*Player, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	var cfg playerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Player{
		sampleRate: sampleRate,
		volume:     1,
		sampleTap:  cfg.sampleTap,
	}, nil
}

// Play starts pulling from src. The player owns src from here on and closes
// it when playback is stopped or replaced.
func (p *Player) Play(src ChunkSource) error {
	wrapper := p.wrap(src)
	done := make(chan struct{})

	p.mu.Lock()
	// Signal any existing Wait() that the previous playback was replaced
	if p.done != nil {
		close(p.done)
	}
	p.done = done
	p.err = nil
	old := p.audio
	p.audio = nil
	volume := p.volume
	p.mu.Unlock()
	if old != nil {
		_ = old.Stop()
	}

	backend, err := intaudio.NewPlayer(p.sampleRate, wrapper, p.finisher(done, wrapper))
	if err != nil {
		src.Close()
		p.release(done, err)
		return err
	}
	backend.SetVolume(volume)

	p.mu.Lock()
	p.audio = backend
	p.mu.Unlock()
	backend.Play()
	return nil
}

func (p *Player) wrap(src ChunkSource) *tapSource {
	return &tapSource{
		src:       src,
		sampleTap: p.sampleTap,
		onChunk: func(frames int64) {
			p.sendEvent(PlaybackEvent{Kind: EventChunkPlayed, Frames: frames})
		},
	}
}

func (p *Player) sendEvent(ev PlaybackEvent) {
	p.eventChMu.Lock()
	ch := p.eventCh
	p.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Channel full; drop event
		}
	}
}

// finisher ends the playback that owns done. A callback from a source that
// has since been replaced or stopped finds its channel gone and does nothing.
func (p *Player) finisher(done chan struct{}, w *tapSource) func(error) {
	return func(err error) {
		if p.release(done, err) {
			p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded, Frames: w.frames.Load(), Err: err})
		}
	}
}

// release closes done if it still belongs to the current playback.
func (p *Player) release(done chan struct{}, err error) bool {
	p.mu.Lock()
	if p.done != done {
		p.mu.Unlock()
		return false
	}
	p.done = nil
	p.err = err
	p.mu.Unlock()
	close(done)
	return true
}

// Err reports why the last playback ended early, or nil when its source was
// drained cleanly. Check it after Wait returns.
func (p *Player) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil {
		p.audio.Pause()
	}
}

func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil {
		p.audio.Play()
	}
}

// Stop halts playback and closes the current source.
func (p *Player) Stop() error {
	p.mu.Lock()
	a := p.audio
	p.audio = nil
	done := p.done
	p.done = nil
	p.mu.Unlock()
	if a == nil {
		return nil
	}
	// The audio goroutine may be inside the source; stop it without holding p.mu.
	err := a.Stop()
	p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded})
	if done != nil {
		close(done)
	}
	return err
}

// Wait blocks until the current source is exhausted or playback is stopped.
// It returns immediately if nothing is playing.
func (p *Player) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Watch returns a channel that receives playback events. The channel is
// buffered (cap 8) and events are dropped when it is full, so use Wait and Err
// to learn when and how playback ended. Only the most recent Watch() channel
// receives events; call Watch before Play.
func (p *Player) Watch() <-chan PlaybackEvent {
	ch := make(chan PlaybackEvent, 8)
	p.eventChMu.Lock()
	p.eventCh = ch
	p.eventChMu.Unlock()
	return ch
}

// SetMasterVolume sets runtime volume scalar. 1.0 is default.
func (p *Player) SetMasterVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	if p.audio != nil {
		p.audio.SetVolume(volume)
	}
}

func (p *Player) MasterVolume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// PlaybackPosition returns the current output position of the audio driver in
// frames, i.e. what the listener actually hears right now. Returns 0 if not
// playing.
func (p *Player) PlaybackPosition() int64 {
	p.mu.Lock()
	a := p.audio
	p.mu.Unlock()
	if a == nil {
		return 0
	}
	pos := a.Position()
	return int64(pos.Seconds() * float64(p.sampleRate))
}
