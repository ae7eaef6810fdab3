package trackwave

import (
	"io"

	intrender "github.com/cbegin/trackwave-go/internal/render"
	intscore "github.com/cbegin/trackwave-go/internal/score"
)

type (
	Track   = intscore.Track
	Event   = intscore.Event
	Builder = intscore.Builder
	Engine  = intrender.Engine
	Step    = intrender.Step
	Stats   = intrender.Stats
)

var (
	ErrInvalidTiming  = intrender.ErrInvalidTiming
	ErrClockInvariant = intrender.ErrClockInvariant
)

func NoteOn(pitch, velocity int) Event { return intscore.NoteOn(pitch, velocity) }
func NoteOff(pitch int) Event          { return intscore.NoteOff(pitch) }
func Advance(ticks int64) Event        { return intscore.Advance(ticks) }

func NewTrack(name string, events ...Event) Track {
	return intscore.NewTrack(name, events...)
}

// NewBuilder starts a track written in quarter notes rather than raw ticks.
func NewBuilder(name string) *Builder { return intscore.NewBuilder(name) }

// ReadMIDIFile imports a Standard MIDI File, one track per MTrk chunk.
func ReadMIDIFile(path string) ([]Track, error) { return intscore.ReadSMFFile(path) }

// ChunkSource is a finite, single-pass sequence of mono chunks. Next returns
// io.EOF once the audio is exhausted. Close may be called at any point.
type ChunkSource interface {
	Next() ([]float32, error)
	io.Closer
}
