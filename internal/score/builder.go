package score

import (
	"sort"

	"github.com/pkg/errors"
)

// ErrInvalidNote is returned for notes with a negative start or length or an
// out of range pitch or velocity.
var ErrInvalidNote = errors.New("invalid note")

// Note is a sounding pitch placed on the tick timeline.
type Note struct {
	Pitch    int
	Velocity int
	Start    int64 // ticks
	Length   int64 // ticks
}

// Builder collects notes for one track and flattens them into the
// delta-timed event form the renderer consumes.
type Builder struct {
	name  string
	notes []Note
	extra []placed
	err   error
}

type placed struct {
	tick int64
	ev   Event
}

func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// Add places a note. Lengths are in quarter notes; Start is taken from the
// current end of the track so consecutive calls form a melody.
func (b *Builder) Add(pitch, velocity int, quarters float64) *Builder {
	start := b.end()
	return b.AddAt(pitch, velocity, start, QuartersToTicks(quarters))
}

// Rest advances the melody position without sounding anything.
func (b *Builder) Rest(quarters float64) *Builder {
	b.extra = append(b.extra, placed{tick: b.end() + QuartersToTicks(quarters), ev: Other("rest")})
	return b
}

// AddAt places a note at an absolute tick.
func (b *Builder) AddAt(pitch, velocity int, start, length int64) *Builder {
	if b.err != nil {
		return b
	}
	if start < 0 || length < 0 || pitch < 0 || pitch > 127 || velocity < 0 || velocity > 127 {
		b.err = errors.Wrapf(ErrInvalidNote, "pitch=%d velocity=%d start=%d length=%d", pitch, velocity, start, length)
		return b
	}
	b.notes = append(b.notes, Note{Pitch: pitch, Velocity: velocity, Start: start, Length: length})
	return b
}

// Chord places several pitches starting together.
func (b *Builder) Chord(pitches []int, velocity int, quarters float64) *Builder {
	start := b.end()
	for _, p := range pitches {
		b.AddAt(p, velocity, start, QuartersToTicks(quarters))
	}
	return b
}

func (b *Builder) end() int64 {
	var end int64
	for _, n := range b.notes {
		if e := n.Start + n.Length; e > end {
			end = e
		}
	}
	for _, p := range b.extra {
		if p.tick > end {
			end = p.tick
		}
	}
	return end
}

// Build returns the track. At equal ticks note-offs precede note-ons so a
// repeated pitch is released before it is struck again.
func (b *Builder) Build() (Track, error) {
	if b.err != nil {
		return Track{}, b.err
	}
	var items []placed
	for _, n := range b.notes {
		items = append(items,
			placed{tick: n.Start, ev: NoteOn(n.Pitch, n.Velocity)},
			placed{tick: n.Start + n.Length, ev: NoteOff(n.Pitch)},
		)
	}
	items = append(items, b.extra...)
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].tick != items[j].tick {
			return items[i].tick < items[j].tick
		}
		return orderAtTick(items[i].ev.Kind) < orderAtTick(items[j].ev.Kind)
	})
	track := Track{Name: b.name}
	var at int64
	for _, it := range items {
		if d := it.tick - at; d > 0 {
			track.Events = append(track.Events, Advance(d))
			at = it.tick
		}
		track.Events = append(track.Events, it.ev)
	}
	return track, nil
}

func orderAtTick(k Kind) int {
	switch k {
	case KindNoteOff:
		return 0
	case KindNoteOn:
		return 2
	default:
		return 1
	}
}

// QuartersToTicks converts a length in quarter notes to ticks, rounding to
// the nearest tick.
func QuartersToTicks(quarters float64) int64 {
	if quarters <= 0 {
		return 0
	}
	return int64(quarters*Resolution + 0.5)
}
