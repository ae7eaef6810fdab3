package score

// Resolution is the tick granularity of a quarter note in the symbolic timeline.
const Resolution = 10080

// DefaultBPM is the tempo implied by the tick-to-sample constant.
const DefaultBPM = 120

type Kind int

const (
	KindOther Kind = iota
	KindNoteOn
	KindNoteOff
	KindTimeAdvance
)

func (k Kind) String() string {
	switch k {
	case KindNoteOn:
		return "note-on"
	case KindNoteOff:
		return "note-off"
	case KindTimeAdvance:
		return "advance"
	default:
		return "other"
	}
}

// Event is one entry of a track. Pitch and Velocity are read only for note
// events, DeltaTicks only for time advances.
type Event struct {
	Kind       Kind
	Pitch      int
	Velocity   int
	DeltaTicks int64
	Label      string
}

func NoteOn(pitch, velocity int) Event {
	return Event{Kind: KindNoteOn, Pitch: pitch, Velocity: velocity}
}

func NoteOff(pitch int) Event {
	return Event{Kind: KindNoteOff, Pitch: pitch}
}

func Advance(ticks int64) Event {
	return Event{Kind: KindTimeAdvance, DeltaTicks: ticks}
}

// Other builds an event the renderer skips, such as a meta or controller message.
func Other(label string) Event {
	return Event{Kind: KindOther, Label: label}
}

// Normalized maps unknown kinds onto KindOther.
func (e Event) Normalized() Kind {
	switch e.Kind {
	case KindNoteOn, KindNoteOff, KindTimeAdvance:
		return e.Kind
	default:
		return KindOther
	}
}

type Track struct {
	Name   string
	Events []Event
}

func NewTrack(name string, events ...Event) Track {
	return Track{Name: name, Events: events}
}

// DurationTicks sums every time advance in the track.
func (t Track) DurationTicks() int64 {
	var total int64
	for _, ev := range t.Events {
		if ev.Normalized() == KindTimeAdvance {
			total += ev.DeltaTicks
		}
	}
	return total
}

// NoteCount returns the number of note-on events.
func (t Track) NoteCount() int {
	n := 0
	for _, ev := range t.Events {
		if ev.Normalized() == KindNoteOn {
			n++
		}
	}
	return n
}
