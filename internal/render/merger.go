package render

import (
	"github.com/pkg/errors"

	"github.com/cbegin/trackwave-go/internal/score"
)

// Timed is an event placed on the global sample timeline.
type Timed struct {
	Event score.Event
	Time  int64
	Track int
}

type cursor struct {
	next  int
	ticks int64 // absolute tick position reached
	time  int64 // ticks converted to samples
}

func (c *cursor) advance(delta int64, sampleRate int) error {
	if delta < 0 {
		return errors.Wrapf(ErrInvalidTiming, "negative delta %d", delta)
	}
	ticks := c.ticks + delta
	if ticks < c.ticks {
		return errors.Wrapf(ErrInvalidTiming, "tick position overflow after delta %d", delta)
	}
	t, err := TicksToSamples(ticks, sampleRate)
	if err != nil {
		return err
	}
	c.ticks = ticks
	c.time = t
	return nil
}

// Merger interleaves tracks into one chronological stream. Time advances are
// consumed silently; the next emitted event always belongs to the pending
// track with the smallest time, the lowest track index winning ties.
type Merger struct {
	tracks     []score.Track
	cursors    []cursor
	sampleRate int
}

func NewMerger(tracks []score.Track, sampleRate int) *Merger {
	return &Merger{
		tracks:     tracks,
		cursors:    make([]cursor, len(tracks)),
		sampleRate: sampleRate,
	}
}

// Next returns the next event, or false once every track is exhausted.
func (m *Merger) Next() (Timed, bool, error) {
	if m.sampleRate <= 0 {
		return Timed{}, false, errors.Wrapf(ErrInvalidTiming, "sample rate %d", m.sampleRate)
	}
	// Each pass consumes one event, so this ends after at most len(events) passes.
	for {
		i := m.earliest()
		if i < 0 {
			return Timed{}, false, nil
		}
		c := &m.cursors[i]
		ev := m.tracks[i].Events[c.next]
		c.next++
		if ev.Normalized() == score.KindTimeAdvance {
			if err := c.advance(ev.DeltaTicks, m.sampleRate); err != nil {
				return Timed{}, false, errors.Wrapf(err, "track %d event %d", i, c.next-1)
			}
			continue
		}
		return Timed{Event: ev, Time: c.time, Track: i}, true, nil
	}
}

// earliest is a full argmin over the pending tracks: it returns the track
// with the smallest cursor time, the lowest index winning ties, or -1 once
// every track is exhausted. Exhausted tracks never end the scan early.
func (m *Merger) earliest() int {
	best := -1
	for i := range m.cursors {
		if m.exhausted(i) {
			continue
		}
		if best < 0 || m.cursors[i].time < m.cursors[best].time {
			best = i
		}
	}
	return best
}

func (m *Merger) exhausted(i int) bool {
	return m.cursors[i].next >= len(m.tracks[i].Events)
}
