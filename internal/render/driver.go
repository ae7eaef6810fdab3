package render

import (
	"io"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/cbegin/trackwave-go/internal/score"
)

// Engine is a stateful polyphonic synthesizer. Render returns exactly frames
// mono samples and advances the engine's internal time by that much.
type Engine interface {
	SelectProgram(channel, bank, preset int) error
	NoteOn(channel, pitch, velocity int)
	NoteOff(channel, pitch int)
	Render(frames int) []float32
	AllNotesOff(channel int)
	AllSoundsOff(channel int)
}

const DefaultSampleRate = 44100

// DefaultChunkSeconds bounds a single streamed render request.
const DefaultChunkSeconds = 5.0

type Config struct {
	SampleRate int
	Channel    int
	Bank       int
	Preset     int
	// ChunkFrames caps one engine render request in streaming mode
	// (0 = one request per gap).
	ChunkFrames int
	Logger      *slog.Logger
	// Observer, when set, sees every applied event with the gap rendered before it.
	Observer func(Step)
}

func DefaultConfig() Config {
	return Config{
		SampleRate:  DefaultSampleRate,
		ChunkFrames: int(DefaultChunkSeconds * DefaultSampleRate),
	}
}

// TailFrames is the ring-out window rendered after the last event.
func (c Config) TailFrames() int64 {
	return int64(c.SampleRate / 2)
}

// Step describes one applied event.
type Step struct {
	Timed
	Gap   int64
	Clock int64
}

type Stats struct {
	Events int
	Gaps   int
	Frames int64
}

type phase int

const (
	phaseStart phase = iota
	phaseEvents
	phaseTail
	phaseDone
)

// Driver turns the merged event stream into engine calls. Each call to next
// yields the audio for the next gap (or part of it) and applies the events
// that fall due once that audio exists.
type Driver struct {
	cfg     Config
	engine  Engine
	merger  *Merger
	logger  *slog.Logger
	phase   phase
	clock   int64
	owed    int64
	pending *Step
	stats   Stats
	err     error
}

func NewDriver(tracks []score.Track, engine Engine, cfg Config) *Driver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Driver{
		cfg:    cfg,
		engine: engine,
		merger: NewMerger(tracks, cfg.SampleRate),
		logger: logger,
	}
}

// Clock is the number of samples requested from the engine for events so
// far, excluding the tail.
func (d *Driver) Clock() int64 { return d.clock }

func (d *Driver) Stats() Stats { return d.stats }

// next renders at most limit frames (0 = no limit) and returns them, or
// io.EOF once the tail has been rendered.
func (d *Driver) next(limit int64) ([]float32, error) {
	if d.err != nil {
		return nil, d.err
	}
	for {
		if d.owed > 0 {
			n := d.owed
			if limit > 0 && n > limit {
				n = limit
			}
			buf := d.engine.Render(int(n))
			d.owed -= n
			d.stats.Frames += n
			if d.phase == phaseEvents {
				d.clock += n
			}
			return buf, nil
		}
		switch d.phase {
		case phaseStart:
			if d.cfg.SampleRate <= 0 {
				return d.fail(errors.Wrapf(ErrInvalidTiming, "sample rate %d", d.cfg.SampleRate))
			}
			if err := d.engine.SelectProgram(d.cfg.Channel, d.cfg.Bank, d.cfg.Preset); err != nil {
				return d.fail(errors.Wrapf(err, "select program bank=%d preset=%d", d.cfg.Bank, d.cfg.Preset))
			}
			d.phase = phaseEvents
		case phaseEvents:
			if d.pending != nil {
				d.apply(*d.pending)
				d.pending = nil
				continue
			}
			tm, ok, err := d.merger.Next()
			if err != nil {
				return d.fail(err)
			}
			if !ok {
				d.engine.AllNotesOff(d.cfg.Channel)
				d.owed = d.cfg.TailFrames()
				d.phase = phaseTail
				continue
			}
			gap := tm.Time - d.clock
			if gap < 0 {
				return d.fail(errors.Wrapf(ErrClockInvariant, "track %d event at %d, clock at %d", tm.Track, tm.Time, d.clock))
			}
			if gap > 0 {
				d.stats.Gaps++
			}
			d.owed = gap
			d.pending = &Step{Timed: tm, Gap: gap}
		case phaseTail:
			d.engine.AllSoundsOff(d.cfg.Channel)
			d.phase = phaseDone
			d.logger.Debug("render finished",
				"events", d.stats.Events,
				"gaps", d.stats.Gaps,
				"frames", d.stats.Frames,
				"sampleRate", d.cfg.SampleRate,
			)
		case phaseDone:
			return nil, io.EOF
		}
	}
}

func (d *Driver) apply(s Step) {
	s.Clock = d.clock
	d.stats.Events++
	switch s.Event.Normalized() {
	case score.KindNoteOn:
		d.engine.NoteOn(d.cfg.Channel, s.Event.Pitch, s.Event.Velocity)
	case score.KindNoteOff:
		d.engine.NoteOff(d.cfg.Channel, s.Event.Pitch)
	}
	if d.cfg.Observer != nil {
		d.cfg.Observer(s)
	}
}

func (d *Driver) fail(err error) ([]float32, error) {
	d.err = err
	d.phase = phaseDone
	d.logger.Error("render aborted", "err", err, "clock", d.clock)
	return nil, err
}

// stop silences the engine when a consumer abandons the render early.
func (d *Driver) stop() {
	if d.phase == phaseDone {
		return
	}
	if d.phase != phaseStart {
		d.engine.AllSoundsOff(d.cfg.Channel)
	}
	d.phase = phaseDone
	d.owed = 0
	d.pending = nil
}
