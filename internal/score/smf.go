package score

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// largest value a variable-length quantity can hold
const maxSMFDelta = 0x0FFFFFFF

// ErrUnsupportedTimeFormat is returned for SMPTE-timed files.
var ErrUnsupportedTimeFormat = errors.New("unsupported SMF time format")

// Program is the channel every note is written to and the instrument it
// starts on.
type Program struct {
	Channel uint8
	Bank    int
	Preset  int
}

// WriteSMF writes the tracks as a type 1 Standard MIDI File at Resolution
// ticks per quarter and DefaultBPM, so an external synthesizer plays it on
// the same timeline the renderer uses. Each note track opens with a bank
// select and program change for prog.
func WriteSMF(w io.Writer, tracks []Track, prog Program) error {
	if prog.Channel > 15 {
		return errors.Errorf("channel %d out of range", prog.Channel)
	}
	if prog.Bank < 0 || prog.Bank > 127 || prog.Preset < 0 || prog.Preset > 127 {
		return errors.Errorf("program out of range: bank=%d preset=%d", prog.Bank, prog.Preset)
	}
	channel := prog.Channel
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(Resolution)

	var conductor smf.Track
	conductor.Add(0, smf.MetaMeter(4, 4))
	conductor.Add(0, smf.MetaTempo(DefaultBPM))
	conductor.Close(0)
	if err := sm.Add(conductor); err != nil {
		return errors.Wrap(err, "add tempo track")
	}

	for i, tr := range tracks {
		var out smf.Track
		if tr.Name != "" {
			out.Add(0, smf.MetaTrackSequenceName(tr.Name))
		}
		out.Add(0, midi.ControlChange(channel, 0, uint8(prog.Bank)))
		out.Add(0, midi.ProgramChange(channel, uint8(prog.Preset)))
		var pending int64
		for _, ev := range tr.Events {
			switch ev.Normalized() {
			case KindTimeAdvance:
				if ev.DeltaTicks < 0 {
					return errors.Errorf("track %d: negative delta %d", i, ev.DeltaTicks)
				}
				pending += ev.DeltaTicks
			case KindNoteOn:
				delta, err := smfDelta(pending)
				if err != nil {
					return errors.Wrapf(err, "track %d", i)
				}
				out.Add(delta, midi.NoteOn(channel, clamp7(ev.Pitch), clamp7(ev.Velocity)))
				pending = 0
			case KindNoteOff:
				delta, err := smfDelta(pending)
				if err != nil {
					return errors.Wrapf(err, "track %d", i)
				}
				out.Add(delta, midi.NoteOff(channel, clamp7(ev.Pitch)))
				pending = 0
			}
		}
		delta, err := smfDelta(pending)
		if err != nil {
			return errors.Wrapf(err, "track %d", i)
		}
		out.Close(delta)
		if err := sm.Add(out); err != nil {
			return errors.Wrapf(err, "add track %d", i)
		}
	}
	_, err := sm.WriteTo(w)
	return errors.Wrap(err, "write SMF")
}

// WriteSMFFile is WriteSMF to a file path.
func WriteSMFFile(path string, tracks []Track, prog Program) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSMF(f, tracks, prog); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadSMF converts every track of a Standard MIDI File into delta-timed
// events rescaled to Resolution. Rescaling works on absolute positions so
// rounding never accumulates. Tempo changes are not applied; the file is
// placed on the DefaultBPM timeline.
func ReadSMF(r io.Reader) ([]Track, error) {
	sm, err := smf.ReadFrom(r)
	if err != nil {
		return nil, errors.Wrap(err, "read SMF")
	}
	mt, ok := sm.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, ErrUnsupportedTimeFormat
	}
	res := int64(mt.Resolution())
	if res <= 0 {
		return nil, ErrUnsupportedTimeFormat
	}
	tracks := make([]Track, 0, len(sm.Tracks))
	for _, in := range sm.Tracks {
		var out Track
		var abs, emitted int64
		for _, ev := range in {
			abs += int64(ev.Delta)
			if scaled := abs * Resolution / res; scaled > emitted {
				out.Events = append(out.Events, Advance(scaled-emitted))
				emitted = scaled
			}
			msg := midi.Message(ev.Message)
			var ch, key, vel uint8
			switch {
			case msg.GetNoteStart(&ch, &key, &vel):
				out.Events = append(out.Events, NoteOn(int(key), int(vel)))
			case msg.GetNoteEnd(&ch, &key):
				out.Events = append(out.Events, NoteOff(int(key)))
			default:
				out.Events = append(out.Events, Other(msg.String()))
			}
		}
		tracks = append(tracks, out)
	}
	return tracks, nil
}

// ReadSMFFile is ReadSMF from a file path.
func ReadSMFFile(path string) ([]Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSMF(f)
}

func smfDelta(ticks int64) (uint32, error) {
	if ticks < 0 || ticks > maxSMFDelta {
		return 0, errors.Errorf("delta %d out of SMF range", ticks)
	}
	return uint32(ticks), nil
}

func clamp7(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 127 {
		return 127
	}
	return uint8(v)
}
