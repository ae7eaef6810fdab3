package synth

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sinshu/go-meltysynth/meltysynth"
)

var ErrNoSoundFont = errors.New("no soundfont")

func errChannel(channel int) error {
	return errors.Errorf("channel %d out of range", channel)
}

const (
	midiControlChange = 0xB0
	midiProgramChange = 0xC0
	ccBankSelect      = 0x00
	ccAllSoundOff     = 0x78
	ccAllNotesOff     = 0x7B
)

// synthesizer is the part of *meltysynth.Synthesizer the engine drives.
type synthesizer interface {
	ProcessMidiMessage(channel, command, data1, data2 int32)
	NoteOn(channel, key, velocity int32)
	NoteOff(channel, key int32)
	Render(left, right []float32)
	Reset()
}

var _ synthesizer = (*meltysynth.Synthesizer)(nil)

// SoundFont renders through a MeltySynth synthesizer loaded with an SF2 bank.
// Output is the mean of the synthesizer's left and right buses.
type SoundFont struct {
	synth  synthesizer
	left   []float32
	right  []float32
	closed bool
}

// OpenSoundFont loads an .sf2 file and builds a synthesizer for it.
func OpenSoundFont(path string, sampleRate int) (*SoundFont, error) {
	if path == "" {
		return nil, ErrNoSoundFont
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(ErrNoSoundFont, "open %s: %v", path, err)
	}
	defer f.Close()
	s, err := NewSoundFont(bufio.NewReader(f), sampleRate)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return s, nil
}

func NewSoundFont(r io.Reader, sampleRate int) (*SoundFont, error) {
	if sampleRate <= 0 {
		return nil, errors.Errorf("sample rate %d", sampleRate)
	}
	sf, err := meltysynth.NewSoundFont(r)
	if err != nil {
		return nil, errors.Wrap(ErrNoSoundFont, err.Error())
	}
	settings := meltysynth.NewSynthesizerSettings(int32(sampleRate))
	synth, err := meltysynth.NewSynthesizer(sf, settings)
	if err != nil {
		return nil, errors.Wrap(err, "create synthesizer")
	}
	return &SoundFont{synth: synth}, nil
}

func (s *SoundFont) SelectProgram(channel, bank, preset int) error {
	if s.closed {
		return errors.New("soundfont engine closed")
	}
	if channel < 0 || channel > 15 {
		return errChannel(channel)
	}
	if bank < 0 || bank > 127 || preset < 0 || preset > 127 {
		return errors.Errorf("program out of range: bank=%d preset=%d", bank, preset)
	}
	s.synth.ProcessMidiMessage(int32(channel), midiControlChange, ccBankSelect, int32(bank))
	s.synth.ProcessMidiMessage(int32(channel), midiProgramChange, int32(preset), 0)
	return nil
}

func (s *SoundFont) NoteOn(channel, pitch, velocity int) {
	s.synth.NoteOn(int32(channel), int32(pitch), int32(velocity))
}

func (s *SoundFont) NoteOff(channel, pitch int) {
	s.synth.NoteOff(int32(channel), int32(pitch))
}

func (s *SoundFont) Render(frames int) []float32 {
	if cap(s.left) < frames {
		s.left = make([]float32, frames)
		s.right = make([]float32, frames)
	}
	left, right := s.left[:frames], s.right[:frames]
	s.synth.Render(left, right)
	out := make([]float32, frames)
	for i := range out {
		out[i] = (left[i] + right[i]) * 0.5
	}
	return out
}

func (s *SoundFont) AllNotesOff(channel int) {
	s.synth.ProcessMidiMessage(int32(channel), midiControlChange, ccAllNotesOff, 0)
}

func (s *SoundFont) AllSoundsOff(channel int) {
	s.synth.ProcessMidiMessage(int32(channel), midiControlChange, ccAllSoundOff, 0)
}

// Close cuts every voice and drops the scratch buffers. The engine cannot be
// used afterwards.
func (s *SoundFont) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.synth.Reset()
	s.left, s.right = nil, nil
	return nil
}
