package synth

import "math"

const (
	LFOTriangle = iota
	LFOSine
	LFOSquare
	LFOSaw
)

// lfo is a low-frequency oscillator shared by every voice of an engine.
// Sample returns values in [-depth, +depth].
type lfo struct {
	depth    float64
	rateHz   float64
	waveform int
	phase    float64 // [0, 1)
}

func (l *lfo) set(depth, rateHz float64, waveform int) {
	if waveform < LFOTriangle || waveform > LFOSaw {
		waveform = LFOTriangle
	}
	l.depth, l.rateHz, l.waveform = depth, rateHz, waveform
}

func (l *lfo) active() bool { return l.depth != 0 && l.rateHz > 0 }

func (l *lfo) sample(sampleRate float64) float64 {
	if !l.active() || sampleRate <= 0 {
		return 0
	}
	var v float64
	switch l.waveform {
	case LFOSine:
		v = math.Sin(twoPi * l.phase)
	case LFOSquare:
		v = 1
		if l.phase >= 0.5 {
			v = -1
		}
	case LFOSaw:
		v = 1 - 2*l.phase
	default:
		if l.phase < 0.5 {
			v = 4*l.phase - 1
		} else {
			v = 3 - 4*l.phase
		}
	}
	l.phase += l.rateHz / sampleRate
	l.phase -= math.Floor(l.phase)
	return v * l.depth
}
