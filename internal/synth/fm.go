package synth

import (
	"math"
)

const twoPi = math.Pi * 2

type FMParams struct {
	Polyphony   int
	CarrierMul  float64
	ModMul      float64
	ModIndex    float64
	AttackSec   float64
	DecaySec    float64
	SustainLvl  float64
	ReleaseSec  float64
	MasterGain  float64
	VelocityAmp float64
	LPFCutoff   float64 // lowpass filter cutoff in Hz (0 = disabled)

	// Vibrato depth in semitones; 0 disables it.
	VibratoDepth float64
	VibratoRate  float64
	VibratoWave  int
}

func DefaultFMParams() FMParams {
	return FMParams{
		Polyphony:   32,
		CarrierMul:  1.0,
		ModMul:      2.0,
		ModIndex:    1.6,
		AttackSec:   0.005,
		DecaySec:    0.12,
		SustainLvl:  0.75,
		ReleaseSec:  0.2,
		MasterGain:  0.45,
		VelocityAmp: 0.8,
		LPFCutoff:   12000,
	}
}

// FM is a two-operator FM synthesizer that needs no instrument bank. The
// preset picks the carrier waveform; the bank is ignored.
type FM struct {
	sampleRate float64
	params     FMParams
	voices     []fmVoice
	waveform   [16]int
	lpf        float64
	lpfAlpha   float64
	noise      uint32
	vibrato    lfo
}

type envState int

const (
	envAttack envState = iota
	envDecay
	envSustain
	envRelease
	envOff
)

type operator struct {
	phase    float64
	env      float64
	envState envState
	mul      float64
	tl       float64
}

type fmVoice struct {
	active   bool
	channel  int
	note     int
	velocity float64
	freq     float64
	waveform int
	ops      [2]operator
	age      uint64
}

func NewFM(sampleRate int, params FMParams) *FM {
	if params.Polyphony <= 0 {
		params.Polyphony = 32
	}
	e := &FM{
		sampleRate: float64(sampleRate),
		params:     params,
		voices:     make([]fmVoice, params.Polyphony),
		noise:      0x7FFF,
	}
	if params.LPFCutoff > 0 && params.LPFCutoff < float64(sampleRate)/2 {
		rc := 1.0 / (twoPi * params.LPFCutoff)
		dt := 1.0 / float64(sampleRate)
		e.lpfAlpha = dt / (rc + dt)
	}
	e.vibrato.set(params.VibratoDepth, params.VibratoRate, params.VibratoWave)
	return e
}

func (e *FM) SelectProgram(channel, bank, preset int) error {
	if channel < 0 || channel >= len(e.waveform) {
		return errChannel(channel)
	}
	e.waveform[channel] = preset % 8
	return nil
}

func (e *FM) NoteOn(channel, pitch, velocity int) {
	if channel < 0 || channel >= len(e.waveform) {
		return
	}
	if velocity <= 0 {
		e.NoteOff(channel, pitch)
		return
	}
	slot := e.stealVoice()
	var age uint64
	for i := range e.voices {
		if e.voices[i].age > age {
			age = e.voices[i].age
		}
	}
	e.voices[slot] = fmVoice{
		active:   true,
		channel:  channel,
		note:     pitch,
		velocity: clamp(float64(velocity)/127.0, 0, 1),
		freq:     midiToFreq(pitch),
		waveform: e.waveform[channel],
		age:      age + 1,
		ops: [2]operator{
			{envState: envAttack, mul: e.params.CarrierMul, tl: 1.0},
			{envState: envAttack, mul: e.params.ModMul, tl: e.params.ModIndex / 8.0},
		},
	}
}

func (e *FM) NoteOff(channel, pitch int) {
	for i := range e.voices {
		v := &e.voices[i]
		if v.active && v.channel == channel && v.note == pitch {
			v.release()
		}
	}
}

func (e *FM) AllNotesOff(channel int) {
	for i := range e.voices {
		if e.voices[i].active && e.voices[i].channel == channel {
			e.voices[i].release()
		}
	}
}

func (e *FM) AllSoundsOff(channel int) {
	for i := range e.voices {
		if e.voices[i].channel == channel {
			e.voices[i].active = false
		}
	}
}

func (e *FM) Render(frames int) []float32 {
	out := make([]float32, frames)
	for i := range out {
		out[i] = e.renderFrame()
	}
	return out
}

func (e *FM) ActiveVoiceCount() int {
	n := 0
	for i := range e.voices {
		if e.voices[i].active {
			n++
		}
	}
	return n
}

func (v *fmVoice) release() {
	for oi := range v.ops {
		if v.ops[oi].envState != envOff {
			v.ops[oi].envState = envRelease
		}
	}
}

func (e *FM) renderFrame() float32 {
	var sig float64
	bend := 1.0
	if e.vibrato.active() {
		bend = math.Pow(2, e.vibrato.sample(e.sampleRate)/12)
	}
	for i := range e.voices {
		v := &e.voices[i]
		if !v.active {
			continue
		}
		allOff := true
		for oi := range v.ops {
			advanceOpEnv(&v.ops[oi], e.params, e.sampleRate)
			if v.ops[oi].envState != envOff {
				allOff = false
			}
		}
		if allOff {
			v.active = false
			continue
		}
		// op1 modulates op0
		mod := math.Sin(v.ops[1].phase) * v.ops[1].env * v.ops[1].tl * e.params.ModIndex
		s := e.waveformSample(v.ops[0].phase+mod, v.waveform) * v.ops[0].env * v.ops[0].tl
		sig += s * e.params.MasterGain * (0.2 + v.velocity*e.params.VelocityAmp)
		for oi := range v.ops {
			op := &v.ops[oi]
			op.phase += twoPi * (v.freq * bend * op.mul) / e.sampleRate
			if op.phase > twoPi {
				op.phase -= twoPi
			}
		}
	}
	if e.lpfAlpha > 0 {
		e.lpf += e.lpfAlpha * (sig - e.lpf)
		sig = e.lpf
	}
	return float32(clamp(sig, -1, 1))
}

func (e *FM) stealVoice() int {
	for i := range e.voices {
		if !e.voices[i].active {
			return i
		}
	}
	// steal the oldest voice
	oldest := 0
	for i := 1; i < len(e.voices); i++ {
		if e.voices[i].age < e.voices[oldest].age {
			oldest = i
		}
	}
	return oldest
}

func advanceOpEnv(op *operator, p FMParams, sampleRate float64) {
	switch op.envState {
	case envAttack:
		step := 1.0 / (p.AttackSec * sampleRate)
		if step <= 0 || math.IsInf(step, 0) {
			step = 1
		}
		op.env += step
		if op.env >= 1 {
			op.env = 1
			op.envState = envDecay
		}
	case envDecay:
		step := (1 - p.SustainLvl) / (p.DecaySec * sampleRate)
		if step <= 0 || math.IsInf(step, 0) {
			step = 1
		}
		op.env -= step
		if op.env <= p.SustainLvl {
			op.env = p.SustainLvl
			op.envState = envSustain
		}
	case envSustain:
	case envRelease:
		step := math.Max(p.SustainLvl, 0.01) / (p.ReleaseSec * sampleRate)
		if step <= 0 || math.IsInf(step, 0) {
			step = 1
		}
		op.env -= step
		if op.env <= 0.0001 {
			op.env = 0
			op.envState = envOff
		}
	case envOff:
		op.env = 0
	}
}

func (e *FM) waveformSample(phase float64, waveform int) float64 {
	switch waveform {
	case 1: // saw
		return 1.0 - 2.0*math.Mod(phase, twoPi)/twoPi
	case 2: // triangle
		return 2.0*math.Abs(2.0*math.Mod(phase, twoPi)/twoPi-1.0) - 1.0
	case 3: // square
		if math.Mod(phase, twoPi) < math.Pi {
			return 1.0
		}
		return -1.0
	case 4: // pulse 25%
		if math.Mod(phase, twoPi) < math.Pi/2 {
			return 1.0
		}
		return -1.0
	case 5: // pulse 12.5%
		if math.Mod(phase, twoPi) < math.Pi/4 {
			return 1.0
		}
		return -1.0
	case 6: // half-rectified sine
		s := math.Sin(phase)
		if s > 0 {
			return s
		}
		return 0
	case 7: // noise
		e.noise = (e.noise >> 1) ^ (-(e.noise & 1) & 0xB400)
		return float64(e.noise)/float64(0x7FFF)*2.0 - 1.0
	default: // 0 = sine
		return math.Sin(phase)
	}
}

func midiToFreq(note int) float64 {
	return 440 * math.Pow(2, float64(note-69)/12)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
