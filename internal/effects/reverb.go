package effects

// Comb and allpass lengths in samples at 44.1 kHz. Other rates scale them so
// the decay sounds the same regardless of the output rate.
var (
	combTuning    = [4]int{1116, 1188, 1277, 1356}
	allpassTuning = [2]int{556, 441}
)

const tuningRate = 44100

// Reverb feeds four damped combs in parallel into two allpasses in series.
type Reverb struct {
	combs   [4]combFilter
	allpass [2]allpassFilter
	wet     float32
}

type combFilter struct {
	buf   []float32
	pos   int
	fb    float32
	damp  float32
	store float32 // one-pole lowpass state in the feedback path
}

type allpassFilter struct {
	buf []float32
	pos int
}

// NewReverb builds a reverb. roomSize (0..1) stretches the comb lengths,
// feedback (0..0.95) sets the decay, damp (0..1) darkens the tail and wet is
// the mix.
func NewReverb(sampleRate int, roomSize, feedback, wet, damp float32) *Reverb {
	scale := float64(sampleRate) / tuningRate * (0.5 + float64(clamp(roomSize, 0, 1)))
	r := &Reverb{wet: clamp(wet, 0, 1)}
	for i, n := range combTuning {
		r.combs[i] = combFilter{
			buf:  make([]float32, scaledLen(n, scale)),
			fb:   clamp(feedback, 0, 0.95),
			damp: clamp(damp, 0, 1),
		}
	}
	rateScale := float64(sampleRate) / tuningRate
	for i, n := range allpassTuning {
		r.allpass[i] = allpassFilter{buf: make([]float32, scaledLen(n, rateScale))}
	}
	return r
}

func scaledLen(n int, scale float64) int {
	if l := int(float64(n)*scale + 0.5); l > 1 {
		return l
	}
	return 1
}

func (r *Reverb) Process(x float32) float32 {
	var out float32
	for i := range r.combs {
		out += r.combs[i].process(x)
	}
	out *= 0.25
	for i := range r.allpass {
		out = r.allpass[i].process(out)
	}
	return x*(1-r.wet) + out*r.wet
}

func (r *Reverb) Reset() {
	for i := range r.combs {
		clear(r.combs[i].buf)
		r.combs[i].pos = 0
		r.combs[i].store = 0
	}
	for i := range r.allpass {
		clear(r.allpass[i].buf)
		r.allpass[i].pos = 0
	}
}

func (c *combFilter) process(in float32) float32 {
	out := c.buf[c.pos]
	c.store = out*(1-c.damp) + c.store*c.damp
	c.buf[c.pos] = in + c.store*c.fb
	c.pos = (c.pos + 1) % len(c.buf)
	return out
}

func (a *allpassFilter) process(in float32) float32 {
	delayed := a.buf[a.pos]
	a.buf[a.pos] = in + delayed*0.5
	a.pos = (a.pos + 1) % len(a.buf)
	return delayed - in
}
