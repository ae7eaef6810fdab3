package effects

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Effector processes mono audio one sample at a time.
type Effector interface {
	Process(x float32) float32
	Reset()
}

// Chain applies a sequence of effects in order.
type Chain struct {
	effects []Effector
}

func NewChain(effects ...Effector) *Chain {
	return &Chain{effects: effects}
}

func (c *Chain) Process(x float32) float32 {
	for _, e := range c.effects {
		x = e.Process(x)
	}
	return x
}

// ProcessBuffer runs the chain over buf in place.
func (c *Chain) ProcessBuffer(buf []float32) {
	if c == nil || len(c.effects) == 0 {
		return
	}
	for i, s := range buf {
		buf[i] = c.Process(s)
	}
}

func (c *Chain) Reset() {
	for _, e := range c.effects {
		e.Reset()
	}
}

func (c *Chain) Add(e Effector) {
	c.effects = append(c.effects, e)
}

func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.effects)
}

// Parse builds a chain from a description such as
// "compressor:-18,3;reverb:0.6,0.7,0.2;delay". Each entry names an effect
// and optionally lists its parameters; missing ones take defaults.
func Parse(desc string, sampleRate int) (*Chain, error) {
	chain := NewChain()
	for _, entry := range strings.Split(desc, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, rawParams, _ := strings.Cut(entry, ":")
		var params []float64
		if strings.TrimSpace(rawParams) != "" {
			for _, p := range strings.Split(rawParams, ",") {
				v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
				if err != nil {
					return nil, errors.Wrapf(err, "effect %q", name)
				}
				params = append(params, v)
			}
		}
		eff := create(strings.ToLower(strings.TrimSpace(name)), params, sampleRate)
		if eff == nil {
			return nil, errors.Errorf("unknown effect %q", name)
		}
		chain.Add(eff)
	}
	return chain, nil
}

func create(name string, params []float64, sampleRate int) Effector {
	param := func(idx int, def float64) float64 {
		if idx < len(params) {
			return params[idx]
		}
		return def
	}
	switch name {
	case "comp", "compressor":
		return NewCompressor(sampleRate,
			float32(param(0, -20)), // threshold dB
			float32(param(1, 4)),   // ratio
			float32(param(2, 5)),   // attack ms
			float32(param(3, 100)), // release ms
			float32(param(4, 0)),   // makeup dB
		)
	case "reverb":
		return NewReverb(sampleRate,
			float32(param(0, 0.5)),  // room size
			float32(param(1, 0.7)),  // feedback
			float32(param(2, 0.25)), // wet
			float32(param(3, 0.3)),  // damping
		)
	case "delay":
		return NewDelay(sampleRate,
			param(0, 250),          // delay ms
			float32(param(1, 0.4)), // feedback
			float32(param(2, 0.3)), // wet
		)
	}
	return nil
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
