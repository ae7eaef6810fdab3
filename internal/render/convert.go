package render

import (
	"math"

	"github.com/pkg/errors"

	"github.com/cbegin/trackwave-go/internal/score"
)

// TicksPerUnit is the number of ticks rendered as one second of audio:
// two quarter notes at score.Resolution, i.e. 120 BPM.
const TicksPerUnit = score.Resolution * 2

var (
	ErrInvalidTiming  = errors.New("invalid timing")
	ErrClockInvariant = errors.New("clock went backwards")
)

// TicksToSamples returns floor(ticks / TicksPerUnit * sampleRate) using exact
// integer arithmetic.
func TicksToSamples(ticks int64, sampleRate int) (int64, error) {
	if sampleRate <= 0 {
		return 0, errors.Wrapf(ErrInvalidTiming, "sample rate %d", sampleRate)
	}
	if ticks < 0 {
		return 0, errors.Wrapf(ErrInvalidTiming, "negative tick count %d", ticks)
	}
	sr := int64(sampleRate)
	if ticks > math.MaxInt64/sr {
		return 0, errors.Wrapf(ErrInvalidTiming, "tick count %d overflows at %d Hz", ticks, sampleRate)
	}
	return ticks * sr / TicksPerUnit, nil
}
