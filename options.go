package trackwave

import (
	"log/slog"

	"github.com/pkg/errors"

	intfx "github.com/cbegin/trackwave-go/internal/effects"
	intrender "github.com/cbegin/trackwave-go/internal/render"
)

type Option func(*config)

type config struct {
	render       intrender.Config
	chunkSeconds float64
	effects      string
}

func defaultConfig() config {
	return config{
		render:       intrender.DefaultConfig(),
		chunkSeconds: intrender.DefaultChunkSeconds,
	}
}

// WithSampleRate sets the output rate in Hz. Default 44100.
func WithSampleRate(sampleRate int) Option {
	return func(cfg *config) {
		cfg.render.SampleRate = sampleRate
	}
}

// WithChunkSeconds bounds how much audio a single streamed chunk may hold.
func WithChunkSeconds(seconds float64) Option {
	return func(cfg *config) {
		cfg.chunkSeconds = seconds
	}
}

// WithProgram selects the bank and preset applied before the first event.
func WithProgram(bank, preset int) Option {
	return func(cfg *config) {
		cfg.render.Bank = bank
		cfg.render.Preset = preset
	}
}

// WithChannel sets the MIDI channel (0-15) every event is played on.
func WithChannel(channel int) Option {
	return func(cfg *config) {
		cfg.render.Channel = channel
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		cfg.render.Logger = logger
	}
}

// WithEffects installs a post-processing chain, for example
// "compressor:-18,3;reverb:0.5,0.7,0.2;delay:120,0.3,0.25".
func WithEffects(desc string) Option {
	return func(cfg *config) {
		cfg.effects = desc
	}
}

// WithObserver installs a callback invoked for every applied event together
// with the gap rendered before it. It runs on the rendering goroutine.
func WithObserver(fn func(Step)) Option {
	return func(cfg *config) {
		cfg.render.Observer = fn
	}
}

func newConfig(opts []Option) (config, *intfx.Chain, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.render.SampleRate <= 0 {
		return cfg, nil, errors.Wrapf(intrender.ErrInvalidTiming, "sample rate %d", cfg.render.SampleRate)
	}
	if cfg.chunkSeconds <= 0 {
		return cfg, nil, errors.Errorf("chunk of %.3fs", cfg.chunkSeconds)
	}
	if cfg.render.Channel < 0 || cfg.render.Channel > 15 {
		return cfg, nil, errors.Errorf("channel %d out of range", cfg.render.Channel)
	}
	cfg.render.ChunkFrames = int(cfg.chunkSeconds * float64(cfg.render.SampleRate))
	if cfg.render.ChunkFrames <= 0 {
		cfg.render.ChunkFrames = 1
	}
	chain, err := intfx.Parse(cfg.effects, cfg.render.SampleRate)
	if err != nil {
		return cfg, nil, err
	}
	if cfg.render.Logger != nil && chain.Len() > 0 {
		cfg.render.Logger.Debug("effects chain", "desc", cfg.effects, "effects", chain.Len())
	}
	return cfg, chain, nil
}
