package fluidsynth

import (
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
)

var ErrInvalidWAV = errors.New("invalid WAV file")

// Reader yields a PCM WAV file as mono float32 chunks of a fixed number of
// frames; the last chunk may be shorter.
type Reader struct {
	src        io.ReadSeeker
	dec        *wav.Decoder
	buf        *audio.IntBuffer
	channels   int
	sampleRate int
	scale      float32
	closers    []func() error
	done       bool
}

// OpenWAV opens a WAV file for chunked reading.
func OpenWAV(path string, chunkFrames int) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f, chunkFrames)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, path)
	}
	r.closers = append(r.closers, f.Close)
	return r, nil
}

func NewReader(src io.ReadSeeker, chunkFrames int) (*Reader, error) {
	if chunkFrames <= 0 {
		return nil, errors.Errorf("chunk of %d frames", chunkFrames)
	}
	dec := wav.NewDecoder(src)
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, errors.Wrap(ErrInvalidWAV, err.Error())
	}
	format := dec.Format()
	depth := int(dec.SampleBitDepth())
	if format == nil || format.NumChannels <= 0 || depth == 0 {
		return nil, errors.Wrap(ErrInvalidWAV, "missing format")
	}
	if dec.WavAudioFormat != 1 {
		return nil, errors.Wrapf(ErrInvalidWAV, "audio format %d is not integer PCM", dec.WavAudioFormat)
	}
	return &Reader{
		src: src,
		dec: dec,
		buf: &audio.IntBuffer{
			Format:         format,
			Data:           make([]int, chunkFrames*format.NumChannels),
			SourceBitDepth: depth,
		},
		channels:   format.NumChannels,
		sampleRate: format.SampleRate,
		scale:      float32(int64(1) << (depth - 1)),
	}, nil
}

func (r *Reader) SampleRate() int { return r.sampleRate }

// Next returns the next chunk downmixed to mono, or io.EOF.
func (r *Reader) Next() ([]float32, error) {
	if r.done {
		return nil, io.EOF
	}
	n, err := r.dec.PCMBuffer(r.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		r.done = true
		return nil, errors.Wrap(err, "decode PCM")
	}
	frames := n / r.channels
	if frames == 0 {
		r.done = true
		return nil, io.EOF
	}
	out := make([]float32, frames)
	data := r.buf.Data
	for i := range out {
		var sum int
		for c := 0; c < r.channels; c++ {
			sum += data[i*r.channels+c]
		}
		out[i] = float32(sum) / float32(r.channels) / r.scale
	}
	if errors.Is(err, io.EOF) {
		r.done = true
	}
	return out, nil
}

func (r *Reader) Close() error {
	r.done = true
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	r.closers = nil
	return first
}
