package trackwave

import (
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
)

const wavBitDepth = 16

// WriteWAV drains src into a mono 16-bit PCM WAV and returns the number of
// frames written. Samples outside [-1, 1] are clipped. src is not closed.
func WriteWAV(w io.WriteSeeker, src ChunkSource, sampleRate int) (int64, error) {
	enc := wav.NewEncoder(w, sampleRate, wavBitDepth, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: wavBitDepth,
	}
	var frames int64
	for {
		chunk, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return frames, err
		}
		if err := writeChunk(enc, buf, chunk); err != nil {
			return frames, err
		}
		frames += int64(len(chunk))
	}
	if err := enc.Close(); err != nil {
		return frames, errors.Wrap(err, "finish WAV")
	}
	return frames, nil
}

// EncodeWAV writes an already rendered waveform as a mono 16-bit PCM WAV.
func EncodeWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	_, err := WriteWAV(w, &sliceSource{chunks: [][]float32{samples}}, sampleRate)
	return err
}

// WriteWAVFile creates path and drains src into it.
func WriteWAVFile(path string, src ChunkSource, sampleRate int) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	frames, err := WriteWAV(f, src, sampleRate)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	return frames, err
}

func writeChunk(enc *wav.Encoder, buf *audio.IntBuffer, chunk []float32) error {
	if len(chunk) == 0 {
		return nil
	}
	if cap(buf.Data) < len(chunk) {
		buf.Data = make([]int, len(chunk))
	}
	buf.Data = buf.Data[:len(chunk)]
	for i, s := range chunk {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf.Data[i] = int(s * 32767)
	}
	return errors.Wrap(enc.Write(buf), "write WAV")
}

type sliceSource struct {
	chunks [][]float32
}

func (s *sliceSource) Next() ([]float32, error) {
	if len(s.chunks) == 0 {
		return nil, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *sliceSource) Close() error { return nil }
