package trackwave

import (
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/wav"
	"github.com/pkg/errors"

	intsynth "github.com/cbegin/trackwave-go/internal/synth"
)

var update = flag.Bool("update", false, "rewrite golden hashes in testdata")

func demoScore(t *testing.T) []Track {
	t.Helper()
	melody, err := NewBuilder("melody").
		Add(67, 100, 1).Add(60, 100, 1).Add(69, 100, 2).Add(67, 100, 1).Add(67, 100, 1).Add(60, 100, 1).
		Build()
	if err != nil {
		t.Fatalf("build melody: %v", err)
	}
	bass, err := NewBuilder("bass").Add(48, 90, 4).Add(41, 90, 3).Build()
	if err != nil {
		t.Fatalf("build bass: %v", err)
	}
	return []Track{melody, bass}
}

func drain(t *testing.T, s *Stream) []float32 {
	t.Helper()
	var out []float32
	for buf, err := range s.All() {
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		out = append(out, buf...)
	}
	return out
}

func TestStreamMatchesRenderWithEffects(t *testing.T) {
	opts := []Option{
		WithSampleRate(22050),
		WithChunkSeconds(0.05),
		WithEffects("compressor:-18,3;reverb;delay:80,0.3,0.25"),
	}
	bulk, err := Render(demoScore(t), NewFM(22050), opts...)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	s, err := NewStream(demoScore(t), NewFM(22050), opts...)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer s.Close()
	streamed := drain(t, s)
	if len(streamed) != len(bulk) {
		t.Fatalf("stream produced %d frames, bulk %d", len(streamed), len(bulk))
	}
	for i := range bulk {
		if bulk[i] != streamed[i] {
			t.Fatalf("frame %d differs: %f vs %f", i, bulk[i], streamed[i])
		}
	}
	// 7 quarters at 120 BPM plus the tail
	if want := int(3.5*22050) + 22050/2; len(bulk) != want {
		t.Fatalf("rendered %d frames, want %d", len(bulk), want)
	}
}

func TestObserverSeesEveryEvent(t *testing.T) {
	var steps []Step
	_, err := Render(demoScore(t), NewFM(44100), WithObserver(func(s Step) { steps = append(steps, s) }))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	// six melody notes and two bass notes, each on and off
	if len(steps) != 16 {
		t.Fatalf("observed %d events, want 16", len(steps))
	}
	for i := 1; i < len(steps); i++ {
		if steps[i].Time < steps[i-1].Time {
			t.Fatalf("step %d goes back in time", i)
		}
	}
}

func TestOptionsValidation(t *testing.T) {
	cases := []struct {
		name string
		opt  Option
	}{
		{"sample rate", WithSampleRate(0)},
		{"chunk", WithChunkSeconds(-1)},
		{"channel", WithChannel(16)},
		{"effects", WithEffects("wah")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Render(nil, NewFM(44100), tc.opt); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	if _, err := Render(nil, NewFM(44100), WithSampleRate(-5)); !errors.Is(err, ErrInvalidTiming) {
		t.Fatalf("expected ErrInvalidTiming, got %v", err)
	}
}

func TestSoundFontRenderFailsBeforeRendering(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.sf2")
	if out, err := RenderSoundFont(demoScore(t), missing); !errors.Is(err, intsynth.ErrNoSoundFont) || out != nil {
		t.Fatalf("expected ErrNoSoundFont and no output, got %d frames, %v", len(out), err)
	}
	if s, err := StreamSoundFont(demoScore(t), missing); !errors.Is(err, intsynth.ErrNoSoundFont) || s != nil {
		t.Fatalf("expected ErrNoSoundFont, got %v", err)
	}
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	s, err := NewStream(demoScore(t), NewFM(44100))
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if _, err := s.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("next after close = %v, want io.EOF", err)
	}
}

func TestWriteWAVFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	src := &sliceSource{chunks: [][]float32{{0, 0.5, -0.5}, {2, -2}}}
	frames, err := WriteWAVFile(path, src, 22050)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if frames != 5 {
		t.Fatalf("wrote %d frames, want 5", frames)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.SampleRate != 22050 || dec.NumChans != 1 || dec.BitDepth != 16 {
		t.Fatalf("header = %d Hz, %d ch, %d bit", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
	want := []int{0, 16383, -16383, 32767, -32767}
	if len(buf.Data) != len(want) {
		t.Fatalf("decoded %d samples, want %d", len(buf.Data), len(want))
	}
	for i, v := range want {
		if buf.Data[i] != v {
			t.Fatalf("sample %d = %d, want %d", i, buf.Data[i], v)
		}
	}
}

// pitchSum is a deterministic engine whose output is the sum of the sounding
// pitches over 1024, so the golden hash depends only on event timing.
type pitchSum struct {
	sounding map[int]int
}

func (p *pitchSum) SelectProgram(channel, bank, preset int) error { return nil }

func (p *pitchSum) NoteOn(channel, pitch, velocity int) {
	if velocity == 0 {
		p.NoteOff(channel, pitch)
		return
	}
	p.sounding[pitch]++
}

func (p *pitchSum) NoteOff(channel, pitch int) {
	if p.sounding[pitch] > 0 {
		p.sounding[pitch]--
	}
}

func (p *pitchSum) AllNotesOff(channel int)  { clear(p.sounding) }
func (p *pitchSum) AllSoundsOff(channel int) { clear(p.sounding) }

func (p *pitchSum) Render(frames int) []float32 {
	sum := 0
	for pitch, n := range p.sounding {
		sum += pitch * n
	}
	out := make([]float32, frames)
	for i := range out {
		out[i] = float32(sum) / 1024
	}
	return out
}

func TestGoldenRenderSnapshot(t *testing.T) {
	samples, err := Render(demoScore(t), &pitchSum{sounding: map[int]int{}}, WithSampleRate(48000))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(samples) != 192000 {
		t.Fatalf("rendered %d frames, want 192000", len(samples))
	}
	h := sha256.New()
	for _, s := range samples {
		b := math.Float32bits(s)
		h.Write([]byte{byte(b), byte(b >> 8), byte(b >> 16), byte(b >> 24)})
	}
	got := hex.EncodeToString(h.Sum(nil))
	file := filepath.Join("testdata", "golden_render_demo.sha256")
	if *update {
		if err := os.MkdirAll("testdata", 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(file, []byte(got+"\n"), 0o644); err != nil {
			t.Fatalf("write golden hash: %v", err)
		}
		return
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read golden hash: %v", err)
	}
	if want := strings.TrimSpace(string(raw)); got != want {
		t.Fatalf("golden mismatch\nwant: %s\ngot:  %s", want, got)
	}
}
