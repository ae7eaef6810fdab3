package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/cbegin/trackwave-go"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Width(12)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func main() {
	var (
		sf2Path    = flag.String("sf2", "", "path to a SoundFont (.sf2)")
		inPath     = flag.String("in", "", "Standard MIDI File to render (default: built-in demo)")
		outPath    = flag.String("out", "", "write the waveform to this WAV file")
		play       = flag.Bool("play", false, "play the waveform through the default audio device")
		engineName = flag.String("engine", "soundfont", "synth engine: soundfont|fm|fluidsynth")
		fluidBin   = flag.String("fluidsynth", "", "fluidsynth binary (default: from PATH)")
		sampleRate = flag.Int("sample-rate", 44100, "output sample rate")
		chunk      = flag.Float64("chunk", 5.0, "streaming chunk length in seconds")
		bank       = flag.Int("bank", 0, "program bank")
		preset     = flag.Int("preset", 0, "program preset")
		fx         = flag.String("fx", "", `effect chain, e.g. "compressor:-18,3;reverb"`)
		stream     = flag.Bool("stream", false, "render incrementally instead of in one pass")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	tracks, err := loadTracks(*inPath)
	if err != nil {
		log.Fatal(err)
	}
	if *outPath == "" && !*play {
		log.Fatal("nothing to do: pass -out and/or -play")
	}

	opts := []trackwave.Option{
		trackwave.WithSampleRate(*sampleRate),
		trackwave.WithChunkSeconds(*chunk),
		trackwave.WithProgram(*bank, *preset),
		trackwave.WithEffects(*fx),
		trackwave.WithLogger(logger),
	}
	var chunks int

	started := time.Now()
	src, err := openSource(strings.ToLower(strings.TrimSpace(*engineName)), *sf2Path, *fluidBin, *sampleRate, *stream, tracks, opts)
	if err != nil {
		log.Fatal(err)
	}
	counted := &countingSource{src: src, chunks: &chunks}

	var frames int64
	switch {
	case *outPath != "" && *play:
		// Render once to memory, then write and play the same samples.
		samples, err := collect(counted)
		if err != nil {
			log.Fatal(err)
		}
		frames = int64(len(samples))
		if _, err := trackwave.WriteWAVFile(*outPath, memorySource(samples), *sampleRate); err != nil {
			log.Fatal(err)
		}
		if err := playAndWait(memorySource(samples), *sampleRate, logger); err != nil {
			log.Fatal(err)
		}
	case *outPath != "":
		frames, err = trackwave.WriteWAVFile(*outPath, counted, *sampleRate)
		counted.Close()
		if err != nil {
			log.Fatal(err)
		}
	default:
		if err := playAndWait(counted, *sampleRate, logger); err != nil {
			log.Fatal(err)
		}
		frames = counted.frames
	}

	fmt.Println(summary(*engineName, tracks, frames, chunks, *sampleRate, *outPath, time.Since(started)))
}

// demoTracks is a short melody over a two-note bass line.
func demoTracks() ([]trackwave.Track, error) {
	melody, err := trackwave.NewBuilder("melody").
		Add(67, 100, 1).Add(60, 100, 1).Add(69, 100, 2).
		Add(67, 100, 1).Add(67, 100, 1).Add(60, 100, 1).
		Build()
	if err != nil {
		return nil, err
	}
	bass, err := trackwave.NewBuilder("bass").Add(48, 80, 4).Add(41, 80, 3).Build()
	if err != nil {
		return nil, err
	}
	return []trackwave.Track{melody, bass}, nil
}

func loadTracks(path string) ([]trackwave.Track, error) {
	if strings.TrimSpace(path) == "" {
		return demoTracks()
	}
	return trackwave.ReadMIDIFile(path)
}

func openSource(engine, sf2, fluidBin string, sampleRate int, stream bool, tracks []trackwave.Track, opts []trackwave.Option) (trackwave.ChunkSource, error) {
	switch engine {
	case "soundfont":
		if stream {
			return trackwave.StreamSoundFont(tracks, sf2, opts...)
		}
		samples, err := trackwave.RenderSoundFont(tracks, sf2, opts...)
		if err != nil {
			return nil, err
		}
		return memorySource(samples), nil
	case "fm":
		eng := trackwave.NewFM(sampleRate)
		if stream {
			return trackwave.NewStream(tracks, eng, opts...)
		}
		samples, err := trackwave.Render(tracks, eng, opts...)
		if err != nil {
			return nil, err
		}
		return memorySource(samples), nil
	case "fluidsynth":
		return trackwave.StreamFluidSynth(context.Background(), fluidBin, tracks, sf2, opts...)
	default:
		return nil, fmt.Errorf("invalid -engine %q (expected soundfont|fm|fluidsynth)", engine)
	}
}

func playAndWait(src trackwave.ChunkSource, sampleRate int, logger *slog.Logger) error {
	pl, err := trackwave.NewPlayer(sampleRate)
	if err != nil {
		return err
	}
	if err := pl.Play(src); err != nil {
		return err
	}
	pl.Wait()
	if err := pl.Err(); err != nil {
		return err
	}
	logger.Debug("playback finished", "position", pl.PlaybackPosition())
	// Let the device drain what it has buffered.
	time.Sleep(200 * time.Millisecond)
	return pl.Stop()
}

func collect(src trackwave.ChunkSource) ([]float32, error) {
	defer src.Close()
	var out []float32
	for {
		buf, err := src.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, buf...)
	}
}

type sliceSource struct {
	samples []float32
	done    bool
}

func memorySource(samples []float32) *sliceSource {
	return &sliceSource{samples: samples}
}

func (s *sliceSource) Next() ([]float32, error) {
	if s.done {
		return nil, io.EOF
	}
	s.done = true
	return s.samples, nil
}

func (s *sliceSource) Close() error { return nil }

type countingSource struct {
	src    trackwave.ChunkSource
	chunks *int
	frames int64
}

func (c *countingSource) Next() ([]float32, error) {
	buf, err := c.src.Next()
	if err == nil {
		*c.chunks++
		c.frames += int64(len(buf))
	}
	return buf, err
}

func (c *countingSource) Close() error { return c.src.Close() }

func summary(engine string, tracks []trackwave.Track, frames int64, chunks, sampleRate int, out string, elapsed time.Duration) string {
	notes := 0
	for _, tr := range tracks {
		notes += tr.NoteCount()
	}
	rows := [][2]string{
		{"engine", engine},
		{"tracks", fmt.Sprint(len(tracks))},
		{"notes", fmt.Sprint(notes)},
		{"frames", fmt.Sprint(frames)},
		{"duration", (time.Duration(frames) * time.Second / time.Duration(sampleRate)).String()},
		{"chunks", fmt.Sprint(chunks)},
		{"elapsed", elapsed.Round(time.Millisecond).String()},
	}
	if out != "" {
		rows = append(rows, [2]string{"output", out})
	}
	lines := []string{titleStyle.Render("trackwave")}
	for _, r := range rows {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, keyStyle.Render(r[0]), valueStyle.Render(r[1])))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
