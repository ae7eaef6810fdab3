package trackwave

import (
	"io"
	"testing"

	"github.com/pkg/errors"
)

func TestPlayerMasterVolumeRuntimeAPI(t *testing.T) {
	pl, err := NewPlayer(48000)
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	if got := pl.MasterVolume(); got != 1 {
		t.Fatalf("default master volume = %v, want 1", got)
	}
	pl.SetMasterVolume(0.35)
	if got := pl.MasterVolume(); got != 0.35 {
		t.Fatalf("master volume = %v, want 0.35", got)
	}
	pl.SetMasterVolume(-2)
	if got := pl.MasterVolume(); got != 0 {
		t.Fatalf("master volume should clamp to 0, got %v", got)
	}
}

func TestPlayerRejectsBadSampleRate(t *testing.T) {
	if _, err := NewPlayer(0); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPlayerIdleCalls(t *testing.T) {
	pl, _ := NewPlayer(48000)
	pl.Wait()
	pl.Pause()
	pl.Resume()
	if got := pl.PlaybackPosition(); got != 0 {
		t.Fatalf("position = %d, want 0", got)
	}
	if err := pl.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestPlayerWrapperTapsAndReports(t *testing.T) {
	var tapped int
	pl, _ := NewPlayer(48000, WithSampleTap(func(buf []float32) { tapped += len(buf) }))
	events := pl.Watch()
	src := &sliceSource{chunks: [][]float32{{0.1, 0.2, 0.3}, {0.4}}}
	w := pl.wrap(src)
	for {
		if _, err := w.Next(); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			t.Fatalf("next: %v", err)
		}
	}
	if tapped != 4 {
		t.Fatalf("tap saw %d frames, want 4", tapped)
	}
	var frames []int64
	for len(events) > 0 {
		ev := <-events
		if ev.Kind != EventChunkPlayed {
			t.Fatalf("unexpected event kind %d", ev.Kind)
		}
		frames = append(frames, ev.Frames)
	}
	if len(frames) != 2 || frames[0] != 3 || frames[1] != 4 {
		t.Fatalf("chunk events = %v, want [3 4]", frames)
	}
}

func TestPlayerEndSurvivesFullEventChannel(t *testing.T) {
	pl, _ := NewPlayer(48000)
	events := pl.Watch()
	src := &sliceSource{chunks: make([][]float32, 20)}
	for i := range src.chunks {
		src.chunks[i] = []float32{0}
	}
	w := pl.wrap(src)
	done := make(chan struct{})
	pl.done = done
	finish := pl.finisher(done, w)

	// many short chunks overflow the event buffer before the source ends
	for {
		if _, err := w.Next(); err != nil {
			break
		}
	}
	if len(events) != cap(events) {
		t.Fatalf("expected a full event buffer, got %d of %d", len(events), cap(events))
	}
	boom := errors.New("decode failed")
	finish(boom)

	pl.Wait()
	select {
	case <-done:
	default:
		t.Fatalf("playback not marked done")
	}
	if !errors.Is(pl.Err(), boom) {
		t.Fatalf("Err() = %v, want %v", pl.Err(), boom)
	}
}

func TestPlayerStaleFinishLeavesNewPlaybackRunning(t *testing.T) {
	pl, _ := NewPlayer(48000)
	first := make(chan struct{})
	finishFirst := pl.finisher(first, pl.wrap(&sliceSource{}))

	// the first source is replaced before its audio goroutine reports the end
	close(first)
	second := make(chan struct{})
	pl.done = second

	finishFirst(errors.New("stale"))
	select {
	case <-second:
		t.Fatalf("stale callback ended the new playback")
	default:
	}
	if err := pl.Err(); err != nil {
		t.Fatalf("stale callback set Err() = %v", err)
	}

	pl.finisher(second, pl.wrap(&sliceSource{}))(nil)
	pl.Wait()
	if err := pl.Err(); err != nil {
		t.Fatalf("clean end set Err() = %v", err)
	}
}
