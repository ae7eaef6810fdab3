package score

import (
	"bytes"
	"io"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

func TestBuilderFlattensMelody(t *testing.T) {
	tr, err := NewBuilder("melody").
		Add(67, 90, 1).
		Add(60, 90, 1).
		Add(69, 90, 2).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []Event{
		NoteOn(67, 90), Advance(Resolution), NoteOff(67),
		NoteOn(60, 90), Advance(Resolution), NoteOff(60),
		NoteOn(69, 90), Advance(2 * Resolution), NoteOff(69),
	}
	if !reflect.DeepEqual(tr.Events, want) {
		t.Fatalf("events mismatch\nwant %#v\ngot  %#v", want, tr.Events)
	}
	if got := tr.DurationTicks(); got != 4*Resolution {
		t.Fatalf("duration = %d, want %d", got, 4*Resolution)
	}
	if got := tr.NoteCount(); got != 3 {
		t.Fatalf("note count = %d, want 3", got)
	}
}

func TestBuilderReleasesBeforeRestrike(t *testing.T) {
	tr, err := NewBuilder("").AddAt(60, 100, 0, 10).AddAt(60, 100, 10, 10).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []Event{NoteOn(60, 100), Advance(10), NoteOff(60), NoteOn(60, 100), Advance(10), NoteOff(60)}
	if !reflect.DeepEqual(tr.Events, want) {
		t.Fatalf("events mismatch\nwant %#v\ngot  %#v", want, tr.Events)
	}
}

func TestBuilderChordAndRest(t *testing.T) {
	tr, err := NewBuilder("").Chord([]int{60, 64, 67}, 80, 1).Rest(1).Add(72, 80, 0.5).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := tr.NoteCount(); got != 4 {
		t.Fatalf("note count = %d, want 4", got)
	}
	if got := tr.DurationTicks(); got != QuartersToTicks(2.5) {
		t.Fatalf("duration = %d, want %d", got, QuartersToTicks(2.5))
	}
}

func TestBuilderRejectsInvalidNotes(t *testing.T) {
	for _, tc := range []struct {
		name string
		b    *Builder
	}{
		{"pitch", NewBuilder("").AddAt(128, 10, 0, 1)},
		{"velocity", NewBuilder("").AddAt(60, -1, 0, 1)},
		{"start", NewBuilder("").AddAt(60, 10, -5, 1)},
		{"length", NewBuilder("").AddAt(60, 10, 0, -1)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.b.Build(); !errors.Is(err, ErrInvalidNote) {
				t.Fatalf("expected ErrInvalidNote, got %v", err)
			}
		})
	}
}

func TestUnknownKindIsOther(t *testing.T) {
	ev := Event{Kind: Kind(42)}
	if ev.Normalized() != KindOther {
		t.Fatalf("unknown kind should normalize to other, got %v", ev.Normalized())
	}
}

func TestSMFRoundTrip(t *testing.T) {
	a, err := NewBuilder("lead").Add(67, 90, 1).Add(60, 90, 0.5).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	b, err := NewBuilder("bass").Add(36, 70, 1.5).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteSMF(&buf, []Track{a, b}, Program{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadSMF(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	// tempo track first
	if len(got) != 3 {
		t.Fatalf("expected 3 tracks, got %d", len(got))
	}
	if got[0].NoteCount() != 0 {
		t.Fatalf("tempo track should carry no notes")
	}
	for i, want := range []Track{a, b} {
		if !reflect.DeepEqual(timedNotes(got[i+1]), timedNotes(want)) {
			t.Fatalf("track %d mismatch\nwant %#v\ngot  %#v", i, timedNotes(want), timedNotes(got[i+1]))
		}
	}
}

func TestSMFFileRoundTrip(t *testing.T) {
	tr, err := NewBuilder("").Add(60, 100, 1).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	path := filepath.Join(t.TempDir(), "song.mid")
	if err := WriteSMFFile(path, []Track{tr}, Program{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadSMFFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[1].NoteCount() != 1 || got[1].DurationTicks() != Resolution {
		t.Fatalf("unexpected tracks: %#v", got)
	}
}

func TestSMFStartsOnProgram(t *testing.T) {
	tr, err := NewBuilder("lead").Add(60, 100, 1).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteSMF(&buf, []Track{tr}, Program{Channel: 3, Bank: 8, Preset: 25}); err != nil {
		t.Fatalf("write: %v", err)
	}
	sm, err := smf.ReadFrom(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	bank, preset, noteCh := -1, -1, -1
	for _, ev := range sm.Tracks[1] {
		msg := midi.Message(ev.Message)
		var ch, a, b uint8
		switch {
		case msg.GetControlChange(&ch, &a, &b):
			if ch != 3 || a != 0 || ev.Delta != 0 {
				t.Fatalf("unexpected control change ch=%d cc=%d delta=%d", ch, a, ev.Delta)
			}
			bank = int(b)
		case msg.GetProgramChange(&ch, &a):
			if ch != 3 || bank < 0 || ev.Delta != 0 {
				t.Fatalf("program change out of order or on channel %d", ch)
			}
			preset = int(a)
		case msg.GetNoteStart(&ch, &a, &b):
			if preset < 0 {
				t.Fatalf("note before program change")
			}
			noteCh = int(ch)
		}
	}
	if bank != 8 || preset != 25 || noteCh != 3 {
		t.Fatalf("bank=%d preset=%d note channel=%d", bank, preset, noteCh)
	}
}

func TestSMFRejectsBadProgram(t *testing.T) {
	for _, prog := range []Program{{Channel: 16}, {Bank: 128}, {Preset: -1}} {
		if err := WriteSMF(io.Discard, nil, prog); err == nil {
			t.Errorf("WriteSMF with %+v should fail", prog)
		}
	}
}

// timedNotes drops Other events and merges adjacent advances.
func timedNotes(tr Track) []Event {
	var out []Event
	for _, ev := range tr.Events {
		switch ev.Normalized() {
		case KindOther:
			continue
		case KindTimeAdvance:
			if n := len(out); n > 0 && out[n-1].Kind == KindTimeAdvance {
				out[n-1].DeltaTicks += ev.DeltaTicks
				continue
			}
		}
		out = append(out, ev)
	}
	// trailing advance comes from end-of-track padding
	if n := len(out); n > 0 && out[n-1].Kind == KindTimeAdvance {
		out = out[:n-1]
	}
	return out
}
