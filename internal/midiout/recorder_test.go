package midiout

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2/smf"
)

type counts struct {
	on, off []uint8
}

func readBack(t *testing.T, s *smf.SMF) counts {
	t.Helper()
	var c counts
	for _, events := range s.Tracks {
		for _, ev := range events {
			var ch, key, vel uint8
			switch {
			case ev.Message.GetNoteOn(&ch, &key, &vel):
				c.on = append(c.on, key)
			case ev.Message.GetNoteOff(&ch, &key, &vel):
				c.off = append(c.off, key)
			}
		}
	}
	return c
}

func TestRecorder_WriteTo(t *testing.T) {
	r := NewRecorder(Options{Channel: 0, Tempo: 90})
	clock := time.Unix(0, 0)
	r.now = func() time.Time {
		clock = clock.Add(250 * time.Millisecond)
		return clock
	}

	r.Record(60, true)
	r.Record(64, true)
	r.Record(60, false)
	r.Record(200, true) // out of range, ignored
	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}

	var buf bytes.Buffer
	if _, err := r.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	s, err := smf.ReadFrom(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	c := readBack(t, s)
	if len(c.on) != 2 || c.on[0] != 60 || c.on[1] != 64 {
		t.Errorf("note ons = %v", c.on)
	}
	if len(c.off) != 1 || c.off[0] != 60 {
		t.Errorf("note offs = %v", c.off)
	}
}

func TestRecorder_WriteFileEmpty(t *testing.T) {
	r := NewRecorder(Options{})
	path := filepath.Join(t.TempDir(), "empty.mid")
	if err := r.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s, err := smf.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	c := readBack(t, s)
	if len(c.on)+len(c.off) != 0 {
		t.Errorf("unexpected notes in empty recording: %+v", c)
	}
}
