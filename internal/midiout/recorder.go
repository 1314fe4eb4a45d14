// Package midiout records key transitions and renders them as a Standard MIDI File.
package midiout

import (
	"fmt"
	"io"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const ticksPerQuarter = 960

// Options configures a Recorder.
type Options struct {
	Channel  uint8
	Velocity uint8
	Tempo    float64 // BPM
}

type event struct {
	at      time.Time
	key     uint8
	pressed bool
}

// Recorder accumulates note-on/note-off events. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	opts   Options
	events []event
	now    func() time.Time
}

// NewRecorder creates an empty recorder.
func NewRecorder(opts Options) *Recorder {
	if opts.Velocity == 0 {
		opts.Velocity = 100
	}
	if opts.Tempo <= 0 {
		opts.Tempo = 120
	}
	return &Recorder{opts: opts, now: time.Now}
}

// Record appends a transition for an absolute note code. Codes outside the
// MIDI range are ignored.
func (r *Recorder) Record(code int, pressed bool) {
	if code < 0 || code > 127 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{at: r.now(), key: uint8(code), pressed: pressed})
}

// Len returns the number of recorded messages.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// WriteTo renders the recording as a single-track SMF.
func (r *Recorder) WriteTo(w io.Writer) (int64, error) {
	s, err := r.render()
	if err != nil {
		return 0, err
	}
	return s.WriteTo(w)
}

// WriteFile renders the recording to path.
func (r *Recorder) WriteFile(path string) error {
	s, err := r.render()
	if err != nil {
		return err
	}
	if err := s.WriteFile(path); err != nil {
		return fmt.Errorf("midiout: write %s: %w", path, err)
	}
	return nil
}

func (r *Recorder) render() (*smf.SMF, error) {
	r.mu.Lock()
	events := make([]event, len(r.events))
	copy(events, r.events)
	opts := r.opts
	r.mu.Unlock()

	ticks := smf.MetricTicks(ticksPerQuarter)
	s := smf.New()
	s.TimeFormat = ticks

	var tr smf.Track
	tr.Add(0, smf.MetaTempo(opts.Tempo))
	var prev time.Time
	if len(events) > 0 {
		prev = events[0].at
	}
	for _, ev := range events {
		delta := ticks.Ticks(opts.Tempo, ev.at.Sub(prev))
		prev = ev.at
		if ev.pressed {
			tr.Add(delta, midi.NoteOn(opts.Channel, ev.key, opts.Velocity))
		} else {
			tr.Add(delta, midi.NoteOff(opts.Channel, ev.key))
		}
	}
	tr.Close(0)

	if err := s.Add(tr); err != nil {
		return nil, fmt.Errorf("midiout: add track: %w", err)
	}
	return s, nil
}
