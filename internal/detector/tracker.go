// Package detector samples live frames at the calibrated key locations and
// turns color changes into press/release transitions.
package detector

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/starford/keyscan/internal/models"
	"github.com/starford/keyscan/internal/piano"
)

// Defaults.
const (
	DefaultThreshold  = piano.MatchThreshold
	DefaultBaseOctave = 4
)

// Transition is a single key changing state.
type Transition struct {
	Code       int    `json:"code"`
	Semitone   int    `json:"semitone"`
	Name       string `json:"name"`
	Pressed    bool   `json:"pressed"`
	Distance   int    `json:"distance"`
	Accidental bool   `json:"accidental"`
}

// KeyState is a point-in-time view of one calibrated key.
type KeyState struct {
	Code         int          `json:"code"`
	Semitone     int          `json:"semitone"`
	Name         string       `json:"name"`
	Location     models.Point `json:"location"`
	DefaultColor piano.Color  `json:"default_color"`
	Accidental   bool         `json:"accidental"`
	Matched      int          `json:"matched"`
	Pressed      bool         `json:"pressed"`
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithThreshold sets the distance at or above which a key counts as pressed.
func WithThreshold(threshold int) Option {
	return func(t *Tracker) {
		if threshold > 0 {
			t.threshold = threshold
		}
	}
}

// WithBaseOctave sets the octave number used to derive absolute note codes.
func WithBaseOctave(octave int) Option {
	return func(t *Tracker) {
		t.baseOctave = octave
	}
}

// Tracker owns a calibrated octave and is its only writer.
type Tracker struct {
	mu         sync.Mutex
	octave     *piano.Octave
	threshold  int
	baseOctave int
}

// NewTracker wraps octave. The tracker takes ownership of it.
func NewTracker(octave *piano.Octave, opts ...Option) *Tracker {
	t := &Tracker{
		octave:     octave,
		threshold:  DefaultThreshold,
		baseOctave: DefaultBaseOctave,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// AbsoluteCode maps an octave-relative semitone onto the absolute chromatic
// index used by FormatCode and MIDI (C4 = 60).
func AbsoluteCode(semitone, octave int) int {
	return semitone + piano.Keys*(octave+1)
}

// Observe samples frame at every key location and applies the resulting
// press states. It returns the keys that changed, in semitone order.
func (t *Tracker) Observe(frame image.Image) ([]Transition, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out, err := t.pending(frame)
	if err != nil {
		return nil, err
	}
	return out, t.commit(out)
}

// Pending samples frame like Observe but leaves every key untouched. The
// result is applied with Commit once it has been persisted.
func (t *Tracker) Pending(frame image.Image) ([]Transition, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending(frame)
}

// Commit applies transitions returned by Pending. Transitions that no longer
// change a key are skipped.
func (t *Tracker) Commit(transitions []Transition) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.commit(transitions)
}

func (t *Tracker) pending(frame image.Image) ([]Transition, error) {
	bounds := frame.Bounds()
	for i := range t.octave.Notes {
		loc := t.octave.Notes[i].Location
		if !loc.In(bounds) {
			return nil, &piano.OutOfBoundsError{
				Region: image.Rectangle{Min: loc, Max: loc.Add(image.Pt(1, 1))},
				Bounds: bounds,
			}
		}
	}

	var out []Transition
	for i := range t.octave.Notes {
		note := &t.octave.Notes[i]
		d := piano.Distance(piano.ColorAt(frame, note.Location.X, note.Location.Y), note.DefaultColor)
		pressed := d >= t.threshold
		if pressed == note.Pressed() {
			continue
		}
		code := AbsoluteCode(note.Code, t.baseOctave)
		out = append(out, Transition{
			Code:       code,
			Semitone:   note.Code,
			Name:       piano.FormatCode(code),
			Pressed:    pressed,
			Distance:   d,
			Accidental: note.IsAccidental,
		})
	}
	return out, nil
}

func (t *Tracker) commit(transitions []Transition) error {
	for _, tr := range transitions {
		if tr.Semitone < 0 || tr.Semitone >= piano.Keys {
			return fmt.Errorf("detector: key %d: out of range", tr.Semitone)
		}
		note := t.octave.Note(tr.Semitone)
		if _, err := note.SetPressed(tr.Pressed); err != nil && !errors.Is(err, piano.ErrAlreadyInState) {
			return fmt.Errorf("detector: key %d: %w", tr.Semitone, err)
		}
	}
	return nil
}

// Snapshot returns the current state of every key.
func (t *Tracker) Snapshot() []KeyState {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]KeyState, 0, piano.Keys)
	for i := range t.octave.Notes {
		note := &t.octave.Notes[i]
		code := AbsoluteCode(note.Code, t.baseOctave)
		out = append(out, KeyState{
			Code:         code,
			Semitone:     note.Code,
			Name:         piano.FormatCode(code),
			Location:     models.PointOf(note.Location),
			DefaultColor: note.DefaultColor,
			Accidental:   note.IsAccidental,
			Matched:      note.Matched,
			Pressed:      note.Pressed(),
		})
	}
	return out
}

// Release marks every pressed key as released and returns the transitions.
func (t *Tracker) Release() []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Transition
	for i := range t.octave.Notes {
		note := t.octave.Note(i)
		if _, err := note.SetPressed(false); err != nil {
			continue
		}
		code := AbsoluteCode(note.Code, t.baseOctave)
		out = append(out, Transition{
			Code:       code,
			Semitone:   note.Code,
			Name:       piano.FormatCode(code),
			Accidental: note.IsAccidental,
		})
	}
	return out
}
