package piano

import (
	"fmt"
	"image"
)

// Keys is the number of semitones per octave.
const Keys = 12

var noteNames = [Keys]string{"C ", "C#", "D ", "D#", "E ", "F ", "F#", "G ", "G#", "A ", "A#", "B "}

var accidentals = [Keys]bool{1: true, 3: true, 6: true, 8: true, 10: true}

// IsAccidental reports whether the semitone (0 = C) is a sharp/flat key.
func IsAccidental(semitone int) bool {
	return accidentals[mod12(semitone)]
}

// Note is one physical key of a calibrated octave.
type Note struct {
	// Code is the semitone number. Build emits 0-11; callers that combine
	// octaves remap it to an absolute index before formatting.
	Code int
	// Location is the live sampling point in image coordinates.
	Location image.Point
	// DefaultColor is the unpressed baseline sampled during calibration.
	DefaultColor Color
	IsAccidental bool
	// Matched counts the pixels of the key's nominal range that matched the template.
	Matched int

	pressed bool
}

// SetPressed stores a new press state. Setting the state the note is already
// in returns an *AlreadyInStateError and leaves the note untouched.
func (n *Note) SetPressed(pressed bool) (bool, error) {
	if n.pressed == pressed {
		return false, &AlreadyInStateError{Pressed: pressed}
	}
	n.pressed = pressed
	return pressed, nil
}

// Pressed returns the current press state.
func (n *Note) Pressed() bool {
	return n.pressed
}

// DisplayName formats the note as "<name> <octave>", e.g. "C# 4".
func (n Note) DisplayName() string {
	return FormatCode(n.Code)
}

// FormatCode formats an absolute chromatic index where C0 = 12.
func FormatCode(code int) string {
	return fmt.Sprintf("%s %d", noteNames[mod12(code)], code/12-1)
}

func mod12(v int) int {
	return ((v % Keys) + Keys) % Keys
}
