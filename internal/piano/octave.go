// Package piano locates the keys of one octave in a captured image and
// tracks their press state.
package piano

import "image"

// KeyOffset is the vertical distance between the octave anchor row and a
// key's sampling point: upward for accidentals, downward for naturals.
const KeyOffset = 50

// Octave holds the twelve keys of one octave, indexed by semitone (0 = C).
type Octave struct {
	Notes [Keys]Note
}

// Build calibrates an octave anchored at anchor in img against template.
//
// The template's first row spans exactly one octave and is split into twelve
// equal ranges in chromatic order. Either all twelve notes are produced or an
// *OutOfBoundsError is returned.
func Build(anchor image.Point, img, template image.Image) (*Octave, error) {
	tb := template.Bounds()
	roi := image.Rectangle{Min: anchor, Max: anchor.Add(tb.Size())}
	if tb.Empty() || !roi.In(img.Bounds()) {
		return nil, &OutOfBoundsError{Region: roi, Bounds: img.Bounds()}
	}

	width := tb.Dx()
	o := &Octave{}
	for n := 0; n < Keys; n++ {
		lo, hi := n*width/Keys, (n+1)*width/Keys
		minX, maxX := lo, hi
		matched := 0

		// The scan only visits [lo, hi), so the widening below never fires and
		// the nominal bounds always survive. Calibrated positions depend on
		// this exact behavior; do not turn it into an adaptive search.
		for x := lo; x < hi; x++ {
			captured := ColorAt(img, anchor.X+x, anchor.Y)
			expected := ColorAt(template, tb.Min.X+x, tb.Min.Y)
			if !Matches(captured, expected) {
				continue
			}
			matched++
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
		}

		avgX := (minX + maxX) / 2
		accidental := IsAccidental(n)
		dy := KeyOffset
		if accidental {
			dy = -KeyOffset
		}
		o.Notes[n] = Note{
			Code:         n,
			Location:     anchor.Add(image.Pt(avgX, dy)),
			DefaultColor: ColorAt(img, anchor.X+avgX, anchor.Y),
			IsAccidental: accidental,
			Matched:      matched,
		}
	}
	return o, nil
}

// Note returns the key for a semitone (0 = C).
func (o *Octave) Note(semitone int) *Note {
	return &o.Notes[mod12(semitone)]
}
