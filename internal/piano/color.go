package piano

import (
	"image"
	"image/color"

	"golang.org/x/exp/constraints"
)

// MatchThreshold is the L1 distance below which two pixels are considered the same color.
const MatchThreshold = 100

// Color is a 3-channel sample in R, G, B order.
type Color [3]uint8

// ColorAt samples img at (x, y). Alpha is discarded.
func ColorAt(img image.Image, x, y int) Color {
	c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	return Color{c.R, c.G, c.B}
}

// Distance returns the sum of absolute per-channel differences.
func Distance(a, b Color) int {
	d := 0
	for i := range a {
		d += absDiff(int(a[i]), int(b[i]))
	}
	return d
}

// Matches reports whether a and b are closer than MatchThreshold.
func Matches(a, b Color) bool {
	return Distance(a, b) < MatchThreshold
}

// RGBA converts c to an opaque color.RGBA.
func (c Color) RGBA() color.RGBA {
	return color.RGBA{R: c[0], G: c[1], B: c[2], A: 0xff}
}

func absDiff[T constraints.Integer](a, b T) T {
	if a > b {
		return a - b
	}
	return b - a
}
