// Package testutil provides shared test helpers: temporary stores and
// databases, and synthetic keyboard frames.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"

	"github.com/starford/keyscan/internal/frames"
	"github.com/starford/keyscan/internal/index"
	"github.com/starford/keyscan/internal/piano"
)

// Synthetic scene geometry: a 120px template (10px per key) anchored at
// (Anchor.X, Anchor.Y) in a FrameSize x FrameSize frame. Key n is sampled at
// x = Anchor.X + 10n + 5.
const (
	TemplateWidth = 120
	FrameSize     = 200
)

var (
	Anchor = image.Pt(20, 100)
	Idle   = color.RGBA{R: 128, G: 128, B: 128, A: 0xff}
	Lit    = color.RGBA{R: 255, A: 0xff}
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "keyscan-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestFrames creates a temporary frames directory with a frames.Provider.
func TestFrames(t *testing.T) (string, frames.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := frames.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// Template returns a one-row idle template strip.
func Template() *image.RGBA {
	return solid(image.Rect(0, 0, TemplateWidth, 1), Idle)
}

// KeyLocation returns where the synthetic scene samples semitone n.
func KeyLocation(n int) image.Point {
	y := Anchor.Y + piano.KeyOffset
	if piano.IsAccidental(n) {
		y = Anchor.Y - piano.KeyOffset
	}
	return image.Pt(Anchor.X+10*n+5, y)
}

// KeyboardFrame returns an idle frame with the given semitones lit.
func KeyboardFrame(pressed ...int) *image.RGBA {
	img := solid(image.Rect(0, 0, FrameSize, FrameSize), Idle)
	for _, n := range pressed {
		img.Set(KeyLocation(n).X, KeyLocation(n).Y, Lit)
	}
	return img
}

// PNG encodes img.
func PNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func solid(r image.Rectangle, c color.Color) *image.RGBA {
	img := image.NewRGBA(r)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}
