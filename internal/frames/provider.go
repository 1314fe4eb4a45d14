// Package frames stores captured frame images on disk and watches for new ones.
package frames

import (
	"path/filepath"
	"strings"

	"github.com/starford/keyscan/internal/models"
)

// Provider is the interface for frame file operations. Names are flat file
// names inside the frames directory.
type Provider interface {
	// List returns metadata for every image file, sorted by name.
	List() ([]models.FrameMetadata, error)
	// Read returns the raw bytes of a frame.
	Read(name string) ([]byte, error)
	// Write atomically writes a frame.
	Write(name string, content []byte) error
	// Delete removes a frame.
	Delete(name string) error
}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
}

// IsImage reports whether name has a supported image extension.
func IsImage(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}
