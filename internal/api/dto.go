package api

import (
	"github.com/starford/keyscan/internal/keyservice"
	"github.com/starford/keyscan/internal/models"
)

// CalibrateRequest is the request body for calibrating the octave.
// AnchorX and AnchorY override the configured anchor when both are set.
type CalibrateRequest struct {
	Frame   string `json:"frame" example:"calibration.png" validate:"required"`
	AnchorX *int   `json:"anchor_x,omitempty" example:"120"`
	AnchorY *int   `json:"anchor_y,omitempty" example:"340"`
}

// OctaveResponse is the calibration plus live key states (aliased from the domain layer).
type OctaveResponse = keyservice.OctaveView

// FrameResult reports one processed frame (aliased from the domain layer).
type FrameResult = keyservice.FrameResult

// FrameListResponse wraps the frames on disk.
type FrameListResponse struct {
	Frames []models.FrameMetadata `json:"frames" validate:"required"`
	Total  int                    `json:"total" example:"3" validate:"required"`
}

// HistoryResponse wraps paginated key events.
type HistoryResponse struct {
	Events []models.KeyEvent `json:"events" validate:"required"`
	Total  int               `json:"total" example:"42" validate:"required"`
}
