// Package models defines the domain types shared across keyscan packages.
package models

import "time"

// FrameMetadata describes a captured frame in the frames directory.
type FrameMetadata struct {
	Name      string    `json:"name"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KeyEvent is a persisted key transition.
type KeyEvent struct {
	ID            int64     `json:"id"`
	CalibrationID string    `json:"calibration_id"`
	Frame         string    `json:"frame"`
	Code          int       `json:"code"`
	Name          string    `json:"name"`
	Pressed       bool      `json:"pressed"`
	Distance      int       `json:"distance"`
	At            time.Time `json:"at"`
}
