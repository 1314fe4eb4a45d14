package models

import "image"

// Point is a pixel position. It converts to and from image.Point and
// encodes as {"x":..,"y":..}.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// PointOf converts p.
func PointOf(p image.Point) Point {
	return Point(p)
}
