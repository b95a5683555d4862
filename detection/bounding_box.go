// Package detection - Candidate and detection types, normalization and suppression.
package detection

import (
	"fmt"
	"image"
)

// BoundingBox is an axis-aligned box in source image pixels.
type BoundingBox struct {
	X1, Y1, X2, Y2 float32
}

// FromXYWH builds a box from its top-left corner and size.
//
// Arguments:
//   - x: Left edge.
//   - y: Top edge.
//   - w: Width.
//   - h: Height.
//
// Returns:
//   - The box with corners (x, y) and (x+w, y+h).
func FromXYWH(x, y, w, h float32) BoundingBox {
	return BoundingBox{X1: x, Y1: y, X2: x + w, Y2: y + h}
}

// XYWH returns the box as top-left corner plus size.
func (b BoundingBox) XYWH() (x, y, w, h float32) {
	return b.X1, b.Y1, b.X2 - b.X1, b.Y2 - b.Y1
}

// String formats the box corners for logs.
func (b BoundingBox) String() string {
	return fmt.Sprintf("(%.1f, %.1f), (%.1f, %.1f)", b.X1, b.Y1, b.X2, b.Y2)
}

// ToRect converts the box to an image.Rectangle.
//
// This won't be entirely precise due to conversion to integral rectangles, but the
// rectangle is only used to estimate overlap, so fractional pixels at the edges are fine.
//
// Returns:
//   - An image.Rectangle with canonicalized coordinates.
func (b BoundingBox) ToRect() image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2)).Canon()
}

// Area returns the area of b in pixels, after converting to an image.Rectangle.
func (b BoundingBox) Area() int {
	size := b.ToRect().Size()
	return size.X * size.Y
}

// Intersection calculates the intersection area between two boxes.
//
// Arguments:
//   - other: The other box.
//
// Returns:
//   - The area of intersection in pixels.
//
// @example
// a := BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100}
// b := BoundingBox{X1: 50, Y1: 50, X2: 150, Y2: 150}
// area := a.Intersection(b) // 2500 (50x50 overlap)
func (b BoundingBox) Intersection(other BoundingBox) float32 {
	intersected := b.ToRect().Intersect(other.ToRect()).Canon().Size()
	return float32(intersected.X * intersected.Y)
}

// Union calculates the union area between two boxes.
func (b BoundingBox) Union(other BoundingBox) float32 {
	return float32(b.Area()+other.Area()) - b.Intersection(other)
}

// IoU calculates the Intersection over Union between two boxes.
//
// Arguments:
//   - other: The other box.
//
// Returns:
//   - The IoU between 0 and 1. Two empty boxes have an IoU of 0.
//
// @example
// a := BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100}
// b := BoundingBox{X1: 50, Y1: 50, X2: 150, Y2: 150}
// iou := a.IoU(b) // ~0.143 (2500/17500)
func (b BoundingBox) IoU(other BoundingBox) float32 {
	union := b.Union(other)
	if union <= 0 {
		return 0
	}
	return b.Intersection(other) / union
}
