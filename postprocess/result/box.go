package result

import "fmt"

// BoxRect are the dimensions of the bounding box of a detected object in
// pixel coordinates.  Right and Bottom are exclusive, so the width of the box
// is Right-Left
type BoxRect struct {
	Left   int
	Top    int
	Right  int
	Bottom int
}

// Width returns the width of the box, or zero if the box is inverted
func (b BoxRect) Width() int {
	return max(0, b.Right-b.Left)
}

// Height returns the height of the box, or zero if the box is inverted
func (b BoxRect) Height() int {
	return max(0, b.Bottom-b.Top)
}

// Area returns the pixel-area of the box
func (b BoxRect) Area() int {
	return b.Width() * b.Height()
}

// Empty reports whether the box is less than one pixel wide or tall
func (b BoxRect) Empty() bool {
	return b.Width() < 1 || b.Height() < 1
}

// Offset returns a copy of the box moved by dx, dy
func (b BoxRect) Offset(dx, dy int) BoxRect {
	return BoxRect{
		Left:   b.Left + dx,
		Top:    b.Top + dy,
		Right:  b.Right + dx,
		Bottom: b.Bottom + dy,
	}
}

// Clamp returns a copy of the box restricted to [0,width] x [0,height]
func (b BoxRect) Clamp(width, height int) BoxRect {
	return BoxRect{
		Left:   clampInt(b.Left, 0, width),
		Top:    clampInt(b.Top, 0, height),
		Right:  clampInt(b.Right, 0, width),
		Bottom: clampInt(b.Bottom, 0, height),
	}
}

// IntersectionArea returns the raw pixel-area of overlap between two boxes
func (b BoxRect) IntersectionArea(o BoxRect) int {
	x1 := max(b.Left, o.Left)
	y1 := max(b.Top, o.Top)
	x2 := min(b.Right, o.Right)
	y2 := min(b.Bottom, o.Bottom)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	return (x2 - x1) * (y2 - y1)
}

// IoU computes the Intersection-over-Union of two boxes.  If either box has
// zero area the IoU is zero
func (b BoxRect) IoU(o BoxRect) float64 {
	areaA := b.Area()
	areaB := o.Area()

	if areaA == 0 || areaB == 0 {
		return 0
	}

	inter := b.IntersectionArea(o)

	return float64(inter) / float64(areaA+areaB-inter)
}

// IoS computes the Intersection-over-Smaller, the fraction of the smaller
// box's area covered by the other box
func (b BoxRect) IoS(o BoxRect) float64 {
	smaller := min(b.Area(), o.Area())

	if smaller == 0 {
		return 0
	}

	return float64(b.IntersectionArea(o)) / float64(smaller)
}

// String returns the box as (left top right bottom)
func (b BoxRect) String() string {
	return fmt.Sprintf("(%d %d %d %d)", b.Left, b.Top, b.Right, b.Bottom)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}
