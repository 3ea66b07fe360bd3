package dnn

import (
	"image"
	"image/color"

	"github.com/culitrap/go-sahi/postprocess/result"
	"gocv.io/x/gocv"
)

// Resizer letterboxes a tile to the network input size and maps boxes in
// network input coordinates back onto the tile
type Resizer struct {
	// srcWidth is the width of the tile
	srcWidth int
	// srcHeight is the height of the tile
	srcHeight int
	// destWidth is the network input width
	destWidth int
	// destHeight is the network input height
	destHeight int
	// tempMat is a Mat used during the resize process
	tempMat gocv.Mat
	// letterbox parameters used in scaling
	xPad  int
	yPad  int
	scale float32
	// resize dimensions
	resizeW int
	resizeH int
}

// NewResizer returns a resizer scaling tiles of srcWidth x srcHeight to the
// destWidth x destHeight network input
func NewResizer(srcWidth, srcHeight, destWidth, destHeight int) *Resizer {
	r := &Resizer{
		destWidth:  destWidth,
		destHeight: destHeight,
		tempMat:    gocv.NewMat(),
	}

	r.SetSource(srcWidth, srcHeight)

	return r
}

// Close frees memory allocated during resize process
func (r *Resizer) Close() error {
	return r.tempMat.Close()
}

// SetSource recalculates the scaling for a tile of a different size, the
// single tile of an image smaller than the tile size or a full image pass
func (r *Resizer) SetSource(srcWidth, srcHeight int) {

	if srcWidth == r.srcWidth && srcHeight == r.srcHeight {
		return
	}

	r.srcWidth = srcWidth
	r.srcHeight = srcHeight

	r.resizeW = r.destWidth
	r.resizeH = r.destHeight

	scaleW := float32(r.destWidth) / float32(r.srcWidth)
	scaleH := float32(r.destHeight) / float32(r.srcHeight)
	r.scale = scaleH

	if scaleW < scaleH {
		r.scale = scaleW
		r.resizeH = int(float32(r.srcHeight) * r.scale)
	} else {
		r.resizeW = int(float32(r.srcWidth) * r.scale)
	}

	r.yPad = (r.destHeight - r.resizeH) / 2
	r.xPad = (r.destWidth - r.resizeW) / 2
}

// LetterBoxResize resizes the tile to the network input size whilst
// maintaining its aspect.  Color is that used for letter box padding.
func (r *Resizer) LetterBoxResize(src gocv.Mat, dest *gocv.Mat, color color.RGBA) {

	// tile already matches the network input
	if r.srcWidth == r.destWidth && r.srcHeight == r.destHeight {
		src.CopyTo(dest)
		return
	}

	gocv.Resize(src, &r.tempMat, image.Pt(r.resizeW, r.resizeH),
		0, 0, gocv.InterpolationArea)

	gocv.CopyMakeBorder(r.tempMat, dest, r.yPad, r.destHeight-r.resizeH-r.yPad,
		r.xPad, r.destWidth-r.resizeW-r.xPad, gocv.BorderConstant, color)
}

// ToTile maps a box in network input coordinates onto the tile, clamping it
// to the letterboxed area
func (r *Resizer) ToTile(x1, y1, x2, y2 float32) result.BoxRect {

	maxX := float32(r.resizeW)
	maxY := float32(r.resizeH)

	return result.BoxRect{
		Left:   int(clamp(x1-float32(r.xPad), 0, maxX) / r.scale),
		Top:    int(clamp(y1-float32(r.yPad), 0, maxY) / r.scale),
		Right:  int(clamp(x2-float32(r.xPad), 0, maxX) / r.scale),
		Bottom: int(clamp(y2-float32(r.yPad), 0, maxY) / r.scale),
	}
}

// ScaleFactor returns the scale factor used in letterbox resize
func (r *Resizer) ScaleFactor() float32 {
	return r.scale
}

// XPad returns the x padding used in letterbox resize
func (r *Resizer) XPad() int {
	return r.xPad
}

// YPad returns the y padding used in letterbox resize
func (r *Resizer) YPad() int {
	return r.yPad
}

func clamp(val, min, max float32) float32 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
