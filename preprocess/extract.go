package preprocess

import (
	"image"

	"github.com/disintegration/imaging"
)

// ExtractTile copies the tile region out of the source image.  The source is
// only read, so tiles can be extracted concurrently from a shared image.  The
// returned image has its origin at (0,0)
func ExtractTile(src image.Image, t Tile) *image.NRGBA {
	rect := t.Rect().Add(src.Bounds().Min)
	return imaging.Crop(src, rect)
}
