package preprocess

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/culitrap/go-sahi/postprocess/result"
)

// ErrInvalidConfig is returned for tiling parameters that can not produce a
// valid set of tiles
var ErrInvalidConfig = errors.New("invalid config")

// strideEpsilon absorbs floating point error when computing the stride, so
// 640*(1-0.2) gives 512 and not 511
const strideEpsilon = 1e-9

// Tile defines the rectangle of the source image a single detector pass is
// run on
type Tile struct {
	// ID is the row-major index of the tile
	ID int
	// X is the coordinate of the tiles left edge
	X int
	// Y is the coordinate of the tiles top edge
	Y int
	// Width of the tile in pixels
	Width int
	// Height of the tile in pixels
	Height int
	// FullImage marks the tile used for a whole image detector pass
	FullImage bool
}

// X2 returns the coordinate of the tiles right edge (exclusive)
func (t Tile) X2() int {
	return t.X + t.Width
}

// Y2 returns the coordinate of the tiles bottom edge (exclusive)
func (t Tile) Y2() int {
	return t.Y + t.Height
}

// Rect returns the tile as an image.Rectangle relative to the image origin
func (t Tile) Rect() image.Rectangle {
	return image.Rect(t.X, t.Y, t.X2(), t.Y2())
}

// Offset returns the tiles location for mapping detections into source image
// coordinates
func (t Tile) Offset() result.TileOffset {
	return result.TileOffset{ID: t.ID, X: t.X, Y: t.Y}
}

// String returns the tile as "#id (x y x2 y2)"
func (t Tile) String() string {
	return fmt.Sprintf("#%d (%d %d %d %d)", t.ID, t.X, t.Y, t.X2(), t.Y2())
}

// Stride returns the step between neighbouring tiles of length tileLen with
// the given overlap ratio, never less than one pixel
func Stride(tileLen int, overlapRatio float64) int {
	stride := int(math.Floor(float64(tileLen)*(1-overlapRatio) + strideEpsilon))

	if stride < 1 {
		stride = 1
	}

	return stride
}

// GenerateTiles returns the overlapping tiles covering an image of width x
// height in row-major order.
//
// Along each axis tiles start at 0, stride, 2*stride... while they fit, and
// the final tile is anchored to the far edge of the image, shifted back
// rather than padded.  If the last strided tile is not needed to reach the
// anchored tile it is shifted onto the edge instead of emitting an extra
// tile.  A tile size at least as large as the image produces a single tile
// spanning that axis.
func GenerateTiles(width, height, tileWidth, tileHeight int,
	overlapRatio float64) ([]Tile, error) {

	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: image dimensions %dx%d must be positive",
			ErrInvalidConfig, width, height)
	}

	if tileWidth <= 0 || tileHeight <= 0 {
		return nil, fmt.Errorf("%w: tile dimensions %dx%d must be positive",
			ErrInvalidConfig, tileWidth, tileHeight)
	}

	if math.IsNaN(overlapRatio) || overlapRatio < 0 || overlapRatio >= 1 {
		return nil, fmt.Errorf("%w: overlap ratio %v must be in [0,1)",
			ErrInvalidConfig, overlapRatio)
	}

	xs, tileW := computePositions(width, tileWidth, overlapRatio)
	ys, tileH := computePositions(height, tileHeight, overlapRatio)

	tiles := make([]Tile, 0, len(xs)*len(ys))

	for _, y := range ys {
		for _, x := range xs {
			tiles = append(tiles, Tile{
				ID:     len(tiles),
				X:      x,
				Y:      y,
				Width:  tileW,
				Height: tileH,
			})
		}
	}

	return tiles, nil
}

// FullImageTile returns a tile covering the whole image, used to run the
// detector over the complete image alongside the slices
func FullImageTile(id, width, height int) Tile {
	return Tile{
		ID:        id,
		Width:     width,
		Height:    height,
		FullImage: true,
	}
}

// computePositions returns the start coordinates (0-based) of each tile along
// one axis of length srcLen, and the length of the tiles
func computePositions(srcLen, tileLen int, overlapRatio float64) ([]int, int) {

	// no slicing needed on this axis
	if tileLen >= srcLen {
		return []int{0}, srcLen
	}

	stride := Stride(tileLen, overlapRatio)
	last := srcLen - tileLen

	positions := make([]int, 0, last/stride+2)

	// strided tiles that stop short of the far edge
	for p := 0; p < last; p += stride {
		positions = append(positions, p)
	}

	n := len(positions)

	// shift the last strided tile onto the edge when the tile before it
	// already reaches the anchored position, otherwise add the edge tile
	if n >= 2 && positions[n-2]+tileLen >= last {
		positions[n-1] = last
	} else {
		positions = append(positions, last)
	}

	return positions, tileLen
}
