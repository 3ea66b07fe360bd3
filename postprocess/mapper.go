package postprocess

import (
	"errors"
	"fmt"

	"github.com/culitrap/go-sahi/postprocess/result"
)

// ErrDegenerateBox is returned when a detection box collapses to less than a
// pixel wide or tall once clamped to the image bounds
var ErrDegenerateBox = errors.New("degenerate box")

// ToGlobal remaps a tile-local detection into the coordinates of the source
// image of the given width and height.  Boxes overrunning the image edge are
// clamped, and boxes with nothing left inside the image return
// ErrDegenerateBox
func ToGlobal(det result.LocalDetection, tile result.TileOffset,
	width, height int) (result.GlobalDetection, error) {

	box := det.Box.Offset(tile.X, tile.Y).Clamp(width, height)

	if box.Empty() {
		return result.GlobalDetection{}, fmt.Errorf("%w: %s from tile %d clamps to %s",
			ErrDegenerateBox, det.Box, tile.ID, box)
	}

	return result.GlobalDetection{
		Class:       det.Class,
		Box:         box,
		Probability: det.Probability,
		TileID:      tile.ID,
	}, nil
}
