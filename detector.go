package sahi

import (
	"context"
	"image"

	"github.com/culitrap/go-sahi/postprocess/result"
)

// Detector runs object detection on a single tile image.  Returned boxes are
// in tile pixel coordinates and only detections with a probability at or
// above confidenceFloor should be returned.
//
// A Detector used with MaxConcurrentTiles greater than one or with a
// PerTileTimeout must be safe for concurrent use, wrap non thread safe
// backends in a Pool.  A call that overruns its timeout is abandoned but not
// stopped, so the next tile can reach the Detector while it is still busy.
type Detector interface {
	Detect(ctx context.Context, tile image.Image, confidenceFloor float32) ([]result.LocalDetection, error)
}

// DetectorFunc adapts an ordinary function to the Detector interface
type DetectorFunc func(ctx context.Context, tile image.Image, confidenceFloor float32) ([]result.LocalDetection, error)

// Detect calls f(ctx, tile, confidenceFloor)
func (f DetectorFunc) Detect(ctx context.Context, tile image.Image,
	confidenceFloor float32) ([]result.LocalDetection, error) {
	return f(ctx, tile, confidenceFloor)
}
