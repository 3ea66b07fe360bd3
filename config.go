package sahi

import (
	"math"
	"time"

	"github.com/culitrap/go-sahi/postprocess"
	"github.com/pkg/errors"
)

// Config holds the slicing, filtering and merging parameters of a run
type Config struct {
	// TileWidth and TileHeight are the slice dimensions, normally the same
	// as the detector's input tensor
	TileWidth  int
	TileHeight int
	// OverlapRatio is the fraction of a tile shared with its neighbour, in
	// the range [0,1)
	OverlapRatio float64
	// ConfidenceFloor is passed to the detector, detections below it are
	// discarded
	ConfidenceFloor float64
	// IoUThreshold is the match score at which two detections are merged
	IoUThreshold float64
	// PerTileTimeout bounds a single detector call, zero for no limit.  Timed
	// out calls keep running, so the Detector must be safe for concurrent use
	PerTileTimeout time.Duration
	// MaxConcurrentTiles is the number of tiles inferred in parallel, values
	// of one or less run the tiles sequentially
	MaxConcurrentTiles int
	// MatchMetric selects the overlap measure used when merging
	MatchMetric postprocess.MatchMetric
	// ClassAgnostic merges overlapping detections regardless of class
	ClassAgnostic bool
	// FullImagePass runs the detector over the whole image in addition to
	// the slices
	FullImagePass bool
}

// DefaultConfig returns the configuration used by the camera rig, 640x640
// tiles with 20% overlap
func DefaultConfig() Config {
	return Config{
		TileWidth:          640,
		TileHeight:         640,
		OverlapRatio:       0.2,
		ConfidenceFloor:    0.25,
		IoUThreshold:       0.5,
		PerTileTimeout:     0,
		MaxConcurrentTiles: 1,
		MatchMetric:        postprocess.MatchIoU,
	}
}

// Validate checks the configuration, returning an error wrapping
// ErrInvalidConfig naming the offending field
func (c Config) Validate() error {

	if c.TileWidth <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "tile width %d must be positive", c.TileWidth)
	}

	if c.TileHeight <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "tile height %d must be positive", c.TileHeight)
	}

	if math.IsNaN(c.OverlapRatio) || c.OverlapRatio < 0 || c.OverlapRatio >= 1 {
		return errors.Wrapf(ErrInvalidConfig, "overlap ratio %v must be in [0,1)", c.OverlapRatio)
	}

	if math.IsNaN(c.ConfidenceFloor) || c.ConfidenceFloor <= 0 || c.ConfidenceFloor > 1 {
		return errors.Wrapf(ErrInvalidConfig, "confidence floor %v must be in (0,1]", c.ConfidenceFloor)
	}

	if math.IsNaN(c.IoUThreshold) || c.IoUThreshold <= 0 || c.IoUThreshold > 1 {
		return errors.Wrapf(ErrInvalidConfig, "IoU threshold %v must be in (0,1]", c.IoUThreshold)
	}

	if c.PerTileTimeout < 0 {
		return errors.Wrapf(ErrInvalidConfig, "per tile timeout %v must not be negative", c.PerTileTimeout)
	}

	if c.MatchMetric != postprocess.MatchIoU && c.MatchMetric != postprocess.MatchIoS {
		return errors.Wrapf(ErrInvalidConfig, "unknown match metric %d", c.MatchMetric)
	}

	return nil
}

// mergeOptions returns the merger settings for the configuration
func (c Config) mergeOptions() postprocess.MergeOptions {
	return postprocess.MergeOptions{
		IoUThreshold:  c.IoUThreshold,
		Metric:        c.MatchMetric,
		ClassAgnostic: c.ClassAgnostic,
	}
}
