package sahi

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Stats summarises a run
type Stats struct {
	// TileCount is the number of tiles generated, including the full image
	// pass tile when enabled
	TileCount int
	// RawDetectionCount is the number of detections returned by the detector
	// across all successful tiles
	RawDetectionCount int
	// MergedDetectionCount is the number of detections after merging
	MergedDetectionCount int
	// DroppedDegenerateCount is the number of detections dropped as their box
	// had no area once mapped and clamped to the image
	DroppedDegenerateCount int
	// FailedTileCount is the number of tiles the detector failed on,
	// including timeouts
	FailedTileCount int
	// TimedOutTileCount is the number of tiles that exceeded PerTileTimeout
	TimedOutTileCount int
	// SkippedTileCount is the number of tiles not dispatched, or whose
	// result was discarded, due to cancellation
	SkippedTileCount int
	// Elapsed is the wall time of the run
	Elapsed time.Duration
	// TileLatencyMean is the mean detector time of successful tiles
	TileLatencyMean time.Duration
	// TileLatencyP95 is the 95th percentile detector time of successful tiles
	TileLatencyP95 time.Duration
}

// setLatencies computes the latency summary of successful tile durations
func (s *Stats) setLatencies(durations []time.Duration) {

	if len(durations) == 0 {
		return
	}

	vals := make([]float64, len(durations))

	for i, d := range durations {
		vals[i] = float64(d)
	}

	sort.Float64s(vals)

	s.TileLatencyMean = time.Duration(stat.Mean(vals, nil))
	s.TileLatencyP95 = time.Duration(stat.Quantile(0.95, stat.Empirical, vals, nil))
}
