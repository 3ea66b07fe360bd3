package postprocess

import (
	"fmt"
	"sort"
	"strings"

	flatbush "github.com/bmharper/flatbush-go"
	"github.com/culitrap/go-sahi/postprocess/result"
	"github.com/samber/lo"
)

// MatchMetric selects how the overlap between a cluster seed and another
// detection is scored
type MatchMetric int

const (
	// MatchIoU scores overlap as Intersection-over-Union
	MatchIoU MatchMetric = iota
	// MatchIoS scores overlap as Intersection-over-Smaller, which also merges
	// a truncated box from a tile edge into the full box that contains it
	MatchIoS
)

// String returns the metric name
func (m MatchMetric) String() string {
	switch m {
	case MatchIoU:
		return "iou"
	case MatchIoS:
		return "ios"
	default:
		return fmt.Sprintf("MatchMetric(%d)", int(m))
	}
}

// ParseMatchMetric returns the metric for the name "iou" or "ios"
func ParseMatchMetric(s string) (MatchMetric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "iou", "":
		return MatchIoU, nil
	case "ios":
		return MatchIoS, nil
	}

	return MatchIoU, fmt.Errorf("unknown match metric %q", s)
}

// MergeOptions are the parameters used to merge detections across tiles
type MergeOptions struct {
	// IoUThreshold is the minimum overlap score for a detection to be merged
	// into a cluster seed.  Boxes that do not overlap are never merged, even
	// at a threshold of zero
	IoUThreshold float64
	// Metric is the overlap score used, defaults to IoU
	Metric MatchMetric
	// ClassAgnostic merges overlapping detections even when their classes
	// differ
	ClassAgnostic bool
}

// DefaultMergeOptions returns class aware IoU merging at a 0.5 threshold
func DefaultMergeOptions() MergeOptions {
	return MergeOptions{
		IoUThreshold: 0.5,
		Metric:       MatchIoU,
	}
}

// score returns the overlap of a and b under the options metric
func (o MergeOptions) score(a, b result.BoxRect) float64 {
	if o.Metric == MatchIoS {
		return a.IoS(b)
	}

	return a.IoU(b)
}

// candidate is a detection waiting to be clustered along with its position in
// the caller's input, used as the final sort tiebreak
type candidate struct {
	det   result.GlobalDetection
	order int
	// weight is the number of detections this candidate already stands for
	weight int
}

// ranked is a cluster output along with its position in its partition
type ranked struct {
	det  result.MergedDetection
	rank int
}

// Merge reconciles detections from overlapping tiles into one detection per
// physical object.
//
// Detections are partitioned by class, sorted by descending probability (ties
// on larger area, then input order) and clustered greedily: the highest
// remaining detection seeds a cluster and absorbs every unassigned detection
// scoring at least IoUThreshold against it.  Each cluster yields the seed's
// class, probability and box.  Boxes under one pixel wide or tall are dropped
// before clustering.
//
// The result is ordered by descending probability, then class, then area.
func Merge(dets []result.GlobalDetection, opts MergeOptions) []result.MergedDetection {
	return merge(dets, nil, opts)
}

// Remerge runs a previous Merge output through the merge again.  As every
// pair of kept detections already scores under the threshold this returns
// the same detections in the same order.
func Remerge(merged []result.MergedDetection, opts MergeOptions) []result.MergedDetection {

	dets := make([]result.GlobalDetection, len(merged))
	weights := make([]int, len(merged))

	for i, m := range merged {
		dets[i] = m.Global(int64(i + 1))
		weights[i] = max(1, m.Members)
	}

	return merge(dets, weights, opts)
}

// merge clusters dets where weights, if given, holds the cluster size each
// detection already represents
func merge(dets []result.GlobalDetection, weights []int,
	opts MergeOptions) []result.MergedDetection {

	cands := make([]candidate, 0, len(dets))

	for i, d := range dets {
		if d.Box.Empty() {
			continue
		}

		w := 1
		if weights != nil {
			w = weights[i]
		}

		cands = append(cands, candidate{det: d, order: i, weight: w})
	}

	if len(cands) == 0 {
		return []result.MergedDetection{}
	}

	partitions := lo.GroupBy(cands, func(c candidate) int {
		if opts.ClassAgnostic {
			return 0
		}
		return c.det.Class
	})

	classes := lo.Keys(partitions)
	sort.Ints(classes)

	clusters := make([]ranked, 0, len(cands))

	for _, class := range classes {
		clusters = append(clusters, clusterPartition(partitions[class], opts)...)
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		a, b := clusters[i].det, clusters[j].det

		if a.Probability != b.Probability {
			return a.Probability > b.Probability
		}

		if a.Class != b.Class {
			return a.Class < b.Class
		}

		if a.Box.Area() != b.Box.Area() {
			return a.Box.Area() > b.Box.Area()
		}

		return clusters[i].rank < clusters[j].rank
	})

	return lo.Map(clusters, func(r ranked, _ int) result.MergedDetection {
		return r.det
	})
}

// clusterPartition performs greedy clustering on detections of a single
// partition
func clusterPartition(cands []candidate, opts MergeOptions) []ranked {

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]

		if a.det.Probability != b.det.Probability {
			return a.det.Probability > b.det.Probability
		}

		if a.det.Box.Area() != b.det.Box.Area() {
			return a.det.Box.Area() > b.det.Box.Area()
		}

		return a.order < b.order
	})

	n := len(cands)

	// spatial index so only boxes touching the seed are scored, any box not
	// intersecting the seed scores zero under both metrics
	fb := flatbush.NewFlatbush[float64]()
	fb.Reserve(n)

	for _, c := range cands {
		fb.Add(float64(c.det.Box.Left), float64(c.det.Box.Top),
			float64(c.det.Box.Right), float64(c.det.Box.Bottom))
	}

	fb.Finish()

	assigned := make([]bool, n)
	keep := make([]ranked, 0, n)
	nearby := make([]int, 0, n)

	for i, seed := range cands {
		if assigned[i] {
			continue
		}

		// start a new cluster with "seed"
		assigned[i] = true
		members := seed.weight

		box := seed.det.Box

		nearby = fb.SearchFast(float64(box.Left), float64(box.Top),
			float64(box.Right), float64(box.Bottom), nearby[:0])

		for _, j := range nearby {
			if assigned[j] {
				continue
			}

			s := opts.score(box, cands[j].det.Box)

			if s > 0 && s >= opts.IoUThreshold {
				assigned[j] = true
				members += cands[j].weight
			}
		}

		keep = append(keep, ranked{
			det: result.MergedDetection{
				Class:       seed.det.Class,
				Box:         box,
				Probability: seed.det.Probability,
				TileID:      seed.det.TileID,
				Members:     members,
			},
			rank: len(keep),
		})
	}

	return keep
}
