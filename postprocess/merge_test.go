package postprocess

import (
	"math"
	"testing"

	"github.com/culitrap/go-sahi/postprocess/result"
	"github.com/google/go-cmp/cmp"
)

// det is a shorthand for building a GlobalDetection
func det(class int, prob float32, l, t, r, b int, tile int) result.GlobalDetection {
	return result.GlobalDetection{
		Class:       class,
		Box:         result.BoxRect{Left: l, Top: t, Right: r, Bottom: b},
		Probability: prob,
		TileID:      tile,
	}
}

func TestIoU(t *testing.T) {

	tests := []struct {
		a, b     result.BoxRect
		expected float64
	}{
		{result.BoxRect{Left: 0, Top: 0, Right: 10, Bottom: 10}, result.BoxRect{Left: 0, Top: 0, Right: 10, Bottom: 10}, 1},
		{result.BoxRect{Left: 0, Top: 0, Right: 10, Bottom: 10}, result.BoxRect{Left: 5, Top: 0, Right: 15, Bottom: 10}, 50.0 / 150.0},
		{result.BoxRect{Left: 0, Top: 0, Right: 10, Bottom: 10}, result.BoxRect{Left: 10, Top: 0, Right: 20, Bottom: 10}, 0},
		{result.BoxRect{Left: 0, Top: 0, Right: 10, Bottom: 10}, result.BoxRect{Left: 20, Top: 20, Right: 30, Bottom: 30}, 0},
		// zero area boxes never overlap
		{result.BoxRect{Left: 0, Top: 0, Right: 0, Bottom: 10}, result.BoxRect{Left: 0, Top: 0, Right: 10, Bottom: 10}, 0},
		{result.BoxRect{Left: 5, Top: 5, Right: 5, Bottom: 5}, result.BoxRect{Left: 5, Top: 5, Right: 5, Bottom: 5}, 0},
	}

	for _, tc := range tests {
		got := tc.a.IoU(tc.b)

		if math.Abs(got-tc.expected) > 1e-9 {
			t.Errorf("IoU of %s and %s: expected %f, got %f", tc.a, tc.b, tc.expected, got)
		}

		if rev := tc.b.IoU(tc.a); math.Abs(rev-got) > 1e-9 {
			t.Errorf("IoU not symmetric for %s and %s: %f vs %f", tc.a, tc.b, got, rev)
		}
	}
}

func TestIoS(t *testing.T) {
	big := result.BoxRect{Left: 0, Top: 0, Right: 100, Bottom: 100}
	small := result.BoxRect{Left: 80, Top: 10, Right: 100, Bottom: 30}

	if got := big.IoS(small); got != 1 {
		t.Errorf("expected contained box IoS of 1, got %f", got)
	}

	if got := big.IoU(small); got >= 0.5 {
		t.Errorf("expected contained box IoU under 0.5, got %f", got)
	}
}

func TestMergeBoundaryObject(t *testing.T) {
	// one object centred on the vertical boundary between two tiles, seen
	// from both with a slightly different box, IoU ~0.9
	dets := []result.GlobalDetection{
		det(0, 0.81, 600, 300, 700, 400, 0),
		det(0, 0.87, 605, 300, 705, 400, 1),
	}

	if iou := dets[0].Box.IoU(dets[1].Box); iou < 0.85 || iou > 0.95 {
		t.Fatalf("test setup expected IoU ~0.9, got %f", iou)
	}

	got := Merge(dets, DefaultMergeOptions())

	expected := []result.MergedDetection{
		{
			Class:       0,
			Box:         result.BoxRect{Left: 605, Top: 300, Right: 705, Bottom: 400},
			Probability: 0.87,
			TileID:      1,
			Members:     2,
		},
	}

	if diff := cmp.Diff(expected, got); diff != "" {
		t.Errorf("merge mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeNeverAcrossClasses(t *testing.T) {
	dets := []result.GlobalDetection{
		det(1, 0.9, 10, 10, 50, 50, 0),
		det(2, 0.8, 10, 10, 50, 50, 1),
	}

	got := Merge(dets, DefaultMergeOptions())

	if len(got) != 2 {
		t.Fatalf("expected 2 detections of different classes, got %d", len(got))
	}

	if got[0].Class != 1 || got[1].Class != 2 {
		t.Errorf("unexpected classes %d, %d", got[0].Class, got[1].Class)
	}
}

func TestMergeClassAgnostic(t *testing.T) {
	dets := []result.GlobalDetection{
		det(1, 0.7, 10, 10, 50, 50, 0),
		det(2, 0.8, 10, 10, 50, 50, 1),
	}

	opts := DefaultMergeOptions()
	opts.ClassAgnostic = true

	got := Merge(dets, opts)

	if len(got) != 1 {
		t.Fatalf("expected class agnostic merge to 1 detection, got %d", len(got))
	}

	if got[0].Class != 2 || got[0].Probability != 0.8 {
		t.Errorf("expected seed of class 2 with 0.8, got %+v", got[0])
	}
}

func TestMergeDuplicateKeepsHigherConfidence(t *testing.T) {
	dets := []result.GlobalDetection{
		det(3, 0.55, 100, 100, 140, 140, 0),
		det(3, 0.92, 102, 101, 141, 140, 1),
		// distinct nearby object of the same class must survive
		det(3, 0.60, 150, 100, 190, 140, 1),
	}

	got := Merge(dets, DefaultMergeOptions())

	if len(got) != 2 {
		t.Fatalf("expected 2 detections, got %d: %+v", len(got), got)
	}

	if got[0].Probability != 0.92 || got[0].Members != 2 {
		t.Errorf("expected first detection to be the 0.92 seed of 2, got %+v", got[0])
	}

	if got[1].Probability != 0.60 || got[1].Members != 1 {
		t.Errorf("expected second detection to be the lone 0.60, got %+v", got[1])
	}
}

func TestMergeFourTileChain(t *testing.T) {
	// object in the middle of a four tile overlap is seen by every tile,
	// including diagonal neighbours
	dets := []result.GlobalDetection{
		det(0, 0.70, 500, 500, 560, 560, 0),
		det(0, 0.75, 502, 501, 561, 560, 1),
		det(0, 0.90, 501, 502, 560, 561, 2),
		det(0, 0.65, 500, 500, 559, 559, 3),
	}

	got := Merge(dets, DefaultMergeOptions())

	if len(got) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(got))
	}

	if got[0].TileID != 2 || got[0].Members != 4 {
		t.Errorf("expected seed from tile 2 with 4 members, got %+v", got[0])
	}
}

func TestMergeTieBreak(t *testing.T) {
	// equal probability, larger area wins the seed
	dets := []result.GlobalDetection{
		det(0, 0.8, 0, 0, 40, 40, 0),
		det(0, 0.8, 0, 0, 42, 42, 1),
	}

	got := Merge(dets, DefaultMergeOptions())

	if len(got) != 1 || got[0].TileID != 1 {
		t.Fatalf("expected larger box from tile 1 as seed, got %+v", got)
	}

	// equal probability and area, first in input order wins
	dets = []result.GlobalDetection{
		det(0, 0.8, 0, 0, 40, 40, 5),
		det(0, 0.8, 1, 1, 41, 41, 6),
	}

	got = Merge(dets, DefaultMergeOptions())

	if len(got) != 1 || got[0].TileID != 5 {
		t.Fatalf("expected first input as seed, got %+v", got)
	}
}

func TestMergeDropsDegenerate(t *testing.T) {
	dets := []result.GlobalDetection{
		det(0, 0.9, 10, 10, 10, 30, 0),
		det(0, 0.8, 10, 10, 30, 30, 0),
	}

	got := Merge(dets, DefaultMergeOptions())

	if len(got) != 1 || got[0].Probability != 0.8 {
		t.Errorf("expected only the non degenerate box, got %+v", got)
	}
}

func TestMergeIoSMetric(t *testing.T) {
	// a truncated box at a tile edge is contained within the full box
	dets := []result.GlobalDetection{
		det(0, 0.9, 0, 0, 100, 100, 0),
		det(0, 0.6, 80, 10, 100, 30, 1),
	}

	if got := Merge(dets, DefaultMergeOptions()); len(got) != 2 {
		t.Errorf("expected IoU metric to keep both boxes, got %d", len(got))
	}

	opts := DefaultMergeOptions()
	opts.Metric = MatchIoS

	if got := Merge(dets, opts); len(got) != 1 {
		t.Errorf("expected IoS metric to merge contained box, got %d", len(got))
	}
}

func TestMergeZeroThresholdKeepsDisjoint(t *testing.T) {
	dets := []result.GlobalDetection{
		det(0, 0.9, 0, 0, 10, 10, 0),
		det(0, 0.8, 80, 80, 90, 90, 1),
		// touches the first box along an edge only
		det(0, 0.7, 10, 0, 20, 10, 2),
		det(0, 0.6, 5, 5, 15, 15, 3),
	}

	opts := DefaultMergeOptions()
	opts.IoUThreshold = 0

	got := Merge(dets, opts)

	if len(got) != 3 {
		t.Fatalf("expected 3 merged detections, got %d: %+v", len(got), got)
	}

	if got[0].Members != 2 || got[1].Members != 1 || got[2].Members != 1 {
		t.Errorf("expected only the overlapping box to join the seed, got %+v", got)
	}
}

func TestMergeIdempotent(t *testing.T) {

	sets := [][]result.GlobalDetection{
		{},
		{
			det(0, 0.81, 600, 300, 700, 400, 0),
			det(0, 0.87, 605, 300, 705, 400, 1),
			det(1, 0.87, 605, 300, 705, 400, 1),
			det(0, 0.50, 640, 300, 740, 400, 1),
			det(0, 0.40, 660, 300, 760, 400, 1),
			det(2, 0.99, 0, 0, 5, 5, 0),
			det(2, 0.99, 3, 3, 8, 8, 0),
			det(2, 0.30, 1, 1, 6, 6, 0),
		},
	}

	for _, threshold := range []float64{0.1, 0.3, 0.5, 0.9, 1} {
		for i, dets := range sets {
			opts := DefaultMergeOptions()
			opts.IoUThreshold = threshold

			once := Merge(dets, opts)
			twice := Remerge(once, opts)

			if diff := cmp.Diff(once, twice); diff != "" {
				t.Errorf("set %d threshold %.1f: merge not idempotent (-once +twice):\n%s",
					i, threshold, diff)
			}
		}
	}
}

func TestMergeDeterministicOrder(t *testing.T) {
	dets := []result.GlobalDetection{
		det(5, 0.5, 0, 0, 10, 10, 0),
		det(1, 0.9, 100, 0, 110, 10, 0),
		det(3, 0.9, 200, 0, 230, 30, 0),
		det(3, 0.9, 300, 0, 310, 10, 0),
	}

	got := Merge(dets, DefaultMergeOptions())

	expected := []int{1, 3, 3, 5}

	for i, d := range got {
		if d.Class != expected[i] {
			t.Fatalf("unexpected order at %d: %+v", i, got)
		}
	}

	// within class 3 the larger box comes first
	if got[1].Box.Area() < got[2].Box.Area() {
		t.Errorf("expected larger box first within equal probability")
	}
}

func TestParseMatchMetric(t *testing.T) {

	tests := []struct {
		in       string
		expected MatchMetric
		err      bool
	}{
		{"iou", MatchIoU, false},
		{"IOS", MatchIoS, false},
		{"", MatchIoU, false},
		{"giou", MatchIoU, true},
	}

	for _, tc := range tests {
		got, err := ParseMatchMetric(tc.in)

		if (err != nil) != tc.err {
			t.Errorf("%q: unexpected error state %v", tc.in, err)
		}

		if got != tc.expected {
			t.Errorf("%q: expected %s, got %s", tc.in, tc.expected, got)
		}
	}
}
