package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	sahi "github.com/culitrap/go-sahi"
	"github.com/culitrap/go-sahi/postprocess/result"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))

	if err != nil {
		t.Fatalf("error opening store: %v", err)
	}

	t.Cleanup(func() { s.Close() })

	return s
}

func testResult() *sahi.Result {
	return &sahi.Result{
		Detections: []result.MergedDetection{
			{Class: 1, Probability: 0.87, TileID: 1, Members: 2,
				Box: result.BoxRect{Left: 605, Top: 300, Right: 705, Bottom: 400}},
			{Class: 0, Probability: 0.5, TileID: 3, Members: 1,
				Box: result.BoxRect{Left: 10, Top: 20, Right: 30, Bottom: 40}},
		},
		Stats: sahi.Stats{
			TileCount:            4,
			RawDetectionCount:    3,
			MergedDetectionCount: 2,
			FailedTileCount:      1,
			Elapsed:              1500 * time.Millisecond,
		},
	}
}

func TestSaveRunRoundTrip(t *testing.T) {

	s := openTestStore(t)
	ctx := context.Background()
	labels := []string{"culex", "aedes"}

	run := NewRun("trap-0412.jpg", 1280, 1280, sahi.DefaultConfig(), testResult(), labels)

	id, err := s.SaveRun(ctx, run)

	if err != nil {
		t.Fatalf("Test failed: error saving run: %v", err)
	}

	dets, err := s.Detections(ctx, id)

	if err != nil {
		t.Fatalf("Test failed: error reading detections: %v", err)
	}

	expected := []Detection{
		{RunID: id, Class: 1, Label: "aedes", Probability: 0.87, Left: 605, Top: 300,
			Right: 705, Bottom: 400, TileID: 1, Members: 2},
		{RunID: id, Class: 0, Label: "culex", Probability: 0.5, Left: 10, Top: 20,
			Right: 30, Bottom: 40, TileID: 3, Members: 1},
	}

	if diff := cmp.Diff(expected, dets, cmpopts.IgnoreFields(Detection{}, "ID")); diff != "" {
		t.Errorf("Test failed: detections mismatch (-want +got):\n%s", diff)
	}

	runs, err := s.Runs(ctx, 10)

	if err != nil {
		t.Fatalf("Test failed: error reading runs: %v", err)
	}

	if len(runs) != 1 {
		t.Fatalf("Test failed: expected 1 run, got %d", len(runs))
	}

	got := runs[0]

	if got.ID != id || got.Image != "trap-0412.jpg" || got.TileCount != 4 ||
		got.FailedTiles != 1 || got.Elapsed != 1500*time.Millisecond ||
		got.OverlapRatio != 0.2 || got.Cancelled {
		t.Errorf("Test failed: unexpected run %+v", got)
	}

	if !got.CreatedAt.Equal(run.CreatedAt) {
		t.Errorf("Test failed: created at %v, expected %v", got.CreatedAt, run.CreatedAt)
	}
}

func TestRunsNewestFirst(t *testing.T) {

	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 6, 1, 22, 0, 0, 0, time.UTC)

	for i, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		run := NewRun(name, 640, 640, sahi.DefaultConfig(), testResult(), nil)
		run.CreatedAt = base.Add(time.Duration(i) * time.Minute)

		if _, err := s.SaveRun(ctx, run); err != nil {
			t.Fatalf("error saving run: %v", err)
		}
	}

	runs, err := s.Runs(ctx, 2)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(runs) != 2 || runs[0].Image != "c.jpg" || runs[1].Image != "b.jpg" {
		t.Errorf("Test failed: expected newest two runs, got %+v", runs)
	}

	counts, err := s.LabelCounts(ctx)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// no labels given, so classes are named by number
	if diff := cmp.Diff(map[string]int{"class0": 3, "class1": 3}, counts); diff != "" {
		t.Errorf("Test failed: label counts mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveRunCancelledContext(t *testing.T) {

	s := openTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := NewRun("x.jpg", 640, 640, sahi.DefaultConfig(), testResult(), nil)

	if _, err := s.SaveRun(ctx, run); err == nil {
		t.Errorf("Test failed: expected error saving with cancelled context")
	}

	runs, err := s.Runs(context.Background(), 0)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(runs) != 0 {
		t.Errorf("Test failed: expected no runs stored, got %d", len(runs))
	}
}
