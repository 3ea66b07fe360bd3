package preprocess

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestComputePositions(t *testing.T) {

	tests := []struct {
		srcLen    int
		tileLen   int
		overlap   float64
		expected  []int
		expectLen int
	}{
		{1280, 640, 0.2, []int{0, 640}, 640},
		{1500, 640, 0.2, []int{0, 512, 860}, 640},
		{1200, 640, 0.2, []int{0, 560}, 640},
		{1664, 640, 0.2, []int{0, 512, 1024}, 640},
		{1280, 640, 0.0, []int{0, 640}, 640},
		{1000, 640, 0.2, []int{0, 360}, 640},
		{641, 640, 0.2, []int{0, 1}, 640},
		{640, 640, 0.2, []int{0}, 640},
		{300, 640, 0.2, []int{0}, 300},
	}

	for _, tc := range tests {
		positions, length := computePositions(tc.srcLen, tc.tileLen, tc.overlap)

		if diff := cmp.Diff(tc.expected, positions); diff != "" {
			t.Errorf("Test failed for src %d tile %d overlap %v: positions mismatch (-want +got):\n%s",
				tc.srcLen, tc.tileLen, tc.overlap, diff)
		}

		if length != tc.expectLen {
			t.Errorf("Test failed for src %d tile %d: expected tile length %d, got %d",
				tc.srcLen, tc.tileLen, tc.expectLen, length)
		}
	}
}

func TestGenerateTilesScenario(t *testing.T) {

	tiles, err := GenerateTiles(1280, 1280, 640, 640, 0.2)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []Tile{
		{ID: 0, X: 0, Y: 0, Width: 640, Height: 640},
		{ID: 1, X: 640, Y: 0, Width: 640, Height: 640},
		{ID: 2, X: 0, Y: 640, Width: 640, Height: 640},
		{ID: 3, X: 640, Y: 640, Width: 640, Height: 640},
	}

	if diff := cmp.Diff(expected, tiles); diff != "" {
		t.Errorf("Test failed: tiles mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateTilesSmallImage(t *testing.T) {

	tiles, err := GenerateTiles(300, 200, 640, 640, 0.2)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(tiles) != 1 {
		t.Fatalf("Test failed: expected 1 tile, got %d", len(tiles))
	}

	if tiles[0].Rect() != image.Rect(0, 0, 300, 200) {
		t.Errorf("Test failed: expected tile to span image, got %v", tiles[0])
	}
}

func TestGenerateTilesInvalid(t *testing.T) {

	tests := []struct {
		name    string
		w, h    int
		tw, th  int
		overlap float64
	}{
		{"zero width", 0, 100, 64, 64, 0.2},
		{"negative height", 100, -1, 64, 64, 0.2},
		{"zero tile", 100, 100, 0, 64, 0.2},
		{"overlap one", 100, 100, 64, 64, 1.0},
		{"negative overlap", 100, 100, 64, 64, -0.1},
	}

	for _, tc := range tests {
		_, err := GenerateTiles(tc.w, tc.h, tc.tw, tc.th, tc.overlap)

		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Test failed for %s: expected ErrInvalidConfig, got %v", tc.name, err)
		}
	}
}

// TestGenerateTilesCoverage checks every pixel is inside at least one tile,
// every tile lies within the image and tiles all have the same size
func TestGenerateTilesCoverage(t *testing.T) {

	sizes := []int{1, 37, 64, 65, 100, 127, 128, 129, 250, 333}
	overlaps := []float64{0, 0.1, 0.2, 0.5, 0.9}

	for _, w := range sizes {
		for _, h := range sizes {
			for _, ov := range overlaps {
				tiles, err := GenerateTiles(w, h, 64, 48, ov)

				if err != nil {
					t.Fatalf("unexpected error for %dx%d: %v", w, h, err)
				}

				covered := make([]bool, w*h)
				bounds := image.Rect(0, 0, w, h)

				for i, tile := range tiles {
					if tile.ID != i {
						t.Fatalf("Test failed for %dx%d: tile %d has ID %d", w, h, i, tile.ID)
					}

					if !tile.Rect().In(bounds) {
						t.Fatalf("Test failed for %dx%d overlap %v: tile %v outside image",
							w, h, ov, tile)
					}

					if tile.Width != tiles[0].Width || tile.Height != tiles[0].Height {
						t.Fatalf("Test failed for %dx%d: tile %v size differs", w, h, tile)
					}

					for y := tile.Y; y < tile.Y2(); y++ {
						for x := tile.X; x < tile.X2(); x++ {
							covered[y*w+x] = true
						}
					}
				}

				for i, c := range covered {
					if !c {
						t.Fatalf("Test failed for %dx%d overlap %v: pixel (%d,%d) not covered",
							w, h, ov, i%w, i/w)
					}
				}

				if area := CoveredArea(tiles); area != float64(w*h) {
					t.Errorf("Test failed for %dx%d overlap %v: covered area %v, expected %d",
						w, h, ov, area, w*h)
				}
			}
		}
	}
}

func TestCoveredArea(t *testing.T) {

	tests := []struct {
		name     string
		tiles    []Tile
		expected float64
	}{
		{"empty", nil, 0},
		{"single", []Tile{{Width: 10, Height: 20}}, 200},
		{"overlapping", []Tile{
			{X: 0, Y: 0, Width: 10, Height: 10},
			{X: 5, Y: 0, Width: 10, Height: 10},
		}, 150},
		{"disjoint", []Tile{
			{X: 0, Y: 0, Width: 10, Height: 10},
			{X: 20, Y: 20, Width: 10, Height: 10},
		}, 200},
		{"ring with hole", []Tile{
			{X: 0, Y: 0, Width: 30, Height: 10},
			{X: 0, Y: 20, Width: 30, Height: 10},
			{X: 0, Y: 0, Width: 10, Height: 30},
			{X: 20, Y: 0, Width: 10, Height: 30},
		}, 800},
	}

	for _, tc := range tests {
		if got := CoveredArea(tc.tiles); got != tc.expected {
			t.Errorf("Test failed for %s: expected area %v, got %v", tc.name, tc.expected, got)
		}
	}
}

func TestExtractTile(t *testing.T) {

	// source image with a non-zero origin
	src := image.NewRGBA(image.Rect(10, 10, 110, 60))
	marker := color.RGBA{R: 255, A: 255}
	src.Set(10+70, 10+20, marker)

	tile := Tile{X: 64, Y: 16, Width: 32, Height: 32}
	out := ExtractTile(src, tile)

	if out.Bounds() != image.Rect(0, 0, 32, 32) {
		t.Fatalf("Test failed: expected bounds 32x32 at origin, got %v", out.Bounds())
	}

	r, _, _, _ := out.At(6, 4).RGBA()

	if r>>8 != 255 {
		t.Errorf("Test failed: marker pixel not found at tile local (6,4)")
	}
}

func TestTileOffset(t *testing.T) {

	tile := Tile{ID: 3, X: 640, Y: 512, Width: 640, Height: 640}
	off := tile.Offset()

	if off.ID != 3 || off.X != 640 || off.Y != 512 {
		t.Errorf("Test failed: unexpected offset %+v", off)
	}

	if tile.String() != "#3 (640 512 1280 1152)" {
		t.Errorf("Test failed: unexpected string %q", tile.String())
	}
}
