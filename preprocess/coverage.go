package preprocess

import (
	"math"

	clipper "github.com/ctessum/go.clipper"
)

// CoveredArea returns the pixel area of the union of the tiles
func CoveredArea(tiles []Tile) float64 {

	if len(tiles) == 0 {
		return 0
	}

	paths := make(clipper.Paths, 0, len(tiles))

	for _, t := range tiles {
		paths = append(paths, clipper.Path{
			&clipper.IntPoint{X: clipper.CInt(t.X), Y: clipper.CInt(t.Y)},
			&clipper.IntPoint{X: clipper.CInt(t.X2()), Y: clipper.CInt(t.Y)},
			&clipper.IntPoint{X: clipper.CInt(t.X2()), Y: clipper.CInt(t.Y2())},
			&clipper.IntPoint{X: clipper.CInt(t.X), Y: clipper.CInt(t.Y2())},
		})
	}

	c := clipper.NewClipper(clipper.IoNone)
	c.AddPaths(paths, clipper.PtSubject, true)

	solution, ok := c.Execute1(clipper.CtUnion, clipper.PftNonZero, clipper.PftNonZero)

	if !ok {
		return 0
	}

	// outer rings and holes have opposite orientation, so summing the signed
	// areas subtracts the holes
	var area float64

	for _, path := range solution {
		area += signedArea(path)
	}

	return math.Abs(area)
}

// signedArea returns the shoelace area of a closed path
func signedArea(path clipper.Path) float64 {

	var sum float64

	for i := range path {
		a := path[i]
		b := path[(i+1)%len(path)]
		sum += float64(a.X)*float64(b.Y) - float64(b.X)*float64(a.Y)
	}

	return sum / 2
}
