package sahi

import (
	"fmt"

	"github.com/culitrap/go-sahi/preprocess"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

var (
	// ErrInvalidConfig is returned when the configuration or image can not
	// be sliced
	ErrInvalidConfig = preprocess.ErrInvalidConfig
	// ErrAllTilesFailed is returned when no tile produced a detector result
	ErrAllTilesFailed = errors.New("all tiles failed")
)

// TileError records the failure of the detector on a single tile
type TileError struct {
	// Tile is the tile the detector failed on
	Tile preprocess.Tile
	// Err is the detector or timeout error
	Err error
	// TimedOut is set when the tile exceeded the per tile timeout
	TimedOut bool
}

// Error returns the error message
func (e *TileError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("tile %v timed out: %v", e.Tile, e.Err)
	}

	return fmt.Sprintf("tile %v failed: %v", e.Tile, e.Err)
}

// Unwrap returns the underlying error
func (e *TileError) Unwrap() error {
	return e.Err
}

// AllTilesFailedError is returned when every tile of a run failed
type AllTilesFailedError struct {
	Failures []*TileError
}

// Error returns the combined message of all tile failures
func (e *AllTilesFailedError) Error() string {
	return fmt.Sprintf("%v: %v", ErrAllTilesFailed, e.combined())
}

// Unwrap returns ErrAllTilesFailed along with every tile error, so
// errors.Is matches either
func (e *AllTilesFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, ErrAllTilesFailed)

	for _, f := range e.Failures {
		errs = append(errs, f)
	}

	return errs
}

func (e *AllTilesFailedError) combined() error {
	var err error

	for _, f := range e.Failures {
		err = multierr.Append(err, f)
	}

	return err
}
