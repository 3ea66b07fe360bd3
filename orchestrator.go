package sahi

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/culitrap/go-sahi/postprocess"
	"github.com/culitrap/go-sahi/postprocess/result"
	"github.com/culitrap/go-sahi/preprocess"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of a sliced inference run
type Result struct {
	// Detections are the merged detections in source image coordinates,
	// ordered by probability descending
	Detections []result.MergedDetection
	// Stats summarises the run
	Stats Stats
	// Cancelled is set when the context was cancelled before every tile was
	// processed, Detections then only covers the completed tiles
	Cancelled bool
	// Failures lists the tiles the detector failed on
	Failures []*TileError
	// Tiles are the tiles the image was sliced into
	Tiles []preprocess.Tile
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger used to report tile failures and run summaries
func WithLogger(log *zap.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// Orchestrator slices images into tiles, runs a Detector on each tile and
// merges the detections back into source image coordinates.  It holds no per
// run state and can be shared.
type Orchestrator struct {
	cfg Config
	log *zap.Logger
}

// NewOrchestrator validates the configuration and returns an Orchestrator
func NewOrchestrator(cfg Config, opts ...Option) (*Orchestrator, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg: cfg,
		log: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

// Config returns the orchestrators configuration
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Run performs sliced inference on a single image using the default
// logger-less Orchestrator
func Run(ctx context.Context, img image.Image, det Detector, cfg Config) (*Result, error) {

	o, err := NewOrchestrator(cfg)

	if err != nil {
		return nil, err
	}

	return o.Run(ctx, img, det)
}

// Run slices the image, runs the detector on every tile and merges the
// results.  Tile failures are recorded in the Result and only a run where
// every tile failed returns an error, an *AllTilesFailedError returned along
// with the Result.  Cancelling the context stops new tiles
// being dispatched and returns the detections of the completed tiles with
// Result.Cancelled set.
func (o *Orchestrator) Run(ctx context.Context, img image.Image, det Detector) (*Result, error) {

	start := time.Now()

	if img == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "image is nil")
	}

	if det == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "detector is nil")
	}

	width := img.Bounds().Dx()
	height := img.Bounds().Dy()

	tiles, err := preprocess.GenerateTiles(width, height,
		o.cfg.TileWidth, o.cfg.TileHeight, o.cfg.OverlapRatio)

	if err != nil {
		return nil, errors.Wrap(err, "error slicing image")
	}

	// a single tile already spans the whole image
	if o.cfg.FullImagePass && len(tiles) > 1 {
		tiles = append(tiles, preprocess.FullImageTile(len(tiles), width, height))
	}

	col := newCollector(len(tiles))

	job := &tileJob{
		img:    img,
		det:    det,
		width:  width,
		height: height,
		floor:  float32(o.cfg.ConfidenceFloor),
		col:    col,
	}

	if o.cfg.MaxConcurrentTiles <= 1 {
		o.runSequential(ctx, job, tiles)
	} else {
		o.runConcurrent(ctx, job, tiles)
	}

	res := o.finish(col, tiles)
	res.Stats.Elapsed = time.Since(start)

	o.log.Debug("sliced inference complete",
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Int("tiles", res.Stats.TileCount),
		zap.Int("raw", res.Stats.RawDetectionCount),
		zap.Int("merged", res.Stats.MergedDetectionCount),
		zap.Int("degenerate", res.Stats.DroppedDegenerateCount),
		zap.Int("failed", res.Stats.FailedTileCount),
		zap.Int("skipped", res.Stats.SkippedTileCount),
		zap.Bool("cancelled", res.Cancelled),
		zap.Duration("elapsed", res.Stats.Elapsed),
	)

	if !res.Cancelled && len(res.Failures) == len(tiles) {
		return res, &AllTilesFailedError{Failures: res.Failures}
	}

	return res, nil
}

// runSequential processes the tiles one at a time in the calling goroutine
func (o *Orchestrator) runSequential(ctx context.Context, job *tileJob,
	tiles []preprocess.Tile) {

	for i, tile := range tiles {
		if ctx.Err() != nil {
			job.col.skip(len(tiles) - i)
			return
		}

		o.processTile(ctx, job, tile)
	}
}

// runConcurrent processes up to MaxConcurrentTiles tiles in parallel
func (o *Orchestrator) runConcurrent(ctx context.Context, job *tileJob,
	tiles []preprocess.Tile) {

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.MaxConcurrentTiles)

	for i, tile := range tiles {
		if ctx.Err() != nil {
			job.col.skip(len(tiles) - i)
			break
		}

		g.Go(func() error {
			o.processTile(ctx, job, tile)
			return nil
		})
	}

	// tile failures are collected, never returned to the group
	_ = g.Wait()
}

// tileJob holds the per run values shared by every tile worker
type tileJob struct {
	img    image.Image
	det    Detector
	width  int
	height int
	floor  float32
	col    *collector
}

// detectResult is the outcome of a single detector call
type detectResult struct {
	dets []result.LocalDetection
	err  error
}

// processTile extracts the tile, runs the detector and maps its detections
// into source image coordinates
func (o *Orchestrator) processTile(ctx context.Context, job *tileJob,
	tile preprocess.Tile) {

	if ctx.Err() != nil {
		job.col.skip(1)
		return
	}

	sub := preprocess.ExtractTile(job.img, tile)

	// the timeout covers the detector call only
	tctx := ctx
	cancel := func() {}

	if o.cfg.PerTileTimeout > 0 {
		tctx, cancel = context.WithTimeout(ctx, o.cfg.PerTileTimeout)
	}

	defer cancel()

	begin := time.Now()
	dets, err := detect(tctx, job.det, sub, job.floor)
	elapsed := time.Since(begin)

	// results arriving after cancellation are discarded
	if ctx.Err() != nil {
		job.col.cancel()
		return
	}

	if err != nil {
		tileErr := &TileError{
			Tile:     tile,
			Err:      err,
			TimedOut: errors.Is(tctx.Err(), context.DeadlineExceeded),
		}

		o.log.Warn("tile detection failed",
			zap.Stringer("tile", tile),
			zap.Bool("timedOut", tileErr.TimedOut),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)

		job.col.fail(tileErr)
		return
	}

	globals := make([]result.GlobalDetection, 0, len(dets))
	degenerate := 0

	for _, d := range dets {
		g, err := postprocess.ToGlobal(d, tile.Offset(), job.width, job.height)

		if err != nil {
			degenerate++
			o.log.Debug("dropped detection", zap.Error(err))
			continue
		}

		globals = append(globals, g)
	}

	job.col.add(tile.ID, globals, len(dets), degenerate, elapsed)
}

// detect runs the detector in its own goroutine so a detector that ignores
// its context can not hold up the run past the tile timeout or cancellation
func detect(ctx context.Context, det Detector, tile image.Image,
	floor float32) ([]result.LocalDetection, error) {

	ch := make(chan detectResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- detectResult{err: fmt.Errorf("detector panic: %v", r)}
			}
		}()

		dets, err := det.Detect(ctx, tile, floor)
		ch <- detectResult{dets: dets, err: err}
	}()

	select {
	case r := <-ch:
		if r.err == nil && ctx.Err() != nil {
			// finished but past the deadline
			return nil, ctx.Err()
		}
		return r.dets, r.err

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// finish merges the collected detections and builds the Result
func (o *Orchestrator) finish(col *collector, tiles []preprocess.Tile) *Result {

	col.Lock()
	defer col.Unlock()

	// number detections in tile order so merging is independent of the order
	// tiles completed in
	idGen := result.NewIDGenerator()
	all := make([]result.GlobalDetection, 0, col.raw)

	for _, dets := range col.perTile {
		for _, d := range dets {
			d.ID = idGen.GetNext()
			all = append(all, d)
		}
	}

	merged := postprocess.Merge(all, o.cfg.mergeOptions())

	// failures in tile order
	failures := make([]*TileError, 0, len(col.failures))

	for _, tile := range tiles {
		if f, ok := col.failures[tile.ID]; ok {
			failures = append(failures, f)
		}
	}

	res := &Result{
		Detections: merged,
		Cancelled:  col.cancelled,
		Failures:   failures,
		Tiles:      tiles,
		Stats: Stats{
			TileCount:              len(tiles),
			RawDetectionCount:      col.raw,
			MergedDetectionCount:   len(merged),
			DroppedDegenerateCount: col.degenerate,
			FailedTileCount:        len(failures),
			TimedOutTileCount:      col.timedOut,
			SkippedTileCount:       col.skipped,
		},
	}

	res.Stats.setLatencies(col.latencies)

	return res
}

// collector accumulates tile results from the workers.  Once cancellation
// has been observed no further results are accepted.
type collector struct {
	sync.Mutex
	perTile    [][]result.GlobalDetection
	failures   map[int]*TileError
	latencies  []time.Duration
	raw        int
	degenerate int
	timedOut   int
	skipped    int
	cancelled  bool
}

func newCollector(tiles int) *collector {
	return &collector{
		perTile:  make([][]result.GlobalDetection, tiles),
		failures: make(map[int]*TileError),
	}
}

// add stores the mapped detections of a successful tile
func (c *collector) add(tileID int, dets []result.GlobalDetection, raw,
	degenerate int, elapsed time.Duration) {

	c.Lock()
	defer c.Unlock()

	if c.cancelled {
		c.skipped++
		return
	}

	c.perTile[tileID] = dets
	c.raw += raw
	c.degenerate += degenerate
	c.latencies = append(c.latencies, elapsed)
}

// fail records a tile failure
func (c *collector) fail(err *TileError) {

	c.Lock()
	defer c.Unlock()

	if c.cancelled {
		c.skipped++
		return
	}

	c.failures[err.Tile.ID] = err

	if err.TimedOut {
		c.timedOut++
	}
}

// cancel marks the run cancelled, counting the tile whose result was
// discarded as skipped
func (c *collector) cancel() {
	c.Lock()
	defer c.Unlock()
	c.cancelled = true
	c.skipped++
}

// skip counts tiles never dispatched due to cancellation
func (c *collector) skip(n int) {
	c.Lock()
	defer c.Unlock()
	c.cancelled = true
	c.skipped += n
}
