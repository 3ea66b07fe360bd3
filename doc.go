/*
Package sahi implements Slicing Aided Hyper Inference for small object
detection on high resolution images.

An image is cut into overlapping tiles matching the detector's input size, the
Detector is run on each tile, and the per tile detections are mapped back into
source image coordinates and merged so an object straddling a tile boundary
is reported once.

	det := sahi.DetectorFunc(func(ctx context.Context, tile image.Image,
		floor float32) ([]result.LocalDetection, error) {
		...
	})

	res, err := sahi.Run(ctx, img, det, sahi.DefaultConfig())

A failing tile does not abort the run, failures are reported in the Result
along with a Stats record.  Backends that are not safe for concurrent use can
be wrapped in a Pool when MaxConcurrentTiles is greater than one or a
PerTileTimeout is set.

See the example/sahi command for use with an OpenCV DNN model.
*/
package sahi
