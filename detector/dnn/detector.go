package dnn

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/culitrap/go-sahi/postprocess/result"
	"gocv.io/x/gocv"
)

// letterboxColor is the grey YOLO models are trained with for padding
var letterboxColor = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// Detector runs an OpenCV DNN object detection network on image tiles.  It
// is not safe for concurrent use, open one per worker in a sahi.Pool.
type Detector struct {
	params  Params
	net     gocv.Net
	resizer *Resizer
	// input is the letterboxed tile reused between calls
	input gocv.Mat
}

// New loads the network described by the Params
func New(p Params) (*Detector, error) {

	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	if _, err := os.Stat(p.ModelFile); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}

	if p.ConfigFile != "" {
		if _, err := os.Stat(p.ConfigFile); err != nil {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
	}

	net := gocv.ReadNet(p.ModelFile, p.ConfigFile)

	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", p.ModelFile)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &Detector{
		params:  p,
		net:     net,
		resizer: NewResizer(p.InputWidth, p.InputHeight, p.InputWidth, p.InputHeight),
		input:   gocv.NewMat(),
	}, nil
}

// Params returns the detectors parameters
func (d *Detector) Params() Params {
	return d.params
}

// Detect runs the network on the tile and returns the detections at or above
// confidenceFloor in tile pixel coordinates
func (d *Detector) Detect(ctx context.Context, tile image.Image,
	confidenceFloor float32) ([]result.LocalDetection, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Mat in OpenCV's BGR order
	src, err := gocv.ImageToMatRGB(tile)

	if err != nil {
		return nil, fmt.Errorf("error converting tile to Mat: %w", err)
	}

	defer src.Close()

	if src.Empty() {
		return nil, errors.New("tile is empty")
	}

	d.resizer.SetSource(src.Cols(), src.Rows())
	d.resizer.LetterBoxResize(src, &d.input, letterboxColor)

	blob := gocv.BlobFromImage(d.input, d.params.Scale,
		image.Pt(d.params.InputWidth, d.params.InputHeight),
		gocv.NewScalar(d.params.Mean, d.params.Mean, d.params.Mean, 0),
		d.params.SwapRB, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	output := d.net.Forward("")
	defer output.Close()

	if output.Empty() {
		return nil, errors.New("network returned no output")
	}

	data, err := output.DataPtrFloat32()

	if err != nil {
		return nil, fmt.Errorf("error reading network output: %w", err)
	}

	var boxes []inputBox

	switch d.params.Format {
	case FormatSSD:
		boxes, err = decodeSSD(data, output.Size(), d.params.InputWidth,
			d.params.InputHeight, confidenceFloor, d.params.BackgroundClass)
	default:
		boxes, err = decodeYOLOv8(data, output.Size(), d.params.ObjectClassNum,
			confidenceFloor)
	}

	if err != nil {
		return nil, err
	}

	dets := toTile(boxes, d.resizer)

	return suppress(dets, d.params.NMSThreshold, d.params.MaxObjectNumber), nil
}

// Close frees the network and the resize buffers
func (d *Detector) Close() error {
	return errors.Join(
		d.net.Close(),
		d.resizer.Close(),
		d.input.Close(),
	)
}
