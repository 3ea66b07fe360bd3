package dnn

import (
	"fmt"
	"strings"
)

// OutputFormat identifies the layout of the network output tensor
type OutputFormat int

const (
	// FormatYOLOv8 is the [1, 4+classes, anchors] output of an exported
	// YOLOv8/YOLO11 model, boxes as centre x, centre y, width, height in
	// input pixels followed by per class scores
	FormatYOLOv8 OutputFormat = iota
	// FormatSSD is the [1, 1, N, 7] output of an SSD/MobileNet model, rows
	// of image id, class, confidence and normalised corner coordinates
	FormatSSD
)

// String returns the name of the format
func (f OutputFormat) String() string {
	switch f {
	case FormatYOLOv8:
		return "yolov8"
	case FormatSSD:
		return "ssd"
	default:
		return fmt.Sprintf("OutputFormat(%d)", int(f))
	}
}

// ParseOutputFormat converts a format name to an OutputFormat
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yolov8", "yolo11", "yolo":
		return FormatYOLOv8, nil
	case "ssd", "mobilenet":
		return FormatSSD, nil
	}

	return FormatYOLOv8, fmt.Errorf("unknown output format: %s", s)
}

// Params defines the model files and post processing parameters of the
// detector
type Params struct {
	// ModelFile is the network weights, eg: an ONNX file
	ModelFile string
	// ConfigFile is the network description for frameworks that need one,
	// eg: a Caffe prototxt or TensorFlow pbtxt.  Empty for ONNX
	ConfigFile string
	// Format is the layout of the output tensor
	Format OutputFormat
	// InputWidth and InputHeight are the network input dimensions
	InputWidth  int
	InputHeight int
	// ObjectClassNum is the number of different object classes the Model has
	// been trained with
	ObjectClassNum int
	// NMSThreshold is the IoU above which overlapping boxes of the same
	// class within a tile are suppressed
	NMSThreshold float32
	// MaxObjectNumber is the maximum number of objects returned per tile
	MaxObjectNumber int
	// Scale is multiplied with pixel values when creating the input blob
	Scale float64
	// Mean is subtracted from each channel when creating the input blob
	Mean float64
	// SwapRB converts the tile from BGR to RGB order for the network
	SwapRB bool
	// BackgroundClass is the class index SSD models use for background,
	// skipped when decoding.  Negative to keep every class
	BackgroundClass int
}

// YOLOv8COCOParams returns Params configured for a YOLOv8 ONNX model trained
// on the COCO dataset featuring:
// - Object Classes: 80
// - Input: 640x640
// - NMS Threshold: 0.45
// - Maximum Object Number: 100
func YOLOv8COCOParams(modelFile string) Params {
	return Params{
		ModelFile:       modelFile,
		Format:          FormatYOLOv8,
		InputWidth:      640,
		InputHeight:     640,
		ObjectClassNum:  80,
		NMSThreshold:    0.45,
		MaxObjectNumber: 100,
		Scale:           1.0 / 255.0,
		SwapRB:          true,
		BackgroundClass: -1,
	}
}

// SSDMobileNetParams returns Params for a 300x300 SSD MobileNet Caffe or
// TensorFlow model
func SSDMobileNetParams(modelFile, configFile string) Params {
	return Params{
		ModelFile:       modelFile,
		ConfigFile:      configFile,
		Format:          FormatSSD,
		InputWidth:      300,
		InputHeight:     300,
		ObjectClassNum:  91,
		NMSThreshold:    0.45,
		MaxObjectNumber: 100,
		Scale:           1.0 / 127.5,
		Mean:            127.5,
		SwapRB:          true,
		BackgroundClass: 0,
	}
}

// validate checks the parameters before a network is loaded
func (p Params) validate() error {

	if p.ModelFile == "" {
		return fmt.Errorf("model file not set")
	}

	if p.InputWidth <= 0 || p.InputHeight <= 0 {
		return fmt.Errorf("input size %dx%d must be positive", p.InputWidth, p.InputHeight)
	}

	if p.Format == FormatYOLOv8 && p.ObjectClassNum <= 0 {
		return fmt.Errorf("object class number %d must be positive", p.ObjectClassNum)
	}

	if p.Format != FormatYOLOv8 && p.Format != FormatSSD {
		return fmt.Errorf("unknown output format %v", p.Format)
	}

	return nil
}
