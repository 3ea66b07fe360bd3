package dnn

import (
	"fmt"

	"github.com/culitrap/go-sahi/postprocess"
	"github.com/culitrap/go-sahi/postprocess/result"
)

// inputBox is a decoded detection in network input pixel coordinates
type inputBox struct {
	x1, y1, x2, y2 float32
	class          int
	prob           float32
}

// decodeYOLOv8 decodes a YOLOv8 output tensor of shape [1, 4+classes,
// anchors], also accepting the transposed [1, anchors, 4+classes] layout.
// Anchors whose best class scores below floor are skipped.
func decodeYOLOv8(data []float32, sizes []int, classNum int,
	floor float32) ([]inputBox, error) {

	if len(sizes) != 3 {
		return nil, fmt.Errorf("unexpected YOLOv8 output shape %v", sizes)
	}

	attrs := 4 + classNum
	anchors := 0
	var at func(anchor, attr int) float32

	switch {
	case sizes[1] == attrs:
		anchors = sizes[2]
		at = func(i, a int) float32 { return data[a*anchors+i] }
	case sizes[2] == attrs:
		anchors = sizes[1]
		at = func(i, a int) float32 { return data[i*attrs+a] }
	default:
		return nil, fmt.Errorf("YOLOv8 output shape %v does not match %d classes",
			sizes, classNum)
	}

	if len(data) < attrs*anchors {
		return nil, fmt.Errorf("YOLOv8 output has %d values, expected %d",
			len(data), attrs*anchors)
	}

	boxes := make([]inputBox, 0)

	for i := 0; i < anchors; i++ {

		maxClassID := -1
		maxScore := float32(0)

		for c := 0; c < classNum; c++ {
			if score := at(i, 4+c); score > maxScore {
				maxScore = score
				maxClassID = c
			}
		}

		if maxClassID < 0 || maxScore < floor {
			continue
		}

		cx, cy := at(i, 0), at(i, 1)
		w, h := at(i, 2), at(i, 3)

		boxes = append(boxes, inputBox{
			x1:    cx - w/2,
			y1:    cy - h/2,
			x2:    cx + w/2,
			y2:    cy + h/2,
			class: maxClassID,
			prob:  maxScore,
		})
	}

	return boxes, nil
}

// decodeSSD decodes an SSD output tensor of shape [1, 1, N, 7] where each row
// holds image id, class, confidence and the box corners normalised to the
// network input
func decodeSSD(data []float32, sizes []int, inputWidth, inputHeight int,
	floor float32, background int) ([]inputBox, error) {

	if len(sizes) != 4 || sizes[3] != 7 {
		return nil, fmt.Errorf("unexpected SSD output shape %v", sizes)
	}

	rows := len(data) / 7
	boxes := make([]inputBox, 0)

	for i := 0; i < rows; i++ {
		row := data[i*7 : i*7+7]

		class := int(row[1])
		conf := row[2]

		if class == background || conf < floor || conf <= 0 {
			continue
		}

		boxes = append(boxes, inputBox{
			x1:    row[3] * float32(inputWidth),
			y1:    row[4] * float32(inputHeight),
			x2:    row[5] * float32(inputWidth),
			y2:    row[6] * float32(inputHeight),
			class: class,
			prob:  conf,
		})
	}

	return boxes, nil
}

// toTile maps decoded boxes from network input to tile coordinates
func toTile(boxes []inputBox, r *Resizer) []result.LocalDetection {

	dets := make([]result.LocalDetection, 0, len(boxes))

	for _, b := range boxes {
		dets = append(dets, result.LocalDetection{
			Class:       b.class,
			Box:         r.ToTile(b.x1, b.y1, b.x2, b.y2),
			Probability: b.prob,
		})
	}

	return dets
}

// suppress applies class aware non-maximum suppression to the detections of
// a single tile, returning at most limit detections ordered by probability
func suppress(dets []result.LocalDetection, threshold float32,
	limit int) []result.LocalDetection {

	globals := make([]result.GlobalDetection, len(dets))

	for i, d := range dets {
		globals[i] = result.GlobalDetection{
			ID:          int64(i + 1),
			Class:       d.Class,
			Box:         d.Box,
			Probability: d.Probability,
		}
	}

	merged := postprocess.Merge(globals, postprocess.MergeOptions{
		IoUThreshold: float64(threshold),
		Metric:       postprocess.MatchIoU,
	})

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}

	kept := make([]result.LocalDetection, len(merged))

	for i, m := range merged {
		kept[i] = result.LocalDetection{
			Class:       m.Class,
			Box:         m.Box,
			Probability: m.Probability,
		}
	}

	return kept
}
