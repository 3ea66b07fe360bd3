package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/culitrap/go-sahi/postprocess/result"
	"github.com/culitrap/go-sahi/preprocess"
	"gocv.io/x/gocv"
)

// boxLabel holds a label to draw once all boxes are drawn
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// DetectionBoxes renders the bounding boxes and labels of the merged
// detections, coloured by class
func DetectionBoxes(img *gocv.Mat, dets []result.MergedDetection,
	classNames []string, font Font, lineThickness int) {

	// keep a record of all box labels for later rendering
	boxLabels := make([]boxLabel, 0, len(dets))

	for _, det := range dets {

		useClr := ClassColor(det.Class)

		rect := image.Rect(det.Box.Left, det.Box.Top, det.Box.Right, det.Box.Bottom)
		gocv.Rectangle(img, rect, useClr, lineThickness)

		text := fmt.Sprintf("%s %.2f", className(classNames, det.Class), det.Probability)
		boxLabels = append(boxLabels, placeLabel(det.Box, text, useClr, font, lineThickness))
	}

	// draw labels last so they are the top most layer and are not crossed by
	// the lines of neighbouring boxes
	for _, box := range boxLabels {
		gocv.Rectangle(img, box.rect, box.clr, -1)

		clr := font.Color

		if font.AutoColor {
			clr = textColor(box.clr)
		}

		gocv.PutTextWithParams(img, box.text, box.textPos,
			font.Face, font.Scale, clr, font.Thickness,
			font.LineType, false)
	}
}

// TileGrid outlines the tiles the image was sliced into, used to check the
// overlap when tuning the tile size
func TileGrid(img *gocv.Mat, tiles []preprocess.Tile, font Font, lineThickness int) {

	for _, tile := range tiles {

		clr := Grey

		if tile.FullImage {
			clr = Yellow
		}

		gocv.Rectangle(img, tile.Rect(), clr, lineThickness)

		pos := image.Pt(tile.X+font.LeftPad+lineThickness,
			tile.Y+font.TopPad+lineThickness+textHeight(font))

		gocv.PutTextWithParams(img, fmt.Sprintf("#%d", tile.ID), pos,
			font.Face, font.Scale, clr, font.Thickness, font.LineType, false)
	}
}

// placeLabel calculates where the label text and its background go relative
// to the box according to the font alignment
func placeLabel(box result.BoxRect, text string, clr color.RGBA, font Font,
	lineThickness int) boxLabel {

	textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

	var centerX int

	switch font.Alignment {
	case Center:
		centerX = (box.Left + box.Right) / 2

	case Right:
		centerX = box.Right - (textSize.X / 2) - font.RightPad + (lineThickness / 2)

	case Left:
		fallthrough
	default:
		centerX = box.Left + (textSize.X / 2) + font.LeftPad - (lineThickness / 2)
	}

	top := box.Top

	// labels of boxes on the top edge go inside the box
	if top-textSize.Y-font.TopPad-font.BottomPad < 0 {
		top = box.Top + textSize.Y + font.TopPad + font.BottomPad
	}

	return boxLabel{
		rect: image.Rect(centerX-textSize.X/2-font.LeftPad,
			top-textSize.Y-font.TopPad-font.BottomPad,
			centerX+textSize.X/2+font.RightPad, top),
		clr:     clr,
		text:    text,
		textPos: image.Pt(centerX-textSize.X/2, top-font.BottomPad),
	}
}

func textHeight(font Font) int {
	return gocv.GetTextSize("0", font.Face, font.Scale, font.Thickness).Y
}

// className returns the label of the class or its number when there are no
// labels for it
func className(classNames []string, class int) string {
	if class >= 0 && class < len(classNames) {
		return classNames[class]
	}

	return fmt.Sprintf("%d", class)
}
