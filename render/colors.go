package render

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

var (
	Black  = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Yellow = color.RGBA{R: 255, G: 255, B: 50, A: 255}
	Pink   = color.RGBA{R: 255, G: 0, B: 255, A: 255}
	Grey   = color.RGBA{R: 160, G: 160, B: 160, A: 255}
)

// goldenAngle spreads successive class hues around the colour wheel so
// neighbouring class IDs get distinct colours
const goldenAngle = 137.50776405

// Palette returns n distinct colours, the same n always give the same
// colours
func Palette(n int) []color.RGBA {

	clrs := make([]color.RGBA, n)

	for i := range clrs {
		clrs[i] = ClassColor(i)
	}

	return clrs
}

// ClassColor returns the colour used to draw boxes of the given class
func ClassColor(class int) color.RGBA {

	if class < 0 {
		class = -class
	}

	hue := math.Mod(float64(class)*goldenAngle, 360)

	// alternate saturation and value so classes with close hues stay apart
	sat := 0.85 - 0.2*float64(class%2)
	val := 0.95 - 0.15*float64((class/2)%2)

	r, g, b := colorful.Hsv(hue, sat, val).Clamped().RGB255()

	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// textColor returns black or white, whichever reads better on the background
func textColor(bg color.RGBA) color.RGBA {

	c, ok := colorful.MakeColor(bg)

	if !ok {
		return White
	}

	l, _, _ := c.Lab()

	if l > 0.6 {
		return Black
	}

	return White
}
