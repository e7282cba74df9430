// Package render lays out face annotations and draws them onto plain Go images.
//
// Plan is shared with the OpenCV display so both renderers place boxes and
// labels identically.
package render

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/andresmejia3/guardian/internal/types"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	// LabelOffset is how far above the box top the label baseline sits.
	LabelOffset = 10
	// Thickness is the box outline width in pixels.
	Thickness = 2
)

// BoxColor is used for both box and label.
var BoxColor = color.RGBA{G: 255, A: 255}

// Annotation is one box plus its label.
type Annotation struct {
	Box     image.Rectangle
	Label   string
	LabelAt image.Point
}

// Plan converts faces to annotations. An empty result yields no annotations.
func Plan(faces types.AnalysisResult) []Annotation {
	if len(faces) == 0 {
		return nil
	}
	out := make([]Annotation, 0, len(faces))
	for _, f := range faces {
		r := f.Region
		out = append(out, Annotation{
			Box:     image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H),
			Label:   f.Label(),
			LabelAt: image.Pt(r.X, r.Y-LabelOffset),
		})
	}
	return out
}

// ToRGBA copies any image into a fresh RGBA canvas with origin (0,0).
func ToRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// Draw paints the annotations for faces onto img in place.
func Draw(img *image.RGBA, faces types.AnalysisResult) {
	for _, a := range Plan(faces) {
		strokeRect(img, a.Box, BoxColor, Thickness)
		drawLabel(img, a.Label, a.LabelAt, BoxColor)
	}
}

// strokeRect draws a rectangle outline centred on r's edges, clipped to the image.
func strokeRect(img *image.RGBA, r image.Rectangle, c color.RGBA, thickness int) {
	outer := r.Inset(-thickness / 2).Intersect(img.Bounds())
	inner := r.Inset(thickness - thickness/2)
	if outer.Empty() {
		return
	}

	stride := img.Stride
	pix := img.Pix
	imgMinX, imgMinY := img.Rect.Min.X, img.Rect.Min.Y
	for y := outer.Min.Y; y < outer.Max.Y; y++ {
		rowStart := (y - imgMinY) * stride
		for x := outer.Min.X; x < outer.Max.X; x++ {
			if image.Pt(x, y).In(inner) {
				continue
			}
			off := rowStart + (x-imgMinX)*4
			pix[off] = c.R
			pix[off+1] = c.G
			pix[off+2] = c.B
			pix[off+3] = c.A
		}
	}
}

// drawLabel writes text with its baseline starting at pt. Glyphs outside the image are clipped.
func drawLabel(img *image.RGBA, text string, pt image.Point, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(pt.X, pt.Y),
	}
	d.DrawString(text)
}
