package measure

import (
	"image"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

const (
	boxLineWidth = 2
	labelOffset  = 8
)

func annotate(frame image.Image, ms []Measurement) *image.RGBA {
	dc := gg.NewContextForImage(frame)
	dc.SetFontFace(basicfont.Face7x13)
	dc.SetLineWidth(boxLineWidth)

	// gg works in context coordinates starting at 0,0
	origin := frame.Bounds().Min
	for _, m := range ms {
		r := m.Box.Sub(origin)
		dc.SetColor(m.Stage.Color())
		dc.DrawRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
		dc.Stroke()
		dc.DrawString(Label, float64(r.Min.X), float64(r.Min.Y-labelOffset))
	}

	if rgba, ok := dc.Image().(*image.RGBA); ok {
		return rgba
	}
	return cloneRGBA(dc.Image())
}
