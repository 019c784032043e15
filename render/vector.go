package render

import (
	"image"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"github.com/adixon02/AutoHVAC-sub002/geometry"
)

// maxVectorPixels caps the long edge of a vector render.
const maxVectorPixels = 6000

// Vector draws extracted geometry on a white page. It is the fallback when
// poppler is missing; it shows linework only, no text or raster images.
func Vector(elems []geometry.Element, pageW, pageH float64, dpi int) image.Image {
	k := float64(dpi) / 72
	if long := math.Max(pageW, pageH) * k; long > maxVectorPixels {
		k *= maxVectorPixels / long
	}
	w, h := int(math.Ceil(pageW*k)), int(math.Ceil(pageH*k))
	if w < 1 || h < 1 {
		w, h = 1, 1
	}

	z := vector.NewRasterizer(w, h)
	for _, e := range elems {
		half := math.Max(0.5, e.StrokeWidth*k/2)
		switch e.Kind {
		case geometry.KindRect:
			x0, y0, x1, y1 := e.X0*k, e.Y0*k, e.X1*k, e.Y1*k
			stroke(z, x0, y0, x1, y0, half)
			stroke(z, x1, y0, x1, y1, half)
			stroke(z, x1, y1, x0, y1, half)
			stroke(z, x0, y1, x0, y0, half)
		default:
			stroke(z, e.X0*k, e.Y0*k, e.X1*k, e.Y1*k, half)
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	z.Draw(dst, dst.Bounds(), image.Black, image.Point{})
	return dst
}

// stroke adds a segment as a filled quad of half-width half.
func stroke(z *vector.Rasterizer, x0, y0, x1, y1, half float64) {
	dx, dy := x1-x0, y1-y0
	l := math.Hypot(dx, dy)
	if l == 0 {
		return
	}
	nx, ny := -dy/l*half, dx/l*half
	z.MoveTo(float32(x0+nx), float32(y0+ny))
	z.LineTo(float32(x1+nx), float32(y1+ny))
	z.LineTo(float32(x1-nx), float32(y1-ny))
	z.LineTo(float32(x0-nx), float32(y0-ny))
	z.ClosePath()
}

// Fit scales img down so its long edge is at most maxPixels. Smaller images
// are returned unchanged.
func Fit(img image.Image, maxPixels int) image.Image {
	b := img.Bounds()
	long := max(b.Dx(), b.Dy())
	if maxPixels <= 0 || long <= maxPixels {
		return img
	}
	s := float64(maxPixels) / float64(long)
	w := max(1, int(math.Round(float64(b.Dx())*s)))
	h := max(1, int(math.Round(float64(b.Dy())*s)))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}
