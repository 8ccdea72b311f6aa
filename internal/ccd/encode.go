package ccd

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
)

// Encode converts img to 8-bit RGBA, clamping every channel to [0, 1].
func Encode(img *Image) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, img.Bins, img.Bins))
	for r := 0; r < img.Bins; r++ {
		for c := 0; c < img.Bins; c++ {
			o := img.offset(r, c)
			out.SetRGBA(c, r, color.RGBA{
				R: toByte(img.Pix[o]),
				G: toByte(img.Pix[o+1]),
				B: toByte(img.Pix[o+2]),
				A: 0xff,
			})
		}
	}
	return out
}

func toByte(v float64) uint8 {
	switch {
	case !(v > 0):
		return 0
	case v >= 1:
		return 0xff
	default:
		return uint8(v*255 + 0.5)
	}
}

// SavePNG encodes img after applying brightness and writes it to path.
func SavePNG(path string, img *Image, brightness float64) error {
	return gg.SavePNG(path, Encode(ApplyBrightness(img, brightness)))
}
