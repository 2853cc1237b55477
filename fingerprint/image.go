package fingerprint

import (
	"image"
	"image/color"

	"github.com/nfnt/resize"
)

// Image computes a 64-bit difference hash: the image is reduced to 9x8
// grayscale and each bit records whether a pixel is brighter than its
// right neighbour. Rescaled or recompressed copies of a screenshot land
// within a few bits of each other. A nil or empty image hashes to 0.
func Image(img image.Image) uint64 {
	if img == nil || img.Bounds().Empty() {
		return 0
	}
	small := resize.Resize(9, 8, img, resize.Bilinear)
	b := small.Bounds()

	var fp uint64
	bit := 0
	for y := b.Min.Y; y < b.Min.Y+8; y++ {
		for x := b.Min.X; x < b.Min.X+8; x++ {
			if luma(small.At(x, y)) > luma(small.At(x+1, y)) {
				fp |= 1 << uint(bit)
			}
			bit++
		}
	}
	return fp
}

func luma(c color.Color) uint8 {
	return color.GrayModel.Convert(c).(color.Gray).Y
}
