package fingerprint

import (
	"fmt"
	"image"
	"slices"

	"github.com/EdlinOrg/prominentcolor"
)

// BlankShare is the share of pixels a single colour must cover for a
// screenshot to count as blank.
const BlankShare = 0.98

// Swatch is one prominent colour of an image.
type Swatch struct {
	Hex   string  // RRGGBB
	Share float64 // fraction of sampled pixels, 0..1
}

// Palette returns up to k prominent colours of img, most common first.
// Clusters that converge on the same colour are merged.
func Palette(img image.Image, k int) ([]Swatch, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("fingerprint: palette of empty image")
	}
	items, err := prominentcolor.KmeansWithAll(k, img, prominentcolor.ArgumentNoCropping, prominentcolor.DefaultSize, nil)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: palette: %w", err)
	}

	counts := make(map[string]int, len(items))
	var order []string
	total := 0
	for _, it := range items {
		hex := fmt.Sprintf("%02X%02X%02X", it.Color.R&0xff, it.Color.G&0xff, it.Color.B&0xff)
		if _, seen := counts[hex]; !seen {
			order = append(order, hex)
		}
		counts[hex] += it.Cnt
		total += it.Cnt
	}
	if total == 0 {
		return nil, fmt.Errorf("fingerprint: palette: no pixels sampled")
	}

	swatches := make([]Swatch, 0, len(order))
	for _, hex := range order {
		swatches = append(swatches, Swatch{Hex: hex, Share: float64(counts[hex]) / float64(total)})
	}
	slices.SortStableFunc(swatches, func(a, b Swatch) int {
		switch {
		case a.Share > b.Share:
			return -1
		case a.Share < b.Share:
			return 1
		}
		return 0
	})
	return swatches, nil
}

// Blank reports whether one colour dominates the palette, as it does for a
// page that rendered nothing.
func Blank(p []Swatch) bool {
	return len(p) > 0 && p[0].Share >= BlankShare
}
