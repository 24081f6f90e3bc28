package extract

import (
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pageHeights returns the media box height of every page in points, indexed
// from 0. Header and footer margins are measured against these.
func pageHeights(ctx *model.Context) []float64 {
	dims, err := ctx.PageDims()
	if err != nil {
		return nil
	}
	heights := make([]float64, len(dims))
	for i, d := range dims {
		heights[i] = d.Height
	}
	return heights
}

func heightOf(heights []float64, pageNr int) float64 {
	if pageNr-1 < len(heights) {
		return heights[pageNr-1]
	}
	return 0
}
