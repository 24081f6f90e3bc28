package extract

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"ragbridge/types"
)

var pdfMagic = []byte("%PDF")

func IsPDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), pdfMagic)
}

// FromPDF returns one document per page that carries text. Blank pages are
// skipped. A file pdfcpu cannot read is reported as a configuration error,
// since it is bad input rather than an outage.
func FromPDF(r io.ReadSeeker, title string, margins Margins) ([]types.Document, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(r, conf)
	if err != nil {
		return nil, types.NewConfigError(fmt.Errorf("read pdf %q: %w", title, err))
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, types.NewConfigError(fmt.Errorf("validate pdf %q: %w", title, err))
	}

	var heights []float64
	if margins.enabled() {
		heights = pageHeights(ctx)
	}

	var docs []types.Document
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		rd, err := pdfcpu.ExtractPageContent(ctx, pageNr)
		if err != nil {
			return nil, types.NewConfigError(fmt.Errorf("pdf %q page %d: %w", title, pageNr, err))
		}
		if rd == nil {
			continue
		}
		content, err := io.ReadAll(rd)
		if err != nil {
			return nil, fmt.Errorf("pdf %q page %d: %w", title, pageNr, err)
		}

		text := pageText(content, margins, heightOf(heights, pageNr))
		if isBlank(text) {
			slog.Default().Debug("blank pdf page skipped", "title", title, "page", pageNr)
			continue
		}
		docs = append(docs, types.Document{Title: title, Source: SourcePDF, Page: pageNr, Content: text})
	}
	return docs, nil
}
