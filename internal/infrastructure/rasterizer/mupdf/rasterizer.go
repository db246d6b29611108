package mupdf

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"sync"

	fitz "github.com/gen2brain/go-fitz"

	"github.com/dkruglov/exam-ingest/internal/core/domain"
	"github.com/dkruglov/exam-ingest/internal/core/ports"
)

const defaultDPI = 150

// Rasterizer renders PDF pages to PNG via MuPDF (go-fitz). The DPI is
// fixed per instance; ~150 keeps embedded diagrams legible for the
// downstream model without ballooning image payloads.
type Rasterizer struct {
	dpi float64
}

func New(dpi int) *Rasterizer {
	if dpi <= 0 {
		dpi = defaultDPI
	}
	return &Rasterizer{dpi: float64(dpi)}
}

func (r *Rasterizer) Open(_ context.Context, pdf []byte) (ports.RasterDocument, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDocumentUnreadable, "open pdf", err)
	}
	return &document{doc: doc, dpi: r.dpi}, nil
}

type document struct {
	// go-fitz handles are not safe for concurrent page access.
	mu  sync.Mutex
	doc *fitz.Document
	dpi float64
}

func (d *document) PageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.NumPage()
}

func (d *document) RenderPage(ctx context.Context, pageNumber int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	img, err := d.doc.ImageDPI(pageNumber-1, d.dpi)
	d.mu.Unlock()
	if err != nil {
		return nil, domain.WrapError(domain.ErrPageRenderFailed,
			fmt.Sprintf("render page %d", pageNumber), err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, domain.WrapError(domain.ErrPageRenderFailed,
			fmt.Sprintf("encode page %d", pageNumber), err)
	}
	return buf.Bytes(), nil
}

func (d *document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Close()
}
