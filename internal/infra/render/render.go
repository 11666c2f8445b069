package render

import (
	"fmt"

	"github.com/gamesight/visualqa/internal/domain/reports"
)

// ForFormat returns the renderer serving the requested format.
func ForFormat(f reports.Format) (reports.Renderer, error) {
	switch f {
	case reports.FormatJSON:
		return JSONRenderer{}, nil
	case reports.FormatHTML:
		return HTMLRenderer{}, nil
	case reports.FormatPDF:
		return PDFRenderer{}, nil
	default:
		return nil, fmt.Errorf("unsupported report format: %s", f)
	}
}

// Ext maps a format to its artifact file extension.
func Ext(f reports.Format) string {
	switch f {
	case reports.FormatPDF:
		return "pdf"
	case reports.FormatHTML:
		return "html"
	default:
		return "json"
	}
}
