package ocr

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/rotisserie/eris"
)

// PdfToText extracts invoice text with the poppler pdftotext binary. Layout
// mode preserves the column alignment of line item tables, which the
// rule-based parser's quantity/price/amount patterns depend on.
type PdfToText struct {
	binPath string
	layout  bool
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty,
// "pdftotext" is resolved from PATH. layout toggles -layout mode.
func NewPdfToText(binPath string, layout bool) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath, layout: layout}
}

// ExtractText runs pdftotext on the invoice PDF and returns stdout.
func (p *PdfToText) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	args := make([]string, 0, 3)
	if p.layout {
		args = append(args, "-layout")
	}
	args = append(args, pdfPath, "-")
	cmd := exec.CommandContext(ctx, p.binPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "ocr: pdftotext failed for %s: %s", pdfPath, stderr.String())
	}

	return stdout.String(), nil
}
