// Package attachment pulls plain text out of PDF attachments so it can be
// sent to the extraction call alongside the email body.
package attachment

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// TextExtractor extracts text content from a PDF file.
type TextExtractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// PdfToText extracts text using the pdftotext CLI tool.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractText runs pdftotext -layout on the given PDF and returns stdout.
func (p *PdfToText) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", pdfPath, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "attachment: pdftotext failed for %s: %s", pdfPath, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Collect extracts every PDF in paths and joins the results, each under a
// "--- PDF: <name> ---" header. A file that fails to extract or yields no
// text is logged and skipped. Non-PDF paths are ignored.
func Collect(ctx context.Context, ex TextExtractor, paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		if !strings.EqualFold(filepath.Ext(p), ".pdf") {
			zap.L().Debug("attachment: skipping non-pdf", zap.String("path", p))
			continue
		}
		text, err := ex.ExtractText(ctx, p)
		if err != nil {
			zap.L().Warn("attachment: extraction failed", zap.String("path", p), zap.Error(err))
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		b.WriteString("\n\n--- PDF: ")
		b.WriteString(filepath.Base(p))
		b.WriteString(" ---\n")
		b.WriteString(text)
	}
	return strings.TrimSpace(b.String())
}
