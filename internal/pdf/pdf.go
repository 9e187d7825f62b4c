// Package pdf renders analysis reports into PDF artifacts.
package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// Renderer turns a report title and body into a PDF document.
type Renderer interface {
	Generate(title, body string) ([]byte, error)
}

// FPDF renders reports with the fpdf library.
type FPDF struct{}

// NewRenderer creates the default PDF renderer.
func NewRenderer() *FPDF {
	return &FPDF{}
}

// Generate renders one report. The body is plain text; paragraphs are
// separated by blank lines.
func (*FPDF) Generate(title, body string) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle(title, true)
	doc.SetAutoPageBreak(true, 20)
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 16)
	doc.MultiCell(0, 8, sanitize(title), "", "L", false)
	doc.Ln(2)

	doc.SetFont("Helvetica", "", 9)
	doc.SetTextColor(120, 120, 120)
	doc.CellFormat(0, 5, time.Now().UTC().Format("January 2, 2006 15:04 UTC"), "", 1, "L", false, 0, "")
	doc.Ln(4)

	doc.SetTextColor(0, 0, 0)
	doc.SetFont("Helvetica", "", 11)
	for _, paragraph := range strings.Split(body, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		doc.MultiCell(0, 6, sanitize(paragraph), "", "L", false)
		doc.Ln(3)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("rendering pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// sanitize maps text onto the cp1252 range the core fonts support. Runes
// outside it are replaced so fpdf does not emit garbage glyphs.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\t' {
			b.WriteString("    ")
			continue
		}
		if r < 32 && r != '\n' {
			continue
		}
		if r > 0xFF {
			b.WriteByte('?')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
