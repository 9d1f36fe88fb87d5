package parser

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/unalkalkan/narrator/pkg/types"
)

// PDFParser parses PDF files by validating the document with pdfcpu
// and extracting shown text directly from each page's content stream
// operators (Tj/TJ), rather than attempting a full PDF text layer.
type PDFParser struct{}

func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

var (
	streamRe = regexp.MustCompile(`(?s)stream\r?\n(.*?)\r?\nendstream`)
	tjRe     = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*Tj`)
	tjArrRe  = regexp.MustCompile(`\[((?:[^\[\]]|\\.)*)\]\s*TJ`)
	tjPartRe = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)`)
)

// Parse validates the PDF's page count via pdfcpu, then recovers
// narratable text by scanning every content stream for text-showing
// operators. Page/chapter boundaries are not recovered — the whole
// document comes back as a single chapter of extracted paragraphs.
func (p *PDFParser) Parse(ctx context.Context, data []byte) ([]*types.Chapter, error) {
	tmp, err := os.CreateTemp("", "narrator-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file for pdf validation: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := tmp.Write(data); err != nil {
		return nil, fmt.Errorf("write temp pdf: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek temp pdf: %w", err)
	}

	pageCount, err := api.PageCount(tmp, nil)
	if err != nil {
		return nil, fmt.Errorf("validate pdf: %w", err)
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("pdf reports zero pages")
	}

	paragraphs := extractText(data)
	if len(paragraphs) == 0 {
		return nil, fmt.Errorf("no extractable text found in pdf")
	}

	chapter := &types.Chapter{
		Ordinal:    0,
		Title:      "Main Content",
		Paragraphs: paragraphs,
	}
	return []*types.Chapter{chapter}, nil
}

// extractText scans every stream object in the raw PDF bytes,
// flate-decompresses it when needed, and pulls the literal strings
// shown via Tj and TJ operators into one paragraph per stream. Within
// a stream, all Tj strings come before all TJ array strings, not in
// content order.
func extractText(data []byte) []string {
	var paragraphs []string

	for _, m := range streamRe.FindAllSubmatch(data, -1) {
		raw := m[1]
		content := raw
		if decoded, err := inflate(raw); err == nil {
			content = decoded
		}

		var b strings.Builder
		for _, tm := range tjRe.FindAllSubmatch(content, -1) {
			b.WriteString(decodePDFString(string(tm[1])))
			b.WriteString(" ")
		}
		for _, am := range tjArrRe.FindAllSubmatch(content, -1) {
			for _, pm := range tjPartRe.FindAllSubmatch(am[1], -1) {
				b.WriteString(decodePDFString(string(pm[1])))
			}
			b.WriteString(" ")
		}

		text := strings.TrimSpace(strings.Join(strings.Fields(b.String()), " "))
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	}

	return paragraphs
}

func inflate(raw []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

var pdfEscapeRe = regexp.MustCompile(`\\([()\\nrtbf])`)

func decodePDFString(s string) string {
	return pdfEscapeRe.ReplaceAllStringFunc(s, func(esc string) string {
		switch esc[1] {
		case 'n':
			return "\n"
		case 'r':
			return "\r"
		case 't':
			return "\t"
		case '(', ')', '\\':
			return string(esc[1])
		default:
			return ""
		}
	})
}

func (p *PDFParser) SupportedFormats() []string {
	return []string{"pdf"}
}
