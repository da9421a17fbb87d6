package pageextract

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"regexp"
)

// extractPDF performs a structural page split, not full PDF rendering: it
// locates each page's content stream (the bytes between "stream"/
// "endstream" markers for objects that decompress to PDF content-stream
// operators) in file order and extracts any text shown via Tj/TJ
// operators. This is sufficient to pin the pdf-pypdf-v1 contract's page
// boundaries and plain text; it does not handle embedded fonts, glyph
// remapping, or non-stream text encodings.
var (
	streamPattern  = regexp.MustCompile(`(?s)stream\r?\n(.*?)endstream`)
	tjTextPattern  = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*Tj`)
	tjArrayPattern = regexp.MustCompile(`(?s)\[(.*?)\]\s*TJ`)
	tjArrayItem    = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)`)
)

func extractPDF(content []byte) ([]Page, error) {
	matches := streamPattern.FindAllSubmatch(content, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("no content streams found")
	}

	pages := make([]Page, 0, len(matches))
	for i, m := range matches {
		raw := m[1]
		text := decodeStream(raw)
		pages = append(pages, Page{PageNumber: i + 1, Text: extractTextOperators(text)})
	}
	return pages, nil
}

// decodeStream tries FlateDecode first (the overwhelmingly common PDF
// stream filter) and falls back to the raw bytes for uncompressed or
// unsupported-filter streams, since the text operators are still scanned
// textually either way.
func decodeStream(raw []byte) []byte {
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return raw
	}
	defer zr.Close()
	decoded, err := io.ReadAll(zr)
	if err != nil || len(decoded) == 0 {
		return raw
	}
	return decoded
}

func extractTextOperators(stream []byte) string {
	var out bytes.Buffer

	for _, m := range tjTextPattern.FindAllSubmatch(stream, -1) {
		out.Write(unescapePDFString(m[1]))
		out.WriteByte(' ')
	}
	for _, m := range tjArrayPattern.FindAllSubmatch(stream, -1) {
		for _, item := range tjArrayItem.FindAllSubmatch(m[1], -1) {
			out.Write(unescapePDFString(item[1]))
		}
		out.WriteByte(' ')
	}
	return out.String()
}

func unescapePDFString(b []byte) []byte {
	var out bytes.Buffer
	for i := 0; i < len(b); i++ {
		if b[i] == '\\' && i+1 < len(b) {
			switch b[i+1] {
			case 'n':
				out.WriteByte('\n')
			case 'r':
				out.WriteByte('\r')
			case 't':
				out.WriteByte('\t')
			case '(', ')', '\\':
				out.WriteByte(b[i+1])
			default:
				out.WriteByte(b[i+1])
			}
			i++
			continue
		}
		out.WriteByte(b[i])
	}
	return out.Bytes()
}
