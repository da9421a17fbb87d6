package pageextract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// docxBody mirrors just enough of word/document.xml's structure to recover
// paragraph text in document order. DOCX has no native page boundaries
// (pagination is a rendering-time concern); per the pinned docx-xml-v1
// contract, the whole document is returned as a single page, with
// paragraph breaks preserved as newlines so downstream chunking sees
// natural text boundaries.
type docxDocument struct {
	Body docxBody `xml:"body"`
}

type docxBody struct {
	Paragraphs []docxParagraph `xml:"p"`
}

type docxParagraph struct {
	Runs []docxRun `xml:"r"`
}

type docxRun struct {
	Text []string `xml:"t"`
}

func extractDOCX(content []byte) ([]Page, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open docx zip: %w", err)
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open word/document.xml: %w", err)
		}
		docXML, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read word/document.xml: %w", err)
		}
		break
	}
	if docXML == nil {
		return nil, fmt.Errorf("word/document.xml not found")
	}

	var doc docxDocument
	if err := xml.Unmarshal(docXML, &doc); err != nil {
		return nil, fmt.Errorf("parse word/document.xml: %w", err)
	}

	var paragraphs []string
	for _, p := range doc.Body.Paragraphs {
		var sb strings.Builder
		for _, r := range p.Runs {
			for _, t := range r.Text {
				sb.WriteString(t)
			}
		}
		paragraphs = append(paragraphs, sb.String())
	}

	return []Page{{PageNumber: 1, Text: strings.Join(paragraphs, "\n")}}, nil
}
