package pageextract

import (
	"archive/zip"
	"bytes"
	"testing"
)

func TestExtractFallsBackToRawBytesForUnknownExtension(t *testing.T) {
	res, err := Extract("notes.txt", []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if res.ParserVersion != ParserRawBytesv1 {
		t.Fatalf("expected raw-bytes-v1, got %s", res.ParserVersion)
	}
	if len(res.Pages) != 1 || res.Pages[0].Text != "hello" {
		t.Fatalf("unexpected pages: %+v", res.Pages)
	}
}

func TestExtractDOCXJoinsParagraphsInOrder(t *testing.T) {
	docx := buildMinimalDOCX(t, []string{"First paragraph.", "Second paragraph."})
	res, err := Extract("report.docx", docx)
	if err != nil {
		t.Fatal(err)
	}
	if res.ParserVersion != ParserDOCXXMLv1 {
		t.Fatalf("expected docx-xml-v1, got %s", res.ParserVersion)
	}
	if len(res.Pages) != 1 {
		t.Fatalf("expected a single page, got %d", len(res.Pages))
	}
	want := "First paragraph.\nSecond paragraph."
	if res.Pages[0].Text != want {
		t.Fatalf("expected %q, got %q", want, res.Pages[0].Text)
	}
}

func buildMinimalDOCX(t *testing.T, paragraphs []string) []byte {
	t.Helper()
	var body bytes.Buffer
	body.WriteString(`<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="ns"><w:body>`)
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)

	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(body.Bytes()); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
