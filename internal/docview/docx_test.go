package docview

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
)

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatalf("write entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

const sampleDocument = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p>
      <w:pPr><w:pStyle w:val="Heading1"/></w:pPr>
      <w:r><w:t>Quarterly Report</w:t></w:r>
    </w:p>
    <w:p>
      <w:r><w:t>Revenue was </w:t></w:r>
      <w:r><w:t>up 12%.</w:t></w:r>
    </w:p>
    <w:p>
      <w:pPr><w:pStyle w:val="Heading2"/></w:pPr>
      <w:r><w:t>Details</w:t></w:r>
    </w:p>
    <w:p></w:p>
    <w:p>
      <w:r><w:t>1 &lt; 2 &amp; 3 &gt; 2</w:t></w:r>
    </w:p>
  </w:body>
</w:document>`

func TestHTML(t *testing.T) {
	data := buildDocx(t, sampleDocument)

	got, err := HTML(data)
	if err != nil {
		t.Fatalf("HTML failed: %v", err)
	}

	wants := []string{
		"<h1>Quarterly Report</h1>",
		"<p>Revenue was up 12%.</p>",
		"<h2>Details</h2>",
		"<p>1 &lt; 2 &amp; 3 &gt; 2</p>",
	}
	for _, want := range wants {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q\ngot:\n%s", want, got)
		}
	}
}

func TestHTMLSkipsEmptyParagraphs(t *testing.T) {
	data := buildDocx(t, sampleDocument)

	got, err := HTML(data)
	if err != nil {
		t.Fatalf("HTML failed: %v", err)
	}
	if strings.Contains(got, "<p></p>") {
		t.Error("empty paragraphs should be dropped")
	}
}

func TestHTMLRejectsNonDocx(t *testing.T) {
	if _, err := HTML([]byte("not a zip archive")); err == nil {
		t.Error("expected error for non-zip input")
	}
}

func TestHTMLRejectsZipWithoutDocument(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("word/styles.xml")
	w.Write([]byte("<styles/>"))
	zw.Close()

	if _, err := HTML(buf.Bytes()); err == nil {
		t.Error("expected error for package without document.xml")
	}
}
