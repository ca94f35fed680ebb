// Package docview renders an HTML preview of .docx files for in-browser
// viewing. It extracts word/document.xml from the package and converts
// paragraph structure; inline styling beyond headings is dropped.
package docview

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"strings"
)

const maxDocumentXMLSize = 20 << 20

// HTML converts docx bytes to an HTML fragment.
func HTML(data []byte) (string, error) {
	docXML, err := extractDocumentXML(data)
	if err != nil {
		return "", err
	}
	return renderDocument(docXML)
}

func extractDocumentXML(data []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx package: %w", err)
	}

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open document.xml: %w", err)
		}
		defer rc.Close()

		raw, err := io.ReadAll(io.LimitReader(rc, maxDocumentXMLSize))
		if err != nil {
			return nil, fmt.Errorf("read document.xml: %w", err)
		}
		return raw, nil
	}

	return nil, fmt.Errorf("docx package has no word/document.xml")
}

// renderDocument walks the WordprocessingML stream and emits one HTML
// element per paragraph. Heading styles 1-3 map to h1-h3, everything
// else becomes a p.
func renderDocument(docXML []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(docXML))

	var out strings.Builder
	var para strings.Builder
	inParagraph := false
	paraTag := "p"

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "p":
				inParagraph = true
				paraTag = "p"
				para.Reset()
			case "pStyle":
				if !inParagraph {
					continue
				}
				paraTag = headingTag(styleVal(el))
			case "t":
				if !inParagraph {
					continue
				}
				var text string
				if err := dec.DecodeElement(&text, &el); err != nil {
					return "", fmt.Errorf("decode text run: %w", err)
				}
				para.WriteString(html.EscapeString(text))
			case "br":
				if inParagraph {
					para.WriteString("<br>")
				}
			case "tab":
				if inParagraph {
					para.WriteString("\t")
				}
			}
		case xml.EndElement:
			if el.Name.Local == "p" && inParagraph {
				inParagraph = false
				text := para.String()
				if strings.TrimSpace(strings.ReplaceAll(text, "<br>", "")) == "" {
					continue
				}
				fmt.Fprintf(&out, "<%s>%s</%s>\n", paraTag, text, paraTag)
			}
		}
	}

	return out.String(), nil
}

func styleVal(el xml.StartElement) string {
	for _, attr := range el.Attr {
		if attr.Name.Local == "val" {
			return attr.Value
		}
	}
	return ""
}

func headingTag(style string) string {
	switch style {
	case "Heading1", "Title":
		return "h1"
	case "Heading2":
		return "h2"
	case "Heading3":
		return "h3"
	default:
		return "p"
	}
}
