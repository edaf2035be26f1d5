package normalize

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/answerdeck/answerdeck/internal/knowledge"
)

// docx extracts paragraph text from word/document.xml inside the DOCX
// zip archive. Paragraph boundaries (<w:p>) become newlines; text runs
// (<w:t>) concatenate within a paragraph.
func (n *Normalizer) docx(data []byte) ([]knowledge.Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening docx archive: %w", err)
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("opening document.xml: %w", err)
			}
			docXML, err = io.ReadAll(rc)
			_ = rc.Close()
			if err != nil {
				return nil, fmt.Errorf("reading document.xml: %w", err)
			}
			break
		}
	}
	if len(docXML) == 0 {
		return nil, fmt.Errorf("document.xml not found in docx archive")
	}

	dec := xml.NewDecoder(bytes.NewReader(docXML))
	var sb strings.Builder
	var inText bool
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing document.xml: %w", err)
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "t":
				inText = true
			case "br", "tab":
				sb.WriteByte(' ')
			}
		case xml.EndElement:
			switch se.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(se)
			}
		}
	}

	return []knowledge.Document{{Content: sb.String()}}, nil
}
