package normalize

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/answerdeck/answerdeck/internal/knowledge"
)

// xlsx extracts rows from every worksheet of an Office Open XML
// spreadsheet. XLSX is a zip archive: cell text lives either inline or
// in the shared-strings table, both plain XML. Each sheet is converted
// independently so a question column on one sheet does not change how
// the others are read; an unreadable sheet is skipped, not fatal.
func (n *Normalizer) xlsx(data []byte) ([]knowledge.Document, error) {
	sheets, err := xlsxSheets(data)
	if err != nil {
		return nil, err
	}

	var docs []knowledge.Document
	for i, rows := range sheets {
		if rows == nil {
			n.logger.Warn("skipping unreadable worksheet", "sheet", i+1)
			continue
		}
		sheetDocs := tableToDocuments(rows)
		if len(sheets) > 1 {
			for j := range sheetDocs {
				if sheetDocs[j].Metadata == nil {
					sheetDocs[j].Metadata = make(map[string]string)
				}
				sheetDocs[j].Metadata["sheet"] = strconv.Itoa(i + 1)
			}
		}
		docs = append(docs, sheetDocs...)
	}
	return docs, nil
}

// xlsxRows returns the rows of all worksheets concatenated, in sheet
// order.
func xlsxRows(data []byte) ([][]string, error) {
	sheets, err := xlsxSheets(data)
	if err != nil {
		return nil, err
	}
	var rows [][]string
	for _, sheet := range sheets {
		rows = append(rows, sheet...)
	}
	return rows, nil
}

// xlsxSheets parses every worksheet in the archive. The outer slice is
// ordered by sheet file name; an unreadable sheet is a nil entry.
func xlsxSheets(data []byte) ([][][]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening xlsx archive: %w", err)
	}

	shared := parseSharedStrings(readZipFile(zr, "xl/sharedStrings.xml"))

	var names []string
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "xl/worksheets/sheet") && strings.HasSuffix(f.Name, ".xml") {
			names = append(names, f.Name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no worksheet found in xlsx archive")
	}
	sort.Strings(names)

	sheets := make([][][]string, len(names))
	for i, name := range names {
		sheetXML := readZipFile(zr, name)
		if sheetXML == nil {
			continue
		}
		var rows [][]string
		rr := newSheetRowReader(sheetXML, shared)
		for {
			row, ok := rr.Next()
			if !ok {
				break
			}
			rows = append(rows, row)
		}
		if rows == nil {
			rows = [][]string{}
		}
		sheets[i] = rows
	}
	return sheets, nil
}

func readZipFile(zr *zip.Reader, name string) []byte {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil
			}
			defer rc.Close()
			b, _ := io.ReadAll(rc)
			return b
		}
	}
	return nil
}

// parseSharedStrings reads the xl/sharedStrings.xml string table.
// Each <si> entry may hold several <t> runs; they concatenate.
func parseSharedStrings(data []byte) []string {
	if len(data) == 0 {
		return nil
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	var out []string
	var buf strings.Builder
	var inT bool
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "si":
				buf.Reset()
			case "t":
				inT = true
			}
		case xml.EndElement:
			switch se.Name.Local {
			case "t":
				inT = false
			case "si":
				out = append(out, buf.String())
				buf.Reset()
			}
		case xml.CharData:
			if inT {
				buf.Write(se)
			}
		}
	}
}

// sheetRowReader streams worksheet rows without loading the full sheet
// into memory as a DOM.
type sheetRowReader struct {
	dec    *xml.Decoder
	shared []string
	curRow []string
	maxCol int
	inRow  bool
}

func newSheetRowReader(data []byte, shared []string) *sheetRowReader {
	return &sheetRowReader{dec: xml.NewDecoder(bytes.NewReader(data)), shared: shared}
}

// Next returns the next row, or false at end of sheet.
func (r *sheetRowReader) Next() ([]string, bool) {
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return nil, false
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "row" {
				r.inRow = true
				r.curRow = nil
				r.maxCol = 0
			}
			if r.inRow && se.Name.Local == "c" {
				var ref, cellType string
				for _, a := range se.Attr {
					switch a.Name.Local {
					case "r":
						ref = a.Value
					case "t":
						cellType = a.Value
					}
				}
				colIdx := colIndexFromRef(ref)
				if colIdx < 0 {
					colIdx = len(r.curRow)
				}
				if colIdx+1 > r.maxCol {
					r.maxCol = colIdx + 1
				}
				val := r.readCellValue(cellType)
				if len(r.curRow) <= colIdx {
					tmp := make([]string, colIdx+1)
					copy(tmp, r.curRow)
					r.curRow = tmp
				}
				r.curRow[colIdx] = val
			}
		case xml.EndElement:
			if se.Name.Local == "row" {
				if len(r.curRow) < r.maxCol {
					tmp := make([]string, r.maxCol)
					copy(tmp, r.curRow)
					r.curRow = tmp
				}
				r.inRow = false
				return r.curRow, true
			}
		}
	}
}

// readCellValue consumes tokens until </c>, capturing <v> (values and
// shared-string indexes) or inline <is><t> text.
func (r *sheetRowReader) readCellValue(cellType string) string {
	var val string
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return val
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "v" || se.Name.Local == "t" {
				var sb strings.Builder
				for {
					tk, err := r.dec.Token()
					if err != nil {
						break
					}
					if end, ok := tk.(xml.EndElement); ok && (end.Name.Local == "v" || end.Name.Local == "t") {
						break
					}
					if ch, ok := tk.(xml.CharData); ok {
						sb.Write(ch)
					}
				}
				val = sb.String()
			}
		case xml.EndElement:
			if se.Name.Local == "c" {
				if cellType == "s" {
					idx, err := strconv.Atoi(strings.TrimSpace(val))
					if err == nil && idx >= 0 && idx < len(r.shared) {
						return r.shared[idx]
					}
					return ""
				}
				return val
			}
		}
	}
}

// colIndexFromRef converts an A1-style reference to a 0-based column
// index ("C12" -> 2). Returns -1 for missing references.
func colIndexFromRef(ref string) int {
	i := 0
	for i < len(ref) {
		c := ref[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
			i++
			continue
		}
		break
	}
	if i == 0 {
		return -1
	}
	idx := 0
	for _, c := range strings.ToUpper(ref[:i]) {
		idx = idx*26 + int(c-'A'+1)
	}
	return idx - 1
}
