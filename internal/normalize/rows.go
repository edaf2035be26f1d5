package normalize

import "fmt"

// Rows parses tabular data into raw rows without turning them into
// documents. Only CSV and XLSX carry rows.
func Rows(data []byte, format Format) ([][]string, error) {
	switch format {
	case FormatCSV:
		return csvRows(data)
	case FormatXLSX:
		return xlsxRows(data)
	default:
		return nil, fmt.Errorf("%w: %s has no tabular rows", ErrUnsupportedFormat, format)
	}
}

// QuestionColumn locates the "Question" column in a table header.
// Returns -1 when the table has no such column.
func QuestionColumn(header []string) int {
	for i, cell := range header {
		switch normalizeHeaderCell(cell) {
		case "question", "questions":
			return i
		}
	}
	return -1
}
