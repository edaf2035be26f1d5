package normalize

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/answerdeck/answerdeck/internal/knowledge"
)

// csv parses comma-separated data. Ragged rows are tolerated since
// exported spreadsheets frequently have them.
func (n *Normalizer) csv(data []byte) ([]knowledge.Document, error) {
	rows, err := csvRows(data)
	if err != nil {
		return nil, err
	}
	return tableToDocuments(rows), nil
}

func csvRows(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing csv: %w", err)
		}
		rows = append(rows, record)
	}
	return rows, nil
}
