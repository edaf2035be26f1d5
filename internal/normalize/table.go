package normalize

import (
	"strconv"
	"strings"

	"github.com/answerdeck/answerdeck/internal/knowledge"
)

// tableToDocuments converts tabular rows (CSV or spreadsheet) into
// documents.
//
// When the header has a "Question" column, each data row becomes its own
// "Q: ...\nA: ..." document so question/answer pairs are retrieved as
// units. Any other table is flattened into one document with cells
// joined by " | ".
func tableToDocuments(rows [][]string) []knowledge.Document {
	rows = dropEmptyRows(rows)
	if len(rows) == 0 {
		return nil
	}

	header := rows[0]
	qIdx, aIdx := -1, -1
	for i, cell := range header {
		switch normalizeHeaderCell(cell) {
		case "question", "questions":
			qIdx = i
		case "answer", "answers", "response":
			aIdx = i
		}
	}

	if qIdx >= 0 {
		return questionRows(rows[1:], qIdx, aIdx)
	}
	return []knowledge.Document{{Content: flattenRows(rows)}}
}

// questionRows turns each row with a non-empty question cell into its
// own document. The answer is the answer column when present, otherwise
// every other non-empty cell joined together.
func questionRows(rows [][]string, qIdx, aIdx int) []knowledge.Document {
	var docs []knowledge.Document
	for i, row := range rows {
		if qIdx >= len(row) {
			continue
		}
		question := strings.TrimSpace(row[qIdx])
		if question == "" {
			continue
		}

		var answer string
		if aIdx >= 0 && aIdx < len(row) {
			answer = strings.TrimSpace(row[aIdx])
		} else {
			var rest []string
			for j, cell := range row {
				if j == qIdx {
					continue
				}
				if cell = strings.TrimSpace(cell); cell != "" {
					rest = append(rest, cell)
				}
			}
			answer = strings.Join(rest, " | ")
		}

		content := "Q: " + question
		if answer != "" {
			content += "\nA: " + answer
		}

		docs = append(docs, knowledge.Document{
			Content:  content,
			Metadata: map[string]string{"row": strconv.Itoa(i + 1)},
		})
	}
	return docs
}

// flattenRows joins every row's cells with " | " and rows with newlines.
func flattenRows(rows [][]string) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		var cells []string
		for _, cell := range row {
			if cell = strings.TrimSpace(cell); cell != "" {
				cells = append(cells, cell)
			}
		}
		if len(cells) > 0 {
			lines = append(lines, strings.Join(cells, " | "))
		}
	}
	return strings.Join(lines, "\n")
}

func normalizeHeaderCell(cell string) string {
	return strings.ToLower(strings.TrimSpace(cell))
}

func dropEmptyRows(rows [][]string) [][]string {
	out := rows[:0]
	for _, row := range rows {
		empty := true
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				empty = false
				break
			}
		}
		if !empty {
			out = append(out, row)
		}
	}
	return out
}
