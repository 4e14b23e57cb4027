package imob

import "strings"

// nullLiteral is how the source system spells a missing value inside a
// pasted cell.
const nullLiteral = "null"

// Parse turns raw pasted text into one Record per non-empty line.
//
// The whole input is trimmed once (individual lines are not); each line is
// split on tabs and mapped onto Columns by position. The literal string
// "null" and a genuinely missing trailing field both become nil; fields
// beyond the schema length are dropped. There is no header row.
//
// Parse is pure and never fails: empty input yields an empty slice, which
// callers must treat as a user error rather than a pipeline error.
func Parse(text string) []Record {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	records := make([]Record, 0, len(lines))

	for _, line := range lines {
		// Pastes from Windows clipboards carry a trailing CR per line.
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		rec := make(Record, len(Columns))
		for i, col := range Columns {
			if i >= len(fields) || fields[i] == nullLiteral {
				rec[col] = nil
				continue
			}
			rec[col] = fields[i]
		}
		records = append(records, rec)
	}

	return records
}

// stringValue returns the record's value for col as a string, or "" when
// the value is nil or not a string.
func stringValue(rec Record, col string) string {
	s, _ := rec[col].(string)
	return s
}
