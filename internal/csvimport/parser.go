package csvimport

import (
	"fmt"
	"strings"
)

// RawTable is the parsed content of an uploaded file.
type RawTable struct {
	Headers   []string   `json:"headers"`
	Rows      [][]string `json:"rows"`
	Delimiter string     `json:"delimiter"`
}

// Parse splits uploaded text into a header row and data rows.
//
// The delimiter is chosen once from the header line (tab, then semicolon,
// then comma). Quotes are not interpreted: a delimiter inside a quoted value
// splits that value. Blank lines are dropped.
func Parse(content string) (*RawTable, error) {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) < 2 {
		return nil, fmt.Errorf("%w: %d non-empty line(s)", ErrParse, len(lines))
	}

	delim := DetectDelimiter(lines[0])
	table := &RawTable{
		Headers:   splitLine(lines[0], delim),
		Rows:      make([][]string, 0, len(lines)-1),
		Delimiter: string(delim),
	}
	for _, line := range lines[1:] {
		table.Rows = append(table.Rows, splitLine(line, delim))
	}
	return table, nil
}

// DetectDelimiter picks the field delimiter from a header line.
func DetectDelimiter(header string) rune {
	switch {
	case strings.ContainsRune(header, '\t'):
		return '\t'
	case strings.ContainsRune(header, ';'):
		return ';'
	default:
		return ','
	}
}

// CleanCell trims whitespace and removes one leading and one trailing quote
// character (single or double) when present.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 0 && (s[0] == '"' || s[0] == '\'') {
		s = s[1:]
	}
	if n := len(s); n > 0 && (s[n-1] == '"' || s[n-1] == '\'') {
		s = s[:n-1]
	}
	return s
}

func splitLine(line string, delim rune) []string {
	parts := strings.Split(line, string(delim))
	for i, p := range parts {
		parts[i] = CleanCell(p)
	}
	return parts
}
