package report

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

const minColumnWidth = 3

// FormatTable renders a markdown table whose columns are padded to the
// display width of their widest cell. Rows shorter than the header are
// padded with empty cells.
func FormatTable(header []string, rows [][]string) []string {
	colCount := len(header)
	for _, row := range rows {
		if len(row) > colCount {
			colCount = len(row)
		}
	}

	if colCount == 0 {
		return nil
	}

	// Calculate max widths (using display width)
	colWidths := make([]int, colCount)

	for _, row := range append([][]string{header}, rows...) {
		for i := 0; i < len(row); i++ {
			if width := runewidth.StringWidth(escapeCell(row[i])); width > colWidths[i] {
				colWidths[i] = width
			}
		}
	}

	for i := range colWidths {
		if colWidths[i] < minColumnWidth {
			colWidths[i] = minColumnWidth
		}
	}

	lines := make([]string, 0, len(rows)+2)
	lines = append(lines, formatRow(header, colWidths))

	separator := make([]string, colCount)
	for i, w := range colWidths {
		separator[i] = strings.Repeat("-", w)
	}

	lines = append(lines, formatRow(separator, colWidths))

	for _, row := range rows {
		lines = append(lines, formatRow(row, colWidths))
	}

	return lines
}

func formatRow(cells []string, colWidths []int) string {
	var sb strings.Builder

	sb.WriteString("|")

	for j, width := range colWidths {
		content := ""
		if j < len(cells) {
			content = escapeCell(cells[j])
		}

		sb.WriteString(" ")
		sb.WriteString(content)

		// Pad with spaces based on display width
		if padding := width - runewidth.StringWidth(content); padding > 0 {
			sb.WriteString(strings.Repeat(" ", padding))
		}

		sb.WriteString(" |")
	}

	return sb.String()
}

func escapeCell(cell string) string {
	return strings.ReplaceAll(cell, "|", `\|`)
}
