package ui

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Row is one label/value line of a panel
type Row struct {
	Label string
	Value string
}

// RenderPanel draws a titled box with aligned label/value rows, used for
// the serve banner and the status summaries
func RenderPanel(title string, rows []Row, width int) string {
	labelWidth := 0
	for _, r := range rows {
		if n := utf8.RuneCountInString(r.Label); n > labelWidth {
			labelWidth = n
		}
	}

	var sb strings.Builder

	titleText := " " + title + " "
	rightDashes := width - 2 - 3 - utf8.RuneCountInString(titleText)
	if rightDashes < 0 {
		rightDashes = 0
	}
	sb.WriteString(Color(Cyan, BoxTopLeft+strings.Repeat(BoxHorizontal, 3)))
	sb.WriteString(Color(Cyan+Bold, titleText))
	sb.WriteString(Color(Cyan, strings.Repeat(BoxHorizontal, rightDashes)+BoxTopRight))
	sb.WriteString("\n")

	for _, r := range rows {
		label := r.Label + ":" + strings.Repeat(" ", labelWidth-utf8.RuneCountInString(r.Label))
		value := Truncate(r.Value, width-labelWidth-6)
		padding := width - 2 - (labelWidth + 3 + utf8.RuneCountInString(value))
		if padding < 0 {
			padding = 0
		}
		sb.WriteString(Color(Cyan, BoxVertical))
		sb.WriteString(" ")
		sb.WriteString(Color(Dim, label))
		sb.WriteString(" ")
		sb.WriteString(value)
		sb.WriteString(strings.Repeat(" ", padding))
		sb.WriteString(Color(Cyan, BoxVertical))
		sb.WriteString("\n")
	}

	sb.WriteString(Color(Cyan, BoxBottomLeft+strings.Repeat(BoxHorizontal, width-2)+BoxBottomRight))
	sb.WriteString("\n")
	return sb.String()
}

// RenderTable formats rows as left-aligned columns under a dim header
func RenderTable(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if n := utf8.RuneCountInString(row[i]); n > widths[i] {
				widths[i] = n
			}
		}
	}

	line := func(cells []string) string {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = cell + strings.Repeat(" ", widths[i]-utf8.RuneCountInString(cell))
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	var sb strings.Builder
	sb.WriteString(Color(Dim, line(header)))
	sb.WriteString("\n")
	for _, row := range rows {
		sb.WriteString(line(row))
		sb.WriteString("\n")
	}
	return sb.String()
}

// Truncate shortens s to max runes, marking the cut with "..."
func Truncate(s string, max int) string {
	if max <= 3 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-3]) + "..."
}

// RenderError formats an error message
func RenderError(err error) string {
	return Color(Red, fmt.Sprintf("Error: %v", err))
}

// RenderSuccess formats a success message
func RenderSuccess(msg string) string {
	return Color(Green, msg)
}

// RenderWarning formats a warning
func RenderWarning(msg string) string {
	return Color(Yellow, msg)
}

// RenderDim formats text in dim style
func RenderDim(msg string) string {
	return Color(Dim, msg)
}
