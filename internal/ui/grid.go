package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/captable/internal/bean"
	"github.com/five82/captable/internal/table"
)

const (
	// chromeLines are the header, column header, status and command bars.
	chromeLines        = 4
	markerWidth        = 3
	defaultColumnWidth = 14
	minColumnWidth     = 3
)

// visibleRows is the number of table rows that fit on screen.
func (m Model) visibleRows() int {
	return max(m.height-chromeLines, 1)
}

// clampCursor keeps the cursor inside the table and scrolls it into view.
func (m *Model) clampCursor() {
	total := m.table.RowCount()
	m.cursorRow = max(0, min(m.cursorRow, total-1))
	m.cursorCol = max(0, min(m.cursorCol, m.table.ColumnCount()-1))

	rows := m.visibleRows()
	if m.cursorRow < m.offset {
		m.offset = m.cursorRow
	}
	if m.cursorRow >= m.offset+rows {
		m.offset = m.cursorRow - rows + 1
	}
	m.offset = max(0, min(m.offset, total-rows))
}

func columnWidth(c table.Column) int {
	if c.Width > 0 {
		return max(c.Width, minColumnWidth)
	}
	return defaultColumnWidth
}

// renderGrid draws only the visible rows. Asking the model for those rows is
// what triggers page loads.
func (m Model) renderGrid() string {
	styles := m.theme.Styles()
	cols := m.table.Columns()
	total := m.table.RowCount()

	lines := make([]string, 0, m.visibleRows()+1)
	lines = append(lines, m.renderColumnHeader(cols, styles))
	for i := 0; i < m.visibleRows(); i++ {
		row := m.offset + i
		if row >= total {
			lines = append(lines, "")
			continue
		}
		lines = append(lines, m.renderRow(row, cols, styles))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderColumnHeader(cols []table.Column, styles Styles) string {
	var b strings.Builder
	b.WriteString(strings.Repeat(" ", markerWidth))
	for _, c := range cols {
		title := c.Title
		if title == "" {
			title = c.Property
		}
		if i, desc, ok := m.table.SortIndex(c.Property); ok {
			arrow := "▲"
			if desc {
				arrow = "▼"
			}
			if len(m.table.Sort()) > 1 {
				arrow += strconv.Itoa(i + 1)
			}
			title += " " + arrow
		}
		b.WriteString(styles.ColumnHeader.Render(fit(title, columnWidth(c), false)))
		b.WriteString(" ")
	}
	return b.String()
}

func (m Model) renderRow(row int, cols []table.Column, styles Styles) string {
	b := m.table.Bean(row)
	if b == nil {
		return ""
	}
	selected := m.table.IsSelected(b)
	base := styles.Text
	if row%2 == 1 {
		base = base.Background(lipgloss.Color(m.theme.SurfaceAlt))
	}
	if selected {
		base = styles.Selected
	}

	var out strings.Builder
	out.WriteString(m.renderMarker(b, selected, styles))

	if b.IsDummy() {
		width := 0
		for _, c := range cols {
			width += columnWidth(c) + 1
		}
		text, style := "loading…", styles.FaintText
		if msg, ok := bean.Worst(b.Messages()); ok {
			text, style = msg.Text, styles.SeverityStyle(msg.Severity)
		} else if !b.HasExecution() {
			text = ""
		}
		out.WriteString(style.Render(fit(text, width, false)))
		return out.String()
	}

	for i, c := range cols {
		value := b.Value(c.Property)
		cell := fit(formatValue(value), columnWidth(c), isNumber(value))
		style := base
		switch {
		case row == m.cursorRow && i == m.cursorCol:
			style = styles.Cursor
		case b.IsTransient():
			style = base.Inherit(styles.Transient)
		case b.IsModified(c.Property):
			style = base.Inherit(styles.Modified)
		}
		out.WriteString(style.Render(cell))
		out.WriteString(base.Render(" "))
	}
	return out.String()
}

// renderMarker draws the selection mark and the row state: executing,
// message severity, transient or modified.
func (m Model) renderMarker(b *bean.Proxy, selected bool, styles Styles) string {
	sel := " "
	if selected {
		sel = "›"
	}
	state, style := " ", styles.Text
	switch msg, hasMsg := bean.Worst(b.Messages()); {
	case b.HasExecution() && !b.IsDummy():
		state, style = "⟳", styles.AccentText
	case hasMsg:
		state, style = "!", styles.SeverityStyle(msg.Severity)
	case b.IsTransient():
		state, style = "+", styles.Transient
	case b.HasModifications():
		state, style = "*", styles.Modified
	}
	return styles.AccentText.Render(sel) + style.Render(state) + " "
}

// formatValue renders a cell value; nil renders empty.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int32, int64, float32, float64:
		return true
	}
	return false
}

// parseCellValue converts edited text to the type of the current value.
// Empty text clears the cell.
func parseCellValue(current any, text string) (any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	switch current.(type) {
	case int, int32, int64:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", text)
		}
		return n, nil
	case float32, float64:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", text)
		}
		return f, nil
	case bool:
		v, err := strconv.ParseBool(text)
		if err != nil {
			return nil, fmt.Errorf("%q is not true or false", text)
		}
		return v, nil
	default:
		return text, nil
	}
}
