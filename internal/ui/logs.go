package ui

import (
	"strings"

	"github.com/five82/captable/internal/logtail"
)

// logPrefix is the prefix main installs on the standard logger.
const logPrefix = "captable "

// refreshLogs rereads the tail of the log file for the overlay.
func (m *Model) refreshLogs() {
	if m.logPath == "" {
		m.logLines = nil
		return
	}
	lines, err := logtail.Read(m.logPath, m.visibleRows())
	if err != nil {
		m.logLines = []logtail.Entry{{Text: err.Error(), Level: logtail.LevelError}}
		return
	}
	entries := make([]logtail.Entry, len(lines))
	for i, line := range lines {
		entries[i] = logtail.Parse(logPrefix, line)
	}
	m.logLines = entries
}

// renderLogs draws the log overlay, newest line last.
func (m Model) renderLogs() string {
	styles := m.theme.Styles()
	var b strings.Builder
	title := "Log"
	if m.logPath != "" {
		title += "  " + truncateMiddle(m.logPath, max(m.width-8, 10))
	}
	b.WriteString(styles.Header.Width(m.width).Render(title))
	b.WriteString("\n")

	if len(m.logLines) == 0 {
		b.WriteString(styles.FaintText.Render("no log output"))
		return b.String()
	}
	timeWidth := len("2006/01/02 15:04:05")
	for i, e := range m.logLines {
		if i > 0 {
			b.WriteString("\n")
		}
		text := styles.Text
		switch e.Level {
		case logtail.LevelWarn:
			text = styles.WarningText
		case logtail.LevelError:
			text = styles.DangerText
		}
		if e.Time != "" {
			b.WriteString(styles.FaintText.Render(e.Time))
			b.WriteString(" ")
			b.WriteString(text.Render(truncate(e.Text, max(m.width-timeWidth-1, 1))))
			continue
		}
		b.WriteString(text.Render(truncate(e.Text, m.width)))
	}
	return b.String()
}
