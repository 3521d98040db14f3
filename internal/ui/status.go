package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/captable/internal/service"
	"github.com/five82/captable/internal/state"
)

// renderHeader renders the title bar: table name, size and count state.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)
	sep := bg.Spaces(2)

	st := m.snapshot.Status
	if !m.snapshot.HasStatus {
		st = m.table.Status()
	}
	parts := []string{
		bg.Render("captable", styles.Logo),
		bg.Render(m.tableName, styles.AccentText),
		bg.Render("Rows:", styles.MutedText) + bg.Space() + bg.Render(rowsLabel(st), styles.Text),
	}
	if st.LoadingPages > 0 {
		parts = append(parts, bg.Render(fmt.Sprintf("loading %d", st.LoadingPages), styles.InfoText))
	}
	if len(st.Sort) > 0 {
		parts = append(parts, bg.Render("Sort:", styles.MutedText)+bg.Space()+bg.Render(strings.Join(st.Sort, ", "), styles.Text))
	}
	if len(st.Filters) > 0 {
		parts = append(parts, bg.Render("Filter:", styles.MutedText)+bg.Space()+bg.Render(strings.Join(st.Filters, " "), styles.WarningText))
	}

	return lipgloss.NewStyle().
		Background(lipgloss.Color(m.theme.Surface)).
		Foreground(lipgloss.Color(m.theme.Text)).
		Width(m.width).
		Render(bg.Join(parts, sep))
}

// rowsLabel shows "1,234" once the count is known and "≥ 1000" before.
func rowsLabel(st state.Status) string {
	if st.CountKnown {
		return fmt.Sprintf("%d", st.Rows)
	}
	return fmt.Sprintf("≥ %d", max(st.Rows-1, 0))
}

// renderStatus renders pending work, selection and the last error.
func (m Model) renderStatus() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)
	st := m.snapshot.Status

	var parts []string
	parts = append(parts, bg.Render(fmt.Sprintf("%d/%d", m.cursorRow+1, max(m.table.RowCount(), 0)), styles.MutedText))
	if st.Selected > 0 {
		parts = append(parts, bg.Render(fmt.Sprintf("%d selected", st.Selected), styles.AccentText))
	}
	if st.Modified > 0 {
		parts = append(parts, bg.Render(fmt.Sprintf("%d modified", st.Modified), styles.Modified))
	}
	if st.Transient > 0 {
		parts = append(parts, bg.Render(fmt.Sprintf("%d new", st.Transient), styles.Transient))
	}
	if st.Executing > 0 {
		parts = append(parts, bg.Render(fmt.Sprintf("%d running", st.Executing), styles.InfoText))
	}

	switch {
	case m.notice != "":
		parts = append(parts, bg.Render(truncate(m.notice, m.width/2), styles.WarningText))
	case m.snapshot.LastError != nil:
		label := classifyError(m.snapshot.LastError)
		if m.snapshot.IsOffline() {
			label = "OFFLINE"
		}
		parts = append(parts,
			bg.Render(label, styles.DangerText)+bg.Space()+
				bg.Render(truncateMiddle(m.snapshot.LastError.Error(), m.width/2), styles.MutedText))
	case !m.snapshot.LastUpdated.IsZero():
		parts = append(parts, bg.Render("updated "+since(m.now, m.snapshot.LastUpdated), styles.FaintText))
	}

	return styles.Header.Width(m.width).Render(bg.Join(parts, bg.Spaces(2)))
}

// classifyError names a backend failure for the status bar.
func classifyError(err error) string {
	msg := err.Error()
	switch {
	case errors.Is(err, service.ErrTimeout):
		return "TIMEOUT"
	case errors.Is(err, service.ErrStale):
		return "CONFLICT"
	case errors.Is(err, service.ErrConstraint):
		return "REJECTED"
	case strings.Contains(msg, "connection refused"):
		return "OFFLINE"
	case strings.Contains(msg, "no such host"):
		return "HOST NOT FOUND"
	default:
		return "ERROR"
	}
}

// renderCommandBar renders the key hints.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	m.help.Styles.ShortKey = styles.WarningText
	m.help.Styles.ShortDesc = styles.MutedText
	m.help.Styles.ShortSeparator = styles.FaintText
	m.help.Width = m.width
	return styles.Header.Width(m.width).Render(m.help.ShortHelpView(m.keys.ShortHelp()))
}

// since formats how long ago t was for compact displays.
func since(now, t time.Time) string {
	d := now.Sub(t).Round(time.Second)
	if d < time.Second {
		return "now"
	}
	return d.String() + " ago"
}
