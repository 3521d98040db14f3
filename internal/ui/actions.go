package ui

import (
	"errors"
	"fmt"
	"log"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/captable/internal/bean"
	"github.com/five82/captable/internal/prefs"
	"github.com/five82/captable/internal/service"
	"github.com/five82/captable/internal/table"
	"github.com/five82/captable/internal/task"
)

const widthStep = 2

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if m.showLogs {
		m.showLogs = false
		m.logLines = nil
		return m, nil
	}
	if m.modal != nil {
		var cmd tea.Cmd
		var done bool
		m.modal, cmd, done = m.modal.Update(msg, m.keys)
		if done {
			m.modal = nil
		}
		return m, cmd
	}

	m.notice = ""
	page := m.visibleRows()
	k := m.keys

	switch {
	case key.Matches(msg, k.Quit):
		m.savePrefs()
		return m, tea.Quit
	case key.Matches(msg, k.Help):
		m.showHelp = true
	case key.Matches(msg, k.Logs):
		m.showLogs = true
		m.refreshLogs()
	case key.Matches(msg, k.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.savePrefs()

	case key.Matches(msg, k.Up):
		m.cursorRow--
	case key.Matches(msg, k.Down):
		m.cursorRow++
	case key.Matches(msg, k.Left), key.Matches(msg, k.ShiftTab):
		m.cursorCol--
	case key.Matches(msg, k.Right), key.Matches(msg, k.Tab):
		m.cursorCol++
	case key.Matches(msg, k.Top):
		m.cursorRow = 0
	case key.Matches(msg, k.Bottom):
		m.cursorRow = m.table.RowCount() - 1
	case key.Matches(msg, k.PageDown):
		m.cursorRow += page
	case key.Matches(msg, k.PageUp):
		m.cursorRow -= page
	case key.Matches(msg, k.HalfPageDown):
		m.cursorRow += page / 2
	case key.Matches(msg, k.HalfPageUp):
		m.cursorRow -= page / 2

	case key.Matches(msg, k.Select):
		m.table.ToggleSelection(m.cursorRow)
	case key.Matches(msg, k.ClearSel):
		m.table.ClearSelection()
	case key.Matches(msg, k.Sort), key.Matches(msg, k.SortAdd):
		if col, ok := m.currentColumn(); ok {
			m.report(m.table.ToggleSort(col.Property, key.Matches(msg, k.SortAdd)))
		}
	case key.Matches(msg, k.Filter):
		return m.openFilter()
	case key.Matches(msg, k.ClearFilter):
		m.report(m.table.ClearFilters())
	case key.Matches(msg, k.Narrow), key.Matches(msg, k.Widen):
		if col, ok := m.currentColumn(); ok {
			step := widthStep
			if key.Matches(msg, k.Narrow) {
				step = -widthStep
			}
			m.table.SetColumnWidth(m.cursorCol, max(columnWidth(col)+step, minColumnWidth))
		}
	case key.Matches(msg, k.Reload):
		m.report(m.table.Load())

	case key.Matches(msg, k.Edit):
		return m.openEditor()
	case key.Matches(msg, k.Add):
		b, err := m.table.AddBean(nil)
		if m.report(err) {
			if row, ok := m.table.RowOf(b); ok {
				m.cursorRow = row
			}
		}
	case key.Matches(msg, k.Save):
		m.save()
	case key.Matches(msg, k.Delete):
		m.confirmDelete()
	case key.Matches(msg, k.Undo):
		m.report(m.table.UndoModifications())
	case key.Matches(msg, k.Refresh):
		m.report(m.table.RefreshBeans(m.targets()))
	case key.Matches(msg, k.Cancel):
		n, err := m.table.CancelExecutions()
		if m.report(err) && n > 0 {
			m.notice = fmt.Sprintf("canceling %d operations", n)
		}
	}
	return m, nil
}

// report shows err in the status bar and reports whether err was nil.
func (m *Model) report(err error) bool {
	if err == nil {
		return true
	}
	m.notice = err.Error()
	return false
}

func (m Model) currentColumn() (table.Column, bool) {
	if m.cursorCol < 0 || m.cursorCol >= m.table.ColumnCount() {
		return table.Column{}, false
	}
	return m.table.Column(m.cursorCol), true
}

// targets are the selected beans, or the bean under the cursor.
func (m Model) targets() []*bean.Proxy {
	if sel := m.table.SelectedBeans(); len(sel) > 0 {
		return sel
	}
	if b := m.table.Bean(m.cursorRow); b != nil && !b.IsDummy() {
		return []*bean.Proxy{b}
	}
	return nil
}

func (m Model) openEditor() (Model, tea.Cmd) {
	col, ok := m.currentColumn()
	if !ok {
		return m, nil
	}
	if !col.Editable {
		m.notice = fmt.Sprintf("%s is read-only", col.Title)
		return m, nil
	}
	b := m.table.Bean(m.cursorRow)
	if b == nil || b.IsDummy() {
		m.notice = "row is not loaded yet"
		return m, nil
	}
	tbl, row, colIdx := m.table, m.cursorRow, m.cursorCol
	current := b.Value(col.Property)
	m.modal = newPromptModal("Edit "+col.Title, col.Property, formatValue(current), func(text string) error {
		v, err := parseCellValue(current, text)
		if err != nil {
			return err
		}
		return tbl.SetValue(row, colIdx, v)
	})
	return m, nil
}

func (m Model) openFilter() (Model, tea.Cmd) {
	tbl := m.table
	m.modal = newPromptModal("Filter", "title~alpha, amount>=10, status!=done", "", func(text string) error {
		f, err := service.ParseFilter(text)
		if err != nil {
			return err
		}
		return tbl.SetFilter(f.Property, f)
	})
	return m, nil
}

func (m *Model) save() {
	err := m.table.Save()
	if errors.Is(err, table.ErrInvalid) {
		if msg, ok := m.table.Validate(); !ok {
			m.notice = "cannot save: " + msg.Text
			return
		}
	}
	m.report(err)
}

func (m *Model) confirmDelete() {
	targets := m.targets()
	if len(targets) == 0 {
		return
	}
	tbl := m.table
	q := task.Question{
		Text:    fmt.Sprintf("Delete %d row(s)?", len(targets)),
		Options: []string{"Cancel", "Delete"},
	}
	m.modal = newQuestionModal(q, func(a task.Answer) tea.Cmd {
		if a != 1 {
			return nil
		}
		if err := tbl.Delete(targets); err != nil {
			return noticeCmd(err.Error())
		}
		return nil
	})
}

// savePrefs stores the theme and the table's widths and sort order.
func (m *Model) savePrefs() {
	vc := m.table.ViewConfig()
	view := prefs.TableView{Widths: vc.Widths}
	for _, k := range vc.Sort {
		view.Sort = append(view.Sort, k.String())
	}
	m.prefs.Theme = m.theme.Name
	m.prefs = m.prefs.WithView(m.tableName, view)
	if err := prefs.Save(m.prefsPath, m.prefs); err != nil {
		log.Printf("save prefs: %v", err)
	}
}
