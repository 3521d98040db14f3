package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/captable/internal/task"
)

// Modal is the interface for modal dialogs.
// The Update method returns the updated modal, a command, and a bool indicating if the modal should close.
type Modal interface {
	Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool)
	View(theme Theme, width, height int) string
}

// questionModal lets the user pick one option of a question. reply runs on
// the UI goroutine.
type questionModal struct {
	q      task.Question
	reply  func(task.Answer) tea.Cmd
	choice int
}

func newQuestionModal(q task.Question, reply func(task.Answer) tea.Cmd) *questionModal {
	choice := q.Default
	if choice < 0 || choice >= len(q.Options) {
		choice = 0
	}
	return &questionModal{q: q, reply: reply, choice: choice}
}

func (qm *questionModal) Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool) {
	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return qm, nil, false
	}
	switch {
	case key.Matches(k, keys.Left), key.Matches(k, keys.ShiftTab):
		qm.choice = (qm.choice + len(qm.q.Options) - 1) % max(len(qm.q.Options), 1)
	case key.Matches(k, keys.Right), key.Matches(k, keys.Tab):
		qm.choice = (qm.choice + 1) % max(len(qm.q.Options), 1)
	case key.Matches(k, keys.Confirm):
		return qm, qm.reply(task.Answer(qm.choice)), true
	case key.Matches(k, keys.Escape):
		// Escape answers with the first option.
		return qm, qm.reply(0), true
	}
	return qm, nil, false
}

func (qm *questionModal) View(theme Theme, width, height int) string {
	styles := theme.Styles()
	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render(qm.q.Text))
	b.WriteString("\n\n")
	buttons := make([]string, len(qm.q.Options))
	for i, opt := range qm.q.Options {
		style := styles.MutedText.Padding(0, 1)
		if i == qm.choice {
			style = styles.Selected.Bold(true).Padding(0, 1)
		}
		buttons[i] = style.Render(opt)
	}
	b.WriteString(strings.Join(buttons, "  "))
	return placeModal(theme, width, height, b.String())
}

// promptModal edits one line of text.
type promptModal struct {
	title    string
	input    textinput.Model
	err      string
	onSubmit func(string) error
}

func newPromptModal(title, placeholder, value string, onSubmit func(string) error) *promptModal {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 500
	ti.Width = 40
	ti.SetValue(value)
	ti.Focus()
	return &promptModal{title: title, input: ti, onSubmit: onSubmit}
}

func (pm *promptModal) Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(k, keys.Escape):
			return pm, nil, true
		case key.Matches(k, keys.Confirm):
			if err := pm.onSubmit(pm.input.Value()); err != nil {
				pm.err = err.Error()
				return pm, nil, false
			}
			return pm, nil, true
		}
	}
	var cmd tea.Cmd
	pm.input, cmd = pm.input.Update(msg)
	return pm, cmd, false
}

func (pm *promptModal) View(theme Theme, width, height int) string {
	styles := theme.Styles()
	var b strings.Builder
	b.WriteString(styles.AccentText.Bold(true).Render(pm.title))
	b.WriteString("\n\n")
	b.WriteString(pm.input.View())
	if pm.err != "" {
		b.WriteString("\n\n")
		b.WriteString(styles.DangerText.Render(pm.err))
	}
	b.WriteString("\n\n")
	b.WriteString(styles.FaintText.Render("enter to apply, esc to cancel"))
	return placeModal(theme, width, height, b.String())
}

// placeModal centers content in a bordered box.
func placeModal(theme Theme, width, height int, content string) string {
	modal := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(theme.BorderFocus)).
		Padding(1, 2).
		Width(min(60, max(width-4, 20)))
	return lipgloss.Place(
		width,
		height,
		lipgloss.Center,
		lipgloss.Center,
		modal.Render(content),
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(lipgloss.Color(theme.Background)),
	)
}
