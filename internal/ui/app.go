package ui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/captable/internal/dispatch"
	"github.com/five82/captable/internal/logtail"
	"github.com/five82/captable/internal/prefs"
	"github.com/five82/captable/internal/state"
	"github.com/five82/captable/internal/table"
	"github.com/five82/captable/internal/task"
)

// Options configures the UI.
type Options struct {
	Context   context.Context
	Table     *table.Model
	Queue     *dispatch.Queue
	Store     *state.Store
	Questions *Questions
	Prefs     prefs.Prefs
	PrefsPath string
	LogPath   string
	TableName string
	Tick      time.Duration
}

// Model is the root application state for Bubble Tea. Update runs on the
// goroutine bound to the dispatch queue, so it may use the table directly.
type Model struct {
	ctx       context.Context
	table     *table.Model
	queue     *dispatch.Queue
	store     *state.Store
	questions *Questions
	prefs     prefs.Prefs
	prefsPath string
	logPath   string
	tableName string
	tick      time.Duration

	keys  keyMap
	help  help.Model
	theme Theme

	width  int
	height int
	ready  bool

	cursorRow int
	cursorCol int
	offset    int

	snapshot state.Snapshot
	now      time.Time
	notice   string

	showHelp bool
	showLogs bool
	logLines []logtail.Entry
	modal    Modal
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	tick := opts.Tick
	if tick <= 0 {
		tick = time.Second
	}
	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}
	name := strings.TrimSpace(opts.TableName)
	if name == "" {
		name = "table"
	}
	return Model{
		ctx:       ctx,
		table:     opts.Table,
		queue:     opts.Queue,
		store:     opts.Store,
		questions: opts.Questions,
		prefs:     opts.Prefs,
		prefsPath: prefsPath,
		logPath:   opts.LogPath,
		tableName: name,
		tick:      tick,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		theme:     GetTheme(opts.Prefs.Theme),
		now:       time.Now(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitDispatch(m.queue),
		tickCmd(m.tick),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case dispatchMsg:
		m.queue.RunPending()
		cmds = append(cmds, waitDispatch(m.queue))

	case tickMsg:
		m.now = time.Time(msg)
		if m.showLogs {
			m.refreshLogs()
		}
		cmds = append(cmds, tickCmd(m.tick))

	case noticeMsg:
		m.notice = string(msg)

	case tea.KeyMsg:
		var cmd tea.Cmd
		m, cmd = m.handleKey(msg)
		cmds = append(cmds, cmd)

	default:
		if m.modal != nil {
			var cmd tea.Cmd
			var done bool
			m.modal, cmd, done = m.modal.Update(msg, m.keys)
			if done {
				m.modal = nil
			}
			cmds = append(cmds, cmd)
		}
	}

	if m.modal == nil {
		if r, ok := m.questions.next(); ok {
			m.modal = newQuestionModal(r.q, func(a task.Answer) tea.Cmd {
				r.reply(a)
				return nil
			})
		}
	}
	if m.store != nil {
		m.snapshot = m.store.Snapshot()
	}
	if m.ready && !m.table.IsDisposed() {
		m.clampCursor()
	}
	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	if m.showLogs {
		return m.renderLogs()
	}
	if m.modal != nil {
		return m.modal.View(m.theme, m.width, m.height)
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderGrid())
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	return b.String()
}

// Messages

type tickMsg time.Time

// dispatchMsg reports continuations waiting on the dispatch queue.
type dispatchMsg struct{}

type noticeMsg string

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitDispatch blocks until the queue has work. Update drains it and arms
// the command again.
func waitDispatch(q *dispatch.Queue) tea.Cmd {
	return func() tea.Msg {
		<-q.Ready()
		return dispatchMsg{}
	}
}

func noticeCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return noticeMsg(text)
	}
}

// Run starts the Bubble Tea program on the calling goroutine, which must be
// the one bound to opts.Queue.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && m.ctx.Err() != nil {
		return nil
	}
	return err
}
