package table

import (
	"errors"
	"io"
	"log"
	"sort"
	"time"

	"github.com/five82/captable/internal/bean"
	"github.com/five82/captable/internal/clock"
	"github.com/five82/captable/internal/dispatch"
	"github.com/five82/captable/internal/event"
	"github.com/five82/captable/internal/execution"
	"github.com/five82/captable/internal/service"
	"github.com/five82/captable/internal/state"
	"github.com/five82/captable/internal/task"
	"github.com/five82/captable/internal/tracker"
)

const (
	// DefaultPageSize is the number of rows fetched per read call.
	DefaultPageSize = 1000
	// DefaultTimeout bounds every service call.
	DefaultTimeout = 30 * time.Second
	// DefaultParentDebounce delays reloads driven by a parent selection.
	DefaultParentDebounce = 150 * time.Millisecond
)

var (
	ErrNoReader     = errors.New("table: reader service required")
	ErrNoDispatcher = errors.New("table: dispatcher required")
	ErrNoUpdater    = errors.New("table: no updater service configured")
	ErrNoCreator    = errors.New("table: no creator service configured")
	ErrNoDeleter    = errors.New("table: no deleter service configured")
	ErrNoRefresher  = errors.New("table: no refresher service configured")
	ErrDisposed     = errors.New("table: model disposed")
	ErrInvalid      = errors.New("table: validation failed")
	ErrRowRange     = errors.New("table: row out of range")
	ErrNotLoaded    = errors.New("table: row not loaded")
	ErrReadOnly     = errors.New("table: column is not editable")
	ErrExecuting    = errors.New("table: bean has an operation in flight")
)

// Column binds a bean property to a table column.
type Column struct {
	Property string
	Title    string
	Width    int
	Editable bool
}

// Config wires a model to its services and collaborators. Reader and
// Dispatcher are required; every other service is optional and only needed
// by the operation that uses it.
type Config struct {
	Reader    service.Reader
	Creator   service.Creator
	Updater   service.Updater
	Refresher service.Refresher
	Deleter   service.Deleter

	Dispatcher dispatch.Dispatcher
	Clock      clock.Clock
	Columns    []Column
	PageSize   int
	Timeout    time.Duration
	// LoadDelay postpones background page loads so fast scrolling does not
	// issue a read for every page it passes.
	LoadDelay time.Duration
	// Policy groups beans for delete and refresh. Save always uses one
	// batch.
	Policy    execution.Policy
	Parameter map[string]string
	// Defaults seed the values of beans created with AddBean.
	Defaults  map[string]any
	Validator tracker.Validator
	Converter execution.MessageConverter
	Questions task.QuestionHandler
	Logger    *log.Logger
	Store     *state.Store
}

// EventKind says what changed on the model.
type EventKind int

const (
	// DataChanged means rows must be queried again.
	DataChanged EventKind = iota
	// SelectionChanged means the selected beans changed.
	SelectionChanged
	// StateChanged means modification or execution counts changed.
	StateChanged
)

// Event is published on the model's bus.
type Event struct {
	Kind EventKind
	// Page is the page whose rows changed, or -1 for the whole table.
	Page int
}

type page struct {
	// rows holds the loaded beans; nil entries are rows that must be loaded
	// again.
	rows []*bean.Proxy
	// placeholder is returned for rows without a bean while the page loads
	// or after the load failed.
	placeholder *bean.Proxy
}

// Model is a paged, lazily loaded table of beans. It is owned by the
// dispatch goroutine: mutating methods return dispatch.ErrNotDispatchThread
// when called elsewhere, and read accessors must only be called there.
type Model struct {
	cfg      Config
	clock    clock.Clock
	log      *log.Logger
	tracker  *tracker.Tracker
	exec     *execution.Helper
	pageSize int

	pages      map[int]*page
	added      []*bean.Proxy
	rowCount   int
	moreRows   bool
	counted    int
	countKnown bool
	emptyRow   *bean.Proxy

	loaders      [2]*pageLoader
	programmatic map[int]*pageLoader
	count        *countLoader

	sort       []service.SortKey
	filters    map[string]service.Filter
	parentKeys []service.Key

	selection        map[*bean.Proxy]struct{}
	pendingSelection map[string]struct{}

	inflight   map[*task.Task]int
	generation int
	disposed   bool
	lastErr    error
	countErr   error
	untrack    func()
	bus        event.Bus[Event]
}

// New builds an empty model. Call Load to fetch rows.
func New(cfg Config) (*Model, error) {
	if cfg.Reader == nil {
		return nil, ErrNoReader
	}
	if cfg.Dispatcher == nil {
		return nil, ErrNoDispatcher
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	cfg.Columns = append([]Column(nil), cfg.Columns...)

	m := &Model{
		cfg:          cfg,
		clock:        cfg.Clock,
		log:          logger,
		tracker:      tracker.New(cfg.Validator),
		exec:         execution.New(cfg.Dispatcher, cfg.Policy, cfg.Converter),
		pageSize:     cfg.PageSize,
		pages:        make(map[int]*page),
		programmatic: make(map[int]*pageLoader),
		filters:      make(map[string]service.Filter),
		selection:    make(map[*bean.Proxy]struct{}),
		inflight:     make(map[*task.Task]int),
		emptyRow:     bean.NewDummy(),
	}
	m.untrack = m.tracker.Subscribe(func(tracker.Event) {
		m.publish(Event{Kind: StateChanged, Page: -1})
		m.publishStatus()
	})
	return m, nil
}

func (m *Model) check() error {
	if err := dispatch.CheckThread(m.cfg.Dispatcher); err != nil {
		return err
	}
	if m.disposed {
		return ErrDisposed
	}
	return nil
}

// Subscribe registers fn for model events.
func (m *Model) Subscribe(fn func(Event)) func() {
	return m.bus.Subscribe(fn)
}

func (m *Model) publish(e Event) {
	m.bus.Publish(e)
}

// Load drops every row and starts over: pages load lazily as rows are
// requested and the row count is fetched on first access.
func (m *Model) Load() error {
	if err := m.check(); err != nil {
		return err
	}
	m.reset()
	m.count = newCountLoader(m)
	m.moreRows = true
	m.publish(Event{Kind: DataChanged, Page: -1})
	m.publishStatus()
	return nil
}

// Clear drops every row without loading again.
func (m *Model) Clear() error {
	if err := m.check(); err != nil {
		return err
	}
	m.reset()
	m.pendingSelection = nil
	m.publish(Event{Kind: DataChanged, Page: -1})
	m.publishStatus()
	return nil
}

// Dispose cancels all loaders and in-flight operations and releases every
// listener. The model cannot be used afterwards.
func (m *Model) Dispose() error {
	if err := m.check(); err != nil {
		return err
	}
	m.reset()
	for t := range m.inflight {
		go t.Cancel()
	}
	m.untrack()
	m.tracker.Dispose()
	m.disposed = true
	m.bus.Clear()
	return nil
}

// IsDisposed reports whether Dispose was called.
func (m *Model) IsDisposed() bool { return m.disposed }

func (m *Model) reset() {
	m.generation++
	m.cancelLoaders()
	if m.count != nil {
		m.count.cancel()
		m.count = nil
	}

	hadSelection := len(m.selection) > 0
	pending := make(map[string]struct{}, len(m.selection))
	for b := range m.selection {
		pending[b.ID()] = struct{}{}
	}
	m.tracker.ClearAll()
	for _, pg := range m.pages {
		for _, b := range pg.rows {
			if b != nil {
				b.Dispose()
			}
		}
	}
	for _, b := range m.added {
		b.Dispose()
	}

	m.pages = make(map[int]*page)
	m.added = nil
	m.rowCount = 0
	m.moreRows = false
	m.counted = 0
	m.countKnown = false
	m.selection = make(map[*bean.Proxy]struct{})
	m.pendingSelection = pending
	if hadSelection {
		m.publish(Event{Kind: SelectionChanged, Page: -1})
	}
}

// EffectiveSize reconciles the speculative row count with the authoritative
// one, which is only meaningful when ok is set.
func EffectiveSize(speculative, authoritative int, ok bool) int {
	if !ok {
		authoritative = 0
	}
	return max(authoritative, speculative)
}

// serverSize is the number of rows backed by the reader, including the
// speculative row that stands for "maybe more".
func (m *Model) serverSize() int {
	speculative := m.rowCount
	if m.moreRows {
		speculative++
	}
	return EffectiveSize(speculative, m.counted, m.countKnown)
}

// RowCount returns the displayed number of rows.
func (m *Model) RowCount() int {
	return m.serverSize() + len(m.added)
}

// CountKnown reports whether the authoritative count has arrived.
func (m *Model) CountKnown() bool { return m.countKnown }

// PageSize returns the configured page size.
func (m *Model) PageSize() int { return m.pageSize }

// ColumnCount returns the number of columns.
func (m *Model) ColumnCount() int { return len(m.cfg.Columns) }

// Column returns column i.
func (m *Model) Column(i int) Column { return m.cfg.Columns[i] }

// Columns returns a copy of the columns.
func (m *Model) Columns() []Column { return append([]Column(nil), m.cfg.Columns...) }

// SetColumnWidth records a user chosen width.
func (m *Model) SetColumnWidth(i, width int) {
	if i < 0 || i >= len(m.cfg.Columns) || width < 0 {
		return
	}
	m.cfg.Columns[i].Width = width
}

// Tracker exposes the model's state tracker.
func (m *Model) Tracker() *tracker.Tracker { return m.tracker }

// LastError returns the most recent backend failure, or nil.
func (m *Model) LastError() error { return m.lastErr }

// Bean returns the bean shown in row. Rows whose page is not loaded yet
// return a dummy placeholder and start loading the page; rows outside the
// table return nil. Bean never blocks.
func (m *Model) Bean(row int) *bean.Proxy {
	if m.disposed || row < 0 || row >= m.RowCount() {
		return nil
	}
	if m.count != nil {
		m.count.trigger()
	}
	server := m.serverSize()
	if row >= server {
		return m.added[row-server]
	}
	p, idx := row/m.pageSize, row%m.pageSize
	pg := m.pages[p]
	switch {
	case pg == nil:
		return m.requestPage(p).dummy
	case idx < len(pg.rows) && pg.rows[idx] != nil:
		return pg.rows[idx]
	case pg.placeholder != nil:
		return pg.placeholder
	case idx < len(pg.rows):
		return m.requestPage(p).dummy
	default:
		return m.emptyRow
	}
}

// Cell returns the value of column col in row, or nil for placeholders.
func (m *Model) Cell(row, col int) any {
	b := m.Bean(row)
	if b == nil || b.IsDummy() || col < 0 || col >= len(m.cfg.Columns) {
		return nil
	}
	return b.Value(m.cfg.Columns[col].Property)
}

// SetValue edits column col of row.
func (m *Model) SetValue(row, col int, value any) error {
	if err := m.check(); err != nil {
		return err
	}
	if col < 0 || col >= len(m.cfg.Columns) {
		return ErrRowRange
	}
	if !m.cfg.Columns[col].Editable {
		return ErrReadOnly
	}
	b := m.Bean(row)
	switch {
	case b == nil:
		return ErrRowRange
	case b.IsDummy():
		return ErrNotLoaded
	case b.HasExecution():
		return ErrExecuting
	}
	b.SetValue(m.cfg.Columns[col].Property, value)
	m.publish(Event{Kind: DataChanged, Page: row / m.pageSize})
	return nil
}

// RowOf returns the row currently showing b.
func (m *Model) RowOf(b *bean.Proxy) (int, bool) {
	if b == nil {
		return 0, false
	}
	for _, p := range m.pageIndices() {
		for i, row := range m.pages[p].rows {
			if row == b {
				return p*m.pageSize + i, true
			}
		}
	}
	for i, row := range m.added {
		if row == b {
			return m.serverSize() + i, true
		}
	}
	return 0, false
}

// Beans returns every loaded bean in row order.
func (m *Model) Beans() []*bean.Proxy {
	var out []*bean.Proxy
	for _, p := range m.pageIndices() {
		for _, b := range m.pages[p].rows {
			if b != nil {
				out = append(out, b)
			}
		}
	}
	return append(out, m.added...)
}

func (m *Model) pageIndices() []int {
	idx := make([]int, 0, len(m.pages))
	for p := range m.pages {
		idx = append(idx, p)
	}
	sort.Ints(idx)
	return idx
}

// Status summarizes the model.
func (m *Model) Status() state.Status {
	counts := m.tracker.Counts()
	loading := m.loading()
	executing := 0
	for _, b := range m.tracker.Executing() {
		if !b.IsDummy() {
			executing++
		}
	}
	for _, n := range m.inflight {
		executing += n
	}
	st := state.Status{
		Rows:         m.RowCount(),
		CountKnown:   m.countKnown,
		Counted:      m.counted,
		LoadingPages: loading,
		Modified:     counts.Modified,
		Transient:    counts.Transient,
		Executing:    executing,
		Selected:     len(m.selection),
	}
	for _, k := range m.sort {
		st.Sort = append(st.Sort, k.String())
	}
	for _, f := range service.SortedFilters(m.filters) {
		st.Filters = append(st.Filters, f.String())
	}
	return st
}

// HasPendingWork reports whether edits are unsaved or operations other than
// page loads are running.
func (m *Model) HasPendingWork() bool {
	st := m.Status()
	return st.Modified > 0 || st.Transient > 0 || st.Executing > 0
}

func (m *Model) publishStatus() {
	if m.cfg.Store == nil || m.disposed {
		return
	}
	st := m.Status()
	m.cfg.Store.Update(&st, nil)
}

func (m *Model) recordError(err error) {
	m.lastErr = err
	m.log.Printf("table: %v", err)
	if m.cfg.Store != nil {
		m.cfg.Store.Update(nil, err)
	}
}

func (m *Model) succeeded() {
	m.lastErr = nil
	if m.cfg.Store != nil {
		m.cfg.Store.Succeeded()
	}
}
