package table

import (
	"context"
	"fmt"
	"sort"

	"github.com/five82/captable/internal/bean"
	"github.com/five82/captable/internal/clock"
	"github.com/five82/captable/internal/service"
	"github.com/five82/captable/internal/task"
)

// pageLoader fetches one page. Background loaders rotate through the
// even/odd slots by page parity; programmatic loaders are keyed by page.
type pageLoader struct {
	m            *Model
	page         int
	programmatic bool
	task         *task.Task
	dummy        *bean.Proxy
	timer        clock.Timer
	started      bool
	disposed     bool
}

// requestPage returns the loader responsible for p, creating a background
// loader when there is none.
func (m *Model) requestPage(p int) *pageLoader {
	if l := m.loaderFor(p); l != nil {
		return l
	}
	slot := p % 2
	if old := m.loaders[slot]; old != nil {
		old.cancel()
	}
	l := m.newPageLoader(p, false)
	m.loaders[slot] = l
	l.start()
	return l
}

// LoadPage (re)loads page p right away. A background loader for the same
// page is canceled; a programmatic one already in flight is kept.
func (m *Model) LoadPage(p int) error {
	if err := m.check(); err != nil {
		return err
	}
	if p < 0 {
		return ErrRowRange
	}
	if l, ok := m.programmatic[p]; ok && !l.disposed {
		return nil
	}
	if l := m.loaders[p%2]; l != nil && l.page == p {
		l.cancel()
	}
	l := m.newPageLoader(p, true)
	m.programmatic[p] = l
	l.start()
	m.publish(Event{Kind: DataChanged, Page: p})
	return nil
}

// CancelPage stops loading page p. The page keeps a placeholder carrying an
// informational message until it is loaded again with LoadPage or Load.
func (m *Model) CancelPage(p int) error {
	if err := m.check(); err != nil {
		return err
	}
	l := m.loaderFor(p)
	if l == nil {
		return nil
	}
	l.dispose()
	go l.task.Cancel()
	l.dummy.SetMessages([]bean.Message{m.exec.Convert(service.ErrCanceled)})
	if pg := m.pages[p]; pg != nil {
		pg.placeholder = l.dummy
	}
	m.publish(Event{Kind: DataChanged, Page: p})
	m.publishStatus()
	return nil
}

// IsLoading reports whether page p has a loader in flight.
func (m *Model) IsLoading(p int) bool {
	return m.loaderFor(p) != nil
}

func (m *Model) loaderFor(p int) *pageLoader {
	if l, ok := m.programmatic[p]; ok {
		return l
	}
	if l := m.loaders[p%2]; l != nil && l.page == p {
		return l
	}
	return nil
}

func (m *Model) activeLoaders() []*pageLoader {
	var out []*pageLoader
	for _, l := range m.loaders {
		if l != nil {
			out = append(out, l)
		}
	}
	for _, p := range sortedKeys(m.programmatic) {
		out = append(out, m.programmatic[p])
	}
	return out
}

func (m *Model) loading() int {
	return len(m.activeLoaders())
}

func (m *Model) cancelLoaders() {
	for _, l := range m.activeLoaders() {
		l.cancel()
	}
}

func (m *Model) newPageLoader(p int, programmatic bool) *pageLoader {
	l := &pageLoader{
		m:            m,
		page:         p,
		programmatic: programmatic,
		task:         task.New(context.Background(), fmt.Sprintf("load page %d", p)),
		dummy:        bean.NewDummy(),
	}
	if m.cfg.Questions != nil {
		l.task.SetQuestionHandler(m.cfg.Questions)
	}
	_ = l.dummy.StartExecution(l.task)
	m.tracker.Register(l.dummy)
	pg := m.pages[p]
	if pg == nil {
		pg = &page{}
		m.pages[p] = pg
	}
	pg.placeholder = l.dummy
	// Detaching the dummy from the tracker (cancel all) cancels the read.
	l.dummy.Subscribe(func(e bean.Event) {
		if e.Kind == bean.ProcessStateChanged && !l.dummy.HasExecution() && !l.disposed {
			go l.task.Cancel()
		}
	})
	return l
}

func (l *pageLoader) start() {
	if l.programmatic || l.m.cfg.LoadDelay <= 0 {
		l.run()
		return
	}
	d := l.m.cfg.Dispatcher
	l.timer = l.m.clock.AfterFunc(l.m.cfg.LoadDelay, func() {
		d.InvokeLater(l.run)
	})
}

func (l *pageLoader) run() {
	if l.disposed || l.started {
		return
	}
	l.started = true
	m := l.m
	q := m.readQuery(l.page)
	reader := m.cfg.Reader
	d := m.cfg.Dispatcher
	service.Invoke(l.task, m.cfg.Timeout, func(ctx context.Context) ([]service.Bean, error) {
		return reader.Read(ctx, q)
	}, service.Callbacks[[]service.Bean]{
		OnFinished: func(result []service.Bean) {
			d.InvokeLater(func() { l.finished(result) })
		},
		OnFailed: func(err error) {
			d.InvokeLater(func() { l.failed(err) })
		},
	})
}

// dispose detaches the loader from the model. Late callbacks are ignored.
func (l *pageLoader) dispose() {
	if l.disposed {
		return
	}
	l.disposed = true
	if l.timer != nil {
		l.timer.Stop()
	}
	l.dummy.FinishExecution()
	l.m.tracker.Unregister(l.dummy, true)
	if l.m.loaders[l.page%2] == l {
		l.m.loaders[l.page%2] = nil
	}
	if l.m.programmatic[l.page] == l {
		delete(l.m.programmatic, l.page)
	}
}

// cancel stops the loader silently: the page goes back to absent, or keeps
// the rows it already had.
func (l *pageLoader) cancel() {
	if l.disposed {
		return
	}
	l.dispose()
	go l.task.Cancel()
	if pg := l.m.pages[l.page]; pg != nil && pg.placeholder == l.dummy {
		pg.placeholder = nil
		if len(pg.rows) == 0 {
			delete(l.m.pages, l.page)
		}
	}
}

func (l *pageLoader) finished(result []service.Bean) {
	if l.disposed {
		return
	}
	m := l.m
	l.dispose()
	m.succeeded()
	m.mergePage(l.page, result)
	m.applyPageSize(l.page, len(result))
	m.publish(Event{Kind: DataChanged, Page: l.page})
	m.publishStatus()
}

func (l *pageLoader) failed(err error) {
	if l.disposed {
		return
	}
	m := l.m
	l.dispose()
	l.dummy.SetMessages([]bean.Message{m.exec.Convert(err)})
	pg := m.pages[l.page]
	if pg == nil {
		pg = &page{}
		m.pages[l.page] = pg
	}
	pg.placeholder = l.dummy
	if !service.IsCanceled(err) {
		m.recordError(fmt.Errorf("read page %d: %w", l.page, err))
	}
	m.publish(Event{Kind: DataChanged, Page: l.page})
	m.publishStatus()
}

// mergePage installs the beans of page p. Beans already shown on the page
// keep their proxy; unmodified ones take the new snapshot.
func (m *Model) mergePage(p int, result []service.Bean) {
	pg := m.pages[p]
	if pg == nil {
		pg = &page{}
		m.pages[p] = pg
	}
	old := make(map[string]*bean.Proxy, len(pg.rows))
	for _, b := range pg.rows {
		if b != nil {
			old[b.ID()] = b
		}
	}
	rows := make([]*bean.Proxy, len(result))
	selected := false
	for i, dto := range result {
		if b, ok := old[dto.ID]; ok {
			delete(old, dto.ID)
			if !b.HasModifications() && !b.HasExecution() {
				_ = b.Update(dto)
			}
			rows[i] = b
			continue
		}
		b := bean.New(dto)
		m.tracker.Register(b)
		if _, ok := m.pendingSelection[dto.ID]; ok {
			delete(m.pendingSelection, dto.ID)
			m.selection[b] = struct{}{}
			selected = true
		}
		rows[i] = b
	}
	for _, b := range old {
		m.release(b)
	}
	pg.rows = rows
	pg.placeholder = nil
	if selected {
		m.publish(Event{Kind: SelectionChanged, Page: p})
	}
}

// release forgets a bean that left the table.
func (m *Model) release(b *bean.Proxy) {
	m.tracker.Unregister(b, true)
	delete(m.selection, b)
	b.Dispose()
}

// applyPageSize updates the speculative row count after page p returned n
// rows. A short page marks the end of the data.
func (m *Model) applyPageSize(p, n int) {
	end := p*m.pageSize + n
	if n < m.pageSize {
		m.rowCount = end
		m.moreRows = false
		return
	}
	if end > m.rowCount {
		m.rowCount = end
		m.moreRows = !m.countKnown
	}
}

// fixLoaders cancels loaders whose page lies past the known end.
func (m *Model) fixLoaders() {
	size := m.serverSize()
	for _, l := range m.activeLoaders() {
		if l.page*m.pageSize >= size {
			l.cancel()
		}
	}
}

func (m *Model) readQuery(p int) service.ReadQuery {
	return service.ReadQuery{
		ParentKeys: m.parentKeys,
		Filters:    service.SortedFilters(m.filters),
		Sort:       append([]service.SortKey(nil), m.sort...),
		FirstRow:   p * m.pageSize,
		MaxRows:    m.pageSize,
		Parameter:  m.cfg.Parameter,
	}
}

type countState int

const (
	countNotStarted countState = iota
	countStarted
	countFinished
	countCanceled
)

// countLoader fetches the authoritative row count once per Load, on the
// first row access.
type countLoader struct {
	m     *Model
	task  *task.Task
	state countState
}

func newCountLoader(m *Model) *countLoader {
	return &countLoader{m: m, task: task.New(context.Background(), "count rows")}
}

func (c *countLoader) trigger() {
	if c.state != countNotStarted {
		return
	}
	c.state = countStarted
	m := c.m
	q := service.CountQuery{
		ParentKeys: m.parentKeys,
		Filters:    service.SortedFilters(m.filters),
		Parameter:  m.cfg.Parameter,
	}
	reader := m.cfg.Reader
	d := m.cfg.Dispatcher
	service.Invoke(c.task, m.cfg.Timeout, func(ctx context.Context) (int, error) {
		return reader.Count(ctx, q)
	}, service.Callbacks[int]{
		OnFinished: func(n int) {
			d.InvokeLater(func() { c.finished(n) })
		},
		OnFailed: func(err error) {
			d.InvokeLater(func() { c.failed(err) })
		},
	})
}

func (c *countLoader) finished(n int) {
	if c.state != countStarted {
		return
	}
	c.state = countFinished
	m := c.m
	m.counted = n
	m.countKnown = true
	m.moreRows = false
	m.fixLoaders()
	// A page read failure stays reported; only an earlier count failure is
	// cleared.
	if m.lastErr != nil && m.lastErr == m.countErr {
		m.succeeded()
	}
	m.countErr = nil
	m.publish(Event{Kind: DataChanged, Page: -1})
	m.publishStatus()
}

func (c *countLoader) failed(err error) {
	if c.state != countStarted {
		return
	}
	c.state = countFinished
	if !service.IsCanceled(err) {
		c.m.countErr = fmt.Errorf("count rows: %w", err)
		c.m.recordError(c.m.countErr)
		c.m.publishStatus()
	}
}

func (c *countLoader) cancel() {
	if c.state == countFinished || c.state == countCanceled {
		return
	}
	c.state = countCanceled
	go c.task.Cancel()
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
