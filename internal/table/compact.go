package table

import "github.com/five82/captable/internal/bean"

// pageBuilder repacks a stream of rows into fixed-size pages. Runs of
// unloaded rows are counted, not materialized, so compacting a huge table
// with few loaded pages stays cheap.
type pageBuilder struct {
	pageSize int
	out      map[int][]*bean.Proxy
	cur      []*bean.Proxy
	page     int
	fill     int
}

func (b *pageBuilder) unloaded(n int) {
	for n > 0 {
		k := min(n, b.pageSize-b.fill)
		if b.cur != nil {
			b.cur = append(b.cur, make([]*bean.Proxy, k)...)
		}
		b.fill += k
		n -= k
		if b.fill == b.pageSize {
			b.flush()
		}
	}
}

func (b *pageBuilder) add(p *bean.Proxy) {
	if b.cur == nil {
		b.cur = make([]*bean.Proxy, b.fill, b.pageSize)
	}
	b.cur = append(b.cur, p)
	b.fill++
	if b.fill == b.pageSize {
		b.flush()
	}
}

func (b *pageBuilder) flush() {
	if b.cur != nil {
		b.out[b.page] = b.cur
	}
	b.page++
	b.cur = nil
	b.fill = 0
}

// compactPages removes the rows matched by remove from the first size rows
// of pages and renumbers the survivors without gaps. Missing pages and nil
// entries are unloaded rows; they keep their relative position. Pages that
// end up without any loaded row are dropped. It returns the new pages and
// the number of removed rows.
func compactPages(pages map[int][]*bean.Proxy, size, pageSize int, remove func(*bean.Proxy) bool) (map[int][]*bean.Proxy, int) {
	b := &pageBuilder{pageSize: pageSize, out: make(map[int][]*bean.Proxy)}
	removed := 0
	for start := 0; start < size; start += pageSize {
		span := min(pageSize, size-start)
		rows, ok := pages[start/pageSize]
		if !ok {
			b.unloaded(span)
			continue
		}
		for i := 0; i < span; i++ {
			var row *bean.Proxy
			if i < len(rows) {
				row = rows[i]
			}
			switch {
			case row == nil:
				b.unloaded(1)
			case remove(row):
				removed++
			default:
				b.add(row)
			}
		}
	}
	if b.fill > 0 {
		b.flush()
	}
	return b.out, removed
}

// removeBeans drops the given beans from the table without reloading.
// Loaders in flight are canceled because their row ranges shift.
func (m *Model) removeBeans(gone []*bean.Proxy) {
	if len(gone) == 0 {
		return
	}
	set := make(map[*bean.Proxy]struct{}, len(gone))
	for _, b := range gone {
		set[b] = struct{}{}
	}
	isGone := func(b *bean.Proxy) bool {
		_, ok := set[b]
		return ok
	}

	m.cancelLoaders()
	server := m.rowCount
	if m.countKnown {
		server = max(m.counted, m.rowCount)
	}
	before := make(map[int][]*bean.Proxy, len(m.pages))
	for p, pg := range m.pages {
		before[p] = pg.rows
	}
	after, removed := compactPages(before, server, m.pageSize, isGone)
	if m.moreRows || !m.countKnown {
		// Server rows past the old end shift into the freed slots; keep them
		// as unloaded rows so the page is read again.
		for p, rows := range after {
			if len(rows) < m.pageSize {
				after[p] = append(rows, make([]*bean.Proxy, m.pageSize-len(rows))...)
			}
		}
	}

	kept := make(map[*bean.Proxy]struct{})
	m.pages = make(map[int]*page, len(after))
	for p, rows := range after {
		m.pages[p] = &page{rows: rows}
		for _, b := range rows {
			if b != nil {
				kept[b] = struct{}{}
			}
		}
	}
	for _, rows := range before {
		for _, b := range rows {
			if b == nil {
				continue
			}
			if _, ok := kept[b]; !ok {
				m.release(b)
			}
		}
	}

	added := m.added[:0]
	for _, b := range m.added {
		if isGone(b) {
			m.release(b)
			continue
		}
		added = append(added, b)
	}
	clear(m.added[len(added):])
	m.added = added

	m.rowCount = max(m.rowCount-removed, 0)
	if m.countKnown {
		m.counted = max(m.counted-removed, 0)
	}
	m.publish(Event{Kind: DataChanged, Page: -1})
	m.publish(Event{Kind: SelectionChanged, Page: -1})
	m.publishStatus()
}
