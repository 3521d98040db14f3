package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/five82/captable/internal/service"
	"github.com/five82/captable/internal/task"
)

// ColumnType is the SQLite affinity of a configured column.
type ColumnType string

const (
	Text    ColumnType = "text"
	Integer ColumnType = "integer"
	Real    ColumnType = "real"
)

// Column describes one bean property stored in the table.
type Column struct {
	Name string     `toml:"name" yaml:"name"`
	Type ColumnType `toml:"type" yaml:"type"`
}

// Options configure Open.
type Options struct {
	Table   string
	Columns []Column
	// ParentColumn, when set, stores the id of the parent bean so ReadQuery
	// ParentKeys can restrict rows.
	ParentColumn string
	// ConfirmDeleteAbove asks before deleting more rows than this. Zero
	// disables the question.
	ConfirmDeleteAbove int
	// Latency delays every call, to make loading visible in demos.
	Latency time.Duration
}

// Store is safe for concurrent use.
type Store struct {
	db      *sql.DB
	opts    Options
	columns map[string]Column
}

var _ service.Service = (*Store)(nil)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Open opens or creates the database at path and ensures the table exists.
// The path ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}
	s := &Store{db: db, opts: opts, columns: make(map[string]Column, len(opts.Columns))}
	for _, c := range opts.Columns {
		s.columns[c.Name] = c
	}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func validateOptions(opts Options) error {
	if !identPattern.MatchString(opts.Table) {
		return fmt.Errorf("invalid table name %q", opts.Table)
	}
	if len(opts.Columns) == 0 {
		return errors.New("no columns configured")
	}
	seen := map[string]bool{"id": true, "version": true}
	if opts.ParentColumn != "" {
		if !identPattern.MatchString(opts.ParentColumn) {
			return fmt.Errorf("invalid parent column %q", opts.ParentColumn)
		}
		seen[opts.ParentColumn] = true
	}
	for _, c := range opts.Columns {
		if !identPattern.MatchString(c.Name) {
			return fmt.Errorf("invalid column name %q", c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = true
		switch c.Type {
		case Text, Integer, Real:
		default:
			return fmt.Errorf("column %q: unknown type %q", c.Name, c.Type)
		}
	}
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n\tid TEXT PRIMARY KEY,\n\tversion INTEGER NOT NULL DEFAULT 1", quote(s.opts.Table))
	if s.opts.ParentColumn != "" {
		fmt.Fprintf(&b, ",\n\t%s TEXT", quote(s.opts.ParentColumn))
	}
	for _, c := range s.opts.Columns {
		fmt.Fprintf(&b, ",\n\t%s %s", quote(c.Name), strings.ToUpper(string(c.Type)))
	}
	b.WriteString("\n)")
	if _, err := s.db.ExecContext(ctx, b.String()); err != nil {
		return fmt.Errorf("create table %s: %w", s.opts.Table, err)
	}
	if s.opts.ParentColumn != "" {
		idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)",
			quote("idx_"+s.opts.Table+"_"+s.opts.ParentColumn), quote(s.opts.Table), quote(s.opts.ParentColumn))
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("create parent index: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Columns returns the configured columns.
func (s *Store) Columns() []Column {
	return append([]Column(nil), s.opts.Columns...)
}

// Read implements service.Reader.
func (s *Store) Read(ctx context.Context, q service.ReadQuery) ([]service.Bean, error) {
	if err := s.delay(ctx); err != nil {
		return nil, err
	}
	where, args, err := s.where(q.ParentKeys, q.Filters)
	if err != nil {
		return nil, err
	}
	order, err := s.orderBy(q.Sort)
	if err != nil {
		return nil, err
	}
	limit := q.MaxRows
	if limit <= 0 {
		limit = -1
	}
	query := fmt.Sprintf("SELECT %s FROM %s%s%s LIMIT ? OFFSET ?", s.selectList(), quote(s.opts.Table), where, order)
	args = append(args, limit, max(q.FirstRow, 0))
	return s.query(ctx, query, args...)
}

// Count implements service.Reader.
func (s *Store) Count(ctx context.Context, q service.CountQuery) (int, error) {
	if err := s.delay(ctx); err != nil {
		return 0, err
	}
	where, args, err := s.where(q.ParentKeys, q.Filters)
	if err != nil {
		return 0, err
	}
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", quote(s.opts.Table), where)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", s.opts.Table, err)
	}
	return n, nil
}

// Create implements service.Creator. Beans are returned in input order.
func (s *Store) Create(ctx context.Context, parentKeys []service.Key, data []service.BeanData) ([]service.Bean, error) {
	if err := s.delay(ctx); err != nil {
		return nil, err
	}
	failures := make(map[string]error)
	for _, d := range data {
		for property := range d.Values {
			if _, ok := s.columns[property]; !ok {
				failures[d.ClientID] = fmt.Errorf("%w: unknown property %q", service.ErrConstraint, property)
			}
		}
	}
	if len(failures) > 0 {
		return nil, &service.BatchError{Failures: failures}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback()

	ids := make([]string, len(data))
	for i, d := range data {
		ids[i] = ulid.Make().String()
		cols := []string{"id", "version"}
		args := []any{ids[i], 1}
		if s.opts.ParentColumn != "" && len(parentKeys) > 0 {
			cols = append(cols, s.opts.ParentColumn)
			args = append(args, parentKeys[0].ID)
		}
		for _, c := range s.opts.Columns {
			v, ok := d.Values[c.Name]
			if !ok {
				continue
			}
			coerced, err := coerce(c, v)
			if err != nil {
				return nil, &service.BatchError{Failures: map[string]error{d.ClientID: err}}
			}
			cols = append(cols, c.Name)
			args = append(args, coerced)
		}
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(s.opts.Table), quoteAll(cols), placeholders(len(cols)))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("insert into %s: %w", s.opts.Table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create: %w", err)
	}
	return s.byIDs(ctx, ids, true)
}

// Update implements service.Updater. Either every modification is applied
// or none is, in which case a *service.BatchError names the offenders.
func (s *Store) Update(ctx context.Context, mods []service.BeanModification) ([]service.Bean, error) {
	if err := s.delay(ctx); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	failures := make(map[string]error)
	ids := make([]string, 0, len(mods))
	for _, m := range mods {
		if err := s.checkVersion(ctx, tx, m.Key); err != nil {
			failures[m.Key.ID] = err
			continue
		}
		sets := []string{"version = version + 1"}
		var args []any
		for _, change := range m.Changes {
			c, ok := s.columns[change.Property]
			if !ok {
				failures[m.Key.ID] = fmt.Errorf("%w: unknown property %q", service.ErrConstraint, change.Property)
				break
			}
			v, err := coerce(c, change.New)
			if err != nil {
				failures[m.Key.ID] = err
				break
			}
			sets = append(sets, quote(c.Name)+" = ?")
			args = append(args, v)
		}
		if failures[m.Key.ID] != nil {
			continue
		}
		args = append(args, m.Key.ID)
		query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", quote(s.opts.Table), strings.Join(sets, ", "))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("update %s: %w", m.Key.ID, err)
		}
		ids = append(ids, m.Key.ID)
	}
	if len(failures) > 0 {
		return nil, &service.BatchError{Failures: failures}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return s.byIDs(ctx, ids, true)
}

// Refresh implements service.Refresher.
func (s *Store) Refresh(ctx context.Context, keys []service.Key) ([]service.Bean, error) {
	if err := s.delay(ctx); err != nil {
		return nil, err
	}
	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = k.ID
	}
	return s.byIDs(ctx, ids, false)
}

// Delete implements service.Deleter.
func (s *Store) Delete(ctx context.Context, keys []service.Key) error {
	if err := s.confirmDelete(ctx, len(keys)); err != nil {
		return err
	}
	if err := s.delay(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	failures := make(map[string]error)
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", quote(s.opts.Table))
	for i, k := range keys {
		if err := s.checkVersion(ctx, tx, k); err != nil {
			failures[k.ID] = err
			continue
		}
		if _, err := tx.ExecContext(ctx, query, k.ID); err != nil {
			return fmt.Errorf("delete %s: %w", k.ID, err)
		}
		if t := task.FromContext(ctx); t != nil {
			t.SetProgress(float64(i+1) / float64(len(keys)))
		}
	}
	if len(failures) > 0 {
		return &service.BatchError{Failures: failures}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

func (s *Store) confirmDelete(ctx context.Context, n int) error {
	if s.opts.ConfirmDeleteAbove <= 0 || n <= s.opts.ConfirmDeleteAbove {
		return nil
	}
	t := task.FromContext(ctx)
	if t == nil {
		return nil
	}
	answer, err := t.Ask(ctx, task.Question{
		Text:    fmt.Sprintf("Delete %d rows?", n),
		Options: []string{"Cancel", "Delete"},
		Default: 1,
	})
	if err != nil && !errors.Is(err, task.ErrNoQuestionHandler) {
		return err
	}
	if answer != 1 {
		return service.ErrCanceled
	}
	return nil
}

func (s *Store) checkVersion(ctx context.Context, tx *sql.Tx, k service.Key) error {
	var version int64
	query := fmt.Sprintf("SELECT version FROM %s WHERE id = ?", quote(s.opts.Table))
	err := tx.QueryRowContext(ctx, query, k.ID).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return service.ErrNotFound
	case err != nil:
		return fmt.Errorf("read version of %s: %w", k.ID, err)
	case version != k.Version:
		return service.ErrStale
	}
	return nil
}

func (s *Store) delay(ctx context.Context) error {
	if s.opts.Latency <= 0 {
		return nil
	}
	timer := time.NewTimer(s.opts.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// byIDs loads rows by id in the given order. With strict a missing row is
// an error, otherwise it is skipped.
func (s *Store) byIDs(ctx context.Context, ids []string, strict bool) ([]service.Bean, error) {
	if len(ids) == 0 {
		return []service.Bean{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id IN (%s)", s.selectList(), quote(s.opts.Table), placeholders(len(ids)))
	found, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]service.Bean, len(found))
	for _, b := range found {
		byID[b.ID] = b
	}
	out := make([]service.Bean, 0, len(ids))
	for _, id := range ids {
		b, ok := byID[id]
		if !ok {
			if strict {
				return nil, fmt.Errorf("%w: %s", service.ErrNotFound, id)
			}
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]service.Bean, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.opts.Table, err)
	}
	defer rows.Close()

	out := []service.Bean{}
	for rows.Next() {
		var (
			id      string
			version int64
		)
		values := make([]any, len(s.opts.Columns))
		dest := []any{&id, &version}
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.opts.Table, err)
		}
		b := service.Bean{ID: id, Version: version, Values: make(map[string]any, len(values))}
		for i, c := range s.opts.Columns {
			b.Values[c.Name] = normalize(values[i])
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", s.opts.Table, err)
	}
	return out, nil
}

func (s *Store) selectList() string {
	cols := []string{"id", "version"}
	for _, c := range s.opts.Columns {
		cols = append(cols, c.Name)
	}
	return quoteAll(cols)
}

func (s *Store) where(parentKeys []service.Key, filters []service.Filter) (string, []any, error) {
	var (
		clauses []string
		args    []any
	)
	if s.opts.ParentColumn != "" && len(parentKeys) > 0 {
		for _, k := range parentKeys {
			args = append(args, k.ID)
		}
		clauses = append(clauses, fmt.Sprintf("%s IN (%s)", quote(s.opts.ParentColumn), placeholders(len(parentKeys))))
	}
	for _, f := range filters {
		c, ok := s.columns[f.Property]
		if !ok || !f.Valid() {
			return "", nil, fmt.Errorf("%w: unsupported filter %s", service.ErrConstraint, f)
		}
		if f.Op == service.OpContains {
			clauses = append(clauses, fmt.Sprintf("CAST(%s AS TEXT) LIKE '%%' || ? || '%%'", quote(c.Name)))
			args = append(args, fmt.Sprint(f.Value))
			continue
		}
		v, err := coerce(c, f.Value)
		if err != nil {
			return "", nil, err
		}
		op := string(f.Op)
		if f.Op == service.OpNotEqual {
			op = "<>"
		}
		clauses = append(clauses, fmt.Sprintf("%s %s ?", quote(c.Name), op))
		args = append(args, v)
	}
	if len(clauses) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func (s *Store) orderBy(keys []service.SortKey) (string, error) {
	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		if _, ok := s.columns[k.Property]; !ok {
			return "", fmt.Errorf("%w: cannot sort by %q", service.ErrConstraint, k.Property)
		}
		dir := "ASC"
		if k.Descending {
			dir = "DESC"
		}
		parts = append(parts, quote(k.Property)+" "+dir)
	}
	// Ties need a stable order or pages would overlap.
	parts = append(parts, "id ASC")
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

// coerce converts v to the Go type matching the column affinity.
func coerce(c Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	bad := fmt.Errorf("%w: %q is not a valid %s for %s", service.ErrConstraint, fmt.Sprint(v), c.Type, c.Name)
	switch c.Type {
	case Integer:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n != float64(int64(n)) {
				return nil, bad
			}
			return int64(n), nil
		case string:
			parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
			if err != nil {
				return nil, bad
			}
			return parsed, nil
		}
	case Real:
		switch n := v.(type) {
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case float64:
			return n, nil
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				return nil, bad
			}
			return parsed, nil
		}
	case Text:
		return fmt.Sprint(v), nil
	}
	return nil, bad
}

func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case int:
		return int64(t)
	default:
		return t
	}
}

func quote(ident string) string {
	return `"` + ident + `"`
}

func quoteAll(idents []string) string {
	quoted := make([]string, len(idents))
	for i, id := range idents {
		quoted[i] = quote(id)
	}
	return strings.Join(quoted, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
