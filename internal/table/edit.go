package table

import (
	"context"
	"fmt"
	"maps"

	"github.com/oklog/ulid/v2"

	"github.com/five82/captable/internal/bean"
	"github.com/five82/captable/internal/execution"
	"github.com/five82/captable/internal/service"
	"github.com/five82/captable/internal/task"
)

// Validate revalidates changed beans; see tracker.Tracker.Validate.
func (m *Model) Validate() (bean.Message, bool) {
	res := m.tracker.Validate()
	return res.Message, res.Valid
}

// Save sends pending edits to the updater and transient beans to the
// creator. Beans leave the tracker while their save is in flight, so a
// second Save does not submit them again, and rejoin it when the result
// arrives. Missing services fail before anything is sent.
func (m *Model) Save() error {
	if err := m.check(); err != nil {
		return err
	}
	update := m.tracker.BeansToUpdate()
	create := m.tracker.BeansToCreate()
	if len(update) > 0 && m.cfg.Updater == nil {
		return ErrNoUpdater
	}
	if len(create) > 0 && m.cfg.Creator == nil {
		return ErrNoCreator
	}
	if res := m.tracker.Validate(); !res.Valid {
		return fmt.Errorf("%w: %s", ErrInvalid, res.Message.Text)
	}

	ctx := context.Background()
	gen := m.generation
	for _, u := range m.exec.PrepareWith(ctx, execution.Batch, "save", update) {
		m.detach(u, "save")
		mods := u.Modifications()
		updater := m.cfg.Updater
		service.Invoke(u.Task, m.cfg.Timeout, func(ctx context.Context) ([]service.Bean, error) {
			return updater.Update(ctx, mods)
		}, m.exec.MergeCallback(u, m.afterExecution(gen, "save", nil)))
	}
	for _, u := range m.exec.PrepareWith(ctx, execution.Batch, "create", create) {
		m.detach(u, "create")
		data := u.Data()
		parents := append([]service.Key(nil), m.parentKeys...)
		creator := m.cfg.Creator
		service.Invoke(u.Task, m.cfg.Timeout, func(ctx context.Context) ([]service.Bean, error) {
			return creator.Create(ctx, parents, data)
		}, m.exec.CreateCallback(u, m.afterExecution(gen, "create", nil)))
	}
	m.publishStatus()
	return nil
}

// detach takes the unit's beans out of the tracker for the duration of the
// call.
func (m *Model) detach(u execution.Unit, what string) {
	if m.cfg.Questions != nil {
		u.Task.SetQuestionHandler(m.cfg.Questions)
	}
	for _, b := range u.Beans {
		m.tracker.Unregister(b, true)
	}
	m.inflight[u.Task] = len(u.Beans)
	m.log.Printf("table: %s %d beans", what, len(u.Beans))
}

// afterExecution returns the continuation run once a unit's result was
// merged: beans rejoin the tracker unless the table was reloaded meanwhile.
func (m *Model) afterExecution(gen int, what string, then func(execution.Outcome)) func(execution.Outcome) {
	return func(out execution.Outcome) {
		delete(m.inflight, out.Unit.Task)
		if m.disposed || gen != m.generation {
			return
		}
		for _, b := range out.Unit.Beans {
			if !b.IsDisposed() {
				m.tracker.Register(b)
			}
		}
		switch {
		case out.Err == nil:
			m.succeeded()
			m.log.Printf("table: %s finished for %d beans", what, len(out.Applied))
		case service.IsCanceled(out.Err):
			m.log.Printf("table: %s canceled", what)
		default:
			m.recordError(fmt.Errorf("%s: %w", what, out.Err))
		}
		if then != nil {
			then(out)
		}
		m.publish(Event{Kind: DataChanged, Page: -1})
		m.publishStatus()
	}
}

// Delete removes beans. Transient beans only exist locally and go away
// immediately; persisted beans are removed from the table once the deleter
// confirms.
func (m *Model) Delete(beans []*bean.Proxy) error {
	if err := m.check(); err != nil {
		return err
	}
	var local, remote []*bean.Proxy
	for _, b := range beans {
		switch {
		case b == nil || b.IsDummy():
		case b.IsTransient():
			local = append(local, b)
		default:
			remote = append(remote, b)
		}
	}
	if len(remote) > 0 && m.cfg.Deleter == nil {
		return ErrNoDeleter
	}
	m.removeBeans(local)

	gen := m.generation
	for _, u := range m.exec.PrepareExecutions(context.Background(), "delete", remote) {
		if m.cfg.Questions != nil {
			u.Task.SetQuestionHandler(m.cfg.Questions)
		}
		// The beans stay tracked as executing; only the unit task is kept.
		m.inflight[u.Task] = 0
		keys := u.Keys()
		deleter := m.cfg.Deleter
		service.Invoke(u.Task, m.cfg.Timeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, deleter.Delete(ctx, keys)
		}, m.exec.DeleteCallback(u, m.afterExecution(gen, "delete", func(out execution.Outcome) {
			m.removeBeans(out.Applied)
		})))
	}
	m.publishStatus()
	return nil
}

// DeleteSelected deletes the selected beans.
func (m *Model) DeleteSelected() error {
	return m.Delete(m.SelectedBeans())
}

// RefreshBeans reloads the given beans from the refresher. Beans that no
// longer exist get a warning.
func (m *Model) RefreshBeans(beans []*bean.Proxy) error {
	if err := m.check(); err != nil {
		return err
	}
	if m.cfg.Refresher == nil {
		return ErrNoRefresher
	}
	var persisted []*bean.Proxy
	for _, b := range beans {
		if b != nil && !b.IsTransient() {
			persisted = append(persisted, b)
		}
	}
	gen := m.generation
	for _, u := range m.exec.PrepareExecutions(context.Background(), "refresh", persisted) {
		// The beans stay tracked as executing; only the unit task is kept.
		m.inflight[u.Task] = 0
		keys := u.Keys()
		refresher := m.cfg.Refresher
		service.Invoke(u.Task, m.cfg.Timeout, func(ctx context.Context) ([]service.Bean, error) {
			return refresher.Refresh(ctx, keys)
		}, m.exec.MergeCallback(u, m.afterExecution(gen, "refresh", nil)))
	}
	m.publishStatus()
	return nil
}

// AddBean appends a transient bean built from the configured defaults and
// values. It is created remotely by the next Save.
func (m *Model) AddBean(values map[string]any) (*bean.Proxy, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	initial := maps.Clone(m.cfg.Defaults)
	if initial == nil {
		initial = make(map[string]any, len(values))
	}
	maps.Copy(initial, values)
	b := bean.NewTransient(ulid.Make().String(), initial)
	m.added = append(m.added, b)
	m.tracker.Register(b)
	m.publish(Event{Kind: DataChanged, Page: -1})
	m.publishStatus()
	return b, nil
}

// UndoModifications reverts pending edits and discards transient beans.
func (m *Model) UndoModifications() error {
	if err := m.check(); err != nil {
		return err
	}
	var discard []*bean.Proxy
	for _, b := range m.tracker.ModifiedBeans() {
		if b.HasExecution() {
			continue
		}
		if b.IsTransient() {
			discard = append(discard, b)
			continue
		}
		b.UndoModifications()
	}
	m.removeBeans(discard)
	m.publish(Event{Kind: DataChanged, Page: -1})
	return nil
}

// CancelExecutions cancels page loads and every save, delete or refresh in
// flight. It returns how many tasks were canceled.
func (m *Model) CancelExecutions() (int, error) {
	if err := m.check(); err != nil {
		return 0, err
	}
	n := m.tracker.CancelExecutions()
	tasks := make([]*task.Task, 0, len(m.inflight))
	for t := range m.inflight {
		if !t.Canceled() {
			tasks = append(tasks, t)
		}
	}
	go func() {
		for _, t := range tasks {
			t.Cancel()
		}
	}()
	return n + len(tasks), nil
}
