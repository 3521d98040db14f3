package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/five82/captable/internal/config"
	"github.com/five82/captable/internal/dispatch"
	"github.com/five82/captable/internal/execution"
	"github.com/five82/captable/internal/prefs"
	"github.com/five82/captable/internal/service"
	"github.com/five82/captable/internal/state"
	"github.com/five82/captable/internal/table"
	"github.com/five82/captable/internal/ui"
)

// loadDelay keeps fast scrolling from issuing a read for every page passed.
const loadDelay = 75 * time.Millisecond

// Options configure the captable application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/captable/prefs.toml
	PollEvery  int    // seconds; zero uses the configured interval
	Backend    string // overrides the configured backend when set
	Serve      bool   // serve the sqlite table over HTTP instead of running the TUI
}

// LoadConfig reads the config file and applies the command line overrides.
func LoadConfig(opts Options) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	switch b := config.Backend(opts.Backend); b {
	case "":
	case config.BackendSQLite, config.BackendHTTP:
		cfg.Backend = b
	default:
		return config.Config{}, fmt.Errorf("unknown backend %q", opts.Backend)
	}
	if opts.PollEvery > 0 {
		cfg.PollInterval = time.Duration(opts.PollEvery) * time.Second
	}
	return cfg, nil
}

// Run boots captable until the context is cancelled. It must be called on
// the goroutine that runs the TUI; that goroutine owns every table model.
func Run(ctx context.Context, cfg config.Config, opts Options) error {
	if opts.Serve {
		return Serve(ctx, cfg)
	}

	userPrefs, err := prefs.Load(opts.PrefsPath)
	if err != nil {
		return fmt.Errorf("load prefs: %w", err)
	}

	svc, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeBackend(); err != nil {
			log.Printf("close backend: %v", err)
		}
	}()

	policy, err := execution.ParsePolicy(cfg.Policy)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	queue := dispatch.NewQueue()
	queue.Bind()
	store := &state.Store{}
	questions := ui.NewQuestions(queue)

	model, err := table.New(table.Config{
		Reader:     svc,
		Creator:    svc,
		Updater:    svc,
		Refresher:  svc,
		Deleter:    svc,
		Dispatcher: queue,
		Columns:    tableColumns(cfg.Columns),
		PageSize:   cfg.PageSize,
		Timeout:    cfg.Timeout,
		LoadDelay:  loadDelay,
		Policy:     policy,
		Questions:  questions.Handle,
		Logger:     log.Default(),
		Store:      store,
	})
	if err != nil {
		return fmt.Errorf("init table: %w", err)
	}
	defer model.Dispose()

	if err := model.SetViewConfig(viewConfig(userPrefs.View(cfg.Table))); err != nil {
		return err
	}
	if err := model.Load(); err != nil {
		return err
	}

	StartPoller(ctx, store, queue, func() error {
		if model.IsDisposed() || model.HasPendingWork() {
			return nil
		}
		return model.Load()
	}, cfg.PollInterval)

	return ui.Run(ui.Options{
		Context:   ctx,
		Table:     model,
		Queue:     queue,
		Store:     store,
		Questions: questions,
		Prefs:     userPrefs,
		PrefsPath: opts.PrefsPath,
		LogPath:   cfg.LogPath,
		TableName: cfg.Table,
	})
}

// viewConfig converts stored preferences, skipping sort keys that no longer
// parse.
func viewConfig(v prefs.TableView) table.ViewConfig {
	vc := table.ViewConfig{Widths: v.Widths}
	for _, expr := range v.Sort {
		key, err := service.ParseSortKey(expr)
		if err != nil {
			log.Printf("prefs: %v", err)
			continue
		}
		vc.Sort = append(vc.Sort, key)
	}
	return vc
}
