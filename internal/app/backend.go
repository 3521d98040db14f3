package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/five82/captable/internal/config"
	"github.com/five82/captable/internal/service"
	"github.com/five82/captable/internal/sqlstore"
	"github.com/five82/captable/internal/table"
)

// openBackend returns the service selected by cfg and a function releasing it.
func openBackend(ctx context.Context, cfg config.Config) (service.Service, func() error, error) {
	switch cfg.Backend {
	case config.BackendHTTP:
		client, err := service.NewClient(cfg.APIBind)
		if err != nil {
			return nil, nil, fmt.Errorf("init service client: %w", err)
		}
		return client, func() error { return nil }, nil
	default:
		store, err := openStore(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
}

func openStore(ctx context.Context, cfg config.Config) (*sqlstore.Store, error) {
	store, err := sqlstore.Open(ctx, cfg.DBPath, sqlstore.Options{
		Table:              cfg.Table,
		Columns:            storeColumns(cfg.Columns),
		ConfirmDeleteAbove: cfg.ConfirmDeleteAbove,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBPath, err)
	}
	if cfg.SeedFile != "" {
		n, err := store.SeedFile(ctx, cfg.SeedFile)
		if err != nil {
			store.Close()
			return nil, err
		}
		if n > 0 {
			log.Printf("seeded %d rows into %s from %s", n, cfg.Table, cfg.SeedFile)
		}
	}
	return store, nil
}

func storeColumns(cols []config.Column) []sqlstore.Column {
	out := make([]sqlstore.Column, 0, len(cols))
	for _, c := range cols {
		out = append(out, sqlstore.Column{Name: c.Name, Type: sqlstore.ColumnType(c.Type)})
	}
	return out
}

func tableColumns(cols []config.Column) []table.Column {
	out := make([]table.Column, 0, len(cols))
	for _, c := range cols {
		out = append(out, table.Column{Property: c.Name, Title: c.Title, Width: c.Width, Editable: c.Editable})
	}
	return out
}

// Serve exposes the sqlite table over HTTP until ctx is canceled, so other
// captable instances can use it as their http backend.
func Serve(ctx context.Context, cfg config.Config) error {
	if cfg.Backend != config.BackendSQLite {
		return fmt.Errorf("serve needs the sqlite backend, config selects %q", cfg.Backend)
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := &http.Server{
		Addr:              cfg.APIBind,
		Handler:           service.Handler(store),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("serving table %s from %s on http://%s", cfg.Table, cfg.DBPath, cfg.APIBind)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
