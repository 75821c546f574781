// Package app ties configuration, the table reader, the index builder and
// the optional build reporting together for one pxindex run.
package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/pxtools/pxindex/internal/catalog"
	"github.com/pxtools/pxindex/internal/config"
	pxerrors "github.com/pxtools/pxindex/internal/errors"
	"github.com/pxtools/pxindex/internal/index"
	"github.com/pxtools/pxindex/internal/metrics"
	"github.com/pxtools/pxindex/internal/paradox"
)

// Table is an open source table.
type Table interface {
	index.Source
	Close() error
}

// OpenFunc opens the source table named by path.
type OpenFunc func(path string) (Table, error)

// App runs one index build.
type App struct {
	cfg     *config.Config
	builder *index.Builder
	open    OpenFunc

	catalog catalog.Catalog

	mu      sync.Mutex
	running bool
}

// Option adjusts the builder options derived from the configuration.
type Option func(*index.Options)

// WithDiagnostics sends the key layout of secondary builds to w.
func WithDiagnostics(w io.Writer) Option {
	return func(o *index.Options) { o.Diagnostics = w }
}

// New creates a new App with the given configuration.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, pxerrors.Wrap(pxerrors.ErrCategoryUsage, pxerrors.CodeInvalidOption, "invalid configuration", err)
	}

	bopts := index.Options{
		Atomic:       cfg.AtomicReplace,
		BlockSizeKB:  cfg.BlockSizeKB,
		MaxSortBytes: cfg.MaxSortBytes(),
	}
	for _, opt := range opts {
		opt(&bopts)
	}

	a := &App{
		cfg:     cfg,
		builder: index.NewBuilder(bopts),
		open:    openDirect,
	}
	if cfg.UseStreamInput {
		a.open = openStream
	}
	return a, nil
}

func openDirect(path string) (Table, error) {
	t, err := paradox.Open(path)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func openStream(path string) (Table, error) {
	t, err := paradox.OpenStream(path)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Run opens the source, builds the index and reports the build. The source
// is closed before Run returns.
func (a *App) Run(ctx context.Context) (*index.Result, error) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil, pxerrors.NewInternalError("app is already running", nil)
	}
	a.running = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	if a.cfg.CatalogPath != "" && a.catalog == nil {
		cat, err := catalog.NewCatalog(a.cfg.CatalogPath)
		if err != nil {
			log.Printf("app: build catalog unavailable, build will not be recorded: %v", err)
		} else {
			a.catalog = cat
			log.Printf("app: build catalog opened: %s", a.cfg.CatalogPath)
		}
	}

	src, err := a.open(a.cfg.Input)
	if err != nil {
		return nil, pxerrors.NewTableError(pxerrors.CodeOpenFailed,
			fmt.Sprintf("could not open input file %s", a.cfg.Input), err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			log.Printf("app: failed to close %s: %v", a.cfg.Input, cerr)
		}
	}()
	log.Printf("app: opened %s (%s, %d records, %d fields, %d primary keys)",
		a.cfg.Input, src.FileType(), src.NumRecords(), len(src.Fields()), src.NumPrimaryKeys())

	res, buildErr := a.builder.Build(ctx, src, index.Request{
		Output:         a.cfg.Output,
		SecondaryField: a.cfg.SecondaryIndex,
	})

	a.report(ctx, res, buildErr)
	if buildErr != nil {
		return res, buildErr
	}
	return res, nil
}

// report records the build in the catalog and the metrics textfile. Failures
// here are logged and never fail the build.
func (a *App) report(ctx context.Context, res *index.Result, buildErr error) {
	if res == nil {
		return
	}

	if a.cfg.MetricsFile != "" {
		m := metrics.NewBuildMetrics(res.Kind.String(), res.Output)
		m.Observe(res.SourceRecords-res.FetchFailures, res.FetchFailures, res.RecordsWritten, res.Duration, buildErr)
		if err := m.WriteTextfile(a.cfg.MetricsFile); err != nil {
			log.Printf("app: %v", err)
		}
	}

	if a.catalog != nil && buildErr == nil {
		err := a.catalog.RegisterBuild(ctx, &catalog.BuildRecord{
			BuildID:        res.BuildID,
			Source:         a.cfg.Input,
			Output:         res.Output,
			Kind:           res.Kind.String(),
			SecondaryField: a.cfg.SecondaryIndex,
			SourceRecords:  res.SourceRecords,
			FetchFailures:  res.FetchFailures,
			RecordsWritten: res.RecordsWritten,
			Digest:         res.Digest,
			DurationMs:     res.Duration.Milliseconds(),
		})
		if err != nil {
			log.Printf("app: %v", err)
		} else {
			log.Printf("app: registered build %s", res.BuildID)
		}
	}
}

// Close releases the catalog connection.
func (a *App) Close() error {
	if a.catalog != nil {
		err := a.catalog.Close()
		a.catalog = nil
		return err
	}
	return nil
}
