package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/snappy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pxtools/pxindex/internal/config"
	pxerrors "github.com/pxtools/pxindex/internal/errors"
	"github.com/pxtools/pxindex/internal/paradox"
)

var peopleFields = []paradox.Field{
	{Name: "ID", Type: paradox.FieldLong, Length: 4},
	{Name: "Name", Type: paradox.FieldAlpha, Length: 10},
}

func writePeople(t *testing.T, path string, names ...string) {
	t.Helper()
	w, err := paradox.Create(path, peopleFields, paradox.FileTypeIndexDB, paradox.CreateOptions{NumPrimaryKeys: 1})
	require.NoError(t, err)
	rec := make([]byte, w.RecordSize())
	for i, name := range names {
		require.NoError(t, paradox.PutLong(rec[0:4], int32(i+1)))
		paradox.PutAlpha(rec[4:14], name)
		require.NoError(t, w.PutRecord(rec))
	}
	require.NoError(t, w.Close())
}

func newConfig(dir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Input = filepath.Join(dir, "people.db")
	cfg.Output = filepath.Join(dir, "people.xg1")
	cfg.SecondaryIndex = 2
	return cfg
}

func TestRunSecondaryIndex(t *testing.T) {
	dir := t.TempDir()
	cfg := newConfig(dir)
	cfg.CatalogPath = filepath.Join(dir, "builds.sqlite")
	cfg.MetricsFile = filepath.Join(dir, "pxindex.prom")
	writePeople(t, cfg.Input, "Carol", "Alice", "Bob")

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	res, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.RecordsWritten)
	assert.Equal(t, paradox.FileTypeIncSecIndexG, res.Kind)

	idx, err := paradox.Open(cfg.Output)
	require.NoError(t, err)
	defer idx.Close()
	assert.Equal(t, 2, idx.IndexFieldNumber())

	var names []string
	for i := 0; i < idx.NumRecords(); i++ {
		rec, err := idx.Record(i)
		require.NoError(t, err)
		names = append(names, paradox.GetAlpha(rec.Data[0:10]))
	}
	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, names)

	rec, err := a.catalog.GetBuild(context.Background(), res.BuildID)
	require.NoError(t, err)
	assert.Equal(t, cfg.Output, rec.Output)
	assert.Equal(t, res.Digest, rec.Digest)
	assert.Equal(t, 3, rec.RecordsWritten)

	prom, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(prom), "pxindex_index_records_written_total"))
}

func TestRunPrimaryIndexFromStream(t *testing.T) {
	dir := t.TempDir()
	cfg := newConfig(dir)
	cfg.SecondaryIndex = 0
	cfg.Output = filepath.Join(dir, "people.px")
	cfg.UseStreamInput = true

	plain := filepath.Join(dir, "plain.db")
	writePeople(t, plain, "Carol", "Alice", "Bob")
	data, err := os.ReadFile(plain)
	require.NoError(t, err)

	f, err := os.Create(cfg.Input)
	require.NoError(t, err)
	sw := snappy.NewBufferedWriter(f)
	_, err = sw.Write(data)
	require.NoError(t, err)
	require.NoError(t, sw.Close())
	require.NoError(t, f.Close())

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	res, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, paradox.FileTypePrimIndex, res.Kind)
	assert.Equal(t, 1, res.RecordsWritten)

	px, err := paradox.Open(cfg.Output)
	require.NoError(t, err)
	defer px.Close()
	assert.Equal(t, paradox.FileTypePrimIndex, px.FileType())
}

func TestRunMissingInput(t *testing.T) {
	dir := t.TempDir()
	cfg := newConfig(dir)

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, pxerrors.ErrCategoryTable, pxerrors.GetCategory(err))
	assert.Equal(t, pxerrors.CodeOpenFailed, pxerrors.GetCode(err))
	_, statErr := os.Stat(cfg.Output)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunInvalidSecondaryFieldCreatesNothing(t *testing.T) {
	dir := t.TempDir()
	cfg := newConfig(dir)
	cfg.SecondaryIndex = 9
	cfg.CatalogPath = filepath.Join(dir, "builds.sqlite")
	writePeople(t, cfg.Input, "Alice")

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, pxerrors.CodeInvalidSecondaryField, pxerrors.GetCode(err))
	assert.Equal(t, 1, pxerrors.ExitCode(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "people.xg"), e.Name())
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), e.Name())
	}

	builds, err := a.catalog.ListBuilds(context.Background(), cfg.Output)
	require.NoError(t, err)
	assert.Empty(t, builds)
}

type closeTracker struct {
	Table
	closed int
}

func (c *closeTracker) Close() error {
	c.closed++
	return c.Table.Close()
}

func TestRunClosesSourceOnFailure(t *testing.T) {
	dir := t.TempDir()
	cfg := newConfig(dir)
	cfg.SecondaryIndex = 5
	writePeople(t, cfg.Input, "Alice")

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	var tracker *closeTracker
	a.open = func(path string) (Table, error) {
		tbl, err := openDirect(path)
		if err != nil {
			return nil, err
		}
		tracker = &closeTracker{Table: tbl}
		return tracker, nil
	}

	_, err = a.Run(context.Background())
	require.Error(t, err)
	require.NotNil(t, tracker)
	assert.Equal(t, 1, tracker.closed)
}

func TestRunOpenError(t *testing.T) {
	dir := t.TempDir()
	cfg := newConfig(dir)

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	boom := errors.New("boom")
	a.open = func(string) (Table, error) { return nil, boom }

	_, err = a.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Input = "people.db"
	_, err := New(cfg)
	require.Error(t, err)
	assert.True(t, pxerrors.IsUsage(err))
}

func TestCatalogIsOptional(t *testing.T) {
	dir := t.TempDir()
	cfg := newConfig(dir)
	writePeople(t, cfg.Input, "Alice")

	a, err := New(cfg)
	require.NoError(t, err)
	_, err = a.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, a.catalog)
	assert.NoError(t, a.Close())
}

func TestUnavailableCatalogDoesNotFailBuild(t *testing.T) {
	dir := t.TempDir()
	cfg := newConfig(dir)
	cfg.CatalogPath = filepath.Join(dir, "missing", "builds.sqlite")
	writePeople(t, cfg.Input, "Carol", "Alice")

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	res, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.RecordsWritten)
	assert.Nil(t, a.catalog)

	_, err = os.Stat(cfg.Output)
	assert.NoError(t, err)
}

func TestRunWritesKeyLayout(t *testing.T) {
	dir := t.TempDir()
	cfg := newConfig(dir)
	writePeople(t, cfg.Input, "Carol", "Alice")

	var diag bytes.Buffer
	a, err := New(cfg, WithDiagnostics(&diag))
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "primary index: 4\nsecondary index: 4, 10\n", diag.String())
}
