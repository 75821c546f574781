package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveSuccess(t *testing.T) {
	m := NewBuildMetrics("IncSecIndexG", "people.xg2")
	m.Observe(10, 2, 8, 1500*time.Millisecond, nil)

	assert.Equal(t, 10.0, testutil.ToFloat64(m.RecordsRead))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchFailures))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.RecordsWritten))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.BuildDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BuildSuccess))
	assert.Greater(t, testutil.ToFloat64(m.LastBuildTime), 0.0)
}

func TestObserveFailure(t *testing.T) {
	m := NewBuildMetrics("PrimIndex", "people.px")
	m.Observe(0, 0, 0, time.Millisecond, errors.New("boom"))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BuildSuccess))
}

func TestWriteTextfile(t *testing.T) {
	m := NewBuildMetrics("PrimIndex", "people.px")
	m.Observe(3, 0, 1, time.Second, nil)

	path := filepath.Join(t.TempDir(), "pxindex.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, `pxindex_source_records_read_total{kind="PrimIndex",output="people.px"} 3`), text)
	assert.True(t, strings.Contains(text, "pxindex_build_success"), text)
}

func TestWriteTextfileBadPath(t *testing.T) {
	m := NewBuildMetrics("PrimIndex", "people.px")
	err := m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "x.prom"))
	assert.Error(t, err)
}
