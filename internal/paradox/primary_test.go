package paradox

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePrimaryIndex(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "people.db")
	writeTestTable(t, src, 200)

	tbl, err := Open(src)
	require.NoError(t, err)
	defer tbl.Close()

	dstPath := filepath.Join(dir, "people.px")
	dst, err := Create(dstPath, tbl.Fields()[:1], FileTypePrimIndex, CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, WritePrimaryIndex(tbl, dst))
	require.NoError(t, dst.Close())

	px, err := Open(dstPath)
	require.NoError(t, err)
	defer px.Close()

	assert.Equal(t, FileTypePrimIndex, px.FileType())
	require.Equal(t, 3, px.NumRecords())
	assert.Equal(t, 4, px.NumFields())

	wantFirstKeys := []int32{0, 72, 144}
	wantCounts := []int16{72, 72, 56}
	for i := 0; i < 3; i++ {
		rec, err := px.Record(i)
		require.NoError(t, err)
		key, _ := GetLong(rec.Data[0:4])
		blk, _ := GetBlockNumber(rec.Data[4:6])
		count, _ := GetShort(rec.Data[6:8])
		assert.Equal(t, wantFirstKeys[i], key)
		assert.Equal(t, i+1, blk)
		assert.Equal(t, wantCounts[i], count)
	}
}

func TestWritePrimaryIndexRejectsMismatchedDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "people.db")
	writeTestTable(t, src, 10)

	tbl, err := Open(src)
	require.NoError(t, err)
	defer tbl.Close()

	dst, err := Create(filepath.Join(dir, "bad.px"), tbl.Fields(), FileTypePrimIndex, CreateOptions{})
	require.NoError(t, err)
	defer dst.Close()

	assert.ErrorIs(t, WritePrimaryIndex(tbl, dst), ErrRecordSizeMismatch)
}

// sparseBlocks is a BlockSource whose blocks carry arbitrary numbers, one
// record each, keyed by their position.
type sparseBlocks struct {
	numbers []int
}

func (s *sparseBlocks) Fields() []Field { return CopyFields(testFields) }
func (s *sparseBlocks) NumPrimaryKeys() int { return 1 }
func (s *sparseBlocks) RecordSize() int { return RecordLength(testFields) }

func (s *sparseBlocks) Blocks() []BlockInfo {
	out := make([]BlockInfo, len(s.numbers))
	for i, n := range s.numbers {
		out[i] = BlockInfo{Number: n, Records: 1}
	}
	return out
}

func (s *sparseBlocks) ReadRecord(pos int, buf []byte) (Record, error) {
	if pos < 0 || pos >= len(s.numbers) {
		return Record{}, ErrRecordOutOfRange
	}
	if err := PutLong(buf[0:4], int32(pos)); err != nil {
		return Record{}, err
	}
	PutAlpha(buf[4:14], fmt.Sprintf("n%d", pos))
	return Record{Data: buf, Block: BlockInfo{Number: s.numbers[pos], Records: 1}}, nil
}

type collectWriter struct {
	size    int
	records [][]byte
}

func (w *collectWriter) RecordSize() int { return w.size }

func (w *collectWriter) PutRecord(data []byte) error {
	w.records = append(w.records, append([]byte(nil), data...))
	return nil
}

func TestWritePrimaryIndexHighBlockNumbers(t *testing.T) {
	src := &sparseBlocks{numbers: []int{1, 32767, 32769, 40000, 65535}}
	dst := &collectWriter{size: 4 + RecordLength(primaryIndexTrailer)}
	require.NoError(t, WritePrimaryIndex(src, dst))

	require.Len(t, dst.records, len(src.numbers))
	for i, rec := range dst.records {
		blk, ok := GetBlockNumber(rec[4:6])
		require.True(t, ok, "entry %d has a NULL block pointer", i)
		assert.Equal(t, src.numbers[i], blk)
	}
}

func TestWritePrimaryIndexRejectsNullBlockPattern(t *testing.T) {
	src := &sparseBlocks{numbers: []int{1, 0x8000}}
	dst := &collectWriter{size: 4 + RecordLength(primaryIndexTrailer)}
	assert.ErrorIs(t, WritePrimaryIndex(src, dst), ErrValueOutOfRange)
}
