package index

import (
	"errors"
	"fmt"

	"github.com/pxtools/pxindex/internal/paradox"
)

var errFetch = errors.New("record unavailable")

// fakeSource is an in-memory table. Records are grouped into blocks of
// perBlock records, numbered from firstBlock (1 if unset).
type fakeSource struct {
	fields     []paradox.Field
	numPK      int
	kind       paradox.FileType
	records    [][]byte
	perBlock   int
	firstBlock int
	fail       map[int]bool
	deleted    map[int]bool
	reads      int
}

func (s *fakeSource) Fields() []paradox.Field { return paradox.CopyFields(s.fields) }
func (s *fakeSource) NumPrimaryKeys() int { return s.numPK }
func (s *fakeSource) NumRecords() int { return len(s.records) }
func (s *fakeSource) RecordSize() int { return paradox.RecordLength(s.fields) }
func (s *fakeSource) FileType() paradox.FileType { return s.kind }

func (s *fakeSource) blockOf(pos int) int {
	first := s.firstBlock
	if first == 0 {
		first = 1
	}
	if s.perBlock <= 0 {
		return first
	}
	return first + pos/s.perBlock
}

func (s *fakeSource) Blocks() []paradox.BlockInfo {
	var out []paradox.BlockInfo
	for pos := 0; pos < len(s.records); pos++ {
		n := s.blockOf(pos)
		if len(out) == 0 || out[len(out)-1].Number != n {
			out = append(out, paradox.BlockInfo{Number: n})
		}
		out[len(out)-1].Records++
	}
	return out
}

func (s *fakeSource) ReadRecord(pos int, buf []byte) (paradox.Record, error) {
	s.reads++
	if pos < 0 || pos >= len(s.records) || s.fail[pos] {
		return paradox.Record{}, fmt.Errorf("position %d: %w", pos, errFetch)
	}
	n := copy(buf, s.records[pos])
	return paradox.Record{
		Data:    buf[:n],
		Deleted: s.deleted[pos],
		Block:   paradox.BlockInfo{Number: s.blockOf(pos)},
	}, nil
}

// nameIDFields is a table keyed by ID with an alpha Name field.
var nameIDFields = []paradox.Field{
	{Name: "ID", Type: paradox.FieldLong, Length: 4},
	{Name: "Name", Type: paradox.FieldAlpha, Length: 6},
	{Name: "Age", Type: paradox.FieldShort, Length: 2},
}

func nameIDRecord(id int32, name string, age int16) []byte {
	rec := make([]byte, paradox.RecordLength(nameIDFields))
	paradox.PutLong(rec[0:4], id)
	paradox.PutAlpha(rec[4:10], name)
	paradox.PutShort(rec[10:12], age)
	return rec
}

func newNameIDSource(names ...string) *fakeSource {
	src := &fakeSource{
		fields: nameIDFields,
		numPK:  1,
		kind:   paradox.FileTypeIndexDB,
	}
	for i, name := range names {
		src.records = append(src.records, nameIDRecord(int32(i+1), name, int16(20+i)))
	}
	return src
}

// fakeDestination records everything written to it.
type fakeDestination struct {
	recordSize int
	records    [][]byte
	indexField int
	closed     int
	failAfter  int
	closeErr   error
}

func (d *fakeDestination) PutRecord(data []byte) error {
	if d.failAfter > 0 && len(d.records) >= d.failAfter {
		return errors.New("disk full")
	}
	if len(data) != d.recordSize {
		return fmt.Errorf("record is %d bytes, want %d", len(data), d.recordSize)
	}
	d.records = append(d.records, append([]byte(nil), data...))
	return nil
}

func (d *fakeDestination) RecordSize() int { return d.recordSize }
func (d *fakeDestination) SetIndexFieldNumber(n int) { d.indexField = n }

func (d *fakeDestination) Close() error {
	d.closed++
	return d.closeErr
}
