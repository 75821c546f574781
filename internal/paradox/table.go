package paradox

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Table is a read-only handle on a table or index file.
type Table struct {
	name   string
	r      io.ReaderAt
	size   int64
	closer io.Closer
	hdr    *header
	blocks []BlockInfo
	starts []int // position of the first record of each block
	closed bool
}

// Open opens the file at path for direct reading.
func Open(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("paradox: failed to open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("paradox: failed to stat %s: %w", path, err)
	}
	adviseSequential(f)

	t, err := OpenReader(f, info.Size(), tableName(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	t.closer = f
	return t, nil
}

// OpenReader opens a table whose bytes are served by r. The caller keeps
// ownership of r; Close on the returned table does not close it.
func OpenReader(r io.ReaderAt, size int64, name string) (*Table, error) {
	if size < fieldDescOffset {
		return nil, fmt.Errorf("paradox: %w: file is %d bytes", ErrInvalidHeader, size)
	}
	fixed := make([]byte, fieldDescOffset)
	if _, err := r.ReadAt(fixed, 0); err != nil {
		return nil, fmt.Errorf("paradox: failed to read header: %w", err)
	}
	headerSize := int64(binary.LittleEndian.Uint16(fixed[0x02:]))
	if headerSize > size {
		return nil, fmt.Errorf("paradox: %w: header size %d exceeds file size %d", ErrInvalidHeader, headerSize, size)
	}
	full := fixed
	if headerSize > fieldDescOffset {
		full = make([]byte, headerSize)
		if _, err := r.ReadAt(full, 0); err != nil {
			return nil, fmt.Errorf("paradox: failed to read header: %w", err)
		}
	}
	hdr, err := unmarshalHeader(full)
	if err != nil {
		return nil, fmt.Errorf("paradox: %w", err)
	}

	t := &Table{name: name, r: r, size: size, hdr: hdr}
	if err := t.loadBlockChain(); err != nil {
		return nil, fmt.Errorf("paradox: %w", err)
	}
	return t, nil
}

// loadBlockChain walks the data blocks from the first block and records
// where each block's records start.
func (t *Table) loadBlockChain() error {
	h := t.hdr
	maxBlocks := int((t.size - int64(h.headerSize)) / int64(h.blockSize()))
	seen := make(map[int]bool)
	buf := make([]byte, blockHeaderSize)
	pos := 0
	prev := 0
	for n := h.firstBlock; n != 0; {
		if n > maxBlocks || seen[n] {
			return fmt.Errorf("%w: block %d (file holds %d blocks)", ErrCorruptBlockChain, n, maxBlocks)
		}
		seen[n] = true

		off := h.blockOffset(n)
		if _, err := t.r.ReadAt(buf, off); err != nil {
			return fmt.Errorf("%w: block %d: %v", ErrCorruptBlockChain, n, err)
		}
		next := int(binary.LittleEndian.Uint16(buf[0:]))
		addDataSize := int(int16(binary.LittleEndian.Uint16(buf[4:])))
		records := 0
		if addDataSize >= 0 {
			records = addDataSize/h.recordSize + 1
		}
		if records > h.recordsPerBlock() {
			return fmt.Errorf("%w: block %d claims %d records", ErrCorruptBlockChain, n, records)
		}

		t.blocks = append(t.blocks, BlockInfo{
			Number:  n,
			Prev:    prev,
			Next:    next,
			Records: records,
			Offset:  off,
		})
		t.starts = append(t.starts, pos)
		pos += records
		prev = n
		n = next
	}
	return nil
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// FileType returns the file type stored in the header.
func (t *Table) FileType() FileType { return t.hdr.fileType }

// NumFields returns the number of fields.
func (t *Table) NumFields() int { return len(t.hdr.fields) }

// NumPrimaryKeys returns the number of leading fields forming the primary key.
func (t *Table) NumPrimaryKeys() int { return t.hdr.numPrimaryKeys }

// NumRecords returns the record count stored in the header.
func (t *Table) NumRecords() int { return t.hdr.numRecords }

// RecordSize returns the fixed size of one record in bytes.
func (t *Table) RecordSize() int { return t.hdr.recordSize }

// IndexFieldNumber returns the 1-based source field a secondary index file
// was built over, or 0.
func (t *Table) IndexFieldNumber() int { return t.hdr.indexFieldNumber }

// Fields returns a copy of the field definitions.
func (t *Table) Fields() []Field { return CopyFields(t.hdr.fields) }

// Field returns the field definition at the 0-based index i.
func (t *Table) Field(i int) (Field, bool) {
	if i < 0 || i >= len(t.hdr.fields) {
		return Field{}, false
	}
	return t.hdr.fields[i], true
}

// Blocks returns the data blocks in chain order.
func (t *Table) Blocks() []BlockInfo {
	out := make([]BlockInfo, len(t.blocks))
	copy(out, t.blocks)
	return out
}

// Record reads the record at the 0-based position pos into a new buffer.
func (t *Table) Record(pos int) (*Record, error) {
	rec, err := t.ReadRecord(pos, make([]byte, t.hdr.recordSize))
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ReadRecord reads the record at the 0-based position pos into buf, which
// must hold at least RecordSize bytes. The returned Data aliases buf.
func (t *Table) ReadRecord(pos int, buf []byte) (Record, error) {
	if t.closed {
		return Record{}, ErrClosed
	}
	if len(buf) < t.hdr.recordSize {
		return Record{}, fmt.Errorf("%w: record needs %d bytes, got %d", ErrBufferTooSmall, t.hdr.recordSize, len(buf))
	}
	if pos < 0 || pos >= t.hdr.numRecords {
		return Record{}, fmt.Errorf("%w: %d not in [0, %d)", ErrRecordOutOfRange, pos, t.hdr.numRecords)
	}
	i := sort.Search(len(t.blocks), func(i int) bool {
		return t.starts[i]+t.blocks[i].Records > pos
	})
	if i == len(t.blocks) {
		return Record{}, fmt.Errorf("%w: position %d is past the last data block", ErrRecordOutOfRange, pos)
	}
	blk := t.blocks[i]
	off := blk.Offset + blockHeaderSize + int64(pos-t.starts[i])*int64(t.hdr.recordSize)
	data := buf[:t.hdr.recordSize]
	if _, err := t.r.ReadAt(data, off); err != nil {
		return Record{}, fmt.Errorf("paradox: failed to read record %d in block %d: %w", pos, blk.Number, err)
	}
	return Record{Data: data, Block: blk}, nil
}

// Close releases the underlying file. It is safe to call more than once.
func (t *Table) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

func tableName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
