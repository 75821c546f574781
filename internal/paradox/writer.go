package paradox

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Trailing fields appended to every primary index file. They hold the data
// block a key range starts in and how many records that block stores.
var primaryIndexTrailer = []Field{
	{Name: "Block", Type: FieldShort, Length: 2},
	{Name: "Records", Type: FieldShort, Length: 2},
	{Name: "Unused", Type: FieldShort, Length: 2},
}

// CreateOptions tunes a newly created file.
type CreateOptions struct {
	// BlockSizeKB is the data block size in KiB (default DefaultBlockSizeKB).
	BlockSizeKB int
	// TableName is stored in the header (default: derived from the path).
	TableName string
	// NumPrimaryKeys overrides the number of key fields. Index files use
	// all caller-supplied fields as keys when zero.
	NumPrimaryKeys int
}

// Writer appends records to a newly created file. Records are written in
// the order PutRecord is called; the header is written on Close.
type Writer struct {
	path     string
	f        *os.File
	hdr      *header
	block    []byte
	blockNum int
	inBlock  int
	closed   bool
}

// Create creates (or truncates) path as a file of the given type with the
// given fields. Block-level index files (PrimIndex, SecIndex, SecIndexG)
// get their block trailer fields appended automatically.
func Create(path string, fields []Field, fileType FileType, opts CreateOptions) (*Writer, error) {
	if !fileType.Valid() {
		return nil, fmt.Errorf("paradox: %w: unknown file type %d", ErrInvalidHeader, fileType)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("paradox: %w: no fields", ErrUnsupportedField)
	}
	if opts.BlockSizeKB == 0 {
		opts.BlockSizeKB = DefaultBlockSizeKB
	}
	if opts.BlockSizeKB < MinBlockSizeKB || opts.BlockSizeKB > MaxBlockSizeKB {
		return nil, fmt.Errorf("paradox: %w: block size %d KiB", ErrInvalidHeader, opts.BlockSizeKB)
	}
	if opts.TableName == "" {
		opts.TableName = tableName(path)
	}

	all := CopyFields(fields)
	numKeys := opts.NumPrimaryKeys
	switch fileType {
	case FileTypePrimIndex, FileTypeSecIndex, FileTypeSecIndexG:
		if numKeys == 0 {
			numKeys = len(fields)
		}
		all = append(all, primaryIndexTrailer...)
	case FileTypeIndexDB, FileTypeNonIndexDB:
	default:
		if numKeys == 0 {
			numKeys = len(fields)
		}
	}
	if numKeys > len(fields) {
		return nil, fmt.Errorf("paradox: %w: %d primary key fields but only %d fields", ErrUnsupportedField, numKeys, len(fields))
	}
	for i, f := range all {
		if err := validateField(f); err != nil {
			return nil, fmt.Errorf("paradox: field %d: %w", i+1, err)
		}
	}

	hdr := &header{
		recordSize:     RecordLength(all),
		fileType:       fileType,
		blockSizeKB:    opts.BlockSizeKB,
		numPrimaryKeys: numKeys,
		tableName:      opts.TableName,
		fields:         all,
	}
	if hdr.recordSize > hdr.blockSize()-blockHeaderSize {
		return nil, fmt.Errorf("paradox: %w: record size %d does not fit a %d KiB block", ErrUnsupportedField, hdr.recordSize, hdr.blockSizeKB)
	}
	hdr.headerSize = alignHeader(hdr.encodedSize())
	if hdr.headerSize > 0xFFFF {
		return nil, fmt.Errorf("paradox: %w: header needs %d bytes", ErrUnsupportedField, hdr.headerSize)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("paradox: failed to create %s: %w", path, err)
	}
	w := &Writer{
		path:  path,
		f:     f,
		hdr:   hdr,
		block: make([]byte, hdr.blockSize()),
	}
	// Reserve the header; it is rewritten with final counts on Close.
	if _, err := f.WriteAt(hdr.marshal(), 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("paradox: failed to write header of %s: %w", path, err)
	}
	return w, nil
}

func validateField(f Field) error {
	if !f.Type.Valid() {
		return fmt.Errorf("%w: %q has unknown type 0x%02x", ErrUnsupportedField, f.Name, uint8(f.Type))
	}
	if f.Length <= 0 || f.Length > 255 {
		return fmt.Errorf("%w: %q has length %d", ErrUnsupportedField, f.Name, f.Length)
	}
	if n := f.Type.fixedLength(); n != 0 && n != f.Length {
		return fmt.Errorf("%w: %q is %s and must be %d bytes, not %d", ErrUnsupportedField, f.Name, f.Type, n, f.Length)
	}
	if f.Name == "" {
		return fmt.Errorf("%w: empty field name", ErrUnsupportedField)
	}
	return nil
}

// RecordSize returns the size of one record in bytes.
func (w *Writer) RecordSize() int { return w.hdr.recordSize }

// Fields returns a copy of the field definitions, including any trailer
// fields added for the file type.
func (w *Writer) Fields() []Field { return CopyFields(w.hdr.fields) }

// FileType returns the type the file was created with.
func (w *Writer) FileType() FileType { return w.hdr.fileType }

// NumRecords returns the number of records written so far.
func (w *Writer) NumRecords() int { return w.hdr.numRecords }

// SetIndexFieldNumber records the 1-based source field a secondary index
// is built over.
func (w *Writer) SetIndexFieldNumber(n int) { w.hdr.indexFieldNumber = n }

// PutRecord appends one record. data must be exactly RecordSize bytes.
func (w *Writer) PutRecord(data []byte) error {
	if w.closed {
		return ErrClosed
	}
	if len(data) != w.hdr.recordSize {
		return fmt.Errorf("paradox: %w: got %d bytes, record size is %d", ErrRecordSizeMismatch, len(data), w.hdr.recordSize)
	}
	if w.blockNum == 0 {
		w.startBlock(0)
	} else if w.inBlock == w.hdr.recordsPerBlock() {
		if err := w.flushBlock(w.blockNum + 1); err != nil {
			return err
		}
		w.startBlock(w.blockNum)
	}

	off := blockHeaderSize + w.inBlock*w.hdr.recordSize
	copy(w.block[off:], data)
	w.inBlock++
	w.hdr.numRecords++
	return nil
}

func (w *Writer) startBlock(prev int) {
	clear(w.block)
	w.blockNum++
	w.inBlock = 0
	binary.LittleEndian.PutUint16(w.block[2:], uint16(prev))
	if w.hdr.firstBlock == 0 {
		w.hdr.firstBlock = w.blockNum
	}
}

// flushBlock writes the current block with its chain pointer set to next.
func (w *Writer) flushBlock(next int) error {
	binary.LittleEndian.PutUint16(w.block[0:], uint16(next))
	binary.LittleEndian.PutUint16(w.block[4:], uint16(int16((w.inBlock-1)*w.hdr.recordSize)))
	if _, err := w.f.WriteAt(w.block, w.hdr.blockOffset(w.blockNum)); err != nil {
		return fmt.Errorf("paradox: failed to write block %d of %s: %w", w.blockNum, w.path, err)
	}
	w.hdr.lastBlock = w.blockNum
	w.hdr.usedBlocks = w.blockNum
	w.hdr.fileBlocks = w.blockNum
	return nil
}

// Close flushes the last block, writes the final header and closes the
// file. It is safe to call more than once.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var firstErr error
	if w.blockNum > 0 {
		firstErr = w.flushBlock(0)
	}
	if firstErr == nil {
		if _, err := w.f.WriteAt(w.hdr.marshal(), 0); err != nil {
			firstErr = fmt.Errorf("paradox: failed to write header of %s: %w", w.path, err)
		}
	}
	if firstErr == nil {
		if err := w.f.Sync(); err != nil {
			firstErr = fmt.Errorf("paradox: failed to sync %s: %w", w.path, err)
		}
	}
	if err := w.f.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("paradox: failed to close %s: %w", w.path, err)
	}
	return firstErr
}
