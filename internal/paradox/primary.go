package paradox

import (
	"bytes"
	"fmt"
	"math"
	"slices"
)

// BlockSource is the read side WritePrimaryIndex needs.
type BlockSource interface {
	Fields() []Field
	NumPrimaryKeys() int
	Blocks() []BlockInfo
	ReadRecord(pos int, buf []byte) (Record, error)
	RecordSize() int
}

// RecordWriter is the write side WritePrimaryIndex needs.
type RecordWriter interface {
	PutRecord(data []byte) error
	RecordSize() int
}

type primaryEntry struct {
	key     []byte
	block   int
	records int
}

// WritePrimaryIndex writes one index record per data block of src: the
// primary key of the block's first record, the block number and the
// number of records in the block. Records are written in key order.
// dst must have been created as a block-level index type with src's key
// fields.
func WritePrimaryIndex(src BlockSource, dst RecordWriter) error {
	fields := src.Fields()
	numKeys := src.NumPrimaryKeys()
	if numKeys <= 0 || numKeys > len(fields) {
		return fmt.Errorf("paradox: %w: %d primary key fields", ErrUnsupportedField, numKeys)
	}
	keyLen := RecordLength(fields[:numKeys])
	trailerLen := RecordLength(primaryIndexTrailer)
	if dst.RecordSize() != keyLen+trailerLen {
		return fmt.Errorf("paradox: %w: primary index record is %d bytes, keys need %d", ErrRecordSizeMismatch, dst.RecordSize(), keyLen+trailerLen)
	}

	buf := make([]byte, src.RecordSize())
	var entries []primaryEntry
	pos := 0
	for _, blk := range src.Blocks() {
		if blk.Records == 0 {
			continue
		}
		rec, err := src.ReadRecord(pos, buf)
		if err != nil {
			return fmt.Errorf("paradox: failed to read first record of block %d: %w", blk.Number, err)
		}
		entries = append(entries, primaryEntry{
			key:     bytes.Clone(rec.Data[:keyLen]),
			block:   blk.Number,
			records: blk.Records,
		})
		pos += blk.Records
	}

	slices.SortStableFunc(entries, func(a, b primaryEntry) int {
		return bytes.Compare(a.key, b.key)
	})

	out := make([]byte, dst.RecordSize())
	for _, e := range entries {
		copy(out, e.key)
		if err := PutBlockNumber(out[keyLen:], e.block); err != nil {
			return fmt.Errorf("paradox: failed to write primary index entry: %w", err)
		}
		if e.records > math.MaxInt16 {
			return fmt.Errorf("paradox: %w: block %d holds %d records", ErrValueOutOfRange, e.block, e.records)
		}
		if err := PutShort(out[keyLen+2:], int16(e.records)); err != nil {
			return fmt.Errorf("paradox: failed to write primary index entry for block %d: %w", e.block, err)
		}
		if err := PutShort(out[keyLen+4:], 0); err != nil {
			return fmt.Errorf("paradox: failed to write primary index entry for block %d: %w", e.block, err)
		}
		if err := dst.PutRecord(out); err != nil {
			return fmt.Errorf("paradox: failed to write primary index entry for block %d: %w", e.block, err)
		}
	}
	return nil
}
