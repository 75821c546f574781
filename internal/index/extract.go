package index

import (
	"context"
	"fmt"
	"log"

	pxerrors "github.com/pxtools/pxindex/internal/errors"
	"github.com/pxtools/pxindex/internal/paradox"
)

// Source is the table an index is built from. *paradox.Table implements it.
type Source interface {
	Fields() []paradox.Field
	NumPrimaryKeys() int
	NumRecords() int
	RecordSize() int
	FileType() paradox.FileType
	Blocks() []paradox.BlockInfo
	ReadRecord(pos int, buf []byte) (paradox.Record, error)
}

// SortEntry carries the key material of one source record.
type SortEntry struct {
	SecondaryKey []byte
	PrimaryKey   []byte
	Position     int
	Block        int
}

// ExtractStats counts what happened while reading the source.
type ExtractStats struct {
	Positions     int
	Extracted     int
	FetchFailures int
	Deleted       int
}

// ctxCheckInterval is how many positions are read between context checks.
const ctxCheckInterval = 1024

// Extract reads every record position of src and returns one SortEntry per
// record that could be read. Positions the source fails to return are
// skipped and counted. Deleted records are kept.
//
// All key bytes live in one arena allocated for the pass; the raw record
// buffer is reused across positions.
func Extract(ctx context.Context, src Source, schema *Schema) ([]SortEntry, ExtractStats, error) {
	n := src.NumRecords()
	stats := ExtractStats{Positions: n}
	secLen, primLen := schema.SecondaryLength, schema.PrimaryLength
	need := schema.SecondaryOffset + secLen
	if primLen > need {
		need = primLen
	}
	if need > src.RecordSize() {
		return nil, stats, pxerrors.NewPreconditionError(pxerrors.CodeUnresolvedField,
			fmt.Sprintf("key fields need %d bytes but source records are %d bytes", need, src.RecordSize()))
	}

	entrySize := secLen + primLen
	arena := make([]byte, 0, n*entrySize)
	entries := make([]SortEntry, 0, n)
	buf := make([]byte, src.RecordSize())

	for pos := 0; pos < n; pos++ {
		if pos%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, pxerrors.Wrap(pxerrors.ErrCategoryInternal, pxerrors.CodeCanceled,
					fmt.Sprintf("extraction canceled at record %d", pos), err)
			}
		}

		rec, err := src.ReadRecord(pos, buf)
		if err != nil {
			stats.FetchFailures++
			log.Printf("index: skipping record %d: %v", pos, err)
			continue
		}
		if len(rec.Data) < need {
			stats.FetchFailures++
			log.Printf("index: skipping record %d: got %d bytes, need %d", pos, len(rec.Data), need)
			continue
		}
		if rec.Deleted {
			stats.Deleted++
		}

		start := len(arena)
		arena = append(arena, rec.Data[schema.SecondaryOffset:schema.SecondaryOffset+secLen]...)
		arena = append(arena, rec.Data[:primLen]...)
		entries = append(entries, SortEntry{
			SecondaryKey: arena[start : start+secLen : start+secLen],
			PrimaryKey:   arena[start+secLen : start+entrySize : start+entrySize],
			Position:     pos,
			Block:        rec.Block.Number,
		})
	}

	stats.Extracted = len(entries)
	return entries, stats, nil
}
