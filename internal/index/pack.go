package index

import (
	"fmt"

	pxerrors "github.com/pxtools/pxindex/internal/errors"
	"github.com/pxtools/pxindex/internal/paradox"
)

// MaxBlockNumber is the largest block number a secondary index can refer
// to. Block numbers are stored with paradox.PutBlockNumber.
const MaxBlockNumber = paradox.MaxBlockNumber

// Packer lays out secondary index records: secondary key, primary key,
// block number. The returned buffer is reused by the next call to Pack.
type Packer struct {
	secLen  int
	primLen int
	buf     []byte
}

// NewPacker returns a packer for the given key lengths.
func NewPacker(secLen, primLen int) *Packer {
	return &Packer{
		secLen:  secLen,
		primLen: primLen,
		buf:     make([]byte, secLen+primLen+2),
	}
}

// RecordSize returns the size of a packed record.
func (p *Packer) RecordSize() int {
	return len(p.buf)
}

// Pack fills the packer's buffer from e and returns it.
func (p *Packer) Pack(e SortEntry) ([]byte, error) {
	if len(e.SecondaryKey) != p.secLen || len(e.PrimaryKey) != p.primLen {
		return nil, pxerrors.NewInternalError(
			fmt.Sprintf("record %d has key lengths %d/%d, expected %d/%d",
				e.Position, len(e.SecondaryKey), len(e.PrimaryKey), p.secLen, p.primLen), nil)
	}
	if err := paradox.PutBlockNumber(p.buf[p.secLen+p.primLen:], e.Block); err != nil {
		return nil, pxerrors.NewInternalError(
			fmt.Sprintf("record %d lives in block %d which cannot be stored", e.Position, e.Block), err)
	}
	copy(p.buf, e.SecondaryKey)
	copy(p.buf[p.secLen:], e.PrimaryKey)
	return p.buf, nil
}

// UnpackBlock decodes the block number of a packed record.
func UnpackBlock(rec []byte) (int, bool) {
	if len(rec) < 2 {
		return 0, false
	}
	return paradox.GetBlockNumber(rec[len(rec)-2:])
}
