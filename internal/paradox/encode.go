package paradox

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// MaxBlockNumber is the largest block number a block pointer can hold.
const MaxBlockNumber = math.MaxUint16

// PutShort stores v into buf[:2] in the file's native short encoding:
// big-endian with the sign bit inverted, so 0 is written as 0x8000 and an
// all-zero field stays reserved for NULL. math.MinInt16 would encode as
// NULL and is rejected.
func PutShort(buf []byte, v int16) error {
	if len(buf) < 2 {
		return fmt.Errorf("%w: short needs 2 bytes, got %d", ErrBufferTooSmall, len(buf))
	}
	if v == math.MinInt16 {
		return fmt.Errorf("%w: short %d encodes as NULL", ErrValueOutOfRange, v)
	}
	binary.BigEndian.PutUint16(buf, uint16(v)^0x8000)
	return nil
}

// GetShort decodes a short written by PutShort. ok is false for NULL.
func GetShort(buf []byte) (v int16, ok bool) {
	if len(buf) < 2 {
		return 0, false
	}
	raw := binary.BigEndian.Uint16(buf)
	if raw == 0 {
		return 0, false
	}
	return int16(raw ^ 0x8000), true
}

// PutLong stores v into buf[:4] using the same scheme as PutShort.
// math.MinInt32 is rejected.
func PutLong(buf []byte, v int32) error {
	if len(buf) < 4 {
		return fmt.Errorf("%w: long needs 4 bytes, got %d", ErrBufferTooSmall, len(buf))
	}
	if v == math.MinInt32 {
		return fmt.Errorf("%w: long %d encodes as NULL", ErrValueOutOfRange, v)
	}
	binary.BigEndian.PutUint32(buf, uint32(v)^0x80000000)
	return nil
}

// GetLong decodes a long written by PutLong. ok is false for NULL.
func GetLong(buf []byte) (v int32, ok bool) {
	if len(buf) < 4 {
		return 0, false
	}
	raw := binary.BigEndian.Uint32(buf)
	if raw == 0 {
		return 0, false
	}
	return int32(raw ^ 0x80000000), true
}

// PutBlockNumber stores a block pointer in a short field. The low 16 bits
// of n go through the short encoding, so blocks up to 32767 read back as
// ordinary shorts and higher blocks read back as their unsigned pattern.
// Block 0 is not a block, and block 32768 would encode as NULL; both are
// rejected along with anything above MaxBlockNumber.
func PutBlockNumber(buf []byte, n int) error {
	if len(buf) < 2 {
		return fmt.Errorf("%w: block number needs 2 bytes, got %d", ErrBufferTooSmall, len(buf))
	}
	if n < 1 || n > MaxBlockNumber || n == 0x8000 {
		return fmt.Errorf("%w: block number %d", ErrValueOutOfRange, n)
	}
	binary.BigEndian.PutUint16(buf, uint16(n)^0x8000)
	return nil
}

// GetBlockNumber decodes a block pointer written by PutBlockNumber.
// ok is false for NULL and for block 0.
func GetBlockNumber(buf []byte) (n int, ok bool) {
	if len(buf) < 2 {
		return 0, false
	}
	raw := binary.BigEndian.Uint16(buf)
	if raw == 0 {
		return 0, false
	}
	n = int(raw ^ 0x8000)
	return n, n != 0
}

// PutAlpha copies s into buf and zero-fills the remainder. Values longer
// than buf are truncated.
func PutAlpha(buf []byte, s string) {
	n := copy(buf, s)
	clear(buf[n:])
}

// GetAlpha returns the text of an alpha field up to the first NUL byte.
func GetAlpha(buf []byte) string {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		return string(buf[:i])
	}
	return string(buf)
}
