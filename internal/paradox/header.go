package paradox

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Header layout. All integers are little-endian.
//
//	0x00 u16 record size
//	0x02 u16 header size
//	0x04 u8  file type
//	0x05 u8  block size in KiB
//	0x06 u32 number of records
//	0x0A u16 blocks in use
//	0x0C u16 blocks in file
//	0x0E u16 first data block
//	0x10 u16 last data block
//	0x12 u16 secondary index field number (index files only)
//	0x21 u16 number of fields
//	0x23 u16 number of primary key fields
//	0x39 u8  file version
//	0x78     field descriptors (type, length), table name, field names,
//	         decimal counts
const (
	headerAlign     = 0x800
	fieldDescOffset = 0x78
	tableNameSize   = 79
	fileVersion     = 0x0C
	blockHeaderSize = 6
)

// Supported block sizes in KiB.
const (
	MinBlockSizeKB     = 1
	MaxBlockSizeKB     = 32
	DefaultBlockSizeKB = 2
)

type header struct {
	recordSize       int
	headerSize       int
	fileType         FileType
	blockSizeKB      int
	numRecords       int
	usedBlocks       int
	fileBlocks       int
	firstBlock       int
	lastBlock        int
	indexFieldNumber int
	numPrimaryKeys   int
	tableName        string
	fields           []Field
}

func (h *header) blockSize() int {
	return h.blockSizeKB * 1024
}

func (h *header) blockOffset(n int) int64 {
	return int64(h.headerSize) + int64(n-1)*int64(h.blockSize())
}

// recordsPerBlock is the number of record slots in one data block.
func (h *header) recordsPerBlock() int {
	return (h.blockSize() - blockHeaderSize) / h.recordSize
}

// encodedSize is the number of bytes the header occupies before padding.
func (h *header) encodedSize() int {
	n := fieldDescOffset + 2*len(h.fields) + tableNameSize
	for _, f := range h.fields {
		n += len(f.Name) + 1
	}
	return n + len(h.fields)
}

func (h *header) marshal() []byte {
	buf := make([]byte, h.headerSize)
	le := binary.LittleEndian
	le.PutUint16(buf[0x00:], uint16(h.recordSize))
	le.PutUint16(buf[0x02:], uint16(h.headerSize))
	buf[0x04] = byte(h.fileType)
	buf[0x05] = byte(h.blockSizeKB)
	le.PutUint32(buf[0x06:], uint32(h.numRecords))
	le.PutUint16(buf[0x0A:], uint16(h.usedBlocks))
	le.PutUint16(buf[0x0C:], uint16(h.fileBlocks))
	le.PutUint16(buf[0x0E:], uint16(h.firstBlock))
	le.PutUint16(buf[0x10:], uint16(h.lastBlock))
	le.PutUint16(buf[0x12:], uint16(h.indexFieldNumber))
	le.PutUint16(buf[0x21:], uint16(len(h.fields)))
	le.PutUint16(buf[0x23:], uint16(h.numPrimaryKeys))
	buf[0x39] = fileVersion

	off := fieldDescOffset
	for _, f := range h.fields {
		buf[off] = byte(f.Type)
		buf[off+1] = byte(f.Length)
		off += 2
	}
	PutAlpha(buf[off:off+tableNameSize-1], h.tableName)
	off += tableNameSize
	for _, f := range h.fields {
		off += copy(buf[off:], f.Name)
		buf[off] = 0
		off++
	}
	for _, f := range h.fields {
		buf[off] = byte(f.Decimals)
		off++
	}
	return buf
}

// unmarshalHeader decodes a complete header block, buf holding at least
// the header size recorded at offset 0x02.
func unmarshalHeader(buf []byte) (*header, error) {
	if len(buf) < fieldDescOffset {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the fixed header", ErrInvalidHeader, len(buf))
	}
	le := binary.LittleEndian
	h := &header{
		recordSize:       int(le.Uint16(buf[0x00:])),
		headerSize:       int(le.Uint16(buf[0x02:])),
		fileType:         FileType(buf[0x04]),
		blockSizeKB:      int(buf[0x05]),
		numRecords:       int(le.Uint32(buf[0x06:])),
		usedBlocks:       int(le.Uint16(buf[0x0A:])),
		fileBlocks:       int(le.Uint16(buf[0x0C:])),
		firstBlock:       int(le.Uint16(buf[0x0E:])),
		lastBlock:        int(le.Uint16(buf[0x10:])),
		indexFieldNumber: int(le.Uint16(buf[0x12:])),
		numPrimaryKeys:   int(le.Uint16(buf[0x23:])),
	}
	numFields := int(le.Uint16(buf[0x21:]))

	switch {
	case !h.fileType.Valid():
		return nil, fmt.Errorf("%w: unknown file type %d", ErrInvalidHeader, buf[0x04])
	case h.blockSizeKB < MinBlockSizeKB || h.blockSizeKB > MaxBlockSizeKB:
		return nil, fmt.Errorf("%w: block size %d KiB", ErrInvalidHeader, h.blockSizeKB)
	case h.recordSize <= 0 || h.recordSize > h.blockSize()-blockHeaderSize:
		return nil, fmt.Errorf("%w: record size %d", ErrInvalidHeader, h.recordSize)
	case h.headerSize < fieldDescOffset:
		return nil, fmt.Errorf("%w: header size %d", ErrInvalidHeader, h.headerSize)
	case h.headerSize > len(buf):
		return nil, fmt.Errorf("%w: header size %d exceeds %d available bytes", ErrInvalidHeader, h.headerSize, len(buf))
	case numFields == 0:
		return nil, fmt.Errorf("%w: no fields", ErrInvalidHeader)
	case h.numPrimaryKeys > numFields:
		return nil, fmt.Errorf("%w: %d primary key fields but only %d fields", ErrInvalidHeader, h.numPrimaryKeys, numFields)
	}

	body := buf[:h.headerSize]
	off := fieldDescOffset
	if off+2*numFields+tableNameSize > len(body) {
		return nil, fmt.Errorf("%w: field descriptors truncated", ErrInvalidHeader)
	}
	h.fields = make([]Field, numFields)
	for i := range h.fields {
		h.fields[i].Type = FieldType(body[off])
		h.fields[i].Length = int(body[off+1])
		off += 2
	}
	h.tableName = GetAlpha(body[off : off+tableNameSize])
	off += tableNameSize
	for i := range h.fields {
		end := bytes.IndexByte(body[off:], 0)
		if end < 0 {
			return nil, fmt.Errorf("%w: name of field %d not terminated", ErrInvalidHeader, i+1)
		}
		h.fields[i].Name = string(body[off : off+end])
		off += end + 1
	}
	if off+numFields > len(body) {
		return nil, fmt.Errorf("%w: decimal counts truncated", ErrInvalidHeader)
	}
	for i := range h.fields {
		h.fields[i].Decimals = int(body[off+i])
	}

	if n := RecordLength(h.fields); n != h.recordSize {
		return nil, fmt.Errorf("%w: fields add up to %d bytes, header says %d", ErrInvalidHeader, n, h.recordSize)
	}
	return h, nil
}

func alignHeader(n int) int {
	return (n + headerAlign - 1) / headerAlign * headerAlign
}
