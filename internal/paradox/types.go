// Package paradox reads and writes Paradox-style table and index files.
//
// A file starts with a little-endian header describing the record layout,
// followed by fixed-size data blocks chained through a 6-byte block header.
// Field values inside records are stored big-endian with the sign bit
// flipped so that byte-wise comparison matches numeric order.
package paradox

import "fmt"

// FieldType is the type tag of a field descriptor.
type FieldType uint8

const (
	FieldAlpha     FieldType = 0x01
	FieldDate      FieldType = 0x02
	FieldShort     FieldType = 0x03
	FieldLong      FieldType = 0x04
	FieldCurrency  FieldType = 0x05
	FieldNumber    FieldType = 0x06
	FieldLogical   FieldType = 0x09
	FieldMemoBLOb  FieldType = 0x0C
	FieldBLOb      FieldType = 0x0D
	FieldFmtMemo   FieldType = 0x0E
	FieldOLE       FieldType = 0x0F
	FieldGraphic   FieldType = 0x10
	FieldTime      FieldType = 0x14
	FieldTimestamp FieldType = 0x15
	FieldAutoInc   FieldType = 0x16
	FieldBCD       FieldType = 0x17
	FieldBytes     FieldType = 0x18
)

var fieldTypeNames = map[FieldType]string{
	FieldAlpha:     "alpha",
	FieldDate:      "date",
	FieldShort:     "short",
	FieldLong:      "long",
	FieldCurrency:  "currency",
	FieldNumber:    "number",
	FieldLogical:   "logical",
	FieldMemoBLOb:  "memo",
	FieldBLOb:      "blob",
	FieldFmtMemo:   "fmtmemo",
	FieldOLE:       "ole",
	FieldGraphic:   "graphic",
	FieldTime:      "time",
	FieldTimestamp: "timestamp",
	FieldAutoInc:   "autoinc",
	FieldBCD:       "bcd",
	FieldBytes:     "bytes",
}

// String returns the lower-case name of the field type.
func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("fieldtype(0x%02x)", uint8(t))
}

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	_, ok := fieldTypeNames[t]
	return ok
}

// fixedLength returns the mandatory byte length of fixed-size types and 0
// for types whose length is chosen per field.
func (t FieldType) fixedLength() int {
	switch t {
	case FieldShort:
		return 2
	case FieldLogical:
		return 1
	case FieldDate, FieldLong, FieldTime, FieldAutoInc:
		return 4
	case FieldCurrency, FieldNumber, FieldTimestamp:
		return 8
	case FieldBCD:
		return 17
	default:
		return 0
	}
}

// FileType classifies a file by the role it plays in a table family.
type FileType uint8

const (
	FileTypeIndexDB         FileType = 0 // keyed data table
	FileTypePrimIndex       FileType = 1 // primary index (.PX)
	FileTypeNonIndexDB      FileType = 2 // unkeyed data table
	FileTypeNonIncSecIndex  FileType = 3
	FileTypeSecIndex        FileType = 4
	FileTypeIncSecIndex     FileType = 5
	FileTypeNonIncSecIndexG FileType = 6
	FileTypeSecIndexG       FileType = 7
	FileTypeIncSecIndexG    FileType = 8
)

var fileTypeNames = [...]string{
	FileTypeIndexDB:         "IndexDB",
	FileTypePrimIndex:       "PrimIndex",
	FileTypeNonIndexDB:      "NonIndexDB",
	FileTypeNonIncSecIndex:  "NonIncSecIndex",
	FileTypeSecIndex:        "SecIndex",
	FileTypeIncSecIndex:     "IncSecIndex",
	FileTypeNonIncSecIndexG: "NonIncSecIndexG",
	FileTypeSecIndexG:       "SecIndexG",
	FileTypeIncSecIndexG:    "IncSecIndexG",
}

// String returns the name of the file type.
func (t FileType) String() string {
	if int(t) < len(fileTypeNames) {
		return fileTypeNames[t]
	}
	return fmt.Sprintf("filetype(%d)", uint8(t))
}

// Valid reports whether t is a known file type.
func (t FileType) Valid() bool {
	return int(t) < len(fileTypeNames)
}

// Field describes one column of a table.
type Field struct {
	Name     string
	Type     FieldType
	Length   int
	Decimals int
}

// BlockInfo identifies the data block a record was read from.
type BlockInfo struct {
	// Number is the 1-based block number within the file.
	Number int
	// Prev and Next are the neighbouring blocks in the chain, 0 if none.
	Prev int
	Next int
	// Records is the number of records stored in the block.
	Records int
	// Offset is the file offset of the block header.
	Offset int64
}

// Record is one record as returned by Table.Record.
type Record struct {
	Data    []byte
	Deleted bool
	Block   BlockInfo
}

// CopyFields returns a deep copy of fields.
func CopyFields(fields []Field) []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// RecordLength returns the sum of the field lengths.
func RecordLength(fields []Field) int {
	n := 0
	for _, f := range fields {
		n += f.Length
	}
	return n
}
