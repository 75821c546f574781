// Package index builds primary and secondary index files for tables.
package index

import (
	"fmt"

	pxerrors "github.com/pxtools/pxindex/internal/errors"
	"github.com/pxtools/pxindex/internal/paradox"
)

// BlockNumberFieldName names the trailing field of a secondary index
// record that points back at the data block holding the source record.
const BlockNumberFieldName = "Blk Num"

// blockNumberField is the synthetic last field of every secondary index.
var blockNumberField = paradox.Field{
	Name:   BlockNumberFieldName,
	Type:   paradox.FieldShort,
	Length: 2,
}

// Schema is the field layout of an index file together with the location
// of its key material inside a source record.
type Schema struct {
	// Fields is the destination field list. Packed records follow this order.
	Fields []paradox.Field

	// SecondaryField is the 1-based source field of a secondary index,
	// 0 for a primary index.
	SecondaryField int

	// SecondaryOffset and SecondaryLength locate the secondary field in a
	// source record.
	SecondaryOffset int
	SecondaryLength int

	// NumPrimaryKeys and PrimaryLength describe the leading key fields.
	NumPrimaryKeys int
	PrimaryLength  int
}

// IsSecondary reports whether the schema describes a secondary index.
func (s *Schema) IsSecondary() bool {
	return s.SecondaryField > 0
}

// RecordSize returns the size of one packed index record.
func (s *Schema) RecordSize() int {
	return paradox.RecordLength(s.Fields)
}

// DerivePrimarySchema returns the schema of a primary index: the source's
// primary key fields in their original order.
func DerivePrimarySchema(fields []paradox.Field, numPrimaryKeys int) (*Schema, error) {
	keys, primLen, err := primaryKeyFields(fields, numPrimaryKeys)
	if err != nil {
		return nil, err
	}
	return &Schema{
		Fields:         keys,
		NumPrimaryKeys: numPrimaryKeys,
		PrimaryLength:  primLen,
	}, nil
}

// DeriveSecondarySchema returns the schema of a secondary index over the
// 1-based field secField: that field, then the primary key fields, then
// the block number field.
func DeriveSecondarySchema(fields []paradox.Field, numPrimaryKeys, secField int) (*Schema, error) {
	keys, primLen, err := primaryKeyFields(fields, numPrimaryKeys)
	if err != nil {
		return nil, err
	}
	if secField < 1 || secField > len(fields) {
		return nil, pxerrors.NewPreconditionError(pxerrors.CodeInvalidSecondaryField,
			fmt.Sprintf("secondary key field %d does not exist (table has %d fields)", secField, len(fields))).
			WithDetails(map[string]interface{}{"field": secField, "num_fields": len(fields)})
	}

	offset := 0
	for _, f := range fields[:secField-1] {
		offset += f.Length
	}
	sec := fields[secField-1]

	out := make([]paradox.Field, 0, numPrimaryKeys+2)
	out = append(out, sec)
	out = append(out, keys...)
	out = append(out, blockNumberField)

	return &Schema{
		Fields:          out,
		SecondaryField:  secField,
		SecondaryOffset: offset,
		SecondaryLength: sec.Length,
		NumPrimaryKeys:  numPrimaryKeys,
		PrimaryLength:   primLen,
	}, nil
}

// primaryKeyFields copies the leading numPrimaryKeys fields and sums their
// lengths.
func primaryKeyFields(fields []paradox.Field, numPrimaryKeys int) ([]paradox.Field, int, error) {
	if numPrimaryKeys <= 0 {
		return nil, 0, pxerrors.NewPreconditionError(pxerrors.CodeNoPrimaryKeys,
			"the database file has no primary key fields")
	}
	if numPrimaryKeys > len(fields) {
		return nil, 0, pxerrors.NewPreconditionError(pxerrors.CodeUnresolvedField,
			fmt.Sprintf("could not get field definition of primary key field %d (table has %d fields)", len(fields)+1, len(fields)))
	}
	keys := paradox.CopyFields(fields[:numPrimaryKeys])
	return keys, paradox.RecordLength(keys), nil
}
