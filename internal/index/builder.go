package index

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	pxerrors "github.com/pxtools/pxindex/internal/errors"
	"github.com/pxtools/pxindex/internal/paradox"
	"github.com/spaolacci/murmur3"
)

// Destination is a newly created index file. *paradox.Writer implements it.
type Destination interface {
	PutRecord(data []byte) error
	RecordSize() int
	SetIndexFieldNumber(n int)
	Close() error
}

// CreateRequest describes the destination file to create.
type CreateRequest struct {
	Path        string
	TableName   string
	Fields      []paradox.Field
	Kind        paradox.FileType
	BlockSizeKB int
}

// CreateFunc creates a destination file.
type CreateFunc func(req CreateRequest) (Destination, error)

// PrimaryWriterFunc fills a primary index from its source table.
type PrimaryWriterFunc func(src Source, dst Destination) error

// CreateParadox creates destination files with the paradox package.
func CreateParadox(req CreateRequest) (Destination, error) {
	w, err := paradox.Create(req.Path, req.Fields, req.Kind, paradox.CreateOptions{
		BlockSizeKB: req.BlockSizeKB,
		TableName:   req.TableName,
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// WriteParadoxPrimary writes a primary index with the paradox package.
func WriteParadoxPrimary(src Source, dst Destination) error {
	return paradox.WritePrimaryIndex(src, dst)
}

// Options configures a Builder.
type Options struct {
	// Atomic writes the index to a temporary sibling file and renames it
	// over the output only once the build succeeded.
	Atomic bool

	// BlockSizeKB is the block size of the index file (0 = default).
	BlockSizeKB int

	// MaxSortBytes bounds the memory the sort entries of a secondary index
	// may take; 0 disables the check.
	MaxSortBytes int64

	// Diagnostics receives the key layout of a secondary build. nil
	// discards it.
	Diagnostics io.Writer

	Create       CreateFunc
	WritePrimary PrimaryWriterFunc
}

// Request is one index build.
type Request struct {
	// Output is the path of the index file.
	Output string

	// SecondaryField is the 1-based field to build a secondary index over;
	// 0 builds the primary index.
	SecondaryField int
}

// Result describes a finished build.
type Result struct {
	BuildID        string
	Output         string
	Kind           paradox.FileType
	Schema         *Schema
	SourceRecords  int
	FetchFailures  int
	DeletedRecords int
	RecordsWritten int
	Digest         string
	Duration       time.Duration
	States         []State
}

// sortEntryOverhead approximates the per-entry cost beyond the key bytes.
const sortEntryOverhead = 64

// Builder builds index files from source tables.
type Builder struct {
	opts Options
}

// NewBuilder creates a new index builder.
func NewBuilder(opts Options) *Builder {
	if opts.Create == nil {
		opts.Create = CreateParadox
	}
	if opts.WritePrimary == nil {
		opts.WritePrimary = WriteParadoxPrimary
	}
	if opts.Diagnostics == nil {
		opts.Diagnostics = io.Discard
	}
	return &Builder{opts: opts}
}

// Build builds the index described by req from src. The destination is
// closed on every path; src stays open and belongs to the caller.
func (b *Builder) Build(ctx context.Context, src Source, req Request) (res *Result, err error) {
	started := time.Now()
	sm := &stateMachine{}
	res = &Result{
		BuildID:       uuid.New().String(),
		Output:        req.Output,
		SourceRecords: src.NumRecords(),
	}
	defer func() {
		res.States = sm.history
		res.Duration = time.Since(started)
	}()

	schema, kind, err := b.plan(src, req)
	if err != nil {
		return res, err
	}
	res.Schema, res.Kind = schema, kind
	if err := sm.advance(StateSchemaBuilt); err != nil {
		return res, err
	}

	if schema.IsSecondary() {
		fmt.Fprintf(b.opts.Diagnostics, "primary index: %d\n", schema.PrimaryLength)
		fmt.Fprintf(b.opts.Diagnostics, "secondary index: %d, %d\n", schema.SecondaryOffset, schema.SecondaryLength)
	}

	target := req.Output
	if b.opts.Atomic {
		target = tempPath(req.Output, res.BuildID)
	}
	raw, err := b.opts.Create(CreateRequest{
		Path:        target,
		TableName:   tableName(req.Output),
		Fields:      schema.Fields,
		Kind:        kind,
		BlockSizeKB: b.opts.BlockSizeKB,
	})
	if err != nil {
		return res, pxerrors.NewTableError(pxerrors.CodeCreateFailed,
			fmt.Sprintf("could not create %s index file", kindLabel(schema)), err)
	}
	dst := newDigestDestination(raw)
	if err := sm.advance(StateFileCreated); err != nil {
		dst.Close()
		return res, err
	}

	closed := false
	defer func() {
		if !closed {
			dst.Close()
			sm.advance(StateClosed)
		}
		if err != nil && b.opts.Atomic {
			os.Remove(target)
		}
	}()

	if schema.IsSecondary() {
		dst.SetIndexFieldNumber(schema.SecondaryField)
		if err := b.populateSecondary(ctx, src, schema, dst, res); err != nil {
			return res, err
		}
		if err := sm.advance(StateSecondaryPopulated); err != nil {
			return res, err
		}
	} else {
		if err := b.opts.WritePrimary(src, dst); err != nil {
			return res, pxerrors.NewTableError(pxerrors.CodeWriteFailed, "could not write primary index", err)
		}
		if err := sm.advance(StatePrimaryDelegated); err != nil {
			return res, err
		}
	}

	closed = true
	if err := dst.Close(); err != nil {
		return res, pxerrors.NewTableError(pxerrors.CodeCloseFailed,
			fmt.Sprintf("could not close %s index file", kindLabel(schema)), err)
	}
	if err := sm.advance(StateClosed); err != nil {
		return res, err
	}

	if b.opts.Atomic {
		if err := os.Rename(target, req.Output); err != nil {
			return res, pxerrors.NewTableError(pxerrors.CodePublishFailed,
				fmt.Sprintf("could not move index file into place at %s", req.Output), err)
		}
	}

	res.RecordsWritten = dst.records
	res.Digest = dst.sum()
	log.Printf("index: wrote %d records to %s (kind=%s, digest=%s) in %v",
		res.RecordsWritten, req.Output, kind, res.Digest, time.Since(started))
	return res, nil
}

// plan derives the schema and destination kind. Nothing is created yet.
func (b *Builder) plan(src Source, req Request) (*Schema, paradox.FileType, error) {
	fields := src.Fields()
	if req.SecondaryField < 0 {
		return nil, 0, pxerrors.NewPreconditionError(pxerrors.CodeInvalidSecondaryField,
			fmt.Sprintf("secondary key field %d does not exist (table has %d fields)", req.SecondaryField, len(fields)))
	}
	if req.SecondaryField == 0 {
		schema, err := DerivePrimarySchema(fields, src.NumPrimaryKeys())
		if err != nil {
			return nil, 0, err
		}
		kind, err := DestinationKind(src.FileType())
		if err != nil {
			return nil, 0, err
		}
		return schema, kind, nil
	}

	schema, err := DeriveSecondarySchema(fields, src.NumPrimaryKeys(), req.SecondaryField)
	if err != nil {
		return nil, 0, err
	}
	if b.opts.MaxSortBytes > 0 {
		need := int64(src.NumRecords()) * int64(schema.SecondaryLength+schema.PrimaryLength+sortEntryOverhead)
		if need > b.opts.MaxSortBytes {
			return nil, 0, pxerrors.NewAllocationError(
				fmt.Sprintf("sorting %d records needs about %d bytes, limit is %d", src.NumRecords(), need, b.opts.MaxSortBytes), nil)
		}
	}
	return schema, SecondaryKind, nil
}

func (b *Builder) populateSecondary(ctx context.Context, src Source, schema *Schema, dst Destination, res *Result) error {
	entries, stats, err := Extract(ctx, src, schema)
	res.FetchFailures = stats.FetchFailures
	res.DeletedRecords = stats.Deleted
	if err != nil {
		return err
	}
	if stats.FetchFailures > 0 {
		log.Printf("index: %d of %d records could not be read and were skipped", stats.FetchFailures, stats.Positions)
	}

	SortEntries(entries, schema.SecondaryLength)

	packer := NewPacker(schema.SecondaryLength, schema.PrimaryLength)
	if packer.RecordSize() != dst.RecordSize() {
		return pxerrors.NewInternalError(
			fmt.Sprintf("packed record is %d bytes, index file expects %d", packer.RecordSize(), dst.RecordSize()), nil)
	}
	for _, e := range entries {
		buf, err := packer.Pack(e)
		if err != nil {
			return err
		}
		if err := dst.PutRecord(buf); err != nil {
			return pxerrors.NewTableError(pxerrors.CodeWriteFailed,
				fmt.Sprintf("could not write index record for source record %d", e.Position), err)
		}
	}
	return nil
}

// digestDestination counts and hashes every record written through it.
type digestDestination struct {
	Destination
	h       murmur3.Hash128
	records int
}

func newDigestDestination(d Destination) *digestDestination {
	return &digestDestination{Destination: d, h: murmur3.New128()}
}

func (d *digestDestination) PutRecord(data []byte) error {
	if err := d.Destination.PutRecord(data); err != nil {
		return err
	}
	d.h.Write(data)
	d.records++
	return nil
}

func (d *digestDestination) sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

func kindLabel(s *Schema) string {
	if s.IsSecondary() {
		return "secondary"
	}
	return "primary"
}

func tempPath(output, buildID string) string {
	dir, base := filepath.Split(output)
	return filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", base, buildID[:8]))
}

func tableName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
