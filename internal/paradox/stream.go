package paradox

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/golang/snappy"
	"golang.org/x/exp/mmap"
)

// snappyMagic starts every snappy framed stream.
var snappyMagic = []byte("\xff\x06\x00\x00sNaPpY")

// OpenStream opens path through a stream reader instead of direct file
// access. The file is memory-mapped when possible and read into memory
// otherwise. Snappy framed input is decompressed transparently.
func OpenStream(path string) (*Table, error) {
	var (
		r      io.ReaderAt
		size   int64
		closer io.Closer
	)
	if m, err := mmap.Open(path); err == nil {
		r, size, closer = m, int64(m.Len()), m
	} else {
		log.Printf("paradox: mmap of %s failed (%v), reading into memory", path, err)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("paradox: failed to open stream input %s: %w", path, err)
		}
		r, size = bytes.NewReader(data), int64(len(data))
	}

	if isSnappyFramed(r, size) {
		data, err := io.ReadAll(snappy.NewReader(io.NewSectionReader(r, 0, size)))
		if closer != nil {
			closer.Close()
			closer = nil
		}
		if err != nil {
			return nil, fmt.Errorf("paradox: failed to decompress %s: %w", path, err)
		}
		r, size = bytes.NewReader(data), int64(len(data))
	}

	t, err := OpenReader(r, size, tableName(path))
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}
	t.closer = closer
	return t, nil
}

func isSnappyFramed(r io.ReaderAt, size int64) bool {
	if size < int64(len(snappyMagic)) {
		return false
	}
	head := make([]byte, len(snappyMagic))
	if _, err := r.ReadAt(head, 0); err != nil {
		return false
	}
	return bytes.Equal(head, snappyMagic)
}
