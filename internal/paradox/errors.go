package paradox

import "errors"

// Errors returned by the table readers and writers.
var (
	ErrInvalidHeader      = errors.New("invalid file header")
	ErrUnsupportedField   = errors.New("unsupported field definition")
	ErrCorruptBlockChain  = errors.New("corrupt block chain")
	ErrRecordOutOfRange   = errors.New("record position out of range")
	ErrRecordSizeMismatch = errors.New("record size mismatch")
	ErrClosed             = errors.New("file already closed")
	ErrBufferTooSmall     = errors.New("buffer too small")
	ErrValueOutOfRange    = errors.New("value out of range")
)
