package sansio

import (
	"math"
	"unicode/utf8"

	"github.com/ossyrian/rgssad/internal/rgss"
)

type options struct {
	maxFileNameLen uint32
	bufferCapacity int
}

// Option configures a reader or writer state machine.
type Option func(*options)

// WithMaxFileNameLen sets the largest accepted file name length in bytes.
func WithMaxFileNameLen(n uint32) Option {
	return func(o *options) {
		o.maxFileNameLen = n
	}
}

// WithBufferCapacity sets the initial buffer capacity.
func WithBufferCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferCapacity = n
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		maxFileNameLen: rgss.MaxFileNameLen,
		bufferCapacity: rgss.DefaultBufferCapacity,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// maxNameLen keeps name lengths plus their record prefix within int on
// every platform.
var maxNameLen uint64 = math.MaxInt - 2*rgss.RecordPrefixLen3

// nameLenError rejects decoded name lengths above the configured maximum
// or too large to index with an int.
func (o options) nameLenError(n uint32) error {
	if n > o.maxFileNameLen || uint64(n) > maxNameLen {
		return &rgss.FileNameTooLongError{Len: uint64(n), Max: o.maxFileNameLen}
	}
	return nil
}

// checkName validates a file name before it is encoded.
func (o options) checkName(name string) error {
	if uint64(len(name)) > uint64(o.maxFileNameLen) {
		return &rgss.FileNameTooLongError{Len: uint64(len(name)), Max: o.maxFileNameLen}
	}
	if !utf8.ValidString(name) {
		return &rgss.InvalidFileNameError{Name: []byte(name)}
	}
	return nil
}

// decodeName validates decrypted name bytes.
func decodeName(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", &rgss.InvalidFileNameError{Name: b}
	}
	return string(b), nil
}
