package sansio

import (
	"encoding/binary"
	"fmt"

	"github.com/ossyrian/rgssad/internal/rgss"
)

type writerPhase uint8

const (
	writerHeader writerPhase = iota
	writerFileHeader
	writerFileData
	writerFinished
)

// Writer is the state machine for version 1 (rgssad/rgss2a) archives.
//
// Encrypted bytes are staged in an internal buffer; the driver drains them
// through Data and Consume whenever a step returns ActionWrite.
type Writer struct {
	opts options
	buf  *rgss.Buffer

	phase     writerPhase
	key       uint32
	cipher    rgss.FileCipher
	size      uint32
	remaining uint32
}

// NewWriter returns a writer for a new archive.
func NewWriter(opts ...Option) *Writer {
	o := newOptions(opts)
	return &Writer{
		opts: o,
		buf:  rgss.NewBuffer(o.bufferCapacity),
		key:  rgss.DefaultKey,
	}
}

// Data returns the staged bytes that should be written to the transport.
func (w *Writer) Data() []byte {
	return w.buf.Data()
}

// Consume marks n bytes of Data as written.
func (w *Writer) Consume(n int) {
	w.buf.Consume(n)
}

// Space returns the region where plaintext file data should be placed
// before calling StepWriteFileData. An empty Space means Data must be
// drained first.
func (w *Writer) Space() []byte {
	return w.buf.Space()
}

// StepWriteHeader stages the archive header. Once the header has been
// staged it returns ActionDone without doing anything.
func (w *Writer) StepWriteHeader() (Action[struct{}], error) {
	if w.phase != writerHeader {
		return done(struct{}{}), nil
	}

	if w.buf.AvailableSpace() < rgss.HeaderLen {
		if w.buf.AvailableData() > 0 {
			return write[struct{}](), nil
		}
		w.buf.Reserve(rgss.HeaderLen)
	}
	space := w.buf.Space()
	copy(space, rgss.Magic[:])
	space[rgss.MagicLen] = rgss.Version1
	w.buf.Fill(rgss.HeaderLen)
	w.phase = writerFileHeader

	return done(struct{}{}), nil
}

// StepWriteFileHeader stages the header of an entry of the given size,
// staging the archive header first if needed. All data of the previous
// entry must have been written.
func (w *Writer) StepWriteFileHeader(name string, size uint32) (Action[struct{}], error) {
	switch w.phase {
	case writerHeader:
		if a, err := w.StepWriteHeader(); err != nil || !a.IsDone() {
			return a, err
		}
	case writerFileData:
		return Action[struct{}]{}, &rgss.FileDataSizeMismatchError{
			Actual:   uint64(w.size - w.remaining),
			Expected: w.size,
		}
	case writerFinished:
		return Action[struct{}]{}, fmt.Errorf("write file header after finish: %w", rgss.ErrInvalidState)
	}

	if err := w.opts.checkName(name); err != nil {
		return Action[struct{}]{}, err
	}

	headerLen := 2*rgss.U32Len + len(name)
	if w.buf.AvailableSpace() < headerLen {
		if w.buf.AvailableData() > 0 {
			return write[struct{}](), nil
		}
		w.buf.Reserve(headerLen)
	}
	space := w.buf.Space()[:headerLen]

	key := w.key
	var nameLen uint32
	nameLen, key = rgss.CryptU32(key, uint32(len(name)))
	binary.LittleEndian.PutUint32(space, nameLen)

	nameBytes := space[rgss.U32Len : rgss.U32Len+len(name)]
	copy(nameBytes, name)
	key = rgss.CryptNameBytes(key, nameBytes)

	var encSize uint32
	encSize, key = rgss.CryptU32(key, size)
	binary.LittleEndian.PutUint32(space[rgss.U32Len+len(name):], encSize)

	w.buf.Fill(headerLen)
	w.key = key
	w.cipher = rgss.FileCipher{Key: key}
	w.size = size
	w.remaining = size
	w.phase = writerFileData
	if size == 0 {
		w.phase = writerFileHeader
	}

	return done(struct{}{}), nil
}

// StepWriteFileData encrypts the first n bytes of Space in place and stages
// them as data of the current entry.
func (w *Writer) StepWriteFileData(n int) (Action[int], error) {
	switch w.phase {
	case writerHeader:
		if a, err := w.StepWriteHeader(); err != nil || !a.IsDone() {
			return pending[int](a), err
		}
	case writerFinished:
		return Action[int]{}, fmt.Errorf("write file data after finish: %w", rgss.ErrInvalidState)
	}
	if n == 0 {
		return done(0), nil
	}
	if w.phase != writerFileData {
		return Action[int]{}, fmt.Errorf("write file data without a file header: %w", rgss.ErrInvalidState)
	}
	if n < 0 || uint64(n) > uint64(w.remaining) {
		return Action[int]{}, &rgss.FileDataSizeMismatchError{
			Actual:   uint64(w.size-w.remaining) + uint64(max(n, 0)),
			Expected: w.size,
		}
	}

	space := w.buf.Space()
	if n > len(space) {
		return Action[int]{}, fmt.Errorf("write %d bytes with %d bytes of space: %w", n, len(space), rgss.ErrInvalidState)
	}
	w.cipher.Crypt(space[:n])
	w.buf.Fill(n)
	w.remaining -= uint32(n)
	if w.remaining == 0 {
		w.phase = writerFileHeader
	}

	return done(n), nil
}

// Finish checks that no entry is incomplete and asks for the staged bytes
// to be drained. The driver should flush its transport once it returns
// ActionDone.
func (w *Writer) Finish() (Action[struct{}], error) {
	switch w.phase {
	case writerHeader:
		if a, err := w.StepWriteHeader(); err != nil || !a.IsDone() {
			return a, err
		}
	case writerFileData:
		return Action[struct{}]{}, fmt.Errorf("finish with %d bytes of file data missing: %w", w.remaining, rgss.ErrInvalidState)
	}
	if w.buf.AvailableData() > 0 {
		return write[struct{}](), nil
	}
	w.phase = writerFinished
	return done(struct{}{}), nil
}
