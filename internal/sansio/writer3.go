package sansio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ossyrian/rgssad/internal/rgss"
)

type writer3Phase uint8

const (
	writer3Register writer3Phase = iota
	writer3Header
	writer3Table
	writer3Data
	writer3Finished
)

// Writer3 is the state machine for version 3 (rgss3a) archives.
//
// The table precedes all file data and every data offset depends on the
// table's size, so all files must be registered with AddFile before the
// header is written.
type Writer3 struct {
	opts options
	buf  *rgss.Buffer
	key  uint32

	phase writer3Phase
	files []rgss.FileHeader3
	// tableLen is the encoded size of the registered records, sentinel excluded.
	tableLen uint64

	// record is the index of the next table record to stage.
	record int

	// current is the index of the file receiving data.
	current int
	written uint32
	cipher  rgss.FileCipher
}

// NewWriter3 returns a writer for a new archive using the given archive key.
func NewWriter3(key uint32, opts ...Option) *Writer3 {
	o := newOptions(opts)
	return &Writer3{
		opts: o,
		buf:  rgss.NewBuffer(o.bufferCapacity),
		key:  key,
	}
}

// Key returns the archive key.
func (w *Writer3) Key() uint32 {
	return w.key
}

// Data returns the staged bytes that should be written to the transport.
func (w *Writer3) Data() []byte {
	return w.buf.Data()
}

// Consume marks n bytes of Data as written.
func (w *Writer3) Consume(n int) {
	w.buf.Consume(n)
}

// Space returns the region where plaintext file data should be placed
// before calling StepWriteFileData. An empty Space means Data must be
// drained first.
func (w *Writer3) Space() []byte {
	return w.buf.Space()
}

// AddFile registers a file. It is only allowed before the header is written.
func (w *Writer3) AddFile(name string, size uint32, key uint32) error {
	if w.phase != writer3Register {
		return fmt.Errorf("add file %q after the header was started: %w", name, rgss.ErrInvalidState)
	}
	if err := w.opts.checkName(name); err != nil {
		return err
	}
	w.files = append(w.files, rgss.FileHeader3{Name: name, Size: size, Key: key})
	w.tableLen += rgss.RecordPrefixLen3 + uint64(len(name))
	return nil
}

// Files returns the registered files. Offsets are assigned once the header
// has been started.
func (w *Writer3) Files() []rgss.FileHeader3 {
	return w.files
}

// layout assigns every file its absolute data offset.
func (w *Writer3) layout() error {
	offset := rgss.HeaderLen3 + w.tableLen + rgss.RecordPrefixLen3
	for i := range w.files {
		if offset > math.MaxUint32 {
			return fmt.Errorf("offset of %q is %d: %w", w.files[i].Name, offset, rgss.ErrFileDataTooLong)
		}
		w.files[i].Offset = uint32(offset)
		offset += uint64(w.files[i].Size)
	}
	return nil
}

// StepWriteHeader stages the archive header, freezing the file list.
// Once the header has been staged it returns ActionDone without doing anything.
func (w *Writer3) StepWriteHeader() (Action[struct{}], error) {
	switch w.phase {
	case writer3Register:
		if err := w.layout(); err != nil {
			return Action[struct{}]{}, err
		}
		w.phase = writer3Header
	case writer3Header:
	default:
		return done(struct{}{}), nil
	}

	if !w.stage(rgss.HeaderLen3) {
		return write[struct{}](), nil
	}
	space := w.buf.Space()
	copy(space, rgss.Magic[:])
	space[rgss.MagicLen] = rgss.Version3
	binary.LittleEndian.PutUint32(space[rgss.MagicLen+1:], rgss.SeedFromKey3(w.key))
	w.buf.Fill(rgss.HeaderLen3)
	w.phase = writer3Table

	return done(struct{}{}), nil
}

// StepWriteFileHeaders stages the table, one record per registered file
// followed by the sentinel, staging the archive header first if needed.
// Once the table has been staged it returns ActionDone without doing anything.
func (w *Writer3) StepWriteFileHeaders() (Action[struct{}], error) {
	if w.phase < writer3Table {
		if a, err := w.StepWriteHeader(); err != nil || !a.IsDone() {
			return a, err
		}
	}
	if w.phase != writer3Table {
		return done(struct{}{}), nil
	}

	for w.record < len(w.files) {
		f := &w.files[w.record]
		recordLen := rgss.RecordPrefixLen3 + len(f.Name)
		if !w.stage(recordLen) {
			return write[struct{}](), nil
		}
		space := w.buf.Space()[:recordLen]
		binary.LittleEndian.PutUint32(space[0:], f.Offset^w.key)
		binary.LittleEndian.PutUint32(space[4:], f.Size^w.key)
		binary.LittleEndian.PutUint32(space[8:], f.Key^w.key)
		binary.LittleEndian.PutUint32(space[12:], uint32(len(f.Name))^w.key)
		copy(space[rgss.RecordPrefixLen3:], f.Name)
		rgss.CryptNameBytes3(w.key, space[rgss.RecordPrefixLen3:])
		w.buf.Fill(recordLen)
		w.record++
	}

	// The sentinel decrypts to an offset of zero. Its other fields carry
	// the raw key as well.
	if !w.stage(rgss.RecordPrefixLen3) {
		return write[struct{}](), nil
	}
	space := w.buf.Space()
	for i := 0; i < rgss.RecordPrefixLen3; i += rgss.U32Len {
		binary.LittleEndian.PutUint32(space[i:], w.key)
	}
	w.buf.Fill(rgss.RecordPrefixLen3)

	w.phase = writer3Data
	w.current = 0
	w.written = 0
	if len(w.files) > 0 {
		w.cipher = rgss.FileCipher{Key: w.files[0].Key}
	}

	return done(struct{}{}), nil
}

// stage reports whether n bytes fit in Space, growing an empty buffer that
// is too small. A false result means Data must be drained first.
func (w *Writer3) stage(n int) bool {
	if w.buf.AvailableSpace() >= n {
		return true
	}
	if w.buf.AvailableData() > 0 {
		return false
	}
	w.buf.Reserve(n)
	return true
}

// StepWriteFileData encrypts the first n bytes of Space in place and stages
// them as data of file fileIndex, staging the header and table first if
// needed.
//
// Files are written in registration order. Moving on to a later file is
// only allowed once the current file received exactly its declared size.
// Unlike a strict one-by-one index, empty files in between may be skipped;
// jumping over a file with data is ErrInvalidState.
func (w *Writer3) StepWriteFileData(fileIndex int, n int) (Action[int], error) {
	if w.phase < writer3Data {
		if a, err := w.StepWriteFileHeaders(); err != nil || !a.IsDone() {
			return pending[int](a), err
		}
	}
	if w.phase != writer3Data {
		return Action[int]{}, fmt.Errorf("write file data after finish: %w", rgss.ErrInvalidState)
	}
	if fileIndex < 0 || fileIndex >= len(w.files) {
		return Action[int]{}, fmt.Errorf("file index %d out of range [0, %d): %w", fileIndex, len(w.files), rgss.ErrInvalidState)
	}

	if fileIndex < w.current {
		return Action[int]{}, fmt.Errorf("file index %d does not follow %d: %w", fileIndex, w.current, rgss.ErrInvalidState)
	}
	if fileIndex > w.current {
		for _, f := range w.files[w.current+1 : fileIndex] {
			if f.Size != 0 {
				return Action[int]{}, fmt.Errorf("file index %d skips %q: %w", fileIndex, f.Name, rgss.ErrInvalidState)
			}
		}
		if prev := w.files[w.current]; w.written != prev.Size {
			return Action[int]{}, &rgss.FileDataSizeMismatchError{Actual: uint64(w.written), Expected: prev.Size}
		}
		w.current = fileIndex
		w.written = 0
		w.cipher = rgss.FileCipher{Key: w.files[fileIndex].Key}
	}

	f := w.files[w.current]
	if n < 0 || uint64(w.written)+uint64(n) > uint64(f.Size) {
		return Action[int]{}, &rgss.FileDataSizeMismatchError{
			Actual:   uint64(w.written) + uint64(max(n, 0)),
			Expected: f.Size,
		}
	}
	if n == 0 {
		return done(0), nil
	}

	space := w.buf.Space()
	if n > len(space) {
		return Action[int]{}, fmt.Errorf("write %d bytes with %d bytes of space: %w", n, len(space), rgss.ErrInvalidState)
	}
	w.cipher.Crypt(space[:n])
	w.buf.Fill(n)
	w.written += uint32(n)

	return done(n), nil
}

// Finish checks that every registered file received all of its data and
// asks for the staged bytes to be drained. A writer whose header was never
// started finishes without producing any bytes.
func (w *Writer3) Finish() (Action[struct{}], error) {
	switch w.phase {
	case writer3Register:
		w.phase = writer3Finished
		return done(struct{}{}), nil
	case writer3Header, writer3Table:
		if a, err := w.StepWriteFileHeaders(); err != nil || !a.IsDone() {
			return a, err
		}
		if err := w.checkComplete(); err != nil {
			return Action[struct{}]{}, err
		}
	case writer3Data:
		if err := w.checkComplete(); err != nil {
			return Action[struct{}]{}, err
		}
	}
	if w.buf.AvailableData() > 0 {
		return write[struct{}](), nil
	}
	w.phase = writer3Finished
	return done(struct{}{}), nil
}

// checkComplete verifies the current file is complete and every file after
// it is empty.
func (w *Writer3) checkComplete() error {
	if len(w.files) == 0 {
		return nil
	}
	if f := w.files[w.current]; w.written != f.Size {
		return &rgss.FileDataSizeMismatchError{Actual: uint64(w.written), Expected: f.Size}
	}
	for _, f := range w.files[w.current+1:] {
		if f.Size != 0 {
			return &rgss.FileDataSizeMismatchError{Actual: 0, Expected: f.Size}
		}
	}
	return nil
}
