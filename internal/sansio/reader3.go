package sansio

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ossyrian/rgssad/internal/rgss"
)

// fileCursor tracks progress through one file's data in a version 3 archive.
type fileCursor struct {
	offset uint32
	size   uint32
	// next is the absolute position of the next data byte to decrypt.
	next uint64
	// key is the file key rotated up to the 4-byte group containing next.
	key     uint32
	fileKey uint32
}

// describes reports whether c belongs to the file of h. Empty files share
// their offset with the file that follows them, so size and key are
// compared too.
func (c *fileCursor) describes(h *rgss.FileHeader3) bool {
	return c != nil && c.offset == h.Offset && c.size == h.Size && c.fileKey == h.Key
}

func (c *fileCursor) remaining() uint64 {
	return uint64(c.size) - (c.next - uint64(c.offset))
}

// Reader3 is the state machine for version 3 (rgss3a) archives.
//
// File data is addressed by absolute offset, so any file may be read at any
// time and in any order once its table record is known.
type Reader3 struct {
	opts options
	buf  *rgss.Buffer

	headerRead bool
	key        uint32

	// nextRecord is the position of the next table record; tableDone is set
	// once the sentinel record was consumed.
	nextRecord uint64
	tableDone  bool

	// cursor is the file whose data was read last, if any.
	cursor *fileCursor

	position    uint64
	seekTarget  uint64
	seekPending bool
	eof         bool
}

// NewReader3 returns a reader positioned at the start of an archive.
func NewReader3(opts ...Option) *Reader3 {
	o := newOptions(opts)
	return &Reader3{
		opts:       o,
		buf:        rgss.NewBuffer(o.bufferCapacity),
		nextRecord: rgss.HeaderLen3,
	}
}

// Space returns the region the driver should read into.
func (r *Reader3) Space() []byte {
	return r.buf.Space()
}

// Fill commits n bytes read into Space. Fill(0) reports end of stream.
func (r *Reader3) Fill(n int) {
	if n == 0 {
		r.eof = true
		return
	}
	r.eof = false
	r.buf.Fill(n)
}

// FinishSeek tells the reader that the requested seek completed.
// Buffered bytes are dropped.
func (r *Reader3) FinishSeek() error {
	if !r.seekPending {
		return fmt.Errorf("finish seek without a seek request: %w", rgss.ErrInvalidState)
	}
	r.seekPending = false
	r.position = r.seekTarget
	r.eof = false
	r.buf.Reset()
	return nil
}

// Key returns the archive key. It reports false until the header is read.
func (r *Reader3) Key() (uint32, bool) {
	return r.key, r.headerRead
}

func (r *Reader3) requestSeek(pos uint64) {
	r.seekTarget = pos
	r.seekPending = true
}

// StepReadHeader reads and validates the archive header and derives the
// archive key. Once the header has been read it returns ActionDone without
// doing anything. It never requests a seek.
func (r *Reader3) StepReadHeader() (Action[struct{}], error) {
	if r.headerRead {
		return done(struct{}{}), nil
	}

	data := r.buf.Data()
	if len(data) < rgss.HeaderLen3 {
		if r.eof {
			return Action[struct{}]{}, fmt.Errorf("read header: %w", io.ErrUnexpectedEOF)
		}
		return reserve[struct{}](r.buf, rgss.HeaderLen3-len(data)), nil
	}

	magic := [rgss.MagicLen]byte(data[:rgss.MagicLen])
	if magic != rgss.Magic {
		return Action[struct{}]{}, &rgss.InvalidMagicError{Magic: magic}
	}
	if version := data[rgss.MagicLen]; version != rgss.Version3 {
		return Action[struct{}]{}, &rgss.InvalidVersionError{Version: version}
	}
	seed := binary.LittleEndian.Uint32(data[rgss.MagicLen+1:])

	r.buf.Consume(rgss.HeaderLen3)
	r.position = rgss.HeaderLen3
	r.key = rgss.DeriveKey3(seed)
	r.headerRead = true

	return done(struct{}{}), nil
}

// StepReadFileHeader reads the next table record, reading the archive
// header first if needed. A nil header means the table has ended.
// It requests a seek when file data was read since the last record.
func (r *Reader3) StepReadFileHeader() (Action[*rgss.FileHeader3], error) {
	if a, err := r.StepReadHeader(); err != nil || !a.IsDone() {
		return pending[*rgss.FileHeader3](a), err
	}
	if r.tableDone {
		return done[*rgss.FileHeader3](nil), nil
	}
	if r.position != r.nextRecord {
		r.requestSeek(r.nextRecord)
		return seek[*rgss.FileHeader3](r.nextRecord), nil
	}

	data := r.buf.Data()
	if len(data) < rgss.RecordPrefixLen3 {
		if r.eof {
			return Action[*rgss.FileHeader3]{}, fmt.Errorf("read table record: %w", io.ErrUnexpectedEOF)
		}
		return reserve[*rgss.FileHeader3](r.buf, rgss.RecordPrefixLen3-len(data)), nil
	}

	offset := binary.LittleEndian.Uint32(data[0:]) ^ r.key
	size := binary.LittleEndian.Uint32(data[4:]) ^ r.key
	fileKey := binary.LittleEndian.Uint32(data[8:]) ^ r.key
	nameLen := binary.LittleEndian.Uint32(data[12:]) ^ r.key

	if offset == 0 {
		r.buf.Consume(rgss.RecordPrefixLen3)
		r.position += rgss.RecordPrefixLen3
		r.nextRecord = r.position
		r.tableDone = true
		return done[*rgss.FileHeader3](nil), nil
	}

	if err := r.opts.nameLenError(nameLen); err != nil {
		return Action[*rgss.FileHeader3]{}, err
	}
	recordLen := rgss.RecordPrefixLen3 + int(nameLen)
	if len(data) < recordLen {
		if r.eof {
			return Action[*rgss.FileHeader3]{}, fmt.Errorf("read table record: %w", io.ErrUnexpectedEOF)
		}
		return reserve[*rgss.FileHeader3](r.buf, recordLen-len(data)), nil
	}

	nameBytes := make([]byte, nameLen)
	copy(nameBytes, data[rgss.RecordPrefixLen3:recordLen])
	rgss.CryptNameBytes3(r.key, nameBytes)
	name, err := decodeName(nameBytes)
	if err != nil {
		return Action[*rgss.FileHeader3]{}, err
	}

	r.buf.Consume(recordLen)
	r.position += uint64(recordLen)
	r.nextRecord = r.position

	return done(&rgss.FileHeader3{
		Name:   name,
		Size:   size,
		Key:    fileKey,
		Offset: offset,
	}), nil
}

// SeekFileData positions h's data at rel bytes from its start, so that the
// next StepReadFileData for h continues from there.
func (r *Reader3) SeekFileData(h *rgss.FileHeader3, rel uint64) error {
	if rel > uint64(h.Size) {
		return fmt.Errorf("seek to %d past end of %q (%d bytes): %w", rel, h.Name, h.Size, rgss.ErrInvalidState)
	}
	r.cursor = &fileCursor{
		offset:  h.Offset,
		size:    h.Size,
		next:    uint64(h.Offset) + rel,
		key:     rgss.AdvanceN(h.Key, rel/rgss.U32Len),
		fileKey: h.Key,
	}
	return nil
}

// StepReadFileData decrypts data of the file described by h into p and
// returns the number of bytes produced, or 0 at the end of the file.
//
// Switching to a different file restarts at that file's first byte. Reading
// table records in between is allowed; the reader seeks back as needed.
func (r *Reader3) StepReadFileData(h *rgss.FileHeader3, p []byte) (Action[int], error) {
	if a, err := r.StepReadHeader(); err != nil || !a.IsDone() {
		return pending[int](a), err
	}

	if !r.cursor.describes(h) {
		r.cursor = &fileCursor{
			offset:  h.Offset,
			size:    h.Size,
			next:    uint64(h.Offset),
			key:     h.Key,
			fileKey: h.Key,
		}
	}
	c := r.cursor

	remaining := c.remaining()
	if remaining == 0 || len(p) == 0 {
		return done(0), nil
	}
	if r.position != c.next {
		r.requestSeek(c.next)
		return seek[int](c.next), nil
	}

	data := r.buf.Data()
	if len(data) == 0 {
		if r.eof {
			return Action[int]{}, fmt.Errorf("read data of %q: %w", h.Name, io.ErrUnexpectedEOF)
		}
		return read[int](int(min(remaining, uint64(len(r.buf.Space()))))), nil
	}

	n := int(min(remaining, uint64(min(len(data), len(p)))))
	copy(p[:n], data[:n])

	// The counter follows the absolute position: the buffer is shared by
	// every file, so it cannot be assumed to start at zero.
	cipher := rgss.FileCipher{
		Key:     c.key,
		Counter: uint8((r.position - uint64(c.offset)) % rgss.U32Len),
	}
	cipher.Crypt(p[:n])

	r.buf.Consume(n)
	r.position += uint64(n)
	c.next = r.position
	c.key = cipher.Key

	return done(n), nil
}
