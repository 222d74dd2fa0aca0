package sansio

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ossyrian/rgssad/internal/rgss"
)

type readerPhase uint8

const (
	phaseHeader readerPhase = iota
	phaseFileHeader
	phaseFileData
	phaseEnd
)

// Reader is the state machine for version 1 (rgssad/rgss2a) archives.
type Reader struct {
	opts options
	buf  *rgss.Buffer

	phase     readerPhase
	cipher    rgss.FileCipher
	remaining uint32

	// position is the stream position of the first byte of buf.Data().
	position         uint64
	nextFilePosition uint64
	seekPending      bool
	eof              bool

	// key is the archive-wide rotating key, advanced by every header field.
	key uint32
}

// NewReader returns a reader positioned at the start of an archive.
func NewReader(opts ...Option) *Reader {
	o := newOptions(opts)
	return &Reader{
		opts: o,
		buf:  rgss.NewBuffer(o.bufferCapacity),
		key:  rgss.DefaultKey,
	}
}

// Space returns the region the driver should read into.
func (r *Reader) Space() []byte {
	return r.buf.Space()
}

// Fill commits n bytes read into Space. Fill(0) reports end of stream.
func (r *Reader) Fill(n int) {
	if n == 0 {
		r.eof = true
		return
	}
	r.eof = false
	r.buf.Fill(n)
}

// AvailableData returns the number of buffered, unparsed bytes.
func (r *Reader) AvailableData() int {
	return r.buf.AvailableData()
}

// FinishSeek tells the reader that the requested seek completed.
// Buffered bytes are dropped.
func (r *Reader) FinishSeek() error {
	if !r.seekPending {
		return fmt.Errorf("finish seek without a seek request: %w", rgss.ErrInvalidState)
	}
	r.seekPending = false
	r.position = r.nextFilePosition
	r.eof = false
	r.buf.Reset()
	return nil
}

// HeaderRead reports whether the archive header has been validated.
func (r *Reader) HeaderRead() bool {
	return r.phase != phaseHeader
}

// Position returns the stream position the reader has parsed up to.
func (r *Reader) Position() uint64 {
	return r.position
}

// StepReadHeader reads and validates the archive header.
// Once the header has been read it returns ActionDone without doing anything.
// It never requests a seek.
func (r *Reader) StepReadHeader() (Action[struct{}], error) {
	if r.phase != phaseHeader {
		return done(struct{}{}), nil
	}

	data := r.buf.Data()
	if len(data) < rgss.HeaderLen {
		if r.eof {
			return Action[struct{}]{}, fmt.Errorf("read header: %w", io.ErrUnexpectedEOF)
		}
		return reserve[struct{}](r.buf, rgss.HeaderLen-len(data)), nil
	}

	magic := [rgss.MagicLen]byte(data[:rgss.MagicLen])
	if magic != rgss.Magic {
		return Action[struct{}]{}, &rgss.InvalidMagicError{Magic: magic}
	}
	if version := data[rgss.MagicLen]; version != rgss.Version1 {
		return Action[struct{}]{}, &rgss.InvalidVersionError{Version: version}
	}

	r.buf.Consume(rgss.HeaderLen)
	r.position = rgss.HeaderLen
	r.nextFilePosition = rgss.HeaderLen
	r.phase = phaseFileHeader

	return done(struct{}{}), nil
}

// StepReadFileHeader reads the next entry header, reading the archive header
// first if needed. A nil header means the archive has no more entries.
//
// If the previous entry's data was not read to the end, a seek to the next
// header is requested.
func (r *Reader) StepReadFileHeader() (Action[*rgss.FileHeader], error) {
	for {
		switch r.phase {
		case phaseHeader:
			a, err := r.StepReadHeader()
			if err != nil || !a.IsDone() {
				return pending[*rgss.FileHeader](a), err
			}
			continue
		case phaseFileData:
			if r.position != r.nextFilePosition {
				r.seekPending = true
				return seek[*rgss.FileHeader](r.nextFilePosition), nil
			}
			r.phase = phaseFileHeader
			continue
		case phaseEnd:
			return done[*rgss.FileHeader](nil), nil
		}
		break
	}

	data := r.buf.Data()
	if len(data) < rgss.U32Len {
		if r.eof {
			// Only a stream that ends exactly on an entry boundary is a
			// well-formed end of archive.
			if len(data) == 0 {
				r.phase = phaseEnd
				return done[*rgss.FileHeader](nil), nil
			}
			return Action[*rgss.FileHeader]{}, fmt.Errorf("read file name length: %w", io.ErrUnexpectedEOF)
		}
		return reserve[*rgss.FileHeader](r.buf, rgss.U32Len-len(data)), nil
	}

	key := r.key
	nameLen, key := rgss.CryptU32(key, binary.LittleEndian.Uint32(data))
	if err := r.opts.nameLenError(nameLen); err != nil {
		return Action[*rgss.FileHeader]{}, err
	}

	headerLen := 2*rgss.U32Len + int(nameLen)
	if len(data) < headerLen {
		if r.eof {
			return Action[*rgss.FileHeader]{}, fmt.Errorf("read file header: %w", io.ErrUnexpectedEOF)
		}
		return reserve[*rgss.FileHeader](r.buf, headerLen-len(data)), nil
	}

	nameBytes := make([]byte, nameLen)
	copy(nameBytes, data[rgss.U32Len:])
	key = rgss.CryptNameBytes(key, nameBytes)
	name, err := decodeName(nameBytes)
	if err != nil {
		return Action[*rgss.FileHeader]{}, err
	}

	size, key := rgss.CryptU32(key, binary.LittleEndian.Uint32(data[rgss.U32Len+int(nameLen):]))

	r.buf.Consume(headerLen)
	r.position += uint64(headerLen)
	r.nextFilePosition += uint64(headerLen) + uint64(size)
	r.key = key
	r.cipher = rgss.FileCipher{Key: key}
	r.remaining = size
	r.phase = phaseFileData

	return done(&rgss.FileHeader{Name: name, Size: size}), nil
}

// StepReadFileData decrypts data of the current entry into p and returns
// the number of bytes produced. It returns 0 once the entry is exhausted,
// or when no entry header has been read. It never requests a seek.
func (r *Reader) StepReadFileData(p []byte) (Action[int], error) {
	if r.phase == phaseHeader {
		a, err := r.StepReadHeader()
		if err != nil || !a.IsDone() {
			return pending[int](a), err
		}
	}
	if r.phase != phaseFileData || r.remaining == 0 || len(p) == 0 {
		return done(0), nil
	}

	data := r.buf.Data()
	if len(data) == 0 {
		if r.eof {
			return Action[int]{}, fmt.Errorf("read file data: %w", io.ErrUnexpectedEOF)
		}
		return read[int](clampRemaining(r.remaining, len(r.buf.Space()))), nil
	}

	n := clampRemaining(r.remaining, min(len(data), len(p)))
	copy(p[:n], data[:n])
	r.cipher.Crypt(p[:n])
	r.remaining -= uint32(n)
	r.buf.Consume(n)
	r.position += uint64(n)

	return done(n), nil
}
