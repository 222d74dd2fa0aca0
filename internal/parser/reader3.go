package parser

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ossyrian/rgssad/internal/rgss"
	"github.com/ossyrian/rgssad/internal/sansio"
)

// Reader3 reads version 3 (rgss3a) archives from an io.ReadSeeker.
//
// Files may be opened in any order once their table record was read. A
// Reader3 is not safe for concurrent use; open the archive once per
// goroutine to extract in parallel.
type Reader3 struct {
	rs     io.ReadSeeker
	m      *sansio.Reader3
	logger *slog.Logger

	records int
	// active is the file the state machine is positioned in.
	active *File3
}

// NewReader3 returns a reader for the archive in rs, which must be
// positioned at its first byte.
func NewReader3(rs io.ReadSeeker, opts ...Option) *Reader3 {
	s := newSettings(opts)
	return &Reader3{
		rs:     rs,
		m:      sansio.NewReader3(s.machine...),
		logger: s.logger,
	}
}

// ReadHeader validates the archive header and derives the archive key.
// Calling it is optional: Next reads the header on first use.
func (r *Reader3) ReadHeader() error {
	if _, ok := r.m.Key(); ok {
		return nil
	}
	if _, err := step(r.rs, r.m, r.m.StepReadHeader); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	key, _ := r.m.Key()
	r.logger.Info("header is valid",
		"version", rgss.Version3,
		"key", fmt.Sprintf("%#08x", key),
	)
	return nil
}

// Key returns the archive key. It reports false until the header is read.
func (r *Reader3) Key() (uint32, bool) {
	return r.m.Key()
}

// Next returns the next table record, or nil, nil once the table ended.
func (r *Reader3) Next() (*rgss.FileHeader3, error) {
	if err := r.ReadHeader(); err != nil {
		return nil, err
	}

	h, err := step(r.rs, r.m, r.m.StepReadFileHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to read table record %d: %w", r.records, err)
	}
	if h == nil {
		r.logger.Info("read table", "files", r.records)
		return nil, nil
	}

	r.records++
	r.logger.Debug("read table record",
		"name", h.Name,
		"size", h.Size,
		"offset", h.Offset,
		"key", fmt.Sprintf("%#08x", h.Key),
	)
	return h, nil
}

// ReadTable reads every remaining table record.
func (r *Reader3) ReadTable() ([]*rgss.FileHeader3, error) {
	var headers []*rgss.FileHeader3
	for {
		h, err := r.Next()
		if err != nil {
			return nil, err
		}
		if h == nil {
			return headers, nil
		}
		headers = append(headers, h)
	}
}

// Open returns a handle reading the data of the file described by h.
func (r *Reader3) Open(h *rgss.FileHeader3) *File3 {
	return &File3{FileHeader3: *h, r: r}
}

// File3 reads the data of one file of a version 3 archive. Several handles
// of the same Reader3 can be used alternately; each keeps its own position.
type File3 struct {
	rgss.FileHeader3

	r   *Reader3
	pos int64
}

var (
	_ io.Reader = (*File3)(nil)
	_ io.Seeker = (*File3)(nil)
)

// Read reads decrypted file data.
func (f *File3) Read(p []byte) (int, error) {
	if f.pos >= int64(f.Size) {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	r := f.r
	if r.active != f {
		if err := r.m.SeekFileData(&f.FileHeader3, uint64(f.pos)); err != nil {
			return 0, err
		}
		r.active = f
	}

	n, err := step(r.rs, r.m, func() (sansio.Action[int], error) {
		return r.m.StepReadFileData(&f.FileHeader3, p)
	})
	f.pos += int64(n)
	if err != nil {
		return n, fmt.Errorf("failed to read data of %q: %w", f.Name, err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Seek sets the position for the next Read. Seeking past the end is
// allowed; reads there return io.EOF.
func (f *File3) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.pos + offset
	case io.SeekEnd:
		abs = int64(f.Size) + offset
	default:
		return 0, errors.New("parser: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("parser: negative position")
	}

	if abs != f.pos && f.r.active == f {
		f.r.active = nil
	}
	f.pos = abs
	return abs, nil
}
