package parser

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/ossyrian/rgssad/internal/rgss"
	"github.com/ossyrian/rgssad/internal/sansio"
)

// Reader reads version 1 (rgssad/rgss2a) archives from an io.ReadSeeker.
type Reader struct {
	rs     io.ReadSeeker
	m      *sansio.Reader
	logger *slog.Logger

	// entries counts the headers read so far; an Entry only reads data
	// while it is the latest one.
	entries int
}

// NewReader returns a reader for the archive in rs, which must be
// positioned at its first byte.
func NewReader(rs io.ReadSeeker, opts ...Option) *Reader {
	s := newSettings(opts)
	return &Reader{
		rs:     rs,
		m:      sansio.NewReader(s.machine...),
		logger: s.logger,
	}
}

// ReadHeader validates the archive header. Calling it is optional: Next
// reads the header on first use.
func (r *Reader) ReadHeader() error {
	if r.m.HeaderRead() {
		return nil
	}
	if _, err := step(r.rs, r.m, r.m.StepReadHeader); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	r.logger.Info("header is valid", "version", rgss.Version1)
	return nil
}

// Next returns the next entry, skipping whatever is left of the previous
// one. It returns nil, nil at the end of the archive.
func (r *Reader) Next() (*Entry, error) {
	if err := r.ReadHeader(); err != nil {
		return nil, err
	}

	h, err := step(r.rs, r.m, r.m.StepReadFileHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to read entry %d: %w", r.entries, err)
	}
	if h == nil {
		r.logger.Debug("end of archive", "entries", r.entries)
		return nil, nil
	}

	r.entries++
	r.logger.Debug("read entry header",
		"name", h.Name,
		"size", h.Size,
	)

	return &Entry{FileHeader: *h, r: r, index: r.entries}, nil
}

// Entry is an archive member. Its data can be read until the next call to
// Reader.Next.
type Entry struct {
	rgss.FileHeader

	r     *Reader
	index int
}

// Read reads decrypted data of the entry.
func (e *Entry) Read(p []byte) (int, error) {
	if e.index != e.r.entries {
		return 0, fmt.Errorf("read %q after moving to the next entry: %w", e.Name, rgss.ErrInvalidState)
	}
	if len(p) == 0 {
		return 0, nil
	}

	n, err := step(e.r.rs, e.r.m, func() (sansio.Action[int], error) {
		return e.r.m.StepReadFileData(p)
	})
	if err != nil {
		return n, fmt.Errorf("failed to read data of %q: %w", e.Name, err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}
