package parser

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/ossyrian/rgssad/internal/rgss"
	"github.com/ossyrian/rgssad/internal/sansio"
)

// Writer writes version 1 (rgssad/rgss2a) archives to an io.Writer.
//
// Entries are written with WriteFileHeader followed by exactly Size bytes
// passed to Write, or with WriteEntry. Finish must be called at the end.
type Writer struct {
	w      io.Writer
	m      *sansio.Writer
	logger *slog.Logger

	entries int
}

// NewWriter returns a writer producing a new archive on w.
func NewWriter(w io.Writer, opts ...Option) *Writer {
	s := newSettings(opts)
	return &Writer{
		w:      w,
		m:      sansio.NewWriter(s.machine...),
		logger: s.logger,
	}
}

// WriteHeader stages the archive header. Calling it is optional.
func (w *Writer) WriteHeader() error {
	if _, err := flush(w.w, w.m, w.m.StepWriteHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// WriteFileHeader starts a new entry of the given size.
func (w *Writer) WriteFileHeader(name string, size uint32) error {
	_, err := flush(w.w, w.m, func() (sansio.Action[struct{}], error) {
		return w.m.StepWriteFileHeader(name, size)
	})
	if err != nil {
		return fmt.Errorf("failed to write header of %q: %w", name, err)
	}
	w.entries++
	w.logger.Debug("wrote entry header",
		"name", name,
		"size", size,
	)
	return nil
}

// Write encrypts p as data of the current entry.
func (w *Writer) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		space := w.m.Space()
		if len(space) == 0 {
			if err := drain(w.w, w.m); err != nil {
				return written, err
			}
			continue
		}

		n := copy(space, p[written:])
		if _, err := w.m.StepWriteFileData(n); err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}

// WriteEntry writes a complete entry whose data is read from r.
func (w *Writer) WriteEntry(name string, size uint32, r io.Reader) error {
	if err := w.WriteFileHeader(name, size); err != nil {
		return err
	}
	n, err := io.CopyN(w, r, int64(size))
	if err == io.EOF {
		return fmt.Errorf("failed to write data of %q: %w", name,
			&rgss.FileDataSizeMismatchError{Actual: uint64(n), Expected: size})
	}
	if err != nil {
		return fmt.Errorf("failed to write data of %q: %w", name, err)
	}
	return nil
}

// Finish writes out everything staged and flushes w if it is buffered.
// It fails if the current entry is incomplete.
func (w *Writer) Finish() error {
	if _, err := flush(w.w, w.m, w.m.Finish); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := flushTransport(w.w); err != nil {
		return err
	}
	w.logger.Info("wrote archive", "entries", w.entries)
	return nil
}
