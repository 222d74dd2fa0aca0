package parser

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/ossyrian/rgssad/internal/rgss"
	"github.com/ossyrian/rgssad/internal/sansio"
)

// Writer3 writes version 3 (rgss3a) archives to an io.Writer.
//
// Every file is registered with AddFile first. WriteFile then supplies the
// data of each file in registration order, and Finish completes the archive.
type Writer3 struct {
	w      io.Writer
	m      *sansio.Writer3
	logger *slog.Logger
}

// NewWriter3 returns a writer producing a new archive with the given
// archive key on w.
func NewWriter3(w io.Writer, key uint32, opts ...Option) *Writer3 {
	s := newSettings(opts)
	return &Writer3{
		w:      w,
		m:      sansio.NewWriter3(key, s.machine...),
		logger: s.logger,
	}
}

// AddFile registers a file of the given size, encrypted with key.
func (w *Writer3) AddFile(name string, size uint32, key uint32) error {
	if err := w.m.AddFile(name, size, key); err != nil {
		return fmt.Errorf("failed to add %q: %w", name, err)
	}
	return nil
}

// Files returns the registered files, with offsets once WriteHeader ran.
func (w *Writer3) Files() []rgss.FileHeader3 {
	return w.m.Files()
}

// WriteHeader writes the archive header and the file table. Calling it is
// optional: WriteFile writes them on first use.
func (w *Writer3) WriteHeader() error {
	if _, err := flush(w.w, w.m, w.m.StepWriteHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := flush(w.w, w.m, w.m.StepWriteFileHeaders); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	return nil
}

// FileWriter selects file i and returns a writer for its data. Files must
// be written in registration order; empty files may be skipped.
//
// The returned writer reports would-block errors of the transport together
// with the number of bytes it consumed, so writing can resume from there.
func (w *Writer3) FileWriter(i int) (io.Writer, error) {
	if err := w.WriteHeader(); err != nil {
		return nil, err
	}
	if _, err := w.m.StepWriteFileData(i, 0); err != nil {
		return nil, fmt.Errorf("failed to start file %d: %w", i, err)
	}
	return &fileWriter3{w: w, index: i}, nil
}

// WriteFile writes the data of file i, read from r.
func (w *Writer3) WriteFile(i int, r io.Reader) error {
	fw, err := w.FileWriter(i)
	if err != nil {
		return err
	}

	f := w.m.Files()[i]
	n, err := io.CopyN(fw, r, int64(f.Size))
	if err == io.EOF {
		return fmt.Errorf("failed to write data of %q: %w", f.Name,
			&rgss.FileDataSizeMismatchError{Actual: uint64(n), Expected: f.Size})
	}
	if err != nil {
		return fmt.Errorf("failed to write data of %q: %w", f.Name, err)
	}

	w.logger.Debug("wrote file",
		"name", f.Name,
		"size", f.Size,
		"offset", f.Offset,
	)
	return nil
}

// Finish writes out everything staged and flushes w if it is buffered. It
// fails unless every registered file received all of its data.
func (w *Writer3) Finish() error {
	if _, err := flush(w.w, w.m, w.m.Finish); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := flushTransport(w.w); err != nil {
		return err
	}
	w.logger.Info("wrote archive",
		"files", len(w.m.Files()),
		"key", fmt.Sprintf("%#08x", w.m.Key()),
	)
	return nil
}

// fileWriter3 adapts one file of a Writer3 to io.Writer.
type fileWriter3 struct {
	w     *Writer3
	index int
}

func (fw *fileWriter3) Write(p []byte) (int, error) {
	m := fw.w.m
	written := 0
	for written < len(p) {
		space := m.Space()
		if len(space) == 0 {
			if err := drain(fw.w.w, m); err != nil {
				return written, err
			}
			continue
		}

		n := copy(space, p[written:])
		if _, err := m.StepWriteFileData(fw.index, n); err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}
