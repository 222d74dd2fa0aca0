// Package parser drives the sans-I/O state machines over Go transports:
// io.ReadSeeker for reading, io.Writer for writing and byte slices for
// whole archives held in memory.
package parser

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ossyrian/rgssad/internal/rgss"
	"github.com/ossyrian/rgssad/internal/sansio"
)

// maxEmptyReads bounds how often a transport may report (0, nil) in a row
// before the driver gives up with io.ErrNoProgress.
const maxEmptyReads = 100

// Option configures a reader or writer.
type Option func(*settings)

type settings struct {
	logger  *slog.Logger
	machine []sansio.Option
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMachineOptions passes options through to the underlying state machine.
func WithMachineOptions(opts ...sansio.Option) Option {
	return func(s *settings) {
		s.machine = append(s.machine, opts...)
	}
}

func newSettings(opts []Option) settings {
	s := settings{logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

type readMachine interface {
	Space() []byte
	Fill(n int)
	FinishSeek() error
}

// step runs fn until it finishes, servicing its Read and Seek requests
// from rs. Transport errors are returned as is (wrapped), so a would-block
// error can be retried by calling the same method again.
func step[T any](rs io.ReadSeeker, m readMachine, fn func() (sansio.Action[T], error)) (T, error) {
	var zero T
	empty := 0
	for {
		a, err := fn()
		if err != nil {
			return zero, err
		}

		switch a.Kind {
		case sansio.ActionDone:
			return a.Value, nil

		case sansio.ActionRead:
			n, err := rs.Read(m.Space()[:a.N])
			if n > 0 {
				m.Fill(n)
				empty = 0
			}
			switch {
			case errors.Is(err, io.EOF):
				if n == 0 {
					m.Fill(0)
				}
			case err != nil:
				return zero, fmt.Errorf("failed to read archive: %w", err)
			case n == 0:
				empty++
				if empty >= maxEmptyReads {
					return zero, fmt.Errorf("failed to read archive: %w", io.ErrNoProgress)
				}
			}

		case sansio.ActionSeek:
			if _, err := rs.Seek(int64(a.Pos), io.SeekStart); err != nil {
				return zero, fmt.Errorf("failed to seek to %d: %w", a.Pos, err)
			}
			if err := m.FinishSeek(); err != nil {
				return zero, err
			}

		default:
			return zero, fmt.Errorf("unexpected %v action while reading: %w", a.Kind, rgss.ErrInvalidState)
		}
	}
}

type writeMachine interface {
	Data() []byte
	Consume(n int)
}

// drain writes the staged bytes of m to w once.
func drain(w io.Writer, m writeMachine) error {
	data := m.Data()
	if len(data) == 0 {
		return nil
	}
	n, err := w.Write(data)
	m.Consume(n)
	if err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("failed to write archive: %w", io.ErrShortWrite)
	}
	return nil
}

// flush runs fn until it finishes, draining staged bytes to w whenever it
// asks for a Write.
func flush[T any](w io.Writer, m writeMachine, fn func() (sansio.Action[T], error)) (T, error) {
	var zero T
	for {
		a, err := fn()
		if err != nil {
			return zero, err
		}

		switch a.Kind {
		case sansio.ActionDone:
			return a.Value, nil
		case sansio.ActionWrite:
			if len(m.Data()) == 0 {
				return zero, fmt.Errorf("write requested with nothing staged: %w", rgss.ErrInvalidState)
			}
			if err := drain(w, m); err != nil {
				return zero, err
			}
		default:
			return zero, fmt.Errorf("unexpected %v action while writing: %w", a.Kind, rgss.ErrInvalidState)
		}
	}
}

// flusher is implemented by buffered transports such as *bufio.Writer.
type flusher interface {
	Flush() error
}

func flushTransport(w io.Writer) error {
	if f, ok := w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("failed to flush archive: %w", err)
		}
	}
	return nil
}
