package rgss

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrInvalidMagic means the archive does not start with Magic.
	ErrInvalidMagic = errors.New("rgss: invalid magic")
	// ErrInvalidVersion means the version byte is not supported.
	ErrInvalidVersion = errors.New("rgss: invalid version")
	// ErrFileNameTooLong means a file name exceeds the configured maximum.
	ErrFileNameTooLong = errors.New("rgss: file name too long")
	// ErrInvalidFileName means a file name is not valid UTF-8.
	ErrInvalidFileName = errors.New("rgss: invalid file name")
	// ErrFileDataSizeMismatch means the bytes supplied for a file differ from its declared size.
	ErrFileDataSizeMismatch = errors.New("rgss: file data size mismatch")
	// ErrFileDataTooLong means file offsets no longer fit in 32 bits.
	ErrFileDataTooLong = errors.New("rgss: file data too long")
	// ErrInvalidState means an operation was called out of sequence.
	ErrInvalidState = errors.New("rgss: invalid state")
	// ErrWouldBlock is returned by non-blocking transports that have no
	// progress to report yet. The operation can be retried as is.
	ErrWouldBlock = errors.New("rgss: operation would block")
)

// IsWouldBlock reports whether err belongs to the retry class.
func IsWouldBlock(err error) bool {
	return errors.Is(err, ErrWouldBlock) || errors.Is(err, os.ErrDeadlineExceeded)
}

// InvalidMagicError carries the magic that was read.
type InvalidMagicError struct {
	Magic [MagicLen]byte
}

func (e *InvalidMagicError) Error() string {
	return fmt.Sprintf("rgss: magic number %q is invalid", e.Magic[:])
}

func (e *InvalidMagicError) Is(target error) bool { return target == ErrInvalidMagic }

// InvalidVersionError carries the version byte that was read.
type InvalidVersionError struct {
	Version byte
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("rgss: version %d is invalid", e.Version)
}

func (e *InvalidVersionError) Is(target error) bool { return target == ErrInvalidVersion }

// FileNameTooLongError carries the offending length and the limit.
type FileNameTooLongError struct {
	Len uint64
	Max uint32
}

func (e *FileNameTooLongError) Error() string {
	return fmt.Sprintf("rgss: file name length %d is too long, max length is %d", e.Len, e.Max)
}

func (e *FileNameTooLongError) Is(target error) bool { return target == ErrFileNameTooLong }

// InvalidFileNameError carries the decrypted name bytes.
type InvalidFileNameError struct {
	Name []byte
}

func (e *InvalidFileNameError) Error() string {
	return fmt.Sprintf("rgss: file name %q is not valid UTF-8", e.Name)
}

func (e *InvalidFileNameError) Is(target error) bool { return target == ErrInvalidFileName }

// FileDataSizeMismatchError reports how many bytes were supplied for a file
// versus how many were declared.
type FileDataSizeMismatchError struct {
	Actual   uint64
	Expected uint32
}

func (e *FileDataSizeMismatchError) Error() string {
	return fmt.Sprintf("rgss: file data size mismatch, expected %d but got %d", e.Expected, e.Actual)
}

func (e *FileDataSizeMismatchError) Is(target error) bool { return target == ErrFileDataSizeMismatch }
