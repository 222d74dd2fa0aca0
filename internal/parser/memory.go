package parser

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ossyrian/rgssad/internal/rgss"
)

// File is a decrypted archive member held in memory.
type File struct {
	Name string
	Data []byte
}

// ReadArchive decrypts a whole archive of either version held in data.
// Files for which skip returns true are left out; skip may be nil.
func ReadArchive(data []byte, skip func(name string, size uint32) bool, opts ...Option) ([]File, error) {
	if len(data) < rgss.HeaderLen {
		return nil, fmt.Errorf("failed to read header: %w", io.ErrUnexpectedEOF)
	}
	version, err := rgss.ParseVersion(data)
	if err != nil {
		return nil, err
	}
	if skip == nil {
		skip = func(string, uint32) bool { return false }
	}

	if version == rgss.Version3 {
		return readArchive3(data, skip, opts)
	}

	r := NewReader(bytes.NewReader(data), opts...)
	var files []File
	for {
		e, err := r.Next()
		if err != nil {
			return nil, err
		}
		if e == nil {
			return files, nil
		}
		if skip(e.Name, e.Size) {
			continue
		}
		if uint64(e.Size) > uint64(len(data)) {
			return nil, fmt.Errorf("size of %q is %d bytes but the archive has %d: %w", e.Name, e.Size, len(data), io.ErrUnexpectedEOF)
		}

		buf := make([]byte, e.Size)
		if _, err := io.ReadFull(e, buf); err != nil {
			return nil, fmt.Errorf("failed to read %q: %w", e.Name, err)
		}
		files = append(files, File{Name: e.Name, Data: buf})
	}
}

func readArchive3(data []byte, skip func(string, uint32) bool, opts []Option) ([]File, error) {
	r := NewReader3(bytes.NewReader(data), opts...)
	headers, err := r.ReadTable()
	if err != nil {
		return nil, err
	}

	var files []File
	for _, h := range headers {
		if skip(h.Name, h.Size) {
			continue
		}
		if end := uint64(h.Offset) + uint64(h.Size); end > uint64(len(data)) {
			return nil, fmt.Errorf("data of %q ends at %d but the archive has %d bytes: %w", h.Name, end, len(data), io.ErrUnexpectedEOF)
		}
		buf := make([]byte, h.Size)
		if _, err := io.ReadFull(r.Open(h), buf); err != nil {
			return nil, fmt.Errorf("failed to read %q: %w", h.Name, err)
		}
		files = append(files, File{Name: h.Name, Data: buf})
	}
	return files, nil
}
