// Package archive implements the file-level operations of the rgssad tool:
// detecting, listing, unpacking and packing archives.
package archive

import (
	"fmt"
	"io"

	"github.com/ossyrian/rgssad/internal/rgss"
	rgsstypes "github.com/ossyrian/rgssad/internal/types"
)

// DetectVersion reads the archive header prefix from r and returns the
// archive format. r is positioned back at its start afterwards.
func DetectVersion(r io.ReadSeeker) (rgsstypes.Format, error) {
	prefix := make([]byte, rgss.HeaderLen)
	if _, err := io.ReadFull(r, prefix); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return rgsstypes.FormatUnknown, fmt.Errorf("failed to read header: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return rgsstypes.FormatUnknown, fmt.Errorf("failed to seek back to start: %w", err)
	}

	version, err := rgss.ParseVersion(prefix)
	if err != nil {
		return rgsstypes.FormatUnknown, err
	}
	return rgsstypes.FormatFromVersion(version), nil
}
