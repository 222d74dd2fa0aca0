package rgsstypes

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Archive is the summary of an archive's contents.
type Archive struct {
	Path   string `json:"path"`
	Format Format `json:"format"`
	// Key is the archive key of version 3 archives.
	Key     *uint32 `json:"key,omitempty"`
	Entries []Entry `json:"entries"`
}

// Entry describes one archive member.
type Entry struct {
	Name string `json:"name"`
	Size uint32 `json:"size"`
	// Offset and Key are only known for version 3 archives.
	Offset uint32 `json:"offset,omitempty"`
	Key    uint32 `json:"key,omitempty"`
}

// Format is the on-disk archive format.
type Format int

const (
	FormatUnknown Format = iota
	// FormatV1 covers rgssad (RPG Maker XP) and rgss2a (RPG Maker VX).
	FormatV1
	// FormatV3 is rgss3a (RPG Maker VX Ace).
	FormatV3
)

func (f Format) String() string {
	switch f {
	case FormatV1:
		return "rgssad"
	case FormatV3:
		return "rgss3a"
	default:
		return "Unknown"
	}
}

// Version returns the version byte stored in the archive header.
func (f Format) Version() byte {
	switch f {
	case FormatV1:
		return 1
	case FormatV3:
		return 3
	default:
		return 0
	}
}

func (f Format) MarshalText() ([]byte, error) {
	if f == FormatUnknown {
		return nil, fmt.Errorf("cannot marshal format %d", int(f))
	}
	return []byte(f.String()), nil
}

// FormatFromVersion maps an archive version byte to its Format.
func FormatFromVersion(v byte) Format {
	switch v {
	case 1:
		return FormatV1
	case 3:
		return FormatV3
	default:
		return FormatUnknown
	}
}

// FormatFromPath guesses the format from a file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".rgssad", ".rgss2a":
		return FormatV1
	case ".rgss3a":
		return FormatV3
	default:
		return FormatUnknown
	}
}
