package rgss

// Magic is the magic number at the start of every archive ("RGSSAD\0").
var Magic = [MagicLen]byte{'R', 'G', 'S', 'S', 'A', 'D', 0}

const (
	// MagicLen is the length of Magic in bytes.
	MagicLen = 7

	// Version1 is the version byte of rgssad/rgss2a archives.
	Version1 byte = 1
	// Version3 is the version byte of rgss3a archives.
	Version3 byte = 3

	// U32Len is the encoded size of every integer field.
	U32Len = 4

	// HeaderLen is the size of a version 1 header: magic + version.
	HeaderLen = MagicLen + 1
	// HeaderLen3 is the size of a version 3 header: magic + version + key seed.
	HeaderLen3 = MagicLen + 1 + U32Len

	// RecordPrefixLen3 is the fixed part of a version 3 table record:
	// offset, size, file key and name length.
	RecordPrefixLen3 = 4 * U32Len

	// DefaultKey is the initial key of every version 1 archive.
	DefaultKey uint32 = 0xDEADCAFE

	// MaxFileNameLen is the default cap on encoded file name length.
	MaxFileNameLen uint32 = 4096
)
