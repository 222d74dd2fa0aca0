package rgss

// FileHeader describes an entry of a version 1 archive.
type FileHeader struct {
	Name string
	Size uint32
}

// FileHeader3 describes a table record of a version 3 archive.
type FileHeader3 struct {
	Name string
	Size uint32
	// Key is the starting key of the file's data.
	Key uint32
	// Offset is the absolute position of the file's data.
	Offset uint32
}

// ParseVersion validates the magic number at the start of prefix and
// returns the archive version. prefix must hold at least HeaderLen bytes.
func ParseVersion(prefix []byte) (byte, error) {
	magic := [MagicLen]byte(prefix[:MagicLen])
	if magic != Magic {
		return 0, &InvalidMagicError{Magic: magic}
	}
	switch v := prefix[MagicLen]; v {
	case Version1, Version3:
		return v, nil
	default:
		return 0, &InvalidVersionError{Version: v}
	}
}
