package archive

import (
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/ossyrian/rgssad/internal/parser"
	rgsstypes "github.com/ossyrian/rgssad/internal/types"
)

// List reads the entry table of the archive at path without extracting
// any data.
func List(fsys afero.Fs, path string, logger *slog.Logger) (*rgsstypes.Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("archive", path)

	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	format, err := DetectVersion(f)
	if err != nil {
		return nil, err
	}
	a := &rgsstypes.Archive{Path: path, Format: format, Entries: []rgsstypes.Entry{}}

	switch format {
	case rgsstypes.FormatV1:
		r := parser.NewReader(f, parser.WithLogger(logger))
		for {
			e, err := r.Next()
			if err != nil {
				return nil, err
			}
			if e == nil {
				break
			}
			a.Entries = append(a.Entries, rgsstypes.Entry{Name: e.Name, Size: e.Size})
		}

	case rgsstypes.FormatV3:
		r := parser.NewReader3(f, parser.WithLogger(logger))
		headers, err := r.ReadTable()
		if err != nil {
			return nil, err
		}
		key, _ := r.Key()
		a.Key = &key
		for _, h := range headers {
			a.Entries = append(a.Entries, rgsstypes.Entry{
				Name:   h.Name,
				Size:   h.Size,
				Offset: h.Offset,
				Key:    h.Key,
			})
		}
	}

	return a, nil
}
