package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/ossyrian/rgssad/internal/parser"
	"github.com/ossyrian/rgssad/internal/rgss"
	rgsstypes "github.com/ossyrian/rgssad/internal/types"
)

// UnpackOptions configures Unpack.
type UnpackOptions struct {
	// Parallel is the number of workers extracting version 3 archives.
	// Each worker opens the archive on its own. Values below 1 mean 1.
	Parallel int
	// Overwrite allows replacing existing files.
	Overwrite bool
	// DryRun decrypts everything but writes nothing.
	DryRun bool
	// Match restricts extraction to entries matching a path.Match pattern.
	Match  string
	Logger *slog.Logger
}

// Unpack extracts the archive at archivePath into outDir, both on fsys.
// It returns a summary of the extracted entries.
func Unpack(ctx context.Context, fsys afero.Fs, archivePath, outDir string, opts UnpackOptions) (*rgsstypes.Archive, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("archive", archivePath)

	if err := checkPattern(opts.Match); err != nil {
		return nil, err
	}

	f, err := fsys.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	format, err := DetectVersion(f)
	if err != nil {
		return nil, err
	}
	logger.Info("unpacking",
		"format", format,
		"output", outDir,
		"dry_run", opts.DryRun,
	)

	u := &unpacker{fsys: fsys, outDir: outDir, opts: opts, logger: logger}
	a := &rgsstypes.Archive{Path: archivePath, Format: format, Entries: []rgsstypes.Entry{}}
	switch format {
	case rgsstypes.FormatV1:
		err = u.unpack1(ctx, f, a)
	case rgsstypes.FormatV3:
		err = u.unpack3(ctx, f, archivePath, a)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("unpacked", "entries", len(a.Entries))
	return a, nil
}

type unpacker struct {
	fsys   afero.Fs
	outDir string
	opts   UnpackOptions
	logger *slog.Logger
}

func (u *unpacker) unpack1(ctx context.Context, rs io.ReadSeeker, a *rgsstypes.Archive) error {
	r := parser.NewReader(rs, parser.WithLogger(u.logger))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		e, err := r.Next()
		if err != nil {
			return err
		}
		if e == nil {
			return nil
		}

		if !matchName(u.opts.Match, e.Name) {
			continue
		}

		if err := u.extract(e.Name, e); err != nil {
			return err
		}
		a.Entries = append(a.Entries, rgsstypes.Entry{Name: e.Name, Size: e.Size})
	}
}

func (u *unpacker) unpack3(ctx context.Context, rs io.ReadSeeker, archivePath string, a *rgsstypes.Archive) error {
	r := parser.NewReader3(rs, parser.WithLogger(u.logger))
	headers, err := r.ReadTable()
	if err != nil {
		return err
	}
	key, _ := r.Key()
	a.Key = &key

	headers, err = Select(headers, func(h *rgss.FileHeader3) string { return h.Name }, u.opts.Match)
	if err != nil {
		return err
	}
	for _, h := range headers {
		a.Entries = append(a.Entries, rgsstypes.Entry{
			Name:   h.Name,
			Size:   h.Size,
			Offset: h.Offset,
			Key:    h.Key,
		})
	}

	workers := min(max(u.opts.Parallel, 1), max(len(headers), 1))
	if workers == 1 {
		for _, h := range headers {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := u.extract(h.Name, r.Open(h)); err != nil {
				return err
			}
		}
		return nil
	}

	u.logger.Debug("extracting in parallel", "workers", workers)

	ch := make(chan *rgss.FileHeader3)
	eg, ctx := errgroup.WithContext(ctx)
	for range workers {
		eg.Go(func() error {
			f, err := u.fsys.Open(archivePath)
			if err != nil {
				return fmt.Errorf("failed to open archive: %w", err)
			}
			defer f.Close()

			wr := parser.NewReader3(f, parser.WithLogger(u.logger))
			if err := wr.ReadHeader(); err != nil {
				return err
			}
			for h := range ch {
				if err := u.extract(h.Name, wr.Open(h)); err != nil {
					return err
				}
			}
			return nil
		})
	}

	eg.Go(func() error {
		defer close(ch)
		for _, h := range headers {
			select {
			case ch <- h:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	return eg.Wait()
}

// extract copies the data of one entry to its place below the output
// directory.
func (u *unpacker) extract(name string, data io.Reader) error {
	rel, err := SafePath(name)
	if err != nil {
		return err
	}
	dst := filepath.Join(u.outDir, filepath.FromSlash(rel))

	if u.opts.DryRun {
		if _, err := io.Copy(io.Discard, data); err != nil {
			return fmt.Errorf("failed to decrypt %q: %w", name, err)
		}
		u.logger.Debug("would extract", "name", name, "path", dst)
		return nil
	}

	if err := u.fsys.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %q: %w", name, err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !u.opts.Overwrite {
		flags |= os.O_EXCL
	}
	out, err := u.fsys.OpenFile(dst, flags, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s already exists, use --overwrite to replace it: %w", dst, err)
		}
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, data); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract %q: %w", name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}

	u.logger.Debug("extracted", "name", name, "path", dst)
	return nil
}
