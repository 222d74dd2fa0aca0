package archive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/karrick/godirwalk"
	"github.com/spf13/afero"
	"golang.org/x/text/unicode/norm"

	"github.com/ossyrian/rgssad/internal/parser"
	"github.com/ossyrian/rgssad/internal/rgss"
	rgsstypes "github.com/ossyrian/rgssad/internal/types"
)

// DefaultKey3 is the archive key used for new version 3 archives unless
// another one is configured.
const DefaultKey3 = rgss.DefaultKey

// ErrLocked means another process is writing the same archive.
var ErrLocked = errors.New("archive: output is locked")

// PackOptions configures Pack.
type PackOptions struct {
	Format rgsstypes.Format
	// Key is the archive key of version 3 archives.
	Key       uint32
	Overwrite bool
	// DryRun walks the input and reports what would be packed.
	DryRun bool
	Logger *slog.Logger
}

type packFile struct {
	name string
	path string
	size uint32
}

// Pack creates an archive at outPath on fsys from the regular files below
// srcDir. Entries are sorted by name and use backslash separators. The
// archive is written to a temporary file that replaces outPath once
// complete.
//
// On the OS filesystem the output is guarded by an advisory lock file,
// <outPath>.lock.
func Pack(ctx context.Context, fsys afero.Fs, srcDir, outPath string, opts PackOptions) (*rgsstypes.Archive, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("archive", outPath)

	if opts.Format != rgsstypes.FormatV1 && opts.Format != rgsstypes.FormatV3 {
		return nil, fmt.Errorf("cannot pack format %v: %w", opts.Format, rgss.ErrInvalidVersion)
	}

	files, err := collect(fsys, srcDir, outPath)
	if err != nil {
		return nil, err
	}
	logger.Info("packing",
		"input", srcDir,
		"format", opts.Format,
		"files", len(files),
		"dry_run", opts.DryRun,
	)

	a := &rgsstypes.Archive{Path: outPath, Format: opts.Format, Entries: make([]rgsstypes.Entry, 0, len(files))}
	if opts.Format == rgsstypes.FormatV3 {
		key := opts.Key
		a.Key = &key
	}
	for _, f := range files {
		e := rgsstypes.Entry{Name: f.name, Size: f.size}
		if opts.Format == rgsstypes.FormatV3 {
			e.Key = FileKey(opts.Key, f.name)
		}
		a.Entries = append(a.Entries, e)
	}
	if opts.DryRun {
		return a, nil
	}

	if isOsFs(fsys) {
		lock := flock.New(lockPath(outPath))
		locked, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to lock %s: %w", outPath, err)
		}
		if !locked {
			return nil, fmt.Errorf("%s: %w", outPath, ErrLocked)
		}
		defer os.Remove(lock.Path())
		defer lock.Unlock()
	}

	if !opts.Overwrite {
		if _, err := fsys.Stat(outPath); err == nil {
			return nil, fmt.Errorf("%s already exists, use --overwrite to replace it: %w", outPath, os.ErrExist)
		}
	}

	tmpPath := tempPath(outPath)
	if err := writeArchive(ctx, fsys, tmpPath, files, a, logger); err != nil {
		fsys.Remove(tmpPath)
		return nil, err
	}
	if err := fsys.Rename(tmpPath, outPath); err != nil {
		fsys.Remove(tmpPath)
		return nil, fmt.Errorf("failed to move archive into place: %w", err)
	}

	logger.Info("packed", "entries", len(a.Entries))
	return a, nil
}

func isOsFs(fsys afero.Fs) bool {
	_, ok := fsys.(*afero.OsFs)
	return ok
}

func lockPath(outPath string) string {
	return outPath + ".lock"
}

func tempPath(outPath string) string {
	return filepath.Join(filepath.Dir(outPath), fmt.Sprintf(".%s.%s.tmp", filepath.Base(outPath), uuid.New().String()[:8]))
}

// isPackOutput reports whether path is the archive being written or one of
// its lock and temporary files.
func isPackOutput(path, outPath string) bool {
	if path == outPath || path == lockPath(outPath) {
		return true
	}
	if filepath.Dir(path) != filepath.Dir(outPath) {
		return false
	}
	base := filepath.Base(path)
	prefix := "." + filepath.Base(outPath) + "."
	if !strings.HasPrefix(base, prefix) || !strings.HasSuffix(base, ".tmp") {
		return false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(base, prefix), ".tmp")
	return len(id) == 8 && strings.Trim(id, "0123456789abcdef") == ""
}

// collect walks srcDir and returns its regular files sorted by entry name.
func collect(fsys afero.Fs, srcDir, outPath string) ([]packFile, error) {
	absOut, err := filepath.Abs(outPath)
	if err != nil {
		return nil, err
	}

	var files []packFile
	add := func(path string, size int64) error {
		if abs, err := filepath.Abs(path); err == nil && isPackOutput(abs, absOut) {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if size > math.MaxUint32 {
			return fmt.Errorf("%s is %d bytes: %w", path, size, rgss.ErrFileDataTooLong)
		}
		files = append(files, packFile{
			name: ArchiveName(norm.NFC.String(filepath.ToSlash(rel))),
			path: path,
			size: uint32(size),
		})
		return nil
	}

	if isOsFs(fsys) {
		err = godirwalk.Walk(srcDir, &godirwalk.Options{
			Callback: func(path string, de *godirwalk.Dirent) error {
				if !de.IsRegular() {
					return nil
				}
				info, err := os.Stat(path)
				if err != nil {
					return err
				}
				return add(path, info.Size())
			},
		})
	} else {
		err = afero.Walk(fsys, srcDir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			return add(path, info.Size())
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", srcDir, err)
	}

	slices.SortFunc(files, func(a, b packFile) int {
		return strings.Compare(a.name, b.name)
	})
	return files, nil
}

func writeArchive(ctx context.Context, fsys afero.Fs, path string, files []packFile, a *rgsstypes.Archive, logger *slog.Logger) error {
	out, err := fsys.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer out.Close()

	bw := bufio.NewWriterSize(out, 64*1024)
	if a.Format == rgsstypes.FormatV3 {
		err = writeArchive3(ctx, fsys, bw, files, a, logger)
	} else {
		err = writeArchive1(ctx, fsys, bw, files, logger)
	}
	if err != nil {
		return err
	}

	if err := out.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	return out.Close()
}

func writeArchive1(ctx context.Context, fsys afero.Fs, w io.Writer, files []packFile, logger *slog.Logger) error {
	pw := parser.NewWriter(w, parser.WithLogger(logger))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := copyFile(fsys, f, func(r io.Reader) error {
			return pw.WriteEntry(f.name, f.size, r)
		}); err != nil {
			return err
		}
	}
	return pw.Finish()
}

func writeArchive3(ctx context.Context, fsys afero.Fs, w io.Writer, files []packFile, a *rgsstypes.Archive, logger *slog.Logger) error {
	pw := parser.NewWriter3(w, *a.Key, parser.WithLogger(logger))
	for i, f := range files {
		if err := pw.AddFile(f.name, f.size, a.Entries[i].Key); err != nil {
			return err
		}
	}
	if err := pw.WriteHeader(); err != nil {
		return err
	}
	for i, f := range pw.Files() {
		a.Entries[i].Offset = f.Offset
	}

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := copyFile(fsys, f, func(r io.Reader) error {
			return pw.WriteFile(i, r)
		}); err != nil {
			return err
		}
	}
	return pw.Finish()
}

func copyFile(fsys afero.Fs, f packFile, write func(io.Reader) error) error {
	in, err := fsys.Open(f.path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.path, err)
	}
	defer in.Close()
	return write(in)
}

// FileKey derives the data key of a version 3 file from the archive key
// and the entry name, so that packing the same input twice gives the same
// archive.
func FileKey(archiveKey uint32, name string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(name))
	return h.Sum32() ^ archiveKey
}
