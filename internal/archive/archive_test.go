package archive_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossyrian/rgssad/internal/archive"
	"github.com/ossyrian/rgssad/internal/parser"
	"github.com/ossyrian/rgssad/internal/rgss"
	rgsstypes "github.com/ossyrian/rgssad/internal/types"
)

var gameFiles = map[string]string{
	"Data/Actors.rvdata2":           "actors",
	"Data/Map001.rvdata2":           "map one",
	"Graphics/Titles1/Castle.png":   "\x89PNG castle",
	"Graphics/Characters/!Door.png": "",
	"Audio/BGM/Theme1.ogg":          "OggS theme",
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func TestSafePath(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "Data\\Actors.rvdata2", want: "Data/Actors.rvdata2"},
		{name: "Graphics\\.\\Titles1\\x.png", want: "Graphics/Titles1/x.png"},
		{name: "a\\b\\..\\c", want: "a/c"},
		{name: "..\\evil.txt", wantErr: true},
		{name: "Data\\..\\..\\evil.txt", wantErr: true},
		{name: "\\etc\\passwd", wantErr: true},
		{name: "/etc/passwd", wantErr: true},
		{name: "C:\\Windows\\win.ini", wantErr: true},
		{name: "", wantErr: true},
		{name: ".", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := archive.SafePath(tt.name)
			if tt.wantErr {
				require.ErrorIs(t, err, archive.ErrUnsafePath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelect(t *testing.T) {
	names := []string{"Data\\Actors.rvdata2", "Data\\Map001.rvdata2", "Graphics\\x.png"}
	id := func(s string) string { return s }

	got, err := archive.Select(names, id, "")
	require.NoError(t, err)
	assert.Equal(t, names, got)

	got, err = archive.Select(names, id, "Data/*")
	require.NoError(t, err)
	assert.Equal(t, names[:2], got)

	_, err = archive.Select(names, id, "[")
	assert.Error(t, err)
}

func TestDetectVersion(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    rgsstypes.Format
		wantErr error
	}{
		{name: "version 1", input: "RGSSAD\x00\x01", want: rgsstypes.FormatV1},
		{name: "version 3", input: "RGSSAD\x00\x03\x00\x00\x00\x00", want: rgsstypes.FormatV3},
		{name: "version 2", input: "RGSSAD\x00\x02", wantErr: rgss.ErrInvalidVersion},
		{name: "zip", input: "PK\x03\x04\x14\x00\x00\x00", wantErr: rgss.ErrInvalidMagic},
		{name: "short", input: "RGSS", wantErr: io.ErrUnexpectedEOF},
		{name: "empty", input: "", wantErr: io.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bytes.NewReader([]byte(tt.input))
			got, err := archive.DetectVersion(r)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, int64(len(tt.input)), int64(r.Len()), "reader should be rewound")
		})
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	for _, format := range []rgsstypes.Format{rgsstypes.FormatV1, rgsstypes.FormatV3} {
		t.Run(format.String(), func(t *testing.T) {
			ctx := context.Background()
			src := writeTree(t, gameFiles)
			out := filepath.Join(t.TempDir(), "Game."+format.String())

			packed, err := archive.Pack(ctx, afero.NewOsFs(), src, out, archive.PackOptions{Format: format, Key: 0x694E})
			require.NoError(t, err)
			require.Len(t, packed.Entries, len(gameFiles))
			assert.Equal(t, "Audio\\BGM\\Theme1.ogg", packed.Entries[0].Name)

			listed, err := archive.List(afero.NewOsFs(), out, nil)
			require.NoError(t, err)
			assert.Equal(t, format, listed.Format)
			assert.Equal(t, packed.Entries, listed.Entries)
			if format == rgsstypes.FormatV3 {
				require.NotNil(t, listed.Key)
				assert.Equal(t, uint32(0x694E), *listed.Key)
			}

			dst := t.TempDir()
			unpacked, err := archive.Unpack(ctx, afero.NewOsFs(), out, dst, archive.UnpackOptions{Parallel: 3})
			require.NoError(t, err)
			assert.Len(t, unpacked.Entries, len(gameFiles))

			for name, content := range gameFiles {
				got, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(name)))
				require.NoError(t, err, name)
				assert.Equal(t, content, string(got), name)
			}
		})
	}
}

func TestPackIsDeterministic(t *testing.T) {
	src := writeTree(t, gameFiles)
	dir := t.TempDir()

	var archives [][]byte
	for _, name := range []string{"a.rgss3a", "b.rgss3a"} {
		out := filepath.Join(dir, name)
		_, err := archive.Pack(context.Background(), afero.NewOsFs(), src, out, archive.PackOptions{Format: rgsstypes.FormatV3, Key: archive.DefaultKey3})
		require.NoError(t, err)
		b, err := os.ReadFile(out)
		require.NoError(t, err)
		archives = append(archives, b)
	}
	assert.Equal(t, archives[0], archives[1])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"a.rgss3a", "b.rgss3a"}, names, "temporary and lock files should be removed")
}

func TestPackNormalizesNames(t *testing.T) {
	src := writeTree(t, map[string]string{"Data/cafe\u0301.txt": "x"})
	out := filepath.Join(t.TempDir(), "Game.rgssad")

	a, err := archive.Pack(context.Background(), afero.NewOsFs(), src, out, archive.PackOptions{Format: rgsstypes.FormatV1})
	require.NoError(t, err)
	require.Len(t, a.Entries, 1)
	assert.Equal(t, "Data\\caf\u00e9.txt", a.Entries[0].Name)
}

func TestPackSkipsOutputInsideInput(t *testing.T) {
	src := writeTree(t, gameFiles)
	out := filepath.Join(src, "Game.rgssad")

	_, err := archive.Pack(context.Background(), afero.NewOsFs(), src, out, archive.PackOptions{Format: rgsstypes.FormatV1})
	require.NoError(t, err)

	a, err := archive.Pack(context.Background(), afero.NewOsFs(), src, out, archive.PackOptions{Format: rgsstypes.FormatV1, Overwrite: true})
	require.NoError(t, err)
	assert.Len(t, a.Entries, len(gameFiles))
}

func TestPackKeepsFilesNamedLikeOutput(t *testing.T) {
	files := map[string]string{
		"Data/Actors.rvdata2":       "actors",
		"Game.rgssad.bak":           "backup",
		".Game.rgssad.notes.tmp":    "notes",
		".Game.rgssad.0123abcd.tmp": "stale",
		"Game.rgssad.lock":          "",
	}
	src := writeTree(t, files)
	out := filepath.Join(src, "Game.rgssad")

	a, err := archive.Pack(context.Background(), afero.NewOsFs(), src, out, archive.PackOptions{Format: rgsstypes.FormatV1})
	require.NoError(t, err)

	var names []string
	for _, e := range a.Entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{".Game.rgssad.notes.tmp", "Data\\Actors.rvdata2", "Game.rgssad.bak"}, names)
}

func TestPackOnMemFs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	for name, content := range gameFiles {
		require.NoError(t, afero.WriteFile(fsys, filepath.Join("/game", filepath.FromSlash(name)), []byte(content), 0o644))
	}
	require.NoError(t, fsys.MkdirAll("/out", 0o755))

	ctx := context.Background()
	packed, err := archive.Pack(ctx, fsys, "/game", "/out/Game.rgss3a", archive.PackOptions{Format: rgsstypes.FormatV3, Key: 0x694E})
	require.NoError(t, err)
	require.Len(t, packed.Entries, len(gameFiles))

	_, err = archive.Unpack(ctx, fsys, "/out/Game.rgss3a", "/extracted", archive.UnpackOptions{})
	require.NoError(t, err)
	for name, content := range gameFiles {
		got, err := afero.ReadFile(fsys, filepath.Join("/extracted", filepath.FromSlash(name)))
		require.NoError(t, err, name)
		assert.Equal(t, content, string(got), name)
	}

	entries, err := afero.ReadDir(fsys, "/out")
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files should be removed")
	assert.Equal(t, "Game.rgss3a", entries[0].Name())
}

func TestPackRefusals(t *testing.T) {
	src := writeTree(t, gameFiles)

	t.Run("existing output", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "Game.rgssad")
		require.NoError(t, os.WriteFile(out, []byte("keep me"), 0o644))

		_, err := archive.Pack(context.Background(), afero.NewOsFs(), src, out, archive.PackOptions{Format: rgsstypes.FormatV1})
		require.ErrorIs(t, err, os.ErrExist)

		b, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "keep me", string(b))
	})

	t.Run("locked output", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "Game.rgssad")
		lock := flock.New(out + ".lock")
		locked, err := lock.TryLock()
		require.NoError(t, err)
		require.True(t, locked)
		defer lock.Unlock()

		_, err = archive.Pack(context.Background(), afero.NewOsFs(), src, out, archive.PackOptions{Format: rgsstypes.FormatV1})
		require.ErrorIs(t, err, archive.ErrLocked)
	})

	t.Run("unknown format", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "Game.zip")
		_, err := archive.Pack(context.Background(), afero.NewOsFs(), src, out, archive.PackOptions{})
		require.ErrorIs(t, err, rgss.ErrInvalidVersion)
	})

	t.Run("dry run", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "Game.rgss3a")
		a, err := archive.Pack(context.Background(), afero.NewOsFs(), src, out, archive.PackOptions{Format: rgsstypes.FormatV3, DryRun: true})
		require.NoError(t, err)
		assert.Len(t, a.Entries, len(gameFiles))

		_, err = os.Stat(out)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

// memArchive builds an archive in memory and stores it on a fresh MemMapFs.
func memArchive(t *testing.T, format rgsstypes.Format, names []string) afero.Fs {
	t.Helper()
	var buf bytes.Buffer
	if format == rgsstypes.FormatV3 {
		w := parser.NewWriter3(&buf, 0xBADC0DE)
		for i, name := range names {
			require.NoError(t, w.AddFile(name, uint32(len(name)), uint32(i)))
		}
		for i, name := range names {
			require.NoError(t, w.WriteFile(i, bytes.NewReader([]byte(name))))
		}
		require.NoError(t, w.Finish())
	} else {
		w := parser.NewWriter(&buf)
		for _, name := range names {
			require.NoError(t, w.WriteEntry(name, uint32(len(name)), bytes.NewReader([]byte(name))))
		}
		require.NoError(t, w.Finish())
	}

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/in/Game.bin", buf.Bytes(), 0o644))
	return fsys
}

func TestUnpack(t *testing.T) {
	names := []string{"Data\\A.rvdata2", "Data\\B.rvdata2", "Graphics\\Faces\\C.png", "Audio\\SE\\D.ogg"}

	for _, format := range []rgsstypes.Format{rgsstypes.FormatV1, rgsstypes.FormatV3} {
		t.Run(format.String(), func(t *testing.T) {
			ctx := context.Background()

			t.Run("parallel", func(t *testing.T) {
				fsys := memArchive(t, format, names)
				a, err := archive.Unpack(ctx, fsys, "/in/Game.bin", "/out", archive.UnpackOptions{Parallel: 4})
				require.NoError(t, err)
				assert.Len(t, a.Entries, len(names))

				for _, name := range names {
					rel, err := archive.SafePath(name)
					require.NoError(t, err)
					got, err := afero.ReadFile(fsys, filepath.Join("/out", filepath.FromSlash(rel)))
					require.NoError(t, err)
					assert.Equal(t, name, string(got))
				}
			})

			t.Run("match", func(t *testing.T) {
				fsys := memArchive(t, format, names)
				a, err := archive.Unpack(ctx, fsys, "/in/Game.bin", "/out", archive.UnpackOptions{Match: "Data/*"})
				require.NoError(t, err)
				assert.Len(t, a.Entries, 2)

				exists, err := afero.Exists(fsys, "/out/Graphics")
				require.NoError(t, err)
				assert.False(t, exists)
			})

			t.Run("dry run", func(t *testing.T) {
				fsys := memArchive(t, format, names)
				a, err := archive.Unpack(ctx, fsys, "/in/Game.bin", "/out", archive.UnpackOptions{DryRun: true})
				require.NoError(t, err)
				assert.Len(t, a.Entries, len(names))

				exists, err := afero.DirExists(fsys, "/out")
				require.NoError(t, err)
				assert.False(t, exists)
			})

			t.Run("overwrite", func(t *testing.T) {
				fsys := memArchive(t, format, names)
				require.NoError(t, afero.WriteFile(fsys, "/out/Data/A.rvdata2", []byte("old"), 0o644))

				_, err := archive.Unpack(ctx, fsys, "/in/Game.bin", "/out", archive.UnpackOptions{})
				require.ErrorIs(t, err, os.ErrExist)

				_, err = archive.Unpack(ctx, fsys, "/in/Game.bin", "/out", archive.UnpackOptions{Overwrite: true})
				require.NoError(t, err)
				got, err := afero.ReadFile(fsys, "/out/Data/A.rvdata2")
				require.NoError(t, err)
				assert.Equal(t, names[0], string(got))
			})

			t.Run("unsafe name", func(t *testing.T) {
				fsys := memArchive(t, format, []string{"Data\\ok.txt", "..\\..\\evil.txt"})
				_, err := archive.Unpack(ctx, fsys, "/in/Game.bin", "/out", archive.UnpackOptions{Parallel: 2})
				require.ErrorIs(t, err, archive.ErrUnsafePath)

				exists, err := afero.Exists(fsys, "/evil.txt")
				require.NoError(t, err)
				assert.False(t, exists)
			})

			t.Run("invalid pattern", func(t *testing.T) {
				fsys := memArchive(t, format, names)
				_, err := archive.Unpack(ctx, fsys, "/in/Game.bin", "/out", archive.UnpackOptions{Match: "["})
				assert.Error(t, err)
			})
		})
	}
}

func TestUnpackCancelled(t *testing.T) {
	fsys := memArchive(t, rgsstypes.FormatV1, []string{"a", "b"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := archive.Unpack(ctx, fsys, "/in/Game.bin", "/out", archive.UnpackOptions{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFileKey(t *testing.T) {
	a := archive.FileKey(1, "Data\\Map001.rvdata2")
	assert.Equal(t, a, archive.FileKey(1, "Data\\Map001.rvdata2"))
	assert.NotEqual(t, a, archive.FileKey(1, "Data\\Map002.rvdata2"))
	assert.NotEqual(t, a, archive.FileKey(2, "Data\\Map001.rvdata2"))
}
