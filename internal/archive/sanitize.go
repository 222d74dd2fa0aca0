package archive

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/samber/lo"
)

// ErrUnsafePath means an entry name would be extracted outside of the
// output directory.
var ErrUnsafePath = errors.New("archive: unsafe entry path")

// SafePath turns an entry name into a clean, relative, slash separated
// path. Names are stored with backslashes; absolute names, drive letters
// and names escaping the output directory are rejected.
func SafePath(name string) (string, error) {
	p := strings.ReplaceAll(name, "\\", "/")
	if p == "" || strings.HasPrefix(p, "/") || hasVolume(p) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}

	p = path.Clean(p)
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return p, nil
}

func hasVolume(p string) bool {
	return len(p) >= 2 && p[1] == ':' &&
		(('a' <= p[0] && p[0] <= 'z') || ('A' <= p[0] && p[0] <= 'Z'))
}

// ArchiveName turns a slash separated relative path into an entry name.
func ArchiveName(p string) string {
	return strings.ReplaceAll(p, "/", "\\")
}

// Select returns the items whose name matches pattern. The pattern uses
// path.Match syntax against slash separated names; an empty pattern
// selects everything.
func Select[T any](items []T, name func(T) string, pattern string) ([]T, error) {
	if err := checkPattern(pattern); err != nil {
		return nil, err
	}
	if pattern == "" {
		return items, nil
	}
	return lo.Filter(items, func(item T, _ int) bool {
		return matchName(pattern, name(item))
	}), nil
}

func checkPattern(pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return nil
}

// matchName reports whether an entry name matches a pattern already
// validated by checkPattern.
func matchName(pattern, name string) bool {
	if pattern == "" {
		return true
	}
	ok, _ := path.Match(pattern, strings.ReplaceAll(name, "\\", "/"))
	return ok
}
