package adapter

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is surfaced as error code PATH_TRAVERSAL: a path
// derived from config or vendor input escaped its exchange root.
var ErrPathTraversal = errors.New("PATH_TRAVERSAL: path escapes its base directory")

// ErrDirectoryNotFound is surfaced as DIRECTORY_NOT_FOUND by connection
// tests against a missing exchange folder.
var ErrDirectoryNotFound = errors.New("DIRECTORY_NOT_FOUND: exchange directory does not exist")

// SecureJoin joins parts onto base and verifies the normalized result
// still lives under the normalized base. Every path computed from
// integration config or vendor filenames goes through here.
func SecureJoin(base string, parts ...string) (string, error) {
	cleanBase := filepath.Clean(base)
	target := filepath.Join(append([]string{cleanBase}, parts...)...)
	if err := WithinBase(cleanBase, target); err != nil {
		return "", err
	}
	return target, nil
}

// WithinBase reports whether target, after normalization, has base as a
// path prefix.
func WithinBase(base, target string) error {
	cleanBase := filepath.Clean(base)
	cleanTarget := filepath.Clean(target)
	if cleanTarget == cleanBase {
		return nil
	}
	sep := string(filepath.Separator)
	if !strings.HasPrefix(cleanTarget, cleanBase+sep) {
		return fmt.Errorf("%w: %q is outside %q", ErrPathTraversal, target, base)
	}
	return nil
}
