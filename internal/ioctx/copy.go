package ioctx

import (
	"io"
	"os"
	"path/filepath"

	"github.com/codimo/glacier/internal/core"
)

// plainCopy streams src into dst without any clone attempt. The destination
// directory must exist; the source mode is preserved.
func plainCopy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return &core.IoError{Path: src, Cause: err}
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return &core.IoError{Path: src, Cause: err}
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return &core.IoError{Path: dst, Cause: err}
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return &core.IoError{Path: dst, Cause: err}
	}
	if err := out.Close(); err != nil {
		return &core.IoError{Path: dst, Cause: err}
	}
	return nil
}

// fileSize returns the size of the file at path, or 0 if it cannot be
// statted.
func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// ensureParent creates the parent directory of path.
func ensureParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}
