// Package pathutil normalizes filesystem paths to the forward-slash form
// used everywhere inside the engine, regardless of host OS.
package pathutil

import (
	"path/filepath"
	"strings"
)

// Normalize converts p to forward slashes and strips trailing separators.
// An empty path and "." both normalize to ""; a bare root is preserved.
func Normalize(p string) string {
	p = filepath.ToSlash(p)
	if p == "" || p == "." {
		return ""
	}

	// Strip trailing separators, but never reduce a root ("/" or "C:/")
	// to the empty string.
	for len(p) > 1 && strings.HasSuffix(p, "/") && !isRoot(p) {
		p = p[:len(p)-1]
	}
	if p == "." {
		return ""
	}
	return p
}

// isRoot reports whether p is a filesystem root: "/" or a Windows drive
// root like "C:" / "C:/".
func isRoot(p string) bool {
	if p == "/" {
		return true
	}
	if len(p) == 2 && p[1] == ':' {
		return true
	}
	if len(p) == 3 && p[1] == ':' && p[2] == '/' {
		return true
	}
	return false
}

// Join joins path elements and normalizes the result.
func Join(elem ...string) string {
	return Normalize(filepath.Join(elem...))
}

// Dirname returns the normalized parent directory of p.
func Dirname(p string) string {
	return Normalize(filepath.Dir(filepath.FromSlash(p)))
}

// Basename returns the last element of p.
func Basename(p string) string {
	return filepath.Base(filepath.FromSlash(p))
}

// Resolve makes p absolute and normalizes it.
func Resolve(p string) (string, error) {
	abs, err := filepath.Abs(filepath.FromSlash(p))
	if err != nil {
		return "", err
	}
	return Normalize(abs), nil
}

// Relative returns target relative to base, normalized.
func Relative(base, target string) (string, error) {
	rel, err := filepath.Rel(filepath.FromSlash(base), filepath.FromSlash(target))
	if err != nil {
		return "", err
	}
	return Normalize(rel), nil
}
