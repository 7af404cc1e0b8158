// Package ioctx knows where volumes are mounted, which filesystem backs
// them, and how to move bytes around most cheaply on each platform.
//
// A single IoContext is built once per high-level operation (or shared by
// several); after New it is read-only and safe for concurrent use.
package ioctx

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/codimo/glacier/internal/core"
	"github.com/codimo/glacier/internal/pathutil"
)

// Filesystem classifies a mounted volume as far as copy dispatch cares.
type Filesystem int

const (
	FSOther Filesystem = iota
	FSAPFS
	FSReFS
	FSNTFS
	FSFAT32
	FSFAT16
)

func (f Filesystem) String() string {
	switch f {
	case FSAPFS:
		return "apfs"
	case FSReFS:
		return "refs"
	case FSNTFS:
		return "ntfs"
	case FSFAT32:
		return "fat32"
	case FSFAT16:
		return "fat16"
	default:
		return "other"
	}
}

// Drive describes one mounted volume.
type Drive struct {
	DisplayName string
	Filesystem  Filesystem
}

// IoContext holds the volume table and dispatches filesystem-aware copies.
type IoContext struct {
	mountpoints []string
	drives      map[string]Drive
}

// New enumerates the connected volumes and builds an IoContext.
func New() (*IoContext, error) {
	c := &IoContext{drives: make(map[string]Drive)}
	if err := c.initPlatform(); err != nil {
		return nil, err
	}
	return c, nil
}

// Mountpoints returns the known mountpoints.
func (c *IoContext) Mountpoints() []string {
	return c.mountpoints
}

// DriveAt returns the drive mounted at the given mountpoint.
func (c *IoContext) DriveAt(mountpoint string) (Drive, bool) {
	d, ok := c.drives[mountpoint]
	return d, ok
}

// addMount records a mountpoint and its drive.
func (c *IoContext) addMount(mountpoint string, d Drive) {
	mountpoint = pathutil.Normalize(mountpoint)
	c.mountpoints = append(c.mountpoints, mountpoint)
	c.drives[mountpoint] = d
}

// SameDrive reports whether a and b live on the same volume, by comparing
// how many known mountpoints prefix each path. The heuristic is coarse: two
// paths under no known mountpoint at all also count as "same drive".
func (c *IoContext) SameDrive(a, b string) bool {
	return c.prefixCount(a) == c.prefixCount(b)
}

func (c *IoContext) prefixCount(p string) int {
	p = pathutil.Normalize(p)
	count := 0
	for _, mp := range c.mountpoints {
		if mountPrefixes(mp, p) {
			count++
		}
	}
	return count
}

// mountPrefixes reports whether path p lives under mountpoint mp.
func mountPrefixes(mp, p string) bool {
	// Roots like "/" and "C:/" keep their trailing separator.
	if strings.HasSuffix(mp, "/") {
		return strings.HasPrefix(p, mp)
	}
	return p == mp || strings.HasPrefix(p, mp+"/")
}

// driveOf returns the drive of the deepest mountpoint prefixing p.
func (c *IoContext) driveOf(p string) (Drive, bool) {
	p = pathutil.Normalize(p)
	best := ""
	for _, mp := range c.mountpoints {
		if mountPrefixes(mp, p) && len(mp) > len(best) {
			best = mp
		}
	}
	if best == "" {
		return Drive{}, false
	}
	return c.drives[best], true
}

// CopyFile copies src to dst, preferring a copy-on-write clone when the
// filesystem under both paths supports one.
func (c *IoContext) CopyFile(src, dst string) error {
	return c.copyPlatform(src, dst)
}

// PerformWriteLockChecks fails when any of the given files (relative to dir)
// is currently being written by another process. All per-file findings are
// aggregated into a single WriteLockViolation.
func (c *IoContext) PerformWriteLockChecks(dir string, relPaths []string) error {
	errs, err := c.writeLockChecks(dir, relPaths)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return &core.WriteLockViolation{Errors: errs}
	}
	return nil
}

// smallCopyThreshold is the size under which a clone syscall beats shelling
// out to a clone-capable copy tool.
const smallCopyThreshold = 1000 * 1000

var (
	trashToolOnce sync.Once
	trashToolPath string
)

// SetTrashToolPath overrides the discovered trash helper executable. Only
// the first call takes effect.
func SetTrashToolPath(path string) {
	trashToolOnce.Do(func() {
		trashToolPath = path
	})
}

// findHelper locates a bundled helper executable: next to the running
// binary first, then under the working directory.
func findHelper(name string) (string, error) {
	if exe, err := os.Executable(); err == nil {
		p := filepath.Join(filepath.Dir(exe), "resources", name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	if wd, err := os.Getwd(); err == nil {
		p := filepath.Join(wd, "resources", name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s", core.ErrHelperNotFound, name)
}

// PutToTrash moves the file at path to the platform recycle bin.
func (c *IoContext) PutToTrash(path string) error {
	if _, err := os.Stat(path); err != nil {
		return &core.IoError{Path: path, Cause: err}
	}
	cmd, err := c.trashCommand(path)
	if err != nil {
		return err
	}
	return runHelper(cmd)
}

// runHelper runs a helper command and converts a non-zero exit into a
// HelperExitError carrying its stderr.
func runHelper(cmd *exec.Cmd) error {
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &core.HelperExitError{
				Helper: filepath.Base(cmd.Path),
				Code:   exitErr.ExitCode(),
				Stderr: strings.TrimSpace(stderr.String()),
			}
		}
		return err
	}
	return nil
}
