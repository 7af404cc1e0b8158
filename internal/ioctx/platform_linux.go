//go:build linux

package ioctx

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/codimo/glacier/internal/core"
	"golang.org/x/sys/unix"
)

// initPlatform reads the block-device mounts from /proc/mounts. Pseudo
// filesystems (proc, sysfs, tmpfs, ...) have no device path and are skipped.
func (c *IoContext) initPlatform() error {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		device, mountpoint := fields[0], fields[1]
		if !strings.HasPrefix(device, "/dev/") {
			continue
		}
		c.addMount(unescapeMount(mountpoint), Drive{
			DisplayName: device,
			Filesystem:  FSOther,
		})
	}
	return scanner.Err()
}

// unescapeMount decodes the octal escapes /proc/mounts uses for spaces and
// tabs in mountpoint names.
func unescapeMount(p string) string {
	r := strings.NewReplacer("\\040", " ", "\\011", "\t", "\\012", "\n", "\\134", "\\")
	return r.Replace(p)
}

// copyPlatform clones src to dst via FICLONE where the filesystem allows
// it, falling back to a byte copy when the kernel rejects the clone.
func (c *IoContext) copyPlatform(src, dst string) error {
	if err := ensureParent(dst); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if err := unix.IoctlFileClone(int(out.Fd()), int(in.Fd())); err == nil {
		return out.Close()
	}
	out.Close()

	return plainCopy(src, dst)
}

func (c *IoContext) writeLockChecks(dir string, relPaths []string) ([]error, error) {
	return lsofLockChecks(dir, relPaths)
}

// trashCommand moves files to the freedesktop trash via gio.
func (c *IoContext) trashCommand(path string) (*exec.Cmd, error) {
	if trashToolPath != "" {
		return exec.Command(trashToolPath, path), nil
	}
	gio, err := exec.LookPath("gio")
	if err != nil {
		return nil, fmt.Errorf("%w: gio", core.ErrHelperNotFound)
	}
	return exec.Command(gio, "trash", path), nil
}
