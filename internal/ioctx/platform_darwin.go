//go:build darwin

package ioctx

import (
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"
)

// initPlatform parses `mount` output, which lists one volume per line as
// "/dev/disk3s1 on /Volumes/X (apfs, local, journaled)". System-reserved
// mountpoints are not user-visible volumes and are filtered out.
func (c *IoContext) initPlatform() error {
	out, err := exec.Command("mount").Output()
	if err != nil {
		return err
	}

	for _, line := range strings.Split(string(out), "\n") {
		device, mountpoint, fstype, ok := parseMountLine(line)
		if !ok || !strings.HasPrefix(device, "/dev/") {
			continue
		}
		if strings.HasPrefix(mountpoint, "/System/") {
			continue
		}
		fs := FSOther
		if fstype == "apfs" {
			fs = FSAPFS
		}
		c.addMount(mountpoint, Drive{DisplayName: device, Filesystem: fs})
	}
	return nil
}

// parseMountLine splits one `mount` line into device, mountpoint and
// filesystem type.
func parseMountLine(line string) (device, mountpoint, fstype string, ok bool) {
	onIdx := strings.Index(line, " on ")
	parenIdx := strings.LastIndex(line, " (")
	if onIdx < 0 || parenIdx < 0 || parenIdx <= onIdx {
		return "", "", "", false
	}
	device = line[:onIdx]
	mountpoint = line[onIdx+4 : parenIdx]
	opts := strings.TrimSuffix(line[parenIdx+2:], ")")
	fstype = strings.TrimSpace(strings.Split(opts, ",")[0])
	return device, mountpoint, fstype, true
}

// copyPlatform clones src to dst on APFS. Tiny files are cloned with the
// clonefile syscall; spawning cp for them would cost more than the copy
// itself. Larger files go through `cp -c`, which clones whole file extents.
func (c *IoContext) copyPlatform(src, dst string) error {
	if err := ensureParent(dst); err != nil {
		return err
	}

	drive, ok := c.driveOf(dst)
	if ok && drive.Filesystem == FSAPFS && c.SameDrive(src, dst) {
		if fileSize(src) < smallCopyThreshold {
			os.Remove(dst)
			if err := unix.Clonefile(src, dst, 0); err == nil {
				return nil
			}
			return plainCopy(src, dst)
		}
		if err := exec.Command("cp", "-c", src, dst).Run(); err == nil {
			return nil
		}
	}
	return plainCopy(src, dst)
}

func (c *IoContext) writeLockChecks(dir string, relPaths []string) ([]error, error) {
	return lsofLockChecks(dir, relPaths)
}

// trashCommand moves a file to the macOS trash via the bundled helper.
func (c *IoContext) trashCommand(path string) (*exec.Cmd, error) {
	helper := trashToolPath
	if helper == "" {
		found, err := findHelper("trash")
		if err != nil {
			return nil, err
		}
		helper = found
	}
	return exec.Command(helper, path), nil
}
