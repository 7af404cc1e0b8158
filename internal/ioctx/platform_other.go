//go:build !linux && !darwin && !windows

package ioctx

import (
	"os/exec"

	"github.com/codimo/glacier/internal/core"
)

func (c *IoContext) initPlatform() error {
	return core.ErrUnsupportedPlatform
}

func (c *IoContext) copyPlatform(src, dst string) error {
	return core.ErrUnsupportedPlatform
}

func (c *IoContext) writeLockChecks(dir string, relPaths []string) ([]error, error) {
	return nil, core.ErrUnsupportedPlatform
}

func (c *IoContext) trashCommand(path string) (*exec.Cmd, error) {
	return nil, core.ErrUnsupportedPlatform
}
