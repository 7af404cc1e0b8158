package ioctx

import (
	"os"
	"time"

	"github.com/codimo/glacier/internal/core"
	"github.com/codimo/glacier/internal/pathutil"
	"golang.org/x/sync/errgroup"
)

// sizeChangeDelay is how long the sampling check waits between the two
// stat passes.
const sizeChangeDelay = 500 * time.Millisecond

// sizeChangeChecks detects active writers by sampling each file's size
// twice, delay apart. A size change at the same path means some process is
// still writing it. Missing files are not an error here; later stages
// surface those.
func sizeChangeChecks(dir string, relPaths []string, delay time.Duration) ([]error, error) {
	type sample struct {
		path string
		size int64
		ok   bool
	}

	stat := func(samples []sample) error {
		var g errgroup.Group
		for i := range samples {
			i := i
			g.Go(func() error {
				info, err := os.Stat(samples[i].path)
				if err != nil {
					samples[i].ok = false
					return nil
				}
				samples[i].size = info.Size()
				samples[i].ok = true
				return nil
			})
		}
		return g.Wait()
	}

	before := make([]sample, len(relPaths))
	for i, rel := range relPaths {
		before[i].path = pathutil.Join(dir, rel)
	}
	after := make([]sample, len(relPaths))
	copy(after, before)

	if err := stat(before); err != nil {
		return nil, err
	}
	time.Sleep(delay)
	if err := stat(after); err != nil {
		return nil, err
	}

	var errs []error
	for i := range before {
		if before[i].ok && after[i].ok && before[i].size != after[i].size {
			errs = append(errs, &core.FileWrittenError{Path: relPaths[i]})
		}
	}
	return errs, nil
}
