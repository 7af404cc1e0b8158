package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/codimo/glacier/internal/core"
	"github.com/codimo/glacier/internal/tree"
	"golang.org/x/sync/errgroup"
)

// Status classifies one path relative to the HEAD snapshot.
type Status uint32

const (
	StatusWtNew Status = 1 << iota
	StatusWtModified
	StatusWtDeleted
	StatusUnmodified
	StatusIgnored
)

// StatusFlags select what GetStatus reports.
type StatusFlags uint32

const (
	// StatusIncludeDirectories emits directory entries from the walk.
	StatusIncludeDirectories StatusFlags = 1 << iota
	// StatusIncludeUntracked reports files absent from the snapshot.
	StatusIncludeUntracked
	// StatusIncludeUnmodified reports unchanged files too.
	StatusIncludeUnmodified
	// StatusIncludeIgnored walks hidden entries as well.
	StatusIncludeIgnored

	StatusDefault = StatusIncludeUntracked
)

// StatusEntry is one row of a status report. Paths are relative,
// forward-slash.
type StatusEntry struct {
	Path   string
	Status Status
	IsDir  bool
}

// GetStatus diffs the working tree against the HEAD snapshot.
func (r *Repository) GetStatus(ctx context.Context, flags StatusFlags) ([]StatusEntry, error) {
	return r.GetStatusOf(ctx, r.commitMap[r.head.Hash], flags)
}

// GetStatusOf diffs the working tree against an arbitrary commit's
// snapshot. A nil commit compares against an empty tree.
func (r *Repository) GetStatusOf(ctx context.Context, commit *core.Commit, flags StatusFlags) ([]StatusEntry, error) {
	walked, err := r.walkWorkdir(flags&StatusIncludeIgnored != 0)
	if err != nil {
		return nil, err
	}

	trackedFiles := mapTreeFiles(commit)

	var entries []StatusEntry
	seen := make(map[string]bool)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	add := func(e StatusEntry) {
		mu.Lock()
		entries = append(entries, e)
		mu.Unlock()
	}

	for _, e := range walked {
		e := e
		seen[e.rel] = true

		if e.isDir {
			if flags&StatusIncludeDirectories != 0 && !r.matcher.Ignored(e.rel) {
				add(StatusEntry{Path: e.rel, IsDir: true})
			}
			continue
		}

		if r.matcher.Ignored(e.rel) {
			if flags&StatusIncludeIgnored != 0 {
				add(StatusEntry{Path: e.rel, Status: StatusIgnored})
			}
			continue
		}

		f, isTracked := trackedFiles[e.rel]
		if !isTracked {
			if flags&StatusIncludeUntracked != 0 {
				add(StatusEntry{Path: e.rel, Status: StatusWtNew})
			}
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			modified, err := f.IsFileModified(gctx, r.workdir)
			if err != nil {
				return err
			}
			if modified {
				add(StatusEntry{Path: e.rel, Status: StatusWtModified})
			} else if flags&StatusIncludeUnmodified != 0 {
				add(StatusEntry{Path: e.rel, Status: StatusUnmodified})
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Snapshot files missing from the walk are deletions.
	for rel := range trackedFiles {
		if seen[rel] || r.matcher.Ignored(rel) {
			continue
		}
		entries = append(entries, StatusEntry{Path: rel, Status: StatusWtDeleted})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// mapTreeFiles returns the snapshot's files by relative path; a nil commit
// maps to the empty tree.
func mapTreeFiles(commit *core.Commit) map[string]*tree.File {
	if commit == nil || commit.Root == nil {
		return map[string]*tree.File{}
	}
	return commit.Root.Collect()
}
