package repo

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/codimo/glacier/internal/core"
	"github.com/codimo/glacier/internal/pathutil"
	"golang.org/x/sync/errgroup"
)

// CheckoutFlags select which working-tree reconciliation steps run.
type CheckoutFlags uint32

const (
	// DeleteModifiedFiles overwrites locally modified files with the
	// snapshot's content.
	DeleteModifiedFiles CheckoutFlags = 1 << iota
	// DeleteNewFiles trashes files absent from the snapshot.
	DeleteNewFiles
	// RestoreDeletedFiles re-materializes files the snapshot has but the
	// working tree lost.
	RestoreDeletedFiles
	// Detach points HEAD at the commit directly even when a reference
	// resolves the target.
	Detach

	// CheckoutDefault is the full reconciliation without detaching.
	CheckoutDefault = DeleteModifiedFiles | DeleteNewFiles | RestoreDeletedFiles
)

// Checkout resolves target — a reference name or a commit hash — and
// reconciles the working tree with it.
func (r *Repository) Checkout(ctx context.Context, target string, flags CheckoutFlags) error {
	commit, ref, err := r.resolveTarget(target)
	if err != nil {
		return err
	}
	return r.checkout(ctx, commit, ref, flags)
}

// CheckoutCommit reconciles the working tree with the given commit,
// detaching HEAD unless exactly one reference points at it.
func (r *Repository) CheckoutCommit(ctx context.Context, commit *core.Commit, flags CheckoutFlags) error {
	if _, ok := r.commitMap[commit.Hash]; !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownTarget, commit.Hash)
	}
	return r.checkout(ctx, commit, r.soleReferenceAt(commit.Hash), flags)
}

// CheckoutRef reconciles the working tree with the commit a reference
// points at.
func (r *Repository) CheckoutRef(ctx context.Context, ref *core.Reference, flags CheckoutFlags) error {
	commit, ok := r.commitMap[ref.Hash]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownTarget, ref.Hash)
	}
	return r.checkout(ctx, commit, ref, flags)
}

// resolveTarget maps a reference name or raw hash onto (commit, ref). A
// hash shared by several references resolves with no ref, leaving HEAD
// detached.
func (r *Repository) resolveTarget(target string) (*core.Commit, *core.Reference, error) {
	if ref := r.findReference(target); ref != nil {
		commit, ok := r.commitMap[ref.Hash]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", core.ErrUnknownTarget, ref.Hash)
		}
		return commit, ref, nil
	}

	hash, err := core.ParseHash(target)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", core.ErrUnknownTarget, target)
	}
	commit, ok := r.commitMap[hash]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", core.ErrUnknownTarget, target)
	}
	return commit, r.soleReferenceAt(hash), nil
}

// soleReferenceAt returns the single reference pointing at hash, or nil
// when none or several do.
func (r *Repository) soleReferenceAt(hash core.Hash) *core.Reference {
	var found *core.Reference
	for _, ref := range r.refs {
		if ref.Hash == hash {
			if found != nil {
				return nil
			}
			found = ref
		}
	}
	return found
}

// checkout moves HEAD, then reconciles the working tree. HEAD is persisted
// before any file mutation so a failure halfway leaves a recoverable,
// correctly-pointed repository.
func (r *Repository) checkout(ctx context.Context, commit *core.Commit, ref *core.Reference, flags CheckoutFlags) error {
	walked, err := r.walkWorkdirFiles()
	if err != nil {
		return err
	}
	// Ignored files are invisible to reconciliation; they are neither
	// trashed nor compared.
	currentFiles := walked[:0]
	for _, rel := range walked {
		if !r.matcher.Ignored(rel) {
			currentFiles = append(currentFiles, rel)
		}
	}
	oldFiles := commit.Root.Collect()

	r.head.Hash = commit.Hash
	if flags&Detach != 0 || ref == nil {
		r.head.Name = detachedHeadName
	} else {
		r.head.Name = ref.Name
	}
	if err := r.persistHead(); err != nil {
		return err
	}

	if flags&DeleteNewFiles != 0 {
		for _, rel := range currentFiles {
			if _, tracked := oldFiles[rel]; tracked {
				continue
			}
			if err := r.ioc.PutToTrash(filepath.FromSlash(pathutil.Join(r.workdir, rel))); err != nil {
				return err
			}
		}
	}

	current := make(map[string]bool, len(currentFiles))
	for _, rel := range currentFiles {
		current[rel] = true
	}

	g, gctx := errgroup.WithContext(ctx)

	if flags&RestoreDeletedFiles != 0 {
		for rel, f := range oldFiles {
			if current[rel] {
				continue
			}
			rel, f := rel, f
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return r.store.ReadBlob(f.Hash, pathutil.Join(r.workdir, rel), r.ioc)
			})
		}
	}

	if flags&DeleteModifiedFiles != 0 {
		for rel, f := range oldFiles {
			if !current[rel] {
				continue
			}
			rel, f := rel, f
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				modified, err := f.IsFileModified(gctx, r.workdir)
				if err != nil {
					return err
				}
				if !modified {
					return nil
				}
				return r.store.ReadBlob(f.Hash, pathutil.Join(r.workdir, rel), r.ioc)
			})
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}

	return r.store.AppendLog(fmt.Sprintf("checkout %s", commit.Hash))
}

// walkEntry is one working-tree entry seen by the walk.
type walkEntry struct {
	rel   string
	isDir bool
}

// walkWorkdirFiles lists the working tree's files (never directories) as
// relative forward-slash paths, skipping the repository marker.
func (r *Repository) walkWorkdirFiles() ([]string, error) {
	entries, err := r.walkWorkdir(false)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.isDir {
			files = append(files, e.rel)
		}
	}
	return files, nil
}

// walkWorkdir lists working-tree entries; hidden entries are skipped unless
// includeHidden is set. The repository marker is always skipped.
func (r *Repository) walkWorkdir(includeHidden bool) ([]walkEntry, error) {
	var entries []walkEntry
	root := filepath.FromSlash(r.workdir)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		name := d.Name()
		if name == snowEntry {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !includeHidden && strings.HasPrefix(name, ".") && name != ".snowignore" {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := pathutil.Relative(r.workdir, pathutil.Normalize(path))
		if err != nil {
			return err
		}
		entries = append(entries, walkEntry{rel: rel, isDir: d.IsDir()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
