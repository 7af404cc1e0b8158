// Package tree models the immutable file-tree snapshot inside a commit and
// the transient per-file metadata gathered while building one.
package tree

import (
	"context"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/codimo/glacier/internal/hasher"
	"github.com/codimo/glacier/internal/pathutil"
)

// FileInfo is the metadata produced by hashing one working-tree file. It
// lives only between index time and commit write.
type FileInfo struct {
	Hash   string         `json:"hash"`
	Blocks []hasher.Block `json:"hashBlocks,omitempty"`
	Size   int64          `json:"size"`
	Atime  time.Time      `json:"atime"`
	Mtime  time.Time      `json:"mtime"`
	Ctime  time.Time      `json:"ctime"`
}

// NewFileInfo stats absPath and combines the result with its fingerprint.
func NewFileInfo(absPath string, fh hasher.FileHash) (FileInfo, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return FileInfo{}, err
	}
	atime, ctime := statTimes(info)
	return FileInfo{
		Hash:   fh.Hash,
		Blocks: fh.Blocks,
		Size:   info.Size(),
		Atime:  atime,
		Mtime:  info.ModTime(),
		Ctime:  ctime,
	}, nil
}

// File is one file inside a committed snapshot.
type File struct {
	Path   string         `json:"path"`
	Hash   string         `json:"hash"`
	Blocks []hasher.Block `json:"hashBlocks,omitempty"`
	Size   int64          `json:"size"`
	Mtime  time.Time      `json:"mtime"`
	Ctime  time.Time      `json:"ctime"`
}

// Dir is a directory inside a committed snapshot. Children are kept sorted
// by name so a tree encodes deterministically.
type Dir struct {
	Path  string  `json:"path"`
	Files []*File `json:"files,omitempty"`
	Dirs  []*Dir  `json:"dirs,omitempty"`
}

// Construct builds a snapshot tree from a map of relative forward-slash
// paths to their file metadata.
func Construct(processed map[string]FileInfo) *Dir {
	root := &Dir{Path: ""}
	dirs := map[string]*Dir{"": root}

	ensureDir := func(p string) *Dir {
		if d, ok := dirs[p]; ok {
			return d
		}
		// Create all missing ancestors, nearest-root first.
		var missing []string
		for q := p; ; q = pathutil.Dirname(q) {
			if _, ok := dirs[q]; ok || q == "" {
				break
			}
			missing = append(missing, q)
		}
		for i := len(missing) - 1; i >= 0; i-- {
			q := missing[i]
			d := &Dir{Path: q}
			parent := dirs[pathutil.Dirname(q)]
			parent.Dirs = append(parent.Dirs, d)
			dirs[q] = d
		}
		return dirs[p]
	}

	paths := make([]string, 0, len(processed))
	for p := range processed {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		info := processed[p]
		dir := ensureDir(pathutil.Dirname(p))
		dir.Files = append(dir.Files, &File{
			Path:   pathutil.Normalize(p),
			Hash:   info.Hash,
			Blocks: info.Blocks,
			Size:   info.Size,
			Mtime:  info.Mtime,
			Ctime:  info.Ctime,
		})
	}

	root.sortRec()
	return root
}

func (d *Dir) sortRec() {
	sort.Slice(d.Files, func(i, j int) bool { return d.Files[i].Path < d.Files[j].Path })
	sort.Slice(d.Dirs, func(i, j int) bool { return d.Dirs[i].Path < d.Dirs[j].Path })
	for _, sub := range d.Dirs {
		sub.sortRec()
	}
}

// Collect returns every file in the tree keyed by its relative path.
func (d *Dir) Collect() map[string]*File {
	files := make(map[string]*File)
	d.walk(func(f *File) {
		files[f.Path] = f
	})
	return files
}

func (d *Dir) walk(fn func(*File)) {
	for _, f := range d.Files {
		fn(f)
	}
	for _, sub := range d.Dirs {
		sub.walk(fn)
	}
}

// Find returns the file at relPath, or nil.
func (d *Dir) Find(relPath string) *File {
	relPath = pathutil.Normalize(relPath)
	dir := d.findDir(pathutil.Dirname(relPath))
	if dir == nil {
		return nil
	}
	for _, f := range dir.Files {
		if f.Path == relPath {
			return f
		}
	}
	return nil
}

// Remove deletes the file at relPath from the tree, pruning directories
// left empty. It reports whether anything was removed.
func (d *Dir) Remove(relPath string) bool {
	relPath = pathutil.Normalize(relPath)
	dir := d.findDir(pathutil.Dirname(relPath))
	if dir == nil {
		return false
	}
	for i, f := range dir.Files {
		if f.Path == relPath {
			dir.Files = append(dir.Files[:i], dir.Files[i+1:]...)
			d.prune()
			return true
		}
	}
	return false
}

// prune drops empty subdirectories.
func (d *Dir) prune() {
	kept := d.Dirs[:0]
	for _, sub := range d.Dirs {
		sub.prune()
		if len(sub.Files) > 0 || len(sub.Dirs) > 0 {
			kept = append(kept, sub)
		}
	}
	d.Dirs = kept
}

func (d *Dir) findDir(p string) *Dir {
	if p == "" {
		return d
	}
	cur := d
	var prefix string
	for _, seg := range strings.Split(p, "/") {
		if prefix == "" {
			prefix = seg
		} else {
			prefix = prefix + "/" + seg
		}
		var next *Dir
		for _, sub := range cur.Dirs {
			if sub.Path == prefix {
				next = sub
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

// IsFileModified compares the working copy under workdir against the
// committed file. Size and timestamps decide the cheap cases; only when the
// timestamps disagree but the size matches is the content re-hashed.
func (f *File) IsFileModified(ctx context.Context, workdir string) (bool, error) {
	absPath := pathutil.Join(workdir, f.Path)
	info, err := os.Stat(absPath)
	if err != nil {
		return false, err
	}
	if info.Size() != f.Size {
		return true, nil
	}
	_, ctime := statTimes(info)
	if info.ModTime().Equal(f.Mtime) && ctime.Equal(f.Ctime) {
		return false, nil
	}

	same, err := hasher.CompareFileHash(ctx, absPath, f.Hash, f.Blocks)
	if err != nil {
		return false, err
	}
	return !same, nil
}
