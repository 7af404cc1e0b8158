package tree

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/codimo/glacier/internal/hasher"
)

func sampleTree() *Dir {
	return Construct(map[string]FileInfo{
		"a.bin":         {Hash: "h1", Size: 1},
		"sub/b.bin":     {Hash: "h2", Size: 2},
		"sub/deep/c.gz": {Hash: "h3", Size: 3},
	})
}

func TestConstruct(t *testing.T) {
	root := sampleTree()

	if len(root.Files) != 1 || root.Files[0].Path != "a.bin" {
		t.Fatalf("unexpected root files: %+v", root.Files)
	}
	if len(root.Dirs) != 1 || root.Dirs[0].Path != "sub" {
		t.Fatalf("unexpected root dirs: %+v", root.Dirs)
	}

	sub := root.Dirs[0]
	if len(sub.Files) != 1 || sub.Files[0].Path != "sub/b.bin" {
		t.Errorf("unexpected sub files: %+v", sub.Files)
	}
	if len(sub.Dirs) != 1 || sub.Dirs[0].Path != "sub/deep" {
		t.Errorf("unexpected sub dirs: %+v", sub.Dirs)
	}
}

func TestCollect(t *testing.T) {
	files := sampleTree().Collect()
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %d", len(files))
	}
	if files["sub/deep/c.gz"].Hash != "h3" {
		t.Error("collected file lost its hash")
	}
}

func TestFind(t *testing.T) {
	root := sampleTree()
	if f := root.Find("sub/b.bin"); f == nil || f.Hash != "h2" {
		t.Errorf("Find(sub/b.bin) = %+v", f)
	}
	if f := root.Find("missing.bin"); f != nil {
		t.Errorf("Find(missing.bin) = %+v, want nil", f)
	}
}

func TestRemovePrunesEmptyDirs(t *testing.T) {
	root := sampleTree()

	if !root.Remove("sub/deep/c.gz") {
		t.Fatal("Remove reported nothing removed")
	}
	if root.Find("sub/deep/c.gz") != nil {
		t.Error("file still present after Remove")
	}
	sub := root.Dirs[0]
	if len(sub.Dirs) != 0 {
		t.Error("empty directory sub/deep was not pruned")
	}

	if root.Remove("sub/deep/c.gz") {
		t.Error("second Remove of the same path must report false")
	}
}

func TestIsFileModified(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	if err := os.WriteFile(path, []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}

	fh, err := hasher.HashFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	info, err := NewFileInfo(path, fh)
	if err != nil {
		t.Fatal(err)
	}

	f := &File{
		Path:  "f.bin",
		Hash:  info.Hash,
		Size:  info.Size,
		Mtime: info.Mtime,
		Ctime: info.Ctime,
	}

	modified, err := f.IsFileModified(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if modified {
		t.Error("untouched file reported modified")
	}

	// Same size, different content: the timestamp fast path must fall
	// through to hashing.
	time.Sleep(10 * time.Millisecond)
	if err := os.WriteFile(path, []byte("CONTENT"), 0644); err != nil {
		t.Fatal(err)
	}
	modified, err = f.IsFileModified(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if !modified {
		t.Error("rewritten file reported unmodified")
	}

	// Different size: caught without hashing.
	if err := os.WriteFile(path, []byte("longer content"), 0644); err != nil {
		t.Fatal(err)
	}
	modified, err = f.IsFileModified(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if !modified {
		t.Error("resized file reported unmodified")
	}
}
