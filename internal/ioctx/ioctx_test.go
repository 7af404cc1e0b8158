package ioctx

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func testContext() *IoContext {
	c := &IoContext{drives: make(map[string]Drive)}
	c.addMount("/", Drive{DisplayName: "root", Filesystem: FSOther})
	c.addMount("/mnt/projects", Drive{DisplayName: "projects", Filesystem: FSOther})
	return c
}

func TestSameDrive(t *testing.T) {
	c := testContext()

	if !c.SameDrive("/home/a/x.bin", "/home/b/y.bin") {
		t.Error("two paths under only the root volume are on the same drive")
	}
	if c.SameDrive("/home/a/x.bin", "/mnt/projects/y.bin") {
		t.Error("a path under a deeper mountpoint is on a different drive")
	}
	if !c.SameDrive("/mnt/projects/a.bin", "/mnt/projects/b/c.bin") {
		t.Error("two paths under the same mountpoint are on the same drive")
	}
	// Limitation of the prefix-count heuristic: two paths under no known
	// mountpoint at all also compare equal.
	empty := &IoContext{drives: make(map[string]Drive)}
	if !empty.SameDrive("/a", "/b") {
		t.Error("heuristic: unknown volumes count as same drive")
	}
}

func TestDriveOf(t *testing.T) {
	c := testContext()
	d, ok := c.driveOf("/mnt/projects/scene.blend")
	if !ok || d.DisplayName != "projects" {
		t.Errorf("driveOf picked %+v, want the deepest mountpoint", d)
	}
}

func TestMountPrefixes(t *testing.T) {
	if mountPrefixes("/mnt/pro", "/mnt/projects/a.bin") {
		t.Error("partial path components must not count as prefixes")
	}
	if !mountPrefixes("/mnt/projects", "/mnt/projects") {
		t.Error("the mountpoint itself is under the mountpoint")
	}
}

func TestNewEnumeratesMounts(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatal(err)
	}
	// Nothing portable to assert beyond a sane structure.
	for _, mp := range c.Mountpoints() {
		if _, ok := c.DriveAt(mp); !ok {
			t.Errorf("mountpoint %s has no drive entry", mp)
		}
	}
}

func TestCopyFile(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "sub", "dst.bin")
	data := []byte("copy me, maybe by reflink")
	if err := os.WriteFile(src, data, 0644); err != nil {
		t.Fatal(err)
	}

	if err := c.CopyFile(src, dst); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(data) {
		t.Error("copied content differs")
	}
}

func TestSizeChangeChecks(t *testing.T) {
	dir := t.TempDir()
	stable := filepath.Join(dir, "stable.bin")
	growing := filepath.Join(dir, "growing.bin")
	if err := os.WriteFile(stable, []byte("s"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(growing, []byte("g"), 0644); err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		f, err := os.OpenFile(growing, os.O_APPEND|os.O_WRONLY, 0)
		if err != nil {
			return
		}
		f.WriteString("more bytes")
		f.Close()
	}()

	errs, err := sizeChangeChecks(dir, []string{"stable.bin", "growing.bin"}, 400*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 1 {
		t.Fatalf("expected exactly the growing file to be flagged, got %d errors", len(errs))
	}
}

func TestPerformWriteLockChecksClean(t *testing.T) {
	if _, err := exec.LookPath("lsof"); err != nil {
		t.Skip("lsof not available")
	}
	c, err := New()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "quiet.bin")
	if err := os.WriteFile(path, []byte("q"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := c.PerformWriteLockChecks(dir, []string{"quiet.bin"}); err != nil {
		t.Errorf("no process writes quiet.bin, got %v", err)
	}
}
