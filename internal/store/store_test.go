package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/codimo/glacier/internal/core"
	"github.com/codimo/glacier/internal/ioctx"
	"github.com/codimo/glacier/internal/tree"
)

func newTestStore(t *testing.T) (*Store, *ioctx.IoContext) {
	t.Helper()
	s, err := Create(filepath.Join(t.TempDir(), "commondir"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	ioc, err := ioctx.New()
	if err != nil {
		t.Fatal(err)
	}
	return s, ioc
}

func TestBlobRoundTrip(t *testing.T) {
	s, ioc := newTestStore(t)

	dir := t.TempDir()
	src := filepath.Join(dir, "asset.bin")
	data := []byte("binary asset payload")
	if err := os.WriteFile(src, data, 0644); err != nil {
		t.Fatal(err)
	}

	info, err := s.WriteBlob(context.Background(), src, ioc)
	if err != nil {
		t.Fatal(err)
	}
	if !s.HasBlob(info.Hash) {
		t.Fatal("blob missing after write")
	}

	// Idempotent rewrite.
	info2, err := s.WriteBlob(context.Background(), src, ioc)
	if err != nil {
		t.Fatal(err)
	}
	if info2.Hash != info.Hash {
		t.Errorf("second write produced different hash")
	}

	dst := filepath.Join(dir, "restored.bin")
	if err := s.ReadBlob(info.Hash, dst, ioc); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(data) {
		t.Error("restored blob differs from source")
	}
}

func TestCommitRecordRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	commit := &core.Commit{
		Message: "first",
		Date:    time.Now().Round(time.Millisecond),
		Root: tree.Construct(map[string]tree.FileInfo{
			"a.bin": {Hash: "h1", Size: 7},
		}),
		Tags:     []string{"milestone"},
		UserData: map[string]json.RawMessage{"note": json.RawMessage(`"v1"`)},
	}
	commit.Hash = commit.ComputeHash()

	if err := s.WriteCommit(commit); err != nil {
		t.Fatal(err)
	}

	commits, err := s.ReadCommits()
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 1 {
		t.Fatalf("expected 1 commit, got %d", len(commits))
	}
	got := commits[0]
	if got.Hash != commit.Hash || got.Message != "first" {
		t.Errorf("commit record corrupted: %+v", got)
	}
	if got.Root.Find("a.bin") == nil {
		t.Error("tree lost in round trip")
	}
	if len(got.Tags) != 1 || got.Tags[0] != "milestone" {
		t.Error("tags lost in round trip")
	}
	if got.ComputeHash() != commit.Hash {
		t.Error("recomputed hash differs after round trip")
	}
}

func TestReferenceRecords(t *testing.T) {
	s, _ := newTestStore(t)

	ref := &core.Reference{
		Type:  core.RefBranch,
		Name:  "Main",
		Hash:  core.HashBytes([]byte("c1")),
		Start: core.HashBytes([]byte("c1")),
	}
	if err := s.WriteReference(ref); err != nil {
		t.Fatal(err)
	}

	refs, err := s.ReadReferences()
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 || refs[0].Name != "Main" || refs[0].Hash != ref.Hash {
		t.Fatalf("unexpected references: %+v", refs)
	}

	if err := s.DeleteReference(ref); err != nil {
		t.Fatal(err)
	}
	refs, err = s.ReadReferences()
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 0 {
		t.Error("reference survived deletion")
	}
}

func TestHeadRecord(t *testing.T) {
	s, _ := newTestStore(t)

	value, err := s.ReadHeadReference()
	if err != nil {
		t.Fatal(err)
	}
	if value != "" {
		t.Errorf("fresh HEAD record = %q, want empty", value)
	}

	if err := s.WriteHeadReference("Main"); err != nil {
		t.Fatal(err)
	}
	value, err = s.ReadHeadReference()
	if err != nil {
		t.Fatal(err)
	}
	if value != "Main" {
		t.Errorf("HEAD record = %q, want Main", value)
	}
}

func TestIndexStore(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.WriteIndex("", []byte(`{"id":""}`)); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteIndex("ab12cd", []byte(`{"id":"ab12cd"}`)); err != nil {
		t.Fatal(err)
	}

	indexes, err := s.ReadIndexes()
	if err != nil {
		t.Fatal(err)
	}
	if len(indexes) != 2 {
		t.Fatalf("expected 2 indexes, got %d", len(indexes))
	}

	if err := s.DeleteIndex("ab12cd"); err != nil {
		t.Fatal(err)
	}
	indexes, err = s.ReadIndexes()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := indexes["ab12cd"]; ok {
		t.Error("index survived deletion")
	}
}

func TestOpenRejectsMissingCommondir(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Fatal("expected error for missing commondir")
	}
}
