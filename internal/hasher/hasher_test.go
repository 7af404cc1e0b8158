package hasher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"pgregory.net/rapid"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHashFileSmall(t *testing.T) {
	data := []byte("hello glacier")
	path := writeTemp(t, "small.bin", data)

	fh, err := HashFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}

	sum := sha256.Sum256(data)
	if fh.Hash != hex.EncodeToString(sum[:]) {
		t.Errorf("small file hash = %s, want plain sha256", fh.Hash)
	}
	if fh.Blocks != nil {
		t.Errorf("small file must not carry hash blocks, got %d", len(fh.Blocks))
	}
}

func TestHashFileAtThreshold(t *testing.T) {
	// A file of exactly the threshold size takes the block path.
	path := filepath.Join(t.TempDir(), "exact.bin")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(SmallFileThreshold); err != nil {
		t.Fatal(err)
	}
	f.Close()

	fh, err := HashFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(fh.Blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(fh.Blocks))
	}
	b := fh.Blocks[0]
	if b.Start != 0 || b.End != SmallFileThreshold-1 {
		t.Errorf("block range [%d,%d], want [0,%d]", b.Start, b.End, SmallFileThreshold-1)
	}

	// The file hash folds the hex of the block hashes.
	fold := sha256.New()
	fold.Write([]byte(b.Hash))
	if fh.Hash != hex.EncodeToString(fold.Sum(nil)) {
		t.Error("file hash is not the fold of its block hashes")
	}
}

func TestHashFileMultiBlock(t *testing.T) {
	if testing.Short() {
		t.Skip("multi-block file in short mode")
	}
	size := int64(BlockSize + 5)
	path := filepath.Join(t.TempDir(), "big.bin")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(size); err != nil {
		t.Fatal(err)
	}
	f.Close()

	fh, err := HashFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(fh.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(fh.Blocks))
	}
	if fh.Blocks[0].Start != 0 || fh.Blocks[0].End != BlockSize-1 {
		t.Errorf("block 0 range [%d,%d]", fh.Blocks[0].Start, fh.Blocks[0].End)
	}
	if fh.Blocks[1].Start != BlockSize || fh.Blocks[1].End != size-1 {
		t.Errorf("block 1 range [%d,%d]", fh.Blocks[1].Start, fh.Blocks[1].End)
	}
}

func TestCompareFileHashRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtrip.bin")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(SmallFileThreshold + 1234); err != nil {
		t.Fatal(err)
	}
	f.Close()

	fh, err := HashFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}

	same, err := CompareFileHash(context.Background(), path, fh.Hash, fh.Blocks)
	if err != nil {
		t.Fatal(err)
	}
	if !same {
		t.Error("unchanged file must compare equal to its own fingerprint")
	}
}

func TestCompareFileHashDetectsFlip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flip.bin")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(SmallFileThreshold + 99); err != nil {
		t.Fatal(err)
	}
	f.Close()

	fh, err := HashFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}

	// Flip a byte in place; size and block layout stay identical.
	g, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.WriteAt([]byte{0xFF}, 4242); err != nil {
		t.Fatal(err)
	}
	g.Close()

	same, err := CompareFileHash(context.Background(), path, fh.Hash, fh.Blocks)
	if err != nil {
		t.Fatal(err)
	}
	if same {
		t.Error("flipped byte must fail the comparison")
	}
}

func TestCompareFileHashSmall(t *testing.T) {
	data := []byte("tiny")
	path := writeTemp(t, "tiny.bin", data)

	fh, err := HashFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	same, err := CompareFileHash(context.Background(), path, fh.Hash, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !same {
		t.Error("round trip failed for small file")
	}

	same, err = CompareFileHash(context.Background(), path, fh.Hash, []Block{{Hash: "bogus", Start: 0, End: 3}})
	if err != nil {
		t.Fatal(err)
	}
	if !same {
		t.Error("stored blocks must be ignored for small files, not compared")
	}
}

func TestHashFileMatchesSha256(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 0, 4096).Draw(rt, "data")
		path := filepath.Join(t.TempDir(), "prop.bin")
		if err := os.WriteFile(path, data, 0644); err != nil {
			rt.Fatal(err)
		}
		fh, err := HashFile(context.Background(), path)
		if err != nil {
			rt.Fatal(err)
		}
		sum := sha256.Sum256(data)
		if fh.Hash != hex.EncodeToString(sum[:]) {
			rt.Fatalf("hash mismatch for %d bytes", len(data))
		}
	})
}
