// Package hasher computes content fingerprints of working-tree files.
//
// Small files get a single whole-file sha256. Large files are split into
// fixed 100 MB blocks hashed in parallel; the file-level fingerprint is the
// sha256 of the block digests' hex strings folded in block order, so it is
// deterministic regardless of worker scheduling. The per-block digests are
// kept alongside the file hash to let later verification skip unchanged
// blocks.
package hasher

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"
)

const (
	// BlockSize is the span of one hash block of a large file.
	BlockSize = 100 * 1000 * 1000

	// SmallFileThreshold is the size below which a file is hashed in a
	// single pass with no block list.
	SmallFileThreshold = 20 * 1000 * 1000

	// streamBufferSize is the read buffer used while streaming file bytes
	// into a digest.
	streamBufferSize = 2 * 1000 * 1000
)

// errBlockMismatch short-circuits CompareFileHash when a block digest
// already differs. It never escapes the package.
var errBlockMismatch = errors.New("hash block mismatch")

// Block is the sha256 digest of one contiguous byte range of a file.
// Start and End are inclusive offsets; Start = End = -1 marks a whole-file
// digest of a small file.
type Block struct {
	Hash  string `json:"hash"`
	Start int64  `json:"start"`
	End   int64  `json:"end"`
}

// FileHash is the result of hashing one file.
type FileHash struct {
	Hash   string
	Blocks []Block // nil when the file was below SmallFileThreshold
}

// HashFile fingerprints the file at path.
func HashFile(ctx context.Context, path string) (FileHash, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileHash{}, err
	}
	size := info.Size()

	if size < SmallFileThreshold {
		sum, err := hashWhole(path)
		if err != nil {
			return FileHash{}, err
		}
		return FileHash{Hash: sum}, nil
	}

	blocks, err := hashBlocks(ctx, path, size)
	if err != nil {
		return FileHash{}, err
	}
	return FileHash{Hash: foldBlocks(blocks), Blocks: blocks}, nil
}

// CompareFileHash re-verifies the file at path against a previously computed
// fingerprint. When the stored block list is supplied and a block digest
// differs, the comparison resolves to false without folding the remaining
// blocks.
func CompareFileHash(ctx context.Context, path, expectedHash string, expectedBlocks []Block) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	size := info.Size()

	if size < SmallFileThreshold {
		if len(expectedBlocks) > 0 {
			log.Printf("hasher: ignoring %d stored hash blocks for small file %s", len(expectedBlocks), path)
		}
		sum, err := hashWhole(path)
		if err != nil {
			return false, err
		}
		return sum == expectedHash, nil
	}

	blocks, err := hashBlocksExpected(ctx, path, size, expectedBlocks)
	if errors.Is(err, errBlockMismatch) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return foldBlocks(blocks) == expectedHash, nil
}

// hashWhole streams the entire file through one sha256.
func hashWhole(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	r := bufio.NewReaderSize(f, streamBufferSize)
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// hashBlocks digests every 100 MB block of the file in parallel.
func hashBlocks(ctx context.Context, path string, size int64) ([]Block, error) {
	return hashBlocksExpected(ctx, path, size, nil)
}

// hashBlocksExpected is hashBlocks with an optional stored block list to
// compare against; a mismatch at any index aborts the group with
// errBlockMismatch.
func hashBlocksExpected(ctx context.Context, path string, size int64, expected []Block) ([]Block, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	count := int((size + BlockSize - 1) / BlockSize)
	blocks := make([]Block, count)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i := 0; i < count; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			start := int64(i) * BlockSize
			end := start + BlockSize
			if end > size {
				end = size
			}

			h := sha256.New()
			r := io.NewSectionReader(f, start, end-start)
			buf := make([]byte, streamBufferSize)
			if _, err := io.CopyBuffer(h, r, buf); err != nil {
				return fmt.Errorf("failed to hash block %d of %s: %w", i, path, err)
			}

			sum := hex.EncodeToString(h.Sum(nil))
			if expected != nil && i < len(expected) && expected[i].Hash != sum {
				return errBlockMismatch
			}
			blocks[i] = Block{Hash: sum, Start: start, End: end - 1}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return blocks, nil
}

// foldBlocks derives the file-level digest from the ordered block digests.
func foldBlocks(blocks []Block) string {
	h := sha256.New()
	for _, b := range blocks {
		h.Write([]byte(b.Hash))
	}
	return hex.EncodeToString(h.Sum(nil))
}
