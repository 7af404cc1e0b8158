// Package store is the object database under the commondir: content-
// addressed blobs, zstd-compressed commit and reference records, the HEAD
// record, the operation log and the index database.
//
// Blobs are stored uncompressed so the I/O context can clone them in and
// out on filesystems that support copy-on-write.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/codimo/glacier/internal/core"
	"github.com/codimo/glacier/internal/hasher"
	"github.com/codimo/glacier/internal/ioctx"
	"github.com/codimo/glacier/internal/tree"

	bolt "go.etcd.io/bbolt"
)

const (
	objectsDir = "objects"
	commitsDir = "commits"
	refsDir    = "refs"
	headFile   = "HEAD"
	logFile    = "log"
	indexDB    = "indexes.db"
)

var indexBucket = []byte("indexes")

// mainIndexKey stands in for the main index's empty id; bbolt rejects empty
// keys.
const mainIndexKey = "@main"

func indexKey(id string) []byte {
	if id == "" {
		return []byte(mainIndexKey)
	}
	return []byte(id)
}

// Store is the on-disk object database of one repository.
type Store struct {
	root string
	db   *bolt.DB
}

// Create initializes a fresh object database under commondir.
func Create(commondir string) (*Store, error) {
	for _, dir := range []string{
		commondir,
		filepath.Join(commondir, objectsDir),
		filepath.Join(commondir, commitsDir),
		filepath.Join(commondir, refsDir),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(filepath.Join(commondir, headFile), nil, 0644); err != nil {
		return nil, fmt.Errorf("failed to create HEAD: %w", err)
	}
	return Open(commondir)
}

// Open opens an existing object database.
func Open(commondir string) (*Store, error) {
	info, err := os.Stat(commondir)
	if err != nil || !info.IsDir() {
		return nil, core.ErrInvalidCommondir
	}

	db, err := bolt.Open(filepath.Join(commondir, indexDB), 0666, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(indexBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{root: commondir, db: db}, nil
}

// Close releases the index database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Root returns the commondir path.
func (s *Store) Root() string {
	return s.root
}

// blobPath fans blobs out over two-level directories to keep directory
// sizes bounded.
func (s *Store) blobPath(hash string) string {
	return filepath.Join(s.root, objectsDir, hash[:2], hash[2:])
}

// HasBlob reports whether the blob is present.
func (s *Store) HasBlob(hash string) bool {
	_, err := os.Stat(s.blobPath(hash))
	return err == nil
}

// WriteBlob fingerprints the file at srcAbsPath and copies it into the
// store under its content hash. Writing an already-present blob is a no-op
// beyond the hashing.
func (s *Store) WriteBlob(ctx context.Context, srcAbsPath string, ioc *ioctx.IoContext) (tree.FileInfo, error) {
	fh, err := hasher.HashFile(ctx, srcAbsPath)
	if err != nil {
		return tree.FileInfo{}, err
	}
	info, err := tree.NewFileInfo(srcAbsPath, fh)
	if err != nil {
		return tree.FileInfo{}, err
	}

	dst := s.blobPath(fh.Hash)
	if _, err := os.Stat(dst); err == nil {
		return info, nil
	}

	// Copy through a temp name so a crashed copy never leaves a partial
	// blob under its final hash.
	tmp := dst + fmt.Sprintf(".tmp-%d", os.Getpid())
	if err := ioc.CopyFile(srcAbsPath, tmp); err != nil {
		return tree.FileInfo{}, err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return tree.FileInfo{}, &core.IoError{Path: dst, Cause: err}
	}
	return info, nil
}

// ReadBlob materializes the blob at dstAbsPath.
func (s *Store) ReadBlob(hash, dstAbsPath string, ioc *ioctx.IoContext) error {
	src := s.blobPath(hash)
	if _, err := os.Stat(src); err != nil {
		return &core.IoError{Path: src, Cause: err}
	}
	return ioc.CopyFile(src, dstAbsPath)
}

// DeleteBlob removes a blob. Callers are responsible for never deleting a
// blob referenced by a reachable commit.
func (s *Store) DeleteBlob(hash string) error {
	return os.Remove(s.blobPath(hash))
}

// WriteCommit persists a commit record.
func (s *Store) WriteCommit(c *core.Commit) error {
	return writeRecord(filepath.Join(s.root, commitsDir, c.Hash.String()), c)
}

// ReadCommits loads every commit record.
func (s *Store) ReadCommits() ([]*core.Commit, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, commitsDir))
	if err != nil {
		return nil, err
	}
	commits := make([]*core.Commit, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		c := &core.Commit{}
		if err := readRecord(filepath.Join(s.root, commitsDir, entry.Name()), c); err != nil {
			return nil, fmt.Errorf("failed to read commit %s: %w", entry.Name(), err)
		}
		commits = append(commits, c)
	}
	return commits, nil
}

// WriteReference persists a reference record.
func (s *Store) WriteReference(r *core.Reference) error {
	return writeRecord(filepath.Join(s.root, refsDir, r.Name), r)
}

// DeleteReference removes a reference record.
func (s *Store) DeleteReference(r *core.Reference) error {
	return os.Remove(filepath.Join(s.root, refsDir, r.Name))
}

// ReadReferences loads every reference record.
func (s *Store) ReadReferences() ([]*core.Reference, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, refsDir))
	if err != nil {
		return nil, err
	}
	refs := make([]*core.Reference, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		r := &core.Reference{}
		if err := readRecord(filepath.Join(s.root, refsDir, entry.Name()), r); err != nil {
			return nil, fmt.Errorf("failed to read reference %s: %w", entry.Name(), err)
		}
		refs = append(refs, r)
	}
	return refs, nil
}

// WriteHeadReference records what HEAD points at: a reference name, or a
// raw commit hash when detached.
func (s *Store) WriteHeadReference(value string) error {
	tmp := filepath.Join(s.root, headFile+".tmp")
	if err := os.WriteFile(tmp, []byte(value+"\n"), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(s.root, headFile))
}

// ReadHeadReference returns the HEAD record's value, or "" when the record
// is empty.
func (s *Store) ReadHeadReference() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, headFile))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// AppendLog appends one line to the operation log.
func (s *Store) AppendLog(line string) error {
	f, err := os.OpenFile(filepath.Join(s.root, logFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, line)
	return err
}

// WriteIndex persists one serialized index state.
func (s *Store) WriteIndex(id string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(indexBucket).Put(indexKey(id), data)
	})
}

// DeleteIndex removes one persisted index state.
func (s *Store) DeleteIndex(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(indexBucket).Delete(indexKey(id))
	})
}

// ReadIndexes returns every persisted index state keyed by index id.
func (s *Store) ReadIndexes() (map[string][]byte, error) {
	indexes := make(map[string][]byte)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(indexBucket).ForEach(func(k, v []byte) error {
			data := make([]byte, len(v))
			copy(data, v)
			id := string(k)
			if id == mainIndexKey {
				id = ""
			}
			indexes[id] = data
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return indexes, nil
}

// writeRecord stores a zstd-compressed JSON record, atomically via a temp
// file.
func writeRecord(path string, v any) error {
	data, err := encodeRecord(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// readRecord loads a zstd-compressed JSON record.
func readRecord(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return decodeRecord(data, v)
}
