package repo

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/codimo/glacier/internal/core"
	"github.com/codimo/glacier/internal/pathutil"
	"github.com/codimo/glacier/internal/tree"
	"golang.org/x/sync/errgroup"
)

// MainIndex is the id of the index used when the caller does not name one.
const MainIndex = ""

// Index accumulates add and delete intents until they are bundled into a
// commit. A repository can carry several named indexes at once; each is
// persisted between sessions and invalidated by the commit that consumes
// it.
type Index struct {
	ID string

	repo        *Repository
	addPaths    map[string]struct{}
	deletePaths map[string]struct{}
	processed   map[string]tree.FileInfo
	valid       bool
}

// indexState is the persisted form of an index.
type indexState struct {
	ID        string                   `json:"id"`
	Adds      []string                 `json:"adds,omitempty"`
	Deletes   []string                 `json:"deletes,omitempty"`
	Processed map[string]tree.FileInfo `json:"processed,omitempty"`
	Valid     bool                     `json:"valid"`
}

func newIndex(r *Repository, id string) *Index {
	return &Index{
		ID:          id,
		repo:        r,
		addPaths:    make(map[string]struct{}),
		deletePaths: make(map[string]struct{}),
		processed:   make(map[string]tree.FileInfo),
		valid:       true,
	}
}

// newIndexID returns a random 6-hex-char index id.
func newIndexID() string {
	var b [3]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Valid reports whether the index still accepts mutations.
func (idx *Index) Valid() bool {
	return idx.valid
}

// Add records the intent to include relPath in the next commit.
func (idx *Index) Add(relPath string) error {
	if !idx.valid {
		return core.ErrIndexInvalidated
	}
	idx.addPaths[pathutil.Normalize(relPath)] = struct{}{}
	return nil
}

// Remove records the intent to delete relPath in the next commit.
func (idx *Index) Remove(relPath string) error {
	if !idx.valid {
		return core.ErrIndexInvalidated
	}
	idx.deletePaths[pathutil.Normalize(relPath)] = struct{}{}
	return nil
}

// AddRelPaths returns the added paths, sorted.
func (idx *Index) AddRelPaths() []string {
	return sortedKeys(idx.addPaths)
}

// DeleteRelPaths returns the paths marked for deletion, sorted.
func (idx *Index) DeleteRelPaths() []string {
	return sortedKeys(idx.deletePaths)
}

// WriteFiles ingests every added file into the object store and records
// the resulting metadata. Files currently being written by another process
// fail the whole ingest up front.
func (idx *Index) WriteFiles(ctx context.Context) error {
	if !idx.valid {
		return core.ErrIndexInvalidated
	}

	paths := idx.AddRelPaths()
	if len(paths) == 0 {
		return idx.save()
	}
	if err := idx.repo.ioc.PerformWriteLockChecks(idx.repo.workdir, paths); err != nil {
		return err
	}

	infos := make([]tree.FileInfo, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, rel := range paths {
		i, rel := i, rel
		g.Go(func() error {
			info, err := idx.repo.store.WriteBlob(ctx, pathutil.Join(idx.repo.workdir, rel), idx.repo.ioc)
			if err != nil {
				return fmt.Errorf("failed to ingest %s: %w", rel, err)
			}
			infos[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, rel := range paths {
		idx.processed[rel] = infos[i]
	}
	return idx.save()
}

// Processed returns a copy of the ingested file metadata by relative path.
func (idx *Index) Processed() map[string]tree.FileInfo {
	out := make(map[string]tree.FileInfo, len(idx.processed))
	for k, v := range idx.processed {
		out[k] = v
	}
	return out
}

// Invalidate persists the final index state and rejects all further
// mutations.
func (idx *Index) Invalidate() error {
	idx.valid = false
	return idx.save()
}

// save persists the index state into the store's index database.
func (idx *Index) save() error {
	state := indexState{
		ID:        idx.ID,
		Adds:      idx.AddRelPaths(),
		Deletes:   idx.DeleteRelPaths(),
		Processed: idx.processed,
		Valid:     idx.valid,
	}
	data, err := json.Marshal(&state)
	if err != nil {
		return err
	}
	return idx.repo.store.WriteIndex(idx.ID, data)
}

// loadIndex rebuilds an index from its persisted state.
func loadIndex(r *Repository, data []byte) (*Index, error) {
	var state indexState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	idx := newIndex(r, state.ID)
	for _, p := range state.Adds {
		idx.addPaths[p] = struct{}{}
	}
	for _, p := range state.Deletes {
		idx.deletePaths[p] = struct{}{}
	}
	if state.Processed != nil {
		idx.processed = state.Processed
	}
	idx.valid = state.Valid
	return idx, nil
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
