// Package repo holds the repository state machine: the commit graph,
// references, HEAD, indexes, and the checkout and status engines built on
// top of them.
//
// A Repository instance owns its metadata; mutating operations are not safe
// for concurrent use and must be serialized by the caller.
package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/codimo/glacier/internal/core"
	"github.com/codimo/glacier/internal/ignore"
	"github.com/codimo/glacier/internal/ioctx"
	"github.com/codimo/glacier/internal/pathutil"
	"github.com/codimo/glacier/internal/store"
	"github.com/codimo/glacier/internal/tree"
)

// snowEntry is the repository marker inside the working directory: a
// directory holding the commondir, or a file whose text is the absolute
// path of an external commondir.
const snowEntry = ".snow"

// defaultRefName is the reference auto-created with the first commit.
const defaultRefName = "Main"

// detachedHeadName marks a HEAD that points at a commit directly instead of
// shadowing a reference.
const detachedHeadName = "HEAD"

// Head is the pointer that defines what "current" means.
type Head struct {
	Name string
	Hash core.Hash
}

// Detached reports whether HEAD points at a commit without a reference.
func (h Head) Detached() bool {
	return h.Name == detachedHeadName
}

// Repository is an opened working directory plus its metadata store.
type Repository struct {
	workdir   string
	commondir string

	store   *store.Store
	ioc     *ioctx.IoContext
	matcher *ignore.Matcher

	commits   []*core.Commit
	commitMap map[core.Hash]*core.Commit
	refs      []*core.Reference
	head      Head
	indexes   map[string]*Index
}

// InitOptions configures InitExt.
type InitOptions struct {
	// Commondir places the repository metadata outside the working
	// directory. It must neither contain the working directory nor lie
	// inside it.
	Commondir string
}

// Init initializes a repository with the metadata inside the working
// directory.
func Init(workdir string) (*Repository, error) {
	return InitExt(workdir, InitOptions{})
}

// InitExt initializes a repository and records an initial empty commit.
func InitExt(workdir string, opts InitOptions) (*Repository, error) {
	workdir, err := pathutil.Resolve(workdir)
	if err != nil {
		return nil, err
	}

	commondir := opts.Commondir
	external := commondir != ""
	if external {
		commondir, err = pathutil.Resolve(commondir)
		if err != nil {
			return nil, err
		}
		// An externalized commondir must live outside the project tree.
		if strings.HasPrefix(workdir+"/", commondir+"/") || strings.HasPrefix(commondir+"/", workdir+"/") {
			return nil, fmt.Errorf("%w: %s overlaps the working directory", core.ErrInvalidCommondir, commondir)
		}
	} else {
		commondir = pathutil.Join(workdir, snowEntry)
	}

	if err := os.MkdirAll(filepath.FromSlash(workdir), 0755); err != nil {
		return nil, err
	}
	marker := filepath.Join(filepath.FromSlash(workdir), snowEntry)
	if _, err := os.Stat(marker); err == nil {
		return nil, core.ErrAlreadyOpen
	}
	if external {
		if err := os.WriteFile(marker, []byte(commondir), 0644); err != nil {
			return nil, err
		}
	}

	st, err := store.Create(filepath.FromSlash(commondir))
	if err != nil {
		return nil, err
	}

	r, err := load(workdir, commondir, st, true)
	if err != nil {
		st.Close()
		return nil, err
	}

	idx := r.EnsureIndex(MainIndex)
	if _, err := r.CreateCommit(context.Background(), idx, "Created Project", CommitOptions{AllowEmpty: true}); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// Open finds the repository containing workdir and loads it.
func Open(workdir string) (*Repository, error) {
	workdir, err := pathutil.Resolve(workdir)
	if err != nil {
		return nil, err
	}

	// Walk ancestors until one carries the repository marker.
	dir := workdir
	for {
		if _, err := os.Stat(filepath.Join(filepath.FromSlash(dir), snowEntry)); err == nil {
			break
		}
		parent := pathutil.Dirname(dir)
		if parent == dir {
			return nil, core.ErrNotARepository
		}
		dir = parent
	}
	workdir = dir

	marker := filepath.Join(filepath.FromSlash(workdir), snowEntry)
	commondir := pathutil.Join(workdir, snowEntry)
	if info, err := os.Stat(marker); err == nil && !info.IsDir() {
		data, err := os.ReadFile(marker)
		if err != nil {
			return nil, err
		}
		commondir = pathutil.Normalize(strings.TrimSpace(string(data)))
	}

	if info, err := os.Stat(filepath.FromSlash(commondir)); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidCommondir, commondir)
	}

	st, err := store.Open(filepath.FromSlash(commondir))
	if err != nil {
		return nil, err
	}
	r, err := load(workdir, commondir, st, false)
	if err != nil {
		st.Close()
		return nil, err
	}
	return r, nil
}

// load builds the in-memory repository state from the store.
func load(workdir, commondir string, st *store.Store, fresh bool) (*Repository, error) {
	r := &Repository{
		workdir:   workdir,
		commondir: commondir,
		store:     st,
		commitMap: make(map[core.Hash]*core.Commit),
		indexes:   make(map[string]*Index),
	}

	ioc, err := ioctx.New()
	if err != nil {
		return nil, err
	}
	r.ioc = ioc

	r.matcher = ignore.New()
	ignoreFile := filepath.Join(filepath.FromSlash(workdir), ".snowignore")
	if _, err := os.Stat(ignoreFile); err == nil {
		if err := r.matcher.LoadFile(ignoreFile); err != nil {
			return nil, err
		}
	}

	commits, err := st.ReadCommits()
	if err != nil {
		return nil, err
	}
	for _, c := range commits {
		r.commits = append(r.commits, c)
		r.commitMap[c.Hash] = c
	}

	refs, err := st.ReadReferences()
	if err != nil {
		return nil, err
	}
	r.refs = refs

	if err := r.loadHead(fresh); err != nil {
		return nil, err
	}

	states, err := st.ReadIndexes()
	if err != nil {
		return nil, err
	}
	for id, data := range states {
		idx, err := loadIndex(r, data)
		if err != nil {
			return nil, fmt.Errorf("failed to load index %q: %w", id, err)
		}
		r.indexes[id] = idx
	}

	return r, nil
}

// loadHead resolves the persisted HEAD record: a reference name attaches
// HEAD to that reference, anything else is treated as a raw commit hash.
func (r *Repository) loadHead(fresh bool) error {
	value, err := r.store.ReadHeadReference()
	if err != nil || value == "" {
		if fresh {
			return nil
		}
		if len(r.refs) > 0 {
			r.head = Head{Name: r.refs[0].Name, Hash: r.refs[0].Hash}
			return nil
		}
		return core.ErrNoHead
	}

	if ref := r.findReference(value); ref != nil {
		r.head = Head{Name: ref.Name, Hash: ref.Hash}
		return nil
	}

	hash, err := core.ParseHash(value)
	if err != nil {
		return fmt.Errorf("%w: HEAD record %q", core.ErrInvalidHash, value)
	}
	r.head = Head{Name: detachedHeadName, Hash: hash}
	return nil
}

// Close releases the repository's store.
func (r *Repository) Close() error {
	return r.store.Close()
}

// Workdir returns the working directory (forward-slash form).
func (r *Repository) Workdir() string {
	return r.workdir
}

// Commondir returns the metadata directory (forward-slash form).
func (r *Repository) Commondir() string {
	return r.commondir
}

// Head returns the current HEAD pointer.
func (r *Repository) Head() Head {
	return r.head
}

// Commits returns the loaded commits in insertion order.
func (r *Repository) Commits() []*core.Commit {
	return r.commits
}

// References returns the loaded references.
func (r *Repository) References() []*core.Reference {
	return r.refs
}

// IgnoreMatcher exposes the repository's ignore rules.
func (r *Repository) IgnoreMatcher() *ignore.Matcher {
	return r.matcher
}

// EnsureIndex returns the index with the given id, creating it on demand.
// Pass MainIndex for the default index.
func (r *Repository) EnsureIndex(id string) *Index {
	if idx, ok := r.indexes[id]; ok && idx.valid {
		return idx
	}
	idx := newIndex(r, id)
	r.indexes[id] = idx
	return idx
}

// NewIndex creates a fresh index under a random id.
func (r *Repository) NewIndex() *Index {
	idx := newIndex(r, newIndexID())
	r.indexes[idx.ID] = idx
	return idx
}

// DeleteIndex drops an index and its persisted state.
func (r *Repository) DeleteIndex(id string) error {
	delete(r.indexes, id)
	return r.store.DeleteIndex(id)
}

// CommitOptions configures CreateCommit.
type CommitOptions struct {
	// AllowEmpty permits a commit whose index stages no changes.
	AllowEmpty bool

	// Tags are attached to the new commit.
	Tags []string

	// UserData is carried on the commit verbatim.
	UserData map[string]json.RawMessage
}

// CreateCommit bundles the index's staged changes into a new commit.
//
// The in-memory graph is mutated before anything is persisted, and
// persistence order is fixed: commit record, HEAD, the advanced reference,
// the log line. A crash in between loses at most the newest commit; it
// never leaves the metadata pointing at a missing record.
func (r *Repository) CreateCommit(ctx context.Context, idx *Index, message string, opts CommitOptions) (*core.Commit, error) {
	if !opts.AllowEmpty && len(idx.addPaths) == 0 && len(idx.deletePaths) == 0 {
		return nil, core.ErrNothingToCommit
	}

	if err := idx.WriteFiles(ctx); err != nil {
		return nil, err
	}

	// Unchanged files keep the hash and metadata of the HEAD snapshot.
	processed := make(map[string]tree.FileInfo)
	if headCommit := r.commitMap[r.head.Hash]; headCommit != nil {
		for p, f := range headCommit.Root.Collect() {
			processed[p] = tree.FileInfo{
				Hash:   f.Hash,
				Blocks: f.Blocks,
				Size:   f.Size,
				Mtime:  f.Mtime,
				Ctime:  f.Ctime,
			}
		}
	}
	for p, info := range idx.Processed() {
		processed[p] = info
	}

	root := tree.Construct(processed)
	for p := range idx.deletePaths {
		root.Remove(p)
	}

	if err := idx.Invalidate(); err != nil {
		return nil, err
	}

	commit := &core.Commit{
		Message:  message,
		Date:     time.Now(),
		Root:     root,
		UserData: opts.UserData,
	}
	if !r.head.Hash.IsZero() {
		commit.Parents = []core.Hash{r.head.Hash}
	}
	for _, tag := range opts.Tags {
		commit.AddTag(tag)
	}
	commit.Hash = commit.ComputeHash()

	first := len(r.commits) == 0
	r.commits = append(r.commits, commit)
	r.commitMap[commit.Hash] = commit

	var advanced *core.Reference
	if first {
		ref := &core.Reference{
			Type:  core.RefBranch,
			Name:  defaultRefName,
			Hash:  commit.Hash,
			Start: commit.Hash,
		}
		r.refs = append(r.refs, ref)
		r.head.Name = ref.Name
		advanced = ref
	} else if !r.head.Detached() {
		advanced = r.findReference(r.head.Name)
	}
	r.head.Hash = commit.Hash
	if advanced != nil {
		advanced.Hash = commit.Hash
	}

	if err := r.store.WriteCommit(commit); err != nil {
		return nil, err
	}
	if err := r.persistHead(); err != nil {
		return nil, err
	}
	if advanced != nil {
		if err := r.store.WriteReference(advanced); err != nil {
			return nil, err
		}
	}
	if err := r.store.AppendLog(fmt.Sprintf("commit %s %s", commit.Hash, strconv.Quote(message))); err != nil {
		return nil, err
	}
	return commit, nil
}

// persistHead writes the HEAD record: the attached reference's name, or the
// raw hash when detached.
func (r *Repository) persistHead() error {
	if r.head.Detached() {
		return r.store.WriteHeadReference(r.head.Hash.String())
	}
	return r.store.WriteHeadReference(r.head.Name)
}

// findReference returns the reference with the given name, or nil.
func (r *Repository) findReference(name string) *core.Reference {
	for _, ref := range r.refs {
		if ref.Name == name {
			return ref
		}
	}
	return nil
}

// FindCommitByReferenceName resolves a reference to its commit.
func (r *Repository) FindCommitByReferenceName(name string) (*core.Commit, error) {
	ref := r.findReference(name)
	if ref == nil {
		return nil, core.ErrRefNotFound
	}
	c, ok := r.commitMap[ref.Hash]
	if !ok {
		return nil, core.ErrUnknownTarget
	}
	return c, nil
}

// FindCommitByHash resolves a commit hash or an ancestry expression of the
// form "<hash-or-HEAD>~N~M...", walking N, then M first parents.
func (r *Repository) FindCommitByHash(expr string) (*core.Commit, error) {
	segments := strings.Split(expr, "~")

	var commit *core.Commit
	if segments[0] == detachedHeadName {
		commit = r.commitMap[r.head.Hash]
	} else if hash, err := core.ParseHash(segments[0]); err == nil {
		commit = r.commitMap[hash]
	}
	if commit == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownTarget, segments[0])
	}

	for _, seg := range segments[1:] {
		n, err := strconv.Atoi(seg)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q", core.ErrInvalidHashSyntax, expr)
		}
		for i := 0; i < n; i++ {
			if len(commit.Parents) == 0 {
				return nil, fmt.Errorf("%w: %s", core.ErrOutOfHistory, expr)
			}
			parent, ok := r.commitMap[commit.Parents[0]]
			if !ok {
				return nil, fmt.Errorf("%w: %s", core.ErrOutOfHistory, expr)
			}
			commit = parent
		}
	}
	return commit, nil
}

// GetCommitHistory walks first parents from HEAD, newest first. A limit of
// 0 means unbounded.
func (r *Repository) GetCommitHistory(limit int) []*core.Commit {
	var history []*core.Commit
	commit := r.commitMap[r.head.Hash]
	for commit != nil && (limit == 0 || len(history) < limit) {
		history = append(history, commit)
		if len(commit.Parents) == 0 {
			break
		}
		commit = r.commitMap[commit.Parents[0]]
	}
	return history
}

// CreateNewReference creates a branch at the given commit.
func (r *Repository) CreateNewReference(name string, start core.Hash, userData map[string]json.RawMessage) (*core.Reference, error) {
	if r.findReference(name) != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrRefExists, name)
	}
	if _, ok := r.commitMap[start]; !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidStartPoint, start)
	}
	ref := &core.Reference{
		Type:     core.RefBranch,
		Name:     name,
		Hash:     start,
		Start:    start,
		UserData: userData,
	}
	r.refs = append(r.refs, ref)
	if err := r.store.WriteReference(ref); err != nil {
		return nil, err
	}
	return ref, nil
}

// DeleteReference removes a branch. The branch HEAD shadows cannot be
// deleted.
func (r *Repository) DeleteReference(name string) error {
	if !r.head.Detached() && r.head.Name == name {
		return core.ErrCannotDeleteCheckedOutRef
	}
	ref := r.findReference(name)
	if ref == nil {
		return core.ErrRefNotFound
	}
	for i, candidate := range r.refs {
		if candidate == ref {
			r.refs = append(r.refs[:i], r.refs[i+1:]...)
			break
		}
	}
	return r.store.DeleteReference(ref)
}

// SetHead attaches HEAD to a reference.
func (r *Repository) SetHead(name string) error {
	ref := r.findReference(name)
	if ref == nil {
		return core.ErrRefNotFound
	}
	r.head = Head{Name: ref.Name, Hash: ref.Hash}
	return r.persistHead()
}

// SetHeadDetached points HEAD directly at a commit.
func (r *Repository) SetHeadDetached(hash core.Hash) error {
	if _, ok := r.commitMap[hash]; !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownTarget, hash)
	}
	r.head = Head{Name: detachedHeadName, Hash: hash}
	return r.persistHead()
}
