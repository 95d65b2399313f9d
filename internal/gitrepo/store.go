// Package gitrepo keeps the published tree in a git repository: every created
// node is one commit, so the publish history is the branch log.
package gitrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"chronicle/docsync/internal/tree"
)

const nodesDir = "nodes"

// CommitInfo describes one publish commit.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// nodeFile is the content of nodes/<id>.json.
type nodeFile struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

var _ tree.Store = (*Store)(nil)

// Store is a tree.Store whose nodes live as files on one branch. Lookups are
// served from an index rebuilt from the branch head when the store is opened.
type Store struct {
	mu     sync.RWMutex
	repo   *git.Repository
	branch string
	author string
	byID   map[string]string
	byPath map[string]string
}

// Open opens the repository at dir, initializing it with an empty first commit
// on branch when it does not exist yet.
func Open(dir, branch, author string) (*Store, error) {
	if branch == "" {
		branch = "main"
	}
	if author == "" {
		author = "Publisher"
	}

	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = initRepo(dir, branch, author)
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if err := checkoutBranch(repo, branch); err != nil {
		return nil, err
	}

	s := &Store{
		repo:   repo,
		branch: branch,
		author: author,
		byID:   map[string]string{},
		byPath: map[string]string{},
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) HasIdentifier(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok, nil
}

func (s *Store) HasPath(_ context.Context, path string) (bool, error) {
	if err := tree.ValidatePath(path); err != nil {
		return false, err
	}
	if path == tree.RootPath {
		return true, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byPath[path]
	return ok, nil
}

func (s *Store) FindByIdentifier(_ context.Context, id string) (tree.NodeHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	path, ok := s.byID[id]
	if !ok {
		return tree.NodeHandle{}, fmt.Errorf("identifier %s: %w", id, tree.ErrNodeNotFound)
	}
	return tree.NodeHandle{Identifier: id, Path: path}, nil
}

func (s *Store) FindByPath(_ context.Context, path string) (tree.NodeHandle, error) {
	if err := tree.ValidatePath(path); err != nil {
		return tree.NodeHandle{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPath[path]
	if !ok {
		return tree.NodeHandle{}, fmt.Errorf("path %s: %w", path, tree.ErrNodeNotFound)
	}
	return tree.NodeHandle{Identifier: id, Path: path}, nil
}

// CreateAt writes the node file and commits it on the branch.
func (s *Store) CreateAt(ctx context.Context, path, id string) (tree.NodeHandle, error) {
	if err := ctx.Err(); err != nil {
		return tree.NodeHandle{}, err
	}
	if err := tree.ValidatePath(path); err != nil {
		return tree.NodeHandle{}, err
	}
	if id == "" {
		return tree.NodeHandle{}, tree.ErrInvalidIdentifier
	}
	if path == tree.RootPath {
		return tree.NodeHandle{}, fmt.Errorf("path %s: %w", path, tree.ErrPathExists)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byPath[path]; ok {
		return tree.NodeHandle{}, fmt.Errorf("path %s: %w", path, tree.ErrPathExists)
	}
	if existing, ok := s.byID[id]; ok {
		return tree.NodeHandle{}, fmt.Errorf("identifier %s at %s: %w", id, existing, tree.ErrIdentifierExists)
	}
	parent := tree.ParentPath(path)
	if _, ok := s.byPath[parent]; parent != tree.RootPath && !ok {
		return tree.NodeHandle{}, fmt.Errorf("parent %s: %w", parent, tree.ErrParentMissing)
	}

	if err := s.commitNode(nodeFile{ID: id, Path: path}); err != nil {
		return tree.NodeHandle{}, err
	}
	s.byPath[path] = id
	s.byID[id] = path
	return tree.NodeHandle{Identifier: id, Path: path}, nil
}

func (s *Store) ParentPath(path string) string {
	return tree.ParentPath(path)
}

// Nodes returns every published node sorted by path.
func (s *Store) Nodes() []tree.NodeHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes := make([]tree.NodeHandle, 0, len(s.byPath))
	for path, id := range s.byPath {
		nodes = append(nodes, tree.NodeHandle{Identifier: id, Path: path})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Path < nodes[j].Path })
	return nodes
}

// History returns the most recent publish commits, newest first.
func (s *Store) History(limit int) ([]CommitInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, err := s.repo.Reference(plumbing.NewBranchReferenceName(s.branch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", s.branch, err)
	}

	iter, err := s.repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, max(limit, 0))
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

func (s *Store) commitNode(node nodeFile) error {
	worktree, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(node, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal node: %w", err)
	}

	name := nodeFileName(node.ID)
	full := filepath.Join(worktree.Filesystem.Root(), filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create nodes dir: %w", err)
	}
	if err := os.WriteFile(full, append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if _, err := worktree.Add(name); err != nil {
		return fmt.Errorf("git add %s: %w", name, err)
	}

	message := fmt.Sprintf("publish: create %s\n\nid: %s", node.Path, node.ID)
	if _, err := worktree.Commit(message, &git.CommitOptions{Author: s.signature()}); err != nil {
		return fmt.Errorf("commit node %s: %w", node.Path, err)
	}
	return nil
}

func (s *Store) loadIndex() error {
	ref, err := s.repo.Reference(plumbing.NewBranchReferenceName(s.branch), true)
	if err != nil {
		return fmt.Errorf("resolve branch %s: %w", s.branch, err)
	}
	commitObj, err := s.repo.CommitObject(ref.Hash())
	if err != nil {
		return fmt.Errorf("load head commit: %w", err)
	}
	files, err := commitObj.Files()
	if err != nil {
		return fmt.Errorf("list head files: %w", err)
	}

	return files.ForEach(func(file *object.File) error {
		if !strings.HasPrefix(file.Name, nodesDir+"/") || !strings.HasSuffix(file.Name, ".json") {
			return nil
		}
		contents, err := file.Contents()
		if err != nil {
			return fmt.Errorf("read %s: %w", file.Name, err)
		}
		var node nodeFile
		if err := json.Unmarshal([]byte(contents), &node); err != nil {
			return fmt.Errorf("decode %s: %w", file.Name, err)
		}
		s.byID[node.ID] = node.Path
		s.byPath[node.Path] = node.ID
		return nil
	})
}

func (s *Store) signature() *object.Signature {
	return &object.Signature{
		Name:  s.author,
		Email: fmt.Sprintf("%s@local.chronicle.dev", sanitizeEmail(s.author)),
		When:  time.Now(),
	}
}

func initRepo(dir, branch, author string) (*git.Repository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	hash, err := worktree.Commit("Initialize published tree", &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.chronicle.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("commit initial tree: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName(branch), hash)); err != nil {
		return nil, fmt.Errorf("set %s branch ref: %w", branch, err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branch))); err != nil {
		return nil, fmt.Errorf("set HEAD to %s: %w", branch, err)
	}
	return repo, nil
}

func checkoutBranch(repo *git.Repository, branchName string) error {
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	branchRef := plumbing.NewBranchReferenceName(branchName)
	if _, err := repo.Reference(branchRef, true); err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Create: true}); err != nil {
				return fmt.Errorf("create branch checkout %s: %w", branchName, err)
			}
			return nil
		}
		return fmt.Errorf("resolve branch %s: %w", branchName, err)
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: true}); err != nil {
		return fmt.Errorf("checkout branch %s: %w", branchName, err)
	}
	return nil
}

func nodeFileName(id string) string {
	return nodesDir + "/" + url.PathEscape(id) + ".json"
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   strings.TrimSpace(commitObj.Message),
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	bytes := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			bytes = append(bytes, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			bytes = append(bytes, '.')
		}
	}
	if len(bytes) == 0 {
		return "user"
	}
	return string(bytes)
}
