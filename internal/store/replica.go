package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/okian/communityrank/pkg/logger"
	"github.com/okian/communityrank/pkg/metrics"
)

// repoMu serializes git operations across all stores sharing a clone.
var repoMu sync.Mutex //nolint:gochecknoglobals // one working copy per process

const commitMessage = "Update database files"

// Replica mirrors the database directory to a remote repository. All
// failures past the initial clone are best-effort: commit and push errors
// are reported to the caller, which logs and continues.
type Replica struct {
	url    string
	branch string
	dir    string
	repo   *git.Repository
	log    logger.Logger
}

// openReplica clones or opens the data repository at dir and makes sure the
// configured branch is checked out, creating it as an orphan branch when it
// does not exist remotely.
func openReplica(ctx context.Context, url, branch, dir string, log logger.Logger) (*Replica, error) {
	repoMu.Lock()
	defer repoMu.Unlock()

	r := &Replica{url: url, branch: branch, dir: dir, log: log}

	if fileExists(filepath.Join(dir, ".git")) {
		repo, err := git.PlainOpen(dir)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReplication, err)
		}
		r.repo = repo
		if err := r.ensureBranch(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReplication, err)
		}
		return r, nil
	}

	log.Info(ctx, "cloning data repository",
		logger.String("url", url), logger.String("branch", branch))

	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:           url,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
	})
	if err == nil {
		r.repo = repo
		return r, nil
	}

	switch {
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
		repo, initErr := git.PlainInit(dir, false)
		if initErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrReplication, initErr)
		}
		if _, remoteErr := repo.CreateRemote(&gitconfig.RemoteConfig{
			Name: "origin",
			URLs: []string{url},
		}); remoteErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrReplication, remoteErr)
		}
		r.repo = repo
		if orphanErr := r.initOrphanBranch(ctx); orphanErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrReplication, orphanErr)
		}
		return r, nil

	case isBranchMissing(err):
		log.Info(ctx, "remote branch not found, creating orphan branch",
			logger.String("branch", branch))
		repo, cloneErr := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: url})
		if cloneErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrReplication, cloneErr)
		}
		r.repo = repo
		if orphanErr := r.initOrphanBranch(ctx); orphanErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrReplication, orphanErr)
		}
		return r, nil
	}

	return nil, fmt.Errorf("%w: %w", ErrReplication, err)
}

// ensureBranch checks out the configured branch on an existing clone,
// creating it from the remote branch or as a fresh orphan when missing.
func (r *Replica) ensureBranch(ctx context.Context) error {
	branchRef := plumbing.NewBranchReferenceName(r.branch)

	wt, err := r.repo.Worktree()
	if err != nil {
		return err
	}

	if _, refErr := r.repo.Reference(branchRef, false); refErr == nil {
		return wt.Checkout(&git.CheckoutOptions{Branch: branchRef})
	}

	fetchErr := r.repo.FetchContext(ctx, &git.FetchOptions{RemoteName: "origin"})
	if fetchErr != nil && !errors.Is(fetchErr, git.NoErrAlreadyUpToDate) {
		r.log.Warn(ctx, "fetch failed while looking for branch",
			logger.String("branch", r.branch), logger.Error(fetchErr))
	}

	remoteRef := plumbing.NewRemoteReferenceName("origin", r.branch)
	if ref, refErr := r.repo.Reference(remoteRef, true); refErr == nil {
		return wt.Checkout(&git.CheckoutOptions{
			Branch: branchRef,
			Create: true,
			Hash:   ref.Hash(),
		})
	}

	return r.initOrphanBranch(ctx)
}

// initOrphanBranch creates the configured branch with no history, commits a
// .gitkeep placeholder and pushes it. A failed push is logged and not fatal;
// we might not have push permissions.
func (r *Replica) initOrphanBranch(ctx context.Context) error {
	branchRef := plumbing.NewBranchReferenceName(r.branch)

	// Pointing HEAD at the unborn branch makes the next commit parentless,
	// matching `git checkout --orphan`.
	if err := r.repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, branchRef)); err != nil {
		return err
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Name() == ".git" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(r.dir, entry.Name())); err != nil {
			return err
		}
	}

	if err := os.WriteFile(filepath.Join(r.dir, ".gitkeep"), nil, 0o644); err != nil {
		return err
	}
	if _, err := wt.Add(".gitkeep"); err != nil {
		return err
	}
	if _, err := wt.Commit(fmt.Sprintf("Initialize empty branch '%s'", r.branch), &git.CommitOptions{
		Author: signature(),
	}); err != nil {
		return err
	}

	pushErr := r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{r.refSpec()},
	})
	if pushErr != nil && !errors.Is(pushErr, git.NoErrAlreadyUpToDate) {
		r.log.Warn(ctx, "failed to push new branch",
			logger.String("branch", r.branch), logger.Error(pushErr))
	}
	return nil
}

// CommitAndPush stages all database files, commits when there is a diff and
// pushes. Returns nil when there is nothing to do.
func (r *Replica) CommitAndPush(ctx context.Context) error {
	repoMu.Lock()
	defer repoMu.Unlock()

	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReplication, err)
	}

	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReplication, err)
	}
	if status.IsClean() {
		return nil
	}

	if err := wt.AddGlob("*.json"); err != nil && !errors.Is(err, git.ErrGlobNoMatches) {
		return fmt.Errorf("%w: %w", ErrReplication, err)
	}

	status, err = wt.Status()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReplication, err)
	}
	if status.IsClean() {
		return nil
	}

	if _, err := wt.Commit(commitMessage, &git.CommitOptions{Author: signature()}); err != nil {
		return fmt.Errorf("%w: %w", ErrReplication, err)
	}
	r.log.Debug(ctx, "committed changes to data repository")

	pushErr := r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{r.refSpec()},
	})
	if errors.Is(pushErr, git.NoErrAlreadyUpToDate) {
		pushErr = nil
	}
	metrics.RecordReplicaPush(pushErr)
	if pushErr != nil {
		return fmt.Errorf("%w: %w", ErrReplication, pushErr)
	}
	return nil
}

func (r *Replica) refSpec() gitconfig.RefSpec {
	return gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", r.branch, r.branch))
}

func isBranchMissing(err error) bool {
	if err == nil {
		return false
	}
	var noMatch git.NoMatchingRefSpecError
	if errors.As(err, &noMatch) {
		return true
	}
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return true
	}
	return strings.Contains(err.Error(), "couldn't find remote ref")
}

func signature() *object.Signature {
	return &object.Signature{
		Name:  "rank-bot",
		Email: "rank-bot@users.noreply.github.com",
		When:  time.Now(),
	}
}
