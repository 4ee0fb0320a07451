// Package vcs reads version control metadata for report sessions.
package vcs

import (
	"errors"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ErrNoCommits is returned for a repository without any commit.
var ErrNoCommits = errors.New("repository has no commits")

// Info describes the working tree an analysis ran in.
type Info struct {
	// Revision is the full hash of HEAD.
	Revision string
	// Ref is the current branch name, or the revision for a detached HEAD.
	Ref string
	// Dirty is set when tracked files have uncommitted changes.
	Dirty bool
}

// String returns the revision, suffixed with "-dirty" when needed.
func (i *Info) String() string {
	if i.Dirty {
		return i.Revision + "-dirty"
	}
	return i.Revision
}

// Describe reads HEAD of the repository containing path. Parent
// directories are searched for .git.
func Describe(path string) (*Info, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return nil, err
	}

	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, ErrNoCommits
	}
	if err != nil {
		return nil, err
	}

	info := &Info{Revision: head.Hash().String(), Ref: head.Hash().String()}
	if head.Name().IsBranch() {
		info.Ref = head.Name().Short()
	}
	info.Dirty, err = isDirty(repo)
	if err != nil {
		return nil, err
	}
	return info, nil
}

// Revision returns Describe(path).String(), or "" when path is not inside
// a repository with commits.
func Revision(path string) string {
	info, err := Describe(path)
	if err != nil {
		return ""
	}
	return info.String()
}

// isDirty reports uncommitted changes. Untracked files are not considered
// dirty.
func isDirty(repo *git.Repository) (bool, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return false, err
	}

	status, err := wt.Status()
	if err != nil {
		return false, err
	}

	for _, s := range status {
		// Skip untracked files
		if s.Staging == git.Untracked && s.Worktree == git.Untracked {
			continue
		}
		// Any staged or modified file means dirty
		if s.Staging != git.Unmodified || s.Worktree != git.Unmodified {
			return true, nil
		}
	}

	return false, nil
}
