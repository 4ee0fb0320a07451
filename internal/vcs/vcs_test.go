package vcs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func initTestRepo(t *testing.T) string {
	t.Helper()
	repoPath := t.TempDir()
	_, err := git.PlainInit(repoPath, false)
	if err != nil {
		t.Fatalf("Failed to init repo: %v", err)
	}
	return repoPath
}

func initTestRepoWithCommit(t *testing.T) string {
	t.Helper()
	repoPath := t.TempDir()
	repo, err := git.PlainInit(repoPath, false)
	if err != nil {
		t.Fatalf("Failed to init repo: %v", err)
	}

	// Create and commit a file
	testFile := filepath.Join(repoPath, "Game.bcm")
	if err := os.WriteFile(testFile, []byte("initial content\n"), 0644); err != nil {
		t.Fatal(err)
	}

	w, _ := repo.Worktree()
	w.Add("Game.bcm")
	_, err = w.Commit("Initial commit", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Test",
			Email: "test@example.com",
			When:  time.Now(),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return repoPath
}

func TestDescribe(t *testing.T) {
	repoPath := initTestRepoWithCommit(t)

	info, err := Describe(repoPath)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if len(info.Revision) != 40 {
		t.Errorf("Revision = %q, want a full hash", info.Revision)
	}
	if info.Ref != "master" {
		t.Errorf("Ref = %q, want master", info.Ref)
	}
	if info.Dirty {
		t.Error("fresh commit should not be dirty")
	}
	if info.String() != info.Revision {
		t.Errorf("String() = %q, want %q", info.String(), info.Revision)
	}
}

func TestDescribeFromSubdirectory(t *testing.T) {
	repoPath := initTestRepoWithCommit(t)
	subDir := filepath.Join(repoPath, "Library", "Scripts")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}

	if _, err := Describe(subDir); err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
}

func TestDescribeDirty(t *testing.T) {
	repoPath := initTestRepoWithCommit(t)

	// Untracked files do not count.
	if err := os.WriteFile(filepath.Join(repoPath, "new.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if info, err := Describe(repoPath); err != nil || info.Dirty {
		t.Fatalf("Describe() = %+v, %v; want clean", info, err)
	}

	if err := os.WriteFile(filepath.Join(repoPath, "Game.bcm"), []byte("changed\n"), 0644); err != nil {
		t.Fatal(err)
	}
	info, err := Describe(repoPath)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if !info.Dirty {
		t.Error("modified tracked file should be dirty")
	}
	if !strings.HasSuffix(info.String(), "-dirty") {
		t.Errorf("String() = %q, want -dirty suffix", info.String())
	}
}

func TestDescribeWithoutCommits(t *testing.T) {
	_, err := Describe(initTestRepo(t))
	if !errors.Is(err, ErrNoCommits) {
		t.Errorf("Describe() error = %v, want ErrNoCommits", err)
	}
}

func TestRevisionOutsideRepository(t *testing.T) {
	if got := Revision(t.TempDir()); got != "" {
		t.Errorf("Revision() = %q, want empty", got)
	}
	if got := Revision(initTestRepoWithCommit(t)); got == "" {
		t.Error("Revision() should not be empty inside a repository")
	}
}
