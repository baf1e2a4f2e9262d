package ref

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// GitFetcher fetches one repository revision into a local directory and
// reports the commit it pinned to. cleanup releases the checkout and must
// always be called when err is nil.
type GitFetcher interface {
	Fetch(ctx context.Context, repo, revision string) (dir, commit string, cleanup func(), err error)
}

// gitCLI shells out to the git binary. Shallow clone for branches and tags;
// raw commit SHAs fall back to a full clone plus checkout.
type gitCLI struct{}

func (gitCLI) Fetch(ctx context.Context, repo, revision string) (string, string, func(), error) {
	dir, err := os.MkdirTemp("", "loadout-git-*")
	if err != nil {
		return "", "", nil, fmt.Errorf("create checkout dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	out, err := gitCmd(ctx, "", "clone", "--quiet", "--depth", "1", "--branch", revision, repo, dir)
	if err != nil {
		// --branch only takes branch and tag names. Re-clone and check the
		// revision out directly in case it is a commit SHA.
		_ = os.RemoveAll(dir)
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return "", "", nil, mkErr
		}
		if out2, err2 := gitCmd(ctx, "", "clone", "--quiet", repo, dir); err2 != nil {
			cleanup()
			return "", "", nil, fmt.Errorf("git clone %s: %w (shallow: %s, full: %s)", repo, err2, out, out2)
		}
		if out3, err3 := gitCmd(ctx, dir, "checkout", "--quiet", revision); err3 != nil {
			cleanup()
			return "", "", nil, fmt.Errorf("git checkout %s: %w: %s", revision, err3, out3)
		}
	}

	commitOut, err := gitCmd(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		cleanup()
		return "", "", nil, fmt.Errorf("git rev-parse HEAD: %w: %s", err, commitOut)
	}
	commit := strings.TrimSpace(commitOut)
	if commit == "" {
		cleanup()
		return "", "", nil, fmt.Errorf("git rev-parse returned empty commit for %s@%s", repo, revision)
	}
	return dir, commit, cleanup, nil
}

func gitCmd(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}
