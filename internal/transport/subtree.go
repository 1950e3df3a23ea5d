// Copyright 2026 The kpt Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package transport materializes a verified version in a target. Local
// installs embed the component with git subtree, global installs check it
// out in a per-version worktree.
package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/gitutil"
	"github.com/kptdev/scriptkit/internal/install"
	"github.com/kptdev/scriptkit/internal/types"
	"github.com/kptdev/scriptkit/pkg/printer"
	"k8s.io/klog/v2"
)

// MergeConflictError is returned when merging a new version into the prefix
// conflicts with local changes. The merge is left in progress.
type MergeConflictError struct {
	Prefix string
	Ref    string
	Files  []string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merging %s into %s conflicts in %d file(s)", e.Ref, e.Prefix, len(e.Files))
}

// SplitError is returned when the component directory cannot be extracted
// from the fetched version.
type SplitError struct {
	ComponentDir string
	Ref          string
	// Cleanup are the commands that remove the partial state.
	Cleanup []string
	Err     error
}

func (e *SplitError) Error() string {
	return fmt.Sprintf("unable to extract %s from %s: %v", e.ComponentDir, e.Ref, e.Err)
}

func (e *SplitError) Unwrap() error {
	return e.Err
}

// Subtree embeds the component in the consumer repository.
type Subtree struct {
	ic *install.Context
}

func NewSubtree(ic *install.Context) *Subtree {
	return &Subtree{ic: ic}
}

// Install adds ref under the prefix.
func (s *Subtree) Install(ctx context.Context, ref types.VersionRef) error {
	const op errors.Op = "transport.Install"
	if !s.ic.Git.HasCommits(ctx) {
		return errors.E(op, errors.Precondition, s.ic.Target(),
			"the repository has no commits, create an initial commit first")
	}
	if err := s.Prepare(ctx, ref); err != nil {
		return errors.E(op, s.ic.Target(), err)
	}
	cfg := s.ic.Config
	_, err := s.ic.Git.Mutate(ctx, "subtree", "add",
		"--prefix="+cfg.Prefix, "--squash", cfg.ContentBranch,
		"-m", fmt.Sprintf("Add %s %s", cfg.Prefix, ref.CanonicalRef))
	if err != nil {
		return errors.E(op, errors.Transport, s.ic.Target(), err)
	}
	return nil
}

// Upgrade merges ref into the prefix.
func (s *Subtree) Upgrade(ctx context.Context, ref types.VersionRef) error {
	const op errors.Op = "transport.Upgrade"
	if err := s.Prepare(ctx, ref); err != nil {
		return errors.E(op, s.ic.Target(), err)
	}
	cfg := s.ic.Config
	_, err := s.ic.Git.Mutate(ctx, "subtree", "merge",
		"--prefix="+cfg.Prefix, "--squash", cfg.ContentBranch,
		"-m", fmt.Sprintf("Update %s to %s", cfg.Prefix, ref.CanonicalRef))
	if err == nil {
		return nil
	}
	var gitErr *gitutil.GitExecError
	if errors.As(err, &gitErr) && gitErr.Type == gitutil.MergeConflict {
		return errors.E(op, errors.Transport, s.ic.Target(), &MergeConflictError{
			Prefix: cfg.Prefix,
			Ref:    ref.CanonicalRef,
			Files:  s.conflicts(ctx),
		})
	}
	return errors.E(op, errors.Transport, s.ic.Target(), err)
}

// Prepare fetches ref and leaves the component history on the content
// branch. The staging branch holds the fetched upstream commit. The split
// runs with the staging branch checked out, and the consumer's branch is
// checked out again before Prepare returns, on failure as well.
func (s *Subtree) Prepare(ctx context.Context, ref types.VersionRef) (err error) {
	const op errors.Op = "transport.Prepare"
	ic := s.ic
	cfg := ic.Config
	g := ic.Git
	pr := printer.FromContextOrDie(ctx)

	original := g.CurrentBranch(ctx)
	if original == "" {
		// Detached HEAD.
		original, _ = g.RevParse(ctx, "HEAD")
	}

	if err := s.ensureRemote(ctx); err != nil {
		return errors.E(op, err)
	}
	pr.Printf("Fetching %s from %s\n", ref.CanonicalRef, cfg.Upstream)
	if _, err := g.Mutate(ctx, "fetch", "--no-tags", cfg.RemoteName, fetchRef(ref)); err != nil {
		gitutil.AmendGitExecError(err, func(e *gitutil.GitExecError) {
			e.Repo = cfg.Upstream
			e.Ref = ref.CanonicalRef
		})
		return errors.E(op, errors.Transport, err)
	}

	if err := s.DeleteBranches(ctx); err != nil {
		return errors.E(op, err)
	}
	if _, err := g.Mutate(ctx, "branch", cfg.StagingBranch, "FETCH_HEAD"); err != nil {
		return errors.E(op, errors.Transport, err)
	}

	// git subtree refuses to split a prefix that is missing from the
	// working tree, so the upstream commit has to be checked out.
	if _, err := g.Mutate(ctx, "checkout", "-q", cfg.StagingBranch); err != nil {
		return errors.E(op, errors.Transport, err)
	}
	defer func() {
		if original == "" || g.CurrentBranch(ctx) == original {
			return
		}
		klog.V(2).Infof("returning to %s", original)
		if _, cerr := g.Mutate(ctx, "checkout", "-q", original); cerr != nil && err == nil {
			err = errors.E(op, errors.Transport, cerr)
		}
	}()

	klog.V(2).Infof("splitting %s out of %s", cfg.ComponentDir, ref.CanonicalRef)
	if _, err := g.Mutate(ctx, "subtree", "split",
		"--prefix="+cfg.ComponentDir, cfg.StagingBranch, "-b", cfg.ContentBranch); err != nil {
		return errors.E(op, errors.Transport, &SplitError{
			ComponentDir: cfg.ComponentDir,
			Ref:          ref.CanonicalRef,
			Cleanup: []string{
				"git checkout " + original,
				"git branch -D " + cfg.StagingBranch,
				"git branch -D " + cfg.ContentBranch,
			},
			Err: err,
		})
	}

	for _, b := range []string{cfg.StagingBranch, cfg.ContentBranch} {
		// Fails when no upstream is configured, which is the common case.
		if _, err := g.Mutate(ctx, "branch", "--unset-upstream", b); err != nil {
			klog.V(3).Infof("no upstream to unset on %s", b)
		}
	}
	return nil
}

// DeleteBranches removes the staging and content branches. Missing branches
// are not an error.
func (s *Subtree) DeleteBranches(ctx context.Context) error {
	const op errors.Op = "transport.DeleteBranches"
	cfg := s.ic.Config
	for _, b := range []string{cfg.StagingBranch, cfg.ContentBranch} {
		if !s.ic.Git.BranchExists(ctx, b) {
			continue
		}
		if _, err := s.ic.Git.Mutate(ctx, "branch", "-D", b); err != nil {
			return errors.E(op, errors.Git, err)
		}
	}
	return nil
}

// RemoveRemote removes the upstream remote if it is configured.
func (s *Subtree) RemoveRemote(ctx context.Context) error {
	const op errors.Op = "transport.RemoveRemote"
	remote := s.ic.Config.RemoteName
	if _, err := s.ic.Git.Query(ctx, "remote", "get-url", remote); err != nil {
		return nil
	}
	if _, err := s.ic.Git.Mutate(ctx, "remote", "remove", remote); err != nil {
		return errors.E(op, errors.Git, err)
	}
	return nil
}

func (s *Subtree) ensureRemote(ctx context.Context) error {
	const op errors.Op = "transport.ensureRemote"
	cfg := s.ic.Config
	g := s.ic.Git
	rr, err := g.Query(ctx, "remote", "get-url", cfg.RemoteName)
	switch {
	case err != nil:
		klog.V(2).Infof("adding remote %s for %s", cfg.RemoteName, cfg.Upstream)
		_, err = g.Mutate(ctx, "remote", "add", cfg.RemoteName, cfg.Upstream)
	case strings.TrimSpace(rr.Stdout) != cfg.Upstream:
		klog.V(2).Infof("remote %s moved to %s", cfg.RemoteName, cfg.Upstream)
		_, err = g.Mutate(ctx, "remote", "set-url", cfg.RemoteName, cfg.Upstream)
	}
	if err != nil {
		return errors.E(op, errors.Git, err)
	}
	return nil
}

func (s *Subtree) conflicts(ctx context.Context) []string {
	rr, err := s.ic.Git.Query(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil
	}
	var files []string
	for _, f := range strings.Split(rr.Stdout, "\n") {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	return files
}

// fetchRef returns the fully qualified upstream ref so that a tag and a
// branch with the same name cannot be confused.
func fetchRef(ref types.VersionRef) string {
	switch ref.Kind {
	case types.Tag:
		return "refs/tags/" + ref.CanonicalRef
	default:
		return "refs/heads/" + ref.CanonicalRef
	}
}
