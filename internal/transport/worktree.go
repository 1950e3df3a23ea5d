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

package transport

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/fsutil"
	"github.com/kptdev/scriptkit/internal/gitutil"
	"github.com/kptdev/scriptkit/internal/install"
	"github.com/kptdev/scriptkit/internal/types"
	"github.com/kptdev/scriptkit/pkg/printer"
	"k8s.io/klog/v2"
)

// Worktree keeps a root clone pinned to the upstream default branch and one
// detached worktree per other version.
type Worktree struct {
	ic *install.Context
}

func NewWorktree(ic *install.Context) *Worktree {
	return &Worktree{ic: ic}
}

// Materialize makes ref available on disk and returns its checkout. A tag
// whose worktree already exists is reused without touching the network.
func (w *Worktree) Materialize(ctx context.Context, ref types.VersionRef) (string, error) {
	const op errors.Op = "transport.Materialize"
	ic := w.ic
	checkout := ic.CheckoutPath(ref)

	if !ref.IsDefaultBranch() && WorktreeExists(checkout) {
		if ref.Kind == types.Tag {
			klog.V(2).Infof("worktree for %s exists at %s, skipping fetch", ref.CanonicalRef, checkout)
			return checkout, nil
		}
		// Branches move, so an existing branch worktree is refreshed.
		if err := w.SyncRoot(ctx); err != nil {
			return "", errors.E(op, err)
		}
		if _, err := ic.Git.In(checkout).Mutate(ctx, "checkout", "-q", "--detach", "origin/"+ref.CanonicalRef); err != nil {
			return "", errors.E(op, errors.Transport, err)
		}
		return checkout, nil
	}

	if err := w.SyncRoot(ctx); err != nil {
		return "", errors.E(op, err)
	}
	if ref.IsDefaultBranch() {
		return checkout, nil
	}

	src := "refs/tags/" + ref.CanonicalRef
	if ref.Kind == types.Branch {
		src = "origin/" + ref.CanonicalRef
	}
	if err := w.AddWorktree(ctx, checkout, src); err != nil {
		return "", errors.E(op, err)
	}
	return checkout, nil
}

// AddWorktree adds a detached worktree for commitish at checkout.
func (w *Worktree) AddWorktree(ctx context.Context, checkout, commitish string) error {
	const op errors.Op = "transport.AddWorktree"
	ic := w.ic
	root := ic.RootGit()
	printer.FromContextOrDie(ctx).Printf("Checking out %s into %s\n", commitish, checkout)
	// Registrations of worktrees deleted by hand block re-adding them.
	if _, err := root.Mutate(ctx, "worktree", "prune"); err != nil {
		return errors.E(op, errors.Transport, err)
	}
	if err := ic.FS.MkdirAll(ctx, filepath.Dir(checkout)); err != nil {
		return errors.E(op, err)
	}
	if _, err := root.Mutate(ctx, "worktree", "add", "--detach", checkout, commitish); err != nil {
		return errors.E(op, errors.Transport, err)
	}
	return nil
}

// SyncRoot clones the root when it is absent and otherwise resets it to the
// upstream default branch.
func (w *Worktree) SyncRoot(ctx context.Context) error {
	const op errors.Op = "transport.SyncRoot"
	ic := w.ic
	pr := printer.FromContextOrDie(ctx)
	ur, err := ic.Upstream(ctx)
	if err != nil {
		return errors.E(op, err)
	}
	root := ic.GlobalRoot()
	def := ur.DefaultBranch

	if !fsutil.Exists(filepath.Join(root, ".git")) {
		pr.Printf("Cloning %s into %s\n", ic.Config.Upstream, root)
		if err := ic.FS.MkdirAll(ctx, filepath.Dir(root)); err != nil {
			return errors.E(op, err)
		}
		if _, err := ic.Git.Mutate(ctx, "clone", "-q", "--branch", def, ic.Config.Upstream, root); err != nil {
			gitutil.AmendGitExecError(err, func(e *gitutil.GitExecError) {
				e.Repo = ic.Config.Upstream
				e.Ref = def
			})
			return errors.E(op, errors.Transport, err)
		}
	} else {
		pr.Printf("Updating %s\n", root)
		g := ic.RootGit()
		for _, args := range [][]string{
			{"fetch", "-q", "--tags", "--force", "--prune", "origin"},
			{"checkout", "-q", def},
			{"reset", "-q", "--hard", "origin/" + def},
		} {
			if _, err := g.Mutate(ctx, args...); err != nil {
				return errors.E(op, errors.Transport, err)
			}
		}
	}
	return w.excludeVersions(ctx)
}

// excludeVersions keeps the worktrees out of the root clone's status.
func (w *Worktree) excludeVersions(ctx context.Context) error {
	const op errors.Op = "transport.excludeVersions"
	ic := w.ic
	exclude := filepath.Join(ic.GlobalRoot(), ".git", "info", "exclude")
	entry := "/" + filepath.ToSlash(ic.Config.VersionsDir) + "/"

	b, err := os.ReadFile(exclude)
	if err != nil && !os.IsNotExist(err) {
		return errors.E(op, errors.IO, types.UniquePath(exclude), err)
	}
	for _, line := range strings.Split(string(b), "\n") {
		if strings.TrimSpace(line) == entry {
			return nil
		}
	}
	if err := ic.FS.MkdirAll(ctx, filepath.Dir(exclude)); err != nil {
		return errors.E(op, err)
	}
	data := entry + "\n"
	if len(b) > 0 && !strings.HasSuffix(string(b), "\n") {
		data = "\n" + data
	}
	return ic.FS.AppendFile(ctx, exclude, []byte(data))
}

// WorktreeExists returns true if checkout is a git checkout.
func WorktreeExists(checkout string) bool {
	return fsutil.Exists(filepath.Join(checkout, ".git"))
}

// Checkouts returns the root clone and every version worktree with the
// commit checked out in each.
func (w *Worktree) Checkouts(ctx context.Context) (map[string]string, error) {
	const op errors.Op = "transport.Checkouts"
	ic := w.ic
	rr, err := ic.RootGit().Query(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, errors.E(op, errors.Git, err)
	}
	checkouts := make(map[string]string)
	var path string
	for _, line := range strings.Split(rr.Stdout, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD ") && path != "":
			if WorktreeExists(path) {
				checkouts[path] = strings.TrimPrefix(line, "HEAD ")
			}
			path = ""
		}
	}
	return checkouts, nil
}
