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

package ledger

import (
	"context"
	"fmt"

	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/install"
	"github.com/kptdev/scriptkit/internal/selector"
	"github.com/kptdev/scriptkit/internal/transport"
	"github.com/kptdev/scriptkit/pkg/printer"
	"k8s.io/klog/v2"
)

// RestoreLocal checks the prefix out of the consumer commit hash and commits
// the result. The staging and content branches describe the version that is
// being rolled back and are removed.
func RestoreLocal(ctx context.Context, ic *install.Context, hash string) error {
	const op errors.Op = "ledger.RestoreLocal"
	g := ic.Git
	prefix := ic.Config.Prefix
	printer.FromContextOrDie(ctx).Printf("Restoring %s from %s\n", prefix, ShortHash(hash))

	steps := [][]string{
		{"rm", "-r", "-q", "--ignore-unmatch", "--", prefix},
		{"checkout", hash, "--", prefix},
	}
	for _, args := range steps {
		if _, err := g.Mutate(ctx, args...); err != nil {
			return errors.E(op, errors.Git, ic.Target(), err)
		}
	}

	// diff --quiet exits 1 when something is staged.
	if _, err := g.Query(ctx, "diff", "--cached", "--quiet", "--", prefix); err != nil || ic.DryRun {
		msg := fmt.Sprintf("Roll back %s to %s", prefix, ShortHash(hash))
		if _, err := g.Mutate(ctx, "commit", "-q", "-m", msg); err != nil {
			return errors.E(op, errors.Git, ic.Target(), err)
		}
	} else {
		klog.V(2).Infof("%s already matches %s", prefix, ShortHash(hash))
	}

	if err := transport.NewSubtree(ic).DeleteBranches(ctx); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// RestoreGlobal points the selector at a checkout of hash. An existing
// checkout at that commit is reused, otherwise a worktree is added for it.
func RestoreGlobal(ctx context.Context, ic *install.Context, hash string) error {
	const op errors.Op = "ledger.RestoreGlobal"
	wt := transport.NewWorktree(ic)
	checkouts, err := wt.Checkouts(ctx)
	if err != nil {
		return errors.E(op, err)
	}

	var checkout string
	for path, head := range checkouts {
		// Prefer a named version over the root, whose head moves on every
		// sync.
		if head == hash && (checkout == "" || checkout == ic.GlobalRoot()) {
			checkout = path
		}
	}
	if checkout == "" {
		checkout = ic.WorktreePath(rollbackName(ctx, ic, hash))
		if err := wt.AddWorktree(ctx, checkout, hash); err != nil {
			return errors.E(op, err)
		}
	}
	klog.V(2).Infof("rolling back selector to %s", checkout)

	if err := selector.NewBinder(ic).Bind(ctx, checkout); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// rollbackName names the worktree for hash after its tag when it has one.
func rollbackName(ctx context.Context, ic *install.Context, hash string) string {
	if ur, err := ic.Upstream(ctx); err == nil {
		if tag, found := ur.TagForCommit(hash); found && !transport.WorktreeExists(ic.WorktreePath(tag)) {
			return tag
		}
	}
	return "rollback-" + ShortHash(hash)
}
