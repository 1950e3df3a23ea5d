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

package controller

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/kptdev/scriptkit/internal/detect"
	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/ledger"
	"github.com/kptdev/scriptkit/internal/resolve"
	"github.com/kptdev/scriptkit/internal/transport"
	"github.com/kptdev/scriptkit/internal/types"
	"github.com/xlab/treeprint"
	"k8s.io/klog/v2"
)

// Versions writes the upstream versions in format. The installed version is
// marked when it can be detected.
func (c *Controller) Versions(ctx context.Context, w io.Writer, format string) error {
	const op errors.Op = "controller.Versions"
	ur, err := c.ic.Upstream(ctx)
	if err != nil {
		return errors.E(op, err)
	}
	var installed string
	if rec, err := detect.Detect(ctx, c.ic); err == nil && rec.Status == types.Installed {
		installed = rec.Ref
	} else if err != nil {
		klog.V(2).Infof("versions: current version unknown: %v", err)
	}
	if err := resolve.List(ur, installed).Write(w, format); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// Status writes what is installed in the target and, for global installs,
// every materialized version.
func (c *Controller) Status(ctx context.Context, w io.Writer) error {
	const op errors.Op = "controller.Status"
	ic := c.ic
	rec, err := detect.Detect(ctx, ic)
	if err != nil {
		return errors.E(op, err)
	}

	fmt.Fprintf(w, "Scope:    %s\n", ic.Scope)
	fmt.Fprintf(w, "Target:   %s\n", ic.TargetPath())
	fmt.Fprintf(w, "Status:   %s\n", rec.Status)
	fmt.Fprintf(w, "Version:  %s\n", rec.Describe())
	if rec.SelectorTarget != "" {
		fmt.Fprintf(w, "Selector: %s\n", rec.SelectorTarget)
	}
	if rec.ContentHash != "" {
		fmt.Fprintf(w, "Content:  %s\n", ledger.ShortHash(rec.ContentHash))
	}
	if hash, found := c.ledger().Peek(); found {
		fmt.Fprintf(w, "Rollback: %s\n", ledger.ShortHash(hash))
	} else {
		fmt.Fprintf(w, "Rollback: none\n")
	}

	if ic.Scope != types.Global || !detect.RootExists(ic) {
		return nil
	}
	checkouts, err := transport.NewWorktree(ic).Checkouts(ctx)
	if err != nil {
		return errors.E(op, err)
	}
	fmt.Fprintf(w, "\n%s", c.tree(checkouts, checkoutOf(ic, rec.SelectorTarget)).String())
	return nil
}

// tree renders the root clone with its version worktrees. The active
// checkout is marked.
func (c *Controller) tree(checkouts map[string]string, active string) treeprint.Tree {
	ic := c.ic
	label := func(name, path string) string {
		l := fmt.Sprintf("%s (%s)", name, ledger.ShortHash(checkouts[path]))
		if path == active {
			l += " *"
		}
		return l
	}

	root := ic.GlobalRoot()
	tree := treeprint.NewWithRoot(label(root, root))
	versions := tree.AddBranch(ic.Config.VersionsDir)

	var paths []string
	for p := range checkouts {
		if p != root {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	for _, p := range paths {
		name, err := filepath.Rel(ic.VersionsRoot(), p)
		if err != nil {
			name = p
		}
		versions.AddNode(label(filepath.ToSlash(name), p))
	}
	return tree
}
