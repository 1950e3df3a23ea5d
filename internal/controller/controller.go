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

// Package controller implements the install, upgrade, rollback and uninstall
// operations on top of detection, resolution and transport.
//
// The controller assumes it is the only scriptkit process working on a
// target. Concurrent invocations against the same target race on the staging
// branches, the selector and the rollback marker.
package controller

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/kptdev/scriptkit/internal/detect"
	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/errors/resolver"
	"github.com/kptdev/scriptkit/internal/hooks"
	"github.com/kptdev/scriptkit/internal/install"
	"github.com/kptdev/scriptkit/internal/ledger"
	"github.com/kptdev/scriptkit/internal/precheck"
	"github.com/kptdev/scriptkit/internal/resolve"
	"github.com/kptdev/scriptkit/internal/selector"
	"github.com/kptdev/scriptkit/internal/transport"
	"github.com/kptdev/scriptkit/internal/types"
	"github.com/kptdev/scriptkit/pkg/printer"
	"k8s.io/klog/v2"
)

// Controller runs the top-level operations for one install context.
type Controller struct {
	ic *install.Context
}

func New(ic *install.Context) *Controller {
	return &Controller{ic: ic}
}

// Auto installs when nothing is installed and upgrades otherwise.
func (c *Controller) Auto(ctx context.Context, token string) error {
	const op errors.Op = "controller.Auto"
	rec, err := detect.Detect(ctx, c.ic)
	if err != nil {
		return errors.E(op, err)
	}
	if rec.Present() {
		klog.V(2).Infof("auto: %s is installed, upgrading", rec.Describe())
		return c.Upgrade(ctx, token)
	}
	klog.V(2).Infof("auto: nothing installed, installing")
	return c.Install(ctx, token)
}

// Install installs token. An existing install is left alone.
func (c *Controller) Install(ctx context.Context, token string) error {
	const op errors.Op = "controller.Install"
	ic := c.ic
	pr := printer.FromContextOrDie(ctx)

	rec, err := c.prepare(ctx, "install")
	if err != nil {
		return errors.E(op, err)
	}
	ref, err := resolve.ResolveIn(ctx, ic, token)
	if err != nil {
		return errors.E(op, err)
	}

	if ic.Scope == types.Local {
		if rec.Present() {
			pr.Printf("scriptkit %s is already installed in %s. Run 'scriptkit upgrade' to change the version.\n",
				rec.Describe(), ic.TargetPath())
			return nil
		}
		if err := transport.NewSubtree(ic).Install(ctx, ref); err != nil {
			return errors.E(op, err)
		}
	} else {
		if rec.Present() && !rec.Unbound && rec.Ref == ref.CanonicalRef {
			pr.Printf("scriptkit %s is already installed at %s. Run 'scriptkit upgrade --global' to change the version.\n",
				rec.Describe(), ic.TargetPath())
			return nil
		}
		if err := c.materializeAndBind(ctx, ref); err != nil {
			return errors.E(op, err)
		}
	}

	c.postInstall(ctx)
	pr.Successf("Installed scriptkit %s (%s) into %s\n", ref.CanonicalRef, ic.Scope, ic.TargetPath())
	return nil
}

// Upgrade moves an existing install to token. The state before the upgrade
// is recorded in the rollback ledger.
func (c *Controller) Upgrade(ctx context.Context, token string) error {
	return c.upgrade(ctx, token, "upgrade")
}

func (c *Controller) upgrade(ctx context.Context, token, operation string) error {
	const op errors.Op = "controller.Upgrade"
	ic := c.ic
	pr := printer.FromContextOrDie(ctx)

	rec, err := c.prepare(ctx, operation)
	if err != nil {
		return errors.E(op, err)
	}
	if !rec.Present() {
		return errors.E(op, errors.Precondition, ic.Target(),
			&precheck.NotInstalledError{Scope: ic.Scope, Operation: operation})
	}
	ref, err := resolve.ResolveIn(ctx, ic, token)
	if err != nil {
		return errors.E(op, err)
	}

	if current(rec, ref) {
		pr.Printf("scriptkit is already at %s.\n", rec.Describe())
		return nil
	}

	if ic.Scope == types.Local {
		if err := c.snapshot(ctx, rec); err != nil {
			return errors.E(op, err)
		}
		if err := transport.NewSubtree(ic).Upgrade(ctx, ref); err != nil {
			return errors.E(op, err)
		}
	} else {
		if err := c.snapshot(ctx, rec); err != nil {
			return errors.E(op, err)
		}
		if err := c.materializeAndBind(ctx, ref); err != nil {
			return errors.E(op, err)
		}
	}

	c.postInstall(ctx)
	pr.Successf("Upgraded scriptkit from %s to %s (%s)\n", rec.Describe(), ref.CanonicalRef, ic.Scope)
	return nil
}

// Rollback restores the state recorded before the last upgrade. With a
// token it is an upgrade to that version instead.
func (c *Controller) Rollback(ctx context.Context, token string) error {
	const op errors.Op = "controller.Rollback"
	ic := c.ic
	pr := printer.FromContextOrDie(ctx)

	if token != "" {
		klog.V(2).Infof("rollback to explicit version %s", token)
		return c.upgrade(ctx, token, "roll back")
	}

	if err := precheck.Check(ctx, ic); err != nil {
		return errors.E(op, err)
	}

	var restored string
	err := c.ledger().Restore(ctx, func(hash string) error {
		restored = hash
		if ic.Scope == types.Local {
			return ledger.RestoreLocal(ctx, ic, hash)
		}
		return c.warnBrokenSelector(ctx, ledger.RestoreGlobal(ctx, ic, hash))
	})
	if err != nil {
		return errors.E(op, err)
	}
	pr.Successf("Rolled back scriptkit to %s (%s)\n", ledger.ShortHash(restored), ic.Scope)
	return nil
}

// Uninstall removes the install. Without confirmation it only prints what
// would be removed.
func (c *Controller) Uninstall(ctx context.Context) error {
	const op errors.Op = "controller.Uninstall"
	ic := c.ic
	pr := printer.FromContextOrDie(ctx)

	if err := precheck.Check(ctx, ic); err != nil {
		return errors.E(op, err)
	}
	rec, err := detect.Detect(ctx, ic)
	if err != nil {
		return errors.E(op, err)
	}
	purgeRoot := ic.Scope == types.Global && ic.Purge && detect.RootExists(ic)
	if !rec.Present() && !purgeRoot {
		pr.Printf("scriptkit is not installed (%s).\n", ic.Scope)
		return nil
	}

	if !ic.Confirm {
		pr.Warnf("Nothing was removed. Re-run with --confirm to uninstall, or remove it manually:\n")
		for _, step := range c.manualSteps(rec) {
			pr.Printf("  %s\n", step)
		}
		return nil
	}

	if ic.Scope == types.Local {
		err = c.uninstallLocal(ctx)
	} else {
		err = c.uninstallGlobal(ctx)
	}
	if err != nil {
		return errors.E(op, err)
	}
	pr.Successf("Uninstalled scriptkit (%s)\n", ic.Scope)
	return nil
}

func (c *Controller) uninstallLocal(ctx context.Context) error {
	const op errors.Op = "controller.uninstallLocal"
	ic := c.ic
	binder := selector.NewBinder(ic)
	if binder.Pointer().Exists() {
		if err := binder.Unbind(ctx); err != nil {
			return errors.E(op, err)
		}
	} else if ic.Git.HasCommits(ctx) {
		if _, err := ic.Git.Query(ctx, "ls-files", "--error-unmatch", "--", ic.Config.Prefix); err == nil {
			if _, err := ic.Git.Mutate(ctx, "rm", "-r", "-q", "--", ic.Config.Prefix); err != nil {
				return errors.E(op, errors.Git, err)
			}
			if _, err := ic.Git.Mutate(ctx, "commit", "-q", "-m", "Remove "+ic.Config.Prefix); err != nil {
				return errors.E(op, errors.Git, err)
			}
		}
	}
	st := transport.NewSubtree(ic)
	if err := st.DeleteBranches(ctx); err != nil {
		return errors.E(op, err)
	}
	if err := st.RemoveRemote(ctx); err != nil {
		return errors.E(op, err)
	}
	return c.ledger().Clear(ctx)
}

func (c *Controller) uninstallGlobal(ctx context.Context) error {
	const op errors.Op = "controller.uninstallGlobal"
	ic := c.ic
	if err := selector.NewBinder(ic).Unbind(ctx); err != nil {
		return errors.E(op, err)
	}
	if err := c.ledger().Clear(ctx); err != nil {
		return errors.E(op, err)
	}
	if ic.Purge {
		printer.FromContextOrDie(ctx).Printf("Removing %s\n", ic.GlobalRoot())
		if err := ic.FS.RemoveAll(ctx, ic.GlobalRoot()); err != nil {
			return errors.E(op, err)
		}
	}
	return nil
}

// manualSteps lists the commands that uninstall by hand.
func (c *Controller) manualSteps(rec types.InstallationRecord) []string {
	ic := c.ic
	cfg := ic.Config
	if ic.Scope == types.Global || rec.SelectorTarget != "" {
		steps := []string{"rm " + ic.TargetPath()}
		if ic.Purge {
			steps = append(steps, "rm -rf "+ic.GlobalRoot())
		}
		return append(steps, "rm -f "+ic.RollbackMarkerPath())
	}
	return []string{
		"git rm -r " + cfg.Prefix,
		"git commit -m \"Remove " + cfg.Prefix + "\"",
		"git branch -D " + cfg.StagingBranch + " " + cfg.ContentBranch,
		"git remote remove " + cfg.RemoteName,
		"rm -f " + ic.RollbackMarkerPath(),
	}
}

// prepare runs the preconditions and detects the current install. A broken
// install stops every operation that prepares.
func (c *Controller) prepare(ctx context.Context, operation string) (types.InstallationRecord, error) {
	const op errors.Op = "controller.prepare"
	ic := c.ic
	if err := precheck.Check(ctx, ic); err != nil {
		return types.InstallationRecord{}, errors.E(op, err)
	}
	rec, err := detect.Detect(ctx, ic)
	if err != nil {
		return rec, errors.E(op, err)
	}
	klog.V(2).Infof("%s: detected %s", operation, rec.Describe())
	if rec.Status == types.Broken {
		return rec, errors.E(op, errors.Corrupt, ic.Target(), &precheck.BrokenInstallError{Record: rec})
	}
	return rec, nil
}

// current returns true if rec already is ref. The default branch is only
// current while it has no updates.
func current(rec types.InstallationRecord, ref types.VersionRef) bool {
	if rec.Unbound || rec.Ref != ref.CanonicalRef {
		return false
	}
	if ref.IsDefaultBranch() || ref.Kind == types.Branch {
		return rec.Freshness == types.UpToDate
	}
	return true
}

// snapshot records the commit of the current install.
func (c *Controller) snapshot(ctx context.Context, rec types.InstallationRecord) error {
	const op errors.Op = "controller.snapshot"
	ic := c.ic
	var hash string
	var found bool
	if ic.Scope == types.Local {
		hash, found = ic.Git.RevParse(ctx, "HEAD")
	} else {
		if rec.SelectorTarget == "" {
			klog.V(2).Infof("no selector, nothing to snapshot")
			return nil
		}
		hash, found = ic.RootGit().In(checkoutOf(ic, rec.SelectorTarget)).RevParse(ctx, "HEAD")
	}
	if !found {
		klog.V(2).Infof("no commit to snapshot")
		return nil
	}
	if err := c.ledger().Snapshot(ctx, hash); err != nil {
		return errors.E(op, err)
	}
	return nil
}

func (c *Controller) ledger() *ledger.Ledger {
	if c.ic.Scope == types.Global {
		return ledger.New(c.ic, c.ic.RootGit())
	}
	return ledger.New(c.ic, c.ic.Git)
}

// materializeAndBind makes ref available in the global root and points the
// selector at it unless symlinks are disabled.
func (c *Controller) materializeAndBind(ctx context.Context, ref types.VersionRef) error {
	const op errors.Op = "controller.materializeAndBind"
	ic := c.ic
	checkout, err := transport.NewWorktree(ic).Materialize(ctx, ref)
	if err != nil {
		return errors.E(op, err)
	}
	if !ic.CreateSymlink {
		printer.FromContextOrDie(ctx).Printf("scriptkit %s is available at %s\n",
			ref.CanonicalRef, ic.ContentPath(checkout))
		return nil
	}
	return c.warnBrokenSelector(ctx, selector.NewBinder(ic).Bind(ctx, checkout))
}

// warnBrokenSelector turns a selector that does not verify into a warning.
// The selector stays in place so the user can inspect it.
func (c *Controller) warnBrokenSelector(ctx context.Context, err error) error {
	var brokenErr *selector.BrokenSelectorError
	if err == nil || !errors.As(err, &brokenErr) {
		return err
	}
	msg := brokenErr.Error()
	if rr, ok := resolver.ResolveError(brokenErr); ok {
		msg = rr.Message
	}
	printer.FromContextOrDie(ctx).Warnf("%s\n", msg)
	return nil
}

// postInstall runs the hooks. Hook failures are warnings. In a local install
// the files the hooks changed are committed so that the next operation
// starts from a clean repository. Files that already had uncommitted changes
// are left out of the commit.
func (c *Controller) postInstall(ctx context.Context) {
	ic := c.ic
	hs := hooks.Default(ic)
	if len(hs) == 0 {
		return
	}
	var paths []string
	for _, h := range hs {
		if rel, err := filepath.Rel(ic.TargetRoot, h.Path(ic)); err == nil {
			paths = append(paths, filepath.ToSlash(rel))
		}
	}
	var dirty map[string]bool
	if ic.Scope == types.Local {
		before, err := c.changedPaths(ctx, paths)
		if err != nil {
			klog.V(2).Infof("unable to check hook paths: %v", err)
		}
		dirty = make(map[string]bool, len(before))
		for _, p := range before {
			dirty[p] = true
		}
	}

	hooks.Run(ctx, ic, hs)
	if ic.Scope != types.Local {
		return
	}
	if err := c.commitPaths(ctx, paths, dirty, "Configure scriptkit integration"); err != nil {
		printer.FromContextOrDie(ctx).Warnf("unable to commit the hook changes: %v\n", err)
	}
}

// changedPaths returns the files under paths that differ from HEAD or are
// untracked and not ignored.
func (c *Controller) changedPaths(ctx context.Context, paths []string) ([]string, error) {
	const op errors.Op = "controller.changedPaths"
	args := append([]string{"status", "--porcelain", "--untracked-files=all", "--"}, paths...)
	rr, err := c.ic.Git.Query(ctx, args...)
	if err != nil {
		return nil, errors.E(op, errors.Git, err)
	}
	var changed []string
	for _, line := range strings.Split(rr.Stdout, "\n") {
		if len(line) > 3 {
			changed = append(changed, strings.Trim(line[3:], `"`))
		}
	}
	return changed, nil
}

// commitPaths commits the changed files under paths, except those in skip.
// Only those files are committed, whatever else is staged.
func (c *Controller) commitPaths(ctx context.Context, paths []string, skip map[string]bool, msg string) error {
	const op errors.Op = "controller.commitPaths"
	g := c.ic.Git
	pr := printer.FromContextOrDie(ctx)
	changed, err := c.changedPaths(ctx, paths)
	if err != nil {
		return errors.E(op, err)
	}
	var commit []string
	for _, p := range changed {
		if skip[p] {
			pr.Warnf("%s had uncommitted changes before the hooks ran, commit it yourself\n", p)
			continue
		}
		commit = append(commit, p)
	}
	if len(commit) == 0 {
		return nil
	}
	klog.V(2).Infof("committing hook changes: %v", commit)
	if _, err := g.Mutate(ctx, append([]string{"add", "--"}, commit...)...); err != nil {
		return errors.E(op, errors.Git, err)
	}
	if _, err := g.Mutate(ctx, append([]string{"commit", "-q", "-m", msg, "--"}, commit...)...); err != nil {
		return errors.E(op, errors.Git, err)
	}
	return nil
}

// checkoutOf returns the checkout a selector target belongs to.
func checkoutOf(ic *install.Context, target string) string {
	return strings.TrimSuffix(target, string(filepath.Separator)+filepath.FromSlash(ic.Config.ComponentDir))
}
