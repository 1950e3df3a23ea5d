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

// Package install holds the per-invocation state shared by every component
// of an install, upgrade, rollback or uninstall.
package install

import (
	"context"
	"path/filepath"

	"github.com/kptdev/scriptkit/internal/config"
	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/fsutil"
	"github.com/kptdev/scriptkit/internal/gitutil"
	"github.com/kptdev/scriptkit/internal/types"
	"k8s.io/klog/v2"
)

// Options are the user supplied switches of a command.
type Options struct {
	Scope  types.Scope
	DryRun bool
	// Force allows replacing a real directory at the selector path. The
	// directory is renamed, never deleted.
	Force         bool
	CreateSymlink bool
	// Confirm is required before uninstall changes anything.
	Confirm bool
	// Purge makes a global uninstall remove the global root as well.
	Purge bool
}

// Context is built once per invocation and passed to every component. It
// replaces the process working directory and global flags as the carrier of
// state.
type Context struct {
	Options

	Config *config.Config

	// Cwd is the directory the command was invoked from.
	Cwd string
	// TargetRoot is the consumer repository root for local installs and the
	// working directory for global installs.
	TargetRoot string

	// Git runs git in TargetRoot.
	Git *gitutil.Gateway
	// FS performs all filesystem mutations.
	FS fsutil.Filesystem

	upstream *gitutil.UpstreamRepo
}

// New builds the Context for a command invoked in cwd. git must be on PATH.
func New(ctx context.Context, cwd string, cfg *config.Config, opts Options) (*Context, error) {
	const op errors.Op = "install.New"
	flags, err := gitutil.ParseFlags(cfg.GitFlags)
	if err != nil {
		return nil, errors.E(op, err)
	}
	g, err := gitutil.NewGateway(cwd, opts.DryRun, flags...)
	if err != nil {
		return nil, errors.E(op, err)
	}

	targetRoot := cwd
	if opts.Scope == types.Local && g.IsWorkTree(ctx) {
		top, err := g.TopLevel(ctx)
		if err != nil {
			return nil, errors.E(op, err)
		}
		targetRoot = top
	}
	klog.V(3).Infof("%s target root is %s", opts.Scope, targetRoot)

	return &Context{
		Options:    opts,
		Config:     cfg,
		Cwd:        cwd,
		TargetRoot: targetRoot,
		Git:        g.In(targetRoot),
		FS:         fsutil.New(opts.DryRun),
	}, nil
}

// NewWithGateway builds a Context around an existing gateway.
func NewWithGateway(cwd, targetRoot string, cfg *config.Config, opts Options, g *gitutil.Gateway) *Context {
	return &Context{
		Options:    opts,
		Config:     cfg,
		Cwd:        cwd,
		TargetRoot: targetRoot,
		Git:        g.In(targetRoot),
		FS:         fsutil.New(opts.DryRun),
	}
}

// Target returns the target root as a path for error reporting.
func (c *Context) Target() types.UniquePath {
	return types.UniquePath(c.TargetRoot)
}

// TargetPath returns where the component lives in the target: the subtree
// prefix for local installs and the selector for global ones.
func (c *Context) TargetPath() string {
	return filepath.Join(c.TargetRoot, c.Config.Prefix)
}

// RollbackMarkerPath returns the path of the rollback marker file.
func (c *Context) RollbackMarkerPath() string {
	return filepath.Join(c.TargetRoot, c.Config.RollbackFile)
}

// GlobalRoot returns the root clone directory.
func (c *Context) GlobalRoot() string {
	return c.Config.GlobalRoot
}

// VersionsRoot returns the directory holding one worktree per version.
func (c *Context) VersionsRoot() string {
	return filepath.Join(c.Config.GlobalRoot, c.Config.VersionsDir)
}

// WorktreePath returns the worktree directory for a non-default version.
func (c *Context) WorktreePath(name string) string {
	return filepath.Join(c.VersionsRoot(), name)
}

// CheckoutPath returns the checkout that holds ref: the root clone for the
// default branch, a worktree otherwise.
func (c *Context) CheckoutPath(ref types.VersionRef) string {
	if ref.IsDefaultBranch() {
		return c.GlobalRoot()
	}
	return c.WorktreePath(ref.CanonicalRef)
}

// ContentPath returns the component directory inside a checkout.
func (c *Context) ContentPath(checkout string) string {
	return filepath.Join(checkout, c.Config.ComponentDir)
}

// RootGit returns a gateway for the root clone.
func (c *Context) RootGit() *gitutil.Gateway {
	return c.Git.In(c.GlobalRoot())
}

// Upstream returns the upstream refs. They are listed once per invocation.
func (c *Context) Upstream(ctx context.Context) (*gitutil.UpstreamRepo, error) {
	const op errors.Op = "install.Upstream"
	if c.upstream != nil {
		return c.upstream, nil
	}
	ur, err := gitutil.NewUpstreamRepo(ctx, c.Git, c.Config.Upstream)
	if err != nil {
		return nil, errors.E(op, errors.Resolution, err)
	}
	c.upstream = ur
	return ur, nil
}
