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

// Package precheck verifies that a target can be changed before anything is
// changed.
package precheck

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/fsutil"
	"github.com/kptdev/scriptkit/internal/gitutil"
	"github.com/kptdev/scriptkit/internal/install"
	"github.com/kptdev/scriptkit/internal/types"
	"k8s.io/klog/v2"
)

// ToolUnavailableError is returned when a required program is not on PATH.
type ToolUnavailableError struct {
	Tool string
}

func (e *ToolUnavailableError) Error() string {
	return fmt.Sprintf("%s is not installed or not on PATH", e.Tool)
}

// NotGitRepoError is returned for a local install outside a work tree.
type NotGitRepoError struct {
	Dir string
}

func (e *NotGitRepoError) Error() string {
	return fmt.Sprintf("%s is not inside a git work tree", e.Dir)
}

// DirtyIndexError is returned when changes are staged in the target.
type DirtyIndexError struct {
	Files []string
}

func (e *DirtyIndexError) Error() string {
	return fmt.Sprintf("%d staged change(s) in the index", len(e.Files))
}

// UntrackedDirsError is returned when the target has untracked directories.
type UntrackedDirsError struct {
	Dirs []string
}

func (e *UntrackedDirsError) Error() string {
	return fmt.Sprintf("untracked directories: %s", strings.Join(e.Dirs, ", "))
}

// NotWritableError is returned when the write probe fails.
type NotWritableError struct {
	Path string
	Err  error
}

func (e *NotWritableError) Error() string {
	return fmt.Sprintf("%s is not writable: %v", e.Path, e.Err)
}

func (e *NotWritableError) Unwrap() error {
	return e.Err
}

// NotInstalledError is returned by operations that need an install.
type NotInstalledError struct {
	Scope     types.Scope
	Operation string
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("cannot %s: nothing is installed (%s)", e.Operation, e.Scope)
}

// BrokenInstallError is returned when install state exists but is unusable.
type BrokenInstallError struct {
	Record types.InstallationRecord
}

func (e *BrokenInstallError) Error() string {
	return fmt.Sprintf("installation is broken: %s", e.Record.Reason)
}

// RequireGit checks that git can be run.
func RequireGit() error {
	const op errors.Op = "precheck.RequireGit"
	if _, err := exec.LookPath("git"); err != nil {
		return errors.E(op, errors.Precondition, &ToolUnavailableError{Tool: "git"})
	}
	return nil
}

// Check runs every precondition of a mutating operation. The first failure
// is returned.
func Check(ctx context.Context, ic *install.Context) error {
	const op errors.Op = "precheck.Check"
	if err := RequireGit(); err != nil {
		return err
	}
	if ic.Scope == types.Local {
		for _, check := range []func(context.Context, *install.Context) error{
			checkWorkTree,
			checkIndex,
			checkUntrackedDirs,
		} {
			if err := check(ctx, ic); err != nil {
				return errors.E(op, ic.Target(), err)
			}
		}
	}
	dirs := []string{ic.TargetRoot}
	if ic.Scope == types.Global {
		dirs = append(dirs, fsutil.NearestExistingAncestor(ic.GlobalRoot()))
	}
	for _, dir := range dirs {
		if err := probe(dir); err != nil {
			return errors.E(op, ic.Target(), err)
		}
	}
	return nil
}

func checkWorkTree(ctx context.Context, ic *install.Context) error {
	const op errors.Op = "precheck.checkWorkTree"
	if !ic.Git.IsWorkTree(ctx) {
		return errors.E(op, errors.Precondition, &NotGitRepoError{Dir: ic.TargetRoot})
	}
	return nil
}

func checkIndex(ctx context.Context, ic *install.Context) error {
	const op errors.Op = "precheck.checkIndex"
	_, err := ic.Git.Query(ctx, "diff", "--cached", "--quiet")
	if err == nil {
		return nil
	}
	if gitutil.ExitCodeOf(err) != 1 {
		return errors.E(op, err)
	}
	rr, err := ic.Git.Query(ctx, "diff", "--cached", "--name-only")
	if err != nil {
		return errors.E(op, err)
	}
	return errors.E(op, errors.Precondition, &DirtyIndexError{Files: lines(rr.Stdout)})
}

func checkUntrackedDirs(ctx context.Context, ic *install.Context) error {
	const op errors.Op = "precheck.checkUntrackedDirs"
	rr, err := ic.Git.Query(ctx, "status", "--porcelain", "--untracked-files=normal")
	if err != nil {
		return errors.E(op, err)
	}
	dirs := UntrackedDirs(rr.Stdout)
	if len(dirs) == 0 {
		return nil
	}
	klog.V(3).Infof("untracked directories in %s: %v", ic.TargetRoot, dirs)
	return errors.E(op, errors.Precondition, &UntrackedDirsError{Dirs: dirs})
}

// UntrackedDirs extracts untracked directories from porcelain status output.
func UntrackedDirs(porcelain string) []string {
	var dirs []string
	for _, line := range lines(porcelain) {
		path, ok := strings.CutPrefix(line, "?? ")
		if !ok {
			continue
		}
		path = strings.Trim(path, `"`)
		if strings.HasSuffix(path, "/") {
			dirs = append(dirs, path)
		}
	}
	return dirs
}

// probe creates and removes a file in dir.
func probe(dir string) error {
	const op errors.Op = "precheck.probe"
	f, err := os.CreateTemp(dir, ".scriptkit-probe-*")
	if err != nil {
		return errors.E(op, errors.Precondition, types.UniquePath(dir), &NotWritableError{Path: dir, Err: err})
	}
	name := f.Name()
	_ = f.Close()
	if err := os.Remove(name); err != nil {
		return errors.E(op, errors.Precondition, types.UniquePath(dir),
			&NotWritableError{Path: filepath.Dir(name), Err: err})
	}
	return nil
}

func lines(s string) []string {
	var out []string
	scanner := bufio.NewScanner(strings.NewReader(s))
	for scanner.Scan() {
		if l := strings.TrimRight(scanner.Text(), "\r"); l != "" {
			out = append(out, l)
		}
	}
	return out
}
