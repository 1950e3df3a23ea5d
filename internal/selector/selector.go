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

// Package selector points a target at one materialized version.
package selector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/fsutil"
	"github.com/kptdev/scriptkit/internal/install"
	"github.com/kptdev/scriptkit/internal/types"
	"github.com/kptdev/scriptkit/pkg/printer"
	"k8s.io/klog/v2"
)

// backupTimeFormat is used to name directories moved out of the way by
// --force.
const backupTimeFormat = "20060102-150405"

// ErrNoSelector is returned by Pointer.Read when no selector exists.
var ErrNoSelector = errors.New("no selector")

// Pointer is the active version of a target. A symlink is one way to store
// it.
type Pointer interface {
	// Read returns the absolute path the pointer resolves to.
	Read() (string, error)
	// Set points at target. The pointer must not exist.
	Set(ctx context.Context, target string) error
	// Clear removes the pointer. It never removes what the pointer
	// references.
	Clear(ctx context.Context) error
	Exists() bool
}

// SymlinkPointer stores the active version as a symlink.
type SymlinkPointer struct {
	Path string
	FS   fsutil.Filesystem
}

var _ Pointer = &SymlinkPointer{}

func (p *SymlinkPointer) Read() (string, error) {
	const op errors.Op = "selector.Read"
	if !fsutil.IsSymlink(p.Path) {
		return "", ErrNoSelector
	}
	target, err := os.Readlink(p.Path)
	if err != nil {
		return "", errors.E(op, errors.IO, types.UniquePath(p.Path), err)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(p.Path), target)
	}
	return filepath.Clean(target), nil
}

func (p *SymlinkPointer) Set(ctx context.Context, target string) error {
	return p.FS.Symlink(ctx, target, p.Path)
}

func (p *SymlinkPointer) Clear(ctx context.Context) error {
	if !p.Exists() {
		return nil
	}
	return p.FS.Remove(ctx, p.Path)
}

func (p *SymlinkPointer) Exists() bool {
	return fsutil.IsSymlink(p.Path)
}

// BrokenSelectorError means the selector exists but does not lead to a
// usable component.
type BrokenSelectorError struct {
	Path   string
	Target string
	Marker string
}

func (e *BrokenSelectorError) Error() string {
	return fmt.Sprintf("selector %s points at %s which has no %s", e.Path, e.Target, e.Marker)
}

// ConflictError is returned when a real directory occupies the selector
// path.
type ConflictError struct {
	Path string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s exists and is not a selector", e.Path)
}

// Binder points the target's selector at a checkout.
type Binder struct {
	ic *install.Context
}

func NewBinder(ic *install.Context) *Binder {
	return &Binder{ic: ic}
}

// Pointer returns the selector of the target.
func (b *Binder) Pointer() Pointer {
	return PointerFor(b.ic)
}

// PointerFor returns the selector of the target of ic.
func PointerFor(ic *install.Context) Pointer {
	return &SymlinkPointer{Path: ic.TargetPath(), FS: ic.FS}
}

// Bind points the selector at the component directory of checkout. A real
// directory at the selector path is moved aside with --force and refused
// otherwise. A selector that does not resolve to the marker file afterwards
// is returned as *BrokenSelectorError; the selector is still in place.
func (b *Binder) Bind(ctx context.Context, checkout string) error {
	const op errors.Op = "selector.Bind"
	pr := printer.FromContextOrDie(ctx)
	ic := b.ic
	path := ic.TargetPath()
	content := ic.ContentPath(checkout)
	ptr := b.Pointer()

	switch {
	case ptr.Exists():
		if err := ptr.Clear(ctx); err != nil {
			return errors.E(op, ic.Target(), err)
		}
	case fsutil.Exists(path):
		if !ic.Force {
			return errors.E(op, errors.Precondition, ic.Target(), &ConflictError{Path: path})
		}
		backup := fmt.Sprintf("%s.backup-%s", path, time.Now().Format(backupTimeFormat))
		if err := ic.FS.Rename(ctx, path, backup); err != nil {
			return errors.E(op, ic.Target(), err)
		}
		pr.Warnf("moved existing %s to %s\n", path, backup)
	}

	if err := ptr.Set(ctx, content); err != nil {
		return errors.E(op, ic.Target(), err)
	}
	klog.V(2).Infof("selector %s -> %s", path, content)

	if ic.DryRun {
		return nil
	}
	marker := filepath.Join(path, ic.Config.MarkerFile)
	if _, err := os.Stat(marker); err != nil {
		return errors.E(op, errors.Corrupt, ic.Target(), &BrokenSelectorError{
			Path:   path,
			Target: content,
			Marker: ic.Config.MarkerFile,
		})
	}
	return nil
}

// Unbind removes the selector, leaving the checkout in place.
func (b *Binder) Unbind(ctx context.Context) error {
	const op errors.Op = "selector.Unbind"
	if err := b.Pointer().Clear(ctx); err != nil {
		return errors.E(op, b.ic.Target(), err)
	}
	return nil
}
