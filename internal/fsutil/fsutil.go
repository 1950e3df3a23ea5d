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

// Package fsutil routes every filesystem mutation through one interface so
// dry-run can intercept it.
package fsutil

import (
	"context"
	"os"
	"path/filepath"

	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/types"
	"github.com/kptdev/scriptkit/pkg/printer"
	"github.com/otiai10/copy"
	"k8s.io/klog/v2"
)

// Filesystem performs the filesystem mutations scriptkit needs. Reads go
// straight to the os package.
type Filesystem interface {
	MkdirAll(ctx context.Context, path string) error
	WriteFile(ctx context.Context, path string, data []byte) error
	AppendFile(ctx context.Context, path string, data []byte) error
	Remove(ctx context.Context, path string) error
	RemoveAll(ctx context.Context, path string) error
	Rename(ctx context.Context, from, to string) error
	Symlink(ctx context.Context, target, link string) error
	Copy(ctx context.Context, src, dst string) error
}

// New returns the filesystem for the mode the command runs in.
func New(dryRun bool) Filesystem {
	if dryRun {
		return DryRunFilesystem{}
	}
	return OSFilesystem{}
}

// OSFilesystem applies changes to disk.
type OSFilesystem struct{}

var _ Filesystem = OSFilesystem{}

func (OSFilesystem) MkdirAll(_ context.Context, path string) error {
	const op errors.Op = "fsutil.MkdirAll"
	if err := os.MkdirAll(path, 0755); err != nil {
		return errors.E(op, errors.IO, types.UniquePath(path), err)
	}
	return nil
}

func (OSFilesystem) WriteFile(_ context.Context, path string, data []byte) error {
	const op errors.Op = "fsutil.WriteFile"
	mode := os.FileMode(0644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		return errors.E(op, errors.IO, types.UniquePath(path), err)
	}
	return nil
}

func (OSFilesystem) AppendFile(_ context.Context, path string, data []byte) error {
	const op errors.Op = "fsutil.AppendFile"
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.E(op, errors.IO, types.UniquePath(path), err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return errors.E(op, errors.IO, types.UniquePath(path), err)
	}
	if err := f.Close(); err != nil {
		return errors.E(op, errors.IO, types.UniquePath(path), err)
	}
	return nil
}

func (OSFilesystem) Remove(_ context.Context, path string) error {
	const op errors.Op = "fsutil.Remove"
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.E(op, errors.IO, types.UniquePath(path), err)
	}
	return nil
}

func (OSFilesystem) RemoveAll(_ context.Context, path string) error {
	const op errors.Op = "fsutil.RemoveAll"
	if err := os.RemoveAll(path); err != nil {
		return errors.E(op, errors.IO, types.UniquePath(path), err)
	}
	return nil
}

func (OSFilesystem) Rename(_ context.Context, from, to string) error {
	const op errors.Op = "fsutil.Rename"
	if err := os.Rename(from, to); err != nil {
		return errors.E(op, errors.IO, types.UniquePath(from), err)
	}
	return nil
}

func (OSFilesystem) Symlink(_ context.Context, target, link string) error {
	const op errors.Op = "fsutil.Symlink"
	if err := os.MkdirAll(filepath.Dir(link), 0755); err != nil {
		return errors.E(op, errors.IO, types.UniquePath(link), err)
	}
	if err := os.Symlink(target, link); err != nil {
		return errors.E(op, errors.IO, types.UniquePath(link), err)
	}
	return nil
}

func (OSFilesystem) Copy(_ context.Context, src, dst string) error {
	const op errors.Op = "fsutil.Copy"
	if err := copy.Copy(src, dst, copy.Options{
		OnSymlink: func(string) copy.SymlinkAction { return copy.Deep },
	}); err != nil {
		return errors.E(op, errors.IO, types.UniquePath(dst), err)
	}
	return nil
}

// DryRunFilesystem reports the mutations it is given and performs none of
// them.
type DryRunFilesystem struct{}

var _ Filesystem = DryRunFilesystem{}

func report(ctx context.Context, format string, args ...interface{}) error {
	printer.FromContextOrDie(ctx).Printf("[dry-run] "+format+"\n", args...)
	klog.V(2).Infof("dry-run: skipped "+format, args...)
	return nil
}

func (DryRunFilesystem) MkdirAll(ctx context.Context, path string) error {
	return report(ctx, "mkdir -p %s", path)
}

func (DryRunFilesystem) WriteFile(ctx context.Context, path string, data []byte) error {
	return report(ctx, "write %s (%d bytes)", path, len(data))
}

func (DryRunFilesystem) AppendFile(ctx context.Context, path string, data []byte) error {
	return report(ctx, "append %s (%d bytes)", path, len(data))
}

func (DryRunFilesystem) Remove(ctx context.Context, path string) error {
	return report(ctx, "rm %s", path)
}

func (DryRunFilesystem) RemoveAll(ctx context.Context, path string) error {
	return report(ctx, "rm -rf %s", path)
}

func (DryRunFilesystem) Rename(ctx context.Context, from, to string) error {
	return report(ctx, "mv %s %s", from, to)
}

func (DryRunFilesystem) Symlink(ctx context.Context, target, link string) error {
	return report(ctx, "ln -s %s %s", target, link)
}

func (DryRunFilesystem) Copy(ctx context.Context, src, dst string) error {
	return report(ctx, "cp -r %s %s", src, dst)
}

// Exists returns true if something, including a dangling symlink, is at path.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// IsSymlink returns true if path is a symbolic link.
func IsSymlink(path string) bool {
	fi, err := os.Lstat(path)
	return err == nil && fi.Mode()&os.ModeSymlink != 0
}

// IsDir returns true if path is a directory and not a symlink to one.
func IsDir(path string) bool {
	fi, err := os.Lstat(path)
	return err == nil && fi.IsDir()
}

// NearestExistingAncestor walks up from path until it finds something that
// exists.
func NearestExistingAncestor(path string) string {
	p := filepath.Clean(path)
	for {
		if Exists(p) {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}
