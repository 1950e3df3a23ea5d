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

// Package hooks integrates an installed component with the target
// repository. Every hook checks whether it is already configured and is safe
// to run repeatedly.
package hooks

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/fsutil"
	"github.com/kptdev/scriptkit/internal/install"
	"github.com/kptdev/scriptkit/internal/types"
	"github.com/kptdev/scriptkit/pkg/printer"
	"k8s.io/klog/v2"
)

// ManagedMarker precedes lines written by scriptkit.
const ManagedMarker = "# managed by scriptkit"

// Hook is one post-install integration.
type Hook interface {
	Name() string
	// Path returns the file the hook writes.
	Path(ic *install.Context) string
	// Configured returns true if the hook has nothing to do.
	Configured(ic *install.Context) (bool, error)
	Apply(ctx context.Context, ic *install.Context) error
}

// Default returns the enabled hooks in the order they run.
func Default(ic *install.Context) []Hook {
	cfg := ic.Config.Hooks
	if !cfg.Enabled {
		return nil
	}
	var hooks []Hook
	if cfg.EnvFile != "" {
		hooks = append(hooks, &EnvFileHook{})
	}
	if cfg.DevEnvFile != "" {
		hooks = append(hooks, &DevEnvHook{})
	}
	if cfg.ScriptsDir != "" && cfg.EntryPoint != "" {
		hooks = append(hooks, &EntryPointHook{})
	}
	return hooks
}

// Run applies every hook that is not configured yet. A failing hook is
// reported as a warning and does not stop the others; the failures are
// returned together.
func Run(ctx context.Context, ic *install.Context, hooks []Hook) []error {
	pr := printer.FromContextOrDie(ctx)
	var errs []error
	for _, h := range hooks {
		done, err := h.Configured(ic)
		if err != nil {
			pr.Warnf("hook %s skipped: %v\n", h.Name(), err)
			errs = append(errs, err)
			continue
		}
		if done {
			klog.V(2).Infof("hook %s already configured", h.Name())
			continue
		}
		if err := h.Apply(ctx, ic); err != nil {
			pr.Warnf("hook %s failed: %v\n", h.Name(), err)
			errs = append(errs, err)
			continue
		}
		pr.Printf("Configured %s\n", h.Name())
	}
	return errs
}

// EnvFileHook appends the component location to a dotenv file.
type EnvFileHook struct{}

func (h *EnvFileHook) Name() string { return "env file" }

func (h *EnvFileHook) Path(ic *install.Context) string {
	return filepath.Join(ic.TargetRoot, ic.Config.Hooks.EnvFile)
}

func (h *EnvFileHook) Configured(ic *install.Context) (bool, error) {
	const op errors.Op = "hooks.EnvFileConfigured"
	f, err := os.Open(h.Path(ic))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.E(op, errors.IO, types.UniquePath(h.Path(ic)), err)
	}
	defer f.Close()

	key := ic.Config.Hooks.EnvVar
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimPrefix(line, "export ")
		if line == ManagedMarker || strings.HasPrefix(line, key+"=") {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, errors.E(op, errors.IO, types.UniquePath(h.Path(ic)), err)
	}
	return false, nil
}

func (h *EnvFileHook) Apply(ctx context.Context, ic *install.Context) error {
	const op errors.Op = "hooks.EnvFileApply"
	path := h.Path(ic)
	var lead string
	if b, err := os.ReadFile(path); err == nil && len(b) > 0 && !strings.HasSuffix(string(b), "\n") {
		lead = "\n"
	}
	data := fmt.Sprintf("%s%s\n%s=%s\n", lead, ManagedMarker, ic.Config.Hooks.EnvVar, ic.TargetPath())
	if err := ic.FS.AppendFile(ctx, path, []byte(data)); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// EntryPointHook copies the component entry point into the repository
// scripts directory so that it can be invoked without the component path.
type EntryPointHook struct{}

func (h *EntryPointHook) Name() string { return "entry point" }

func (h *EntryPointHook) Path(ic *install.Context) string {
	return filepath.Join(ic.TargetRoot, ic.Config.Hooks.ScriptsDir, ic.Config.Hooks.EntryPoint)
}

func (h *EntryPointHook) src(ic *install.Context) string {
	return filepath.Join(ic.TargetPath(), ic.Config.Hooks.EntryPoint)
}

func (h *EntryPointHook) Configured(ic *install.Context) (bool, error) {
	// The scripts directory may be the component itself.
	if filepath.Clean(h.Path(ic)) == filepath.Clean(h.src(ic)) {
		return true, nil
	}
	return fsutil.Exists(h.Path(ic)), nil
}

func (h *EntryPointHook) Apply(ctx context.Context, ic *install.Context) error {
	const op errors.Op = "hooks.EntryPointApply"
	src := h.src(ic)
	if !ic.DryRun && !fsutil.Exists(src) {
		return errors.E(op, errors.Precondition, types.UniquePath(src),
			fmt.Errorf("entry point %s not found in the installed component", ic.Config.Hooks.EntryPoint))
	}
	if err := ic.FS.Copy(ctx, src, h.Path(ic)); err != nil {
		return errors.E(op, err)
	}
	return nil
}
