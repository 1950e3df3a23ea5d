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

// Package detect derives the installation record of a target from the
// repository and filesystem. Nothing is persisted; every invocation detects
// again.
package detect

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/fsutil"
	"github.com/kptdev/scriptkit/internal/gitutil"
	"github.com/kptdev/scriptkit/internal/install"
	"github.com/kptdev/scriptkit/internal/selector"
	"github.com/kptdev/scriptkit/internal/types"
	"k8s.io/klog/v2"
)

// Unbound is the version reported for a global root without a selector.
const Unbound = "unbound"

// UnknownVersion is reported when an install exists but its version cannot
// be named.
const UnknownVersion = "unknown"

// Detect returns the installation record for the target of ic. It only runs
// read-only git commands. A broken installation is reported as Broken, not as
// an error.
func Detect(ctx context.Context, ic *install.Context) (types.InstallationRecord, error) {
	const op errors.Op = "detect.Detect"
	var rec types.InstallationRecord
	var err error
	if ic.Scope == types.Global {
		rec, err = detectGlobal(ctx, ic)
	} else {
		rec, err = detectLocal(ctx, ic)
	}
	if err != nil {
		return rec, errors.E(op, ic.Target(), err)
	}
	klog.V(3).Infof("detected %s install: status=%s version=%q ref=%q freshness=%q",
		rec.Scope, rec.Status, rec.Version, rec.Ref, rec.Freshness)
	return rec, nil
}

func detectLocal(ctx context.Context, ic *install.Context) (types.InstallationRecord, error) {
	rec := types.InstallationRecord{Scope: types.Local, Version: types.NoVersion}
	cfg := ic.Config
	g := ic.Git

	// 1. A selector at the prefix means the component is linked, not
	// embedded.
	if selector.PointerFor(ic).Exists() {
		klog.V(3).Infof("local target has a selector at %s", ic.TargetPath())
		return readSelector(ctx, ic, rec)
	}

	if !g.IsWorkTree(ctx) {
		return rec, nil
	}

	// 2. The content branch is left behind by every subtree install. It is
	// stale when the prefix was never embedded, e.g. after a failed attempt.
	contentHash, found := g.RevParse(ctx, "refs/heads/"+cfg.ContentBranch)
	prefixTracked := tracked(ctx, g, cfg.Prefix)
	if found && !prefixTracked {
		klog.V(3).Infof("content branch %s is stale, %s is not tracked", cfg.ContentBranch, cfg.Prefix)
	}
	if found && prefixTracked {
		rec.Status = types.Installed
		rec.ContentHash = contentHash
		stagingHash, hasStaging := g.RevParse(ctx, "refs/heads/"+cfg.StagingBranch)
		rec.StagingHash = stagingHash

		ur, err := ic.Upstream(ctx)
		if err != nil {
			klog.V(3).Infof("upstream unavailable, version unknown: %v", err)
			rec.Version = UnknownVersion
			rec.Freshness = types.FreshnessUnknown
			return rec, nil
		}

		if hasStaging {
			if tag, found := ur.TagForCommit(stagingHash); found {
				klog.V(3).Infof("staging branch %s matches tag %s", stagingHash, tag)
				rec.Version, rec.Ref = tag, tag
				return rec, nil
			}
		}
		// 3. Content hash matched directly.
		if tag, found := ur.TagForCommit(contentHash); found {
			klog.V(3).Infof("content branch %s matches tag %s", contentHash, tag)
			rec.Version, rec.Ref = tag, tag
			return rec, nil
		}
		// 4. Default branch, compared with the remote head.
		compare := contentHash
		if hasStaging {
			compare = stagingHash
		}
		rec.Version, rec.Ref = ur.DefaultBranch, ur.DefaultBranch
		rec.Freshness = freshness(compare, ur)
		return rec, nil
	}

	// 5. Tracked prefix without the local-only branches, e.g. in a fresh
	// clone of the consumer repository.
	if prefixTracked {
		klog.V(3).Infof("prefix %s is tracked but no content branch exists", cfg.Prefix)
		rec.Status = types.Installed
		rec.Freshness = types.FreshnessUnknown
		rec.Version = UnknownVersion
		if ur, err := ic.Upstream(ctx); err == nil {
			rec.Version = ur.DefaultBranch
		}
		return rec, nil
	}

	// 6. Nothing installed.
	return rec, nil
}

func detectGlobal(ctx context.Context, ic *install.Context) (types.InstallationRecord, error) {
	rec := types.InstallationRecord{Scope: types.Global, Version: types.NoVersion}
	if selector.PointerFor(ic).Exists() {
		return readSelector(ctx, ic, rec)
	}
	if RootExists(ic) {
		rec.Status = types.Installed
		rec.Unbound = true
		rec.Version = Unbound
	}
	return rec, nil
}

// RootExists returns true if the global root clone exists.
func RootExists(ic *install.Context) bool {
	return fsutil.Exists(filepath.Join(ic.GlobalRoot(), ".git"))
}

// readSelector classifies the target a selector resolves to.
func readSelector(ctx context.Context, ic *install.Context, rec types.InstallationRecord) (types.InstallationRecord, error) {
	const op errors.Op = "detect.readSelector"
	target, err := selector.PointerFor(ic).Read()
	if err != nil {
		return rec, errors.E(op, err)
	}
	rec.SelectorTarget = target
	rec.Status = types.Installed

	if _, err := os.Stat(filepath.Join(target, ic.Config.MarkerFile)); err != nil {
		rec.Status = types.Broken
		rec.Version = types.NoVersion
		rec.Reason = fmt.Sprintf("selector %s points at %s which has no %s",
			ic.TargetPath(), target, ic.Config.MarkerFile)
		return rec, nil
	}

	checkout := strings.TrimSuffix(target, string(filepath.Separator)+ic.Config.ComponentDir)
	if name, ok := within(ic.VersionsRoot(), checkout); ok && name != "." {
		rec.Version, rec.Ref = name, name
		return rec, nil
	}
	if name, ok := within(ic.GlobalRoot(), checkout); ok && name == "." {
		rec.Freshness = types.FreshnessUnknown
		rec.Version = UnknownVersion
		ur, err := ic.Upstream(ctx)
		if err != nil {
			klog.V(3).Infof("upstream unavailable, freshness unknown: %v", err)
			return rec, nil
		}
		rec.Version, rec.Ref = ur.DefaultBranch, ur.DefaultBranch
		if head, found := ic.RootGit().RevParse(ctx, "HEAD"); found {
			rec.Freshness = freshness(head, ur)
		}
		return rec, nil
	}

	// The selector was created by something else.
	rec.Version = UnknownVersion
	rec.Freshness = types.FreshnessUnknown
	return rec, nil
}

// within returns path relative to root if it lies inside root.
func within(root, path string) (string, bool) {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func freshness(commit string, ur *gitutil.UpstreamRepo) types.Freshness {
	if commit != "" && commit == ur.DefaultBranchCommit() {
		return types.UpToDate
	}
	return types.UpdatesAvailable
}

func tracked(ctx context.Context, g *gitutil.Gateway, prefix string) bool {
	if !g.HasCommits(ctx) {
		return false
	}
	rr, err := g.Query(ctx, "ls-tree", "--name-only", "HEAD", "--", prefix)
	return err == nil && strings.TrimSpace(rr.Stdout) != ""
}
