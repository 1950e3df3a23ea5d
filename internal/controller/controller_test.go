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

package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	. "github.com/kptdev/scriptkit/internal/controller"
	"github.com/kptdev/scriptkit/internal/detect"
	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/install"
	"github.com/kptdev/scriptkit/internal/install/installtest"
	"github.com/kptdev/scriptkit/internal/ledger"
	"github.com/kptdev/scriptkit/internal/precheck"
	"github.com/kptdev/scriptkit/internal/resolve"
	"github.com/kptdev/scriptkit/internal/testutil"
	"github.com/kptdev/scriptkit/internal/types"
	"github.com/kptdev/scriptkit/pkg/printer/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	os.Exit(testutil.ConfigureTestEnv(m))
}

func setup(t *testing.T) *testutil.TestSetupManager {
	t.Helper()
	testutil.SkipIfNoSubtree(t)
	sm := &testutil.TestSetupManager{T: t}
	if !sm.Init() {
		t.FailNow()
	}
	return sm
}

// run builds a fresh context per operation, the way the CLI does.
func run(t *testing.T, sm *testutil.TestSetupManager, cwd string, opts install.Options,
	fn func(ctx context.Context, c *Controller) error) error {
	t.Helper()
	ic := installtest.NewContextIn(t, sm, cwd, opts)
	return fn(fake.CtxWithDefaultPrinter(), New(ic))
}

func local(t *testing.T, sm *testutil.TestSetupManager, fn func(ctx context.Context, c *Controller) error) error {
	t.Helper()
	return run(t, sm, sm.Consumer.RepoDirectory, installtest.Local(), fn)
}

func detected(t *testing.T, sm *testutil.TestSetupManager, cwd string, opts install.Options) types.InstallationRecord {
	t.Helper()
	rec, err := detect.Detect(fake.CtxWithDefaultPrinter(), installtest.NewContextIn(t, sm, cwd, opts))
	require.NoError(t, err)
	return rec
}

func installToken(token string) func(context.Context, *Controller) error {
	return func(ctx context.Context, c *Controller) error { return c.Install(ctx, token) }
}

func upgradeToken(token string) func(context.Context, *Controller) error {
	return func(ctx context.Context, c *Controller) error { return c.Upgrade(ctx, token) }
}

func rollback(ctx context.Context, c *Controller) error { return c.Rollback(ctx, "") }

func TestLocalInstall(t *testing.T) {
	sm := setup(t)
	require.NoError(t, local(t, sm, installToken("1.2.0")))

	rec := detected(t, sm, sm.Consumer.RepoDirectory, installtest.Local())
	assert.Equal(t, types.Installed, rec.Status)
	assert.Equal(t, "1.2.0", rec.Version)

	dir := sm.Consumer.RepoDirectory
	assert.Equal(t, testutil.EntryPointContent("1.2.0"),
		testutil.ReadFile(t, dir, filepath.Join("scriptkit", testutil.EntryPoint)))
	// The hooks ran and their files were committed.
	assert.Contains(t, testutil.ReadFile(t, dir, "mise.toml"), "SCRIPTKIT_HOME")
	assert.FileExists(t, filepath.Join(dir, "scripts", testutil.EntryPoint))
	assert.Empty(t, sm.Consumer.Git(t, "status", "--porcelain"))
	assert.Equal(t, "Configure scriptkit integration", sm.Consumer.Git(t, "log", "-1", "--format=%s"))
}

func TestLocalInstallIsIdempotent(t *testing.T) {
	sm := setup(t)
	require.NoError(t, local(t, sm, installToken("1.0.0")))
	before := testutil.Snapshot(t, sm.Consumer.RepoDirectory)

	require.NoError(t, local(t, sm, installToken("1.0.0")))
	require.NoError(t, local(t, sm, installToken("1.2.0")))

	testutil.AssertSnapshotEqual(t, before, testutil.Snapshot(t, sm.Consumer.RepoDirectory))
}

func TestLocalUpgradeToSameVersionIsNoop(t *testing.T) {
	sm := setup(t)
	require.NoError(t, local(t, sm, installToken("latest")))
	before := testutil.Snapshot(t, sm.Consumer.RepoDirectory)

	require.NoError(t, local(t, sm, upgradeToken("main")))

	testutil.AssertSnapshotEqual(t, before, testutil.Snapshot(t, sm.Consumer.RepoDirectory))
}

func TestLocalRoundTrip(t *testing.T) {
	sm := setup(t)
	dir := sm.Consumer.RepoDirectory
	require.NoError(t, local(t, sm, installToken("1.0.0")))
	before := testutil.Snapshot(t, filepath.Join(dir, "scriptkit"))

	require.NoError(t, local(t, sm, upgradeToken("1.10.0")))
	assert.Equal(t, "1.10.0", detected(t, sm, dir, installtest.Local()).Version)
	assert.FileExists(t, filepath.Join(dir, ".scriptkit-rollback"))

	require.NoError(t, local(t, sm, rollback))
	testutil.AssertSnapshotEqual(t, before, testutil.Snapshot(t, filepath.Join(dir, "scriptkit")))
	assert.NoFileExists(t, filepath.Join(dir, ".scriptkit-rollback"))

	// The marker is consumed.
	err := local(t, sm, rollback)
	var nothing *ledger.NothingToRollbackError
	assert.True(t, errors.As(err, &nothing), "%v", err)
}

func TestAuto(t *testing.T) {
	sm := setup(t)
	auto := func(token string) func(context.Context, *Controller) error {
		return func(ctx context.Context, c *Controller) error { return c.Auto(ctx, token) }
	}
	require.NoError(t, local(t, sm, auto("1.0.0")))
	assert.Equal(t, "1.0.0", detected(t, sm, sm.Consumer.RepoDirectory, installtest.Local()).Version)

	require.NoError(t, local(t, sm, auto("1.2.0")))
	assert.Equal(t, "1.2.0", detected(t, sm, sm.Consumer.RepoDirectory, installtest.Local()).Version)
}

func TestRollbackToExplicitVersion(t *testing.T) {
	sm := setup(t)
	require.NoError(t, local(t, sm, installToken("1.2.0")))
	require.NoError(t, local(t, sm, func(ctx context.Context, c *Controller) error {
		return c.Rollback(ctx, "1.0.0")
	}))
	assert.Equal(t, "1.0.0", detected(t, sm, sm.Consumer.RepoDirectory, installtest.Local()).Version)
}

func TestUpgradeNotInstalled(t *testing.T) {
	sm := setup(t)
	err := local(t, sm, upgradeToken("1.0.0"))
	var notInstalled *precheck.NotInstalledError
	require.True(t, errors.As(err, &notInstalled), "%v", err)
	assert.Equal(t, "upgrade", notInstalled.Operation)
	assert.Equal(t, errors.Precondition, errors.KindOf(err))
}

func TestUnknownVersionChangesNothing(t *testing.T) {
	sm := setup(t)
	before := testutil.Snapshot(t, sm.Consumer.RepoDirectory)

	err := local(t, sm, installToken("9.9.9"))
	var notFound *resolve.VersionNotFoundError
	require.True(t, errors.As(err, &notFound), "%v", err)

	testutil.AssertSnapshotEqual(t, before, testutil.Snapshot(t, sm.Consumer.RepoDirectory))
}

func TestUntrackedDirectoriesAreNeverTouched(t *testing.T) {
	sm := setup(t)
	dir := sm.Consumer.RepoDirectory
	untracked := filepath.Join(dir, "scriptkit", "mine.sh")
	require.NoError(t, os.MkdirAll(filepath.Dir(untracked), 0755))
	require.NoError(t, os.WriteFile(untracked, []byte("keep me"), 0644))

	err := local(t, sm, installToken("1.0.0"))
	var untrackedErr *precheck.UntrackedDirsError
	require.True(t, errors.As(err, &untrackedErr), "%v", err)
	assert.Equal(t, []string{"scriptkit/"}, untrackedErr.Dirs)
	assert.Equal(t, "keep me", testutil.ReadFile(t, dir, filepath.Join("scriptkit", "mine.sh")))
}

func TestStagedChangesBlockInstall(t *testing.T) {
	sm := setup(t)
	sm.Consumer.WriteFile(t, "staged.txt", "x")

	err := local(t, sm, installToken("1.0.0"))
	var dirty *precheck.DirtyIndexError
	require.True(t, errors.As(err, &dirty), "%v", err)
	assert.Equal(t, []string{"staged.txt"}, dirty.Files)
}

func TestStaleMarker(t *testing.T) {
	sm := setup(t)
	require.NoError(t, local(t, sm, installToken("1.0.0")))
	marker := filepath.Join(sm.Consumer.RepoDirectory, ".scriptkit-rollback")
	require.NoError(t, os.WriteFile(marker, []byte("0123456789abcdef0123456789abcdef01234567\n"), 0644))

	err := local(t, sm, rollback)
	var stale *ledger.StaleMarkerError
	require.True(t, errors.As(err, &stale), "%v", err)
	assert.Equal(t, errors.Corrupt, errors.KindOf(err))
	assert.FileExists(t, marker)
}

func TestInstallOverLeftoverBranches(t *testing.T) {
	sm := setup(t)
	dir := sm.Consumer.RepoDirectory
	sm.Consumer.Git(t, "branch", "scriptkit-staging")
	sm.Consumer.Git(t, "branch", "scriptkit-content")

	require.NoError(t, local(t, sm, installToken("1.0.0")))
	assert.Equal(t, testutil.EntryPointContent("1.0.0"),
		testutil.ReadFile(t, dir, filepath.Join("scriptkit", testutil.EntryPoint)))
	assert.Equal(t, sm.Commits["1.0.0"], sm.Consumer.Git(t, "rev-parse", "scriptkit-staging"))

	require.NoError(t, local(t, sm, upgradeToken("1.2.0")))
	assert.Equal(t, "1.2.0", detected(t, sm, dir, installtest.Local()).Version)
}

func TestHookCommitSkipsUncommittedFiles(t *testing.T) {
	sm := setup(t)
	dir := sm.Consumer.RepoDirectory
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mise.toml"), []byte("[tools]\nnode = \"20\"\n"), 0644))

	var out bytes.Buffer
	ic := installtest.NewContext(t, sm, installtest.Local())
	require.NoError(t, New(ic).Install(fake.CtxWithPrinter(&out, &out), "1.0.0"))

	assert.Contains(t, out.String(), "mise.toml had uncommitted changes")
	assert.Contains(t, testutil.ReadFile(t, dir, "mise.toml"), "SCRIPTKIT_HOME")
	assert.Contains(t, sm.Consumer.Git(t, "status", "--porcelain"), "?? mise.toml")
	committed := sm.Consumer.Git(t, "show", "--name-only", "--format=", "HEAD")
	assert.NotContains(t, committed, "mise.toml")
	assert.Contains(t, committed, filepath.ToSlash(filepath.Join("scripts", testutil.EntryPoint)))
}

func TestUninstallLocal(t *testing.T) {
	sm := setup(t)
	dir := sm.Consumer.RepoDirectory
	require.NoError(t, local(t, sm, installToken("1.0.0")))
	before := testutil.Snapshot(t, dir)

	var out bytes.Buffer
	ic := installtest.NewContext(t, sm, installtest.Local())
	require.NoError(t, New(ic).Uninstall(fake.CtxWithPrinter(&out, &out)))
	assert.Contains(t, out.String(), "--confirm")
	assert.Contains(t, out.String(), "git rm -r scriptkit")
	testutil.AssertSnapshotEqual(t, before, testutil.Snapshot(t, dir))

	opts := installtest.Local()
	opts.Confirm = true
	require.NoError(t, run(t, sm, dir, opts, func(ctx context.Context, c *Controller) error {
		return c.Uninstall(ctx)
	}))
	assert.NoDirExists(t, filepath.Join(dir, "scriptkit"))
	assert.Empty(t, sm.Consumer.Git(t, "remote"))
	assert.Equal(t, "main", sm.Consumer.Git(t, "branch", "--format=%(refname:short)"))
	assert.Equal(t, types.NotInstalled, detected(t, sm, dir, installtest.Local()).Status)

	// A second uninstall has nothing to do.
	require.NoError(t, run(t, sm, dir, opts, func(ctx context.Context, c *Controller) error {
		return c.Uninstall(ctx)
	}))
}

func TestDryRunChangesNothing(t *testing.T) {
	testCases := map[string]struct {
		prepare []func(context.Context, *Controller) error
		op      func(context.Context, *Controller) error
	}{
		"install": {
			op: installToken("1.0.0"),
		},
		"upgrade": {
			prepare: []func(context.Context, *Controller) error{installToken("1.0.0")},
			op:      upgradeToken("1.2.0"),
		},
		"rollback": {
			prepare: []func(context.Context, *Controller) error{installToken("1.0.0"), upgradeToken("1.2.0")},
			op:      rollback,
		},
		"uninstall": {
			prepare: []func(context.Context, *Controller) error{installToken("1.0.0")},
			op: func(ctx context.Context, c *Controller) error {
				return c.Uninstall(ctx)
			},
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			sm := setup(t)
			for _, p := range tc.prepare {
				require.NoError(t, local(t, sm, p))
			}
			before := testutil.Snapshot(t, sm.Consumer.RepoDirectory)

			opts := installtest.Local()
			opts.DryRun = true
			opts.Confirm = true
			var out bytes.Buffer
			ic := installtest.NewContext(t, sm, opts)
			require.NoError(t, tc.op(fake.CtxWithPrinter(&out, &out), New(ic)))

			testutil.AssertSnapshotEqual(t, before, testutil.Snapshot(t, sm.Consumer.RepoDirectory))
			assert.Contains(t, out.String(), "[dry-run]")
		})
	}
}

func TestGlobalCoexistence(t *testing.T) {
	sm := setup(t)
	first, second, third := t.TempDir(), t.TempDir(), t.TempDir()

	require.NoError(t, run(t, sm, first, installtest.Global(), installToken("1.0.0")))
	require.NoError(t, run(t, sm, second, installtest.Global(), installToken("1.2.0")))
	require.NoError(t, run(t, sm, third, installtest.Global(), installToken("latest")))

	for dir, version := range map[string]string{first: "1.0.0", second: "1.2.0", third: "main"} {
		assert.Equal(t, testutil.EntryPointContent(version),
			testutil.ReadFile(t, dir, filepath.Join("scriptkit", testutil.EntryPoint)))
		assert.Equal(t, version, detected(t, sm, dir, installtest.Global()).Version)
	}
	assert.DirExists(t, filepath.Join(sm.GlobalRoot, ".versions", "1.0.0"))
	assert.DirExists(t, filepath.Join(sm.GlobalRoot, ".versions", "1.2.0"))
}

func TestGlobalRoundTrip(t *testing.T) {
	sm := setup(t)
	cwd := t.TempDir()
	require.NoError(t, run(t, sm, cwd, installtest.Global(), installToken("1.0.0")))
	require.NoError(t, run(t, sm, cwd, installtest.Global(), upgradeToken("1.2.0")))
	assert.Equal(t, "1.2.0", detected(t, sm, cwd, installtest.Global()).Version)

	require.NoError(t, run(t, sm, cwd, installtest.Global(), rollback))
	assert.Equal(t, "1.0.0", detected(t, sm, cwd, installtest.Global()).Version)
	assert.NoFileExists(t, filepath.Join(cwd, ".scriptkit-rollback"))
}

func TestGlobalWithoutSymlink(t *testing.T) {
	sm := setup(t)
	cwd := t.TempDir()
	opts := installtest.Global()
	opts.CreateSymlink = false
	opts.Confirm = true

	require.NoError(t, run(t, sm, cwd, opts, installToken("1.0.0")))
	assert.NoFileExists(t, filepath.Join(cwd, "scriptkit"))
	assert.DirExists(t, filepath.Join(sm.GlobalRoot, ".versions", "1.0.0"))

	rec := detected(t, sm, cwd, installtest.Global())
	assert.True(t, rec.Unbound)

	opts.Purge = true
	require.NoError(t, run(t, sm, cwd, opts, func(ctx context.Context, c *Controller) error {
		return c.Uninstall(ctx)
	}))
	assert.NoDirExists(t, sm.GlobalRoot)
}

func TestGlobalBrokenSelectorBlocksInstall(t *testing.T) {
	sm := setup(t)
	cwd := t.TempDir()
	require.NoError(t, run(t, sm, cwd, installtest.Global(), installToken("1.0.0")))
	require.NoError(t, os.Remove(filepath.Join(sm.GlobalRoot, ".versions", "1.0.0", testutil.ComponentDir, testutil.EntryPoint)))

	err := run(t, sm, cwd, installtest.Global(), installToken("1.2.0"))
	var broken *precheck.BrokenInstallError
	require.True(t, errors.As(err, &broken), "%v", err)
	assert.Equal(t, errors.Corrupt, errors.KindOf(err))

	// Uninstall still works on a broken install.
	opts := installtest.Global()
	opts.Confirm = true
	require.NoError(t, run(t, sm, cwd, opts, func(ctx context.Context, c *Controller) error {
		return c.Uninstall(ctx)
	}))
	assert.NoFileExists(t, filepath.Join(cwd, "scriptkit"))
}

func TestGlobalForceBacksUpDirectory(t *testing.T) {
	sm := setup(t)
	cwd := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(cwd, "scriptkit"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "scriptkit", "mine"), []byte("x"), 0644))

	err := run(t, sm, cwd, installtest.Global(), installToken("1.0.0"))
	require.Error(t, err)

	opts := installtest.Global()
	opts.Force = true
	require.NoError(t, run(t, sm, cwd, opts, installToken("1.0.0")))

	matches, err := filepath.Glob(filepath.Join(cwd, "scriptkit.backup-*", "mine"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestVersions(t *testing.T) {
	sm := setup(t)
	require.NoError(t, local(t, sm, installToken("1.2.0")))

	var out bytes.Buffer
	require.NoError(t, local(t, sm, func(ctx context.Context, c *Controller) error {
		return c.Versions(ctx, &out, "json")
	}))

	var listing resolve.Listing
	require.NoError(t, json.Unmarshal(out.Bytes(), &listing))
	assert.Equal(t, "1.2.0", listing.Current)
	var stable []string
	for _, e := range listing.Stable {
		stable = append(stable, e.Name)
	}
	assert.Equal(t, []string{"1.10.0", "1.2.0", "1.0.0"}, stable)
	assert.True(t, listing.Stable[0].LatestStable)
	assert.True(t, listing.Stable[1].Current)
}

func TestStatus(t *testing.T) {
	sm := setup(t)
	cwd := t.TempDir()
	require.NoError(t, run(t, sm, cwd, installtest.Global(), installToken("1.0.0")))
	require.NoError(t, run(t, sm, cwd, installtest.Global(), upgradeToken("1.2.0")))

	var out bytes.Buffer
	require.NoError(t, run(t, sm, cwd, installtest.Global(), func(ctx context.Context, c *Controller) error {
		return c.Status(ctx, &out)
	}))
	s := out.String()
	assert.Contains(t, s, "Version:  1.2.0")
	assert.Contains(t, s, "Rollback: "+ledger.ShortHash(sm.Commits["1.0.0"]))
	assert.Contains(t, s, "1.0.0 ("+ledger.ShortHash(sm.Commits["1.0.0"])+")")
	assert.Contains(t, s, "1.2.0 ("+ledger.ShortHash(sm.Commits["1.2.0"])+") *")
}
