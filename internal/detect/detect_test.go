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

package detect_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/kptdev/scriptkit/internal/detect"
	"github.com/kptdev/scriptkit/internal/install"
	"github.com/kptdev/scriptkit/internal/install/installtest"
	"github.com/kptdev/scriptkit/internal/resolve"
	"github.com/kptdev/scriptkit/internal/selector"
	"github.com/kptdev/scriptkit/internal/testutil"
	"github.com/kptdev/scriptkit/internal/transport"
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

func installLocal(t *testing.T, sm *testutil.TestSetupManager, token string) {
	t.Helper()
	ctx := fake.CtxWithDefaultPrinter()
	ic := installtest.NewContext(t, sm, installtest.Local())
	ref, err := resolve.ResolveIn(ctx, ic, token)
	require.NoError(t, err)
	require.NoError(t, transport.NewSubtree(ic).Install(ctx, ref))
}

func bindGlobal(t *testing.T, ic *install.Context, token string) string {
	t.Helper()
	ctx := fake.CtxWithDefaultPrinter()
	ref, err := resolve.ResolveIn(ctx, ic, token)
	require.NoError(t, err)
	checkout, err := transport.NewWorktree(ic).Materialize(ctx, ref)
	require.NoError(t, err)
	require.NoError(t, selector.NewBinder(ic).Bind(ctx, checkout))
	return checkout
}

func detect(t *testing.T, ic *install.Context) types.InstallationRecord {
	t.Helper()
	rec, err := Detect(fake.CtxWithDefaultPrinter(), ic)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	return rec
}

func TestDetectLocal(t *testing.T) {
	testCases := map[string]struct {
		token     string
		version   string
		freshness types.Freshness
	}{
		"stable tag": {
			token:   "1.0.0",
			version: "1.0.0",
		},
		"annotated tag": {
			token:   "1.2.0",
			version: "1.2.0",
		},
		"default branch": {
			token:     "latest",
			version:   "main",
			freshness: types.UpToDate,
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			sm := setup(t)
			installLocal(t, sm, tc.token)

			rec := detect(t, installtest.NewContext(t, sm, installtest.Local()))
			assert.Equal(t, types.Installed, rec.Status)
			assert.Equal(t, tc.version, rec.Version)
			assert.Equal(t, tc.freshness, rec.Freshness)
			assert.NotEmpty(t, rec.ContentHash)
			assert.Equal(t, sm.Commits[tc.version], rec.StagingHash)
		})
	}
}

func TestDetectLocalNotInstalled(t *testing.T) {
	sm := setup(t)
	rec := detect(t, installtest.NewContext(t, sm, installtest.Local()))
	assert.Equal(t, types.NotInstalled, rec.Status)
	assert.Equal(t, types.NoVersion, rec.Version)
	assert.False(t, rec.Present())
}

func TestDetectLocalOutsideRepository(t *testing.T) {
	sm := setup(t)
	rec := detect(t, installtest.NewContextIn(t, sm, t.TempDir(), installtest.Local()))
	assert.Equal(t, types.NotInstalled, rec.Status)
}

func TestDetectLocalUpdatesAvailable(t *testing.T) {
	sm := setup(t)
	installLocal(t, sm, "latest")
	sm.AddUpstreamContent(testutil.Content{
		Files: map[string]string{"scripts/new.sh": "#!/bin/sh\n"},
	})

	rec := detect(t, installtest.NewContext(t, sm, installtest.Local()))
	assert.Equal(t, "main", rec.Version)
	assert.Equal(t, types.UpdatesAvailable, rec.Freshness)
	assert.Equal(t, "main (updates-available)", rec.Describe())
}

func TestDetectLocalUpstreamUnreachable(t *testing.T) {
	sm := setup(t)
	installLocal(t, sm, "1.0.0")
	require.NoError(t, os.RemoveAll(sm.UpstreamRepo.RepoDirectory))

	rec := detect(t, installtest.NewContext(t, sm, installtest.Local()))
	assert.Equal(t, types.Installed, rec.Status)
	assert.Equal(t, UnknownVersion, rec.Version)
	assert.Equal(t, types.FreshnessUnknown, rec.Freshness)
}

func TestDetectLocalTrackedPrefixOnly(t *testing.T) {
	sm := setup(t)
	installLocal(t, sm, "1.0.0")
	// A fresh clone has the prefix but none of the local-only branches.
	sm.Consumer.Git(t, "branch", "-D", "scriptkit-staging", "scriptkit-content")

	rec := detect(t, installtest.NewContext(t, sm, installtest.Local()))
	assert.Equal(t, types.Installed, rec.Status)
	assert.Equal(t, "main", rec.Version)
	assert.Equal(t, types.FreshnessUnknown, rec.Freshness)
}

func TestDetectLocalStaleBranches(t *testing.T) {
	sm := setup(t)
	// Branches left by an attempt that never embedded the prefix.
	sm.Consumer.Git(t, "branch", "scriptkit-staging")
	sm.Consumer.Git(t, "branch", "scriptkit-content")

	rec := detect(t, installtest.NewContext(t, sm, installtest.Local()))
	assert.Equal(t, types.NotInstalled, rec.Status)
	assert.False(t, rec.Present())
}

func TestDetectGlobal(t *testing.T) {
	sm := setup(t)
	cwd := t.TempDir()
	ic := installtest.NewContextIn(t, sm, cwd, installtest.Global())

	rec := detect(t, ic)
	assert.Equal(t, types.NotInstalled, rec.Status)

	bindGlobal(t, ic, "1.0.0")
	rec = detect(t, installtest.NewContextIn(t, sm, cwd, installtest.Global()))
	assert.Equal(t, types.Installed, rec.Status)
	assert.Equal(t, "1.0.0", rec.Version)
	assert.Equal(t, types.FreshnessNone, rec.Freshness)
	assert.Equal(t, filepath.Join(sm.GlobalRoot, ".versions", "1.0.0", testutil.ComponentDir), rec.SelectorTarget)

	bindGlobal(t, ic, "latest")
	rec = detect(t, installtest.NewContextIn(t, sm, cwd, installtest.Global()))
	assert.Equal(t, "main", rec.Version)
	assert.Equal(t, types.UpToDate, rec.Freshness)
}

func TestDetectGlobalUnbound(t *testing.T) {
	sm := setup(t)
	ic := installtest.NewContextIn(t, sm, t.TempDir(), installtest.Global())
	require.NoError(t, transport.NewWorktree(ic).SyncRoot(fake.CtxWithDefaultPrinter()))

	// A different directory sees the root but has no selector of its own.
	rec := detect(t, installtest.NewContextIn(t, sm, t.TempDir(), installtest.Global()))
	assert.Equal(t, types.Installed, rec.Status)
	assert.True(t, rec.Unbound)
	assert.Equal(t, Unbound, rec.Version)
}

func TestDetectGlobalBroken(t *testing.T) {
	sm := setup(t)
	cwd := t.TempDir()
	ic := installtest.NewContextIn(t, sm, cwd, installtest.Global())
	checkout := bindGlobal(t, ic, "1.0.0")
	require.NoError(t, os.Remove(filepath.Join(ic.ContentPath(checkout), testutil.EntryPoint)))

	rec := detect(t, installtest.NewContextIn(t, sm, cwd, installtest.Global()))
	assert.Equal(t, types.Broken, rec.Status)
	assert.True(t, rec.Present())
	assert.Contains(t, rec.Reason, testutil.EntryPoint)
}

func TestDetectIsReadOnly(t *testing.T) {
	sm := setup(t)
	installLocal(t, sm, "1.0.0")
	before := testutil.Snapshot(t, sm.Consumer.RepoDirectory)

	detect(t, installtest.NewContext(t, sm, installtest.Local()))

	testutil.AssertSnapshotEqual(t, before, testutil.Snapshot(t, sm.Consumer.RepoDirectory))
}
