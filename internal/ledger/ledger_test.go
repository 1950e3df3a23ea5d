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

package ledger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/install"
	"github.com/kptdev/scriptkit/internal/install/installtest"
	. "github.com/kptdev/scriptkit/internal/ledger"
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

func ref(t *testing.T, ic *install.Context, token string) types.VersionRef {
	t.Helper()
	r, err := resolve.ResolveIn(fake.CtxWithDefaultPrinter(), ic, token)
	require.NoError(t, err)
	return r
}

func TestSnapshotAndClear(t *testing.T) {
	sm := setup(t)
	ctx := fake.CtxWithDefaultPrinter()
	ic := installtest.NewContext(t, sm, installtest.Local())
	l := New(ic, ic.Git)

	_, found := l.Peek()
	assert.False(t, found)

	head := sm.Consumer.GetCommit(t)
	require.NoError(t, l.Snapshot(ctx, head))
	got, found := l.Peek()
	assert.True(t, found)
	assert.Equal(t, head, got)
	assert.Equal(t, head+"\n", testutil.ReadFile(t, sm.Consumer.RepoDirectory, ".scriptkit-rollback"))

	require.NoError(t, l.Clear(ctx))
	require.NoError(t, l.Clear(ctx))
	assert.NoFileExists(t, ic.RollbackMarkerPath())
}

func TestRestoreErrors(t *testing.T) {
	testCases := map[string]struct {
		marker   *string
		kind     errors.Kind
		expected interface{}
	}{
		"no marker": {
			kind:     errors.Precondition,
			expected: &NothingToRollbackError{},
		},
		"unreachable commit": {
			marker:   strPtr("0123456789abcdef0123456789abcdef01234567"),
			kind:     errors.Corrupt,
			expected: &StaleMarkerError{},
		},
		"not a hash": {
			marker:   strPtr("--upload-pack=touch"),
			kind:     errors.Corrupt,
			expected: &StaleMarkerError{},
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			sm := setup(t)
			ctx := fake.CtxWithDefaultPrinter()
			ic := installtest.NewContext(t, sm, installtest.Local())
			if tc.marker != nil {
				require.NoError(t, os.WriteFile(ic.RollbackMarkerPath(), []byte(*tc.marker), 0644))
			}

			called := false
			err := New(ic, ic.Git).Restore(ctx, func(string) error {
				called = true
				return nil
			})
			require.Error(t, err)
			assert.False(t, called)
			assert.Equal(t, tc.kind, errors.KindOf(err))
			switch tc.expected.(type) {
			case *NothingToRollbackError:
				var e *NothingToRollbackError
				assert.True(t, errors.As(err, &e))
			case *StaleMarkerError:
				var e *StaleMarkerError
				assert.True(t, errors.As(err, &e))
				assert.Equal(t, *tc.marker, e.Hash)
				// A stale marker is kept for inspection.
				assert.FileExists(t, ic.RollbackMarkerPath())
			}
		})
	}
}

func TestRestoreKeepsMarkerOnFailure(t *testing.T) {
	sm := setup(t)
	ctx := fake.CtxWithDefaultPrinter()
	ic := installtest.NewContext(t, sm, installtest.Local())
	l := New(ic, ic.Git)
	require.NoError(t, l.Snapshot(ctx, sm.Consumer.GetCommit(t)))

	err := l.Restore(ctx, func(string) error { return errors.New("boom") })
	assert.Error(t, err)
	assert.FileExists(t, ic.RollbackMarkerPath())
}

func TestRestoreLocalRoundTrip(t *testing.T) {
	sm := setup(t)
	ctx := fake.CtxWithDefaultPrinter()
	ic := installtest.NewContext(t, sm, installtest.Local())
	st := transport.NewSubtree(ic)
	l := New(ic, ic.Git)

	require.NoError(t, st.Install(ctx, ref(t, ic, "1.0.0")))
	before := testutil.Snapshot(t, ic.TargetPath())

	installed := sm.Consumer.GetCommit(t)
	require.NoError(t, l.Snapshot(ctx, installed))
	require.NoError(t, st.Upgrade(ctx, ref(t, ic, "1.10.0")))
	assert.Equal(t, testutil.EntryPointContent("1.10.0"),
		testutil.ReadFile(t, ic.TargetPath(), testutil.EntryPoint))

	require.NoError(t, l.Restore(ctx, func(hash string) error {
		return RestoreLocal(ctx, ic, hash)
	}))

	testutil.AssertSnapshotEqual(t, before, testutil.Snapshot(t, ic.TargetPath()))
	assert.NoFileExists(t, ic.RollbackMarkerPath())
	assert.False(t, ic.Git.BranchExists(ctx, ic.Config.StagingBranch))
	assert.False(t, ic.Git.BranchExists(ctx, ic.Config.ContentBranch))
	assert.Equal(t, "Roll back scriptkit to "+ShortHash(installed),
		sm.Consumer.Git(t, "log", "-1", "--format=%s"))
}

func TestRestoreLocalDryRun(t *testing.T) {
	sm := setup(t)
	ctx := fake.CtxWithDefaultPrinter()
	ic := installtest.NewContext(t, sm, installtest.Local())
	require.NoError(t, transport.NewSubtree(ic).Install(ctx, ref(t, ic, "1.0.0")))
	require.NoError(t, New(ic, ic.Git).Snapshot(ctx, sm.Consumer.GetCommit(t)))
	require.NoError(t, transport.NewSubtree(ic).Upgrade(ctx, ref(t, ic, "1.2.0")))

	opts := installtest.Local()
	opts.DryRun = true
	dry := installtest.NewContext(t, sm, opts)
	before := testutil.Snapshot(t, sm.Consumer.RepoDirectory)

	require.NoError(t, New(dry, dry.Git).Restore(ctx, func(hash string) error {
		return RestoreLocal(ctx, dry, hash)
	}))

	testutil.AssertSnapshotEqual(t, before, testutil.Snapshot(t, sm.Consumer.RepoDirectory))
}

func TestRestoreGlobal(t *testing.T) {
	sm := setup(t)
	ctx := fake.CtxWithDefaultPrinter()
	ic := installtest.NewContextIn(t, sm, t.TempDir(), installtest.Global())
	wt := transport.NewWorktree(ic)
	binder := selector.NewBinder(ic)
	l := New(ic, ic.RootGit())

	v1, err := wt.Materialize(ctx, ref(t, ic, "1.0.0"))
	require.NoError(t, err)
	require.NoError(t, binder.Bind(ctx, v1))

	require.NoError(t, l.Snapshot(ctx, sm.Commits["1.0.0"]))
	v2, err := wt.Materialize(ctx, ref(t, ic, "1.2.0"))
	require.NoError(t, err)
	require.NoError(t, binder.Bind(ctx, v2))

	require.NoError(t, l.Restore(ctx, func(hash string) error {
		return RestoreGlobal(ctx, ic, hash)
	}))

	target, err := binder.Pointer().Read()
	require.NoError(t, err)
	assert.Equal(t, ic.ContentPath(v1), target)
	assert.NoFileExists(t, ic.RollbackMarkerPath())
}

func TestRestoreGlobalRemovedWorktree(t *testing.T) {
	sm := setup(t)
	ctx := fake.CtxWithDefaultPrinter()
	ic := installtest.NewContextIn(t, sm, t.TempDir(), installtest.Global())
	wt := transport.NewWorktree(ic)

	v1, err := wt.Materialize(ctx, ref(t, ic, "1.0.0"))
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(v1))

	require.NoError(t, RestoreGlobal(ctx, ic, sm.Commits["1.0.0"]))
	assert.Equal(t, testutil.EntryPointContent("1.0.0"),
		testutil.ReadFile(t, ic.TargetPath(), testutil.EntryPoint))
	assert.DirExists(t, filepath.Join(ic.VersionsRoot(), "1.0.0"))
}

func TestShortHash(t *testing.T) {
	assert.Equal(t, "0123456789ab", ShortHash("0123456789abcdef"))
	assert.Equal(t, "abc", ShortHash("abc"))
}

func strPtr(s string) *string {
	return &s
}
