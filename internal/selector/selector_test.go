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

package selector

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kptdev/scriptkit/internal/config"
	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/fsutil"
	"github.com/kptdev/scriptkit/internal/install"
	"github.com/kptdev/scriptkit/internal/testutil"
	"github.com/kptdev/scriptkit/internal/types"
	"github.com/kptdev/scriptkit/pkg/printer/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newContext returns a global context with a fake root that holds one
// materialized checkout per name in checkouts.
func newContext(t *testing.T, opts install.Options, checkouts ...string) *install.Context {
	t.Helper()
	base := t.TempDir()
	cfg := config.Defaults()
	cfg.GlobalRoot = filepath.Join(base, "root")
	ic := &install.Context{
		Options:    opts,
		Config:     &cfg,
		Cwd:        filepath.Join(base, "target"),
		TargetRoot: filepath.Join(base, "target"),
		FS:         fsutil.New(opts.DryRun),
	}
	require.NoError(t, os.MkdirAll(ic.TargetRoot, 0700))
	for _, c := range checkouts {
		dir := ic.ContentPath(ic.CheckoutPath(types.VersionRef{Kind: types.Tag, CanonicalRef: c}))
		require.NoError(t, os.MkdirAll(dir, 0700))
		require.NoError(t, os.WriteFile(filepath.Join(dir, cfg.MarkerFile), []byte(c), 0600))
	}
	return ic
}

func TestBindAndRebind(t *testing.T) {
	ctx := fake.CtxWithDefaultPrinter()
	ic := newContext(t, install.Options{Scope: types.Global}, "1.0.0", "1.2.0")
	b := NewBinder(ic)

	require.NoError(t, b.Bind(ctx, ic.WorktreePath("1.0.0")))
	target, err := b.Pointer().Read()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ic.WorktreePath("1.0.0"), "scripts"), target)
	assert.Equal(t, "1.0.0", testutil.ReadFile(t, ic.TargetPath(), ic.Config.MarkerFile))

	require.NoError(t, b.Bind(ctx, ic.WorktreePath("1.2.0")))
	assert.Equal(t, "1.2.0", testutil.ReadFile(t, ic.TargetPath(), ic.Config.MarkerFile))

	// Both checkouts survive rebinding.
	assert.True(t, fsutil.IsDir(ic.WorktreePath("1.0.0")))
	assert.True(t, fsutil.IsDir(ic.WorktreePath("1.2.0")))
}

func TestBindBroken(t *testing.T) {
	ctx := fake.CtxWithDefaultPrinter()
	ic := newContext(t, install.Options{Scope: types.Global})
	b := NewBinder(ic)

	err := b.Bind(ctx, ic.WorktreePath("missing"))
	var broken *BrokenSelectorError
	require.True(t, errors.As(err, &broken))
	assert.Equal(t, ic.TargetPath(), broken.Path)
	assert.Equal(t, errors.Corrupt, errors.KindOf(err))
	// The selector is left in place so status can report it.
	assert.True(t, b.Pointer().Exists())
}

func TestBindConflict(t *testing.T) {
	testCases := map[string]struct {
		force bool
	}{
		"refused without force": {},
		"moved aside with force": {force: true},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			ctx := fake.CtxWithDefaultPrinter()
			ic := newContext(t, install.Options{Scope: types.Global, Force: tc.force}, "1.0.0")
			require.NoError(t, os.MkdirAll(ic.TargetPath(), 0700))
			require.NoError(t, os.WriteFile(filepath.Join(ic.TargetPath(), "mine.txt"), []byte("keep"), 0600))

			err := NewBinder(ic).Bind(ctx, ic.WorktreePath("1.0.0"))
			if !tc.force {
				var conflict *ConflictError
				require.True(t, errors.As(err, &conflict))
				assert.Equal(t, "keep", testutil.ReadFile(t, ic.TargetPath(), "mine.txt"))
				return
			}
			require.NoError(t, err)
			entries, err := os.ReadDir(ic.TargetRoot)
			require.NoError(t, err)
			var backups []string
			for _, e := range entries {
				if strings.HasPrefix(e.Name(), "scriptkit.backup-") {
					backups = append(backups, e.Name())
				}
			}
			require.Len(t, backups, 1)
			assert.Equal(t, "keep", testutil.ReadFile(t, filepath.Join(ic.TargetRoot, backups[0]), "mine.txt"))
		})
	}
}

func TestBindDryRun(t *testing.T) {
	ctx := fake.CtxWithDefaultPrinter()
	ic := newContext(t, install.Options{Scope: types.Global, DryRun: true}, "1.0.0")
	before := testutil.Snapshot(t, ic.TargetRoot)

	require.NoError(t, NewBinder(ic).Bind(ctx, ic.WorktreePath("1.0.0")))
	testutil.AssertSnapshotEqual(t, before, testutil.Snapshot(t, ic.TargetRoot))
}

func TestPointerRelativeTarget(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "real"), 0700))
	require.NoError(t, os.Symlink("real", filepath.Join(dir, "link")))

	p := &SymlinkPointer{Path: filepath.Join(dir, "link"), FS: fsutil.OSFilesystem{}}
	target, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "real"), target)

	_, err = (&SymlinkPointer{Path: filepath.Join(dir, "real")}).Read()
	assert.Equal(t, ErrNoSelector, err)

	require.NoError(t, p.Clear(fake.CtxWithDefaultPrinter()))
	assert.False(t, p.Exists())
	assert.True(t, fsutil.IsDir(filepath.Join(dir, "real")))
}
