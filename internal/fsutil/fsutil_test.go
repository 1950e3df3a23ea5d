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

package fsutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kptdev/scriptkit/internal/testutil"
	"github.com/kptdev/scriptkit/pkg/printer/fake"
	"github.com/stretchr/testify/assert"
)

func exercise(ctx context.Context, t *testing.T, fs Filesystem, dir string) {
	steps := []func() error{
		func() error { return fs.MkdirAll(ctx, filepath.Join(dir, "a", "b")) },
		func() error { return fs.WriteFile(ctx, filepath.Join(dir, "a", "f.txt"), []byte("one\n")) },
		func() error { return fs.AppendFile(ctx, filepath.Join(dir, "a", "f.txt"), []byte("two\n")) },
		func() error { return fs.Copy(ctx, filepath.Join(dir, "a"), filepath.Join(dir, "c")) },
		func() error { return fs.Symlink(ctx, filepath.Join(dir, "c"), filepath.Join(dir, "link")) },
		func() error { return fs.Rename(ctx, filepath.Join(dir, "c"), filepath.Join(dir, "d")) },
		func() error { return fs.Remove(ctx, filepath.Join(dir, "link")) },
		func() error { return fs.RemoveAll(ctx, filepath.Join(dir, "a", "b")) },
	}
	for _, step := range steps {
		if !assert.NoError(t, step()) {
			t.FailNow()
		}
	}
}

func TestOSFilesystem(t *testing.T) {
	dir := t.TempDir()
	exercise(fake.CtxWithDefaultPrinter(), t, OSFilesystem{}, dir)

	assert.Equal(t, "one\ntwo\n", testutil.ReadFile(t, dir, filepath.Join("a", "f.txt")))
	assert.Equal(t, "one\ntwo\n", testutil.ReadFile(t, dir, filepath.Join("d", "f.txt")))
	assert.False(t, Exists(filepath.Join(dir, "link")))
	assert.False(t, Exists(filepath.Join(dir, "a", "b")))
	assert.True(t, IsDir(filepath.Join(dir, "d")))
}

func TestDryRunFilesystem(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	ctx := fake.CtxWithPrinter(&out, &out)

	before := testutil.Snapshot(t, dir)
	exercise(ctx, t, New(true), dir)
	testutil.AssertSnapshotEqual(t, before, testutil.Snapshot(t, dir))

	assert.Contains(t, out.String(), "[dry-run] mkdir -p "+filepath.Join(dir, "a", "b"))
	assert.Contains(t, out.String(), "[dry-run] ln -s ")
	assert.Contains(t, out.String(), "[dry-run] rm -rf ")
}

func TestSymlinkHelpers(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "link")
	if !assert.NoError(t, os.Symlink(filepath.Join(dir, "missing"), link)) {
		t.FailNow()
	}
	assert.True(t, Exists(link))
	assert.True(t, IsSymlink(link))
	assert.False(t, IsDir(link))
}

func TestNearestExistingAncestor(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, dir, NearestExistingAncestor(filepath.Join(dir, "x", "y", "z")))
	assert.Equal(t, dir, NearestExistingAncestor(dir))
}
