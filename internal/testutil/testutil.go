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

package testutil

import (
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adrg/xdg"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	assertnow "gotest.tools/assert"
)

const TmpDirPrefix = "test-scriptkit"

var AssertNoError = assertnow.NilError

// ConfigureTestEnv isolates the test binary from the user's git and XDG
// configuration. It is meant to be called from TestMain.
func ConfigureTestEnv(m *testing.M) int {
	dir, err := os.MkdirTemp("", TmpDirPrefix+"-env-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create test env dir: %v\n", err)
		return 1
	}
	defer os.RemoveAll(dir)

	env := map[string]string{
		"HOME":                dir,
		"XDG_CONFIG_HOME":     filepath.Join(dir, "config"),
		"XDG_DATA_HOME":       filepath.Join(dir, "data"),
		"GIT_CONFIG_NOSYSTEM": "1",
		"GIT_AUTHOR_NAME":     "scriptkit test",
		"GIT_AUTHOR_EMAIL":    "test@scriptkit.invalid",
		"GIT_COMMITTER_NAME":  "scriptkit test",
		"GIT_COMMITTER_EMAIL": "test@scriptkit.invalid",
	}
	for k, v := range env {
		if err := os.Setenv(k, v); err != nil {
			fmt.Fprintf(os.Stderr, "failed to set %s: %v\n", k, err)
			return 1
		}
	}
	xdg.Reload()
	return m.Run()
}

// SkipIfNoGit skips the test when git is not installed.
func SkipIfNoGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not available")
	}
}

// SkipIfNoSubtree skips the test when git is installed without the subtree
// command.
func SkipIfNoSubtree(t *testing.T) {
	t.Helper()
	SkipIfNoGit(t)
	out, _ := exec.Command("git", "subtree", "-h").CombinedOutput()
	if strings.Contains(string(out), "not a git command") {
		t.Skip("git subtree is not available")
	}
}

// TestGitRepo manages a local git repository for testing
type TestGitRepo struct {
	// RepoDirectory is the temp directory of the git repo
	RepoDirectory string

	// RepoName is the name of the repository
	RepoName string
}

// NewTestGitRepo initializes an empty repository on branch main.
func NewTestGitRepo(t *testing.T, name string) *TestGitRepo {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	if !assert.NoError(t, os.MkdirAll(dir, 0700)) {
		t.FailNow()
	}
	g := &TestGitRepo{
		RepoDirectory: dir,
		RepoName:      name,
	}
	g.Git(t, "init", "--initial-branch=main")
	g.Git(t, "config", "user.name", "scriptkit test")
	g.Git(t, "config", "user.email", "test@scriptkit.invalid")
	g.Git(t, "config", "commit.gpgsign", "false")
	g.Git(t, "config", "tag.gpgsign", "false")
	return g
}

// Git runs git in the repository and returns trimmed stdout. The test fails
// if git fails.
func (g *TestGitRepo) Git(t *testing.T, args ...string) string {
	t.Helper()
	out, err := g.TryGit(args...)
	if !assert.NoError(t, err, out) {
		t.FailNow()
	}
	return out
}

// TryGit runs git in the repository and returns trimmed combined output.
func (g *TestGitRepo) TryGit(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = g.RepoDirectory
	b, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(b)), err
}

// WriteFile writes content to a path relative to the repository and stages it.
func (g *TestGitRepo) WriteFile(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.Join(g.RepoDirectory, rel)
	if !assert.NoError(t, os.MkdirAll(filepath.Dir(p), 0700)) {
		t.FailNow()
	}
	if !assert.NoError(t, os.WriteFile(p, []byte(content), 0600)) {
		t.FailNow()
	}
	g.Git(t, "add", rel)
}

// Commit performs a git commit
func (g *TestGitRepo) Commit(t *testing.T, message string) string {
	t.Helper()
	g.Git(t, "commit", "--allow-empty", "-q", "-m", message)
	return g.GetCommit(t)
}

// Tag creates a lightweight tag, or an annotated one when annotated is true.
func (g *TestGitRepo) Tag(t *testing.T, name string, annotated bool) {
	t.Helper()
	if annotated {
		g.Git(t, "tag", "-a", name, "-m", "release "+name)
		return
	}
	g.Git(t, "tag", name)
}

func (g *TestGitRepo) GetCommit(t *testing.T) string {
	t.Helper()
	return g.Git(t, "rev-parse", "--verify", "HEAD")
}

// URL returns a file url for the repository.
func (g *TestGitRepo) URL() string {
	return "file://" + filepath.ToSlash(g.RepoDirectory)
}

// ReadFile returns the content of a file relative to dir, or "" if it does
// not exist.
func ReadFile(t *testing.T, dir, rel string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, rel))
	if os.IsNotExist(err) {
		return ""
	}
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	return string(b)
}

// Snapshot records every path under dir with its content, link target or
// mode. Paths inside .git directories are recorded without content so that
// new refs or objects still show up as differences.
func Snapshot(t *testing.T, dir string) map[string]string {
	t.Helper()
	snap := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." || filepath.Base(rel) == "index" || strings.HasSuffix(rel, ".lock") {
			return nil
		}
		// logs/HEAD and ORIG_HEAD are touched by read-only commands on some
		// git versions.
		if strings.Contains(rel, filepath.Join(".git", "logs")) || strings.HasSuffix(rel, "FETCH_HEAD") {
			return nil
		}
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			snap[rel] = "-> " + target
		case d.IsDir():
			snap[rel] = "<dir>"
		case strings.HasPrefix(rel, ".git"+string(filepath.Separator)) &&
			strings.Contains(rel, "objects"):
			snap[rel] = "<object>"
		default:
			b, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			snap[rel] = string(b)
		}
		return nil
	})
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	return snap
}

// AssertSnapshotEqual fails the test with a diff if the snapshots differ.
func AssertSnapshotEqual(t *testing.T, before, after map[string]string) bool {
	t.Helper()
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("directory changed (-before +after):\n%s", diff)
		return false
	}
	return true
}
