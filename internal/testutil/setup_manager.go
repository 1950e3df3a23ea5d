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
	"path/filepath"
	"testing"
)

const (
	// ComponentDir is the directory of the upstream repo that is distributed.
	ComponentDir = "scripts"
	// EntryPoint is the marker file inside the component.
	EntryPoint = "scriptkit.sh"
)

// Content is one upstream commit.
type Content struct {
	// Files maps repository relative paths to their content.
	Files map[string]string
	// Tag is created on the commit when set.
	Tag string
	// Annotated makes Tag an annotated tag.
	Annotated bool
	Message   string
}

// EntryPointContent is the body of the entry point at the given version.
func EntryPointContent(version string) string {
	return fmt.Sprintf("#!/bin/sh\necho \"scriptkit %s\"\n", version)
}

// ReleaseContent returns a commit that changes the component to version and
// tags it.
func ReleaseContent(version string, annotated bool) Content {
	return Content{
		Files: map[string]string{
			filepath.Join(ComponentDir, EntryPoint):      EntryPointContent(version),
			filepath.Join(ComponentDir, "lib", "log.sh"): "log() { echo \"[" + version + "] $*\"; }\n",
		},
		Tag:       version,
		Annotated: annotated,
		Message:   "release " + version,
	}
}

// DefaultUpstream is the history used by most tests: four tags out of order
// of creation relative to lexical order, one prerelease, and an untagged
// head on main.
func DefaultUpstream() []Content {
	return []Content{
		{
			Files:   map[string]string{"README.md": "# upstream\n"},
			Message: "initial commit",
		},
		ReleaseContent("1.0.0", false),
		ReleaseContent("1.2.0", true),
		ReleaseContent("1.10.0", false),
		ReleaseContent("2.0.0-rc.1", true),
		{
			Files: map[string]string{
				filepath.Join(ComponentDir, EntryPoint): EntryPointContent("main"),
			},
			Message: "work in progress",
		},
	}
}

// TestSetupManager builds an upstream repository, a consumer repository that
// installs from it and a private global root.
type TestSetupManager struct {
	T *testing.T

	// UpstreamInit are the commits made to the upstream repo. Defaults to
	// DefaultUpstream.
	UpstreamInit []Content

	UpstreamRepo *TestGitRepo

	// Consumer is the repository components are installed into.
	Consumer *TestGitRepo

	// GlobalRoot is the directory used as global root. It does not exist
	// until a global install creates it.
	GlobalRoot string

	// Commits maps tag names, and "main", to the upstream commit.
	Commits map[string]string
}

// Init creates the repositories.
func (g *TestSetupManager) Init() bool {
	t := g.T
	t.Helper()
	SkipIfNoGit(t)

	if g.UpstreamInit == nil {
		g.UpstreamInit = DefaultUpstream()
	}
	g.Commits = make(map[string]string)

	g.UpstreamRepo = NewTestGitRepo(t, "upstream")
	for _, c := range g.UpstreamInit {
		g.AddUpstreamContent(c)
	}
	g.Commits["main"] = g.UpstreamRepo.GetCommit(t)

	g.Consumer = NewTestGitRepo(t, "consumer")
	g.Consumer.WriteFile(t, "README.md", "# consumer\n")
	g.Consumer.Commit(t, "initial consumer commit")

	g.GlobalRoot = filepath.Join(t.TempDir(), "global", "scriptkit")
	return true
}

// AddUpstreamContent commits c to the upstream repository.
func (g *TestSetupManager) AddUpstreamContent(c Content) string {
	t := g.T
	t.Helper()
	for rel, content := range c.Files {
		g.UpstreamRepo.WriteFile(t, rel, content)
	}
	msg := c.Message
	if msg == "" {
		msg = "update"
	}
	commit := g.UpstreamRepo.Commit(t, msg)
	if c.Tag != "" {
		g.UpstreamRepo.Tag(t, c.Tag, c.Annotated)
		g.Commits[c.Tag] = commit
	}
	g.Commits["main"] = commit
	return commit
}
