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

package gitutil

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kptdev/scriptkit/internal/errors"
)

var (
	refLineRe       = regexp.MustCompile(`^([a-f0-9]+)\s+refs/(heads|tags)/(.+)$`)
	defaultBranchRe = regexp.MustCompile(`ref: refs/heads/(\S+)\s+HEAD`)
)

// UpstreamRepo is a snapshot of the refs in the upstream repository. It is
// built with ls-remote only, so no objects are downloaded.
type UpstreamRepo struct {
	URI string

	// DefaultBranch is the branch the upstream HEAD symref points at.
	DefaultBranch string

	// Heads contains all head refs in the upstream repo as well as the
	// commit each of them is referencing.
	Heads map[string]string

	// Tags contains all tag refs in the upstream repo as well as the
	// commit each of them is referencing. Annotated tags are peeled.
	Tags map[string]string
}

// NewUpstreamRepo lists the refs of the repository at uri.
func NewUpstreamRepo(ctx context.Context, g *Gateway, uri string) (*UpstreamRepo, error) {
	const op errors.Op = "gitutil.NewUpstreamRepo"
	ur := &UpstreamRepo{URI: uri}
	if err := ur.updateDefaultBranch(ctx, g); err != nil {
		return nil, errors.E(op, err)
	}
	if err := ur.updateRefs(ctx, g); err != nil {
		return nil, errors.E(op, err)
	}
	return ur, nil
}

func (ur *UpstreamRepo) updateDefaultBranch(ctx context.Context, g *Gateway) error {
	const op errors.Op = "gitutil.updateDefaultBranch"
	rr, err := g.Query(ctx, "ls-remote", "--symref", ur.URI, "HEAD")
	if err != nil {
		AmendGitExecError(err, func(e *GitExecError) {
			e.Repo = ur.URI
		})
		return errors.E(op, err)
	}
	match := defaultBranchRe.FindStringSubmatch(rr.Stdout)
	if len(match) != 2 {
		return errors.E(op, errors.Git,
			fmt.Errorf("unable to detect default branch of %s", ur.URI))
	}
	ur.DefaultBranch = match[1]
	return nil
}

func (ur *UpstreamRepo) updateRefs(ctx context.Context, g *Gateway) error {
	const op errors.Op = "gitutil.updateRefs"
	rr, err := g.Query(ctx, "ls-remote", "--heads", "--tags", ur.URI)
	if err != nil {
		AmendGitExecError(err, func(e *GitExecError) {
			e.Repo = ur.URI
		})
		return errors.E(op, err)
	}

	heads := make(map[string]string)
	tags := make(map[string]string)
	peeled := make(map[string]string)

	scanner := bufio.NewScanner(bytes.NewBufferString(rr.Stdout))
	for scanner.Scan() {
		res := refLineRe.FindStringSubmatch(scanner.Text())
		if len(res) == 0 {
			continue
		}
		switch res[2] {
		case "heads":
			heads[res[3]] = res[1]
		case "tags":
			if name, ok := strings.CutSuffix(res[3], "^{}"); ok {
				peeled[name] = res[1]
				continue
			}
			tags[res[3]] = res[1]
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.E(op, errors.Git,
			fmt.Errorf("error parsing response from git: %w", err))
	}
	for name, commit := range peeled {
		tags[name] = commit
	}
	ur.Heads = heads
	ur.Tags = tags
	return nil
}

// ResolveBranch resolves the branch to a commit SHA. If the branch doesn't
// exist in the upstream repo, the last return value will be false.
func (ur *UpstreamRepo) ResolveBranch(branch string) (string, bool) {
	commit, found := ur.Heads[strings.TrimPrefix(branch, "refs/heads/")]
	return commit, found
}

// ResolveTag resolves the tag to a commit SHA. If the tag doesn't exist in
// the upstream repo, the last return value will be false.
func (ur *UpstreamRepo) ResolveTag(tag string) (string, bool) {
	commit, found := ur.Tags[strings.TrimPrefix(tag, "refs/tags/")]
	return commit, found
}

// DefaultBranchCommit returns the commit the default branch points at.
func (ur *UpstreamRepo) DefaultBranchCommit() string {
	return ur.Heads[ur.DefaultBranch]
}

// TagForCommit returns a tag pointing at commit. When several tags match, the
// lexically smallest is returned so the answer is stable.
func (ur *UpstreamRepo) TagForCommit(commit string) (string, bool) {
	if commit == "" {
		return "", false
	}
	var matches []string
	for name, c := range ur.Tags {
		if c == commit {
			matches = append(matches, name)
		}
	}
	if len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[0], true
}

// TagNames returns all tag names in lexical order.
func (ur *UpstreamRepo) TagNames() []string {
	names := make([]string, 0, len(ur.Tags))
	for name := range ur.Tags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
