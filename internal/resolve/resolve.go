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

// Package resolve turns user supplied version tokens into references that
// are known to exist upstream.
package resolve

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/gitutil"
	"github.com/kptdev/scriptkit/internal/install"
	"github.com/kptdev/scriptkit/internal/types"
	"k8s.io/klog/v2"
)

// maxSuggestions is the number of tags offered when a token is unknown.
const maxSuggestions = 5

// VersionNotFoundError is returned when a token names neither the default
// branch nor an upstream tag.
type VersionNotFoundError struct {
	Token    string
	Upstream string
	// Suggestions are the closest stable tags, newest first.
	Suggestions []string
}

func (e *VersionNotFoundError) Error() string {
	return fmt.Sprintf("version %q does not exist in %s", e.Token, e.Upstream)
}

// Canonicalize maps the empty token and the latest alias to the default
// branch. Every other token is returned trimmed.
func Canonicalize(token, defaultBranch string) string {
	token = strings.TrimSpace(token)
	if token == "" || token == types.LatestAlias {
		return defaultBranch
	}
	return token
}

// Resolve checks token against the upstream refs.
func Resolve(ur *gitutil.UpstreamRepo, token string) (types.VersionRef, error) {
	const op errors.Op = "resolve.Resolve"
	if strings.HasPrefix(strings.TrimSpace(token), "-") {
		return types.VersionRef{}, errors.E(op, errors.InvalidParam,
			fmt.Errorf("invalid version %q", token))
	}
	canonical := Canonicalize(token, ur.DefaultBranch)

	if canonical == ur.DefaultBranch {
		commit, found := ur.ResolveBranch(canonical)
		if !found {
			return types.VersionRef{}, errors.E(op, errors.Resolution, &VersionNotFoundError{
				Token:       token,
				Upstream:    ur.URI,
				Suggestions: Suggest(ur, token),
			})
		}
		klog.V(3).Infof("version %q resolved to default branch %s at %s", token, canonical, commit)
		return types.VersionRef{
			Token:        token,
			Kind:         types.AliasMaster,
			CanonicalRef: canonical,
			Commit:       commit,
		}, nil
	}

	if commit, found := ur.ResolveTag(canonical); found {
		name := strings.TrimPrefix(canonical, "refs/tags/")
		klog.V(3).Infof("version %q resolved to tag %s at %s", token, name, commit)
		return types.VersionRef{
			Token:        token,
			Kind:         types.Tag,
			CanonicalRef: name,
			Commit:       commit,
		}, nil
	}

	if commit, found := ur.ResolveBranch(canonical); found {
		name := strings.TrimPrefix(canonical, "refs/heads/")
		klog.V(3).Infof("version %q resolved to branch %s at %s", token, name, commit)
		return types.VersionRef{
			Token:        token,
			Kind:         types.Branch,
			CanonicalRef: name,
			Commit:       commit,
		}, nil
	}

	return types.VersionRef{}, errors.E(op, errors.Resolution, &VersionNotFoundError{
		Token:       token,
		Upstream:    ur.URI,
		Suggestions: Suggest(ur, token),
	})
}

// ResolveIn resolves token against the upstream of ic.
func ResolveIn(ctx context.Context, ic *install.Context, token string) (types.VersionRef, error) {
	const op errors.Op = "resolve.ResolveIn"
	ur, err := ic.Upstream(ctx)
	if err != nil {
		return types.VersionRef{}, errors.E(op, err)
	}
	ref, err := Resolve(ur, token)
	if err != nil {
		return types.VersionRef{}, errors.E(op, err)
	}
	return ref, nil
}

// Suggest returns the stable tags closest to token. Tags sharing the major
// version of a parseable token come first.
func Suggest(ur *gitutil.UpstreamRepo, token string) []string {
	stable, _ := Partition(ur.TagNames())
	if len(stable) == 0 {
		return nil
	}
	ordered := stable
	if v, err := semver.NewVersion(strings.TrimSpace(token)); err == nil {
		var same, other []string
		for _, tag := range stable {
			tv, err := semver.NewVersion(tag)
			if err == nil && tv.Major() == v.Major() {
				same = append(same, tag)
				continue
			}
			other = append(other, tag)
		}
		ordered = append(same, other...)
	}
	if len(ordered) > maxSuggestions {
		ordered = ordered[:maxSuggestions]
	}
	return ordered
}
