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
	"fmt"
	"regexp"
	"strings"

	"github.com/kptdev/scriptkit/internal/errors"
)

type GitExecErrorType int

const (
	Unknown GitExecErrorType = iota
	GitExecutableNotFound
	UnknownReference
	HTTPSAuthRequired
	RepositoryNotFound
	RepositoryUnavailable
	MergeConflict
)

// GitExecError is returned for every git invocation that exits non-zero. It
// keeps everything needed to diagnose the failure.
type GitExecError struct {
	Type     GitExecErrorType
	Args     []string
	Err      error
	ExitCode int
	Repo     string
	Ref      string
	StdErr   string
	StdOut   string
}

func (e *GitExecError) Error() string {
	b := new(strings.Builder)
	fmt.Fprintf(b, "git %s", strings.Join(e.Args, " "))
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if stderr := strings.TrimSpace(e.StdErr); stderr != "" {
		b.WriteString(": ")
		b.WriteString(stderr)
	}
	return b.String()
}

func (e *GitExecError) Unwrap() error {
	return e.Err
}

// AmendGitExecError lets callers add repo and ref information to a git error
// they know more about than the gateway does.
func AmendGitExecError(err error, f func(e *GitExecError)) {
	var gitExecErr *GitExecError
	if errors.As(err, &gitExecErr) {
		f(gitExecErr)
	}
}

// ExitCodeOf returns the git exit code carried by err, or -1 when err did not
// come from a git invocation.
func ExitCodeOf(err error) int {
	var gitExecErr *GitExecError
	if errors.As(err, &gitExecErr) {
		return gitExecErr.ExitCode
	}
	return -1
}

func determineErrorType(stdOut, stdErr string) GitExecErrorType {
	switch {
	case strings.Contains(stdErr, "unknown revision or path not in the working tree"),
		strings.Contains(stdErr, "couldn't find remote ref"),
		strings.Contains(stdErr, "invalid reference"):
		return UnknownReference
	case strings.Contains(stdErr, "could not read Username"):
		return HTTPSAuthRequired
	case strings.Contains(stdErr, "Could not resolve host"):
		return RepositoryUnavailable
	case matches(`fatal: repository '.*' not found`, stdErr),
		strings.Contains(stdErr, "does not appear to be a git repository"):
		return RepositoryNotFound
	case strings.Contains(stdOut, "CONFLICT"), strings.Contains(stdErr, "CONFLICT"),
		strings.Contains(stdErr, "Automatic merge failed"):
		return MergeConflict
	}
	return Unknown
}

func matches(pattern, s string) bool {
	matched, err := regexp.Match(pattern, []byte(s))
	if err != nil {
		// This should only return an error if the pattern is invalid, so
		// we just panic if that happens.
		panic(err)
	}
	return matched
}
