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

// Package gitutil is the only place scriptkit runs git. Every other package
// goes through a Gateway.
package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"

	goerrors "github.com/go-errors/errors"
	"github.com/google/shlex"
	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/pkg/printer"
	"k8s.io/klog/v2"
)

// lastExitCode is the exit code of the most recent git invocation. It is read
// by the interrupt handler, which runs on another goroutine.
var lastExitCode atomic.Int32

// LastExitCode returns the exit code of the most recent git invocation.
func LastExitCode() int {
	return int(lastExitCode.Load())
}

type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner runs a single git command in dir. Omit the 'git' part of the
// command.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (RunResult, error)
}

// NewExecRunner returns a Runner that executes the git binary found on PATH.
// flags are prepended to every invocation.
func NewExecRunner(flags ...string) (*ExecRunner, error) {
	const op errors.Op = "gitutil.NewExecRunner"
	p, err := exec.LookPath("git")
	if err != nil {
		return nil, errors.E(op, errors.Git, &GitExecError{
			Type: GitExecutableNotFound,
			Err:  fmt.Errorf("no 'git' program on path: %w", err),
		})
	}
	return &ExecRunner{
		gitPath: p,
		flags:   flags,
	}, nil
}

// ExecRunner runs git commands as subprocesses.
type ExecRunner struct {
	// Path to the git executable.
	gitPath string

	// flags are passed before the command, e.g. -c key=value.
	flags []string

	// Verbose mirrors git output to the process streams.
	Verbose bool
}

// Run runs a git command in dir.
// The first return value contains the output to Stdout and Stderr when
// running the command, also when the command fails.
func (g *ExecRunner) Run(ctx context.Context, dir string, args ...string) (RunResult, error) {
	const op errors.Op = "gitutil.run"

	fullArgs := append(append([]string{}, g.flags...), args...)
	cmd := exec.CommandContext(ctx, g.gitPath, fullArgs...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	cmdStdout := &bytes.Buffer{}
	cmdStderr := &bytes.Buffer{}
	if g.Verbose {
		cmd.Stdout = io.MultiWriter(cmdStdout, os.Stdout)
		cmd.Stderr = io.MultiWriter(cmdStderr, os.Stderr)
	} else {
		cmd.Stdout = cmdStdout
		cmd.Stderr = cmdStderr
	}

	klog.V(2).Infof("git %s (dir %q)", strings.Join(args, " "), dir)
	err := cmd.Run()
	rr := RunResult{
		Stdout: cmdStdout.String(),
		Stderr: cmdStderr.String(),
	}
	klog.V(4).Infof("git %s stdout:\n%s\nstderr:\n%s", args[0], rr.Stdout, rr.Stderr)

	if err != nil {
		var exitErr *exec.ExitError
		if !goerrors.As(err, &exitErr) {
			// git could not be started or was killed; keep the stack so
			// --stack-trace can show where it happened.
			lastExitCode.Store(-1)
			rr.ExitCode = -1
			return rr, errors.E(op, errors.Internal, goerrors.Wrap(err, 0))
		}
		rr.ExitCode = exitErr.ExitCode()
		lastExitCode.Store(int32(rr.ExitCode))
		return rr, errors.E(op, errors.Git, &GitExecError{
			Type:     determineErrorType(rr.Stdout, rr.Stderr),
			Args:     args,
			Err:      err,
			ExitCode: rr.ExitCode,
			StdOut:   rr.Stdout,
			StdErr:   rr.Stderr,
		})
	}
	lastExitCode.Store(0)
	return rr, nil
}

// DryRunner prints the commands it is given instead of running them and
// reports success.
type DryRunner struct{}

func (DryRunner) Run(ctx context.Context, dir string, args ...string) (RunResult, error) {
	pr := printer.FromContextOrDie(ctx)
	line := "git " + QuoteArgs(args)
	if dir != "" {
		line = fmt.Sprintf("git -C %s %s", QuoteArgs([]string{dir}), QuoteArgs(args))
	}
	pr.Printf("[dry-run] %s\n", line)
	klog.V(2).Infof("dry-run: skipped %s", line)
	lastExitCode.Store(0)
	return RunResult{}, nil
}

// QuoteArgs renders args so they can be pasted into a shell.
func QuoteArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\n\"'$`\\*?;&|<>()") {
			quoted[i] = fmt.Sprintf("%q", a)
			continue
		}
		quoted[i] = a
	}
	return strings.Join(quoted, " ")
}

// ParseFlags splits a configured git flag string such as
// `-c http.sslVerify=false` into arguments.
func ParseFlags(s string) ([]string, error) {
	const op errors.Op = "gitutil.ParseFlags"
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	flags, err := shlex.Split(s)
	if err != nil {
		return nil, errors.E(op, errors.InvalidParam, fmt.Errorf("invalid git flags %q: %w", s, err))
	}
	return flags, nil
}

// Gateway is the single entry point for git. Queries always run. Mutations go
// through a Runner that is swapped for a DryRunner in dry-run mode, so no
// caller can bypass dry-run.
type Gateway struct {
	// Dir is the directory the commands are run in.
	Dir string

	dryRun bool
	query  Runner
	mutate Runner
}

// NewGateway returns a Gateway rooted at dir.
func NewGateway(dir string, dryRun bool, flags ...string) (*Gateway, error) {
	r, err := NewExecRunner(flags...)
	if err != nil {
		return nil, err
	}
	var mutate Runner = r
	if dryRun {
		mutate = DryRunner{}
	}
	return NewGatewayWithRunners(dir, dryRun, r, mutate), nil
}

// NewGatewayWithRunners returns a Gateway with explicit runners.
func NewGatewayWithRunners(dir string, dryRun bool, query, mutate Runner) *Gateway {
	return &Gateway{
		Dir:    dir,
		dryRun: dryRun,
		query:  query,
		mutate: mutate,
	}
}

// DryRun returns true if mutations are intercepted.
func (g *Gateway) DryRun() bool {
	return g.dryRun
}

// Query runs a git command that does not change any state.
func (g *Gateway) Query(ctx context.Context, args ...string) (RunResult, error) {
	return g.query.Run(ctx, g.Dir, args...)
}

// Mutate runs a git command that changes a repository, a working tree or a
// remote-tracking ref.
func (g *Gateway) Mutate(ctx context.Context, args ...string) (RunResult, error) {
	return g.mutate.Run(ctx, g.Dir, args...)
}

// In returns a Gateway with the same runners rooted at dir.
func (g *Gateway) In(dir string) *Gateway {
	cp := *g
	cp.Dir = dir
	return &cp
}

// WithWorkingDirectory runs fn with a gateway rooted at dir. The process
// working directory is never changed, so there is nothing to restore when fn
// fails.
func (g *Gateway) WithWorkingDirectory(dir string, fn func(*Gateway) error) error {
	return fn(g.In(dir))
}

// RevParse returns the commit ref points at, or false if ref does not exist.
func (g *Gateway) RevParse(ctx context.Context, ref string) (string, bool) {
	rr, err := g.Query(ctx, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(rr.Stdout), true
}

// BranchExists returns true if the local branch exists.
func (g *Gateway) BranchExists(ctx context.Context, name string) bool {
	_, found := g.RevParse(ctx, "refs/heads/"+name)
	return found
}

// CommitExists returns true if hash names a commit in the object store.
func (g *Gateway) CommitExists(ctx context.Context, hash string) bool {
	_, err := g.Query(ctx, "cat-file", "-e", hash+"^{commit}")
	return err == nil
}

// CurrentBranch returns the checked out branch, or "" for a detached HEAD.
func (g *Gateway) CurrentBranch(ctx context.Context) string {
	rr, err := g.Query(ctx, "symbolic-ref", "--short", "-q", "HEAD")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(rr.Stdout)
}

// HasCommits returns false for a freshly initialized repository.
func (g *Gateway) HasCommits(ctx context.Context) bool {
	_, found := g.RevParse(ctx, "HEAD")
	return found
}

// IsWorkTree returns true if Dir is inside a git working tree.
func (g *Gateway) IsWorkTree(ctx context.Context) bool {
	rr, err := g.Query(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(rr.Stdout) == "true"
}

// TopLevel returns the root of the working tree containing Dir.
func (g *Gateway) TopLevel(ctx context.Context) (string, error) {
	const op errors.Op = "gitutil.TopLevel"
	rr, err := g.Query(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", errors.E(op, err)
	}
	return strings.TrimSpace(rr.Stdout), nil
}
