// Copyright 2019 The kpt Authors
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

package cmdutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	goerrors "github.com/go-errors/errors"
	"github.com/kptdev/scriptkit/internal/config"
	"github.com/kptdev/scriptkit/internal/controller"
	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/errors/resolver"
	"github.com/kptdev/scriptkit/internal/install"
	"github.com/kptdev/scriptkit/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	StackTraceOnErrors = "COBRA_STACK_TRACE_ON_ERRORS"
	trueString         = "true"
)

// StackOnError if true, will print a stack trace on failure.
var StackOnError bool

// FixDocs replaces instances of old with new in the docs for c
func FixDocs(old, new string, c *cobra.Command) {
	c.Use = strings.ReplaceAll(c.Use, old, new)
	c.Short = strings.ReplaceAll(c.Short, old, new)
	c.Long = strings.ReplaceAll(c.Long, old, new)
	c.Example = strings.ReplaceAll(c.Example, old, new)
}

func PrintErrorStacktrace() bool {
	e := os.Getenv(StackTraceOnErrors)
	if StackOnError || e == trueString || e == "1" {
		return true
	}
	return false
}

// Flags are the persistent flags shared by every command. They may appear
// anywhere on the command line.
type Flags struct {
	DryRun          bool
	Global          bool
	Force           bool
	CreateSymlink   bool
	NoCreateSymlink bool
	Confirm         bool
	Purge           bool
}

// AddTo registers the flags on fs.
func (f *Flags) AddTo(fs *pflag.FlagSet) {
	fs.BoolVar(&f.DryRun, "dry-run", false,
		"Print the git commands and file changes instead of running them.")
	fs.BoolVar(&f.Global, "global", false,
		"Operate on the shared global install instead of the current repository.")
	fs.BoolVar(&f.Force, "force", false,
		"Rename a directory that is in the way of the selector link instead of failing.")
	fs.BoolVar(&f.CreateSymlink, "create-symlink", true,
		"Link the selected global version into the current directory.")
	fs.BoolVar(&f.NoCreateSymlink, "no-create-symlink", false,
		"Do not link the selected global version into the current directory.")
	fs.BoolVar(&f.Confirm, "confirm", false,
		"Required for uninstall to change anything.")
	fs.BoolVar(&f.Purge, "purge", false,
		"With uninstall --global, also remove the global root.")
	_ = fs.MarkHidden("no-create-symlink")
}

// Options converts the flags to install options.
func (f *Flags) Options() install.Options {
	scope := types.Local
	if f.Global {
		scope = types.Global
	}
	return install.Options{
		Scope:         scope,
		DryRun:        f.DryRun,
		Force:         f.Force,
		CreateSymlink: f.CreateSymlink && !f.NoCreateSymlink,
		Confirm:       f.Confirm,
		Purge:         f.Purge,
	}
}

// Controller loads the configuration for the working directory and returns
// a controller for it.
func (f *Flags) Controller(ctx context.Context) (*controller.Controller, error) {
	const op errors.Op = "cmdutil.Controller"
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.E(op, errors.IO,
			fmt.Errorf("error looking up current working directory: %w", err))
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, errors.E(op, err)
	}
	ic, err := install.New(ctx, cwd, cfg, f.Options())
	if err != nil {
		return nil, errors.E(op, err)
	}
	return controller.New(ic), nil
}

// VersionArg returns the optional version argument. An empty token selects
// the upstream default branch.
func VersionArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// HandleError writes the message for err to w and returns the exit code.
// Errors without a resolver are printed as-is with exit code 1.
func HandleError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	if PrintErrorStacktrace() {
		var goErr *goerrors.Error
		if errors.As(err, &goErr) {
			fmt.Fprintf(w, "%s\n", goErr.ErrorStack())
		}
	}

	if rr, ok := resolver.ResolveError(err); ok {
		fmt.Fprintf(w, "%s\n", strings.TrimSpace(rr.Message))
		return rr.ExitCode
	}

	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}
