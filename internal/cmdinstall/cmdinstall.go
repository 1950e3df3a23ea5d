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

// Package cmdinstall contains the install command
package cmdinstall

import (
	"context"

	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/util/cmdutil"
	"github.com/spf13/cobra"
)

const (
	installShort = `Install the scripts into the current repository or the global root`
	installLong  = `
  scriptkit install [VERSION] [flags]

Args:

  VERSION:
    A tag, branch or commit of the upstream repository, or 'latest' for the
    upstream default branch. Defaults to 'latest'.

A local install adds the scripts under the configured prefix with git subtree
and commits them. A global install checks the version out under the global
root and links it into the current directory.

Installing when something is already installed changes nothing. Use
'scriptkit upgrade' to change the version.
`
	installExamples = `
  # install the latest version into the current repository
  $ scriptkit install

  # install a tagged version
  $ scriptkit install 1.2.0

  # install globally and link it into the current directory
  $ scriptkit install 1.2.0 --global

  # show what would happen
  $ scriptkit install --dry-run
`
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context, parent string, flags *cmdutil.Flags) *Runner {
	r := &Runner{
		ctx:   ctx,
		flags: flags,
	}
	c := &cobra.Command{
		Use:     "install [VERSION]",
		Args:    cobra.MaximumNArgs(1),
		Short:   installShort,
		Long:    installShort + "\n" + installLong,
		Example: installExamples,
		RunE:    r.runE,
	}
	cmdutil.FixDocs("scriptkit", parent, c)
	r.Command = c
	return r
}

func NewCommand(ctx context.Context, parent string, flags *cmdutil.Flags) *cobra.Command {
	return NewRunner(ctx, parent, flags).Command
}

// Runner contains the run function
type Runner struct {
	ctx     context.Context
	flags   *cmdutil.Flags
	Command *cobra.Command
}

func (r *Runner) runE(_ *cobra.Command, args []string) error {
	const op errors.Op = "cmdinstall.runE"
	ctrl, err := r.flags.Controller(r.ctx)
	if err != nil {
		return errors.E(op, err)
	}
	if err := ctrl.Install(r.ctx, cmdutil.VersionArg(args)); err != nil {
		return errors.E(op, err)
	}
	return nil
}
