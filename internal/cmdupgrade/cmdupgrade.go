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

// Package cmdupgrade contains the upgrade command
package cmdupgrade

import (
	"context"

	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/util/cmdutil"
	"github.com/spf13/cobra"
)

const (
	upgradeShort = `Move an existing install to another version`
	upgradeLong  = `
  scriptkit upgrade [VERSION] [flags]

Args:

  VERSION:
    A tag, branch or commit of the upstream repository, or 'latest' for the
    upstream default branch. Defaults to 'latest'.

The installed state is recorded before anything changes so that
'scriptkit rollback' can return to it. Upgrading to the installed version
changes nothing. A local upgrade merges the new version with git subtree, so
local edits to the scripts are kept or reported as merge conflicts.
`
	upgradeExamples = `
  # upgrade to the latest version
  $ scriptkit upgrade

  # upgrade the global install to a tag
  $ scriptkit upgrade 1.10.0 --global
`
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context, parent string, flags *cmdutil.Flags) *Runner {
	r := &Runner{
		ctx:   ctx,
		flags: flags,
	}
	c := &cobra.Command{
		Use:        "upgrade [VERSION]",
		Args:       cobra.MaximumNArgs(1),
		Short:      upgradeShort,
		Long:       upgradeShort + "\n" + upgradeLong,
		Example:    upgradeExamples,
		RunE:       r.runE,
		SuggestFor: []string{"update"},
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
	const op errors.Op = "cmdupgrade.runE"
	ctrl, err := r.flags.Controller(r.ctx)
	if err != nil {
		return errors.E(op, err)
	}
	if err := ctrl.Upgrade(r.ctx, cmdutil.VersionArg(args)); err != nil {
		return errors.E(op, err)
	}
	return nil
}
