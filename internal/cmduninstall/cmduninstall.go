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

// Package cmduninstall contains the uninstall command
package cmduninstall

import (
	"context"

	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/util/cmdutil"
	"github.com/spf13/cobra"
)

const (
	uninstallShort = `Remove the install`
	uninstallLong  = `
  scriptkit uninstall [flags]

Nothing is removed unless --confirm is passed. Without it the commands that
would uninstall are printed instead.

A local uninstall removes the prefix in a commit and deletes the staging
branches, the upstream remote and the rollback record. A global uninstall
removes the link in the current directory; with --purge it also removes the
global root and every version in it.
`
	uninstallExamples = `
  # list what would be removed
  $ scriptkit uninstall

  # remove the local install
  $ scriptkit uninstall --confirm

  # remove the link and the global root
  $ scriptkit uninstall --global --purge --confirm
`
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context, parent string, flags *cmdutil.Flags) *Runner {
	r := &Runner{
		ctx:   ctx,
		flags: flags,
	}
	c := &cobra.Command{
		Use:        "uninstall",
		Args:       cobra.NoArgs,
		Short:      uninstallShort,
		Long:       uninstallShort + "\n" + uninstallLong,
		Example:    uninstallExamples,
		RunE:       r.runE,
		SuggestFor: []string{"remove", "delete"},
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

func (r *Runner) runE(_ *cobra.Command, _ []string) error {
	const op errors.Op = "cmduninstall.runE"
	ctrl, err := r.flags.Controller(r.ctx)
	if err != nil {
		return errors.E(op, err)
	}
	if err := ctrl.Uninstall(r.ctx); err != nil {
		return errors.E(op, err)
	}
	return nil
}
