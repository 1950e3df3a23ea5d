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

// Package cmdstatus contains the status command
package cmdstatus

import (
	"context"

	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/util/cmdutil"
	"github.com/spf13/cobra"
)

const (
	statusShort = `Show what is installed`
	statusLong  = `
  scriptkit status [flags]

Prints the installed version and whether the upstream has moved on, the
selector link and the pending rollback record. With --global every version
checked out under the global root is shown as a tree with the selected one
marked by '*'.

status never changes anything.
`
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context, parent string, flags *cmdutil.Flags) *Runner {
	r := &Runner{
		ctx:   ctx,
		flags: flags,
	}
	c := &cobra.Command{
		Use:   "status",
		Args:  cobra.NoArgs,
		Short: statusShort,
		Long:  statusShort + "\n" + statusLong,
		RunE:  r.runE,
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

func (r *Runner) runE(c *cobra.Command, _ []string) error {
	const op errors.Op = "cmdstatus.runE"
	ctrl, err := r.flags.Controller(r.ctx)
	if err != nil {
		return errors.E(op, err)
	}
	if err := ctrl.Status(r.ctx, c.OutOrStdout()); err != nil {
		return errors.E(op, err)
	}
	return nil
}
