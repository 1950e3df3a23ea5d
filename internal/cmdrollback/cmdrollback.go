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

// Package cmdrollback contains the rollback command
package cmdrollback

import (
	"context"

	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/util/cmdutil"
	"github.com/spf13/cobra"
)

const (
	rollbackShort = `Return to the state before the last upgrade`
	rollbackLong  = `
  scriptkit rollback [VERSION] [flags]

Args:

  VERSION:
    Optional. When given, rollback is an upgrade to that version.

Without a version the state recorded by the last upgrade is restored and the
record is removed, so a second rollback fails until the next upgrade.
`
	rollbackExamples = `
  # undo the last upgrade
  $ scriptkit rollback

  # go back to a specific tag
  $ scriptkit rollback 1.0.0
`
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context, parent string, flags *cmdutil.Flags) *Runner {
	r := &Runner{
		ctx:   ctx,
		flags: flags,
	}
	c := &cobra.Command{
		Use:        "rollback [VERSION]",
		Args:       cobra.MaximumNArgs(1),
		Short:      rollbackShort,
		Long:       rollbackShort + "\n" + rollbackLong,
		Example:    rollbackExamples,
		RunE:       r.runE,
		SuggestFor: []string{"revert", "undo"},
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
	const op errors.Op = "cmdrollback.runE"
	ctrl, err := r.flags.Controller(r.ctx)
	if err != nil {
		return errors.E(op, err)
	}
	if err := ctrl.Rollback(r.ctx, cmdutil.VersionArg(args)); err != nil {
		return errors.E(op, err)
	}
	return nil
}
