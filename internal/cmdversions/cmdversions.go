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

// Package cmdversions contains the versions command
package cmdversions

import (
	"context"
	"fmt"
	"strings"

	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/resolve"
	"github.com/kptdev/scriptkit/internal/util/cmdutil"
	"github.com/spf13/cobra"
)

const (
	versionsShort = `List the versions available upstream`
	versionsLong  = `
  scriptkit versions [flags]

Stable versions (MAJOR.MINOR.PATCH tags) are listed newest first, followed by
the other tags. The latest stable and the installed version are marked.
`
	versionsExamples = `
  # list versions as a table
  $ scriptkit versions

  # list versions as json
  $ scriptkit versions -o json
`
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context, parent string, flags *cmdutil.Flags) *Runner {
	r := &Runner{
		ctx:   ctx,
		flags: flags,
	}
	c := &cobra.Command{
		Use:     "versions",
		Args:    cobra.NoArgs,
		Short:   versionsShort,
		Long:    versionsShort + "\n" + versionsLong,
		Example: versionsExamples,
		PreRunE: r.preRunE,
		RunE:    r.runE,
		Aliases: []string{"ls", "list"},
	}
	c.Flags().StringVarP(&r.output, "output", "o", resolve.FormatTable,
		"Output format. One of: "+strings.Join(resolve.Formats, ", ")+".")
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
	output  string
	Command *cobra.Command
}

func (r *Runner) preRunE(_ *cobra.Command, _ []string) error {
	const op errors.Op = "cmdversions.preRunE"
	for _, f := range resolve.Formats {
		if r.output == f {
			return nil
		}
	}
	return errors.E(op, errors.InvalidParam, fmt.Errorf("unknown output format %q", r.output))
}

func (r *Runner) runE(c *cobra.Command, _ []string) error {
	const op errors.Op = "cmdversions.runE"
	ctrl, err := r.flags.Controller(r.ctx)
	if err != nil {
		return errors.E(op, err)
	}
	if err := ctrl.Versions(r.ctx, c.OutOrStdout(), r.output); err != nil {
		return errors.E(op, err)
	}
	return nil
}
