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

package commands

import (
	"context"
	"strings"

	"github.com/kptdev/scriptkit/internal/cmdinstall"
	"github.com/kptdev/scriptkit/internal/cmdrollback"
	"github.com/kptdev/scriptkit/internal/cmdstatus"
	"github.com/kptdev/scriptkit/internal/cmduninstall"
	"github.com/kptdev/scriptkit/internal/cmdupgrade"
	"github.com/kptdev/scriptkit/internal/cmdversions"
	"github.com/kptdev/scriptkit/internal/util/cmdutil"
	"github.com/spf13/cobra"
)

// GetScriptkitCommands returns the set of scriptkit commands to be registered
func GetScriptkitCommands(ctx context.Context, name string, flags *cmdutil.Flags) []*cobra.Command {
	c := []*cobra.Command{
		cmdinstall.NewCommand(ctx, name, flags),
		cmdupgrade.NewCommand(ctx, name, flags),
		cmdrollback.NewCommand(ctx, name, flags),
		cmduninstall.NewCommand(ctx, name, flags),
		cmdversions.NewCommand(ctx, name, flags),
		cmdstatus.NewCommand(ctx, name, flags),
	}

	// apply cross-cutting issues to commands
	NormalizeCommand(c...)
	return c
}

// NormalizeCommand will modify commands to be consistent, e.g. silencing errors
func NormalizeCommand(c ...*cobra.Command) {
	for i := range c {
		cmd := c[i]
		cmd.Short = strings.TrimSuffix(cmd.Short, ".")
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		NormalizeCommand(cmd.Commands()...)
	}
}
