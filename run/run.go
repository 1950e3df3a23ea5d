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

package run

import (
	"context"
	"flag"
	"fmt"

	"github.com/kptdev/scriptkit/commands"
	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/util/cmdutil"
	"github.com/kptdev/scriptkit/pkg/printer"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

const (
	cliShort = `Install and upgrade versioned shell scripts with git`
	cliLong  = `
  scriptkit [VERSION] [flags]
  scriptkit COMMAND [flags]

scriptkit installs a directory of scripts from an upstream git repository,
either into the current repository (local, with git subtree) or into a
shared global root (global, with one git worktree per version and a link in
the current directory).

Without a command, scriptkit installs VERSION when nothing is installed and
upgrades to it otherwise.

scriptkit expects to be the only process working on a target. Running two
invocations against the same repository or global root at the same time is
not supported.
`
	cliExamples = `
  # install, or upgrade to, the latest version
  $ scriptkit

  # pin a version
  $ scriptkit 1.2.0

  # see what is installed
  $ scriptkit status
`
)

var version = "unknown"

// GetMain returns the root command. Without a subcommand it installs or
// upgrades.
func GetMain(ctx context.Context) *cobra.Command {
	flags := &cmdutil.Flags{}
	cmd := &cobra.Command{
		Use:          "scriptkit [VERSION]",
		Short:        cliShort,
		Long:         cliShort + "\n" + cliLong,
		Example:      cliExamples,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		// We handle all errors in main after return from cobra so we can
		// adjust the error message coming from libraries
		SilenceErrors: true,
		Version:       version,
	}

	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	cmd.PersistentFlags().AddGoFlagSet(klogFlags)
	flags.AddTo(cmd.PersistentFlags())

	// wire the global printer
	pr := printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())

	// create context with associated printer
	ctx = printer.WithContext(ctx, pr)
	cmd.SetContext(ctx)

	cmd.RunE = func(_ *cobra.Command, args []string) error {
		const op errors.Op = "run.auto"
		ctrl, err := flags.Controller(ctx)
		if err != nil {
			return errors.E(op, err)
		}
		if err := ctrl.Auto(ctx, cmdutil.VersionArg(args)); err != nil {
			return errors.E(op, err)
		}
		return nil
	}

	// help and documentation
	cmd.InitDefaultHelpCmd()
	cmd.AddCommand(commands.GetScriptkitCommands(ctx, "scriptkit", flags)...)

	// enable stack traces
	cmd.PersistentFlags().BoolVar(&cmdutil.StackOnError, "stack-trace", false,
		"Print a stack-trace on failure")

	cmd.AddCommand(versionCmd)
	hideFlags(cmd)
	return cmd
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of scriptkit",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", version)
	},
}

// hideFlags hides any cobra flags that are unlikely to be used by
// customers.
func hideFlags(cmd *cobra.Command) {
	flags := []string{
		// Flags related to logging
		"add_dir_header",
		"alsologtostderr",
		"log_backtrace_at",
		"log_dir",
		"log_file",
		"log_file_max_size",
		"logtostderr",
		"one_output",
		"skip_headers",
		"skip_log_headers",
		"stack-trace",
		"stderrthreshold",
		"vmodule",
	}
	for _, f := range flags {
		_ = cmd.PersistentFlags().MarkHidden(f)
	}

	// We need to recurse into subcommands otherwise flags aren't hidden on leaf commands
	for _, child := range cmd.Commands() {
		hideFlags(child)
	}
}
