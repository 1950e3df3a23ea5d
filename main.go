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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kptdev/scriptkit/internal/gitutil"
	"github.com/kptdev/scriptkit/internal/util/cmdutil"
	"github.com/kptdev/scriptkit/run"
	"k8s.io/klog/v2"
)

const interruptedExitCode = 130

func main() {
	os.Exit(runMain())
}

// runMain does the initial setup in order to run scriptkit. The return value
// from this function will be the exit code.
func runMain() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer klog.Flush()

	cmd := run.GetMain(ctx)
	err := cmd.Execute()

	if ctx.Err() != nil {
		// TODO: restore the rollback snapshot when an upgrade is interrupted
		// after it was recorded.
		fmt.Fprintf(cmd.ErrOrStderr(), "Interrupted. The last git command exited with code %d.\n",
			gitutil.LastExitCode())
		return interruptedExitCode
	}
	return cmdutil.HandleError(cmd.ErrOrStderr(), err)
}
