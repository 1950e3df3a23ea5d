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
	"bytes"
	"fmt"
	"testing"

	goerrors "github.com/go-errors/errors"
	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/ledger"
	"github.com/kptdev/scriptkit/internal/types"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
)

func TestFlagsOptions(t *testing.T) {
	testCases := map[string]struct {
		args    []string
		scope   types.Scope
		symlink bool
	}{
		"defaults": {
			scope:   types.Local,
			symlink: true,
		},
		"global": {
			args:    []string{"--global"},
			scope:   types.Global,
			symlink: true,
		},
		"no symlink": {
			args:    []string{"--global", "--create-symlink=false"},
			scope:   types.Global,
			symlink: false,
		},
		"no-create-symlink alias": {
			args:    []string{"--no-create-symlink", "--global"},
			scope:   types.Global,
			symlink: false,
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			var f Flags
			fs := pflag.NewFlagSet(tn, pflag.ContinueOnError)
			f.AddTo(fs)
			if !assert.NoError(t, fs.Parse(tc.args)) {
				t.FailNow()
			}
			opts := f.Options()
			assert.Equal(t, tc.scope, opts.Scope)
			assert.Equal(t, tc.symlink, opts.CreateSymlink)
			assert.False(t, opts.DryRun)
		})
	}
}

func TestHandleError(t *testing.T) {
	const op errors.Op = "controller.Rollback"

	testCases := map[string]struct {
		err      error
		code     int
		expected string
	}{
		"nil": {
			code: 0,
		},
		"resolved": {
			err:      errors.E(op, errors.Precondition, &ledger.NothingToRollbackError{Marker: "/r/.m"}),
			code:     1,
			expected: "Error: Nothing to roll back to: no upgrade has been recorded in /r/.m.\n",
		},
		"plain": {
			err:      fmt.Errorf("boom"),
			code:     1,
			expected: "Error: boom\n",
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			var out bytes.Buffer
			assert.Equal(t, tc.code, HandleError(&out, tc.err))
			assert.Equal(t, tc.expected, out.String())
		})
	}
}

func TestHandleErrorStackTrace(t *testing.T) {
	StackOnError = true
	defer func() { StackOnError = false }()

	var out bytes.Buffer
	err := errors.E(errors.Op("gitutil.run"), errors.Internal, goerrors.Wrap(fmt.Errorf("signal: killed"), 0))
	assert.Equal(t, 1, HandleError(&out, err))
	assert.Contains(t, out.String(), "cmdutil_test.go")
	assert.Contains(t, out.String(), "signal: killed")
}

func TestVersionArg(t *testing.T) {
	assert.Equal(t, "", VersionArg(nil))
	assert.Equal(t, "1.2.0", VersionArg([]string{"1.2.0"}))
}
