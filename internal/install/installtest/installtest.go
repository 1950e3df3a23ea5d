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

// Package installtest builds install contexts against test repositories.
package installtest

import (
	"testing"

	"github.com/kptdev/scriptkit/internal/config"
	"github.com/kptdev/scriptkit/internal/install"
	"github.com/kptdev/scriptkit/internal/testutil"
	"github.com/kptdev/scriptkit/internal/types"
	"github.com/kptdev/scriptkit/pkg/printer/fake"
	"github.com/stretchr/testify/assert"
)

// Config returns the default configuration pointed at the fixture upstream
// and global root.
func Config(sm *testutil.TestSetupManager) *config.Config {
	cfg := config.Defaults()
	cfg.Upstream = sm.UpstreamRepo.URL()
	cfg.GlobalRoot = sm.GlobalRoot
	cfg.ComponentDir = testutil.ComponentDir
	cfg.MarkerFile = testutil.EntryPoint
	cfg.Hooks.EntryPoint = testutil.EntryPoint
	return &cfg
}

// NewContext returns a context for a command run in the consumer repository.
func NewContext(t *testing.T, sm *testutil.TestSetupManager, opts install.Options) *install.Context {
	t.Helper()
	return NewContextIn(t, sm, sm.Consumer.RepoDirectory, opts)
}

// NewContextIn returns a context for a command run in cwd.
func NewContextIn(t *testing.T, sm *testutil.TestSetupManager, cwd string, opts install.Options) *install.Context {
	t.Helper()
	ic, err := install.New(fake.CtxWithDefaultPrinter(), cwd, Config(sm), opts)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	return ic
}

// Local returns default local options.
func Local() install.Options {
	return install.Options{Scope: types.Local, CreateSymlink: true}
}

// Global returns default global options.
func Global() install.Options {
	return install.Options{Scope: types.Global, CreateSymlink: true}
}
