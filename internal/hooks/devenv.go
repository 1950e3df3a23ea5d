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

package hooks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/install"
	"github.com/kptdev/scriptkit/internal/types"
	toml "github.com/pelletier/go-toml/v2"
	"k8s.io/klog/v2"
)

// ConfigRootVar is expanded by the dev environment tool to the directory of
// its config file, which keeps the committed file free of absolute paths.
const ConfigRootVar = "{{config_root}}"

// DevEnvHook adds the component location to the env section of a TOML dev
// environment file. Both a single [env] table and [[env]] arrays of tables
// are supported.
type DevEnvHook struct{}

func (h *DevEnvHook) Name() string { return "dev environment" }

func (h *DevEnvHook) Path(ic *install.Context) string {
	return filepath.Join(ic.TargetRoot, ic.Config.Hooks.DevEnvFile)
}

func (h *DevEnvHook) Configured(ic *install.Context) (bool, error) {
	const op errors.Op = "hooks.DevEnvConfigured"
	b, err := os.ReadFile(h.Path(ic))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.E(op, errors.IO, types.UniquePath(h.Path(ic)), err)
	}
	found, err := HasEnvKey(b, ic.Config.Hooks.EnvVar)
	if err != nil {
		return false, errors.E(op, errors.InvalidParam, types.UniquePath(h.Path(ic)), err)
	}
	return found, nil
}

func (h *DevEnvHook) Apply(ctx context.Context, ic *install.Context) error {
	const op errors.Op = "hooks.DevEnvApply"
	path := h.Path(ic)
	b, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return errors.E(op, errors.IO, types.UniquePath(path), err)
	}
	value := filepath.ToSlash(filepath.Join(ConfigRootVar, ic.Config.Prefix))
	out, err := AddEnvKey(b, ic.Config.Hooks.EnvVar, value)
	if err != nil {
		return errors.E(op, errors.InvalidParam, types.UniquePath(path), err)
	}
	if err := ic.FS.WriteFile(ctx, path, out); err != nil {
		return errors.E(op, err)
	}
	return nil
}

type envDoc struct {
	Env interface{} `toml:"env"`
}

// HasEnvKey returns true if key is set in any env table of doc.
func HasEnvKey(doc []byte, key string) (bool, error) {
	var d envDoc
	if err := toml.Unmarshal(doc, &d); err != nil {
		return false, err
	}
	switch env := d.Env.(type) {
	case map[string]interface{}:
		_, found := env[key]
		return found, nil
	case []interface{}:
		for _, e := range env {
			if m, ok := e.(map[string]interface{}); ok {
				if _, found := m[key]; found {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

// AddEnvKey returns doc with key set to value in its env section. An
// existing key is left untouched. The result is parsed again and an error is
// returned instead of a document that is no longer valid.
func AddEnvKey(doc []byte, key, value string) ([]byte, error) {
	found, err := HasEnvKey(doc, key)
	if err != nil {
		return nil, fmt.Errorf("unable to parse existing file: %w", err)
	}
	if found {
		return doc, nil
	}

	kv, err := toml.Marshal(map[string]string{key: value})
	if err != nil {
		return nil, err
	}
	entry := ManagedMarker + "\n" + string(kv)

	var d envDoc
	_ = toml.Unmarshal(doc, &d)
	text := string(doc)
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}

	lines := strings.SplitAfter(text, "\n")
	idx := -1
	for i, l := range lines {
		if header(l) == "env" {
			idx = i
			break
		}
	}

	var out string
	switch _, isArray := d.Env.([]interface{}); {
	case isArray:
		klog.V(3).Infof("appending a new [[env]] entry")
		out = text + sep(text) + "[[env]]\n" + entry
	case idx >= 0:
		// An empty [env] table decodes to nil, so the header decides.
		out = strings.Join(lines[:idx+1], "") + entry + strings.Join(lines[idx+1:], "")
	case d.Env == nil:
		out = text + sep(text) + "[env]\n" + entry
	default:
		return nil, fmt.Errorf("env is not declared as an [env] table")
	}

	var check envDoc
	if err := toml.Unmarshal([]byte(out), &check); err != nil {
		return nil, fmt.Errorf("adding %s would produce an invalid file: %w", key, err)
	}
	return []byte(out), nil
}

// header returns the table name of a [table] line.
func header(line string) string {
	l := strings.TrimSpace(line)
	if i := strings.Index(l, "#"); i >= 0 {
		l = strings.TrimSpace(l[:i])
	}
	if !strings.HasPrefix(l, "[") || strings.HasPrefix(l, "[[") || !strings.HasSuffix(l, "]") {
		return ""
	}
	return strings.TrimSpace(l[1 : len(l)-1])
}

func sep(text string) string {
	if text == "" {
		return ""
	}
	return "\n"
}
