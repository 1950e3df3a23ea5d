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

// Package config loads the scriptkit configuration.
//
// Values are layered, later layers win:
//
//   - built-in defaults
//   - $XDG_CONFIG_HOME/scriptkit/config.yaml
//   - .scriptkit.yaml in the working directory
//   - SCRIPTKIT_* environment variables, e.g. SCRIPTKIT_HOOKS_ENABLED
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/types"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"
)

const (
	// AppName names the config and data directories.
	AppName = "scriptkit"
	// ProjectConfigFile is read from the working directory.
	ProjectConfigFile = ".scriptkit.yaml"
	// EnvPrefix prefixes environment overrides.
	EnvPrefix = "SCRIPTKIT"

	DefaultUpstream = "https://github.com/kptdev/scriptkit.git"
)

// Config holds all configuration options for scriptkit.
type Config struct {
	// Upstream is the url of the repository the component is installed from.
	Upstream string `mapstructure:"upstream"`
	// ComponentDir is the directory inside the upstream repo that is
	// distributed.
	ComponentDir string `mapstructure:"component_dir"`
	// Prefix is where the component lands in the target.
	Prefix        string `mapstructure:"prefix"`
	RemoteName    string `mapstructure:"remote_name"`
	StagingBranch string `mapstructure:"staging_branch"`
	ContentBranch string `mapstructure:"content_branch"`
	GlobalRoot    string `mapstructure:"global_root"`
	VersionsDir   string `mapstructure:"versions_dir"`
	// MarkerFile must exist in every materialized component. It is used to
	// tell a working selector from a broken one.
	MarkerFile   string      `mapstructure:"marker_file"`
	RollbackFile string      `mapstructure:"rollback_file"`
	GitFlags     string      `mapstructure:"git_flags"`
	Hooks        HooksConfig `mapstructure:"hooks"`
}

// HooksConfig configures the post-install hooks.
type HooksConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	EnvVar     string `mapstructure:"env_var"`
	EnvFile    string `mapstructure:"env_file"`
	DevEnvFile string `mapstructure:"dev_env_file"`
	ScriptsDir string `mapstructure:"scripts_dir"`
	EntryPoint string `mapstructure:"entry_point"`
}

// Defaults returns a Config with the built-in default values.
func Defaults() Config {
	return Config{
		Upstream:      DefaultUpstream,
		ComponentDir:  "scripts",
		Prefix:        AppName,
		RemoteName:    AppName + "-upstream",
		StagingBranch: AppName + "-staging",
		ContentBranch: AppName + "-content",
		GlobalRoot:    filepath.Join(xdg.DataHome, AppName),
		VersionsDir:   ".versions",
		MarkerFile:    AppName + ".sh",
		RollbackFile:  "." + AppName + "-rollback",
		Hooks: HooksConfig{
			Enabled:    true,
			EnvVar:     "SCRIPTKIT_HOME",
			EnvFile:    ".env",
			DevEnvFile: "mise.toml",
			ScriptsDir: "scripts",
			EntryPoint: AppName + ".sh",
		},
	}
}

// UserConfigPath returns the per-user config file location.
func UserConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// Load reads the configuration layers for a command run in cwd.
func Load(cwd string) (*Config, error) {
	const op errors.Op = "config.Load"
	v := viper.New()
	setDefaults(v, Defaults())

	for _, p := range []string{UserConfigPath(), filepath.Join(cwd, ProjectConfigFile)} {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		klog.V(3).Infof("reading config file %s", p)
		v.SetConfigFile(p)
		v.SetConfigType("yaml")
		if err := v.MergeInConfig(); err != nil {
			return nil, errors.E(op, errors.InvalidParam, types.UniquePath(p),
				fmt.Errorf("unable to read config: %w", err))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.E(op, errors.InvalidParam, fmt.Errorf("unable to decode config: %w", err))
	}
	cfg.GlobalRoot = expandHome(cfg.GlobalRoot)
	if err := cfg.Validate(); err != nil {
		return nil, errors.E(op, err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("upstream", d.Upstream)
	v.SetDefault("component_dir", d.ComponentDir)
	v.SetDefault("prefix", d.Prefix)
	v.SetDefault("remote_name", d.RemoteName)
	v.SetDefault("staging_branch", d.StagingBranch)
	v.SetDefault("content_branch", d.ContentBranch)
	v.SetDefault("global_root", d.GlobalRoot)
	v.SetDefault("versions_dir", d.VersionsDir)
	v.SetDefault("marker_file", d.MarkerFile)
	v.SetDefault("rollback_file", d.RollbackFile)
	v.SetDefault("git_flags", d.GitFlags)
	v.SetDefault("hooks.enabled", d.Hooks.Enabled)
	v.SetDefault("hooks.env_var", d.Hooks.EnvVar)
	v.SetDefault("hooks.env_file", d.Hooks.EnvFile)
	v.SetDefault("hooks.dev_env_file", d.Hooks.DevEnvFile)
	v.SetDefault("hooks.scripts_dir", d.Hooks.ScriptsDir)
	v.SetDefault("hooks.entry_point", d.Hooks.EntryPoint)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// Validate checks that the configured names can be used as paths and refs.
func (c *Config) Validate() error {
	const op errors.Op = "config.Validate"
	required := map[string]string{
		"upstream":       c.Upstream,
		"component_dir":  c.ComponentDir,
		"prefix":         c.Prefix,
		"remote_name":    c.RemoteName,
		"staging_branch": c.StagingBranch,
		"content_branch": c.ContentBranch,
		"global_root":    c.GlobalRoot,
		"versions_dir":   c.VersionsDir,
		"marker_file":    c.MarkerFile,
		"rollback_file":  c.RollbackFile,
	}
	for key, val := range required {
		if strings.TrimSpace(val) == "" {
			return errors.E(op, errors.MissingParam, fmt.Errorf("config value %q must not be empty", key))
		}
	}
	for key, val := range map[string]string{
		"prefix":        c.Prefix,
		"component_dir": c.ComponentDir,
		"versions_dir":  c.VersionsDir,
		"rollback_file": c.RollbackFile,
	} {
		if filepath.IsAbs(val) || strings.Contains(filepath.ToSlash(val), "..") {
			return errors.E(op, errors.InvalidParam,
				fmt.Errorf("config value %q must be a relative path inside the target, got %q", key, val))
		}
	}
	if c.StagingBranch == c.ContentBranch {
		return errors.E(op, errors.InvalidParam,
			fmt.Errorf("staging_branch and content_branch must differ, both are %q", c.StagingBranch))
	}
	if !filepath.IsAbs(c.GlobalRoot) {
		return errors.E(op, errors.InvalidParam,
			fmt.Errorf("global_root must be an absolute path, got %q", c.GlobalRoot))
	}
	return nil
}
