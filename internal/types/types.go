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

// Package types defines the basic types used by the scriptkit codebase.
package types

import (
	"os"
	"path/filepath"
	"strings"
)

// UniquePath represents absolute unique OS-defined path to an install target
// on the filesystem.
type UniquePath string

// String returns the absolute path in string format.
func (u UniquePath) String() string {
	return string(u)
}

// Empty returns true if the path is not set.
func (u UniquePath) Empty() bool {
	return len(u) == 0
}

// RelativePath returns the relative path to current working directory.
func (u UniquePath) RelativePath() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	rPath, err := filepath.Rel(cwd, string(u))
	if err != nil {
		return string(u), err
	}
	if strings.HasPrefix(rPath, "..") {
		return string(u), nil
	}
	return rPath, nil
}

// Scope selects where the component is installed.
type Scope int

const (
	// Local embeds the component into the current repository.
	Local Scope = iota
	// Global materializes versions under a per-user directory and links
	// them into the target.
	Global
)

func (s Scope) String() string {
	if s == Global {
		return "global"
	}
	return "local"
}

// VersionKind tells how a version token was resolved.
type VersionKind string

const (
	AliasMaster VersionKind = "default-branch"
	Tag         VersionKind = "tag"
	Branch      VersionKind = "branch"
)

// LatestAlias always resolves to the upstream default branch.
const LatestAlias = "latest"

// VersionRef is a version token that has been verified to exist upstream.
// Only the resolve package constructs values of this type.
type VersionRef struct {
	// Token is the raw user input.
	Token string
	// Kind is the kind of upstream ref the token resolved to.
	Kind VersionKind
	// CanonicalRef is the literal upstream ref name.
	CanonicalRef string
	// Commit is the upstream commit the ref pointed at when verified.
	Commit string
}

// IsDefaultBranch returns true if the ref tracks the upstream default branch.
func (v VersionRef) IsDefaultBranch() bool {
	return v.Kind == AliasMaster
}

func (v VersionRef) String() string {
	return v.CanonicalRef
}

// Status is the coarse install state of a target.
type Status int

const (
	NotInstalled Status = iota
	Installed
	// Broken means install state exists but cannot be used, for example a
	// selector whose target has disappeared.
	Broken
)

func (s Status) String() string {
	switch s {
	case Installed:
		return "installed"
	case Broken:
		return "broken"
	}
	return "not installed"
}

// Freshness qualifies a default-branch install.
type Freshness string

const (
	FreshnessNone    Freshness = ""
	UpToDate         Freshness = "up-to-date"
	UpdatesAvailable Freshness = "updates-available"
	FreshnessUnknown Freshness = "unknown"
)

// NoVersion is reported when nothing is installed.
const NoVersion = "none"

// InstallationRecord is what the detector knows about a target. It is derived
// on every invocation and never stored.
type InstallationRecord struct {
	Scope  Scope
	Status Status

	// Version is the display name of the installed version.
	Version string
	// Ref is the canonical upstream ref, empty when the version cannot be
	// named precisely.
	Ref string
	// Freshness is set when the installed version is the default branch.
	Freshness Freshness

	ContentHash string
	StagingHash string

	// SelectorTarget is the resolved selector link, if a selector exists.
	SelectorTarget string
	// Unbound is true when a global root exists but the target has no
	// selector pointing into it.
	Unbound bool
	// Reason explains a Broken status.
	Reason string
}

// Present returns true if something is installed, including broken installs.
func (r InstallationRecord) Present() bool {
	return r.Status != NotInstalled
}

// Describe returns the version with its freshness qualifier.
func (r InstallationRecord) Describe() string {
	switch {
	case r.Status == Broken:
		return "broken (" + r.Reason + ")"
	case r.Status == NotInstalled:
		return NoVersion
	case r.Freshness != FreshnessNone:
		return r.Version + " (" + string(r.Freshness) + ")"
	}
	return r.Version
}
