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

package resolve

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/gitutil"
	modsemver "golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// Output formats supported by Listing.Write.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Formats lists the supported output formats.
var Formats = []string{FormatTable, FormatJSON, FormatYAML}

// IsStable returns true for a plain MAJOR.MINOR.PATCH tag with an optional
// leading v. Prereleases, build metadata and short forms like 1.2 are not
// stable.
func IsStable(tag string) bool {
	v := tag
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return modsemver.IsValid(v) &&
		modsemver.Canonical(v) == v &&
		modsemver.Prerelease(v) == "" &&
		modsemver.Build(v) == ""
}

// Partition splits tags into stable and non-stable tags, each sorted newest
// first.
func Partition(tags []string) (stable, other []string) {
	for _, tag := range tags {
		if IsStable(tag) {
			stable = append(stable, tag)
			continue
		}
		other = append(other, tag)
	}
	Sort(stable)
	Sort(other)
	return stable, other
}

// Sort orders tags by descending semantic version. Tags that are not
// semantic versions sort after all others in lexical order.
func Sort(tags []string) {
	parsed := make(map[string]*semver.Version, len(tags))
	for _, tag := range tags {
		v, err := semver.StrictNewVersion(strings.TrimPrefix(tag, "v"))
		if err != nil {
			klog.V(3).Infof("Failed to parse tag %q as semantic version, sorting lexically", tag)
			continue
		}
		parsed[tag] = v
	}
	slices.SortStableFunc(tags, func(a, b string) int {
		va, aok := parsed[a]
		vb, bok := parsed[b]
		switch {
		case aok && bok:
			if c := vb.Compare(va); c != 0 {
				return c // we want descending order
			}
			return strings.Compare(a, b)
		case aok:
			return -1
		case bok:
			return 1
		}
		return strings.Compare(a, b)
	})
}

// Entry is one version in a Listing.
type Entry struct {
	Name         string `json:"name" yaml:"name"`
	Commit       string `json:"commit" yaml:"commit"`
	Stable       bool   `json:"stable" yaml:"stable"`
	LatestStable bool   `json:"latestStable,omitempty" yaml:"latestStable,omitempty"`
	Current      bool   `json:"current,omitempty" yaml:"current,omitempty"`
}

// Listing is the advisory view of the upstream versions.
type Listing struct {
	Upstream      string  `json:"upstream" yaml:"upstream"`
	DefaultBranch string  `json:"defaultBranch" yaml:"defaultBranch"`
	Current       string  `json:"current" yaml:"current"`
	Stable        []Entry `json:"stable" yaml:"stable"`
	Other         []Entry `json:"other" yaml:"other"`
}

// List builds the listing of upstream tags. current is the installed
// version name, it is only used for marking and may be unknown.
func List(ur *gitutil.UpstreamRepo, current string) Listing {
	stable, other := Partition(ur.TagNames())
	l := Listing{
		Upstream:      ur.URI,
		DefaultBranch: ur.DefaultBranch,
		Current:       current,
	}
	for i, tag := range stable {
		l.Stable = append(l.Stable, Entry{
			Name:         tag,
			Commit:       ur.Tags[tag],
			Stable:       true,
			LatestStable: i == 0,
			Current:      tag == current,
		})
	}
	for _, tag := range other {
		l.Other = append(l.Other, Entry{
			Name:    tag,
			Commit:  ur.Tags[tag],
			Current: tag == current,
		})
	}
	return l
}

// LatestStable returns the highest stable tag, if any.
func (l Listing) LatestStable() (string, bool) {
	if len(l.Stable) == 0 {
		return "", false
	}
	return l.Stable[0].Name, true
}

// Write renders the listing in the given format.
func (l Listing) Write(w io.Writer, format string) error {
	const op errors.Op = "resolve.Write"
	switch format {
	case "", FormatTable:
		l.writeTable(w)
		return nil
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(l); err != nil {
			return errors.E(op, errors.IO, err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(l); err != nil {
			return errors.E(op, errors.IO, err)
		}
		if err := enc.Close(); err != nil {
			return errors.E(op, errors.IO, err)
		}
		return nil
	}
	return errors.E(op, errors.InvalidParam,
		fmt.Errorf("unknown output format %q, must be one of %s", format, strings.Join(Formats, ", ")))
}

func (l Listing) writeTable(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"VERSION", "COMMIT", "CHANNEL", "NOTES"})
	t.AppendRow(table.Row{l.DefaultBranch, "", "default branch", notes(false, l.Current == l.DefaultBranch)})
	t.AppendSeparator()
	for _, e := range l.Stable {
		t.AppendRow(table.Row{e.Name, short(e.Commit), "stable", notes(e.LatestStable, e.Current)})
	}
	if len(l.Other) > 0 {
		t.AppendSeparator()
	}
	for _, e := range l.Other {
		t.AppendRow(table.Row{e.Name, short(e.Commit), "pre-release", notes(false, e.Current)})
	}
	t.Render()
}

func notes(latest, current bool) string {
	var n []string
	if latest {
		n = append(n, "latest stable")
	}
	if current {
		n = append(n, "current")
	}
	return strings.Join(n, ", ")
}

func short(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}
