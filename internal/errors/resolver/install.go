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

package resolver

import (
	"strings"

	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/gitutil"
	"github.com/kptdev/scriptkit/internal/ledger"
	"github.com/kptdev/scriptkit/internal/resolve"
	"github.com/kptdev/scriptkit/internal/selector"
	"github.com/kptdev/scriptkit/internal/transport"
)

const (
	versionNotFoundMsg = `
Error: Version {{ printf "%q" .token }} was not found in {{ printf "%q" .upstream }}.
{{- if .suggestions }}
Closest stable versions: {{ .suggestions }}
{{- end }}
Run 'scriptkit versions' to list every version.
`

	mergeConflictMsg = `
Error: Merging {{ .ref }} into {{ .prefix }} conflicts with local changes in:
{{- range .files }}
  {{ . }}
{{- end }}
Resolve the conflicts and commit, or abort the merge with 'git merge --abort'.
`

	splitMsg = `
Error: Unable to extract {{ printf "%q" .dir }} from {{ .ref }}.
Remove the partial state with:
{{- range .cleanup }}
  {{ . }}
{{- end }}
{{- template "GitOutput" . }}
`

	brokenSelectorMsg = `
Warning: {{ .path }} points at {{ .target }} which has no {{ .marker }}.
Remove the link with 'rm {{ .path }}' and run the install again, or repair {{ .target }}.
`

	//nolint:lll
	selectorConflictMsg = `
Error: {{ .path }} exists and is not a link managed by scriptkit.
Move it out of the way, or run again with '--force' to rename it to {{ .path }}.backup-<timestamp>.
`

	nothingToRollbackMsg = `
Error: Nothing to roll back to: no upgrade has been recorded in {{ .marker }}.
`

	staleMarkerMsg = `
Error: The rollback marker {{ .marker }} references {{ printf "%q" .hash }} which is no longer a reachable commit.
The history was probably rewritten. Remove {{ .marker }} and run 'scriptkit upgrade <version>' to pick a version explicitly.
`
)

// installErrorResolver resolves the errors returned while a version is
// resolved, transported, bound or rolled back.
type installErrorResolver struct{}

func (*installErrorResolver) Resolve(err error) (ResolvedResult, bool) {
	var notFoundErr *resolve.VersionNotFoundError
	if errors.As(err, &notFoundErr) {
		return message(versionNotFoundMsg, map[string]interface{}{
			"token":       notFoundErr.Token,
			"upstream":    notFoundErr.Upstream,
			"suggestions": strings.Join(notFoundErr.Suggestions, ", "),
		})
	}

	var conflictErr *transport.MergeConflictError
	if errors.As(err, &conflictErr) {
		return message(mergeConflictMsg, map[string]interface{}{
			"ref":    conflictErr.Ref,
			"prefix": conflictErr.Prefix,
			"files":  conflictErr.Files,
		})
	}

	var splitErr *transport.SplitError
	if errors.As(err, &splitErr) {
		var stdout, stderr string
		var gitExecErr *gitutil.GitExecError
		if errors.As(splitErr.Err, &gitExecErr) {
			stdout, stderr = gitExecErr.StdOut, gitExecErr.StdErr
		}
		return message(splitMsg, map[string]interface{}{
			"dir":     splitErr.ComponentDir,
			"ref":     splitErr.Ref,
			"cleanup": splitErr.Cleanup,
			"stdout":  stdout,
			"stderr":  stderr,
		})
	}

	var brokenErr *selector.BrokenSelectorError
	if errors.As(err, &brokenErr) {
		return message(brokenSelectorMsg, map[string]interface{}{
			"path":   brokenErr.Path,
			"target": brokenErr.Target,
			"marker": brokenErr.Marker,
		})
	}

	var selectorConflictErr *selector.ConflictError
	if errors.As(err, &selectorConflictErr) {
		return message(selectorConflictMsg, map[string]interface{}{"path": selectorConflictErr.Path})
	}

	var nothingErr *ledger.NothingToRollbackError
	if errors.As(err, &nothingErr) {
		return message(nothingToRollbackMsg, map[string]interface{}{"marker": nothingErr.Marker})
	}

	var staleErr *ledger.StaleMarkerError
	if errors.As(err, &staleErr) {
		return message(staleMarkerMsg, map[string]interface{}{
			"marker": staleErr.Marker,
			"hash":   staleErr.Hash,
		})
	}

	return ResolvedResult{}, false
}
