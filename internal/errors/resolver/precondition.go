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
	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/precheck"
	"github.com/kptdev/scriptkit/internal/types"
)

const (
	toolUnavailableMsg = `
Error: {{ .tool }} is not installed or not available in the path. Install {{ .tool }} and run the command again.
`

	notGitRepoMsg = `
Error: {{ printf "%q" .dir }} is not inside a git repository.
Initialize one with 'git init' and create a first commit, or install into the current directory with '--global'.
`

	dirtyIndexMsg = `
Error: The index contains staged changes that are not committed:
{{- range .files }}
  {{ . }}
{{- end }}
Commit them with 'git commit' or unstage them with 'git restore --staged .' so that there is a clean checkpoint to return to.
`

	//nolint:lll
	untrackedDirsMsg = `
Error: The repository has untracked directories that the install could overwrite:
{{- range .dirs }}
  {{ . }}
{{- end }}
Add a .gitkeep file to directories that are meant to be empty and commit them, or remove the directories. scriptkit never deletes untracked content.
`

	notWritableMsg = `
Error: {{ printf "%q" .path }} is not writable. Check the permissions of the directory and its owner.

{{- template "NestedErrDetails" . }}
`

	notInstalledMsg = `
Error: Cannot {{ .operation }}: nothing is installed{{ if .global }} globally{{ end }}. Run 'scriptkit install{{ if .global }} --global{{ end }}' first.
`

	brokenInstallMsg = `
Error: The installation is broken: {{ .reason }}.
Remove it with 'scriptkit uninstall --confirm{{ if .global }} --global{{ end }}' and install again.
`
)

// preconditionErrorResolver resolves the errors returned before an
// operation changes anything.
type preconditionErrorResolver struct{}

func (*preconditionErrorResolver) Resolve(err error) (ResolvedResult, bool) {
	var toolErr *precheck.ToolUnavailableError
	if errors.As(err, &toolErr) {
		return message(toolUnavailableMsg, map[string]interface{}{"tool": toolErr.Tool})
	}

	var notGitRepoErr *precheck.NotGitRepoError
	if errors.As(err, &notGitRepoErr) {
		return message(notGitRepoMsg, map[string]interface{}{"dir": notGitRepoErr.Dir})
	}

	var dirtyErr *precheck.DirtyIndexError
	if errors.As(err, &dirtyErr) {
		return message(dirtyIndexMsg, map[string]interface{}{"files": dirtyErr.Files})
	}

	var untrackedErr *precheck.UntrackedDirsError
	if errors.As(err, &untrackedErr) {
		return message(untrackedDirsMsg, map[string]interface{}{"dirs": untrackedErr.Dirs})
	}

	var notWritableErr *precheck.NotWritableError
	if errors.As(err, &notWritableErr) {
		return message(notWritableMsg, map[string]interface{}{
			"path": notWritableErr.Path,
			"err":  notWritableErr,
		})
	}

	var notInstalledErr *precheck.NotInstalledError
	if errors.As(err, &notInstalledErr) {
		return message(notInstalledMsg, map[string]interface{}{
			"operation": notInstalledErr.Operation,
			"global":    notInstalledErr.Scope == types.Global,
		})
	}

	var brokenErr *precheck.BrokenInstallError
	if errors.As(err, &brokenErr) {
		return message(brokenInstallMsg, map[string]interface{}{
			"reason": brokenErr.Record.Reason,
			"global": brokenErr.Record.Scope == types.Global,
		})
	}

	return ResolvedResult{}, false
}

func message(tmpl string, args map[string]interface{}) (ResolvedResult, bool) {
	return ResolvedResult{
		Message: render(tmpl, args),
	}, true
}
