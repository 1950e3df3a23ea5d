// Copyright 2021 The kpt Authors
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

// Package resolver turns typed scriptkit errors into messages that tell the
// user what failed and how to fix it.
package resolver

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// errorResolvers is the list of known resolvers for scriptkit errors.
var errorResolvers []ErrorResolver

//nolint:gochecknoinits
func init() {
	// Several domain errors wrap a *gitutil.GitExecError, so they are
	// resolved before the git resolver sees them.
	AddErrorResolver(&preconditionErrorResolver{})
	AddErrorResolver(&installErrorResolver{})
	AddErrorResolver(&gitExecErrorResolver{})
}

// AddErrorResolver adds the provided error resolver to the list of resolvers
// which will be used to resolve errors.
func AddErrorResolver(er ErrorResolver) {
	errorResolvers = append(errorResolvers, er)
}

// ResolveError attempts to resolve the provided error into a descriptive
// string which will be displayed to the user. If the last return value is false,
// the error could not be resolved.
func ResolveError(err error) (ResolvedResult, bool) {
	for _, resolver := range errorResolvers {
		rr, found := resolver.Resolve(err)
		// If the exit code hasn't been set, we default it to 1. We should
		// never return exit code 0 for errors.
		if rr.ExitCode == 0 {
			rr.ExitCode = 1
		}
		if found {
			return rr, true
		}
	}
	return ResolvedResult{}, false
}

type ResolvedResult struct {
	Message  string
	ExitCode int
}

// ErrorResolver is an interface that allows scriptkit to resolve an error
// into an error message suitable for the end user.
type ErrorResolver interface {
	Resolve(err error) (ResolvedResult, bool)
}

// gitOutputTemplate appends the stdout and stderr of a failed git command
// to a message. It expects the keys stdout and stderr.
const gitOutputTemplate = `
{{- define "GitOutput" }}
{{- if or .stdout .stderr }}

Details:
{{- end }}
{{- with .stdout }}
{{ . }}
{{- end }}
{{- with .stderr }}
{{ . }}
{{- end }}
{{ end }}
`

var messageTemplates = template.Must(template.New("messages").Parse(gitOutputTemplate))

// render executes a message template with data. The templates are constants
// in this package, so a failure is a programming error and panics.
func render(text string, data interface{}) string {
	tmpl := template.Must(template.Must(messageTemplates.Clone()).Parse(text))
	var b bytes.Buffer
	if err := tmpl.Execute(&b, data); err != nil {
		panic(fmt.Errorf("error rendering message: %w", err))
	}
	return strings.TrimSpace(b.String())
}
