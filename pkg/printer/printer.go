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

// Package printer defines utilities to display scriptkit CLI output.
package printer

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/kptdev/scriptkit/internal/types"
)

// Printer defines capabilities to display content in scriptkit CLI.
// The main intention, at the moment, is to abstract away printing
// output in the CLI so that we can evolve the scriptkit CLI UX.
type Printer interface {
	Printf(format string, args ...interface{})
	OptPrintf(opt *Options, format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Successf(format string, args ...interface{})
	OutStream() io.Writer
	ErrStream() io.Writer
}

// Options are optional options for printer
type Options struct {
	// Indentation is the number of spaces added at the beginning
	// of each line
	Indentation int
	// Target is the install target the message is about
	Target types.UniquePath
}

// NewOpt returns a pointer to new options
func NewOpt() *Options {
	return &Options{}
}

// Indent sets the output indentation in options
func (opt *Options) Indent(i int) *Options {
	opt.Indentation = i
	return opt
}

// TargetPath sets the target path in options
func (opt *Options) TargetPath(p types.UniquePath) *Options {
	opt.Target = p
	return opt
}

// New returns an instance of Printer.
func New(outStream, errStream io.Writer) Printer {
	if outStream == nil {
		outStream = os.Stdout
	}
	if errStream == nil {
		errStream = os.Stderr
	}
	return &printer{
		outStream: outStream,
		errStream: errStream,
		warn:      color.New(color.FgYellow),
		success:   color.New(color.FgGreen),
	}
}

// printer implements default Printer to be used in scriptkit codebase.
type printer struct {
	outStream io.Writer
	errStream io.Writer
	warn      *color.Color
	success   *color.Color
}

// The key type is unexported to prevent collisions with context keys defined in
// other packages.
type contextKey int

// printerKey is the context key for the printer.
const printerKey contextKey = 0

// OutStream returns the StdOut stream, this can be used by callers to print
// command output to stdout, do not print error/debug logs to this stream
func (pr *printer) OutStream() io.Writer {
	return pr.outStream
}

// ErrStream returns the StdErr stream, this can be used by callers to print
// command output to stderr, print only error/debug/info logs to this stream
func (pr *printer) ErrStream() io.Writer {
	return pr.errStream
}

// Printf is the wrapper over fmt.Printf that displays the output.
// this will print messages to stderr stream
func (pr *printer) Printf(format string, args ...interface{}) {
	fmt.Fprintf(pr.errStream, format, args...)
}

// OptPrintf is the wrapper over fmt.Printf that displays the output according
// to the opt, this will print messages to stderr stream
func (pr *printer) OptPrintf(opt *Options, format string, args ...interface{}) {
	if opt == nil {
		fmt.Fprintf(pr.errStream, format, args...)
		return
	}
	if !opt.Target.Empty() {
		relPath, err := opt.Target.RelativePath()
		if err != nil {
			relPath = string(opt.Target)
		}
		format = fmt.Sprintf("Target %q: ", relPath) + format
	}
	msg := fmt.Sprintf(format, args...)
	if opt.Indentation > 0 {
		indent := strings.Repeat(" ", opt.Indentation)
		lines := strings.Split(msg, "\n")
		for i := range lines {
			if lines[i] != "" {
				lines[i] = indent + lines[i]
			}
		}
		msg = strings.Join(lines, "\n")
	}
	fmt.Fprint(pr.errStream, msg)
}

// Warnf prints a highlighted warning to stderr.
func (pr *printer) Warnf(format string, args ...interface{}) {
	pr.warn.Fprintf(pr.errStream, "Warning: "+format, args...)
}

// Successf prints a highlighted completion message to stderr.
func (pr *printer) Successf(format string, args ...interface{}) {
	pr.success.Fprintf(pr.errStream, format, args...)
}

// Helper functions to set and retrieve printer instance from a context.
// Defining them here avoids the context key collision.

// FromContextOrDie returns printer instance associated with the context.
func FromContextOrDie(ctx context.Context) Printer {
	pr, ok := ctx.Value(printerKey).(Printer)
	if ok {
		return pr
	}
	panic("printer missing in context")
}

// WithContext creates new context from the given parent context
// by setting the printer instance.
func WithContext(ctx context.Context, pr Printer) context.Context {
	return context.WithValue(ctx, printerKey, pr)
}
