// Copyright 2023 The mergetool Authors
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

// Package errors defines the error handling used by the mergetool codebase.
package errors

import (
	goerrors "errors"
	"fmt"
	"strings"

	"github.com/android-webview/mergetool/internal/types"
)

// Error is an implementation of the error interface used in the mergetool
// codebase.
// It is based on the design in https://commandcenter.blogspot.com/2017/12/error-handling-in-upspin.html
type Error struct {
	// Path is the path of the project involved in the operation.
	Path types.UniquePath

	// Op is the operation being performed, for ex. deps.Parse, merge.Run
	Op Op

	// Kind refers to the class of error
	Kind Kind

	// Class says whether a failed run may be retried after an external fix
	// (Recoverable) or needs human inspection first (Fatal).
	Class Class

	// Err refers to the wrapped error (if any)
	Err error
}

func (e *Error) Error() string {
	b := new(strings.Builder)

	if e.Op != "" {
		pad(b, ": ")
		b.WriteString(string(e.Op))
	}

	if e.Path != "" {
		pad(b, ": ")
		b.WriteString("project ")
		b.WriteString(string(e.Path))
	}

	if e.Kind != 0 {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}

	if e.Err != nil {
		if wrappedErr, ok := e.Err.(*Error); ok {
			if !wrappedErr.Zero() {
				pad(b, ":\n\t")
				b.WriteString(wrappedErr.Error())
			}
		} else {
			pad(b, ": ")
			b.WriteString(e.Err.Error())
		}
	}
	if b.Len() == 0 {
		return "no error"
	}
	return b.String()
}

// pad appends given str to the string buffer.
func pad(b *strings.Builder, str string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(str)
}

func (e *Error) Zero() bool {
	return e.Op == "" && e.Path == "" && e.Kind == 0 && e.Class == 0 && e.Err == nil
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Op describes the operation being performed.
type Op string

// Kind describes the class of errors encountered.
type Kind int

const (
	Other        Kind = iota // Unclassified. Will not be printed.
	Git                      // Errors from git
	Manifest                 // Errors resolving the dependency manifest
	Revision                 // Errors locating the merge revision
	License                  // Incompatibly licensed content remains
	Generator                // Errors from the makefile generator
	InvalidParam             // Value is not valid
	Internal                 // Internal error
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case Git:
		return "git error"
	case Manifest:
		return "manifest error"
	case Revision:
		return "revision error"
	case License:
		return "license error"
	case Generator:
		return "generator error"
	case InvalidParam:
		return "invalid parameter value"
	case Internal:
		return "internal error"
	}
	return "unknown kind"
}

// Class partitions errors by what a caller may do about them. The zero
// value deliberately maps to Fatal so that an unclassified failure is never
// retried by automation.
type Class int

const (
	// Fatal means the failure needs human inspection before a retry makes
	// sense, for ex. unresolved merge conflicts.
	Fatal Class = iota

	// Recoverable means the run may be retried, typically after a
	// configuration or table fix, or because the condition was transient.
	Recoverable
)

func (c Class) String() string {
	switch c {
	case Fatal:
		return "fatal"
	case Recoverable:
		return "recoverable"
	}
	return "unknown class"
}

func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("errors.E must have at least one argument")
	}

	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case types.UniquePath:
			e.Path = a
		case Op:
			e.Op = a
		case Kind:
			e.Kind = a
		case Class:
			e.Class = a
		case *Error:
			cp := *a
			e.Err = &cp
		case error:
			e.Err = a
		case string:
			e.Err = fmt.Errorf("%s", a)
		default:
			panic(fmt.Errorf("unknown type %T for value %v in call to errors.E", a, a))
		}
	}

	wrappedErr, ok := e.Err.(*Error)
	if !ok {
		return e
	}

	// Promote properties of the wrapped error so they are not repeated in
	// the output and a Recoverable classification survives wrapping.
	if e.Path == wrappedErr.Path {
		wrappedErr.Path = ""
	}
	if e.Kind == 0 {
		e.Kind = wrappedErr.Kind
		wrappedErr.Kind = 0
	}
	if e.Class == 0 {
		e.Class = wrappedErr.Class
		wrappedErr.Class = 0
	}
	return e
}

// IsRecoverable reports whether err or any error it wraps carries the
// Recoverable class.
func IsRecoverable(err error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Class == Recoverable {
				return true
			}
			err = e.Err
			continue
		}
		return false
	}
	return false
}

// As and Is delegate to the standard library so callers don't need a
// second errors import.
func As(err error, target interface{}) bool {
	return goerrors.As(err, target)
}

func Is(err, target error) bool {
	return goerrors.Is(err, target)
}
