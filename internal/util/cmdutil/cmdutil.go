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

package cmdutil

import (
	"fmt"
	"os"

	goerrors "github.com/go-errors/errors"
	"github.com/spf13/cobra"

	"github.com/android-webview/mergetool/internal/errors"
)

const (
	StackTraceOnErrors = "COBRA_STACK_TRACE_ON_ERRORS"
	trueString         = "true"
)

// StackOnError if true, will print a stack trace on failure.
var StackOnError bool

func PrintErrorStacktrace() bool {
	e := os.Getenv(StackTraceOnErrors)
	if StackOnError || e == trueString || e == "1" {
		return true
	}
	return false
}

// HandleError prints err and returns the process exit code. Recoverable
// errors are labeled so automation knows a retry may succeed after the
// underlying table or configuration is fixed.
func HandleError(c *cobra.Command, err error) int {
	if err == nil {
		return 0
	}
	if PrintErrorStacktrace() {
		fmt.Fprintf(os.Stderr, "%s", goerrors.Wrap(err, 1).ErrorStack())
	}
	if errors.IsRecoverable(err) {
		fmt.Fprintf(c.ErrOrStderr(), "Error (recoverable): %v\n", err)
	} else {
		fmt.Fprintf(c.ErrOrStderr(), "Error: %v\n", err)
	}
	return 1
}
