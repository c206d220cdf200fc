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

package run

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/android-webview/mergetool/internal/cmdsnapshot"
	"github.com/android-webview/mergetool/internal/printer"
	"github.com/android-webview/mergetool/internal/util/cmdutil"
)

// Main builds and executes the command and returns the process exit code.
func Main(ctx context.Context) int {
	// wire the global printer
	pr := printer.New(os.Stdout, os.Stderr)
	ctx = printer.WithContext(ctx, pr)

	r := cmdsnapshot.NewRunner(ctx)
	cmd := r.Command

	// We handle all errors here after return from cobra so the exit code
	// policy lives in one place.
	cmd.PersistentFlags().BoolVar(&cmdutil.StackOnError, "stack-trace", false,
		"Print a stack-trace on failure")

	if _, err := exec.LookPath("git"); err != nil {
		fmt.Fprintln(os.Stderr, "mergetool requires that `git` is installed and on the PATH")
		return 1
	}

	if err := cmd.Execute(); err != nil {
		return cmdutil.HandleError(cmd, err)
	}
	if r.NoChanges {
		return r.NoChangesExit
	}
	return 0
}
