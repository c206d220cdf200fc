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

// Package generate regenerates the derived artifacts after a merge: the
// platform makefiles, the NOTICE file and the LASTCHANGE stamp. Each is
// committed only when its content actually changed.
package generate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/shlex"

	"github.com/android-webview/mergetool/internal/errors"
	"github.com/android-webview/mergetool/internal/gitutil"
	"github.com/android-webview/mergetool/internal/licenses"
	"github.com/android-webview/mergetool/internal/printer"
	"github.com/android-webview/mergetool/internal/projects"
)

// EnvGeneratorCmd overrides the makefile generator command line. The value
// is split like a shell would.
const EnvGeneratorCmd = "MERGETOOL_GYP_CMD"

// lastChangePath is the stamp file the revision number is compiled into
// the binary from.
const lastChangePath = "build/util/LASTCHANGE"

// noticePath is the top-level license notice file.
const noticePath = "NOTICE"

// makefilePatterns are the generated build files. They are removed before
// the generator runs and re-added afterwards.
var makefilePatterns = []string{
	"GypAndroid.*.mk",
	"*.target.*.mk",
	"*.host.*.mk",
	"*.tmp",
}

// Command regenerates and commits the derived artifacts.
type Command struct {
	// Revision is mentioned in the generated commit messages.
	Revision int

	// Root is the repository root directory.
	Root string

	// Config describes the projects the makefiles are regenerated in.
	Config projects.Config

	// Unattended selects automatic rollback when the generator fails, so
	// a retry starts from a clean tree. Attended runs propagate the
	// failure for manual inspection instead.
	Unattended bool

	// Open opens the version-control client for a project directory.
	// Defaults to gitutil.Open.
	Open gitutil.Opener

	// Scanner generates the NOTICE text from the merged tree.
	Scanner licenses.Scanner

	// Generator is the makefile generator command line, run from Root.
	// Defaults to the configured generator, overridable via
	// EnvGeneratorCmd.
	Generator []string
}

// DefaultValues fills in the production collaborators.
func (c *Command) DefaultValues() error {
	const op errors.Op = "generate.DefaultValues"
	if c.Open == nil {
		c.Open = gitutil.Open
	}
	if len(c.Generator) == 0 {
		c.Generator = c.Config.Generator
	}
	if env := os.Getenv(EnvGeneratorCmd); env != "" {
		argv, err := shlex.Split(env)
		if err != nil {
			return errors.E(op, errors.InvalidParam,
				fmt.Errorf("malformed %s: %w", EnvGeneratorCmd, err))
		}
		c.Generator = argv
	}
	return nil
}

// Run regenerates all artifacts: NOTICE, LASTCHANGE, then the makefiles.
func (c Command) Run(ctx context.Context) error {
	const op errors.Op = "generate.Run"
	if err := (&c).DefaultValues(); err != nil {
		return errors.E(op, err)
	}
	if err := c.notice(ctx); err != nil {
		return errors.E(op, err)
	}
	if err := c.lastChange(ctx); err != nil {
		return errors.E(op, err)
	}
	if err := c.makefiles(ctx); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// notice regenerates the top-level NOTICE file covering all third-party
// code in the merged tree.
func (c Command) notice(ctx context.Context) error {
	const op errors.Op = "generate.notice"
	pr := printer.FromContextOrDie(ctx)
	pr.Printf("Regenerating NOTICE file ...\n")

	contents, err := c.Scanner.NoticeText(ctx)
	if err != nil {
		return errors.E(op, errors.License, err)
	}
	if err := os.WriteFile(filepath.Join(c.Root, noticePath), []byte(contents), 0644); err != nil {
		return errors.E(op, err)
	}

	root, err := c.Open(c.Root)
	if err != nil {
		return errors.E(op, err)
	}
	if err := root.Add(ctx, false, noticePath); err != nil {
		return errors.E(op, err)
	}
	message := fmt.Sprintf("Update NOTICE file after merge of Chromium at r%d\n\n%s",
		c.Revision, projects.AutogenMessage)
	return commitIfChanged(ctx, root, message)
}

// lastChange updates the stamp file recording the merged revision.
func (c Command) lastChange(ctx context.Context) error {
	const op errors.Op = "generate.lastChange"
	pr := printer.FromContextOrDie(ctx)
	pr.Printf("Updating LASTCHANGE ...\n")

	stamp := fmt.Sprintf("LASTCHANGE=%d\n", c.Revision)
	if err := os.WriteFile(filepath.Join(c.Root, lastChangePath), []byte(stamp), 0644); err != nil {
		return errors.E(op, err)
	}

	root, err := c.Open(c.Root)
	if err != nil {
		return errors.E(op, err)
	}
	if err := root.Add(ctx, true, lastChangePath); err != nil {
		return errors.E(op, err)
	}
	message := fmt.Sprintf("Update LASTCHANGE file after merge of Chromium at r%d\n\n%s",
		c.Revision, projects.AutogenMessage)
	return commitIfChanged(ctx, root, message)
}

// makefiles removes the previously generated build files, reruns the
// generator over the whole tree and commits per-project changes.
func (c Command) makefiles(ctx context.Context) error {
	const op errors.Op = "generate.makefiles"
	pr := printer.FromContextOrDie(ctx)
	pr.Printf("Generating makefiles ...\n")

	for _, path := range c.Config.All() {
		repo, err := c.Open(filepath.Join(c.Root, path))
		if err != nil {
			return errors.E(op, err)
		}
		if err := repo.RemoveFromIndex(ctx, false, makefilePatterns...); err != nil {
			return errors.E(op, err)
		}
	}

	if err := c.runGenerator(ctx); err != nil {
		if !c.Unattended {
			return errors.E(op, errors.Generator, err)
		}
		// Unattended runs discard the partial state so a retry starts
		// clean.
		for _, path := range c.Config.All() {
			repo, openErr := c.Open(filepath.Join(c.Root, path))
			if openErr != nil {
				return errors.E(op, openErr)
			}
			if resetErr := repo.ResetHard(ctx); resetErr != nil {
				return errors.E(op, resetErr)
			}
		}
		return errors.E(op, errors.Generator, errors.Recoverable,
			fmt.Errorf("makefile generation failed: %w", err))
	}

	message := fmt.Sprintf("Update makefiles after merge of Chromium at r%d\n\n%s",
		c.Revision, projects.AutogenMessage)
	for _, path := range c.Config.All() {
		repo, err := c.Open(filepath.Join(c.Root, path))
		if err != nil {
			return errors.E(op, err)
		}
		for _, pattern := range makefilePatterns {
			// git add has no --ignore-unmatch, so a pattern matching
			// nothing errors; that is fine here.
			_ = repo.Add(ctx, true, pattern)
		}
		if err := commitIfChanged(ctx, repo, message); err != nil {
			return errors.E(op, err)
		}
	}
	return nil
}

func (c Command) runGenerator(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, c.Generator[0], c.Generator[1:]...)
	cmd.Dir = c.Root
	stderr := &bytes.Buffer{}
	cmd.Stdout = stderr
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", c.Generator[0], err, stderr.String())
	}
	return nil
}

// commitIfChanged creates a commit only when the index actually changed;
// no-op commits are forbidden.
func commitIfChanged(ctx context.Context, repo gitutil.Client, message string) error {
	modified, err := repo.ModifiedFilesInIndex(ctx)
	if err != nil {
		return err
	}
	if !modified {
		return nil
	}
	return repo.Commit(ctx, message)
}
