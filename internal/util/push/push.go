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

// Package push publishes the branches of a previously completed merge.
package push

import (
	"context"
	"path/filepath"

	"github.com/android-webview/mergetool/internal/errors"
	"github.com/android-webview/mergetool/internal/gitutil"
	"github.com/android-webview/mergetool/internal/printer"
	"github.com/android-webview/mergetool/internal/projects"
)

// Command pushes the merge branches of the given revision to the remotes.
type Command struct {
	// Revision identifies the completed merge to push.
	Revision int

	// Root is the repository root directory.
	Root string

	// Config describes the projects and push branches.
	Config projects.Config

	// Open opens the version-control client for a project directory.
	// Defaults to gitutil.Open.
	Open gitutil.Opener
}

// Run force-pushes the merge branch of every project to each configured
// branch, in order.
func (c Command) Run(ctx context.Context) error {
	const op errors.Op = "push.Run"
	if c.Open == nil {
		c.Open = gitutil.Open
	}
	pr := printer.FromContextOrDie(ctx)

	src := c.Config.MergeBranch(c.Revision)
	for _, branch := range c.Config.PushBranches {
		pr.Printf("Pushing to server (%s) ...\n", branch)
		for _, path := range c.Config.All() {
			pr.Printf("Pushing %s\n", path)
			repo, err := c.Open(filepath.Join(c.Root, path))
			if err != nil {
				return errors.E(op, err)
			}
			err = repo.Push(ctx, c.Config.Remote(path), src+":"+branch, true)
			if err != nil {
				return errors.E(op, err)
			}
		}
	}
	return nil
}
