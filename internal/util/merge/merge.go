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

// Package merge contains the orchestration of one snapshot merge: every
// whitelisted third-party project and the root tree are merged at the
// revisions pinned in the upstream manifest, and incompatibly licensed
// content is excluded.
package merge

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/android-webview/mergetool/internal/deps"
	"github.com/android-webview/mergetool/internal/errors"
	"github.com/android-webview/mergetool/internal/gitutil"
	"github.com/android-webview/mergetool/internal/licenses"
	"github.com/android-webview/mergetool/internal/printer"
	"github.com/android-webview/mergetool/internal/projects"
	"github.com/android-webview/mergetool/internal/revision"
	"github.com/android-webview/mergetool/internal/types"
)

// Command merges the upstream tree into the local repository at a pinned
// revision.
type Command struct {
	// Pointer is the fully resolved revision to merge.
	Pointer revision.Pointer

	// Root is the repository root directory.
	Root string

	// Config describes the projects, branches and remotes involved.
	Config projects.Config

	// Unattended selects non-interactive behavior: existing merge
	// branches are reset instead of failing.
	Unattended bool

	// Open opens the version-control client for a project directory.
	// Defaults to gitutil.Open.
	Open gitutil.Opener

	// Scanner recomputes the incompatibly licensed directories after the
	// exclusions have been applied.
	Scanner licenses.Scanner

	// LoadKnownIssues loads the exclusion table from the merged tree.
	// Defaults to licenses.LoadKnownIssues.
	LoadKnownIssues func(root string) (licenses.KnownIssues, error)
}

// Result reports what a merge run did.
type Result struct {
	// NewCommits is false when the tracked branch had nothing new at the
	// pinned revision and no commit was created.
	NewCommits bool

	// Branch is the merge branch holding the result.
	Branch string
}

// DefaultValues fills in the production collaborators.
func (c *Command) DefaultValues() {
	if c.Open == nil {
		c.Open = gitutil.Open
	}
	if c.LoadKnownIssues == nil {
		c.LoadKnownIssues = licenses.LoadKnownIssues
	}
}

// Run performs the merge. Partial progress is left in place on failure so
// a human can inspect it; only the caller decides whether to retry.
func (c Command) Run(ctx context.Context) (Result, error) {
	const op errors.Op = "merge.Run"
	(&c).DefaultValues()
	pr := printer.FromContextOrDie(ctx)

	root, err := c.Open(c.Root)
	if err != nil {
		return Result{}, errors.E(op, err)
	}

	hasNew, err := root.HasNewCommits(ctx, c.Pointer.SHA1)
	if err != nil {
		return Result{}, errors.E(op, err)
	}
	if !hasNew {
		pr.Printf("No new commits to merge at r%d (%s)\n",
			c.Pointer.SVNRevision, c.Pointer.SHA1)
		return Result{NewCommits: false}, nil
	}

	pr.Printf("Snapshotting Chromium at r%d (%s)\n",
		c.Pointer.SVNRevision, c.Pointer.SHA1)

	manifest, err := deps.FetchManifest(ctx, root, c.Pointer.SHA1, nil)
	if err != nil {
		return Result{}, errors.E(op, err)
	}
	info, err := deps.ExtractMergeInfo(c.Config.ThirdParty, manifest)
	if err != nil {
		return Result{}, errors.E(op, err)
	}

	branch := c.Config.MergeBranch(c.Pointer.SVNRevision)

	if err := c.mergeProjects(ctx, branch, info); err != nil {
		return Result{}, errors.E(op, err)
	}
	if err := c.mergeRoot(ctx, root, branch); err != nil {
		return Result{}, errors.E(op, err)
	}
	if err := c.applyExclusions(ctx); err != nil {
		return Result{}, errors.E(op, err)
	}
	if err := c.checkNoIncompatible(ctx); err != nil {
		return Result{}, errors.E(op, err)
	}
	return Result{NewCommits: true, Branch: branch}, nil
}

func (c Command) mergeProjects(ctx context.Context, branch string, info map[string]deps.MergeInfo) error {
	const op errors.Op = "merge.mergeProjects"
	pr := printer.FromContextOrDie(ctx)

	for _, path := range c.Config.ThirdParty {
		mi := info[path]
		dir := filepath.Join(c.Root, path)
		repo, err := c.Open(dir)
		if err != nil {
			return errors.E(op, err)
		}

		err = repo.CheckoutTrackingBranch(ctx, branch, c.Config.TrackedBranch(path), c.Unattended)
		if err != nil {
			return errors.E(op, err)
		}
		if !c.Config.FlatHistory[path] {
			// The project has no local mirror, so its pinned commit must
			// be fetched from its own source location.
			pr.Printf("Fetching project %s at %s ...\n", path, mi.SHA1)
			if err := repo.Fetch(ctx, mi.URL); err != nil {
				return errors.E(op, err)
			}
		}

		hasNew, err := repo.HasNewCommits(ctx, mi.SHA1)
		if err != nil {
			return errors.E(op, err)
		}
		if !hasNew {
			pr.Printf("No new commits to merge in project %s\n", path)
			continue
		}

		pr.Printf("Merging project %s at %s ...\n", path, mi.SHA1)
		if err := repo.MergeNoCommit(ctx, mi.SHA1); err != nil {
			return errors.E(op, err)
		}
		message := fmt.Sprintf("Merge %s from %s at %s\n\n%s",
			path, mi.URL, mi.SHA1, projects.AutogenMessage)
		if err := commitMerge(ctx, repo, dir, message); err != nil {
			return errors.E(op, err)
		}
	}
	return nil
}

func (c Command) mergeRoot(ctx context.Context, root gitutil.Client, branch string) error {
	const op errors.Op = "merge.mergeRoot"
	pr := printer.FromContextOrDie(ctx)

	err := root.CheckoutTrackingBranch(ctx, branch, c.Config.TrackedBranch(""), c.Unattended)
	if err != nil {
		return errors.E(op, err)
	}
	pr.Printf("Merging Chromium at r%d (%s) ...\n", c.Pointer.SVNRevision, c.Pointer.SHA1)
	if err := root.MergeNoCommit(ctx, c.Pointer.SHA1); err != nil {
		return errors.E(op, err)
	}
	message := fmt.Sprintf("Merge Chromium at r%d (%s)\n\n%s",
		c.Pointer.SVNRevision, c.Pointer.SHA1, projects.AutogenMessage)
	return commitMerge(ctx, root, c.Root, message)
}

// commitMerge verifies that no conflicts remain and creates the merge
// commit. Residual conflicts need human resolution, so they fail the run
// fatally.
func commitMerge(ctx context.Context, repo gitutil.Client, dir, message string) error {
	const op errors.Op = "merge.commitMerge"
	conflicted, err := repo.ConflictedFiles(ctx)
	if err != nil {
		return errors.E(op, err)
	}
	if len(conflicted) > 0 {
		return errors.E(op, errors.Git, types.UniquePath(dir),
			fmt.Errorf("unresolved merge conflicts in:\n%s", strings.Join(conflicted, "\n")))
	}
	if err := repo.Commit(ctx, message); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// applyExclusions removes the known incompatibly licensed content from
// each affected project, committing only when the removal changed the
// index.
func (c Command) applyExclusions(ctx context.Context) error {
	const op errors.Op = "merge.applyExclusions"
	pr := printer.FromContextOrDie(ctx)

	known, err := c.LoadKnownIssues(c.Root)
	if err != nil {
		return errors.E(op, err)
	}
	paths := make([]string, 0, len(known))
	for path := range known {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		excludes := known[path]
		dir := filepath.Join(c.Root, path)
		for _, x := range excludes {
			pr.OptPrintf(printer.NewOpt().Project(types.UniquePath(dir)), "excluding %s\n", x)
		}
		repo, err := c.Open(dir)
		if err != nil {
			return errors.E(op, err)
		}
		if err := repo.RemoveFromIndex(ctx, true, excludes...); err != nil {
			return errors.E(op, err)
		}
		modified, err := repo.ModifiedFilesInIndex(ctx)
		if err != nil {
			return errors.E(op, err)
		}
		if modified {
			if err := repo.Commit(ctx, "Exclude unwanted directories"); err != nil {
				return errors.E(op, err)
			}
		}
	}
	return nil
}

// checkNoIncompatible fails the run when incompatibly licensed
// directories remain after the exclusions. This is recoverable in the
// sense that a human updates the exclusion table and re-runs.
func (c Command) checkNoIncompatible(ctx context.Context) error {
	const op errors.Op = "merge.checkNoIncompatible"
	leftOver, err := c.Scanner.IncompatibleDirectories(ctx)
	if err != nil {
		return errors.E(op, errors.License, err)
	}
	if len(leftOver) > 0 {
		return errors.E(op, errors.License, errors.Recoverable,
			fmt.Errorf("incompatibly licensed directories remain:\n%s",
				strings.Join(leftOver, "\n")))
	}
	return nil
}
