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

// Package cmdsnapshot carries the command line surface of the tool. A
// single command takes a snapshot of the Chromium tree at the requested
// revision and merges it into this repository, with flags for the push and
// query modes.
package cmdsnapshot

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/android-webview/mergetool/internal/errors"
	"github.com/android-webview/mergetool/internal/gitutil"
	"github.com/android-webview/mergetool/internal/licenses"
	"github.com/android-webview/mergetool/internal/printer"
	"github.com/android-webview/mergetool/internal/projects"
	"github.com/android-webview/mergetool/internal/revision"
	"github.com/android-webview/mergetool/internal/util/generate"
	"github.com/android-webview/mergetool/internal/util/merge"
	"github.com/android-webview/mergetool/internal/util/push"
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context) *Runner {
	r := &Runner{
		ctx:    ctx,
		Config: projects.Default(),
	}
	c := &cobra.Command{
		Use:   "mergetool",
		Short: "Merge Chromium into the Android tree",
		Long: "Takes a snapshot of the Chromium tree at the specified Chromium SVN\n" +
			"revision and merges it into this repository. Paths marked as excluded\n" +
			"for license reasons are removed as part of the merge. Also generates\n" +
			"Android makefiles and a top-level NOTICE file suitable for use in the\n" +
			"Android build.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE:       r.preRunE,
		RunE:          r.runE,
	}
	c.Flags().StringVar(&r.svnRevision, "svn_revision", "",
		"merge to the specified Chromium SVN revision rather than the current LKGR; "+
			"pass HEAD to merge from tip of tree")
	c.Flags().StringVar(&r.sha1, "sha1", "",
		"merge to the specified Chromium sha1 from the tracked upstream branch rather "+
			"than the current LKGR; only one of svn_revision and sha1 may be given")
	c.Flags().BoolVar(&r.push, "push", false,
		"push the result of a previous merge to the server; svn_revision must be given")
	c.Flags().BoolVar(&r.getLKGR, "get_lkgr", false,
		"just print the current LKGR on stdout and exit")
	c.Flags().BoolVar(&r.getHead, "get_head", false,
		"just print the current HEAD revision on stdout and exit")
	c.Flags().BoolVar(&r.unattended, "unattended", false,
		"run in unattended mode")
	c.Flags().IntVar(&r.NoChangesExit, "no_changes_exit", 0,
		"exit code to use if there are no changes to merge, for scripts")
	r.Command = c
	return r
}

// Runner contains the run function.
type Runner struct {
	ctx     context.Context
	Command *cobra.Command
	Config  projects.Config

	svnRevision string
	sha1        string
	push        bool
	getLKGR     bool
	getHead     bool
	unattended  bool

	// NoChangesExit is the exit code for a run that found nothing to
	// merge.
	NoChangesExit int

	// NoChanges is set after a run that found nothing to merge.
	NoChanges bool
}

func (r *Runner) preRunE(_ *cobra.Command, _ []string) error {
	const op errors.Op = "cmdsnapshot.preRunE"
	if _, err := projects.RepositoryRoot(); err != nil {
		return errors.E(op, err)
	}
	if r.svnRevision != "" && r.sha1 != "" {
		return errors.E(op, errors.InvalidParam,
			fmt.Errorf("only one of --svn_revision and --sha1 may be given"))
	}
	if r.push && r.svnRevision == "" {
		return errors.E(op, errors.InvalidParam,
			fmt.Errorf("--push requires --svn_revision"))
	}
	return nil
}

func (r *Runner) runE(c *cobra.Command, _ []string) error {
	const op errors.Op = "cmdsnapshot.runE"

	root, err := projects.RepositoryRoot()
	if err != nil {
		return errors.E(op, err)
	}

	ctx := r.ctx
	if r.getHead {
		// Informational output would corrupt the machine-read result.
		ctx = printer.WithContext(ctx, printer.New(io.Discard, io.Discard))
	}

	rootClient, err := gitutil.Open(root)
	if err != nil {
		return errors.E(op, err)
	}
	locator := &revision.Locator{
		Client:  rootClient,
		Branch:  r.Config.UpstreamBranch,
		LKGRURL: r.Config.LKGRURL,
	}

	switch {
	case r.getLKGR:
		lkgr, err := locator.LKGR(ctx)
		if err != nil {
			return errors.E(op, err)
		}
		fmt.Fprintf(c.OutOrStdout(), "%d\n", lkgr)
		return nil

	case r.getHead:
		ptr, err := locator.Head(ctx)
		if err != nil {
			return errors.E(op, err)
		}
		fmt.Fprintf(c.OutOrStdout(), "%d\n", ptr.SVNRevision)
		return nil

	case r.push:
		rev, err := strconv.Atoi(r.svnRevision)
		if err != nil {
			return errors.E(op, errors.InvalidParam,
				fmt.Errorf("--push needs a numeric --svn_revision, got %q", r.svnRevision))
		}
		return push.Command{
			Revision: rev,
			Root:     root,
			Config:   r.Config,
		}.Run(ctx)

	default:
		return r.snapshot(ctx, root, locator)
	}
}

// snapshot resolves the revision, merges, and regenerates the derived
// artifacts.
func (r *Runner) snapshot(ctx context.Context, root string, locator *revision.Locator) error {
	const op errors.Op = "cmdsnapshot.snapshot"

	ptr, err := locator.Locate(ctx, r.svnRevision, r.sha1)
	if err != nil {
		return errors.E(op, err)
	}

	scanner := licenses.NewToolScanner(root)
	result, err := merge.Command{
		Pointer:    ptr,
		Root:       root,
		Config:     r.Config,
		Unattended: r.unattended,
		Scanner:    scanner,
	}.Run(ctx)
	if err != nil {
		return errors.E(op, err)
	}
	if !result.NewCommits {
		r.NoChanges = true
		return nil
	}

	err = generate.Command{
		Revision:   ptr.SVNRevision,
		Root:       root,
		Config:     r.Config,
		Unattended: r.unattended,
		Scanner:    scanner,
	}.Run(ctx)
	if err != nil {
		return errors.E(op, err)
	}
	return nil
}
