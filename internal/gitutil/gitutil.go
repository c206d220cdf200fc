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

// Package gitutil wraps the git binary behind a small client interface so
// the resolver, locator and orchestrator can be tested against an
// in-memory fake.
package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/android-webview/mergetool/internal/errors"
	"github.com/android-webview/mergetool/internal/types"
)

// NewLocalGitRunner returns a new GitLocalRunner for the given directory.
func NewLocalGitRunner(dir string) (*GitLocalRunner, error) {
	const op errors.Op = "gitutil.NewLocalGitRunner"
	p, err := exec.LookPath("git")
	if err != nil {
		return nil, errors.E(op, errors.Git,
			fmt.Errorf("no 'git' program on path: %w", err))
	}

	return &GitLocalRunner{
		gitPath: p,
		Dir:     dir,
	}, nil
}

// GitLocalRunner runs git commands in a local git repo.
type GitLocalRunner struct {
	// Path to the git executable.
	gitPath string

	// Dir is the directory the commands are run in.
	Dir string
}

type RunResult struct {
	Stdout string
	Stderr string
}

// Run runs a git command.
// Omit the 'git' part of the command.
// The first return value contains the output to Stdout and Stderr when
// running the command.
func (g *GitLocalRunner) Run(ctx context.Context, args ...string) (RunResult, error) {
	return g.run(ctx, false, args...)
}

// RunVerbose runs a git command, mirroring its output to the process
// streams in addition to capturing it.
func (g *GitLocalRunner) RunVerbose(ctx context.Context, args ...string) (RunResult, error) {
	return g.run(ctx, true, args...)
}

func (g *GitLocalRunner) run(ctx context.Context, verbose bool, args ...string) (RunResult, error) {
	const op errors.Op = "gitutil.run"

	cmd := exec.CommandContext(ctx, g.gitPath, args...)
	cmd.Dir = g.Dir
	cmd.Env = os.Environ()

	cmdStdout := &bytes.Buffer{}
	cmdStderr := &bytes.Buffer{}
	if verbose {
		cmd.Stdout = io.MultiWriter(cmdStdout, os.Stdout)
		cmd.Stderr = io.MultiWriter(cmdStderr, os.Stderr)
	} else {
		cmd.Stdout = cmdStdout
		cmd.Stderr = cmdStderr
	}

	err := cmd.Run()
	if err != nil {
		return RunResult{}, errors.E(op, errors.Git, &GitExecError{
			Args:   args,
			Err:    err,
			StdOut: cmdStdout.String(),
			StdErr: cmdStderr.String(),
		})
	}
	return RunResult{
		Stdout: cmdStdout.String(),
		Stderr: cmdStderr.String(),
	}, nil
}

type GitExecError struct {
	Args   []string
	Err    error
	StdErr string
	StdOut string
}

func (e *GitExecError) Error() string {
	b := new(strings.Builder)
	b.WriteString(e.Err.Error())
	b.WriteString(": ")
	b.WriteString(e.StdErr)
	return b.String()
}

// Commit is a single commit read from history.
type Commit struct {
	// SHA1 is the content hash of the commit.
	SHA1 string

	// Message is the commit message body.
	Message string
}

// Client is the set of version-control operations the tool needs. The
// production implementation is Repo; tests substitute a fake.
type Client interface {
	// ShowFile returns the contents of path as of rev.
	ShowFile(ctx context.Context, rev, path string) (string, error)

	// Fetch fetches from url. When refspecs are given they are forced, so
	// a cached temporary ref can be moved.
	Fetch(ctx context.Context, url string, refspecs ...string) error

	// CheckoutTrackingBranch checks out branch tracking track, creating
	// it. With reset, an existing branch is reset instead of failing.
	CheckoutTrackingBranch(ctx context.Context, branch, track string, reset bool) error

	// MergeNoCommit merges commit without committing. A conflicting merge
	// is not an error; conflicts are detected via ConflictedFiles.
	MergeNoCommit(ctx context.Context, commit string) error

	// ConflictedFiles lists paths with unresolved conflicts in the index.
	ConflictedFiles(ctx context.Context) ([]string, error)

	// Commit creates a commit from the index with the given message.
	Commit(ctx context.Context, message string) error

	// ModifiedFilesInIndex reports whether the index contains any staged
	// change.
	ModifiedFilesInIndex(ctx context.Context) (bool, error)

	// HasNewCommits reports whether commit has commits not reachable from
	// HEAD.
	HasNewCommits(ctx context.Context, commit string) (bool, error)

	// ShowCommit returns the commit rev with its message body.
	ShowCommit(ctx context.Context, rev string) (Commit, error)

	// LatestCommit returns the newest commit on branch whose message
	// matches grep.
	LatestCommit(ctx context.Context, branch, grep string) (Commit, error)

	// CommitsMatching returns the hashes of all commits on branch whose
	// message matches grep, newest first.
	CommitsMatching(ctx context.Context, branch, grep string) ([]string, error)

	// Push pushes refspec to remote.
	Push(ctx context.Context, remote, refspec string, force bool) error

	// RemoveFromIndex removes the given pathspecs from the index and the
	// working tree, ignoring pathspecs that match nothing.
	RemoveFromIndex(ctx context.Context, recursive bool, pathspecs ...string) error

	// Add stages the given pathspecs.
	Add(ctx context.Context, force bool, pathspecs ...string) error

	// ResetHard discards all uncommitted state.
	ResetHard(ctx context.Context) error
}

// Opener opens a Client for a project directory.
type Opener func(dir string) (Client, error)

// Open returns a Client backed by the git binary for the repo at dir.
func Open(dir string) (Client, error) {
	runner, err := NewLocalGitRunner(dir)
	if err != nil {
		return nil, err
	}
	return &Repo{runner: runner}, nil
}

// Repo implements Client by shelling out to git in a fixed directory.
type Repo struct {
	runner *GitLocalRunner
}

// Dir returns the directory the repo operates in.
func (r *Repo) Dir() string {
	return r.runner.Dir
}

func (r *Repo) ShowFile(ctx context.Context, rev, path string) (string, error) {
	const op errors.Op = "gitutil.ShowFile"
	rr, err := r.runner.Run(ctx, "show", fmt.Sprintf("%s:%s", rev, path))
	if err != nil {
		return "", errors.E(op, types.UniquePath(r.runner.Dir), err)
	}
	return rr.Stdout, nil
}

func (r *Repo) Fetch(ctx context.Context, url string, refspecs ...string) error {
	const op errors.Op = "gitutil.Fetch"
	args := []string{"fetch"}
	if len(refspecs) > 0 {
		args = append(args, "-f")
	}
	args = append(args, url)
	args = append(args, refspecs...)
	if _, err := r.runner.Run(ctx, args...); err != nil {
		return errors.E(op, types.UniquePath(r.runner.Dir), err)
	}
	return nil
}

func (r *Repo) CheckoutTrackingBranch(ctx context.Context, branch, track string, reset bool) error {
	const op errors.Op = "gitutil.CheckoutTrackingBranch"
	createFlag := "-b"
	if reset {
		createFlag = "-B"
	}
	if _, err := r.runner.Run(ctx, "checkout", createFlag, branch, "-t", track); err != nil {
		return errors.E(op, types.UniquePath(r.runner.Dir), err)
	}
	return nil
}

func (r *Repo) MergeNoCommit(ctx context.Context, commit string) error {
	const op errors.Op = "gitutil.MergeNoCommit"
	_, err := r.runner.Run(ctx, "merge", "--no-commit", commit)
	if err != nil {
		// A conflicting merge exits non-zero. That is expected here;
		// unresolved conflicts are caught by ConflictedFiles before the
		// merge commit is created.
		var execErr *GitExecError
		if errors.As(err, &execErr) {
			return nil
		}
		return errors.E(op, types.UniquePath(r.runner.Dir), err)
	}
	return nil
}

var conflictRE = regexp.MustCompile(`^(DD|AU|UD|UA|DU|AA|UU) (.*)$`)

func (r *Repo) ConflictedFiles(ctx context.Context) ([]string, error) {
	const op errors.Op = "gitutil.ConflictedFiles"
	rr, err := r.runner.Run(ctx, "status", "--porcelain")
	if err != nil {
		return nil, errors.E(op, types.UniquePath(r.runner.Dir), err)
	}
	var conflicted []string
	for _, line := range strings.Split(rr.Stdout, "\n") {
		if m := conflictRE.FindStringSubmatch(line); m != nil {
			conflicted = append(conflicted, m[2])
		}
	}
	return conflicted, nil
}

func (r *Repo) Commit(ctx context.Context, message string) error {
	const op errors.Op = "gitutil.Commit"
	if _, err := r.runner.Run(ctx, "commit", "-m", message); err != nil {
		return errors.E(op, types.UniquePath(r.runner.Dir), err)
	}
	return nil
}

var modifiedRE = regexp.MustCompile(`(?m)^[MADRC]`)

func (r *Repo) ModifiedFilesInIndex(ctx context.Context) (bool, error) {
	const op errors.Op = "gitutil.ModifiedFilesInIndex"
	rr, err := r.runner.Run(ctx, "status", "--porcelain")
	if err != nil {
		return false, errors.E(op, types.UniquePath(r.runner.Dir), err)
	}
	return modifiedRE.MatchString(rr.Stdout), nil
}

func (r *Repo) HasNewCommits(ctx context.Context, commit string) (bool, error) {
	const op errors.Op = "gitutil.HasNewCommits"
	rr, err := r.runner.Run(ctx, "rev-list", "-1", "HEAD.."+commit)
	if err != nil {
		return false, errors.E(op, types.UniquePath(r.runner.Dir), err)
	}
	return strings.TrimSpace(rr.Stdout) != "", nil
}

func (r *Repo) ShowCommit(ctx context.Context, rev string) (Commit, error) {
	const op errors.Op = "gitutil.ShowCommit"
	rr, err := r.runner.Run(ctx, "show", "-s", "--format=%H%n%b", rev)
	if err != nil {
		return Commit{}, errors.E(op, types.UniquePath(r.runner.Dir), err)
	}
	return splitCommit(rr.Stdout)
}

func (r *Repo) LatestCommit(ctx context.Context, branch, grep string) (Commit, error) {
	const op errors.Op = "gitutil.LatestCommit"
	rr, err := r.runner.Run(ctx, "log", "-n1", "--grep="+grep, "--format=%H%n%b", branch)
	if err != nil {
		return Commit{}, errors.E(op, types.UniquePath(r.runner.Dir), err)
	}
	if strings.TrimSpace(rr.Stdout) == "" {
		return Commit{}, errors.E(op, errors.Git, types.UniquePath(r.runner.Dir),
			fmt.Errorf("no commit matching %q on %s", grep, branch))
	}
	return splitCommit(rr.Stdout)
}

func (r *Repo) CommitsMatching(ctx context.Context, branch, grep string) ([]string, error) {
	const op errors.Op = "gitutil.CommitsMatching"
	rr, err := r.runner.Run(ctx, "log", "--grep="+grep, "--format=%H", branch)
	if err != nil {
		return nil, errors.E(op, types.UniquePath(r.runner.Dir), err)
	}
	return strings.Fields(rr.Stdout), nil
}

func (r *Repo) Push(ctx context.Context, remote, refspec string, force bool) error {
	const op errors.Op = "gitutil.Push"
	args := []string{"push"}
	if force {
		args = append(args, "-f")
	}
	args = append(args, remote, refspec)
	if _, err := r.runner.Run(ctx, args...); err != nil {
		return errors.E(op, types.UniquePath(r.runner.Dir), err)
	}
	return nil
}

func (r *Repo) RemoveFromIndex(ctx context.Context, recursive bool, pathspecs ...string) error {
	const op errors.Op = "gitutil.RemoveFromIndex"
	args := []string{"rm"}
	if recursive {
		args = append(args, "-rf")
	}
	args = append(args, "--ignore-unmatch")
	args = append(args, pathspecs...)
	if _, err := r.runner.Run(ctx, args...); err != nil {
		return errors.E(op, types.UniquePath(r.runner.Dir), err)
	}
	return nil
}

func (r *Repo) Add(ctx context.Context, force bool, pathspecs ...string) error {
	const op errors.Op = "gitutil.Add"
	args := []string{"add"}
	if force {
		args = append(args, "-f")
	}
	args = append(args, pathspecs...)
	if _, err := r.runner.Run(ctx, args...); err != nil {
		return errors.E(op, types.UniquePath(r.runner.Dir), err)
	}
	return nil
}

func (r *Repo) ResetHard(ctx context.Context) error {
	const op errors.Op = "gitutil.ResetHard"
	if _, err := r.runner.Run(ctx, "reset", "--hard"); err != nil {
		return errors.E(op, types.UniquePath(r.runner.Dir), err)
	}
	return nil
}

// splitCommit parses "<hash>\n<body>" output from git show/log.
func splitCommit(out string) (Commit, error) {
	const op errors.Op = "gitutil.splitCommit"
	hash, body, _ := strings.Cut(out, "\n")
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return Commit{}, errors.E(op, errors.Git, fmt.Errorf("empty commit output"))
	}
	return Commit{SHA1: hash, Message: body}, nil
}
