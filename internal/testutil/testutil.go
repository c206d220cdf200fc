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

// Package testutil provides an in-memory fake of the version-control
// client and other helpers shared by tests.
package testutil

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/otiai10/copy"

	"github.com/android-webview/mergetool/internal/gitutil"
)

// CopyDir copies a fixture tree into a fresh temp directory so a test can
// mutate it.
func CopyDir(t *testing.T, src string) string {
	t.Helper()
	dst := t.TempDir()
	if err := copy.Copy(src, dst); err != nil {
		t.Fatalf("copying fixture %s: %v", src, err)
	}
	return dst
}

// FakeRepo is an in-memory gitutil.Client. Configured fields drive the
// answers; every mutating call is recorded for assertions.
type FakeRepo struct {
	// FilesAtRev maps revision to path to file contents for ShowFile.
	FilesAtRev map[string]map[string]string

	// CommitsByRev maps revision to the commit returned by ShowCommit.
	CommitsByRev map[string]gitutil.Commit

	// Log is the branch history, newest first, searched by LatestCommit
	// and CommitsMatching.
	Log []gitutil.Commit

	// NewCommits maps a revision to whether HEAD..rev is non-empty.
	NewCommits map[string]bool

	// Conflicted is returned by ConflictedFiles.
	Conflicted []string

	// IndexModified is returned by ModifiedFilesInIndex.
	IndexModified bool

	// ModifyOnRemove makes RemoveFromIndex mark the index modified, as a
	// removal of existing content would.
	ModifyOnRemove bool

	// ModifyOnAdd makes Add mark the index modified.
	ModifyOnAdd bool

	// FetchErr, if set, is returned by Fetch.
	FetchErr error

	// Recorded activity.
	Checkouts []string
	Fetches   []string
	Merges    []string
	Commits   []string
	Pushes    []string
	Removed   [][]string
	Added     [][]string
	Resets    int
}

var _ gitutil.Client = &FakeRepo{}

func (f *FakeRepo) ShowFile(_ context.Context, rev, path string) (string, error) {
	if content, ok := f.FilesAtRev[rev][path]; ok {
		return content, nil
	}
	return "", fmt.Errorf("fatal: path %q does not exist in %q", path, rev)
}

func (f *FakeRepo) Fetch(_ context.Context, url string, refspecs ...string) error {
	if f.FetchErr != nil {
		return f.FetchErr
	}
	rec := url
	for _, rs := range refspecs {
		rec += " " + rs
	}
	f.Fetches = append(f.Fetches, rec)
	return nil
}

func (f *FakeRepo) CheckoutTrackingBranch(_ context.Context, branch, track string, reset bool) error {
	f.Checkouts = append(f.Checkouts, fmt.Sprintf("%s %s reset=%t", branch, track, reset))
	return nil
}

func (f *FakeRepo) MergeNoCommit(_ context.Context, commit string) error {
	f.Merges = append(f.Merges, commit)
	return nil
}

func (f *FakeRepo) ConflictedFiles(context.Context) ([]string, error) {
	return f.Conflicted, nil
}

func (f *FakeRepo) Commit(_ context.Context, message string) error {
	f.Commits = append(f.Commits, message)
	f.IndexModified = false
	return nil
}

func (f *FakeRepo) ModifiedFilesInIndex(context.Context) (bool, error) {
	return f.IndexModified, nil
}

func (f *FakeRepo) HasNewCommits(_ context.Context, commit string) (bool, error) {
	return f.NewCommits[commit], nil
}

func (f *FakeRepo) ShowCommit(_ context.Context, rev string) (gitutil.Commit, error) {
	if c, ok := f.CommitsByRev[rev]; ok {
		return c, nil
	}
	return gitutil.Commit{}, fmt.Errorf("fatal: bad object %s", rev)
}

func (f *FakeRepo) LatestCommit(_ context.Context, branch, grep string) (gitutil.Commit, error) {
	re, err := regexp.Compile(grep)
	if err != nil {
		return gitutil.Commit{}, err
	}
	for _, c := range f.Log {
		if re.MatchString(c.Message) {
			return c, nil
		}
	}
	return gitutil.Commit{}, fmt.Errorf("no commit matching %q on %s", grep, branch)
}

func (f *FakeRepo) CommitsMatching(_ context.Context, _, grep string) ([]string, error) {
	re, err := regexp.Compile(grep)
	if err != nil {
		return nil, err
	}
	var hashes []string
	for _, c := range f.Log {
		if re.MatchString(c.Message) {
			hashes = append(hashes, c.SHA1)
		}
	}
	return hashes, nil
}

func (f *FakeRepo) Push(_ context.Context, remote, refspec string, force bool) error {
	f.Pushes = append(f.Pushes, fmt.Sprintf("%s %s force=%t", remote, refspec, force))
	return nil
}

func (f *FakeRepo) RemoveFromIndex(_ context.Context, _ bool, pathspecs ...string) error {
	f.Removed = append(f.Removed, pathspecs)
	if f.ModifyOnRemove {
		f.IndexModified = true
	}
	return nil
}

func (f *FakeRepo) Add(_ context.Context, _ bool, pathspecs ...string) error {
	f.Added = append(f.Added, pathspecs)
	if f.ModifyOnAdd {
		f.IndexModified = true
	}
	return nil
}

func (f *FakeRepo) ResetHard(context.Context) error {
	f.Resets++
	return nil
}

// FakeOpener maps project directories to fake repos.
type FakeOpener struct {
	Repos map[string]*FakeRepo
}

// Open returns the fake repo for dir.
func (o *FakeOpener) Open(dir string) (gitutil.Client, error) {
	if r, ok := o.Repos[dir]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("no fake repo registered for %s", dir)
}

// FakeScanner is a canned licenses.Scanner.
type FakeScanner struct {
	Incompatible []string
	Notice       string
	Err          error
}

func (s *FakeScanner) IncompatibleDirectories(context.Context) ([]string, error) {
	return s.Incompatible, s.Err
}

func (s *FakeScanner) NoticeText(context.Context) (string, error) {
	return s.Notice, s.Err
}
