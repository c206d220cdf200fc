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

package merge_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/android-webview/mergetool/internal/errors"
	"github.com/android-webview/mergetool/internal/licenses"
	"github.com/android-webview/mergetool/internal/printer/fake"
	"github.com/android-webview/mergetool/internal/projects"
	"github.com/android-webview/mergetool/internal/revision"
	"github.com/android-webview/mergetool/internal/testutil"
	. "github.com/android-webview/mergetool/internal/util/merge"
)

const (
	rootDir  = "/repo"
	rootSHA  = "1111111111111111111111111111111111111111"
	alphaSHA = "2222222222222222222222222222222222222222"
	flatSHA  = "3333333333333333333333333333333333333333"
)

const fixtureManifest = `
deps = {
  "src/third_party/alpha": "http://example.com/alpha.git@` + alphaSHA + `",
  "src/third_party/flat": "http://example.com/flat.git@` + flatSHA + `",
}
`

type fixture struct {
	cmd   Command
	root  *testutil.FakeRepo
	alpha *testutil.FakeRepo
	flat  *testutil.FakeRepo
}

func newFixture() *fixture {
	f := &fixture{
		root: &testutil.FakeRepo{
			NewCommits: map[string]bool{rootSHA: true},
			FilesAtRev: map[string]map[string]string{
				rootSHA: {".DEPS.git": fixtureManifest},
			},
		},
		alpha: &testutil.FakeRepo{NewCommits: map[string]bool{alphaSHA: true}},
		flat:  &testutil.FakeRepo{NewCommits: map[string]bool{flatSHA: true}},
	}
	opener := &testutil.FakeOpener{Repos: map[string]*testutil.FakeRepo{
		rootDir: f.root,
		filepath.Join(rootDir, "third_party/alpha"): f.alpha,
		filepath.Join(rootDir, "third_party/flat"):  f.flat,
	}}
	f.cmd = Command{
		Pointer: revision.Pointer{SVNRevision: 100, SHA1: rootSHA},
		Root:    rootDir,
		Config: projects.Config{
			ThirdParty:        []string{"third_party/alpha", "third_party/flat"},
			FlatHistory:       map[string]bool{"third_party/flat": true},
			IntegrationBranch: "master-chromium",
		},
		Open:    opener.Open,
		Scanner: &testutil.FakeScanner{},
		LoadKnownIssues: func(string) (licenses.KnownIssues, error) {
			return licenses.KnownIssues{}, nil
		},
	}
	return f
}

func TestRun_noNewCommits(t *testing.T) {
	f := newFixture()
	f.root.NewCommits[rootSHA] = false

	result, err := f.cmd.Run(fake.CtxWithNilPrinter())
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	assert.False(t, result.NewCommits)
	assert.Empty(t, f.root.Checkouts)
	assert.Empty(t, f.alpha.Merges)
	assert.Empty(t, f.flat.Merges)
}

func TestRun_fullMerge(t *testing.T) {
	f := newFixture()

	result, err := f.cmd.Run(fake.CtxWithNilPrinter())
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	assert.True(t, result.NewCommits)
	assert.Equal(t, "merge-from-chromium-100", result.Branch)

	// Each project and the root are checked out on the merge branch
	// tracking their own remote's integration branch.
	assert.Equal(t, []string{"merge-from-chromium-100 goog/master-chromium reset=false"},
		f.alpha.Checkouts)
	assert.Equal(t, []string{"merge-from-chromium-100 history/master-chromium reset=false"},
		f.flat.Checkouts)
	assert.Equal(t, []string{"merge-from-chromium-100 history/master-chromium reset=false"},
		f.root.Checkouts)

	// Only the non-mirrored project fetches from its pinned URL.
	assert.Equal(t, []string{"http://example.com/alpha.git"}, f.alpha.Fetches)
	assert.Empty(t, f.flat.Fetches)

	assert.Equal(t, []string{alphaSHA}, f.alpha.Merges)
	assert.Equal(t, []string{flatSHA}, f.flat.Merges)
	assert.Equal(t, []string{rootSHA}, f.root.Merges)

	if assert.Len(t, f.alpha.Commits, 1) {
		assert.Contains(t, f.alpha.Commits[0],
			"Merge third_party/alpha from http://example.com/alpha.git at "+alphaSHA)
		assert.Contains(t, f.alpha.Commits[0], projects.AutogenMessage)
	}
	if assert.Len(t, f.root.Commits, 1) {
		assert.Contains(t, f.root.Commits[0], "Merge Chromium at r100 ("+rootSHA+")")
		assert.Contains(t, f.root.Commits[0], projects.AutogenMessage)
	}
}

func TestRun_unattendedResetsMergeBranch(t *testing.T) {
	f := newFixture()
	f.cmd.Unattended = true

	_, err := f.cmd.Run(fake.CtxWithNilPrinter())
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	assert.Equal(t, []string{"merge-from-chromium-100 history/master-chromium reset=true"},
		f.root.Checkouts)
}

func TestRun_projectWithoutNewCommitsIsSkipped(t *testing.T) {
	f := newFixture()
	f.alpha.NewCommits[alphaSHA] = false

	result, err := f.cmd.Run(fake.CtxWithNilPrinter())
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	assert.True(t, result.NewCommits)
	assert.Empty(t, f.alpha.Merges)
	assert.Empty(t, f.alpha.Commits)
	// The rest of the run proceeds regardless.
	assert.Equal(t, []string{flatSHA}, f.flat.Merges)
	assert.Equal(t, []string{rootSHA}, f.root.Merges)
}

func TestRun_conflictsAreFatal(t *testing.T) {
	f := newFixture()
	f.alpha.Conflicted = []string{"net/socket.cc", "net/socket.h"}

	_, err := f.cmd.Run(fake.CtxWithNilPrinter())
	if !assert.Error(t, err) {
		t.FailNow()
	}
	assert.Contains(t, err.Error(), "net/socket.cc")
	assert.False(t, errors.IsRecoverable(err))
	// No merge commit is created while conflicts remain.
	assert.Empty(t, f.alpha.Commits)
}

func TestRun_exclusionsCommittedOnlyWhenTreeChanged(t *testing.T) {
	testCases := map[string]struct {
		modifies    bool
		wantCommits int
	}{
		"removal changed the index": {modifies: true, wantCommits: 2},
		"nothing there to remove":   {modifies: false, wantCommits: 1},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			f := newFixture()
			f.alpha.ModifyOnRemove = tc.modifies
			f.cmd.LoadKnownIssues = func(string) (licenses.KnownIssues, error) {
				return licenses.KnownIssues{
					"third_party/alpha": {"lgpl_dir", "gpl_dir"},
				}, nil
			}

			_, err := f.cmd.Run(fake.CtxWithNilPrinter())
			if !assert.NoError(t, err) {
				t.FailNow()
			}
			assert.Equal(t, [][]string{{"lgpl_dir", "gpl_dir"}}, f.alpha.Removed)
			if assert.Len(t, f.alpha.Commits, tc.wantCommits) {
				if tc.modifies {
					assert.Equal(t, "Exclude unwanted directories",
						f.alpha.Commits[len(f.alpha.Commits)-1])
				}
			}
		})
	}
}

func TestRun_leftoverIncompatibleIsRecoverable(t *testing.T) {
	f := newFixture()
	f.cmd.Scanner = &testutil.FakeScanner{
		Incompatible: []string{"third_party/surprise"},
	}

	_, err := f.cmd.Run(fake.CtxWithNilPrinter())
	if !assert.Error(t, err) {
		t.FailNow()
	}
	assert.Contains(t, err.Error(), "third_party/surprise")
	assert.True(t, errors.IsRecoverable(err))
}

func TestRun_whitelistDriftIsRecoverable(t *testing.T) {
	f := newFixture()
	f.cmd.Config.ThirdParty = append(f.cmd.Config.ThirdParty, "third_party/unknown")

	_, err := f.cmd.Run(fake.CtxWithNilPrinter())
	if !assert.Error(t, err) {
		t.FailNow()
	}
	assert.Contains(t, err.Error(), "third_party/unknown")
	assert.True(t, errors.IsRecoverable(err))
}
