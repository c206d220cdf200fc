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

package revision_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/android-webview/mergetool/internal/errors"
	"github.com/android-webview/mergetool/internal/gitutil"
	. "github.com/android-webview/mergetool/internal/revision"
	"github.com/android-webview/mergetool/internal/testutil"
)

const upstreamBranch = "refs/remotes/history/upstream-master"

func trailer(rev string) string {
	return "git-svn-id: http://src.chromium.org/svn/trunk/src@" + rev + " 0039d316-1c4b-4281-b951-d872f2087c98"
}

func TestLocate_bySHA1(t *testing.T) {
	repo := &testutil.FakeRepo{
		CommitsByRev: map[string]gitutil.Commit{
			"aaaa": {SHA1: "aaaa", Message: "Roll deps\n\n" + trailer("12345") + "\n"},
			"bbbb": {SHA1: "bbbb", Message: "No trailer here\n"},
		},
	}
	l := &Locator{Client: repo, Branch: upstreamBranch}

	ptr, err := l.Locate(context.Background(), "", "aaaa")
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	assert.Equal(t, Pointer{SVNRevision: 12345, SHA1: "aaaa"}, ptr)

	_, err = l.Locate(context.Background(), "", "bbbb")
	if !assert.Error(t, err) {
		t.FailNow()
	}
	assert.Contains(t, err.Error(), "no git-svn-id trailer")
	assert.False(t, errors.IsRecoverable(err))
}

func TestLocate_head(t *testing.T) {
	repo := &testutil.FakeRepo{
		Log: []gitutil.Commit{
			{SHA1: "cccc", Message: "Newest\n\n" + trailer("200") + " \n"},
			{SHA1: "bbbb", Message: "Middle\n\n" + trailer("150") + " \n"},
			{SHA1: "aaaa", Message: "Oldest\n\n" + trailer("100") + " \n"},
		},
	}
	l := &Locator{Client: repo, Branch: upstreamBranch}

	ptr, err := l.Head(context.Background())
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	assert.Equal(t, Pointer{SVNRevision: 200, SHA1: "cccc"}, ptr)
}

func TestLocate_byRevision_oldestDuplicateWins(t *testing.T) {
	// Upstream history contains revert/reapply pairs carrying identical
	// trailers. The first appearance in history is the authoritative one.
	repo := &testutil.FakeRepo{
		Log: []gitutil.Commit{
			{SHA1: "ffff", Message: "Reapply change\n\n" + trailer("100") + " \n"},
			{SHA1: "eeee", Message: "Unrelated\n\n" + trailer("99") + " \n"},
			{SHA1: "dddd", Message: "Original change\n\n" + trailer("100") + " \n"},
		},
	}
	l := &Locator{Client: repo, Branch: upstreamBranch}

	ptr, err := l.Locate(context.Background(), "100", "")
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	assert.Equal(t, Pointer{SVNRevision: 100, SHA1: "dddd"}, ptr)
}

func TestLocate_byRevision_notFound(t *testing.T) {
	repo := &testutil.FakeRepo{
		Log: []gitutil.Commit{
			{SHA1: "aaaa", Message: "Only this\n\n" + trailer("7") + " \n"},
		},
	}
	l := &Locator{Client: repo, Branch: upstreamBranch}

	_, err := l.Locate(context.Background(), "8", "")
	if !assert.Error(t, err) {
		t.FailNow()
	}
	assert.Contains(t, err.Error(), "revision 8 not found")
	assert.True(t, errors.IsRecoverable(err))
}

func TestLocate_byRevision_noPrefixMatch(t *testing.T) {
	// r10 must not match the r100 trailer.
	repo := &testutil.FakeRepo{
		Log: []gitutil.Commit{
			{SHA1: "aaaa", Message: "Change\n\n" + trailer("100") + " \n"},
		},
	}
	l := &Locator{Client: repo, Branch: upstreamBranch}

	_, err := l.Locate(context.Background(), "10", "")
	assert.Error(t, err)
}

func TestLocate_invalidRevision(t *testing.T) {
	l := &Locator{Client: &testutil.FakeRepo{}, Branch: upstreamBranch}
	_, err := l.Locate(context.Background(), "not-a-number", "")
	assert.Error(t, err)
}

func TestLocate_defaultsToLKGR(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("4242\n"))
	}))
	defer srv.Close()

	repo := &testutil.FakeRepo{
		Log: []gitutil.Commit{
			{SHA1: "beef", Message: "LKGR commit\n\n" + trailer("4242") + " \n"},
		},
	}
	l := &Locator{Client: repo, Branch: upstreamBranch, LKGRURL: srv.URL}

	ptr, err := l.Locate(context.Background(), "", "")
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	assert.Equal(t, Pointer{SVNRevision: 4242, SHA1: "beef"}, ptr)
}

func TestLKGR_malformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("flaky\n"))
	}))
	defer srv.Close()

	l := &Locator{Client: &testutil.FakeRepo{}, Branch: upstreamBranch, LKGRURL: srv.URL}
	_, err := l.LKGR(context.Background())
	if !assert.Error(t, err) {
		t.FailNow()
	}
	assert.Contains(t, err.Error(), "malformed LKGR")
}
