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

// Package revision turns the user-supplied upstream marker (an SVN
// revision number, a commit hash, "HEAD", or nothing) into a concrete
// (revision, hash) pair by correlating commit messages with the externally
// tracked revision numbers.
package revision

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/android-webview/mergetool/internal/errors"
	"github.com/android-webview/mergetool/internal/gitutil"
	"github.com/android-webview/mergetool/internal/util/httputil"
)

// Head is the marker accepted in place of a revision number to merge the
// tip of the tracked branch.
const Head = "HEAD"

// trailerRE matches the git-svn-id trailer line that encodes the
// originating SVN revision of an upstream commit.
var trailerRE = regexp.MustCompile(`(?m)^git-svn-id: .*@([0-9]+)`)

// Pointer identifies one upstream commit in both forms the tool needs:
// commit messages want the numeric revision, git operations want the hash.
type Pointer struct {
	SVNRevision int
	SHA1        string
}

// Locator resolves revision markers against the root repository's tracked
// upstream branch.
type Locator struct {
	// Client is the root repository.
	Client gitutil.Client

	// Branch is the tracked upstream branch carrying revision trailers.
	Branch string

	// LKGRURL serves the last-known-good revision as a single integer.
	LKGRURL string
}

// Locate resolves the requested revision marker. At most one of
// svnRevision and sha1 should be set; both empty means "use the last known
// good revision".
func (l *Locator) Locate(ctx context.Context, svnRevision, sha1 string) (Pointer, error) {
	const op errors.Op = "revision.Locate"

	if sha1 != "" {
		commit, err := l.Client.ShowCommit(ctx, sha1)
		if err != nil {
			return Pointer{}, errors.E(op, err)
		}
		rev, err := parseTrailer(commit.Message)
		if err != nil {
			return Pointer{}, errors.E(op, errors.Revision,
				fmt.Errorf("commit %s: %w", sha1, err))
		}
		return Pointer{SVNRevision: rev, SHA1: sha1}, nil
	}

	if svnRevision == Head {
		commit, err := l.Client.LatestCommit(ctx, l.Branch, "git-svn-id:")
		if err != nil {
			return Pointer{}, errors.E(op, err)
		}
		rev, err := parseTrailer(commit.Message)
		if err != nil {
			return Pointer{}, errors.E(op, errors.Revision,
				fmt.Errorf("commit %s: %w", commit.SHA1, err))
		}
		return Pointer{SVNRevision: rev, SHA1: commit.SHA1}, nil
	}

	var rev int
	if svnRevision == "" {
		lkgr, err := l.LKGR(ctx)
		if err != nil {
			return Pointer{}, errors.E(op, err)
		}
		rev = lkgr
	} else {
		n, err := strconv.Atoi(svnRevision)
		if err != nil {
			return Pointer{}, errors.E(op, errors.InvalidParam,
				fmt.Errorf("revision must be a number or %q: %q", Head, svnRevision))
		}
		rev = n
	}

	// The trailer always has a space after the revision number, which
	// keeps r100 from matching r1001.
	hashes, err := l.Client.CommitsMatching(ctx, l.Branch,
		fmt.Sprintf("git-svn-id: .*@%d ", rev))
	if err != nil {
		return Pointer{}, errors.E(op, err)
	}
	if len(hashes) == 0 {
		return Pointer{}, errors.E(op, errors.Revision, errors.Recoverable,
			fmt.Errorf("revision %d not found on %s", rev, l.Branch))
	}
	// The grep will sometimes match reverts/reapplies of commits. Take the
	// oldest match because the first time it appears in history is
	// overwhelmingly likely to be the correct commit.
	return Pointer{SVNRevision: rev, SHA1: hashes[len(hashes)-1]}, nil
}

// LKGR fetches the externally published last-known-good revision.
func (l *Locator) LKGR(ctx context.Context) (int, error) {
	const op errors.Op = "revision.LKGR"
	body, err := httputil.FetchContent(ctx, l.LKGRURL)
	if err != nil {
		return 0, errors.E(op, errors.Revision, err)
	}
	rev, err := strconv.Atoi(strings.TrimSpace(body))
	if err != nil {
		return 0, errors.E(op, errors.Revision,
			fmt.Errorf("malformed LKGR value %q", strings.TrimSpace(body)))
	}
	return rev, nil
}

// Head resolves the tip of the tracked branch.
func (l *Locator) Head(ctx context.Context) (Pointer, error) {
	return l.Locate(ctx, Head, "")
}

// parseTrailer extracts the SVN revision from a commit message's
// git-svn-id trailer.
func parseTrailer(message string) (int, error) {
	m := trailerRE.FindStringSubmatch(message)
	if m == nil {
		return 0, fmt.Errorf("no git-svn-id trailer in commit message")
	}
	return strconv.Atoi(m[1])
}
