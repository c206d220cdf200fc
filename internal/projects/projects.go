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

// Package projects holds the static configuration describing which upstream
// projects are merged and where they live. The tables change only by
// editing this file.
package projects

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/android-webview/mergetool/internal/errors"
)

// AutogenMessage is appended to every commit message created by the tool so
// that automated commits are recognizable downstream.
const AutogenMessage = "This commit was generated by mergetool."

// EnvBuildTop is the environment variable that marks an initialized Android
// build environment. Its absence is a usage error.
const EnvBuildTop = "ANDROID_BUILD_TOP"

// chromiumDir is the location of the Chromium tree below the build top.
const chromiumDir = "external/chromium_org"

// Config describes the set of projects a merge operates on and the branches
// and remotes involved. Production runs use Default(); tests substitute
// their own instance.
type Config struct {
	// UpstreamBranch is the tracked upstream branch in the root repository
	// whose commits carry git-svn-id trailers.
	UpstreamBranch string

	// LKGRURL serves the externally published last-known-good revision as a
	// single integer.
	LKGRURL string

	// ThirdParty lists the whitelisted third-party projects, relative to
	// the repository root. Projects not listed here are never merged.
	ThirdParty []string

	// FlatHistory marks projects that are mirrored locally with flattened
	// upstream history. They are fetched from the "history" remote rather
	// than from the URL pinned in the manifest.
	FlatHistory map[string]bool

	// IntegrationBranch is the branch each merge branch tracks.
	IntegrationBranch string

	// PushBranches are the branches a finished merge is pushed to, in
	// order.
	PushBranches []string

	// Generator is the command that regenerates the platform makefiles,
	// run from the repository root.
	Generator []string
}

// Default returns the production configuration.
func Default() Config {
	return Config{
		UpstreamBranch: "refs/remotes/history/upstream-master",
		LKGRURL:        "https://chromium-status.appspot.com/lkgr",
		ThirdParty: []string{
			"googleurl",
			"sdch/open-vcdiff",
			"testing/gtest",
			"third_party/WebKit",
			"third_party/angle",
			"third_party/icu",
			"third_party/leveldatabase/src",
			"third_party/libjingle/source",
			"third_party/libphonenumber/src/phonenumbers",
			"third_party/libphonenumber/src/resources",
			"third_party/openssl",
			"third_party/ots",
			"third_party/skia/gyp",
			"third_party/skia/include",
			"third_party/skia/src",
			"third_party/smhasher/src",
			"third_party/v8-i18n",
			"tools/grit",
			"tools/gyp",
			"v8",
		},
		FlatHistory: map[string]bool{
			"third_party/WebKit": true,
		},
		IntegrationBranch: "master-chromium",
		PushBranches:      []string{"master-chromium-merge", "master-chromium"},
		Generator:         []string{"android_webview/tools/gyp_webview", "all"},
	}
}

// All returns every project directory the tool operates on, the root first.
// The root project is the empty string.
func (c Config) All() []string {
	return append([]string{""}, c.ThirdParty...)
}

// Remote returns the remote to use for the given project. Locally mirrored
// projects use "history", everything else uses "goog".
func (c Config) Remote(path string) string {
	if path == "" || c.FlatHistory[path] {
		return "history"
	}
	return "goog"
}

// MergeBranch returns the local branch name used for merging the given
// revision. The name is deterministic so a retry of the same revision
// reuses the branch.
func (c Config) MergeBranch(svnRevision int) string {
	return fmt.Sprintf("merge-from-chromium-%d", svnRevision)
}

// TrackedBranch returns the remote branch the merge branch for path tracks.
func (c Config) TrackedBranch(path string) string {
	return c.Remote(path) + "/" + c.IntegrationBranch
}

// RepositoryRoot resolves the Chromium tree location from the build
// environment marker.
func RepositoryRoot() (string, error) {
	const op errors.Op = "projects.RepositoryRoot"
	top := os.Getenv(EnvBuildTop)
	if top == "" {
		return "", errors.E(op, errors.InvalidParam,
			fmt.Errorf("%s is not set; run the Android envsetup.sh and lunch", EnvBuildTop))
	}
	return filepath.Join(top, chromiumDir), nil
}
