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

// Package deps resolves the upstream dependency manifest (.DEPS.git) into
// the pinned revision of each whitelisted third-party project.
package deps

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/android-webview/mergetool/internal/errors"
	"github.com/android-webview/mergetool/internal/gitutil"
)

// ManifestPath is the location of the dependency manifest in the upstream
// tree.
const ManifestPath = ".DEPS.git"

// cachedUpstreamRef is the temporary local ref the upstream branch is
// fetched to before reading the manifest from a remote, so the same
// commits are not downloaded on every run.
const cachedUpstreamRef = "cached_upstream"

// Manifest is the parsed dependency manifest. It is fetched fresh for
// every run at the exact revision being merged and discarded once the
// merge info has been extracted.
type Manifest struct {
	// Vars is the manifest's own variable table.
	Vars map[string]string

	// Deps maps destination path to pinned dependency.
	Deps map[string]Value

	// DepsOS maps platform name to its own deps table. Empty if the
	// manifest has no per-platform overrides.
	DepsOS map[string]map[string]Value
}

// Value is a single dependency entry: either a pinned "url@sha1" string or
// an opaque reference inheriting the entry from another module's manifest.
// From references are never dereferenced by this tool; the whitelisted
// projects all resolve to pinned entries.
type Value struct {
	pinned string
	from   string
}

// PinnedValue returns a Value holding a pinned "url@sha1" string.
func PinnedValue(s string) Value {
	return Value{pinned: s}
}

// FromRef returns an opaque reference to another module's manifest.
func FromRef(module string) Value {
	return Value{from: module}
}

// IsFrom reports whether the value is an opaque From reference.
func (v Value) IsFrom() bool {
	return v.from != ""
}

// Pinned returns the pinned "url@sha1" string, or false for From
// references.
func (v Value) Pinned() (string, bool) {
	if v.IsFrom() {
		return "", false
	}
	return v.pinned, true
}

// String returns the textual form of the value. From references render the
// way they are written in the manifest.
func (v Value) String() string {
	if v.IsFrom() {
		return fmt.Sprintf("From(%q)", v.from)
	}
	return v.pinned
}

// MergeInfo is the resolved merge source for one third-party project.
type MergeInfo struct {
	// Path of the project relative to the repository root.
	Path string

	// URL of the git server holding the project.
	URL string

	// SHA1 is the pinned revision to merge.
	SHA1 string
}

// Remote identifies where to fetch the upstream history from when the
// manifest is read from a repository that is not fully mirrored locally.
type Remote struct {
	URL    string
	Branch string
}

// FetchManifest reads and parses the manifest at sha1 from the repository
// behind client. When remote is non-nil, the upstream branch is first
// force-fetched to a temporary ref so already-fetched commits are reused.
// A manifest missing at that revision propagates as an error; the caller
// decides the retry policy.
func FetchManifest(ctx context.Context, client gitutil.Client, sha1 string, remote *Remote) (*Manifest, error) {
	const op errors.Op = "deps.FetchManifest"
	if remote != nil {
		err := client.Fetch(ctx, remote.URL, remote.Branch+":"+cachedUpstreamRef)
		if err != nil {
			return nil, errors.E(op, err)
		}
	}
	src, err := client.ShowFile(ctx, sha1, ManifestPath)
	if err != nil {
		return nil, errors.E(op, errors.Manifest,
			fmt.Errorf("reading %s at %s: %w", ManifestPath, sha1, err))
	}
	m, err := Parse(src, nil)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return m, nil
}

// ExtractMergeInfo resolves the pinned URL and SHA1 of each requested
// project from the manifest. Lookup falls back from the generic deps table
// to the unix and then android platform tables, taking the first hit. A
// project present in no table means the static whitelist has drifted from
// the upstream manifest, which a human fixes by updating the project
// tables; that failure is recoverable.
func ExtractMergeInfo(projectPaths []string, m *Manifest) (map[string]MergeInfo, error) {
	const op errors.Op = "deps.ExtractMergeInfo"
	fallbackOrder := []map[string]Value{
		m.Deps,
		m.DepsOS["unix"],
		m.DepsOS["android"],
	}
	result := map[string]MergeInfo{}
	for _, p := range projectPaths {
		var entry Value
		found := false
		for _, table := range fallbackOrder {
			if v, ok := table[path.Join("src", p)]; ok {
				entry = v
				found = true
				break
			}
		}
		if !found {
			return nil, errors.E(op, errors.Manifest, errors.Recoverable,
				fmt.Errorf("could not find %s entry for project %s; the project "+
					"whitelist probably needs to be updated", ManifestPath, p))
		}
		pinned, ok := entry.Pinned()
		if !ok {
			return nil, errors.E(op, errors.Manifest,
				fmt.Errorf("project %s resolves through %s, which is not supported", p, entry))
		}
		// URLs carry no literal '@', so splitting at the first one is
		// sufficient. Credentials-embedded URLs would break this; fail
		// loudly rather than guessing.
		url, sha1, ok := strings.Cut(pinned, "@")
		if !ok {
			return nil, errors.E(op, errors.Manifest,
				fmt.Errorf("entry for project %s is not of the form url@sha1: %q", p, pinned))
		}
		result[p] = MergeInfo{Path: p, URL: url, SHA1: sha1}
	}
	return result, nil
}
