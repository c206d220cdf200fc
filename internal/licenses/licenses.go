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

// Package licenses deals with the license data that lives in the merged
// tree: the known-issues exclusion table and the license scanning tool.
// Both come from upstream, so they can only be consulted after the merge
// has brought in the version matching the merged revision.
package licenses

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// KnownIssuesPath is the location of the exclusion table in the merged
// tree, relative to the repository root.
const KnownIssuesPath = "android_webview/tools/known_issues.yaml"

// ScannerToolPath is the location of the license scanning tool in the
// merged tree, relative to the repository root.
const ScannerToolPath = "android_webview/tools/webview_licenses.py"

// KnownIssues maps a project path to the relative globs of content known
// to carry licensing incompatible with the downstream project. The table
// changes only by editing the file upstream.
type KnownIssues map[string][]string

// LoadKnownIssues reads the exclusion table from the merged tree.
func LoadKnownIssues(root string) (KnownIssues, error) {
	data, err := os.ReadFile(filepath.Join(root, KnownIssuesPath))
	if err != nil {
		return nil, errors.Wrap(err, "reading known issues table")
	}
	var ki KnownIssues
	if err := yaml.Unmarshal(data, &ki); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", KnownIssuesPath)
	}
	return ki, nil
}

// Scanner reports incompatibly licensed directories and generates the
// NOTICE text. It is constructed once the merge is complete and handed to
// the code that needs it.
type Scanner interface {
	IncompatibleDirectories(ctx context.Context) ([]string, error)
	NoticeText(ctx context.Context) (string, error)
}

// ToolScanner implements Scanner by running the license scanning tool
// from the merged tree.
type ToolScanner struct {
	// Root is the repository root the tool runs in.
	Root string

	// Tool is the path of the scanning tool relative to Root. Defaults to
	// ScannerToolPath.
	Tool string
}

// NewToolScanner returns a Scanner running the in-tree license tool.
func NewToolScanner(root string) *ToolScanner {
	return &ToolScanner{Root: root, Tool: ScannerToolPath}
}

// IncompatibleDirectories runs the tool's incompatible_directories mode
// and returns one directory per output line.
func (s *ToolScanner) IncompatibleDirectories(ctx context.Context) ([]string, error) {
	out, err := s.run(ctx, "incompatible_directories")
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			dirs = append(dirs, line)
		}
	}
	return dirs, nil
}

// NoticeText runs the tool's notice mode and returns the generated NOTICE
// contents.
func (s *ToolScanner) NoticeText(ctx context.Context) (string, error) {
	return s.run(ctx, "notice")
}

func (s *ToolScanner) run(ctx context.Context, mode string) (string, error) {
	tool := s.Tool
	if tool == "" {
		tool = ScannerToolPath
	}
	cmd := exec.CommandContext(ctx, filepath.Join(s.Root, tool), mode)
	cmd.Dir = s.Root
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return "", errors.Wrapf(err, "license tool %s failed: %s", mode, stderr.String())
	}
	return stdout.String(), nil
}
