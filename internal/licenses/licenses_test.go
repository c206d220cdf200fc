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

package licenses_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	. "github.com/android-webview/mergetool/internal/licenses"
	"github.com/android-webview/mergetool/internal/testutil"
)

func TestLoadKnownIssues(t *testing.T) {
	root := testutil.CopyDir(t, filepath.Join("testdata", "tree"))

	ki, err := LoadKnownIssues(root)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	want := KnownIssues{
		"third_party/alpha": {"lgpl_dir"},
		"third_party/beta":  {"gpl/code", "docs/gfdl"},
	}
	if diff := cmp.Diff(want, ki); diff != "" {
		t.Errorf("known issues mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadKnownIssues_missingTable(t *testing.T) {
	_, err := LoadKnownIssues(t.TempDir())
	if !assert.Error(t, err) {
		t.FailNow()
	}
	assert.Contains(t, err.Error(), "reading known issues table")
}

func TestLoadKnownIssues_malformedTable(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, KnownIssuesPath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("third_party/alpha: [unbalanced\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadKnownIssues(root)
	if !assert.Error(t, err) {
		t.FailNow()
	}
	assert.Contains(t, err.Error(), KnownIssuesPath)
}

// fakeTool is a stand-in for the upstream license scanning tool.
const fakeTool = `#!/bin/sh
case "$1" in
  incompatible_directories)
    printf 'third_party/one\nthird_party/two\n'
    ;;
  notice)
    printf 'NOTICE BODY\n'
    ;;
  *)
    echo "unknown mode: $1" >&2
    exit 2
    ;;
esac
`

func writeTool(t *testing.T, content string) string {
	t.Helper()
	root := t.TempDir()
	path := filepath.Join(root, ScannerToolPath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestToolScanner_incompatibleDirectories(t *testing.T) {
	root := writeTool(t, fakeTool)
	s := NewToolScanner(root)

	dirs, err := s.IncompatibleDirectories(context.Background())
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	assert.Equal(t, []string{"third_party/one", "third_party/two"}, dirs)
}

func TestToolScanner_incompatibleDirectories_cleanTree(t *testing.T) {
	root := writeTool(t, "#!/bin/sh\nexit 0\n")
	s := NewToolScanner(root)

	dirs, err := s.IncompatibleDirectories(context.Background())
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	assert.Empty(t, dirs)
}

func TestToolScanner_noticeText(t *testing.T) {
	root := writeTool(t, fakeTool)
	s := NewToolScanner(root)

	notice, err := s.NoticeText(context.Background())
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	assert.Equal(t, "NOTICE BODY\n", notice)
}

func TestToolScanner_toolFailureIncludesStderr(t *testing.T) {
	root := writeTool(t, "#!/bin/sh\necho 'scan blew up' >&2\nexit 1\n")
	s := NewToolScanner(root)

	_, err := s.NoticeText(context.Background())
	if !assert.Error(t, err) {
		t.FailNow()
	}
	assert.Contains(t, err.Error(), "scan blew up")
}
