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

package cmdsnapshot_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/android-webview/mergetool/internal/cmdsnapshot"
	"github.com/android-webview/mergetool/internal/printer/fake"
	"github.com/android-webview/mergetool/internal/projects"
)

func TestFlagValidation(t *testing.T) {
	testCases := map[string]struct {
		buildTop string
		args     []string
		errMsg   string
	}{
		"build environment must be initialized": {
			buildTop: "",
			args:     []string{},
			errMsg:   projects.EnvBuildTop,
		},
		"svn_revision and sha1 are mutually exclusive": {
			buildTop: "/tmp/src",
			args:     []string{"--svn_revision", "100", "--sha1", "abcd"},
			errMsg:   "only one of --svn_revision and --sha1",
		},
		"push needs a revision to push": {
			buildTop: "/tmp/src",
			args:     []string{"--push"},
			errMsg:   "--push requires --svn_revision",
		},
		"positional arguments are rejected": {
			buildTop: "/tmp/src",
			args:     []string{"100"},
			errMsg:   "unknown command",
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			t.Setenv(projects.EnvBuildTop, tc.buildTop)
			r := NewRunner(fake.CtxWithNilPrinter())
			r.Command.SetArgs(tc.args)
			r.Command.SetOut(&bytes.Buffer{})
			r.Command.SetErr(&bytes.Buffer{})

			err := r.Command.Execute()
			if !assert.Error(t, err) {
				t.FailNow()
			}
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestGetLKGR(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("4242"))
	}))
	defer srv.Close()
	t.Setenv(projects.EnvBuildTop, t.TempDir())

	r := NewRunner(fake.CtxWithNilPrinter())
	r.Config.LKGRURL = srv.URL
	out := &bytes.Buffer{}
	r.Command.SetArgs([]string{"--get_lkgr"})
	r.Command.SetOut(out)
	r.Command.SetErr(&bytes.Buffer{})

	err := r.Command.Execute()
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	assert.Equal(t, "4242\n", out.String())
}
