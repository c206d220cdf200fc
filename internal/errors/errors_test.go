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

package errors_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/android-webview/mergetool/internal/errors"
	"github.com/android-webview/mergetool/internal/types"
)

func TestErrorFormat(t *testing.T) {
	err := E(Op("merge.Run"), Git, types.UniquePath("/repo/v8"),
		fmt.Errorf("exit status 1"))
	assert.Equal(t, "merge.Run: project /repo/v8: git error: exit status 1", err.Error())
}

func TestErrorFormat_nestedErrorsIndent(t *testing.T) {
	inner := E(Op("deps.Parse"), Manifest, fmt.Errorf("unexpected token"))
	outer := E(Op("merge.Run"), inner)

	assert.Contains(t, outer.Error(), ":\n\t")
	assert.True(t, strings.HasPrefix(outer.Error(), "merge.Run: manifest error:"))
	// The promoted kind is not repeated in the nested error.
	assert.Equal(t, 1, strings.Count(outer.Error(), "manifest error"))
}

func TestKindPromotion(t *testing.T) {
	inner := E(Op("deps.ExtractMergeInfo"), Manifest, fmt.Errorf("missing entry"))
	outer := E(Op("merge.Run"), inner)

	var e *Error
	if !assert.True(t, As(outer, &e)) {
		t.FailNow()
	}
	assert.Equal(t, Manifest, e.Kind)
}

func TestIsRecoverable(t *testing.T) {
	testCases := map[string]struct {
		err  error
		want bool
	}{
		"nil": {
			err:  nil,
			want: false,
		},
		"plain error": {
			err:  fmt.Errorf("boom"),
			want: false,
		},
		"unclassified defaults to fatal": {
			err:  E(Op("merge.Run"), fmt.Errorf("conflicts")),
			want: false,
		},
		"recoverable": {
			err:  E(Op("deps.ExtractMergeInfo"), Recoverable, fmt.Errorf("missing entry")),
			want: true,
		},
		"recoverable survives wrapping": {
			err: E(Op("merge.Run"),
				E(Op("deps.ExtractMergeInfo"), Recoverable, fmt.Errorf("missing entry"))),
			want: true,
		},
		"explicitly fatal wrapper around recoverable inner": {
			// The inner classification still counts; the whole chain is
			// searched.
			err: E(Op("merge.Run"), Fatal,
				E(Op("deps.ExtractMergeInfo"), Recoverable, fmt.Errorf("missing entry"))),
			want: true,
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRecoverable(tc.err))
		})
	}
}

func TestClassPromotion(t *testing.T) {
	inner := E(Op("deps.ExtractMergeInfo"), Recoverable, fmt.Errorf("missing entry"))
	outer := E(Op("merge.Run"), inner)

	var e *Error
	if !assert.True(t, As(outer, &e)) {
		t.FailNow()
	}
	assert.Equal(t, Recoverable, e.Class)
}

func TestAs_throughStdlibWrapping(t *testing.T) {
	err := fmt.Errorf("context: %w", E(Op("revision.Locate"), Revision, fmt.Errorf("not found")))

	var e *Error
	if !assert.True(t, As(err, &e)) {
		t.FailNow()
	}
	assert.Equal(t, Op("revision.Locate"), e.Op)
	assert.Equal(t, Revision, e.Kind)
}
