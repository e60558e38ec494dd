// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestCommitFromSettings(t *testing.T) {
	tests := []struct {
		name     string
		settings []debug.BuildSetting
		want     string
	}{
		{"none", nil, "unknown"},
		{"clean", []debug.BuildSetting{{Key: "vcs.revision", Value: "0123456789abcdef"}, {Key: "vcs.modified", Value: "false"}}, "0123456789ab"},
		{"dirty", []debug.BuildSetting{{Key: "vcs.revision", Value: "abc"}, {Key: "vcs.modified", Value: "true"}}, "abc-dirty"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := commitFromSettings(test.settings); got != test.want {
				t.Errorf("commitFromSettings = %q, want %q", got, test.want)
			}
		})
	}
}

func TestInjectedCommitWins(t *testing.T) {
	saved := GitCommit
	t.Cleanup(func() { GitCommit = saved })
	GitCommit = "feedbee"
	if !strings.Contains(Info(), "(feedbee, ") {
		t.Errorf("Info() = %q", Info())
	}
	if !strings.HasPrefix(Full(), "registry "+Version) {
		t.Errorf("Full() = %q", Full())
	}
}
