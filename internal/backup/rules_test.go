package backup

import "testing"

func TestRulesEmptyIncludesEverything(t *testing.T) {
	t.Parallel()
	rs := ParseRules(nil)
	for _, p := range []string{"a.txt", "deep/nested/file.bin"} {
		if !rs.Match(p) {
			t.Fatalf("Match(%q) = false, want true", p)
		}
	}
}

func TestRulesIncludeExclude(t *testing.T) {
	t.Parallel()
	rs := ParseRules([]string{
		"server/",
		"world",
		"!__pycache__",
		"!*.lock",
		"!server/cache/",
	})

	tests := []struct {
		path string
		want bool
	}{
		{"server/config.yml", true},
		{"server/data/level.dat", true},
		{"world/region/r.0.0.mca", true},
		{"other/file.txt", false},
		{"server/session.lock", false},
		{"server/cache/blob", false},
		{"server/mods/__pycache__/x.pyc", false},
		{"deep/world/chunk.dat", true}, // basename include matches anywhere
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.path, func(t *testing.T) {
			if got := rs.Match(tt.path); got != tt.want {
				t.Fatalf("Match(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestRulesPrefixDoesNotMatchSiblings(t *testing.T) {
	t.Parallel()
	rs := ParseRules([]string{"build/"})
	if !rs.Match("build/out.bin") {
		t.Fatal("build/out.bin should match build/")
	}
	if rs.Match("build-tools/x") {
		t.Fatal("build-tools/x must not match build/")
	}
}

func TestRulesExcludeWins(t *testing.T) {
	t.Parallel()
	rs := ParseRules([]string{"data/", "!data/tmp/"})
	if rs.Match("data/tmp/scratch") {
		t.Fatal("exclude must win over include")
	}
	if !rs.Match("data/keep/file") {
		t.Fatal("data/keep/file should be included")
	}
}

func TestRulesCaseInsensitive(t *testing.T) {
	t.Parallel()
	rs := ParseRules([]string{"!*.LOG"})
	if rs.Match("server/latest.log") {
		t.Fatal("exclusion should be case-insensitive")
	}
}
