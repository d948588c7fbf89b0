package backup

import (
	"path/filepath"
	"strings"
)

// Rules select which files under the source root go into an archive.
// Plain entries include, "!"-prefixed entries exclude; excludes win.
// An empty include set means "everything".
//
// Pattern forms (matched against the slash-separated relative path):
//   - "world"            basename literal, matches anywhere
//   - "server/config"    full-path literal
//   - "logs/"            directory prefix
//   - "*.lock"           suffix on the basename
//   - "tmp_*"            prefix on the basename
//   - anything else with wildcards: filepath.Match against the full path
type Rules struct {
	includes []pattern
	excludes []pattern
}

type matchKind int

const (
	matchLiteral matchKind = iota
	matchBasename
	matchPrefix
	matchSuffix
	matchGlob
)

type pattern struct {
	raw      string
	clean    string
	kind     matchKind
	basename bool
}

// ParseRules classifies each rule once so matching stays cheap on large
// trees.
func ParseRules(rules []string) Rules {
	var rs Rules
	for _, raw := range rules {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.HasPrefix(raw, "!") {
			if p, ok := classify(strings.TrimPrefix(raw, "!")); ok {
				rs.excludes = append(rs.excludes, p)
			}
			continue
		}
		if p, ok := classify(raw); ok {
			rs.includes = append(rs.includes, p)
		}
	}
	return rs
}

func classify(raw string) (pattern, bool) {
	p := normalizePattern(raw)
	if p == "" {
		return pattern{}, false
	}
	basenameOnly := !strings.Contains(p, "/")

	switch {
	case strings.HasSuffix(p, "/*"):
		return pattern{raw: raw, clean: strings.TrimSuffix(p, "/*"), kind: matchPrefix}, true
	case strings.HasSuffix(p, "/"):
		return pattern{raw: raw, clean: strings.TrimSuffix(p, "/"), kind: matchPrefix}, true
	case strings.HasPrefix(p, "*") && !strings.ContainsAny(p[1:], "*?["):
		return pattern{raw: raw, clean: p[1:], kind: matchSuffix, basename: basenameOnly}, true
	case strings.HasSuffix(p, "*") && !strings.ContainsAny(p[:len(p)-1], "*?["):
		return pattern{raw: raw, clean: strings.TrimSuffix(p, "*"), kind: matchPrefix, basename: basenameOnly}, true
	case strings.ContainsAny(p, "*?["):
		return pattern{raw: raw, clean: p, kind: matchGlob, basename: basenameOnly}, true
	case basenameOnly:
		return pattern{raw: raw, clean: p, kind: matchBasename}, true
	default:
		return pattern{raw: raw, clean: p, kind: matchLiteral}, true
	}
}

// Match reports whether the relative path (slash-separated) should be
// archived.
func (rs Rules) Match(rel string) bool {
	rel = normalizePattern(rel)
	base := rel
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		base = rel[i+1:]
	}

	for _, p := range rs.excludes {
		if p.match(rel, base) {
			return false
		}
	}
	if len(rs.includes) == 0 {
		return true
	}
	for _, p := range rs.includes {
		if p.match(rel, base) {
			return true
		}
	}
	return false
}

func (p pattern) match(rel, base string) bool {
	target := rel
	if p.basename {
		target = base
	}
	switch p.kind {
	case matchLiteral:
		return rel == p.clean
	case matchBasename:
		// Basename literal matches the file itself or any path segment
		// (so "__pycache__" drops whole directories).
		if base == p.clean {
			return true
		}
		return strings.HasPrefix(rel, p.clean+"/") || strings.Contains(rel, "/"+p.clean+"/")
	case matchPrefix:
		if p.basename {
			return strings.HasPrefix(base, p.clean)
		}
		return rel == p.clean || strings.HasPrefix(rel, p.clean+"/")
	case matchSuffix:
		return strings.HasSuffix(target, p.clean)
	case matchGlob:
		ok, err := filepath.Match(p.clean, target)
		return err == nil && ok
	default:
		return false
	}
}

// normalizePattern converts a path or pattern to a consistent
// slash-separated, lowercase key.
func normalizePattern(p string) string {
	return strings.ToLower(filepath.ToSlash(strings.TrimSpace(p)))
}
