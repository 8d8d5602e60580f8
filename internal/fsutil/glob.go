// Package fsutil provides file system helpers shared by the cache, the
// artifact actions, and the hashFiles expression function.
package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Match reports whether a slash-separated name matches pattern. Segments are
// matched with path.Match; a "**" segment matches zero or more segments.
func Match(pattern, name string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func matchSegments(pat, parts []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			if len(pat) == 1 {
				return true
			}
			for i := 0; i <= len(parts); i++ {
				if matchSegments(pat[1:], parts[i:]) {
					return true
				}
			}
			return false
		}
		if len(parts) == 0 {
			return false
		}
		ok, err := path.Match(pat[0], parts[0])
		if err != nil || !ok {
			return false
		}
		pat, parts = pat[1:], parts[1:]
	}
	return len(parts) == 0
}

// ValidatePattern rejects patterns that would escape the root they are expanded against.
func ValidatePattern(pattern string) error {
	p := filepath.ToSlash(strings.TrimSpace(pattern))
	if p == "" {
		return fmt.Errorf("path pattern is empty")
	}
	if path.IsAbs(p) || filepath.IsAbs(pattern) {
		return fmt.Errorf("path pattern %q must be relative", pattern)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return fmt.Errorf("path pattern %q must not contain '..'", pattern)
		}
		if _, err := path.Match(seg, ""); err != nil && seg != "**" {
			return fmt.Errorf("path pattern %q is malformed: %w", pattern, err)
		}
	}
	return nil
}

// Glob expands patterns against root and returns the sorted, de-duplicated
// slash-separated paths (relative to root) of every regular file matched.
// A pattern matching a directory selects every file beneath it. Patterns that
// match nothing are not an error.
func Glob(root string, patterns []string) ([]string, error) {
	seen := make(map[string]struct{})

	for _, raw := range patterns {
		if err := ValidatePattern(raw); err != nil {
			return nil, err
		}
		pattern := normalizePattern(raw)

		walkRoot := filepath.Join(root, filepath.FromSlash(staticPrefix(pattern)))
		info, err := os.Stat(walkRoot)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", walkRoot, err)
		}
		if !info.IsDir() {
			rel := filepath.ToSlash(mustRel(root, walkRoot))
			if Match(pattern, rel) {
				seen[rel] = struct{}{}
			}
			continue
		}

		err = filepath.WalkDir(walkRoot, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			rel := filepath.ToSlash(mustRel(root, p))
			if matchesSelfOrAncestor(pattern, rel) {
				seen[rel] = struct{}{}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", raw, err)
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func normalizePattern(raw string) string {
	p := filepath.ToSlash(strings.TrimSpace(raw))
	p = strings.TrimPrefix(p, "./")
	p = path.Clean(strings.TrimSuffix(p, "/"))
	if p == "." {
		return "**"
	}
	return p
}

// staticPrefix returns the leading segments of pattern that contain no glob metacharacters.
func staticPrefix(pattern string) string {
	var prefix []string
	for _, seg := range strings.Split(pattern, "/") {
		if strings.ContainsAny(seg, "*?[\\") {
			break
		}
		prefix = append(prefix, seg)
	}
	return strings.Join(prefix, "/")
}

func matchesSelfOrAncestor(pattern, rel string) bool {
	if Match(pattern, rel) {
		return true
	}
	for dir := path.Dir(rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if Match(pattern, dir) {
			return true
		}
	}
	return false
}

func mustRel(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return rel
}
