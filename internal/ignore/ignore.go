// Package ignore filters working-tree paths against built-in and
// user-supplied glob patterns, with gitignore-style negation.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// defaultPatterns excludes OS litter, editor droppings and backup artifacts
// that never belong in a snapshot.
var defaultPatterns = []string{
	"**/.DS_Store",
	"**/thumbs.db",
	"**/Thumbs.db",
	"**/desktop.ini",
	"**/.git",
	"**/.git/**",
	"**/.snow",
	"**/.snow/**",
	"**/.snowignore",
	"**/backup/**",
	"**/*.bkp",
	"**/tmp/**",
	"**/temp/**",
	"**/cache/**",
	"**/*.lnk",
	"**/*.log",
	"**/.idea/**",
	"**/.vscode/**",
	"**/.Spotlight-V100",
	"**/.Trashes",
	"**/*.blend[0-9]",
	"**/*.blend[0-9][0-9]",
	"**/~$*",
}

// Matcher decides whether a relative path is ignored. Patterns match
// case-insensitively and dotfiles are not special.
type Matcher struct {
	ignorePatterns  []string
	includePatterns []string
}

// New returns a Matcher preloaded with the built-in patterns.
func New() *Matcher {
	m := &Matcher{}
	m.ignorePatterns = append(m.ignorePatterns, defaultPatterns...)
	return m
}

// LoadFile appends the patterns of a user ignore file. Blank lines and
// comments (`//` line comments and `/* ... */` blocks) are skipped. A leading
// '!' marks an include pattern that wins over any ignore pattern. A pattern
// not ending in '/' also matches as a directory via an implicit
// "<pattern>/**" sibling.
func (m *Matcher) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	inBlockComment := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if inBlockComment {
			end := strings.Index(line, "*/")
			if end < 0 {
				continue
			}
			line = strings.TrimSpace(line[end+2:])
			inBlockComment = false
		}
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if idx := strings.Index(line, "/*"); idx >= 0 {
			end := strings.Index(line[idx+2:], "*/")
			if end < 0 {
				inBlockComment = true
				line = strings.TrimSpace(line[:idx])
			} else {
				line = strings.TrimSpace(line[:idx] + line[idx+2+end+2:])
			}
		}
		if line == "" {
			continue
		}

		m.AddPattern(line)
	}
	return scanner.Err()
}

// AddPattern appends a single pattern, honoring '!' negation.
func (m *Matcher) AddPattern(pattern string) {
	negated := false
	if strings.HasPrefix(pattern, "!") {
		negated = true
		pattern = pattern[1:]
	}

	patterns := []string{pattern}
	if !strings.HasSuffix(pattern, "/") {
		patterns = append(patterns, pattern+"/**")
	}

	if negated {
		m.includePatterns = append(m.includePatterns, patterns...)
	} else {
		m.ignorePatterns = append(m.ignorePatterns, patterns...)
	}
}

// Ignored reports whether the relative forward-slash path p is ignored.
// A path matched by an ignore pattern is still kept when an include pattern
// also matches it.
func (m *Matcher) Ignored(p string) bool {
	p = strings.ToLower(p)
	if !matchAny(m.ignorePatterns, p) {
		return false
	}
	return !matchAny(m.includePatterns, p)
}

func matchAny(patterns []string, p string) bool {
	for _, pattern := range patterns {
		if matchGlob(strings.ToLower(pattern), p) {
			return true
		}
	}
	return false
}

// matchGlob matches a glob pattern against a forward-slash path. Unlike
// filepath.Match, "**" spans zero or more path components.
func matchGlob(pattern, name string) bool {
	if !strings.Contains(pattern, "**") {
		matched, _ := filepath.Match(pattern, name)
		return matched
	}
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

// matchSegments matches pattern components against path components, where a
// "**" component matches zero or more of them.
func matchSegments(pat, name []string) bool {
	if len(pat) == 0 {
		return len(name) == 0
	}
	if pat[0] == "**" {
		// Try consuming zero components, then one, and so on.
		for i := 0; i <= len(name); i++ {
			if matchSegments(pat[1:], name[i:]) {
				return true
			}
		}
		return false
	}
	if len(name) == 0 {
		return false
	}
	matched, _ := filepath.Match(pat[0], name[0])
	if !matched {
		return false
	}
	return matchSegments(pat[1:], name[1:])
}
