// Package selection filters discovered scripts with include/exclude glob
// patterns taken from the command line and optional test specification files.
package selection

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/sot/testr/types"
)

// DefaultInclude matches every script
const DefaultInclude = "*"

// globMeta are the characters that make a token a pattern rather than a bare name
const globMeta = "*?["

// Spec is the resolved include/exclude pattern set
type Spec struct {
	Includes []string
	Excludes []string

	includes []glob.Glob
	excludes []glob.Glob
}

// NewSpec normalizes and compiles the given patterns. With no includes every
// script is included.
func NewSpec(includes, excludes []string) (*Spec, error) {
	s := &Spec{}
	for _, p := range includes {
		if err := s.addInclude(p); err != nil {
			return nil, err
		}
	}
	for _, p := range excludes {
		if err := s.addExclude(p); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Normalize trims a pattern and appends an implicit trailing "*" to bare tokens
// so that "pkg" selects every script in every package starting with "pkg".
func Normalize(pattern string) string {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || strings.ContainsAny(pattern, globMeta) {
		return pattern
	}
	return pattern + "*"
}

// compile builds a matcher where '*' also crosses '/', like shell fnmatch on the
// whole "package/file" string. Braces and backslashes are literal.
func compile(pattern string) (glob.Glob, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `{`, `\{`, `}`, `\}`).Replace(pattern)
	g, err := glob.Compile(escaped)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	return g, nil
}

func (s *Spec) addInclude(pattern string) error {
	pattern = Normalize(pattern)
	if pattern == "" {
		return nil
	}
	g, err := compile(pattern)
	if err != nil {
		return err
	}
	s.Includes = append(s.Includes, pattern)
	s.includes = append(s.includes, g)
	return nil
}

func (s *Spec) addExclude(pattern string) error {
	pattern = Normalize(pattern)
	if pattern == "" {
		return nil
	}
	g, err := compile(pattern)
	if err != nil {
		return err
	}
	s.Excludes = append(s.Excludes, pattern)
	s.excludes = append(s.excludes, g)
	return nil
}

// Merge adds the patterns of a test specification to s. Patterns from all
// sources form a plain union.
func (s *Spec) Merge(r io.Reader) error {
	includes, excludes, err := ParseTestSpec(r)
	if err != nil {
		return err
	}
	for _, p := range includes {
		if err := s.addInclude(p); err != nil {
			return err
		}
	}
	for _, p := range excludes {
		if err := s.addExclude(p); err != nil {
			return err
		}
	}
	return nil
}

// LoadTestSpec reads a test specification file into s
func (s *Spec) LoadTestSpec(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open test spec %s: %w", path, err)
	}
	defer f.Close()

	if err := s.Merge(f); err != nil {
		return fmt.Errorf("failed to read test spec %s: %w", path, err)
	}
	return nil
}

// ParseTestSpec parses a test specification. Blank lines and lines starting with
// '#' are ignored, lines starting with '-' are excludes and anything else is an
// include.
func ParseTestSpec(r io.Reader) (includes, excludes []string, err error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "-") {
			if p := strings.TrimSpace(line[1:]); p != "" {
				excludes = append(excludes, p)
			}
			continue
		}
		includes = append(includes, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return includes, excludes, nil
}

// FindTestSpec locates a test specification by name, first relative to the
// working directory and then inside root.
func FindTestSpec(name, root string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return filepath.Abs(name)
	}
	if root != "" && !filepath.IsAbs(name) {
		candidate := filepath.Join(root, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("test spec file %s does not exist", name)
}

// Match reports whether a canonical "package/file" string is selected: it must
// match at least one include and no exclude.
func (s *Spec) Match(path string) bool {
	includes := s.includes
	if len(includes) == 0 {
		includes = []glob.Glob{glob.MustCompile(DefaultInclude)}
	}

	included := false
	for _, g := range includes {
		if g.Match(path) {
			included = true
			break
		}
	}
	if !included {
		return false
	}

	for _, g := range s.excludes {
		if g.Match(path) {
			return false
		}
	}
	return true
}

// Filter returns the selected entries in their original order
func (s *Spec) Filter(entries []types.ScriptEntry) []types.ScriptEntry {
	selected := make([]types.ScriptEntry, 0, len(entries))
	for _, e := range entries {
		if s.Match(e.Path()) {
			selected = append(selected, e)
		}
	}
	return selected
}

// EffectiveIncludes returns the include patterns, defaulting to "*"
func (s *Spec) EffectiveIncludes() []string {
	if len(s.Includes) == 0 {
		return []string{DefaultInclude}
	}
	return s.Includes
}
