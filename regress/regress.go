// Package regress implements the helpers post-process scripts use to publish
// regression outputs and to scan outputs for problems.
package regress

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Environment variables providing the default directories
const (
	EnvOutDir     = "TESTR_OUT_DIR"
	EnvRegressDir = "TESTR_REGRESS_DIR"
)

// alwaysAllowed matches the echoed bash prompt of shell test scripts
var alwaysAllowed = regexp.MustCompile(`(?i)^Bash-\d\d`)

// CleanRule rewrites every line of a file matching Pattern. Replacement uses
// regexp.Expand syntax ($1, ${name}).
type CleanRule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// ParseCleanRule parses FILE:REGEX:REPL. The file ends at the first colon and
// the replacement starts after the last one, so the regex may contain colons.
func ParseCleanRule(s string) (string, CleanRule, error) {
	first := strings.Index(s, ":")
	last := strings.LastIndex(s, ":")
	if first < 0 || first == last {
		return "", CleanRule{}, fmt.Errorf("clean rule %q must be FILE:REGEX:REPL", s)
	}
	file, expr, repl := s[:first], s[first+1:last], s[last+1:]
	if file == "" {
		return "", CleanRule{}, fmt.Errorf("clean rule %q has no file", s)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return "", CleanRule{}, fmt.Errorf("clean rule %q: %w", s, err)
	}
	return file, CleanRule{Pattern: re, Replacement: repl}, nil
}

// MakeRegressFiles copies files (relative to outDir) to regressDir keeping
// their relative paths, applying the clean rules registered for each file.
// Empty directories default to TESTR_OUT_DIR and TESTR_REGRESS_DIR.
func MakeRegressFiles(files []string, outDir, regressDir string, clean map[string][]CleanRule) error {
	outDir, regressDir, err := resolveDirs(outDir, regressDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(regressDir, 0755); err != nil {
		return fmt.Errorf("failed to create regress dir %s: %w", regressDir, err)
	}

	for _, file := range files {
		data, err := os.ReadFile(filepath.Join(outDir, file))
		if err != nil {
			return fmt.Errorf("failed to read regress file: %w", err)
		}

		content := string(data)
		if rules := clean[file]; len(rules) > 0 {
			content = cleanLines(content, rules)
		}

		dst := filepath.Join(regressDir, file)
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
		}
		if err := os.WriteFile(dst, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write regress file: %w", err)
		}
	}
	return nil
}

func cleanLines(content string, rules []CleanRule) string {
	lines := strings.SplitAfter(content, "\n")
	for i, line := range lines {
		for _, rule := range rules {
			line = rule.Pattern.ReplaceAllString(line, rule.Replacement)
		}
		lines[i] = line
	}
	return strings.Join(lines, "")
}

func resolveDirs(outDir, regressDir string) (string, string, error) {
	if outDir == "" {
		outDir = os.Getenv(EnvOutDir)
	}
	if regressDir == "" {
		regressDir = os.Getenv(EnvRegressDir)
	}
	if outDir == "" {
		return "", "", errors.New("output directory not given and " + EnvOutDir + " not set")
	}
	if regressDir == "" {
		return "", "", errors.New("regress directory not given and " + EnvRegressDir + " not set")
	}
	return outDir, regressDir, nil
}

// Match is one line flagged by CheckFiles
type Match struct {
	Check string
	File  string
	Line  int
	Text  string
}

func (m Match) String() string {
	return fmt.Sprintf("%q matched at %s:%d :: %s", m.Check, m.File, m.Line, m.Text)
}

// MatchError reports the lines CheckFiles flagged
type MatchError struct {
	Matches []Match
}

func (e *MatchError) Error() string {
	lines := make([]string, len(e.Matches))
	for i, m := range e.Matches {
		lines[i] = m.String()
	}
	return "Found matches in check_files:\n" + strings.Join(lines, "\n")
}

// CheckFiles searches the files matching pattern (relative to outDir) for
// lines matching any check regex, case-insensitively. Lines also matching an
// allow regex are accepted. Any remaining match is returned as a *MatchError.
func CheckFiles(pattern string, checks, allows []string, outDir string) error {
	if outDir == "" {
		outDir = os.Getenv(EnvOutDir)
	}

	checkRes, err := compileAll(checks)
	if err != nil {
		return err
	}
	allowRes, err := compileAll(allows)
	if err != nil {
		return err
	}
	allowRes = append(allowRes, alwaysAllowed)

	files, err := filepath.Glob(filepath.Join(outDir, pattern))
	if err != nil {
		return fmt.Errorf("bad file pattern %q: %w", pattern, err)
	}

	var matches []Match
	for _, path := range files {
		lines, err := readLines(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(outDir, path)
		if err != nil {
			rel = path
		}
		for i, check := range checkRes {
			for n, line := range lines {
				if !check.MatchString(line) || anyMatch(allowRes, line) {
					continue
				}
				matches = append(matches, Match{Check: checks[i], File: rel, Line: n + 1, Text: strings.TrimSpace(line)})
			}
		}
	}
	if len(matches) > 0 {
		return &MatchError{Matches: matches}
	}
	return nil
}

func compileAll(exprs []string) ([]*regexp.Regexp, error) {
	res := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		re, err := regexp.Compile("(?i)" + e)
		if err != nil {
			return nil, fmt.Errorf("bad regex %q: %w", e, err)
		}
		res = append(res, re)
	}
	return res, nil
}

func anyMatch(res []*regexp.Regexp, line string) bool {
	for _, re := range res {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}
