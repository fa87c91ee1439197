package runner

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sot/testr/testhelper"
	"github.com/sot/testr/types"
)

var negationRegex = regexp.MustCompile(`(?i)^not\s`)

// SkipRulesError reports a package whose skip file cannot be used
type SkipRulesError struct {
	Package string
	Err     error
}

func (e *SkipRulesError) Error() string {
	return fmt.Sprintf("package %s: %v", e.Package, e.Err)
}

func (e *SkipRulesError) Unwrap() error {
	return e.Err
}

// IsSkipRulesError checks if the error is or wraps a SkipRulesError
func IsSkipRulesError(err error) bool {
	var skipErr *SkipRulesError
	return err != nil && errors.As(err, &skipErr)
}

// SkipRule skips scripts whose file name matches Glob when the check holds
type SkipRule struct {
	Glob      string   `yaml:"-"`
	CheckFunc string   `yaml:"check_func"`
	CheckArgs []string `yaml:"check_args"`
	Reason    string   `yaml:"reason"`

	check  testhelper.CheckFunc
	negate bool
}

// SkipRules are evaluated in file order; the first matching rule wins
type SkipRules []SkipRule

// LoadSkipRules reads skip.yml from dir. A missing file means no rules.
func LoadSkipRules(dir string) (SkipRules, error) {
	data, err := os.ReadFile(filepath.Join(dir, SkipFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", SkipFile, err)
	}
	rules, err := ParseSkipRules(data)
	if err != nil {
		return nil, fmt.Errorf("invalid %s in %s: %w", SkipFile, dir, err)
	}
	return rules, nil
}

// LoadPackageSkipRules reads the skip file of every package entries belong to,
// so that a broken one is reported before anything runs. Packages without a
// skip file map to nil rules.
func LoadPackageSkipRules(packagesDir string, entries []types.ScriptEntry) (map[string]SkipRules, error) {
	rules := make(map[string]SkipRules)
	for _, e := range entries {
		if _, ok := rules[e.Package]; ok {
			continue
		}
		pkgRules, err := LoadSkipRules(filepath.Join(packagesDir, e.Package))
		if err != nil {
			return nil, &SkipRulesError{Package: e.Package, Err: err}
		}
		rules[e.Package] = pkgRules
	}
	return rules, nil
}

// ParseSkipRules parses skip.yml content, keeping the order of the file globs
func ParseSkipRules(data []byte) (SkipRules, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a mapping of file globs, got %s", root.Tag)
	}

	var rules SkipRules
	for i := 0; i+1 < len(root.Content); i += 2 {
		rule := SkipRule{Glob: root.Content[i].Value}
		if err := root.Content[i+1].Decode(&rule); err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Glob, err)
		}
		if _, err := path.Match(rule.Glob, ""); err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Glob, err)
		}

		fields := strings.Fields(rule.CheckFunc)
		if len(fields) == 0 {
			return nil, fmt.Errorf("rule %q: check_func is required", rule.Glob)
		}
		check, err := testhelper.Lookup(fields[len(fields)-1])
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Glob, err)
		}
		rule.check = check
		rule.negate = negationRegex.MatchString(rule.CheckFunc)
		rules = append(rules, rule)
	}
	return rules, nil
}

// SkipReason returns a non-empty reason if file must be skipped
func (rules SkipRules) SkipReason(file string) string {
	for _, rule := range rules {
		if ok, _ := path.Match(rule.Glob, file); !ok {
			continue
		}
		skip := rule.check(rule.CheckArgs...)
		if rule.negate {
			skip = !skip
		}
		if skip {
			return rule.reason()
		}
	}
	return ""
}

func (r SkipRule) reason() string {
	if r.Reason != "" {
		return r.Reason
	}
	quoted := make([]string, len(r.CheckArgs))
	for i, arg := range r.CheckArgs {
		quoted[i] = "'" + arg + "'"
	}
	return fmt.Sprintf("%s(%s)", r.CheckFunc, strings.Join(quoted, ", "))
}
