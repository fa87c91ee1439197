package reporting

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/sot/testr/types"
)

// pytestReport is the subset of a pytest-json-report document we read
type pytestReport struct {
	Root  string       `json:"root"`
	Tests []pytestTest `json:"tests"`
}

type pytestTest struct {
	NodeID   string       `json:"nodeid"`
	LineNo   *int         `json:"lineno"`
	Outcome  string       `json:"outcome"`
	Setup    *pytestStage `json:"setup"`
	Call     *pytestStage `json:"call"`
	Teardown *pytestStage `json:"teardown"`
}

type pytestStage struct {
	Duration float64      `json:"duration"`
	Outcome  string       `json:"outcome"`
	LongRepr string       `json:"longrepr"`
	Crash    *pytestCrash `json:"crash"`
}

type pytestCrash struct {
	Path    string `json:"path"`
	LineNo  int    `json:"lineno"`
	Message string `json:"message"`
}

// PytestJSONFormat reads <stem>.report.json as written by pytest-json-report
type PytestJSONFormat struct{}

func (PytestJSONFormat) Name() string { return "pytest-json" }

func (PytestJSONFormat) ArtifactPath(outDir string, script types.ScriptEntry) string {
	return artifactPath(outDir, script, ".report.json")
}

func (f PytestJSONFormat) Parse(path string) ([]ParsedSuite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parsePytestJSON(data)
}

func parsePytestJSON(data []byte) ([]ParsedSuite, error) {
	var report pytestReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, err
	}
	if report.Tests == nil {
		return nil, errors.New("missing tests array")
	}

	suite := ParsedSuite{Name: "pytest", Cases: make([]types.TestCase, 0, len(report.Tests))}
	for _, t := range report.Tests {
		if t.NodeID == "" {
			return nil, errors.New("test entry without nodeid")
		}
		tc, err := t.toTestCase()
		if err != nil {
			return nil, err
		}
		suite.Cases = append(suite.Cases, tc)
	}
	return []ParsedSuite{suite}, nil
}

func (t pytestTest) toTestCase() (types.TestCase, error) {
	file, classname, name := splitNodeID(t.NodeID)
	tc := types.TestCase{
		Name:      name,
		Classname: classname,
		File:      file,
		Line:      t.LineNo,
	}

	stages := []*pytestStage{t.Setup, t.Call, t.Teardown}
	for _, s := range stages {
		if s != nil {
			tc.Time += s.Duration
		}
	}
	if !validDuration(tc.Time) {
		return types.TestCase{}, fmt.Errorf("test %q: invalid duration %v", t.NodeID, tc.Time)
	}

	switch t.Outcome {
	case "passed", "xpassed":
		tc.Status = types.TestStatusPass
	case "skipped", "xfailed":
		tc.Status = types.TestStatusSkip
		tc.Skipped = stageOutcome(stages, "skipped")
		if tc.Skipped == nil {
			tc.Skipped = &types.Outcome{Message: t.Outcome}
		}
	default:
		tc.Status = types.TestStatusFail
		tc.Failure = stageOutcome(stages, "failed")
		if tc.Failure == nil {
			tc.Failure = &types.Outcome{Message: t.Outcome}
		}
	}
	return tc, nil
}

// stageOutcome describes the first stage that ended with outcome
func stageOutcome(stages []*pytestStage, outcome string) *types.Outcome {
	for _, s := range stages {
		if s == nil || s.Outcome != outcome {
			continue
		}
		o := &types.Outcome{Output: s.LongRepr}
		if s.Crash != nil {
			o.Message = s.Crash.Message
		}
		return o
	}
	return nil
}

// splitNodeID turns "dir/test_mod.py::TestClass::test_x[1]" into the file,
// the dotted classname pytest's JUnit output would use and the test name.
func splitNodeID(nodeID string) (file, classname, name string) {
	parts := strings.Split(nodeID, "::")
	file = parts[0]
	name = parts[len(parts)-1]

	if len(parts) == 1 {
		return file, "", name
	}

	module := strings.TrimSuffix(file, path.Ext(file))
	module = strings.ReplaceAll(module, "/", ".")
	groups := append([]string{module}, parts[1:len(parts)-1]...)
	return file, strings.Join(groups, "."), name
}
