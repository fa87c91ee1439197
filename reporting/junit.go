package reporting

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sot/testr/types"
)

// JUnitTestSuites represents the root element of JUnit XML.
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite represents a test suite in JUnit XML.
type JUnitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	Timestamp string          `xml:"timestamp,attr"`
	TestCases []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase represents a single test case in JUnit XML.
type JUnitTestCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	File      string        `xml:"file,attr"`
	Line      string        `xml:"line,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitOutcome `xml:"failure"`
	Error     *JUnitOutcome `xml:"error"`
	Skipped   *JUnitOutcome `xml:"skipped"`
}

// JUnitOutcome is the body of a failure, error or skipped element
type JUnitOutcome struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

// JUnitFormat reads <stem>.xml as written by pytest --junitxml
type JUnitFormat struct{}

func (JUnitFormat) Name() string { return "junit" }

func (JUnitFormat) ArtifactPath(outDir string, script types.ScriptEntry) string {
	return artifactPath(outDir, script, ".xml")
}

func (f JUnitFormat) Parse(path string) ([]ParsedSuite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseJUnit(data)
}

func parseJUnit(data []byte) ([]ParsedSuite, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("empty XML document")
	}

	root, err := rootElement(data)
	if err != nil {
		return nil, err
	}

	var suites []JUnitTestSuite
	switch root {
	case "testsuites":
		var doc JUnitTestSuites
		if err := xml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		suites = doc.TestSuites
	case "testsuite":
		var doc JUnitTestSuite
		if err := xml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		suites = []JUnitTestSuite{doc}
	default:
		return nil, fmt.Errorf("unexpected root element <%s>", root)
	}

	parsed := make([]ParsedSuite, 0, len(suites))
	for _, s := range suites {
		ps := ParsedSuite{Name: s.Name, Cases: make([]types.TestCase, 0, len(s.TestCases))}
		for _, tc := range s.TestCases {
			c, err := tc.toTestCase()
			if err != nil {
				return nil, err
			}
			ps.Cases = append(ps.Cases, c)
		}
		parsed = append(parsed, ps)
	}
	return parsed, nil
}

// rootElement returns the local name of the document element
func rootElement(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return "", errors.New("no root element")
		}
		if err != nil {
			return "", err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

func (tc JUnitTestCase) toTestCase() (types.TestCase, error) {
	if !validDuration(tc.Time) {
		return types.TestCase{}, fmt.Errorf("test case %q: invalid time %v", tc.Name, tc.Time)
	}
	out := types.TestCase{
		Name:      tc.Name,
		Classname: tc.Classname,
		File:      tc.File,
		Time:      tc.Time,
		Status:    types.TestStatusPass,
	}
	if line, err := strconv.Atoi(strings.TrimSpace(tc.Line)); err == nil {
		out.Line = &line
	}

	// A JUnit error (e.g. a fixture blowing up) counts as a failure
	switch {
	case tc.Failure != nil:
		out.Status = types.TestStatusFail
		out.Failure = tc.Failure.toOutcome()
	case tc.Error != nil:
		out.Status = types.TestStatusFail
		out.Failure = tc.Error.toOutcome()
	case tc.Skipped != nil:
		out.Status = types.TestStatusSkip
		out.Skipped = tc.Skipped.toOutcome()
	}
	return out, nil
}

func (o *JUnitOutcome) toOutcome() *types.Outcome {
	return &types.Outcome{Message: o.Message, Output: strings.TrimSpace(o.Content)}
}
