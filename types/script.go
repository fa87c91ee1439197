package types

import (
	"io/fs"
	"path"
	"strings"
)

// ScriptKind distinguishes test scripts from post-process scripts
type ScriptKind string

const (
	KindTest ScriptKind = "test"
	KindPost ScriptKind = "post"
)

// Interpreter is the program used to run a script
type Interpreter string

const (
	InterpreterPython Interpreter = "python"
	InterpreterShell  Interpreter = "shell"
	InterpreterNative Interpreter = "native-executable"
	InterpreterNone   Interpreter = "none"
)

// File name prefixes that mark a file as a script entry
const (
	TestPrefix = "test_"
	PostPrefix = "post_"
)

// Package is a named unit under test, identified by its directory
type Package struct {
	Name string
	Path string // absolute path of the package directory
}

// ScriptEntry is one discoverable test or post-process script within a package
type ScriptEntry struct {
	Package     string
	File        string
	Kind        ScriptKind
	Interpreter Interpreter
}

// Path returns the canonical "package/file" string used for selection and reporting
func (s ScriptEntry) Path() string {
	return s.Package + "/" + s.File
}

// Stem returns the file name without its extension
func (s ScriptEntry) Stem() string {
	return strings.TrimSuffix(s.File, path.Ext(s.File))
}

// LogName returns the name of the file that captures the script's output
func (s ScriptEntry) LogName() string {
	return s.File + ".log"
}

// String implements fmt.Stringer
func (s ScriptEntry) String() string {
	return s.Path()
}

// ClassifyScript decides from a file name and mode whether the file is a script
// entry, and if so which kind it is and how it must be run.
//
// Files must start with "test_" or "post_". A ".py" suffix runs with python and
// ".sh" with the shell. Anything else must carry an executable bit and is run
// directly.
func ClassifyScript(name string, mode fs.FileMode) (ScriptKind, Interpreter, bool) {
	var kind ScriptKind
	switch {
	case strings.HasPrefix(name, TestPrefix):
		kind = KindTest
	case strings.HasPrefix(name, PostPrefix):
		kind = KindPost
	default:
		return "", InterpreterNone, false
	}

	if !mode.IsRegular() {
		return "", InterpreterNone, false
	}

	switch path.Ext(name) {
	case ".py":
		return kind, InterpreterPython, true
	case ".sh":
		return kind, InterpreterShell, true
	}

	if mode.Perm()&0o111 != 0 {
		return kind, InterpreterNative, true
	}
	return "", InterpreterNone, false
}

// ScriptLess orders scripts within one package: tests before post-process
// scripts, then by file name.
func ScriptLess(a, b ScriptEntry) bool {
	if a.Kind != b.Kind {
		return a.Kind == KindTest
	}
	return a.File < b.File
}
