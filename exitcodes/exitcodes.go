// Package exitcodes defines the standard exit codes used by run_testr.
package exitcodes

// Exit code constants used by run_testr
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when no test case failed
// * TestFailure (1): Used when one or more test cases fail
// * RuntimeErr (2): Used when the run cannot be configured or its outputs cannot be written
const (
	Success     = 0 // All test cases pass or are skipped
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Configuration or output errors
)
