// Package runner executes test and post-process scripts one at a time, in the
// resolved order, each as a subprocess in its package output directory.
//
// The main components are:
//   - ExecContext: the immutable per-invocation environment of one script
//   - ScriptExecutor: runs one script, tees its output to <file>.log and
//     classifies the exit status
//   - SkipRules: per-package skip.yml rules evaluated before a script runs
//   - Runner: drives the executor across packages, preparing each package's
//     output directory and honouring stop-on-failure
package runner
