package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/sot/testr"
	"github.com/sot/testr/regress"
)

// RegressFilesCommand defines the "regress-files" command used by
// post-process scripts to publish outputs for regression comparison.
func RegressFilesCommand() *cli.Command {
	return &cli.Command{
		Name:      "regress-files",
		Usage:     "Copy output files to the regression directory",
		ArgsUsage: "FILE...",
		Description: `Copies files from the script output directory to the regression directory,
keeping their relative paths. Each --clean rule rewrites the matching lines of one file
before it is written, so run-specific values such as dates do not show up as differences.

Examples:
  run_testr regress-files out.dat index.rst
  run_testr regress-files --clean 'index.rst:Run time.*:Run time' index.rst`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "clean",
				Usage: "FILE:REGEX:REPL substitution applied to every line of FILE (repeatable)",
			},
			&cli.StringFlag{
				Name:    "out-dir",
				Usage:   "directory the files are read from",
				Value:   "",
				EnvVars: []string{regress.EnvOutDir},
			},
			&cli.StringFlag{
				Name:    "regress-dir",
				Usage:   "directory the files are written to",
				Value:   "",
				EnvVars: []string{regress.EnvRegressDir},
			},
		},
		Action: regressFilesAction,
	}
}

func regressFilesAction(c *cli.Context) error {
	files := c.Args().Slice()
	if len(files) == 0 {
		return testr.NewConfigurationError(errors.New("no files given"))
	}

	clean := make(map[string][]regress.CleanRule)
	for _, s := range c.StringSlice("clean") {
		file, rule, err := regress.ParseCleanRule(s)
		if err != nil {
			return testr.NewConfigurationError(err)
		}
		clean[file] = append(clean[file], rule)
	}

	if err := regress.MakeRegressFiles(files, c.String("out-dir"), c.String("regress-dir"), clean); err != nil {
		return testr.NewIOError(err)
	}
	return nil
}

// CheckFilesCommand defines the "check-files" command used by post-process
// scripts to scan outputs for warnings and errors.
func CheckFilesCommand() *cli.Command {
	return &cli.Command{
		Name:      "check-files",
		Usage:     "Fail if output files contain lines matching a check regex",
		ArgsUsage: "GLOB",
		Description: `Searches the output files matching GLOB for lines matching any --check regex,
ignoring case. Lines that also match an --allow regex are accepted. Exits 1 and lists
the offending lines when anything is found.

Example:
  run_testr check-files --check warning --check error --allow 'warning: deprecated' '*.log'`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "check",
				Usage:    "regex flagging a line (repeatable)",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "allow",
				Usage: "regex exempting a flagged line (repeatable)",
			},
			&cli.StringFlag{
				Name:    "out-dir",
				Usage:   "directory GLOB is relative to",
				Value:   "",
				EnvVars: []string{regress.EnvOutDir},
			},
		},
		Action: checkFilesAction,
	}
}

func checkFilesAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return testr.NewConfigurationError(fmt.Errorf("expected one file pattern, got %d", c.NArg()))
	}

	err := regress.CheckFiles(c.Args().First(), c.StringSlice("check"), c.StringSlice("allow"), c.String("out-dir"))
	var matchErr *regress.MatchError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &matchErr):
		return testr.NewTestFailureError(matchErr.Error())
	default:
		return testr.NewConfigurationError(err)
	}
}
