package simbricks

// errors.go holds the error kinds surfaced to the build procedure, and helpers
// for aggregating errors and probing the file system before an export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrAddrExhausted is returned by an AddrAllocator that has handed out its last address
	ErrAddrExhausted = errors.New("address allocator exhausted")

	// ErrNoApp is returned by NodeConfig lifecycle calls that need the application but have none
	ErrNoApp = errors.New("node configuration has no application")

	// ErrUnknownKind flags a node or application kind name that is not registered
	ErrUnknownKind = errors.New("unknown kind")

	// ErrInvalidTopology is wrapped by every failure reported from ExperimentFrame.Validate
	ErrInvalidTopology = errors.New("invalid topology")
)

// ReportErrs transforms a list of errors and transforms the non-nil ones into a single error
// with comma-separated report of all the constituent errors, and returns it.
// errors.Is still sees every constituent.
func ReportErrs(errs []error) error {
	nonNil := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	if len(nonNil) == 0 {
		return nil
	}

	return &errList{errs: nonNil}
}

type errList struct {
	errs []error
}

func (el *errList) Error() string {
	msgs := make([]string, len(el.errs))
	for idx, err := range el.errs {
		msgs[idx] = err.Error()
	}
	return strings.Join(msgs, ",")
}

func (el *errList) Unwrap() []error {
	return el.errs
}

// CheckDirectories probes the file system for the existence
// of every directory listed.  Returns a boolean
// indicating whether all dirs are valid, and returns an aggregated error
// if any checks failed.
func CheckDirectories(dirs []string) (bool, error) {
	failures := []error{}

	for _, dir := range dirs {
		if len(dir) == 0 {
			continue
		}

		info, err := os.Stat(dir)
		if err != nil {
			failures = append(failures, fmt.Errorf("%s not reachable", dir))
			continue
		}
		if !info.IsDir() {
			failures = append(failures, fmt.Errorf("%s not a directory", dir))
		}
	}

	err := ReportErrs(failures)
	return err == nil, err
}

// CheckOutputFiles probes the file system to ensure that the directory
// of every argument filename exists, so the file can be written.
func CheckOutputFiles(names []string) (bool, error) {
	return CheckFiles(names, false)
}

// CheckReadableFiles probes the file system to ensure that every
// one of the argument filenames exists
func CheckReadableFiles(names []string) (bool, error) {
	return CheckFiles(names, true)
}

// CheckFiles probes the file system for permitted access to all the
// argument filenames, optionally checking also for the existence
// of those files for the purposes of reading them.
func CheckFiles(names []string, checkExistence bool) (bool, error) {
	errs := make([]error, 0)

	for _, name := range names {
		if len(name) == 0 {
			continue
		}

		// split off the directory portion of the path
		directory, _ := filepath.Split(name)
		if len(directory) == 0 {
			directory = "."
		}
		if _, err := os.Stat(directory); err != nil {
			errs = append(errs, err)
			continue
		}

		if checkExistence {
			if _, err := os.Stat(name); err != nil {
				errs = append(errs, err)
			}
		}
	}

	err := ReportErrs(errs)
	return err == nil, err
}
