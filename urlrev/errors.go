package urlrev

import (
	"errors"
	"fmt"
)

// FailureKind tells which stage failed for a single url() reference.
type FailureKind int

const (
	UnreadableLocalFile FailureKind = iota
	RemoteFetchFailure
	CustomHashFunctionFailure
	ReplacerFailure
)

func (k FailureKind) String() string {
	switch k {
	case UnreadableLocalFile:
		return "unreadable local file"
	case RemoteFetchFailure:
		return "remote fetch failure"
	case CustomHashFunctionFailure:
		return "custom hash function failure"
	case ReplacerFailure:
		return "replacer failure"
	default:
		return fmt.Sprintf("failure(%d)", int(k))
	}
}

// ErrUnexpectedStatus is wrapped when remote server answers with non 2xx status.
var ErrUnexpectedStatus = errors.New("unexpected response status")

// ResourceError describes why reference could not be revisioned. One such
// error voids rewrite of the whole declaration.
type ResourceError struct {
	Kind    FailureKind
	Locator Locator
	Err     error
}

func (e *ResourceError) Error() string {
	switch e.Kind {
	case UnreadableLocalFile:
		return fmt.Sprintf("unable to read local resource '%s': %v", e.Locator.Path, e.Err)
	case RemoteFetchFailure:
		return fmt.Sprintf("unable to fetch remote resource '%s': %v", e.Locator.Path, e.Err)
	case CustomHashFunctionFailure:
		return fmt.Sprintf("hash function failed for '%s': %v", e.Locator.Path, e.Err)
	default:
		return fmt.Sprintf("%s for '%s': %v", e.Kind, e.Locator.Path, e.Err)
	}
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}
