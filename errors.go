package datatransfer

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package wraps exactly one of
// these, so callers can tell categories apart with errors.Is.
var (
	// ErrConfig reports a missing, unreadable or malformed configuration file.
	ErrConfig = errors.New("configuration error")
	// ErrConnection reports a network level failure reaching the remote host.
	ErrConnection = errors.New("connection error")
	// ErrAuthentication reports that the remote host rejected the credentials.
	ErrAuthentication = errors.New("authentication error")
	// ErrPath reports a local source path that does not exist or cannot be uploaded.
	ErrPath = errors.New("local path error")
	// ErrRemoteDirectory reports a remote directory that could not be created.
	ErrRemoteDirectory = errors.New("remote directory error")
	// ErrTransfer reports an I/O failure while copying a file.
	ErrTransfer = errors.New("transfer error")
)

// TransferError identifies the file whose copy failed.
type TransferError struct {
	Task TransferTask
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%v: upload %s -> %s: %v", ErrTransfer, e.Task.LocalPath, e.Task.RemotePath, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// Is makes every TransferError match ErrTransfer, in addition to whatever
// the wrapped error matches.
func (e *TransferError) Is(target error) bool { return target == ErrTransfer }

type category struct {
	kind  error
	label string
	code  int
}

// categories is ordered by precedence: the first match wins when an error
// wraps more than one kind (a remote directory failure inside a transfer).
var categories = []category{
	{ErrConfig, "configuration error", 2},
	{ErrConnection, "connection error", 3},
	{ErrAuthentication, "authentication error", 4},
	{ErrPath, "local path error", 5},
	{ErrRemoteDirectory, "remote directory error", 6},
	{ErrTransfer, "transfer error", 7},
}

// Category returns a human readable label for the kind of err.
func Category(err error) string {
	for _, c := range categories {
		if errors.Is(err, c.kind) {
			return c.label
		}
	}
	return "error"
}

// ExitCode maps err to the process exit status: 0 for nil, a distinct
// non-zero status per error kind, and 1 for anything unclassified.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	for _, c := range categories {
		if errors.Is(err, c.kind) {
			return c.code
		}
	}
	return 1
}
