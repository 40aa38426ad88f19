package datatransfer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Kind says whether a Target is a single file or a directory tree.
type Kind int

const (
	KindFile Kind = iota + 1
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// Target is a classified local upload source.
type Target struct {
	Kind Kind
	Path string
	// Size is the file size for KindFile, zero for directories.
	Size int64
}

// Classify stats path (following symlinks) and reports whether it is a
// regular file or a directory. A missing path, or anything else such as a
// device or socket, fails with ErrPath.
func Classify(path string) (Target, error) {
	if path == "" {
		return Target{}, fmt.Errorf("%w: empty local path", ErrPath)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Target{}, fmt.Errorf("%w: local path does not exist: %s", ErrPath, path)
		}
		return Target{}, fmt.Errorf("%w: cannot access %s: %w", ErrPath, path, err)
	}

	switch {
	case info.Mode().IsRegular():
		return Target{Kind: KindFile, Path: path, Size: info.Size()}, nil
	case info.IsDir():
		return Target{Kind: KindDirectory, Path: path}, nil
	default:
		return Target{}, fmt.Errorf("%w: %s is not a regular file or directory (%s)", ErrPath, path, info.Mode().Type())
	}
}
