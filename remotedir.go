package datatransfer

import (
	"fmt"
	"path"
	"strings"

	"github.com/sirupsen/logrus"
)

// DirEnsurer creates missing remote directories, one path component at a
// time. Directories it has seen exist are remembered, so mirroring a tree
// stats each remote directory only once.
type DirEnsurer struct {
	fs    RemoteFS
	log   logrus.FieldLogger
	known map[string]struct{}
}

// NewDirEnsurer creates a DirEnsurer working on fs.
func NewDirEnsurer(fs RemoteFS, log logrus.FieldLogger) *DirEnsurer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DirEnsurer{
		fs:    fs,
		log:   log,
		known: make(map[string]struct{}),
	}
}

// Ensure makes sure dir and all its parents exist as directories.
// Absolute paths are walked from "/", relative ones from the login
// directory. A directory that already exists is not an error.
func (e *DirEnsurer) Ensure(dir string) error {
	dir = path.Clean(dir)
	if dir == "." || dir == "/" {
		return nil
	}
	if _, ok := e.known[dir]; ok {
		return nil
	}

	current := ""
	if path.IsAbs(dir) {
		current = "/"
	}
	for _, part := range strings.Split(strings.TrimPrefix(dir, "/"), "/") {
		current = path.Join(current, part)
		if _, ok := e.known[current]; ok {
			continue
		}
		if err := e.ensureOne(current); err != nil {
			return err
		}
		e.known[current] = struct{}{}
	}
	return nil
}

func (e *DirEnsurer) ensureOne(dir string) error {
	info, err := e.fs.Stat(dir)
	if err == nil {
		if info.IsDir() {
			return nil
		}
		return fmt.Errorf("%w: %s exists and is not a directory", ErrRemoteDirectory, dir)
	}

	// Some servers report a missing path with a generic failure instead of
	// "no such file", so any stat error leads to a mkdir attempt.
	e.log.Infof("Creating remote directory: %s", dir)
	mkErr := e.fs.Mkdir(dir)
	if mkErr == nil {
		return nil
	}

	// Lost a race or the server refuses mkdir on existing paths.
	if info, err := e.fs.Stat(dir); err == nil && info.IsDir() {
		return nil
	}
	return fmt.Errorf("%w: failed to create %s: %w", ErrRemoteDirectory, dir, mkErr)
}
