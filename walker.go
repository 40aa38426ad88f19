package datatransfer

import (
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// SymlinkPolicy specifies how the Walker treats symbolic links.
type SymlinkPolicy string

const (
	// SymlinkSkip ignores every symbolic link (default).
	SymlinkSkip SymlinkPolicy = "skip"
	// SymlinkFollow uploads links that resolve to regular files. Links to
	// directories are never descended into, so link cycles cannot occur.
	SymlinkFollow SymlinkPolicy = "follow"
)

// ParseSymlinkPolicy validates a policy name; the empty string means skip.
func ParseSymlinkPolicy(s string) (SymlinkPolicy, error) {
	switch SymlinkPolicy(strings.ToLower(s)) {
	case "", SymlinkSkip:
		return SymlinkSkip, nil
	case SymlinkFollow:
		return SymlinkFollow, nil
	default:
		return "", fmt.Errorf("invalid symlink policy %q: must be %q or %q", s, SymlinkSkip, SymlinkFollow)
	}
}

// Walker mirrors a local directory tree onto a remote root.
type Walker struct {
	// LocalRoot is the local directory to upload.
	LocalRoot string

	// RemoteRoot is the remote directory that receives LocalRoot's contents.
	RemoteRoot string

	// Dirs creates remote directories before files are placed in them.
	Dirs *DirEnsurer

	// Exclude is a list of glob patterns matched against base names and
	// slash-separated relative paths. Example: []string{"*.tmp", ".git"}
	Exclude []string

	// Symlinks selects the symlink policy. Empty means SymlinkSkip.
	Symlinks SymlinkPolicy

	Log logrus.FieldLogger
}

// Tasks returns a lazy sequence with one TransferTask per regular file
// under LocalRoot, each file exactly once. Every remote directory on the
// way, empty ones included, is created before a task inside it is yielded.
// A symlinked LocalRoot is followed. Devices, sockets and pipes are
// skipped. On the first error the sequence
// yields it and ends. Each call walks the tree again.
func (w *Walker) Tasks() iter.Seq2[TransferTask, error] {
	log := w.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	return func(yield func(TransferTask, error) bool) {
		if err := w.Dirs.Ensure(w.RemoteRoot); err != nil {
			yield(TransferTask{}, err)
			return
		}

		root, err := walkRoot(w.LocalRoot)
		if err != nil {
			yield(TransferTask{}, err)
			return
		}

		stopped := false
		err = filepath.WalkDir(root, func(walkPath string, d fs.DirEntry, err error) error {
			if err != nil {
				return fmt.Errorf("%w: cannot read %s: %w", ErrPath, walkPath, err)
			}

			relPath, err := filepath.Rel(root, walkPath)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrPath, err)
			}
			if relPath == "." {
				return nil
			}
			localPath := filepath.Join(w.LocalRoot, relPath)

			if shouldExclude(relPath, w.Exclude) {
				log.Debugf("Excluded: %s", relPath)
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			remotePath := RemotePath(w.RemoteRoot, relPath)

			switch mode := d.Type(); {
			case d.IsDir():
				return w.Dirs.Ensure(remotePath)
			case mode.IsRegular():
			case mode&fs.ModeSymlink != 0:
				if w.Symlinks != SymlinkFollow {
					log.Debugf("Skipping symlink: %s", relPath)
					return nil
				}
				info, err := os.Stat(localPath)
				if err != nil {
					log.Warnf("Skipping broken symlink %s: %v", relPath, err)
					return nil
				}
				if !info.Mode().IsRegular() {
					log.Debugf("Skipping symlink to non-regular file: %s", relPath)
					return nil
				}
			default:
				log.Debugf("Skipping %s: not a regular file (%s)", relPath, mode)
				return nil
			}

			if err := w.Dirs.Ensure(path.Dir(remotePath)); err != nil {
				return err
			}
			if !yield(TransferTask{LocalPath: localPath, RemotePath: remotePath}, nil) {
				stopped = true
				return fs.SkipAll
			}
			return nil
		})

		if err != nil && !stopped {
			yield(TransferTask{}, err)
		}
	}
}

// walkRoot resolves a symlinked root so WalkDir descends into the directory
// it points to instead of reporting the link itself.
func walkRoot(root string) (string, error) {
	info, err := os.Lstat(root)
	if err != nil || info.Mode()&fs.ModeSymlink == 0 {
		return root, nil
	}
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("%w: cannot resolve %s: %w", ErrPath, root, err)
	}
	return resolved, nil
}

// RemotePath maps a path relative to the local root onto remoteRoot.
// The result always uses forward slashes.
func RemotePath(remoteRoot, relPath string) string {
	return path.Join(remoteRoot, filepath.ToSlash(relPath))
}

func shouldExclude(relPath string, patterns []string) bool {
	slashed := filepath.ToSlash(relPath)
	for _, pattern := range patterns {
		if matched, _ := path.Match(pattern, path.Base(slashed)); matched {
			return true
		}
		if matched, _ := path.Match(pattern, slashed); matched {
			return true
		}
		for _, part := range strings.Split(slashed, "/") {
			if matched, _ := path.Match(pattern, part); matched {
				return true
			}
		}
	}
	return false
}
