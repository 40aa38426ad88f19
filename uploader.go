package datatransfer

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// UploadOptions configures an Uploader.
type UploadOptions struct {
	// Exclude is a list of glob patterns to skip during directory uploads.
	Exclude []string

	// Symlinks is the symlink policy for directory uploads (default skip).
	Symlinks SymlinkPolicy

	// KeepGoing continues a directory upload after a file fails. The upload
	// still returns an error naming every failed file. By default the first
	// failure stops the upload.
	KeepGoing bool

	// Copy configures each file copy.
	Copy CopyOptions

	// Reporter presents per-file progress (default NopReporter).
	Reporter Reporter

	// Logger receives step and summary messages (default logrus standard logger).
	Logger logrus.FieldLogger
}

// WithDefaults returns a copy of the options with default values applied.
func (o UploadOptions) WithDefaults() UploadOptions {
	if o.Symlinks == "" {
		o.Symlinks = SymlinkSkip
	}
	if o.Reporter == nil {
		o.Reporter = NopReporter{}
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	o.Copy = o.Copy.WithDefaults()
	return o
}

// UploadSummary represents the result of an upload.
type UploadSummary struct {
	// Files contains the result of each successful copy, in upload order.
	Files []TransferResult

	// Failed lists the tasks that failed (only more than one with KeepGoing).
	Failed []TransferTask

	// Bytes is the total number of bytes uploaded.
	Bytes int64

	// Duration is the wall time of the whole upload.
	Duration time.Duration
}

// Uploader copies a Target through a Session, one file at a time.
type Uploader struct {
	session *Session
	opts    UploadOptions
	dirs    *DirEnsurer
	log     logrus.FieldLogger
}

// NewUploader creates an Uploader. The session stays owned by the caller.
func NewUploader(session *Session, opts UploadOptions) *Uploader {
	opts = opts.WithDefaults()
	return &Uploader{
		session: session,
		opts:    opts,
		dirs:    NewDirEnsurer(session.FS(), opts.Logger),
		log:     opts.Logger,
	}
}

// Upload copies target to remotePath. A file target lands at remotePath,
// or inside it when remotePath ends with "/" or is an existing remote
// directory. A directory target is mirrored below remotePath.
func (u *Uploader) Upload(ctx context.Context, target Target, remotePath string) (*UploadSummary, error) {
	start := time.Now()
	summary := &UploadSummary{}
	defer func() { summary.Duration = time.Since(start) }()

	switch target.Kind {
	case KindFile:
		return summary, u.uploadFile(ctx, summary, target.Path, remotePath)
	case KindDirectory:
		return summary, u.uploadDirectory(ctx, summary, target.Path, remotePath)
	default:
		return summary, fmt.Errorf("%w: unsupported target kind %s", ErrPath, target.Kind)
	}
}

func (u *Uploader) uploadFile(ctx context.Context, summary *UploadSummary, localPath, remotePath string) error {
	remotePath = u.fileDestination(localPath, remotePath)
	u.log.Infof("Uploading file: %s -> %s", localPath, remotePath)

	if err := u.dirs.Ensure(path.Dir(remotePath)); err != nil {
		return err
	}

	task := TransferTask{LocalPath: localPath, RemotePath: remotePath}
	result, err := u.copyOne(ctx, task)
	if err != nil {
		summary.Failed = append(summary.Failed, task)
		return err
	}
	summary.add(result)
	return nil
}

func (u *Uploader) uploadDirectory(ctx context.Context, summary *UploadSummary, localDir, remoteDir string) error {
	u.log.Infof("Uploading directory: %s -> %s", localDir, remoteDir)

	walker := &Walker{
		LocalRoot:  localDir,
		RemoteRoot: remoteDir,
		Dirs:       u.dirs,
		Exclude:    u.opts.Exclude,
		Symlinks:   u.opts.Symlinks,
		Log:        u.log,
	}

	var failures []error
	for task, err := range walker.Tasks() {
		if err != nil {
			return errors.Join(append(failures, err)...)
		}

		result, err := u.copyOne(ctx, task)
		if err != nil {
			summary.Failed = append(summary.Failed, task)
			if !u.opts.KeepGoing {
				return err
			}
			u.log.Errorf("%v", err)
			failures = append(failures, err)
			continue
		}
		summary.add(result)
	}

	if len(failures) > 0 {
		return fmt.Errorf("%w: %d of %d files failed:\n%w",
			ErrTransfer, len(failures), len(failures)+len(summary.Files), errors.Join(failures...))
	}
	return nil
}

func (u *Uploader) copyOne(ctx context.Context, task TransferTask) (TransferResult, error) {
	u.opts.Reporter.Begin(filepath.Base(task.LocalPath))
	result, err := CopyFile(ctx, u.session.FS(), task, u.opts.Reporter.Update, u.opts.Copy)
	u.opts.Reporter.Finish(result, err)
	if err == nil {
		u.log.Debugf("Uploaded %s (%s in %s)", task.RemotePath,
			humanize.Bytes(uint64(result.Bytes)), result.Duration.Round(time.Millisecond))
	}
	return result, err
}

// fileDestination appends the local base name when remotePath names a
// directory.
func (u *Uploader) fileDestination(localPath, remotePath string) string {
	base := filepath.Base(localPath)
	if remotePath == "" || strings.HasSuffix(remotePath, "/") {
		return path.Join(remotePath, base)
	}
	if info, err := u.session.FS().Stat(remotePath); err == nil && info.IsDir() {
		return path.Join(remotePath, base)
	}
	return remotePath
}

func (s *UploadSummary) add(r TransferResult) {
	s.Files = append(s.Files, r)
	s.Bytes += r.Bytes
}
