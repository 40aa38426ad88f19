package datatransfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"time"
)

// DefaultChunkSize is the copy buffer size, and so the granularity of
// progress callbacks.
const DefaultChunkSize = 32 * 1024

// TransferTask is one file copy: a local file and its remote destination.
type TransferTask struct {
	LocalPath  string
	RemotePath string
}

// ProgressFunc receives the cumulative number of bytes sent and the file
// size. It is called once with sent == 0 before the first chunk and then
// after every chunk.
type ProgressFunc func(sent, total int64)

// CopyOptions configures CopyFile.
type CopyOptions struct {
	// ChunkSize is the read/write buffer size (default 32 KiB).
	ChunkSize int

	// VerifyChecksum reads the remote file back after upload and compares
	// its SHA256 hash with the local content.
	VerifyChecksum bool
}

// WithDefaults returns a copy of the options with default values applied.
func (o CopyOptions) WithDefaults() CopyOptions {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	return o
}

// TransferResult describes a completed copy.
type TransferResult struct {
	Task     TransferTask
	Bytes    int64
	Duration time.Duration
	// Checksum is the SHA256 of the uploaded content, set only when
	// VerifyChecksum was requested.
	Checksum string
}

// CopyFile uploads task.LocalPath to task.RemotePath, replacing any existing
// remote file. The remote parent directory must already exist. After the
// copy the remote file is closed and its size compared with the bytes sent,
// so a truncated upload is never reported as complete. Every failure is a
// *TransferError.
func CopyFile(ctx context.Context, rfs RemoteFS, task TransferTask, progress ProgressFunc, opts CopyOptions) (TransferResult, error) {
	opts = opts.WithDefaults()
	if progress == nil {
		progress = func(int64, int64) {}
	}

	result := TransferResult{Task: task}
	fail := func(err error) (TransferResult, error) {
		return result, &TransferError{Task: task, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("operation cancelled: %w", err))
	}

	localFile, err := os.Open(task.LocalPath)
	if err != nil {
		return fail(fmt.Errorf("failed to open local file: %w", err))
	}
	defer localFile.Close()

	info, err := localFile.Stat()
	if err != nil {
		return fail(fmt.Errorf("failed to stat local file: %w", err))
	}
	total := info.Size()

	remoteFile, err := rfs.Create(task.RemotePath)
	if err != nil {
		return fail(fmt.Errorf("failed to create remote file: %w", err))
	}

	var src io.Reader = localFile
	var h hash.Hash
	if opts.VerifyChecksum {
		h = sha256.New()
		src = io.TeeReader(localFile, h)
	}

	start := time.Now()
	sent, copyErr := copyChunks(ctx, remoteFile, src, total, opts.ChunkSize, progress)
	closeErr := remoteFile.Close()
	result.Bytes = sent
	result.Duration = time.Since(start)

	if copyErr != nil {
		return fail(copyErr)
	}
	if closeErr != nil {
		return fail(fmt.Errorf("failed to finalize remote file: %w", closeErr))
	}

	remoteInfo, err := rfs.Stat(task.RemotePath)
	if err != nil {
		return fail(fmt.Errorf("failed to stat uploaded file: %w", err))
	}
	if remoteInfo.Size() != sent {
		return fail(fmt.Errorf("remote size %d does not match %d bytes sent", remoteInfo.Size(), sent))
	}

	if h != nil {
		localHash := "sha256:" + hex.EncodeToString(h.Sum(nil))
		remoteHash, err := remoteFileHash(rfs, task.RemotePath)
		if err != nil {
			return fail(err)
		}
		if remoteHash != localHash {
			return fail(fmt.Errorf("checksum mismatch: local %s, remote %s", localHash, remoteHash))
		}
		result.Checksum = localHash
	}

	return result, nil
}

func copyChunks(ctx context.Context, dst io.Writer, src io.Reader, total int64, chunkSize int, progress ProgressFunc) (int64, error) {
	buf := make([]byte, chunkSize)
	var sent int64

	progress(0, total)
	for {
		if err := ctx.Err(); err != nil {
			return sent, fmt.Errorf("upload cancelled: %w", err)
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			written, writeErr := dst.Write(buf[:n])
			sent += int64(written)
			if writeErr != nil {
				return sent, fmt.Errorf("failed to write remote file: %w", writeErr)
			}
			if written != n {
				return sent, fmt.Errorf("failed to write remote file: %w", io.ErrShortWrite)
			}
			progress(sent, total)
		}
		if readErr == io.EOF {
			return sent, nil
		}
		if readErr != nil {
			return sent, fmt.Errorf("failed to read local file: %w", readErr)
		}
	}
}

func remoteFileHash(rfs RemoteFS, remotePath string) (string, error) {
	file, err := rfs.Open(remotePath)
	if err != nil {
		return "", fmt.Errorf("failed to open remote file for verification: %w", err)
	}
	defer file.Close()

	sum, _, err := hashReader(file)
	if err != nil {
		return "", fmt.Errorf("failed to read remote file for verification: %w", err)
	}
	return sum, nil
}

// HashFile computes the SHA256 hash of a file.
func HashFile(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()

	return hashReader(file)
}

func hashReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	size, err := io.Copy(h, r)
	if err != nil {
		return "", 0, err
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), size, nil
}
