package datatransfer

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
)

// RunState is a step of a complete upload run:
//
//	Idle -> ConfigLoaded -> Connected -> Copying{File|Directory} -> Disconnected -> Success|Failed
//
// Once Connected, Disconnected is always reached before the run ends.
type RunState int

const (
	StateIdle RunState = iota
	StateConfigLoaded
	StateConnected
	StateCopyingFile
	StateCopyingDirectory
	StateDisconnected
	StateSuccess
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfigLoaded:
		return "config-loaded"
	case StateConnected:
		return "connected"
	case StateCopyingFile:
		return "copying-file"
	case StateCopyingDirectory:
		return "copying-directory"
	case StateDisconnected:
		return "disconnected"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RunConfig describes one invocation of the tool.
type RunConfig struct {
	// ConfigPath is the JSON connection settings file (default config.json).
	ConfigPath string

	// LocalPath is the file or directory to upload.
	LocalPath string

	// RemotePath is the destination file or directory.
	RemotePath string

	// Upload configures the copy.
	Upload UploadOptions

	// OnState, if set, is called on every state transition.
	OnState func(RunState)
}

// Run performs a complete upload: it classifies the local path, loads the
// configuration, opens a session, uploads and closes the session. The local
// path is checked first, so a missing source never opens a connection.
func Run(ctx context.Context, cfg RunConfig) (summary *UploadSummary, err error) {
	opts := cfg.Upload.WithDefaults()
	log := opts.Logger

	transition := func(s RunState) {
		log.WithField("state", s).Debug("Run state changed")
		if cfg.OnState != nil {
			cfg.OnState(s)
		}
	}
	transition(StateIdle)

	target, err := Classify(cfg.LocalPath)
	if err != nil {
		transition(StateFailed)
		return nil, err
	}

	desc, err := LoadConfig(cfg.ConfigPath)
	if err != nil {
		transition(StateFailed)
		return nil, err
	}
	transition(StateConfigLoaded)

	log.Infof("Connecting to %s", desc)
	session, err := Dial(ctx, desc, WithDialLogger(log))
	if err != nil {
		transition(StateFailed)
		return nil, err
	}
	transition(StateConnected)

	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			log.Warnf("Failed to close session: %v", closeErr)
		}
		transition(StateDisconnected)
		if err != nil {
			transition(StateFailed)
			return
		}
		transition(StateSuccess)
	}()

	if target.Kind == KindDirectory {
		transition(StateCopyingDirectory)
	} else {
		transition(StateCopyingFile)
	}

	summary, err = NewUploader(session, opts).Upload(ctx, target, cfg.RemotePath)
	if err != nil {
		return summary, err
	}

	log.Infof("Transfer complete: %d file(s), %s in %s",
		len(summary.Files), humanize.Bytes(uint64(summary.Bytes)), summary.Duration.Round(time.Millisecond))
	return summary, nil
}
