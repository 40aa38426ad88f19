package datatransfer

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// RemoteFS abstracts the SFTP operations the uploader needs.
// This allows for mocking in tests.
type RemoteFS interface {
	Create(path string) (RemoteFile, error)
	Open(path string) (RemoteFile, error)
	Stat(path string) (os.FileInfo, error)
	Mkdir(path string) error
	Getwd() (string, error)
	Close() error
}

// RemoteFile abstracts an open remote file.
type RemoteFile interface {
	io.Reader
	io.Writer
	io.Closer
}

// sftpFS wraps the real sftp.Client to implement RemoteFS.
type sftpFS struct {
	client *sftp.Client
}

var _ RemoteFS = (*sftpFS)(nil)

func (w *sftpFS) Create(path string) (RemoteFile, error) { return w.client.Create(path) }
func (w *sftpFS) Open(path string) (RemoteFile, error)   { return w.client.Open(path) }
func (w *sftpFS) Stat(path string) (os.FileInfo, error)  { return w.client.Stat(path) }
func (w *sftpFS) Mkdir(path string) error                { return w.client.Mkdir(path) }
func (w *sftpFS) Getwd() (string, error)                 { return w.client.Getwd() }
func (w *sftpFS) Close() error                           { return w.client.Close() }

// Session is an open, authenticated SFTP session. It has exactly one
// owner, which must Close it once done.
type Session struct {
	sshClient *ssh.Client
	fs        RemoteFS
	closed    bool
}

// DialOption configures Dial.
type DialOption func(*dialOptions)

type dialOptions struct {
	log logrus.FieldLogger
}

// WithDialLogger sets the logger used for host key warnings and progress
// of the connection steps.
func WithDialLogger(log logrus.FieldLogger) DialOption {
	return func(o *dialOptions) {
		o.log = log
	}
}

// Dial connects to d.Addr(), authenticates with the password and starts the
// SFTP subsystem. Network and handshake failures wrap ErrConnection;
// rejected credentials wrap ErrAuthentication.
func Dial(ctx context.Context, d ConnectionDescriptor, opts ...DialOption) (*Session, error) {
	o := dialOptions{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	d = d.WithDefaults()
	if err := d.Validate(); err != nil {
		return nil, err
	}

	hostKeyCallback, err := buildHostKeyCallback(d, o.log)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to configure host key verification: %w", ErrConfig, err)
	}

	sshConfig := &ssh.ClientConfig{
		User:            d.Username,
		Auth:            buildAuthMethods(d),
		HostKeyCallback: hostKeyCallback,
		Timeout:         d.Timeout,
	}

	addr := d.Addr()
	o.log.Debugf("Opening SSH transport to %s", addr)

	dialCtx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to %s: %w", ErrConnection, addr, err)
	}

	// Abort a stalled handshake when ctx ends or the timeout elapses.
	stop := context.AfterFunc(dialCtx, func() { conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(d.Timeout))

	o.log.Debugf("Authenticating as %s", d.Username)
	ncc, chans, reqs, err := ssh.NewClientConn(conn, addr, sshConfig)
	if !stop() && err == nil {
		err = dialCtx.Err()
	}
	if err != nil {
		conn.Close()
		return nil, classifyHandshakeError(addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	sshClient := ssh.NewClient(ncc, chans, reqs)

	o.log.Debugf("Authenticated, starting SFTP subsystem")
	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("%w: failed to start SFTP subsystem on %s: %w", ErrConnection, addr, err)
	}

	return &Session{
		sshClient: sshClient,
		fs:        &sftpFS{client: sftpClient},
	}, nil
}

// NewSession creates a Session over a custom RemoteFS implementation.
// This is primarily used for testing with mock file systems.
func NewSession(fs RemoteFS) *Session {
	return &Session{fs: fs}
}

// FS returns the remote file system of the session.
func (s *Session) FS() RemoteFS {
	return s.fs
}

// Close closes the SFTP and SSH connections. Calls after the first are no-ops.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if s.fs != nil {
		firstErr = s.fs.Close()
	}
	if s.sshClient != nil {
		if err := s.sshClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Check opens a session, resolves the remote working directory and closes
// the session again. It returns the working directory.
func Check(ctx context.Context, d ConnectionDescriptor, opts ...DialOption) (string, error) {
	session, err := Dial(ctx, d, opts...)
	if err != nil {
		return "", err
	}
	defer session.Close()

	wd, err := session.fs.Getwd()
	if err != nil {
		return "", fmt.Errorf("%w: failed to resolve remote working directory: %w", ErrConnection, err)
	}
	return wd, nil
}

func buildAuthMethods(d ConnectionDescriptor) []ssh.AuthMethod {
	// Many servers only offer keyboard-interactive for passwords.
	answer := ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range answers {
			answers[i] = d.Password
		}
		return answers, nil
	})
	return []ssh.AuthMethod{ssh.Password(d.Password), answer}
}

var authFailureMessages = []string{
	"unable to authenticate",
	"no supported methods remain",
}

// classifyHandshakeError separates rejected credentials from every other
// handshake failure.
func classifyHandshakeError(addr string, err error) error {
	errMsg := strings.ToLower(err.Error())
	for _, msg := range authFailureMessages {
		if strings.Contains(errMsg, msg) {
			return fmt.Errorf("%w: %s rejected the credentials: %w", ErrAuthentication, addr, err)
		}
	}
	return fmt.Errorf("%w: SSH handshake with %s failed: %w", ErrConnection, addr, err)
}
