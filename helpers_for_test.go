package datatransfer

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

const (
	testUser     = "root"
	testPassword = "secret"
)

// createTempFile creates a temporary file with the given content.
func createTempFile(t *testing.T, content []byte) string {
	t.Helper()

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test_file")
	if err := os.WriteFile(tmpFile, content, 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}

	return tmpFile
}

// createTestFileStructure creates a directory structure with files for testing.
// Files is a map of relative path -> content.
func createTestFileStructure(t *testing.T, files map[string][]byte) string {
	t.Helper()

	tmpDir := t.TempDir()

	for relPath, content := range files {
		fullPath := filepath.Join(tmpDir, relPath)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("failed to create directory: %v", err)
		}
		if err := os.WriteFile(fullPath, content, 0644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
	}

	return tmpDir
}

// writeConfig writes settings as a JSON config file and returns its path.
func writeConfig(t *testing.T, settings map[string]any) string {
	t.Helper()

	data, err := json.Marshal(settings)
	if err != nil {
		t.Fatalf("failed to encode config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// quietLogger returns a logger that discards everything.
func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// testSSHServer is an in-process SSH server with an in-memory SFTP
// subsystem. It accepts password authentication for testUser only.
type testSSHServer struct {
	host     string
	port     int
	hostKey  ssh.Signer
	handlers sftp.Handlers
}

func startTestSSHServer(t testing.TB) *testSSHServer {
	t.Helper()

	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(privateKey)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if c.User() == testUser && string(password) == testPassword {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}
	config.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	addr := listener.Addr().(*net.TCPAddr)
	s := &testSSHServer{
		host:     "127.0.0.1",
		port:     addr.Port,
		hostKey:  signer,
		handlers: sftp.InMemHandler(),
	}

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go s.serveConn(conn, config)
		}
	}()

	return s
}

func (s *testSSHServer) serveConn(nConn net.Conn, config *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(nConn, config)
	if err != nil {
		nConn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}

		go func(in <-chan *ssh.Request) {
			for req := range in {
				// Payload is a uint32 length followed by the subsystem name.
				ok := req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp"
				_ = req.Reply(ok, nil)
			}
		}(requests)

		go func() {
			server := sftp.NewRequestServer(channel, s.handlers)
			_ = server.Serve()
			server.Close()
		}()
	}
}

func (s *testSSHServer) addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// descriptor returns valid connection settings for the server.
func (s *testSSHServer) descriptor() ConnectionDescriptor {
	return ConnectionDescriptor{
		Host:                  s.host,
		Port:                  s.port,
		Username:              testUser,
		Password:              testPassword,
		Timeout:               5 * time.Second,
		InsecureIgnoreHostKey: true,
	}
}

// configFile writes the server's settings as a config file.
func (s *testSSHServer) configFile(t *testing.T) string {
	t.Helper()
	return writeConfig(t, map[string]any{
		"host":                     s.host,
		"port":                     s.port,
		"username":                 testUser,
		"password":                 testPassword,
		"timeout":                  5,
		"insecure_ignore_host_key": true,
	})
}

// withSFTP opens an independent SFTP client to inspect the server.
func (s *testSSHServer) withSFTP(t *testing.T, fn func(client *sftp.Client)) {
	t.Helper()

	conn, err := ssh.Dial("tcp", s.addr(), &ssh.ClientConfig{
		User:            testUser,
		Auth:            []ssh.AuthMethod{ssh.Password(testPassword)},
		HostKeyCallback: ssh.FixedHostKey(s.hostKey.PublicKey()),
		Timeout:         5 * time.Second,
	})
	if err != nil {
		t.Fatalf("failed to dial test server: %v", err)
	}
	defer conn.Close()

	client, err := sftp.NewClient(conn)
	if err != nil {
		t.Fatalf("failed to start sftp client: %v", err)
	}
	defer client.Close()

	fn(client)
}

// readFile returns the content of a remote file, failing the test if it
// cannot be read.
func (s *testSSHServer) readFile(t *testing.T, path string) []byte {
	t.Helper()

	var content []byte
	s.withSFTP(t, func(client *sftp.Client) {
		f, err := client.Open(path)
		if err != nil {
			t.Fatalf("failed to open remote %s: %v", path, err)
		}
		defer f.Close()
		content, err = io.ReadAll(f)
		if err != nil {
			t.Fatalf("failed to read remote %s: %v", path, err)
		}
	})
	return content
}

// exists reports whether a remote path exists.
func (s *testSSHServer) exists(t *testing.T, path string) bool {
	t.Helper()

	var found bool
	s.withSFTP(t, func(client *sftp.Client) {
		_, err := client.Stat(path)
		found = err == nil
	})
	return found
}

// unusedPort returns a local port with nothing listening on it.
func unusedPort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()
	return port
}

// silentListener accepts connections and never writes to them.
func silentListener(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	done := make(chan struct{})
	t.Cleanup(func() {
		close(done)
		listener.Close()
	})

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				<-done
				conn.Close()
			}()
		}
	}()

	return listener.Addr().(*net.TCPAddr).Port
}
