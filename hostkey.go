package datatransfer

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

func buildHostKeyCallback(d ConnectionDescriptor, log logrus.FieldLogger) (ssh.HostKeyCallback, error) {
	if d.InsecureIgnoreHostKey {
		log.Warnf("SSH host key verification disabled for %s - this is insecure!", d.Addr())
		return ssh.InsecureIgnoreHostKey(), nil
	}

	if d.KnownHostsFile != "" {
		expandedPath := ExpandPath(d.KnownHostsFile)
		callback, err := knownhosts.New(expandedPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts file %s: %w", expandedPath, err)
		}
		return callback, nil
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		defaultKnownHosts := filepath.Join(homeDir, ".ssh", "known_hosts")
		if _, err := os.Stat(defaultKnownHosts); err == nil {
			callback, err := knownhosts.New(defaultKnownHosts)
			if err == nil {
				return unknownHostTolerant(callback, d, log), nil
			}
			log.Warnf("Could not parse known_hosts file %s: %v", defaultKnownHosts, err)
		}
	}

	log.Warnf("No known_hosts file found for %s - host key verification disabled.", d.Addr())
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		return nil
	}, nil
}

// unknownHostTolerant accepts hosts absent from the default known_hosts
// file with a warning, but still rejects a changed key for a known host.
// An explicitly configured known_hosts file gets no such leniency.
func unknownHostTolerant(cb ssh.HostKeyCallback, d ConnectionDescriptor, log logrus.FieldLogger) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := cb(hostname, remote, key)
		if err == nil {
			return nil
		}
		if keyErr, ok := err.(*knownhosts.KeyError); ok && len(keyErr.Want) == 0 {
			log.Warnf("Host %s is not in known_hosts (%s %s) - accepting.",
				d.Addr(), key.Type(), ssh.FingerprintSHA256(key))
			return nil
		}
		return err
	}
}

// ExpandPath expands ~ to home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}
