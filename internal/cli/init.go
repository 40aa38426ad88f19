package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	datatransfer "github.com/2404589803/data-transfer"
)

// InitFlags holds the flags of the init command.
type InitFlags struct {
	Host                  string
	Port                  int
	Username              string
	Password              string
	Timeout               time.Duration
	KnownHostsFile        string
	InsecureIgnoreHostKey bool
	Force                 bool
}

func (a *app) newInitCommand() *cobra.Command {
	var flags InitFlags

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a connection settings file",
		Long: `Init writes the JSON connection settings file used by the upload and check
commands. When --password is omitted and stdin is a terminal, the password is
prompted for without echo. An existing file is kept unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.Password == "" && !cmd.Flags().Changed("password") {
				password, err := a.readPassword()
				if err != nil {
					return err
				}
				flags.Password = password
			}

			desc := datatransfer.ConnectionDescriptor{
				Host:                  flags.Host,
				Port:                  flags.Port,
				Username:              flags.Username,
				Password:              flags.Password,
				Timeout:               flags.Timeout,
				KnownHostsFile:        flags.KnownHostsFile,
				InsecureIgnoreHostKey: flags.InsecureIgnoreHostKey,
			}

			path := a.configPath()
			if err := datatransfer.SaveConfig(path, desc, flags.Force); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Configuration saved to %s\n", path)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.Host, "host", "", "remote host name or address (required)")
	f.IntVar(&flags.Port, "port", 22, "remote SSH port")
	f.StringVar(&flags.Username, "username", "", "login name (required)")
	f.StringVar(&flags.Password, "password", "", "login password (prompted for when omitted)")
	f.DurationVar(&flags.Timeout, "timeout", datatransfer.DefaultTimeout, "connect and handshake timeout")
	f.StringVar(&flags.KnownHostsFile, "known-hosts", "", "known_hosts file for host key verification")
	f.BoolVar(&flags.InsecureIgnoreHostKey, "insecure-ignore-host-key", false, "skip host key verification")
	f.BoolVar(&flags.Force, "force", false, "overwrite an existing settings file")
	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func (a *app) readPassword() (string, error) {
	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.stderr, "Password: ")
		password, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(password), nil
	}

	// Piped input: take the first line.
	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", nil
	}
	return strings.TrimRight(line, "\r\n"), nil
}
