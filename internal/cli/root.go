// Package cli implements the data-transfer command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	datatransfer "github.com/2404589803/data-transfer"
)

// UploadFlags holds the flags of the root (upload) command.
type UploadFlags struct {
	LocalPath  string
	RemotePath string
	Exclude    []string
	Symlinks   string
	KeepGoing  bool
	Checksum   bool
	NoProgress bool
}

// app carries state shared by all commands of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader
	v      *viper.Viper
	log    *logrus.Logger

	verbose bool
}

// NewRootCommand builds the command tree writing to the given streams.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		stdout: stdout,
		stderr: stderr,
		stdin:  stdin,
		v:      viper.New(),
		log:    logrus.New(),
	}
	a.v.SetEnvPrefix(datatransfer.EnvPrefix)
	a.v.AutomaticEnv()

	var flags UploadFlags

	rootCmd := &cobra.Command{
		Use:   "data-transfer --local_path <path> --remote_path <path>",
		Short: "Upload a local file or directory to a remote server over SFTP",
		Long: `data-transfer uploads a local file or directory tree to a remote host over
SSH/SFTP, showing progress and throughput for every file.

Connection settings are read from a JSON file (config.json by default):

  {"host": "example.com", "port": 22, "username": "root", "password": "secret"}

Any setting can be overridden with DATA_TRANSFER_<KEY> environment variables.

Examples:
  Upload a file:       data-transfer --local_path test.txt --remote_path /root/test.txt
  Upload a directory:  data-transfer --local_path ./data --remote_path /root/data`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.initLogging()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runUpload(cmd.Context(), &flags)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.String("config", datatransfer.DefaultConfigFile, "path to the JSON connection settings file")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	_ = a.v.BindPFlag("config", pf.Lookup("config"))

	f := rootCmd.Flags()
	f.StringVar(&flags.LocalPath, "local_path", "", "local file or directory to upload (required)")
	f.StringVar(&flags.RemotePath, "remote_path", "", "remote destination path (required)")
	f.StringSliceVar(&flags.Exclude, "exclude", nil, "glob pattern to skip in directory uploads (repeatable)")
	f.StringVar(&flags.Symlinks, "symlinks", string(datatransfer.SymlinkSkip), "symlink policy for directory uploads: skip or follow")
	f.BoolVar(&flags.KeepGoing, "keep-going", false, "continue a directory upload after a file fails")
	f.BoolVar(&flags.Checksum, "checksum", false, "verify every upload by comparing SHA256 checksums")
	f.BoolVar(&flags.NoProgress, "no-progress", false, "do not render progress")
	_ = rootCmd.MarkFlagRequired("local_path")
	_ = rootCmd.MarkFlagRequired("remote_path")

	rootCmd.SetGlobalNormalizationFunc(normalizeFlagName)

	rootCmd.AddCommand(a.newCheckCommand(), a.newInitCommand())
	return rootCmd
}

// normalizeFlagName accepts --local-path and --remote-path as spellings of
// the underscore flags.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	switch name {
	case "local-path":
		name = "local_path"
	case "remote-path":
		name = "remote_path"
	}
	return pflag.NormalizedName(name)
}

// Execute runs the command line and returns the process exit status.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, NewRootCommand(os.Stdin, os.Stdout, os.Stderr), os.Args[1:], os.Stderr)
}

func run(ctx context.Context, cmd *cobra.Command, args []string, stderr io.Writer) int {
	cmd.SetArgs(args)
	cmd.SetOut(stderr)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	// Classified errors already start with their category.
	fmt.Fprintf(stderr, "Error: %v\n", err)
	code := datatransfer.ExitCode(err)
	if code == 1 {
		fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", cmd.CommandPath())
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(stderr, "Interrupted.")
	}
	return code
}

func (a *app) initLogging() {
	a.log.SetOutput(a.stderr)
	a.log.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp:       !a.verbose,
		FullTimestamp:          true,
		DisableLevelTruncation: true,
	})
	a.log.SetLevel(logrus.InfoLevel)
	if a.verbose {
		a.log.SetLevel(logrus.DebugLevel)
	}
}

func (a *app) configPath() string {
	return a.v.GetString("config")
}

func (a *app) reporter(disabled bool) datatransfer.Reporter {
	if disabled {
		return datatransfer.NopReporter{}
	}
	if f, ok := a.stderr.(*os.File); ok {
		return datatransfer.NewConsoleReporter(f)
	}
	return datatransfer.NewLineReporter(a.stderr)
}

func (a *app) runUpload(ctx context.Context, flags *UploadFlags) error {
	symlinks, err := datatransfer.ParseSymlinkPolicy(flags.Symlinks)
	if err != nil {
		return err
	}

	summary, err := datatransfer.Run(ctx, datatransfer.RunConfig{
		ConfigPath: a.configPath(),
		LocalPath:  flags.LocalPath,
		RemotePath: flags.RemotePath,
		Upload: datatransfer.UploadOptions{
			Exclude:   flags.Exclude,
			Symlinks:  symlinks,
			KeepGoing: flags.KeepGoing,
			Copy:      datatransfer.CopyOptions{VerifyChecksum: flags.Checksum},
			Reporter:  a.reporter(flags.NoProgress),
			Logger:    a.log,
		},
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Transfer complete! %d file(s) uploaded to %s\n", len(summary.Files), flags.RemotePath)
	return nil
}
