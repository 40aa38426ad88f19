package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	datatransfer "github.com/2404589803/data-transfer"
)

func (a *app) newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Test the connection and credentials in the config file",
		Long: `Check loads the connection settings, opens an SFTP session, resolves the
remote working directory and disconnects. Nothing is uploaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := datatransfer.LoadConfig(a.configPath())
			if err != nil {
				return err
			}

			a.log.Infof("Connecting to %s", desc)
			wd, err := datatransfer.Check(cmd.Context(), desc, datatransfer.WithDialLogger(a.log))
			if err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "Connection OK: %s (remote working directory: %s)\n", desc, wd)
			return nil
		},
	}
}
