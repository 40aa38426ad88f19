// Command data-transfer uploads a local file or directory to a remote host
// over SFTP.
package main

import (
	"os"

	"github.com/2404589803/data-transfer/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
