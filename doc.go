// Package datatransfer uploads local files and directory trees to a remote
// host over SSH/SFTP.
//
// This package provides:
//   - JSON connection settings with environment overrides
//   - An SSH session with password authentication and SFTP subsystem
//   - Recursive directory mirroring with on-demand remote directory creation
//   - Chunked file copies with progress callbacks and size/checksum verification
//   - Console progress rendering (progress bar on terminals, plain lines otherwise)
//
// Transfers are strictly sequential over a single connection.
//
// # Basic Usage
//
// Upload a file or a directory in one call:
//
//	summary, err := datatransfer.Run(ctx, datatransfer.RunConfig{
//		ConfigPath: "config.json",
//		LocalPath:  "./data",
//		RemotePath: "/root/data",
//	})
//	if err != nil {
//		fmt.Fprintf(os.Stderr, "%s: %v\n", datatransfer.Category(err), err)
//		os.Exit(datatransfer.ExitCode(err))
//	}
//
// # Lower Level API
//
// Open a session yourself and drive the Uploader:
//
//	desc, err := datatransfer.LoadConfig("config.json")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	session, err := datatransfer.Dial(ctx, desc)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer session.Close()
//
//	target, err := datatransfer.Classify("./data")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	uploader := datatransfer.NewUploader(session, datatransfer.UploadOptions{
//		Reporter: datatransfer.NewConsoleReporter(os.Stderr),
//	})
//	summary, err := uploader.Upload(ctx, target, "/root/data")
package datatransfer
