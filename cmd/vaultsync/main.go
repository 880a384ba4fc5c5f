// vaultsync - client for uploading files into end-to-end encrypted folders.
package main

import (
	"os"

	"github.com/vaultsync/vaultsync/internal/cli"
	"github.com/vaultsync/vaultsync/internal/version"
)

// Version information, injected via LDFLAGS on release builds.
var (
	Version   = "v1.2.0-dev"
	BuildTime = "2026-08-26"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
