package common

var (
	// Version is set at build time with -ldflags "-X github.com/ruteri/safesync/common.Version=...".
	Version = "dev"

	// PackageName is the metrics namespace and default log service name.
	PackageName = "safesync"
)
