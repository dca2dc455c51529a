// Package version carries build identity, stamped via ldflags at release.
package version

var (
	Toolname  = "os-installer"
	Version   = "0.0.0-dev"
	BuildDate = "unknown"
	CommitSHA = "unknown"
)
