// Package transport retrieves IMERG product files from the remote
// date-partitioned archive. Two interchangeable implementations exist: a
// direct FTP client and a proxied HTTP client for hosts that cannot reach
// the FTP site.
package transport

import (
	"context"
	"io"
)

// Archive lists and retrieves files below one remote base root. Folder paths
// are slash-separated and relative to the archive host, e.g.
// "/data/imerg/gis/2018/08".
type Archive interface {
	// ListEntries returns the names of every file in the remote folder.
	ListEntries(ctx context.Context, folder string) ([]string, error)

	// Fetch streams the named file from the remote folder into dest.
	Fetch(ctx context.Context, folder, name string, dest io.Writer) error
}

// Logger is the minimal logging surface used by transport implementations.
type Logger interface {
	Printf(format string, args ...any)
}
