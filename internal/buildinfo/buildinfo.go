// Package buildinfo holds the version data set at link time:
//
//	go build -ldflags "-X github.com/dmitrijs2005/gophsafe/internal/buildinfo.Version=v1.0.0"
package buildinfo

import (
	"fmt"
	"io"
)

var (
	Version = "N/A"
	Date    = "N/A"
	Commit  = "N/A"
)

// PrintBuildData writes the build version, date and commit to w.
func PrintBuildData(w io.Writer) {
	fmt.Fprintf(w, "Build version: %s\n", Version)
	fmt.Fprintf(w, "Build date: %s\n", Date)
	fmt.Fprintf(w, "Build commit: %s\n", Commit)
}
