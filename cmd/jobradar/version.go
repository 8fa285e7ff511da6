package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set at build time:
//
//	go build -ldflags "-X main.version=v1.2.0 -X main.commit=$(git rev-parse --short HEAD)"
var (
	version = "dev"
	commit  = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the jobradar build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), versionString())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = versionString()
}

// versionString falls back to the VCS revision stamped by the go tool when
// no commit was passed in through ldflags.
func versionString() string {
	rev := commit
	if rev == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" && len(s.Value) >= 7 {
					rev = s.Value[:7]
				}
			}
		}
	}
	out := "jobradar " + version
	if rev != "" {
		out += " (" + rev + ")"
	}
	return out + " " + runtime.Version()
}
