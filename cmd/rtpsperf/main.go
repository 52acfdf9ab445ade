// Command rtpsperf drives RTPS message groups against a real transport
// and reports how the changes were packed into messages.
package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	root := &cobra.Command{
		Use:           "rtpsperf",
		Short:         "Send batches of RTPS changes through the message group",
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newSendCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rtpsperf: %v\n", err)
		os.Exit(1)
	}
}
