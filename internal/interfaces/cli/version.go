package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// NewVersionCmd creates the version command with build metadata.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := map[string]string{
				"version":    Version,
				"commit":     GitCommit,
				"build_date": BuildDate,
				"go_version": runtime.Version(),
				"platform":   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
			}

			cliCtx, err := GetCLIContext(cmd)
			if err == nil && cliCtx.OutputFormat == "json" {
				return printJSON(cmd, info)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "controversy %s\n", Version)
			fmt.Fprintf(out, "  commit:     %s\n", GitCommit)
			fmt.Fprintf(out, "  build date: %s\n", BuildDate)
			fmt.Fprintf(out, "  go version: %s\n", info["go_version"])
			fmt.Fprintf(out, "  platform:   %s\n", info["platform"])
			return nil
		},
	}
}
