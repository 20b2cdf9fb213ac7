package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/specsync/specsync/internal/ux"
	"github.com/specsync/specsync/internal/version"
)

var versionVerbose bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE:  runVersion,
}

func init() {
	versionCmd.Flags().BoolVar(&versionVerbose, "full", false, "show build details")
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := version.GetInfo()

	if flagFormat != "text" && flagFormat != "" {
		formatter, err := ux.NewFormatter(flagFormat, nil)
		if err != nil {
			return err
		}
		return formatter.Format(info)
	}

	if versionVerbose {
		fmt.Println(info.String())
		return nil
	}
	fmt.Printf("specsync %s\n", info.Short())
	return nil
}
