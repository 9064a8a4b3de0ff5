package main

import (
	"fmt"
	"runtime"

	"github.com/fentz26/questline/internal/controlplane"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the questline version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("questline %s (%s, %s/%s)\n", controlplane.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}
