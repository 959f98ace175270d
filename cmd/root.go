package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "fairdoc"}

	root.AddCommand(processCMD(), serveCMD(), migrateCMD())
	_ = root.Execute()
}
