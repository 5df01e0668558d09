package root

import (
	"github.com/spf13/cobra"
)

// RootCmd is the top-level inv command.
var RootCmd = &cobra.Command{
	Use:           "inv",
	Short:         "Inventory CLI",
	Long:          "Command line interface for the inventory API. Set INVENTORY_API_URL to target a server other than http://localhost:8080.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// GetRoot returns the RootCmd.
func GetRoot() *cobra.Command {
	return RootCmd
}
