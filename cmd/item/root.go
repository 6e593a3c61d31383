package item

import (
	"context"

	"github.com/ValentinKolb/dInv/cmd/util"
	"github.com/ValentinKolb/dInv/rpc/client"
	"github.com/spf13/cobra"
)

var (
	inventory client.IInventoryClient

	// ItemCommands represents the item command group
	ItemCommands = &cobra.Command{
		Use:                "item",
		Short:              "Perform inventory operations",
		Long:               "Perform inventory operations. The format of the environment variables is DINV_<flag> (e.g. DINV_PASSWORD=...).",
		PersistentPreRunE:  setupClient,
		PersistentPostRunE: closeClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add connection flags to the item command
	util.SetupClientFlags(ItemCommands)

	// Add subcommands
	ItemCommands.AddCommand(getCmd)
	ItemCommands.AddCommand(putCmd)
	ItemCommands.AddCommand(modCmd)
	ItemCommands.AddCommand(delCmd)
	ItemCommands.AddCommand(syncCmd)
	ItemCommands.AddCommand(termCmd)
	ItemCommands.AddCommand(rawCmd)
	ItemCommands.AddCommand(perfTestCmd)
}

// setupClient connects and logs in
func setupClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	inventory, err = client.NewInventoryClient(context.Background(), *util.GetClientConfig())
	return err
}

func closeClient(_ *cobra.Command, _ []string) error {
	if inventory == nil {
		return nil
	}
	return inventory.Close()
}
