package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dInv/cmd/admin"
	"github.com/ValentinKolb/dInv/cmd/backup"
	"github.com/ValentinKolb/dInv/cmd/item"
	"github.com/ValentinKolb/dInv/cmd/serve"
	"github.com/spf13/cobra"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dinv",
		Short: "networked game inventory server",
		Long: fmt.Sprintf(`dInv (v%s)

A TLS inventory server for game items written in Go. Authenticated clients
share one SQLite backed inventory that is replicated to a backup peer.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dInv",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dInv v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(backup.BackupCmd)
	RootCmd.AddCommand(item.ItemCommands)
	RootCmd.AddCommand(admin.InitDBCmd)
	RootCmd.AddCommand(admin.CertCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
