package kv

import (
	"github.com/ValentinKolb/xkv/cmd/util"
	"github.com/ValentinKolb/xkv/lib/store"
	"github.com/spf13/cobra"
)

var (
	kvStore store.IStore

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Perform raw key-value store operations",
		PersistentPreRunE: setupKVClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add store selection and RPC flags to the KV command
	util.SetupStoreFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(scanCmd)
	KeyValueCommands.AddCommand(infoCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVClient initializes the store client
func setupKVClient(cmd *cobra.Command, _ []string) error {
	if err := util.PrepareCommand(cmd); err != nil {
		return err
	}

	var err error
	kvStore, err = util.NewStore()
	return err
}
