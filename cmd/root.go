package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/xkv/cmd/attr"
	"github.com/ValentinKolb/xkv/cmd/kv"
	"github.com/ValentinKolb/xkv/cmd/serve"
	"github.com/ValentinKolb/xkv/cmd/shell"
	"github.com/ValentinKolb/xkv/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "xkv",
		Short: "asynchronous batched attribute store",
		Long: fmt.Sprintf(`xKV (v%s)

Stores extended attributes under fixed-layout keys in a key-value store and
writes them in asynchronous batches. The store is served by 'xkv serve' and
can be backed by in-memory engines, a Raft group, DynamoDB or S3.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of xKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("xKV v%s\n", Version)
		},
	}
)

func init() {
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(attr.XattrCommands)
	RootCmd.AddCommand(shell.ShellCmd)
	RootCmd.AddCommand(versionCmd)

	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (json, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
