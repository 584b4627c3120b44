package attr

import (
	"github.com/ValentinKolb/xkv/cmd/util"
	"github.com/ValentinKolb/xkv/lib/xattr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootOwner is the owner used when no owner is given, the root inode of a namespace
const RootOwner = 2

// XattrCommands represents the attribute command group
var XattrCommands = &cobra.Command{
	Use:               "xattr",
	Short:             "Read and write extended attributes of an owner",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return util.PrepareCommand(cmd) },
}

func init() {
	cobra.OnInitialize(util.InitClientConfig)

	util.SetupStoreFlags(XattrCommands)

	key := "owner"
	XattrCommands.PersistentFlags().Uint64P(key, "i", RootOwner, util.WrapString("Owner of the attributes (e.g. an inode number)"))

	XattrCommands.AddCommand(setCmd)
	XattrCommands.AddCommand(getCmd)
	XattrCommands.AddCommand(listCmd)
	XattrCommands.AddCommand(rmCmd)
	XattrCommands.AddCommand(batchCmd)
}

// openAttrs connects to the blocking store selected by the flags
func openAttrs() (*xattr.Attrs, error) {
	s, err := util.NewStore()
	if err != nil {
		return nil, err
	}
	return xattr.NewAttrs(s, xattr.ClassXattr), nil
}

func owner() uint64 {
	return viper.GetUint64("owner")
}
