package attr

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	setCmd = &cobra.Command{
		Use:   "set [name] [value]",
		Short: "Sets an attribute, replacing its previous value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := openAttrs()
			if err != nil {
				return err
			}
			if err := attrs.Set(owner(), args[0], []byte(args[1])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "set %s of %d\n", args[0], owner())
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [name]",
		Short: "Reads an attribute",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := openAttrs()
			if err != nil {
				return err
			}
			value, ok, err := attrs.Get(owner(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("attribute %s of %d is not set", args[0], owner())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", args[0], value)
			return nil
		},
	}
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists the attribute names of an owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := openAttrs()
			if err != nil {
				return err
			}
			names, err := attrs.List(owner())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
	rmCmd = &cobra.Command{
		Use:   "rm [name]",
		Short: "Removes an attribute",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := openAttrs()
			if err != nil {
				return err
			}
			if err := attrs.Remove(owner(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s of %d\n", args[0], owner())
			return nil
		},
	}
)
