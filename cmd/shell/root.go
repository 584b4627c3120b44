package shell

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ValentinKolb/xkv/cmd/attr"
	"github.com/ValentinKolb/xkv/cmd/util"
	"github.com/ValentinKolb/xkv/lib/xattr"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ShellCmd starts an interactive attribute shell
var ShellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive shell for extended attributes",
	Long: `Interactive shell for extended attributes. Every command accepts -i/--owner to address
another owner than the default one (the root owner 2 unless changed with 'owner').

Start it with --local to work on an in-process store without a server.`,
	Args: cobra.NoArgs,
	RunE: run,
}

func init() {
	cobra.OnInitialize(util.InitClientConfig)

	util.SetupStoreFlags(ShellCmd)

	key := "owner"
	ShellCmd.PersistentFlags().Uint64P(key, "i", attr.RootOwner, util.WrapString("Default owner of the attributes"))

	key = "history-file"
	ShellCmd.PersistentFlags().String(key, filepath.Join(os.TempDir(), "xkv.history"), util.WrapString("File keeping the command history (empty = no history)"))
}

func run(cmd *cobra.Command, _ []string) error {
	if err := util.PrepareCommand(cmd); err != nil {
		return err
	}

	s, err := util.NewStore()
	if err != nil {
		return err
	}

	sh := &shell{
		attrs:    xattr.NewAttrs(s, xattr.ClassXattr),
		newAsync: util.NewAsyncStore,
		owner:    viper.GetUint64("owner"),
		out:      cmd.OutOrStdout(),
	}
	defer func() {
		if err := sh.close(); err != nil {
			util.Logger.Warningf("failed to close async store: %v", err)
		}
	}()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "xkv> ",
		HistoryFile:     viper.GetString("history-file"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    sh.completer(),
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Fprintln(sh.out, "xkv attribute shell, type help for the list of commands")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := sh.exec(cmd.Context(), line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(sh.out, "Error: %v\n", err)
		}
	}
}

// completer completes command names and the attribute names of the default owner
func (s *shell) completer() readline.AutoCompleter {
	names := readline.PcItemDynamic(func(string) []string {
		list, err := s.attrs.List(s.owner)
		if err != nil {
			return nil
		}
		return list
	})

	return readline.NewPrefixCompleter(
		readline.PcItem("setxattr", names),
		readline.PcItem("getxattr", names),
		readline.PcItem("listxattr"),
		readline.PcItem("rmxattr", names),
		readline.PcItem("batch"),
		readline.PcItem("owner"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}
