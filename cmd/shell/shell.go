package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/xkv/cmd/attr"
	"github.com/ValentinKolb/xkv/lib/store"
	"github.com/ValentinKolb/xkv/lib/xattr"
	"github.com/spf13/pflag"
)

// errQuit ends the session
var errQuit = errors.New("quit")

// shell executes attribute commands of one interactive session
type shell struct {
	attrs    *xattr.Attrs
	newAsync func() (store.IAsyncStore, error)
	async    store.IAsyncStore // opened by the first batch
	owner    uint64            // default of -i/--owner
	out      io.Writer
}

type command struct {
	usage string
	help  string
	run   func(s *shell, ctx context.Context, owner uint64, args []string) error
}

var commands = map[string]command{
	"setxattr": {
		usage: "setxattr [-i OWNER] NAME VALUE",
		help:  "sets an attribute",
		run: func(s *shell, _ context.Context, owner uint64, args []string) error {
			if len(args) != 2 {
				return errUsage
			}
			if err := s.attrs.Set(owner, args[0], []byte(args[1])); err != nil {
				return err
			}
			fmt.Fprintf(s.out, "Set [%s] of [%d].\n", args[0], owner)
			return nil
		},
	},
	"getxattr": {
		usage: "getxattr [-i OWNER] NAME",
		help:  "prints an attribute",
		run: func(s *shell, _ context.Context, owner uint64, args []string) error {
			if len(args) != 1 {
				return errUsage
			}
			value, ok, err := s.attrs.Get(owner, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s of %d", xattr.ErrNoAttr, args[0], owner)
			}
			fmt.Fprintf(s.out, "Value : [%s].\n", value)
			return nil
		},
	},
	"listxattr": {
		usage: "listxattr [-i OWNER]",
		help:  "lists the attribute names of an owner",
		run: func(s *shell, _ context.Context, owner uint64, args []string) error {
			if len(args) != 0 {
				return errUsage
			}
			names, err := s.attrs.List(owner)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(s.out, name)
			}
			return nil
		},
	},
	"rmxattr": {
		usage: "rmxattr [-i OWNER] NAME",
		help:  "removes an attribute",
		run: func(s *shell, _ context.Context, owner uint64, args []string) error {
			if len(args) != 1 {
				return errUsage
			}
			if err := s.attrs.Remove(owner, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(s.out, "Removed [%s] of [%d].\n", args[0], owner)
			return nil
		},
	},
	"batch": {
		usage: "batch [-i OWNER] [KEYS]",
		help:  "writes KEYS (default 100) attributes 1name_of_key_<i> asynchronously",
		run: func(s *shell, ctx context.Context, owner uint64, args []string) error {
			keys := 100
			switch len(args) {
			case 0:
			case 1:
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("invalid number of keys %q", args[0])
				}
				keys = n
			default:
				return errUsage
			}

			if s.async == nil {
				async, err := s.newAsync()
				if err != nil {
					return err
				}
				s.async = async
			}
			_, err := attr.RunBatches(ctx, s.async, attr.BatchOptions{
				Owner:      owner,
				Owners:     1,
				Repeat:     1,
				Keys:       keys,
				NamePrefix: "1name_of_key",
				Value:      bytes.Repeat([]byte{'*'}, 512),
				Timeout:    30 * time.Second,
			}, s.out)
			return err
		},
	},
	"owner": {
		usage: "owner [OWNER]",
		help:  "prints or changes the default owner",
		run: func(s *shell, _ context.Context, _ uint64, args []string) error {
			switch len(args) {
			case 0:
			case 1:
				o, err := strconv.ParseUint(args[0], 0, 64)
				if err != nil {
					return fmt.Errorf("invalid owner %q", args[0])
				}
				s.owner = o
			default:
				return errUsage
			}
			fmt.Fprintf(s.out, "Owner : [%d].\n", s.owner)
			return nil
		},
	},
}

// errUsage makes exec print the usage of the command
var errUsage = errors.New("bad parameters")

// commandNames returns the names of all commands in a stable order
func commandNames() []string {
	return []string{"setxattr", "getxattr", "listxattr", "rmxattr", "batch", "owner", "help", "exit"}
}

// exec runs one input line. It returns errQuit for exit and quit.
func (s *shell) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	name := fields[0]
	switch name {
	case "exit", "quit":
		return errQuit
	case "help":
		s.printHelp()
		return nil
	}

	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q, try help", name)
	}

	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SetOutput(s.out)
	owner := flags.Uint64P("owner", "i", s.owner, "owner of the attributes")
	flags.Usage = func() { fmt.Fprintf(s.out, "Usage: %s\n", cmd.usage) }
	if err := flags.Parse(fields[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	err := cmd.run(s, ctx, *owner, flags.Args())
	if errors.Is(err, errUsage) {
		return fmt.Errorf("%w, usage: %s", err, cmd.usage)
	}
	return err
}

func (s *shell) printHelp() {
	for _, name := range commandNames() {
		cmd, ok := commands[name]
		if !ok {
			continue
		}
		fmt.Fprintf(s.out, "  %-32s %s\n", cmd.usage, cmd.help)
	}
	fmt.Fprintf(s.out, "  %-32s %s\n", "help", "prints this help")
	fmt.Fprintf(s.out, "  %-32s %s\n", "exit", "ends the session")
}

// close releases the async store of the session
func (s *shell) close() error {
	if s.async == nil {
		return nil
	}
	return s.async.Close()
}
