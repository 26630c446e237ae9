package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandServe    Command = "serve"
	CommandSend     Command = "send"
	CommandDoctor   Command = "doctor"
	CommandSimulate Command = "simulate"
	CommandVersion  Command = "version"
	CommandHelp     Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandServe:    {},
	CommandSend:     {},
	CommandDoctor:   {},
	CommandSimulate: {},
	CommandVersion:  {},
	CommandHelp:     {},
}

type Parsed struct {
	Command    Command
	Args       []string
	ConfigPath string
	Listen     string
	ShowHelp   bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		case "--listen":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--listen requires an address")
			}
			parsed.Listen = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			rest := args[i+1:]
			if err := checkArgs(cmd, rest); err != nil {
				return Parsed{}, err
			}
			parsed.Args = append([]string(nil), rest...)
			return parsed, nil
		}
	}

	return parsed, nil
}

// checkArgs enforces positional arity; only send takes arguments.
func checkArgs(cmd Command, rest []string) error {
	if cmd != CommandSend {
		if len(rest) > 0 {
			return fmt.Errorf("unexpected arguments after command %q", cmd)
		}
		return nil
	}
	switch {
	case len(rest) == 0 || strings.TrimSpace(rest[0]) == "":
		return errors.New("send requires a command")
	case len(rest) > 2:
		return errors.New("send takes a command and at most one parameter")
	}
	return nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--listen ADDR] <command> [args]

Commands:
  serve                        Run the HTTP proxy in front of the miner API
  send <command> [parameter]   Send one command to the miner and print the reply
  doctor                       Run configuration and miner reachability checks
  simulate                     Run a simulated cgminer API (default 127.0.0.1:4028)
  version                      Print version information
  help                         Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/cgproxy/config.toml)
  --listen ADDR   Override the listen address for serve or simulate
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
