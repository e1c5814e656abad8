package session

import (
	"fmt"
	"strings"

	"github.com/jzx17/photobatch/pkg/types"
)

// CommandKind identifies a command line
type CommandKind int

const (
	// CommandNone is a blank line
	CommandNone CommandKind = iota
	// CommandDir submits every image in a directory
	CommandDir
	// CommandStat prints the aggregate statistics
	CommandStat
	// CommandQuit shuts the workers down and ends the session
	CommandQuit
)

// String returns the command keyword
func (k CommandKind) String() string {
	switch k {
	case CommandDir:
		return "DIR"
	case CommandStat:
		return "STAT"
	case CommandQuit:
		return "QUIT"
	default:
		return ""
	}
}

// Command is one parsed input line
type Command struct {
	Kind CommandKind
	// Path is set for DIR
	Path string
}

// ParseCommand splits line on whitespace. Keywords are case-sensitive;
// DIR takes exactly one argument, STAT and QUIT none.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{Kind: CommandNone}, nil
	}

	switch {
	case fields[0] == "DIR" && len(fields) == 2:
		return Command{Kind: CommandDir, Path: fields[1]}, nil
	case fields[0] == "STAT" && len(fields) == 1:
		return Command{Kind: CommandStat}, nil
	case fields[0] == "QUIT" && len(fields) == 1:
		return Command{Kind: CommandQuit}, nil
	default:
		return Command{}, fmt.Errorf("%w: %q", types.ErrInvalidCommand, strings.TrimSpace(line))
	}
}
