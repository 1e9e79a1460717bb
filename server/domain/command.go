package domain

import (
	"strings"
	"unicode"
)

type CommandType int

const (
	CommandUnknown CommandType = iota
	CommandList
	CommandJoin
	CommandLeave
	CommandPM
	CommandHistory
	CommandWho
	CommandCall
	CommandAccept
	CommandReject
	CommandHelp
)

var commandNames = map[string]CommandType{
	"/list":    CommandList,
	"/join":    CommandJoin,
	"/leave":   CommandLeave,
	"/pm":      CommandPM,
	"/history": CommandHistory,
	"/who":     CommandWho,
	"/call":    CommandCall,
	"/accept":  CommandAccept,
	"/reject":  CommandReject,
	"/help":    CommandHelp,
}

func (t CommandType) String() string {
	for name, ct := range commandNames {
		if ct == t {
			return name
		}
	}
	return "unknown"
}

// Command is one parsed "/..." line.
type Command struct {
	Type CommandType
	Name string
	// Target is the first argument: the room for /join, the user for /pm and /history.
	Target string
	// Text is everything after Target, inner spacing preserved.
	Text string
}

func IsCommand(line string) bool {
	return strings.HasPrefix(line, "/")
}

func ParseCommand(line string) Command {
	name, rest := cutWord(line)
	name = strings.ToLower(name)
	cmd := Command{Type: commandNames[name], Name: name}
	// words after the room name of /join are ignored
	cmd.Target, cmd.Text = cutWord(rest)
	return cmd
}

func (c Command) IsValid() bool {
	switch c.Type {
	case CommandPM:
		return c.Target != "" && c.Text != ""
	case CommandHistory:
		return c.Target != ""
	case CommandUnknown:
		return false
	default:
		return true
	}
}

func (c Command) String() string {
	if c.Target == "" {
		return c.Type.String()
	}
	return c.Type.String() + " " + c.Target
}

func cutWord(s string) (string, string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}
