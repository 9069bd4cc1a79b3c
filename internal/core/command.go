package core

import "strings"

// Control commands recognised in the Active state.
const (
	ExitCommand = "!exit"
	WhoCommand  = "!who"
)

// CommandKind describes what an inbound unit asks for.
type CommandKind int

const (
	// CommandChat relays the text to every registered session.
	CommandChat CommandKind = iota
	// CommandExit ends the session gracefully.
	CommandExit
	// CommandWho requests the directory listing.
	CommandWho
	// CommandClose is a zero-length unit, treated as the peer closing.
	CommandClose
)

func (k CommandKind) String() string {
	switch k {
	case CommandChat:
		return "chat"
	case CommandExit:
		return "exit"
	case CommandWho:
		return "who"
	case CommandClose:
		return "close"
	default:
		return "unknown"
	}
}

// Command is an inbound unit after classification.
type Command struct {
	Kind CommandKind
	Text string
}

// ParseCommand classifies one inbound unit.
// Control commands match after trimming surrounding whitespace; chat text is kept verbatim.
func ParseCommand(text string) Command {
	if text == "" {
		return Command{Kind: CommandClose}
	}
	switch strings.TrimSpace(text) {
	case ExitCommand:
		return Command{Kind: CommandExit}
	case WhoCommand:
		return Command{Kind: CommandWho}
	}
	return Command{Kind: CommandChat, Text: text}
}
