// ABOUTME: Parses chat commands that switch request kind or ask for help
// ABOUTME: Accepts "/" (Telegram) and "!" (Matrix) prefixes and Telegram's "@botname" suffix

package frontend

import "strings"

// Command is a recognised chat command.
type Command int

const (
	CommandNone Command = iota
	CommandSearch
	CommandRegular
	CommandHelp
)

var commandNames = map[string]Command{
	"search":  CommandSearch,
	"regular": CommandRegular,
	"help":    CommandHelp,
	"start":   CommandHelp,
}

// ParseCommand splits text into a command and its trailing text. Text that
// is not a known command comes back as CommandNone with the trimmed text.
func ParseCommand(text string) (Command, string) {
	text = strings.TrimSpace(text)
	if len(text) < 2 || (text[0] != '/' && text[0] != '!') {
		return CommandNone, text
	}

	word, rest, _ := strings.Cut(text[1:], " ")
	if i := strings.IndexByte(word, '\n'); i >= 0 {
		word, rest = word[:i], word[i+1:]+" "+rest
	}
	word, _, _ = strings.Cut(word, "@")

	cmd, ok := commandNames[strings.ToLower(word)]
	if !ok {
		return CommandNone, text
	}
	return cmd, strings.TrimSpace(rest)
}
