// ABOUTME: Tests for chat command parsing
// ABOUTME: Table-driven over prefixes, bot suffixes, arguments and plain text

package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		in   string
		cmd  Command
		rest string
	}{
		{name: "plain text", in: "  what is the vacation policy? ", cmd: CommandNone, rest: "what is the vacation policy?"},
		{name: "telegram search", in: "/search", cmd: CommandSearch},
		{name: "matrix regular", in: "!regular", cmd: CommandRegular},
		{name: "bot suffix", in: "/search@filedesk_bot", cmd: CommandSearch},
		{name: "with question", in: "/search contracts from 2023", cmd: CommandSearch, rest: "contracts from 2023"},
		{name: "question on next line", in: "/search\ncontracts", cmd: CommandSearch, rest: "contracts"},
		{name: "start is help", in: "/start", cmd: CommandHelp},
		{name: "case insensitive", in: "!HELP", cmd: CommandHelp},
		{name: "unknown command is text", in: "/weather today", cmd: CommandNone, rest: "/weather today"},
		{name: "lone slash", in: "/", cmd: CommandNone, rest: "/"},
		{name: "empty", in: "", cmd: CommandNone, rest: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, rest := ParseCommand(tt.in)
			assert.Equal(t, tt.cmd, cmd)
			assert.Equal(t, tt.rest, rest)
		})
	}
}
