// ABOUTME: Field extraction from raw assistant API payloads
// ABOUTME: Malformed JSON yields empty results and a warning instead of an error

package assistant

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// StatusCompleted is the only run status treated as terminal success.
const StatusCompleted = "completed"

// TranscriptEntry is one role/text pair from a thread.
type TranscriptEntry struct {
	Role string
	Text string
}

// Parser extracts fields from raw payloads returned by Client.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a Parser.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger.With("component", "parser")}
}

// valid reports whether raw is well-formed JSON, logging when it is not.
func (p *Parser) valid(field string, raw []byte) bool {
	if gjson.ValidBytes(raw) {
		return true
	}
	p.logger.Warn("malformed JSON payload", "field", field, "payload", truncate(string(raw), 200))
	return false
}

// ID returns the top-level "id" of a created thread, message or run.
func (p *Parser) ID(raw []byte) string {
	if !p.valid("id", raw) {
		return ""
	}
	return gjson.GetBytes(raw, "id").String()
}

// Status returns a run's status string.
func (p *Parser) Status(raw []byte) string {
	if !p.valid("status", raw) {
		return ""
	}
	return gjson.GetBytes(raw, "status").String()
}

// LatestMessageID returns the id of the first message in a list response, which is the
// most recent one for descending order.
func (p *Parser) LatestMessageID(raw []byte) string {
	if !p.valid("data.0.id", raw) {
		return ""
	}
	return gjson.GetBytes(raw, "data.0.id").String()
}

// MessageText returns the first text value of a single message payload.
func (p *Parser) MessageText(raw []byte) string {
	if !p.valid("content.0.text.value", raw) {
		return ""
	}
	return gjson.GetBytes(raw, "content.0.text.value").String()
}

// FileName returns the declared filename from file metadata.
func (p *Parser) FileName(raw []byte) string {
	if !p.valid("filename", raw) {
		return ""
	}
	return gjson.GetBytes(raw, "filename").String()
}

// Transcript returns the text parts of a message list in chronological order.
// The list endpoint returns newest first, so entries are reversed.
func (p *Parser) Transcript(raw []byte) []TranscriptEntry {
	if !p.valid("data", raw) {
		return nil
	}

	var entries []TranscriptEntry
	gjson.GetBytes(raw, "data").ForEach(func(_, msg gjson.Result) bool {
		role := msg.Get("role").String()
		msg.Get("content").ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").String() == "text" {
				entries = append(entries, TranscriptEntry{Role: role, Text: part.Get("text.value").String()})
			}
			return true
		})
		return true
	})

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries
}

// citationPattern matches annotation texts like 【4:0†Report 2024.docx】.
var citationPattern = regexp.MustCompile(`【.*?†(.*?)】`)

// CitationNames returns the file names cited by the message with the given id.
func (p *Parser) CitationNames(raw []byte, messageID string) []string {
	var names []string
	p.eachAnnotation(raw, messageID, func(a gjson.Result) {
		m := citationPattern.FindStringSubmatch(a.Get("text").String())
		if m == nil {
			return
		}
		if name := strings.TrimSpace(m[1]); name != "" {
			names = append(names, name)
		}
	})
	return names
}

// CitationFileIDs returns the file ids cited by the message with the given id.
func (p *Parser) CitationFileIDs(raw []byte, messageID string) []string {
	var ids []string
	p.eachAnnotation(raw, messageID, func(a gjson.Result) {
		if id := a.Get("file_citation.file_id").String(); id != "" {
			ids = append(ids, id)
		}
	})
	return ids
}

func (p *Parser) eachAnnotation(raw []byte, messageID string, fn func(gjson.Result)) {
	if messageID == "" || !p.valid("annotations", raw) {
		return
	}
	gjson.GetBytes(raw, "data").ForEach(func(_, msg gjson.Result) bool {
		if msg.Get("id").String() != messageID {
			return true
		}
		msg.Get("content").ForEach(func(_, part gjson.Result) bool {
			part.Get("text.annotations").ForEach(func(_, a gjson.Result) bool {
				fn(a)
				return true
			})
			return true
		})
		return true
	})
}
