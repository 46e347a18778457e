// ABOUTME: Request kinds and the decision table that picks how an answer is interpreted
// ABOUTME: Classification is a pure function of request kind and citation reference names

package answer

import "strings"

// RequestKind is what the user asked for: a conversational answer or a file search.
type RequestKind string

const (
	KindRegular RequestKind = "REGULAR"
	KindSearch  RequestKind = "SEARCH"
)

// ParseRequestKind maps a stored or user-supplied kind. Anything other than
// "search" (any case) is REGULAR, including the empty string.
func ParseRequestKind(s string) RequestKind {
	if strings.EqualFold(strings.TrimSpace(s), string(KindSearch)) {
		return KindSearch
	}
	return KindRegular
}

// Strategy names how a completed run's answer is turned into an Envelope.
type Strategy int

const (
	// StrategyText delivers the message text. Used for every non-search turn.
	StrategyText Strategy = iota
	// StrategyEmbeddedJSON reads a {"name": "file-id"} object out of the text.
	StrategyEmbeddedJSON
	// StrategyFileIDLookup resolves cited file ids to their declared names.
	StrategyFileIDLookup
	// StrategyRawFilenames cleans up cited names before lookup.
	StrategyRawFilenames
	// StrategyAsIs uses cited names unchanged.
	StrategyAsIs
)

func (s Strategy) String() string {
	switch s {
	case StrategyText:
		return "text"
	case StrategyEmbeddedJSON:
		return "embedded_json"
	case StrategyFileIDLookup:
		return "file_id_lookup"
	case StrategyRawFilenames:
		return "raw_filenames"
	case StrategyAsIs:
		return "as_is"
	default:
		return "unknown"
	}
}

// sourceSentinel is the citation name that asks for resolution by file id.
const sourceSentinel = "source"

// Classify evaluates the decision table in order; the first matching row wins.
//
//	kind     references                    strategy
//	REGULAR  any                           Text
//	SEARCH   none                          EmbeddedJSON
//	SEARCH   some name == "source"         FileIDLookup
//	SEARCH   some name contains "file"     RawFilenames
//	SEARCH   otherwise                     AsIs
func Classify(kind RequestKind, referenceNames []string) Strategy {
	if kind != KindSearch {
		return StrategyText
	}
	if len(referenceNames) == 0 {
		return StrategyEmbeddedJSON
	}
	for _, name := range referenceNames {
		if name == sourceSentinel {
			return StrategyFileIDLookup
		}
	}
	for _, name := range referenceNames {
		if strings.Contains(name, "file") {
			return StrategyRawFilenames
		}
	}
	return StrategyAsIs
}
